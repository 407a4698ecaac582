// Package search answers ad hoc queries over a completed pipeline run:
// shared callees, shared consumers, co-occurrence, and type-shape matches.
package search

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"

	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/depcontext"
	"driftsemantic/domain/typesig"
)

const topN = 20

type overlapResult struct {
	unitID string
	count  int
}

func renderOverlap(w io.Writer, header string, results []overlapResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].count > results[j].count })
	if len(results) > topN {
		results = results[:topN]
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Unit", header})
	for _, r := range results {
		table.Append([]string{r.unitID, fmt.Sprintf("%d", r.count)})
	}
	table.Render()
}

// Calls finds units sharing the most callee targets with unitID.
func Calls(w io.Writer, units map[string]codeunit.CodeUnit, unitID string) error {
	target, ok := units[unitID]
	if !ok {
		return fmt.Errorf("unit %q not found", unitID)
	}
	targets := map[string]struct{}{}
	for _, c := range target.Callees {
		targets[c.Target] = struct{}{}
	}

	var results []overlapResult
	for id, u := range units {
		if id == unitID {
			continue
		}
		count := 0
		for _, c := range u.Callees {
			if _, ok := targets[c.Target]; ok {
				count++
			}
		}
		if count > 0 {
			results = append(results, overlapResult{unitID: id, count: count})
		}
	}
	renderOverlap(w, "Shared Callees", results)
	return nil
}

// CalledBy finds units sharing the most consumers with unitID.
func CalledBy(w io.Writer, units map[string]codeunit.CodeUnit, unitID string) error {
	target, ok := units[unitID]
	if !ok {
		return fmt.Errorf("unit %q not found", unitID)
	}
	consumers := map[string]struct{}{}
	for _, c := range target.Consumers {
		consumers[c.ID] = struct{}{}
	}

	var results []overlapResult
	for id, u := range units {
		if id == unitID {
			continue
		}
		count := 0
		for _, c := range u.Consumers {
			if _, ok := consumers[c.ID]; ok {
				count++
			}
		}
		if count > 0 {
			results = append(results, overlapResult{unitID: id, count: count})
		}
	}
	renderOverlap(w, "Shared Consumers", results)
	return nil
}

// CoOccursWith lists the units unitID is most often imported alongside,
// ranked by co-occurrence weight.
func CoOccursWith(w io.Writer, depContexts map[string]depcontext.DepContext, unitID string) error {
	dc, ok := depContexts[unitID]
	if !ok {
		return fmt.Errorf("unit %q has no dependency context", unitID)
	}

	type weighted struct {
		unitID string
		weight float64
	}
	pairs := make([]weighted, 0, len(dc.CooccurrenceVector))
	for id, weight := range dc.CooccurrenceVector {
		pairs = append(pairs, weighted{unitID: id, weight: weight})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].weight > pairs[j].weight })
	if len(pairs) > topN {
		pairs = pairs[:topN]
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Unit", "Co-occurrence"})
	for _, p := range pairs {
		table.Append([]string{p.unitID, fmt.Sprintf("%.2f", p.weight)})
	}
	table.Render()
	return nil
}

// TypeLike finds units whose type signature matches unitID's, preferring a
// strict-hash match and falling back to a loose-hash match.
func TypeLike(w io.Writer, units map[string]codeunit.CodeUnit, typeSigs map[string]typesig.Signature, unitID string) error {
	target, ok := typeSigs[unitID]
	if !ok {
		return fmt.Errorf("unit %q has no type signature", unitID)
	}

	var strictMatches, looseMatches []string
	for id, sig := range typeSigs {
		if id == unitID {
			continue
		}
		if sig.StrictHash == target.StrictHash {
			strictMatches = append(strictMatches, id)
		} else if sig.LooseHash == target.LooseHash {
			looseMatches = append(looseMatches, id)
		}
	}
	sort.Strings(strictMatches)
	sort.Strings(looseMatches)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Unit", "Match"})
	for _, id := range strictMatches {
		table.Append([]string{id, "strict"})
	}
	for _, id := range looseMatches {
		table.Append([]string{id, "loose"})
	}
	table.Render()
	return nil
}
