// Package inspect renders read-only, human-facing views over a completed
// pipeline run: a single unit's full derived profile, its most similar
// neighbors, a cluster's full detail, and its consumers/callers.
package inspect

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"driftsemantic/domain/callgraph"
	"driftsemantic/domain/cluster"
	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/depcontext"
	"driftsemantic/domain/fingerprint"
	"driftsemantic/domain/score"
	"driftsemantic/domain/typesig"
	"driftsemantic/domain/verdict"
)

// Artifacts bundles every loaded Stage F-K output an inspect query can draw
// on. Any field may be nil if that stage hasn't run.
type Artifacts struct {
	Units         map[string]codeunit.CodeUnit
	Fingerprints  map[string]fingerprint.Fingerprint
	TypeSigs      map[string]typesig.Signature
	CallVectors   map[string]callgraph.CallVector
	DepContexts   map[string]depcontext.DepContext
	Pairs         []score.PairScore
	Clusters      []cluster.Cluster
	Findings      []verdict.Finding
}

// Unit prints the full derived profile of a single unit: identity,
// fingerprint, type signature, call vector, and dependency context.
func Unit(w io.Writer, a Artifacts, unitID string) error {
	unit, ok := a.Units[unitID]
	if !ok {
		return fmt.Errorf("unit %q not found", unitID)
	}

	fmt.Fprintf(w, "%s (%s)\n%s\n\n", unit.Name, unit.Kind, unit.FilePath)

	if fp, ok := a.Fingerprints[unitID]; ok {
		fmt.Fprintf(w, "JSX hash:        exact=%s fuzzy=%s\n", fp.JSXHash.ExactHash(), fp.JSXHash.FuzzyHash())
		fmt.Fprintf(w, "Hook profile:    %v\n", fp.HookProfile)
		fmt.Fprintf(w, "Behavior flags:  %v\n", fp.BehaviorFlags)
	}
	if ts, ok := a.TypeSigs[unitID]; ok {
		fmt.Fprintf(w, "Type signature:  %s\n", ts.Canonical)
	}
	if cv, ok := a.CallVectors[unitID]; ok {
		fmt.Fprintf(w, "Depth profile:   %v\n", cv.DepthProfile)
		fmt.Fprintf(w, "Unique callees:  %d\n", len(cv.CalleeSetVector))
	}
	if dc, ok := a.DepContexts[unitID]; ok {
		fmt.Fprintf(w, "Consumer profile: %v\n", dc.ConsumerProfile)
	}
	return nil
}

// Similar prints the top-N most similar units to unitID, with a per-pair
// signal breakdown.
func Similar(w io.Writer, a Artifacts, unitID string, topN int) error {
	var matches []score.PairScore
	for _, p := range a.Pairs {
		if p.UnitA == unitID || p.UnitB == unitID {
			matches = append(matches, p)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topN > 0 && len(matches) > topN {
		matches = matches[:topN]
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Unit", "Score", "Dominant Signal"})
	for _, p := range matches {
		other := p.UnitB
		if other == unitID {
			other = p.UnitA
		}
		table.Append([]string{other, fmt.Sprintf("%.3f", p.Score), p.DominantSignal})
	}
	table.Render()
	return nil
}

// Cluster prints full detail for one cluster: members, signal breakdown as
// an ASCII bar chart, and its reviewer finding if one exists.
func Cluster(w io.Writer, a Artifacts, clusterID string) error {
	var target *cluster.Cluster
	for i := range a.Clusters {
		if a.Clusters[i].ID == clusterID {
			target = &a.Clusters[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("cluster %q not found", clusterID)
	}

	fmt.Fprintf(w, "%s — %d members, avg similarity %.2f\n\n", target.ID, len(target.Members), target.AvgSimilarity)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Unit", "Kind", "File"})
	for _, id := range target.Members {
		unit := a.Units[id]
		table.Append([]string{unit.Name, unit.Kind, unit.FilePath})
	}
	table.Render()

	fmt.Fprintln(w, "\nSignal breakdown:")
	keys := make([]string, 0, len(target.SignalBreakdown))
	for k := range target.SignalBreakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := target.SignalBreakdown[k]
		bar := strings.Repeat("#", int(v*40))
		fmt.Fprintf(w, "  %-20s %-40s %.2f\n", k, bar, v)
	}

	for _, f := range a.Findings {
		if f.ClusterID.String() == clusterID {
			fmt.Fprintf(w, "\nFinding: %s (confidence %.2f)\n", f.Verdict, f.Confidence)
			break
		}
	}
	return nil
}

// Consumers prints every unit that consumes unitID.
func Consumers(w io.Writer, a Artifacts, unitID string) error {
	unit, ok := a.Units[unitID]
	if !ok {
		return fmt.Errorf("unit %q not found", unitID)
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Consumer", "File"})
	for _, c := range unit.Consumers {
		table.Append([]string{c.ID, c.FilePath})
	}
	table.Render()
	return nil
}

// Callers prints every unit that calls unitID's callees (units with any
// callee target overlapping unitID's callee set).
func Callers(w io.Writer, a Artifacts, unitID string) error {
	target, ok := a.Units[unitID]
	if !ok {
		return fmt.Errorf("unit %q not found", unitID)
	}
	targets := map[string]struct{}{}
	for _, c := range target.Callees {
		targets[c.Target] = struct{}{}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Unit", "Shared Callees"})
	for id, u := range a.Units {
		if id == unitID {
			continue
		}
		shared := 0
		for _, c := range u.Callees {
			if _, ok := targets[c.Target]; ok {
				shared++
			}
		}
		if shared > 0 {
			table.Append([]string{u.Name, fmt.Sprintf("%d", shared)})
		}
	}
	table.Render()
	return nil
}
