// Package cluster implements Stage K: grouping scored pairs into clusters
// via connected components, sub-clustering large components with greedy
// modularity maximization, then enriching and ranking each cluster.
package cluster

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/depcontext"
	"driftsemantic/domain/score"
	"driftsemantic/domain/vectorspace"
)

// subClusterThreshold: connected components at or below this size are kept
// whole; larger ones are split by modularity maximization.
const subClusterThreshold = 5

// modularityResolution and modularitySeed fix the sub-clustering pass so
// re-running against the same similarity matrix reproduces identical
// clusters.
const modularityResolution = 1.0

var modularitySeed int64 = 42

// Cluster is the Stage K output for one group of similar units, enriched
// and ranked relative to every other cluster in the same run.
type Cluster struct {
	ID              string             `json:"id"`
	Members         []string           `json:"members"`
	MemberCount     int                `json:"memberCount"`
	AvgSimilarity   float64            `json:"avgSimilarity"`
	SignalBreakdown map[string]float64 `json:"signalBreakdown"`
	DirectorySpread int                `json:"directorySpread"`
	KindMix         map[string]int     `json:"kindMix"`
	SharedCallees   []string           `json:"sharedCallees"`
	ConsumerOverlap float64            `json:"consumerOverlap"`
	RankScore       float64            `json:"rankScore"`
}

type nodeIndex struct {
	idOf   map[string]int64
	unitOf map[int64]string
}

func newNodeIndex() *nodeIndex {
	return &nodeIndex{idOf: map[string]int64{}, unitOf: map[int64]string{}}
}

func (n *nodeIndex) get(unitID string) int64 {
	if id, ok := n.idOf[unitID]; ok {
		return id
	}
	id := int64(len(n.idOf))
	n.idOf[unitID] = id
	n.unitOf[id] = unitID
	return id
}

// buildGraph constructs a weighted undirected graph from every scored pair
// at or above threshold.
func buildGraph(pairs []score.PairScore, threshold float64) (*simple.WeightedUndirectedGraph, *nodeIndex) {
	g := simple.NewWeightedUndirectedGraph(0, 0)
	idx := newNodeIndex()
	for _, p := range pairs {
		if p.Score < threshold {
			continue
		}
		a := idx.get(p.UnitA)
		b := idx.get(p.UnitB)
		if g.Node(a) == nil {
			g.AddNode(simple.Node(a))
		}
		if g.Node(b) == nil {
			g.AddNode(simple.Node(b))
		}
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(a), simple.Node(b), p.Score))
	}
	return g, idx
}

// detectCommunities returns one []unitID slice per detected community.
// Connected components at or below subClusterThreshold are kept whole;
// larger ones are modularity-split, discarding resulting singletons.
func detectCommunities(g *simple.WeightedUndirectedGraph, idx *nodeIndex) [][]string {
	components := topo.ConnectedComponents(g)

	var groups [][]string
	for _, component := range components {
		if len(component) <= subClusterThreshold {
			groups = append(groups, nodesToUnits(component, idx))
			continue
		}

		sub := subgraphOf(g, component)
		reduced := func() (r community.ReducedGraph) {
			defer func() {
				if recover() != nil {
					r = nil
				}
			}()
			return community.Modularize(sub, modularityResolution, rand.NewPCG(uint64(modularitySeed), uint64(modularitySeed)))
		}()

		if reduced == nil {
			groups = append(groups, nodesToUnits(component, idx))
			continue
		}

		for _, community := range reduced.Communities() {
			if len(community) <= 1 {
				continue
			}
			groups = append(groups, nodesToUnits(community, idx))
		}
	}
	return groups
}

func nodesToUnits(nodes []graph.Node, idx *nodeIndex) []string {
	units := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if id, ok := idx.unitOf[n.ID()]; ok {
			units = append(units, id)
		}
	}
	sort.Strings(units)
	return units
}

// subgraphOf builds a standalone weighted undirected graph containing only
// the given component's nodes and the edges between them, for an isolated
// modularity pass.
func subgraphOf(g *simple.WeightedUndirectedGraph, component []graph.Node) *simple.WeightedUndirectedGraph {
	sub := simple.NewWeightedUndirectedGraph(0, 0)
	present := map[int64]struct{}{}
	for _, n := range component {
		present[n.ID()] = struct{}{}
		sub.AddNode(n)
	}
	for _, n := range component {
		edges := g.From(n.ID())
		for edges.Next() {
			to := edges.Node()
			if _, ok := present[to.ID()]; !ok {
				continue
			}
			if sub.HasEdgeBetween(n.ID(), to.ID()) {
				continue
			}
			weight, _ := g.Weight(n.ID(), to.ID())
			sub.SetWeightedEdge(sub.NewWeightedEdge(n, to, weight))
		}
	}
	return sub
}

// pairLookup indexes scored pairs by unordered unit ID pair for O(1) lookup
// during enrichment.
type pairLookup map[[2]string]score.PairScore

func buildPairLookup(pairs []score.PairScore) pairLookup {
	lookup := make(pairLookup, len(pairs))
	for _, p := range pairs {
		key := pairKey(p.UnitA, p.UnitB)
		lookup[key] = p
	}
	return lookup
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// round4 keeps every recorded cluster statistic at 4 decimals, the same
// precision the scoring stage records.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func enrich(members []string, lookup pairLookup, unitsByID map[string]codeunit.CodeUnit) Cluster {
	signalTotals := map[string]float64{}
	var totalScore float64
	var edgeCount int

	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			pair, ok := lookup[pairKey(members[i], members[j])]
			if !ok {
				continue
			}
			edgeCount++
			totalScore += pair.Score
			for signal, value := range pair.Signals {
				signalTotals[signal] += value
			}
		}
	}

	avgSimilarity := 0.0
	if edgeCount > 0 {
		avgSimilarity = round4(totalScore / float64(edgeCount))
	}

	// Per-signal means are taken over all intra-cluster edges, so a signal
	// missing from some edges dilutes toward zero rather than averaging only
	// where it fired.
	signalBreakdown := make(map[string]float64, len(signalTotals))
	if edgeCount > 0 {
		for signal, total := range signalTotals {
			signalBreakdown[signal] = round4(total / float64(edgeCount))
		}
	}

	var paths []string
	kindMix := map[string]int{}
	calleeMemberCount := map[string]int{}
	consumerSets := make([]vectorspace.StringSet, 0, len(members))

	for _, id := range members {
		unit, ok := unitsByID[id]
		if !ok {
			kindMix["unknown"]++
			consumerSets = append(consumerSets, vectorspace.StringSet{})
			continue
		}
		if unit.FilePath != "" {
			paths = append(paths, unit.FilePath)
		}
		kindMix[unit.Kind]++

		seenCallee := map[string]struct{}{}
		for _, callee := range unit.Callees {
			if callee.Target == "" {
				continue
			}
			if _, ok := seenCallee[callee.Target]; ok {
				continue
			}
			seenCallee[callee.Target] = struct{}{}
			calleeMemberCount[callee.Target]++
		}

		consumerIDs := make([]string, 0, len(unit.Consumers))
		for _, c := range unit.Consumers {
			if c.ID != "" {
				consumerIDs = append(consumerIDs, c.ID)
			}
		}
		consumerSets = append(consumerSets, vectorspace.NewStringSet(consumerIDs))
	}

	var sharedCallees []string
	majority := len(members)/2 + 1
	for callee, count := range calleeMemberCount {
		if count >= majority {
			sharedCallees = append(sharedCallees, callee)
		}
	}
	sort.Strings(sharedCallees)

	// Only member pairs with at least one consumer between them count toward
	// the overlap average.
	consumerOverlap := 0.0
	var overlapSum float64
	var overlapCount int
	for i := 0; i < len(consumerSets); i++ {
		for j := i + 1; j < len(consumerSets); j++ {
			if len(consumerSets[i]) == 0 && len(consumerSets[j]) == 0 {
				continue
			}
			overlapSum += vectorspace.JaccardSimilarity(consumerSets[i], consumerSets[j])
			overlapCount++
		}
	}
	if overlapCount > 0 {
		consumerOverlap = round4(overlapSum / float64(overlapCount))
	}

	directorySpread := len(depcontext.DirectorySpread(paths))

	mixedKinds := len(kindMix) > 1
	spreadFactor := float64(directorySpread)
	if spreadFactor < 1 {
		spreadFactor = 1
	}
	mixBonus := 1.0
	if mixedKinds {
		mixBonus = 1.2
	}
	rankScore := round4(float64(len(members)) * avgSimilarity * spreadFactor * mixBonus)

	return Cluster{
		Members:         members,
		MemberCount:     len(members),
		AvgSimilarity:   avgSimilarity,
		SignalBreakdown: signalBreakdown,
		DirectorySpread: directorySpread,
		KindMix:         kindMix,
		SharedCallees:   sharedCallees,
		ConsumerOverlap: consumerOverlap,
		RankScore:       rankScore,
	}
}

// Compute groups scored pairs into ranked, enriched clusters. threshold
// gates which scored pairs become graph edges (independent of the scoring
// stage's own reporting threshold, so callers can cluster on a stricter
// cutoff than they report on).
func Compute(units []codeunit.CodeUnit, pairs []score.PairScore, threshold float64) []Cluster {
	unitsByID := make(map[string]codeunit.CodeUnit, len(units))
	for _, u := range units {
		unitsByID[u.ID] = u
	}

	g, idx := buildGraph(pairs, threshold)
	groups := detectCommunities(g, idx)
	lookup := buildPairLookup(pairs)

	// Graph iteration order is not deterministic; anchor group order on the
	// lexicographically first member before enrichment so cluster numbering
	// is reproducible run to run.
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })

	clusters := make([]Cluster, 0, len(groups))
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		clusters = append(clusters, enrich(members, lookup, unitsByID))
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].RankScore > clusters[j].RankScore
	})
	for i := range clusters {
		clusters[i].ID = fmt.Sprintf("cluster-%03d", i+1)
	}

	return clusters
}
