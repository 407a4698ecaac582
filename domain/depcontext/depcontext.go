// Package depcontext implements Stage D: dependency context — a consumer
// profile (reach, diversity, spread), a co-occurrence vector, and
// neighborhood hashes over the consumer graph.
package depcontext

import (
	"math"
	"sort"
	"strings"

	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/core"
	"driftsemantic/domain/vectorspace"
)

// DepContext is the Stage D output for a single unit.
type DepContext struct {
	ConsumerProfile    []float64                `json:"consumerProfile"`
	CooccurrenceVector vectorspace.SparseVector `json:"cooccurrenceVector"`
	NeighborhoodHashR1 string                   `json:"neighborhoodHash_r1"`
	NeighborhoodHashR2 string                   `json:"neighborhoodHash_r2"`
}

const maxNormalizedConsumers = 50.0

// shannonEntropy returns the raw, unnormalized base-2 entropy of counts; it
// is not scaled to [0, 1] by the number of distinct kinds.
func shannonEntropy(counts map[string]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 || len(counts) <= 1 {
		return 0.0
	}
	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// ConsumerProfileOf returns [normalizedCount, kindEntropy, dirSpread].
// normalizedCount and dirSpread are clamped to [0, 1]; kindEntropy is the
// raw base-2 Shannon entropy of the consumer kind distribution and is
// unbounded above (e.g. 2.0 for 4 equally-likely kinds).
func ConsumerProfileOf(unit codeunit.CodeUnit) []float64 {
	consumerCount := unit.ConsumerCount
	if consumerCount == 0 {
		consumerCount = len(unit.Consumers)
	}
	normalizedCount := math.Min(float64(consumerCount), maxNormalizedConsumers) / maxNormalizedConsumers
	kindEntropy := shannonEntropy(unit.ConsumerKinds)

	distinctDirs := distinctConsumerDirectories(unit)
	denom := consumerCount
	if denom < 1 {
		denom = 1
	}
	dirSpread := math.Min(1.0, float64(distinctDirs)/float64(denom))

	return []float64{normalizedCount, kindEntropy, dirSpread}
}

// distinctConsumerDirectories prefers the extractor's consumerDirectories
// rollup, falling back to parent directories derived from consumer file
// paths when the rollup is absent.
func distinctConsumerDirectories(unit codeunit.CodeUnit) int {
	if len(unit.ConsumerDirectories) > 0 {
		seen := make(map[string]struct{}, len(unit.ConsumerDirectories))
		for _, dir := range unit.ConsumerDirectories {
			seen[dir] = struct{}{}
		}
		return len(seen)
	}
	dirs := map[string]struct{}{}
	for _, c := range unit.Consumers {
		if i := strings.LastIndex(c.FilePath, "/"); i > 0 {
			dirs[c.FilePath[:i]] = struct{}{}
		}
	}
	return len(dirs)
}

// CooccurrenceVectorOf builds a sparse vector of other unit IDs this unit
// is imported alongside, weighted by co-occurrence ratio (or by count when
// no ratio is recorded).
func CooccurrenceVectorOf(unit codeunit.CodeUnit) vectorspace.SparseVector {
	vec := vectorspace.SparseVector{}
	for _, co := range unit.CoOccurrences {
		if co.UnitID == "" {
			continue
		}
		weight := co.Ratio
		if weight == 0 && co.Count > 0 {
			weight = float64(co.Count)
		}
		if weight > 0 {
			vec[co.UnitID] = weight
		}
	}
	return vec
}

// consumerGraph is a directed adjacency of unit ID to the unit IDs that
// consume it (edge u -> c when c consumes u), used for neighborhood BFS.
type consumerGraph map[string]map[string]struct{}

func buildConsumerGraph(units []codeunit.CodeUnit) consumerGraph {
	graph := consumerGraph{}
	for _, unit := range units {
		if unit.ID == "" {
			continue
		}
		for _, consumer := range unit.Consumers {
			if consumer.ID == "" || consumer.ID == unit.ID {
				continue
			}
			if graph[unit.ID] == nil {
				graph[unit.ID] = map[string]struct{}{}
			}
			graph[unit.ID][consumer.ID] = struct{}{}
		}
	}
	return graph
}

// bfsReachable returns the set of node IDs reachable within radius hops of
// start, excluding start itself.
func bfsReachable(graph consumerGraph, start string, radius int) []string {
	visited := map[string]struct{}{start: {}}
	frontier := []string{start}
	reached := map[string]struct{}{}

	for depth := 0; depth < radius; depth++ {
		var next []string
		for _, node := range frontier {
			for neighbor := range graph[node] {
				if _, seen := visited[neighbor]; seen {
					continue
				}
				visited[neighbor] = struct{}{}
				reached[neighbor] = struct{}{}
				next = append(next, neighbor)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	result := make([]string, 0, len(reached))
	for id := range reached {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// NeighborhoodHashOf hashes the sorted set of unit IDs reachable within 1
// and 2 hops of unit in the consumer graph, excluding the unit itself.
// Empty neighborhoods stay unhashed so two isolated units never read as
// structural neighbors.
func NeighborhoodHashOf(unitID string, graph consumerGraph) (r1, r2 string) {
	radius1 := bfsReachable(graph, unitID, 1)
	radius2 := bfsReachable(graph, unitID, 2)

	if len(radius1) > 0 {
		h, _ := core.HashCanonicalJSON(radius1)
		r1 = h.String()
	}
	if len(radius2) > 0 {
		h, _ := core.HashCanonicalJSON(radius2)
		r2 = h.String()
	}
	return r1, r2
}

// Compute derives the dependency context of every unit, keyed by unit ID.
func Compute(units []codeunit.CodeUnit) map[string]DepContext {
	graph := buildConsumerGraph(units)
	result := make(map[string]DepContext, len(units))
	for _, unit := range units {
		if unit.ID == "" {
			continue
		}
		r1, r2 := NeighborhoodHashOf(unit.ID, graph)
		result[unit.ID] = DepContext{
			ConsumerProfile:    ConsumerProfileOf(unit),
			CooccurrenceVector: CooccurrenceVectorOf(unit),
			NeighborhoodHashR1: r1,
			NeighborhoodHashR2: r2,
		}
	}
	return result
}

// DirectorySpread extracts the distinct `apps/<name>` segment (or the first
// path segment as a fallback) from a set of file paths, for cluster
// enrichment in Stage K.
func DirectorySpread(paths []string) []string {
	seen := map[string]struct{}{}
	var spread []string
	for _, p := range paths {
		segments := strings.Split(p, "/")
		var key string
		for i, seg := range segments {
			if seg == "apps" && i+1 < len(segments) {
				key = "apps/" + segments[i+1]
				break
			}
		}
		if key == "" && len(segments) > 0 {
			key = segments[0]
		}
		if key == "" {
			continue
		}
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			spread = append(spread, key)
		}
	}
	sort.Strings(spread)
	return spread
}
