// Package callgraph implements Stage C: per-unit call graph vectors —
// callee-set IDF vectors, per-context call sequence hashes, chain-pattern
// hashes, and a [direct, depth2, depth3plus] depth profile.
package callgraph

import (
	"math"

	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/core"
	"driftsemantic/domain/vectorspace"
)

// CallVector is the Stage C output for a single unit.
type CallVector struct {
	CalleeSetVector    vectorspace.SparseVector `json:"calleeSetVector"`
	SequenceHashes     map[string]string        `json:"sequenceHashes"`
	ChainPatternHashes []string                 `json:"chainPatternHashes"`
	DepthProfile       []int                    `json:"depthProfile"`
}

func computeCalleeIDF(units []codeunit.CodeUnit) map[string]float64 {
	docCount := len(units)
	if docCount == 0 {
		return nil
	}
	docCounts := make(map[string]int)
	for _, u := range units {
		seen := make(map[string]struct{})
		for _, callee := range u.Callees {
			if callee.Target == "" {
				continue
			}
			if _, ok := seen[callee.Target]; ok {
				continue
			}
			seen[callee.Target] = struct{}{}
			docCounts[callee.Target]++
		}
	}
	idf := make(map[string]float64, len(docCounts))
	for name, count := range docCounts {
		idf[name] = math.Log(float64(docCount) / float64(count))
	}
	return idf
}

// CalleeSetVectorOf weights each callee target by its corpus-wide inverse
// document frequency.
func CalleeSetVectorOf(unit codeunit.CodeUnit, idf map[string]float64) vectorspace.SparseVector {
	vec := vectorspace.SparseVector{}
	for _, callee := range unit.Callees {
		if callee.Target == "" {
			continue
		}
		if weight, ok := idf[callee.Target]; ok {
			vec[callee.Target] += weight
		}
	}
	return vec
}

// SequenceHashesOf hashes the ordered callee sequence recorded for each
// execution context (render, effect, handler, ...).
func SequenceHashesOf(unit codeunit.CodeUnit) map[string]string {
	result := make(map[string]string)
	for context, seq := range unit.CalleeSequence {
		if len(seq) == 0 {
			continue
		}
		h, _ := core.HashCanonicalJSON(seq)
		result[context] = h.String()
	}
	return result
}

// ChainPatternHashesOf hashes each recorded call-chain pattern for
// structural comparison.
func ChainPatternHashesOf(unit codeunit.CodeUnit) []string {
	hashes := make([]string, 0, len(unit.ChainPatterns))
	for _, pattern := range unit.ChainPatterns {
		if pattern == nil {
			continue
		}
		h, _ := core.HashCanonicalJSON(pattern)
		hashes = append(hashes, h.String())
	}
	return hashes
}

// DepthProfileOf returns [directCalls, depth2, depth3plus] from the unit's
// recorded call depth histogram, normalizing string and int keys alike.
// Falls back to counting unique callees as direct calls when no depth data
// is present.
func DepthProfileOf(unit codeunit.CodeUnit) []int {
	if len(unit.CallDepth) > 0 {
		direct := unit.CallDepth["1"]
		depth2 := unit.CallDepth["2"]
		depth3plus := 0
		for key, count := range unit.CallDepth {
			if key == "1" || key == "2" {
				continue
			}
			n, err := parsePositiveInt(key)
			if err == nil && n >= 3 {
				depth3plus += count
			}
		}
		return []int{direct, depth2, depth3plus}
	}

	if unit.UniqueCallees > 0 {
		return []int{unit.UniqueCallees, 0, 0}
	}
	seen := make(map[string]struct{})
	for _, callee := range unit.Callees {
		if callee.Target != "" {
			seen[callee.Target] = struct{}{}
		}
	}
	return []int{len(seen), 0, 0}
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotDigits
		}
		n = n*10 + int(r-'0')
	}
	if s == "" {
		return 0, errNotDigits
	}
	return n, nil
}

var errNotDigits = &notDigitsError{}

type notDigitsError struct{}

func (*notDigitsError) Error() string { return "not a digit string" }

// Compute derives the call graph vector of every unit, keyed by unit ID.
func Compute(units []codeunit.CodeUnit) map[string]CallVector {
	idf := computeCalleeIDF(units)
	result := make(map[string]CallVector, len(units))
	for _, unit := range units {
		if unit.ID == "" {
			continue
		}
		result[unit.ID] = CallVector{
			CalleeSetVector:    CalleeSetVectorOf(unit, idf),
			SequenceHashes:     SequenceHashesOf(unit),
			ChainPatternHashes: ChainPatternHashesOf(unit),
			DepthProfile:       DepthProfileOf(unit),
		}
	}
	return result
}
