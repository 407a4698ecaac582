// Package fingerprint implements Stage F: per-unit structural fingerprinting
// — JSX structure hashing (exact and fuzzy), hook usage profile, import
// constellation, behavior flags, and data access pattern.
package fingerprint

import (
	"math"
	"regexp"

	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/core"
	"driftsemantic/domain/vectorspace"
)

// JSXHash holds the exact and fuzzy structural hashes of a unit's JSX tree.
// Both serialize as null when the unit has no JSX tree.
type JSXHash struct {
	Exact *string `json:"exact"`
	Fuzzy *string `json:"fuzzy"`
}

// ExactHash returns the exact hash, or "" when the unit has no JSX tree.
func (h JSXHash) ExactHash() string {
	if h.Exact == nil {
		return ""
	}
	return *h.Exact
}

// FuzzyHash returns the fuzzy hash, or "" when the unit has no JSX tree.
func (h JSXHash) FuzzyHash() string {
	if h.Fuzzy == nil {
		return ""
	}
	return *h.Fuzzy
}

// Fingerprint is the Stage F output for a single unit.
type Fingerprint struct {
	JSXHash             JSXHash                `json:"jsxHash"`
	HookProfile         []int                  `json:"hookProfile"`
	ImportConstellation vectorspace.SparseVector `json:"importConstellation"`
	BehaviorFlags       []int                  `json:"behaviorFlags"`
	DataAccessPattern   vectorspace.SparseVector `json:"dataAccessPattern"`
}

// hookOrder fixes the hook-profile vector's dimension order so two units'
// profiles are comparable position-by-position.
var hookOrder = []string{
	"useState",
	"useEffect",
	"useCallback",
	"useMemo",
	"useRef",
	"useContext",
	"useReducer",
	"useLayoutEffect",
	"useDeferredValue",
	"useTransition",
}

// behaviorKeys fixes the behavior-flag vector's dimension order.
var behaviorKeys = []string{
	"isAsync",
	"hasErrorHandling",
	"hasLoadingState",
	"hasEmptyState",
	"hasRetryLogic",
	"rendersIteration",
	"rendersConditional",
	"sideEffects",
}

var pascalCaseRE = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]+$`)

// wildcardCustomTags replaces PascalCase tag names (custom components) with
// "<C>" so structurally identical trees match even after a component rename.
func wildcardCustomTags(tree *codeunit.JSXNode) *codeunit.JSXNode {
	if tree == nil {
		return nil
	}
	tag := tree.Tag
	if pascalCaseRE.MatchString(tag) {
		tag = "<C>"
	}
	children := make([]*codeunit.JSXNode, len(tree.Children))
	for i, child := range tree.Children {
		children[i] = wildcardCustomTags(child)
	}
	return &codeunit.JSXNode{Tag: tag, Children: children}
}

// JSXHashOf computes the exact and fuzzy JSX structure hashes for a unit.
func JSXHashOf(unit codeunit.CodeUnit) JSXHash {
	if unit.JSXTree == nil {
		return JSXHash{}
	}
	exact, _ := core.HashCanonicalJSON(unit.JSXTree)
	fuzzy, _ := core.HashCanonicalJSON(wildcardCustomTags(unit.JSXTree))
	exactStr, fuzzyStr := exact.String(), fuzzy.String()
	return JSXHash{Exact: &exactStr, Fuzzy: &fuzzyStr}
}

// HookProfileOf builds the fixed-length hook call count vector, accepting
// either named-count entries or bare hook-name repeats in HookCalls.
func HookProfileOf(unit codeunit.CodeUnit) []int {
	counts := make(map[string]int, len(hookOrder))
	for _, call := range unit.HookCalls {
		n := call.Count
		if n == 0 {
			n = 1
		}
		counts[call.Name] += n
	}
	profile := make([]int, len(hookOrder))
	for i, hook := range hookOrder {
		profile[i] = counts[hook]
	}
	return profile
}

// computeImportIDF returns ln(N/df(source)) for each import source that
// appears in at least one unit, where df is the number of units importing it.
func computeImportIDF(units []codeunit.CodeUnit) map[string]float64 {
	docCount := len(units)
	if docCount == 0 {
		return nil
	}
	docCounts := make(map[string]int)
	for _, u := range units {
		seen := make(map[string]struct{})
		for _, imp := range u.Imports {
			if imp.Source == "" {
				continue
			}
			if _, ok := seen[imp.Source]; ok {
				continue
			}
			seen[imp.Source] = struct{}{}
			docCounts[imp.Source]++
		}
	}
	idf := make(map[string]float64, len(docCounts))
	for src, count := range docCounts {
		idf[src] = math.Log(float64(docCount) / float64(count))
	}
	return idf
}

// ImportConstellationOf builds a sparse vector of import sources weighted by
// inverse document frequency across the whole corpus.
func ImportConstellationOf(unit codeunit.CodeUnit, idf map[string]float64) vectorspace.SparseVector {
	vec := vectorspace.SparseVector{}
	for _, imp := range unit.Imports {
		if imp.Source == "" {
			continue
		}
		if weight, ok := idf[imp.Source]; ok {
			vec[imp.Source] += weight
		}
	}
	return vec
}

// BehaviorFlagsOf builds the fixed-length binary behavior marker vector.
func BehaviorFlagsOf(unit codeunit.CodeUnit) []int {
	values := []bool{
		unit.IsAsync,
		unit.HasErrorHandling,
		unit.HasLoadingState,
		unit.HasEmptyState,
		unit.HasRetryLogic,
		unit.RendersIteration,
		unit.RendersConditional,
		unit.SideEffects,
	}
	flags := make([]int, len(behaviorKeys))
	for i, v := range values {
		if v {
			flags[i] = 1
		}
	}
	return flags
}

// DataAccessPatternOf builds a sparse vector over store and data-source
// names, prefixed so the two namespaces never collide.
func DataAccessPatternOf(unit codeunit.CodeUnit) vectorspace.SparseVector {
	vec := vectorspace.SparseVector{}
	for _, store := range unit.StoreAccess {
		if store.Name != "" {
			vec["store:"+store.Name] += 1.0
		}
	}
	for _, ds := range unit.DataSourceAccess {
		if ds.Name != "" {
			vec["ds:"+ds.Name] += 1.0
		}
	}
	return vec
}

// Compute derives the structural fingerprint of every unit, keyed by unit ID.
func Compute(units []codeunit.CodeUnit) map[string]Fingerprint {
	idf := computeImportIDF(units)
	result := make(map[string]Fingerprint, len(units))
	for _, unit := range units {
		if unit.ID == "" {
			continue
		}
		result[unit.ID] = Fingerprint{
			JSXHash:             JSXHashOf(unit),
			HookProfile:         HookProfileOf(unit),
			ImportConstellation: ImportConstellationOf(unit, idf),
			BehaviorFlags:       BehaviorFlagsOf(unit),
			DataAccessPattern:   DataAccessPatternOf(unit),
		}
	}
	return result
}

// TreeEditDistanceNormalized gives a simplified JSX tree similarity:
// 2 * matchingNodes / (totalNodesA + totalNodesB), clamped to 1.0. Returns 0
// when both trees are nil.
func TreeEditDistanceNormalized(a, b *codeunit.JSXNode) float64 {
	if a == nil && b == nil {
		return 0.0
	}
	total := countTreeNodes(a) + countTreeNodes(b)
	if total == 0 {
		return 0.0
	}
	matching := countMatchingNodes(a, b)
	ratio := (2.0 * float64(matching)) / float64(total)
	return math.Min(1.0, ratio)
}

func countTreeNodes(tree *codeunit.JSXNode) int {
	if tree == nil {
		return 0
	}
	count := 1
	for _, child := range tree.Children {
		count += countTreeNodes(child)
	}
	return count
}

// countMatchingNodes greedily pairs children by index: same tag at the same
// structural position counts as a match.
func countMatchingNodes(a, b *codeunit.JSXNode) int {
	if a == nil || b == nil {
		return 0
	}
	matching := 0
	if a.Tag == b.Tag {
		matching = 1
	}
	n := len(a.Children)
	if len(b.Children) < n {
		n = len(b.Children)
	}
	for i := 0; i < n; i++ {
		matching += countMatchingNodes(a.Children[i], b.Children[i])
	}
	return matching
}
