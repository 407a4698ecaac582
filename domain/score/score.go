// Package score implements Stage S: pairwise similarity scoring. Every
// comparable pair of code units is scored across up to 13 independent
// signals, combined under an adaptive weight table, and the dominant signal
// (the raw signal with the largest value) is recorded alongside the total.
package score

import (
	"context"
	"math"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"driftsemantic/domain/callgraph"
	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/core"
	"driftsemantic/domain/depcontext"
	"driftsemantic/domain/fingerprint"
	"driftsemantic/domain/typesig"
	"driftsemantic/domain/vectorspace"
)

// Signal names, used as map keys in both the weight tables and each pair's
// signal breakdown.
const (
	SignalSemantic          = "semantic"
	SignalTypeSignature     = "typeSignature"
	SignalJSXStructure      = "jsxStructure"
	SignalHookProfile       = "hookProfile"
	SignalImports           = "imports"
	SignalDataAccess        = "dataAccess"
	SignalBehavior          = "behavior"
	SignalCalleeSet         = "calleeSet"
	SignalCallSequence      = "callSequence"
	SignalConsumerSet       = "consumerSet"
	SignalCooccurrence      = "coOccurrence"
	SignalNeighborhood      = "neighborhood"
	SignalStructuralPattern = "structuralPattern"
)

// signalOrder fixes the insertion order of the weight tables below so that
// dominant-signal tie-breaking ("ties broken by insertion order of the
// weight table") is reproducible instead of depending on Go's randomized map
// iteration order. structuralPattern is appended last since it only ever
// joins the table conditionally.
var signalOrder = []string{
	SignalSemantic,
	SignalTypeSignature,
	SignalJSXStructure,
	SignalHookProfile,
	SignalImports,
	SignalDataAccess,
	SignalBehavior,
	SignalCalleeSet,
	SignalCallSequence,
	SignalConsumerSet,
	SignalCooccurrence,
	SignalNeighborhood,
	SignalStructuralPattern,
}

// Weights maps a signal name to its contribution to the final score.
type Weights map[string]float64

// weightsWithEmbeddings is used when a semantic-embeddings artifact was
// supplied for this run.
var weightsWithEmbeddings = Weights{
	SignalSemantic:      0.20,
	SignalTypeSignature: 0.12,
	SignalJSXStructure:  0.13,
	SignalHookProfile:   0.05,
	SignalImports:       0.05,
	SignalDataAccess:    0.03,
	SignalBehavior:      0.02,
	SignalCalleeSet:     0.10,
	SignalCallSequence:  0.10,
	SignalConsumerSet:   0.08,
	SignalCooccurrence:  0.07,
	SignalNeighborhood:  0.05,
}

// weightsWithoutEmbeddings drops the semantic signal; the remaining 11
// signals carry the weights the base table assigns them directly (they
// already sum to 1.0 without semantic in the table).
var weightsWithoutEmbeddings = Weights{
	SignalTypeSignature: 0.16,
	SignalJSXStructure:  0.16,
	SignalHookProfile:   0.06,
	SignalImports:       0.06,
	SignalDataAccess:    0.04,
	SignalBehavior:      0.02,
	SignalCalleeSet:     0.13,
	SignalCallSequence:  0.13,
	SignalConsumerSet:   0.10,
	SignalCooccurrence:  0.08,
	SignalNeighborhood:  0.06,
}

// componentOnlySignals fires only when both units in the pair qualify for
// it; otherwise it is dropped from the weight table and the remainder is
// renormalized to sum to 1.0.
var componentOnlySignals = map[string]func(kindA, kindB string) bool{
	SignalJSXStructure: func(a, b string) bool { return a == "component" && b == "component" },
	SignalHookProfile: func(a, b string) bool {
		isHookish := func(k string) bool { return k == "component" || k == "hook" }
		return isHookish(a) && isHookish(b)
	},
}

// skipKinds are never scored: they carry no behavior to drift.
var skipKinds = map[string]struct{}{
	"type":      {},
	"enum":      {},
	"constant":  {},
	"interface": {},
	"typeAlias": {},
}

// relatedKinds lists the cross-kind pairs that are still comparable (a hook
// extracted from a component, a hook downgraded to a plain function).
var relatedKinds = [][2]string{{"component", "hook"}, {"hook", "function"}}

func isComparable(kindA, kindB string) bool {
	if kindA == kindB {
		return true
	}
	for _, pair := range relatedKinds {
		if (pair[0] == kindA && pair[1] == kindB) || (pair[0] == kindB && pair[1] == kindA) {
			return true
		}
	}
	return false
}

// buildWeights constructs the effective weight table for one kind pair: it
// picks the embeddings-aware base table, folds in the structural pattern
// signal when a patterns artifact was supplied (shaving 0.05 proportionally
// off every other weight), drops any component/hook-only signal that
// doesn't apply to this kind pair, and renormalizes to sum to 1.0.
func buildWeights(hasEmbeddings, hasStructuralPattern bool, kindA, kindB string) Weights {
	base := weightsWithEmbeddings
	if !hasEmbeddings {
		base = weightsWithoutEmbeddings
	}

	weights := make(Weights, len(base)+1)
	for k, v := range base {
		weights[k] = v
	}

	if hasStructuralPattern {
		total := 0.0
		for _, v := range weights {
			total += v
		}
		reduction := 0.05
		for k, v := range weights {
			weights[k] = v * (total - reduction) / total
		}
		weights[SignalStructuralPattern] = reduction
	}

	for signal, applies := range componentOnlySignals {
		if _, ok := weights[signal]; ok && !applies(kindA, kindB) {
			delete(weights, signal)
		}
	}

	total := 0.0
	for _, v := range weights {
		total += v
	}
	if total > 0 {
		for k, v := range weights {
			weights[k] = v / total
		}
	}
	return weights
}

// weightTable memoizes the adapted weight set per kind pair, since the
// embeddings/patterns dimensions are fixed for a whole run and only a
// handful of kind combinations exist across the O(n^2) loop.
type weightTable struct {
	mu                   sync.Mutex
	byKinds              map[[2]string]Weights
	hasEmbeddings        bool
	hasStructuralPattern bool
}

func newWeightTable(hasEmbeddings, hasStructuralPattern bool) *weightTable {
	return &weightTable{
		byKinds:              map[[2]string]Weights{},
		hasEmbeddings:        hasEmbeddings,
		hasStructuralPattern: hasStructuralPattern,
	}
}

func (t *weightTable) forKinds(kindA, kindB string) Weights {
	key := [2]string{kindA, kindB}
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.byKinds[key]; ok {
		return w
	}
	w := buildWeights(t.hasEmbeddings, t.hasStructuralPattern, kindA, kindB)
	t.byKinds[key] = w
	return w
}

// Inputs bundles every upstream artifact a pairwise comparison needs.
type Inputs struct {
	Fingerprints map[string]fingerprint.Fingerprint
	TypeSigs     map[string]typesig.Signature
	CallVectors  map[string]callgraph.CallVector
	DepContexts  map[string]depcontext.DepContext
	Embeddings   map[string][]float64
	PatternTags  map[string][]string
}

func consumerIDs(unit codeunit.CodeUnit) []string {
	ids := make([]string, 0, len(unit.Consumers))
	for _, c := range unit.Consumers {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// sharedConsumerDirectorySpread returns the count of distinct parent
// directories among the consumer file paths shared by both units. Paths
// without a directory separator contribute nothing.
func sharedConsumerDirectorySpread(a, b codeunit.CodeUnit) int {
	dirByID := make(map[string]string, len(a.Consumers))
	for _, c := range a.Consumers {
		if c.ID != "" {
			dirByID[c.ID] = dirOf(c.FilePath)
		}
	}
	bIDs := make(map[string]struct{}, len(b.Consumers))
	for _, c := range b.Consumers {
		if c.ID != "" {
			bIDs[c.ID] = struct{}{}
		}
	}
	dirs := make(map[string]struct{})
	for id, dir := range dirByID {
		if dir == "" {
			continue
		}
		if _, ok := bIDs[id]; ok {
			dirs[dir] = struct{}{}
		}
	}
	return len(dirs)
}

// round4 matches round-to-4-decimals on every recorded score and signal
// value.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}

func sigSemantic(a, b string, embeddings map[string][]float64) float64 {
	ea, okA := embeddings[a]
	eb, okB := embeddings[b]
	if !okA || !okB || len(ea) == 0 || len(eb) == 0 {
		return 0
	}
	dot, ma, mb := 0.0, 0.0, 0.0
	n := len(ea)
	if len(eb) < n {
		n = len(eb)
	}
	for i := 0; i < n; i++ {
		dot += ea[i] * eb[i]
		ma += ea[i] * ea[i]
		mb += eb[i] * eb[i]
	}
	if ma == 0 || mb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(ma) * math.Sqrt(mb))
	return math.Max(0, math.Min(1, sim))
}

func sigTypeSignature(a, b typesig.Signature) float64 {
	if a.StrictHash == "" || b.StrictHash == "" {
		return 0
	}
	if a.StrictHash == b.StrictHash {
		return 1.0
	}
	if a.LooseHash == b.LooseHash {
		return 0.7
	}
	if a.Arity == b.Arity && a.Arity > 0 {
		return 0.4
	}
	return 0.0
}

func sigJSXStructure(unitA, unitB codeunit.CodeUnit, fpA, fpB fingerprint.Fingerprint) float64 {
	if unitA.JSXTree == nil || unitB.JSXTree == nil {
		return 0
	}
	exactA := fpA.JSXHash.ExactHash()
	if exactA != "" && exactA == fpB.JSXHash.ExactHash() {
		return 1.0
	}
	fuzzyA := fpA.JSXHash.FuzzyHash()
	if fuzzyA != "" && fuzzyA == fpB.JSXHash.FuzzyHash() {
		return 0.9
	}
	return fingerprint.TreeEditDistanceNormalized(unitA.JSXTree, unitB.JSXTree)
}

func sigDataAccess(a, b vectorspace.SparseVector) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	keysA := make([]string, 0, len(a))
	for k := range a {
		keysA = append(keysA, k)
	}
	keysB := make([]string, 0, len(b))
	for k := range b {
		keysB = append(keysB, k)
	}
	return vectorspace.JaccardSimilarity(vectorspace.NewStringSet(keysA), vectorspace.NewStringSet(keysB))
}

func sigCallSequence(a, b callgraph.CallVector) float64 {
	if len(a.SequenceHashes) == 0 || len(b.SequenceHashes) == 0 {
		return 0
	}
	shared := 0
	anyMatch := false
	for ctx, hashA := range a.SequenceHashes {
		hashB, ok := b.SequenceHashes[ctx]
		if !ok {
			continue
		}
		shared++
		if hashA == hashB {
			anyMatch = true
		}
	}
	if shared == 0 {
		return 0
	}
	if anyMatch {
		return 1.0
	}
	maxContexts := len(a.SequenceHashes)
	if len(b.SequenceHashes) > maxContexts {
		maxContexts = len(b.SequenceHashes)
	}
	return 0.3 * float64(shared) / float64(maxContexts)
}

func sigConsumerSet(a, b codeunit.CodeUnit) float64 {
	setA := vectorspace.NewStringSet(consumerIDs(a))
	setB := vectorspace.NewStringSet(consumerIDs(b))
	sim := vectorspace.JaccardSimilarity(setA, setB)
	if sim > 0 && sharedConsumerDirectorySpread(a, b) >= 2 {
		sim = math.Min(1.0, sim*1.2)
	}
	return sim
}

func sigNeighborhood(a, b depcontext.DepContext) float64 {
	if a.NeighborhoodHashR1 != "" && a.NeighborhoodHashR1 == b.NeighborhoodHashR1 {
		return 1.0
	}
	if a.NeighborhoodHashR2 != "" && a.NeighborhoodHashR2 == b.NeighborhoodHashR2 {
		return 0.6
	}
	return 0.0
}

func sigStructuralPattern(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	return vectorspace.JaccardSimilarity(vectorspace.NewStringSet(a), vectorspace.NewStringSet(b))
}

// hookProfileVector converts a fixed-length hook call count vector to the
// sparse form cosine similarity expects, dropping the zero entries.
func hookProfileVector(profile []int) vectorspace.SparseVector {
	v := make(vectorspace.SparseVector, len(profile))
	for i, count := range profile {
		if count != 0 {
			v[strconv.Itoa(i)] = float64(count)
		}
	}
	return v
}

func sigHookProfile(a, b []int) float64 {
	return vectorspace.CosineSimilarity(hookProfileVector(a), hookProfileVector(b))
}

// computeSignals evaluates each signal the adapted weight table keeps for
// this pair; signals outside the table are neither computed nor recorded.
func computeSignals(unitA, unitB codeunit.CodeUnit, weights Weights, in Inputs) map[string]float64 {
	signals := make(map[string]float64, len(weights))

	if _, ok := weights[SignalSemantic]; ok {
		signals[SignalSemantic] = sigSemantic(unitA.ID, unitB.ID, in.Embeddings)
	}
	if _, ok := weights[SignalTypeSignature]; ok {
		signals[SignalTypeSignature] = sigTypeSignature(in.TypeSigs[unitA.ID], in.TypeSigs[unitB.ID])
	}
	if _, ok := weights[SignalJSXStructure]; ok {
		signals[SignalJSXStructure] = sigJSXStructure(unitA, unitB, in.Fingerprints[unitA.ID], in.Fingerprints[unitB.ID])
	}
	if _, ok := weights[SignalHookProfile]; ok {
		signals[SignalHookProfile] = sigHookProfile(in.Fingerprints[unitA.ID].HookProfile, in.Fingerprints[unitB.ID].HookProfile)
	}
	if _, ok := weights[SignalImports]; ok {
		signals[SignalImports] = vectorspace.CosineSimilarity(in.Fingerprints[unitA.ID].ImportConstellation, in.Fingerprints[unitB.ID].ImportConstellation)
	}
	if _, ok := weights[SignalDataAccess]; ok {
		signals[SignalDataAccess] = sigDataAccess(in.Fingerprints[unitA.ID].DataAccessPattern, in.Fingerprints[unitB.ID].DataAccessPattern)
	}
	if _, ok := weights[SignalBehavior]; ok {
		signals[SignalBehavior] = vectorspace.NormalizedHamming(in.Fingerprints[unitA.ID].BehaviorFlags, in.Fingerprints[unitB.ID].BehaviorFlags)
	}
	if _, ok := weights[SignalCalleeSet]; ok {
		signals[SignalCalleeSet] = vectorspace.CosineSimilarity(in.CallVectors[unitA.ID].CalleeSetVector, in.CallVectors[unitB.ID].CalleeSetVector)
	}
	if _, ok := weights[SignalCallSequence]; ok {
		signals[SignalCallSequence] = sigCallSequence(in.CallVectors[unitA.ID], in.CallVectors[unitB.ID])
	}
	if _, ok := weights[SignalConsumerSet]; ok {
		signals[SignalConsumerSet] = sigConsumerSet(unitA, unitB)
	}
	if _, ok := weights[SignalCooccurrence]; ok {
		signals[SignalCooccurrence] = vectorspace.CosineSimilarity(in.DepContexts[unitA.ID].CooccurrenceVector, in.DepContexts[unitB.ID].CooccurrenceVector)
	}
	if _, ok := weights[SignalNeighborhood]; ok {
		signals[SignalNeighborhood] = sigNeighborhood(in.DepContexts[unitA.ID], in.DepContexts[unitB.ID])
	}
	if _, ok := weights[SignalStructuralPattern]; ok {
		signals[SignalStructuralPattern] = sigStructuralPattern(in.PatternTags[unitA.ID], in.PatternTags[unitB.ID])
	}

	return signals
}

// PairScore is the Stage S output for a single comparable pair, sorted
// descending by Score across the whole similarity matrix. UnitA always
// sorts lexicographically before UnitB.
type PairScore struct {
	UnitA          string             `json:"unitA"`
	UnitB          string             `json:"unitB"`
	Score          float64            `json:"score"`
	DominantSignal string             `json:"dominantSignal"`
	Signals        map[string]float64 `json:"signals"`
}

// Options bounds the O(n^2) pairwise comparison: MaxUnits rejects oversized
// corpora outright, MaxPairs and MaxRuntime cut a running comparison short
// rather than let it run unbounded. Workers caps scoring parallelism; zero
// means one worker per CPU.
type Options struct {
	Threshold  float64
	MaxUnits   int
	MaxPairs   int
	MaxRuntime time.Duration
	Workers    int
}

// DefaultOptions mirrors the guardrails used elsewhere in the pipeline for
// unbounded pairwise work.
var DefaultOptions = Options{
	Threshold:  0.35,
	MaxUnits:   5000,
	MaxPairs:   5_000_000,
	MaxRuntime: 10 * time.Minute,
}

// scorePair scores one canonical (i, j) pair, returning ok=false when the
// pair is filtered or below threshold.
func scorePair(a, b codeunit.CodeUnit, table *weightTable, in Inputs, threshold float64) (PairScore, bool) {
	weights := table.forKinds(a.Kind, b.Kind)
	signals := computeSignals(a, b, weights, in)

	total := 0.0
	for signal, weight := range weights {
		total += weight * signals[signal]
	}
	if total < threshold {
		return PairScore{}, false
	}

	// dominantSignal is the raw signal with the largest value, ties broken
	// by signalOrder (the weight table's insertion order).
	dominant := ""
	dominantValue := -1.0
	for _, signal := range signalOrder {
		value, ok := signals[signal]
		if !ok {
			continue
		}
		if value > dominantValue {
			dominantValue = value
			dominant = signal
		}
	}

	roundedSignals := make(map[string]float64, len(signals))
	for signal, value := range signals {
		roundedSignals[signal] = round4(value)
	}

	return PairScore{
		UnitA:          a.ID,
		UnitB:          b.ID,
		Score:          round4(total),
		DominantSignal: dominant,
		Signals:        roundedSignals,
	}, true
}

// Compute scores every comparable pair of units at or above opts.Threshold,
// sorted descending by score. Units whose kind is in the skip set, or that
// share the same FilePath, or that aren't kind-comparable, are never paired.
//
// The outer loop index is sharded across workers; each worker scores its
// rows into a private buffer and the buffers are merged in row order before
// the final sort, so the result is identical to a sequential pass. ctx is
// honored at every pair boundary.
func Compute(ctx context.Context, units []codeunit.CodeUnit, in Inputs, opts Options) ([]PairScore, error) {
	candidates := make([]codeunit.CodeUnit, 0, len(units))
	for _, u := range units {
		if _, skip := skipKinds[u.Kind]; skip {
			continue
		}
		if u.ID == "" {
			continue
		}
		candidates = append(candidates, u)
	}
	// Lexicographic candidate order makes every emitted pair canonical
	// (UnitA < UnitB) without a per-pair swap.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	if opts.MaxUnits > 0 && len(candidates) > opts.MaxUnits {
		return nil, core.NewGuardrailError("maxUnits", opts.MaxUnits, len(candidates))
	}

	table := newWeightTable(len(in.Embeddings) > 0, len(in.PatternTags) > 0)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}
	if workers < 1 {
		workers = 1
	}

	start := time.Now()
	var deadline time.Time
	if opts.MaxRuntime > 0 {
		deadline = start.Add(opts.MaxRuntime)
	}

	rowResults := make([][]PairScore, len(candidates))
	var pairCount atomic.Int64
	var nextRow atomic.Int64
	var failed atomic.Bool
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				i := int(nextRow.Add(1)) - 1
				if i >= len(candidates) || failed.Load() {
					return
				}
				a := candidates[i]
				var row []PairScore
				for j := i + 1; j < len(candidates); j++ {
					if err := ctx.Err(); err != nil {
						errs[worker] = err
						failed.Store(true)
						return
					}
					b := candidates[j]
					if a.FilePath != "" && a.FilePath == b.FilePath {
						continue
					}
					if !isComparable(a.Kind, b.Kind) {
						continue
					}

					n := pairCount.Add(1)
					if opts.MaxPairs > 0 && n > int64(opts.MaxPairs) {
						errs[worker] = core.NewGuardrailError("maxPairs", opts.MaxPairs, int(n))
						failed.Store(true)
						return
					}
					if n%100 == 0 && !deadline.IsZero() && time.Now().After(deadline) {
						errs[worker] = core.NewGuardrailError("maxRuntimeMs", int(opts.MaxRuntime.Milliseconds()), int(time.Since(start).Milliseconds()))
						failed.Store(true)
						return
					}

					if pair, ok := scorePair(a, b, table, in, opts.Threshold); ok {
						row = append(row, pair)
					}
				}
				rowResults[i] = row
			}
		}(w)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var results []PairScore
	for _, row := range rowResults {
		results = append(results, row...)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results, nil
}
