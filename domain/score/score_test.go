package score

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsemantic/domain/callgraph"
	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/depcontext"
	"driftsemantic/domain/fingerprint"
	"driftsemantic/domain/typesig"
	"driftsemantic/domain/vectorspace"
)

func TestIsComparableAllowsSameKindAndRelatedKinds(t *testing.T) {
	assert.True(t, isComparable("component", "component"), "expected same-kind pair to be comparable")
	assert.True(t, isComparable("component", "hook"), "expected component/hook to be comparable")
	assert.True(t, isComparable("hook", "function"), "expected hook/function to be comparable")
	assert.False(t, isComparable("component", "function"), "expected component/function to be unrelated")
}

func TestBuildWeightsDropsComponentOnlySignalsForNonComponentPair(t *testing.T) {
	weights := buildWeights(true, false, "hook", "function")
	_, ok := weights[SignalJSXStructure]
	assert.False(t, ok, "expected jsxStructure dropped for a hook/function pair")

	total := 0.0
	for _, v := range weights {
		total += v
	}
	assert.InDelta(t, 1.0, total, 0.001, "expected renormalized weights to sum to 1.0")
}

func TestBuildWeightsAddsStructuralPatternWhenAvailable(t *testing.T) {
	weights := buildWeights(true, true, "component", "component")
	assert.InDelta(t, 0.05, weights[SignalStructuralPattern], 1e-9)
}

func TestComputeSkipsSameFilePairs(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "a", Kind: "component", FilePath: "same.tsx"},
		{ID: "b", Kind: "component", FilePath: "same.tsx"},
	}
	results, err := Compute(context.Background(), units, Inputs{}, Options{Threshold: 0.0})
	require.NoError(t, err)
	assert.Empty(t, results, "expected same-file units never to pair")
}

func TestComputeSkipsIncomparableKinds(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "a", Kind: "component", FilePath: "a.tsx"},
		{ID: "b", Kind: "constant", FilePath: "b.tsx"},
	}
	results, err := Compute(context.Background(), units, Inputs{}, Options{Threshold: 0.0})
	require.NoError(t, err)
	assert.Empty(t, results, "expected constant kind to be filtered out entirely")
}

func TestComputeFindsIdenticalTypeSignatureAboveThreshold(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "a", Kind: "function", FilePath: "a.ts"},
		{ID: "b", Kind: "function", FilePath: "b.ts"},
	}
	sig := typesig.Normalize([]codeunit.Parameter{{Type: "number"}}, "number")
	in := Inputs{
		TypeSigs: map[string]typesig.Signature{"a": sig, "b": sig},
		Fingerprints: map[string]fingerprint.Fingerprint{
			"a": {}, "b": {},
		},
		CallVectors: map[string]callgraph.CallVector{"a": {}, "b": {}},
		DepContexts: map[string]depcontext.DepContext{"a": {}, "b": {}},
	}
	results, err := Compute(context.Background(), units, in, Options{Threshold: 0.05})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Signals[SignalTypeSignature], "expected identical type signature signal of 1.0")
}

func TestComputeRejectsOversizedCorpus(t *testing.T) {
	units := make([]codeunit.CodeUnit, 3)
	for i := range units {
		units[i] = codeunit.CodeUnit{ID: string(rune('a' + i)), Kind: "function", FilePath: string(rune('a' + i))}
	}
	_, err := Compute(context.Background(), units, Inputs{}, Options{Threshold: 0, MaxUnits: 2})
	assert.Error(t, err, "expected a guardrail error for an oversized corpus")
}

func TestSigTypeSignatureTiers(t *testing.T) {
	strict := typesig.Normalize([]codeunit.Parameter{{Type: "string"}}, "number")
	looseOnly := typesig.Normalize([]codeunit.Parameter{{Type: "string"}}, "number")
	looseOnly.StrictHash = "different"
	arityOnly := typesig.Normalize([]codeunit.Parameter{{Type: "string"}}, "number")
	arityOnly.StrictHash = "different"
	arityOnly.LooseHash = "also-different"
	none := typesig.Signature{StrictHash: "x", LooseHash: "y", Arity: 0}

	assert.Equal(t, 1.0, sigTypeSignature(strict, strict), "expected matching strict hashes to score 1.0")
	assert.Equal(t, 0.7, sigTypeSignature(strict, looseOnly), "expected matching loose hashes only to score 0.7")
	assert.Equal(t, 0.4, sigTypeSignature(strict, arityOnly), "expected matching non-zero arity only to score 0.4")
	assert.Equal(t, 0.0, sigTypeSignature(none, arityOnly), "expected zero arity to never earn the arity-match tier")
}

func TestSigJSXStructureFuzzyMatchScoresPointNine(t *testing.T) {
	unitA := codeunit.CodeUnit{JSXTree: &codeunit.JSXNode{Tag: "Foo", Children: []*codeunit.JSXNode{{Tag: "div"}}}}
	unitB := codeunit.CodeUnit{JSXTree: &codeunit.JSXNode{Tag: "Bar", Children: []*codeunit.JSXNode{{Tag: "div"}}}}
	fpA := fingerprint.Fingerprint{JSXHash: fingerprint.JSXHashOf(unitA)}
	fpB := fingerprint.Fingerprint{JSXHash: fingerprint.JSXHashOf(unitB)}
	assert.Equal(t, 0.9, sigJSXStructure(unitA, unitB, fpA, fpB), "expected a fuzzy-hash-only match to score 0.9")
}

func TestSigCallSequencePiecewiseRule(t *testing.T) {
	a := callgraph.CallVector{SequenceHashes: map[string]string{"render": "h1", "effect": "h2"}}
	sameHash := callgraph.CallVector{SequenceHashes: map[string]string{"render": "h1", "handler": "h3"}}
	diffHash := callgraph.CallVector{SequenceHashes: map[string]string{"render": "hX", "effect": "hY"}}
	noShared := callgraph.CallVector{SequenceHashes: map[string]string{"handler": "h3"}}

	assert.Equal(t, 1.0, sigCallSequence(a, sameHash), "expected any shared-context hash match to score 1.0")
	assert.InDelta(t, 0.3, sigCallSequence(a, diffHash), 1e-9, "expected no-match-but-shared-contexts to score 0.3*shared/max")
	assert.Equal(t, 0.0, sigCallSequence(a, noShared), "expected no shared context to score 0")
}

func TestSigNeighborhoodPiecewiseScores(t *testing.T) {
	both := depcontext.DepContext{NeighborhoodHashR1: "r1", NeighborhoodHashR2: "r2"}
	r2Only := depcontext.DepContext{NeighborhoodHashR1: "r1-different", NeighborhoodHashR2: "r2"}
	neither := depcontext.DepContext{NeighborhoodHashR1: "x", NeighborhoodHashR2: "y"}

	assert.Equal(t, 1.0, sigNeighborhood(both, both), "expected matching radius-1 hash to score 1.0")
	assert.Equal(t, 0.6, sigNeighborhood(both, r2Only), "expected radius-2-only match to score 0.6")
	assert.Equal(t, 0.0, sigNeighborhood(both, neither), "expected no hash match to score 0")
}

func TestSigConsumerSetAppliesDirectorySpreadBonus(t *testing.T) {
	reference := codeunit.CodeUnit{
		Consumers: []codeunit.Consumer{
			{ID: "c1", FilePath: "apps/web/a.tsx"},
			{ID: "c2", FilePath: "apps/admin/b.tsx"},
			{ID: "c3", FilePath: "apps/web/c.tsx"},
		},
	}
	sameDir := codeunit.CodeUnit{
		Consumers: []codeunit.Consumer{{ID: "c1"}, {ID: "c3"}},
	}
	spreadDir := codeunit.CodeUnit{
		Consumers: []codeunit.Consumer{{ID: "c1"}, {ID: "c2"}},
	}

	// Both partners share 2 of 3 consumers with the reference, but only the
	// second's shared set spans two directories.
	base := sigConsumerSet(reference, sameDir)
	boosted := sigConsumerSet(reference, spreadDir)
	assert.InDelta(t, 2.0/3.0, base, 1e-9)
	assert.InDelta(t, math.Min(1.0, 2.0/3.0*1.2), boosted, 1e-9, "expected shared consumers spanning 2+ directories to earn the 1.2x bonus")
}

func TestSigHookProfileUsesCosineNotHamming(t *testing.T) {
	a := []int{2, 0, 4}
	b := []int{1, 0, 2}
	assert.InDelta(t, 1.0, sigHookProfile(a, b), 1e-9, "expected proportional hook counts to be cosine-identical")
}

func TestComputeRoundsScoreAndSignalsToFourDecimals(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "a", Kind: "function", FilePath: "a.ts"},
		{ID: "b", Kind: "function", FilePath: "b.ts"},
	}
	sig := typesig.Normalize([]codeunit.Parameter{{Type: "number"}}, "number")
	in := Inputs{
		TypeSigs:     map[string]typesig.Signature{"a": sig, "b": sig},
		Fingerprints: map[string]fingerprint.Fingerprint{"a": {}, "b": {}},
		CallVectors:  map[string]callgraph.CallVector{"a": {}, "b": {}},
		DepContexts:  map[string]depcontext.DepContext{"a": {}, "b": {}},
	}
	results, err := Compute(context.Background(), units, in, Options{Threshold: 0.05})
	require.NoError(t, err)
	require.Len(t, results, 1)
	rounded := math.Round(results[0].Score*10000) / 10000
	assert.Equal(t, rounded, results[0].Score, "expected Score rounded to 4 decimals")
	for signal, v := range results[0].Signals {
		roundedV := math.Round(v*10000) / 10000
		assert.Equal(t, roundedV, v, "expected signal %s rounded to 4 decimals", signal)
	}
}

func TestComputeDominantSignalUsesRawValueNotWeightedContribution(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "a", Kind: "function", FilePath: "a.ts"},
		{ID: "b", Kind: "function", FilePath: "b.ts"},
	}
	// Same arity and shape, different concrete types: typeSignature is a
	// loose-only match (raw 0.7, weight 0.16) while the all-zero behavior
	// flags match exactly (raw 1.0, weight 0.02).
	sigA := typesig.Normalize([]codeunit.Parameter{{Type: "number"}}, "number")
	sigB := typesig.Normalize([]codeunit.Parameter{{Type: "boolean"}}, "number")
	in := Inputs{
		TypeSigs:     map[string]typesig.Signature{"a": sigA, "b": sigB},
		Fingerprints: map[string]fingerprint.Fingerprint{"a": {}, "b": {}},
		CallVectors:  map[string]callgraph.CallVector{"a": {}, "b": {}},
		DepContexts:  map[string]depcontext.DepContext{"a": {}, "b": {}},
	}
	results, err := Compute(context.Background(), units, in, Options{Threshold: 0.05})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, SignalBehavior, results[0].DominantSignal, "expected the largest raw signal (behavior) to dominate, not the largest weighted contribution (typeSignature)")
}

func TestSigDataAccessUsesKeySetJaccard(t *testing.T) {
	a := vectorspace.SparseVector{"store:cart": 3, "ds:orders": 1}
	b := vectorspace.SparseVector{"store:cart": 1}
	assert.InDelta(t, 0.5, sigDataAccess(a, b), 1e-9, "expected Jaccard over key sets, ignoring occurrence counts")
	assert.Equal(t, 0.0, sigDataAccess(nil, nil), "expected two empty access patterns to score 0")
}

func TestComputeEmitsCanonicallyOrderedPairs(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "zebra", Kind: "function", FilePath: "z.ts"},
		{ID: "alpha", Kind: "function", FilePath: "a.ts"},
	}
	sig := typesig.Normalize([]codeunit.Parameter{{Type: "number"}}, "number")
	in := Inputs{TypeSigs: map[string]typesig.Signature{"zebra": sig, "alpha": sig}}
	results, err := Compute(context.Background(), units, in, Options{Threshold: 0.05})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].UnitA)
	assert.Equal(t, "zebra", results[0].UnitB)
}

func TestComputeOnlyRecordsSignalsInTheWeightTable(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "a", Kind: "function", FilePath: "a.ts"},
		{ID: "b", Kind: "function", FilePath: "b.ts"},
	}
	sig := typesig.Normalize([]codeunit.Parameter{{Type: "number"}}, "number")
	in := Inputs{TypeSigs: map[string]typesig.Signature{"a": sig, "b": sig}}
	results, err := Compute(context.Background(), units, in, Options{Threshold: 0.05})
	require.NoError(t, err)
	require.Len(t, results, 1)
	_, hasJSX := results[0].Signals[SignalJSXStructure]
	assert.False(t, hasJSX, "expected jsxStructure absent from a function/function pair's recorded signals")
	_, hasHooks := results[0].Signals[SignalHookProfile]
	assert.False(t, hasHooks, "expected hookProfile absent from a function/function pair's recorded signals")
}

func TestComputeRecordsZeroSemanticWhenEmbeddingsExistButPairLacksThem(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "a", Kind: "function", FilePath: "a.ts"},
		{ID: "b", Kind: "function", FilePath: "b.ts"},
	}
	sig := typesig.Normalize([]codeunit.Parameter{{Type: "number"}}, "number")
	in := Inputs{
		TypeSigs:   map[string]typesig.Signature{"a": sig, "b": sig},
		Embeddings: map[string][]float64{"unrelated": {0.5, 0.5}},
	}
	results, err := Compute(context.Background(), units, in, Options{Threshold: 0.05})
	require.NoError(t, err)
	require.Len(t, results, 1)
	v, ok := results[0].Signals[SignalSemantic]
	require.True(t, ok, "expected semantic recorded whenever the embeddings artifact was supplied")
	assert.Equal(t, 0.0, v)
}

func TestComputeIsSymmetricUnderInputOrder(t *testing.T) {
	unitA := codeunit.CodeUnit{ID: "a", Kind: "function", FilePath: "a.ts"}
	unitB := codeunit.CodeUnit{ID: "b", Kind: "function", FilePath: "b.ts"}
	sig := typesig.Normalize([]codeunit.Parameter{{Type: "number"}}, "number")
	in := Inputs{TypeSigs: map[string]typesig.Signature{"a": sig, "b": sig}}

	forward, err := Compute(context.Background(), []codeunit.CodeUnit{unitA, unitB}, in, Options{Threshold: 0.05})
	require.NoError(t, err)
	reversed, err := Compute(context.Background(), []codeunit.CodeUnit{unitB, unitA}, in, Options{Threshold: 0.05})
	require.NoError(t, err)
	assert.Equal(t, forward, reversed, "expected unit order not to affect scores or dominant signals")
}

func TestComputeImpossibleThresholdYieldsNoPairs(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "a", Kind: "function", FilePath: "a.ts"},
		{ID: "b", Kind: "function", FilePath: "b.ts"},
	}
	sig := typesig.Normalize([]codeunit.Parameter{{Type: "number"}}, "number")
	in := Inputs{TypeSigs: map[string]typesig.Signature{"a": sig, "b": sig}}
	results, err := Compute(context.Background(), units, in, Options{Threshold: 1.01})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestComputeParallelMatchesSequential(t *testing.T) {
	var units []codeunit.CodeUnit
	for i := 0; i < 20; i++ {
		units = append(units, codeunit.CodeUnit{
			ID:       fmt.Sprintf("unit-%02d", i),
			Kind:     "function",
			FilePath: fmt.Sprintf("file-%02d.ts", i),
		})
	}
	sig := typesig.Normalize([]codeunit.Parameter{{Type: "string"}}, "void")
	sigs := make(map[string]typesig.Signature, len(units))
	for _, u := range units {
		sigs[u.ID] = sig
	}
	in := Inputs{TypeSigs: sigs}

	sequential, err := Compute(context.Background(), units, in, Options{Threshold: 0.05, Workers: 1})
	require.NoError(t, err)
	parallel, err := Compute(context.Background(), units, in, Options{Threshold: 0.05, Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, sequential, parallel, "expected worker sharding not to change the merged, sorted result")
}

func TestComputeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	units := []codeunit.CodeUnit{
		{ID: "a", Kind: "function", FilePath: "a.ts"},
		{ID: "b", Kind: "function", FilePath: "b.ts"},
	}
	_, err := Compute(ctx, units, Inputs{}, Options{Threshold: 0})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWeightsSumToOneForEveryKindCombination(t *testing.T) {
	kinds := []string{"component", "hook", "function", "method"}
	for _, hasEmb := range []bool{true, false} {
		for _, hasPat := range []bool{true, false} {
			for _, ka := range kinds {
				for _, kb := range kinds {
					if !isComparable(ka, kb) {
						continue
					}
					weights := buildWeights(hasEmb, hasPat, ka, kb)
					total := 0.0
					for _, v := range weights {
						total += v
					}
					assert.InDelta(t, 1.0, total, 1e-9, "weights for (%v,%v,%s,%s) must renormalize to 1", hasEmb, hasPat, ka, kb)
				}
			}
		}
	}
}

func TestIdenticalUnaryFunctionsScoreTheirTypeSignatureWeight(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "pkg/a.ts::parse", Kind: "function", FilePath: "pkg/a.ts", Parameters: []codeunit.Parameter{{Name: "s", Type: "string"}}, ReturnType: "number"},
		{ID: "pkg/b.ts::parse", Kind: "function", FilePath: "pkg/b.ts", Parameters: []codeunit.Parameter{{Name: "raw", Type: "string"}}, ReturnType: "number"},
	}
	in := Inputs{
		Fingerprints: fingerprint.Compute(units),
		TypeSigs:     typesig.Compute(units),
		CallVectors:  callgraph.Compute(units),
		DepContexts:  depcontext.Compute(units),
	}
	results, err := Compute(context.Background(), units, in, Options{Threshold: 0.1})
	require.NoError(t, err)
	require.Len(t, results, 1)

	pair := results[0]
	assert.Equal(t, 1.0, pair.Signals[SignalTypeSignature], "expected parameter-name changes not to break the strict hash")
	assert.Equal(t, 1.0, pair.Signals[SignalBehavior], "expected identical all-zero behavior flags to match")
	assert.Equal(t, 0.0, pair.Signals[SignalNeighborhood], "expected two consumer-less units not to read as neighbors")
	assert.Equal(t, SignalTypeSignature, pair.DominantSignal, "expected the typeSignature/behavior tie to break by table order")

	// function/function without embeddings: jsxStructure and hookProfile
	// drop, the rest renormalize over 0.78. Only typeSignature (0.16) and
	// behavior (0.02) fire.
	assert.InDelta(t, (0.16+0.02)/0.78, pair.Score, 1e-4)
}
