package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsemantic/domain/codeunit"
)

func TestCalleeSetVectorWeightsRareCalleesHigher(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "a", Callees: []codeunit.Callee{{Target: "fetchUser"}, {Target: "formatDate"}}},
		{ID: "b", Callees: []codeunit.Callee{{Target: "fetchUser"}}},
	}
	idf := computeCalleeIDF(units)
	assert.Greater(t, idf["formatDate"], idf["fetchUser"], "expected rarer callee to carry higher IDF weight")

	vec := CalleeSetVectorOf(units[0], idf)
	assert.Equal(t, idf["fetchUser"], vec["fetchUser"])
	assert.Equal(t, idf["formatDate"], vec["formatDate"])
}

func TestSequenceHashesOfMatchForIdenticalSequences(t *testing.T) {
	a := codeunit.CodeUnit{CalleeSequence: map[string][]string{"render": {"fetchUser", "formatDate"}}}
	b := codeunit.CodeUnit{CalleeSequence: map[string][]string{"render": {"fetchUser", "formatDate"}}}
	c := codeunit.CodeUnit{CalleeSequence: map[string][]string{"render": {"formatDate", "fetchUser"}}}

	hashA := SequenceHashesOf(a)
	hashB := SequenceHashesOf(b)
	hashC := SequenceHashesOf(c)

	assert.Equal(t, hashA["render"], hashB["render"], "expected identical sequences to hash identically")
	assert.NotEqual(t, hashA["render"], hashC["render"], "expected order to matter for sequence hashing")
}

func TestDepthProfileOfNormalizesStringKeys(t *testing.T) {
	unit := codeunit.CodeUnit{
		CallDepth: map[string]int{"1": 3, "2": 1, "3": 2, "4": 1},
	}
	profile := DepthProfileOf(unit)
	require.Len(t, profile, 3)
	assert.Equal(t, []int{3, 1, 3}, profile)
}

func TestDepthProfileOfFallsBackToUniqueCalleeCount(t *testing.T) {
	unit := codeunit.CodeUnit{
		Callees: []codeunit.Callee{{Target: "a"}, {Target: "b"}, {Target: "a"}},
	}
	profile := DepthProfileOf(unit)
	assert.Equal(t, []int{2, 0, 0}, profile)
}

func TestComputeSkipsUnitsWithoutID(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "", Callees: []codeunit.Callee{{Target: "x"}}},
		{ID: "u1", Callees: []codeunit.Callee{{Target: "x"}}},
	}
	vectors := Compute(units)
	require.Len(t, vectors, 1)
	_, ok := vectors["u1"]
	assert.True(t, ok, "expected call vector for u1")
}
