package typesig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsemantic/domain/codeunit"
)

func TestNormalizeIdenticalUnaryFunctionsMatchOnStrictHash(t *testing.T) {
	a := Normalize([]codeunit.Parameter{{Name: "x", Type: "number"}}, "number")
	b := Normalize([]codeunit.Parameter{{Name: "y", Type: "number"}}, "number")

	assert.Equal(t, a.StrictHash, b.StrictHash, "expected identical-shape unary functions to share a strict hash")
	assert.Equal(t, 1, a.Arity)
	assert.Equal(t, 1, b.Arity)
}

func TestNormalizeLooseHashIgnoresConcreteTypeButNotShape(t *testing.T) {
	a := Normalize([]codeunit.Parameter{{Type: "string"}}, "void")
	b := Normalize([]codeunit.Parameter{{Type: "number"}}, "void")
	c := Normalize([]codeunit.Parameter{{Type: "string"}, {Type: "number"}}, "void")

	assert.Equal(t, a.LooseHash, b.LooseHash, "expected loose hash to ignore concrete scalar type differences")
	assert.NotEqual(t, a.LooseHash, c.LooseHash, "expected loose hash to differ when arity differs")
}

func TestNormalizeDefaultsMissingReturnTypeToAny(t *testing.T) {
	sig := Normalize(nil, "")
	assert.Equal(t, "() => any", sig.Canonical)
}

func TestComputeSkipsUnitsWithoutID(t *testing.T) {
	units := []codeunit.CodeUnit{
		{ID: "", Parameters: []codeunit.Parameter{{Type: "string"}}},
		{ID: "u1", Parameters: []codeunit.Parameter{{Type: "string"}}},
	}
	sigs := Compute(units)
	require.Len(t, sigs, 1)
	_, ok := sigs["u1"]
	assert.True(t, ok, "expected signature for u1")
}
