package inspect

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/score"
)

func TestUnitReturnsErrorForUnknownID(t *testing.T) {
	var buf bytes.Buffer
	err := Unit(&buf, Artifacts{Units: map[string]codeunit.CodeUnit{}}, "missing")
	assert.Error(t, err, "expected error for unknown unit")
}

func TestUnitPrintsNameAndKind(t *testing.T) {
	var buf bytes.Buffer
	units := map[string]codeunit.CodeUnit{
		"a": {ID: "a", Name: "UserCard", Kind: "component", FilePath: "apps/web/UserCard.tsx"},
	}
	require.NoError(t, Unit(&buf, Artifacts{Units: units}, "a"))
	assert.Contains(t, buf.String(), "UserCard")
}

func TestSimilarOrdersByDescendingScore(t *testing.T) {
	var buf bytes.Buffer
	pairs := []score.PairScore{
		{UnitA: "a", UnitB: "b", Score: 0.4, DominantSignal: "imports"},
		{UnitA: "a", UnitB: "c", Score: 0.9, DominantSignal: "typeSignature"},
	}
	require.NoError(t, Similar(&buf, Artifacts{Pairs: pairs}, "a", 10))
	out := buf.String()
	assert.Less(t, strings.Index(out, "c"), strings.Index(out, "b"), "expected higher-scored pair (c) to render before b")
}
