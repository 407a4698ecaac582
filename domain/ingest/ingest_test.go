package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurposeStatementsRejectsMissingFields(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.json")
	os.WriteFile(src, []byte(`[{"unitId": "a"}]`), 0o644)

	err := PurposeStatements(src, dir)
	assert.Error(t, err, "expected validation error for a missing purpose field")
}

func TestPurposeStatementsCopiesValidFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.json")
	out := filepath.Join(dir, "out")
	os.WriteFile(src, []byte(`[{"unitId": "a", "purpose": "fetches the user profile"}]`), 0o644)

	require.NoError(t, PurposeStatements(src, out))
	_, err := os.Stat(filepath.Join(out, "purpose-statements.json"))
	assert.NoError(t, err, "expected purpose-statements.json to exist")
}

func TestFindingsRejectsUnknownVerdict(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.json")
	os.WriteFile(src, []byte(`[{"clusterId": "cluster-001", "verdict": "MAYBE", "confidence": 0.8}]`), 0o644)

	err := Findings(src, dir)
	assert.Error(t, err, "expected validation error for an unrecognized verdict")
}

func TestFindingsAcceptsValidEntries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.json")
	out := filepath.Join(dir, "out")
	os.WriteFile(src, []byte(`[{"clusterId": "cluster-001", "verdict": "DUPLICATE", "confidence": 0.9}]`), 0o644)

	assert.NoError(t, Findings(src, out))
}
