package codeunit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsemantic/domain/core"
)

func TestHookCallUnmarshalAcceptsBareStrings(t *testing.T) {
	var unit CodeUnit
	raw := `{"id":"a","hookCalls":["useState","useState",{"name":"useEffect","count":3}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &unit))
	require.Len(t, unit.HookCalls, 3)
	assert.Equal(t, HookCall{Name: "useState", Count: 1}, unit.HookCalls[0])
	assert.Equal(t, HookCall{Name: "useEffect", Count: 3}, unit.HookCalls[2])
}

func TestConsumerUnmarshalAcceptsStringsAndUnitIDKey(t *testing.T) {
	var unit CodeUnit
	raw := `{"id":"a","consumers":["bare-id",{"unitId":"via-unit-id","filePath":"apps/web/x.tsx","kind":"component"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &unit))
	require.Len(t, unit.Consumers, 2)
	assert.Equal(t, "bare-id", unit.Consumers[0].ID)
	assert.Equal(t, "via-unit-id", unit.Consumers[1].ID)
	assert.Equal(t, "apps/web/x.tsx", unit.Consumers[1].FilePath)
	assert.Equal(t, "component", unit.Consumers[1].Kind)
}

func TestCalleeUnmarshalAcceptsBareStrings(t *testing.T) {
	var unit CodeUnit
	raw := `{"id":"a","callees":["fetchUser",{"target":"formatDate","context":"render"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &unit))
	require.Len(t, unit.Callees, 2)
	assert.Equal(t, "fetchUser", unit.Callees[0].Target)
	assert.Equal(t, "render", unit.Callees[1].Context)
}

func TestCoOccurrenceListUnmarshalAcceptsMapping(t *testing.T) {
	var unit CodeUnit
	raw := `{"id":"a","coOccurrences":{"other-unit":0.75,"nested":{"count":3,"ratio":0.5}}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &unit))
	require.Len(t, unit.CoOccurrences, 2)
	byID := map[string]CoOccurrence{}
	for _, co := range unit.CoOccurrences {
		byID[co.UnitID] = co
	}
	assert.Equal(t, 0.75, byID["other-unit"].Ratio)
	assert.Equal(t, 0.5, byID["nested"].Ratio)
}

func TestKindCountsUnmarshalAcceptsList(t *testing.T) {
	var unit CodeUnit
	raw := `{"id":"a","consumerKinds":["component","component","hook"]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &unit))
	assert.Equal(t, KindCounts{"component": 2, "hook": 1}, unit.ConsumerKinds)
}

func TestReadCodeUnitsAcceptsBareArrayAndWrappedObject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "code-units.json")

	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a","kind":"function"}]`), 0o644))
	units, err := ReadCodeUnits(dir)
	require.NoError(t, err)
	require.Len(t, units, 1)

	require.NoError(t, os.WriteFile(path, []byte(`{"units":[{"id":"a"},{"id":"b"}]}`), 0o644))
	units, err = ReadCodeUnits(dir)
	require.NoError(t, err)
	require.Len(t, units, 2)
}

func TestReadCodeUnitsNamesTheMissingArtifact(t *testing.T) {
	_, err := ReadCodeUnits(t.TempDir())
	require.Error(t, err)
	assert.True(t, core.IsArtifactMissing(err))
	assert.Contains(t, err.Error(), "code-units")
}

func TestWriteArtifactIsByteStableAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	value := map[string]interface{}{
		"zeta": []int{3, 2, 1},
		"alpha": map[string]float64{
			"b": 2.0, "a": 1.0, "c": 3.0,
		},
	}
	path, err := WriteArtifact(dir, core.ArtifactClusters, value)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = WriteArtifact(dir, core.ArtifactClusters, value)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second, "expected rewriting the same value to reproduce identical bytes")
}
