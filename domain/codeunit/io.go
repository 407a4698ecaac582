package codeunit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"driftsemantic/domain/core"
)

// stageHints names the stage that produces each artifact, surfaced in the
// "run an earlier stage first" error so a CLI user knows what to run next.
var stageHints = map[core.ArtifactKind]string{
	core.ArtifactCodeUnits:              "extract (external TypeScript extractor)",
	core.ArtifactStructuralFingerprints: "fingerprint",
	core.ArtifactTypeSignatures:         "typesig",
	core.ArtifactCallGraph:              "callgraph",
	core.ArtifactDependencyContext:      "depcontext",
	core.ArtifactSemanticEmbeddings:     "embed",
	core.ArtifactSimilarityMatrix:       "score",
	core.ArtifactClusters:               "cluster",
	core.ArtifactPurposeStatements:      "ingest-purposes",
	core.ArtifactFindings:               "ingest-findings",
}

func artifactPath(outputDir string, kind core.ArtifactKind) string {
	return filepath.Join(outputDir, string(kind)+".json")
}

// EnsureOutputDir creates the output directory if it does not exist.
func EnsureOutputDir(outputDir string) error {
	return os.MkdirAll(outputDir, 0o755)
}

// ReadArtifact decodes a JSON artifact file into v. The error wraps
// core.ErrArtifactMissing if the file is absent and names the stage that
// produces it, or core.ErrArtifactMalformed if it can't be decoded.
func ReadArtifact(outputDir string, kind core.ArtifactKind, v interface{}) error {
	path := artifactPath(outputDir, kind)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			hint := stageHints[kind]
			if hint == "" {
				hint = "an earlier stage"
			}
			return fmt.Errorf("%w: %s (expected at %s) — run '%s' first", core.ErrArtifactMissing, kind, path, hint)
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return core.NewArtifactMalformedError(kind, path, err)
	}
	return nil
}

// HasArtifact reports whether an artifact file exists, without reading it.
// Used for the optional artifacts (embeddings, structural patterns, findings).
func HasArtifact(outputDir string, kind core.ArtifactKind) bool {
	_, err := os.Stat(artifactPath(outputDir, kind))
	return err == nil
}

// WriteArtifact serializes v as indented, key-sorted JSON and writes it
// atomically: the data lands in a temp file in the same directory first,
// then is renamed over the final path, so a reader never observes a
// partially written artifact.
func WriteArtifact(outputDir string, kind core.ArtifactKind, v interface{}) (string, error) {
	if err := EnsureOutputDir(outputDir); err != nil {
		return "", err
	}
	canonical, err := core.CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	var pretty []byte
	var generic interface{}
	if err := json.Unmarshal(canonical, &generic); err != nil {
		return "", err
	}
	pretty, err = json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return "", err
	}

	path := artifactPath(outputDir, kind)
	tmp, err := os.CreateTemp(outputDir, "."+string(kind)+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(pretty); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return path, nil
}

// WriteRawFile atomically writes non-JSON output (the markdown report) into
// outputDir under the given filename, with the same temp-then-rename
// discipline as WriteArtifact.
func WriteRawFile(outputDir, filename string, data []byte) (string, error) {
	if err := EnsureOutputDir(outputDir); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, filename)
	tmp, err := os.CreateTemp(outputDir, "."+filename+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return path, nil
}

// ReadCodeUnits reads code-units.json, accepting either a bare JSON array or
// an object with a "units" key.
func ReadCodeUnits(outputDir string) ([]CodeUnit, error) {
	path := artifactPath(outputDir, core.ArtifactCodeUnits)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (expected at %s) — run 'extract (external TypeScript extractor)' first", core.ErrArtifactMissing, core.ArtifactCodeUnits, path)
		}
		return nil, err
	}

	var units []CodeUnit
	if err := json.Unmarshal(data, &units); err == nil {
		return units, nil
	}

	var wrapped struct {
		Units []CodeUnit `json:"units"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, core.NewArtifactMalformedError(core.ArtifactCodeUnits, path, fmt.Errorf("must be a JSON array or an object with a 'units' key"))
	}
	return wrapped.Units, nil
}

// IndexByID builds a lookup from unit ID to unit, skipping units with an
// empty ID.
func IndexByID(units []CodeUnit) map[string]CodeUnit {
	byID := make(map[string]CodeUnit, len(units))
	for _, u := range units {
		if u.ID == "" {
			continue
		}
		byID[u.ID] = u
	}
	return byID
}
