// Package ingest validates and atomically copies in externally authored
// purpose statements and reviewer findings, the two artifacts this pipeline
// consumes but never produces itself.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"driftsemantic/domain/verdict"
)

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// copyFile mirrors shutil.copy2: copy contents and permissions, nothing
// partial left behind on failure.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create output dir for %s: %w", dst, err)
	}
	tmpPath := dst + ".tmp"
	os.Remove(tmpPath)
	if err := os.WriteFile(tmpPath, data, info.Mode().Perm()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s to %s: %w", tmpPath, dst, err)
	}
	return nil
}

// PurposeStatements validates sourcePath decodes into a list of entries each
// carrying non-empty string unitId and purpose fields, then atomically
// copies it to purpose-statements.json under outputDir. All validation
// errors are collected and returned together rather than failing fast on
// the first bad entry.
func PurposeStatements(sourcePath, outputDir string) error {
	var raw []map[string]interface{}
	if err := readJSON(sourcePath, &raw); err != nil {
		return err
	}

	var problems []string
	for i, entry := range raw {
		unitID, ok := entry["unitId"].(string)
		if !ok || strings.TrimSpace(unitID) == "" {
			problems = append(problems, fmt.Sprintf("entry %d: unitId must be a non-empty string", i))
		}
		purpose, ok := entry["purpose"].(string)
		if !ok || strings.TrimSpace(purpose) == "" {
			problems = append(problems, fmt.Sprintf("entry %d: purpose must be a non-empty string", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid purpose statements:\n%s", strings.Join(problems, "\n"))
	}

	return copyFile(sourcePath, filepath.Join(outputDir, "purpose-statements.json"))
}

// Findings validates sourcePath decodes into a list of entries each
// carrying a non-empty string clusterId, a verdict in the recognized set,
// and a present confidence field, then atomically copies it to
// findings.json under outputDir.
func Findings(sourcePath, outputDir string) error {
	var raw []map[string]interface{}
	if err := readJSON(sourcePath, &raw); err != nil {
		return err
	}

	var problems []string
	for i, entry := range raw {
		clusterID, ok := entry["clusterId"].(string)
		if !ok || strings.TrimSpace(clusterID) == "" {
			problems = append(problems, fmt.Sprintf("entry %d: clusterId must be a non-empty string", i))
		}

		verdictValue, ok := entry["verdict"].(string)
		if !ok || !verdict.Status(verdictValue).Valid() {
			problems = append(problems, fmt.Sprintf("entry %d: verdict %q is not one of DUPLICATE, OVERLAPPING, RELATED, FALSE_POSITIVE", i, verdictValue))
		}

		if _, present := entry["confidence"]; !present {
			problems = append(problems, fmt.Sprintf("entry %d: confidence is required", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid findings:\n%s", strings.Join(problems, "\n"))
	}

	return copyFile(sourcePath, filepath.Join(outputDir, "findings.json"))
}
