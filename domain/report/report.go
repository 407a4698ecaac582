// Package report renders Stage R: a markdown drift report, a dependency
// atlas for downstream visualization, and incremental updates to the
// project's drift manifest.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"driftsemantic/domain/cluster"
	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/score"
	"driftsemantic/domain/verdict"
)

// verdictOrder fixes the section ordering in the rendered markdown report.
var verdictOrder = []verdict.Status{
	verdict.StatusDuplicate,
	verdict.StatusOverlapping,
	verdict.StatusRelated,
	verdict.StatusFalsePositive,
}

func shortenPath(path string) string {
	const maxSegments = 3
	segments := strings.Split(path, "/")
	if len(segments) <= maxSegments {
		return path
	}
	return ".../" + strings.Join(segments[len(segments)-maxSegments:], "/")
}

func formatSignals(breakdown map[string]float64) string {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return breakdown[keys[i]] > breakdown[keys[j]] })

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %.2f\n", k, breakdown[k])
	}
	return b.String()
}

func renderClusterSection(c cluster.Cluster, finding *verdict.Finding, unitsByID map[string]codeunit.CodeUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s (avg similarity %.2f, %d members)\n\n", c.ID, c.AvgSimilarity, len(c.Members))

	if finding != nil {
		fmt.Fprintf(&b, "**Verdict:** %s (confidence %.2f)\n\n", finding.Verdict, finding.Confidence)
		if finding.Notes != "" {
			fmt.Fprintf(&b, "%s\n\n", finding.Notes)
		}
		prose := []struct{ label, text string }{
			{"Shared Behavior", finding.SharedBehavior},
			{"Meaningful Differences", finding.MeaningfulDifferences},
			{"Accidental Differences", finding.AccidentalDifferences},
			{"Feature Gaps", finding.FeatureGaps},
			{"Consolidation Complexity", finding.ConsolidationComplexity},
			{"Consolidation Reasoning", finding.ConsolidationReasoning},
			{"Consumer Impact", finding.ConsumerImpact},
		}
		for _, p := range prose {
			if p.text != "" {
				fmt.Fprintf(&b, "**%s:** %s\n\n", p.label, p.text)
			}
		}
	}

	b.WriteString("**Members:**\n\n")
	for _, id := range c.Members {
		unit, ok := unitsByID[id]
		if !ok {
			fmt.Fprintf(&b, "- `%s`\n", id)
			continue
		}
		fmt.Fprintf(&b, "- `%s` (%s) — %s\n", unit.Name, unit.Kind, shortenPath(unit.FilePath))
	}
	b.WriteString("\n")

	if c.DirectorySpread > 1 {
		fmt.Fprintf(&b, "**Spread:** %d directories\n\n", c.DirectorySpread)
	}
	if len(c.SharedCallees) > 0 {
		fmt.Fprintf(&b, "**Shared callees:** %s\n\n", strings.Join(c.SharedCallees, ", "))
	}

	b.WriteString("**Signal breakdown:**\n\n")
	b.WriteString(formatSignals(c.SignalBreakdown))
	b.WriteString("\n")

	return b.String()
}

func corpusSummary(clusters []cluster.Cluster) string {
	if len(clusters) == 0 {
		return ""
	}
	similarities := make([]float64, len(clusters))
	for i, c := range clusters {
		similarities[i] = c.AvgSimilarity
	}
	mean, _ := stats.Mean(similarities)
	median, _ := stats.Median(similarities)
	return fmt.Sprintf("Found %d cluster(s). Mean avg similarity %.2f, median %.2f.\n\n", len(clusters), mean, median)
}

// GenerateMarkdown renders the full drift report: clusters grouped under
// their reviewer verdict in verdictOrder, with any cluster lacking a
// finding placed under "Unverified" — or, when no findings exist at
// all, every cluster is rendered under "Preliminary Clusters" instead.
func GenerateMarkdown(clusters []cluster.Cluster, findings []verdict.Finding, unitsByID map[string]codeunit.CodeUnit) string {
	var b strings.Builder
	b.WriteString("# Semantic Drift Report\n\n")
	b.WriteString(corpusSummary(clusters))

	findingByCluster := make(map[string]verdict.Finding, len(findings))
	for _, f := range findings {
		findingByCluster[f.ClusterID.String()] = f
	}

	if len(findings) == 0 {
		b.WriteString("## Preliminary Clusters\n\n")
		for _, c := range clusters {
			b.WriteString(renderClusterSection(c, nil, unitsByID))
		}
		return b.String()
	}

	seen := map[string]struct{}{}
	for _, status := range verdictOrder {
		var section strings.Builder
		for _, c := range clusters {
			f, ok := findingByCluster[c.ID]
			if !ok || f.Verdict != status {
				continue
			}
			seen[c.ID] = struct{}{}
			section.WriteString(renderClusterSection(c, &f, unitsByID))
		}
		if section.Len() > 0 {
			fmt.Fprintf(&b, "## %s\n\n", status)
			b.WriteString(section.String())
		}
	}

	var unverified strings.Builder
	for _, c := range clusters {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		unverified.WriteString(renderClusterSection(c, nil, unitsByID))
	}
	if unverified.Len() > 0 {
		b.WriteString("## Unverified\n\n")
		b.WriteString(unverified.String())
	}

	return b.String()
}

// AtlasNode is one unit rendered in the dependency atlas graph.
type AtlasNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	FilePath string `json:"filePath"`
	Cluster  string `json:"cluster,omitempty"`
}

// AtlasEdge is one scored pair rendered as a graph edge.
type AtlasEdge struct {
	Source         string  `json:"source"`
	Target         string  `json:"target"`
	Weight         float64 `json:"weight"`
	DominantSignal string  `json:"dominantSignal"`
}

// DependencyAtlas is the Stage R graph artifact used by downstream
// visualization tooling.
type DependencyAtlas struct {
	Nodes []AtlasNode `json:"nodes"`
	Edges []AtlasEdge `json:"edges"`
}

// GenerateDependencyAtlas builds the node/edge graph scoped to cluster
// membership: nodes are the union of every cluster's members, and edges are
// scored pairs whose both endpoints belong to that member set.
func GenerateDependencyAtlas(clusters []cluster.Cluster, pairs []score.PairScore, unitsByID map[string]codeunit.CodeUnit) DependencyAtlas {
	clusterOf := make(map[string]string)
	members := map[string]struct{}{}
	for _, c := range clusters {
		for _, member := range c.Members {
			clusterOf[member] = c.ID
			members[member] = struct{}{}
		}
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	atlas := DependencyAtlas{
		Nodes: make([]AtlasNode, 0, len(ids)),
		Edges: make([]AtlasEdge, 0, len(pairs)),
	}
	for _, id := range ids {
		unit := unitsByID[id]
		atlas.Nodes = append(atlas.Nodes, AtlasNode{
			ID:       id,
			Name:     unit.Name,
			Kind:     unit.Kind,
			FilePath: unit.FilePath,
			Cluster:  clusterOf[id],
		})
	}
	for _, p := range pairs {
		_, aIn := members[p.UnitA]
		_, bIn := members[p.UnitB]
		if !aIn || !bIn {
			continue
		}
		atlas.Edges = append(atlas.Edges, AtlasEdge{
			Source:         p.UnitA,
			Target:         p.UnitB,
			Weight:         p.Score,
			DominantSignal: p.DominantSignal,
		})
	}
	return atlas
}

// Variant is one cluster member rendered as a manifest entry's file-level
// detail.
type Variant struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	FileCount   int      `json:"file_count"`
	Files       []string `json:"files"`
	SampleFile  string   `json:"sample_file"`
}

// ManifestEntry is one semantic-drift area recorded in the project-wide
// drift manifest's "areas" array.
type ManifestEntry struct {
	ID                      string    `json:"id"`
	Name                    string    `json:"name"`
	Type                    string    `json:"type"`
	Description             string    `json:"description"`
	Impact                  string    `json:"impact"`
	TotalFiles              int       `json:"total_files"`
	Variants                []Variant `json:"variants"`
	SemanticRole            *string   `json:"semantic_role"`
	ConsolidationAssessment *string   `json:"consolidation_assessment"`
	Analysis                string    `json:"analysis"`
	Recommendation          string    `json:"recommendation"`
	Status                  string    `json:"status"`
}

// BuildManifestEntry converts one cluster, and the reviewer finding against
// it (if any), into a manifest area entry. A nil finding produces a
// preliminary entry awaiting semantic verification.
func BuildManifestEntry(finding *verdict.Finding, c cluster.Cluster, unitsByID map[string]codeunit.CodeUnit) ManifestEntry {
	files := map[string]struct{}{}
	variants := make([]Variant, 0, len(c.Members))
	for _, uid := range c.Members {
		u := unitsByID[uid]
		name := u.Name
		if name == "" {
			name = uid
		}
		var fileList []string
		if u.FilePath != "" {
			files[u.FilePath] = struct{}{}
			fileList = []string{u.FilePath}
		}
		variants = append(variants, Variant{
			Name:        name,
			Description: u.Kind,
			FileCount:   1,
			Files:       fileList,
			SampleFile:  u.FilePath,
		})
	}

	var impact, name, description, recommendation, analysis string
	var semanticRole, consolidationAssessment *string
	if finding != nil {
		impact = finding.Verdict.Impact()
		name = finding.Role
		if name == "" {
			name = fmt.Sprintf("Cluster %s", c.ID)
		}
		description = finding.SharedBehavior
		if description == "" {
			description = fmt.Sprintf("%s cluster: %s", finding.Verdict, name)
		}
		recommendation = finding.ConsolidationReasoning
		if recommendation == "" {
			recommendation = "Review for consolidation."
		}
		complexity := finding.ConsolidationComplexity
		if complexity == "" {
			complexity = "unknown"
		}
		analysis = fmt.Sprintf("Verdict: %s, Confidence: %g, Complexity: %s", finding.Verdict, finding.Confidence, complexity)
		if finding.Role != "" {
			semanticRole = &finding.Role
		}
		if finding.ConsolidationReasoning != "" {
			consolidationAssessment = &finding.ConsolidationReasoning
		}
	} else {
		impact = "LOW"
		name = fmt.Sprintf("Cluster %s", c.ID)
		description = fmt.Sprintf("Structurally similar units (avg similarity: %.2f)", c.AvgSimilarity)
		recommendation = "Awaiting semantic verification."
		analysis = fmt.Sprintf("Avg similarity: %.2f, spread: %d dirs", c.AvgSimilarity, c.DirectorySpread)
	}

	return ManifestEntry{
		ID:                      fmt.Sprintf("semantic-%s", c.ID),
		Name:                    name,
		Type:                    "semantic",
		Description:             description,
		Impact:                  impact,
		TotalFiles:              len(files),
		Variants:                variants,
		SemanticRole:            semanticRole,
		ConsolidationAssessment: consolidationAssessment,
		Analysis:                analysis,
		Recommendation:          recommendation,
		Status:                  "pending",
	}
}

// UpdateManifest removes every existing area whose "type" field is
// "semantic" from manifestPath's "areas" array and appends the given
// entries, preserving every other top-level manifest field untouched.
func UpdateManifest(manifestPath string, entries []ManifestEntry) error {
	doc := map[string]json.RawMessage{}
	if data, err := os.ReadFile(manifestPath); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse existing manifest at %s: %w", manifestPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read manifest at %s: %w", manifestPath, err)
	}

	var areas []json.RawMessage
	if raw, ok := doc["areas"]; ok {
		if err := json.Unmarshal(raw, &areas); err != nil {
			return fmt.Errorf("parse manifest areas at %s: %w", manifestPath, err)
		}
	}

	kept := areas[:0]
	for _, raw := range areas {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil && probe.Type == "semantic" {
			continue
		}
		kept = append(kept, raw)
	}

	for _, entry := range entries {
		encoded, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode manifest entry %s: %w", entry.ID, err)
		}
		kept = append(kept, json.RawMessage(encoded))
	}

	areasEncoded, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("encode manifest areas: %w", err)
	}
	doc["areas"] = areasEncoded

	output, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	return os.WriteFile(manifestPath, output, 0o644)
}
