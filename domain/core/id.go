package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier.
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation.
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs.
	// Falls back to v4 if v7 is not available.
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation.
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty.
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types.
type (
	RunID   ID
	UnitID  ID
	ClusterID ID
)

func (id RunID) String() string     { return ID(id).String() }
func (id UnitID) String() string    { return ID(id).String() }
func (id ClusterID) String() string { return ID(id).String() }

// NewRunID stamps a single pipeline invocation with a time-ordered identifier.
func NewRunID() RunID {
	return RunID(NewID())
}

// ParseRunID parses a string into a RunID.
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// ParseUnitID parses a string into a UnitID.
func ParseUnitID(s string) (UnitID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("unit ID cannot be empty")
	}
	return UnitID(s), nil
}

// ArtifactKind names one of the JSON files the pipeline reads or writes.
type ArtifactKind string

const (
	ArtifactCodeUnits              ArtifactKind = "code-units"
	ArtifactStructuralFingerprints ArtifactKind = "structural-fingerprints"
	ArtifactTypeSignatures         ArtifactKind = "type-signatures"
	ArtifactCallGraph              ArtifactKind = "call-graph"
	ArtifactDependencyContext       ArtifactKind = "dependency-context"
	ArtifactSemanticEmbeddings      ArtifactKind = "semantic-embeddings"
	ArtifactStructuralPatterns      ArtifactKind = "structural-patterns"
	ArtifactSimilarityMatrix        ArtifactKind = "similarity-matrix"
	ArtifactClusters                ArtifactKind = "clusters"
	ArtifactDependencyAtlas         ArtifactKind = "dependency-atlas"
	ArtifactPurposeStatements       ArtifactKind = "purpose-statements"
	ArtifactFindings                ArtifactKind = "findings"
	ArtifactDriftReport             ArtifactKind = "semantic-drift-report"
	ArtifactDriftManifest           ArtifactKind = "drift-manifest"
)

// Artifact represents one decoded JSON file, tagged with the run that produced it.
type Artifact struct {
	Kind      ArtifactKind `json:"kind"`
	RunID     RunID        `json:"runId"`
	Payload   interface{}  `json:"payload"`
	CreatedAt Timestamp    `json:"createdAt"`
}
