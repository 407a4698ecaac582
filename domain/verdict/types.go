// Package verdict defines the human judgment attached to a cluster once a
// reviewer has looked at it: is this genuine duplication, partial overlap,
// a loose family resemblance, or a false positive the scorer got wrong.
package verdict

import (
	"driftsemantic/domain/core"
)

// Status is the reviewer's classification of a cluster.
type Status string

const (
	StatusDuplicate     Status = "DUPLICATE"
	StatusOverlapping   Status = "OVERLAPPING"
	StatusRelated       Status = "RELATED"
	StatusFalsePositive Status = "FALSE_POSITIVE"
)

// Valid reports whether s is one of the four recognized verdict statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDuplicate, StatusOverlapping, StatusRelated, StatusFalsePositive:
		return true
	default:
		return false
	}
}

// Impact maps a verdict to the severity recorded in the drift manifest.
func (s Status) Impact() string {
	switch s {
	case StatusDuplicate:
		return "HIGH"
	case StatusOverlapping:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Finding is an externally authored judgment on one cluster, ingested from
// a reviewer's findings.json.
type Finding struct {
	ClusterID  core.ClusterID `json:"clusterId"`
	Verdict    Status         `json:"verdict"`
	Confidence float64        `json:"confidence"`
	Notes      string         `json:"notes,omitempty"`

	// Optional reviewer prose. Role, SharedBehavior, ConsolidationReasoning,
	// and ConsolidationComplexity also feed the drift manifest's
	// semantic_role, description, recommendation, and analysis fields; the
	// rest only appear in the markdown report.
	Role                    string `json:"role,omitempty"`
	SharedBehavior          string `json:"sharedBehavior,omitempty"`
	MeaningfulDifferences   string `json:"meaningfulDifferences,omitempty"`
	AccidentalDifferences   string `json:"accidentalDifferences,omitempty"`
	FeatureGaps             string `json:"featureGaps,omitempty"`
	ConsumerImpact          string `json:"consumerImpact,omitempty"`
	ConsolidationReasoning  string `json:"consolidationReasoning,omitempty"`
	ConsolidationComplexity string `json:"consolidationComplexity,omitempty"`
}

// PurposeStatement is an externally authored one-line description of what a
// unit is for, ingested before Stage S can use semantic embeddings.
type PurposeStatement struct {
	UnitID  core.UnitID `json:"unitId"`
	Purpose string      `json:"purpose"`
}
