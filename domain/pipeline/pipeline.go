// Package pipeline tracks stage-by-stage execution of the F→T→C→D→S→K→R
// sequence: which stages ran, whether each succeeded, how long it took, and
// how many artifacts it produced.
package pipeline

import (
	"time"

	"driftsemantic/domain/core"
)

// StageName identifies one step of the drift detection pipeline.
type StageName string

const (
	StageFingerprint  StageName = "fingerprint"
	StageTypeSig      StageName = "typesig"
	StageCallGraph    StageName = "callgraph"
	StageDepContext   StageName = "depcontext"
	StageScore        StageName = "score"
	StageCluster      StageName = "cluster"
	StageReport       StageName = "report"
)

// DefaultPlan is the canonical stage order; every full `run` invocation
// executes these in sequence.
var DefaultPlan = []StageName{
	StageFingerprint,
	StageTypeSig,
	StageCallGraph,
	StageDepContext,
	StageScore,
	StageCluster,
	StageReport,
}

// StageResult captures the outcome of running a single stage.
type StageResult struct {
	Stage            StageName `json:"stage"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	DurationMs       int64     `json:"durationMs"`
	ArtifactsWritten int       `json:"artifactsWritten"`
}

// Result is the full record of one `run` invocation.
type Result struct {
	RunID   core.RunID    `json:"runId"`
	Plan    []StageName   `json:"plan"`
	Stages  []StageResult `json:"stages"`
}

// Success reports whether every stage in the result succeeded.
func (r *Result) Success() bool {
	for _, s := range r.Stages {
		if !s.Success {
			return false
		}
	}
	return true
}

// NewResult starts a result for the given run, over the given stage plan.
func NewResult(runID core.RunID, plan []StageName) *Result {
	return &Result{RunID: runID, Plan: plan}
}

// Run executes fn as one named stage, recording its duration, success, and
// artifact count regardless of whether fn returns an error. A stage error
// is recorded but does not panic; callers decide whether to keep running
// the remaining stages.
func (r *Result) Run(stage StageName, fn func() (artifactsWritten int, err error)) error {
	start := time.Now()
	artifacts, err := fn()
	result := StageResult{
		Stage:            stage,
		Success:          err == nil,
		DurationMs:       time.Since(start).Milliseconds(),
		ArtifactsWritten: artifacts,
	}
	if err != nil {
		result.Error = err.Error()
	}
	r.Stages = append(r.Stages, result)
	return err
}

// Hash derives a deterministic identifier for this stage plan. Order is
// significant: each stage consumes its predecessor's artifact, so the same
// stages in a different order are a different plan.
func Hash(plan []StageName) (core.Hash, error) {
	names := make([]string, len(plan))
	for i, s := range plan {
		names[i] = string(s)
	}
	return core.HashCanonicalJSON(names)
}
