package persistence

import (
	"errors"
	"time"
)

// Run status constants.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Artifact kinds.
const (
	ArtifactKindImage  = "image"
	ArtifactKindReport = "report"
)

// Lookup errors.
var (
	ErrRunNotFound    = errors.New("run not found")
	ErrAmbiguousRunID = errors.New("run ID prefix matches more than one run")
)

// Run is one invocation of the pipeline.
//
//nolint:govet // struct alignment optimization not critical for this type
type Run struct {
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ID         string     `json:"id"`
	CSVPath    string     `json:"csv_path"`
	Model      string     `json:"model"`
	Provider   string     `json:"provider,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	ReportPath string     `json:"report_path,omitempty"`
}

// Duration returns the run's wall time, or zero while it is still running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageResult is the stored output of one completed stage.
type StageResult struct {
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	RunID       string        `json:"run_id"`
	StageID     string        `json:"stage_id"`
	Content     string        `json:"content"`
	Facts       string        `json:"facts,omitempty"`
	Model       string        `json:"model,omitempty"`
	Position    int           `json:"position"`
}

// Artifact is a file written by a run.
type Artifact struct {
	RunID   string `json:"run_id"`
	StageID string `json:"stage_id"`
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Title   string `json:"title,omitempty"`
}

// RunDetails is a run with everything recorded for it.
type RunDetails struct {
	Run       Run           `json:"run"`
	Stages    []StageResult `json:"stages"`
	Artifacts []Artifact    `json:"artifacts"`
}
