// Package pipeline runs the analysis stages strictly in sequence.
//
// A Driver owns an ordered list of Stages. Each stage runs an optional deterministic Prepare
// hook, one LLM call through the Executor and an optional Emit hook. Results accumulate in a
// Context that later stages read but never modify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"csvanalyst/pkg/charts"
	"csvanalyst/pkg/dataset"
	"csvanalyst/pkg/stats"
)

// Stage IDs of the default pipeline.
const (
	StageDatasetContext  = "dataset_context"
	StageDataQuality     = "data_quality"
	StageVisualization   = "visualization"
	StageReportSynthesis = "report_synthesis"
)

// Sentinel errors.
var (
	// ErrInvalidPipeline is returned by NewDriver for a malformed stage list.
	ErrInvalidPipeline = errors.New("invalid pipeline")
	// ErrPredecessorIncomplete is returned when a stage's declared predecessor has no result.
	ErrPredecessorIncomplete = errors.New("predecessor stage has not completed")
	// ErrEmptyResult is returned when the model answers with no content.
	ErrEmptyResult = errors.New("stage produced an empty result")
	// ErrDuplicateResult is returned when a second result is added for a stage.
	ErrDuplicateResult = errors.New("stage result already recorded")
)

// ArtifactKind classifies files written by a run.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactImage  ArtifactKind = "image"
	ArtifactReport ArtifactKind = "report"
)

// Artifact is a file written during a run. Re-running writes the same paths.
type Artifact struct {
	Path    string
	Kind    ArtifactKind
	Stage   string
	Title   string
	Caption string
}

// Prepared is the output of a stage's Prepare hook.
type Prepared struct {
	// Facts is deterministic text added to the prompt.
	Facts string
	// Artifacts are files the hook wrote.
	Artifacts []Artifact
}

// PrepareFunc computes a stage's deterministic input before the LLM call.
type PrepareFunc func(ctx context.Context, ws *Workspace, rc *Context) (Prepared, error)

// EmitFunc writes a stage's output files after the LLM call. res is the stage's result
// before it is added to rc.
type EmitFunc func(ctx context.Context, ws *Workspace, rc *Context, res Result) ([]Artifact, error)

// Stage is one step of the pipeline: a persona, a task and optional hooks.
//
//nolint:govet // grouped by role
type Stage struct {
	ID    string
	Title string
	// Persona, rendered into the system prompt.
	Role      string
	Goal      string
	Backstory string
	// Task, rendered into the user prompt.
	Instructions   string
	ExpectedOutput string
	// DependsOn lists stages whose results must exist before this stage runs. Their
	// results are passed to the model in this order.
	DependsOn []string
	// Tools are run before the LLM call and their output is added to the prompt.
	Tools   []string
	Prepare PrepareFunc
	Emit    EmitFunc
}

// Result is the immutable output of one completed stage.
//
//nolint:govet // grouped by origin
type Result struct {
	StageID     string
	Title       string
	Content     string
	Facts       string
	Artifacts   []Artifact
	Model       string
	Duration    time.Duration
	CompletedAt time.Time
}

func (r Result) clone() Result {
	r.Artifacts = append([]Artifact(nil), r.Artifacts...)
	return r
}

// Workspace holds one run's inputs. Run fills the fields below the separator.
//
//nolint:govet // grouped by origin
type Workspace struct {
	CSVPath    string
	Delimiter  rune
	MaxRows    int
	SampleRows int
	ReportPath string
	Charts     charts.Options
	Stats      stats.Options

	RunID     string
	StartedAt time.Time
	Model     string
	Dataset   *dataset.Dataset
	Profile   *stats.Profile
}

// StageError wraps the error that stopped a run with the failing stage's ID.
type StageError struct {
	StageID string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.StageID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
