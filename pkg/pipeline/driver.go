package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"csvanalyst/pkg/dataset"
	"csvanalyst/pkg/eventlog"
	"csvanalyst/pkg/logx"
	"csvanalyst/pkg/persistence"
	"csvanalyst/pkg/stats"
	"csvanalyst/pkg/tools"
)

// RunResult is the outcome of a successful run.
type RunResult struct {
	RunID      string
	Context    *Context
	ReportPath string
	Artifacts  []Artifact
	Duration   time.Duration
}

// Driver runs a fixed, validated list of stages.
type Driver struct {
	stages   []Stage
	executor StageRunner
	history  *persistence.DatabaseOperations
	events   *eventlog.Writer
	provider string
	logger   *logx.Logger
	newRunID func() string
}

// Option configures a Driver.
type Option func(*Driver)

// WithHistory records runs, stage results and artifacts in the run history database.
func WithHistory(ops *persistence.DatabaseOperations) Option {
	return func(d *Driver) { d.history = ops }
}

// WithEventLog writes run and stage events to w.
func WithEventLog(w *eventlog.Writer) Option {
	return func(d *Driver) { d.events = w }
}

// WithProvider records the LLM provider name in the run history.
func WithProvider(provider string) Option {
	return func(d *Driver) { d.provider = provider }
}

// NewDriver validates the stage list: it must be non-empty with unique IDs, and every
// declared predecessor must be another stage that appears earlier in the list.
func NewDriver(stages []Stage, executor StageRunner, opts ...Option) (*Driver, error) {
	if executor == nil {
		return nil, fmt.Errorf("%w: no executor", ErrInvalidPipeline)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: no stages", ErrInvalidPipeline)
	}

	position := make(map[string]int, len(stages))
	for i := range stages {
		s := &stages[i]
		if s.ID == "" {
			return nil, fmt.Errorf("%w: stage %d has no ID", ErrInvalidPipeline, i)
		}
		if _, dup := position[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate stage ID %s", ErrInvalidPipeline, s.ID)
		}
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return nil, fmt.Errorf("%w: stage %s depends on itself", ErrInvalidPipeline, s.ID)
			}
			if _, earlier := position[dep]; !earlier {
				return nil, fmt.Errorf("%w: stage %s depends on %s, which does not run before it", ErrInvalidPipeline, s.ID, dep)
			}
		}
		position[s.ID] = i
	}

	d := &Driver{
		stages:   append([]Stage(nil), stages...),
		executor: executor,
		logger:   logx.NewLogger("pipeline"),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Stages returns the IDs of the stages in run order.
func (d *Driver) Stages() []string {
	ids := make([]string, len(d.stages))
	for i := range d.stages {
		ids[i] = d.stages[i].ID
	}
	return ids
}

// Run loads the dataset, profiles it and runs every stage in order. The first error stops
// the run; stage failures are returned as *StageError. Dataset problems fail the run before
// any stage writes a file.
func (d *Driver) Run(ctx context.Context, ws Workspace) (*RunResult, error) {
	ws.RunID = d.newRunID()
	ws.StartedAt = time.Now()
	ws.Model = d.executor.Model()

	d.logger.Info("🚀 Run %s started: %s with model %s", ws.RunID, ws.CSVPath, ws.Model)
	d.recordRunStart(&ws)

	rc := NewContext()
	err := d.run(ctx, &ws, rc)

	reportPath := ""
	if reports := rc.Artifacts(ArtifactReport); len(reports) > 0 {
		reportPath = reports[len(reports)-1].Path
	}
	d.recordRunEnd(&ws, reportPath, err)

	if err != nil {
		d.logger.Error("❌ Run %s failed: %v", ws.RunID, err)
		return nil, err
	}

	result := &RunResult{
		RunID:      ws.RunID,
		Context:    rc,
		ReportPath: reportPath,
		Artifacts:  rc.Artifacts(""),
		Duration:   time.Since(ws.StartedAt),
	}
	d.logger.Info("✅ Run %s completed in %s", ws.RunID, result.Duration.Round(time.Millisecond))
	return result, nil
}

func (d *Driver) run(ctx context.Context, ws *Workspace, rc *Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run canceled: %w", err)
	}

	ds, err := dataset.Load(ws.CSVPath, dataset.LoadOptions{Delimiter: ws.Delimiter, MaxRows: ws.MaxRows})
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	ws.Dataset = ds
	ws.Profile = stats.Compute(ds, ws.Stats)
	d.logger.Info("📄 Loaded %s: %d rows, %d columns", ds.Name(), ds.NumRows(), ds.NumColumns())

	registry, err := tools.NewRegistry(tools.NewReadCSVTool(ws.CSVPath, ds.Delimiter(), ws.SampleRows))
	if err != nil {
		return err
	}

	for i := range d.stages {
		stage := &d.stages[i]
		if err := d.runStage(ctx, ws, rc, stage, i, registry); err != nil {
			d.recordStageFailure(ws, stage.ID, err)
			return &StageError{StageID: stage.ID, Err: err}
		}
	}
	return nil
}

func (d *Driver) runStage(ctx context.Context, ws *Workspace, rc *Context, stage *Stage, position int, registry *tools.Registry) error {
	ctx = logx.ContextWithStage(ctx, stage.ID)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run canceled: %w", err)
	}

	var missing []string
	for _, dep := range stage.DependsOn {
		if !rc.Has(dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrPredecessorIncomplete, strings.Join(missing, ", "))
	}

	// Results are never removed, so every dependency is still present.
	predecessors := make([]Result, 0, len(stage.DependsOn))
	for _, dep := range stage.DependsOn {
		res, _ := rc.Get(dep)
		predecessors = append(predecessors, res)
	}

	d.logger.Info("▶️  Stage %d/%d: %s", position+1, len(d.stages), stage.ID)
	d.writeEvent(eventlog.NewEvent(eventlog.EventStageStarted, ws.RunID, stage.ID))
	started := time.Now()

	var prepared Prepared
	if stage.Prepare != nil {
		var err error
		if prepared, err = stage.Prepare(ctx, ws, rc); err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
	}

	out, err := d.executor.Execute(ctx, stage, Input{
		DatasetName:  ws.Dataset.Name(),
		Tools:        registry,
		Prepared:     prepared,
		Predecessors: predecessors,
	})
	if err != nil {
		return err
	}

	res := Result{
		StageID:   stage.ID,
		Title:     stage.Title,
		Content:   out.Content,
		Facts:     prepared.Facts,
		Artifacts: stampArtifacts(prepared.Artifacts, stage.ID),
		Model:     d.executor.Model(),
	}

	if stage.Emit != nil {
		emitted, err := stage.Emit(ctx, ws, rc, res)
		if err != nil {
			return fmt.Errorf("emit: %w", err)
		}
		res.Artifacts = append(res.Artifacts, stampArtifacts(emitted, stage.ID)...)
	}

	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(started)
	if err := rc.Add(res); err != nil {
		return err
	}

	d.recordStageResult(ws, res, position)
	d.logger.Info("✔️  Stage %s completed in %s (%d artifacts)", stage.ID, res.Duration.Round(time.Millisecond), len(res.Artifacts))
	return nil
}

func stampArtifacts(artifacts []Artifact, stageID string) []Artifact {
	out := make([]Artifact, len(artifacts))
	for i, a := range artifacts {
		if a.Stage == "" {
			a.Stage = stageID
		}
		out[i] = a
	}
	return out
}

// History and event records are best effort: a failing store is logged and the run continues.

func (d *Driver) recordRunStart(ws *Workspace) {
	d.writeEvent(eventlog.NewEvent(eventlog.EventRunStarted, ws.RunID, ""))
	if d.history == nil {
		return
	}
	if err := d.history.InsertRun(&persistence.Run{
		ID:        ws.RunID,
		CSVPath:   ws.CSVPath,
		Model:     ws.Model,
		Provider:  d.provider,
		StartedAt: ws.StartedAt,
	}); err != nil {
		d.logger.Warn("Failed to record run start: %v", err)
	}
}

func (d *Driver) recordStageResult(ws *Workspace, res Result, position int) {
	ev := eventlog.NewEvent(eventlog.EventStageCompleted, ws.RunID, res.StageID).WithDuration(res.Duration)
	ev.Model = res.Model
	for _, a := range res.Artifacts {
		ev.Artifacts = append(ev.Artifacts, a.Path)
	}
	d.writeEvent(ev)

	if d.history == nil {
		return
	}
	if err := d.history.InsertStageResult(&persistence.StageResult{
		RunID:       ws.RunID,
		StageID:     res.StageID,
		Position:    position,
		Content:     res.Content,
		Facts:       res.Facts,
		Model:       res.Model,
		Duration:    res.Duration,
		CompletedAt: res.CompletedAt,
	}); err != nil {
		d.logger.Warn("Failed to record result of stage %s: %v", res.StageID, err)
	}
	for _, a := range res.Artifacts {
		if err := d.history.UpsertArtifact(&persistence.Artifact{
			RunID:   ws.RunID,
			StageID: res.StageID,
			Kind:    string(a.Kind),
			Path:    a.Path,
			Title:   a.Title,
		}); err != nil {
			d.logger.Warn("Failed to record artifact %s: %v", a.Path, err)
		}
	}
}

func (d *Driver) recordStageFailure(ws *Workspace, stageID string, err error) {
	d.writeEvent(eventlog.NewEvent(eventlog.EventStageFailed, ws.RunID, stageID).WithError(err))
}

func (d *Driver) recordRunEnd(ws *Workspace, reportPath string, runErr error) {
	eventType, status := eventlog.EventRunCompleted, persistence.RunStatusCompleted
	errMsg := ""
	if runErr != nil {
		eventType, status = eventlog.EventRunFailed, persistence.RunStatusFailed
		errMsg = runErr.Error()
	}
	d.writeEvent(eventlog.NewEvent(eventType, ws.RunID, "").WithDuration(time.Since(ws.StartedAt)).WithError(runErr))

	if d.history == nil {
		return
	}
	if err := d.history.FinishRun(ws.RunID, status, errMsg, reportPath, time.Now()); err != nil {
		d.logger.Warn("Failed to record run end: %v", err)
	}
}

func (d *Driver) writeEvent(ev *eventlog.Event) {
	if err := d.events.WriteEvent(ev); err != nil {
		d.logger.Warn("Failed to write event %s: %v", ev.Type, err)
	}
}
