package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout is the fixed-width UTC storage format for timestamps, so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DatabaseOperations provides methods for database operations.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// Close closes the underlying database.
func (ops *DatabaseOperations) Close() error {
	if err := ops.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// InsertRun records the start of a run.
func (ops *DatabaseOperations) InsertRun(run *Run) error {
	status := run.Status
	if status == "" {
		status = RunStatusRunning
	}
	_, err := ops.db.Exec(`
		INSERT INTO runs (id, csv_path, model, provider, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.CSVPath, run.Model, nullString(run.Provider), status, formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun marks a run completed or failed.
func (ops *DatabaseOperations) FinishRun(runID, status, errMsg, reportPath string, finishedAt time.Time) error {
	if status != RunStatusCompleted && status != RunStatusFailed {
		return fmt.Errorf("invalid final run status %q", status)
	}
	res, err := ops.db.Exec(`
		UPDATE runs SET status = ?, error = ?, report_path = ?, finished_at = ?
		WHERE id = ?
	`, status, nullString(errMsg), nullString(reportPath), formatTime(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// InsertStageResult records a completed stage. A stage is recorded at most once per run.
func (ops *DatabaseOperations) InsertStageResult(result *StageResult) error {
	_, err := ops.db.Exec(`
		INSERT INTO stage_results (run_id, stage_id, position, content, facts, model, duration_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, result.RunID, result.StageID, result.Position, result.Content, nullString(result.Facts),
		nullString(result.Model), result.Duration.Milliseconds(), formatTime(result.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert result of stage %s for run %s: %w", result.StageID, result.RunID, err)
	}
	return nil
}

// UpsertArtifact records a file written by a run.
func (ops *DatabaseOperations) UpsertArtifact(artifact *Artifact) error {
	_, err := ops.db.Exec(`
		INSERT INTO artifacts (run_id, stage_id, kind, path, title)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, path) DO UPDATE SET
			stage_id = excluded.stage_id,
			kind = excluded.kind,
			title = excluded.title
	`, artifact.RunID, artifact.StageID, artifact.Kind, artifact.Path, nullString(artifact.Title))
	if err != nil {
		return fmt.Errorf("failed to upsert artifact %s for run %s: %w", artifact.Path, artifact.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit returns all runs.
func (ops *DatabaseOperations) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, csv_path, model, provider, status, error, report_path, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ops.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run with its stage results and artifacts. idOrPrefix may be any unique
// prefix of the run ID.
func (ops *DatabaseOperations) GetRun(idOrPrefix string) (*RunDetails, error) {
	if idOrPrefix == "" {
		return nil, ErrRunNotFound
	}

	rows, err := ops.db.Query(`
		SELECT id, csv_path, model, provider, status, error, report_path, started_at, finished_at
		FROM runs WHERE id = ? OR substr(id, 1, ?) = ?
		ORDER BY id = ? DESC
		LIMIT 2
	`, idOrPrefix, len(idOrPrefix), idOrPrefix, idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", idOrPrefix, err)
	}
	var matches []Run
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			_ = rows.Close()
			return nil, scanErr
		}
		matches = append(matches, *run)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, idOrPrefix)
	case len(matches) > 1 && matches[0].ID != idOrPrefix:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRunID, idOrPrefix)
	}

	details := &RunDetails{Run: matches[0]}
	if details.Stages, err = ops.stageResults(details.Run.ID); err != nil {
		return nil, err
	}
	if details.Artifacts, err = ops.artifacts(details.Run.ID); err != nil {
		return nil, err
	}
	return details, nil
}

func (ops *DatabaseOperations) stageResults(runID string) ([]StageResult, error) {
	rows, err := ops.db.Query(`
		SELECT stage_id, position, content, facts, model, duration_ms, completed_at
		FROM stage_results WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage results for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var results []StageResult
	for rows.Next() {
		var (
			r           StageResult
			facts       sql.NullString
			model       sql.NullString
			durationMS  int64
			completedAt string
		)
		if err := rows.Scan(&r.StageID, &r.Position, &r.Content, &facts, &model, &durationMS, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage result: %w", err)
		}
		r.RunID = runID
		r.Facts = facts.String
		r.Model = model.String
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if r.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stage results: %w", err)
	}
	return results, nil
}

func (ops *DatabaseOperations) artifacts(runID string) ([]Artifact, error) {
	rows, err := ops.db.Query(`
		SELECT a.stage_id, a.kind, a.path, a.title
		FROM artifacts a
		LEFT JOIN stage_results s ON s.run_id = a.run_id AND s.stage_id = a.stage_id
		WHERE a.run_id = ?
		ORDER BY COALESCE(s.position, 1000000), a.rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var artifacts []Artifact
	for rows.Next() {
		var (
			a     Artifact
			title sql.NullString
		)
		if err := rows.Scan(&a.StageID, &a.Kind, &a.Path, &title); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.RunID = runID
		a.Title = title.String
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artifacts: %w", err)
	}
	return artifacts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r                                      Run
		provider, errMsg, reportPath, finished sql.NullString
		started                                string
	)
	if err := row.Scan(&r.ID, &r.CSVPath, &r.Model, &provider, &r.Status, &errMsg, &reportPath, &started, &finished); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	r.Provider = provider.String
	r.Error = errMsg.String
	r.ReportPath = reportPath.String

	var err error
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if finished.Valid {
		t, err := parseTime(finished.String)
		if err != nil {
			return nil, err
		}
		r.FinishedAt = &t
	}
	return &r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// IsNotFound reports whether err means the requested run does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
