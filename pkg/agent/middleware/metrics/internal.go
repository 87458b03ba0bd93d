package metrics

import (
	"sort"
	"sync"
	"time"
)

// InternalRecorder implements the Recorder interface using in-memory aggregation.
// It backs the per-stage token summary printed at the end of a run.
type InternalRecorder struct {
	stages map[string]*StageMetrics // stage ID -> aggregated metrics
	mu     sync.RWMutex
}

// StageMetrics represents aggregated metrics for a stage.
//
//nolint:govet
type StageMetrics struct {
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	TotalTokens      int64         `json:"total_tokens"`
	RequestCount     int64         `json:"request_count"`
	ErrorCount       int64         `json:"error_count"`
	Duration         time.Duration `json:"duration"`
	Stage            string        `json:"stage"`
	Model            string        `json:"model"`
}

// NewInternalRecorder returns an empty internal metrics recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		stages: make(map[string]*StageMetrics),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (r *InternalRecorder) ObserveRequest(
	model, stage string,
	promptTokens, completionTokens int,
	success bool,
	_ string,
	duration time.Duration,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.stages[stage]
	if !exists {
		s = &StageMetrics{Stage: stage}
		r.stages[stage] = s
	}

	s.Model = model
	s.RequestCount++
	s.Duration += duration
	if !success {
		s.ErrorCount++
		return
	}
	s.PromptTokens += int64(promptTokens)
	s.CompletionTokens += int64(completionTokens)
	s.TotalTokens = s.PromptTokens + s.CompletionTokens
}

// GetStageMetrics returns a copy of the aggregated metrics for a stage.
func (r *InternalRecorder) GetStageMetrics(stage string) (StageMetrics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.stages[stage]
	if !exists {
		return StageMetrics{}, false
	}
	return *s, true
}

// Totals returns the sum over all stages.
func (r *InternalRecorder) Totals() StageMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total StageMetrics
	for _, s := range r.stages {
		total.PromptTokens += s.PromptTokens
		total.CompletionTokens += s.CompletionTokens
		total.RequestCount += s.RequestCount
		total.ErrorCount += s.ErrorCount
		total.Duration += s.Duration
	}
	total.TotalTokens = total.PromptTokens + total.CompletionTokens
	return total
}

// Stages returns copies of every stage's metrics sorted by stage ID.
func (r *InternalRecorder) Stages() []StageMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StageMetrics, 0, len(r.stages))
	for _, s := range r.stages {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}
