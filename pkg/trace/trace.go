// Package trace implements the opt-in per-request pipeline trace (C9):
// a named-stage timer with a small summary and warnings, attached to the
// response only when the caller asked for it. Disabled tracing is a
// construction choice (NewNoop), not a cross-cutting branch in the
// simulation code.
package trace

import "time"

type StageRecord struct {
	Name       string                 `json:"name"`
	DurationMs float64                `json:"durationMs"`
	Summary    map[string]interface{} `json:"summary,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
}

type Trace struct {
	Stages []StageRecord `json:"stages"`
}

// Tracer wraps a single pipeline stage. Call Start, do the work, then call
// the returned End with a summary (may be nil) and any warnings.
type Tracer interface {
	Start(stage string) func(summary map[string]interface{}, warnings ...string)
	// Snapshot returns the accumulated trace, or nil if tracing is disabled.
	Snapshot() *Trace
}

type noopTracer struct{}

func NewNoop() Tracer { return noopTracer{} }

func (noopTracer) Start(string) func(map[string]interface{}, ...string) {
	return func(map[string]interface{}, ...string) {}
}

func (noopTracer) Snapshot() *Trace { return nil }

type recordingTracer struct {
	stages *[]StageRecord
}

// NewRecording returns a Tracer that actually times stages.
func NewRecording() Tracer {
	s := make([]StageRecord, 0, 8)
	return &recordingTracer{stages: &s}
}

func (t *recordingTracer) Start(stage string) func(map[string]interface{}, ...string) {
	started := time.Now()
	return func(summary map[string]interface{}, warnings ...string) {
		*t.stages = append(*t.stages, StageRecord{
			Name:       stage,
			DurationMs: float64(time.Since(started).Microseconds()) / 1000.0,
			Summary:    summary,
			Warnings:   warnings,
		})
	}
}

func (t *recordingTracer) Snapshot() *Trace {
	return &Trace{Stages: append([]StageRecord(nil), *t.stages...)}
}

// New returns a recording tracer when enabled is true, otherwise a no-op.
func New(enabled bool) Tracer {
	if enabled {
		return NewRecording()
	}
	return NewNoop()
}
