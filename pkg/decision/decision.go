// Package decision defines the narrow C10 contract the simulation core
// writes against: log(scenario, result, correlationId) -> record. The
// concrete SQLite-backed implementation lives in pkg/storage; this
// package only names the interface so the core depends on a collaborator,
// not a driver.
package decision

import (
	"time"

	"topology-sim-engine/pkg/storage"
)

type Input struct {
	Type          string
	Scenario      interface{}
	Result        interface{}
	CorrelationID string
}

// Sink is the only contract the simulation core needs from the decision
// store. Failures to persist must never fail the simulation; callers log
// and swallow Log's error.
type Sink interface {
	Log(input Input) (*storage.DecisionRecord, error)
}

// SQLiteSink adapts a *storage.DecisionStore to the Sink contract.
type SQLiteSink struct {
	Store *storage.DecisionStore
}

func NewSQLiteSink(store *storage.DecisionStore) *SQLiteSink {
	return &SQLiteSink{Store: store}
}

func (s *SQLiteSink) Log(input Input) (*storage.DecisionRecord, error) {
	return s.Store.LogDecision(storage.LogDecisionInput{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Type:          input.Type,
		Scenario:      input.Scenario,
		Result:        input.Result,
		CorrelationID: input.CorrelationID,
	})
}
