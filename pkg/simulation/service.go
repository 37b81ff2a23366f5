package simulation

import (
	"context"
	"time"

	"topology-sim-engine/pkg/clients/graph"
	"topology-sim-engine/pkg/common"
	"topology-sim-engine/pkg/config"
	"topology-sim-engine/pkg/decision"
	"topology-sim-engine/pkg/logger"
	"topology-sim-engine/pkg/metrics"
)

// Service wires the graph-provider adapter, the decision-log sink, and the
// metrics registry around the pure SimulateFailure/SimulateScaling
// functions, and is what the HTTP layer calls into.
type Service struct {
	graphClient *graph.Client
	decisions   decision.Sink
	config      *config.Config
	metrics     *metrics.Registry
}

func NewService(cfg *config.Config, gc *graph.Client, sink decision.Sink, reg *metrics.Registry) *Service {
	return &Service{
		config:      cfg,
		graphClient: gc,
		decisions:   sink,
		metrics:     reg,
	}
}

func (s *Service) RunFailureSimulation(ctx context.Context, req FailureSimulationRequest) (*FailureSimulationResult, error) {
	if !req.Trace && s.config != nil && s.config.Trace.DefaultEnabled {
		req.Trace = true
	}

	started := time.Now()
	result, err := SimulateFailure(ctx, s.graphClient, s.config, req)
	s.metrics.ObserveStage("failure", time.Since(started).Seconds())
	if err != nil {
		s.metrics.ObserveSimulation("failure", "error")
		return nil, err
	}
	s.metrics.ObserveSimulation("failure", "ok")

	s.logDecision(ctx, "failure", req, result)
	return result, nil
}

func (s *Service) RunScalingSimulation(ctx context.Context, req ScalingSimulationRequest) (*ScalingSimulationResult, error) {
	if !req.Trace && s.config != nil && s.config.Trace.DefaultEnabled {
		req.Trace = true
	}

	started := time.Now()
	result, err := SimulateScaling(ctx, s.graphClient, s.config, req)
	s.metrics.ObserveStage("scaling", time.Since(started).Seconds())
	if err != nil {
		s.metrics.ObserveSimulation("scaling", "error")
		return nil, err
	}
	s.metrics.ObserveSimulation("scaling", "ok")

	s.logDecision(ctx, "scaling", req, result)
	return result, nil
}

func (s *Service) logDecision(ctx context.Context, kind string, scenario, result interface{}) {
	if s.decisions == nil {
		return
	}
	if _, err := s.decisions.Log(decision.Input{
		Type:          kind,
		Scenario:      scenario,
		Result:        result,
		CorrelationID: common.GetCorrelationID(ctx),
	}); err != nil {
		logger.Error("failed to log decision", err)
		s.metrics.IncDecisionLogError()
	}
}
