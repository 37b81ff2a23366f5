package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"topology-sim-engine/pkg/clients/graph"
	"topology-sim-engine/pkg/config"
	"topology-sim-engine/pkg/decision"
	"topology-sim-engine/pkg/metrics"
	"topology-sim-engine/pkg/storage"
)

var testRegistryCounter uint64

// newTestRegistry returns a metrics.Registry under a namespace unique to
// this process run, since Prometheus panics on duplicate collector
// registration within the default registry.
func newTestRegistry() *metrics.Registry {
	n := atomic.AddUint64(&testRegistryCounter, 1)
	return metrics.New(fmt.Sprintf("svctest%d", n))
}

type fakeSink struct {
	calls []decision.Input
	err   error
}

func (f *fakeSink) Log(input decision.Input) (*storage.DecisionRecord, error) {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, f.err
	}
	return &storage.DecisionRecord{ID: int64(len(f.calls))}, nil
}

func newFakeGraphClientForService(t *testing.T, neighborhood graph.NeighborhoodResponse) *graph.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/services/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(neighborhood)
	})
	mux.HandleFunc("/graph/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(graph.HealthResponse{Status: "ok", WindowMinutes: 5})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return graph.NewClient(config.GraphAPIConfig{BaseURL: srv.URL, TimeoutMs: 2000})
}

func TestRunFailureSimulationLogsDecisionOnSuccess(t *testing.T) {
	neighborhood := graph.NeighborhoodResponse{
		Center: "payments",
		Nodes: []graph.GraphNode{
			{Name: "checkout", Namespace: "prod"},
			{Name: "payments", Namespace: "prod"},
		},
		Edges: []graph.GraphEdge{{From: "checkout", To: "payments", Rate: 10, P95: 20}},
	}
	client := newFakeGraphClientForService(t, neighborhood)
	sink := &fakeSink{}
	svc := NewService(&config.Config{}, client, sink, newTestRegistry())

	_, err := svc.RunFailureSimulation(context.Background(), FailureSimulationRequest{ServiceId: "prod:payments"})
	require.NoError(t, err)
	require.Len(t, sink.calls, 1)
	require.Equal(t, "failure", sink.calls[0].Type)
}

func TestRunFailureSimulationDoesNotLogOnError(t *testing.T) {
	client := newFakeGraphClientForService(t, graph.NeighborhoodResponse{})
	sink := &fakeSink{}
	svc := NewService(&config.Config{}, client, sink, newTestRegistry())

	_, err := svc.RunFailureSimulation(context.Background(), FailureSimulationRequest{})
	require.Error(t, err)
	require.Empty(t, sink.calls)
}

func TestRunFailureSimulationSwallowsSinkErrors(t *testing.T) {
	neighborhood := graph.NeighborhoodResponse{
		Center: "payments",
		Nodes: []graph.GraphNode{
			{Name: "checkout", Namespace: "prod"},
			{Name: "payments", Namespace: "prod"},
		},
		Edges: []graph.GraphEdge{{From: "checkout", To: "payments", Rate: 10, P95: 20}},
	}
	client := newFakeGraphClientForService(t, neighborhood)
	sink := &fakeSink{err: fmt.Errorf("disk full")}
	svc := NewService(&config.Config{}, client, sink, newTestRegistry())

	result, err := svc.RunFailureSimulation(context.Background(), FailureSimulationRequest{ServiceId: "prod:payments"})
	require.NoError(t, err, "a decision-sink failure must never fail the simulation itself")
	require.NotNil(t, result)
}

func TestRunFailureSimulationForcesTraceWhenConfiguredDefault(t *testing.T) {
	neighborhood := graph.NeighborhoodResponse{
		Center: "payments",
		Nodes: []graph.GraphNode{
			{Name: "checkout", Namespace: "prod"},
			{Name: "payments", Namespace: "prod"},
		},
		Edges: []graph.GraphEdge{{From: "checkout", To: "payments", Rate: 10, P95: 20}},
	}
	client := newFakeGraphClientForService(t, neighborhood)
	cfg := &config.Config{Trace: config.TraceConfig{DefaultEnabled: true}}
	svc := NewService(cfg, client, nil, newTestRegistry())

	result, err := svc.RunFailureSimulation(context.Background(), FailureSimulationRequest{ServiceId: "prod:payments"})
	require.NoError(t, err)
	require.NotNil(t, result.Trace)
}

func TestRunScalingSimulationLogsDecisionOnSuccess(t *testing.T) {
	neighborhood := graph.NeighborhoodResponse{
		Center: "payments",
		Nodes: []graph.GraphNode{
			{Name: "checkout", Namespace: "prod"},
			{Name: "payments", Namespace: "prod"},
		},
		Edges: []graph.GraphEdge{{From: "checkout", To: "payments", Rate: 10, P95: 200}},
	}
	client := newFakeGraphClientForService(t, neighborhood)
	sink := &fakeSink{}
	cfg := &config.Config{Simulation: config.SimulationConfig{
		DefaultLatencyMetric: "p95", MaxTraversalDepth: 2, ScalingModel: "bounded_sqrt",
		ScalingAlpha: 0.5, MinLatencyFactor: 0.1, MaxPathsReturned: 5,
	}}
	svc := NewService(cfg, client, sink, newTestRegistry())

	_, err := svc.RunScalingSimulation(context.Background(), ScalingSimulationRequest{
		ServiceId: "prod:payments", CurrentPods: 2, NewPods: 4,
	})
	require.NoError(t, err)
	require.Len(t, sink.calls, 1)
	require.Equal(t, "scaling", sink.calls[0].Type)
}
