package simulation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"topology-sim-engine/pkg/apperr"
	"topology-sim-engine/pkg/clients/graph"
	"topology-sim-engine/pkg/config"
	"topology-sim-engine/pkg/snapshot"
)

func TestApplyBoundedSqrtScalingDoublingPodsWorkedExample(t *testing.T) {
	// baseline 200ms, doubling pod count (2 -> 4), alpha 0.5:
	// improvement = 1/sqrt(2) = 0.70710678
	// newLatency = 200 * (0.5 + 0.5*0.70710678) = 170.71...
	got := applyBoundedSqrtScaling(200, 2, 4, 0.5, 0.1)
	require.InDelta(t, 170.71, got, 0.05)
}

func TestApplyBoundedSqrtScalingNeverGoesBelowMinLatencyFactor(t *testing.T) {
	// massive scale-up with alpha=0 would normally crater latency; the
	// min-latency floor must still hold.
	got := applyBoundedSqrtScaling(200, 1, 1000, 0, 0.1)
	require.GreaterOrEqual(t, got, 200*0.1)
}

func TestApplyLinearScalingDownDoublesLatency(t *testing.T) {
	// baseline 50ms, halving pods (2 -> 1): latency doubles to 100ms.
	got := applyLinearScaling(50, 2, 1)
	require.InDelta(t, 100.0, got, 1e-9)
}

func TestComputeWeightedMeanLatencyIgnoresZeroRateEdges(t *testing.T) {
	p1, p2 := 10.0, 20.0
	edges := []*snapshot.Edge{
		{Source: "a", Target: "target", Rate: 0, P95: &p1},
		{Source: "b", Target: "target", Rate: 5, P95: &p2},
	}

	mean := computeWeightedMeanLatency(edges, "p95", nil)
	require.NotNil(t, mean)
	require.InDelta(t, 20.0, *mean, 1e-9)
}

func TestComputeWeightedMeanLatencyReturnsNilWhenAnyEdgeMissingMetric(t *testing.T) {
	p1 := 10.0
	edges := []*snapshot.Edge{
		{Source: "a", Target: "target", Rate: 5, P95: &p1},
		{Source: "b", Target: "target", Rate: 5, P95: nil},
	}

	mean := computeWeightedMeanLatency(edges, "p95", nil)
	require.Nil(t, mean)
}

func newFakeGraphClientForScaling(t *testing.T, neighborhood graph.NeighborhoodResponse) *graph.Client {
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

func testConfig() *config.Config {
	return &config.Config{
		Simulation: config.SimulationConfig{
			DefaultLatencyMetric: "p95",
			MaxTraversalDepth:    2,
			ScalingModel:         "bounded_sqrt",
			ScalingAlpha:         0.5,
			MinLatencyFactor:     0.1,
			MaxPathsReturned:     5,
		},
	}
}

func TestSimulateScalingBoundedSqrtWorkedExample(t *testing.T) {
	neighborhood := graph.NeighborhoodResponse{
		Center: "payments",
		Nodes: []graph.GraphNode{
			{Name: "checkout", Namespace: "prod"},
			{Name: "payments", Namespace: "prod"},
		},
		Edges: []graph.GraphEdge{
			{From: "checkout", To: "payments", Rate: 10, P95: 200},
		},
	}
	client := newFakeGraphClientForScaling(t, neighborhood)
	cfg := testConfig()

	req := ScalingSimulationRequest{
		ServiceId:   "prod:payments",
		CurrentPods: 2,
		NewPods:     4,
	}

	result, err := SimulateScaling(context.Background(), client, cfg, req)
	require.NoError(t, err)
	require.NotNil(t, result.LatencyEstimate.BaselineMs)
	require.InDelta(t, 200.0, *result.LatencyEstimate.BaselineMs, 1e-9)
	require.NotNil(t, result.LatencyEstimate.ProjectedMs)
	require.InDelta(t, 170.71, *result.LatencyEstimate.ProjectedMs, 0.05)
	require.NotNil(t, result.LatencyEstimate.DeltaMs)
	require.InDelta(t, -29.29, *result.LatencyEstimate.DeltaMs, 0.05)
	require.Equal(t, "up", result.ScalingDirection)
}

func TestSimulateScalingLinearWorkedExample(t *testing.T) {
	neighborhood := graph.NeighborhoodResponse{
		Center: "payments",
		Nodes: []graph.GraphNode{
			{Name: "checkout", Namespace: "prod"},
			{Name: "payments", Namespace: "prod"},
		},
		Edges: []graph.GraphEdge{
			{From: "checkout", To: "payments", Rate: 10, P95: 50},
		},
	}
	client := newFakeGraphClientForScaling(t, neighborhood)
	cfg := testConfig()

	alpha := 0.5
	req := ScalingSimulationRequest{
		ServiceId:   "prod:payments",
		CurrentPods: 2,
		NewPods:     1,
		Model:       &ScalingModel{Type: "linear", Alpha: &alpha},
	}

	result, err := SimulateScaling(context.Background(), client, cfg, req)
	require.NoError(t, err)
	require.InDelta(t, 50.0, *result.LatencyEstimate.BaselineMs, 1e-9)
	require.InDelta(t, 100.0, *result.LatencyEstimate.ProjectedMs, 1e-9)
	require.InDelta(t, 50.0, *result.LatencyEstimate.DeltaMs, 1e-9)
	require.Equal(t, "down", result.ScalingDirection)
}

func TestSimulateScalingRejectsInvalidParameters(t *testing.T) {
	client := newFakeGraphClientForScaling(t, graph.NeighborhoodResponse{})
	cfg := testConfig()

	_, err := SimulateScaling(context.Background(), client, cfg, ScalingSimulationRequest{
		ServiceId:   "prod:payments",
		CurrentPods: 0,
		NewPods:     2,
	})
	require.Error(t, err)

	_, err = SimulateScaling(context.Background(), client, cfg, ScalingSimulationRequest{
		ServiceId:   "prod:payments",
		CurrentPods: 2,
		NewPods:     4,
		MaxDepth:    9,
	})
	require.Error(t, err)
}

func TestSimulateScalingWallClockGuardFiresIndependentlyOfPerCallTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/services/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(graph.NeighborhoodResponse{
			Center: "payments",
			Nodes: []graph.GraphNode{
				{Name: "checkout", Namespace: "prod"},
				{Name: "payments", Namespace: "prod"},
			},
			Edges: []graph.GraphEdge{{From: "checkout", To: "payments", Rate: 10, P95: 200}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client := graph.NewClient(config.GraphAPIConfig{BaseURL: srv.URL, TimeoutMs: 5000})

	cfg := testConfig()
	cfg.Simulation.TimeoutMs = 5
	_, err := SimulateScaling(context.Background(), client, cfg, ScalingSimulationRequest{
		ServiceId: "prod:payments", CurrentPods: 2, NewPods: 4,
	})
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.SimulationTimeout, appErr.Kind)
}
