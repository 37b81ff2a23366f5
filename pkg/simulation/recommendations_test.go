package simulation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"topology-sim-engine/pkg/config"
	"topology-sim-engine/pkg/trace"
)

func recommendationTestConfig() config.SimulationConfig {
	return config.SimulationConfig{
		RecommendCriticalRps: 100.0,
		RecommendHighRps:     50.0,
		RecommendMediumRps:   10.0,
	}
}

func TestGenerateFailureRecommendationsCircuitBreakerAboveCriticalThreshold(t *testing.T) {
	result := &FailureSimulationResult{
		Target:              ServiceRef{Name: "payments"},
		Confidence:          "high",
		TotalLostTrafficRps: 150,
	}
	recs := GenerateFailureRecommendations(recommendationTestConfig(), trace.New(false), result)

	var found bool
	for _, r := range recs {
		if r.Type == "circuit-breaker" && r.Priority == "critical" {
			found = true
		}
	}
	require.True(t, found, "total loss above RecommendCriticalRps must trigger a critical circuit-breaker recommendation")
}

func TestGenerateFailureRecommendationsRespectsConfiguredThresholds(t *testing.T) {
	result := &FailureSimulationResult{
		Target:              ServiceRef{Name: "payments"},
		Confidence:          "high",
		TotalLostTrafficRps: 60,
	}

	// below the default 100 RPS critical threshold, no critical recommendation.
	recs := GenerateFailureRecommendations(recommendationTestConfig(), trace.New(false), result)
	for _, r := range recs {
		require.NotEqual(t, "critical", r.Priority)
	}

	// lowering the configured threshold below the observed loss must surface it.
	cfg := recommendationTestConfig()
	cfg.RecommendCriticalRps = 50
	recs = GenerateFailureRecommendations(cfg, trace.New(false), result)
	var found bool
	for _, r := range recs {
		if r.Priority == "critical" {
			found = true
		}
	}
	require.True(t, found, "lowering RecommendCriticalRps below the observed loss must surface a critical recommendation")
}

func TestGenerateFailureRecommendationsLowImpactFallsBackToMonitoring(t *testing.T) {
	result := &FailureSimulationResult{
		Target:     ServiceRef{Name: "payments"},
		Confidence: "high",
	}
	recs := GenerateFailureRecommendations(recommendationTestConfig(), trace.New(false), result)
	require.Len(t, recs, 1)
	require.Equal(t, "monitoring", recs[0].Type)
}

func TestGenerateFailureRecommendationsRecordsPerRuleTraceStages(t *testing.T) {
	result := &FailureSimulationResult{
		Target:              ServiceRef{Name: "payments"},
		Confidence:          "low",
		TotalLostTrafficRps: 150,
	}
	tr := trace.New(true)
	GenerateFailureRecommendations(recommendationTestConfig(), tr, result)

	stages := tr.Snapshot().Stages
	names := make(map[string]bool)
	for _, s := range stages {
		names[s.Name] = true
	}
	require.True(t, names["recommend:data-quality"])
	require.True(t, names["recommend:circuit-breaker"])
	require.True(t, names["recommend:topology-review"])
	require.True(t, names["recommend:graceful-degradation"])
}
