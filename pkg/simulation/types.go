package simulation

import (
	"topology-sim-engine/pkg/config"
	"topology-sim-engine/pkg/trace"
)

const (
	MaxTraversalDepth = 2
	MaxPathsReturned  = 5
)

// effectiveSimulationConfig returns defaultSimulationConfig() when cfg is
// nil; otherwise it takes cfg.Simulation and fills every zero-valued field
// that has no usable zero (timeout, traversal depth, latency metric,
// scaling model, path cap, recommendation and scaling-benefit thresholds)
// with defaultSimulationConfig's value, so callers (and tests) that don't
// wire a full *config.Config still get a valid depth, a sane wall-clock
// guard and recommendation thresholds instead of racing against a 0ms
// timeout or firing every threshold immediately. ScalingAlpha and
// MinLatencyFactor are taken from cfg as given. These fallbacks are this
// package's own and differ from config.Load's defaults in places (for
// example MaxPathsReturned).
func effectiveSimulationConfig(cfg *config.Config) config.SimulationConfig {
	if cfg == nil {
		return defaultSimulationConfig()
	}
	sc := cfg.Simulation
	if sc.TimeoutMs == 0 {
		sc.TimeoutMs = 8000
	}
	if sc.MaxTraversalDepth == 0 {
		sc.MaxTraversalDepth = MaxTraversalDepth
	}
	if sc.DefaultLatencyMetric == "" {
		sc.DefaultLatencyMetric = "p95"
	}
	if sc.ScalingModel == "" {
		sc.ScalingModel = "bounded_sqrt"
	}
	if sc.MaxPathsReturned == 0 {
		sc.MaxPathsReturned = MaxPathsReturned
	}
	if sc.RecommendCriticalRps == 0 {
		sc.RecommendCriticalRps = 100.0
	}
	if sc.RecommendHighRps == 0 {
		sc.RecommendHighRps = 50.0
	}
	if sc.RecommendMediumRps == 0 {
		sc.RecommendMediumRps = 10.0
	}
	if sc.ScalingBenefitThresholdMs == 0 {
		sc.ScalingBenefitThresholdMs = 10.0
	}
	return sc
}

func defaultSimulationConfig() config.SimulationConfig {
	return config.SimulationConfig{
		DefaultLatencyMetric:      "p95",
		MaxTraversalDepth:         MaxTraversalDepth,
		ScalingModel:              "bounded_sqrt",
		ScalingAlpha:              0.5,
		MinLatencyFactor:          0.1,
		TimeoutMs:                 8000,
		MaxPathsReturned:          MaxPathsReturned,
		RecommendCriticalRps:      100.0,
		RecommendHighRps:          50.0,
		RecommendMediumRps:        10.0,
		ScalingBenefitThresholdMs: 10.0,
	}
}

type FailureSimulationRequest struct {
	ServiceId string `json:"serviceId"`
	Name      string `json:"name,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Depth     int    `json:"maxDepth,omitempty"`
	Trace     bool   `json:"trace,omitempty"`
}

type FailureSimulationResult struct {
	Target              ServiceRef              `json:"target"`
	Neighborhood        NeighborhoodMeta        `json:"neighborhood"`
	DataFreshness       *DataFreshness          `json:"dataFreshness"`
	Confidence          string                  `json:"confidence"`
	Explanation         string                  `json:"explanation"`
	AffectedCallers     []AffectedCaller        `json:"affectedCallers"`
	AffectedDownstream  []AffectedDownstream    `json:"affectedDownstream"`
	UnreachableServices []UnreachableService    `json:"unreachableServices"`
	CriticalPaths       []BrokenPath            `json:"criticalPathsToTarget"`
	TotalLostTrafficRps float64                 `json:"totalLostTrafficRps"`
	Recommendations     []FailureRecommendation `json:"recommendations"`
	Trace               *trace.Trace            `json:"trace,omitempty"`
}

type ServiceRef struct {
	ServiceId string `json:"serviceId"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

type NeighborhoodMeta struct {
	Description  string `json:"description"`
	ServiceCount int    `json:"serviceCount"`
	EdgeCount    int    `json:"edgeCount"`
	DepthUsed    int    `json:"depthUsed"`
	GeneratedAt  string `json:"generatedAt"`
}

type DataFreshness struct {
	Source                string `json:"source"`
	Stale                 bool   `json:"stale"`
	LastUpdatedSecondsAgo int    `json:"lastUpdatedSecondsAgo"`
	WindowMinutes         int    `json:"windowMinutes"`
}

type AffectedCaller struct {
	ServiceId      string  `json:"serviceId"`
	Name           string  `json:"name"`
	Namespace      string  `json:"namespace"`
	LostTrafficRps float64 `json:"lostTrafficRps"`
	EdgeErrorRate  float64 `json:"edgeErrorRate"`
}

type AffectedDownstream struct {
	ServiceId      string  `json:"serviceId"`
	Name           string  `json:"name"`
	Namespace      string  `json:"namespace"`
	LostTrafficRps float64 `json:"lostTrafficRps"`
	EdgeErrorRate  float64 `json:"edgeErrorRate"`
}

type UnreachableService struct {
	ServiceId                string  `json:"serviceId"`
	Name                     string  `json:"name"`
	Namespace                string  `json:"namespace"`
	LostTrafficRps           float64 `json:"lostTrafficRps"`
	LostFromTargetRps        float64 `json:"lostFromTargetRps"`
	LostFromReachableCutsRps float64 `json:"lostFromReachableCutsRps"`
}

type BrokenPath struct {
	Path    []string `json:"path"`
	PathRps float64  `json:"pathRps"`
}

type FailureRecommendation struct {
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Target   string `json:"target,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Action   string `json:"action,omitempty"`
}

type ScalingModel struct {
	Type  string   `json:"type"`
	Alpha *float64 `json:"alpha,omitempty"`
}

type ScalingSimulationRequest struct {
	ServiceId     string        `json:"serviceId"`
	Name          string        `json:"name,omitempty"`
	Namespace     string        `json:"namespace,omitempty"`
	CurrentPods   int           `json:"currentPods"`
	NewPods       int           `json:"newPods"`
	LatencyMetric string        `json:"latencyMetric,omitempty"`
	Model         *ScalingModel `json:"model,omitempty"`
	MaxDepth      int           `json:"maxDepth,omitempty"`
	Trace         bool          `json:"trace,omitempty"`
}

type ScalingLatencyEstimate struct {
	Description string   `json:"description"`
	BaselineMs  *float64 `json:"baselineMs"`
	ProjectedMs *float64 `json:"projectedMs"`
	DeltaMs     *float64 `json:"deltaMs"`
	Unit        string   `json:"unit"`
}

type AffectedCallerScaling struct {
	ServiceId        string   `json:"serviceId"`
	Name             string   `json:"name"`
	Namespace        string   `json:"namespace"`
	HopDistance      int      `json:"hopDistance"`
	BeforeMs         *float64 `json:"beforeMs"`
	AfterMs          *float64 `json:"afterMs"`
	DeltaMs          *float64 `json:"deltaMs"`
	EndToEndBeforeMs *float64 `json:"endToEndBeforeMs"`
	EndToEndAfterMs  *float64 `json:"endToEndAfterMs"`
	EndToEndDeltaMs  *float64 `json:"endToEndDeltaMs"`
	ViaPath          []string `json:"viaPath"`
}

type AffectedPathScaling struct {
	Path           []string `json:"path"`
	PathRps        float64  `json:"pathRps"`
	BeforeMs       *float64 `json:"beforeMs"`
	AfterMs        *float64 `json:"afterMs"`
	DeltaMs        *float64 `json:"deltaMs"`
	IncompleteData bool     `json:"incompleteData"`
}

type ScalingSimulationResult struct {
	Target           ServiceRef              `json:"target"`
	Neighborhood     NeighborhoodMeta        `json:"neighborhood"`
	DataFreshness    *DataFreshness          `json:"dataFreshness"`
	Confidence       string                  `json:"confidence"`
	Explanation      string                  `json:"explanation,omitempty"`
	Warnings         []string                `json:"warnings,omitempty"`
	LatencyMetric    string                  `json:"latencyMetric"`
	ScalingModel     ScalingModel            `json:"scalingModel"`
	CurrentPods      int                     `json:"currentPods"`
	NewPods          int                     `json:"newPods"`
	ScalingDirection string                  `json:"scalingDirection"`
	LatencyEstimate  ScalingLatencyEstimate  `json:"latencyEstimate"`
	AffectedCallers  AffectedCallersList     `json:"affectedCallers"`
	AffectedPaths    []AffectedPathScaling   `json:"affectedPaths"`
	Recommendations  []FailureRecommendation `json:"recommendations"`
	Trace            *trace.Trace            `json:"trace,omitempty"`
}

type AffectedCallersList struct {
	Description string                  `json:"description"`
	Items       []AffectedCallerScaling `json:"items"`
}
