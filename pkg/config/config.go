package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Simulation      SimulationConfig
	Server          ServerConfig
	GraphAPI        GraphAPIConfig
	RateLimit       RateLimitConfig
	Influx          InfluxConfig
	SQLite          SQLiteConfig
	TelemetryWorker TelemetryWorkerConfig
	Telemetry       TelemetryConfig
	Breaker         BreakerConfig
	Metrics         MetricsConfig
	Trace           TraceConfig
}

type SimulationConfig struct {
	DefaultLatencyMetric string
	MaxTraversalDepth    int
	ScalingModel         string
	ScalingAlpha         float64
	MinLatencyFactor     float64
	TimeoutMs            int
	MaxPathsReturned     int

	// Recommendation-policy thresholds (C7). Configurable so the business
	// rule for "how much lost traffic counts as critical" can be tuned per
	// deployment instead of living as a compiled-in constant.
	RecommendCriticalRps float64
	RecommendHighRps     float64
	RecommendMediumRps   float64

	// ScalingBenefitThresholdMs is the minimum |latency delta| a scale-up
	// must produce before it stops being flagged as low cost-benefit.
	ScalingBenefitThresholdMs float64
}

type ServerConfig struct {
	Port int
}

type GraphAPIConfig struct {
	BaseURL   string
	TimeoutMs int
}

type RateLimitConfig struct {
	WindowMs    int
	MaxRequests int
}

type InfluxConfig struct {
	Host     string
	Token    string
	Database string
}

type SQLiteConfig struct {
	DBPath string
}

type TelemetryWorkerConfig struct {
	Enabled        bool
	PollIntervalMs int
}

type TelemetryConfig struct {
	Enabled bool
}

// BreakerConfig tunes the circuit breaker wrapping outbound graph-provider
// calls (pkg/clients/graph).
type BreakerConfig struct {
	MaxRequestsHalfOpen uint32
	OpenTimeoutMs       int
	ConsecutiveFailures uint32
}

type MetricsConfig struct {
	Namespace string
}

// TraceConfig controls whether the C9 pipeline trace is attached to
// responses by default. When DefaultEnabled is true every simulation
// response carries the trace, including requests that send "trace": false.
type TraceConfig struct {
	DefaultEnabled bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Simulation: SimulationConfig{
			DefaultLatencyMetric: getEnv("DEFAULT_LATENCY_METRIC", "p95"),
			MaxTraversalDepth:    getEnvInt("MAX_TRAVERSAL_DEPTH", 2),
			ScalingModel:         getEnv("SCALING_MODEL", "bounded_sqrt"),
			ScalingAlpha:         getEnvFloat("SCALING_ALPHA", 0.5),
			MinLatencyFactor:     getEnvFloat("MIN_LATENCY_FACTOR", 0.6),
			TimeoutMs:            getEnvInt("TIMEOUT_MS", 8000),
			MaxPathsReturned:     getEnvInt("MAX_PATHS_RETURNED", 10),

			RecommendCriticalRps: getEnvFloat("RECOMMEND_CRITICAL_RPS", 100.0),
			RecommendHighRps:     getEnvFloat("RECOMMEND_HIGH_RPS", 50.0),
			RecommendMediumRps:   getEnvFloat("RECOMMEND_MEDIUM_RPS", 10.0),

			ScalingBenefitThresholdMs: getEnvFloat("SCALING_BENEFIT_THRESHOLD_MS", 10.0),
		},
		Server: ServerConfig{
			Port: getEnvInt("PORT", 5000),
		},
		GraphAPI: GraphAPIConfig{
			BaseURL:   getGraphBaseURL(),
			TimeoutMs: getEnvInt("GRAPH_API_TIMEOUT_MS", 5000),
		},
		RateLimit: RateLimitConfig{
			WindowMs:    getEnvInt("RATE_LIMIT_WINDOW_MS", 60000),
			MaxRequests: getEnvInt("RATE_LIMIT_MAX", 60),
		},
		Influx: InfluxConfig{
			Host:     getEnv("INFLUX_HOST", ""),
			Token:    getEnv("INFLUX_TOKEN", ""),
			Database: getEnv("INFLUX_DATABASE", ""),
		},
		SQLite: SQLiteConfig{
			DBPath: getEnv("SQLITE_DB_PATH", "./data/decisions.db"),
		},
		TelemetryWorker: TelemetryWorkerConfig{
			Enabled:        getEnv("TELEMETRY_WORKER_ENABLED", "true") != "false",
			PollIntervalMs: getEnvInt("TELEMETRY_POLL_INTERVAL_MS", 60000),
		},
		Telemetry: TelemetryConfig{
			Enabled: getEnv("TELEMETRY_ENABLED", "true") != "false",
		},
		Breaker: BreakerConfig{
			MaxRequestsHalfOpen: uint32(getEnvInt("BREAKER_MAX_HALF_OPEN_REQUESTS", 1)),
			OpenTimeoutMs:       getEnvInt("BREAKER_OPEN_TIMEOUT_MS", 30000),
			ConsecutiveFailures: uint32(getEnvInt("BREAKER_CONSECUTIVE_FAILURES", 5)),
		},
		Metrics: MetricsConfig{
			Namespace: getEnv("METRICS_NAMESPACE", "topology_sim"),
		},
		Trace: TraceConfig{
			DefaultEnabled: getEnv("TRACE_DEFAULT_ENABLED", "false") == "true",
		},
	}

	return cfg, nil
}

func ValidateEnv() error {
	v1 := os.Getenv("GRAPH_ENGINE_BASE_URL")
	v2 := os.Getenv("SERVICE_GRAPH_ENGINE_URL")

	if v1 == "" && v2 == "" {
		return fmt.Errorf("GRAPH_ENGINE_BASE_URL (or SERVICE_GRAPH_ENGINE_URL) is required")
	}
	return nil
}

func getGraphBaseURL() string {
	if v := os.Getenv("GRAPH_ENGINE_BASE_URL"); v != "" {
		return v
	}
	if v := os.Getenv("SERVICE_GRAPH_ENGINE_URL"); v != "" {
		return v
	}
	return "http://service-graph-engine:3000"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
