// Package risk implements C8, the top-risk-services ranking: centrality
// scores from the graph provider are turned into a risk level per service
// by percentile rank within the returned top-N set (not within the full
// service population — the provider only ever discloses the top-N, so
// ranking against the undisclosed denominator is not possible).
package risk

import (
	"context"
	"fmt"
	"strings"

	"topology-sim-engine/pkg/clients/graph"
)

// Thresholds defines the percentile cutoffs that separate "high", "medium"
// and "low" risk within a returned top-N set. Threaded through explicitly
// rather than read off package constants so a caller (or, in future, a
// config-driven policy) can tune banding per deployment the same way
// pkg/simulation's recommendation thresholds are tunable.
type Thresholds struct {
	High   float64
	Medium float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.2, Medium: 0.5}
}

func GetTopRiskServices(ctx context.Context, client *graph.Client, metric string, limit int) (*graph.TopCentralityResponse, error) {
	thresholds := DefaultThresholds()

	centralityResult, err := client.GetCentralityTop(ctx, metric, limit)
	if err != nil {
		return nil, err
	}

	healthResult, healthErr := client.CheckHealth(ctx)

	var dataFreshness graph.DataFreshness
	confidence := "unknown"
	if healthErr == nil && healthResult != nil {
		dataFreshness = graph.DataFreshness{
			Source:                "graph-engine",
			Stale:                 healthResult.Stale,
			LastUpdatedSecondsAgo: healthResult.LastUpdatedSecondsAgo,
			WindowMinutes:         healthResult.WindowMinutes,
		}
		confidence = "high"
		if healthResult.Stale {
			confidence = "low"
		}
	}

	topServices := centralityResult.Top
	if topServices == nil {
		topServices = []graph.CentralityScore{}
	}
	total := len(topServices)

	scoreSpread := 0.0
	if total > 0 {
		minScore, maxScore := topServices[0].Value, topServices[0].Value
		for _, item := range topServices {
			if item.Value < minScore {
				minScore = item.Value
			}
			if item.Value > maxScore {
				maxScore = item.Value
			}
		}
		scoreSpread = maxScore - minScore
	}

	services := make([]graph.CentralityServiceInfo, 0, total)
	for rank, item := range topServices {
		score := item.Value
		riskLevel, percentile := determineRiskLevel(score, rank, total, thresholds)

		id, name, namespace := parseServiceIdentifier(item.Service)
		explanation := generateExplanation(name, metric, score, riskLevel, percentile, thresholds)

		services = append(services, graph.CentralityServiceInfo{
			ServiceId:       id,
			Name:            name,
			Namespace:       namespace,
			CentralityScore: score,
			RiskLevel:       riskLevel,
			Explanation:     explanation,
		})
	}

	return &graph.TopCentralityResponse{
		Metric:        metric,
		Services:      services,
		DataFreshness: dataFreshness,
		Confidence:    confidence,
		ScoreSpread:   scoreSpread,
	}, nil
}

// determineRiskLevel ranks a service by its position within the returned
// top-N list: percentile = rank / total. A zero or negative score is
// never risky regardless of its rank. Returns the level plus the
// percentile itself so callers (generateExplanation) can describe how
// close the service sits to the next band without recomputing it.
func determineRiskLevel(score float64, rank int, total int, thresholds Thresholds) (string, float64) {
	if total == 0 || score <= 0 {
		return "low", 1.0
	}
	percentile := float64(rank) / float64(total)

	if percentile < thresholds.High {
		return "high", percentile
	}
	if percentile < thresholds.Medium {
		return "medium", percentile
	}
	return "low", percentile
}

// borderlineMargin is how close a percentile must sit to a band boundary
// before the explanation calls it out as borderline instead of giving a
// flat verdict.
const borderlineMargin = 0.05

func generateExplanation(name, metric string, score float64, riskLevel string, percentile float64, thresholds Thresholds) string {
	metricLabel := "betweenness centrality"
	if metric == "pagerank" {
		metricLabel = "PageRank"
	}

	valStr := fmt.Sprintf("%.4f", score)

	nearBoundary := func(boundary float64) bool {
		d := percentile - boundary
		if d < 0 {
			d = -d
		}
		return d < borderlineMargin
	}

	switch riskLevel {
	case "high":
		if nearBoundary(thresholds.High) {
			return fmt.Sprintf("%s has high %s (%s), but sits near the medium-risk boundary. Failure impact could still cascade; re-check after the next topology change.", name, metricLabel, valStr)
		}
		return fmt.Sprintf("%s has high %s (%s), indicating it is a critical hub. Failure could cascade widely.", name, metricLabel, valStr)
	case "medium":
		if nearBoundary(thresholds.Medium) {
			return fmt.Sprintf("%s has moderate %s (%s), close to dropping into the low-risk band. Monitor for dependencies.", name, metricLabel, valStr)
		}
		return fmt.Sprintf("%s has moderate %s (%s). Monitor for dependencies.", name, metricLabel, valStr)
	default:
		return fmt.Sprintf("%s has low %s (%s). Lower risk of cascade.", name, metricLabel, valStr)
	}
}

func parseServiceIdentifier(raw string) (serviceId, name, namespace string) {
	if strings.Contains(raw, ":") {
		parts := strings.SplitN(raw, ":", 2)
		return raw, parts[1], parts[0]
	}
	return fmt.Sprintf("default:%s", raw), raw, "default"
}
