package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"topology-sim-engine/pkg/apperr"
	"topology-sim-engine/pkg/common"
	"topology-sim-engine/pkg/config"
	"topology-sim-engine/pkg/logger"
)

// Client is the graph-provider adapter (C1). Every outbound call is bound
// to the configured per-call timeout, forwards the request's correlation
// id, and is routed through a circuit breaker so a provider outage fails
// fast instead of piling up blocked goroutines behind a dead dependency.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	onState    func(name string, state gobreaker.State)
}

func NewClient(cfg config.GraphAPIConfig) *Client {
	return NewClientWithBreaker(cfg, config.BreakerConfig{
		MaxRequestsHalfOpen: 1,
		OpenTimeoutMs:       30000,
		ConsecutiveFailures: 5,
	}, nil)
}

func NewClientWithBreaker(cfg config.GraphAPIConfig, bcfg config.BreakerConfig, onState func(name string, state gobreaker.State)) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	settings := gobreaker.Settings{
		Name:        "graph-provider",
		MaxRequests: bcfg.MaxRequestsHalfOpen,
		Timeout:     time.Duration(bcfg.OpenTimeoutMs) * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bcfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit_breaker_state_change", map[string]interface{}{
				"name": name, "from": from.String(), "to": to.String(),
			})
			if onState != nil {
				onState(name, to)
			}
		},
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		},
		breaker: gobreaker.NewCircuitBreaker(settings),
		onState: onState,
	}
}

// State reports the current breaker state for health/metrics reporting.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) CheckHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/graph/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetServices(ctx context.Context) ([]ServiceInfo, error) {
	var wrapper struct {
		Services []ServiceInfo `json:"services"`
	}
	if err := c.get(ctx, "/services", &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Services, nil
}

// GetServicesWithPlacement is identical to GetServices but documents the
// call site that specifically wants placement data (GET /services is the
// same payload either way; the distinction lives in how the caller uses
// the Placement field).
func (c *Client) GetServicesWithPlacement(ctx context.Context) ([]ServiceInfo, error) {
	return c.GetServices(ctx)
}

func (c *Client) GetNeighborhood(ctx context.Context, serviceName string, k int) (*NeighborhoodResponse, error) {
	path := fmt.Sprintf("/services/%s/neighborhood?k=%d", url.PathEscape(serviceName), k)
	var resp NeighborhoodResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetMetricsSnapshot(ctx context.Context) (*MetricsSnapshotResponse, error) {
	var resp MetricsSnapshotResponse
	if err := c.get(ctx, "/metrics/snapshot", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

var validCentralityMetrics = map[string]bool{"pagerank": true, "betweenness": true}

// GetCentralityTop rejects any metric outside {pagerank, betweenness}
// before issuing the request, per §4.1.
func (c *Client) GetCentralityTop(ctx context.Context, metric string, limit int) (*CentralityTopResponse, error) {
	if !validCentralityMetrics[metric] {
		return nil, apperr.Invalid("invalid metric %q: allowed values are pagerank, betweenness", metric)
	}
	path := fmt.Sprintf("/centrality/top?metric=%s&limit=%d", metric, limit)
	var resp CentralityTopResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetCentralityScores(ctx context.Context) (*CentralityScoresResponse, error) {
	var resp CentralityScoresResponse
	if err := c.get(ctx, "/centrality", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// get issues a GET through the circuit breaker and decodes the response
// into dest, translating every failure mode into an *apperr.Error so
// callers branch on Kind rather than sniffing strings.
func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	reqURL := c.baseURL + path

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doGet(ctx, reqURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return apperr.Wrap(apperr.ProviderUnavailable, fmt.Sprintf("circuit open for %s", reqURL), err)
		}
		// doGet already returns a typed *apperr.Error; pass it through.
		return err
	}

	if err := json.Unmarshal(body.([]byte), dest); err != nil {
		return apperr.Wrap(apperr.DecodeError, fmt.Sprintf("invalid JSON response from %s", reqURL), err)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "create request failed", err)
	}

	if cid, ok := ctx.Value(common.CorrelationIDKey).(string); ok {
		req.Header.Set("X-Correlation-Id", cid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			logger.Error(fmt.Sprintf("[graph] timeout for %s", reqURL), err)
			return nil, apperr.Wrap(apperr.ProviderTimeout, fmt.Sprintf("timeout calling %s", reqURL), err)
		}
		logger.Error(fmt.Sprintf("[graph] request failed for %s", reqURL), err)
		return nil, apperr.Wrap(apperr.ProviderUnavailable, fmt.Sprintf("unreachable: %s", reqURL), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecodeError, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error(fmt.Sprintf("[graph] HTTP %d for %s", resp.StatusCode, reqURL), nil)
		e := &apperr.Error{
			Kind:    apperr.ProviderUpstreamError,
			Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, reqURL),
			Status:  resp.StatusCode,
		}
		return nil, e
	}

	return data, nil
}
