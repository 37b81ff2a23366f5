package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"topology-sim-engine/pkg/apperr"
	"topology-sim-engine/pkg/config"
)

func TestCheckHealthSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","windowMinutes":5,"stale":false,"lastUpdatedSecondsAgo":2}`))
	}))
	defer srv.Close()

	client := NewClient(config.GraphAPIConfig{BaseURL: srv.URL, TimeoutMs: 2000})
	resp, err := client.CheckHealth(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)
	require.False(t, resp.Stale)
}

func TestGetCentralityTopRejectsInvalidMetricBeforeCallingOut(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(config.GraphAPIConfig{BaseURL: srv.URL, TimeoutMs: 2000})
	_, err := client.GetCentralityTop(context.Background(), "not-a-metric", 5)

	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.InvalidInput, appErr.Kind)
	require.False(t, called, "an invalid metric must never reach the wire")
}

func TestGetNonOKStatusMapsToProviderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	client := NewClient(config.GraphAPIConfig{BaseURL: srv.URL, TimeoutMs: 2000})
	_, err := client.CheckHealth(context.Background())

	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.ProviderUpstreamError, appErr.Kind)
	require.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestGetInvalidJSONMapsToDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := NewClient(config.GraphAPIConfig{BaseURL: srv.URL, TimeoutMs: 2000})
	_, err := client.CheckHealth(context.Background())

	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.DecodeError, appErr.Kind)
}

func TestGetContextDeadlineMapsToProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(config.GraphAPIConfig{BaseURL: srv.URL, TimeoutMs: 2000})
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()

	_, err := client.CheckHealth(ctx)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.ProviderTimeout, appErr.Kind)
}

func TestOpenBreakerMapsToProviderUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClientWithBreaker(
		config.GraphAPIConfig{BaseURL: srv.URL, TimeoutMs: 2000},
		config.BreakerConfig{MaxRequestsHalfOpen: 1, OpenTimeoutMs: 60000, ConsecutiveFailures: 1},
		nil,
	)

	// first call trips the breaker (consecutive failure threshold 1).
	_, err := client.CheckHealth(context.Background())
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, client.State())

	// second call must fail fast with ProviderUnavailable without hitting the wire.
	_, err = client.CheckHealth(context.Background())
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.ProviderUnavailable, appErr.Kind)
}

func TestStateStaysClosedOnHealthyCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var observed []gobreaker.State
	client := NewClientWithBreaker(
		config.GraphAPIConfig{BaseURL: srv.URL, TimeoutMs: 2000},
		config.BreakerConfig{MaxRequestsHalfOpen: 1, OpenTimeoutMs: 60000, ConsecutiveFailures: 5},
		func(name string, state gobreaker.State) { observed = append(observed, state) },
	)

	_, err := client.CheckHealth(context.Background())
	require.NoError(t, err)
	require.Equal(t, gobreaker.StateClosed, client.State())
	require.Empty(t, observed, "no state transition should fire on a healthy closed-state call")
}
