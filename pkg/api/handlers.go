package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"topology-sim-engine/pkg/apperr"
	"topology-sim-engine/pkg/clients/graph"
	"topology-sim-engine/pkg/config"
	"topology-sim-engine/pkg/logger"
	"topology-sim-engine/pkg/risk"
	"topology-sim-engine/pkg/simulation"
)

// Handler holds the collaborators every non-telemetry, non-decisions route
// needs: the graph-provider adapter for reads, and the simulation service
// for the two prediction endpoints.
type Handler struct {
	Config      *config.Config
	GraphClient *graph.Client
	Simulations *simulation.Service
	StartTime   time.Time
}

func NewHandler(cfg *config.Config, graphClient *graph.Client, svc *simulation.Service) *Handler {
	return &Handler{
		Config:      cfg,
		GraphClient: graphClient,
		Simulations: svc,
		StartTime:   time.Now(),
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	uptimeSeconds := time.Since(h.StartTime).Seconds()
	uptimeSeconds = float64(int(uptimeSeconds*10)) / 10.0

	ctx := r.Context()
	graphHealth, err := h.GraphClient.CheckHealth(ctx)

	status := "ok"
	var graphAPI interface{}

	if err == nil {
		graphAPI = map[string]interface{}{
			"connected":             true,
			"status":                graphHealth.Status,
			"stale":                 graphHealth.Stale,
			"lastUpdatedSecondsAgo": graphHealth.LastUpdatedSecondsAgo,
			"baseUrl":               h.Config.GraphAPI.BaseURL,
			"timeoutMs":             h.Config.GraphAPI.TimeoutMs,
			"breakerState":          h.GraphClient.State().String(),
		}
		if graphHealth.Stale {
			status = "degraded"
		}
	} else {
		status = "degraded"
		graphAPI = map[string]interface{}{
			"connected":    false,
			"error":        err.Error(),
			"baseUrl":      h.Config.GraphAPI.BaseURL,
			"timeoutMs":    h.Config.GraphAPI.TimeoutMs,
			"breakerState": h.GraphClient.State().String(),
		}
		if h.GraphClient.State() == gobreaker.StateOpen {
			status = "down"
		}
	}

	resp := map[string]interface{}{
		"status":   status,
		"provider": "graph-engine",
		"graphApi": graphAPI,
		"config": map[string]interface{}{
			"maxTraversalDepth":    h.Config.Simulation.MaxTraversalDepth,
			"defaultLatencyMetric": h.Config.Simulation.DefaultLatencyMetric,
		},
		"telemetry": map[string]interface{}{
			"enabled":       h.Config.Telemetry.Enabled,
			"workerEnabled": h.Config.TelemetryWorker.Enabled,
		},
		"uptimeSeconds": uptimeSeconds,
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) ServicesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	withPlacement := r.URL.Query().Get("placement") == "true"

	type svcResult struct {
		data []graph.ServiceInfo
		err  error
	}
	type healthResult struct {
		data *graph.HealthResponse
		err  error
	}

	svcChan := make(chan svcResult, 1)
	healthChan := make(chan healthResult, 1)

	go func() {
		var s []graph.ServiceInfo
		var e error
		if withPlacement {
			s, e = h.GraphClient.GetServicesWithPlacement(ctx)
		} else {
			s, e = h.GraphClient.GetServices(ctx)
		}
		svcChan <- svcResult{s, e}
	}()

	go func() {
		hr, e := h.GraphClient.CheckHealth(ctx)
		healthChan <- healthResult{hr, e}
	}()

	sRes := <-svcChan
	hRes := <-healthChan

	stale := true
	var lastUpdated *int
	windowMinutes := 5

	if hRes.err == nil {
		stale = hRes.data.Stale
		lastUpdated = &hRes.data.LastUpdatedSecondsAgo
		windowMinutes = hRes.data.WindowMinutes
	}

	if sRes.err != nil {
		logger.Error("failed to fetch services", sRes.err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":                 sRes.err.Error(),
			"services":              []interface{}{},
			"count":                 0,
			"stale":                 true,
			"lastUpdatedSecondsAgo": nil,
			"windowMinutes":         windowMinutes,
		})
		return
	}

	type ServiceItem struct {
		ServiceId    string                  `json:"serviceId"`
		Name         string                  `json:"name"`
		Namespace    string                  `json:"namespace"`
		PodCount     int                     `json:"podCount"`
		Availability float64                 `json:"availability"`
		Placement    *graph.ServicePlacement `json:"placement,omitempty"`
	}

	services := make([]ServiceItem, 0, len(sRes.data))
	for _, s := range sRes.data {
		item := ServiceItem{
			ServiceId:    fmt.Sprintf("%s:%s", s.Namespace, s.Name),
			Name:         s.Name,
			Namespace:    s.Namespace,
			PodCount:     s.PodCount,
			Availability: s.Availability,
		}
		if withPlacement {
			placement := s.Placement
			item.Placement = &placement
		}
		services = append(services, item)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":                 len(services),
		"services":              services,
		"placementIncluded":     withPlacement,
		"stale":                 stale,
		"lastUpdatedSecondsAgo": lastUpdated,
		"windowMinutes":         windowMinutes,
	})
}

func (h *Handler) TopRiskHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "pagerank"
	}

	limitStr := r.URL.Query().Get("limit")
	limit := 5
	if limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
		if limit < 1 {
			limit = 1
		}
		if limit > 20 {
			limit = 20
		}
	}

	result, err := risk.GetTopRiskServices(ctx, h.GraphClient, metric, limit)
	if err != nil {
		writeAppError(w, "risk analysis failed", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) SimulateFailureHandler(w http.ResponseWriter, r *http.Request) {
	var req simulation.FailureSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Simulations.RunFailureSimulation(r.Context(), req)
	if err != nil {
		writeAppError(w, "failure simulation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) SimulateScalingHandler(w http.ResponseWriter, r *http.Request) {
	var req simulation.ScalingSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Simulations.RunScalingSimulation(r.Context(), req)
	if err != nil {
		writeAppError(w, "scaling simulation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// writeAppError maps an *apperr.Error's Kind to an HTTP status via
// errors.As, rather than sniffing the error message.
func writeAppError(w http.ResponseWriter, logMsg string, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		logger.Error(logMsg, err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch appErr.Kind {
	case apperr.InvalidInput:
		respondError(w, http.StatusBadRequest, appErr.Message)
	case apperr.NotFound:
		respondError(w, http.StatusNotFound, appErr.Message)
	case apperr.ProviderTimeout, apperr.SimulationTimeout:
		respondError(w, http.StatusGatewayTimeout, appErr.Message)
	case apperr.ProviderUnavailable:
		respondError(w, http.StatusServiceUnavailable, appErr.Message)
	case apperr.ProviderUpstreamError:
		respondError(w, http.StatusBadGateway, appErr.Message)
	case apperr.DecodeError:
		logger.Error(logMsg, err)
		respondError(w, http.StatusBadGateway, "upstream returned an unreadable response")
	default:
		logger.Error(logMsg, err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
