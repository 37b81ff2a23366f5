package simulation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"topology-sim-engine/pkg/apperr"
	"topology-sim-engine/pkg/clients/graph"
	"topology-sim-engine/pkg/config"
	"topology-sim-engine/pkg/snapshot"
	"topology-sim-engine/pkg/trace"
)

// SimulateScaling mirrors SimulateFailure's wall-clock guard: the scaling
// pipeline's own latency math and path-impact aggregation run unbounded by
// the graph client's per-call timeout, so a second, outer deadline derived
// from cfg.Simulation.TimeoutMs races the whole run via a completion
// channel + select.
func SimulateScaling(ctx context.Context, client *graph.Client, cfg *config.Config, req ScalingSimulationRequest) (*ScalingSimulationResult, error) {
	sc := effectiveSimulationConfig(cfg)
	tr := trace.New(req.Trace)

	guardCtx, cancel := context.WithTimeout(ctx, time.Duration(sc.TimeoutMs)*time.Millisecond)
	defer cancel()

	type outcome struct {
		result *ScalingSimulationResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := simulateScalingTraced(guardCtx, client, sc, req, tr)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		o.result.Trace = tr.Snapshot()
		return o.result, nil
	case <-guardCtx.Done():
		return nil, apperr.Wrap(apperr.SimulationTimeout,
			fmt.Sprintf("scaling simulation exceeded %dms wall-clock budget", sc.TimeoutMs), guardCtx.Err())
	}
}

func simulateScalingTraced(ctx context.Context, client *graph.Client, sc config.SimulationConfig, req ScalingSimulationRequest, tr trace.Tracer) (*ScalingSimulationResult, error) {
	end := tr.Start("scenario-parse")

	maxDepth := req.MaxDepth
	if maxDepth == 0 {
		maxDepth = sc.MaxTraversalDepth
	}
	if maxDepth < 1 || maxDepth > 3 {
		end(nil, "maxDepth out of range")
		return nil, apperr.Invalid("maxDepth must be 1, 2, or 3; got %d", maxDepth)
	}

	latencyMetric := req.LatencyMetric
	if latencyMetric == "" {
		latencyMetric = sc.DefaultLatencyMetric
	}
	if latencyMetric != "p50" && latencyMetric != "p95" && latencyMetric != "p99" {
		end(nil, "invalid latencyMetric")
		return nil, apperr.Invalid("latencyMetric must be p50, p95, or p99; got %q", latencyMetric)
	}

	if req.CurrentPods <= 0 {
		end(nil, "invalid currentPods")
		return nil, apperr.Invalid("currentPods must be a positive integer; got %d", req.CurrentPods)
	}
	if req.NewPods <= 0 {
		end(nil, "invalid newPods")
		return nil, apperr.Invalid("newPods must be a positive integer; got %d", req.NewPods)
	}

	modelType := sc.ScalingModel
	alpha := sc.ScalingAlpha
	if req.Model != nil {
		if req.Model.Type != "" {
			modelType = req.Model.Type
		}
		if req.Model.Alpha != nil {
			alpha = *req.Model.Alpha
		}
	}
	if alpha < 0 || alpha > 1 {
		end(nil, "invalid alpha")
		return nil, apperr.Invalid("alpha must be between 0 and 1")
	}
	if modelType != "bounded_sqrt" && modelType != "linear" {
		end(nil, "unknown scaling model")
		return nil, apperr.Invalid("unknown scaling model: %s", modelType)
	}

	name := targetName(req.ServiceId, req.Name)
	if name == "" {
		end(nil, "missing target")
		return nil, apperr.Invalid("serviceId or name is required")
	}
	end(map[string]interface{}{"target": name, "maxDepth": maxDepth, "model": modelType})

	endFetch := tr.Start("fetch-neighborhood")
	neighborhood, err := client.GetNeighborhood(ctx, name, maxDepth)
	if err != nil {
		endFetch(nil, err.Error())
		return nil, err
	}
	endFetch(map[string]interface{}{"nodeCount": len(neighborhood.Nodes), "edgeCount": len(neighborhood.Edges)})

	endBuild := tr.Start("build-snapshot")
	snap := snapshot.Build(neighborhood)
	targetKey := targetCanonicalID(ScalingToFailureRequest(req))
	if targetKey == "" {
		targetKey = snap.TargetKey
	}
	targetNode, ok := snap.Nodes[targetKey]
	if !ok {
		endBuild(nil, "target not found")
		return nil, apperr.NotFoundf("service not found: %s", req.ServiceId)
	}
	endBuild(map[string]interface{}{"targetKey": targetKey})
	targetID, targetNm, targetNs := snapshot.NodeRef(targetNode, targetKey)
	targetOut := ServiceRef{ServiceId: targetID, Name: targetNm, Namespace: targetNs}

	endLatency := tr.Start("latency-baseline")
	incomingEdges := snap.IncomingEdges[targetKey]
	var baseLat float64
	var totalWeighted, totalRate float64
	hasBaseData := false

	for _, edge := range incomingEdges {
		if edge.Rate <= 0 {
			continue
		}
		lat := getEdgeLatency(edge, latencyMetric)
		if lat != nil {
			totalWeighted += edge.Rate * *lat
			totalRate += edge.Rate
		}
	}
	if totalRate > 0 {
		baseLat = totalWeighted / totalRate
		hasBaseData = true
	}

	var newLat float64
	adjustedLatencies := make(map[string]float64)

	if hasBaseData {
		if modelType == "bounded_sqrt" {
			newLat = applyBoundedSqrtScaling(baseLat, req.CurrentPods, req.NewPods, alpha, sc.MinLatencyFactor)
		} else {
			newLat = applyLinearScaling(baseLat, req.CurrentPods, req.NewPods)
		}
		adjustedLatencies[targetKey] = newLat
	}
	endLatency(map[string]interface{}{"hasBaseData": hasBaseData})

	endCallers := tr.Start("caller-impact")
	affectedCallers := []AffectedCallerScaling{}
	for nodeId, nodeData := range snap.Nodes {
		if nodeId == targetKey {
			continue
		}
		outEdges := snap.OutgoingEdges[nodeId]
		if len(outEdges) == 0 {
			continue
		}

		beforeMs := computeWeightedMeanLatency(outEdges, latencyMetric, nil)
		afterMs := computeWeightedMeanLatency(outEdges, latencyMetric, adjustedLatencies)

		var deltaMs *float64
		if beforeMs != nil && afterMs != nil {
			d := *afterMs - *beforeMs
			deltaMs = &d
		}

		dist := computeHopDistance(snap, nodeId, targetKey)
		hopDist := 0
		if dist != -1 {
			hopDist = dist
		}

		svcID, n, ns := snapshot.NodeRef(nodeData, nodeId)

		affectedCallers = append(affectedCallers, AffectedCallerScaling{
			ServiceId:   svcID,
			Name:        n,
			Namespace:   ns,
			HopDistance: hopDist,
			BeforeMs:    beforeMs,
			AfterMs:     afterMs,
			DeltaMs:     deltaMs,
		})
	}

	sort.Slice(affectedCallers, func(i, j int) bool {
		d1 := affectedCallers[i].DeltaMs
		d2 := affectedCallers[j].DeltaMs
		if d1 == nil {
			return false
		}
		if d2 == nil {
			return true
		}
		return math.Abs(*d1) > math.Abs(*d2)
	})
	endCallers(map[string]interface{}{"count": len(affectedCallers)})

	endPaths := tr.Start("path-impact")
	maxPaths := sc.MaxPathsReturned
	topPaths := FindTopPathsToTarget(snap, targetKey, maxDepth, maxPaths)

	affectedPaths := []AffectedPathScaling{}
	callerBestPath := make(map[string]AffectedPathScaling)

	for _, p := range topPaths {
		pathIds := p.Path
		var beforeSum, afterSum float64
		hasIncomplete := false

		for i := 0; i < len(pathIds)-1; i++ {
			src := pathIds[i]
			tgt := pathIds[i+1]

			var edge *snapshot.Edge
			if edges, ok := snap.OutgoingEdges[src]; ok {
				for _, e := range edges {
					if e.Target == tgt {
						edge = e
						break
					}
				}
			}

			if edge == nil {
				hasIncomplete = true
				break
			}
			lat := getEdgeLatency(edge, latencyMetric)
			if lat == nil {
				hasIncomplete = true
				break
			}

			beforeSum += *lat

			if adj, ok := adjustedLatencies[tgt]; ok {
				afterSum += adj
			} else {
				afterSum += *lat
			}
		}

		var pmBefore, pmAfter, pmDelta *float64
		if !hasIncomplete {
			b := beforeSum
			a := afterSum
			d := a - b
			pmBefore, pmAfter, pmDelta = &b, &a, &d
		}

		ap := AffectedPathScaling{
			Path:           pathIds,
			PathRps:        p.PathRps,
			BeforeMs:       pmBefore,
			AfterMs:        pmAfter,
			DeltaMs:        pmDelta,
			IncompleteData: hasIncomplete,
		}
		affectedPaths = append(affectedPaths, ap)

		startNode := pathIds[0]
		if currBest, exists := callerBestPath[startNode]; !exists || ap.PathRps > currBest.PathRps {
			callerBestPath[startNode] = ap
		}
	}

	sort.Slice(affectedPaths, func(i, j int) bool {
		d1 := affectedPaths[i].DeltaMs
		d2 := affectedPaths[j].DeltaMs
		if d1 == nil {
			return false
		}
		if d2 == nil {
			return true
		}
		return math.Abs(*d1) > math.Abs(*d2)
	})

	for i := range affectedCallers {
		c := &affectedCallers[i]
		if best, ok := callerBestPath[c.ServiceId]; ok && best.DeltaMs != nil {
			c.EndToEndBeforeMs = best.BeforeMs
			c.EndToEndAfterMs = best.AfterMs
			c.EndToEndDeltaMs = best.DeltaMs
			c.ViaPath = best.Path
		}
	}
	endPaths(map[string]interface{}{"pathCount": len(affectedPaths)})

	endStale := tr.Start("staleness-check")
	confidence := "high"
	healthRes, _ := client.CheckHealth(ctx)
	var df *DataFreshness
	if healthRes != nil {
		if healthRes.Stale {
			confidence = "low"
		}
		df = &DataFreshness{
			Source:                "graph-engine",
			Stale:                 healthRes.Stale,
			LastUpdatedSecondsAgo: healthRes.LastUpdatedSecondsAgo,
			WindowMinutes:         healthRes.WindowMinutes,
		}
	}
	endStale(map[string]interface{}{"confidence": confidence})

	scalingDirection := "none"
	if req.NewPods > req.CurrentPods {
		scalingDirection = "up"
	} else if req.NewPods < req.CurrentPods {
		scalingDirection = "down"
	}

	var pBaseline, pProjected, pDelta *float64
	if hasBaseData {
		pBaseline = &baseLat
		pProjected = &newLat
		d := newLat - baseLat
		pDelta = &d
	}

	result := &ScalingSimulationResult{
		Target: targetOut,
		Neighborhood: NeighborhoodMeta{
			Description:  "k-hop upstream subgraph around target (not full graph)",
			ServiceCount: len(snap.Nodes),
			EdgeCount:    len(snap.Edges),
			DepthUsed:    maxDepth,
			GeneratedAt:  time.Now().Format(time.RFC3339),
		},
		DataFreshness:    df,
		Confidence:       confidence,
		LatencyMetric:    latencyMetric,
		ScalingModel:     ScalingModel{Type: modelType, Alpha: &alpha},
		CurrentPods:      req.CurrentPods,
		NewPods:          req.NewPods,
		ScalingDirection: scalingDirection,
		LatencyEstimate: ScalingLatencyEstimate{
			Description: "Rate-weighted mean of incoming edge latency to target",
			BaselineMs:  pBaseline,
			ProjectedMs: pProjected,
			DeltaMs:     pDelta,
			Unit:        "milliseconds",
		},
		AffectedCallers: AffectedCallersList{
			Description: "Edge-level impact: deltaMs is change in this caller's direct outgoing edge latency. endToEndDeltaMs is cumulative path latency change.",
			Items:       affectedCallers,
		},
		AffectedPaths:   affectedPaths,
		Recommendations: []FailureRecommendation{},
	}

	if len(result.AffectedCallers.Items) > sc.MaxPathsReturned {
		result.AffectedCallers.Items = result.AffectedCallers.Items[:sc.MaxPathsReturned]
	}

	endExplain := tr.Start("explain")
	directionWord := "at same level"
	if scalingDirection == "up" {
		directionWord = "up"
	}
	if scalingDirection == "down" {
		directionWord = "down"
	}

	callersCount := len(result.AffectedCallers.Items)
	pathsCount := len(result.AffectedPaths)

	if hasBaseData {
		improvementWord := "maintains"
		delta := *pDelta
		if delta < 0 {
			improvementWord = "improves"
		}
		if delta > 0 {
			improvementWord = "degrades"
		}

		result.Explanation = fmt.Sprintf("Scaling %s %s from %d to %d pods %s latency by %.1fms (baseline: %.1fms -> projected: %.1fms). %d upstream caller(s) affected across %d path(s).",
			targetOut.Name, directionWord, req.CurrentPods, req.NewPods, improvementWord, math.Abs(delta), baseLat, newLat, callersCount, pathsCount)
	} else {
		result.Explanation = fmt.Sprintf("Scaling %s %s from %d to %d pods. Latency impact unknown due to missing edge metrics. %d upstream caller(s) identified across %d path(s).",
			targetOut.Name, directionWord, req.CurrentPods, req.NewPods, callersCount, pathsCount)
	}

	incompleteCount := 0
	for _, p := range result.AffectedPaths {
		if p.IncompleteData {
			incompleteCount++
		}
	}
	if incompleteCount > 0 {
		result.Warnings = []string{
			fmt.Sprintf("%d of %d path(s) have incomplete latency data (missing edge metrics). Results may be partial.", incompleteCount, pathsCount),
		}
	}
	endExplain(nil)

	endRec := tr.Start("recommendations")
	recommendations := []FailureRecommendation{}

	if scalingDirection == "up" {
		isSmallBenefit := false
		if !hasBaseData {
			isSmallBenefit = true
		} else {
			benefit := math.Abs(*pDelta)
			if benefit < sc.ScalingBenefitThresholdMs {
				isSmallBenefit = true
			}
		}

		if isSmallBenefit {
			recommendations = append(recommendations, FailureRecommendation{
				Type:     "cost-efficiency",
				Priority: "medium",
				Target:   targetOut.Name,
				Reason:   fmt.Sprintf("Scaling from %d to %d shows minimal latency benefit", req.CurrentPods, req.NewPods),
				Action:   fmt.Sprintf("Review if additional pods for %s are cost-effective; bottleneck may be elsewhere", targetOut.Name),
			})
		}
	}

	result.Recommendations = recommendations
	endRec(map[string]interface{}{"count": len(recommendations)})

	return result, nil
}

// ScalingToFailureRequest adapts a scaling request's target-identifying
// fields to FailureSimulationRequest's shape so targetCanonicalID can be
// shared between both simulators.
func ScalingToFailureRequest(req ScalingSimulationRequest) FailureSimulationRequest {
	return FailureSimulationRequest{ServiceId: req.ServiceId, Name: req.Name, Namespace: req.Namespace}
}

func applyBoundedSqrtScaling(baseLatency float64, currentPods, newPods int, alpha, minLatencyFactor float64) float64 {
	ratio := float64(newPods) / float64(currentPods)
	improvement := 1.0 / math.Sqrt(ratio)
	newLatency := baseLatency * (alpha + (1.0-alpha)*improvement)

	minLatency := baseLatency * minLatencyFactor
	return math.Max(newLatency, minLatency)
}

func applyLinearScaling(baseLatency float64, currentPods, newPods int) float64 {
	return baseLatency * (float64(currentPods) / float64(newPods))
}

func computeWeightedMeanLatency(edges []*snapshot.Edge, metric string, adjusted map[string]float64) *float64 {
	var totalWeighted, totalRate float64

	for _, edge := range edges {
		rate := edge.Rate
		if rate <= 0 {
			continue
		}

		var lat float64
		if adjusted != nil {
			if val, ok := adjusted[edge.Target]; ok {
				lat = val
				totalWeighted += rate * lat
				totalRate += rate
				continue
			}
		}

		l := getEdgeLatency(edge, metric)
		if l == nil {
			return nil
		}
		lat = *l
		totalWeighted += rate * lat
		totalRate += rate
	}

	if totalRate == 0 {
		return nil
	}
	res := totalWeighted / totalRate
	return &res
}

func getEdgeLatency(edge *snapshot.Edge, metric string) *float64 {
	switch metric {
	case "p50":
		return edge.P50
	case "p95":
		return edge.P95
	case "p99":
		return edge.P99
	}
	return nil
}

func computeHopDistance(snap *snapshot.Snapshot, sourceId, targetId string) int {
	if sourceId == targetId {
		return 0
	}

	visited := make(map[string]bool)
	type item struct {
		id   string
		dist int
	}
	queue := []item{{sourceId, 0}}
	visited[sourceId] = true

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, e := range snap.OutgoingEdges[curr.id] {
			if e.Target == targetId {
				return curr.dist + 1
			}
			if !visited[e.Target] {
				visited[e.Target] = true
				queue = append(queue, item{e.Target, curr.dist + 1})
			}
		}
	}
	return -1
}
