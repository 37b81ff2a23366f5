package simulation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"topology-sim-engine/pkg/apperr"
	"topology-sim-engine/pkg/clients/graph"
	"topology-sim-engine/pkg/config"
	"topology-sim-engine/pkg/snapshot"
	"topology-sim-engine/pkg/trace"
)

// targetName picks the bare service name to query the provider with: an
// explicit Name wins, otherwise it is parsed off ServiceId (which may be
// "namespace:name" or a bare name).
func targetName(serviceId, name string) string {
	if name != "" {
		return name
	}
	_, n := snapshot.ParseRef(serviceId)
	return n
}

// targetCanonicalID resolves the caller-requested target to the canonical
// id it should match against in the snapshot, when the caller supplied
// one explicitly (serviceId or name+namespace); empty means "trust the
// provider's reported center".
func targetCanonicalID(req FailureSimulationRequest) string {
	if req.Namespace != "" && req.Name != "" {
		return snapshot.CanonicalID(req.Namespace, req.Name)
	}
	if req.ServiceId != "" {
		ns, n := snapshot.ParseRef(req.ServiceId)
		return snapshot.CanonicalID(ns, n)
	}
	return ""
}

// SimulateFailure runs the failure-impact pipeline under a wall-clock
// guard separate from the per-call HTTP timeouts the graph client already
// enforces: a slow aggregation/enumeration pass after a successful fetch
// could otherwise run unbounded. The guard races the pipeline against
// cfg.Simulation.TimeoutMs on a derived context, the same
// "first context cancels fastest" shape the teacher's worker shutdown
// path uses for its stop channel.
func SimulateFailure(ctx context.Context, client *graph.Client, cfg *config.Config, req FailureSimulationRequest) (*FailureSimulationResult, error) {
	sc := effectiveSimulationConfig(cfg)
	tr := trace.New(req.Trace)

	guardCtx, cancel := context.WithTimeout(ctx, time.Duration(sc.TimeoutMs)*time.Millisecond)
	defer cancel()

	type outcome struct {
		result *FailureSimulationResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := simulateFailureTraced(guardCtx, client, sc, req, tr)
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
			fmt.Sprintf("failure simulation exceeded %dms wall-clock budget", sc.TimeoutMs), guardCtx.Err())
	}
}

func simulateFailureTraced(ctx context.Context, client *graph.Client, sc config.SimulationConfig, req FailureSimulationRequest, tr trace.Tracer) (*FailureSimulationResult, error) {
	end := tr.Start("scenario-parse")
	maxDepth := req.Depth
	if maxDepth == 0 {
		maxDepth = sc.MaxTraversalDepth
	}
	if maxDepth < 1 || maxDepth > 3 {
		end(nil, "maxDepth out of range")
		return nil, apperr.Invalid("maxDepth must be 1, 2, or 3; got %d", maxDepth)
	}
	name := targetName(req.ServiceId, req.Name)
	if name == "" {
		end(nil, "missing target")
		return nil, apperr.Invalid("serviceId or name is required")
	}
	end(map[string]interface{}{"target": name, "maxDepth": maxDepth})

	var neighborhood *graph.NeighborhoodResponse
	var healthRes *graph.HealthResponse
	endFetch := tr.Start("fetch-neighborhood")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		neighborhood, err = client.GetNeighborhood(gctx, name, maxDepth)
		return err
	})
	g.Go(func() error {
		var err error
		healthRes, err = client.CheckHealth(gctx)
		return err
	})
	if err := waitNeighborhood(g); err != nil {
		endFetch(nil, err.Error())
		return nil, err
	}
	endFetch(map[string]interface{}{"nodeCount": len(neighborhood.Nodes), "edgeCount": len(neighborhood.Edges)})

	endBuild := tr.Start("build-snapshot")
	snap := snapshot.Build(neighborhood)
	targetKey := targetCanonicalID(req)
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

	endImpact := tr.Start("compute-impact")
	affectedCallers := aggregateCallers(snap, targetKey)
	affectedDownstream := aggregateDownstream(snap, targetKey)

	entrypoints := PickEntrypoints(snap, targetKey)
	reachable := ComputeReachableNodes(snap, entrypoints, targetKey)
	lostByNode := EstimateBoundaryLostTraffic(snap, reachable, targetKey)

	var unreachableServices []UnreachableService
	for k, n := range snap.Nodes {
		if k == targetKey || reachable[k] {
			continue
		}
		id, nm, ns := snapshot.NodeRef(n, k)
		loss := lostByNode[k]
		unreachableServices = append(unreachableServices, UnreachableService{
			ServiceId:                id,
			Name:                     nm,
			Namespace:                ns,
			LostTrafficRps:           loss.LostTotalRps,
			LostFromTargetRps:        loss.LostFromTargetRps,
			LostFromReachableCutsRps: loss.LostFromReachableCutsRps,
		})
	}
	sort.Slice(unreachableServices, func(i, j int) bool {
		return unreachableServices[i].LostTrafficRps > unreachableServices[j].LostTrafficRps
	})

	totalLostTrafficRps := 0.0
	for _, c := range affectedCallers {
		totalLostTrafficRps += c.LostTrafficRps
	}
	if affectedCallers == nil {
		affectedCallers = []AffectedCaller{}
	}
	if affectedDownstream == nil {
		affectedDownstream = []AffectedDownstream{}
	}
	if unreachableServices == nil {
		unreachableServices = []UnreachableService{}
	}
	endImpact(map[string]interface{}{
		"callers": len(affectedCallers), "downstream": len(affectedDownstream), "unreachable": len(unreachableServices),
	})

	endPaths := tr.Start("path-analysis")
	criticalPaths := FindTopPathsToTarget(snap, targetKey, maxDepth, sc.MaxPathsReturned)
	if criticalPaths == nil {
		criticalPaths = []BrokenPath{}
	}
	endPaths(map[string]interface{}{"pathCount": len(criticalPaths)})

	endStale := tr.Start("staleness-check")
	confidence, df := deriveConfidence(healthRes)
	endStale(map[string]interface{}{"confidence": confidence})

	explanation := fmt.Sprintf(
		"If %s fails, %d upstream caller(s) lose direct access, %d downstream service(s) lose traffic from this target, and %d service(s) may become unreachable within the %d-hop neighborhood.",
		targetOut.Name, len(affectedCallers), len(affectedDownstream), len(unreachableServices), maxDepth)

	result := &FailureSimulationResult{
		Target: targetOut,
		Neighborhood: NeighborhoodMeta{
			Description:  "k-hop neighborhood subgraph around target (not full graph)",
			ServiceCount: len(snap.Nodes),
			EdgeCount:    len(snap.Edges),
			DepthUsed:    maxDepth,
			GeneratedAt:  time.Now().Format(time.RFC3339),
		},
		DataFreshness:       df,
		Confidence:          confidence,
		Explanation:         explanation,
		AffectedCallers:     affectedCallers,
		AffectedDownstream:  affectedDownstream,
		UnreachableServices: unreachableServices,
		CriticalPaths:       criticalPaths,
		TotalLostTrafficRps: totalLostTrafficRps,
	}

	result.Recommendations = GenerateFailureRecommendations(sc, tr, result)
	if result.Recommendations == nil {
		result.Recommendations = []FailureRecommendation{}
	}

	return result, nil
}

func waitNeighborhood(g *errgroup.Group) error {
	return g.Wait()
}

func aggregateCallers(snap *snapshot.Snapshot, targetKey string) []AffectedCaller {
	callerMap := make(map[string]*AffectedCaller)
	for _, edge := range snap.IncomingEdges[targetKey] {
		id := edge.Source
		node := snap.Nodes[id]
		svcID, nm, ns := snapshot.NodeRef(node, id)

		existing, ok := callerMap[id]
		if !ok {
			existing = &AffectedCaller{ServiceId: svcID, Name: nm, Namespace: ns}
			callerMap[id] = existing
		}
		existing.LostTrafficRps += edge.Rate
		existing.EdgeErrorRate = math.Max(existing.EdgeErrorRate, edge.ErrorRate)
	}

	out := make([]AffectedCaller, 0, len(callerMap))
	for _, c := range callerMap {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LostTrafficRps > out[j].LostTrafficRps })
	return out
}

func aggregateDownstream(snap *snapshot.Snapshot, targetKey string) []AffectedDownstream {
	downstreamMap := make(map[string]*AffectedDownstream)
	for _, edge := range snap.OutgoingEdges[targetKey] {
		calleeKey := edge.Target
		if calleeKey == "" || calleeKey == targetKey {
			continue
		}
		node := snap.Nodes[calleeKey]
		svcID, nm, ns := snapshot.NodeRef(node, calleeKey)

		existing, ok := downstreamMap[calleeKey]
		if !ok {
			existing = &AffectedDownstream{ServiceId: svcID, Name: nm, Namespace: ns}
			downstreamMap[calleeKey] = existing
		}
		existing.LostTrafficRps += edge.Rate
		existing.EdgeErrorRate = math.Max(existing.EdgeErrorRate, edge.ErrorRate)
	}

	out := make([]AffectedDownstream, 0, len(downstreamMap))
	for _, d := range downstreamMap {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LostTrafficRps > out[j].LostTrafficRps })
	return out
}

// deriveConfidence is high unless the provider reports the graph as stale.
func deriveConfidence(health *graph.HealthResponse) (string, *DataFreshness) {
	if health == nil {
		return "high", nil
	}
	confidence := "high"
	if health.Stale {
		confidence = "low"
	}
	return confidence, &DataFreshness{
		Source:                "graph-engine",
		Stale:                 health.Stale,
		LastUpdatedSecondsAgo: health.LastUpdatedSecondsAgo,
		WindowMinutes:         health.WindowMinutes,
	}
}
