package simulation

import "topology-sim-engine/pkg/snapshot"

// TrafficLoss breaks down why a node became unreachable: traffic it lost
// directly from the removed target, versus traffic lost because the
// reachable side of the cut no longer routes to it.
type TrafficLoss struct {
	LostFromTargetRps        float64
	LostFromReachableCutsRps float64
	LostTotalRps             float64
}

// PickEntrypoints returns every node with zero incoming edges within the
// snapshot, excluding blockedKey. If the neighborhood was truncated and no
// such node exists, every non-target node is treated as an entrypoint.
func PickEntrypoints(snap *snapshot.Snapshot, blockedKey string) []string {
	var entrypoints []string
	for k := range snap.Nodes {
		if k == blockedKey {
			continue
		}
		if len(snap.IncomingEdges[k]) == 0 {
			entrypoints = append(entrypoints, k)
		}
	}

	if len(entrypoints) == 0 {
		for k := range snap.Nodes {
			if k != blockedKey {
				entrypoints = append(entrypoints, k)
			}
		}
	}
	return entrypoints
}

// ComputeReachableNodes runs a BFS from entrypoints, skipping any edge
// through blockedKey, and returns the set of nodes still reachable once
// the target is treated as removed.
func ComputeReachableNodes(snap *snapshot.Snapshot, entrypoints []string, blockedKey string) map[string]bool {
	visited := make(map[string]bool)
	queue := make([]string, 0, len(entrypoints))

	for _, e := range entrypoints {
		if e == "" || e == blockedKey || visited[e] {
			continue
		}
		visited[e] = true
		queue = append(queue, e)
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, edge := range snap.OutgoingEdges[curr] {
			nxt := edge.Target
			if nxt == "" || nxt == blockedKey || visited[nxt] {
				continue
			}
			if _, exists := snap.Nodes[nxt]; !exists {
				continue
			}
			visited[nxt] = true
			queue = append(queue, nxt)
		}
	}
	return visited
}

// EstimateBoundaryLostTraffic computes, for every non-target node that
// fell out of the reachable set, how much of its incoming traffic came
// directly from the removed target versus from the reachable side of the
// resulting cut.
func EstimateBoundaryLostTraffic(snap *snapshot.Snapshot, reachable map[string]bool, blockedKey string) map[string]TrafficLoss {
	lostByNode := make(map[string]TrafficLoss)

	for k := range snap.Nodes {
		if k == blockedKey || reachable[k] {
			continue
		}

		var lTraffic, lCuts float64
		for _, e := range snap.IncomingEdges[k] {
			if e.Source == blockedKey {
				lTraffic += e.Rate
				continue
			}
			if reachable[e.Source] {
				lCuts += e.Rate
			}
		}

		lostByNode[k] = TrafficLoss{
			LostFromTargetRps:        lTraffic,
			LostFromReachableCutsRps: lCuts,
			LostTotalRps:             lTraffic + lCuts,
		}
	}
	return lostByNode
}
