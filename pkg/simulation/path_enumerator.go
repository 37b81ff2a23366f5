package simulation

import (
	"math"
	"sort"
	"strings"

	"topology-sim-engine/pkg/snapshot"
)

// pathSafetyFactor bounds the DFS: once this many multiples of maxPaths
// have accumulated, enumeration stops even if more paths remain, trading
// completeness for a hard cost ceiling on dense neighborhoods.
const pathSafetyFactor = 2

// FindTopPathsToTarget finds the top-N caller→target paths by bottleneck
// throughput (C3): deterministic bounded-depth DFS from every non-target
// start node in sorted order, children visited by (rate desc, target id
// asc), accumulating up to safetyFactor·maxPaths candidates before a
// final stable sort by rate, truncation to maxPaths, and then
// de-duplication by joined path key (so repeats inside the top maxPaths
// make the result shorter than maxPaths).
func FindTopPathsToTarget(snap *snapshot.Snapshot, targetServiceId string, maxDepth int, maxPaths int) []BrokenPath {
	safetyCap := pathSafetyFactor * maxPaths
	var paths []BrokenPath
	visited := make(map[string]bool)

	startNodeIds := make([]string, 0, len(snap.Nodes))
	for k := range snap.Nodes {
		startNodeIds = append(startNodeIds, k)
	}
	sort.Strings(startNodeIds)

	var dfs func(currentId string, currentPath []string, minRate float64)
	dfs = func(currentId string, currentPath []string, minRate float64) {
		if len(paths) >= safetyCap {
			return
		}

		hops := len(currentPath) - 1

		if currentId == targetServiceId && hops >= 1 {
			pathCopy := make([]string, len(currentPath))
			copy(pathCopy, currentPath)
			paths = append(paths, BrokenPath{Path: pathCopy, PathRps: minRate})
			return
		}

		if hops >= maxDepth {
			return
		}

		edges := append([]*snapshot.Edge(nil), snap.OutgoingEdges[currentId]...)
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].Rate != edges[j].Rate {
				return edges[i].Rate > edges[j].Rate
			}
			return edges[i].Target < edges[j].Target
		})

		for _, edge := range edges {
			if visited[edge.Target] {
				continue
			}
			visited[edge.Target] = true
			newPath := append(append([]string(nil), currentPath...), edge.Target)
			dfs(edge.Target, newPath, math.Min(minRate, edge.Rate))
			delete(visited, edge.Target)
		}
	}

	for _, nodeId := range startNodeIds {
		if nodeId == targetServiceId {
			continue
		}
		if len(paths) >= safetyCap {
			break
		}

		for k := range visited {
			delete(visited, k)
		}
		visited[nodeId] = true

		dfs(nodeId, []string{nodeId}, math.Inf(1))
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].PathRps > paths[j].PathRps
	})

	if len(paths) > maxPaths {
		paths = paths[:maxPaths]
	}

	return dedupePaths(paths)
}

// dedupePaths removes repeats by the joined path key, preserving order.
// Each start node's DFS run only yields paths beginning at that node;
// repeats come from parallel edges between the same two services, since
// the visited mark is cleared after each edge and a second edge to the
// same target is walked again.
func dedupePaths(paths []BrokenPath) []BrokenPath {
	seen := make(map[string]bool, len(paths))
	out := make([]BrokenPath, 0, len(paths))
	for _, p := range paths {
		key := strings.Join(p.Path, ">")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
