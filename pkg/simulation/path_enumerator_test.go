package simulation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"topology-sim-engine/pkg/snapshot"
)

func buildSnapshot(t *testing.T, nodeKeys []string, edges []*snapshot.Edge) *snapshot.Snapshot {
	t.Helper()
	nodes := make(map[string]*snapshot.Node, len(nodeKeys))
	incoming := make(map[string][]*snapshot.Edge)
	outgoing := make(map[string][]*snapshot.Edge)

	for _, k := range nodeKeys {
		ns, name := snapshot.ParseRef(k)
		nodes[k] = &snapshot.Node{Name: name, Namespace: ns}
	}
	for _, e := range edges {
		incoming[e.Target] = append(incoming[e.Target], e)
		outgoing[e.Source] = append(outgoing[e.Source], e)
	}

	return &snapshot.Snapshot{
		Nodes:         nodes,
		Edges:         edges,
		IncomingEdges: incoming,
		OutgoingEdges: outgoing,
	}
}

func TestFindTopPathsToTargetSortsByBottleneckRateDescending(t *testing.T) {
	snap := buildSnapshot(t, []string{"default:a", "default:b", "default:c", "default:target"}, []*snapshot.Edge{
		{Source: "default:a", Target: "default:target", Rate: 10},
		{Source: "default:b", Target: "default:target", Rate: 100},
		{Source: "default:c", Target: "default:target", Rate: 50},
	})

	paths := FindTopPathsToTarget(snap, "default:target", 2, 5)

	require.Len(t, paths, 3)
	require.Equal(t, 100.0, paths[0].PathRps)
	require.Equal(t, 50.0, paths[1].PathRps)
	require.Equal(t, 10.0, paths[2].PathRps)
}

func TestFindTopPathsToTargetRespectsMaxDepth(t *testing.T) {
	// a -> b -> target is 2 hops; with maxDepth 1 it must not appear, and
	// only the 1-hop b -> target path (DFS also starts from b) is found.
	snap := buildSnapshot(t, []string{"default:a", "default:b", "default:target"}, []*snapshot.Edge{
		{Source: "default:a", Target: "default:b", Rate: 20},
		{Source: "default:b", Target: "default:target", Rate: 20},
	})

	paths := FindTopPathsToTarget(snap, "default:target", 1, 5)
	require.Len(t, paths, 1, "path requiring 2 hops must be excluded when maxDepth is 1")
	require.Equal(t, []string{"default:b", "default:target"}, paths[0].Path)

	paths = FindTopPathsToTarget(snap, "default:target", 2, 5)
	require.Len(t, paths, 2)
	require.Equal(t, []string{"default:a", "default:b", "default:target"}, paths[0].Path)
}

func TestFindTopPathsToTargetTruncatesToMaxPaths(t *testing.T) {
	snap := buildSnapshot(t, []string{"default:a", "default:b", "default:c", "default:target"}, []*snapshot.Edge{
		{Source: "default:a", Target: "default:target", Rate: 10},
		{Source: "default:b", Target: "default:target", Rate: 20},
		{Source: "default:c", Target: "default:target", Rate: 30},
	})

	paths := FindTopPathsToTarget(snap, "default:target", 2, 2)
	require.Len(t, paths, 2)
	require.Equal(t, 30.0, paths[0].PathRps)
	require.Equal(t, 20.0, paths[1].PathRps)
}

func TestFindTopPathsToTargetNeverRevisitsANodeWithinOnePath(t *testing.T) {
	// a <-> b cycle, plus b -> target; the cycle must not produce an
	// infinite or repeating path through a.
	snap := buildSnapshot(t, []string{"default:a", "default:b", "default:target"}, []*snapshot.Edge{
		{Source: "default:a", Target: "default:b", Rate: 10},
		{Source: "default:b", Target: "default:a", Rate: 10},
		{Source: "default:b", Target: "default:target", Rate: 10},
	})

	paths := FindTopPathsToTarget(snap, "default:target", 3, 5)
	for _, p := range paths {
		seen := make(map[string]bool)
		for _, node := range p.Path {
			require.False(t, seen[node], "path must not revisit %s: %v", node, p.Path)
			seen[node] = true
		}
	}
}

func TestDedupePathsRemovesDuplicateJoinedKeys(t *testing.T) {
	in := []BrokenPath{
		{Path: []string{"a", "b", "target"}, PathRps: 10},
		{Path: []string{"a", "b", "target"}, PathRps: 10},
		{Path: []string{"c", "target"}, PathRps: 5},
	}

	out := dedupePaths(in)
	require.Len(t, out, 2)
	require.Equal(t, []string{"a", "b", "target"}, out[0].Path)
	require.Equal(t, []string{"c", "target"}, out[1].Path)
}
