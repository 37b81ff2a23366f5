package snapshot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"topology-sim-engine/pkg/clients/graph"
)

func sampleResponse() *graph.NeighborhoodResponse {
	return &graph.NeighborhoodResponse{
		Center: "checkout",
		K:      1,
		Nodes: []graph.GraphNode{
			{Name: "checkout", Namespace: "prod"},
			{Name: "payments", Namespace: "prod"},
			{Name: "inventory", Namespace: "prod"},
		},
		Edges: []graph.GraphEdge{
			{From: "checkout", To: "payments", Rate: 100, ErrorRate: 0.01, P50: 10, P95: 25, P99: 40},
			{From: "checkout", To: "inventory", Rate: 50, ErrorRate: 0, P50: 5, P95: 12, P99: 20},
		},
	}
}

func TestBuildCanonicalizesIdentifiers(t *testing.T) {
	snap := Build(sampleResponse())

	require.Equal(t, "prod:checkout", snap.TargetKey)
	require.Contains(t, snap.Nodes, "prod:checkout")
	require.Contains(t, snap.Nodes, "prod:payments")
	require.Len(t, snap.Edges, 2)
	require.Len(t, snap.OutgoingEdges["prod:checkout"], 2)
	require.Len(t, snap.IncomingEdges["prod:payments"], 1)
}

func TestBuildUnresolvedEdgeEndpointFallsBackToDefaultNamespace(t *testing.T) {
	resp := sampleResponse()
	resp.Edges = append(resp.Edges, graph.GraphEdge{From: "checkout", To: "ghost-service", Rate: 1})

	snap := Build(resp)

	var found bool
	for _, e := range snap.Edges {
		if e.Target == "default:ghost-service" {
			found = true
		}
	}
	require.True(t, found, "unresolved edge target should canonicalize under the default namespace")
}

func TestBuildCoercesNonFiniteRatesButPreservesNilLatency(t *testing.T) {
	resp := sampleResponse()
	resp.Edges = []graph.GraphEdge{
		{From: "checkout", To: "payments", Rate: math.NaN(), ErrorRate: math.Inf(1), P50: math.NaN(), P95: 25, P99: math.Inf(-1)},
	}

	snap := Build(resp)
	edge := snap.Edges[0]

	require.Equal(t, 0.0, edge.Rate)
	require.Equal(t, 0.0, edge.ErrorRate)
	require.Nil(t, edge.P50, "a non-finite percentile must stay nil, not be coerced to 0")
	require.NotNil(t, edge.P95)
	require.Equal(t, 25.0, *edge.P95)
	require.Nil(t, edge.P99)
}

func TestValidateCatchesDanglingEdgeEndpoint(t *testing.T) {
	snap := Build(sampleResponse())
	snap.Edges = append(snap.Edges, &Edge{Source: "prod:checkout", Target: "prod:does-not-exist", Rate: 1})

	err := snap.Validate()
	require.Error(t, err)
}

func TestValidateCatchesMisindexedIncomingEdge(t *testing.T) {
	snap := Build(sampleResponse())
	bogus := &Edge{Source: "prod:checkout", Target: "prod:inventory", Rate: 1}
	snap.IncomingEdges["prod:payments"] = append(snap.IncomingEdges["prod:payments"], bogus)

	err := snap.Validate()
	require.Error(t, err)
}

func TestValidatePassesOnWellFormedSnapshot(t *testing.T) {
	snap := Build(sampleResponse())
	require.NoError(t, snap.Validate())
}

func TestCanonicalIDDefaultsEmptyNamespace(t *testing.T) {
	require.Equal(t, "default:orders", CanonicalID("", "orders"))
	require.Equal(t, "prod:orders", CanonicalID("prod", "orders"))
}

func TestParseRef(t *testing.T) {
	ns, name := ParseRef("prod:orders")
	require.Equal(t, "prod", ns)
	require.Equal(t, "orders", name)

	ns, name = ParseRef("orders")
	require.Equal(t, DefaultNamespace, ns)
	require.Equal(t, "orders", name)

	ns, name = ParseRef("")
	require.Equal(t, DefaultNamespace, ns)
	require.Equal(t, "", name)
}

func TestNodeRefPrefersNodeOverFallbackKey(t *testing.T) {
	node := &Node{Name: "payments", Namespace: "prod"}
	id, name, ns := NodeRef(node, "default:payments")

	require.Equal(t, "prod:payments", id)
	require.Equal(t, "payments", name)
	require.Equal(t, "prod", ns)
}

func TestNodeRefFallsBackWhenNodeNil(t *testing.T) {
	id, name, ns := NodeRef(nil, "prod:payments")

	require.Equal(t, "prod:payments", id)
	require.Equal(t, "payments", name)
	require.Equal(t, "prod", ns)
}
