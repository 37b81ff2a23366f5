// Package snapshot builds the canonicalized, immutable per-request graph
// view (C2) that the simulation core operates on: node/edge identifiers
// are resolved to "namespace:name" canonical keys, numeric fields are
// coerced to finite values, and adjacency maps are built once so every
// downstream stage (path enumeration, reachability, impact synthesis)
// reads the same shape.
package snapshot

import (
	"fmt"
	"math"
	"strings"

	"topology-sim-engine/pkg/clients/graph"
)

const DefaultNamespace = "default"

type Node struct {
	Name      string
	Namespace string
}

type Edge struct {
	Source    string
	Target    string
	Rate      float64
	ErrorRate float64
	P50       *float64
	P95       *float64
	P99       *float64
}

type DataFreshness struct {
	Source                string
	Stale                 bool
	LastUpdatedSecondsAgo int
	WindowMinutes         int
}

// Snapshot is an immutable per-request view of a k-hop subgraph. It is
// never mutated after Build returns; simulators read it, never write it.
type Snapshot struct {
	Nodes         map[string]*Node
	Edges         []*Edge
	IncomingEdges map[string][]*Edge
	OutgoingEdges map[string][]*Edge
	TargetKey     string
	DataFreshness *DataFreshness
}

// CanonicalID computes "namespace:name", defaulting namespace to "default".
func CanonicalID(namespace, name string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return fmt.Sprintf("%s:%s", namespace, name)
}

// ParseRef splits a canonical or bare identifier into namespace and name.
func ParseRef(idOrName string) (namespace, name string) {
	if idOrName == "" {
		return DefaultNamespace, ""
	}
	if idx := strings.Index(idOrName, ":"); idx > 0 {
		return idOrName[:idx], idOrName[idx+1:]
	}
	return DefaultNamespace, idOrName
}

// coerce converts a possibly non-finite float to a finite one, returning
// fallback (0) for NaN/Inf — used for rate/errorRate where null has no
// meaning.
func coerce(v float64, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// coerceLatency returns nil for a non-finite percentile, never 0 — a
// missing latency must stay null end-to-end or weighted means would be
// falsified by treating "absent" as "instant".
func coerceLatency(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	c := v
	return &c
}

// Build canonicalizes a neighborhood payload into a Snapshot per §4.2:
// node keys are resolved first, then edges are resolved through the
// name→id index (unresolved endpoints fall back to "default:<name>").
func Build(resp *graph.NeighborhoodResponse) *Snapshot {
	nodes := make(map[string]*Node, len(resp.Nodes))
	edges := make([]*Edge, 0, len(resp.Edges))
	incoming := make(map[string][]*Edge)
	outgoing := make(map[string][]*Edge)
	nameToID := make(map[string]string, len(resp.Nodes)*2)

	for _, n := range resp.Nodes {
		key := CanonicalID(n.Namespace, n.Name)
		nodes[key] = &Node{Name: n.Name, Namespace: n.Namespace}
		nameToID[n.Name] = key
		nameToID[key] = key
	}

	resolve := func(ref string) string {
		if mapped, ok := nameToID[ref]; ok {
			return mapped
		}
		return CanonicalID(DefaultNamespace, ref)
	}

	for _, e := range resp.Edges {
		srcID := resolve(e.From)
		tgtID := resolve(e.To)

		edge := &Edge{
			Source:    srcID,
			Target:    tgtID,
			Rate:      coerce(e.Rate, 0),
			ErrorRate: coerce(e.ErrorRate, 0),
			P50:       coerceLatency(e.P50),
			P95:       coerceLatency(e.P95),
			P99:       coerceLatency(e.P99),
		}
		edges = append(edges, edge)
		incoming[edge.Target] = append(incoming[edge.Target], edge)
		outgoing[edge.Source] = append(outgoing[edge.Source], edge)
	}

	return &Snapshot{
		Nodes:         nodes,
		Edges:         edges,
		IncomingEdges: incoming,
		OutgoingEdges: outgoing,
		TargetKey:     resolve(resp.Center),
	}
}

// NodeRef resolves a service's canonical id/name/namespace, preferring
// the node record over the fallback key when both are available.
func NodeRef(node *Node, fallbackKey string) (serviceID, name, namespace string) {
	ns, n := ParseRef(fallbackKey)
	if node != nil {
		if node.Name != "" {
			n = node.Name
		}
		if node.Namespace != "" {
			ns = node.Namespace
		}
	}
	return CanonicalID(ns, n), n, ns
}

// Validate checks the invariants every Snapshot must satisfy (§3): every
// edge endpoint is a node key, and incoming/outgoing lists are exactly
// the edges whose target/source equals that key.
func (s *Snapshot) Validate() error {
	for _, e := range s.Edges {
		if _, ok := s.Nodes[e.Source]; !ok {
			return fmt.Errorf("edge source %q is not a known node", e.Source)
		}
		if _, ok := s.Nodes[e.Target]; !ok {
			return fmt.Errorf("edge target %q is not a known node", e.Target)
		}
	}
	for k, es := range s.IncomingEdges {
		for _, e := range es {
			if e.Target != k {
				return fmt.Errorf("incoming edge under %q has target %q", k, e.Target)
			}
		}
	}
	for k, es := range s.OutgoingEdges {
		for _, e := range es {
			if e.Source != k {
				return fmt.Errorf("outgoing edge under %q has source %q", k, e.Source)
			}
		}
	}
	return nil
}
