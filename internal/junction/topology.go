// Package junction implements per-intersection signal control: topology
// discovery, pre-computed phase encodings, the green/yellow phase state
// machine, and the decision logic that drives the learning agent.
package junction

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// #region topology

// Topology is the immutable per-junction wiring: controlled lanes, the
// incoming-edge → lanes mapping, and one pre-computed green bit-string per
// edge. Built once at controller creation, never mutated.
type Topology struct {
	JunctionID  string
	Edges       []string            // sorted unique incoming edges
	EdgeLanes   map[string][]string // edge → sorted controlled lanes
	AllLanes    []string            // every controlled lane, in edge order
	GreenStates map[string]string   // edge → green bit-string
}

// BuildTopology queries the simulator's controlled links once and
// pre-computes the green phase string for every incoming edge: 'G' on each
// link whose incoming edge is the target, 'r' elsewhere.
func BuildTopology(ctx context.Context, s sim.Simulator, junctionID string) (Topology, error) {
	links, err := s.ControlledLinks(ctx, junctionID)
	if err != nil {
		return Topology{}, fmt.Errorf("controlled links %s: %w", junctionID, err)
	}

	indexToEdge := make([]string, len(links))
	edgeLaneSet := make(map[string]map[string]struct{})
	for i, link := range links {
		edge, err := s.LaneEdgeID(ctx, link.IncomingLane)
		if err != nil {
			return Topology{}, fmt.Errorf("edge of lane %s: %w", link.IncomingLane, err)
		}
		indexToEdge[i] = edge
		if edgeLaneSet[edge] == nil {
			edgeLaneSet[edge] = make(map[string]struct{})
		}
		edgeLaneSet[edge][link.IncomingLane] = struct{}{}
	}

	topo := Topology{
		JunctionID:  junctionID,
		EdgeLanes:   make(map[string][]string, len(edgeLaneSet)),
		GreenStates: make(map[string]string, len(edgeLaneSet)),
	}
	for edge, laneSet := range edgeLaneSet {
		topo.Edges = append(topo.Edges, edge)
		lanes := make([]string, 0, len(laneSet))
		for lane := range laneSet {
			lanes = append(lanes, lane)
		}
		sort.Strings(lanes)
		topo.EdgeLanes[edge] = lanes
	}
	sort.Strings(topo.Edges)

	for _, edge := range topo.Edges {
		topo.AllLanes = append(topo.AllLanes, topo.EdgeLanes[edge]...)
		var b strings.Builder
		for _, mapped := range indexToEdge {
			if mapped == edge {
				b.WriteByte('G')
			} else {
				b.WriteByte('r')
			}
		}
		topo.GreenStates[edge] = b.String()
	}
	return topo, nil
}

// #endregion topology

// #region yellow

// YellowState derives the transition phase from a green bit-string: every
// 'G', 'g', or 'y' becomes 'y', everything else is unchanged. Idempotent on
// already-yellow strings.
func YellowState(state string) string {
	var b strings.Builder
	b.Grow(len(state))
	for i := 0; i < len(state); i++ {
		switch state[i] {
		case 'G', 'g', 'y':
			b.WriteByte('y')
		default:
			b.WriteByte(state[i])
		}
	}
	return b.String()
}

// #endregion yellow
