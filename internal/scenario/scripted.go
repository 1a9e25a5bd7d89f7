package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// #region command-record

// Command is one recorded SetSignalState call.
type Command struct {
	Time       float64 `json:"time"`
	JunctionID string  `json:"junction_id"`
	State      string  `json:"state"`
}

// #endregion command-record

// #region scripted

// Scripted is an offline sim.Simulator that serves lane readings from a
// fixture and records every signal command. It is deterministic: the same
// fixture and controller always produce the same command trace.
type Scripted struct {
	fixture *Fixture
	stepIdx int

	laneEdge  map[string]string
	links     map[string][]sim.Link
	states    map[string]string
	commands  []Command
	rejectAll bool
}

var _ sim.Simulator = (*Scripted)(nil)

// NewScripted builds a scripted simulator positioned on the fixture's first
// step.
func NewScripted(f *Fixture) *Scripted {
	s := &Scripted{
		fixture:  f,
		laneEdge: make(map[string]string),
		links:    make(map[string][]sim.Link),
		states:   make(map[string]string),
	}
	for _, j := range f.Junctions {
		links := make([]sim.Link, len(j.Links))
		for i, l := range j.Links {
			links[i] = sim.Link{IncomingLane: l.IncomingLane, OutgoingLane: l.OutgoingLane}
			s.laneEdge[l.IncomingLane] = l.Edge
		}
		s.links[j.ID] = links
		state := j.InitialState
		if state == "" {
			state = strings.Repeat("r", len(j.Links))
		}
		s.states[j.ID] = state
	}
	return s
}

// RejectCommands makes every subsequent SetSignalState fail, for exercising
// rejection handling.
func (s *Scripted) RejectCommands(reject bool) { s.rejectAll = reject }

// Commands returns the recorded command trace.
func (s *Scripted) Commands() []Command { return s.commands }

// Done reports whether the fixture's last step has been consumed.
func (s *Scripted) Done() bool { return s.stepIdx >= len(s.fixture.Steps)-1 }

func (s *Scripted) current() FixtureStep { return s.fixture.Steps[s.stepIdx] }

// #endregion scripted

// #region simulator-impl

// ReadLaneMetrics serves the current step's recording for the lane. Lanes
// absent from the step report as unavailable.
func (s *Scripted) ReadLaneMetrics(ctx context.Context, laneID string) (sim.LaneMetrics, error) {
	r, ok := s.current().Lanes[laneID]
	if !ok {
		return sim.LaneMetrics{}, &sim.ReadingUnavailableError{Lane: laneID}
	}
	return sim.LaneMetrics{
		HaltedCount:  r.Halted,
		WaitingTime:  r.WaitingTime,
		VehicleCount: r.VehicleCount,
		MeanSpeed:    r.MeanSpeed,
		Occupancy:    r.Occupancy,
	}, nil
}

// ReadLanePresentVehicles lists the current step's vehicles on the lane.
func (s *Scripted) ReadLanePresentVehicles(ctx context.Context, laneID string) ([]sim.Vehicle, error) {
	r, ok := s.current().Lanes[laneID]
	if !ok {
		return nil, &sim.ReadingUnavailableError{Lane: laneID}
	}
	vehicles := make([]sim.Vehicle, len(r.Vehicles))
	for i, v := range r.Vehicles {
		vehicles[i] = sim.Vehicle{ID: v.ID, TypeID: v.TypeID, AccumulatedWait: v.AccumulatedWait}
	}
	return vehicles, nil
}

// LaneEdgeID resolves a lane to the edge recorded in the fixture.
func (s *Scripted) LaneEdgeID(ctx context.Context, laneID string) (string, error) {
	edge, ok := s.laneEdge[laneID]
	if !ok {
		return "", fmt.Errorf("unknown lane %s", laneID)
	}
	return edge, nil
}

// ControlledLinks returns a junction's links in fixture order.
func (s *Scripted) ControlledLinks(ctx context.Context, junctionID string) ([]sim.Link, error) {
	links, ok := s.links[junctionID]
	if !ok {
		return nil, fmt.Errorf("unknown junction %s", junctionID)
	}
	return append([]sim.Link(nil), links...), nil
}

// SetSignalState records the command and applies it, rejecting malformed
// bit-strings the way a live simulator would.
func (s *Scripted) SetSignalState(ctx context.Context, junctionID, state string) error {
	links, ok := s.links[junctionID]
	if !ok {
		return fmt.Errorf("unknown junction %s", junctionID)
	}
	if s.rejectAll {
		return &sim.CommandRejectedError{Junction: junctionID, State: state, Reason: "rejection scripted"}
	}
	if len(state) != len(links) {
		return &sim.CommandRejectedError{
			Junction: junctionID, State: state,
			Reason: fmt.Sprintf("state length %d, %d links", len(state), len(links)),
		}
	}
	for i := 0; i < len(state); i++ {
		switch state[i] {
		case 'G', 'g', 'y', 'r', 'u':
		default:
			return &sim.CommandRejectedError{
				Junction: junctionID, State: state,
				Reason: fmt.Sprintf("invalid signal char %q", state[i]),
			}
		}
	}
	s.states[junctionID] = state
	s.commands = append(s.commands, Command{Time: s.current().Time, JunctionID: junctionID, State: state})
	return nil
}

// GetSignalState returns the last applied state for the junction.
func (s *Scripted) GetSignalState(ctx context.Context, junctionID string) (string, error) {
	state, ok := s.states[junctionID]
	if !ok {
		return "", fmt.Errorf("unknown junction %s", junctionID)
	}
	return state, nil
}

// ListJunctions returns the fixture's junction ids, sorted.
func (s *Scripted) ListJunctions(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AdvanceOneStep moves to the next recorded step. Past the final step it
// stays put, so Done gates the replay loop.
func (s *Scripted) AdvanceOneStep(ctx context.Context) error {
	if s.stepIdx < len(s.fixture.Steps)-1 {
		s.stepIdx++
	}
	return nil
}

// SimulationTime returns the current recorded step's time.
func (s *Scripted) SimulationTime(ctx context.Context) (float64, error) {
	return s.current().Time, nil
}

// #endregion simulator-impl
