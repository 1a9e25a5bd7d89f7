// Package scenario replays recorded traffic scenarios against controllers
// without a live simulator: a JSON fixture supplies per-step lane readings
// and a scripted simulator serves them back, recording every signal command
// for offline inspection.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a scenario fixture.
type Fixture struct {
	Description    string               `json:"description"`
	Junctions      []FixtureJunction    `json:"junctions"`
	Steps          []FixtureStep        `json:"steps"`
	ExpectedStates []FixtureExpectation `json:"expected_states"`
}

// FixtureJunction describes one junction's controlled links and starting
// signal state.
type FixtureJunction struct {
	ID           string        `json:"id"`
	Links        []FixtureLink `json:"links"`
	InitialState string        `json:"initial_state"`
}

// FixtureLink is one controlled link, with the incoming lane's edge recorded
// inline so the scripted simulator needs no separate network file.
type FixtureLink struct {
	IncomingLane string `json:"incoming_lane"`
	OutgoingLane string `json:"outgoing_lane"`
	Edge         string `json:"edge"`
}

// FixtureStep is the recorded traffic picture at one simulation step. Lanes
// absent from the map report as unavailable for that step.
type FixtureStep struct {
	Time  float64                       `json:"time"`
	Lanes map[string]FixtureLaneReading `json:"lanes"`
}

// FixtureLaneReading mirrors sim.LaneMetrics plus the vehicles present.
type FixtureLaneReading struct {
	Halted       int              `json:"halted"`
	WaitingTime  float32          `json:"waiting_time"`
	VehicleCount int              `json:"vehicle_count"`
	MeanSpeed    float32          `json:"mean_speed"`
	Occupancy    float32          `json:"occupancy"`
	Vehicles     []FixtureVehicle `json:"vehicles,omitempty"`
}

// FixtureVehicle mirrors sim.Vehicle with JSON tags.
type FixtureVehicle struct {
	ID              string  `json:"id"`
	TypeID          string  `json:"type_id"`
	AccumulatedWait float32 `json:"accumulated_wait"`
}

// FixtureExpectation pins the signal state a junction must hold at a step.
type FixtureExpectation struct {
	Time       float64 `json:"time"`
	JunctionID string  `json:"junction_id"`
	State      string  `json:"state"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks the structural invariants a replay run depends on.
func (f *Fixture) Validate() error {
	if len(f.Junctions) == 0 {
		return fmt.Errorf("no junctions")
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("no steps")
	}
	for _, j := range f.Junctions {
		if len(j.Links) == 0 {
			return fmt.Errorf("junction %s has no links", j.ID)
		}
		if j.InitialState != "" && len(j.InitialState) != len(j.Links) {
			return fmt.Errorf("junction %s: initial state length %d, %d links",
				j.ID, len(j.InitialState), len(j.Links))
		}
	}
	last := f.Steps[0].Time
	for _, s := range f.Steps[1:] {
		if s.Time <= last {
			return fmt.Errorf("step times not strictly increasing at t=%.2f", s.Time)
		}
		last = s.Time
	}
	return nil
}

// #endregion fixture-loader
