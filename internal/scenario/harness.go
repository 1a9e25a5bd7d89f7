package scenario

import (
	"context"
	"fmt"

	"github.com/veghadev/fdrl-signals/go-controller/internal/junction"
)

// #region result-types

// Mismatch is one violated fixture expectation.
type Mismatch struct {
	Time       float64 `json:"time"`
	JunctionID string  `json:"junction_id"`
	Want       string  `json:"want"`
	Got        string  `json:"got"`
}

// Summary captures the outcome of replaying one fixture.
type Summary struct {
	Description string         `json:"description"`
	Steps       int            `json:"steps"`
	Commands    []Command      `json:"commands"`
	Switches    map[string]int `json:"switches"` // junction id -> applied state changes
	Mismatches  []Mismatch     `json:"mismatches,omitempty"`
}

// Passed reports whether every fixture expectation held.
func (s Summary) Passed() bool { return len(s.Mismatches) == 0 }

// #endregion result-types

// #region replay

// Replay steps the controllers through every recorded step of the fixture:
// at each step the controllers decide, then the scripted simulator advances
// to the next recording. Expectations are checked after the controllers act.
func Replay(ctx context.Context, scripted *Scripted, controllers []junction.Controller) (Summary, error) {
	f := scripted.fixture
	summary := Summary{
		Description: f.Description,
		Switches:    make(map[string]int),
	}

	expectations := make(map[float64]map[string]string)
	for _, e := range f.ExpectedStates {
		if expectations[e.Time] == nil {
			expectations[e.Time] = make(map[string]string)
		}
		expectations[e.Time][e.JunctionID] = e.State
	}

	for {
		now, err := scripted.SimulationTime(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("simulation time: %w", err)
		}
		for _, c := range controllers {
			if err := c.Step(ctx, now); err != nil {
				return Summary{}, fmt.Errorf("junction %s at t=%.2f: %w", c.JunctionID(), now, err)
			}
		}
		summary.Steps++

		if want, ok := expectations[now]; ok {
			for junctionID, wantState := range want {
				got, err := scripted.GetSignalState(ctx, junctionID)
				if err != nil {
					return Summary{}, fmt.Errorf("signal state %s: %w", junctionID, err)
				}
				if got != wantState {
					summary.Mismatches = append(summary.Mismatches, Mismatch{
						Time: now, JunctionID: junctionID, Want: wantState, Got: got,
					})
				}
			}
		}

		if scripted.Done() {
			break
		}
		if err := scripted.AdvanceOneStep(ctx); err != nil {
			return Summary{}, fmt.Errorf("advance: %w", err)
		}
	}

	summary.Commands = scripted.Commands()
	for _, cmd := range summary.Commands {
		summary.Switches[cmd.JunctionID]++
	}
	return summary, nil
}

// #endregion replay
