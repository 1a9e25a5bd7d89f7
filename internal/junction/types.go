package junction

import "context"

// #region controller-interface

// Controller is the shared contract of all per-junction control strategies.
// Step is invoked once per simulation step by the episode orchestrator;
// Reset clears per-episode state between episodes.
type Controller interface {
	JunctionID() string
	Step(ctx context.Context, now float64) error
	Reset(ctx context.Context) error
}

// #endregion controller-interface

// #region config

// Config holds the learned controller's timing and reward parameters.
// The min-green and min-poll guards are debouncing against thrashing and
// wasted computation; max-red and max-green are the hard safety overrides a
// purely learned policy cannot guarantee on its own.
type Config struct {
	MinGreen         float64 // seconds before a decision may be reconsidered
	MinPoll          float64 // seconds between decision evaluations
	MaxGreen         float64 // force a cyclic switch past this green duration
	MaxRed           float64 // starvation threshold per edge
	YellowSteps      int     // simulation steps spent in yellow
	QueueWeight      float32 // reward weight of normalized queue
	WaitWeight       float32 // reward weight of normalized wait
	PriorityWeight   float32 // reward penalty multiplier for priority wait
	SwitchPenalty    float32 // fixed reward penalty after a phase switch
	TrainEvery       int     // train on every Nth decision (<=1 = every)
	PriorityOverride bool    // force green toward waiting priority vehicles
	Training         bool    // store transitions, train, and explore
}

// DefaultConfig returns the standard controller timings.
func DefaultConfig() Config {
	return Config{
		MinGreen:       5,
		MinPoll:        1,
		MaxGreen:       100,
		MaxRed:         120,
		YellowSteps:    3,
		QueueWeight:    0.5,
		WaitWeight:     0.5,
		PriorityWeight: 10,
		SwitchPenalty:  0.1,
		TrainEvery:     1,
		Training:       true,
	}
}

// #endregion config
