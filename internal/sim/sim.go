// Package sim defines the boundary between the signal-control core and the
// external traffic micro-simulator. The core never simulates traffic physics;
// it reads lane-level metrics and issues signal-state commands through this
// interface.
package sim

import (
	"context"
	"errors"
	"fmt"
)

// #region readings

// LaneMetrics is one synchronous reading of a single lane.
type LaneMetrics struct {
	HaltedCount  int     // vehicles below crawl speed in the last step
	WaitingTime  float32 // cumulative waiting seconds on the lane
	VehicleCount int     // vehicles present in the last step
	MeanSpeed    float32 // m/s averaged over present vehicles
	Occupancy    float32 // fraction of lane length covered, [0,1]
}

// Vehicle is one vehicle currently present on a lane.
type Vehicle struct {
	ID              string
	TypeID          string
	AccumulatedWait float32 // seconds of accumulated waiting time
}

// Link is one controlled signal link of a junction. The order of links
// returned by ControlledLinks defines the signal bit-string index order and
// is fixed for the simulation's lifetime.
type Link struct {
	IncomingLane string
	OutgoingLane string
}

// #endregion readings

// #region errors

// ReadingUnavailableError indicates a lane's metrics are momentarily
// unavailable. Callers exclude the lane from the current aggregate and
// continue; the condition is never fatal.
type ReadingUnavailableError struct {
	Lane string
}

func (e *ReadingUnavailableError) Error() string {
	return fmt.Sprintf("lane %s: reading unavailable", e.Lane)
}

// CommandRejectedError indicates the simulator refused a signal-state
// command. The controller's internal phase state must be left unchanged.
type CommandRejectedError struct {
	Junction string
	State    string
	Reason   string
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("junction %s: command %q rejected: %s", e.Junction, e.State, e.Reason)
}

// IsReadingUnavailable reports whether err wraps a ReadingUnavailableError.
func IsReadingUnavailable(err error) bool {
	var target *ReadingUnavailableError
	return errors.As(err, &target)
}

// IsCommandRejected reports whether err wraps a CommandRejectedError.
func IsCommandRejected(err error) bool {
	var target *CommandRejectedError
	return errors.As(err, &target)
}

// #endregion errors

// #region simulator

// Simulator is the synchronous step/query/command surface the core requires
// from the external micro-simulator.
type Simulator interface {
	// ReadLaneMetrics returns the current readings for one lane.
	// May fail with ReadingUnavailableError.
	ReadLaneMetrics(ctx context.Context, laneID string) (LaneMetrics, error)

	// ReadLanePresentVehicles lists the vehicles currently on a lane.
	ReadLanePresentVehicles(ctx context.Context, laneID string) ([]Vehicle, error)

	// LaneEdgeID returns the identifier of the edge a lane belongs to.
	LaneEdgeID(ctx context.Context, laneID string) (string, error)

	// ControlledLinks returns the ordered controlled links of a junction.
	ControlledLinks(ctx context.Context, junctionID string) ([]Link, error)

	// SetSignalState commands a signal bit-string, one character per link.
	// May fail with CommandRejectedError.
	SetSignalState(ctx context.Context, junctionID, state string) error

	// GetSignalState returns the current signal bit-string of a junction.
	GetSignalState(ctx context.Context, junctionID string) (string, error)

	// ListJunctions returns the ids of all signalized junctions.
	ListJunctions(ctx context.Context) ([]string, error)

	// AdvanceOneStep advances the simulation by one step.
	AdvanceOneStep(ctx context.Context) error

	// SimulationTime returns the current simulation time in seconds.
	SimulationTime(ctx context.Context) (float64, error)
}

// #endregion simulator
