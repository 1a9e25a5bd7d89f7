package junction

import (
	"context"
	"log"

	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// #region fixed-time

// FixedTimeController cycles through the edges on a fixed green duration,
// with the same yellow transition as the learned controller. No learning.
type FixedTimeController struct {
	sim             sim.Simulator
	topo            Topology
	cycleSeconds    float64
	yellowSteps     int
	currentEdgeIdx  int
	currentState    string
	isYellow        bool
	yellowStepsLeft int
	lastSwitchTime  float64
}

// NewFixedTimeController builds a fixed-cycle controller over an existing
// topology and applies the initial green.
func NewFixedTimeController(ctx context.Context, topo Topology, s sim.Simulator, cycleSeconds float64, yellowSteps int) *FixedTimeController {
	c := &FixedTimeController{
		sim:          s,
		topo:         topo,
		cycleSeconds: cycleSeconds,
		yellowSteps:  yellowSteps,
	}
	if len(topo.Edges) > 0 {
		green := topo.GreenStates[topo.Edges[0]]
		if err := s.SetSignalState(ctx, topo.JunctionID, green); err != nil {
			log.Printf("[JCT %s] could not set initial state: %v", topo.JunctionID, err)
		}
		c.currentState = green
	}
	return c
}

// JunctionID returns the controlled junction's id.
func (c *FixedTimeController) JunctionID() string { return c.topo.JunctionID }

// Step advances the fixed cycle: green for cycleSeconds, yellow, next edge.
func (c *FixedTimeController) Step(ctx context.Context, now float64) error {
	if len(c.topo.Edges) == 0 {
		return nil
	}
	if c.isYellow {
		c.yellowStepsLeft--
		if c.yellowStepsLeft <= 0 {
			c.currentEdgeIdx = (c.currentEdgeIdx + 1) % len(c.topo.Edges)
			green := c.topo.GreenStates[c.topo.Edges[c.currentEdgeIdx]]
			if err := c.sim.SetSignalState(ctx, c.topo.JunctionID, green); err != nil {
				log.Printf("[JCT %s] green command rejected: %v", c.topo.JunctionID, err)
				return nil
			}
			c.isYellow = false
			c.currentState = green
			c.lastSwitchTime = now
		}
		return nil
	}
	if now-c.lastSwitchTime <= c.cycleSeconds {
		return nil
	}
	yellow := YellowState(c.currentState)
	if err := c.sim.SetSignalState(ctx, c.topo.JunctionID, yellow); err != nil {
		log.Printf("[JCT %s] yellow command rejected: %v", c.topo.JunctionID, err)
		return nil
	}
	c.currentState = yellow
	c.isYellow = true
	c.yellowStepsLeft = c.yellowSteps
	return nil
}

// Reset restarts the cycle on the first edge.
func (c *FixedTimeController) Reset(ctx context.Context) error {
	c.currentEdgeIdx = 0
	c.isYellow = false
	c.yellowStepsLeft = 0
	c.lastSwitchTime = 0
	if len(c.topo.Edges) > 0 {
		green := c.topo.GreenStates[c.topo.Edges[0]]
		if err := c.sim.SetSignalState(ctx, c.topo.JunctionID, green); err != nil {
			log.Printf("[JCT %s] reset command rejected: %v", c.topo.JunctionID, err)
			return nil
		}
		c.currentState = green
	}
	return nil
}

// #endregion fixed-time

// #region passthrough

// PassthroughController performs no control at all, leaving signal timing to
// the simulator's built-in program. It exists so comparison runs share the
// Controller contract.
type PassthroughController struct {
	junctionID string
}

// NewPassthroughController wraps a junction id.
func NewPassthroughController(junctionID string) *PassthroughController {
	return &PassthroughController{junctionID: junctionID}
}

// JunctionID returns the junction's id.
func (c *PassthroughController) JunctionID() string { return c.junctionID }

// Step does nothing; the simulator's own program drives the signals.
func (c *PassthroughController) Step(ctx context.Context, now float64) error { return nil }

// Reset does nothing.
func (c *PassthroughController) Reset(ctx context.Context) error { return nil }

// #endregion passthrough
