package junction

import (
	"context"
	"log"

	"github.com/veghadev/fdrl-signals/go-controller/internal/agent"
	"github.com/veghadev/fdrl-signals/go-controller/internal/decisions"
	"github.com/veghadev/fdrl-signals/go-controller/internal/features"
	"github.com/veghadev/fdrl-signals/go-controller/internal/policy"
	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// #region observation

// observation is the (state, action) half of a transition, completed by the
// reward observed at the next decision point.
type observation struct {
	candidates []features.Vector
	context    features.Vector
	action     int
}

// #endregion observation

// #region controller-struct

// LearnedController controls one signalized junction with a learning agent.
// All of its phase state is mutated exclusively by its own Step; nothing is
// shared between controllers.
type LearnedController struct {
	sim   sim.Simulator
	topo  Topology
	agent *agent.Agent
	agg   *features.Aggregator
	cfg   Config
	dlog  *decisions.Log // nil = no decision logging

	currentEdgeIdx  int
	currentState    string
	isYellow        bool
	yellowStepsLeft int
	lastSwitchTime  float64
	lastDecision    float64
	lastGreenTime   map[string]float64
	justSwitched    bool
	lastObs         *observation
	decisionCount   int
}

// NewLearnedController builds the topology, applies the initial green phase
// (first edge in sorted order), and wires the agent. dlog may be nil.
func NewLearnedController(
	ctx context.Context,
	s sim.Simulator,
	junctionID string,
	ag *agent.Agent,
	agg *features.Aggregator,
	cfg Config,
	dlog *decisions.Log,
) (*LearnedController, error) {
	topo, err := BuildTopology(ctx, s, junctionID)
	if err != nil {
		return nil, err
	}

	c := &LearnedController{
		sim:           s,
		topo:          topo,
		agent:         ag,
		agg:           agg,
		cfg:           cfg,
		dlog:          dlog,
		lastGreenTime: make(map[string]float64, len(topo.Edges)),
	}

	now, err := s.SimulationTime(ctx)
	if err != nil {
		now = 0
	}
	for _, edge := range topo.Edges {
		c.lastGreenTime[edge] = now
	}
	c.lastSwitchTime = now
	c.lastDecision = now - cfg.MinPoll

	if len(topo.Edges) > 0 {
		first := topo.Edges[0]
		green := topo.GreenStates[first]
		if err := s.SetSignalState(ctx, junctionID, green); err != nil {
			log.Printf("[JCT %s] could not set initial state: %v", junctionID, err)
		}
		c.currentState = green
	}
	return c, nil
}

// JunctionID returns the controlled junction's id.
func (c *LearnedController) JunctionID() string { return c.topo.JunctionID }

// Topology returns the immutable junction wiring.
func (c *LearnedController) Topology() Topology { return c.topo }

// Agent returns the controller's learning agent.
func (c *LearnedController) Agent() *agent.Agent { return c.agent }

// #endregion controller-struct

// #region weights

// Weights exposes the local agent's live parameter set for aggregation.
func (c *LearnedController) Weights() policy.Weights {
	return c.agent.Weights()
}

// UpdateWeights blends the federation's merged set into the local agent:
// alpha*local + (1-alpha)*global elementwise.
func (c *LearnedController) UpdateWeights(global policy.Weights, alpha float32) error {
	return c.agent.Blend(global, alpha)
}

// #endregion weights

// #region step

// Step runs one simulation tick of the phase state machine and, at decision
// points, the full observe → reward → train → act cycle.
func (c *LearnedController) Step(ctx context.Context, now float64) error {
	if len(c.topo.Edges) == 0 {
		return nil
	}

	if c.isYellow {
		c.yellowStepsLeft--
		if c.yellowStepsLeft <= 0 {
			c.commitGreen(ctx, now)
		}
		return nil
	}

	// Debounce: a decision holds for MinGreen seconds, and the controller
	// re-evaluates at most once per MinPoll seconds.
	if now-c.lastSwitchTime < c.cfg.MinGreen {
		return nil
	}
	if now-c.lastDecision < c.cfg.MinPoll {
		return nil
	}
	c.lastDecision = now

	contextVec := c.agg.Aggregate(ctx, c.topo.AllLanes)
	candidates := c.candidateVectors(ctx, now)

	reward := c.reward(contextVec)

	if c.lastObs != nil && c.cfg.Training {
		c.agent.StoreTransition(agent.Transition{
			Candidates:     c.lastObs.candidates,
			Context:        c.lastObs.context,
			Action:         c.lastObs.action,
			Reward:         reward,
			NextCandidates: candidates,
			NextContext:    contextVec,
			Terminal:       false,
		})
		c.decisionCount++
		if c.cfg.TrainEvery <= 1 || c.decisionCount%c.cfg.TrainEvery == 0 {
			c.agent.TrainStep()
		}
	}

	action, _ := c.agent.SelectAction(candidates, contextVec, c.cfg.Training)
	action, reason := c.applyOverrides(action, candidates, now)

	c.lastObs = &observation{candidates: candidates, context: contextVec, action: action}

	if action != c.currentEdgeIdx {
		c.beginYellow(ctx, now, action, reason, candidates, contextVec)
	} else {
		// Staying is itself a decision: anchor the min-green clock to it.
		c.lastSwitchTime = now
		c.logDecision(now, action, decisions.ReasonContinue, candidates, contextVec, false)
	}
	return nil
}

// candidateVectors builds the per-edge feature vectors, augmented with
// normalized time-since-last-green and the is-currently-green indicator.
func (c *LearnedController) candidateVectors(ctx context.Context, now float64) []features.Vector {
	candidates := make([]features.Vector, len(c.topo.Edges))
	for i, edge := range c.topo.Edges {
		v := c.agg.Aggregate(ctx, c.topo.EdgeLanes[edge])
		since := now - c.lastGreenTime[edge]
		if c.cfg.MaxRed > 0 {
			norm := since / c.cfg.MaxRed
			if norm > 1 {
				norm = 1
			}
			v[features.IdxTimeSinceGreen] = float32(norm)
		}
		if i == c.currentEdgeIdx {
			v[features.IdxIsGreen] = 1
		}
		candidates[i] = v
	}
	return candidates
}

// reward scores the previous decision: the negative weighted sum of
// normalized queue and wait over all controlled lanes, a heavy penalty
// proportional to normalized priority-vehicle wait, and a fixed switching
// cost when the previous step caused a phase change.
func (c *LearnedController) reward(contextVec features.Vector) float32 {
	r := -(c.cfg.QueueWeight*contextVec[features.IdxQueue] +
		c.cfg.WaitWeight*contextVec[features.IdxWait] +
		c.cfg.PriorityWeight*contextVec[features.IdxPriorityWait])
	if c.justSwitched {
		r -= c.cfg.SwitchPenalty
		c.justSwitched = false
	}
	return r
}

// #endregion step

// #region overrides

// applyOverrides resolves the safety overrides, which run after the learned
// choice and may replace it: priority vehicles first, then starvation
// (longest-starved edge wins, ties by edge order), then the max-green forced
// cyclic advance.
func (c *LearnedController) applyOverrides(action int, candidates []features.Vector, now float64) (int, decisions.Reason) {
	if c.cfg.PriorityOverride {
		if idx := c.priorityEdge(candidates); idx >= 0 && idx != c.currentEdgeIdx {
			return idx, decisions.ReasonPriority
		}
	}

	if c.cfg.MaxRed > 0 {
		if idx := c.starvedEdge(now); idx >= 0 {
			return idx, decisions.ReasonMaxRed
		}
	}

	if c.cfg.MaxGreen > 0 && action == c.currentEdgeIdx {
		currentEdge := c.topo.Edges[c.currentEdgeIdx]
		if now-c.lastGreenTime[currentEdge] >= c.cfg.MaxGreen {
			return (c.currentEdgeIdx + 1) % len(c.topo.Edges), decisions.ReasonMaxGreen
		}
	}

	reason := decisions.ReasonQValue
	if action == c.currentEdgeIdx {
		reason = decisions.ReasonContinue
	}
	return action, reason
}

// priorityEdge returns the non-green edge with the largest priority-vehicle
// wait, or -1 when no priority vehicle is waiting on a red edge.
func (c *LearnedController) priorityEdge(candidates []features.Vector) int {
	best := -1
	var bestWait float32
	for i, v := range candidates {
		if i == c.currentEdgeIdx || v[features.IdxPriorityPresent] == 0 {
			continue
		}
		if best == -1 || v[features.IdxPriorityWait] > bestWait {
			best = i
			bestWait = v[features.IdxPriorityWait]
		}
	}
	return best
}

// starvedEdge returns the edge that has gone without green the longest past
// the starvation threshold, or -1. Longest-starved wins; ties break by edge
// order, so the result is deterministic.
func (c *LearnedController) starvedEdge(now float64) int {
	best := -1
	var bestSince float64
	for i, edge := range c.topo.Edges {
		if i == c.currentEdgeIdx {
			continue
		}
		since := now - c.lastGreenTime[edge]
		if since <= c.cfg.MaxRed {
			continue
		}
		if best == -1 || since > bestSince {
			best = i
			bestSince = since
		}
	}
	return best
}

// #endregion overrides

// #region phase-transitions

// beginYellow commands the transition phase and arms the yellow countdown.
// A rejected command leaves the phase state unchanged; the controller
// retries naturally at its next eligible decision.
func (c *LearnedController) beginYellow(ctx context.Context, now float64, action int, reason decisions.Reason, candidates []features.Vector, contextVec features.Vector) {
	yellow := YellowState(c.currentState)
	if err := c.sim.SetSignalState(ctx, c.topo.JunctionID, yellow); err != nil {
		log.Printf("[JCT %s] yellow command rejected: %v", c.topo.JunctionID, err)
		return
	}
	c.currentState = yellow
	c.isYellow = true
	c.yellowStepsLeft = c.cfg.YellowSteps
	c.currentEdgeIdx = action
	c.justSwitched = true
	c.logDecision(now, action, reason, candidates, contextVec, true)
}

// commitGreen applies the pending green phase at the end of yellow. On a
// rejected command the yellow state is kept so the commit retries next step.
func (c *LearnedController) commitGreen(ctx context.Context, now float64) {
	target := c.topo.Edges[c.currentEdgeIdx]
	green := c.topo.GreenStates[target]
	if err := c.sim.SetSignalState(ctx, c.topo.JunctionID, green); err != nil {
		log.Printf("[JCT %s] green command rejected: %v", c.topo.JunctionID, err)
		return
	}
	c.isYellow = false
	c.currentState = green
	c.lastSwitchTime = now
	c.lastGreenTime[target] = now
}

// #endregion phase-transitions

// #region reset

// Reset clears per-episode phase state and re-applies the initial green.
// Learned weights and the replay buffer deliberately survive the reset.
func (c *LearnedController) Reset(ctx context.Context) error {
	c.currentEdgeIdx = 0
	c.isYellow = false
	c.yellowStepsLeft = 0
	c.justSwitched = false
	c.lastObs = nil
	c.decisionCount = 0

	now, err := c.sim.SimulationTime(ctx)
	if err != nil {
		now = 0
	}
	c.lastSwitchTime = now
	c.lastDecision = now - c.cfg.MinPoll
	for _, edge := range c.topo.Edges {
		c.lastGreenTime[edge] = now
	}

	if len(c.topo.Edges) > 0 {
		first := c.topo.Edges[0]
		green := c.topo.GreenStates[first]
		if err := c.sim.SetSignalState(ctx, c.topo.JunctionID, green); err != nil {
			log.Printf("[JCT %s] reset command rejected: %v", c.topo.JunctionID, err)
		} else {
			c.currentState = green
		}
	}
	return nil
}

// #endregion reset

// #region logging

func (c *LearnedController) logDecision(now float64, action int, reason decisions.Reason, candidates []features.Vector, contextVec features.Vector, switched bool) {
	if c.dlog == nil {
		return
	}
	alternatives := make([]string, 0, len(c.topo.Edges)-1)
	for i, edge := range c.topo.Edges {
		if i != action {
			alternatives = append(alternatives, edge)
		}
	}
	c.dlog.Record(decisions.Record{
		JunctionID:   c.topo.JunctionID,
		SimTime:      now,
		ChosenEdge:   c.topo.Edges[action],
		Alternatives: alternatives,
		Reason:       reason,
		QValue:       c.agent.BestScore(candidates[action], contextVec),
		Epsilon:      c.agent.Epsilon(),
		Switched:     switched,
	})
}

// #endregion logging
