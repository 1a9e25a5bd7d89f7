// Package episode drives the training and evaluation run loop: it steps the
// simulator, ticks every junction controller, runs federation rounds on a
// fixed cadence, and rolls episodes over.
package episode

import (
	"context"
	"fmt"
	"log"

	"github.com/veghadev/fdrl-signals/go-controller/internal/decisions"
	"github.com/veghadev/fdrl-signals/go-controller/internal/federation"
	"github.com/veghadev/fdrl-signals/go-controller/internal/junction"
	"github.com/veghadev/fdrl-signals/go-controller/internal/metrics"
	"github.com/veghadev/fdrl-signals/go-controller/internal/policy"
	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// #region config

// Config shapes the run loop.
type Config struct {
	Episodes          int
	StepsPerEpisode   int
	WarmupSteps       int     // steps skipped before controllers act
	AggregateInterval int     // federation cadence in steps (0 = never)
	StatsInterval     int     // traffic snapshot log cadence in steps
	BlendAlpha        float32 // local share when folding in the global set
}

// DefaultConfig returns the standard run-loop parameters.
func DefaultConfig() Config {
	return Config{
		Episodes:          50,
		StepsPerEpisode:   3600,
		WarmupSteps:       10,
		AggregateInterval: 500,
		StatsInterval:     100,
		BlendAlpha:        0.5,
	}
}

// #endregion config

// #region orchestrator

// Orchestrator owns the full run: one simulator, the per-junction
// controllers, and optionally a federation server for the learning ones.
// Everything runs on the caller's goroutine; controllers are never stepped
// concurrently.
type Orchestrator struct {
	sim         sim.Simulator
	controllers []junction.Controller
	learned     []*junction.LearnedController
	server      *federation.Server // nil = no federation
	tracker     *metrics.Tracker   // nil = no traffic stats
	dlog        *decisions.Log     // nil = no decision logging
	cfg         Config
}

// NewOrchestrator wires a run. learned must be the subset of controllers
// that carry agents; server, tracker, and dlog may each be nil.
func NewOrchestrator(
	s sim.Simulator,
	controllers []junction.Controller,
	learned []*junction.LearnedController,
	server *federation.Server,
	tracker *metrics.Tracker,
	dlog *decisions.Log,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		sim:         s,
		controllers: controllers,
		learned:     learned,
		server:      server,
		tracker:     tracker,
		dlog:        dlog,
		cfg:         cfg,
	}
}

// #endregion orchestrator

// #region run

// Run executes every configured episode in sequence.
func (o *Orchestrator) Run(ctx context.Context) error {
	for episode := 1; episode <= o.cfg.Episodes; episode++ {
		if err := o.RunEpisode(ctx, episode); err != nil {
			return fmt.Errorf("episode %d: %w", episode, err)
		}
		if o.tracker != nil {
			o.tracker.LogSummary(episode)
			o.tracker.Reset()
		}
		if o.dlog != nil {
			o.dlog.NextEpisode()
		}
		for _, c := range o.controllers {
			if err := c.Reset(ctx); err != nil {
				return fmt.Errorf("reset %s: %w", c.JunctionID(), err)
			}
		}
	}
	return nil
}

// RunEpisode steps one episode: controllers act after the warmup, federation
// rounds fire on the aggregation cadence, and the simulator advances once
// per step.
func (o *Orchestrator) RunEpisode(ctx context.Context, episode int) error {
	log.Printf("[EPI] episode %d: %d steps, %d controllers", episode, o.cfg.StepsPerEpisode, len(o.controllers))

	for step := 0; step < o.cfg.StepsPerEpisode; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		now, err := o.sim.SimulationTime(ctx)
		if err != nil {
			return fmt.Errorf("simulation time: %w", err)
		}

		if step >= o.cfg.WarmupSteps {
			for _, c := range o.controllers {
				if err := c.Step(ctx, now); err != nil {
					return fmt.Errorf("junction %s: %w", c.JunctionID(), err)
				}
			}
		}

		if o.tracker != nil {
			snap, err := o.tracker.Observe(ctx, now)
			if err != nil {
				return fmt.Errorf("traffic snapshot: %w", err)
			}
			if o.cfg.StatsInterval > 0 && step%o.cfg.StatsInterval == 0 {
				log.Printf("[EPI] episode %d step %d t=%.0f: queue=%d wait=%.0f speed=%.2f",
					episode, step, now, snap.TotalQueue, snap.TotalWait, snap.MeanSpeed)
			}
		}

		if o.server != nil && o.cfg.AggregateInterval > 0 &&
			step > 0 && step%o.cfg.AggregateInterval == 0 {
			if err := o.aggregateRound(); err != nil {
				return fmt.Errorf("federation round: %w", err)
			}
		}

		if err := o.sim.AdvanceOneStep(ctx); err != nil {
			return fmt.Errorf("advance step %d: %w", step, err)
		}
	}
	return nil
}

// aggregateRound collects every learning agent's weights, merges them, and
// blends the merged set back into each agent.
func (o *Orchestrator) aggregateRound() error {
	if len(o.learned) == 0 {
		return nil
	}
	clients := make([]policy.Weights, len(o.learned))
	for i, c := range o.learned {
		clients[i] = c.Weights()
	}
	global := o.server.Aggregate(clients)
	for _, c := range o.learned {
		if err := c.UpdateWeights(global, o.cfg.BlendAlpha); err != nil {
			return fmt.Errorf("blend into %s: %w", c.JunctionID(), err)
		}
	}
	return nil
}

// #endregion run
