package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/veghadev/fdrl-signals/go-controller/internal/agent"
	"github.com/veghadev/fdrl-signals/go-controller/internal/config"
	"github.com/veghadev/fdrl-signals/go-controller/internal/decisions"
	"github.com/veghadev/fdrl-signals/go-controller/internal/episode"
	"github.com/veghadev/fdrl-signals/go-controller/internal/features"
	"github.com/veghadev/fdrl-signals/go-controller/internal/federation"
	"github.com/veghadev/fdrl-signals/go-controller/internal/junction"
	"github.com/veghadev/fdrl-signals/go-controller/internal/metrics"
	"github.com/veghadev/fdrl-signals/go-controller/internal/policy"
	"github.com/veghadev/fdrl-signals/go-controller/internal/simbridge"
	"github.com/veghadev/fdrl-signals/go-controller/internal/weightstore"
)

// #region main

func main() {
	configPath := flag.String("config", "", "path to controller.yaml (empty = defaults)")
	seed := flag.Int64("seed", 1, "random seed for weight init and exploration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *seed); err != nil {
		log.Fatalf("controller: %v", err)
	}
}

// #endregion main

// #region run

func run(ctx context.Context, cfg config.Config, seed int64) error {
	client, err := simbridge.Dial(ctx, cfg.Bridge.URL, cfg.Bridge.RequestTimeout)
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	defer client.Close()

	junctions, err := client.ListJunctions(ctx)
	if err != nil {
		return fmt.Errorf("list junctions: %w", err)
	}
	if len(junctions) == 0 {
		return fmt.Errorf("no signalized junctions in the network")
	}
	log.Printf("[RUN] mode=%s junctions=%d", cfg.Episode.Mode, len(junctions))

	episodeCfg := episode.Config{
		Episodes:          cfg.Episode.Episodes,
		StepsPerEpisode:   cfg.Episode.StepsPerEpisode,
		WarmupSteps:       cfg.Episode.WarmupSteps,
		AggregateInterval: cfg.Episode.AggregateInterval,
		StatsInterval:     cfg.Episode.StatsInterval,
		BlendAlpha:        cfg.Federation.BlendAlpha,
	}

	switch cfg.Episode.Mode {
	case "fixed", "actuated":
		controllers, lanes, err := buildBaselineControllers(ctx, client, junctions, cfg)
		if err != nil {
			return err
		}
		tracker := metrics.NewTracker(client, lanes)
		orch := episode.NewOrchestrator(client, controllers, nil, nil, tracker, nil, episodeCfg)
		return orch.Run(ctx)
	}

	// Learning modes share the full stack: weight store, decision log,
	// federation server.
	training := cfg.Episode.Mode == "train"

	store, err := weightstore.NewStore(cfg.Storage.WeightsPath)
	if err != nil {
		return fmt.Errorf("weight store: %w", err)
	}
	defer store.Close()

	var decisionDB *sql.DB
	if cfg.Storage.DecisionsPath != "" {
		decisionDB, err = decisions.OpenDB(cfg.Storage.DecisionsPath)
		if err != nil {
			return fmt.Errorf("decision db: %w", err)
		}
		defer decisionDB.Close()
	}
	dlog, err := decisions.NewLog(cfg.Storage.HistorySize, decisionDB)
	if err != nil {
		return fmt.Errorf("decision log: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))
	agentCfg := agentConfig(cfg.Agent)
	junctionCfg := junctionConfig(cfg.Junction)
	junctionCfg.Training = training

	norm := features.DefaultNormalizer()
	agg := features.NewAggregator(client, norm, metrics.IsPriorityType)

	// Resume from the persisted global set when one exists; otherwise the
	// first agent's fresh initialization becomes the baseline.
	var baseline policy.Weights
	if current, err := store.GetCurrent(); err == nil {
		baseline = current.Weights
		log.Printf("[RUN] resuming from weight version %s (round %d)", current.VersionID, current.Round)
	}

	var (
		controllers []junction.Controller
		learned     []*junction.LearnedController
		allLanes    []string
	)
	for _, id := range junctions {
		ag := agent.New(agentCfg, rng)
		if baseline == nil {
			baseline = ag.Weights()
		} else if err := ag.SetWeights(baseline); err != nil {
			return fmt.Errorf("seed agent %s: %w", id, err)
		}
		c, err := junction.NewLearnedController(ctx, client, id, ag, agg, junctionCfg, dlog)
		if err != nil {
			return fmt.Errorf("junction %s: %w", id, err)
		}
		controllers = append(controllers, c)
		learned = append(learned, c)
		allLanes = append(allLanes, c.Topology().AllLanes...)
	}

	var server *federation.Server
	if training {
		server = federation.NewServer(baseline, federationConfig(cfg.Federation), store)
	}

	tracker := metrics.NewTracker(client, allLanes)
	orch := episode.NewOrchestrator(client, controllers, learned, server, tracker, dlog, episodeCfg)
	return orch.Run(ctx)
}

// buildBaselineControllers wires the non-learning comparison modes.
func buildBaselineControllers(ctx context.Context, client *simbridge.Client, junctions []string, cfg config.Config) ([]junction.Controller, []string, error) {
	var controllers []junction.Controller
	var lanes []string
	for _, id := range junctions {
		if cfg.Episode.Mode == "actuated" {
			controllers = append(controllers, junction.NewPassthroughController(id))
			continue
		}
		topo, err := junction.BuildTopology(ctx, client, id)
		if err != nil {
			return nil, nil, fmt.Errorf("junction %s: %w", id, err)
		}
		controllers = append(controllers, junction.NewFixedTimeController(
			ctx, topo, client, cfg.Episode.FixedCycleSeconds, cfg.Junction.YellowSteps))
		lanes = append(lanes, topo.AllLanes...)
	}
	return controllers, lanes, nil
}

// #endregion run

// #region config-mapping

func agentConfig(c config.AgentConfig) agent.Config {
	return agent.Config{
		LearningRate:    c.LearningRate,
		Gamma:           c.Gamma,
		Epsilon:         c.EpsilonStart,
		EpsilonMin:      c.EpsilonMin,
		EpsilonDecay:    c.EpsilonDecay,
		ClipNorm:        c.ClipNorm,
		BufferCapacity:  c.BufferSize,
		BatchSize:       c.BatchSize,
		TargetSyncEvery: c.TargetSync,
		Hidden:          c.HiddenSize,
	}
}

func junctionConfig(c config.JunctionConfig) junction.Config {
	return junction.Config{
		MinGreen:         c.MinGreen,
		MinPoll:          c.MinPoll,
		MaxGreen:         c.MaxGreen,
		MaxRed:           c.MaxRed,
		YellowSteps:      c.YellowSteps,
		QueueWeight:      c.QueueWeight,
		WaitWeight:       c.WaitWeight,
		PriorityWeight:   c.PriorityWeight,
		SwitchPenalty:    c.SwitchPenalty,
		TrainEvery:       c.TrainEvery,
		PriorityOverride: c.PriorityOverride,
	}
}

func federationConfig(c config.FederationConfig) federation.Config {
	fc := federation.DefaultConfig()
	fc.BaseThreshold = c.BaseThreshold
	fc.FloorThreshold = c.FloorThreshold
	fc.ThresholdRelax = c.ThresholdRelax
	fc.OutlierMultiplier = c.OutlierMultiplier
	fc.PenaltyFactor = c.PenaltyFactor
	return fc
}

// #endregion config-mapping
