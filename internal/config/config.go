// Package config loads the controller's YAML configuration. Every field has
// a default, so an empty or missing file yields a runnable setup; a handful
// of deployment-specific fields can be overridden from the environment.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region sections

// BridgeConfig points at the simulator bridge endpoint.
type BridgeConfig struct {
	URL            string  `yaml:"url"`
	RequestTimeout float64 `yaml:"request_timeout_seconds"`
}

// StorageConfig names the SQLite files for weights and decision logs.
type StorageConfig struct {
	WeightsPath   string `yaml:"weights_path"`
	DecisionsPath string `yaml:"decisions_path"`
	HistorySize   int    `yaml:"history_size"`
}

// AgentConfig holds the learning hyperparameters.
type AgentConfig struct {
	LearningRate float32 `yaml:"learning_rate"`
	Gamma        float32 `yaml:"gamma"`
	EpsilonStart float32 `yaml:"epsilon_start"`
	EpsilonMin   float32 `yaml:"epsilon_min"`
	EpsilonDecay float32 `yaml:"epsilon_decay"`
	ClipNorm     float32 `yaml:"clip_norm"`
	BufferSize   int     `yaml:"buffer_size"`
	BatchSize    int     `yaml:"batch_size"`
	TargetSync   int     `yaml:"target_sync"`
	HiddenSize   int     `yaml:"hidden_size"`
}

// JunctionConfig holds the signal-timing and reward parameters.
type JunctionConfig struct {
	MinGreen         float64 `yaml:"min_green_seconds"`
	MinPoll          float64 `yaml:"min_poll_seconds"`
	MaxGreen         float64 `yaml:"max_green_seconds"`
	MaxRed           float64 `yaml:"max_red_seconds"`
	YellowSteps      int     `yaml:"yellow_steps"`
	QueueWeight      float32 `yaml:"queue_weight"`
	WaitWeight       float32 `yaml:"wait_weight"`
	PriorityWeight   float32 `yaml:"priority_weight"`
	SwitchPenalty    float32 `yaml:"switch_penalty"`
	TrainEvery       int     `yaml:"train_every"`
	PriorityOverride bool    `yaml:"priority_override"`
}

// FederationConfig holds the robust-aggregation parameters.
type FederationConfig struct {
	BaseThreshold     float32 `yaml:"base_threshold"`
	FloorThreshold    float32 `yaml:"floor_threshold"`
	ThresholdRelax    float32 `yaml:"threshold_relax"`
	OutlierMultiplier float32 `yaml:"outlier_multiplier"`
	PenaltyFactor     float32 `yaml:"penalty_factor"`
	BlendAlpha        float32 `yaml:"blend_alpha"`
}

// EpisodeConfig shapes the training run.
type EpisodeConfig struct {
	Episodes          int     `yaml:"episodes"`
	StepsPerEpisode   int     `yaml:"steps_per_episode"`
	WarmupSteps       int     `yaml:"warmup_steps"`
	AggregateInterval int     `yaml:"aggregate_interval"`
	StatsInterval     int     `yaml:"stats_interval"`
	Mode              string  `yaml:"mode"` // train | test | fixed | actuated
	FixedCycleSeconds float64 `yaml:"fixed_cycle_seconds"`
}

// #endregion sections

// #region root

// Config is the root configuration document.
type Config struct {
	Bridge     BridgeConfig     `yaml:"bridge"`
	Storage    StorageConfig    `yaml:"storage"`
	Agent      AgentConfig      `yaml:"agent"`
	Junction   JunctionConfig   `yaml:"junction"`
	Federation FederationConfig `yaml:"federation"`
	Episode    EpisodeConfig    `yaml:"episode"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		Bridge: BridgeConfig{
			URL:            "ws://127.0.0.1:8813/bridge",
			RequestTimeout: 10,
		},
		Storage: StorageConfig{
			WeightsPath:   "weights.db",
			DecisionsPath: "decisions.db",
			HistorySize:   1000,
		},
		Agent: AgentConfig{
			LearningRate: 0.001,
			Gamma:        0.95,
			EpsilonStart: 1.0,
			EpsilonMin:   0.1,
			EpsilonDecay: 0.995,
			ClipNorm:     1.0,
			BufferSize:   5000,
			BatchSize:    32,
			TargetSync:   100,
			HiddenSize:   64,
		},
		Junction: JunctionConfig{
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
		},
		Federation: FederationConfig{
			BaseThreshold:     0.3,
			FloorThreshold:    0.1,
			ThresholdRelax:    0.01,
			OutlierMultiplier: 1.5,
			PenaltyFactor:     0.5,
			BlendAlpha:        0.5,
		},
		Episode: EpisodeConfig{
			Episodes:          50,
			StepsPerEpisode:   3600,
			WarmupSteps:       10,
			AggregateInterval: 500,
			StatsInterval:     100,
			Mode:              "train",
			FixedCycleSeconds: 30,
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. An empty path returns the defaults with overrides only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FDRL_BRIDGE_URL"); v != "" {
		c.Bridge.URL = v
	}
	if v := os.Getenv("FDRL_WEIGHTS_DB"); v != "" {
		c.Storage.WeightsPath = v
	}
	if v := os.Getenv("FDRL_DECISIONS_DB"); v != "" {
		c.Storage.DecisionsPath = v
	}
	if v := os.Getenv("FDRL_MODE"); v != "" {
		c.Episode.Mode = v
	}
}

// Validate rejects configurations the run loop cannot honor.
func (c *Config) Validate() error {
	switch c.Episode.Mode {
	case "train", "test", "fixed", "actuated":
	default:
		return fmt.Errorf("unknown mode %q", c.Episode.Mode)
	}
	if c.Agent.BatchSize <= 0 || c.Agent.BufferSize < c.Agent.BatchSize {
		return fmt.Errorf("buffer size %d must hold at least one batch of %d",
			c.Agent.BufferSize, c.Agent.BatchSize)
	}
	if c.Storage.HistorySize <= 0 {
		return fmt.Errorf("history size %d, must be positive", c.Storage.HistorySize)
	}
	if c.Junction.MinGreen < 0 || c.Junction.MaxGreen <= c.Junction.MinGreen {
		return fmt.Errorf("max green %.1f must exceed min green %.1f",
			c.Junction.MaxGreen, c.Junction.MinGreen)
	}
	if c.Federation.BlendAlpha < 0 || c.Federation.BlendAlpha > 1 {
		return fmt.Errorf("blend alpha %.2f outside [0,1]", c.Federation.BlendAlpha)
	}
	if c.Episode.AggregateInterval <= 0 {
		return fmt.Errorf("aggregate interval must be positive")
	}
	return nil
}

// #endregion root
