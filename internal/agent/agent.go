// Package agent implements the per-junction learning agent: a live scoring
// network plus a target copy, a bounded experience buffer, epsilon-greedy
// action selection, and the batched temporal-difference training step.
package agent

import (
	"math/rand"

	"github.com/veghadev/fdrl-signals/go-controller/internal/features"
	"github.com/veghadev/fdrl-signals/go-controller/internal/policy"
)

// #region transition

// Transition is one stored experience. Immutable once stored; owned
// exclusively by this agent's replay buffer.
type Transition struct {
	Candidates     []features.Vector
	Context        features.Vector
	Action         int
	Reward         float32
	NextCandidates []features.Vector
	NextContext    features.Vector
	Terminal       bool
}

// #endregion transition

// #region config

// Config holds the agent's learning hyperparameters.
type Config struct {
	LearningRate    float32
	Gamma           float32
	Epsilon         float32
	EpsilonMin      float32
	EpsilonDecay    float32
	ClipNorm        float32
	BufferCapacity  int
	BatchSize       int
	TargetSyncEvery int
	Hidden          int
}

// DefaultConfig returns the standard hyperparameters.
func DefaultConfig() Config {
	return Config{
		LearningRate:    0.001,
		Gamma:           0.95,
		Epsilon:         1.0,
		EpsilonMin:      0.1,
		EpsilonDecay:    0.995,
		ClipNorm:        1.0,
		BufferCapacity:  5000,
		BatchSize:       32,
		TargetSyncEvery: 100,
		Hidden:          policy.DefaultHidden,
	}
}

// #endregion config

// #region agent

// Agent owns one live network, its target copy, and the replay buffer.
type Agent struct {
	cfg        Config
	net        *policy.Network
	target     *policy.Network
	opt        *policy.Adam
	replay     []Transition
	epsilon    float32
	trainSteps int
	rng        *rand.Rand
}

// New creates an agent with freshly initialized weights. rng drives both
// weight initialization and exploration.
func New(cfg Config, rng *rand.Rand) *Agent {
	net := policy.NewNetwork(2*features.Dim, cfg.Hidden, rng)
	return &Agent{
		cfg:     cfg,
		net:     net,
		target:  net.Clone(),
		opt:     policy.NewAdam(cfg.LearningRate),
		replay:  make([]Transition, 0, cfg.BufferCapacity),
		epsilon: cfg.Epsilon,
		rng:     rng,
	}
}

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float32 { return a.epsilon }

// BufferLen returns the number of stored transitions.
func (a *Agent) BufferLen() int { return len(a.replay) }

// #endregion agent

// #region select-action

// SelectAction returns the index of the chosen candidate and whether the
// choice was exploratory. With probability epsilon (only when explore is
// set) a uniformly random index is returned; otherwise every candidate is
// scored against the context by the live network and the arg-max index wins,
// ties broken by first occurrence.
func (a *Agent) SelectAction(candidates []features.Vector, context features.Vector, explore bool) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	if explore && a.rng.Float32() < a.epsilon {
		return a.rng.Intn(len(candidates)), true
	}

	best := 0
	bestScore := a.net.Score(features.Concat(candidates[0], context))
	for i := 1; i < len(candidates); i++ {
		score := a.net.Score(features.Concat(candidates[i], context))
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best, false
}

// BestScore returns the live network's score for one candidate, used for
// decision logging.
func (a *Agent) BestScore(candidate, context features.Vector) float32 {
	return a.net.Score(features.Concat(candidate, context))
}

// #endregion select-action

// #region replay-buffer

// StoreTransition appends to the replay buffer, evicting the oldest entry
// when at capacity. The buffer is a bounded FIFO, sampled uniformly, not by
// recency.
func (a *Agent) StoreTransition(t Transition) {
	if a.cfg.BufferCapacity <= 0 {
		return
	}
	if len(a.replay) >= a.cfg.BufferCapacity {
		copy(a.replay, a.replay[1:])
		a.replay[len(a.replay)-1] = t
		return
	}
	a.replay = append(a.replay, t)
}

// #endregion replay-buffer

// #region train

// TrainStep draws one uniform random batch (without replacement within the
// batch) and applies a gradient step against temporal-difference targets
// computed by the target network. A safe no-op while the buffer holds fewer
// entries than one batch. Returns the batch loss.
func (a *Agent) TrainStep() float32 {
	if len(a.replay) < a.cfg.BatchSize {
		return 0
	}

	perm := a.rng.Perm(len(a.replay))[:a.cfg.BatchSize]
	inputs := make([][]float32, a.cfg.BatchSize)
	targets := make([]float32, a.cfg.BatchSize)

	for i, idx := range perm {
		t := a.replay[idx]
		inputs[i] = features.Concat(t.Candidates[t.Action], t.Context)

		target := t.Reward
		if !t.Terminal {
			var maxNext float32
			for j, nc := range t.NextCandidates {
				score := a.target.Score(features.Concat(nc, t.NextContext))
				if j == 0 || score > maxNext {
					maxNext = score
				}
			}
			target += a.cfg.Gamma * maxNext
		}
		targets[i] = target
	}

	loss := a.net.TrainBatch(inputs, targets, a.opt, a.cfg.ClipNorm)

	a.trainSteps++
	if a.cfg.TargetSyncEvery > 0 && a.trainSteps%a.cfg.TargetSyncEvery == 0 {
		a.syncTarget()
	}
	if a.epsilon > a.cfg.EpsilonMin {
		a.epsilon *= a.cfg.EpsilonDecay
		if a.epsilon < a.cfg.EpsilonMin {
			a.epsilon = a.cfg.EpsilonMin
		}
	}
	return loss
}

// syncTarget copies live weights into the target network. This is the
// standard decorrelation device keeping the bootstrapped target from chasing
// the same weights being updated.
func (a *Agent) syncTarget() {
	a.target = a.net.Clone()
}

// #endregion train

// #region weights

// Weights exposes the live network's parameter set as a deep copy.
func (a *Agent) Weights() policy.Weights {
	return a.net.Weights()
}

// SetWeights replaces the live network's parameter set.
func (a *Agent) SetWeights(w policy.Weights) error {
	return a.net.SetWeights(w)
}

// Blend overwrites the live weights with alpha*local + (1-alpha)*global,
// preserving local specialization while pulling toward the federation
// consensus.
func (a *Agent) Blend(global policy.Weights, alpha float32) error {
	merged, err := policy.Blend(a.net.Weights(), global, alpha)
	if err != nil {
		return err
	}
	return a.net.SetWeights(merged)
}

// #endregion weights
