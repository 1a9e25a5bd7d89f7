// Package federation merges per-junction agent weights into one global
// parameter set using robust statistics, and redistributes the merged set.
// Clients whose contribution deviates too far from the cross-client median
// are down-weighted, not excluded, so one noisy round never silences a
// client permanently.
package federation

import (
	"log"
	"math"
	"sort"

	"github.com/veghadev/fdrl-signals/go-controller/internal/policy"
	"github.com/veghadev/fdrl-signals/go-controller/internal/weightstore"
)

// #region config

// Config holds the robust-aggregation parameters.
type Config struct {
	BaseThreshold     float32 // outlier-ratio threshold at round 0
	FloorThreshold    float32 // threshold never relaxes below this
	ThresholdRelax    float32 // per-round linear relaxation
	OutlierMultiplier float32 // deviation cutoff: multiplier * (std + eps)
	Epsilon           float32 // numeric guard added to std
	PenaltyFactor     float32 // contribution weight of an outlier client
}

// DefaultConfig returns the standard aggregation parameters: start strict at
// 0.3 and relax toward 0.1 as rounds accumulate.
func DefaultConfig() Config {
	return Config{
		BaseThreshold:     0.3,
		FloorThreshold:    0.1,
		ThresholdRelax:    0.01,
		OutlierMultiplier: 1.5,
		Epsilon:           1e-6,
		PenaltyFactor:     0.5,
	}
}

// #endregion config

// #region server

// Server holds the federation's canonical parameter values, versioned by its
// round counter. The global set is handed out by value only.
type Server struct {
	cfg    Config
	global policy.Weights
	rounds int
	store  *weightstore.Store // nil = no persistence
}

// NewServer seeds the server with a baseline weight set. store may be nil.
func NewServer(baseline policy.Weights, cfg Config, store *weightstore.Store) *Server {
	return &Server{cfg: cfg, global: baseline.Clone(), store: store}
}

// Round returns the number of completed aggregation rounds.
func (s *Server) Round() int { return s.rounds }

// GlobalWeights returns a deep copy of the current global set.
func (s *Server) GlobalWeights() policy.Weights { return s.global.Clone() }

// threshold computes the adaptive outlier-ratio threshold for the current
// round.
func (s *Server) threshold() float32 {
	t := s.cfg.BaseThreshold - float32(s.rounds)*s.cfg.ThresholdRelax
	if t < s.cfg.FloorThreshold {
		t = s.cfg.FloorThreshold
	}
	return t
}

// #endregion server

// #region aggregate

// Aggregate merges the client weight sets into a new global set and advances
// the round counter. An empty client list returns the current global set
// unchanged without consuming a round.
func (s *Server) Aggregate(clients []policy.Weights) policy.Weights {
	if len(clients) == 0 {
		return s.global.Clone()
	}

	log.Printf("[FED] aggregating weights from %d agents (round %d, threshold %.2f)",
		len(clients), s.rounds+1, s.threshold())

	merged := make(policy.Weights, len(s.global))
	threshold := s.threshold()
	for name, gt := range s.global {
		stack := make([]policy.Tensor, 0, len(clients))
		for _, client := range clients {
			ct, ok := client[name]
			if !ok || len(ct.Data) != len(gt.Data) {
				stack = nil
				break
			}
			stack = append(stack, ct)
		}
		if stack == nil {
			// malformed client set: keep the previous global tensor
			log.Printf("[FED] tensor %q missing or misshaped in a client set, keeping global", name)
			merged[name] = gt.Clone()
			continue
		}
		merged[name] = aggregateTensor(stack, threshold, s.cfg)
	}

	s.global = merged
	s.rounds++

	if s.store != nil {
		if _, err := s.store.CommitVersion(s.rounds, s.global); err != nil {
			log.Printf("[FED] failed to persist global weights: %v", err)
		}
	}
	return s.global.Clone()
}

// aggregateTensor merges one tensor position across all clients: per-element
// median and standard deviation, per-client outlier ratio, soft half-weight
// penalty past the threshold, then a normalized weighted sum.
func aggregateTensor(stack []policy.Tensor, threshold float32, cfg Config) policy.Tensor {
	n := len(stack)
	size := len(stack[0].Data)
	median := make([]float32, size)
	std := make([]float32, size)

	column := make([]float32, n)
	for i := 0; i < size; i++ {
		var mean float32
		for c := 0; c < n; c++ {
			column[c] = stack[c].Data[i]
			mean += stack[c].Data[i]
		}
		mean /= float32(n)

		sort.Slice(column, func(a, b int) bool { return column[a] < column[b] })
		median[i] = column[(n-1)/2]

		if n > 1 {
			var sumSq float64
			for c := 0; c < n; c++ {
				d := float64(stack[c].Data[i] - mean)
				sumSq += d * d
			}
			std[i] = float32(math.Sqrt(sumSq / float64(n-1)))
		}
	}

	factors := make([]float32, n)
	var total float32
	for c := 0; c < n; c++ {
		outliers := 0
		for i := 0; i < size; i++ {
			dev := stack[c].Data[i] - median[i]
			if dev < 0 {
				dev = -dev
			}
			if dev > cfg.OutlierMultiplier*(std[i]+cfg.Epsilon) {
				outliers++
			}
		}
		ratio := float32(outliers) / float32(size)
		if ratio > threshold {
			factors[c] = cfg.PenaltyFactor
		} else {
			factors[c] = 1
		}
		total += factors[c]
	}

	out := policy.Tensor{Rows: stack[0].Rows, Cols: stack[0].Cols, Data: make([]float32, size)}
	for c := 0; c < n; c++ {
		w := factors[c] / total
		for i := 0; i < size; i++ {
			out.Data[i] += w * stack[c].Data[i]
		}
	}
	return out
}

// #endregion aggregate
