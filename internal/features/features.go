// Package features reduces lane-level simulator readings to the fixed-size
// numeric vectors consumed by the scoring network. Aggregation is a pure
// function of the current readings; lanes whose readings are momentarily
// unavailable are skipped, never fatal.
package features

import (
	"context"
	"math"

	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// #region vector

// Vector index layout. The first five slots come straight from lane
// readings, the next three from the priority-vehicle scan, and the last two
// are filled in by the junction controller per candidate edge.
const (
	IdxQueue = iota
	IdxWait
	IdxSpeed
	IdxVolume
	IdxOccupancy
	IdxPriorityCount
	IdxPriorityWait
	IdxPriorityPresent
	IdxTimeSinceGreen
	IdxIsGreen

	Dim // total vector length
)

// Vector is one fixed-length feature vector, produced fresh every decision.
type Vector [Dim]float32

// Concat joins a candidate vector and a context vector into one network
// input slice.
func Concat(candidate, context Vector) []float32 {
	out := make([]float32, 2*Dim)
	copy(out[:Dim], candidate[:])
	copy(out[Dim:], context[:])
	return out
}

// #endregion vector

// #region normalizer

// Normalizer scales raw feature values to [0,1]. Count-like features use
// logarithmic scaling, which preserves sensitivity near zero while bounding
// large values; speed uses linear scaling; occupancy and boolean flags pass
// through unchanged.
type Normalizer struct {
	MaxQueue         float32
	MaxWait          float32
	MaxSpeed         float32
	MaxVolume        float32
	MaxPriorityCount float32
	MaxPriorityWait  float32
}

// DefaultNormalizer returns caps tuned for urban arterial traffic.
func DefaultNormalizer() *Normalizer {
	return &Normalizer{
		MaxQueue:         50,
		MaxWait:          300,
		MaxSpeed:         20,
		MaxVolume:        10,
		MaxPriorityCount: 5,
		MaxPriorityWait:  300,
	}
}

// logScale maps x to log(x+1)/log(max+1), clamped to [0,1].
func logScale(x, max float32) float32 {
	if x <= 0 || max <= 0 {
		return 0
	}
	v := float32(math.Log(float64(x)+1) / math.Log(float64(max)+1))
	if v > 1 {
		return 1
	}
	return v
}

// linScale maps x to x/max, clamped to [0,1].
func linScale(x, max float32) float32 {
	if x <= 0 || max <= 0 {
		return 0
	}
	v := x / max
	if v > 1 {
		return 1
	}
	return v
}

// Scale normalizes a raw vector in place and returns it.
func (n *Normalizer) Scale(v Vector) Vector {
	v[IdxQueue] = logScale(v[IdxQueue], n.MaxQueue)
	v[IdxWait] = logScale(v[IdxWait], n.MaxWait)
	v[IdxSpeed] = linScale(v[IdxSpeed], n.MaxSpeed)
	v[IdxVolume] = logScale(v[IdxVolume], n.MaxVolume)
	v[IdxPriorityCount] = logScale(v[IdxPriorityCount], n.MaxPriorityCount)
	v[IdxPriorityWait] = logScale(v[IdxPriorityWait], n.MaxPriorityWait)
	// occupancy, flags, and controller-filled slots pass through
	return v
}

// #endregion normalizer

// #region aggregator

// Aggregator reduces a set of lanes to one feature vector.
type Aggregator struct {
	sim        sim.Simulator
	norm       *Normalizer // nil = raw values
	isPriority func(typeID string) bool
}

// NewAggregator creates an aggregator. norm may be nil for raw output.
// isPriority may be nil to disable the priority-vehicle scan.
func NewAggregator(s sim.Simulator, norm *Normalizer, isPriority func(string) bool) *Aggregator {
	return &Aggregator{sim: s, norm: norm, isPriority: isPriority}
}

// Aggregate reduces the given lanes to one vector: total halted vehicles,
// total waiting time, mean speed over available lanes, total vehicle count,
// mean occupancy, plus priority-vehicle statistics when a predicate is set.
// Lanes whose readings are unavailable are excluded from the aggregate.
func (a *Aggregator) Aggregate(ctx context.Context, lanes []string) Vector {
	var v Vector
	var speedSum, occSum float32
	available := 0

	for _, lane := range lanes {
		m, err := a.sim.ReadLaneMetrics(ctx, lane)
		if err != nil {
			continue
		}
		v[IdxQueue] += float32(m.HaltedCount)
		v[IdxWait] += m.WaitingTime
		v[IdxVolume] += float32(m.VehicleCount)
		speedSum += m.MeanSpeed
		occSum += m.Occupancy
		available++
	}
	if available > 0 {
		v[IdxSpeed] = speedSum / float32(available)
		v[IdxOccupancy] = occSum / float32(available)
	}

	if a.isPriority != nil {
		count, wait := a.priorityStats(ctx, lanes)
		v[IdxPriorityCount] = float32(count)
		v[IdxPriorityWait] = wait
		if count > 0 {
			v[IdxPriorityPresent] = 1
		}
	}

	if a.norm != nil {
		v = a.norm.Scale(v)
	}
	return v
}

// priorityStats scans the vehicles present on the lanes and totals the ones
// matching the priority predicate.
func (a *Aggregator) priorityStats(ctx context.Context, lanes []string) (int, float32) {
	count := 0
	var wait float32
	for _, lane := range lanes {
		vehicles, err := a.sim.ReadLanePresentVehicles(ctx, lane)
		if err != nil {
			continue
		}
		for _, veh := range vehicles {
			if a.isPriority(veh.TypeID) {
				count++
				wait += veh.AccumulatedWait
			}
		}
	}
	return count, wait
}

// #endregion aggregator
