// Package metrics classifies vehicles into reporting categories and tracks
// per-episode traffic statistics across the controlled lanes.
package metrics

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// #region categories

// Category is a coarse vehicle class used for reporting and for priority
// detection.
type Category string

const (
	CategoryCar        Category = "car"
	CategoryBus        Category = "bus"
	CategoryTruck      Category = "truck"
	CategoryMotorcycle Category = "motorcycle"
	CategoryAmbulance  Category = "ambulance"
)

// Classify maps a simulator vehicle type id to a reporting category. The
// match is a case-insensitive substring check so type ids like
// "veh_passenger" or "DEFAULT_AMBULANCE" resolve without a registry.
func Classify(typeID string) Category {
	t := strings.ToLower(typeID)
	switch {
	case strings.Contains(t, "ambulance"), strings.Contains(t, "emergency"):
		return CategoryAmbulance
	case strings.Contains(t, "bus"):
		return CategoryBus
	case strings.Contains(t, "motorcycle"), strings.Contains(t, "bike"):
		return CategoryMotorcycle
	case strings.Contains(t, "truck"), strings.Contains(t, "trailer"):
		return CategoryTruck
	default:
		return CategoryCar
	}
}

// IsPriorityType reports whether a vehicle type id warrants signal priority.
func IsPriorityType(typeID string) bool {
	return Classify(typeID) == CategoryAmbulance
}

// #endregion categories

// #region snapshot

// CategoryStats accumulates waiting statistics for one vehicle category.
type CategoryStats struct {
	Count     int
	TotalWait float64
	MaxWait   float64
}

// Snapshot is the aggregate traffic picture over a set of lanes at one
// simulation step.
type Snapshot struct {
	SimTime    float64
	TotalQueue int
	TotalWait  float64
	MeanSpeed  float64
	Volume     int
	ByCategory map[Category]CategoryStats
}

// #endregion snapshot

// #region tracker

// Tracker scans the controlled lanes and maintains running episode totals.
// Lanes that fail to report are skipped; a snapshot over zero readable lanes
// is valid and empty.
type Tracker struct {
	sim   sim.Simulator
	lanes []string

	steps      int
	queueSum   float64
	waitSum    float64
	speedSum   float64
	volumeSum  float64
	peakQueue  int
	categories map[Category]CategoryStats
}

// NewTracker builds a tracker over a fixed lane set. The lane order is
// normalized so snapshots are deterministic.
func NewTracker(s sim.Simulator, lanes []string) *Tracker {
	sorted := append([]string(nil), lanes...)
	sort.Strings(sorted)
	return &Tracker{
		sim:        s,
		lanes:      sorted,
		categories: make(map[Category]CategoryStats),
	}
}

// Observe reads every tracked lane once and folds the result into the
// episode totals, returning the step snapshot.
func (t *Tracker) Observe(ctx context.Context, simTime float64) (Snapshot, error) {
	snap := Snapshot{
		SimTime:    simTime,
		ByCategory: make(map[Category]CategoryStats),
	}

	readable := 0
	var speedSum float64
	for _, lane := range t.lanes {
		m, err := t.sim.ReadLaneMetrics(ctx, lane)
		if err != nil {
			if sim.IsReadingUnavailable(err) {
				continue
			}
			return Snapshot{}, fmt.Errorf("lane metrics %s: %w", lane, err)
		}
		readable++
		snap.TotalQueue += m.HaltedCount
		snap.TotalWait += float64(m.WaitingTime)
		snap.Volume += m.VehicleCount
		speedSum += float64(m.MeanSpeed)

		vehicles, err := t.sim.ReadLanePresentVehicles(ctx, lane)
		if err != nil {
			if sim.IsReadingUnavailable(err) {
				continue
			}
			return Snapshot{}, fmt.Errorf("lane vehicles %s: %w", lane, err)
		}
		for _, v := range vehicles {
			cat := Classify(v.TypeID)
			cs := snap.ByCategory[cat]
			cs.Count++
			cs.TotalWait += float64(v.AccumulatedWait)
			if float64(v.AccumulatedWait) > cs.MaxWait {
				cs.MaxWait = float64(v.AccumulatedWait)
			}
			snap.ByCategory[cat] = cs
		}
	}
	if readable > 0 {
		snap.MeanSpeed = speedSum / float64(readable)
	}

	t.steps++
	t.queueSum += float64(snap.TotalQueue)
	t.waitSum += snap.TotalWait
	t.speedSum += snap.MeanSpeed
	t.volumeSum += float64(snap.Volume)
	if snap.TotalQueue > t.peakQueue {
		t.peakQueue = snap.TotalQueue
	}
	for cat, cs := range snap.ByCategory {
		total := t.categories[cat]
		total.Count += cs.Count
		total.TotalWait += cs.TotalWait
		if cs.MaxWait > total.MaxWait {
			total.MaxWait = cs.MaxWait
		}
		t.categories[cat] = total
	}
	return snap, nil
}

// #endregion tracker

// #region episode-summary

// EpisodeSummary is the tracker's running totals averaged over observed
// steps.
type EpisodeSummary struct {
	Steps      int
	MeanQueue  float64
	MeanWait   float64
	MeanSpeed  float64
	MeanVolume float64
	PeakQueue  int
	ByCategory map[Category]CategoryStats
}

// Summary returns the episode totals so far.
func (t *Tracker) Summary() EpisodeSummary {
	s := EpisodeSummary{
		Steps:      t.steps,
		PeakQueue:  t.peakQueue,
		ByCategory: make(map[Category]CategoryStats, len(t.categories)),
	}
	for cat, cs := range t.categories {
		s.ByCategory[cat] = cs
	}
	if t.steps > 0 {
		n := float64(t.steps)
		s.MeanQueue = t.queueSum / n
		s.MeanWait = t.waitSum / n
		s.MeanSpeed = t.speedSum / n
		s.MeanVolume = t.volumeSum / n
	}
	return s
}

// Reset clears the episode totals for the next episode.
func (t *Tracker) Reset() {
	t.steps = 0
	t.queueSum = 0
	t.waitSum = 0
	t.speedSum = 0
	t.volumeSum = 0
	t.peakQueue = 0
	t.categories = make(map[Category]CategoryStats)
}

// LogSummary emits the episode totals in one line per category.
func (t *Tracker) LogSummary(episode int) {
	s := t.Summary()
	log.Printf("[MET] episode %d: steps=%d mean_queue=%.2f mean_wait=%.1f mean_speed=%.2f peak_queue=%d",
		episode, s.Steps, s.MeanQueue, s.MeanWait, s.MeanSpeed, s.PeakQueue)
	cats := make([]string, 0, len(s.ByCategory))
	for cat := range s.ByCategory {
		cats = append(cats, string(cat))
	}
	sort.Strings(cats)
	for _, cat := range cats {
		cs := s.ByCategory[Category(cat)]
		log.Printf("[MET]   %-10s count=%d total_wait=%.1f max_wait=%.1f", cat, cs.Count, cs.TotalWait, cs.MaxWait)
	}
}

// #endregion episode-summary
