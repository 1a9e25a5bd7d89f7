package metrics

import (
	"context"
	"testing"

	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// fakeSim serves canned lane readings; lanes absent from the metrics map
// report as unavailable.
type fakeSim struct {
	metrics  map[string]sim.LaneMetrics
	vehicles map[string][]sim.Vehicle
}

func (f *fakeSim) ReadLaneMetrics(ctx context.Context, laneID string) (sim.LaneMetrics, error) {
	m, ok := f.metrics[laneID]
	if !ok {
		return sim.LaneMetrics{}, &sim.ReadingUnavailableError{Lane: laneID}
	}
	return m, nil
}

func (f *fakeSim) ReadLanePresentVehicles(ctx context.Context, laneID string) ([]sim.Vehicle, error) {
	return f.vehicles[laneID], nil
}

func (f *fakeSim) LaneEdgeID(ctx context.Context, laneID string) (string, error) { return "", nil }
func (f *fakeSim) ControlledLinks(ctx context.Context, junctionID string) ([]sim.Link, error) {
	return nil, nil
}
func (f *fakeSim) SetSignalState(ctx context.Context, junctionID, state string) error { return nil }
func (f *fakeSim) GetSignalState(ctx context.Context, junctionID string) (string, error) {
	return "", nil
}
func (f *fakeSim) ListJunctions(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeSim) AdvanceOneStep(ctx context.Context) error            { return nil }
func (f *fakeSim) SimulationTime(ctx context.Context) (float64, error) { return 0, nil }

func TestClassify(t *testing.T) {
	cases := []struct {
		typeID string
		want   Category
	}{
		{"DEFAULT_AMBULANCE", CategoryAmbulance},
		{"emergency_van", CategoryAmbulance},
		{"city_bus", CategoryBus},
		{"motorcycle", CategoryMotorcycle},
		{"e-bike", CategoryMotorcycle},
		{"delivery_truck", CategoryTruck},
		{"semi_trailer", CategoryTruck},
		{"veh_passenger", CategoryCar},
		{"", CategoryCar},
		{"UNKNOWN_TYPE", CategoryCar},
	}
	for _, tc := range cases {
		if got := Classify(tc.typeID); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.typeID, got, tc.want)
		}
	}
}

func TestIsPriorityType(t *testing.T) {
	if !IsPriorityType("DEFAULT_AMBULANCE") {
		t.Error("ambulance not recognized as priority")
	}
	if IsPriorityType("city_bus") {
		t.Error("bus wrongly recognized as priority")
	}
}

func TestObserveAggregates(t *testing.T) {
	f := &fakeSim{
		metrics: map[string]sim.LaneMetrics{
			"a_0": {HaltedCount: 3, WaitingTime: 30, VehicleCount: 5, MeanSpeed: 4},
			"b_0": {HaltedCount: 1, WaitingTime: 10, VehicleCount: 2, MeanSpeed: 8},
		},
		vehicles: map[string][]sim.Vehicle{
			"a_0": {
				{ID: "v1", TypeID: "veh_passenger", AccumulatedWait: 12},
				{ID: "v2", TypeID: "DEFAULT_AMBULANCE", AccumulatedWait: 5},
			},
			"b_0": {
				{ID: "v3", TypeID: "veh_passenger", AccumulatedWait: 20},
			},
		},
	}
	tr := NewTracker(f, []string{"b_0", "a_0"})

	snap, err := tr.Observe(context.Background(), 10)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if snap.SimTime != 10 {
		t.Fatalf("sim time %f, want 10", snap.SimTime)
	}
	if snap.TotalQueue != 4 || snap.TotalWait != 40 || snap.Volume != 7 {
		t.Fatalf("totals wrong: queue=%d wait=%f volume=%d", snap.TotalQueue, snap.TotalWait, snap.Volume)
	}
	if snap.MeanSpeed != 6 {
		t.Fatalf("mean speed %f, want 6", snap.MeanSpeed)
	}

	cars := snap.ByCategory[CategoryCar]
	if cars.Count != 2 || cars.TotalWait != 32 || cars.MaxWait != 20 {
		t.Fatalf("car stats wrong: %+v", cars)
	}
	amb := snap.ByCategory[CategoryAmbulance]
	if amb.Count != 1 || amb.MaxWait != 5 {
		t.Fatalf("ambulance stats wrong: %+v", amb)
	}
}

func TestObserveSkipsUnavailableLanes(t *testing.T) {
	f := &fakeSim{
		metrics: map[string]sim.LaneMetrics{
			"a_0": {HaltedCount: 2, MeanSpeed: 4},
			// b_0 missing: unavailable
		},
	}
	tr := NewTracker(f, []string{"a_0", "b_0"})

	snap, err := tr.Observe(context.Background(), 0)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if snap.TotalQueue != 2 {
		t.Fatalf("queue %d, want 2", snap.TotalQueue)
	}
	if snap.MeanSpeed != 4 {
		t.Fatalf("mean speed %f must average readable lanes only", snap.MeanSpeed)
	}
}

func TestObserveAllUnavailable(t *testing.T) {
	tr := NewTracker(&fakeSim{}, []string{"a_0"})
	snap, err := tr.Observe(context.Background(), 0)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if snap.TotalQueue != 0 || snap.MeanSpeed != 0 {
		t.Fatalf("empty snapshot not zero: %+v", snap)
	}
}

func TestSummaryAveragesAndPeak(t *testing.T) {
	f := &fakeSim{metrics: map[string]sim.LaneMetrics{"a_0": {HaltedCount: 2}}}
	tr := NewTracker(f, []string{"a_0"})

	tr.Observe(context.Background(), 0)
	f.metrics["a_0"] = sim.LaneMetrics{HaltedCount: 6}
	tr.Observe(context.Background(), 1)

	s := tr.Summary()
	if s.Steps != 2 {
		t.Fatalf("steps %d, want 2", s.Steps)
	}
	if s.MeanQueue != 4 {
		t.Fatalf("mean queue %f, want 4", s.MeanQueue)
	}
	if s.PeakQueue != 6 {
		t.Fatalf("peak queue %d, want 6", s.PeakQueue)
	}
}

func TestSummaryAccumulatesCategories(t *testing.T) {
	f := &fakeSim{
		metrics: map[string]sim.LaneMetrics{"a_0": {}},
		vehicles: map[string][]sim.Vehicle{
			"a_0": {{ID: "v1", TypeID: "city_bus", AccumulatedWait: 10}},
		},
	}
	tr := NewTracker(f, []string{"a_0"})

	tr.Observe(context.Background(), 0)
	f.vehicles["a_0"] = []sim.Vehicle{{ID: "v1", TypeID: "city_bus", AccumulatedWait: 25}}
	tr.Observe(context.Background(), 1)

	bus := tr.Summary().ByCategory[CategoryBus]
	if bus.Count != 2 || bus.TotalWait != 35 || bus.MaxWait != 25 {
		t.Fatalf("bus totals wrong: %+v", bus)
	}
}

func TestResetClearsTotals(t *testing.T) {
	f := &fakeSim{
		metrics: map[string]sim.LaneMetrics{"a_0": {HaltedCount: 5}},
		vehicles: map[string][]sim.Vehicle{
			"a_0": {{ID: "v1", TypeID: "veh_passenger", AccumulatedWait: 10}},
		},
	}
	tr := NewTracker(f, []string{"a_0"})
	tr.Observe(context.Background(), 0)

	tr.Reset()
	s := tr.Summary()
	if s.Steps != 0 || s.MeanQueue != 0 || s.PeakQueue != 0 || len(s.ByCategory) != 0 {
		t.Fatalf("reset left totals behind: %+v", s)
	}
}
