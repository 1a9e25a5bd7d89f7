package episode

import (
	"context"
	"math/rand"
	"testing"

	"github.com/veghadev/fdrl-signals/go-controller/internal/agent"
	"github.com/veghadev/fdrl-signals/go-controller/internal/decisions"
	"github.com/veghadev/fdrl-signals/go-controller/internal/features"
	"github.com/veghadev/fdrl-signals/go-controller/internal/federation"
	"github.com/veghadev/fdrl-signals/go-controller/internal/junction"
	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// #region fakes

// countingSim is a minimal simulator whose clock advances one second per
// step. It serves two single-edge junctions so learned controllers can be
// built against it.
type countingSim struct {
	now      float64
	advances int
	states   map[string]string
}

func newCountingSim() *countingSim {
	return &countingSim{states: make(map[string]string)}
}

func (f *countingSim) ReadLaneMetrics(ctx context.Context, laneID string) (sim.LaneMetrics, error) {
	return sim.LaneMetrics{}, nil
}

func (f *countingSim) ReadLanePresentVehicles(ctx context.Context, laneID string) ([]sim.Vehicle, error) {
	return nil, nil
}

func (f *countingSim) LaneEdgeID(ctx context.Context, laneID string) (string, error) {
	// lane ids look like "J1_north_0"
	return laneID[:len(laneID)-2], nil
}

func (f *countingSim) ControlledLinks(ctx context.Context, junctionID string) ([]sim.Link, error) {
	return []sim.Link{
		{IncomingLane: junctionID + "_north_0", OutgoingLane: "out_0"},
		{IncomingLane: junctionID + "_south_0", OutgoingLane: "out_1"},
	}, nil
}

func (f *countingSim) SetSignalState(ctx context.Context, junctionID, state string) error {
	f.states[junctionID] = state
	return nil
}

func (f *countingSim) GetSignalState(ctx context.Context, junctionID string) (string, error) {
	return f.states[junctionID], nil
}

func (f *countingSim) ListJunctions(ctx context.Context) ([]string, error) {
	return []string{"J1", "J2"}, nil
}

func (f *countingSim) AdvanceOneStep(ctx context.Context) error {
	f.advances++
	f.now++
	return nil
}

func (f *countingSim) SimulationTime(ctx context.Context) (float64, error) { return f.now, nil }

// recordingController notes every Step and Reset it receives.
type recordingController struct {
	id        string
	stepTimes []float64
	resets    int
}

func (c *recordingController) JunctionID() string { return c.id }

func (c *recordingController) Step(ctx context.Context, now float64) error {
	c.stepTimes = append(c.stepTimes, now)
	return nil
}

func (c *recordingController) Reset(ctx context.Context) error {
	c.resets++
	return nil
}

// #endregion fakes

// #region helpers

func newLearned(t *testing.T, f *countingSim, junctionID string, seed int64) *junction.LearnedController {
	t.Helper()
	jcfg := junction.DefaultConfig()
	jcfg.Training = false
	jcfg.PriorityOverride = false
	jcfg.MaxRed = 0
	ag := agent.New(agent.DefaultConfig(), rand.New(rand.NewSource(seed)))
	agg := features.NewAggregator(f, features.DefaultNormalizer(), nil)
	c, err := junction.NewLearnedController(context.Background(), f, junctionID, ag, agg, jcfg, nil)
	if err != nil {
		t.Fatalf("NewLearnedController: %v", err)
	}
	return c
}

func shortConfig(steps int) Config {
	cfg := DefaultConfig()
	cfg.Episodes = 1
	cfg.StepsPerEpisode = steps
	cfg.WarmupSteps = 0
	cfg.AggregateInterval = 0
	cfg.StatsInterval = 0
	return cfg
}

// #endregion helpers

// #region tests

func TestRunEpisodeAdvancesEveryStep(t *testing.T) {
	f := newCountingSim()
	o := NewOrchestrator(f, nil, nil, nil, nil, nil, shortConfig(25))

	if err := o.RunEpisode(context.Background(), 1); err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if f.advances != 25 {
		t.Fatalf("simulator advanced %d times, want 25", f.advances)
	}
}

func TestWarmupSkipsControllerSteps(t *testing.T) {
	f := newCountingSim()
	rc := &recordingController{id: "J1"}
	cfg := shortConfig(20)
	cfg.WarmupSteps = 5
	o := NewOrchestrator(f, []junction.Controller{rc}, nil, nil, nil, nil, cfg)

	if err := o.RunEpisode(context.Background(), 1); err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if len(rc.stepTimes) != 15 {
		t.Fatalf("controller stepped %d times, want 15", len(rc.stepTimes))
	}
	if rc.stepTimes[0] != 5 {
		t.Fatalf("first controller step at t=%f, want 5", rc.stepTimes[0])
	}
}

func TestAggregationCadence(t *testing.T) {
	f := newCountingSim()
	c1 := newLearned(t, f, "J1", 1)
	c2 := newLearned(t, f, "J2", 2)
	server := federation.NewServer(c1.Weights(), federation.DefaultConfig(), nil)

	cfg := shortConfig(10)
	cfg.AggregateInterval = 3
	cfg.BlendAlpha = 0
	o := NewOrchestrator(f,
		[]junction.Controller{c1, c2},
		[]*junction.LearnedController{c1, c2},
		server, nil, nil, cfg)

	if err := o.RunEpisode(context.Background(), 1); err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	// Steps 3, 6 and 9 fire a round; step 0 must not.
	if server.Round() != 3 {
		t.Fatalf("federation rounds %d, want 3", server.Round())
	}

	// With alpha=0 every agent adopted the merged set wholesale, so the two
	// agents now agree.
	w1, w2 := c1.Weights(), c2.Weights()
	for name := range w1 {
		for i := range w1[name].Data {
			if w1[name].Data[i] != w2[name].Data[i] {
				t.Fatalf("agents disagree on %s[%d] after full blend", name, i)
			}
		}
	}
}

func TestRunResetsBetweenEpisodes(t *testing.T) {
	f := newCountingSim()
	rc := &recordingController{id: "J1"}
	dlog, err := decisions.NewLog(100, nil)
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	cfg := shortConfig(5)
	cfg.Episodes = 3
	o := NewOrchestrator(f, []junction.Controller{rc}, nil, nil, nil, dlog, cfg)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rc.resets != 3 {
		t.Fatalf("controller reset %d times, want 3 (once per episode)", rc.resets)
	}
	if dlog.Episode() != 3 {
		t.Fatalf("decision log on episode %d, want 3", dlog.Episode())
	}
	if f.advances != 15 {
		t.Fatalf("simulator advanced %d times, want 15", f.advances)
	}
}

func TestRunEpisodeStopsOnCancel(t *testing.T) {
	f := newCountingSim()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(f, nil, nil, nil, nil, nil, shortConfig(100))
	if err := o.RunEpisode(ctx, 1); err == nil {
		t.Fatal("expected context error")
	}
	if f.advances != 0 {
		t.Fatalf("simulator advanced %d times after cancellation", f.advances)
	}
}

// #endregion tests
