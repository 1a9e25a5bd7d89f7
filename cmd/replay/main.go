package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/veghadev/fdrl-signals/go-controller/internal/agent"
	"github.com/veghadev/fdrl-signals/go-controller/internal/decisions"
	"github.com/veghadev/fdrl-signals/go-controller/internal/features"
	"github.com/veghadev/fdrl-signals/go-controller/internal/junction"
	"github.com/veghadev/fdrl-signals/go-controller/internal/metrics"
	"github.com/veghadev/fdrl-signals/go-controller/internal/scenario"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	mode := flag.String("mode", "learned", "controller under replay: learned | fixed")
	cycle := flag.Float64("cycle", 30, "green seconds per edge in fixed mode")
	seed := flag.Int64("seed", 1, "random seed for the learned controller")
	jsonOut := flag.Bool("json", false, "output as JSON instead of text")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--mode learned|fixed] [--json]")
		os.Exit(2)
	}

	summary, dlog, err := runFixture(*fixturePath, *mode, *cycle, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		if err := printJSON(summary); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		printSummary(summary, dlog)
	}
	if !summary.Passed() {
		os.Exit(1)
	}
}

// #endregion main

// #region run

func runFixture(path, mode string, cycle float64, seed int64) (scenario.Summary, *decisions.Log, error) {
	fixture, err := scenario.LoadFixture(path)
	if err != nil {
		return scenario.Summary{}, nil, err
	}
	scripted := scenario.NewScripted(fixture)
	ctx := context.Background()

	dlog, err := decisions.NewLog(10000, nil)
	if err != nil {
		return scenario.Summary{}, nil, err
	}

	var controllers []junction.Controller
	for _, fj := range fixture.Junctions {
		switch mode {
		case "fixed":
			topo, err := junction.BuildTopology(ctx, scripted, fj.ID)
			if err != nil {
				return scenario.Summary{}, nil, err
			}
			controllers = append(controllers,
				junction.NewFixedTimeController(ctx, topo, scripted, cycle, junction.DefaultConfig().YellowSteps))
		case "learned":
			rng := rand.New(rand.NewSource(seed))
			ag := agent.New(agent.DefaultConfig(), rng)
			agg := features.NewAggregator(scripted, features.DefaultNormalizer(), metrics.IsPriorityType)
			cfg := junction.DefaultConfig()
			cfg.Training = false
			c, err := junction.NewLearnedController(ctx, scripted, fj.ID, ag, agg, cfg, dlog)
			if err != nil {
				return scenario.Summary{}, nil, err
			}
			controllers = append(controllers, c)
		default:
			return scenario.Summary{}, nil, fmt.Errorf("unknown mode %q", mode)
		}
	}

	summary, err := scenario.Replay(ctx, scripted, controllers)
	if err != nil {
		return scenario.Summary{}, nil, err
	}
	return summary, dlog, nil
}

// #endregion run

// #region output

func printSummary(s scenario.Summary, dlog *decisions.Log) {
	fmt.Printf("Scenario:  %s\n", s.Description)
	fmt.Printf("Steps:     %d\n", s.Steps)
	fmt.Printf("Commands:  %d\n", len(s.Commands))
	for id, n := range s.Switches {
		fmt.Printf("  %-12s %d state changes\n", id, n)
	}

	if recent := dlog.Recent(20); len(recent) > 0 {
		fmt.Println("\nLast decisions:")
		for _, rec := range recent {
			fmt.Printf("  t=%-8.1f %-12s %s\n", rec.SimTime, rec.JunctionID, decisions.Explain(rec))
		}
	}

	if s.Passed() {
		fmt.Println("\nAll expectations held.")
		return
	}
	fmt.Printf("\n%d expectation(s) violated:\n", len(s.Mismatches))
	for _, m := range s.Mismatches {
		fmt.Printf("  t=%-8.1f %-12s want %q got %q\n", m.Time, m.JunctionID, m.Want, m.Got)
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion output
