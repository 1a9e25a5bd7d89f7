package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/veghadev/fdrl-signals/go-controller/internal/policy"
	"github.com/veghadev/fdrl-signals/go-controller/internal/weightstore"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to weights.db")
	decisionsPath := flag.String("decisions", "", "path to decisions.db")
	last := flag.Int("last", 20, "show N most recent entries")
	version := flag.String("version", "", "show single weight version detail")
	junctionID := flag.String("junction", "", "filter decisions to one junction")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" && *decisionsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/weights.db [--last N] [--version id] [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --decisions path/to/decisions.db [--last N] [--junction id] [--json]")
		os.Exit(2)
	}

	if *decisionsPath != "" {
		if err := runDecisionMode(*decisionsPath, *last, *junctionID, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	store, err := weightstore.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *version != "" {
		err = runDetailMode(store, *version, *jsonOut)
	} else {
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region weight-list

type listRow struct {
	VersionID string             `json:"version_id"`
	ParentID  string             `json:"parent_id,omitempty"`
	Round     int                `json:"round"`
	TotalNorm float64            `json:"total_norm"`
	ByTensor  map[string]float64 `json:"tensor_norms"`
	CreatedAt string             `json:"created_at"`
}

func runListMode(store *weightstore.Store, last int, jsonOut bool) error {
	versions, err := store.ListVersions(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	// store returns DESC, reverse for chronological
	rows := make([]listRow, len(versions))
	for i, v := range versions {
		rows[len(versions)-1-i] = listRow{
			VersionID: v.VersionID,
			ParentID:  v.ParentID,
			Round:     v.Round,
			TotalNorm: totalNorm(v.Weights),
			ByTensor:  tensorNorms(v.Weights),
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %6s  %12s  %s\n", "Version", "Round", "Total Norm", "Time")
	fmt.Printf("%-12s+-%6s+-%12s+-%s\n", "------------", "------", "------------", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-12s  %6d  %12.4f  %s\n", shortID(r.VersionID), r.Round, r.TotalNorm, r.CreatedAt)
	}
	return nil
}

// #endregion weight-list

// #region weight-detail

func runDetailMode(store *weightstore.Store, versionID string, jsonOut bool) error {
	v, err := store.GetVersion(versionID)
	if err != nil {
		return err
	}

	row := listRow{
		VersionID: v.VersionID,
		ParentID:  v.ParentID,
		Round:     v.Round,
		TotalNorm: totalNorm(v.Weights),
		ByTensor:  tensorNorms(v.Weights),
		CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if jsonOut {
		return printJSON(row)
	}

	fmt.Printf("Version:    %s\n", row.VersionID)
	fmt.Printf("Parent:     %s\n", row.ParentID)
	fmt.Printf("Round:      %d\n", row.Round)
	fmt.Printf("Created:    %s\n", row.CreatedAt)
	fmt.Printf("Total Norm: %.4f\n", row.TotalNorm)
	fmt.Printf("\nTensor norms:\n")
	for _, name := range policy.TensorNames() {
		if norm, ok := row.ByTensor[name]; ok {
			fmt.Printf("  %-12s %.4f\n", name, norm)
		}
	}
	return nil
}

// #endregion weight-detail

// #region decision-mode

type decisionRow struct {
	JunctionID string  `json:"junction_id"`
	Episode    int     `json:"episode"`
	SimTime    float64 `json:"sim_time"`
	ChosenEdge string  `json:"chosen_edge"`
	Reason     string  `json:"reason"`
	QValue     float64 `json:"q_value"`
	Epsilon    float64 `json:"epsilon"`
	Switched   bool    `json:"switched"`
}

func runDecisionMode(path string, last int, junctionID string, jsonOut bool) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	query := `SELECT junction_id, episode, sim_time, chosen_edge, reason, q_value, epsilon, switched
	          FROM decision_log`
	args := []interface{}{}
	if junctionID != "" {
		query += ` WHERE junction_id = ?`
		args = append(args, junctionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, last)

	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []decisionRow
	for rows.Next() {
		var r decisionRow
		var switched int
		if err := rows.Scan(&r.JunctionID, &r.Episode, &r.SimTime, &r.ChosenEdge, &r.Reason, &r.QValue, &r.Epsilon, &switched); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		r.Switched = switched != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// query returns DESC, reverse for chronological
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	if jsonOut {
		return printJSON(out)
	}
	fmt.Printf("%-12s  %4s  %10s  %-16s  %-16s  %8s  %5s\n",
		"Junction", "Ep", "Time", "Edge", "Reason", "Q", "Eps")
	for _, r := range out {
		fmt.Printf("%-12s  %4d  %10.1f  %-16s  %-16s  %8.3f  %5.2f\n",
			r.JunctionID, r.Episode, r.SimTime, r.ChosenEdge, r.Reason, r.QValue, r.Epsilon)
	}
	return nil
}

// #endregion decision-mode

// #region norms

func totalNorm(w policy.Weights) float64 {
	var sum float64
	for _, t := range w {
		for _, f := range t.Data {
			sum += float64(f) * float64(f)
		}
	}
	return math.Sqrt(sum)
}

func tensorNorms(w policy.Weights) map[string]float64 {
	out := make(map[string]float64, len(w))
	for name, t := range w {
		var sum float64
		for _, f := range t.Data {
			sum += float64(f) * float64(f)
		}
		out[name] = math.Sqrt(sum)
	}
	return out
}

// #endregion norms

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
