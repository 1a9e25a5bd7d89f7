// Package decisions records why each signal decision was made: a bounded
// in-memory history for live queries plus optional SQLite persistence for
// offline inspection.
package decisions

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema

const decisionLogSchema = `
CREATE TABLE IF NOT EXISTS decision_log (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    junction_id   TEXT NOT NULL,
    episode       INTEGER NOT NULL,
    sim_time      REAL NOT NULL,
    chosen_edge   TEXT NOT NULL,
    alternatives  TEXT,
    reason        TEXT NOT NULL,
    q_value       REAL NOT NULL DEFAULT 0,
    epsilon       REAL NOT NULL DEFAULT 0,
    switched      INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_log_junction
ON decision_log(junction_id, episode);
`

// #endregion schema

// #region log-struct

// Log keeps the most recent decisions in memory and optionally persists
// every record to SQLite. It is stepped from a single thread of control and
// needs no locking.
type Log struct {
	history []Record // ring, oldest first
	max     int
	episode int
	db      *sql.DB // nil = memory only
}

// NewLog creates a decision log holding at most max records in memory.
// db may be nil to disable persistence.
func NewLog(max int, db *sql.DB) (*Log, error) {
	if max <= 0 {
		return nil, fmt.Errorf("decision log capacity %d, must be positive", max)
	}
	if db != nil {
		if _, err := db.Exec(decisionLogSchema); err != nil {
			return nil, fmt.Errorf("decision log schema: %w", err)
		}
	}
	return &Log{max: max, db: db}, nil
}

// OpenDB opens a dedicated SQLite file for decision persistence.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open decision db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	return db, nil
}

// #endregion log-struct

// #region record

// Record appends one decision, evicting the oldest in-memory entry when at
// capacity. Persistence failures are logged, never propagated.
func (l *Log) Record(rec Record) {
	rec.Episode = l.episode
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if len(l.history) >= l.max {
		copy(l.history, l.history[1:])
		l.history[len(l.history)-1] = rec
	} else {
		l.history = append(l.history, rec)
	}

	if l.db == nil {
		return
	}
	switched := 0
	if rec.Switched {
		switched = 1
	}
	_, err := l.db.Exec(`
		INSERT INTO decision_log
		(junction_id, episode, sim_time, chosen_edge, alternatives, reason,
		 q_value, epsilon, switched, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JunctionID,
		rec.Episode,
		rec.SimTime,
		rec.ChosenEdge,
		strings.Join(rec.Alternatives, ","),
		string(rec.Reason),
		rec.QValue,
		rec.Epsilon,
		switched,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		log.Printf("[DEC] failed to persist decision: %v", err)
	}
}

// #endregion record

// #region queries

// Recent returns the last n decisions across all junctions.
func (l *Log) Recent(n int) []Record {
	if n > len(l.history) {
		n = len(l.history)
	}
	out := make([]Record, n)
	copy(out, l.history[len(l.history)-n:])
	return out
}

// ForJunction returns the last n decisions of one junction.
func (l *Log) ForJunction(junctionID string, n int) []Record {
	var out []Record
	for i := len(l.history) - 1; i >= 0 && len(out) < n; i-- {
		if l.history[i].JunctionID == junctionID {
			out = append(out, l.history[i])
		}
	}
	// reverse back to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Summarize aggregates the in-memory decisions of one episode.
func (l *Log) Summarize(episode int) Summary {
	s := Summary{ByReason: make(map[Reason]int)}
	for _, rec := range l.history {
		if rec.Episode != episode {
			continue
		}
		s.Total++
		s.ByReason[rec.Reason]++
		if rec.Switched {
			s.Switches++
		}
	}
	return s
}

// Episode returns the current episode number.
func (l *Log) Episode() int { return l.episode }

// NextEpisode increments the episode counter applied to new records.
func (l *Log) NextEpisode() { l.episode++ }

// #endregion queries

// #region explain

// Explain renders a human-readable explanation of one decision.
func Explain(rec Record) string {
	switch rec.Reason {
	case ReasonPriority:
		return fmt.Sprintf("PRIORITY: switched to %s for a waiting priority vehicle", rec.ChosenEdge)
	case ReasonMaxRed:
		return fmt.Sprintf("SAFETY: forced switch to %s, exceeded max red time", rec.ChosenEdge)
	case ReasonMaxGreen:
		return fmt.Sprintf("FAIRNESS: forced switch to %s, exceeded max green time", rec.ChosenEdge)
	case ReasonContinue:
		return fmt.Sprintf("continue: keeping green for %s, no better alternative", rec.ChosenEdge)
	case ReasonQValue:
		return fmt.Sprintf("learned: switched to %s (q=%.3f)", rec.ChosenEdge, rec.QValue)
	default:
		return fmt.Sprintf("switched to %s (%s)", rec.ChosenEdge, rec.Reason)
	}
}

// ExportJSON writes the in-memory history to a JSON file.
func (l *Log) ExportJSON(path string) error {
	payload := struct {
		Episode   int      `json:"episode"`
		Total     int      `json:"total_decisions"`
		Decisions []Record `json:"decisions"`
	}{
		Episode:   l.episode,
		Total:     len(l.history),
		Decisions: l.history,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal decisions: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write decisions: %w", err)
	}
	return nil
}

// #endregion explain
