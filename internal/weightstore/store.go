// Package weightstore persists versioned network weight sets in SQLite,
// with an active pointer for the current global set and rollback to any
// earlier version.
package weightstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/veghadev/fdrl-signals/go-controller/internal/policy"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS weight_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	round         INTEGER NOT NULL,
	tensors       BLOB NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES weight_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_weights (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES weight_versions(version_id)
);
`

// #endregion schema

// #region record

// VersionRecord is one persisted weight set with its lineage.
type VersionRecord struct {
	VersionID string
	ParentID  string
	Round     int
	Weights   policy.Weights
	CreatedAt time.Time
}

// #endregion record

// #region store-struct
// Store manages versioned weight sets in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. decision
// logging shares the same database file).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region commit
// CommitVersion inserts a new weight version, parented on the current active
// version if one exists, and moves the active pointer atomically.
func (s *Store) CommitVersion(round int, w policy.Weights) (VersionRecord, error) {
	blob, err := encodeWeights(w)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("encode weights: %w", err)
	}

	rec := VersionRecord{
		VersionID: uuid.New().String(),
		Round:     round,
		Weights:   w.Clone(),
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return VersionRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(`SELECT version_id FROM active_weights WHERE id = 1`).Scan(&parent.String)
	if err == nil {
		parent.Valid = true
		rec.ParentID = parent.String
	} else if err != sql.ErrNoRows {
		return VersionRecord{}, fmt.Errorf("get active: %w", err)
	}

	var parentPtr interface{}
	if parent.Valid {
		parentPtr = parent.String
	}

	_, err = tx.Exec(
		`INSERT INTO weight_versions (version_id, parent_id, round, tensors, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.VersionID, parentPtr, round, blob, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_weights (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return VersionRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// #endregion commit

// #region get-current
// GetCurrent reads the active weight version.
func (s *Store) GetCurrent() (VersionRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_weights WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// #endregion get-current

// #region get-version
// GetVersion retrieves a specific weight version by ID.
func (s *Store) GetVersion(id string) (VersionRecord, error) {
	var rec VersionRecord
	var parentID sql.NullString
	var blob []byte
	var createdStr string

	err := s.db.QueryRow(
		`SELECT version_id, parent_id, round, tensors, created_at
		 FROM weight_versions WHERE version_id = ?`, id,
	).Scan(&rec.VersionID, &parentID, &rec.Round, &blob, &createdStr)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}

	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	rec.Weights, err = decodeWeights(blob)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("decode version %s: %w", id, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion get-version

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM weight_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.Exec(`UPDATE active_weights SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent weight versions, newest first.
func (s *Store) ListVersions(limit int) ([]VersionRecord, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, round, tensors, created_at
		 FROM weight_versions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []VersionRecord
	for rows.Next() {
		var rec VersionRecord
		var parentID sql.NullString
		var blob []byte
		var createdStr string

		if err := rows.Scan(&rec.VersionID, &parentID, &rec.Round, &blob, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if parentID.Valid {
			rec.ParentID = parentID.String
		}
		rec.Weights, err = decodeWeights(blob)
		if err != nil {
			return nil, fmt.Errorf("decode version %s: %w", rec.VersionID, err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-versions
