// Package state provides the SQLite-backed audit store for run
// reports. Reports are write-once: a run is recorded exactly once when
// it finishes and never updated.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mbenham/taskforge/pkg/models"
)

// Store wraps an SQLite database holding run audit records.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens the audit store at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// migrate applies all pending schema migrations.
func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Runs},
		{2, migrationV2Stages},
		{3, migrationV3TaskRecords},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationV1Runs = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	goal TEXT NOT NULL,
	status TEXT NOT NULL,
	summary TEXT,
	artifacts TEXT,
	completed_count INTEGER NOT NULL DEFAULT 0,
	failed_count INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL,
	ended_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

const migrationV2Stages = `
CREATE TABLE IF NOT EXISTS stages (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	turns INTEGER NOT NULL DEFAULT 0,
	detail TEXT,
	started_at DATETIME,
	ended_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_stages_run_id ON stages(run_id);
`

const migrationV3TaskRecords = `
CREATE TABLE IF NOT EXISTS task_records (
	run_id TEXT NOT NULL REFERENCES runs(id),
	id TEXT NOT NULL,
	parent_id TEXT,
	position INTEGER NOT NULL,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	artifacts TEXT,
	score REAL,
	PRIMARY KEY (run_id, id)
);

CREATE INDEX IF NOT EXISTS idx_task_records_run_id ON task_records(run_id);
`

// SaveReport writes one finished run. A run ID may only be written
// once; a second write is an error, never an overwrite.
func (s *Store) SaveReport(report *models.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	row := tx.QueryRow("SELECT COUNT(*) FROM runs WHERE id = ?", report.RunID)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("check run existence: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("run %s already recorded", report.RunID)
	}

	artifacts, err := json.Marshal(report.Artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO runs (id, goal, status, summary, artifacts,
			completed_count, failed_count, skipped_count, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Goal, string(report.Status), report.Summary, string(artifacts),
		report.Counts.Completed, report.Counts.Failed, report.Counts.Skipped,
		report.StartedAt.UTC(), report.EndedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, stage := range report.Stages {
		_, err = tx.Exec(`
			INSERT INTO stages (id, run_id, position, type, status, turns, detail, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stage.ID, report.RunID, i, string(stage.Type), string(stage.Status),
			stage.Turns, stage.Detail, utcOrNil(stage.StartedAt), utcOrNil(stage.EndedAt))
		if err != nil {
			return fmt.Errorf("insert stage %s: %w", stage.ID, err)
		}
	}

	if err := insertTaskRecords(tx, report.RunID, "", report.Tasks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", report.RunID, err)
	}
	return nil
}

// insertTaskRecords writes a task record tree depth-first, preserving
// sibling order through the position column.
func insertTaskRecords(tx *sql.Tx, runID, parentID string, records []models.TaskRecord) error {
	for i, rec := range records {
		artifacts, err := json.Marshal(rec.Artifacts)
		if err != nil {
			return fmt.Errorf("encode artifacts for task %s: %w", rec.ID, err)
		}

		var parent interface{}
		if parentID != "" {
			parent = parentID
		}
		_, err = tx.Exec(`
			INSERT INTO task_records (run_id, id, parent_id, position, title, status, duration_ms, artifacts, score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, rec.ID, parent, i, rec.Title, string(rec.Status),
			rec.DurationMillis, string(artifacts), rec.Score)
		if err != nil {
			return fmt.Errorf("insert task record %s: %w", rec.ID, err)
		}

		if err := insertTaskRecords(tx, runID, rec.ID, rec.Children); err != nil {
			return err
		}
	}
	return nil
}

// GetReport loads one run report with its stages and nested task records.
func (s *Store) GetReport(runID string) (*models.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := &models.RunReport{RunID: runID}
	var status string
	var artifacts string
	row := s.conn.QueryRow(`
		SELECT goal, status, summary, artifacts,
			completed_count, failed_count, skipped_count, started_at, ended_at
		FROM runs WHERE id = ?`, runID)
	err := row.Scan(&report.Goal, &status, &report.Summary, &artifacts,
		&report.Counts.Completed, &report.Counts.Failed, &report.Counts.Skipped,
		&report.StartedAt, &report.EndedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	report.Status = models.RunStatus(status)
	if err := json.Unmarshal([]byte(artifacts), &report.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts for run %s: %w", runID, err)
	}

	if report.Stages, err = s.loadStages(runID); err != nil {
		return nil, err
	}
	if report.Tasks, err = s.loadTaskRecords(runID); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) loadStages(runID string) ([]models.DialogueStage, error) {
	rows, err := s.conn.Query(`
		SELECT id, type, status, turns, detail, started_at, ended_at
		FROM stages WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("load stages for run %s: %w", runID, err)
	}
	defer rows.Close()

	var stages []models.DialogueStage
	for rows.Next() {
		var stage models.DialogueStage
		var typ, status string
		var started, ended sql.NullTime
		if err := rows.Scan(&stage.ID, &typ, &status, &stage.Turns, &stage.Detail, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stage.Type = models.StageType(typ)
		stage.Status = models.StageStatus(status)
		if started.Valid {
			t := started.Time
			stage.StartedAt = &t
		}
		if ended.Valid {
			t := ended.Time
			stage.EndedAt = &t
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

// loadTaskRecords reassembles the nested record tree from flat rows.
func (s *Store) loadTaskRecords(runID string) ([]models.TaskRecord, error) {
	rows, err := s.conn.Query(`
		SELECT id, parent_id, title, status, duration_ms, artifacts, score
		FROM task_records WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("load task records for run %s: %w", runID, err)
	}
	defer rows.Close()

	type flatRecord struct {
		record   models.TaskRecord
		parentID string
	}
	var flat []flatRecord
	for rows.Next() {
		var fr flatRecord
		var parent sql.NullString
		var status, artifacts string
		var score sql.NullFloat64
		err := rows.Scan(&fr.record.ID, &parent, &fr.record.Title, &status,
			&fr.record.DurationMillis, &artifacts, &score)
		if err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		fr.record.Status = models.TaskStatus(status)
		fr.parentID = parent.String
		if score.Valid {
			v := score.Float64
			fr.record.Score = &v
		}
		if err := json.Unmarshal([]byte(artifacts), &fr.record.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts for task %s: %w", fr.record.ID, err)
		}
		flat = append(flat, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rebuild the tree depth-first; rows arrive in sibling order.
	byID := make(map[string]*models.TaskRecord, len(flat))
	var roots []string
	for i := range flat {
		byID[flat[i].record.ID] = &flat[i].record
		if flat[i].parentID == "" {
			roots = append(roots, flat[i].record.ID)
		}
	}
	var build func(id string) models.TaskRecord
	build = func(id string) models.TaskRecord {
		rec := *byID[id]
		rec.Children = nil
		for i := range flat {
			if flat[i].parentID == id {
				rec.Children = append(rec.Children, build(flat[i].record.ID))
			}
		}
		return rec
	}
	records := make([]models.TaskRecord, 0, len(roots))
	for _, id := range roots {
		records = append(records, build(id))
	}
	return records, nil
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID     string
	Goal      string
	Status    models.RunStatus
	Counts    models.ReportCounts
	StartedAt time.Time
	EndedAt   time.Time
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 20
	}
	rows, err := s.conn.Query(`
		SELECT id, goal, status, completed_count, failed_count, skipped_count, started_at, ended_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var status string
		err := rows.Scan(&r.RunID, &r.Goal, &status,
			&r.Counts.Completed, &r.Counts.Failed, &r.Counts.Skipped,
			&r.StartedAt, &r.EndedAt)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = models.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func utcOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
