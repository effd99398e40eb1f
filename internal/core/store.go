package core

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/3cpo-dev/netcfg/pkg/api"
)

// Store keeps run history in SQLite.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

// StageRecord is one persisted host result.
type StageRecord struct {
	Stage    api.Stage
	Host     string
	Failed   bool
	Changed  bool
	Error    string
	Diff     string
	Duration time.Duration
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; stage results arrive after each barrier anyway
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// BeginRun inserts a running row and returns its id.
func (s *Store) BeginRun(ctx context.Context, command string, hosts int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (command, state, hosts, started_at) VALUES (?, ?, ?, ?)`,
		command, string(api.RunRunning), hosts, now())
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// RecordStage stores every host result of one stage.
func (s *Store) RecordStage(ctx context.Context, runID int64, stage api.Stage, res AggregatedResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stage_results (run_id, stage, host, failed, changed, error, diff, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range res.Results {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		if _, err := stmt.ExecContext(ctx, runID, string(stage), r.Host, r.Failed, r.Changed, msg, r.Diff, r.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("insert stage result: %w", err)
		}
	}
	return tx.Commit()
}

// FinishRun sets the final state of a run.
func (s *Store) FinishRun(ctx context.Context, runID int64, state api.RunState, failed api.Stage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, failed_stage = ?, finished_at = ? WHERE id = ?`,
		string(state), string(failed), now(), runID)
	return err
}

// RecentRuns lists the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]api.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, state, failed_stage, hosts, started_at, finished_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []api.RunSummary
	for rows.Next() {
		var r api.RunSummary
		var state, failed string
		if err := rows.Scan(&r.ID, &r.Command, &state, &failed, &r.Hosts, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.State, r.FailedStage = api.RunState(state), api.Stage(failed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// StageResults returns the stored host results of a run in insertion order.
func (s *Store) StageResults(ctx context.Context, runID int64) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, host, failed, changed, error, diff, duration_ms
		 FROM stage_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StageRecord
	for rows.Next() {
		var r StageRecord
		var stage string
		var ms int64
		if err := rows.Scan(&stage, &r.Host, &r.Failed, &r.Changed, &r.Error, &r.Diff, &ms); err != nil {
			return nil, err
		}
		r.Stage, r.Duration = api.Stage(stage), time.Duration(ms)*time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
