//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"fnri/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveComponentState(ctx context.Context, runID string, state model.ComponentState) error {
	return s.saveState(ctx, "component_states", runID, state)
}

func (s *SQLiteStore) GetComponentState(ctx context.Context, runID, component string) (model.ComponentState, bool, error) {
	return s.getState(ctx, "component_states", runID, component)
}

func (s *SQLiteStore) SaveBestState(ctx context.Context, runID string, state model.ComponentState) error {
	return s.saveState(ctx, "best_states", runID, state)
}

func (s *SQLiteStore) GetBestState(ctx context.Context, runID, component string) (model.ComponentState, bool, error) {
	return s.getState(ctx, "best_states", runID, component)
}

func (s *SQLiteStore) saveState(ctx context.Context, table, runID string, state model.ComponentState) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeComponentState(state)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (run_id, component, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, component) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, table), runID, state.Component, state.SchemaVersion, state.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) getState(ctx context.Context, table, runID, component string) (model.ComponentState, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ComponentState{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, fmt.Sprintf(`SELECT payload FROM %s WHERE run_id = ? AND component = ?`, table), runID, component).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ComponentState{}, false, nil
		}
		return model.ComponentState{}, false, err
	}

	state, err := DecodeComponentState(payload)
	if err != nil {
		return model.ComponentState{}, false, fmt.Errorf("decode state %s/%s: %w", runID, component, err)
	}
	return state, true, nil
}

func (s *SQLiteStore) SaveMetricPoints(ctx context.Context, runID string, points []model.MetricPoint) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, point := range points {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO metrics (run_id, epoch, prefix, name, value)
			VALUES (?, ?, ?, ?, ?)
		`, runID, point.Epoch, point.Prefix, point.Name, point.Value); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetMetricSeries(ctx context.Context, runID, prefix, name string) ([]float64, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT value FROM metrics
		WHERE run_id = ? AND prefix = ? AND name = ?
		ORDER BY epoch, rowid
	`, runID, prefix, name)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var series []float64
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if series == nil {
		return nil, false, nil
	}
	return series, true, nil
}

func (s *SQLiteStore) SaveRunSummary(ctx context.Context, summary model.RunSummary) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRunSummary(summary)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO run_summaries (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, summary.RunID, payload)
	return err
}

func (s *SQLiteStore) GetRunSummary(ctx context.Context, runID string) (model.RunSummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunSummary{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM run_summaries WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunSummary{}, false, nil
		}
		return model.RunSummary{}, false, err
	}

	summary, err := DecodeRunSummary(payload)
	if err != nil {
		return model.RunSummary{}, false, fmt.Errorf("decode run summary %s: %w", runID, err)
	}
	return summary, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS component_states (
			run_id TEXT NOT NULL,
			component TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, component)
		);
		CREATE TABLE IF NOT EXISTS best_states (
			run_id TEXT NOT NULL,
			component TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, component)
		);
		CREATE TABLE IF NOT EXISTS metrics (
			run_id TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			prefix TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_summaries (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
