package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/logging"
	"forex-analyzer/internal/models"
	"forex-analyzer/internal/performance"
)

// resultBatchSize is the number of results written per transaction by
// SaveResults.
const resultBatchSize = 50

// IsBusy reports whether err is SQLite lock contention that a retry may
// clear.
func IsBusy(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
}

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", errors.ErrDatabaseError, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %w", errors.ErrDatabaseError, err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		filename TEXT,
		total_trades INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		body TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analysis_results (
		id TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL,
		analysis_type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		body TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_created ON datasets(created_at);
	CREATE INDEX IF NOT EXISTS idx_results_dataset ON analysis_results(dataset_id, analysis_type);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Datasets
// ============================================================================

// SaveDataset stores the dataset as one JSON document, assigning an id and
// creation time when they are unset. Saving an existing id replaces it.
func (s *SQLiteStore) SaveDataset(ctx context.Context, ds *models.TradingDataset) error {
	if ds == nil {
		return errors.ErrInvalidDataset
	}
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = s.now()
	}

	body, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	info := ds.Info()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO datasets (id, source, filename, total_trades, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?)
	`, info.ID, info.Source, info.Filename, info.TotalTrades, info.CreatedAt.UTC(), string(body))
	if err != nil {
		return fmt.Errorf("%w: failed to save dataset: %w", errors.ErrDatabaseError, err)
	}

	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("dataset_id", ds.ID).
		Int("trades", info.TotalTrades).
		Int("bytes", len(body)).
		Msg("Dataset stored")
	return nil
}

// GetDataset loads a dataset by id.
func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*models.TradingDataset, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM datasets WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dataset %s: %w", id, errors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load dataset: %w", errors.ErrDatabaseError, err)
	}

	var ds models.TradingDataset
	if err := json.Unmarshal([]byte(body), &ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", id, err)
	}
	return &ds, nil
}

// ListDatasets returns dataset summaries, newest first.
func (s *SQLiteStore) ListDatasets(ctx context.Context, filter DatasetFilter) ([]models.DatasetInfo, error) {
	query := "SELECT id, source, filename, total_trades, created_at FROM datasets WHERE 1=1"
	args := []interface{}{}

	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query datasets: %w", errors.ErrDatabaseError, err)
	}
	defer rows.Close()

	out := []models.DatasetInfo{}
	for rows.Next() {
		var info models.DatasetInfo
		var filename sql.NullString
		if err := rows.Scan(&info.ID, &info.Source, &filename, &info.TotalTrades, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		info.Filename = filename.String
		out = append(out, info)
	}

	return out, rows.Err()
}

// DeleteDataset removes a dataset and every analysis result recorded
// against it.
func (s *SQLiteStore) DeleteDataset(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", errors.ErrDatabaseError, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete dataset: %w", errors.ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dataset %s: %w", id, errors.ErrDataNotFound)
	}

	removed, err := tx.ExecContext(ctx, `DELETE FROM analysis_results WHERE dataset_id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete results: %w", errors.ErrDatabaseError, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", errors.ErrDatabaseError, err)
	}

	n, _ := removed.RowsAffected()
	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("dataset_id", id).
		Int64("results_removed", n).
		Msg("Dataset deleted")
	return nil
}

// ============================================================================
// Analysis results
// ============================================================================

// SaveResult stores one analysis result, assigning an id and timestamp when
// they are unset.
func (s *SQLiteStore) SaveResult(ctx context.Context, result *models.AnalysisResult) error {
	return s.SaveResults(ctx, []*models.AnalysisResult{result})
}

// SaveResults stores results in transactions of up to resultBatchSize rows.
// Results in batches committed before a failure stay stored.
func (s *SQLiteStore) SaveResults(ctx context.Context, results []*models.AnalysisResult) error {
	batcher := performance.NewBatchProcessor(resultBatchSize, func(batch []*models.AnalysisResult) error {
		return s.insertResults(ctx, batch)
	})
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.AnalysisID == "" {
			r.AnalysisID = uuid.NewString()
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = s.now()
		}
		if err := batcher.Add(r); err != nil {
			return err
		}
	}
	if err := batcher.Flush(); err != nil {
		return err
	}

	if batcher.Batches() > 0 {
		logger := logging.FromContext(ctx)
		logger.Debug().
			Int("results", len(results)).
			Int("batches", batcher.Batches()).
			Msg("Analysis results stored")
	}
	return nil
}

func (s *SQLiteStore) insertResults(ctx context.Context, batch []*models.AnalysisResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", errors.ErrDatabaseError, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO analysis_results (id, dataset_id, analysis_type, status, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare statement: %w", errors.ErrDatabaseError, err)
	}
	defer stmt.Close()

	for _, r := range batch {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode result %s: %w", r.AnalysisID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.AnalysisID, r.DatasetID, r.AnalysisType, string(r.Status), r.Timestamp.UTC(), string(body)); err != nil {
			return fmt.Errorf("%w: failed to insert result: %w", errors.ErrDatabaseError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", errors.ErrDatabaseError, err)
	}
	return nil
}

// GetResult loads an analysis result by id. Data is decoded into generic
// JSON values.
func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*models.AnalysisResult, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM analysis_results WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("analysis %s: %w", id, errors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load analysis: %w", errors.ErrDatabaseError, err)
	}

	var r models.AnalysisResult
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("failed to decode analysis %s: %w", id, err)
	}
	return &r, nil
}

// ListResults returns result summaries, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]models.AnalysisInfo, error) {
	query := "SELECT id, dataset_id, analysis_type, status, created_at FROM analysis_results WHERE 1=1"
	args := []interface{}{}

	if filter.DatasetID != "" {
		query += " AND dataset_id = ?"
		args = append(args, filter.DatasetID)
	}
	if filter.AnalysisType != "" {
		query += " AND analysis_type = ?"
		args = append(args, filter.AnalysisType)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query results: %w", errors.ErrDatabaseError, err)
	}
	defer rows.Close()

	out := []models.AnalysisInfo{}
	for rows.Next() {
		var info models.AnalysisInfo
		var status string
		if err := rows.Scan(&info.AnalysisID, &info.DatasetID, &info.AnalysisType, &status, &info.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		info.Status = models.AnalysisStatus(status)
		out = append(out, info)
	}

	return out, rows.Err()
}

var _ DataStore = (*SQLiteStore)(nil)
