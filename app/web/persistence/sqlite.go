package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/umputun/apkbuild/app/web/enums"
)

const queryTimeout = 5 * time.Second

// ErrNotFound returned when build record doesn't exist
var ErrNotFound = errors.New("build not found")

// BuildRecord is a single build in history
type BuildRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Host        string            `json:"host"`
	PackageName string            `json:"package_name"`
	Status      enums.BuildStatus `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at,omitzero"`
	ExitCode    int               `json:"exit_code"`
	Error       string            `json:"error,omitempty"`
	Output      string            `json:"output,omitempty"`
	Artifact    string            `json:"artifact,omitempty"` // stored file name, empty if failed or pruned
	Size        int64             `json:"size,omitempty"`
}

// buildRow maps builds table, times kept as unix millis
type buildRow struct {
	ID          string            `db:"id"`
	Name        string            `db:"name"`
	Host        string            `db:"host"`
	PackageName string            `db:"package_name"`
	Status      enums.BuildStatus `db:"status"`
	StartedAt   int64             `db:"started_at"`
	FinishedAt  sql.NullInt64     `db:"finished_at"`
	ExitCode    int               `db:"exit_code"`
	Error       string            `db:"error"`
	Output      string            `db:"output"`
	Artifact    string            `db:"artifact"`
	Size        int64             `db:"size"`
}

func (r buildRow) record() BuildRecord {
	res := BuildRecord{ID: r.ID, Name: r.Name, Host: r.Host, PackageName: r.PackageName, Status: r.Status,
		StartedAt: time.UnixMilli(r.StartedAt), ExitCode: r.ExitCode, Error: r.Error, Output: r.Output,
		Artifact: r.Artifact, Size: r.Size}
	if r.FinishedAt.Valid && r.FinishedAt.Int64 > 0 {
		res.FinishedAt = time.UnixMilli(r.FinishedAt.Int64)
	}
	return res
}

// SQLiteStore implements build history using SQLite
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens database in WAL mode and creates the schema
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	res := &SQLiteStore{db: db}
	if err := res.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return res, nil
}

func (s *SQLiteStore) initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			host TEXT NOT NULL,
			package_name TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			exit_code INTEGER DEFAULT 0,
			error TEXT DEFAULT '',
			output TEXT DEFAULT '',
			artifact TEXT DEFAULT '',
			size INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_builds_status ON builds(status)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// RecordStart adds running build
func (s *SQLiteStore) RecordStart(rec BuildRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO builds (id, name, host, package_name, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Host, rec.PackageName, enums.BuildStatusRunning, rec.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record build start %s: %w", rec.ID, err)
	}
	return nil
}

// RecordComplete sets final status and results of the build
func (s *SQLiteStore) RecordComplete(rec BuildRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE builds SET status = ?, finished_at = ?, exit_code = ?, error = ?, output = ?, artifact = ?, size = ?
		WHERE id = ?`,
		rec.Status, rec.FinishedAt.UnixMilli(), rec.ExitCode, rec.Error, rec.Output, rec.Artifact, rec.Size, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to record build completion %s: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to record build completion %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// Get returns build by id
func (s *SQLiteStore) Get(id string) (BuildRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var row buildRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM builds WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BuildRecord{}, ErrNotFound
		}
		return BuildRecord{}, fmt.Errorf("failed to get build %s: %w", id, err)
	}
	return row.record(), nil
}

// List returns up to limit most recent builds, newest first. Non-positive limit means all.
func (s *SQLiteStore) List(limit int) ([]BuildRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = -1 // sqlite treats negative limit as no limit
	}
	rows := []buildRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	res := make([]BuildRecord, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.record())
	}
	return res, nil
}

// MarkInterrupted sets interrupted status to all builds left running by a previous process
func (s *SQLiteStore) MarkInterrupted() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE builds SET status = ?, finished_at = ? WHERE status = ?`,
		enums.BuildStatusInterrupted, time.Now().UnixMilli(), enums.BuildStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted builds: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n > 0 {
		log.Printf("[INFO] %d builds marked as interrupted", n)
	}
	return n, nil
}

// ClearArtifact removes artifact reference from the build, used when the stored file is pruned
func (s *SQLiteStore) ClearArtifact(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `UPDATE builds SET artifact = '' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear artifact of %s: %w", id, err)
	}
	return nil
}

// Trim keeps maxRecords most recent builds and returns removed ones, so the caller can drop their artifacts.
// Running builds are never removed.
func (s *SQLiteStore) Trim(maxRecords int) ([]BuildRecord, error) {
	if maxRecords <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	rows := []buildRow{}
	err = tx.SelectContext(ctx, &rows, `
		SELECT * FROM builds WHERE status != ? AND id NOT IN
			(SELECT id FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?)
		ORDER BY started_at`,
		enums.BuildStatusRunning, maxRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to select builds to trim: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	query, args, err := sqlx.In(`DELETE FROM builds WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to make trim query: %w", err)
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to trim builds: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	res := make([]BuildRecord, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.record())
	}
	return res, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
