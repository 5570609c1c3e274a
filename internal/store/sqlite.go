package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hpungsan/sitesmith/internal/config"
	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/frame"
)

// CurrentSchemaVersion is the latest SQLite schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// DBFileName is the SQLite database file under the base directory.
const DBFileName = "sitesmith.db"

// SQLite is the file-backed Store.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite initializes the database at baseDir/sitesmith.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.sitesmith.
func OpenSQLite(baseDir string) (*SQLite, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the DSN apply to every pooled connection.
	dbPath := filepath.Join(baseDir, DBFileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)
	return &SQLite{db: db}, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func (s *SQLite) ConfigurePool(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		s.db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		s.db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// DB exposes the handle for tests and maintenance commands.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close implements Store.
func (s *SQLite) Close() error { return s.db.Close() }

func migrateSQLite(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// 0 -> 1: initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS projects (
		  id         TEXT PRIMARY KEY,
		  name       TEXT NOT NULL DEFAULT '',
		  created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS frames (
		  id         TEXT PRIMARY KEY,
		  project_id TEXT NOT NULL REFERENCES projects(id),
		  markup     TEXT,
		  created_at INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_frames_project_updated
		ON frames(project_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS chats (
		  frame_id      TEXT PRIMARY KEY REFERENCES frames(id),
		  messages_json TEXT NOT NULL,
		  updated_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS deployments (
		  site_id       TEXT PRIMARY KEY,
		  project_id    TEXT NOT NULL REFERENCES projects(id),
		  frame_id      TEXT NOT NULL,
		  url           TEXT NOT NULL,
		  deployment_id TEXT NOT NULL,
		  status        TEXT NOT NULL,
		  platform      TEXT NOT NULL,
		  created_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_deployments_project_created
		ON deployments(project_id, created_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// CreateProject implements Store.
func (s *SQLite) CreateProject(ctx context.Context, p frame.Project) error {
	if p.ID == "" {
		return apperrors.NewInvalidRequest("project id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)`,
		p.ID, p.Name, p.CreatedAt.Unix(),
	)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// GetProject implements Store.
func (s *SQLite) GetProject(ctx context.Context, id string) (*frame.Project, error) {
	var p frame.Project
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &created)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("project", id)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	return &p, nil
}

// ListProjects implements Store. Newest first.
func (s *SQLite) ListProjects(ctx context.Context, limit int) ([]frame.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM projects ORDER BY created_at DESC, id DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	out := []frame.Project{}
	for rows.Next() {
		var p frame.Project
		var created int64
		if err := rows.Scan(&p.ID, &p.Name, &created); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return out, nil
}

// CreateFrame implements Store.
func (s *SQLite) CreateFrame(ctx context.Context, f frame.Frame, messages []frame.ChatMessage) error {
	if err := validateFrame(f); err != nil {
		return err
	}
	raw, err := encodeMessages(messages)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, f.ProjectID).Scan(&exists)
	if err == sql.ErrNoRows {
		return apperrors.NewNotFound("project", f.ProjectID)
	}
	if err != nil {
		return apperrors.NewInternal(err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO frames (id, project_id, markup, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.ProjectID, toNullString(f.Markup), f.CreatedAt.Unix(), f.UpdatedAt.Unix(),
	); err != nil {
		return apperrors.NewInternal(err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (frame_id, messages_json, updated_at) VALUES (?, ?, ?)`,
		f.ID, raw, f.UpdatedAt.Unix(),
	); err != nil {
		return apperrors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// LoadFrame implements Store.
func (s *SQLite) LoadFrame(ctx context.Context, id string) (*frame.Snapshot, error) {
	var f frame.Frame
	var markup sql.NullString
	var created, updated int64
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.project_id, f.markup, f.created_at, f.updated_at, c.messages_json
		FROM frames f LEFT JOIN chats c ON c.frame_id = f.id
		WHERE f.id = ?`, id,
	).Scan(&f.ID, &f.ProjectID, &markup, &created, &updated, &raw)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("frame", id)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	f.Markup = fromNullString(markup)
	f.CreatedAt = time.Unix(created, 0).UTC()
	f.UpdatedAt = time.Unix(updated, 0).UTC()

	msgs, err := decodeMessages(raw.String)
	if err != nil {
		return nil, err
	}
	return &frame.Snapshot{Frame: f, Messages: msgs}, nil
}

// ListFrames implements Store. An empty projectID lists every frame.
func (s *SQLite) ListFrames(ctx context.Context, projectID string, limit int) ([]frame.Frame, error) {
	query := `SELECT id, project_id, markup, created_at, updated_at FROM frames`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	out := []frame.Frame{}
	for rows.Next() {
		var f frame.Frame
		var markup sql.NullString
		var created, updated int64
		if err := rows.Scan(&f.ID, &f.ProjectID, &markup, &created, &updated); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		f.Markup = fromNullString(markup)
		f.CreatedAt = time.Unix(created, 0).UTC()
		f.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return out, nil
}

// SaveFrame implements Store.
func (s *SQLite) SaveFrame(ctx context.Context, frameID string, messages []frame.ChatMessage, markup *string) error {
	raw, err := encodeMessages(messages)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if markup != nil {
		res, err = tx.ExecContext(ctx, `UPDATE frames SET markup = ?, updated_at = ? WHERE id = ?`, *markup, now, frameID)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE frames SET updated_at = ? WHERE id = ?`, now, frameID)
	}
	if err != nil {
		return apperrors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if n == 0 {
		return apperrors.NewNotFound("frame", frameID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (frame_id, messages_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(frame_id) DO UPDATE SET messages_json = excluded.messages_json, updated_at = excluded.updated_at`,
		frameID, raw, now,
	); err != nil {
		return apperrors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// RecordDeployment implements Store.
func (s *SQLite) RecordDeployment(ctx context.Context, d frame.Deployment) error {
	if d.SiteID == "" {
		return apperrors.NewInvalidRequest("site id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments (site_id, project_id, frame_id, url, deployment_id, status, platform, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SiteID, d.ProjectID, d.FrameID, d.URL, d.DeploymentID, d.Status, d.Platform, d.CreatedAt.Unix(),
	)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// ListDeployments implements Store. An empty projectID lists every deployment.
func (s *SQLite) ListDeployments(ctx context.Context, projectID string, limit int) ([]frame.Deployment, error) {
	query := `SELECT site_id, project_id, frame_id, url, deployment_id, status, platform, created_at FROM deployments`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC, site_id DESC LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	out := []frame.Deployment{}
	for rows.Next() {
		var d frame.Deployment
		var created int64
		if err := rows.Scan(&d.SiteID, &d.ProjectID, &d.FrameID, &d.URL, &d.DeploymentID, &d.Status, &d.Platform, &created); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		d.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return out, nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
