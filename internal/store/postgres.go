package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hpungsan/sitesmith/internal/config"
	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/frame"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres is the Store used when a database URL is configured.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to databaseURL, applies the embedded migrations and
// returns a ready Store.
func OpenPostgres(ctx context.Context, databaseURL string, cfg *config.Config) (*Postgres, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}
	pool, err := NewPool(ctx, databaseURL, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// NewPool opens and pings a pgx pool.
func NewPool(ctx context.Context, databaseURL string, cfg *config.Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pc.MaxConns = 20
	pc.MinConns = 2
	if cfg != nil && cfg.DBMaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.DBMaxOpenConns)
	}
	if cfg != nil && cfg.DBMaxIdleConns > 0 {
		pc.MinConns = min(int32(cfg.DBMaxIdleConns), pc.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// RunMigrations brings the schema at databaseURL up to date.
func RunMigrations(databaseURL string) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	d, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// CreateProject implements Store.
func (p *Postgres) CreateProject(ctx context.Context, proj frame.Project) error {
	if proj.ID == "" {
		return apperrors.NewInvalidRequest("project id is required")
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO projects (id, name, created_at) VALUES ($1, $2, $3)`,
		proj.ID, proj.Name, proj.CreatedAt,
	)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// GetProject implements Store.
func (p *Postgres) GetProject(ctx context.Context, id string) (*frame.Project, error) {
	var proj frame.Project
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = $1`, id,
	).Scan(&proj.ID, &proj.Name, &proj.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("project", id)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &proj, nil
}

// ListProjects implements Store.
func (p *Postgres) ListProjects(ctx context.Context, limit int) ([]frame.Project, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, created_at FROM projects ORDER BY created_at DESC, id DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (frame.Project, error) {
		var proj frame.Project
		err := row.Scan(&proj.ID, &proj.Name, &proj.CreatedAt)
		return proj, err
	})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return out, nil
}

// CreateFrame implements Store.
func (p *Postgres) CreateFrame(ctx context.Context, f frame.Frame, messages []frame.ChatMessage) error {
	if err := validateFrame(f); err != nil {
		return err
	}
	raw, err := encodeMessages(messages)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var exists int
		err := tx.QueryRow(ctx, `SELECT 1 FROM projects WHERE id = $1`, f.ProjectID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("project", f.ProjectID)
		}
		if err != nil {
			return apperrors.NewInternal(err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO frames (id, project_id, markup, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			f.ID, f.ProjectID, f.Markup, f.CreatedAt, f.UpdatedAt,
		); err != nil {
			return apperrors.NewInternal(err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO chats (frame_id, messages, updated_at) VALUES ($1, $2::jsonb, $3)`,
			f.ID, raw, f.UpdatedAt,
		); err != nil {
			return apperrors.NewInternal(err)
		}
		return nil
	})
}

// LoadFrame implements Store.
func (p *Postgres) LoadFrame(ctx context.Context, id string) (*frame.Snapshot, error) {
	var f frame.Frame
	var raw *string
	err := p.pool.QueryRow(ctx, `
		SELECT f.id, f.project_id, f.markup, f.created_at, f.updated_at, c.messages::text
		FROM frames f LEFT JOIN chats c ON c.frame_id = f.id
		WHERE f.id = $1`, id,
	).Scan(&f.ID, &f.ProjectID, &f.Markup, &f.CreatedAt, &f.UpdatedAt, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("frame", id)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	var text string
	if raw != nil {
		text = *raw
	}
	msgs, err := decodeMessages(text)
	if err != nil {
		return nil, err
	}
	return &frame.Snapshot{Frame: f, Messages: msgs}, nil
}

// ListFrames implements Store.
func (p *Postgres) ListFrames(ctx context.Context, projectID string, limit int) ([]frame.Frame, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, project_id, markup, created_at, updated_at FROM frames
		WHERE ($1 = '' OR project_id = $1)
		ORDER BY updated_at DESC, id DESC LIMIT $2`,
		projectID, clampLimit(limit),
	)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (frame.Frame, error) {
		var f frame.Frame
		err := row.Scan(&f.ID, &f.ProjectID, &f.Markup, &f.CreatedAt, &f.UpdatedAt)
		return f, err
	})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return out, nil
}

// SaveFrame implements Store.
func (p *Postgres) SaveFrame(ctx context.Context, frameID string, messages []frame.ChatMessage, markup *string) error {
	raw, err := encodeMessages(messages)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE frames SET markup = COALESCE($1, markup), updated_at = $2 WHERE id = $3`,
			markup, now, frameID,
		)
		if err != nil {
			return apperrors.NewInternal(err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.NewNotFound("frame", frameID)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO chats (frame_id, messages, updated_at) VALUES ($1, $2::jsonb, $3)
			ON CONFLICT (frame_id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at`,
			frameID, raw, now,
		); err != nil {
			return apperrors.NewInternal(err)
		}
		return nil
	})
}

// RecordDeployment implements Store.
func (p *Postgres) RecordDeployment(ctx context.Context, d frame.Deployment) error {
	siteID, err := uuid.Parse(d.SiteID)
	if err != nil {
		return apperrors.NewInvalidRequest("site id must be a UUID")
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO deployments (site_id, project_id, frame_id, url, deployment_id, status, platform, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		siteID, d.ProjectID, d.FrameID, d.URL, d.DeploymentID, d.Status, d.Platform, d.CreatedAt,
	)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// ListDeployments implements Store.
func (p *Postgres) ListDeployments(ctx context.Context, projectID string, limit int) ([]frame.Deployment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT site_id::text, project_id, frame_id, url, deployment_id, status, platform, created_at
		FROM deployments
		WHERE ($1 = '' OR project_id = $1)
		ORDER BY created_at DESC LIMIT $2`,
		projectID, clampLimit(limit),
	)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (frame.Deployment, error) {
		var d frame.Deployment
		err := row.Scan(&d.SiteID, &d.ProjectID, &d.FrameID, &d.URL, &d.DeploymentID, &d.Status, &d.Platform, &d.CreatedAt)
		return d, err
	})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return out, nil
}
