package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"

	"notebook.app/internal/db/migrations"
)

// Manager applies the embedded SQL migrations through goose.
type Manager struct {
	provider *goose.Provider
}

// Option configures Manager.
type Option func(*options)

type options struct {
	fsys    fs.FS
	verbose bool
}

// WithFS replaces the embedded migrations, mostly for tests.
func WithFS(fsys fs.FS) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

// WithVerbose makes goose log each applied migration.
func WithVerbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

// NewManager constructs a Manager bound to a Postgres handle.
func NewManager(db *sql.DB, opts ...Option) (*Manager, error) {
	if db == nil {
		return nil, errors.New("migrate: database handle is required")
	}
	o := options{fsys: migrations.FS}
	for _, opt := range opts {
		opt(&o)
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, o.fsys, goose.WithVerbose(o.verbose))
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Manager{provider: p}, nil
}

// Up applies all pending migrations and returns how many ran.
func (m *Manager) Up(ctx context.Context) (int, error) {
	res, err := m.provider.Up(ctx)
	if err != nil {
		return len(res), fmt.Errorf("migrate up: %w", err)
	}
	return len(res), nil
}

// Down rolls back the most recent migration.
func (m *Manager) Down(ctx context.Context) error {
	if _, err := m.provider.Down(ctx); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// MigrationStatus describes one migration file and whether it is applied.
type MigrationStatus struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Status lists every known migration in version order.
func (m *Manager) Status(ctx context.Context) ([]MigrationStatus, error) {
	list, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(list))
	for _, s := range list {
		out = append(out, MigrationStatus{
			Version:   s.Source.Version,
			Name:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// Version returns the current schema version.
func (m *Manager) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}
