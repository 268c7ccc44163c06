package db

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrator runs embedded goose migrations against a pgx pool.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
	dir  string
}

// NewMigrator builds a Migrator reading migrations from dir inside fsys.
func NewMigrator(pool *pgxpool.Pool, fsys fs.FS, dir string) *Migrator {
	return &Migrator{pool: pool, fsys: fsys, dir: dir}
}

func (m *Migrator) run(ctx context.Context, fn func(context.Context) error) error {
	goose.SetBaseFS(m.fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("platform/db: goose dialect: %w", err)
	}
	return fn(ctx)
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(m.pool)
	defer sqlDB.Close()
	return m.run(ctx, func(ctx context.Context) error {
		if err := goose.UpContext(ctx, sqlDB, m.dir); err != nil {
			return fmt.Errorf("platform/db: migrate up: %w", err)
		}
		return nil
	})
}

// Down rolls back the latest migration.
func (m *Migrator) Down(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(m.pool)
	defer sqlDB.Close()
	return m.run(ctx, func(ctx context.Context) error {
		if err := goose.DownContext(ctx, sqlDB, m.dir); err != nil {
			return fmt.Errorf("platform/db: migrate down: %w", err)
		}
		return nil
	})
}

// Status prints migration status through goose's logger.
func (m *Migrator) Status(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(m.pool)
	defer sqlDB.Close()
	return m.run(ctx, func(ctx context.Context) error {
		return goose.StatusContext(ctx, sqlDB, m.dir)
	})
}
