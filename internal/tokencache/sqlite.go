package tokencache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const busyTimeoutMillis = 5000

// SQLiteStore keeps one cache blob per partition in a SQLite database.
// Writers are serialized by SQLite, so several processes can share it.
type SQLiteStore struct {
	db        *sql.DB
	partition string
	logger    *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// pending migrations. Use ":memory:" for a private in-memory store.
func NewSQLiteStore(ctx context.Context, path, partition string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), DirPerms); err != nil {
			return nil, fmt.Errorf("tokencache: creating directory for %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("tokencache: opening %s: %w", path, err)
	}

	// One connection keeps ":memory:" databases coherent and avoids
	// self-contention on the write lock.
	db.SetMaxOpenConns(1)

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if path != ":memory:" {
		if err := os.Chmod(path, FilePerms); err != nil {
			logger.Warn("tokencache: restricting database permissions failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	return &SQLiteStore{db: db, partition: partition, logger: logger}, nil
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis), "busy timeout"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("tokencache: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("tokencache: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("tokencache: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("tokencache: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Load returns the blob for the store's partition, or nil if none exists.
func (s *SQLiteStore) Load(ctx context.Context) ([]byte, error) {
	var blob []byte

	err := s.db.QueryRowContext(ctx,
		"SELECT blob FROM token_cache WHERE partition = ?", s.partition).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("tokencache: loading partition %q: %w", s.partition, err)
	}

	return blob, nil
}

// Save upserts the blob for the store's partition in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, blob []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tokencache: begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO token_cache (partition, blob, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(partition) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		s.partition, blob, time.Now().Unix())
	if err != nil {
		rollbackErr := tx.Rollback()
		return fmt.Errorf("tokencache: saving partition %q: %w (rollback: %v)", s.partition, err, rollbackErr)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tokencache: commit: %w", err)
	}

	s.logger.Debug("token cache saved", slog.String("partition", s.partition))

	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("tokencache: closing database: %w", err)
	}

	return nil
}
