package pairing

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config

	mu     sync.Mutex
	closed bool
}

func newRepository(cfg Config, log logger.Logger) (*repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// Validate if schema is current, with backup if needed
	if err := validateAndUpdateSchema(db, backupDir(cfg.DBPath), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Pairing repository initialized")

	return &repository{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (r *repository) upsert(ctx context.Context, deviceClass string, deviceNumber int) error {
	if _, err := r.db.ExecContext(ctx, upsertPairingSQL, deviceClass, deviceNumber, time.Now().Unix()); err != nil {
		r.logger.Error().Err(err).Str("device_class", deviceClass).Msg("Failed to remember pairing")
		return errors.New().WithData(ErrStorageAccess, struct {
			Phase string
			Error string
		}{
			Phase: "upsert",
			Error: err.Error(),
		})
	}

	r.logger.Debug().
		Str("device_class", deviceClass).
		Int("device_number", deviceNumber).
		Msg("Pairing remembered")

	return nil
}

func (r *repository) find(ctx context.Context, deviceClass string) (int, bool, error) {
	var deviceNumber int
	err := r.db.QueryRowContext(ctx, selectPairingSQL, deviceClass).Scan(&deviceNumber)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.New().WithData(ErrStorageAccess, struct {
			Phase string
			Error string
		}{
			Phase: "lookup",
			Error: err.Error(),
		})
	}

	return deviceNumber, true, nil
}

func (r *repository) remove(ctx context.Context, deviceClass string) error {
	if _, err := r.db.ExecContext(ctx, deletePairingSQL, deviceClass); err != nil {
		return errors.New().WithData(ErrStorageAccess, struct {
			Phase string
			Error string
		}{
			Phase: "delete",
			Error: err.Error(),
		})
	}

	r.logger.Debug().Str("device_class", deviceClass).Msg("Pairing forgotten")

	return nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.db.Close()
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Pairing repository closed gracefully")

	return nil
}
