package pairing

import (
	"context"

	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/logger"
)

type service struct {
	repo *repository
	cfg  Config
}

// No-op implementation
type noopStore struct{}

// NewStore opens the pairing database, or returns a store that remembers
// nothing when pairing is disabled.
func NewStore(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if log == nil {
		log = logger.Nop()
	}

	if !cfg.Enabled {
		log.Debug().Msg("Pairing disabled, using no-op store")
		return noopStore{}, nil
	}

	repo, err := newRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create pairing repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Msg("Pairing store initialized successfully")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Remember(ctx context.Context, deviceClass string, deviceNumber int) error {
	errFactory := errors.New()

	if deviceClass == "" || deviceNumber <= 0 || deviceNumber > 0xFFFF {
		return errFactory.WithData(ErrInvalidPairing, struct {
			DeviceClass  string
			DeviceNumber int
		}{
			DeviceClass:  deviceClass,
			DeviceNumber: deviceNumber,
		})
	}

	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(ErrOperationTimeout, err)
	}

	return s.repo.upsert(ctx, deviceClass, deviceNumber)
}

func (s *service) Lookup(ctx context.Context, deviceClass string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, errors.New().Wrap(ErrOperationTimeout, err)
	}

	return s.repo.find(ctx, deviceClass)
}

func (s *service) Forget(ctx context.Context, deviceClass string) error {
	if err := ctx.Err(); err != nil {
		return errors.New().Wrap(ErrOperationTimeout, err)
	}

	return s.repo.remove(ctx, deviceClass)
}

func (s *service) Close() error {
	return s.repo.Close()
}

func (noopStore) Remember(context.Context, string, int) error {
	return nil
}

func (noopStore) Lookup(context.Context, string) (int, bool, error) {
	return 0, false, nil
}

func (noopStore) Forget(context.Context, string) error {
	return nil
}

func (noopStore) Close() error {
	return nil
}
