package telemetry

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a gatherer on Config.Addr.
type Server struct {
	srv *http.Server
	log logger.Logger
}

func NewServer(cfg Config, gatherer prometheus.Gatherer, log logger.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New().Wrap(ErrInvalidConfig, err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}, nil
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("Serving metrics")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.ErrorWithCode(errors.New().Wrap(ErrServe, err)).Msg("Metrics endpoint stopped")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return errors.New().Wrap(ErrShutdown, err)
	}
	return nil
}
