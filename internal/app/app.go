package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatroom-server/internal/auth"
	"github.com/vovakirdan/chatroom-server/internal/config"
	"github.com/vovakirdan/chatroom-server/internal/core"
	"github.com/vovakirdan/chatroom-server/internal/filter"
	"github.com/vovakirdan/chatroom-server/internal/log"
	"github.com/vovakirdan/chatroom-server/internal/metrics"
	"github.com/vovakirdan/chatroom-server/internal/store"
	"github.com/vovakirdan/chatroom-server/internal/store/guard"
	"github.com/vovakirdan/chatroom-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatroom-server/internal/transport/http"
)

const metricsNamespace = "chatroom"

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// OpenStore opens the SQLite database and guards it with a circuit breaker.
func OpenStore(cfg *config.Config, logger *zerolog.Logger) (store.Store, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	return guard.Wrap(st, guard.Settings{
		Name:             "sqlite",
		FailureThreshold: cfg.BreakerFailureThreshold,
		Timeout:          cfg.BreakerTimeout,
		MaxRequests:      1,
	}, log.Component(logger, "store")), nil
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	st, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	censor, err := buildCensor(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	collector := metrics.NewCollector(metricsNamespace)
	hub := core.NewHub(st, core.Options{
		SuperModerator:  cfg.SuperModerator,
		RateLimit:       cfg.RateLimit,
		RateWindow:      cfg.RateWindow,
		HistoryCapacity: cfg.HistoryCapacity,
		Filter:          censor,
		Metrics:         collector,
		Logger:          log.Component(logger, "hub"),
	})
	server := transporthttp.NewServer(hub, authService, st, collector, cfg, log.Component(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

func buildCensor(cfg *config.Config) (*filter.Censor, error) {
	words := append([]string{}, cfg.CensoredWords...)
	if cfg.UseDefaultCensoredWords {
		words = append(words, filter.DefaultWords()...)
	}
	if cfg.CensoredWordsFile != "" {
		fromFile, err := filter.LoadWords(cfg.CensoredWordsFile)
		if err != nil {
			return nil, err
		}
		words = append(words, fromFile...)
	}
	return filter.New(words, cfg.CensorRune())
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		<-hubDone
		a.cleanup()
		return err
	case <-ctx.Done():
		// Kick clients first so hijacked WebSocket connections do not hold up Shutdown.
		stopHub()
		<-hubDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
