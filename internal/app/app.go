package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/wirechat-presence/internal/auth"
	"github.com/vovakirdan/wirechat-presence/internal/broker"
	"github.com/vovakirdan/wirechat-presence/internal/config"
	"github.com/vovakirdan/wirechat-presence/internal/core"
	"github.com/vovakirdan/wirechat-presence/internal/metrics"
	"github.com/vovakirdan/wirechat-presence/internal/store"
	"github.com/vovakirdan/wirechat-presence/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-presence/internal/transport/http"
	"github.com/vovakirdan/wirechat-presence/internal/utils"
)

const brokerConnectTimeout = 5 * time.Second

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	broker          broker.Broker
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = utils.NewID()
	}

	// Initialize database store
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	b, err := newBroker(cfg, instanceID, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init broker: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	var authenticator *auth.Authenticator
	if cfg.Auth.JWTSecret != "" {
		authenticator = auth.NewAuthenticator(&auth.JWTConfig{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.JWTIssuer,
			Audience: cfg.Auth.JWTAudience,
		})
	} else {
		logger.Warn().Msg("no jwt secret configured, trusting userId query parameter")
	}

	hub := core.NewHub(core.Options{
		Store:       st,
		Broker:      b,
		Metrics:     collector,
		Logger:      logger,
		InstanceID:  instanceID,
		TypingRate:  rate.Limit(cfg.Typing.RatePerSec),
		TypingBurst: cfg.Typing.Burst,
	})

	gin.SetMode(gin.ReleaseMode)
	server := transporthttp.NewServer(transporthttp.Deps{
		Hub:           hub,
		Authenticator: authenticator,
		Metrics:       collector,
		Gatherer:      reg,
	}, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		broker:          b,
		log:             logger,
	}, nil
}

func newBroker(cfg *config.Config, instanceID string, logger *zerolog.Logger) (broker.Broker, error) {
	switch cfg.Broker.Kind {
	case config.BrokerRedis:
		ctx, cancel := context.WithTimeout(context.Background(), brokerConnectTimeout)
		defer cancel()
		b, err := broker.NewRedis(ctx, cfg.Broker.RedisAddr, cfg.Broker.Channel, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("addr", cfg.Broker.RedisAddr).Str("channel", cfg.Broker.Channel).Msg("redis broker connected")
		return b, nil
	case config.BrokerNATS:
		b, err := broker.NewNATS(cfg.Broker.NATSURL, cfg.Broker.Channel, "wirechat-"+instanceID, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("url", cfg.Broker.NATSURL).Str("subject", cfg.Broker.Channel).Msg("nats broker connected")
		return b, nil
	default:
		// Single instance: the hub delivers locally.
		return nil, nil
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()

	serverErr := make(chan error, 1)
	hubErr := make(chan error, 1)

	go func() {
		hubErr <- a.hub.Run(hubCtx)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		a.cleanup()
		return err
	case err := <-hubErr:
		a.log.Error().Err(err).Msg("hub stopped unexpectedly")
		a.shutdownServer()
		a.cleanup()
		if err == nil {
			err = core.ErrHubStopped
		}
		return err
	case <-ctx.Done():
		a.log.Info().Msg("shutting down http server")
		shutdownErr := a.shutdownServer()
		stopHub()
		<-hubErr
		a.cleanup()
		if shutdownErr != nil {
			return shutdownErr
		}
		return <-serverErr
	}
}

func (a *App) shutdownServer() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}

// cleanup closes the broker, database and other resources.
func (a *App) cleanup() {
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close broker")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
