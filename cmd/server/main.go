package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/huddle/internal/adapters/http"
	"github.com/dkeye/huddle/internal/adapters/rtc"
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/auth"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("huddle exited")
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(cfg.Level())

	st, err := store.New(ctx, store.Config{Driver: cfg.Store.Driver, URI: cfg.Store.URI, Database: cfg.Store.Database})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := st.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	codecs := sfu.DefaultMediaCodecs()
	pool, err := sfu.NewWorkerPool(cfg.Relay.Workers, func(id int) (core.MediaEngine, error) {
		ec := rtc.EngineConfig{
			AnnouncedIPs:   cfg.Relay.AnnouncedIPs(),
			PortMin:        cfg.Relay.PortMin,
			PortMax:        cfg.Relay.PortMax,
			ICEServers:     cfg.Relay.ICEServers,
			ConnectTimeout: cfg.Relay.ConnectTimeout,
		}
		if cfg.Relay.UDPPort > 0 {
			ec.UDPPort = cfg.Relay.UDPPort + id
		}
		return rtc.NewEngine(id, ec, codecs)
	}, sfu.PlacementByName(cfg.Relay.Placement))
	if err != nil {
		return fmt.Errorf("start relay workers: %w", err)
	}

	relay := sfu.NewRoomManager(pool, codecs)
	reg := app.NewRegistry(st, cfg.Presence.GracePeriod)
	o := orch.New(reg, app.NewRoomManager(), app.NewGroupCalls(), relay, st, app.PolicyByName(cfg.Signal.Backpressure))
	defer reg.Close()
	defer relay.Close()

	poolErr := make(chan error, 1)
	go func() { poolErr <- pool.Run(ctx) }()

	verifier, err := auth.NewJWT(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	r := router.SetupRouter(ctx, cfg, o, verifier)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Int("workers", cfg.Relay.Workers).Msg("huddle server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	var fatal error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-poolErr:
		// A dead relay worker leaves rooms pinned to it unusable.
		if err != nil {
			fatal = fmt.Errorf("relay worker died: %w", err)
		} else if ctx.Err() == nil {
			fatal = errors.New("relay worker pool stopped")
		}
	case err := <-srvErr:
		fatal = fmt.Errorf("http server: %w", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if fatal == nil {
		log.Info().Msg("Server exited gracefully")
	}
	return fatal
}
