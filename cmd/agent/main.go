package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/adapters/capture"
	router "github.com/LiveStak-Brad/mylivelinks-sub009/internal/adapters/http"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/adapters/rtc"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/app"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/config"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/core"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/presence"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/presence/redistore"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/presence/sqlitestore"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		// Presence is an enhancement: run without it rather than refuse
		// to start.
		log.Warn().Err(err).Msg("presence store unavailable, running degraded")
	}
	defer closeStore()

	caps := presence.NewCapabilities()
	if store == nil {
		caps.Disable()
	}
	client := presence.NewClient(store, caps)
	beacon := presence.NewBeacon(cfg.BeaconURL)

	var identity domain.UserID
	var displayName string
	if cfg.Identity == "" {
		guest := domain.NewGuest()
		identity, displayName = guest.ID, guest.Username
		log.Info().Str("identity", string(identity)).Msg("no configured identity, using guest")
	} else {
		name := cfg.DisplayName
		if name == "" {
			name = cfg.Identity
		}
		user, err := domain.NewUser(domain.UserID(cfg.Identity), name)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid configured identity")
		}
		identity, displayName = user.ID, user.Username
	}

	issuer := session.NewTokenClient(cfg.TokenEndpoint, cfg.AllowInsecure)

	var engine rtc.EngineOption
	var devices core.DeviceSource
	source, err := capture.NewSource()
	if err != nil {
		log.Warn().Err(err).Msg("capture source unavailable, publish will fail per-track")
	} else {
		engine = source.PopulateEngine
		devices = source
	}

	coord := app.NewCoordinator(
		app.Options{
			Identity:           identity,
			DisplayName:        displayName,
			HeartbeatInterval:  cfg.HeartbeatInterval,
			StalenessThreshold: cfg.StalenessThreshold,
			LivenessCache:      cfg.LivenessCache,
		},
		client, beacon, issuer,
		func() core.MediaTransport { return rtc.NewTransport(engine) },
		devices,
	)

	r := router.SetupRouter(cfg, coord)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("livelinks agent started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	coord.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Agent exited gracefully")
}

// openStore picks the presence backend by config. The sqlite backend is
// migrated here; a missing redis just degrades.
func openStore(ctx context.Context, cfg *config.Config) (core.PresenceStore, func(), error) {
	noop := func() {}
	switch cfg.StoreBackend {
	case "redis":
		st, err := redistore.NewStore(redistore.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
		})
		if err != nil {
			return nil, noop, err
		}
		return st, func() { _ = st.Close() }, nil
	case "sqlite":
		st, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, noop, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
