package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/backend/internal/config"
	"github.com/BioHazard786/Huddle/backend/internal/logging"
	"github.com/BioHazard786/Huddle/backend/internal/metrics"
	"github.com/BioHazard786/Huddle/backend/internal/server"
	"github.com/BioHazard786/Huddle/backend/internal/signaling"
	"github.com/BioHazard786/Huddle/internal/discovery"
	"github.com/BioHazard786/Huddle/internal/version"
)

const shutdownTimeout = 5 * time.Second

var opts config.Options

var rootCmd = &cobra.Command{
	Use:     "huddle-relay",
	Short:   "Signaling relay for Huddle calls",
	Long:    `huddle-relay keeps the room registry for Huddle and forwards offers, answers, candidates, chat and call state between participants over websockets. Media never passes through it.`,
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(opts)
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

func init() {
	f := rootCmd.Flags()
	f.IntVarP(&opts.Port, "port", "p", 0, "port to listen on (env PORT, default 3007)")
	f.StringVar(&opts.AllowedOrigins, "allowed-origins", "", "comma separated browser origins allowed to connect (env ALLOWED_ORIGINS)")
	f.DurationVar(&opts.SweepInterval, "sweep-interval", 0, "how often empty rooms are swept (env SWEEP_INTERVAL, default 5m)")
	f.DurationVar(&opts.RoomRetention, "room-retention", 0, "how long an empty room is kept (env ROOM_RETENTION, default 24h)")
	f.Int64Var(&opts.MaxMessageBytes, "max-message-bytes", 0, "largest websocket frame accepted (env MAX_MESSAGE_BYTES)")
	f.IntVar(&opts.MessagesPerSecond, "messages-per-second", 0, "messages per second allowed per connection (env MESSAGES_PER_SECOND)")
	f.BoolVar(&opts.Advertise, "advertise", false, "announce the relay on the local network over mDNS (env RELAY_ADVERTISE)")
	f.StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
}

func run(cfg *config.Config) error {
	logging.Init(cfg.LogLevel)

	m := metrics.New()
	registry := signaling.NewRegistry(nil, cfg.RoomRetention, m)
	hub := signaling.NewHub(registry, m, signaling.HubOptions{
		MaxMessageBytes:   cfg.MaxMessageBytes,
		MessagesPerSecond: cfg.MessagesPerSecond,
	})
	go hub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go registry.RunSweeper(ctx, cfg.SweepInterval)

	if cfg.Advertise {
		host, _ := os.Hostname()
		shutdown, err := discovery.Advertise("huddle-relay-"+host, cfg.Port, version.Version)
		if err != nil {
			log.Warn().Err(err).Msg("mDNS advertisement failed")
		} else {
			defer shutdown()
			log.Info().Str("service", discovery.ServiceType).Msg("Advertising relay on the local network")
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.New(hub, m, cfg.OriginAllowed).NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("version", version.Version).Msg("Starting relay")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		hub.Stop()
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down relay...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Relay forced to shutdown")
	}

	hub.Stop()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}
	log.Info().Msg("Relay exited")
	return nil
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Relay failed")
		os.Exit(1)
	}
}
