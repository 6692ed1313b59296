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

	"github.com/mcdev12/poolhall/go/internal/table/config"
	"github.com/mcdev12/poolhall/go/internal/table/gateway"
	"github.com/mcdev12/poolhall/go/internal/table/mirror"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		rulesPath string
		port      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the table gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			if rulesPath != "" {
				cfg.RulesPath = rulesPath
			}
			if port != "" {
				cfg.Port = port
			}

			if err := setupLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to a YAML table rules file (overrides RULES_PATH)")
	cmd.Flags().StringVar(&port, "port", "", "HTTP port (overrides PORT)")
	return cmd
}

func serve(parent context.Context, cfg config.ServerConfig) error {
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tableMirror gateway.Mirror
	if cfg.MirrorEnabled() {
		jsCfg := mirror.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		jsCfg.StreamName = cfg.NATSStream
		jsCfg.SubjectPrefix = cfg.NATSSubjectPrefix

		m, err := mirror.NewJetStreamMirror(ctx, jsCfg)
		if err != nil {
			// The table works without the mirror
			log.Error().Err(err).Str("nats_url", cfg.NATSURL).Msg("event mirror unavailable - continuing without it")
		} else {
			defer m.Close()
			go m.Run(ctx)
			tableMirror = m
		}
	}

	svc := gateway.NewService(newGatewayConfig(cfg, rules), tableMirror)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     newHandler(cfg, svc),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serviceDone := make(chan error, 1)
	go func() {
		serviceDone <- svc.Start(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Dur("participant_timeout", rules.ParticipantTimeout).
			Dur("cue_hold_timeout", rules.CueHoldTimeout).
			Bool("mirror", tableMirror != nil).
			Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
		stop()
		<-serviceDone
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if err := <-serviceDone; err != nil {
		log.Error().Err(err).Msg("table gateway stopped with error")
	}

	log.Info().Msg("poolhall shutdown complete")
	return nil
}
