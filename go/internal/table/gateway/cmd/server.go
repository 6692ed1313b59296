package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mcdev12/poolhall/go/internal/table/config"
	"github.com/mcdev12/poolhall/go/internal/table/gateway"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// newGatewayConfig applies the table rules and the allowed origins. Browsers
// do not apply CORS to WebSocket upgrades, so the upgrader checks the origin itself.
func newGatewayConfig(cfg config.ServerConfig, rules config.Rules) gateway.Config {
	gwCfg := gateway.DefaultConfig()
	gwCfg.Table = rules.TableConfig()
	gwCfg.ConnectionConfig.CheckOrigin = gateway.AllowOrigins(cfg.CORSAllowedOrigins)
	return gwCfg
}

func newHandler(cfg config.ServerConfig, svc *gateway.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	svc.RegisterRoutes(r)

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(r), &http2.Server{})
}

func setupLogging(level, format string, out io.Writer) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	case "console", "":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}
