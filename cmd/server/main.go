package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/qbd-sync-gateway/internal/auth"
	"github.com/erauner12/qbd-sync-gateway/internal/db"
	"github.com/erauner12/qbd-sync-gateway/internal/httpapi"
	"github.com/erauner12/qbd-sync-gateway/internal/qbdpoll"
	"github.com/erauner12/qbd-sync-gateway/internal/qbdprovision"
	"github.com/erauner12/qbd-sync-gateway/internal/schema"
	"github.com/erauner12/qbd-sync-gateway/internal/store"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "qbd-sync-gateway").Logger()

	if env("ENV", "") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	pgURL := env("DATABASE_URL", "")
	if pgURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	pool, err := db.Open(ctx, pgURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	if err := schema.Apply(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	// JWT configuration guards only the admin-facing .qwc provisioning
	// endpoint. Leaving JWT_ISSUER/JWT_JWKS_URL and JWT_HS256_SECRET unset
	// leaves that endpoint open, matching a local/dev deployment.
	jwtIssuer := env("JWT_ISSUER", "")
	jwksURL := env("JWT_JWKS_URL", "")
	if (jwksURL != "" && jwtIssuer == "") || (jwksURL == "" && jwtIssuer != "") {
		log.Fatal().
			Str("issuer", jwtIssuer).
			Str("jwks_url", jwksURL).
			Msg("FATAL: JWT_ISSUER and JWT_JWKS_URL must both be set or both be empty")
	}

	jwtCfg := auth.JWTCfg{
		HS256Secret: env("JWT_HS256_SECRET", ""),
		Issuer:      jwtIssuer,
		JWKSURL:     jwksURL,
		Audience:    env("JWT_AUDIENCE", ""),
	}

	if jwtCfg.HS256Secret != "" || jwtCfg.Issuer != "" {
		log.Info().Bool("oidc_enabled", jwtIssuer != "").Msg("admin provisioning endpoint authentication enabled")
	} else {
		log.Warn().Msg("no JWT configuration set; /client-systems/quickbooks/desktop/qwc is unauthenticated")
	}

	tenants := store.NewTenantStore(pool)
	connIdentity := store.NewConnectionIdentityStore(pool)
	credentials := store.NewCredentialsStore(pool)
	syncState := store.NewSyncStateStore(pool)
	syncEvents := store.NewSyncEventStore(pool)
	runs := store.NewConnectionRunStore(pool)
	inventory := store.NewInventoryStore(pool)
	invEvents := store.NewInventoryEventStore(pool)

	srv := &httpapi.Server{
		Poll:       qbdpoll.NewService(connIdentity, credentials, syncState, syncEvents, runs, inventory, invEvents, log.Logger),
		Provision:  qbdprovision.NewService(tenants, connIdentity, credentials),
		DefaultApp: env("QBD_APP_NAME", "QBD Sync Gateway"),
	}

	httpAddr := env("HTTP_ADDR", ":8080")
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      srv.Routes(jwtCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
