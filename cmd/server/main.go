// Command server runs the policy document QA proxy: it accepts PDF uploads,
// has them indexed by the external document-QA service, and answers questions
// against the documents indexed during this process's lifetime.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-policy-qa/internal/config"
	httpapi "github.com/tbourn/go-policy-qa/internal/http"
	"github.com/tbourn/go-policy-qa/internal/indexer"
	"github.com/tbourn/go-policy-qa/internal/observability"
	"github.com/tbourn/go-policy-qa/internal/repo"
	"github.com/tbourn/go-policy-qa/internal/session"
	"github.com/tbourn/go-policy-qa/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// idempotencySweep is how often expired idempotency keys are purged.
const idempotencySweep = 15 * time.Minute

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.InstallLogger(cfg.LogLevel, cfg.LogPretty, observability.TraceHook{})
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	if err := sysutil.EnsureWritableDir(cfg.UploadDir); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("upload directory unusable")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open audit database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate audit database")
	}
	go purgeIdempotency(ctx, db)

	sessions, err := session.New(session.Options{
		Policy:  cfg.Sessions.Policy,
		MaxSize: cfg.Sessions.MaxSize,
		TTL:     cfg.Sessions.TTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("session cache")
	}

	idx := indexer.New(indexer.Config{
		BaseURL:      cfg.Indexer.BaseURL,
		IndexPath:    cfg.Indexer.IndexPath,
		QueryPath:    cfg.Indexer.QueryPath,
		IDField:      cfg.Indexer.IDField,
		IndexTimeout: cfg.Indexer.IndexTimeout,
		QueryTimeout: cfg.Indexer.QueryTimeout,
	}, nil)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, idx, sessions, cfg)

	if cfg.WriteTimeout <= cfg.Indexer.IndexTimeout {
		log.Warn().
			Dur("write_timeout", cfg.WriteTimeout).
			Dur("index_timeout", cfg.Indexer.IndexTimeout).
			Msg("WRITE_TIMEOUT does not outlast the indexing budget; slow uploads will be cut off")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	// In-flight uploads are allowed to finish; their staged files are removed
	// by the requests themselves.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().
		Str("addr", srv.Addr).
		Str("version", ver).
		Str("indexer", cfg.Indexer.BaseURL).
		Str("session_policy", cfg.Sessions.Policy).
		Msg("listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server stopped")
		return
	}
	<-drained
	log.Info().Msg("server stopped")
}

// purgeIdempotency deletes expired idempotency keys until ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(idempotencySweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
			}
		}
	}
}
