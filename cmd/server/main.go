package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/roomchat/internal/adapters/blob"
	router "github.com/dkeye/roomchat/internal/adapters/http"
	"github.com/dkeye/roomchat/internal/adapters/memstore"
	"github.com/dkeye/roomchat/internal/adapters/pgstore"
	"github.com/dkeye/roomchat/internal/adapters/redisstore"
	sig "github.com/dkeye/roomchat/internal/adapters/signal"
	"github.com/dkeye/roomchat/internal/adapters/sqlstore"
	"github.com/dkeye/roomchat/internal/app"
	"github.com/dkeye/roomchat/internal/app/orch"
	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/codec"
	"github.com/dkeye/roomchat/internal/config"
	"github.com/dkeye/roomchat/internal/core"
)

type blobBackend interface {
	core.BlobStore
	core.BlobReader
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if cfg.Secret == "" {
		cfg.Secret = randomSecret()
		log.Warn().Msg("no cookie secret configured, sessions will not survive restarts")
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	defer store.Close()

	files, closeFiles, err := openBlobs(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open %s blob store: %w", cfg.Blob.Backend, err)
	}
	defer closeFiles()

	cc, err := codec.New(cfg.Codec.Scheme, cfg.Codec.Secret)
	if err != nil {
		return err
	}

	dir := app.NewDirectory(store)
	o := &orch.Orchestrator{
		Registry:  orch.NewRegistry(),
		Directory: dir,
		Policy:    app.SimplePolicy{MaxDrops: cfg.Backpressure.MaxDrops},
		Deps: session.Deps{
			Directory: dir,
			Messages:  store,
			Blobs:     files,
			Codec:     cc,
		},
	}
	limiter := sig.NewRoomRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Interval)
	ctl := sig.NewSignalWSController(o, limiter, cfg.ReadLimit, cfg.PingPeriod)

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:   o,
		Signal: ctl,
		Files:  files,
		Health: store,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("room chat server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := o.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("session shutdown")
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	switch cfg.Backend {
	case config.StoreRedis:
		return redisstore.New(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case config.StorePostgres:
		return pgstore.New(ctx, cfg.DatabaseURL)
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		return sqlstore.New(cfg.SQLitePath)
	default:
		log.Warn().Msg("using the in-memory store, history is lost on restart")
		return memstore.New(), nil
	}
}

func openBlobs(ctx context.Context, cfg config.BlobConfig) (blobBackend, func(), error) {
	switch cfg.Backend {
	case config.BlobNATS:
		s, err := blob.NewObjectStore(ctx, cfg.NatsURL, cfg.Bucket, cfg.PublicPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := blob.NewFSStore(cfg.Dir, cfg.PublicPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
