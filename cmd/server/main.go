// Package main runs the survey HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/surapp/backend/config"
	"github.com/surapp/backend/internal/auth"
	"github.com/surapp/backend/internal/exports"
	"github.com/surapp/backend/internal/httpapi"
	"github.com/surapp/backend/internal/store"
	"github.com/surapp/backend/internal/votes"
	"github.com/surapp/backend/internal/votings"
	"github.com/surapp/backend/pkg/database"
	"github.com/surapp/backend/pkg/queue"
	"github.com/surapp/backend/pkg/redis"
	"github.com/surapp/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer st.Close()

	var (
		denylist auth.Denylist
		cache    *votes.RedisCache
		jobQueue *queue.Queue
	)
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		denylist = auth.NewRedisDenylist(rdb.Client)
		cache = votes.NewRedisCache(rdb.Client, cfg.Votes.TallyCacheTTL, logger)
		jobQueue = queue.NewQueue(rdb.Client, logger)
	} else {
		denylist = auth.NewMemoryDenylist()
		logger.Warn("redis disabled: no tally cache or async exports, token revocation is process-local")
	}

	var s3Client *storage.S3
	if cfg.AWS.Enabled() {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	// Tally invalidation is a no-op without Redis.
	var invalidator votings.Invalidator
	var tallyCache votes.Cache
	if cache != nil {
		invalidator = cache
		tallyCache = cache
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(auth.NewRepository(st), jwtService, denylist, logger)

	engine := votings.NewEngine(st, invalidator, logger)
	votingHandler := votings.NewHandler(engine, logger)

	validator := votes.NewValidator(st, cfg.Votes.StrictChoices, invalidator, logger)
	aggregator := votes.NewAggregator(st, tallyCache, logger)
	voteHandler := votes.NewHandler(validator, aggregator, logger)

	var (
		enq     exports.Enqueuer
		objects exports.ObjectStore
	)
	if jobQueue != nil && s3Client != nil {
		enq = jobQueue
		objects = s3Client
	}
	exportHandler := exports.NewHandler(exports.NewRenderer(st), enq, objects, logger)

	router := httpapi.NewRouter(httpapi.Deps{
		JWT:         jwtService,
		Denylist:    denylist,
		Auth:        authHandler,
		Votings:     votingHandler,
		Votes:       voteHandler,
		Exports:     exportHandler,
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return store.NewMemory(), nil
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return store.NewPostgres(pool), nil
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
