package main

import (
	"Dyvine/config"
	"Dyvine/internal/enumerate"
	"Dyvine/internal/event"
	"Dyvine/internal/handler"
	"Dyvine/internal/livestream"
	"Dyvine/internal/mq"
	"Dyvine/internal/orchestrator"
	"Dyvine/internal/registry"
	"Dyvine/internal/repo"
	"Dyvine/internal/service"
	"Dyvine/internal/source"
	"Dyvine/internal/storage"
	"Dyvine/internal/task"
	"Dyvine/internal/telemetry"
	"Dyvine/router"
	"Dyvine/utils"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// main initializes services and starts the HTTP server.
func main() {
	config.InitConfig()
	cfg := config.AppConfig
	logger := utils.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		if _, err := telemetry.InitTracer("dyvine"); err != nil {
			logger.Warn("tracing disabled", "err", err)
		}
		defer telemetry.ShutdownTracer(context.Background())
	}

	regOpts := []registry.Option{registry.WithRetention(cfg.OperationRetention)}
	if cfg.MySQLEnabled {
		if err := repo.InitMysql(); err != nil {
			return err
		}
		regOpts = append(regOpts, registry.WithPersister(repo.NewOperationStore(repo.Db)))
	}
	reg := registry.New(regOpts...)
	if cfg.MySQLEnabled {
		n, err := reg.Restore(ctx)
		if err != nil {
			return err
		}
		logger.Info("operations restored", "count", n)
	}

	var (
		cache  utils.Cache
		locker livestream.Locker
	)
	if cfg.RedisEnabled {
		if err := repo.InitRedis(); err != nil {
			return err
		}
		defer repo.Redis.Close()
		cache = utils.NewRedisCache(repo.Redis)
		locker = repo.NewRedisLocker(repo.Redis, "dyvine:lock:")
	}

	store, err := storage.NewStoreFromConfig(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	sink := storage.NewSink(store, cfg.Storage.Bucket, cfg.Storage.PublicBaseURL, cfg.Storage.Timeout)
	local := storage.NewLocal(cfg.DownloadDir)

	src, err := source.NewHTTPSource(source.HTTPConfig{
		BaseURL:   cfg.SourceBaseURL,
		Cookie:    cfg.SourceCookie,
		UserAgent: cfg.SourceUserAgent,
		Referer:   cfg.SourceReferer,
		Proxy:     cfg.SourceProxy,
		Timeout:   cfg.SourceTimeout,
		Rate:      cfg.SourceRate,
		Burst:     cfg.SourceBurst,
	})
	if err != nil {
		return err
	}
	// single lookups retry here, listing pages retry in the enumerator
	lookups := source.NewRetrying(src, cfg.EnumRetryDelays, logger)

	mediaClient := &http.Client{}
	fetcher := orchestrator.NewFetcher(mediaClient, src.Headers(), cfg.DownloadMediaTimeout, cfg.DownloadMaxBytes)
	processor := orchestrator.NewProcessor(fetcher, local, sink, cfg.DownloadKeepLocal)
	orchOpts := []orchestrator.Option{
		orchestrator.WithConcurrency(cfg.DownloadItemConcurrency),
		orchestrator.WithLogger(logger),
	}
	if cfg.RabbitMQEnabled {
		retries := mq.NewPublisher(cfg.RabbitMQURL, mq.NewTopology(cfg.RabbitMQPrefix))
		defer retries.Close()
		orchOpts = append(orchOpts, orchestrator.WithFailureHandler(task.RetryFailureHandler(retries, logger)))
	}
	orch := orchestrator.New(reg, enumerate.New(src, cfg.EnumPageSize, cfg.EnumRetryDelays), processor, orchOpts...)

	// a live stream has no size bound and runs until it ends
	streamFetcher := orchestrator.NewFetcher(mediaClient, src.Headers(), 0, 0)
	segmentFetcher := orchestrator.NewFetcher(mediaClient, src.Headers(), cfg.SourceTimeout, 0)
	segmentDir := cfg.LiveSegmentDir
	if segmentDir == "" {
		segmentDir = filepath.Join(cfg.DownloadDir, ".segments")
	}
	live := livestream.NewController(livestream.Config{
		MaxDuration:    cfg.LiveMaxDuration,
		LockTTL:        cfg.LiveLockTTL,
		ConnectTimeout: cfg.SourceTimeout,
		SegmentDir:     segmentDir,
		KeepLocal:      cfg.DownloadKeepLocal,
	}, livestream.Deps{
		Registry: reg,
		Source:   lookups,
		Locker:   locker,
		HLS:      livestream.NewHLSRecorder(segmentFetcher, cfg.LivePollInterval, logger),
		FLV:      livestream.NewFLVRecorder(streamFetcher),
		Local:    local,
		Sink:     sink,
		Logger:   logger,
	})

	events := event.NewPublisher(cfg.NATSURL)
	defer events.Close()
	supervisor := task.NewSupervisor(reg, events, cfg.DownloadMaxActiveJobs, logger)

	go reg.Run(ctx, cfg.OperationSweepInterval)

	svc := service.New(service.Deps{
		Registry:   reg,
		Source:     lookups,
		Downloader: orch,
		Livestream: live,
		Supervisor: supervisor,
		Cache:      cache,
		ProfileTTL: cfg.ProfileCacheTTL,
		Logger:     logger,
	})
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router.InitRouter(handler.New(svc), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background jobs did not finish", "err", err)
	}
	return nil
}
