package main

import (
	"Dyvine/config"
	"Dyvine/internal/orchestrator"
	"Dyvine/internal/source"
	"Dyvine/internal/storage"
	"Dyvine/internal/task"
	"Dyvine/internal/worker"
	"Dyvine/utils"
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	config.InitConfig()
	cfg := config.AppConfig
	logger := utils.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
		logger.Error("build content source", "err", err)
		os.Exit(1)
	}
	store, err := storage.NewStoreFromConfig(ctx, cfg.Storage)
	if err != nil {
		logger.Error("build object store", "err", err)
		os.Exit(1)
	}
	sink := storage.NewSink(store, cfg.Storage.Bucket, cfg.Storage.PublicBaseURL, cfg.Storage.Timeout)
	fetcher := orchestrator.NewFetcher(&http.Client{}, src.Headers(), cfg.DownloadMediaTimeout, cfg.DownloadMaxBytes)
	processor := orchestrator.NewProcessor(fetcher, storage.NewLocal(cfg.DownloadDir), sink, cfg.DownloadKeepLocal)
	retrier := task.NewItemRetrier(source.NewRetrying(src, cfg.EnumRetryDelays, logger), processor)

	logger.Info("item retry worker started")
	if err := worker.RunItemWorker(ctx, retrier.ProcessItemRetry, logger); err != nil {
		logger.Error("item retry worker stopped", "err", err)
		os.Exit(1)
	}
}
