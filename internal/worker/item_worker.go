package worker

import (
	"Dyvine/config"
	"Dyvine/internal/apperr"
	"Dyvine/internal/metrics"
	"Dyvine/internal/mq"
	"Dyvine/internal/task"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

// Broker is the publishing side the worker needs.
type Broker interface {
	PublishItemRetry(ctx context.Context, msg task.ItemRetryMessage, delay time.Duration) error
	PublishDeadItem(ctx context.Context, item mq.DeadItem) error
}

// Handler processes one retry message.
type Handler func(ctx context.Context, msg task.ItemRetryMessage) error

// ItemWorker re-runs failed items taken from the retry queue.
type ItemWorker struct {
	broker   Broker
	handle   Handler
	limiter  *rate.Limiter
	maxRetry int
	delays   []time.Duration
	logger   *slog.Logger
}

// NewItemWorker builds a worker from the retry settings in cfg.
func NewItemWorker(broker Broker, handle Handler, cfg config.Config, logger *slog.Logger) *ItemWorker {
	burst := cfg.RetryBurst
	if burst <= 0 {
		burst = 1
	}
	var limiter *rate.Limiter
	if cfg.RetryRate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		limiter = rate.NewLimiter(rate.Limit(cfg.RetryRate), burst)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemWorker{
		broker:   broker,
		handle:   handle,
		limiter:  limiter,
		maxRetry: max(cfg.RetryMax, 0),
		delays:   cfg.RetryDelays,
		logger:   logger,
	}
}

// RunItemWorker consumes item retries from RabbitMQ until ctx is done.
func RunItemWorker(ctx context.Context, handle Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := config.AppConfig
	client, err := mq.Dial(cfg.RabbitMQURL, mq.NewTopology(cfg.RabbitMQPrefix))
	if err != nil {
		return err
	}
	defer client.Close()

	deliveries, err := client.Consume(cfg.RabbitMQPrefetch)
	if err != nil {
		return err
	}

	w := NewItemWorker(client, handle, cfg, logger)
	concurrency := max(cfg.RetryWorkerConcurrency, 1)
	sem := make(chan struct{}, concurrency)
	logger.Info("item worker consuming", "queue", client.Topology().Work.Queue, "concurrency", concurrency)

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("item worker: delivery channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				if w.HandleMessage(ctx, d.Body) {
					_ = d.Nack(false, true)
					return
				}
				_ = d.Ack(false)
			}(delivery)
		}
	}
}

// HandleMessage processes one delivery body and reports whether it should be
// requeued as is. Every other outcome is final for this delivery: success,
// a scheduled retry, or a dead letter.
func (w *ItemWorker) HandleMessage(ctx context.Context, body []byte) (requeue bool) {
	m := metrics.Get().RetryMessagesTotal
	var msg task.ItemRetryMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Warn("item worker: invalid message", "err", err)
		m.WithLabelValues("invalid").Inc()
		return false
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return true
	}

	err := w.handle(ctx, msg)
	if err == nil {
		m.WithLabelValues("success").Inc()
		w.logger.Info("item retry succeeded", "operation_id", msg.OperationID, "item_id", msg.ItemID, "attempt", msg.Attempt)
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return true
		}
	}
	if shouldRetry(err) {
		if err := w.scheduleRetry(ctx, msg, err); err != nil {
			w.logger.Warn("item worker: retry schedule failed", "err", err)
			return true
		}
		return false
	}
	if err := w.markFailed(ctx, msg, err); err != nil {
		w.logger.Warn("item worker: mark failed failed", "err", err)
		return true
	}
	return false
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return apperr.Retryable(err)
}

func (w *ItemWorker) scheduleRetry(ctx context.Context, msg task.ItemRetryMessage, procErr error) error {
	nextAttempt := msg.Attempt + 1
	if w.maxRetry == 0 || nextAttempt > w.maxRetry {
		return w.markFailed(ctx, msg, procErr)
	}

	delay := pickRetryDelay(nextAttempt, w.delays)
	msg.Attempt = nextAttempt
	msg.LastError = procErr.Error()
	msg.FailedAt = time.Now().UTC()
	if err := w.broker.PublishItemRetry(ctx, msg, delay); err != nil {
		return err
	}
	metrics.Get().RetryMessagesTotal.WithLabelValues("retry").Inc()
	w.logger.Info("item retry scheduled", "operation_id", msg.OperationID, "item_id", msg.ItemID, "attempt", nextAttempt, "delay", delay)
	return nil
}

func (w *ItemWorker) markFailed(ctx context.Context, msg task.ItemRetryMessage, procErr error) error {
	dead := mq.DeadItem{
		OperationID: msg.OperationID,
		UserID:      msg.UserID,
		ItemID:      msg.ItemID,
		Attempt:     msg.Attempt,
		Error:       procErr.Error(),
		FailedAt:    time.Now().UTC(),
	}
	if err := w.broker.PublishDeadItem(ctx, dead); err != nil {
		return err
	}
	metrics.Get().RetryMessagesTotal.WithLabelValues("dead_letter").Inc()
	w.logger.Warn("item retry dead-lettered", "operation_id", msg.OperationID, "item_id", msg.ItemID, "attempt", msg.Attempt, "err", procErr)
	return nil
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
