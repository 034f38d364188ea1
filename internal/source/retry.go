package source

import (
	"Dyvine/internal/apperr"
	"Dyvine/model"
	"context"
	"log/slog"
	"time"
)

// Retrying wraps a Source and repeats transient failures of the single-shot
// lookups. Listing calls pass straight through: the enumerator retries pages
// itself.
type Retrying struct {
	Source
	delays []time.Duration
	logger *slog.Logger
}

// NewRetrying wraps src. Each lookup is tried once plus once per delay.
func NewRetrying(src Source, delays []time.Duration, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{Source: src, delays: delays, logger: logger}
}

func (r *Retrying) GetUser(ctx context.Context, userID string) (model.UserProfile, error) {
	return retry(ctx, r, "get_user", userID, func() (model.UserProfile, error) {
		return r.Source.GetUser(ctx, userID)
	})
}

func (r *Retrying) GetPost(ctx context.Context, postID string) (model.ContentItem, error) {
	return retry(ctx, r, "get_post", postID, func() (model.ContentItem, error) {
		return r.Source.GetPost(ctx, postID)
	})
}

func (r *Retrying) GetLiveRoom(ctx context.Context, userID string) (model.LiveRoom, error) {
	return retry(ctx, r, "get_live_room", userID, func() (model.LiveRoom, error) {
		return r.Source.GetLiveRoom(ctx, userID)
	})
}

func retry[T any](ctx context.Context, r *Retrying, call, id string, fn func() (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil || !apperr.Retryable(err) || attempt >= len(r.delays) || ctx.Err() != nil {
			return v, err
		}
		delay := r.delays[attempt]
		r.logger.Warn("source call failed, retrying", "call", call, "id", id, "attempt", attempt+1, "delay", delay, "err", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
