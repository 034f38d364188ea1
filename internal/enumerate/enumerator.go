// Package enumerate walks a user's paged listings and yields every distinct
// post in source order.
package enumerate

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/metrics"
	"Dyvine/internal/source"
	"Dyvine/internal/telemetry"
	"Dyvine/model"
	"context"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultPageSize = 20

// Request describes one enumeration run.
type Request struct {
	UserID string
	// Feeds are walked in order with a single seen-id set. Empty means posts only.
	Feeds []source.Feed
	// StartCursor resumes the first feed from a previously observed cursor.
	StartCursor string
	// MaxItems caps the number of distinct items yielded. Zero means no cap.
	MaxItems int
}

// Result summarizes a finished run.
type Result struct {
	Count int
	Pages int
	// HasMore is the has_more flag of the last page fetched.
	HasMore bool
	// Truncated is set when MaxItems stopped the run.
	Truncated bool
	// Stopped is set when the consumer stopped the run early.
	Stopped bool
	// Feed and ResumeCursor locate the first item this run did not hand out.
	// ResumeCursor is empty when the listing was exhausted.
	Feed         source.Feed
	ResumeCursor string
	// Err is the page error that ended the run after retries were exhausted.
	Err error
}

// Complete reports whether every item the run was asked for was produced.
func (r Result) Complete() bool {
	return r.Err == nil && !r.Stopped
}

// Enumerator drives paged listing calls against a Source.
type Enumerator struct {
	src         source.Source
	pageSize    int
	retryDelays []time.Duration
	tracer      trace.Tracer
}

// New builds an Enumerator. retryDelays holds the backoff before each retry,
// so a page is attempted at most len(retryDelays)+1 times.
func New(src source.Source, pageSize int, retryDelays []time.Duration) *Enumerator {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Enumerator{
		src:         src,
		pageSize:    pageSize,
		retryDelays: retryDelays,
		tracer:      telemetry.Tracer("enumerate"),
	}
}

// Items returns the run as a lazy sequence. The summary is written to res
// once the sequence is drained or abandoned.
func (e *Enumerator) Items(ctx context.Context, req Request, res *Result) iter.Seq[model.ContentItem] {
	return func(yield func(model.ContentItem) bool) {
		r := e.Walk(ctx, req, yield)
		if res != nil {
			*res = r
		}
	}
}

// Walk fetches pages until the listing is exhausted, MaxItems is reached or
// yield returns false. Duplicate ids within the run are dropped. A page that
// keeps failing ends the run with the items produced so far.
func (e *Enumerator) Walk(ctx context.Context, req Request, yield func(model.ContentItem) bool) Result {
	feeds := req.Feeds
	if len(feeds) == 0 {
		feeds = []source.Feed{source.FeedPosts}
	}
	seen := make(map[string]struct{})
	var res Result

	for i, feed := range feeds {
		cursor := ""
		if i == 0 {
			cursor = req.StartCursor
		}
		res.Feed = feed
		res.ResumeCursor = cursor

		for {
			if err := ctx.Err(); err != nil {
				res.Stopped = true
				return res
			}
			page, err := e.fetch(ctx, req.UserID, feed, cursor)
			if err != nil {
				if ctx.Err() != nil {
					res.Stopped = true
					return res
				}
				res.Err = err
				return res
			}
			res.Pages++
			res.HasMore = page.HasMore

			for _, item := range page.Items {
				if _, dup := seen[item.ID]; dup {
					continue
				}
				if req.MaxItems > 0 && res.Count >= req.MaxItems {
					res.Truncated = true
					return res
				}
				seen[item.ID] = struct{}{}
				res.Count++
				if !yield(item) {
					res.Stopped = true
					return res
				}
			}

			if !page.HasMore || page.NextCursor == "" {
				res.ResumeCursor = ""
				break
			}
			cursor = page.NextCursor
			res.ResumeCursor = cursor
			if req.MaxItems > 0 && res.Count >= req.MaxItems {
				res.Truncated = true
				return res
			}
		}
	}
	return res
}

// fetch requests one page, retrying transient failures with backoff.
func (e *Enumerator) fetch(ctx context.Context, userID string, feed source.Feed, cursor string) (model.Page, error) {
	ctx, span := e.tracer.Start(ctx, "enumerate.page", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("feed", string(feed)),
		attribute.String("cursor", cursor),
	))
	defer span.End()

	pages := metrics.Get().EnumerationPages
	var lastErr error
	for attempt := 0; ; attempt++ {
		page, err := source.List(ctx, e.src, feed, userID, cursor, e.pageSize)
		if err == nil {
			pages.WithLabelValues("ok").Inc()
			span.SetAttributes(attribute.Int("items", len(page.Items)), attribute.Int("attempts", attempt+1))
			return page, nil
		}
		lastErr = err
		pages.WithLabelValues(string(apperr.CodeOf(err))).Inc()

		if !apperr.Retryable(err) || attempt >= len(e.retryDelays) {
			break
		}
		delay := e.retryDelays[attempt]
		slog.Warn("enumerate: page fetch failed, retrying",
			"user_id", userID, "feed", feed, "cursor", cursor, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "cancelled")
			return model.Page{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return model.Page{}, lastErr
}
