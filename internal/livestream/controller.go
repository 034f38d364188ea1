// Package livestream records a user's live broadcast to a single file. Each
// capture walks pending -> connecting -> capturing -> merging -> success or
// failed, and at most one capture per user is active at a time.
package livestream

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/registry"
	"Dyvine/internal/source"
	"Dyvine/internal/storage"
	"Dyvine/internal/telemetry"
	"Dyvine/model"
	"context"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const lockPrefix = "livestream:"

// Config holds controller settings.
type Config struct {
	MaxDuration    time.Duration
	LockTTL        time.Duration
	ConnectTimeout time.Duration
	// SegmentDir holds per-capture segment directories. Empty uses the
	// local store's temp area.
	SegmentDir string
	KeepLocal  bool
}

// Controller runs livestream captures.
type Controller struct {
	cfg      Config
	registry *registry.Registry
	src      source.Source
	locker   Locker
	hls      Recorder
	flv      Recorder
	merger   Merger
	local    *storage.Local
	sink     *storage.Sink
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Deps groups the collaborators of a Controller.
type Deps struct {
	Registry *registry.Registry
	Source   source.Source
	Locker   Locker
	HLS      Recorder
	FLV      Recorder
	Merger   Merger
	Local    *storage.Local
	Sink     *storage.Sink
	Logger   *slog.Logger
}

func NewController(cfg Config, deps Deps) *Controller {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.MaxDuration + time.Hour
	}
	if deps.Locker == nil {
		deps.Locker = NewMemoryLocker()
	}
	if deps.Merger == nil {
		deps.Merger = ConcatMerger{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Controller{
		cfg:      cfg,
		registry: deps.Registry,
		src:      deps.Source,
		locker:   deps.Locker,
		hls:      deps.HLS,
		flv:      deps.FLV,
		merger:   deps.Merger,
		local:    deps.Local,
		sink:     deps.Sink,
		logger:   deps.Logger,
		tracer:   telemetry.Tracer("livestream"),
		now:      time.Now,
	}
}

// UserIDFromURL extracts the id from a live room url: the last path segment
// with the query stripped.
func UserIDFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.New(apperr.Validation, "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", apperr.Newf(apperr.Validation, "invalid live url %q", raw)
	}
	id := path.Base(strings.TrimRight(u.Path, "/"))
	if id == "" || id == "." || id == "/" {
		return "", apperr.Newf(apperr.Validation, "no id in live url %q", raw)
	}
	return id, nil
}

// Capture is a connected stream waiting to be recorded. Exactly one of Run
// or Abort must be called.
type Capture struct {
	c         *Controller
	opID      string
	userID    string
	streamURL string
	recorder  Recorder
	container Container
	key       string
	author    string
	startedAt time.Time
	unlock    func(context.Context) error
}

// Start claims the user, creates the operation and resolves the stream. It
// returns the record and, when the user is live, the Capture to run in the
// background. On a failed connect the record is already terminal and err
// carries the cause. A user with an active capture gets a Conflict error and
// no record.
func (c *Controller) Start(ctx context.Context, userID string) (model.Operation, *Capture, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Operation{}, nil, apperr.New(apperr.Validation, "user id is required")
	}
	unlock, err := c.locker.TryLock(ctx, lockPrefix+userID, c.cfg.LockTTL)
	if err != nil {
		if apperr.IsCode(err, apperr.Conflict) {
			return model.Operation{}, nil, apperr.Newf(apperr.Conflict, "a capture for user %s is already active", userID)
		}
		return model.Operation{}, nil, apperr.Wrap(apperr.Internal, "acquire capture lock", err)
	}
	release := func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("release capture lock failed", "user_id", userID, "err", err)
		}
	}

	op := c.registry.Create(ctx, model.KindLivestream, userID)
	op, err = c.registry.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Status = model.StatusRunning
		o.Stage = model.StageConnecting
		return nil
	})
	if err != nil {
		release()
		return model.Operation{}, nil, err
	}

	cp, err := c.connect(ctx, op.ID, userID)
	if err != nil {
		release()
		failed := c.fail(ctx, op.ID, model.StageConnecting, err)
		return failed, nil, err
	}
	cp.unlock = unlock

	op, err = c.registry.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Stage = model.StageCapturing
		o.DownloadPath = c.destination(cp.key)
		return nil
	})
	if err != nil {
		release()
		return model.Operation{}, nil, err
	}
	c.logger.Info("livestream capture starting", "operation_id", op.ID, "user_id", userID, "url", cp.streamURL)
	return op, cp, nil
}

// OperationID returns the id of the record the capture reports to.
func (cp *Capture) OperationID() string { return cp.opID }

// Run records, merges and stores the stream.
func (cp *Capture) Run(ctx context.Context) error {
	return cp.c.run(ctx, cp)
}

// Abort fails the operation without recording and releases the user.
func (cp *Capture) Abort(ctx context.Context, cause error) {
	cp.c.fail(ctx, cp.opID, model.StageConnecting, cause)
	if err := cp.unlock(context.WithoutCancel(ctx)); err != nil {
		cp.c.logger.Warn("release capture lock failed", "user_id", cp.userID, "err", err)
	}
}

func (c *Controller) connect(ctx context.Context, opID, userID string) (*Capture, error) {
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}
	room, err := c.src.GetLiveRoom(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !room.IsLive() {
		return nil, apperr.Newf(apperr.NotLive, "user %s is not currently streaming", userID)
	}
	cp := &Capture{c: c, opID: opID, userID: userID, author: room.Nickname, startedAt: c.now()}
	switch {
	case room.BestHLS() != "" && c.hls != nil:
		cp.streamURL, cp.recorder, cp.container = room.BestHLS(), c.hls, ContainerTS
	case room.BestFLV() != "" && c.flv != nil:
		cp.streamURL, cp.recorder, cp.container = room.BestFLV(), c.flv, ContainerFLV
	default:
		return nil, apperr.Newf(apperr.NotLive, "no live stream available for user %s", userID)
	}
	if cp.author == "" {
		cp.author = userID
	}
	cp.key = storage.LivestreamKey(userID, opID, cp.container.Ext, cp.startedAt)
	return cp, nil
}

func (c *Controller) destination(key string) string {
	if c.cfg.KeepLocal || !c.sink.Enabled() {
		return c.local.Path(key)
	}
	return c.sink.URL(key)
}

// run captures until the stream ends, ctx is cancelled or the maximum
// duration passes, then merges and stores the recording.
func (c *Controller) run(ctx context.Context, cp *Capture) error {
	ctx, span := c.tracer.Start(ctx, "livestream.capture", trace.WithAttributes(
		attribute.String("operation_id", cp.opID),
		attribute.String("user_id", cp.userID),
	))
	defer span.End()
	final := context.WithoutCancel(ctx)
	// the user is held while connecting and capturing only
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := cp.unlock(final); err != nil {
			c.logger.Warn("release capture lock failed", "user_id", cp.userID, "err", err)
		}
	}
	defer release()

	segDir, err := c.segmentDir(cp.opID)
	if err != nil {
		c.fail(final, cp.opID, model.StageCapturing, err)
		return err
	}

	var (
		mu       sync.Mutex
		segments []string
	)
	onSegment := func(path string) {
		mu.Lock()
		segments = append(segments, path)
		n := len(segments)
		mu.Unlock()
		if _, err := c.registry.Update(final, cp.opID, func(o *model.Operation) error {
			o.Segments = n
			return nil
		}); err != nil {
			c.logger.Warn("record segment failed", "operation_id", cp.opID, "err", err)
		}
	}

	captureCtx := ctx
	if c.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		captureCtx, cancel = context.WithTimeout(ctx, c.cfg.MaxDuration)
		defer cancel()
	}
	recErr := cp.recorder.Record(captureCtx, cp.streamURL, segDir, onSegment)
	release()

	mu.Lock()
	captured := append([]string(nil), segments...)
	mu.Unlock()
	if len(captured) == 0 {
		if recErr == nil {
			recErr = apperr.New(apperr.Upstream, "stream ended before any segment was captured")
		}
		_ = os.RemoveAll(segDir)
		span.SetStatus(codes.Error, "capture failed")
		c.fail(final, cp.opID, model.StageCapturing, recErr)
		return recErr
	}
	if recErr != nil {
		c.logger.Warn("capture ended with error, merging what was recorded", "operation_id", cp.opID, "err", recErr)
	}

	if _, err := c.registry.Update(final, cp.opID, func(o *model.Operation) error {
		o.Stage = model.StageMerging
		o.Progress = 90
		return nil
	}); err != nil {
		return err
	}

	localPath, objectURL, err := c.finalize(final, cp, segDir, captured)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge failed")
		c.fail(final, cp.opID, model.StageMerging, err)
		c.logger.Error("livestream merge failed, segments kept", "operation_id", cp.opID, "segment_dir", segDir, "err", err)
		return err
	}
	_ = os.RemoveAll(segDir)

	_, err = c.registry.Update(final, cp.opID, func(o *model.Operation) error {
		o.Status = model.StatusSuccess
		o.Stage = model.StageSuccess
		o.Error = nil
		if o.Counts == nil {
			o.Counts = model.NewCounts()
		}
		o.Counts[model.CategoryLive] = 1
		o.TotalDownloaded = 1
		total := 1
		o.TotalItems = &total
		if localPath == "" {
			o.DownloadPath = objectURL
		} else {
			o.DownloadPath = localPath
		}
		return nil
	})
	span.SetAttributes(attribute.Int("segments", len(captured)))
	c.logger.Info("livestream capture finished", "operation_id", cp.opID, "segments", len(captured), "path", localPath, "url", objectURL)
	return err
}

// finalize merges segments and stores the result. Segment files are left in
// place; the caller removes them on success.
func (c *Controller) finalize(ctx context.Context, cp *Capture, segDir string, segments []string) (string, string, error) {
	merged := filepath.Join(segDir, "merged."+cp.container.Ext)
	if err := c.merger.Merge(ctx, segments, merged); err != nil {
		_ = os.Remove(merged)
		return "", "", err
	}
	localPath := merged
	keepLocal := c.cfg.KeepLocal || !c.sink.Enabled()
	if keepLocal {
		dst, err := c.local.Place(merged, cp.key)
		if err != nil {
			_ = os.Remove(merged)
			return "", "", err
		}
		localPath = dst
	}
	var objectURL string
	if c.sink.Enabled() {
		var err error
		objectURL, err = c.sink.PutFile(ctx, cp.key, localPath, storage.PutOptions{
			ContentType: cp.container.ContentType,
			Metadata:    storage.Metadata(cp.author, string(model.CategoryLive), cp.container.ContentType, cp.startedAt),
		})
		if err != nil {
			return "", "", err
		}
	}
	if !keepLocal {
		_ = os.Remove(merged)
		localPath = ""
	}
	return localPath, objectURL, nil
}

func (c *Controller) segmentDir(opID string) (string, error) {
	if c.cfg.SegmentDir == "" {
		return c.local.TempDir("live-" + opID + "-*")
	}
	dir := filepath.Join(c.cfg.SegmentDir, opID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.Storage, "create segment dir", err)
	}
	return dir, nil
}

// fail moves the operation to failed with err as the cause at stage.
func (c *Controller) fail(ctx context.Context, opID, stage string, err error) model.Operation {
	op, updErr := c.registry.Update(ctx, opID, func(o *model.Operation) error {
		o.Status = model.StatusFailed
		o.Stage = model.StageFailed
		o.Error = &model.OperationError{
			Code:    string(apperr.CodeOf(err)),
			Message: err.Error(),
			Stage:   stage,
		}
		return nil
	})
	if updErr != nil {
		c.logger.Error("mark capture failed", "operation_id", opID, "err", updErr)
		op, _ = c.registry.Get(opID)
	}
	return op
}
