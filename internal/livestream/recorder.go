package livestream

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/metrics"
	"Dyvine/internal/orchestrator"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/grafov/m3u8"
)

// Recorder pulls a live stream into ordered segment files under dir. It
// returns nil when the stream ends or ctx is done, and calls onSegment for
// every completed segment.
type Recorder interface {
	Record(ctx context.Context, streamURL, dir string, onSegment func(path string)) error
}

// Container describes the file a recorder's segments concatenate into.
type Container struct {
	Ext         string
	ContentType string
}

var (
	ContainerTS  = Container{Ext: "ts", ContentType: "video/mp2t"}
	ContainerFLV = Container{Ext: "flv", ContentType: "video/x-flv"}
)

const maxPlaylistFailures = 3

// HLSRecorder polls an HLS media playlist and downloads new segments.
type HLSRecorder struct {
	fetcher      *orchestrator.Fetcher
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewHLSRecorder(fetcher *orchestrator.Fetcher, pollInterval time.Duration, logger *slog.Logger) *HLSRecorder {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HLSRecorder{fetcher: fetcher, pollInterval: pollInterval, logger: logger}
}

func (r *HLSRecorder) Record(ctx context.Context, streamURL, dir string, onSegment func(path string)) error {
	playlistURL := streamURL
	var (
		lastSeq  uint64
		started  bool
		written  int
		failures int
	)
	segMetric := metrics.Get().CaptureSegmentsTotal

	for {
		if ctx.Err() != nil {
			return nil
		}
		pl, err := r.playlist(ctx, playlistURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			r.logger.Warn("hls playlist fetch failed", "url", playlistURL, "attempt", failures, "err", err)
			if failures >= maxPlaylistFailures {
				if written > 0 {
					// the playlist disappears once the broadcaster stops
					return nil
				}
				return err
			}
			if !sleep(ctx, r.pollInterval) {
				return nil
			}
			continue
		}
		failures = 0

		if master, ok := pl.(*m3u8.MasterPlaylist); ok {
			variant := bestVariant(master)
			if variant == "" {
				return apperr.New(apperr.Upstream, "hls master playlist has no variants")
			}
			playlistURL, err = resolve(playlistURL, variant)
			if err != nil {
				return err
			}
			continue
		}
		media, ok := pl.(*m3u8.MediaPlaylist)
		if !ok {
			return apperr.New(apperr.Upstream, "unsupported hls playlist")
		}

		for i, seg := range media.Segments {
			if seg == nil {
				continue
			}
			seq := media.SeqNo + uint64(i)
			if started && seq <= lastSeq {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			segURL, err := resolve(playlistURL, seg.URI)
			if err != nil {
				segMetric.WithLabelValues("failure").Inc()
				continue
			}
			path := filepath.Join(dir, fmt.Sprintf("%08d.ts", written))
			if err := r.download(ctx, segURL, path); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				segMetric.WithLabelValues("failure").Inc()
				r.logger.Warn("hls segment lost", "seq", seq, "err", err)
			} else {
				segMetric.WithLabelValues("success").Inc()
				written++
				onSegment(path)
			}
			lastSeq = seq
			started = true
		}
		if media.Closed {
			return nil
		}

		wait := r.pollInterval
		if td := time.Duration(media.TargetDuration * float64(time.Second) / 2); td > 0 && td < wait {
			wait = td
		}
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

func (r *HLSRecorder) playlist(ctx context.Context, playlistURL string) (m3u8.Playlist, error) {
	var buf bytes.Buffer
	if _, _, err := r.fetcher.Fetch(ctx, playlistURL, &buf); err != nil {
		return nil, err
	}
	pl, _, err := m3u8.DecodeFrom(&buf, false)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, "decode hls playlist", err)
	}
	return pl, nil
}

func (r *HLSRecorder) download(ctx context.Context, segURL, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(apperr.Storage, "create segment", err)
	}
	_, _, err = r.fetcher.Fetch(ctx, segURL, f)
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = apperr.Wrap(apperr.Storage, "write segment", closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return err
}

func bestVariant(master *m3u8.MasterPlaylist) string {
	variants := make([]*m3u8.Variant, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v != nil && v.URI != "" {
			variants = append(variants, v)
		}
	}
	if len(variants) == 0 {
		return ""
	}
	sort.SliceStable(variants, func(i, j int) bool { return variants[i].Bandwidth > variants[j].Bandwidth })
	return variants[0].URI
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", apperr.Wrap(apperr.Upstream, "parse playlist url", err)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", apperr.Wrap(apperr.Upstream, "parse segment url", err)
	}
	return b.ResolveReference(u).String(), nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// FLVRecorder captures an FLV pull stream as a single segment.
type FLVRecorder struct {
	fetcher *orchestrator.Fetcher
}

// NewFLVRecorder builds a recorder. fetcher must not carry a timeout.
func NewFLVRecorder(fetcher *orchestrator.Fetcher) *FLVRecorder {
	return &FLVRecorder{fetcher: fetcher}
}

func (r *FLVRecorder) Record(ctx context.Context, streamURL, dir string, onSegment func(path string)) error {
	path := filepath.Join(dir, "00000000.flv")
	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(apperr.Storage, "create segment", err)
	}
	n, _, err := r.fetcher.Fetch(ctx, streamURL, f)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = apperr.Wrap(apperr.Storage, "write segment", closeErr)
	}
	if err != nil && ctx.Err() != nil {
		err = nil
	}
	if err != nil && n == 0 {
		_ = os.Remove(path)
		metrics.Get().CaptureSegmentsTotal.WithLabelValues("failure").Inc()
		return err
	}
	if n == 0 {
		_ = os.Remove(path)
		return nil
	}
	metrics.Get().CaptureSegmentsTotal.WithLabelValues("success").Inc()
	onSegment(path)
	return nil
}
