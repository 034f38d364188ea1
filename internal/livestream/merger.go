package livestream

import (
	"Dyvine/internal/apperr"
	"context"
	"io"
	"os"
)

// Merger joins captured segments into one output file.
type Merger interface {
	Merge(ctx context.Context, segments []string, dst string) error
}

// ConcatMerger appends segments byte for byte. MPEG-TS and a single FLV
// segment stay playable when concatenated this way.
type ConcatMerger struct{}

func (ConcatMerger) Merge(ctx context.Context, segments []string, dst string) error {
	if len(segments) == 0 {
		return apperr.New(apperr.Validation, "no segments to merge")
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.Storage, "create merged file", err)
	}
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			return err
		}
		if err := appendFile(out, seg); err != nil {
			_ = out.Close()
			return apperr.Wrap(apperr.Storage, "merge "+seg, err)
		}
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return apperr.Wrap(apperr.Storage, "sync merged file", err)
	}
	if err := out.Close(); err != nil {
		return apperr.Wrap(apperr.Storage, "close merged file", err)
	}
	return nil
}

func appendFile(out io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(out, in)
	return err
}
