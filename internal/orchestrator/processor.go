package orchestrator

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/storage"
	"Dyvine/model"
	"context"
	"fmt"
	"os"
	"time"
)

// StoredFile is one media file persisted for an item.
type StoredFile struct {
	Key  string
	Path string
	URL  string
	Size int64
}

// ItemResult is the outcome of processing one content item.
type ItemResult struct {
	Category model.Category
	Files    []StoredFile
}

// Processor runs the per-item pipeline: classify, fetch every media file in
// order, then persist locally and/or upload.
type Processor struct {
	fetcher   *Fetcher
	local     *storage.Local
	sink      *storage.Sink
	keepLocal bool
	now       func() time.Time
}

// NewProcessor builds a Processor. Files are always kept locally when the sink
// is disabled.
func NewProcessor(fetcher *Fetcher, local *storage.Local, sink *storage.Sink, keepLocal bool) *Processor {
	return &Processor{
		fetcher:   fetcher,
		local:     local,
		sink:      sink,
		keepLocal: keepLocal || !sink.Enabled(),
		now:       time.Now,
	}
}

// Process downloads and stores every media file of item. On error the files
// stored so far are kept and the error names the failing file.
func (p *Processor) Process(ctx context.Context, userID string, item model.ContentItem) (ItemResult, error) {
	content := model.Classify(item)
	res := ItemResult{Category: content.Category()}
	refs := content.Media()
	if len(refs) == 0 {
		if res.Category == model.CategoryUnknown {
			return res, nil
		}
		return res, apperr.Newf(apperr.Upstream, "post %s (%s) has no media urls", item.ID, res.Category)
	}

	name := item.Description
	if name == "" {
		name = item.ID
	}
	for i, ref := range refs {
		fileName := name
		if len(refs) > 1 {
			fileName = fmt.Sprintf("%s_%d", name, i+1)
		}
		file, err := p.store(ctx, userID, item, res.Category, ref, fileName)
		if err != nil {
			return res, fmt.Errorf("media %d/%d: %w", i+1, len(refs), err)
		}
		res.Files = append(res.Files, file)
	}
	return res, nil
}

func (p *Processor) store(ctx context.Context, userID string, item model.ContentItem, category model.Category, ref model.MediaRef, name string) (StoredFile, error) {
	tmp, err := p.local.TempFile("media-*")
	if err != nil {
		return StoredFile{}, err
	}
	tmpPath := tmp.Name()
	placed := false
	defer func() {
		if !placed {
			_ = os.Remove(tmpPath)
		}
	}()

	size, contentType, err := p.fetcher.Fetch(ctx, ref.URL, tmp)
	closeErr := tmp.Close()
	if err != nil {
		return StoredFile{}, err
	}
	if closeErr != nil {
		return StoredFile{}, apperr.Wrap(apperr.Storage, "write media", closeErr)
	}

	now := p.now()
	ext := storage.MediaExt(ref.Kind, ref.URL, contentType)
	key := storage.MediaKey(category, userID, name, ext, now)
	if contentType == "" && ref.Kind == model.MediaVideo {
		contentType = "video/mp4"
	}
	out := StoredFile{Key: key, Path: tmpPath, Size: size}

	if p.keepLocal {
		dst, err := p.local.Place(tmpPath, key)
		if err != nil {
			return StoredFile{}, err
		}
		placed = true
		out.Path = dst
	}
	if p.sink.Enabled() {
		author := item.AuthorName
		if author == "" {
			author = userID
		}
		url, err := p.sink.PutFile(ctx, key, out.Path, storage.PutOptions{
			ContentType: contentType,
			Metadata:    storage.Metadata(author, string(category), contentType, now),
		})
		if err != nil {
			return StoredFile{}, err
		}
		out.URL = url
		if !p.keepLocal {
			out.Path = ""
		}
	}
	return out, nil
}
