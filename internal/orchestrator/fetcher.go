package orchestrator

import (
	"Dyvine/internal/apperr"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPStatusError is returned for non-200 media responses.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

// Fetcher downloads media files from the platform CDN.
type Fetcher struct {
	client   *http.Client
	headers  http.Header
	timeout  time.Duration
	maxBytes int64
}

// NewFetcher builds a Fetcher. headers are sent with every request; timeout
// bounds a single download and maxBytes, when positive, caps its size.
func NewFetcher(client *http.Client, headers http.Header, timeout time.Duration, maxBytes int64) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{client: client, headers: headers, timeout: timeout, maxBytes: maxBytes}
}

// Fetch streams rawURL into w and returns the byte count and content type.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "", apperr.Wrap(apperr.Validation, "malformed media url", err)
	}
	for k, v := range f.headers {
		req.Header[k] = v
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", apperr.Wrap(apperr.Upstream, "fetch media", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return 0, "", apperr.Wrap(apperr.NotFound, "media gone", statusErr)
		case resp.StatusCode == http.StatusTooManyRequests:
			return 0, "", apperr.Wrap(apperr.RateLimited, "media rate limited", statusErr)
		case resp.StatusCode == http.StatusForbidden:
			return 0, "", apperr.Wrap(apperr.AuthExpired, "media url expired", statusErr)
		default:
			return 0, "", apperr.Wrap(apperr.Upstream, "fetch media", statusErr)
		}
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return 0, "", apperr.Newf(apperr.Validation, "media too large: %d bytes", resp.ContentLength)
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	n, err := io.Copy(w, body)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return n, "", err
		}
		return n, "", apperr.Wrap(apperr.Upstream, "read media", err)
	}
	if f.maxBytes > 0 && n > f.maxBytes {
		return n, "", apperr.Newf(apperr.Validation, "media too large: more than %d bytes", f.maxBytes)
	}
	if n == 0 {
		return 0, "", apperr.New(apperr.Upstream, "empty media body")
	}
	return n, resp.Header.Get("Content-Type"), nil
}
