package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/example/fileuploader/internal/errors"
)

// Fetcher downloads a remote item into a scratch file.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) *Download
}

// Download is a scratch copy of a remote resource. The caller owns the file
// and must call Release on every path.
type Download struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
	// ErrorCode is zero on success and ErrCodeNoFile when the fetch failed.
	ErrorCode int
	Err       error
	Duration  time.Duration
}

// Release removes the scratch file. It is safe to call more than once and
// on a failed download.
func (d *Download) Release() {
	if d == nil || d.Path == "" {
		return
	}
	_ = os.Remove(d.Path)
	d.Path = ""
}

// OK reports whether the download succeeded.
func (d *Download) OK() bool {
	return d != nil && d.ErrorCode == appErrors.ErrCodeOK
}

// FetcherConfig tunes an HTTPFetcher.
type FetcherConfig struct {
	Timeout    time.Duration
	MaxBytes   int64
	ScratchDir string
	UserAgent  string
}

// HTTPFetcher fetches links with a HEAD probe followed by a GET.
type HTTPFetcher struct {
	client *http.Client
	cfg    FetcherConfig
	logger *zap.Logger
}

// NewHTTPFetcher creates a fetcher. A nil client uses http.DefaultClient and a
// nil logger discards output.
func NewHTTPFetcher(client *http.Client, cfg FetcherConfig, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "fileuploader/1.0"
	}
	return &HTTPFetcher{client: client, cfg: cfg, logger: logger}
}

var (
	errNoContentLength = errors.New("missing or zero content length")
	errTooLarge        = errors.New("remote file exceeds the fetch size limit")
	errEmptyBody       = errors.New("empty response body")
)

// Fetch never returns nil. Every failure, including a timeout, yields a
// Download with ErrorCode set to ErrCodeNoFile.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) *Download {
	start := time.Now()
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	dl := &Download{Name: nameFromURL(rawURL)}
	if err := f.fetch(ctx, rawURL, dl); err != nil {
		dl.Release()
		dl.ErrorCode = appErrors.ErrCodeNoFile
		dl.Err = err
		f.logger.Info("remote fetch failed", zap.String("url", rawURL), zap.Error(err))
	}
	dl.Duration = time.Since(start)
	return dl
}

func (f *HTTPFetcher) fetch(ctx context.Context, rawURL string, dl *Download) error {
	head, err := f.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return err
	}
	head.Body.Close()
	if head.ContentLength <= 0 {
		return errNoContentLength
	}
	if f.cfg.MaxBytes > 0 && head.ContentLength > f.cfg.MaxBytes {
		return errTooLarge
	}
	dl.ContentType = head.Header.Get("Content-Type")

	resp, err := f.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		dl.ContentType = ct
	}

	tmp, err := os.CreateTemp(f.cfg.ScratchDir, "fetch-*")
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	dl.Path = tmp.Name()

	var body io.Reader = resp.Body
	if f.cfg.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.cfg.MaxBytes+1)
	}
	n, copyErr := io.Copy(tmp, body)
	if err := tmp.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	switch {
	case copyErr != nil:
		return fmt.Errorf("download body: %w", copyErr)
	case n == 0:
		return errEmptyBody
	case f.cfg.MaxBytes > 0 && n > f.cfg.MaxBytes:
		return errTooLarge
	}
	dl.Size = n
	return nil
}

func (f *HTTPFetcher) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, rawURL, resp.StatusCode)
	}
	return resp, nil
}

func nameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return linkName(u)
}
