// Package fetch retrieves the remote FFIEC documents. Locations are either
// http(s) URLs or local file paths.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

func New(userAgent string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

func isRemote(loc string) bool {
	l := strings.ToLower(loc)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Open returns a reader over the document at loc.
func (f *Fetcher) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	if !isRemote(loc) {
		fh, err := os.Open(loc)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", loc, err)
		}
		return fh, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", loc, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	f.logger.Info("fetching document", zap.String("url", loc))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", loc, resp.Status)
	}
	return resp.Body, nil
}

// Download spools loc into a temp file under dir and returns its path. Local
// paths are returned as-is. The caller removes remote spools when done.
func (f *Fetcher) Download(ctx context.Context, loc, dir string) (string, bool, error) {
	if !isRemote(loc) {
		if _, err := os.Stat(loc); err != nil {
			return "", false, fmt.Errorf("stat %s: %w", loc, err)
		}
		return loc, false, nil
	}

	body, err := f.Open(ctx, loc)
	if err != nil {
		return "", false, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, "ffiec-*-"+path.Base(loc))
	if err != nil {
		return "", false, err
	}
	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", false, fmt.Errorf("download %s: %w", loc, err)
	}

	f.logger.Info("downloaded document",
		zap.String("url", loc),
		zap.String("path", tmp.Name()),
		zap.Int64("bytes", n))
	return tmp.Name(), true, nil
}
