package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/vidsum/internal/ports"
	"github.com/forPelevin/vidsum/internal/ports/adapters/youtube"
)

type youtubeDownloader interface {
	Download(ctx context.Context, url, dir string) (string, bool, error)
}

// Resolver turns local paths, YouTube links and plain http(s) URLs into a
// local media file.
type Resolver struct {
	yt     youtubeDownloader
	client *http.Client
}

func New() *Resolver {
	return &Resolver{yt: youtube.NewDownloader(), client: &http.Client{Timeout: 30 * time.Minute}}
}

func (r *Resolver) Resolve(ctx context.Context, src, dir string) (string, bool, error) {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return "", false, ports.Wrap(ports.ErrSource, errors.New("empty source"))
	case youtube.IsYouTubeURL(src):
		return r.yt.Download(ctx, src, dir)
	case isHTTP(src):
		p, err := r.fetch(ctx, src, dir)
		if err != nil {
			return "", false, err
		}
		return p, true, nil
	}

	st, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, ports.Wrap(ports.ErrSource, fmt.Errorf("file not found: %s", src))
		}
		return "", false, ports.Wrap(ports.ErrSource, err)
	}
	if st.IsDir() {
		return "", false, ports.Wrap(ports.ErrSource, fmt.Errorf("not a file: %s", src))
	}
	return src, false, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", ports.Wrap(ports.ErrSource, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", ports.Wrap(ports.ErrSource, fmt.Errorf("download %s: %w", rawURL, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ports.Wrap(ports.ErrSource, fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", ports.Wrap(ports.ErrSource, err)
	}
	dst := filepath.Join(dir, remoteName(rawURL))
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", ports.Wrap(ports.ErrSource, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", ports.Wrap(ports.ErrSource, fmt.Errorf("download %s: %w", rawURL, err))
	}
	if err := tmp.Close(); err != nil {
		return "", ports.Wrap(ports.ErrSource, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", ports.Wrap(ports.ErrSource, err)
	}
	return dst, nil
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func remoteName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download.mp4"
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." || base == "" {
		return "download.mp4"
	}
	if path.Ext(base) == "" {
		base += ".mp4"
	}
	return base
}

// Key identifies a source for cache lookups: the YouTube video id, the URL,
// or the base name of a local file.
func Key(src string) string {
	src = strings.TrimSpace(src)
	switch {
	case youtube.IsYouTubeURL(src):
		if id := youtube.VideoID(src); id != "" {
			return "youtube:" + id
		}
		return "url:" + src
	case isHTTP(src):
		return "url:" + src
	case src == "":
		return ""
	default:
		return "file:" + filepath.Base(src)
	}
}
