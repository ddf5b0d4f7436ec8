package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	yt "github.com/kkdai/youtube/v2"

	"github.com/forPelevin/vidsum/internal/ports"
)

var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/shorts/[\w-]+`),
	regexp.MustCompile(`^https?://youtu\.be/[\w-]+`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/embed/[\w-]+`),
}

var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([\w-]{11})`),
	regexp.MustCompile(`youtu\.be/([\w-]{11})`),
	regexp.MustCompile(`embed/([\w-]{11})`),
	regexp.MustCompile(`shorts/([\w-]{11})`),
}

func IsYouTubeURL(s string) bool {
	for _, re := range urlPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// VideoID returns the 11-character id embedded in a YouTube URL, or "".
func VideoID(s string) string {
	for _, re := range idPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}

type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*yt.Video, error)
	GetStreamContext(ctx context.Context, video *yt.Video, format *yt.Format) (io.ReadCloser, int64, error)
}

type Downloader struct {
	client videoClient
}

func NewDownloader() *Downloader {
	return &Downloader{client: &yt.Client{}}
}

// Download saves the best muxed stream of url into dir as <video id>.<ext>.
// An existing non-empty file for the same id is reused and reported as not
// downloaded.
func (d *Downloader) Download(ctx context.Context, url, dir string) (path string, downloaded bool, err error) {
	if !IsYouTubeURL(url) {
		return "", false, ports.Wrap(ports.ErrSource, fmt.Errorf("not a valid YouTube URL: %s", url))
	}
	video, err := d.client.GetVideoContext(ctx, url)
	if err != nil {
		return "", false, ports.Wrap(ports.ErrSource, fmt.Errorf("failed to get video info: %w", err))
	}
	format, err := pickFormat(video.Formats)
	if err != nil {
		return "", false, ports.Wrap(ports.ErrSource, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, ports.Wrap(ports.ErrSource, err)
	}
	path = filepath.Join(dir, video.ID+extension(format.MimeType))
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		return path, false, nil
	}

	stream, _, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", false, ports.Wrap(ports.ErrSource, fmt.Errorf("failed to download video: %w", err))
	}
	defer stream.Close()

	if err := writeAtomic(path, stream); err != nil {
		return "", false, ports.Wrap(ports.ErrSource, fmt.Errorf("failed to download video: %w", err))
	}
	return path, true, nil
}

// pickFormat prefers the tallest muxed mp4 stream, then any muxed stream.
// Clip extraction needs both audio and video.
func pickFormat(formats yt.FormatList) (*yt.Format, error) {
	var best *yt.Format
	better := func(f *yt.Format) bool {
		if best == nil {
			return true
		}
		fmp4, bmp4 := isMP4(f.MimeType), isMP4(best.MimeType)
		if fmp4 != bmp4 {
			return fmp4
		}
		if f.Height != best.Height {
			return f.Height > best.Height
		}
		return f.Bitrate > best.Bitrate
	}
	for i := range formats {
		f := &formats[i]
		if f.AudioChannels == 0 || f.Width == 0 {
			continue
		}
		if better(f) {
			best = f
		}
	}
	if best == nil {
		return nil, errors.New("no downloadable format with audio and video")
	}
	return best, nil
}

func isMP4(mime string) bool { return strings.HasPrefix(mime, "video/mp4") }

func extension(mime string) string {
	switch {
	case strings.HasPrefix(mime, "video/webm"):
		return ".webm"
	case strings.HasPrefix(mime, "video/3gpp"):
		return ".3gp"
	default:
		return ".mp4"
	}
}

func writeAtomic(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
