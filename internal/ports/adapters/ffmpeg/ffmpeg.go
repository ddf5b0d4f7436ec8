package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/vidsum/internal/ports"
)

// runner executes a command and returns its combined output.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Adapter struct {
	ffmpeg  string
	ffprobe string
	run     runner
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, run: execRunner}
}

func (a *Adapter) ExtractAudio(ctx context.Context, videoPath, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", ports.Wrap(ports.ErrMedia, err)
	}
	f, err := os.CreateTemp(dir, "audio-*.wav")
	if err != nil {
		return "", ports.Wrap(ports.ErrMedia, err)
	}
	outWav := f.Name()
	f.Close()

	b, err := a.run(ctx, a.ffmpeg,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outWav,
	)
	if err != nil {
		os.Remove(outWav)
		return "", ports.Wrap(ports.ErrMedia, fmt.Errorf("ffmpeg extract audio: %w\n%s", err, tail(b)))
	}
	return outWav, nil
}

func (a *Adapter) CutClip(ctx context.Context, videoPath string, start, end float64, outPath string, reencode bool) error {
	if end <= start {
		return ports.Wrap(ports.ErrMedia, fmt.Errorf("ffmpeg cut clip: end %s is not after start %s", fmtSeconds(end), fmtSeconds(start)))
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return ports.Wrap(ports.ErrMedia, err)
	}
	b, err := a.run(ctx, a.ffmpeg, cutArgs(videoPath, start, end, outPath, reencode)...)
	if err != nil {
		return ports.Wrap(ports.ErrMedia, fmt.Errorf("ffmpeg cut clip: %w\n%s", err, tail(b)))
	}
	return nil
}

func cutArgs(videoPath string, start, end float64, outPath string, reencode bool) []string {
	args := []string{
		"-y",
		"-ss", fmtSeconds(start),
		"-i", videoPath,
		"-t", fmtSeconds(end - start),
	}
	if reencode {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "18",
			"-c:a", "aac",
			"-b:a", "192k",
		)
	} else {
		// Stream copy snaps to the nearest keyframe.
		args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
	}
	return append(args, outPath)
}

func (a *Adapter) MergeClips(ctx context.Context, clipPaths []string, outPath string) error {
	if len(clipPaths) == 0 {
		return ports.Wrap(ports.ErrMedia, fmt.Errorf("ffmpeg merge: no clips"))
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return ports.Wrap(ports.ErrMedia, err)
	}

	list, err := os.CreateTemp(filepath.Dir(outPath), "concat-*.txt")
	if err != nil {
		return ports.Wrap(ports.ErrMedia, err)
	}
	defer os.Remove(list.Name())
	for _, p := range clipPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			list.Close()
			return ports.Wrap(ports.ErrMedia, err)
		}
		fmt.Fprintf(list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := list.Close(); err != nil {
		return ports.Wrap(ports.ErrMedia, err)
	}

	b, err := a.run(ctx, a.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", list.Name(),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
		outPath,
	)
	if err != nil {
		return ports.Wrap(ports.ErrMedia, fmt.Errorf("ffmpeg merge clips: %w\n%s", err, tail(b)))
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	b, err := a.run(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, ports.Wrap(ports.ErrMedia, fmt.Errorf("ffprobe duration: %w\n%s", err, tail(b)))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ports.Wrap(ports.ErrMedia, fmt.Errorf("parse duration %q: %w", s, err))
	}
	return sec, nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// tail keeps the last lines of tool output; ffmpeg prints its banner first.
func tail(b []byte) string {
	const limit = 2000
	s := strings.TrimSpace(string(b))
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
