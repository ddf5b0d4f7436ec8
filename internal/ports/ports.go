package ports

import (
	"context"

	"github.com/forPelevin/vidsum/internal/domain/jobs"
	"github.com/forPelevin/vidsum/internal/types"
)

// SourceResolver turns a local path or remote URL into a local media file.
// Downloads land in dir. downloaded reports whether a new file was created.
type SourceResolver interface {
	Resolve(ctx context.Context, source, dir string) (path string, downloaded bool, err error)
}

type MediaTool interface {
	// ExtractAudio writes a mono 16 kHz PCM wav into dir and returns its path.
	ExtractAudio(ctx context.Context, videoPath, dir string) (string, error)
	// CutClip cuts [start,end] seconds into outPath. reencode trades speed for frame accuracy.
	CutClip(ctx context.Context, videoPath string, start, end float64, outPath string, reencode bool) error
	// MergeClips concatenates clips into outPath, always re-encoding.
	MergeClips(ctx context.Context, clipPaths []string, outPath string) error
	// ProbeDuration returns the media length in seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) ([]types.Segment, error)
}

// Completion is one request to a text-generation provider. Zero MaxTokens or
// Temperature selects the provider default.
type Completion struct {
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
}

type LLM interface {
	Complete(ctx context.Context, req Completion) (string, error)
	// Stream delivers incremental text to onChunk. Returning an error from
	// onChunk stops the stream with that error.
	Stream(ctx context.Context, req Completion, onChunk func(string) error) error
}

// JobStore persists Job snapshots. Implementations must allow concurrent
// readers while one writer per Job saves.
type JobStore interface {
	Create(ctx context.Context, j jobs.Job) error
	Save(ctx context.Context, j jobs.Job) error
	Get(ctx context.Context, id string) (jobs.Job, error)
	List(ctx context.Context, limit int) ([]jobs.Job, error)
	// FindCompleted returns the newest completed Job of kind for sourceKey.
	FindCompleted(ctx context.Context, kind jobs.Kind, sourceKey string) (jobs.Job, error)
}

// Publisher fans Job snapshots out to external observers.
type Publisher interface {
	Publish(ctx context.Context, j jobs.Job) error
}
