package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forPelevin/vidsum/internal/domain/highlights"
	"github.com/forPelevin/vidsum/internal/domain/jobs"
	"github.com/forPelevin/vidsum/internal/domain/subtitles"
	"github.com/forPelevin/vidsum/internal/ports"
	"github.com/forPelevin/vidsum/internal/storage"
	"github.com/forPelevin/vidsum/internal/types"
	"github.com/forPelevin/vidsum/internal/usecase"
)

type fakeSource struct {
	path string
	err  error
}

func (f fakeSource) Resolve(_ context.Context, src, _ string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if f.path != "" {
		return f.path, false, nil
	}
	return src, false, nil
}

type fakeMedia struct {
	mu       sync.Mutex
	audio    string
	failCut  map[int]bool
	cuts     int
	merged   []string
	mergeErr error
	// duration is reported by ProbeDuration. Zero simulates a failed probe.
	duration float64
}

func (f *fakeMedia) ExtractAudio(_ context.Context, _, dir string) (string, error) {
	p := filepath.Join(dir, "audio-test.wav")
	if err := os.WriteFile(p, []byte("RIFF"), 0o644); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.audio = p
	f.mu.Unlock()
	return p, nil
}

func (f *fakeMedia) CutClip(_ context.Context, _ string, _, _ float64, _ string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cuts++
	if f.failCut[f.cuts] {
		return ports.Wrap(ports.ErrMedia, errors.New("ffmpeg exited 1"))
	}
	return nil
}

func (f *fakeMedia) MergeClips(_ context.Context, paths []string, _ string) error {
	f.merged = paths
	return f.mergeErr
}

func (f *fakeMedia) ProbeDuration(_ context.Context, _ string) (float64, error) {
	if f.duration == 0 {
		return 0, errors.New("ffprobe unavailable")
	}
	return f.duration, nil
}

type fakeASR struct {
	segs []types.Segment
	err  error
}

func (f fakeASR) Transcribe(_ context.Context, _, _ string) ([]types.Segment, error) {
	return f.segs, f.err
}

type fakeLLM struct {
	reply func(req ports.Completion) (string, error)
}

func (f fakeLLM) Complete(_ context.Context, req ports.Completion) (string, error) {
	return f.reply(req)
}

func (f fakeLLM) Stream(context.Context, ports.Completion, func(string) error) error {
	return errors.New("not used")
}

func staticLLM(reply string) fakeLLM {
	return fakeLLM{reply: func(ports.Completion) (string, error) { return reply, nil }}
}

type recordingPublisher struct {
	mu    sync.Mutex
	steps []string
}

func (p *recordingPublisher) Publish(_ context.Context, j jobs.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if j.Step != "" && (len(p.steps) == 0 || p.steps[len(p.steps)-1] != j.Step) {
		p.steps = append(p.steps, j.Step)
	}
	return nil
}

func testSegments() []types.Segment {
	return []types.Segment{{Start: 0, End: 5.5, Text: "hello"}, {Start: 5.5, End: 12.3, Text: "world"}}
}

func newTestOrchestrator(t *testing.T, mut func(*Config)) (*Orchestrator, Config) {
	t.Helper()
	cfg := Config{
		OutDir: t.TempDir(),
		Source: fakeSource{},
		Media:  &fakeMedia{},
		ASR:    fakeASR{segs: testSegments()},
		LLM:    staticLLM(`{"summary": "s", "key_points": ["k"]}`),
		Store:  storage.NewMemory(),
	}
	if mut != nil {
		mut(&cfg)
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })
	return o, cfg
}

func writeTranscript(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "transcript.srt")
	if err := subtitles.SaveSRT(p, testSegments()); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTranscribe_Completes(t *testing.T) {
	pub := &recordingPublisher{}
	media := &fakeMedia{}
	o, cfg := newTestOrchestrator(t, func(c *Config) {
		c.Publisher = pub
		c.Media = media
	})

	j, err := o.Run(context.Background(), Request{Kind: jobs.KindTranscribe, Source: "/videos/talk.mp4"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s, want completed", j.Status)
	}
	if j.Result["segments_count"] != 2 || j.Result["video_path"] != "/videos/talk.mp4" {
		t.Fatalf("unexpected result %v", j.Result)
	}
	srt := j.Artifacts[jobs.ArtifactTranscript]
	if filepath.Dir(srt) != filepath.Join(cfg.OutDir, j.ID) {
		t.Fatalf("transcript not in job dir: %s", srt)
	}
	segs, err := subtitles.LoadSRT(srt)
	if err != nil || len(segs) != 2 {
		t.Fatalf("load transcript: %v %v", segs, err)
	}
	if _, err := os.Stat(media.audio); !os.IsNotExist(err) {
		t.Fatalf("audio file should be removed, stat err=%v", err)
	}

	want := []string{"downloading", "extracting audio", "transcribing", "saving transcript"}
	if strings.Join(pub.steps, ",") != strings.Join(want, ",") {
		t.Fatalf("steps = %v, want %v", pub.steps, want)
	}
	stored, err := cfg.Store.Get(context.Background(), j.ID)
	if err != nil || stored.Status != jobs.StatusCompleted {
		t.Fatalf("stored job = %+v, %v", stored, err)
	}
}

func TestTranscribe_FailureNamesStageAndCleansAudio(t *testing.T) {
	media := &fakeMedia{}
	o, _ := newTestOrchestrator(t, func(c *Config) {
		c.Media = media
		c.ASR = fakeASR{err: ports.Wrap(ports.ErrTranscription, errors.New("model load failed"))}
	})

	j, err := o.Run(context.Background(), Request{Kind: jobs.KindTranscribe, Source: "in.mp4"})
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageTranscription {
		t.Fatalf("err = %v, want transcription StageError", err)
	}
	if !errors.Is(err, ports.ErrTranscription) {
		t.Fatalf("kind lost: %v", err)
	}
	if j.Status != jobs.StatusFailed || j.Error != "Transcription failed: model load failed" {
		t.Fatalf("job = %s %q", j.Status, j.Error)
	}
	if j.Result["video_path"] != "in.mp4" {
		t.Fatalf("partial result lost: %v", j.Result)
	}
	if _, err := os.Stat(media.audio); !os.IsNotExist(err) {
		t.Fatalf("audio file should be removed on failure, stat err=%v", err)
	}
}

func TestTranscribe_SourceFailure(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(c *Config) {
		c.Source = fakeSource{err: ports.Wrap(ports.ErrSource, errors.New("file not found: x.mp4"))}
	})
	j, _ := o.Run(context.Background(), Request{Kind: jobs.KindTranscribe, Source: "x.mp4"})
	if j.Error != "Download failed: file not found: x.mp4" {
		t.Fatalf("error = %q", j.Error)
	}
}

func TestSummarize(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	j, err := o.Run(context.Background(), Request{Kind: jobs.KindSummarize, TranscriptPath: writeTranscript(t), OutputLanguage: "english"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.Result["text"] != "s" || j.Result["language"] != "en" {
		t.Fatalf("unexpected result %v", j.Result)
	}
	if _, err := os.Stat(j.Artifacts[jobs.ArtifactSummary]); err != nil {
		t.Fatalf("summary file: %v", err)
	}
}

func TestSummarize_MalformedReplyFailsJob(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(c *Config) { c.LLM = staticLLM("no json here") })

	j, _ := o.Run(context.Background(), Request{Kind: jobs.KindSummarize, Text: "some transcript"})
	if j.Status != jobs.StatusFailed || !strings.HasPrefix(j.Error, "Summarization failed: ") {
		t.Fatalf("job = %s %q", j.Status, j.Error)
	}
}

const fiveClips = `{"clips": [
	{"start": 0, "end": 15, "title": "one", "importance": 9},
	{"start": 20, "end": 35, "title": "two", "importance": 8},
	{"start": 40, "end": 55, "title": "three", "importance": 7},
	{"start": 60, "end": 75, "title": "four", "importance": 6},
	{"start": 80, "end": 95, "title": "five", "importance": 5}
]}`

func TestExtractClips_OneCutFailureStillCompletes(t *testing.T) {
	media := &fakeMedia{failCut: map[int]bool{2: true}}
	o, _ := newTestOrchestrator(t, func(c *Config) {
		c.Media = media
		c.LLM = staticLLM(fiveClips)
	})

	j, err := o.Run(context.Background(), Request{
		Kind:           jobs.KindExtractClips,
		Source:         "in.mp4",
		TranscriptPath: writeTranscript(t),
		Bounds:         highlights.DefaultBounds(),
		Merge:          true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s (%s)", j.Status, j.Error)
	}
	if j.Result["clips_count"] != 4 || j.Result["skipped_count"] != 1 {
		t.Fatalf("unexpected result %v", j.Result)
	}
	if len(media.merged) != 4 {
		t.Fatalf("merged %d clips, want 4", len(media.merged))
	}
	if j.Result["merged_video"] == nil || j.Artifacts[jobs.ArtifactClipsMeta] == "" {
		t.Fatalf("missing artifacts: %v %v", j.Result, j.Artifacts)
	}
}

func TestExtractClips_PastMediaEndIsReplacedByNextCandidate(t *testing.T) {
	media := &fakeMedia{duration: 70}
	o, _ := newTestOrchestrator(t, func(c *Config) {
		c.Media = media
		c.LLM = staticLLM(`{"clips": [
			{"start": 100, "end": 115, "title": "late", "importance": 10},
			{"start": 0, "end": 15, "title": "one", "importance": 9},
			{"start": 60, "end": 80, "title": "edge", "importance": 8},
			{"start": 20, "end": 35, "title": "two", "importance": 2}
		]}`)
	})

	j, err := o.Run(context.Background(), Request{
		Kind:           jobs.KindExtractClips,
		Source:         "in.mp4",
		TranscriptPath: writeTranscript(t),
		Bounds:         highlights.Bounds{Count: 3, MinDuration: 10, MaxDuration: 120},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.Result["clips_count"] != 3 {
		t.Fatalf("clips_count = %v, want 3", j.Result["clips_count"])
	}
	clips, err := usecase.LoadClipsMetadata(j.Artifacts[jobs.ArtifactClipsMeta])
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 3 || clips[0].Title != "one" || clips[1].Title != "edge" || clips[2].Title != "two" {
		t.Fatalf("unexpected clips %+v", clips)
	}
	if clips[1].End != 70 {
		t.Fatalf("edge End = %v, want 70", clips[1].End)
	}
}

func TestExtractClips_AllCutsFailKeepsMetadata(t *testing.T) {
	media := &fakeMedia{failCut: map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true}}
	o, _ := newTestOrchestrator(t, func(c *Config) {
		c.Media = media
		c.LLM = staticLLM(fiveClips)
	})

	j, _ := o.Run(context.Background(), Request{Kind: jobs.KindExtractClips, Source: "in.mp4", TranscriptPath: writeTranscript(t)})
	if j.Status != jobs.StatusFailed || !strings.HasPrefix(j.Error, "Clip cutting failed: all 5 clips failed") {
		t.Fatalf("job = %s %q", j.Status, j.Error)
	}
	if j.Result["clips_metadata"] == nil {
		t.Fatalf("partial result lost: %v", j.Result)
	}
}

func TestPanicIsContained(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(c *Config) {
		c.LLM = fakeLLM{reply: func(req ports.Completion) (string, error) {
			if strings.Contains(req.Prompt, "boom") {
				panic("boom")
			}
			return `{"summary": "fine", "key_points": []}`, nil
		}}
	})
	ctx := context.Background()

	bad, err := o.Submit(ctx, Request{Kind: jobs.KindSummarize, Text: "boom"})
	if err != nil {
		t.Fatal(err)
	}
	good, err := o.Submit(ctx, Request{Kind: jobs.KindSummarize, Text: "calm"})
	if err != nil {
		t.Fatal(err)
	}

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	b, err := o.Wait(wctx, bad.ID)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != jobs.StatusFailed || b.Error != "Internal failed: panic: boom" {
		t.Fatalf("bad job = %s %q", b.Status, b.Error)
	}
	g, err := o.Wait(wctx, good.ID)
	if err != nil {
		t.Fatal(err)
	}
	if g.Status != jobs.StatusCompleted {
		t.Fatalf("good job = %s %q", g.Status, g.Error)
	}
}

func TestSubmit_ReturnsPendingJob(t *testing.T) {
	o, cfg := newTestOrchestrator(t, nil)

	j, err := o.Submit(context.Background(), Request{Kind: jobs.KindTranscribe, Source: "in.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != jobs.StatusPending || j.ID == "" || j.SourceKey != "file:in.mp4" {
		t.Fatalf("unexpected submitted job %+v", j)
	}
	done, err := o.Wait(context.Background(), j.ID)
	if err != nil || done.Status != jobs.StatusCompleted {
		t.Fatalf("waited job = %+v, %v", done, err)
	}
	listed, err := cfg.Store.List(context.Background(), 0)
	if err != nil || len(listed) != 1 {
		t.Fatalf("list = %v, %v", listed, err)
	}
}

func TestSubmit_MissingCollaborator(t *testing.T) {
	o, cfg := newTestOrchestrator(t, func(c *Config) {
		c.LLM = nil
		c.ASR = nil
	})
	ctx := context.Background()

	if _, err := o.Submit(ctx, Request{Kind: jobs.KindSummarize, Text: "t"}); !errors.Is(err, ports.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if _, err := o.Submit(ctx, Request{Kind: jobs.KindTranscribe, Source: "in.mp4"}); !errors.Is(err, ports.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if listed, _ := cfg.Store.List(ctx, 0); len(listed) != 0 {
		t.Fatalf("no job should be created, got %d", len(listed))
	}
}

func TestSubmit_InvalidRequest(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	cases := []Request{
		{Kind: jobs.KindTranscribe},
		{Kind: jobs.KindSummarize},
		{Kind: jobs.KindExtractClips, Source: "in.mp4"},
		{Kind: jobs.KindExtractClips, Source: "in.mp4", TranscriptPath: "t.srt", Bounds: highlights.Bounds{Count: 1, MinDuration: 30, MaxDuration: 10}},
		{Kind: "bogus"},
	}
	for _, req := range cases {
		if _, err := o.Submit(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("err = %v for %+v, want ErrInvalidRequest", err, req)
		}
	}
}

func TestCached(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	if _, ok, err := o.Cached(ctx, jobs.KindTranscribe, "/a/talk.mp4"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	j, err := o.Run(ctx, Request{Kind: jobs.KindTranscribe, Source: "/a/talk.mp4"})
	if err != nil {
		t.Fatal(err)
	}

	hit, ok, err := o.Cached(ctx, jobs.KindTranscribe, "/b/talk.mp4")
	if err != nil || !ok || hit.ID != j.ID {
		t.Fatalf("expected hit on same file name, got %v %v %v", hit.ID, ok, err)
	}

	if err := os.Remove(j.Artifacts[jobs.ArtifactTranscript]); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := o.Cached(ctx, jobs.KindTranscribe, "/a/talk.mp4"); ok {
		t.Fatal("expected miss once transcript is gone")
	}
}

func TestRun_CancelledAtStageBoundary(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j, err := o.Run(ctx, Request{Kind: jobs.KindTranscribe, Source: "in.mp4"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if j.Status != jobs.StatusFailed || j.Error != "Download failed: context canceled" {
		t.Fatalf("job = %s %q", j.Status, j.Error)
	}
}

func TestConfigValidate(t *testing.T) {
	ok := Config{OutDir: "out", Source: fakeSource{}, Media: &fakeMedia{}, Store: storage.NewMemory()}
	if err := ok.Validate(); err != nil {
		t.Fatal(err)
	}
	for name, mut := range map[string]func(*Config){
		"out dir": func(c *Config) { c.OutDir = "" },
		"source":  func(c *Config) { c.Source = nil },
		"media":   func(c *Config) { c.Media = nil },
		"store":   func(c *Config) { c.Store = nil },
	} {
		c := ok
		mut(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
