//go:build integration

package itest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/forPelevin/vidsum/internal/config"
	"github.com/forPelevin/vidsum/internal/domain/highlights"
	"github.com/forPelevin/vidsum/internal/domain/jobs"
	"github.com/forPelevin/vidsum/internal/llm"
	"github.com/forPelevin/vidsum/internal/pipeline"
	"github.com/forPelevin/vidsum/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/vidsum/internal/ports/adapters/source"
	"github.com/forPelevin/vidsum/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/vidsum/internal/storage"
	"github.com/forPelevin/vidsum/internal/usecase"
)

func TestE2E(t *testing.T) {
	if os.Getenv("OPENROUTER_API_KEY") == "" {
		t.Fatalf("OPENROUTER_API_KEY is required for itest")
	}

	tmp := t.TempDir()
	in := filepath.Join(tmp, "input.mp4")

	// Generate speech audio via espeak-ng.
	wav := filepath.Join(tmp, "speech.wav")
	text := "Here is the key idea. Step one: do this. Step two: measure results. This is important."
	cmd := exec.Command("espeak-ng", "-w", wav, text)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("espeak-ng failed: %v\n%s", err, string(b))
	}

	// Build a simple mp4 with audio.
	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:d=15",
		"-i", wav,
		"-shortest",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		in,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}

	outDir := filepath.Join(tmp, "out")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	cfg := config.Defaults()
	cfg.OutputDir = outDir
	cfg.LLM.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	if m := os.Getenv("OPENROUTER_MODEL"); m != "" {
		cfg.LLM.OpenRouterModel = m
	}
	l, err := llm.New(ctx, cfg.LLMSettings("", ""), nil)
	if err != nil {
		t.Fatalf("llm: %v", err)
	}

	orch, err := pipeline.New(pipeline.Config{
		OutDir:   outDir,
		Language: "en",
		Source:   source.New(),
		Media:    ffmpeg.New("ffmpeg", "ffprobe"),
		ASR:      whispercpp.New(getenvDefault("WHISPER_BIN", ".cache/bin/whisper.cpp"), getenvDefault("WHISPER_MODEL", ".cache/models/ggml-base.bin"), 0, "en"),
		LLM:      l,
		Store:    storage.NewMemory(),
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	defer orch.Shutdown(context.Background())

	tj, err := orch.Run(ctx, pipeline.Request{Kind: jobs.KindTranscribe, Source: in})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	srt := tj.Artifacts[jobs.ArtifactTranscript]
	if _, err := os.Stat(srt); err != nil {
		t.Fatalf("missing transcript: %v", err)
	}

	sj, err := orch.Run(ctx, pipeline.Request{Kind: jobs.KindSummarize, TranscriptPath: srt, OutputLanguage: usecase.OutputEnglish})
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if _, err := usecase.LoadSummary(sj.Artifacts[jobs.ArtifactSummary]); err != nil {
		t.Fatalf("summary: %v", err)
	}

	cj, err := orch.Run(ctx, pipeline.Request{
		Kind:           jobs.KindExtractClips,
		Source:         in,
		TranscriptPath: srt,
		Bounds:         highlights.Bounds{Count: 2, MinDuration: 2, MaxDuration: 60},
		Merge:          true,
	})
	if err != nil {
		t.Fatalf("extract clips failed: %v", err)
	}
	clips, err := usecase.LoadClipsMetadata(cj.Artifacts[jobs.ArtifactClipsMeta])
	if err != nil {
		t.Fatalf("clips metadata: %v", err)
	}
	if len(clips) == 0 {
		t.Fatal("expected at least one clip")
	}
	for _, c := range clips {
		if c.End-c.Start < 2 || c.End-c.Start > 60 {
			t.Fatalf("clip outside bounds: %+v", c)
		}
	}
	merged := cj.Artifacts[jobs.ArtifactMerged]
	sec, err := ffmpeg.New("", "").ProbeDuration(ctx, merged)
	if err != nil {
		t.Fatalf("merged duration: %v", err)
	}
	if sec <= 0 || sec > 16 {
		t.Fatalf("merged duration %.2fs out of range", sec)
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
