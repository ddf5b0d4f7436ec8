package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forPelevin/vidsum/internal/domain/highlights"
	"github.com/forPelevin/vidsum/internal/domain/jobs"
	"github.com/forPelevin/vidsum/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/vidsum/internal/types"
	"github.com/forPelevin/vidsum/internal/usecase"
)

const (
	summaryFile = "summary.json"
	clipsFile   = "clips.json"
	clipsDir    = "clips"
	mergedFile  = "merged_clips.mp4"
)

func (o *Orchestrator) transcribe(ctx context.Context, j *jobs.Job, req Request, dir string) (map[string]any, error) {
	if err := o.advance(ctx, j, StageDownload, "downloading"); err != nil {
		return nil, err
	}
	video, downloaded, err := o.cfg.Source.Resolve(ctx, req.Source, o.cfg.DownloadDir)
	if err != nil {
		return nil, wrap(StageDownload, err)
	}
	o.log.Info("source ready", "job_id", j.ID, "video", video, "downloaded", downloaded)
	o.record(ctx, j, jobs.ArtifactVideo, video, map[string]any{"video_path": video})

	if err := o.advance(ctx, j, StageAudio, "extracting audio"); err != nil {
		return nil, err
	}
	audio, err := o.cfg.Media.ExtractAudio(ctx, video, dir)
	if err != nil {
		return nil, wrap(StageAudio, err)
	}
	segs, err := func() ([]types.Segment, error) {
		defer os.Remove(audio)
		if err := o.advance(ctx, j, StageTranscription, "transcribing"); err != nil {
			return nil, err
		}
		s, err := o.uc.Transcribe(ctx, audio, language(req.Language, o.cfg.Language))
		return s, wrap(StageTranscription, err)
	}()
	if err != nil {
		return nil, err
	}

	if err := o.advance(ctx, j, StageTranscriptSave, "saving transcript"); err != nil {
		return nil, err
	}
	srtPath, txtPath, err := o.uc.PersistTranscript(dir, segs)
	if err != nil {
		return nil, wrap(StageTranscriptSave, err)
	}
	now := o.now()
	_ = j.AddArtifact(jobs.ArtifactTranscript, srtPath, now)
	_ = j.AddArtifact(jobs.ArtifactText, txtPath, now)

	return map[string]any{
		"message":         "Transcription successful",
		"video_path":      video,
		"transcript_path": srtPath,
		"text_path":       txtPath,
		"segments_count":  len(segs),
	}, nil
}

func (o *Orchestrator) summarize(ctx context.Context, j *jobs.Job, req Request, dir string) (map[string]any, error) {
	if err := o.advance(ctx, j, StageTranscriptLoad, "loading transcript"); err != nil {
		return nil, err
	}
	text, err := o.uc.TranscriptText(req.TranscriptPath, req.Text)
	if err != nil {
		return nil, wrap(StageTranscriptLoad, err)
	}

	if err := o.advance(ctx, j, StageSummarization, "summarizing"); err != nil {
		return nil, err
	}
	s, err := o.uc.Summarize(ctx, text, req.OutputLanguage, language(req.Language, o.cfg.Language), req.Model)
	if err != nil {
		return nil, wrap(StageSummarization, err)
	}
	path := filepath.Join(dir, summaryFile)
	if err := o.uc.SaveSummary(path, s); err != nil {
		return nil, wrap(StageSummarization, err)
	}
	_ = j.AddArtifact(jobs.ArtifactSummary, path, o.now())

	return map[string]any{
		"text":         s.Text,
		"key_points":   s.KeyPoints,
		"language":     s.Language,
		"summary_path": path,
	}, nil
}

func (o *Orchestrator) extractClips(ctx context.Context, j *jobs.Job, req Request, dir string) (map[string]any, error) {
	if err := o.advance(ctx, j, StageTranscriptLoad, "loading transcript"); err != nil {
		return nil, err
	}
	srt, err := o.uc.TranscriptSRT(req.TranscriptPath)
	if err != nil {
		return nil, wrap(StageTranscriptLoad, err)
	}

	if err := o.advance(ctx, j, StageDownload, "resolving video"); err != nil {
		return nil, err
	}
	video, _, err := o.cfg.Source.Resolve(ctx, req.Source, o.cfg.DownloadDir)
	if err != nil {
		return nil, wrap(StageDownload, err)
	}
	o.record(ctx, j, jobs.ArtifactVideo, video, nil)

	if err := o.advance(ctx, j, StageClipExtraction, "extracting clips"); err != nil {
		return nil, err
	}
	bounds := req.Bounds
	if bounds == (highlights.Bounds{}) {
		bounds = highlights.DefaultBounds()
	}
	bounds.MediaLength = o.uc.MediaLength(ctx, video)
	out, err := o.uc.ExtractClipCandidates(ctx, srt, bounds, req.Model)
	if err != nil {
		return nil, wrap(StageClipExtraction, err)
	}
	clips := out.Clips

	if err := o.advance(ctx, j, StageClipMetadata, "saving clip metadata"); err != nil {
		return nil, err
	}
	metaPath := filepath.Join(dir, clipsFile)
	if err := o.uc.SaveClipsMetadata(metaPath, clips); err != nil {
		return nil, wrap(StageClipMetadata, err)
	}
	o.record(ctx, j, jobs.ArtifactClipsMeta, metaPath, map[string]any{"clips_metadata": metaPath})

	if err := o.advance(ctx, j, StageClipCutting, "cutting clips"); err != nil {
		return nil, err
	}
	cutDir := filepath.Join(dir, clipsDir)
	batch, err := o.uc.CutClips(ctx, video, clips, cutDir, req.Reencode)
	if err != nil {
		return nil, wrap(StageClipCutting, err)
	}
	if len(batch.Succeeded) == 0 {
		return nil, wrap(StageClipCutting, fmt.Errorf("all %d clips failed: %w", len(batch.Skipped), errors.Join(skipErrs(batch.Skipped)...)))
	}
	o.record(ctx, j, jobs.ArtifactClipsDir, cutDir, map[string]any{"clips_dir": cutDir})

	result := map[string]any{
		"clips_metadata": metaPath,
		"clips_dir":      cutDir,
		"clips_count":    len(batch.Succeeded),
		"skipped_count":  len(batch.Skipped),
	}
	if req.Merge {
		if err := o.advance(ctx, j, StageMerge, "merging clips"); err != nil {
			return nil, err
		}
		merged := filepath.Join(dir, mergedFile)
		if err := o.uc.MergeClips(ctx, batch.Paths(), merged); err != nil {
			return nil, wrap(StageMerge, err)
		}
		_ = j.AddArtifact(jobs.ArtifactMerged, merged, o.now())
		result["merged_video"] = merged
	}
	return result, nil
}

func skipErrs(skipped []usecase.Skipped) []error {
	out := make([]error, len(skipped))
	for i, s := range skipped {
		out[i] = fmt.Errorf("clip %d: %w", s.Index+1, s.Err)
	}
	return out
}

func language(lang, fallback string) string {
	if lang != "" {
		return lang
	}
	if fallback != "" {
		return fallback
	}
	return whispercpp.DefaultLanguage
}
