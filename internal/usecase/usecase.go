package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/forPelevin/vidsum/internal/domain/highlights"
	"github.com/forPelevin/vidsum/internal/domain/subtitles"
	"github.com/forPelevin/vidsum/internal/llm"
	"github.com/forPelevin/vidsum/internal/ports"
	"github.com/forPelevin/vidsum/internal/types"
)

// ClipsMaxTokens leaves room for several clip descriptions in one reply.
const ClipsMaxTokens = 4000

var ErrEmptyTranscript = errors.New("no transcript provided or file is empty")

type Deps struct {
	Media ports.MediaTool
	ASR   ports.Transcriber
	LLM   ports.LLM
	Log   *slog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return Usecase{d: d}
}

// TranscriptText returns inline when set, otherwise the transcript at path.
// SRT files are reduced to their text lines.
func (u Usecase) TranscriptText(path, inline string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if path == "" {
		return "", ErrEmptyTranscript
	}
	var text string
	if strings.EqualFold(filepath.Ext(path), ".srt") {
		segs, err := subtitles.LoadSRT(path)
		if err != nil {
			return "", err
		}
		lines := make([]string, len(segs))
		for i, s := range segs {
			lines[i] = s.Text
		}
		text = strings.Join(lines, "\n")
	} else {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// TranscriptSRT loads an SRT transcript and re-renders it so the model sees
// normalized timings.
func (u Usecase) TranscriptSRT(path string) (string, error) {
	if path == "" {
		return "", errors.New("transcript path required")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("transcript not found: %s", path)
	}
	segs, err := subtitles.LoadSRT(path)
	if err != nil {
		return "", err
	}
	if len(segs) == 0 {
		return "", ErrEmptyTranscript
	}
	return subtitles.FormatSRT(segs), nil
}

func (u Usecase) Transcribe(ctx context.Context, audioPath, language string) ([]types.Segment, error) {
	return u.d.ASR.Transcribe(ctx, audioPath, language)
}

// PersistTranscript writes transcript.srt and transcript.txt into dir.
func (u Usecase) PersistTranscript(dir string, segs []types.Segment) (srtPath, txtPath string, err error) {
	srtPath = filepath.Join(dir, "transcript.srt")
	txtPath = filepath.Join(dir, "transcript.txt")
	if err := subtitles.SaveSRT(srtPath, segs); err != nil {
		return "", "", fmt.Errorf("save srt: %w", err)
	}
	if err := subtitles.SaveText(txtPath, segs); err != nil {
		return "", "", fmt.Errorf("save text: %w", err)
	}
	return srtPath, txtPath, nil
}

// Summarize asks the model for a summary of text. language labels the
// result when the transcript language is kept.
func (u Usecase) Summarize(ctx context.Context, text, outputLanguage, language, model string) (types.Summary, error) {
	system, user := SummarizePrompt(text, outputLanguage)
	m, err := llm.CompleteJSON(ctx, u.d.LLM, ports.Completion{Prompt: user, System: system, Model: model})
	if err != nil {
		return types.Summary{}, err
	}
	if outputLanguage == OutputEnglish {
		language = "en"
	}
	return types.SummaryFromMap(m, language), nil
}

// ExtractClipCandidates asks the model for clips over an SRT transcript and
// normalizes them. Dropped candidates are logged. ErrNoCandidates is
// returned when nothing survives.
func (u Usecase) ExtractClipCandidates(ctx context.Context, srt string, b highlights.Bounds, model string) (highlights.Outcome, error) {
	if err := b.Validate(); err != nil {
		return highlights.Outcome{}, err
	}
	system, user := ClipsPrompt(srt, b.Count)
	m, err := llm.CompleteJSON(ctx, u.d.LLM, ports.Completion{
		Prompt:    user,
		System:    system,
		Model:     model,
		MaxTokens: ClipsMaxTokens,
	})
	if err != nil {
		return highlights.Outcome{}, err
	}
	raw, _ := m["clips"].([]any)
	out := highlights.Normalize(raw, b)
	for _, d := range out.Dropped {
		u.d.Log.Warn("dropping clip candidate", "index", d.Index, "error", d.Err)
	}
	if len(out.Clips) == 0 {
		return out, highlights.ErrNoCandidates
	}
	return out, nil
}

// MediaLength probes the video length for clip normalization. A failed
// probe returns 0, which keeps the clips as proposed.
func (u Usecase) MediaLength(ctx context.Context, videoPath string) float64 {
	length, err := u.d.Media.ProbeDuration(ctx, videoPath)
	if err != nil {
		u.d.Log.Warn("probe duration failed, cutting clips as proposed", "video", videoPath, "error", err)
		return 0
	}
	return length
}

func (u Usecase) SaveSummary(path string, s types.Summary) error {
	return writeJSON(path, s)
}

func LoadSummary(path string) (types.Summary, error) {
	var s types.Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

// FormatSummary renders a summary as text followed by numbered key points.
func FormatSummary(s types.Summary) string {
	var b strings.Builder
	b.WriteString(s.Text)
	b.WriteString("\n\n---\n\nKey Points:\n")
	for i, p := range s.KeyPoints {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	return b.String()
}

func (u Usecase) SaveClipsMetadata(path string, clips []types.Clip) error {
	if clips == nil {
		clips = []types.Clip{}
	}
	return writeJSON(path, types.ClipsMetadata{Clips: clips, TotalClips: len(clips)})
}

func LoadClipsMetadata(path string) ([]types.Clip, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Clips []map[string]any `json:"clips"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	out := make([]types.Clip, 0, len(doc.Clips))
	for i, m := range doc.Clips {
		c, err := types.ClipFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("clip %d: %w", i+1, err)
		}
		out = append(out, c)
	}
	return out, nil
}

type CutResult struct {
	Index int
	Clip  types.Clip
	Path  string
}

type Skipped struct {
	Index int
	Clip  types.Clip
	Err   error
}

// BatchOutcome reports every clip of a cut batch as either succeeded or
// skipped.
type BatchOutcome struct {
	Succeeded []CutResult
	Skipped   []Skipped
}

func (b BatchOutcome) Paths() []string {
	out := make([]string, len(b.Succeeded))
	for i, r := range b.Succeeded {
		out[i] = r.Path
	}
	return out
}

// CutClips cuts each clip into dir. A failed cut is logged and skipped. The
// error is non-nil only when ctx ends before the batch finishes.
func (u Usecase) CutClips(ctx context.Context, videoPath string, clips []types.Clip, dir string, reencode bool) (BatchOutcome, error) {
	var out BatchOutcome
	ext := filepath.Ext(videoPath)
	for i, c := range clips {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		p := filepath.Join(dir, ClipFileName(i+1, c.Title, ext))
		if err := u.d.Media.CutClip(ctx, videoPath, c.Start, c.End, p, reencode); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			u.d.Log.Warn("failed to extract clip", "clip", i+1, "title", c.Title, "error", err)
			out.Skipped = append(out.Skipped, Skipped{Index: i, Clip: c, Err: err})
			continue
		}
		out.Succeeded = append(out.Succeeded, CutResult{Index: i, Clip: c, Path: p})
	}
	return out, nil
}

func (u Usecase) MergeClips(ctx context.Context, paths []string, outPath string) error {
	return u.d.Media.MergeClips(ctx, paths, outPath)
}

// ClipFileName renders clip_<NN>_<title><ext>. The title keeps letters,
// digits and "._- "; everything else becomes "_". It is trimmed and capped at
// 50 runes.
func ClipFileName(index int, title, ext string) string {
	return fmt.Sprintf("clip_%02d_%s%s", index, safeTitle(title), ext)
}

func safeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._- ", r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	r := []rune(strings.TrimSpace(b.String()))
	if len(r) > 50 {
		r = r[:50]
	}
	return string(r)
}

// writeJSON writes v indented with non-ASCII text kept as is.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
