package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/forPelevin/vidsum/internal/ports"
	"github.com/forPelevin/vidsum/internal/types"
)

// DefaultLanguage is used when the caller passes an unsupported language code.
const DefaultLanguage = "ar"

var supportedLanguages = map[string]bool{
	"auto": true,
	"ar":   true, "en": true, "fr": true, "de": true, "es": true, "it": true,
	"pt": true, "ru": true, "tr": true, "ur": true, "fa": true, "zh": true,
	"ja": true, "ko": true, "hi": true,
}

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Adapter struct {
	bin      string
	model    string
	threads  int
	fallback string
	run      runner
}

func New(binPath, modelPath string, threads int, defaultLanguage string) *Adapter {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	if !supportedLanguages[defaultLanguage] {
		defaultLanguage = DefaultLanguage
	}
	return &Adapter{bin: binPath, model: modelPath, threads: threads, fallback: defaultLanguage, run: execRunner}
}

// Language maps lang onto a code whisper.cpp accepts.
func (a *Adapter) Language(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if supportedLanguages[lang] {
		return lang
	}
	return a.fallback
}

// whisperOutput is the subset of whisper.cpp -oj output we read.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (a *Adapter) Transcribe(ctx context.Context, audioPath, language string) ([]types.Segment, error) {
	if a.model == "" {
		return nil, ports.Wrap(ports.ErrNotConfigured, fmt.Errorf("whisper.cpp model path is not set"))
	}
	outPrefix := strings.TrimSuffix(audioPath, ".wav") + "-whisper"
	defer os.Remove(outPrefix + ".json")

	args := []string{
		"-m", a.model,
		"-f", audioPath,
		"-l", a.Language(language),
		"-oj",
		"-of", outPrefix,
	}
	if a.threads > 0 {
		args = append(args, "-t", strconv.Itoa(a.threads))
	}
	b, err := a.run(ctx, a.bin, args...)
	if err != nil {
		return nil, ports.Wrap(ports.ErrTranscription, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b)))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, ports.Wrap(ports.ErrTranscription, err)
	}
	return parseOutput(jb)
}

func parseOutput(b []byte) ([]types.Segment, error) {
	var out whisperOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, ports.Wrap(ports.ErrTranscription, fmt.Errorf("decode whisper.cpp json: %w", err))
	}
	segs := make([]types.Segment, 0, len(out.Transcription))
	for _, t := range out.Transcription {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		segs = append(segs, types.Segment{
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
			Text:  text,
		})
	}
	return segs, nil
}
