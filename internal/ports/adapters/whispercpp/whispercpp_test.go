package whispercpp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/forPelevin/vidsum/internal/ports"
)

const sampleJSON = `{
  "systeminfo": "AVX = 1",
  "transcription": [
    {"timestamps": {"from": "00:00:00,000", "to": "00:00:02,500"}, "offsets": {"from": 0, "to": 2500}, "text": " Hello world"},
    {"offsets": {"from": 2500, "to": 3000}, "text": "   "},
    {"offsets": {"from": 3000, "to": 5250}, "text": " Second line "}
  ]
}`

func TestTranscribe_ParsesOffsets(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "audio-1.wav")

	var gotArgs []string
	a := New("whisper-cli", "model.bin", 4, "en")
	a.run = func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		for i, arg := range args {
			if arg == "-of" {
				return nil, os.WriteFile(args[i+1]+".json", []byte(sampleJSON), 0o644)
			}
		}
		return nil, errors.New("no -of")
	}

	segs, err := a.Transcribe(context.Background(), wav, "xx")
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments (blank dropped), got %d: %+v", len(segs), segs)
	}
	if segs[0].Start != 0 || segs[0].End != 2.5 || segs[0].Text != "Hello world" {
		t.Fatalf("segment 0 = %+v", segs[0])
	}
	if segs[1].Start != 3 || segs[1].End != 5.25 || segs[1].Text != "Second line" {
		t.Fatalf("segment 1 = %+v", segs[1])
	}

	var lang string
	for i, arg := range gotArgs {
		if arg == "-l" {
			lang = gotArgs[i+1]
		}
	}
	if lang != "en" {
		t.Fatalf("unsupported language should fall back to default, got %q", lang)
	}
	if _, err := os.Stat(filepath.Join(dir, "audio-1-whisper.json")); !os.IsNotExist(err) {
		t.Fatalf("whisper json should be removed, stat err = %v", err)
	}
}

func TestTranscribe_Failure(t *testing.T) {
	a := New("", "model.bin", 0, "")
	a.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("failed to open model"), errors.New("exit status 2")
	}
	_, err := a.Transcribe(context.Background(), filepath.Join(t.TempDir(), "a.wav"), "ar")
	if !errors.Is(err, ports.ErrTranscription) {
		t.Fatalf("err = %v, want ErrTranscription", err)
	}
}

func TestTranscribe_NoModel(t *testing.T) {
	a := New("", "", 0, "")
	_, err := a.Transcribe(context.Background(), "a.wav", "ar")
	if !errors.Is(err, ports.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestLanguage(t *testing.T) {
	a := New("", "m", 0, "")
	tests := map[string]string{
		"ar":   "ar",
		" EN ": "en",
		"auto": "auto",
		"xx":   DefaultLanguage,
		"":     DefaultLanguage,
	}
	for in, want := range tests {
		if got := a.Language(in); got != want {
			t.Errorf("Language(%q) = %q, want %q", in, got, want)
		}
	}
}
