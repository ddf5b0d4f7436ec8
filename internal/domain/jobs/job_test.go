package jobs

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	j := New(KindTranscribe, "/tmp/in.mp4", "in.mp4", t0)
	if j.ID == "" {
		t.Fatal("expected id")
	}
	if j.Status != StatusPending {
		t.Fatalf("Status = %q, want %q", j.Status, StatusPending)
	}
	if !j.CreatedAt.Equal(t0) || !j.UpdatedAt.Equal(t0) {
		t.Fatalf("timestamps = %v/%v, want %v", j.CreatedAt, j.UpdatedAt, t0)
	}
	if other := New(KindTranscribe, "", "", t0); other.ID == j.ID {
		t.Fatal("expected distinct ids")
	}
}

func TestLifecycle(t *testing.T) {
	j := New(KindExtractClips, "", "", t0)

	if err := j.Advance("loading transcript", t0.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if j.Status != StatusProcessing || j.Step != "loading transcript" {
		t.Fatalf("after advance: %q/%q", j.Status, j.Step)
	}
	if err := j.Advance("cutting clips", t0.Add(2*time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := j.Record(map[string]any{"clips_metadata": "a.json", "clips_count": 0}, t0.Add(3*time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := j.Complete(map[string]any{"clips_count": 4}, t0.Add(4*time.Second)); err != nil {
		t.Fatal(err)
	}
	if j.Status != StatusCompleted {
		t.Fatalf("Status = %q", j.Status)
	}
	if j.Result["clips_metadata"] != "a.json" {
		t.Fatalf("partial result lost: %v", j.Result)
	}
	if j.Result["clips_count"] != 4 {
		t.Fatalf("clips_count = %v, want 4", j.Result["clips_count"])
	}
	if !j.UpdatedAt.Equal(t0.Add(4 * time.Second)) {
		t.Fatalf("UpdatedAt = %v", j.UpdatedAt)
	}
}

func TestTerminalJobRejectsMutation(t *testing.T) {
	tests := []struct {
		name   string
		finish func(j *Job) error
		want   Status
	}{
		{"completed", func(j *Job) error { return j.Complete(map[string]any{"ok": true}, t0) }, StatusCompleted},
		{"failed", func(j *Job) error { return j.Fail("Transcription failed: boom", t0) }, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := New(KindTranscribe, "", "", t0)
			if err := tt.finish(j); err != nil {
				t.Fatal(err)
			}
			before := j.Clone()

			later := t0.Add(time.Minute)
			for name, err := range map[string]error{
				"advance":  j.Advance("again", later),
				"record":   j.Record(map[string]any{"x": 1}, later),
				"artifact": j.AddArtifact("video", "v.mp4", later),
				"complete": j.Complete(map[string]any{"y": 2}, later),
				"fail":     j.Fail("late", later),
			} {
				if !errors.Is(err, ErrTerminal) {
					t.Fatalf("%s: err = %v, want ErrTerminal", name, err)
				}
			}
			if j.Status != tt.want {
				t.Fatalf("Status = %q, want %q", j.Status, tt.want)
			}
			if j.Error != before.Error || j.Step != before.Step || !j.UpdatedAt.Equal(before.UpdatedAt) {
				t.Fatalf("terminal job changed: %+v -> %+v", before, *j)
			}
			if len(j.Result) != len(before.Result) || len(j.Artifacts) != 0 {
				t.Fatalf("terminal job result changed: %v %v", j.Result, j.Artifacts)
			}
		})
	}
}

func TestFailKeepsPartialResult(t *testing.T) {
	j := New(KindExtractClips, "", "", t0)
	_ = j.Advance("saving metadata", t0)
	_ = j.Record(map[string]any{"clips_metadata": "clips.json"}, t0)
	if err := j.Fail("Merge failed: disk full", t0); err != nil {
		t.Fatal(err)
	}
	if j.Result["clips_metadata"] != "clips.json" {
		t.Fatalf("expected partial result to survive failure, got %v", j.Result)
	}
}

func TestUpdatedAtNeverRegresses(t *testing.T) {
	j := New(KindSummarize, "", "", t0)
	_ = j.Advance("a", t0.Add(time.Hour))
	_ = j.Advance("b", t0)
	if !j.UpdatedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("UpdatedAt regressed to %v", j.UpdatedAt)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	j := New(KindTranscribe, "", "", t0)
	_ = j.Record(map[string]any{"a": 1}, t0)
	_ = j.AddArtifact(ArtifactVideo, "v.mp4", t0)

	c := j.Clone()
	c.Result["a"] = 2
	c.Artifacts[ArtifactVideo] = "other.mp4"
	if j.Result["a"] != 1 || j.Artifacts[ArtifactVideo] != "v.mp4" {
		t.Fatalf("clone shares maps with original: %v %v", j.Result, j.Artifacts)
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"transcribe", "summarize", "extract_clips"} {
		if _, err := ParseKind(s); err != nil {
			t.Fatalf("ParseKind(%q): %v", s, err)
		}
	}
	if _, err := ParseKind("process"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
