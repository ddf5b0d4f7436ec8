package highlights

import (
	"testing"

	"github.com/forPelevin/vidsum/internal/types"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		wantEnd    float64
	}{
		{"too short extended", 10, 12, 20},
		{"too long truncated", 0, 300, 120},
		{"within bounds", 5, 65, 65},
		{"exactly min", 0, 10, 10},
		{"exactly max", 0, 120, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(types.Clip{Start: tt.start, End: tt.end}, 10, 120)
			if got.Start != tt.start {
				t.Fatalf("Start = %v, want %v", got.Start, tt.start)
			}
			if got.End != tt.wantEnd {
				t.Fatalf("End = %v, want %v", got.End, tt.wantEnd)
			}
		})
	}
}

func TestNormalize_RankAndSelectIsStable(t *testing.T) {
	raw := []any{
		map[string]any{"start": 0.0, "end": 20.0, "title": "a", "importance": 3.0},
		map[string]any{"start": 30.0, "end": 50.0, "title": "b", "importance": 9.0},
		map[string]any{"start": 60.0, "end": 80.0, "title": "c", "importance": 9.0},
		map[string]any{"start": 90.0, "end": 110.0, "title": "d", "importance": 1.0},
	}
	out := Normalize(raw, Bounds{Count: 2, MinDuration: 10, MaxDuration: 120})
	if len(out.Clips) != 2 {
		t.Fatalf("len(Clips) = %d, want 2", len(out.Clips))
	}
	if out.Clips[0].Title != "b" || out.Clips[1].Title != "c" {
		t.Fatalf("selected %q, %q; want b, c", out.Clips[0].Title, out.Clips[1].Title)
	}
	if len(out.Dropped) != 0 {
		t.Fatalf("unexpected drops: %v", out.Dropped)
	}
}

func TestNormalize_DropsInvalidAndNeverPads(t *testing.T) {
	raw := []any{
		map[string]any{"end": 5.0, "title": "no start"},
		"not an object",
		map[string]any{"start": 10.0, "end": 12.0, "title": "short"},
		map[string]any{"start": 0.0, "end": 300.0, "title": "long"},
	}
	out := Normalize(raw, Bounds{Count: 5, MinDuration: 10, MaxDuration: 120})
	if len(out.Clips) != 2 {
		t.Fatalf("len(Clips) = %d, want 2", len(out.Clips))
	}
	if len(out.Dropped) != 2 {
		t.Fatalf("len(Dropped) = %d, want 2", len(out.Dropped))
	}
	if out.Dropped[0].Index != 0 || out.Dropped[1].Index != 1 {
		t.Fatalf("dropped indexes = %d, %d", out.Dropped[0].Index, out.Dropped[1].Index)
	}

	byTitle := map[string]types.Clip{}
	for _, c := range out.Clips {
		byTitle[c.Title] = c
	}
	if c := byTitle["short"]; c.Start != 10 || c.End != 20 {
		t.Fatalf("short clip = %+v, want 10..20", c)
	}
	if c := byTitle["long"]; c.Start != 0 || c.End != 120 {
		t.Fatalf("long clip = %+v, want 0..120", c)
	}
}

func TestNormalize_ExtendsZeroAndNegativeDurations(t *testing.T) {
	raw := []any{
		map[string]any{"start": 10.0, "end": 10.0, "title": "zero"},
		map[string]any{"start": 30.0, "end": 25.0, "title": "negative"},
	}
	out := Normalize(raw, Bounds{Count: 5, MinDuration: 10, MaxDuration: 120})
	if len(out.Dropped) != 0 {
		t.Fatalf("unexpected drops: %v", out.Dropped)
	}
	if len(out.Clips) != 2 {
		t.Fatalf("len(Clips) = %d, want 2", len(out.Clips))
	}
	if c := out.Clips[0]; c.Start != 10 || c.End != 20 {
		t.Fatalf("zero clip = %+v, want 10..20", c)
	}
	if c := out.Clips[1]; c.Start != 30 || c.End != 40 {
		t.Fatalf("negative clip = %+v, want 30..40", c)
	}
}

func TestNormalize_FitsMediaBeforeSelecting(t *testing.T) {
	raw := []any{
		map[string]any{"start": 0.0, "end": 20.0, "title": "in", "importance": 9.0},
		map[string]any{"start": 90.0, "end": 100.0, "title": "past", "importance": 8.0},
		map[string]any{"start": 50.0, "end": 70.0, "title": "tail", "importance": 7.0},
		map[string]any{"start": 20.0, "end": 40.0, "title": "backup", "importance": 2.0},
	}
	out := Normalize(raw, Bounds{Count: 3, MinDuration: 10, MaxDuration: 120, MediaLength: 60})
	if len(out.Clips) != 3 {
		t.Fatalf("len(Clips) = %d, want 3", len(out.Clips))
	}
	want := []string{"in", "tail", "backup"}
	for i, c := range out.Clips {
		if c.Title != want[i] {
			t.Fatalf("clip %d = %q, want %q", i, c.Title, want[i])
		}
	}
	if out.Clips[1].End != 60 {
		t.Fatalf("tail End = %v, want 60", out.Clips[1].End)
	}
	if len(out.Dropped) != 1 || out.Dropped[0].Index != 1 {
		t.Fatalf("dropped = %v, want candidate 1", out.Dropped)
	}

	unknown := Normalize(raw, Bounds{Count: 4, MinDuration: 10, MaxDuration: 120})
	if len(unknown.Clips) != 4 {
		t.Fatalf("unknown length should keep everything, got %d", len(unknown.Clips))
	}
}

func TestBoundsValidate(t *testing.T) {
	tests := []struct {
		name    string
		b       Bounds
		wantErr bool
	}{
		{"defaults", DefaultBounds(), false},
		{"zero count", Bounds{Count: 0, MinDuration: 1, MaxDuration: 2}, true},
		{"min above max", Bounds{Count: 1, MinDuration: 30, MaxDuration: 20}, true},
		{"zero min", Bounds{Count: 1, MinDuration: 0, MaxDuration: 20}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.b.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
