package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Segment is a timestamped span of transcribed text. Times are seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (s Segment) Duration() float64 { return s.End - s.Start }

const (
	DefaultClipTitle      = "Untitled"
	DefaultClipImportance = 5
	MinImportance         = 1
	MaxImportance         = 10
)

// Clip is a highlight span selected from a transcript.
type Clip struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Importance  int     `json:"importance"`
}

func (c Clip) Duration() float64 { return c.End - c.Start }

// MarshalJSON adds the derived duration so metadata readers do not recompute it.
func (c Clip) MarshalJSON() ([]byte, error) {
	type plain Clip
	return json.Marshal(struct {
		plain
		Duration float64 `json:"duration"`
	}{plain(c), c.Duration()})
}

// ClipFromMap builds a Clip from an untrusted mapping produced by a model.
// start and end are required finite numbers. An end at or before start is
// kept as given; highlights.Clamp extends it to the minimum duration.
// importance is clamped to [1,10].
func ClipFromMap(m map[string]any) (Clip, error) {
	start, ok := number(m["start"])
	if !ok {
		return Clip{}, fmt.Errorf("start: missing or not a number")
	}
	end, ok := number(m["end"])
	if !ok {
		return Clip{}, fmt.Errorf("end: missing or not a number")
	}
	if start < 0 {
		start = 0
	}

	c := Clip{
		Start:      start,
		End:        end,
		Title:      DefaultClipTitle,
		Importance: DefaultClipImportance,
	}
	if t, ok := m["title"].(string); ok && strings.TrimSpace(t) != "" {
		c.Title = strings.TrimSpace(t)
	}
	if d, ok := m["description"].(string); ok {
		c.Description = strings.TrimSpace(d)
	}
	if imp, ok := number(m["importance"]); ok {
		c.Importance = clampImportance(imp)
	}
	return c, nil
}

func clampImportance(v float64) int {
	i := int(math.Round(v))
	if i < MinImportance {
		return MinImportance
	}
	if i > MaxImportance {
		return MaxImportance
	}
	return i
}

// number accepts JSON numbers and numeric strings; models emit both.
func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ClipsMetadata is the persisted clip document.
type ClipsMetadata struct {
	Clips      []Clip `json:"clips"`
	TotalClips int    `json:"total_clips"`
}

// Summary is the terminal artifact of a summarize job.
type Summary struct {
	Text      string   `json:"text"`
	KeyPoints []string `json:"key_points"`
	Language  string   `json:"language"`
}

// SummaryFromMap reads the "summary" and "key_points" keys of a model response.
func SummaryFromMap(m map[string]any, language string) Summary {
	s := Summary{Language: language, KeyPoints: []string{}}
	if t, ok := m["summary"].(string); ok {
		s.Text = strings.TrimSpace(t)
	}
	if arr, ok := m["key_points"].([]any); ok {
		for _, it := range arr {
			if p, ok := it.(string); ok && strings.TrimSpace(p) != "" {
				s.KeyPoints = append(s.KeyPoints, strings.TrimSpace(p))
			}
		}
	}
	return s
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
