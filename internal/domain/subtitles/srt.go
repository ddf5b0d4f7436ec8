package subtitles

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/forPelevin/vidsum/internal/types"
)

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Negative input clamps to
// zero and sub-millisecond precision is truncated.
func FormatTimestamp(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	// The epsilon absorbs float error such as 0.29*1000 = 289.99999999999997.
	ms := int64(math.Floor(sec*1000 + 1e-6))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

var tsRE = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})[,.](\d{3})$`)

// ParseTimestamp reads HH:MM:SS,mmm (a dot separator is also accepted).
func ParseTimestamp(s string) (float64, error) {
	m := tsRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	var parts [4]int
	for i := range parts {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		parts[i] = n
	}
	return float64(parts[0]*3600+parts[1]*60+parts[2]) + float64(parts[3])/1000, nil
}

// FormatSRT renders segments as numbered SRT entries separated by one blank line.
func FormatSRT(segs []types.Segment) string {
	entries := make([]string, 0, len(segs))
	for i, s := range segs {
		entries = append(entries, fmt.Sprintf("%d\n%s --> %s\n%s\n",
			i+1, FormatTimestamp(s.Start), FormatTimestamp(s.End), strings.TrimSpace(s.Text)))
	}
	return strings.Join(entries, "\n")
}

var (
	blockSepRE = regexp.MustCompile(`\n\s*\n`)
	timingRE   = regexp.MustCompile(`^(\d+:\d{2}:\d{2}[,.]\d{3})\s*-->\s*(\d+:\d{2}:\d{2}[,.]\d{3})`)
)

// ParseSRT reads SRT content back into segments. Malformed blocks are skipped;
// multi-line entry text is joined with newlines. A block with only an index
// and a timing line is an entry with empty text.
func ParseSRT(content string) []types.Segment {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")

	var out []types.Segment
	for _, block := range blockSepRE.Split(strings.TrimSpace(content), -1) {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}
		m := timingRE.FindStringSubmatch(strings.TrimSpace(lines[1]))
		if m == nil {
			continue
		}
		start, err := ParseTimestamp(m[1])
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(m[2])
		if err != nil {
			continue
		}
		out = append(out, types.Segment{
			Start: start,
			End:   end,
			Text:  strings.TrimSpace(strings.Join(lines[2:], "\n")),
		})
	}
	return out
}

// PlainText joins segment text one line per segment.
func PlainText(segs []types.Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		parts = append(parts, strings.TrimSpace(s.Text))
	}
	return strings.Join(parts, "\n")
}

func SaveSRT(path string, segs []types.Segment) error {
	return writeFile(path, FormatSRT(segs))
}

func SaveText(path string, segs []types.Segment) error {
	return writeFile(path, PlainText(segs))
}

func LoadSRT(path string) ([]types.Segment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSRT(string(b)), nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
