package highlights

import (
	"errors"
	"fmt"
	"sort"

	"github.com/forPelevin/vidsum/internal/types"
)

const (
	DefaultCount       = 5
	DefaultMinDuration = 10.0
	DefaultMaxDuration = 120.0
)

// Bounds configures Normalize. Durations are seconds.
type Bounds struct {
	Count       int
	MinDuration float64
	MaxDuration float64
	// MediaLength is the length of the video being cut. Zero means unknown
	// and skips the media check.
	MediaLength float64
}

func DefaultBounds() Bounds {
	return Bounds{Count: DefaultCount, MinDuration: DefaultMinDuration, MaxDuration: DefaultMaxDuration}
}

func (b Bounds) Validate() error {
	if b.Count <= 0 {
		return errors.New("clips must be > 0")
	}
	if b.MinDuration <= 0 {
		return errors.New("min clip must be > 0")
	}
	if b.MaxDuration <= 0 {
		return errors.New("max clip must be > 0")
	}
	if b.MinDuration > b.MaxDuration {
		return errors.New("min clip must be <= max clip")
	}
	return nil
}

// ErrNoCandidates is returned when every candidate was dropped.
var ErrNoCandidates = errors.New("no valid clip candidates")

// ValidationError explains why one raw candidate was dropped.
type ValidationError struct {
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("clip candidate %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Outcome is the result of Normalize. Dropped candidates are reported, not fatal.
type Outcome struct {
	Clips   []types.Clip
	Dropped []*ValidationError
}

// Normalize converts raw model candidates into clips, corrects their
// durations into [MinDuration, MaxDuration], fits them to MediaLength,
// ranks them by importance (stable, so extraction order breaks ties) and
// keeps the first Count. Candidates past the media end are dropped before
// the Count cut so lower-ranked ones can take their place.
func Normalize(raw []any, b Bounds) Outcome {
	var out Outcome
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			out.Dropped = append(out.Dropped, &ValidationError{Index: i, Err: fmt.Errorf("not an object (%T)", r)})
			continue
		}
		c, err := types.ClipFromMap(m)
		if err != nil {
			out.Dropped = append(out.Dropped, &ValidationError{Index: i, Err: err})
			continue
		}
		c, err = fitMedia(Clamp(c, b.MinDuration, b.MaxDuration), b.MediaLength)
		if err != nil {
			out.Dropped = append(out.Dropped, &ValidationError{Index: i, Err: err})
			continue
		}
		out.Clips = append(out.Clips, c)
	}

	sort.SliceStable(out.Clips, func(i, j int) bool {
		return out.Clips[i].Importance > out.Clips[j].Importance
	})
	if b.Count > 0 && len(out.Clips) > b.Count {
		out.Clips = out.Clips[:b.Count]
	}
	return out
}

// Clamp extends clips shorter than min and truncates clips longer than max,
// always moving End and keeping Start.
func Clamp(c types.Clip, minDur, maxDur float64) types.Clip {
	d := c.Duration()
	switch {
	case minDur > 0 && d < minDur:
		c.End = c.Start + minDur
	case maxDur > 0 && d > maxDur:
		c.End = c.Start + maxDur
	}
	return c
}

// fitMedia rejects a clip starting at or past the media end and pulls a
// later end back to it.
func fitMedia(c types.Clip, length float64) (types.Clip, error) {
	if length <= 0 {
		return c, nil
	}
	if c.Start >= length {
		return c, fmt.Errorf("starts at %.3fs, past media end %.3fs", c.Start, length)
	}
	if c.End > length {
		c.End = length
	}
	return c, nil
}
