// Package jobs holds the Job record and its state machine. It has no I/O;
// persistence lives behind ports.JobStore.
package jobs

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindTranscribe   Kind = "transcribe"
	KindSummarize    Kind = "summarize"
	KindExtractClips Kind = "extract_clips"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindTranscribe, KindSummarize, KindExtractClips:
		return k, nil
	default:
		return "", fmt.Errorf("unknown job kind %q", s)
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrTerminal is returned by every mutation of a completed or failed Job.
// The Job is left unchanged.
var ErrTerminal = errors.New("job is in a terminal state")

// Artifact kinds recorded in Job.Artifacts.
const (
	ArtifactVideo      = "video"
	ArtifactTranscript = "transcript"
	ArtifactText       = "text"
	ArtifactSummary    = "summary"
	ArtifactClipsMeta  = "clips_metadata"
	ArtifactClipsDir   = "clips_dir"
	ArtifactMerged     = "merged_video"
)

type Job struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"type"`
	Status    Status            `json:"status"`
	Step      string            `json:"step,omitempty"`
	Source    string            `json:"source,omitempty"`
	SourceKey string            `json:"source_key,omitempty"`
	Result    map[string]any    `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Artifacts map[string]string `json:"files"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// New allocates a pending Job. sourceKey identifies the input for cache lookups.
func New(kind Kind, source, sourceKey string, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusPending,
		Source:    source,
		SourceKey: sourceKey,
		Artifacts: map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the Job to processing and records a progress label.
func (j *Job) Advance(step string, now time.Time) error {
	if j.Status.Terminal() {
		return ErrTerminal
	}
	j.Status = StatusProcessing
	j.Step = step
	j.touch(now)
	return nil
}

// Record merges a partial result while the Job is still running.
func (j *Job) Record(partial map[string]any, now time.Time) error {
	if j.Status.Terminal() {
		return ErrTerminal
	}
	j.merge(partial)
	j.touch(now)
	return nil
}

// AddArtifact links a produced file to the Job.
func (j *Job) AddArtifact(kind, path string, now time.Time) error {
	if j.Status.Terminal() {
		return ErrTerminal
	}
	if j.Artifacts == nil {
		j.Artifacts = map[string]string{}
	}
	j.Artifacts[kind] = path
	j.touch(now)
	return nil
}

// Complete merges result into any partial result and marks the Job completed.
func (j *Job) Complete(result map[string]any, now time.Time) error {
	if j.Status.Terminal() {
		return ErrTerminal
	}
	j.merge(result)
	j.Status = StatusCompleted
	j.Step = ""
	j.touch(now)
	return nil
}

// Fail marks the Job failed. Partial results stay in place.
func (j *Job) Fail(msg string, now time.Time) error {
	if j.Status.Terminal() {
		return ErrTerminal
	}
	j.Status = StatusFailed
	j.Error = msg
	j.touch(now)
	return nil
}

func (j *Job) merge(m map[string]any) {
	if len(m) == 0 {
		return
	}
	if j.Result == nil {
		j.Result = make(map[string]any, len(m))
	}
	maps.Copy(j.Result, m)
}

// touch keeps UpdatedAt monotonic even if the clock steps back.
func (j *Job) touch(now time.Time) {
	now = now.UTC()
	if now.Before(j.UpdatedAt) {
		return
	}
	j.UpdatedAt = now
}

// Clone returns a copy that shares no maps with j. Result values are
// copied shallowly; callers treat them as read-only.
func (j *Job) Clone() Job {
	out := *j
	if j.Result != nil {
		out.Result = maps.Clone(j.Result)
	}
	out.Artifacts = maps.Clone(j.Artifacts)
	if out.Artifacts == nil {
		out.Artifacts = map[string]string{}
	}
	return out
}
