// Package pipeline runs Jobs: it sequences the stages of each Job kind,
// persists every state transition and turns stage failures into a single
// Job failure naming the stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/forPelevin/vidsum/internal/domain/highlights"
	"github.com/forPelevin/vidsum/internal/domain/jobs"
	"github.com/forPelevin/vidsum/internal/ports"
	"github.com/forPelevin/vidsum/internal/ports/adapters/source"
	"github.com/forPelevin/vidsum/internal/storage"
	"github.com/forPelevin/vidsum/internal/usecase"
)

type Config struct {
	// OutDir holds one directory per Job, named by Job id.
	OutDir string
	// DownloadDir keeps downloaded sources across Jobs. Defaults to
	// <OutDir>/downloads.
	DownloadDir string
	// Language is used when a transcribe Request names none.
	Language string

	Source    ports.SourceResolver
	Media     ports.MediaTool
	ASR       ports.Transcriber // nil disables transcribe Jobs
	LLM       ports.LLM         // nil disables summarize and extract_clips Jobs
	Store     ports.JobStore
	Publisher ports.Publisher // optional
	Log       *slog.Logger
	Now       func() time.Time
}

func (c Config) Validate() error {
	if c.OutDir == "" {
		return errors.New("output dir is empty")
	}
	if c.Source == nil {
		return errors.New("source resolver is required")
	}
	if c.Media == nil {
		return errors.New("media tool is required")
	}
	if c.Store == nil {
		return errors.New("job store is required")
	}
	return nil
}

// Request describes one Job. Source is the media input (path or URL) for
// transcribe and extract_clips. TranscriptPath feeds summarize and
// extract_clips; Text may replace it for summarize.
type Request struct {
	Kind           jobs.Kind
	Source         string
	Language       string
	TranscriptPath string
	Text           string
	OutputLanguage string
	Model          string
	Bounds         highlights.Bounds
	Reencode       bool
	Merge          bool
}

func (r Request) validate() error {
	switch r.Kind {
	case jobs.KindTranscribe:
		if r.Source == "" {
			return errors.New("source is required")
		}
	case jobs.KindSummarize:
		if r.TranscriptPath == "" && r.Text == "" {
			return usecase.ErrEmptyTranscript
		}
	case jobs.KindExtractClips:
		if r.Source == "" {
			return errors.New("video path is required")
		}
		if r.TranscriptPath == "" {
			return errors.New("transcript path is required")
		}
		return r.Bounds.Validate()
	default:
		return fmt.Errorf("unknown job kind %q", r.Kind)
	}
	return nil
}

// ErrInvalidRequest marks a Request rejected before any Job was created.
var ErrInvalidRequest = errors.New("invalid request")

type Orchestrator struct {
	cfg Config
	uc  usecase.Usecase
	log *slog.Logger
	now func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]chan struct{}
}

func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = filepath.Join(cfg.OutDir, "downloads")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, err
	}
	base, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg: cfg,
		uc: usecase.New(usecase.Deps{
			Media: cfg.Media,
			ASR:   cfg.ASR,
			LLM:   cfg.LLM,
			Log:   cfg.Log,
		}),
		log:     cfg.Log,
		now:     cfg.Now,
		base:    base,
		cancel:  cancel,
		running: map[string]chan struct{}{},
	}, nil
}

// Submit persists a pending Job and runs it in the background. It returns
// as soon as the Job is stored.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (jobs.Job, error) {
	j, err := o.create(ctx, req)
	if err != nil {
		return jobs.Job{}, err
	}
	snap := j.Clone()
	done := make(chan struct{})
	o.mu.Lock()
	o.running[j.ID] = done
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.running, j.ID)
			o.mu.Unlock()
			close(done)
		}()
		o.execute(o.base, j, req)
	}()
	return snap, nil
}

// Run executes a Job on the calling goroutine. The returned error is the
// Job's failure, if any.
func (o *Orchestrator) Run(ctx context.Context, req Request) (jobs.Job, error) {
	j, err := o.create(ctx, req)
	if err != nil {
		return jobs.Job{}, err
	}
	err = o.execute(ctx, j, req)
	return j.Clone(), err
}

// Wait blocks until the Job is no longer running in this process and returns
// its stored snapshot.
func (o *Orchestrator) Wait(ctx context.Context, id string) (jobs.Job, error) {
	o.mu.Lock()
	done := o.running[id]
	o.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return jobs.Job{}, ctx.Err()
		}
	}
	return o.cfg.Store.Get(ctx, id)
}

// Cached returns the newest completed Job of kind for the same source whose
// transcript file still exists.
func (o *Orchestrator) Cached(ctx context.Context, kind jobs.Kind, src string) (jobs.Job, bool, error) {
	key := source.Key(src)
	if key == "" {
		return jobs.Job{}, false, nil
	}
	j, err := o.cfg.Store.FindCompleted(ctx, kind, key)
	if errors.Is(err, storage.ErrNotFound) {
		return jobs.Job{}, false, nil
	}
	if err != nil {
		return jobs.Job{}, false, err
	}
	if p := j.Artifacts[jobs.ArtifactTranscript]; p != "" {
		if _, err := os.Stat(p); err != nil {
			o.log.Info("cached transcript missing, ignoring cache", "job_id", j.ID, "path", p)
			return jobs.Job{}, false, nil
		}
	}
	return j, true, nil
}

// Shutdown cancels running Jobs and waits for them to record their outcome.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) create(ctx context.Context, req Request) (*jobs.Job, error) {
	if req.Kind == jobs.KindExtractClips && req.Bounds == (highlights.Bounds{}) {
		req.Bounds = highlights.DefaultBounds()
	}
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := o.available(req.Kind); err != nil {
		return nil, err
	}
	var key string
	if req.Kind == jobs.KindTranscribe {
		key = source.Key(req.Source)
	}
	j := jobs.New(req.Kind, req.Source, key, o.now())
	if err := o.cfg.Store.Create(ctx, j.Clone()); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	o.publish(ctx, j)
	return j, nil
}

// available reports a missing collaborator before any Job is created.
func (o *Orchestrator) available(kind jobs.Kind) error {
	switch kind {
	case jobs.KindTranscribe:
		if o.cfg.ASR == nil {
			return fmt.Errorf("%w: transcriber (set WHISPER_MODEL)", ports.ErrNotConfigured)
		}
	case jobs.KindSummarize, jobs.KindExtractClips:
		if o.cfg.LLM == nil {
			return fmt.Errorf("%w: llm provider (set OPENROUTER_API_KEY or GOOGLE_API_KEY)", ports.ErrNotConfigured)
		}
	}
	return nil
}

// execute runs the stages of j and records exactly one terminal transition.
func (o *Orchestrator) execute(ctx context.Context, j *jobs.Job, req Request) (err error) {
	log := o.log.With("job_id", j.ID, "kind", j.Kind)
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: StageInternal, Err: fmt.Errorf("panic: %v", r)}
			log.Error("job panicked", "panic", r)
			o.fail(ctx, j, err)
		}
	}()

	dir := filepath.Join(o.cfg.OutDir, j.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		err = &StageError{Stage: StageInternal, Err: err}
		o.fail(ctx, j, err)
		return err
	}

	log.Info("job started")
	var result map[string]any
	switch j.Kind {
	case jobs.KindTranscribe:
		result, err = o.transcribe(ctx, j, req, dir)
	case jobs.KindSummarize:
		result, err = o.summarize(ctx, j, req, dir)
	case jobs.KindExtractClips:
		result, err = o.extractClips(ctx, j, req, dir)
	}
	if err != nil {
		log.Warn("job failed", "error", err)
		o.fail(ctx, j, err)
		return err
	}
	if err := j.Complete(result, o.now()); err != nil {
		return err
	}
	o.save(ctx, j)
	log.Info("job completed")
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, j *jobs.Job, err error) {
	if j.Fail(err.Error(), o.now()) != nil {
		return
	}
	o.save(ctx, j)
}

// advance checks for cancellation at a stage boundary, then records step.
func (o *Orchestrator) advance(ctx context.Context, j *jobs.Job, stage Stage, step string) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	if err := j.Advance(step, o.now()); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	o.save(ctx, j)
	return nil
}

func (o *Orchestrator) record(ctx context.Context, j *jobs.Job, artifact, path string, partial map[string]any) {
	now := o.now()
	if artifact != "" {
		_ = j.AddArtifact(artifact, path, now)
	}
	if len(partial) > 0 {
		_ = j.Record(partial, now)
	}
	o.save(ctx, j)
}

// save persists and publishes a snapshot. Storage runs detached from ctx so
// the outcome of a cancelled Job is still recorded.
func (o *Orchestrator) save(ctx context.Context, j *jobs.Job) {
	ctx = context.WithoutCancel(ctx)
	if err := o.cfg.Store.Save(ctx, j.Clone()); err != nil {
		o.log.Error("save job", "job_id", j.ID, "error", err)
	}
	o.publish(ctx, j)
}

func (o *Orchestrator) publish(ctx context.Context, j *jobs.Job) {
	if o.cfg.Publisher == nil {
		return
	}
	if err := o.cfg.Publisher.Publish(context.WithoutCancel(ctx), j.Clone()); err != nil {
		o.log.Warn("publish job update", "job_id", j.ID, "error", err)
	}
}
