package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/forPelevin/vidsum/internal/config"
	"github.com/forPelevin/vidsum/internal/llm"
	"github.com/forPelevin/vidsum/internal/pipeline"
	"github.com/forPelevin/vidsum/internal/ports"
	"github.com/forPelevin/vidsum/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/vidsum/internal/ports/adapters/redispub"
	"github.com/forPelevin/vidsum/internal/ports/adapters/source"
	"github.com/forPelevin/vidsum/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/vidsum/internal/storage"
)

// app holds the collaborators one command invocation needs.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	store   ports.JobStore
	pub     *redispub.Publisher
	llm     ports.LLM
	orch    *pipeline.Orchestrator
	closers []func() error
}

type appOptions struct {
	// progress receives step changes of running Jobs. nil disables it.
	progress *progressPrinter
}

func newApp(ctx context.Context, cmd *cobra.Command, opts appOptions) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("out"); v != "" {
		cfg.OutputDir = v
	}
	provider, _ := cmd.Flags().GetString("provider")

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(log)

	a := &app{cfg: cfg, log: log}
	if err := a.open(ctx, provider, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context, provider string, opts appOptions) error {
	store, closeStore, err := openStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	a.store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	pub, err := redispub.Open(ctx, a.cfg.Redis.URL)
	if err != nil {
		return err
	}
	if pub != nil {
		a.pub = pub
		a.closers = append(a.closers, pub.Close)
	}

	l, err := llm.New(ctx, a.cfg.LLMSettings(provider, ""), a.log)
	switch {
	case errors.Is(err, ports.ErrNotConfigured):
		a.log.Debug("llm provider not configured", "error", err)
	case err != nil:
		return err
	default:
		a.llm = l
		if c, ok := l.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	var asr ports.Transcriber
	if a.cfg.Whisper.Model != "" {
		asr = whispercpp.New(a.cfg.Whisper.Bin, a.cfg.Whisper.Model, a.cfg.Whisper.Threads, a.cfg.Whisper.Language)
	}

	var publisher ports.Publisher
	switch {
	case opts.progress != nil:
		if a.pub != nil {
			opts.progress.next = a.pub
		}
		publisher = opts.progress
	case a.pub != nil:
		publisher = a.pub
	}

	orch, err := pipeline.New(pipeline.Config{
		OutDir:    a.cfg.OutputDir,
		Language:  a.cfg.Whisper.Language,
		Source:    source.New(),
		Media:     ffmpeg.New(a.cfg.FFmpeg.FFmpegPath, a.cfg.FFmpeg.FFprobePath),
		ASR:       asr,
		LLM:       a.llm,
		Store:     a.store,
		Publisher: publisher,
		Log:       a.log,
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.orch = orch
	a.closers = append(a.closers, func() error { return orch.Shutdown(context.Background()) })
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", "error", err)
		}
	}
	a.closers = nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (ports.JobStore, func() error, error) {
	switch sc.Driver {
	case config.StoreSQLite:
		s, err := storage.OpenSQLite(sc.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening storage: %w", err)
		}
		return s, s.Close, nil
	case config.StorePostgres:
		s, err := storage.OpenPostgres(ctx, sc.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening storage: %w", err)
		}
		return s, s.Close, nil
	default:
		return storage.NewMemory(), nil, nil
	}
}
