package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/vidsum/internal/api"
	"github.com/forPelevin/vidsum/internal/chat"
	"github.com/forPelevin/vidsum/internal/llm"
	"github.com/forPelevin/vidsum/internal/ports"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			addr := a.cfg.Server.Addr
			if v, _ := cmd.Flags().GetString("addr"); v != "" {
				addr = v
			}

			handler := api.New(api.Deps{
				Orchestrator: a.orch,
				Store:        a.store,
				Chats:        chat.NewRegistry(),
				NewLLM:       a.chatLLM,
				Bounds:       a.cfg.Bounds(),
				OutputDir:    a.cfg.OutputDir,
				Log:          a.log,
			})
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.log.Info("listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.log.Info("shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					return err
				}
				return a.orch.Shutdown(sctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from HTTP_ADDR)")
	return cmd
}

// chatLLM builds a provider for one chat session. The shared provider serves
// requests without overrides.
func (a *app) chatLLM(ctx context.Context, provider, model string) (ports.LLM, error) {
	if provider == "" && model == "" && a.llm != nil {
		return a.llm, nil
	}
	return llm.New(ctx, a.cfg.LLMSettings(provider, model), a.log)
}
