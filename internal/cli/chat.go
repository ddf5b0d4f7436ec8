package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forPelevin/vidsum/internal/chat"
	"github.com/forPelevin/vidsum/internal/usecase"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <transcript>",
		Short: "Ask questions about a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _ := cmd.Flags().GetString("model")

			ctx, cancel := commandContext()
			defer cancel()
			a, err := newApp(ctx, cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.llm == nil {
				return errors.New("chat: llm provider not configured (set OPENROUTER_API_KEY or GOOGLE_API_KEY)")
			}

			text, err := usecase.New(usecase.Deps{Log: a.log}).TranscriptText(args[0], "")
			if err != nil {
				return err
			}
			s := chat.NewSession(a.llm, text, model)
			return repl(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("model", "m", "", "Model override")
	return cmd
}

// repl reads one message per line until EOF or "exit".
func repl(ctx context.Context, s *chat.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Chat started. Commands: /clear, /history, exit")
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "\nYou: ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/clear":
			s.Clear()
			fmt.Fprintln(out, "History cleared.")
			continue
		case "/history":
			for _, m := range s.History() {
				fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
			}
			continue
		}

		fmt.Fprint(out, "Assistant: ")
		err := s.Stream(ctx, line, func(chunk string) error {
			_, err := io.WriteString(out, chunk)
			return err
		})
		fmt.Fprintln(out)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}
