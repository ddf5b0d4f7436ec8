package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRoot()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "vidsum",
		Short:         "Transcribe, summarize and cut highlight clips from videos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "YAML config file")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("out", "", "Output directory (overrides OUTPUT_DIR)")
	pf.StringP("provider", "p", "", "LLM provider: google or openrouter")

	root.AddCommand(
		newTranscribeCmd(),
		newSummarizeCmd(),
		newExtractClipsCmd(),
		newProcessCmd(),
		newChatCmd(),
		newJobsCmd(),
		newServeCmd(),
	)
	return root
}
