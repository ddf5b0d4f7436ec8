package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/vidsum/internal/domain/subtitles"
	"github.com/forPelevin/vidsum/internal/domain/jobs"
	"github.com/forPelevin/vidsum/internal/pipeline"
	"github.com/forPelevin/vidsum/internal/usecase"
)

// jobTimeout bounds a single foreground command.
const jobTimeout = 3 * time.Hour

func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// runJob builds the app with a progress printer and runs req in the
// foreground.
func runJob(cmd *cobra.Command, build func(a *app) pipeline.Request) (jobs.Job, *app, error) {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(ctx, cmd, appOptions{progress: newProgressPrinter(cmd.OutOrStdout())})
	if err != nil {
		return jobs.Job{}, nil, err
	}
	j, err := a.orch.Run(ctx, build(a))
	return j, a, err
}

func newTranscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <source>",
		Short: "Transcribe a local video or a YouTube URL to SRT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, _ := cmd.Flags().GetString("language")
			noCache, _ := cmd.Flags().GetBool("no-cache")
			out := cmd.OutOrStdout()

			ctx, cancel := commandContext()
			defer cancel()
			a, err := newApp(ctx, cmd, appOptions{progress: newProgressPrinter(out)})
			if err != nil {
				return err
			}
			defer a.Close()

			if !noCache {
				j, ok, err := a.orch.Cached(ctx, jobs.KindTranscribe, args[0])
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintf(out, "Using cached transcript from job %s\n", j.ID)
					return printTranscribe(out, j)
				}
			}

			fmt.Fprintf(out, "Transcribing %s\n", args[0])
			j, err := a.orch.Run(ctx, pipeline.Request{Kind: jobs.KindTranscribe, Source: args[0], Language: lang})
			if err != nil {
				return err
			}
			return printTranscribe(out, j)
		},
	}
	cmd.Flags().StringP("language", "l", "", "Spoken language code (default from WHISPER_LANGUAGE)")
	cmd.Flags().Bool("no-cache", false, "Transcribe even if a cached transcript exists")
	return cmd
}

func printTranscribe(w io.Writer, j jobs.Job) error {
	fmt.Fprintf(w, "Transcript: %s\n", j.Artifacts[jobs.ArtifactTranscript])
	fmt.Fprintf(w, "Text:       %s\n", j.Artifacts[jobs.ArtifactText])
	if v := j.Artifacts[jobs.ArtifactVideo]; v != "" {
		fmt.Fprintf(w, "Video:      %s\n", v)
	}
	return nil
}

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize <transcript>",
		Short: "Summarize a transcript file (.srt or .txt)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outLang, _ := cmd.Flags().GetString("output-language")
			model, _ := cmd.Flags().GetString("model")
			outFile, _ := cmd.Flags().GetString("output")

			j, a, err := runJob(cmd, func(*app) pipeline.Request {
				return pipeline.Request{
					Kind:           jobs.KindSummarize,
					TranscriptPath: args[0],
					OutputLanguage: outLang,
					Model:          model,
				}
			})
			if a != nil {
				defer a.Close()
			}
			if err != nil {
				return err
			}
			s, err := usecase.LoadSummary(j.Artifacts[jobs.ArtifactSummary])
			if err != nil {
				return err
			}
			text := usecase.FormatSummary(s)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			fmt.Fprintln(out, text)
			if outFile != "" {
				if err := os.WriteFile(outFile, []byte(text+"\n"), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(out, "\nSummary saved to %s\n", outFile)
			}
			return nil
		},
	}
	cmd.Flags().String("output-language", usecase.OutputOriginal, "Summary language: original or english")
	cmd.Flags().StringP("model", "m", "", "Model override")
	cmd.Flags().StringP("output", "o", "", "Also write the summary as text to this file")
	return cmd
}

func newExtractClipsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract-clips <transcript>",
		Short: "Pick highlight clips from a transcript and cut them from the video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			video, _ := cmd.Flags().GetString("video")
			j, a, err := runJob(cmd, func(a *app) pipeline.Request {
				return clipsRequest(cmd, a, args[0], video)
			})
			if a != nil {
				defer a.Close()
			}
			if err != nil {
				return err
			}
			return printClips(cmd.OutOrStdout(), j)
		},
	}
	addClipFlags(cmd)
	cmd.Flags().String("video", "", "Video file to cut (required)")
	_ = cmd.MarkFlagRequired("video")
	return cmd
}

func addClipFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("num-clips", "n", 0, "Number of clips (default from CLIPS_COUNT)")
	cmd.Flags().Float64("min-duration", 0, "Minimum clip seconds (default from CLIP_MIN_SECONDS)")
	cmd.Flags().Float64("max-duration", 0, "Maximum clip seconds (default from CLIP_MAX_SECONDS)")
	cmd.Flags().Bool("reencode", false, "Re-encode clips for frame-accurate cuts")
	cmd.Flags().Bool("merge", true, "Merge the clips into one video")
	cmd.Flags().StringP("model", "m", "", "Model override")
}

func clipsRequest(cmd *cobra.Command, a *app, transcript, video string) pipeline.Request {
	b := a.cfg.Bounds()
	if n, _ := cmd.Flags().GetInt("num-clips"); n != 0 {
		b.Count = n
	}
	if v, _ := cmd.Flags().GetFloat64("min-duration"); v != 0 {
		b.MinDuration = v
	}
	if v, _ := cmd.Flags().GetFloat64("max-duration"); v != 0 {
		b.MaxDuration = v
	}
	reencode, _ := cmd.Flags().GetBool("reencode")
	merge, _ := cmd.Flags().GetBool("merge")
	model, _ := cmd.Flags().GetString("model")
	return pipeline.Request{
		Kind:           jobs.KindExtractClips,
		Source:         video,
		TranscriptPath: transcript,
		Model:          model,
		Bounds:         b,
		Reencode:       reencode,
		Merge:          merge,
	}
}

func printClips(w io.Writer, j jobs.Job) error {
	clips, err := usecase.LoadClipsMetadata(j.Artifacts[jobs.ArtifactClipsMeta])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nExtracted %d clips:\n", len(clips))
	for i, c := range clips {
		fmt.Fprintf(w, "%2d. [%s - %s] %s\n", i+1, subtitles.FormatTimestamp(c.Start), subtitles.FormatTimestamp(c.End), c.Title)
	}
	fmt.Fprintf(w, "\nClips: %s\n", j.Artifacts[jobs.ArtifactClipsDir])
	if m := j.Artifacts[jobs.ArtifactMerged]; m != "" {
		fmt.Fprintf(w, "Merged: %s\n", m)
	}
	return nil
}

func newProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <source>",
		Short: "Transcribe, summarize and extract clips in one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, _ := cmd.Flags().GetString("language")
			outLang, _ := cmd.Flags().GetString("output-language")
			model, _ := cmd.Flags().GetString("model")
			out := cmd.OutOrStdout()

			ctx, cancel := commandContext()
			defer cancel()
			a, err := newApp(ctx, cmd, appOptions{progress: newProgressPrinter(out)})
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(out, "Step 1/3: transcribing")
			tj, ok, err := a.orch.Cached(ctx, jobs.KindTranscribe, args[0])
			if err != nil {
				return err
			}
			if !ok {
				tj, err = a.orch.Run(ctx, pipeline.Request{Kind: jobs.KindTranscribe, Source: args[0], Language: lang})
				if err != nil {
					return err
				}
			}
			srt := tj.Artifacts[jobs.ArtifactTranscript]
			video := tj.Artifacts[jobs.ArtifactVideo]
			if err := printTranscribe(out, tj); err != nil {
				return err
			}

			fmt.Fprintln(out, "\nStep 2/3: summarizing")
			sj, err := a.orch.Run(ctx, pipeline.Request{
				Kind:           jobs.KindSummarize,
				TranscriptPath: srt,
				OutputLanguage: outLang,
				Model:          model,
			})
			if err != nil {
				return err
			}
			s, err := usecase.LoadSummary(sj.Artifacts[jobs.ArtifactSummary])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, usecase.FormatSummary(s))

			fmt.Fprintln(out, "\nStep 3/3: extracting clips")
			cj, err := a.orch.Run(ctx, clipsRequest(cmd, a, srt, video))
			if err != nil {
				return err
			}
			if err := printClips(out, cj); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nDone. Outputs under %s\n", filepath.Clean(a.cfg.OutputDir))
			return nil
		},
	}
	addClipFlags(cmd)
	cmd.Flags().StringP("language", "l", "", "Spoken language code (default from WHISPER_LANGUAGE)")
	cmd.Flags().String("output-language", usecase.OutputOriginal, "Summary language: original or english")
	return cmd
}
