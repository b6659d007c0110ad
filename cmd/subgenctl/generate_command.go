package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"subgen/internal/domain"
	"subgen/internal/engine"
	"subgen/internal/extract"
	"subgen/internal/language"
	"subgen/internal/pipeline"
	"subgen/internal/subtitle"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		languageFlag  string
		formatFlag    string
		modelFlag     string
		modelsDirFlag string
		maxLineFlag   int
		logLevelFlag  string
	)

	cmd := &cobra.Command{
		Use:   "generate <video-file>",
		Short: "Generate a subtitle file beside the given video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			if languageFlag != "" {
				settings.Language = languageFlag
			}
			if formatFlag != "" {
				settings.Format = strings.ToLower(formatFlag)
			}
			if modelFlag != "" {
				settings.ModelID = modelFlag
			}
			if modelsDirFlag != "" {
				settings.ModelsDir = modelsDirFlag
			}
			if maxLineFlag > 0 {
				settings.MaxLineLength = maxLineFlag
			}

			format := domain.SubtitleFormat(settings.Format)
			if !format.Valid() {
				return fmt.Errorf("unsupported subtitle format: %q", settings.Format)
			}
			if !language.Supported(settings.Language) {
				return fmt.Errorf("unsupported language: %q", settings.Language)
			}

			log := ctx.logger(logLevelFlag)
			runner := pipeline.New(
				extract.New(log),
				engine.New(settings.ModelID, settings.ModelsDir, log),
				subtitle.New(log, subtitle.Options{MaxLineLength: settings.MaxLineLength}),
				log,
			)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := runner.Run(runCtx, pipeline.Request{
				VideoPath: args[0],
				Language:  settings.Language,
				Format:    format,
				OnProgress: func(u pipeline.Update) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%3.0f%%] %s\n", u.Progress*100, u.Message)
				},
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d cues, language %s)\n",
				result.OutputPath, result.Segments, result.Language)
			return nil
		},
	}

	cmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Spoken language (name or code, default from settings)")
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Subtitle format: srt or ass (default from settings)")
	cmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Model ID (default from settings)")
	cmd.Flags().StringVar(&modelsDirFlag, "models-dir", "", "Directory holding model weights")
	cmd.Flags().IntVar(&maxLineFlag, "max-line-length", 0, "Wrap subtitle lines longer than this many characters")
	cmd.Flags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	return cmd
}
