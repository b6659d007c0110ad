package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"subgen/internal/engine"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List and download speech-to-text models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newModelsListCommand(ctx))
	cmd.AddCommand(newModelsDownloadCommand(ctx))
	return cmd
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available models and their download state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}

			rows := make([][]string, 0)
			for _, model := range engine.Catalog(settings.ModelsDir) {
				state := "not downloaded"
				if model.Downloaded {
					state = model.LocalPath
				}
				rows = append(rows, []string{
					model.ID,
					model.Name,
					model.SizeLabel,
					state,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Size", "Location"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newModelsDownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download <model-id>",
		Short: "Download model weights ahead of the first transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}

			model, ok := engine.LookupModel(args[0])
			if !ok {
				return fmt.Errorf("unknown model: %q", args[0])
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			localPath, err := engine.EnsureModel(runCtx, settings.ModelsDir, model, ctx.logger(""))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Model %s available at %s\n", model.ID, localPath)
			return nil
		},
	}
}
