package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"subgen/internal/diagnostics"
	"subgen/internal/domain"
	"subgen/internal/engine"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools, model weights, and filesystem paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}

			log := ctx.logger("")
			checker := diagnostics.NewChecker(
				func() domain.DeviceKind { return engine.DetectDevice(log) },
				engine.Catalog,
			)
			report := checker.Run(settings)

			rows := make([][]string, 0, len(report.Items))
			for _, item := range report.Items {
				detail := item.Message
				if item.Hint != "" {
					detail += "\n" + item.Hint
				}
				rows = append(rows, []string{
					item.Name,
					strings.ToUpper(string(item.Status)),
					detail,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Check", "Status", "Details"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))

			if report.HasFailures {
				return fmt.Errorf("diagnostics found failing checks")
			}
			return nil
		},
	}
}
