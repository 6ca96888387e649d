package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ostraka/arena/internal/config"
	"github.com/ostraka/arena/internal/report"
	"github.com/ostraka/arena/internal/storage"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [execution-id]",
		Short: "Show standings of a recorded execution (latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			store, err := storage.Open(cfg.Storage.Path, newLogger())
			if err != nil {
				return err
			}
			defer store.Close()

			executionID := ""
			if len(args) > 0 {
				executionID = args[0]
			}
			return report.Generate(context.Background(), store, executionID, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
