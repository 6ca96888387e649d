package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ostraka/arena/internal/config"
	"github.com/ostraka/arena/internal/storage"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded executions",
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

			execs, err := store.Executions(context.Background())
			if err != nil {
				return err
			}
			if len(execs) == 0 {
				fmt.Println("No executions recorded.")
				return nil
			}
			for _, e := range execs {
				fmt.Printf("  - %s  %s  teams: %d  rounds: %d  best: %.1f\n",
					e.ExecutionID, e.StartedAt.Format("2006-01-02 15:04"), e.Teams, e.Rounds, e.BestScore)
			}
			return nil
		},
	}
}
