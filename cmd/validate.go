package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ostraka/arena/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Config OK: %d teams\n", len(cfg.Teams))
			for _, t := range cfg.Teams {
				switch t.Kind {
				case "docker":
					fmt.Printf("  - %s (%s, image: %s)\n", t.Name, t.Kind, t.Image)
				default:
					fmt.Printf("  - %s (%s, url: %s)\n", t.Name, t.Kind, t.URL)
				}
			}
			fmt.Printf("Rounds: %d-%d  judge: %s  storage: %s\n",
				cfg.Execution.MinRounds, cfg.Execution.MaxRounds, cfg.Judge.Model, cfg.Storage.Path)
			return nil
		},
	}
}
