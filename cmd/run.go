package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ostraka/arena/internal/arena"
	"github.com/ostraka/arena/internal/collab"
	"github.com/ostraka/arena/internal/config"
	"github.com/ostraka/arena/internal/judge"
	"github.com/ostraka/arena/internal/orchestrator"
	"github.com/ostraka/arena/internal/report"
	"github.com/ostraka/arena/internal/round"
	"github.com/ostraka/arena/internal/storage"
)

var (
	flagPrompt     string
	flagPromptFile string
	flagMaxRounds  int
	flagMinRounds  int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one execution: all teams compete on a single task",
		RunE:  runExecution,
	}
	cmd.Flags().StringVar(&flagPrompt, "prompt", "", "task prompt")
	cmd.Flags().StringVar(&flagPromptFile, "prompt-file", "", "file containing the task prompt")
	cmd.Flags().IntVar(&flagMaxRounds, "max-rounds", 0, "override max rounds per team")
	cmd.Flags().IntVar(&flagMinRounds, "min-rounds", 0, "override min rounds per team")
	return cmd
}

func runExecution(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	prompt := flagPrompt
	if prompt == "" && flagPromptFile != "" {
		data, err := os.ReadFile(flagPromptFile)
		if err != nil {
			return fmt.Errorf("reading prompt file: %w", err)
		}
		prompt = string(data)
	}
	if prompt == "" {
		return fmt.Errorf("--prompt or --prompt-file is required")
	}

	// Load secrets into process env so collaborator endpoints can pick up
	// their API keys.
	if cfg.Secrets.EnvFile != "" {
		if err := godotenv.Load(cfg.Secrets.EnvFile); err != nil {
			log.Printf("warning: could not load secrets: %v", err)
		}
	}

	if flagMaxRounds > 0 {
		cfg.Execution.MaxRounds = flagMaxRounds
	}
	if flagMinRounds > 0 {
		cfg.Execution.MinRounds = flagMinRounds
	}

	logger := newLogger()

	task := &arena.Task{
		ExecutionID:       uuid.NewString(),
		UserPrompt:        prompt,
		MaxRounds:         cfg.Execution.MaxRounds,
		MinRounds:         cfg.Execution.MinRounds,
		SubmissionTimeout: cfg.Execution.SubmissionTimeout(),
		JudgmentTimeout:   cfg.Execution.JudgmentTimeout(),
		TimeoutPerTeam:    cfg.Execution.TimeoutPerTeam(),
	}

	promptCfg := round.PromptConfig{
		HistoryWindow: cfg.Prompt.HistoryWindow,
		TokenBudget:   cfg.Prompt.TokenBudget,
	}

	// Each team gets its own storage session and judge client: no handle is
	// shared between concurrently-running controllers.
	runners := make(map[string]orchestrator.TeamRunner, len(cfg.Teams))
	for _, tc := range cfg.Teams {
		store, err := storage.Open(cfg.Storage.Path, logger)
		if err != nil {
			return fmt.Errorf("opening storage for team %s: %w", tc.ID, err)
		}
		defer store.Close()

		team, err := buildTeam(tc)
		if err != nil {
			return err
		}
		evaluator := collab.NewHTTPEvaluator(cfg.Evaluator.URL)
		judgeClient := judge.NewClient(cfg.Judge.URL, cfg.Judge.Model, cfg.Judge.MaxTokens, logger)

		runners[tc.ID] = round.NewController(store, team, evaluator, judgeClient, promptCfg, logger)
		task.Teams = append(task.Teams, arena.TeamSpec{ID: tc.ID, Name: tc.Name})
	}

	orch := orchestrator.New(runners, logger)
	summary, err := orch.Execute(context.Background(), task)
	if err != nil {
		return err
	}

	fmt.Println("\n--- Standings ---")
	if err := report.WriteSummary(summary, os.Stdout); err != nil {
		return err
	}
	if summary.CompletedTeams() == 0 {
		return fmt.Errorf("all %d teams failed", summary.TotalTeams())
	}
	return nil
}

func buildTeam(tc config.Team) (collab.Team, error) {
	switch tc.Kind {
	case "http":
		return collab.NewHTTPTeam(tc.URL), nil
	case "docker":
		return &collab.DockerTeam{Image: tc.Image, Command: tc.Command, Env: tc.Env}, nil
	default:
		return nil, fmt.Errorf("team %q: unknown kind %q", tc.ID, tc.Kind)
	}
}
