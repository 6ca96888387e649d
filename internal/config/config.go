package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ostraka/arena/internal/arena"
)

type Config struct {
	Teams     []Team    `yaml:"teams"`
	Execution Execution `yaml:"execution"`
	Evaluator Evaluator `yaml:"evaluator"`
	Judge     Judge     `yaml:"judge"`
	Prompt    Prompt    `yaml:"prompt"`
	Storage   Storage   `yaml:"storage"`
	Secrets   Secrets   `yaml:"secrets"`
}

type Team struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Kind    string            `yaml:"kind"` // "http" or "docker"
	URL     string            `yaml:"url"`
	Image   string            `yaml:"image"`
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env"`
}

type Execution struct {
	MaxRounds             int `yaml:"max_rounds"`
	MinRounds             int `yaml:"min_rounds"`
	SubmissionTimeoutSecs int `yaml:"submission_timeout_s"`
	JudgmentTimeoutSecs   int `yaml:"judgment_timeout_s"`
	TimeoutPerTeamMins    int `yaml:"timeout_per_team_minutes"`
}

type Evaluator struct {
	URL string `yaml:"url"`
}

type Judge struct {
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type Prompt struct {
	HistoryWindow int `yaml:"history_window"`
	TokenBudget   int `yaml:"token_budget"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Teams) == 0 {
		return fmt.Errorf("no teams defined")
	}
	seen := make(map[string]bool, len(cfg.Teams))
	for i := range cfg.Teams {
		t := &cfg.Teams[i]
		if t.ID == "" {
			return fmt.Errorf("team %d: id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("team %q: duplicate id", t.ID)
		}
		seen[t.ID] = true
		if t.Name == "" {
			t.Name = t.ID
		}
		if t.Kind == "" {
			t.Kind = "http"
		}
		switch t.Kind {
		case "http":
			if t.URL == "" {
				return fmt.Errorf("team %q: url is required for http teams", t.ID)
			}
		case "docker":
			if t.Image == "" {
				return fmt.Errorf("team %q: image is required for docker teams", t.ID)
			}
		default:
			return fmt.Errorf("team %q: unknown kind %q", t.ID, t.Kind)
		}
	}

	e := &cfg.Execution
	if e.MaxRounds == 0 {
		e.MaxRounds = arena.DefaultMaxRounds
	}
	if e.MinRounds == 0 {
		e.MinRounds = arena.DefaultMinRounds
	}
	if e.MaxRounds > arena.MaxRoundsCeiling {
		return fmt.Errorf("max_rounds %d exceeds system ceiling %d", e.MaxRounds, arena.MaxRoundsCeiling)
	}
	if e.MinRounds > e.MaxRounds {
		return fmt.Errorf("min_rounds %d exceeds max_rounds %d", e.MinRounds, e.MaxRounds)
	}

	if cfg.Evaluator.URL == "" {
		return fmt.Errorf("evaluator url is required")
	}
	if cfg.Judge.URL == "" {
		return fmt.Errorf("judge url is required")
	}
	if cfg.Judge.Model == "" {
		cfg.Judge.Model = "gemini-2.0-flash"
	}
	if cfg.Judge.MaxTokens == 0 {
		cfg.Judge.MaxTokens = 1024
	}

	if cfg.Prompt.HistoryWindow == 0 {
		cfg.Prompt.HistoryWindow = 3
	}
	if cfg.Prompt.TokenBudget == 0 {
		cfg.Prompt.TokenBudget = 2000
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "arena.db"
	}
	return nil
}

// SubmissionTimeout is the per-round bound on one team submission call.
func (e Execution) SubmissionTimeout() time.Duration {
	if e.SubmissionTimeoutSecs == 0 {
		return arena.DefaultSubmissionTimeout
	}
	return time.Duration(e.SubmissionTimeoutSecs) * time.Second
}

// JudgmentTimeout is the bound on one continuation-judge call.
func (e Execution) JudgmentTimeout() time.Duration {
	if e.JudgmentTimeoutSecs == 0 {
		return arena.DefaultJudgmentTimeout
	}
	return time.Duration(e.JudgmentTimeoutSecs) * time.Second
}

// TimeoutPerTeam is the wall-clock budget for one team's whole run.
func (e Execution) TimeoutPerTeam() time.Duration {
	if e.TimeoutPerTeamMins == 0 {
		return arena.DefaultTimeoutPerTeam
	}
	return time.Duration(e.TimeoutPerTeamMins) * time.Minute
}
