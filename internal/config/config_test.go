package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ostraka/arena/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validYAML = `
teams:
  - id: writer-a
    name: Writer A
    url: http://localhost:8081/submit
  - id: writer-b
    kind: docker
    image: example/writer:latest
    command: ["run", "--fast"]
execution:
  max_rounds: 6
  min_rounds: 2
  submission_timeout_s: 120
evaluator:
  url: http://localhost:9000/evaluate
judge:
  url: http://localhost:9001
storage:
  path: /tmp/arena-test.db
`

func TestLoadValid(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Teams) != 2 {
		t.Fatalf("teams: got %d, want 2", len(cfg.Teams))
	}
	if cfg.Teams[0].Kind != "http" {
		t.Errorf("kind default: got %q, want http", cfg.Teams[0].Kind)
	}
	if cfg.Teams[1].Name != "writer-b" {
		t.Errorf("name default: got %q, want the id", cfg.Teams[1].Name)
	}
	if cfg.Execution.MaxRounds != 6 {
		t.Errorf("max_rounds: got %d", cfg.Execution.MaxRounds)
	}
	if got := cfg.Execution.SubmissionTimeout(); got != 120*time.Second {
		t.Errorf("submission timeout: got %s", got)
	}
	if got := cfg.Execution.JudgmentTimeout(); got != 60*time.Second {
		t.Errorf("judgment timeout default: got %s", got)
	}
	if cfg.Judge.Model == "" || cfg.Judge.MaxTokens != 1024 {
		t.Errorf("judge defaults: model %q max_tokens %d", cfg.Judge.Model, cfg.Judge.MaxTokens)
	}
	if cfg.Prompt.HistoryWindow != 3 || cfg.Prompt.TokenBudget != 2000 {
		t.Errorf("prompt defaults: %+v", cfg.Prompt)
	}
	if cfg.Storage.Path != "/tmp/arena-test.db" {
		t.Errorf("storage path: got %q", cfg.Storage.Path)
	}
}

func TestLoadRejections(t *testing.T) {
	cases := map[string]struct {
		yaml    string
		wantErr string
	}{
		"no teams": {
			yaml:    "evaluator:\n  url: http://e\njudge:\n  url: http://j\n",
			wantErr: "no teams",
		},
		"http team without url": {
			yaml:    "teams:\n  - id: a\nevaluator:\n  url: http://e\njudge:\n  url: http://j\n",
			wantErr: "url is required",
		},
		"docker team without image": {
			yaml:    "teams:\n  - id: a\n    kind: docker\nevaluator:\n  url: http://e\njudge:\n  url: http://j\n",
			wantErr: "image is required",
		},
		"unknown kind": {
			yaml:    "teams:\n  - id: a\n    kind: lambda\nevaluator:\n  url: http://e\njudge:\n  url: http://j\n",
			wantErr: "unknown kind",
		},
		"duplicate team id": {
			yaml:    "teams:\n  - id: a\n    url: http://a\n  - id: a\n    url: http://b\nevaluator:\n  url: http://e\njudge:\n  url: http://j\n",
			wantErr: "duplicate id",
		},
		"max rounds over ceiling": {
			yaml:    "teams:\n  - id: a\n    url: http://a\nexecution:\n  max_rounds: 11\nevaluator:\n  url: http://e\njudge:\n  url: http://j\n",
			wantErr: "ceiling",
		},
		"min above max": {
			yaml:    "teams:\n  - id: a\n    url: http://a\nexecution:\n  max_rounds: 2\n  min_rounds: 4\nevaluator:\n  url: http://e\njudge:\n  url: http://j\n",
			wantErr: "exceeds max_rounds",
		},
		"missing evaluator": {
			yaml:    "teams:\n  - id: a\n    url: http://a\njudge:\n  url: http://j\n",
			wantErr: "evaluator url",
		},
		"missing judge": {
			yaml:    "teams:\n  - id: a\n    url: http://a\nevaluator:\n  url: http://e\n",
			wantErr: "judge url",
		},
	}
	for name, tc := range cases {
		_, err := config.Load(writeConfig(t, tc.yaml))
		if err == nil {
			t.Errorf("%s: expected error, got nil", name)
			continue
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: error %q missing %q", name, err, tc.wantErr)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
