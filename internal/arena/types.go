package arena

import (
	"fmt"
	"time"
)

// MaxRoundsCeiling is the hard system limit on rounds per team. Tasks asking
// for more are rejected before any team starts.
const MaxRoundsCeiling = 10

// Defaults applied when a task or config leaves a knob unset.
const (
	DefaultMaxRounds         = 5
	DefaultMinRounds         = 2
	DefaultSubmissionTimeout = 300 * time.Second
	DefaultJudgmentTimeout   = 60 * time.Second
	DefaultTimeoutPerTeam    = 30 * time.Minute
)

// Exit reasons recorded on a team's final leader_board row.
const (
	ExitMaxRounds         = "max rounds reached"
	ExitNoImprovement     = "no improvement expected"
	ExitEvaluatorFailure  = "evaluator failure"
	ExitSubmissionTimeout = "submission timeout"
)

// TeamSpec identifies one competitor in an execution.
type TeamSpec struct {
	ID   string
	Name string
}

// Task is the immutable input for one execution. ExecutionID is generated
// once per user request and shared by every team and round for correlation.
type Task struct {
	ExecutionID       string
	UserPrompt        string
	Teams             []TeamSpec
	TimeoutPerTeam    time.Duration
	MaxRounds         int
	MinRounds         int
	SubmissionTimeout time.Duration
	JudgmentTimeout   time.Duration
}

// ApplyDefaults fills unset fields. It does not validate; call Validate after.
func (t *Task) ApplyDefaults() {
	if t.MaxRounds == 0 {
		t.MaxRounds = DefaultMaxRounds
	}
	if t.MinRounds == 0 {
		t.MinRounds = DefaultMinRounds
	}
	if t.SubmissionTimeout == 0 {
		t.SubmissionTimeout = DefaultSubmissionTimeout
	}
	if t.JudgmentTimeout == 0 {
		t.JudgmentTimeout = DefaultJudgmentTimeout
	}
	if t.TimeoutPerTeam == 0 {
		t.TimeoutPerTeam = DefaultTimeoutPerTeam
	}
}

// Validate rejects tasks that must not start at all. Violations are
// task-invalid: the whole execution is refused, no partial work happens.
func (t *Task) Validate() error {
	if t.ExecutionID == "" {
		return fmt.Errorf("execution id is required")
	}
	if t.UserPrompt == "" {
		return fmt.Errorf("user prompt is required")
	}
	if len(t.Teams) == 0 {
		return fmt.Errorf("at least one team is required")
	}
	seen := make(map[string]bool, len(t.Teams))
	for i, team := range t.Teams {
		if team.ID == "" {
			return fmt.Errorf("team %d: id is required", i)
		}
		if seen[team.ID] {
			return fmt.Errorf("duplicate team id %q", team.ID)
		}
		seen[team.ID] = true
	}
	if t.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be at least 1")
	}
	if t.MaxRounds > MaxRoundsCeiling {
		return fmt.Errorf("max_rounds %d exceeds system ceiling %d", t.MaxRounds, MaxRoundsCeiling)
	}
	if t.MinRounds < 1 {
		return fmt.Errorf("min_rounds must be at least 1")
	}
	if t.MinRounds > t.MaxRounds {
		return fmt.Errorf("min_rounds %d exceeds max_rounds %d", t.MinRounds, t.MaxRounds)
	}
	return nil
}

// Submission is one team's answer for one round.
type Submission struct {
	Content string `json:"content"`
	Format  string `json:"format"`
}

// ScoreDetails is the structured breakdown stored alongside a score. The
// evaluator's free-text feedback rides with the per-metric numbers so that
// prompt building can recover it from storage alone.
type ScoreDetails struct {
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Feedback string             `json:"feedback,omitempty"`
}

// EvaluationResult is what the external evaluator returns for a submission.
type EvaluationResult struct {
	Score    float64            `json:"score"`
	Details  map[string]float64 `json:"details"`
	Feedback string             `json:"feedback"`
}

// Validate enforces the score range. Out-of-range scores are rejected, never
// clamped.
func (r *EvaluationResult) Validate() error {
	if r.Score < 0 || r.Score > 100 {
		return fmt.Errorf("score %.2f outside [0,100]", r.Score)
	}
	return nil
}

// ImprovementJudgment is the continuation judge's decision for one round.
type ImprovementJudgment struct {
	ShouldContinue bool    `json:"should_continue"`
	Reasoning      string  `json:"reasoning"`
	Confidence     float64 `json:"confidence_score"`
}

// RoundStatus is one row of the round_status table: the continuation
// judgment and timing for a single round. ShouldContinue is nil until the
// judgment stage has run.
type RoundStatus struct {
	ExecutionID    string
	TeamID         string
	TeamName       string
	RoundNumber    int
	ShouldContinue *bool
	Reasoning      string
	Confidence     float64
	RoundStartedAt time.Time
	RoundEndedAt   time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LeaderBoardEntry is one row of the leader_board table: a scored submission
// for a single round. Exactly one entry per team carries FinalSubmission once
// the team finalizes.
type LeaderBoardEntry struct {
	ExecutionID       string
	TeamID            string
	TeamName          string
	RoundNumber       int
	SubmissionContent string
	SubmissionFormat  string
	Score             float64
	ScoreDetails      ScoreDetails
	FinalSubmission   bool
	ExitReason        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RankedTeam is one line of the cross-team ranking: each team's best entry
// ordered by score descending, later round winning ties.
type RankedTeam struct {
	Rank        int
	TeamID      string
	TeamName    string
	Score       float64
	RoundNumber int
}

// TeamFailure records why a team produced no result.
type TeamFailure struct {
	TeamID   string
	TeamName string
	Reason   string
}

// ExecutionSummary is the orchestrator's aggregate output: one final entry
// per completed team plus diagnostics for every failed one.
type ExecutionSummary struct {
	ExecutionID string
	UserPrompt  string
	Entries     []LeaderBoardEntry
	BestTeamID  string
	BestScore   float64
	FailedTeams []TeamFailure
	Elapsed     time.Duration
}

func (s *ExecutionSummary) TotalTeams() int     { return len(s.Entries) + len(s.FailedTeams) }
func (s *ExecutionSummary) CompletedTeams() int { return len(s.Entries) }
func (s *ExecutionSummary) FailedCount() int    { return len(s.FailedTeams) }
