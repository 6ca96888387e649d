// Package orchestrator fans one task out to every team's round controller,
// bounds each by the per-team timeout, and aggregates the surviving results
// into a final summary. One team's failure never touches another's run.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ostraka/arena/internal/arena"
)

// TeamRunner is one team's bounded multi-round run. round.Controller is the
// production implementation.
type TeamRunner interface {
	Run(ctx context.Context, task *arena.Task, team arena.TeamSpec) (*arena.LeaderBoardEntry, error)
}

type Orchestrator struct {
	runners map[string]TeamRunner // keyed by team id
	log     zerolog.Logger
}

func New(runners map[string]TeamRunner, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{runners: runners, log: logger}
}

type teamResult struct {
	team  arena.TeamSpec
	entry *arena.LeaderBoardEntry
	err   error
}

// Execute runs every team concurrently and waits for all of them to finish
// or time out. Task validation failures abort before any team starts; after
// that, per-team failures are recorded and isolated. The orchestrator never
// touches storage itself.
func (o *Orchestrator) Execute(ctx context.Context, task *arena.Task) (*arena.ExecutionSummary, error) {
	task.ApplyDefaults()
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}
	for _, team := range task.Teams {
		if _, ok := o.runners[team.ID]; !ok {
			return nil, fmt.Errorf("invalid task: no runner for team %q", team.ID)
		}
	}

	start := time.Now()
	o.log.Info().
		Str("execution_id", task.ExecutionID).
		Int("teams", len(task.Teams)).
		Int("max_rounds", task.MaxRounds).
		Msg("execution started")

	results := make([]teamResult, len(task.Teams))
	var wg sync.WaitGroup
	for i, team := range task.Teams {
		wg.Add(1)
		go func(i int, team arena.TeamSpec) {
			defer wg.Done()
			results[i] = o.runTeam(ctx, task, team)
		}(i, team)
	}
	wg.Wait()

	summary := &arena.ExecutionSummary{
		ExecutionID: task.ExecutionID,
		UserPrompt:  task.UserPrompt,
	}
	var best *arena.LeaderBoardEntry
	for _, r := range results {
		if r.err != nil {
			o.log.Warn().Str("team", r.team.ID).Str("reason", r.err.Error()).Msg("team failed")
			summary.FailedTeams = append(summary.FailedTeams, arena.TeamFailure{
				TeamID:   r.team.ID,
				TeamName: r.team.Name,
				Reason:   r.err.Error(),
			})
			continue
		}
		summary.Entries = append(summary.Entries, *r.entry)
		// Strict comparisons keep the tie-break deterministic: equal score
		// and round falls back to team insertion order.
		if best == nil || r.entry.Score > best.Score ||
			(r.entry.Score == best.Score && r.entry.RoundNumber > best.RoundNumber) {
			best = r.entry
		}
	}
	if best != nil {
		summary.BestTeamID = best.TeamID
		summary.BestScore = best.Score
	}
	summary.Elapsed = time.Since(start)

	o.log.Info().
		Str("execution_id", task.ExecutionID).
		Int("completed", summary.CompletedTeams()).
		Int("failed", summary.FailedCount()).
		Str("best_team", summary.BestTeamID).
		Dur("elapsed", summary.Elapsed).
		Msg("execution finished")
	return summary, nil
}

// runTeam bounds one team's run by the per-team timeout. A run that
// outlives its deadline is abandoned: the result slot is filled immediately
// and whatever the stray goroutine later produces is discarded.
func (o *Orchestrator) runTeam(ctx context.Context, task *arena.Task, team arena.TeamSpec) teamResult {
	tctx, cancel := context.WithTimeout(ctx, task.TimeoutPerTeam)
	defer cancel()

	done := make(chan teamResult, 1)
	go func() {
		entry, err := o.runners[team.ID].Run(tctx, task, team)
		done <- teamResult{team: team, entry: entry, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && tctx.Err() == context.DeadlineExceeded {
			r.err = fmt.Errorf("timed out after %s", task.TimeoutPerTeam)
		}
		return r
	case <-tctx.Done():
		if ctx.Err() != nil {
			return teamResult{team: team, err: fmt.Errorf("execution cancelled: %v", ctx.Err())}
		}
		return teamResult{team: team, err: fmt.Errorf("timed out after %s", task.TimeoutPerTeam)}
	}
}
