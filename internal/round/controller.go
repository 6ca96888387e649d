// Package round drives one team through repeated submit→evaluate→judge
// cycles until a termination condition fires, persisting every round, and
// returns the team's best entry.
package round

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ostraka/arena/internal/arena"
	"github.com/ostraka/arena/internal/collab"
	"github.com/ostraka/arena/internal/judge"
	"github.com/ostraka/arena/internal/retry"
	"github.com/ostraka/arena/internal/storage"
)

// PromptConfig bounds the history window assembled into round ≥2 prompts.
// TokenBudget is a best-effort compression target, not a hard limit.
type PromptConfig struct {
	HistoryWindow int
	TokenBudget   int
}

// Controller owns the per-team round state machine. It holds no shared
// state: each concurrently-running team gets its own Controller with its own
// storage session.
type Controller struct {
	store  *storage.Store
	team   collab.Team
	eval   collab.Evaluator
	judge  judge.Judge
	prompt PromptConfig
	policy retry.Policy
	log    zerolog.Logger
}

func NewController(store *storage.Store, team collab.Team, eval collab.Evaluator, j judge.Judge, prompt PromptConfig, logger zerolog.Logger) *Controller {
	if prompt.HistoryWindow <= 0 {
		prompt.HistoryWindow = 3
	}
	if prompt.TokenBudget <= 0 {
		prompt.TokenBudget = 2000
	}
	return &Controller{
		store:  store,
		team:   team,
		eval:   eval,
		judge:  j,
		prompt: prompt,
		policy: retry.Default(),
		log:    logger,
	}
}

// Run executes rounds for one team until a termination condition fires and
// returns the finalized best entry. An error means the whole team failed;
// the round that caused it never yields a result. Rounds run strictly
// sequentially: round N's persistence and judgment complete before round
// N+1 starts.
func (c *Controller) Run(ctx context.Context, task *arena.Task, team arena.TeamSpec) (*arena.LeaderBoardEntry, error) {
	log := c.log.With().
		Str("execution_id", task.ExecutionID).
		Str("team", team.ID).
		Logger()

	for roundNum := 1; ; roundNum++ {
		startedAt := time.Now().UTC()
		log.Info().Int("round", roundNum).Msg("round started")

		prompt, err := c.buildPrompt(ctx, task, team, roundNum)
		if err != nil {
			return nil, fmt.Errorf("building prompt for round %d: %w", roundNum, err)
		}

		sub, err := c.submit(ctx, task, prompt)
		if err != nil {
			entry, done, failErr := c.handleSubmissionFailure(ctx, task, team, roundNum, startedAt, err, log)
			if done {
				return entry, failErr
			}
			continue
		}

		result, err := c.evaluate(ctx, task, sub)
		if err != nil {
			log.Error().Err(err).Int("round", roundNum).Msg("evaluation retries exhausted")
			// Stamp the exit reason on the best prior round, if any, so the
			// table records why this team stopped. The team still fails.
			if history, herr := c.store.SubmissionHistory(ctx, task.ExecutionID, team.ID); herr == nil && len(history) > 0 {
				c.store.FinalizeBest(ctx, task.ExecutionID, team.ID, arena.ExitEvaluatorFailure)
			}
			return nil, fmt.Errorf("%s: %w", arena.ExitEvaluatorFailure, err)
		}
		log.Info().Int("round", roundNum).Float64("score", result.Score).Msg("submission scored")

		// A scored submission must survive a crash during judgment, so both
		// rows commit before the judge runs.
		status := &arena.RoundStatus{
			ExecutionID:    task.ExecutionID,
			TeamID:         team.ID,
			TeamName:       team.Name,
			RoundNumber:    roundNum,
			RoundStartedAt: startedAt,
		}
		entry := &arena.LeaderBoardEntry{
			ExecutionID:       task.ExecutionID,
			TeamID:            team.ID,
			TeamName:          team.Name,
			RoundNumber:       roundNum,
			SubmissionContent: sub.Content,
			SubmissionFormat:  sub.Format,
			Score:             result.Score,
			ScoreDetails: arena.ScoreDetails{
				Metrics:  result.Details,
				Feedback: result.Feedback,
			},
		}
		if err := c.store.WriteRound(ctx, status, entry); err != nil {
			return nil, fmt.Errorf("persisting round %d: %w", roundNum, err)
		}

		judgment := c.decide(ctx, task, team, roundNum, log)

		status.ShouldContinue = &judgment.ShouldContinue
		status.Reasoning = judgment.Reasoning
		status.Confidence = judgment.Confidence
		status.RoundEndedAt = time.Now().UTC()
		if err := c.store.WriteRoundStatus(ctx, status); err != nil {
			return nil, fmt.Errorf("recording judgment for round %d: %w", roundNum, err)
		}

		if judgment.ShouldContinue {
			continue
		}

		reason := arena.ExitNoImprovement
		if roundNum >= task.MaxRounds {
			reason = arena.ExitMaxRounds
		}
		final, err := c.store.FinalizeBest(ctx, task.ExecutionID, team.ID, reason)
		if err != nil {
			return nil, fmt.Errorf("finalizing team: %w", err)
		}
		log.Info().
			Int("final_round", final.RoundNumber).
			Float64("score", final.Score).
			Str("exit_reason", reason).
			Msg("team finalized")
		return final, nil
	}
}

// handleSubmissionFailure records a failed round and decides whether the
// team advances. Failed rounds consume a round number (numbering stays
// contiguous) and count toward the min-rounds floor, but skip judgment. If
// no round remains, the team finalizes on its best prior score, or fails
// outright when it never scored.
func (c *Controller) handleSubmissionFailure(ctx context.Context, task *arena.Task, team arena.TeamSpec, roundNum int, startedAt time.Time, subErr error, log zerolog.Logger) (*arena.LeaderBoardEntry, bool, error) {
	log.Warn().Err(subErr).Int("round", roundNum).Msg("submission failed")

	cont := roundNum < task.MaxRounds
	reasoning := fmt.Sprintf("submission failed: %v; continuing without judgment", subErr)
	if !cont {
		reasoning = fmt.Sprintf("submission failed: %v; max rounds reached", subErr)
	}
	status := &arena.RoundStatus{
		ExecutionID:    task.ExecutionID,
		TeamID:         team.ID,
		TeamName:       team.Name,
		RoundNumber:    roundNum,
		ShouldContinue: &cont,
		Reasoning:      reasoning,
		RoundStartedAt: startedAt,
		RoundEndedAt:   time.Now().UTC(),
	}
	if err := c.store.WriteRoundStatus(ctx, status); err != nil {
		return nil, true, fmt.Errorf("recording failed round %d: %w", roundNum, err)
	}
	if cont {
		return nil, false, nil
	}

	history, err := c.store.SubmissionHistory(ctx, task.ExecutionID, team.ID)
	if err != nil {
		return nil, true, fmt.Errorf("reading history after failed round: %w", err)
	}
	if len(history) == 0 {
		return nil, true, fmt.Errorf("%s: %w", arena.ExitSubmissionTimeout, subErr)
	}
	final, err := c.store.FinalizeBest(ctx, task.ExecutionID, team.ID, arena.ExitSubmissionTimeout)
	if err != nil {
		return nil, true, fmt.Errorf("finalizing team: %w", err)
	}
	return final, true, nil
}

func (c *Controller) submit(ctx context.Context, task *arena.Task, prompt string) (*arena.Submission, error) {
	sctx, cancel := context.WithTimeout(ctx, task.SubmissionTimeout)
	defer cancel()
	return c.team.Submit(sctx, prompt)
}

func (c *Controller) evaluate(ctx context.Context, task *arena.Task, sub *arena.Submission) (*arena.EvaluationResult, error) {
	var result *arena.EvaluationResult
	err := c.policy.Do(ctx, func() error {
		r, err := c.eval.Evaluate(ctx, task.UserPrompt, sub)
		if err != nil {
			return err
		}
		// Out-of-range scores are rejected, not clamped; implementations
		// behind the interface may not have validated.
		if err := r.Validate(); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decide produces the continuation judgment for a scored round. Three
// stages, in order: below min_rounds the round continues unconditionally
// with no LLM call; otherwise the judge is consulted, defaulting to continue
// when its retries are exhausted (termination is irreversible, over-running
// is not); finally max_rounds overrides everything.
func (c *Controller) decide(ctx context.Context, task *arena.Task, team arena.TeamSpec, roundNum int, log zerolog.Logger) *arena.ImprovementJudgment {
	var j *arena.ImprovementJudgment
	if roundNum < task.MinRounds {
		j = &arena.ImprovementJudgment{
			ShouldContinue: true,
			Reasoning:      fmt.Sprintf("minimum of %d rounds not yet reached", task.MinRounds),
			Confidence:     1.0,
		}
	} else {
		history, err := c.store.SubmissionHistory(ctx, task.ExecutionID, team.ID)
		if err != nil {
			log.Warn().Err(err).Msg("could not read history for judgment, defaulting to continue")
			j = &arena.ImprovementJudgment{
				ShouldContinue: true,
				Reasoning:      fmt.Sprintf("history unavailable (%v); defaulting to continue", err),
			}
		} else {
			jctx, cancel := context.WithTimeout(ctx, task.JudgmentTimeout)
			j, err = c.judge.Judge(jctx, &judge.Request{
				UserPrompt: task.UserPrompt,
				History:    history,
				MaxRounds:  task.MaxRounds,
			})
			cancel()
			if err != nil {
				log.Warn().Err(err).Int("round", roundNum).Msg("judge unavailable, defaulting to continue")
				j = &arena.ImprovementJudgment{
					ShouldContinue: true,
					Reasoning:      fmt.Sprintf("continuation judge unavailable (%v); defaulting to continue", err),
				}
			}
		}
	}

	if roundNum >= task.MaxRounds {
		j.ShouldContinue = false
		if j.Reasoning != "" {
			j.Reasoning += "; max rounds reached"
		} else {
			j.Reasoning = "max rounds reached"
		}
	}
	return j
}
