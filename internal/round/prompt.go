package round

import (
	"context"
	"fmt"
	"strings"

	"github.com/ostraka/arena/internal/arena"
)

// buildPrompt assembles the prompt for a round. Round 1 is the bare task.
// Later rounds re-read this team's history and the cross-team ranking from
// storage rather than any in-memory cache, so a restarted process picks up
// exactly where the table says it left off.
func (c *Controller) buildPrompt(ctx context.Context, task *arena.Task, team arena.TeamSpec, roundNum int) (string, error) {
	if roundNum == 1 {
		return task.UserPrompt, nil
	}

	history, err := c.store.SubmissionHistory(ctx, task.ExecutionID, team.ID)
	if err != nil {
		return "", err
	}
	statuses, err := c.store.RoundStatuses(ctx, task.ExecutionID, team.ID)
	if err != nil {
		return "", err
	}
	ranking, err := c.store.Ranking(ctx, task.ExecutionID, 0)
	if err != nil {
		return "", err
	}
	rank, total, err := c.store.TeamRank(ctx, task.ExecutionID, team.ID)
	if err != nil {
		return "", err
	}

	scored := make(map[int]*arena.LeaderBoardEntry, len(history))
	for i := range history {
		scored[history[i].RoundNumber] = &history[i]
	}

	var b strings.Builder
	b.WriteString("# Task\n\n")
	b.WriteString(task.UserPrompt)
	b.WriteString("\n\n## Your previous attempts\n")

	window := c.prompt.HistoryWindow
	first := len(statuses) - window
	if first < 0 {
		first = 0
	}
	if first > 0 {
		fmt.Fprintf(&b, "\n(%d earlier rounds omitted)\n", first)
	}
	charBudget := c.prompt.TokenBudget * 4 / window
	for _, rs := range statuses[first:] {
		entry, ok := scored[rs.RoundNumber]
		if !ok {
			fmt.Fprintf(&b, "\n### Round %d\nSubmission failed: %s\n", rs.RoundNumber, rs.Reasoning)
			continue
		}
		fmt.Fprintf(&b, "\n### Round %d (score %.1f)\n", entry.RoundNumber, entry.Score)
		if fb := entry.ScoreDetails.Feedback; fb != "" {
			fmt.Fprintf(&b, "Feedback: %s\n", fb)
		}
		b.WriteString("Submission:\n")
		b.WriteString(truncateMiddle(entry.SubmissionContent, charBudget))
		b.WriteString("\n")
	}

	b.WriteString("\n## Current leaderboard\n\n")
	for _, r := range ranking {
		marker := ""
		if r.TeamID == team.ID {
			marker = " (you)"
		}
		fmt.Fprintf(&b, "%d. %s%s: %.1f (round %d)\n", r.Rank, r.TeamName, marker, r.Score, r.RoundNumber)
	}
	if rank > 0 {
		fmt.Fprintf(&b, "\nYour current rank: %d of %d.\n", rank, total)
	}
	b.WriteString("\nProduce an improved submission for the task. Beat your best score and aim for the top of the leaderboard.\n")
	return b.String(), nil
}

const truncationMarker = "\n... [truncated] ...\n"

// truncateMiddle keeps the head and tail of s within max characters. Best
// effort compression for prompt assembly, nothing downstream depends on the
// exact cut.
func truncateMiddle(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	keep := max - len(truncationMarker)
	if keep < 2 {
		return s[:max]
	}
	head := keep / 2
	tail := keep - head
	return s[:head] + truncationMarker + s[len(s)-tail:]
}
