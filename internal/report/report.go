package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ostraka/arena/internal/arena"
	"github.com/ostraka/arena/internal/storage"
)

// TeamStanding is one line of an execution's final standings.
type TeamStanding struct {
	Rank       int     `json:"rank"`
	TeamID     string  `json:"team_id"`
	TeamName   string  `json:"team_name"`
	Score      float64 `json:"score"`
	Round      int     `json:"round"`
	RoundsUsed int     `json:"rounds_used"`
	ExitReason string  `json:"exit_reason"`
}

// Generate renders the standings of one recorded execution. An empty
// executionID selects the most recent one.
func Generate(ctx context.Context, store *storage.Store, executionID, format string, w io.Writer) error {
	if executionID == "" {
		execs, err := store.Executions(ctx)
		if err != nil {
			return err
		}
		if len(execs) == 0 {
			return fmt.Errorf("no executions recorded")
		}
		executionID = execs[0].ExecutionID
	}

	entries, err := store.FinalEntries(ctx, executionID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no finalized teams for execution %s", executionID)
	}

	standings := make([]TeamStanding, 0, len(entries))
	for i, e := range entries {
		statuses, err := store.RoundStatuses(ctx, executionID, e.TeamID)
		if err != nil {
			return err
		}
		standings = append(standings, TeamStanding{
			Rank:       i + 1,
			TeamID:     e.TeamID,
			TeamName:   e.TeamName,
			Score:      e.Score,
			Round:      e.RoundNumber,
			RoundsUsed: len(statuses),
			ExitReason: e.ExitReason,
		})
	}

	fmt.Fprintf(w, "Execution %s\n\n", executionID)
	switch format {
	case "markdown":
		return writeMarkdown(standings, w)
	case "json":
		return writeJSON(standings, w)
	default:
		return writeTable(standings, w)
	}
}

func writeTable(standings []TeamStanding, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTEAM\tSCORE\tBEST ROUND\tROUNDS USED\tEXIT REASON")
	fmt.Fprintln(tw, strings.Repeat("-", 72))
	for _, s := range standings {
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%d\t%d\t%s\n",
			s.Rank, s.TeamName, s.Score, s.Round, s.RoundsUsed, s.ExitReason)
	}
	return tw.Flush()
}

func writeMarkdown(standings []TeamStanding, w io.Writer) error {
	fmt.Fprintln(w, "| Rank | Team | Score | Best Round | Rounds Used | Exit Reason |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|")
	for _, s := range standings {
		fmt.Fprintf(w, "| %d | %s | %.1f | %d | %d | %s |\n",
			s.Rank, s.TeamName, s.Score, s.Round, s.RoundsUsed, s.ExitReason)
	}
	return nil
}

func writeJSON(standings []TeamStanding, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(standings)
}

// WriteSummary prints the live result of a finished execution, failed teams
// included.
func WriteSummary(summary *arena.ExecutionSummary, w io.Writer) error {
	fmt.Fprintf(w, "Execution %s finished in %s: %d/%d teams completed\n\n",
		summary.ExecutionID, summary.Elapsed.Round(10*time.Millisecond), summary.CompletedTeams(), summary.TotalTeams())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEAM\tSCORE\tROUND\tEXIT REASON")
	for _, e := range summary.Entries {
		marker := ""
		if e.TeamID == summary.BestTeamID {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%.1f\t%d\t%s\n", e.TeamName, marker, e.Score, e.RoundNumber, e.ExitReason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, f := range summary.FailedTeams {
		fmt.Fprintf(w, "FAILED: %s (%s)\n", f.TeamName, f.Reason)
	}
	return nil
}
