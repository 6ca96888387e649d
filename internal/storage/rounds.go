package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ostraka/arena/internal/arena"
)

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

const upsertRoundStatus = `
INSERT INTO round_status (
	execution_id, team_id, team_name, round_number,
	should_continue, reasoning, confidence_score,
	round_started_at, round_ended_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (execution_id, team_id, round_number) DO UPDATE SET
	team_name        = excluded.team_name,
	should_continue  = excluded.should_continue,
	reasoning        = excluded.reasoning,
	confidence_score = excluded.confidence_score,
	round_started_at = excluded.round_started_at,
	round_ended_at   = excluded.round_ended_at,
	updated_at       = excluded.updated_at`

const upsertLeaderBoard = `
INSERT INTO leader_board (
	execution_id, team_id, team_name, round_number,
	submission_content, submission_format, score, score_details,
	final_submission, exit_reason, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (execution_id, team_id, round_number) DO UPDATE SET
	team_name          = excluded.team_name,
	submission_content = excluded.submission_content,
	submission_format  = excluded.submission_format,
	score              = excluded.score,
	score_details      = excluded.score_details,
	final_submission   = excluded.final_submission,
	exit_reason        = excluded.exit_reason,
	updated_at         = excluded.updated_at`

func execRoundStatus(tx *sql.Tx, rs *arena.RoundStatus, now time.Time) error {
	var cont interface{}
	if rs.ShouldContinue != nil {
		if *rs.ShouldContinue {
			cont = 1
		} else {
			cont = 0
		}
	}
	var ended interface{}
	if !rs.RoundEndedAt.IsZero() {
		ended = fmtTime(rs.RoundEndedAt)
	}
	_, err := tx.Exec(upsertRoundStatus,
		rs.ExecutionID, rs.TeamID, rs.TeamName, rs.RoundNumber,
		cont, rs.Reasoning, rs.Confidence,
		fmtTime(rs.RoundStartedAt), ended, fmtTime(now), fmtTime(now))
	return err
}

func execLeaderBoard(tx *sql.Tx, e *arena.LeaderBoardEntry, now time.Time) error {
	format := e.SubmissionFormat
	if format == "" {
		format = "md"
	}
	details, err := json.Marshal(e.ScoreDetails)
	if err != nil {
		return fmt.Errorf("encoding score details: %w", err)
	}
	var exitReason interface{}
	if e.ExitReason != "" {
		exitReason = e.ExitReason
	}
	final := 0
	if e.FinalSubmission {
		final = 1
	}
	_, err = tx.Exec(upsertLeaderBoard,
		e.ExecutionID, e.TeamID, e.TeamName, e.RoundNumber,
		e.SubmissionContent, format, e.Score, string(details),
		final, exitReason, fmtTime(now), fmtTime(now))
	return err
}

// WriteRoundStatus upserts one round_status row. Writing the same
// (execution_id, team_id, round_number) again overwrites the judgment
// fields, so a retried write after a timeout is safe to repeat.
func (s *Store) WriteRoundStatus(ctx context.Context, rs *arena.RoundStatus) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return execRoundStatus(tx, rs, time.Now())
	})
}

// WriteLeaderBoardEntry upserts one leader_board row.
func (s *Store) WriteLeaderBoardEntry(ctx context.Context, e *arena.LeaderBoardEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return execLeaderBoard(tx, e, time.Now())
	})
}

// WriteRound persists a round's status and scored submission in a single
// transaction, so a crash after evaluation never leaves one without the
// other.
func (s *Store) WriteRound(ctx context.Context, rs *arena.RoundStatus, e *arena.LeaderBoardEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		if err := execRoundStatus(tx, rs, now); err != nil {
			return err
		}
		return execLeaderBoard(tx, e, now)
	})
}

const selectEntry = `
SELECT execution_id, team_id, team_name, round_number,
       submission_content, submission_format, score, score_details,
       final_submission, exit_reason, created_at, updated_at
FROM leader_board `

func scanEntry(rows interface{ Scan(...interface{}) error }) (*arena.LeaderBoardEntry, error) {
	var e arena.LeaderBoardEntry
	var details string
	var final int
	var exitReason sql.NullString
	var createdAt, updatedAt string
	err := rows.Scan(&e.ExecutionID, &e.TeamID, &e.TeamName, &e.RoundNumber,
		&e.SubmissionContent, &e.SubmissionFormat, &e.Score, &details,
		&final, &exitReason, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(details), &e.ScoreDetails); err != nil {
		return nil, fmt.Errorf("decoding score details: %w", err)
	}
	e.FinalSubmission = final != 0
	e.ExitReason = exitReason.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// SubmissionHistory returns every scored round for one team, oldest first.
func (s *Store) SubmissionHistory(ctx context.Context, executionID, teamID string) ([]arena.LeaderBoardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEntry+`WHERE execution_id = ? AND team_id = ? ORDER BY round_number`,
		executionID, teamID)
	if err != nil {
		return nil, fmt.Errorf("querying submission history: %w", err)
	}
	defer rows.Close()

	var entries []arena.LeaderBoardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning submission history: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// RoundStatuses returns every attempted round for one team, oldest first.
// Unlike SubmissionHistory this includes rounds whose submission failed.
func (s *Store) RoundStatuses(ctx context.Context, executionID, teamID string) ([]arena.RoundStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT execution_id, team_id, team_name, round_number,
       should_continue, reasoning, confidence_score,
       round_started_at, round_ended_at, created_at, updated_at
FROM round_status
WHERE execution_id = ? AND team_id = ?
ORDER BY round_number`, executionID, teamID)
	if err != nil {
		return nil, fmt.Errorf("querying round statuses: %w", err)
	}
	defer rows.Close()

	var statuses []arena.RoundStatus
	for rows.Next() {
		var rs arena.RoundStatus
		var cont sql.NullInt64
		var started string
		var ended sql.NullString
		var createdAt, updatedAt string
		err := rows.Scan(&rs.ExecutionID, &rs.TeamID, &rs.TeamName, &rs.RoundNumber,
			&cont, &rs.Reasoning, &rs.Confidence,
			&started, &ended, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning round status: %w", err)
		}
		if cont.Valid {
			v := cont.Int64 != 0
			rs.ShouldContinue = &v
		}
		rs.RoundStartedAt = parseTime(started)
		if ended.Valid {
			rs.RoundEndedAt = parseTime(ended.String)
		}
		rs.CreatedAt = parseTime(createdAt)
		rs.UpdatedAt = parseTime(updatedAt)
		statuses = append(statuses, rs)
	}
	return statuses, rows.Err()
}

// Ranking returns each team's best entry for an execution, ordered by score
// descending with later rounds winning ties. limit <= 0 means no limit.
func (s *Store) Ranking(ctx context.Context, executionID string, limit int) ([]arena.RankedTeam, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT team_id, team_name, score, round_number FROM (
	SELECT team_id, team_name, score, round_number,
	       ROW_NUMBER() OVER (
	           PARTITION BY team_id
	           ORDER BY score DESC, round_number DESC
	       ) AS rn
	FROM leader_board
	WHERE execution_id = ?
)
WHERE rn = 1
ORDER BY score DESC, round_number DESC
LIMIT ?`, executionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ranking: %w", err)
	}
	defer rows.Close()

	var ranking []arena.RankedTeam
	for rows.Next() {
		var r arena.RankedTeam
		if err := rows.Scan(&r.TeamID, &r.TeamName, &r.Score, &r.RoundNumber); err != nil {
			return nil, fmt.Errorf("scanning ranking: %w", err)
		}
		r.Rank = len(ranking) + 1
		ranking = append(ranking, r)
	}
	return ranking, rows.Err()
}

// TeamRank returns a team's position in the current ranking and the number
// of ranked teams. Rank 0 means the team has no scored rounds yet.
func (s *Store) TeamRank(ctx context.Context, executionID, teamID string) (rank, total int, err error) {
	ranking, err := s.Ranking(ctx, executionID, 0)
	if err != nil {
		return 0, 0, err
	}
	for _, r := range ranking {
		if r.TeamID == teamID {
			rank = r.Rank
		}
	}
	return rank, len(ranking), nil
}

// FinalizeBest marks a team's best round as its final submission and stamps
// the exit reason. Best means highest score; among equal scores the later
// round wins. Any previously-set final flag for the team is cleared first,
// so at most one row per team ever carries it.
func (s *Store) FinalizeBest(ctx context.Context, executionID, teamID, exitReason string) (*arena.LeaderBoardEntry, error) {
	var final *arena.LeaderBoardEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(
			selectEntry+`WHERE execution_id = ? AND team_id = ?
ORDER BY score DESC, round_number DESC
LIMIT 1`, executionID, teamID)
		e, err := scanEntry(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("no scored rounds for team %s", teamID)
		}
		if err != nil {
			return err
		}
		now := fmtTime(time.Now())
		if _, err := tx.Exec(`
UPDATE leader_board SET final_submission = 0, updated_at = ?
WHERE execution_id = ? AND team_id = ? AND final_submission = 1`,
			now, executionID, teamID); err != nil {
			return err
		}
		if _, err := tx.Exec(`
UPDATE leader_board SET final_submission = 1, exit_reason = ?, updated_at = ?
WHERE execution_id = ? AND team_id = ? AND round_number = ?`,
			exitReason, now, executionID, teamID, e.RoundNumber); err != nil {
			return err
		}
		e.FinalSubmission = true
		e.ExitReason = exitReason
		final = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

// ExecutionInfo is one line of the executions listing.
type ExecutionInfo struct {
	ExecutionID string
	Teams       int
	Rounds      int
	BestScore   float64
	StartedAt   time.Time
}

// Executions lists recorded executions, most recent first.
func (s *Store) Executions(ctx context.Context) ([]ExecutionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT execution_id, COUNT(DISTINCT team_id), COUNT(*), MAX(score), MIN(created_at)
FROM leader_board
GROUP BY execution_id
ORDER BY MIN(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var infos []ExecutionInfo
	for rows.Next() {
		var info ExecutionInfo
		var started string
		if err := rows.Scan(&info.ExecutionID, &info.Teams, &info.Rounds, &info.BestScore, &started); err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		info.StartedAt = parseTime(started)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// FinalEntries returns the final submission of every team that finalized in
// an execution, best first.
func (s *Store) FinalEntries(ctx context.Context, executionID string) ([]arena.LeaderBoardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEntry+`WHERE execution_id = ? AND final_submission = 1
ORDER BY score DESC, round_number DESC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("querying final entries: %w", err)
	}
	defer rows.Close()

	var entries []arena.LeaderBoardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning final entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
