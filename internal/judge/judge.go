// Package judge decides whether another round is likely to improve a team's
// score. The decision is a single structured-output chat completion against
// an OpenAI-compatible endpoint, wrapped in the fixed retry policy.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ostraka/arena/internal/arena"
	"github.com/ostraka/arena/internal/retry"
)

// Request carries everything the judge sees: the original task and the
// team's full scored history so far.
type Request struct {
	UserPrompt string
	History    []arena.LeaderBoardEntry
	MaxRounds  int
}

// Judge is the continuation-judgment contract. Implementations must be safe
// to call once per round from a single goroutine.
type Judge interface {
	Judge(ctx context.Context, req *Request) (*arena.ImprovementJudgment, error)
}

// Client calls a chat completions endpoint with temperature 0 and bounded
// output tokens. Transport errors and responses that fail shape validation
// both count as retryable failures.
type Client struct {
	url       string
	model     string
	maxTokens int
	httpc     *http.Client
	policy    retry.Policy
	log       zerolog.Logger
}

func NewClient(url, model string, maxTokens int, logger zerolog.Logger) *Client {
	return &Client{
		url:       strings.TrimSuffix(url, "/"),
		model:     model,
		maxTokens: maxTokens,
		httpc:     http.DefaultClient,
		policy:    retry.Default(),
		log:       logger,
	}
}

func (c *Client) Judge(ctx context.Context, req *Request) (*arena.ImprovementJudgment, error) {
	prompt := buildPrompt(req)

	var judgment *arena.ImprovementJudgment
	attempt := 0
	err := c.policy.Do(ctx, func() error {
		attempt++
		j, err := c.callOnce(ctx, prompt)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("continuation judgment failed")
			return err
		}
		judgment = j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("continuation judgment: %w", err)
	}
	return judgment, nil
}

func buildPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString("You are judging whether a competing team should attempt another round on this task.\n\n")
	b.WriteString("Task:\n")
	b.WriteString(req.UserPrompt)
	b.WriteString("\n\nScore history (oldest first):\n")
	for _, e := range req.History {
		fmt.Fprintf(&b, "- round %d: score %.1f", e.RoundNumber, e.Score)
		if fb := e.ScoreDetails.Feedback; fb != "" {
			fmt.Fprintf(&b, ", feedback: %s", fb)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nThe team has used %d of at most %d rounds.\n", len(req.History), req.MaxRounds)
	b.WriteString(`
Decide whether another round is likely to improve the score. Respond with ONLY a JSON object:
{"should_continue": true, "reasoning": "...", "confidence_score": 0.8}
confidence_score must be between 0.0 and 1.0.`)
	return b.String()
}

func (c *Client) callOnce(ctx context.Context, prompt string) (*arena.ImprovementJudgment, error) {
	reqBody := map[string]interface{}{
		"model":       c.model,
		"temperature": 0,
		"max_tokens":  c.maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	bodyBytes, _ := json.Marshal(reqBody)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, fmt.Errorf("judge endpoint returned %d: %v", resp.StatusCode, errBody)
	}

	var chatResult struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResult); err != nil {
		return nil, err
	}
	if len(chatResult.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return ParseJudgment(chatResult.Choices[0].Message.Content)
}

// ParseJudgment extracts an ImprovementJudgment from model output, tolerating
// markdown code fences. Shape violations (missing fields, confidence outside
// [0,1]) are errors, never silent defaults.
func ParseJudgment(content string) (*arena.ImprovementJudgment, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw struct {
		ShouldContinue *bool    `json:"should_continue"`
		Reasoning      string   `json:"reasoning"`
		Confidence     *float64 `json:"confidence_score"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parsing judgment: %w", err)
	}
	if raw.ShouldContinue == nil {
		return nil, fmt.Errorf("judgment missing should_continue")
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("judgment missing confidence_score")
	}
	if *raw.Confidence < 0 || *raw.Confidence > 1 {
		return nil, fmt.Errorf("confidence_score %.3f outside [0,1]", *raw.Confidence)
	}
	return &arena.ImprovementJudgment{
		ShouldContinue: *raw.ShouldContinue,
		Reasoning:      raw.Reasoning,
		Confidence:     *raw.Confidence,
	}, nil
}
