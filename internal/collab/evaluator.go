package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ostraka/arena/internal/arena"
)

// Evaluator grades a submission against the original query, returning a
// score in [0,100] with a structured breakdown and free-text feedback.
type Evaluator interface {
	Evaluate(ctx context.Context, query string, sub *arena.Submission) (*arena.EvaluationResult, error)
}

// HTTPEvaluator calls a JSON scoring endpoint. Scores outside [0,100] are
// rejected as errors, never clamped; the caller's retry policy decides what
// happens next.
type HTTPEvaluator struct {
	URL    string
	Client *http.Client
}

func NewHTTPEvaluator(url string) *HTTPEvaluator {
	return &HTTPEvaluator{URL: strings.TrimSuffix(url, "/"), Client: http.DefaultClient}
}

func (e *HTTPEvaluator) Evaluate(ctx context.Context, query string, sub *arena.Submission) (*arena.EvaluationResult, error) {
	body, _ := json.Marshal(map[string]string{
		"query":      query,
		"submission": sub.Content,
		"format":     sub.Format,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", e.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("evaluator endpoint returned %d", resp.StatusCode)
	}

	var result arena.EvaluationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing evaluation: %w", err)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}
