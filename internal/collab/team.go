// Package collab holds the contracts for the external collaborators the
// round engine consumes: the Team that produces submissions and the
// Evaluator that scores them. How either works internally is its own
// business; only the boundary is specified here.
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

// Team turns a prompt into a candidate answer. The caller bounds the call
// with the submission timeout via ctx; implementations must respect
// cancellation.
type Team interface {
	Submit(ctx context.Context, prompt string) (*arena.Submission, error)
}

// HTTPTeam submits over a plain JSON POST endpoint.
type HTTPTeam struct {
	URL    string
	Client *http.Client
}

func NewHTTPTeam(url string) *HTTPTeam {
	return &HTTPTeam{URL: strings.TrimSuffix(url, "/"), Client: http.DefaultClient}
}

func (t *HTTPTeam) Submit(ctx context.Context, prompt string) (*arena.Submission, error) {
	body, _ := json.Marshal(map[string]string{"prompt": prompt})
	req, err := http.NewRequestWithContext(ctx, "POST", t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("team endpoint returned %d", resp.StatusCode)
	}

	var sub arena.Submission
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("parsing submission: %w", err)
	}
	if sub.Content == "" {
		return nil, fmt.Errorf("empty submission content")
	}
	if sub.Format == "" {
		sub.Format = "md"
	}
	return &sub, nil
}
