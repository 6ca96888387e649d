package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ostraka/arena/internal/arena"
	"github.com/ostraka/arena/internal/retry"
)

func TestParseJudgment(t *testing.T) {
	j, err := ParseJudgment(`{"should_continue": true, "reasoning": "scores still climbing", "confidence_score": 0.8}`)
	if err != nil {
		t.Fatalf("ParseJudgment: %v", err)
	}
	if !j.ShouldContinue || j.Confidence != 0.8 {
		t.Errorf("unexpected judgment: %+v", j)
	}
}

func TestParseJudgmentFenced(t *testing.T) {
	j, err := ParseJudgment("```json\n{\"should_continue\": false, \"reasoning\": \"plateau\", \"confidence_score\": 0.9}\n```")
	if err != nil {
		t.Fatalf("ParseJudgment: %v", err)
	}
	if j.ShouldContinue {
		t.Error("should_continue: got true, want false")
	}
}

func TestParseJudgmentShapeViolations(t *testing.T) {
	cases := map[string]string{
		"not json":            "improvement seems unlikely",
		"missing decision":    `{"reasoning": "x", "confidence_score": 0.5}`,
		"missing confidence":  `{"should_continue": true, "reasoning": "x"}`,
		"confidence too high": `{"should_continue": true, "reasoning": "x", "confidence_score": 1.5}`,
		"confidence negative": `{"should_continue": true, "reasoning": "x", "confidence_score": -0.1}`,
	}
	for name, content := range cases {
		if _, err := ParseJudgment(content); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func testClient(url string) *Client {
	c := NewClient(url, "test-model", 256, zerolog.Nop())
	c.policy = retry.Policy{Attempts: 3, Base: time.Millisecond}
	return c
}

func TestJudgeCallShape(t *testing.T) {
	var gotReq map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		fmt.Fprint(w, chatResponse(`{"should_continue": true, "reasoning": "room to improve", "confidence_score": 0.7}`))
	}))
	defer srv.Close()

	j, err := testClient(srv.URL).Judge(context.Background(), &Request{
		UserPrompt: "summarize the paper",
		History: []arena.LeaderBoardEntry{
			{RoundNumber: 1, Score: 60, ScoreDetails: arena.ScoreDetails{Feedback: "too long"}},
		},
		MaxRounds: 5,
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if !j.ShouldContinue {
		t.Error("should_continue: got false, want true")
	}
	if gotReq["temperature"] != float64(0) {
		t.Errorf("temperature: got %v, want 0", gotReq["temperature"])
	}
	if gotReq["model"] != "test-model" {
		t.Errorf("model: got %v", gotReq["model"])
	}
	if gotReq["max_tokens"] != float64(256) {
		t.Errorf("max_tokens: got %v", gotReq["max_tokens"])
	}
}

func TestJudgeRetriesMalformedOutput(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, chatResponse("I think they should keep going!"))
			return
		}
		fmt.Fprint(w, chatResponse(`{"should_continue": false, "reasoning": "plateau", "confidence_score": 0.95}`))
	}))
	defer srv.Close()

	j, err := testClient(srv.URL).Judge(context.Background(), &Request{UserPrompt: "p", MaxRounds: 5})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
	if j.ShouldContinue {
		t.Error("should_continue: got true, want false")
	}
}

func TestJudgeExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Judge(context.Background(), &Request{UserPrompt: "p", MaxRounds: 5})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestJudgeRejectsOutOfRangeConfidence(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, chatResponse(`{"should_continue": true, "reasoning": "x", "confidence_score": 2.0}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Judge(context.Background(), &Request{UserPrompt: "p", MaxRounds: 5})
	if err == nil {
		t.Fatal("expected error for out-of-range confidence")
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3 (shape violations are retried)", calls)
	}
}
