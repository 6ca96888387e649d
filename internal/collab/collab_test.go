package collab_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ostraka/arena/internal/arena"
	"github.com/ostraka/arena/internal/collab"
)

func TestHTTPTeamSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["prompt"] != "write a limerick" {
			t.Errorf("prompt: got %q", req["prompt"])
		}
		fmt.Fprint(w, `{"content": "there once was...", "format": "md"}`)
	}))
	defer srv.Close()

	sub, err := collab.NewHTTPTeam(srv.URL).Submit(context.Background(), "write a limerick")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Content != "there once was..." {
		t.Errorf("content: got %q", sub.Content)
	}
}

func TestHTTPTeamDefaultsFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": "hi"}`)
	}))
	defer srv.Close()

	sub, err := collab.NewHTTPTeam(srv.URL).Submit(context.Background(), "p")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Format != "md" {
		t.Errorf("format: got %q, want md", sub.Format)
	}
}

func TestHTTPTeamRejectsEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": ""}`)
	}))
	defer srv.Close()

	if _, err := collab.NewHTTPTeam(srv.URL).Submit(context.Background(), "p"); err == nil {
		t.Fatal("expected error for empty submission")
	}
}

func TestHTTPTeamNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := collab.NewHTTPTeam(srv.URL).Submit(context.Background(), "p"); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestHTTPEvaluator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["query"] != "the task" || req["submission"] != "the answer" {
			t.Errorf("unexpected request: %v", req)
		}
		fmt.Fprint(w, `{"score": 87.5, "details": {"accuracy": 90}, "feedback": "solid"}`)
	}))
	defer srv.Close()

	result, err := collab.NewHTTPEvaluator(srv.URL).Evaluate(context.Background(), "the task",
		&arena.Submission{Content: "the answer", Format: "md"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Score != 87.5 || result.Feedback != "solid" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestHTTPEvaluatorRejectsOutOfRangeScore(t *testing.T) {
	for _, score := range []string{"101", "-3"} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"score": %s, "details": {}, "feedback": ""}`, score)
		}))
		if _, err := collab.NewHTTPEvaluator(srv.URL).Evaluate(context.Background(), "q",
			&arena.Submission{Content: "x"}); err == nil {
			t.Errorf("score %s: expected rejection, got nil", score)
		}
		srv.Close()
	}
}
