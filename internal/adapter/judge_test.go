package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xiaopang/compareai/internal/config"
	"github.com/xiaopang/compareai/internal/model"
)

func judgeReply(content string) string {
	b, _ := json.Marshal(model.ChatResponse{
		Choices: []model.ChatChoice{
			{Message: &model.ChatMessage{Role: "assistant", Content: content}},
		},
	})
	return string(b)
}

func newTestJudge(endpoint string) *Judge {
	return NewJudge(config.JudgeConfig{
		Endpoint: endpoint,
		Model:    "llama-3.1-8b-instant",
	})
}

// --------------- Score 测试 ---------------

func TestJudge_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Temperature == nil || *req.Temperature != 0 {
			t.Error("judge must request temperature 0")
		}
		if req.MaxTokens != 10 {
			t.Errorf("judge must cap at 10 tokens, got %d", req.MaxTokens)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Error("judge must send system + user messages")
		}
		fmt.Fprint(w, judgeReply("8"))
	}))
	defer srv.Close()

	score, err := newTestJudge(srv.URL).Score(context.Background(), "prompt", "response")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 8 {
		t.Fatalf("expected score 8, got %v", score)
	}
}

func TestJudge_ScoreHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	if _, err := newTestJudge(srv.URL).Score(context.Background(), "p", "r"); err == nil {
		t.Fatal("expected error on judge HTTP failure")
	}
}

func TestJudge_ScoreEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	if _, err := newTestJudge(srv.URL).Score(context.Background(), "p", "r"); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

// --------------- ParseScore 测试 ---------------

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"8", 8},
		{"7.5", 7.5},
		{" 9 \n", 9},
		{"Score: 6.5/10", 6.5},
		{"I would rate this 3 out of 10", 3},
		{"0", 0},
		{"10", 10},
		{"42", 10},    // 超出上界收缩
		{"15.8", 10},  // 超出上界收缩
		{"0.001", 0.001},
	}

	for _, tt := range tests {
		got, err := ParseScore(tt.raw)
		if err != nil {
			t.Fatalf("ParseScore(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseScore(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseScore_NoNumber(t *testing.T) {
	for _, raw := range []string{"", "excellent", "N/A", "no score"} {
		if _, err := ParseScore(raw); err == nil {
			t.Fatalf("ParseScore(%q) should fail", raw)
		}
	}
}
