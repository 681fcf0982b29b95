package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xiaopang/compareai/internal/adapter"
	"github.com/xiaopang/compareai/internal/config"
	"github.com/xiaopang/compareai/internal/core"
	"github.com/xiaopang/compareai/internal/store"
)

// fixedAdapter 固定响应的后端替身
type fixedAdapter struct {
	fragments []string
}

func (a *fixedAdapter) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(tokens)
		for _, f := range a.fragments {
			select {
			case tokens <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return tokens, errs
}

// stubJudge 固定分数的评审替身
type stubJudge struct {
	score float64
	err   error
}

func (j *stubJudge) Score(ctx context.Context, prompt, response string) (float64, error) {
	return j.score, j.err
}

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		WindowSeconds:      60,
		MaxRequests:        10,
		DailyTokenBudget:   10000,
		DailyCostBudget:    0.05,
		TaskTimeoutSeconds: 30,
	}
}

// newTestRouter 构建带替身后端的完整路由
func newTestRouter(t *testing.T, limits config.LimitsConfig, judge core.Judge) (*gin.Engine, *core.Gate) {
	t.Helper()

	registry := adapter.NewRegistry()
	registry.Register("groq", &fixedAdapter{fragments: []string{"Paris", " is", " the", " capital."}})
	registry.Register("aurora", &fixedAdapter{fragments: []string{"The capital of France is Paris."}})

	cfg := &config.Config{
		Limits: limits,
		Models: []config.ModelConfig{
			{ID: "groq", Provider: "groq", CostPerToken: 0.000002, Enabled: true},
			{ID: "aurora", Provider: "openrouter", CostPerToken: 0.0000015, Enabled: true},
		},
	}

	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gate := core.NewGate(limits)
	t.Cleanup(gate.Stop)

	orch := core.NewOrchestrator(registry, judge, gate, db, cfg)
	monitor := core.NewMonitor(cfg.Models)

	r := SetupRouter(
		NewStreamHandler(orch, judge),
		NewSystemHandler(monitor),
		NewAdminHandler(db),
	)
	return r, gate
}

func postJSON(r *gin.Engine, path, body, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// parseNDJSON 把响应体按行解析成事件列表
func parseNDJSON(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line is not valid JSON: %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []map[string]any) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i], _ = ev["type"].(string)
	}
	return types
}

// --------------- /ai/compare ---------------

func TestCompareEndpoint_StreamsNDJSON(t *testing.T) {
	r, _ := newTestRouter(t, testLimits(), &stubJudge{score: 8})

	w := postJSON(r, "/ai/compare",
		`{"prompt":"What is the capital of France?","models":["groq","aurora"]}`,
		"10.0.0.1:1234")

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Fatalf("expected X-Accel-Buffering no, got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("expected Cache-Control no-cache, got %q", got)
	}

	events := parseNDJSON(t, w.Body.String())
	types := eventTypes(events)

	if types[0] != "compare-start" {
		t.Fatalf("first event should be compare-start, got %q", types[0])
	}
	if types[len(types)-1] != "usage-update" {
		t.Fatalf("last event should be usage-update, got %q", types[len(types)-1])
	}
	if types[len(types)-2] != "compare-complete" {
		t.Fatalf("second-to-last should be compare-complete, got %q", types[len(types)-2])
	}

	completes := 0
	for _, ev := range events {
		if ev["type"] == "model-complete" {
			completes++
			if ev["success"] != true {
				t.Fatalf("expected successful settlement: %v", ev)
			}
		}
	}
	if completes != 2 {
		t.Fatalf("expected 2 model-complete events, got %d", completes)
	}
}

func TestCompareEndpoint_InvalidBody(t *testing.T) {
	r, _ := newTestRouter(t, testLimits(), &stubJudge{score: 8})

	w := postJSON(r, "/ai/compare", `{not json`, "10.0.0.1:1234")
	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body should be JSON: %v", err)
	}
	if resp["error"] != "Invalid request body" {
		t.Fatalf("unexpected error message: %q", resp["error"])
	}
}

func TestCompareEndpoint_ValidationRejects(t *testing.T) {
	r, _ := newTestRouter(t, testLimits(), &stubJudge{score: 8})

	tests := []struct {
		name string
		body string
	}{
		{"empty prompt", `{"prompt":"","models":["groq"]}`},
		{"no models", `{"prompt":"hi","models":[]}`},
		{"unknown model", `{"prompt":"hi","models":["ghost"]}`},
	}

	for _, tt := range tests {
		w := postJSON(r, "/ai/compare", tt.body, "10.0.0.2:1234")
		if w.Code != 400 {
			t.Fatalf("%s: expected 400, got %d", tt.name, w.Code)
		}
		// 校验失败不得产生任何事件行
		if strings.Contains(w.Body.String(), "compare-start") {
			t.Fatalf("%s: validation failure must not emit events", tt.name)
		}
	}
}

func TestCompareEndpoint_RateLimited(t *testing.T) {
	limits := testLimits()
	limits.MaxRequests = 1
	r, _ := newTestRouter(t, limits, &stubJudge{score: 8})

	body := `{"prompt":"hi there","models":["groq"]}`
	if w := postJSON(r, "/ai/compare", body, "10.0.0.3:1234"); w.Code != 200 {
		t.Fatalf("first request should pass, got %d", w.Code)
	}

	w := postJSON(r, "/ai/compare", body, "10.0.0.3:1234")
	if w.Code != 429 {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("429 must carry Retry-After")
	}
	if !strings.Contains(w.Body.String(), "Too many requests") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	// 其他来源不受影响
	if w := postJSON(r, "/ai/compare", body, "10.0.0.4:1234"); w.Code != 200 {
		t.Fatalf("other client should pass, got %d", w.Code)
	}
}

func TestCompareEndpoint_QuotaExceeded(t *testing.T) {
	r, gate := newTestRouter(t, testLimits(), &stubJudge{score: 8})
	gate.AddUsage("10.0.0.5", 10000, 0, time.Now())

	w := postJSON(r, "/ai/compare",
		`{"prompt":"hi there","models":["groq"]}`, "10.0.0.5:1234")
	if w.Code != 429 {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "86400" {
		t.Fatalf("expected Retry-After 86400, got %q", got)
	}
	if !strings.Contains(w.Body.String(), "Daily usage limit reached") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

// --------------- /ai/query-stream ---------------

func TestQueryStreamEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, testLimits(), &stubJudge{score: 8})

	w := postJSON(r, "/ai/query-stream",
		`{"prompt":"What is the capital of France?","model":"aurora"}`,
		"10.0.0.6:1234")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	types := eventTypes(parseNDJSON(t, w.Body.String()))
	if types[0] != "start" {
		t.Fatalf("first event should be start, got %q", types[0])
	}
	if types[len(types)-1] != "complete" {
		t.Fatalf("last event should be complete, got %q", types[len(types)-1])
	}
	for _, typ := range types[1 : len(types)-1] {
		if typ != "token" {
			t.Fatalf("middle events should be tokens, got %q", typ)
		}
	}
}

// --------------- /ai/judge-test ---------------

func TestJudgeTestEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, testLimits(), &stubJudge{score: 9.5})

	req := httptest.NewRequest("GET", "/ai/judge-test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]float64
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp["score"] != 9.5 {
		t.Fatalf("expected score 9.5, got %v", resp["score"])
	}
}

// --------------- 系统端点 ---------------

func TestSystemEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, testLimits(), &stubJudge{score: 8})

	for _, path := range []string{"/", "/health", "/ready", "/version"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != 200 {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: body should be JSON: %v", path, err)
		}
	}
}

// --------------- 统计端点 ---------------

func TestAdminEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, testLimits(), &stubJudge{score: 8})

	// 先产生一条结算记录
	postJSON(r, "/ai/compare",
		`{"prompt":"What is the capital of France?","models":["groq"]}`,
		"10.0.0.7:1234")

	req := httptest.NewRequest("GET", "/api/logs?model=groq", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("logs: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var logsResp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &logsResp); err != nil {
		t.Fatalf("bad logs body: %v", err)
	}
	if logsResp.Count != 1 {
		t.Fatalf("expected 1 log entry, got %d", logsResp.Count)
	}

	req = httptest.NewRequest("GET", "/api/stats?days=3", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("stats: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// --------------- CORS ---------------

func TestCORSPreflights(t *testing.T) {
	r, _ := newTestRouter(t, testLimits(), &stubJudge{score: 8})

	req := httptest.NewRequest(http.MethodOptions, "/ai/compare", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 204 {
		t.Fatalf("preflight should return 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("preflight should allow all origins")
	}
}
