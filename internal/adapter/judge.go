package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xiaopang/compareai/internal/config"
	"github.com/xiaopang/compareai/internal/model"
)

// judgeSystemPrompt 评审模型的固定评分标准
const judgeSystemPrompt = `You are an expert AI evaluator.

Score the response accuracy compared to the prompt.

Score from 0 to 10.

Rules:
- 10 = perfect, correct, complete
- 7-9 = mostly correct
- 4-6 = partially correct
- 1-3 = mostly wrong
- 0 = completely wrong

Return ONLY the number.
No explanation.
No text.`

var numberPattern = regexp.MustCompile(`[0-9]+(\.[0-9]+)?`)

// Judge 准确性评审：用一个模型给另一个模型的回答打分
//
// Score 返回 [0,10] 内的分数；任何失败（HTTP 错误、无数字内容）
// 都返回 error，由调用方决定回退策略。
type Judge struct {
	endpoint string
	apiKey   string
	judgeMdl string
	client   *http.Client
}

// NewJudge 按配置创建评审
func NewJudge(cfg config.JudgeConfig) *Judge {
	return &Judge{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey(),
		judgeMdl: cfg.Model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Score 对 (prompt, response) 打分，结果收缩到 [0,10]
func (j *Judge) Score(ctx context.Context, prompt, response string) (float64, error) {
	temperature := 0.0
	body, _ := json.Marshal(model.ChatRequest{
		Model:       j.judgeMdl,
		Temperature: &temperature,
		MaxTokens:   10,
		Messages: []model.ChatMessage{
			{Role: "system", Content: judgeSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("PROMPT:\n%s\n\nRESPONSE:\n%s\n\nACCURACY SCORE:", prompt, response)},
		},
	})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", j.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if j.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+j.apiKey)
	}

	resp, err := j.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("judge status %d: %s", resp.StatusCode, string(errBody))
	}

	var chatResp model.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return 0, err
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message == nil {
		return 0, fmt.Errorf("judge returned no choices")
	}

	return ParseScore(chatResp.Choices[0].Message.Content)
}

// ParseScore 从评审回复中提取第一个数字并收缩到 [0,10]
func ParseScore(raw string) (float64, error) {
	match := numberPattern.FindString(strings.TrimSpace(raw))
	if match == "" {
		return 0, fmt.Errorf("judge reply has no numeric score: %q", raw)
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, err
	}
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score, nil
}
