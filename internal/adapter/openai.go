package adapter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"context"

	"github.com/xiaopang/compareai/internal/config"
	"github.com/xiaopang/compareai/internal/model"
)

// ChatAdapter OpenAI 兼容的流式后端（groq 直连 / openrouter 中转）
type ChatAdapter struct {
	endpoint      string
	apiKey        string
	upstreamModel string
	maxTokens     int
	headers       map[string]string
	client        *http.Client
}

// NewChatAdapter 按模型配置创建后端
func NewChatAdapter(cfg config.ModelConfig) *ChatAdapter {
	return &ChatAdapter{
		endpoint:      cfg.Endpoint,
		apiKey:        cfg.APIKey(),
		upstreamModel: cfg.UpstreamModel,
		maxTokens:     cfg.MaxTokens,
		headers:       cfg.Headers,
		client: &http.Client{
			Timeout: 5 * time.Minute, // 长超时用于流式响应，任务级超时由调用方 ctx 控制
		},
	}
}

// Stream 发起流式补全，把增量 token 写入返回的片段通道
func (a *ChatAdapter) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(tokens)
		if err := a.stream(ctx, prompt, tokens); err != nil {
			errs <- err
		}
	}()

	return tokens, errs
}

// stream 请求上游并逐行解析 SSE
func (a *ChatAdapter) stream(ctx context.Context, prompt string, tokens chan<- string) error {
	body, _ := json.Marshal(model.ChatRequest{
		Model: a.upstreamModel,
		Messages: []model.ChatMessage{
			{Role: "user", Content: prompt},
		},
		Stream:    true,
		MaxTokens: a.maxTokens,
	})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	a.setHeaders(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(errBody))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var chunk model.StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// 跳过无法解析的块，与上游保持宽容
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
			continue
		}
		tok := chunk.Choices[0].Delta.Content
		if tok == "" {
			continue
		}

		select {
		case tokens <- tok:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// setHeaders 设置请求头
func (a *ChatAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
}
