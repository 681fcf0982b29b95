package model

import "unicode/utf8"

// MaxPromptLength prompt 最大长度（码点数）
const MaxPromptLength = 4000

// CompareRequest 多模型对比请求
type CompareRequest struct {
	Prompt string   `json:"prompt"`
	Models []string `json:"models"`
}

// QueryRequest 单模型流式请求
type QueryRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// PromptLength 按码点数计算 prompt 长度
func (r *CompareRequest) PromptLength() int {
	return utf8.RuneCountInString(r.Prompt)
}

// ErrorResponse HTTP 错误响应体
type ErrorResponse struct {
	Error string `json:"error"`
}

// === 上游 OpenAI 兼容接口的请求/响应类型 ===

// ChatRequest OpenAI 兼容的聊天补全请求
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// ChatMessage 消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse OpenAI 兼容的非流式响应
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

// ChatChoice 选项
type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"` // 流式响应
	FinishReason string       `json:"finish_reason,omitempty"`
}

// StreamChunk SSE 流式响应块
type StreamChunk struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}
