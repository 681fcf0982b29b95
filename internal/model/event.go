package model

// 流式事件类型
const (
	EventCompareStart    = "compare-start"
	EventModelStart      = "model-start"
	EventModelToken      = "model-token"
	EventModelComplete   = "model-complete"
	EventCompareComplete = "compare-complete"
	EventCompareError    = "compare-error"
	EventUsageUpdate     = "usage-update"

	// 单模型流式端点的事件类型
	EventStart    = "start"
	EventToken    = "token"
	EventComplete = "complete"
	EventError    = "error"
)

// Event 流式输出事件（NDJSON，每行一个对象，按 type 区分）
type Event interface {
	EventType() string
}

// CompareStartEvent 对比开始
type CompareStartEvent struct {
	Type   string   `json:"type"`
	Models []string `json:"models"`
}

// ModelStartEvent 单个模型任务开始
type ModelStartEvent struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

// ModelTokenEvent 单个模型的增量 token
type ModelTokenEvent struct {
	Type  string `json:"type"`
	Model string `json:"model"`
	Token string `json:"token"`
}

// ModelCompleteEvent 单个模型任务结束，携带全部指标
//
// Latency 仅在 Success 时有值，失败时序列化为 null。
type ModelCompleteEvent struct {
	Type          string  `json:"type"`
	Model         string  `json:"model"`
	Success       bool    `json:"success"`
	Latency       *int64  `json:"latency"`
	Accuracy      float64 `json:"accuracy"`
	OverallScore  float64 `json:"overallScore"`
	SpeedTier     string  `json:"speedTier"`
	Length        int     `json:"length"`
	InputTokens   int     `json:"inputTokens"`
	OutputTokens  int     `json:"outputTokens"`
	TotalTokens   int     `json:"totalTokens"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// CompareCompleteEvent 所有模型任务结束
type CompareCompleteEvent struct {
	Type string `json:"type"`
}

// CompareErrorEvent 顶层未预期错误（HTTP 状态已发出，只能用协议级事件通知）
type CompareErrorEvent struct {
	Type string `json:"type"`
}

// UsageUpdateEvent 本次累计后的用量快照
type UsageUpdateEvent struct {
	Type        string  `json:"type"`
	TokensToday int     `json:"tokensToday"`
	CostToday   float64 `json:"costToday"`
	ResetTime   int64   `json:"resetTime"`
}

// StartEvent 单模型端点：开始
type StartEvent struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

// TokenEvent 单模型端点：增量 token
type TokenEvent struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// CompleteEvent 单模型端点：结束
type CompleteEvent struct {
	Type          string  `json:"type"`
	Model         string  `json:"model"`
	Success       bool    `json:"success"`
	Latency       *int64  `json:"latency"`
	Accuracy      float64 `json:"accuracy"`
	OverallScore  float64 `json:"overallScore"`
	SpeedTier     string  `json:"speedTier"`
	Length        int     `json:"length"`
	InputTokens   int     `json:"inputTokens"`
	OutputTokens  int     `json:"outputTokens"`
	TotalTokens   int     `json:"totalTokens"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// ErrorEvent 单模型端点：流失败
type ErrorEvent struct {
	Type    string `json:"type"`
	Model   string `json:"model"`
	Message string `json:"message"`
}

func (e CompareStartEvent) EventType() string    { return e.Type }
func (e ModelStartEvent) EventType() string      { return e.Type }
func (e ModelTokenEvent) EventType() string      { return e.Type }
func (e ModelCompleteEvent) EventType() string   { return e.Type }
func (e CompareCompleteEvent) EventType() string { return e.Type }
func (e CompareErrorEvent) EventType() string    { return e.Type }
func (e UsageUpdateEvent) EventType() string     { return e.Type }
func (e StartEvent) EventType() string           { return e.Type }
func (e TokenEvent) EventType() string           { return e.Type }
func (e CompleteEvent) EventType() string        { return e.Type }
func (e ErrorEvent) EventType() string           { return e.Type }
