package model

import "time"

// ComparisonLog 单个模型任务结算后的记录
type ComparisonLog struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ClientID  string    `json:"client_id"`
	Endpoint  string    `json:"endpoint"` // compare | query
	Model     string    `json:"model"`

	// 结果
	Success   bool    `json:"success"`
	LatencyMs int64   `json:"latency_ms"`
	Accuracy  float64 `json:"accuracy"`
	Overall   float64 `json:"overall_score"`
	SpeedTier string  `json:"speed_tier"`
	Length    int     `json:"length"`

	// 用量估算
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	TotalTokens   int     `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`

	Error string `json:"error,omitempty"`
}

// LogQuery 日志查询参数
type LogQuery struct {
	Model     string    `form:"model"`
	Endpoint  string    `form:"endpoint"`
	ClientID  string    `form:"client_id"`
	Success   *bool     `form:"success"`
	StartTime time.Time `form:"start_time"`
	EndTime   time.Time `form:"end_time"`
	Limit     int       `form:"limit"`
	Offset    int       `form:"offset"`
}

// DailyStats 每日统计汇总
type DailyStats struct {
	Date          string  `json:"date"`
	TotalRequests int     `json:"total_requests"`
	SuccessRate   float64 `json:"success_rate"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
	AvgLatency    float64 `json:"avg_latency_ms"`
}

// ModelStats 按模型统计
type ModelStats struct {
	Model        string  `json:"model"`
	RequestCount int     `json:"request_count"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatency   float64 `json:"avg_latency_ms"`
	AvgOverall   float64 `json:"avg_overall_score"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
}
