package core

import (
	"math"
	"strings"
)

// 速度档位（按首 token 延迟分桶）
const (
	TierFastest = "fastest"
	TierFast    = "fast"
	TierAverage = "average"
	TierSlow    = "slow"
	TierSlowest = "slowest"
	TierFailed  = "failed"
)

// 评分权重与阈值是固定设计常量，不是配置：
// 它们定义排名语义，改动会破坏既有消费方的兼容性。
const (
	accuracyWeight = 0.6
	speedWeight    = 0.3
	lengthWeight   = 0.1
)

// FailurePhrases 失败短语黑名单，按值配置（不做正则推断），
// 仅用于单模型路径的失败判定。调整短语不触碰数值逻辑。
var FailurePhrases = []string{
	"model not enabled",
	"api key invalid",
	"invalid api key",
	"quota exceeded",
	"rate limit exceeded",
	"unauthorized",
	"access denied",
	"error:",
	"failed",
}

// Metrics 评分引擎输出
type Metrics struct {
	SpeedScore  float64
	LengthScore float64
	Overall     float64
	SpeedTier   string
}

// Score 纯函数：由 (成功标志, 首 token 延迟, 响应长度, 准确性) 计算各项分数
//
// latencyMs 仅在 success 时参与计算。
func Score(success bool, latencyMs int64, length int, accuracy float64) Metrics {
	speedScore := 0.0
	if success {
		speedScore = math.Max(0, 10-float64(latencyMs)/400)
	}

	lengthScore := lengthScoreOf(length)

	overall := 0.0
	if success {
		overall = round2(accuracy*accuracyWeight + speedScore*speedWeight + lengthScore*lengthWeight)
	}

	return Metrics{
		SpeedScore:  speedScore,
		LengthScore: lengthScore,
		Overall:     overall,
		SpeedTier:   speedTierOf(success, latencyMs),
	}
}

// lengthScoreOf 响应长度分段打分
func lengthScoreOf(length int) float64 {
	switch {
	case length > 800:
		return 10
	case length > 300:
		return 7
	case length > 100:
		return 5
	case length > 50:
		return 3
	default:
		return 1
	}
}

// speedTierOf 首 token 延迟分桶
func speedTierOf(success bool, latencyMs int64) string {
	if !success {
		return TierFailed
	}
	switch {
	case latencyMs < 400:
		return TierFastest
	case latencyMs < 1000:
		return TierFast
	case latencyMs < 2000:
		return TierAverage
	case latencyMs < 3500:
		return TierSlow
	default:
		return TierSlowest
	}
}

// IsFailureResponse 单模型路径的失败判定：
// 去除首尾空白后不足 20 个字符，或小写后命中黑名单短语。
//
// 对比路径（N 路）刻意不使用此判定，只看"收到过片段且正文非空"。
// 两者的不一致是观测到的既有行为，保留不改。
func IsFailureResponse(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < 20 {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range FailurePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// EstimateTokens 固定启发式：每 4 个字符约 1 个 token，向上取整
func EstimateTokens(charLength int) int {
	if charLength <= 0 {
		return 0
	}
	return (charLength + 3) / 4
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
