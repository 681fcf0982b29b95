package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xiaopang/compareai/internal/adapter"
	"github.com/xiaopang/compareai/internal/config"
	"github.com/xiaopang/compareai/internal/logger"
	"github.com/xiaopang/compareai/internal/model"
)

// neutralAccuracy 评审失败时的中性回退分
const neutralAccuracy = 5.0

// Judge 准确性评审契约：给定 (prompt, response) 返回 [0,10] 的分数
//
// 评审失败由编排器就地回退（5.0），不向外传播。
type Judge interface {
	Score(ctx context.Context, prompt, response string) (float64, error)
}

// Recorder 结算记录落库（尽力而为，失败只记日志）
type Recorder interface {
	SaveLog(entry *model.ComparisonLog) error
}

// ValidationError 请求校验失败（HTTP 400，不产生任何事件）
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AdmissionError 准入拒绝（HTTP 429 + Retry-After）
type AdmissionError struct {
	Reason     string
	RetryAfter int
}

func (e *AdmissionError) Error() string { return e.Reason }

// Orchestrator 流式对比编排器
//
// 每个请求的模型各起一个并发任务；任务事件经同一条输出通道
// 扇入合并。单个模型内事件全序（start → token* → complete），
// 跨模型任意交错。所有任务结算后才发 compare-complete。
type Orchestrator struct {
	registry    *adapter.Registry
	judge       Judge
	gate        *Gate
	recorder    Recorder
	rates       map[string]float64 // 模型 ID → 每 token 成本
	taskTimeout time.Duration
}

// NewOrchestrator 创建编排器
func NewOrchestrator(registry *adapter.Registry, judge Judge, gate *Gate, recorder Recorder, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		judge:       judge,
		gate:        gate,
		recorder:    recorder,
		rates:       cfg.CostRates(),
		taskTimeout: time.Duration(cfg.Limits.TaskTimeoutSeconds) * time.Second,
	}
}

// taskResult 单个模型任务的结算结果
type taskResult struct {
	success    bool
	latencyMs  int64
	text       string
	accuracy   float64
	metrics    Metrics
	inputToks  int
	outputToks int
	totalToks  int
	cost       float64
	adapterErr error
}

// Compare 校验并启动一次多模型对比
//
// 校验或准入失败时同步返回错误，不产生任何事件；放行后返回
// 事件通道，调用方消费到通道关闭为止。调用方取消 ctx 表示
// 出站连接断开，所有任务尽快收尾。
func (o *Orchestrator) Compare(ctx context.Context, clientID string, req *model.CompareRequest) (<-chan model.Event, error) {
	if err := o.validateCompare(req); err != nil {
		return nil, err
	}

	if d := o.gate.Admit(clientID, time.Now()); !d.Allowed {
		return nil, &AdmissionError{Reason: d.Reason, RetryAfter: d.RetryAfter}
	}

	events := make(chan model.Event, 64)
	go func() {
		defer close(events)
		o.runCompare(ctx, clientID, req, events)
	}()
	return events, nil
}

// runCompare 扇出每个模型的任务并等待全部结算
func (o *Orchestrator) runCompare(ctx context.Context, clientID string, req *model.CompareRequest, events chan<- model.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("compare orchestration panic", "error", fmt.Sprint(r))
			emit(ctx, events, model.CompareErrorEvent{Type: model.EventCompareError})
		}
	}()

	emit(ctx, events, model.CompareStartEvent{Type: model.EventCompareStart, Models: req.Models})

	var wg sync.WaitGroup
	for _, id := range req.Models {
		wg.Add(1)
		go func(modelID string) {
			defer wg.Done()
			o.runModelTask(ctx, clientID, modelID, req.Prompt, events)
		}(id)
	}
	wg.Wait()

	emit(ctx, events, model.CompareCompleteEvent{Type: model.EventCompareComplete})

	tokens, cost, resetAt := o.gate.Usage(clientID, time.Now())
	emit(ctx, events, model.UsageUpdateEvent{
		Type:        model.EventUsageUpdate,
		TokensToday: tokens,
		CostToday:   cost,
		ResetTime:   resetAt.UnixMilli(),
	})
}

// runModelTask 运行单个模型任务：model-start → model-token* → model-complete
//
// 任务内任何失败（上游异常、panic）都被转成 success=false 的
// 结算事件，绝不影响兄弟任务。
func (o *Orchestrator) runModelTask(ctx context.Context, clientID, modelID, prompt string, events chan<- model.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("model task panic", "model", modelID, "error", fmt.Sprint(r))
			emit(ctx, events, o.completeEvent(modelID, &taskResult{}))
		}
	}()

	emit(ctx, events, model.ModelStartEvent{Type: model.EventModelStart, Model: modelID})

	res := o.streamTask(ctx, clientID, modelID, prompt, false, func(token string) {
		emit(ctx, events, model.ModelTokenEvent{Type: model.EventModelToken, Model: modelID, Token: token})
	})

	emit(ctx, events, o.completeEvent(modelID, res))
	o.record(clientID, "compare", modelID, res)
}

// streamTask 消费一个模型的片段流并结算指标
//
// 上游失败只意味着"没有更多片段"，不是整个对比的致命错误。
// 卡住的流由任务级超时转为失败结算，不会悬挂整个对比。
// strict 为真时（单模型路径）成功判定叠加失败短语黑名单。
func (o *Orchestrator) streamTask(ctx context.Context, clientID, modelID, prompt string, strict bool, onToken func(string)) *taskResult {
	taskCtx, cancel := context.WithTimeout(ctx, o.taskTimeout)
	defer cancel()

	ad, ok := o.registry.Get(modelID)
	if !ok {
		// 校验已保证注册，此处防御注册表运行期变更
		return &taskResult{}
	}

	start := time.Now()
	var firstAt time.Time
	var buf strings.Builder

	tokens, errs := ad.Stream(taskCtx, prompt)
	for tok := range tokens {
		if firstAt.IsZero() {
			firstAt = time.Now()
		}
		buf.WriteString(tok)
		onToken(tok)
	}

	res := &taskResult{text: buf.String()}
	if err := <-errs; err != nil {
		res.adapterErr = err
		logger.Warn("adapter stream ended with error", "model", modelID, "error", err.Error())
	}

	res.success = !firstAt.IsZero() && strings.TrimSpace(res.text) != ""
	if strict && res.success && IsFailureResponse(res.text) {
		res.success = false
	}
	if !res.success {
		res.metrics = Score(false, 0, 0, 0)
		return res
	}

	res.latencyMs = firstAt.Sub(start).Milliseconds()

	// 评审失败就地回退为中性分，绝不因评审挂掉任务
	accuracy, err := o.judge.Score(ctx, prompt, res.text)
	if err != nil {
		logger.Warn("judge failed, using neutral fallback", "model", modelID, "error", err.Error())
		accuracy = neutralAccuracy
	}
	res.accuracy = accuracy

	length := utf8.RuneCountInString(res.text)
	res.metrics = Score(true, res.latencyMs, length, res.accuracy)

	res.inputToks = EstimateTokens(utf8.RuneCountInString(prompt))
	res.outputToks = EstimateTokens(length)
	res.totalToks = res.inputToks + res.outputToks
	res.cost = float64(res.totalToks) * o.rates[modelID]

	o.gate.AddUsage(clientID, res.totalToks, res.cost, time.Now())

	return res
}

// completeEvent 由结算结果组装 model-complete 事件
func (o *Orchestrator) completeEvent(modelID string, res *taskResult) model.ModelCompleteEvent {
	ev := model.ModelCompleteEvent{
		Type:          model.EventModelComplete,
		Model:         modelID,
		Success:       res.success,
		Accuracy:      res.accuracy,
		OverallScore:  res.metrics.Overall,
		SpeedTier:     res.metrics.SpeedTier,
		Length:        utf8.RuneCountInString(res.text),
		InputTokens:   res.inputToks,
		OutputTokens:  res.outputToks,
		TotalTokens:   res.totalToks,
		EstimatedCost: res.cost,
	}
	if ev.SpeedTier == "" {
		ev.SpeedTier = TierFailed
	}
	if res.success {
		latency := res.latencyMs
		ev.Latency = &latency
	}
	return ev
}

// Query 校验并启动一次单模型流式查询
//
// 与对比路径同一套准入检查；成功判定额外叠加失败短语黑名单
// （对比路径刻意不叠加，保留两者既有的不一致）。
func (o *Orchestrator) Query(ctx context.Context, clientID string, req *model.QueryRequest) (<-chan model.Event, error) {
	if err := o.validateQuery(req); err != nil {
		return nil, err
	}

	if d := o.gate.Admit(clientID, time.Now()); !d.Allowed {
		return nil, &AdmissionError{Reason: d.Reason, RetryAfter: d.RetryAfter}
	}

	events := make(chan model.Event, 64)
	go func() {
		defer close(events)
		o.runQuery(ctx, clientID, req, events)
	}()
	return events, nil
}

// runQuery 单模型路径：start → token* → complete（或 error）
func (o *Orchestrator) runQuery(ctx context.Context, clientID string, req *model.QueryRequest, events chan<- model.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("query stream panic", "model", req.Model, "error", fmt.Sprint(r))
			emit(ctx, events, model.ErrorEvent{Type: model.EventError, Model: req.Model, Message: "stream failed"})
		}
	}()

	emit(ctx, events, model.StartEvent{Type: model.EventStart, Model: req.Model})

	res := o.streamTask(ctx, clientID, req.Model, req.Prompt, true, func(token string) {
		emit(ctx, events, model.TokenEvent{Type: model.EventToken, Token: token})
	})

	mc := o.completeEvent(req.Model, res)
	emit(ctx, events, model.CompleteEvent{
		Type:          model.EventComplete,
		Model:         mc.Model,
		Success:       mc.Success,
		Latency:       mc.Latency,
		Accuracy:      mc.Accuracy,
		OverallScore:  mc.OverallScore,
		SpeedTier:     mc.SpeedTier,
		Length:        mc.Length,
		InputTokens:   mc.InputTokens,
		OutputTokens:  mc.OutputTokens,
		TotalTokens:   mc.TotalTokens,
		EstimatedCost: mc.EstimatedCost,
	})
	o.record(clientID, "query", req.Model, res)
}

// validateCompare 校验对比请求（不通过准入闸门）
func (o *Orchestrator) validateCompare(req *model.CompareRequest) error {
	if req.Prompt == "" {
		return &ValidationError{Message: "prompt is required"}
	}
	if req.PromptLength() > model.MaxPromptLength {
		return &ValidationError{Message: fmt.Sprintf("prompt exceeds %d characters", model.MaxPromptLength)}
	}
	if len(req.Models) == 0 {
		return &ValidationError{Message: "models must be a non-empty array"}
	}
	for _, id := range req.Models {
		if !o.registry.Has(id) {
			return &ValidationError{Message: fmt.Sprintf("unknown model: %s", id)}
		}
	}
	return nil
}

// validateQuery 校验单模型请求
func (o *Orchestrator) validateQuery(req *model.QueryRequest) error {
	if req.Prompt == "" {
		return &ValidationError{Message: "prompt is required"}
	}
	if utf8.RuneCountInString(req.Prompt) > model.MaxPromptLength {
		return &ValidationError{Message: fmt.Sprintf("prompt exceeds %d characters", model.MaxPromptLength)}
	}
	if !o.registry.Has(req.Model) {
		return &ValidationError{Message: fmt.Sprintf("unknown model: %s", req.Model)}
	}
	return nil
}

// record 结算记录落库（尽力而为）
func (o *Orchestrator) record(clientID, endpoint, modelID string, res *taskResult) {
	if o.recorder == nil {
		return
	}
	entry := &model.ComparisonLog{
		ID:            NewLogID(),
		Timestamp:     time.Now(),
		ClientID:      clientID,
		Endpoint:      endpoint,
		Model:         modelID,
		Success:       res.success,
		LatencyMs:     res.latencyMs,
		Accuracy:      res.accuracy,
		Overall:       res.metrics.Overall,
		SpeedTier:     res.metrics.SpeedTier,
		Length:        utf8.RuneCountInString(res.text),
		InputTokens:   res.inputToks,
		OutputTokens:  res.outputToks,
		TotalTokens:   res.totalToks,
		EstimatedCost: res.cost,
	}
	if entry.SpeedTier == "" {
		entry.SpeedTier = TierFailed
	}
	if res.adapterErr != nil {
		entry.Error = res.adapterErr.Error()
	}
	if err := o.recorder.SaveLog(entry); err != nil {
		logger.Warn("failed to save comparison log", "model", modelID, "error", err.Error())
	}
}

// emit 带取消保护的事件写入：出站连接断开后停止写，尽快释放
func emit(ctx context.Context, events chan<- model.Event, ev model.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
