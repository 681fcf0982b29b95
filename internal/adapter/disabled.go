package adapter

import "context"

// DisabledAdapter 占位后端：立即结束，不产生任何片段
//
// 用于已在闭集内但尚未接入的模型（gemini、openai）。零片段
// 会让任务按失败结算，无需特殊分支。
type DisabledAdapter struct {
	id string
}

// NewDisabledAdapter 创建占位后端
func NewDisabledAdapter(id string) *DisabledAdapter {
	return &DisabledAdapter{id: id}
}

// Stream 立即关闭片段通道
func (a *DisabledAdapter) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errs := make(chan error, 1)
	close(tokens)
	close(errs)
	return tokens, errs
}
