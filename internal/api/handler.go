package api

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xiaopang/compareai/internal/core"
	"github.com/xiaopang/compareai/internal/logger"
	"github.com/xiaopang/compareai/internal/model"
)

// StreamHandler 流式对比/查询处理器
type StreamHandler struct {
	orch  *core.Orchestrator
	judge core.Judge
}

// NewStreamHandler 创建流式处理器
func NewStreamHandler(orch *core.Orchestrator, judge core.Judge) *StreamHandler {
	return &StreamHandler{orch: orch, judge: judge}
}

// Compare 多模型对比端点
//
// 校验失败 400、准入拒绝 429（带 Retry-After）；放行后切换为
// chunked NDJSON 流，每行一个事件，边产出边刷出。
func (h *StreamHandler) Compare(c *gin.Context) {
	var req model.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, model.ErrorResponse{Error: "Invalid request body"})
		return
	}

	events, err := h.orch.Compare(c.Request.Context(), clientIdentity(c), &req)
	if err != nil {
		writeStreamError(c, err)
		return
	}

	streamEvents(c, events)
}

// QueryStream 单模型流式端点
func (h *StreamHandler) QueryStream(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, model.ErrorResponse{Error: "Invalid request body"})
		return
	}

	events, err := h.orch.Query(c.Request.Context(), clientIdentity(c), &req)
	if err != nil {
		writeStreamError(c, err)
		return
	}

	streamEvents(c, events)
}

// JudgeTest 评审连通性测试
func (h *StreamHandler) JudgeTest(c *gin.Context) {
	score, err := h.judge.Score(c.Request.Context(),
		"What is capital of France?",
		"Paris is the capital of France.")
	if err != nil {
		c.JSON(502, model.ErrorResponse{Error: "judge unavailable"})
		return
	}
	c.JSON(200, gin.H{"score": score})
}

// writeStreamError 把编排器的同步错误映射到 HTTP 状态
func writeStreamError(c *gin.Context, err error) {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		c.JSON(400, model.ErrorResponse{Error: ve.Message})
		return
	}

	var ae *core.AdmissionError
	if errors.As(err, &ae) {
		c.Header("Retry-After", strconv.Itoa(ae.RetryAfter))
		msg := "Too many requests"
		if ae.Reason == core.ReasonQuotaExceeded {
			msg = "Daily usage limit reached"
		}
		c.JSON(429, model.ErrorResponse{Error: msg})
		return
	}

	c.JSON(500, model.ErrorResponse{Error: "internal error"})
}

// streamEvents 把事件通道写成 NDJSON 流
//
// 出站连接断开后停止写入但继续排空通道，让编排器在请求 ctx
// 取消后自行收尾；不做重试，由调用方重发整个对比。
func streamEvents(c *gin.Context, events <-chan model.Event) {
	c.Header("Content-Type", "application/json")
	c.Header("Transfer-Encoding", "chunked")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(200)

	writeFailed := false
	for ev := range events {
		if writeFailed {
			continue
		}
		line, err := json.Marshal(ev)
		if err != nil {
			logger.Error("failed to marshal event", "error", err.Error())
			continue
		}
		line = append(line, '\n')
		if _, err := c.Writer.Write(line); err != nil {
			logger.Debug("stream write failed, draining", "error", err.Error())
			writeFailed = true
			continue
		}
		c.Writer.Flush()
	}
}

// clientIdentity 客户端身份：网络地址（经转发头修正），仅作
// 尽力而为的防滥用键，不是认证主体
func clientIdentity(c *gin.Context) string {
	return c.ClientIP()
}
