package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xiaopang/compareai/internal/model"
	"github.com/xiaopang/compareai/internal/store"
)

// AdminHandler 日志/统计查询处理器
type AdminHandler struct {
	store *store.Store
}

// NewAdminHandler 创建处理器
func NewAdminHandler(s *store.Store) *AdminHandler {
	return &AdminHandler{store: s}
}

// GetLogs 查询结算记录
func (h *AdminHandler) GetLogs(c *gin.Context) {
	var query model.LogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(400, model.ErrorResponse{Error: "invalid query: " + err.Error()})
		return
	}

	logs, err := h.store.QueryLogs(&query)
	if err != nil {
		c.JSON(500, model.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(200, gin.H{"logs": logs, "count": len(logs)})
}

// GetStats 查询统计（每日汇总 + 按模型）
func (h *AdminHandler) GetStats(c *gin.Context) {
	days := 7
	if v := c.Query("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	daily, err := h.store.GetDailyStats(days)
	if err != nil {
		c.JSON(500, model.ErrorResponse{Error: err.Error()})
		return
	}
	models, err := h.store.GetModelStats(days)
	if err != nil {
		c.JSON(500, model.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(200, gin.H{
		"days":   days,
		"daily":  daily,
		"models": models,
	})
}
