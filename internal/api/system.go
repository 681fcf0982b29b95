package api

import (
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xiaopang/compareai/internal/core"
)

const (
	serviceName    = "CompareAI Backend"
	serviceVersion = "2.0.0"
)

// SystemHandler 系统端点处理器
type SystemHandler struct {
	monitor   *core.Monitor
	startedAt time.Time
}

// NewSystemHandler 创建系统端点处理器
func NewSystemHandler(monitor *core.Monitor) *SystemHandler {
	return &SystemHandler{
		monitor:   monitor,
		startedAt: time.Now(),
	}
}

func (h *SystemHandler) uptimeSeconds() int64 {
	return int64(time.Since(h.startedAt).Seconds())
}

// Root 基本服务信息
func (h *SystemHandler) Root(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":        "ok",
		"service":       serviceName,
		"version":       serviceVersion,
		"streaming":     true,
		"scoring":       true,
		"uptimeSeconds": h.uptimeSeconds(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// Health 存活检查（供负载均衡/监控拨测）
func (h *SystemHandler) Health(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(200, gin.H{
		"status":        "healthy",
		"uptimeSeconds": h.uptimeSeconds(),
		"goroutines":    runtime.NumGoroutine(),
		"allocBytes":    mem.Alloc,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready 就绪检查：上报各模型后端的可用性
func (h *SystemHandler) Ready(c *gin.Context) {
	providers := gin.H{}
	for id, st := range h.monitor.Snapshot() {
		providers[id] = gin.H{
			"enabled":     st.Enabled,
			"key_present": st.KeyPresent,
			"reachable":   st.Reachable,
		}
	}

	c.JSON(200, gin.H{
		"status": "ready",
		"services": gin.H{
			"streamingEngine": true,
			"scoringEngine":   true,
			"accuracyJudge":   true,
		},
		"providers": providers,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Version 版本信息
func (h *SystemHandler) Version(c *gin.Context) {
	c.JSON(200, gin.H{
		"name":    serviceName,
		"version": serviceVersion,
		"features": []string{
			"Streaming",
			"Latency Measurement",
			"Accuracy Scoring",
			"Ranking System",
			"Rate Limiting",
			"Usage Quotas",
			"Failure Handling",
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
