package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xiaopang/compareai/internal/model"
)

// CORSMiddleware CORS 中间件（公共 API，放开所有来源）
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RecoveryMiddleware 恢复中间件
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				c.JSON(500, model.ErrorResponse{Error: "Internal server error"})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// LoggerMiddleware 请求日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method

		log.Printf("[HTTP] %3d | %12v | %-7s %s",
			status, latency, method, path)
	}
}

// SetupRouter 设置路由
func SetupRouter(stream *StreamHandler, system *SystemHandler, admin *AdminHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 对比/查询 API
	ai := r.Group("/ai")
	{
		ai.POST("/compare", stream.Compare)
		ai.POST("/query-stream", stream.QueryStream)
		ai.GET("/judge-test", stream.JudgeTest)
	}

	// 统计/日志
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/logs", admin.GetLogs)
		apiGroup.GET("/stats", admin.GetStats)
	}

	// 系统端点
	r.GET("/", system.Root)
	r.GET("/health", system.Health)
	r.GET("/ready", system.Ready)
	r.GET("/version", system.Version)

	return r
}
