package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/xiaopang/compareai/internal/config"
	"github.com/xiaopang/compareai/internal/logger"
)

const monitorInterval = 60 * time.Second

// ProviderStatus 单个模型后端的就绪状态
type ProviderStatus struct {
	Model      string    `json:"model"`
	Enabled    bool      `json:"enabled"`
	KeyPresent bool      `json:"key_present"`
	Reachable  bool      `json:"reachable"`
	LastCheck  time.Time `json:"last_check"`
	LastError  string    `json:"last_error,omitempty"`
}

// Monitor 后端就绪监控：周期性探测各模型上游，供 /ready 使用
type Monitor struct {
	models []config.ModelConfig
	client *http.Client
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	status map[string]ProviderStatus
}

// NewMonitor 创建就绪监控
func NewMonitor(models []config.ModelConfig) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		models: models,
		client: &http.Client{Timeout: 10 * time.Second},
		ctx:    ctx,
		cancel: cancel,
		status: make(map[string]ProviderStatus),
	}
	// 启动前先填充一次静态状态，/ready 不必等首轮探测
	for _, mc := range models {
		m.status[mc.ID] = ProviderStatus{
			Model:      mc.ID,
			Enabled:    mc.Enabled,
			KeyPresent: mc.APIKey() != "",
		}
	}
	return m
}

// Start 启动探测循环
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop 停止探测
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Snapshot 读取当前各后端状态
func (m *Monitor) Snapshot() map[string]ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ProviderStatus, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}

// run 探测循环：启动时立即检查一次
func (m *Monitor) run() {
	defer m.wg.Done()

	m.checkAll()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

// checkAll 并发探测所有启用的后端
func (m *Monitor) checkAll() {
	var wg sync.WaitGroup
	for _, mc := range m.models {
		if !mc.Enabled {
			continue
		}
		wg.Add(1)
		go func(mc config.ModelConfig) {
			defer wg.Done()
			m.checkModel(mc)
		}(mc)
	}
	wg.Wait()
}

// checkModel 探测单个后端的模型列表端点
func (m *Monitor) checkModel(mc config.ModelConfig) {
	status := ProviderStatus{
		Model:      mc.ID,
		Enabled:    true,
		KeyPresent: mc.APIKey() != "",
		LastCheck:  time.Now(),
	}

	if err := m.probe(mc); err != nil {
		status.LastError = err.Error()
		logger.Debug("provider probe failed", "model", mc.ID, "error", err.Error())
	} else {
		status.Reachable = true
	}

	m.mu.Lock()
	m.status[mc.ID] = status
	m.mu.Unlock()
}

// probe 请求上游的 /models 列表作为连通性检查
func (m *Monitor) probe(mc config.ModelConfig) error {
	url := strings.TrimSuffix(mc.Endpoint, "/chat/completions") + "/models"

	req, err := http.NewRequestWithContext(m.ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	if key := mc.APIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
