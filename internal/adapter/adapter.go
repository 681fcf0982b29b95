package adapter

import (
	"context"
	"sync"

	"github.com/xiaopang/compareai/internal/config"
)

// Adapter 模型后端能力：给定 prompt，产生一串增量文本片段
//
// Stream 返回片段通道和错误通道。片段通道在上游结束或失败后关闭；
// 失败在片段通道关闭前写入错误通道（容量 1）。调用方按
// "range 片段通道，然后读错误通道" 的顺序消费。
type Adapter interface {
	Stream(ctx context.Context, prompt string) (<-chan string, <-chan error)
}

// Registry 模型 ID → Adapter 注册表
//
// 启动时填充。新增模型只需注册一个表项。
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	ids      []string // 保持注册顺序
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// NewRegistryFromConfig 按配置构建注册表
func NewRegistryFromConfig(models []config.ModelConfig) *Registry {
	r := NewRegistry()
	for _, m := range models {
		switch m.Provider {
		case "groq", "openrouter":
			r.Register(m.ID, NewChatAdapter(m))
		default:
			r.Register(m.ID, NewDisabledAdapter(m.ID))
		}
	}
	return r
}

// Register 注册模型
func (r *Registry) Register(id string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.adapters[id] = a
}

// Get 获取模型对应的 Adapter
func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// Has 检查模型是否已注册
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[id]
	return ok
}

// IDs 按注册顺序列出模型 ID
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}
