package core

import (
	"math"
	"sync"
	"time"

	"github.com/xiaopang/compareai/internal/config"
)

// 拒绝原因
const (
	ReasonRateLimited   = "RateLimited"
	ReasonQuotaExceeded = "QuotaExceeded"
)

const (
	usageWindow   = 24 * time.Hour
	sweepInterval = 10 * time.Minute
)

// Decision 准入判定结果
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter int // 秒
}

// rateRecord 按身份的滑动窗口计数
type rateRecord struct {
	count   int
	resetAt time.Time
}

// usageRecord 按身份的每日用量
type usageRecord struct {
	tokens  int
	cost    float64
	resetAt time.Time
}

// Gate 准入闸门：滑动窗口限流 + 每日用量配额
//
// 状态仅在内存中（进程重启即清空）——用无持久化换取无状态部署，
// 对单实例是可接受的防滥用手段，不是严格计费。
// 所有记录由同一把互斥锁串行化，避免同一对比的多个并发任务
// 累计用量时丢失更新。
type Gate struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	tokenBudget int
	costBudget  float64
	rates       map[string]*rateRecord
	usage       map[string]*usageRecord
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewGate 创建准入闸门并启动后台清扫
func NewGate(cfg config.LimitsConfig) *Gate {
	g := newGate(cfg)
	go g.sweep()
	return g
}

// newGate 创建不带后台清扫的闸门（测试用）
func newGate(cfg config.LimitsConfig) *Gate {
	return &Gate{
		window:      time.Duration(cfg.WindowSeconds) * time.Second,
		maxRequests: cfg.MaxRequests,
		tokenBudget: cfg.DailyTokenBudget,
		costBudget:  cfg.DailyCostBudget,
		rates:       make(map[string]*rateRecord),
		usage:       make(map[string]*usageRecord),
		stop:        make(chan struct{}),
	}
}

// Admit 判定一次对比请求是否放行
//
// 配额检查在前：配额耗尽时直接拒绝，不触碰限流记录。
// 限流检查即使拒绝也会递增计数（窗口内持续请求不会重置计数）。
func (g *Gate) Admit(clientID string, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	// 每日配额（懒重置）
	if u := g.usage[clientID]; u != nil {
		if now.After(u.resetAt) {
			u.tokens = 0
			u.cost = 0
			u.resetAt = now.Add(usageWindow)
		}
		if u.tokens >= g.tokenBudget || u.cost >= g.costBudget {
			return Decision{Reason: ReasonQuotaExceeded, RetryAfter: 86400}
		}
	}

	// 滑动窗口限流
	r := g.rates[clientID]
	if r == nil || now.After(r.resetAt) {
		g.rates[clientID] = &rateRecord{count: 1, resetAt: now.Add(g.window)}
		return Decision{Allowed: true}
	}
	r.count++
	if r.count > g.maxRequests {
		retry := int(math.Ceil(r.resetAt.Sub(now).Seconds()))
		return Decision{Reason: ReasonRateLimited, RetryAfter: retry}
	}

	return Decision{Allowed: true}
}

// AddUsage 在模型任务结算后累计用量估算
func (g *Gate) AddUsage(clientID string, tokens int, cost float64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.usage[clientID]
	if u == nil {
		u = &usageRecord{resetAt: now.Add(usageWindow)}
		g.usage[clientID] = u
	} else if now.After(u.resetAt) {
		u.tokens = 0
		u.cost = 0
		u.resetAt = now.Add(usageWindow)
	}
	u.tokens += tokens
	u.cost += cost
}

// Usage 读取身份的用量快照（懒重置后）
func (g *Gate) Usage(clientID string, now time.Time) (tokens int, cost float64, resetAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.usage[clientID]
	if u == nil {
		return 0, 0, now.Add(usageWindow)
	}
	if now.After(u.resetAt) {
		u.tokens = 0
		u.cost = 0
		u.resetAt = now.Add(usageWindow)
	}
	return u.tokens, u.cost, u.resetAt
}

// Stop 停止后台清扫
func (g *Gate) Stop() {
	g.stopOnce.Do(func() {
		close(g.stop)
	})
}

// sweep 定期移除窗口已过期的身份，约束内存
//
// 与准入检查共用同一把锁，不会清掉正在使用中的合法记录。
func (g *Gate) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			now := time.Now()
			g.mu.Lock()
			for id, r := range g.rates {
				if now.After(r.resetAt) {
					delete(g.rates, id)
				}
			}
			for id, u := range g.usage {
				if now.After(u.resetAt) {
					delete(g.usage, id)
				}
			}
			g.mu.Unlock()
		}
	}
}
