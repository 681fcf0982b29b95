package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Limits   LimitsConfig   `yaml:"limits"`
	Judge    JudgeConfig    `yaml:"judge"`
	Logging  LoggingConfig  `yaml:"logging"`
	Models   []ModelConfig  `yaml:"models"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LimitsConfig 准入限制配置（滑动窗口限流 + 每日用量配额）
type LimitsConfig struct {
	WindowSeconds      int     `yaml:"window_seconds"`       // 限流窗口长度
	MaxRequests        int     `yaml:"max_requests"`         // 窗口内最大请求数
	DailyTokenBudget   int     `yaml:"daily_token_budget"`   // 每日 token 预算
	DailyCostBudget    float64 `yaml:"daily_cost_budget"`    // 每日成本预算
	TaskTimeoutSeconds int     `yaml:"task_timeout_seconds"` // 单模型任务超时
}

// JudgeConfig 准确性评审配置
type JudgeConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level         string `yaml:"level"`
	RetentionDays int    `yaml:"retention_days"`
}

// ModelConfig 模型后端配置
type ModelConfig struct {
	ID            string            `yaml:"id"`
	Provider      string            `yaml:"provider"` // groq | openrouter | disabled
	Endpoint      string            `yaml:"endpoint"`
	UpstreamModel string            `yaml:"upstream_model"`
	APIKeyEnv     string            `yaml:"api_key_env"`
	MaxTokens     int               `yaml:"max_tokens"`
	CostPerToken  float64           `yaml:"cost_per_token"`
	Headers       map[string]string `yaml:"headers"`
	Enabled       bool              `yaml:"enabled"`
}

// APIKey 从环境变量解析 API Key
func (m *ModelConfig) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// APIKey 从环境变量解析 API Key
func (j *JudgeConfig) APIKey() string {
	if j.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(j.APIKeyEnv)
}

// Load 从文件加载配置，文件不存在时使用默认值
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	setDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/compareai.db"
	}
	if cfg.Limits.WindowSeconds == 0 {
		cfg.Limits.WindowSeconds = 60
	}
	if cfg.Limits.MaxRequests == 0 {
		cfg.Limits.MaxRequests = 10
	}
	if cfg.Limits.DailyTokenBudget == 0 {
		cfg.Limits.DailyTokenBudget = 10000
	}
	if cfg.Limits.DailyCostBudget == 0 {
		cfg.Limits.DailyCostBudget = 0.05
	}
	if cfg.Limits.TaskTimeoutSeconds == 0 {
		cfg.Limits.TaskTimeoutSeconds = 30
	}
	if cfg.Judge.Endpoint == "" {
		cfg.Judge.Endpoint = "https://api.groq.com/openai/v1/chat/completions"
	}
	if cfg.Judge.Model == "" {
		cfg.Judge.Model = "llama-3.1-8b-instant"
	}
	if cfg.Judge.APIKeyEnv == "" {
		cfg.Judge.APIKeyEnv = "GROQ_API_KEY"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.RetentionDays == 0 {
		cfg.Logging.RetentionDays = 7
	}
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels()
	}
}

// DefaultModels 内置模型表
func DefaultModels() []ModelConfig {
	openrouterHeaders := map[string]string{
		"HTTP-Referer": "http://localhost:5174",
		"X-Title":      "CompareAI",
	}
	return []ModelConfig{
		{
			ID:            "groq",
			Provider:      "groq",
			Endpoint:      "https://api.groq.com/openai/v1/chat/completions",
			UpstreamModel: "llama-3.1-8b-instant",
			APIKeyEnv:     "GROQ_API_KEY",
			CostPerToken:  0.000002,
			Enabled:       true,
		},
		{
			ID:            "aurora",
			Provider:      "openrouter",
			Endpoint:      "https://openrouter.ai/api/v1/chat/completions",
			UpstreamModel: "deepseek/deepseek-chat",
			APIKeyEnv:     "OPENROUTER_API_KEY",
			MaxTokens:     512,
			CostPerToken:  0.0000015,
			Headers:       openrouterHeaders,
			Enabled:       true,
		},
		{
			ID:            "glm",
			Provider:      "openrouter",
			Endpoint:      "https://openrouter.ai/api/v1/chat/completions",
			UpstreamModel: "z-ai/glm-5",
			APIKeyEnv:     "OPENROUTER_API_KEY",
			MaxTokens:     512,
			CostPerToken:  0.0000025,
			Headers:       openrouterHeaders,
			Enabled:       true,
		},
		{
			ID:            "minimax",
			Provider:      "openrouter",
			Endpoint:      "https://openrouter.ai/api/v1/chat/completions",
			UpstreamModel: "minimax/minimax-01",
			APIKeyEnv:     "OPENROUTER_API_KEY",
			MaxTokens:     512,
			CostPerToken:  0.000003,
			Headers:       openrouterHeaders,
			Enabled:       true,
		},
		{ID: "gemini", Provider: "disabled", CostPerToken: 0},
		{ID: "openai", Provider: "disabled", CostPerToken: 0},
	}
}

// applyEnvOverrides 应用环境变量覆盖
func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt("PORT"); ok {
		cfg.Server.Port = v
	}
	if v, ok := envInt("RATE_LIMIT_WINDOW_SECONDS"); ok {
		cfg.Limits.WindowSeconds = v
	}
	if v, ok := envInt("RATE_LIMIT_MAX_REQUESTS"); ok {
		cfg.Limits.MaxRequests = v
	}
	if v, ok := envInt("DAILY_TOKEN_BUDGET"); ok {
		cfg.Limits.DailyTokenBudget = v
	}
	if v, ok := envFloat("DAILY_COST_BUDGET"); ok {
		cfg.Limits.DailyCostBudget = v
	}
}

func envInt(name string) (int, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CostRates 生成模型 ID → 每 token 成本的速查表
func (c *Config) CostRates() map[string]float64 {
	rates := make(map[string]float64, len(c.Models))
	for _, m := range c.Models {
		rates[m.ID] = m.CostPerToken
	}
	return rates
}
