// Package config 负责读取并合并服务配置（环境变量为主），避免在业务代码里散落解析逻辑。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env       string
	Server    ServerConfig
	DB        DBConfig
	Security  SecurityConfig
	Providers ProvidersConfig
	Pricing   PricingConfig
	Usage     UsageConfig
	Frontend  FrontendConfig
}

type ServerConfig struct {
	Addr          string
	PublicBaseURL string

	// HTTP 连接硬化：这些参数会直接映射到 net/http 的 http.Server。
	// 注意：WriteTimeout 必须保持为 0（不设置），以兼容 SSE 等长连接响应。
	ReadHeaderTimeoutSeconds int
	IdleTimeoutSeconds       int
	MaxHeaderBytes           int

	// ChatMaxBodyBytes 限制聊天转发请求体大小，避免超大请求导致 OOM。
	ChatMaxBodyBytes int64
	// PublicMaxBodyBytes 限制普通 JSON API 请求体大小。
	PublicMaxBodyBytes int64
}

type DBConfig struct {
	// Driver 支持 mysql/sqlite；为空时会根据 dsn 自动推断（兼容旧配置）。
	Driver string
	// DSN 仅用于 MySQL。
	DSN string
	// SQLitePath 是 SQLite 数据库文件路径（可包含 DSN query，如 ?_busy_timeout=30000）。
	SQLitePath string
}

type SecurityConfig struct {
	AllowOpenRegistration bool
	DisableSecureCookies  bool
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
}

type ProviderConfig struct {
	BaseURL string
	APIKey  string

	// RequestTimeoutSeconds 为 0 时不限制（流式响应可能远超普通超时）。
	RequestTimeoutSeconds int
}

type PricingConfig struct {
	// CatalogURL 为远端定价目录（models.dev 风格 JSON）；为空使用默认地址。
	CatalogURL      string
	CacheTTLSeconds int
}

type UsageConfig struct {
	// EventWindowLimit 限定管理面聚合时拉取的最近事件条数。
	// 这是刻意的精度/成本折衷：聚合只反映该窗口，全量历史由 usage_summaries 承担。
	EventWindowLimit int
	// TopicsWindowLimit 限定话题提取拉取的最近聊天记录条数。
	TopicsWindowLimit int
}

type FrontendConfig struct {
	// DistDir 非空时托管前端静态产物（如 ./web/dist）。
	DistDir string
}

// LoadFromEnv 仅从环境变量加载配置（不读取任何配置文件）。
func LoadFromEnv() (Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(&cfg)
	return normalizeAndValidate(cfg)
}

func normalizeAndValidate(cfg Config) (Config, error) {
	publicBaseURL, err := NormalizeHTTPBaseURL(cfg.Server.PublicBaseURL, "server.public_base_url")
	if err != nil {
		return Config{}, err
	}
	cfg.Server.PublicBaseURL = publicBaseURL
	if cfg.Server.Addr == "" {
		return Config{}, errors.New("server.addr 不能为空")
	}

	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.DB.DSN = strings.TrimSpace(cfg.DB.DSN)
	cfg.DB.SQLitePath = strings.TrimSpace(cfg.DB.SQLitePath)

	// 兼容旧配置：历史仅配置 db.dsn（无 db.driver）。
	if cfg.DB.Driver == "" {
		if cfg.DB.DSN != "" {
			cfg.DB.Driver = "mysql"
		} else {
			cfg.DB.Driver = "sqlite"
		}
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if cfg.DB.SQLitePath == "" {
			cfg.DB.SQLitePath = "./data/parley.db?_busy_timeout=30000"
		}
	case "mysql":
		if cfg.DB.DSN == "" {
			return Config{}, errors.New("db.dsn 不能为空（db.driver=mysql）")
		}
	default:
		return Config{}, fmt.Errorf("db.driver 不支持：%s（仅支持 mysql/sqlite）", cfg.DB.Driver)
	}

	for _, p := range []struct {
		label string
		cfg   *ProviderConfig
	}{
		{"providers.openai.base_url", &cfg.Providers.OpenAI},
		{"providers.anthropic.base_url", &cfg.Providers.Anthropic},
	} {
		u, err := NormalizeHTTPBaseURL(p.cfg.BaseURL, p.label)
		if err != nil {
			return Config{}, err
		}
		p.cfg.BaseURL = u
	}
	if cfg.Providers.OpenAI.BaseURL == "" {
		cfg.Providers.OpenAI.BaseURL = "https://api.openai.com"
	}
	if cfg.Providers.Anthropic.BaseURL == "" {
		cfg.Providers.Anthropic.BaseURL = "https://api.anthropic.com"
	}

	cfg.Pricing.CatalogURL = strings.TrimSpace(cfg.Pricing.CatalogURL)
	if cfg.Pricing.CacheTTLSeconds <= 0 {
		cfg.Pricing.CacheTTLSeconds = 600
	}

	if cfg.Usage.EventWindowLimit <= 0 {
		cfg.Usage.EventWindowLimit = 5000
	}
	if cfg.Usage.TopicsWindowLimit <= 0 {
		cfg.Usage.TopicsWindowLimit = 500
	}

	cfg.Frontend.DistDir = strings.TrimSpace(cfg.Frontend.DistDir)

	return cfg, nil
}

func NormalizeHTTPBaseURL(raw string, label string) (string, error) {
	v := strings.TrimRight(strings.TrimSpace(raw), "/")
	if v == "" {
		return "", nil
	}
	u, err := url.Parse(v)
	if err != nil {
		return "", fmt.Errorf("解析 %s 失败: %w", label, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%s 仅支持 http/https", label)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%s host 不能为空", label)
	}
	return v, nil
}

func defaultConfig() Config {
	return Config{
		Env: "dev",
		Server: ServerConfig{
			Addr: ":8080",

			ReadHeaderTimeoutSeconds: 5,
			IdleTimeoutSeconds:       120,
			MaxHeaderBytes:           1048576,

			ChatMaxBodyBytes:   8 << 20, // 8MB
			PublicMaxBodyBytes: 1 << 20, // 1MB
		},
		DB: DBConfig{
			SQLitePath: "./data/parley.db?_busy_timeout=30000",
		},
		Security: SecurityConfig{
			AllowOpenRegistration: true,
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				BaseURL: "https://api.openai.com",
			},
			Anthropic: ProviderConfig{
				BaseURL: "https://api.anthropic.com",
			},
		},
		Pricing: PricingConfig{
			CacheTTLSeconds: 600,
		},
		Usage: UsageConfig{
			EventWindowLimit:  5000,
			TopicsWindowLimit: 500,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PARLEY_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("PARLEY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PARLEY_PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := os.Getenv("PARLEY_SERVER_READ_HEADER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Server.ReadHeaderTimeoutSeconds = n
		}
	}
	if v := os.Getenv("PARLEY_SERVER_IDLE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Server.IdleTimeoutSeconds = n
		}
	}
	if v := os.Getenv("PARLEY_SERVER_MAX_HEADER_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.MaxHeaderBytes = n
		}
	}
	if v := os.Getenv("PARLEY_CHAT_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.ChatMaxBodyBytes = n
		}
	}
	if v := os.Getenv("PARLEY_PUBLIC_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.PublicMaxBodyBytes = n
		}
	}
	if v := os.Getenv("PARLEY_DB_DRIVER"); v != "" {
		cfg.DB.Driver = v
	}
	if v := os.Getenv("PARLEY_DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("PARLEY_SQLITE_PATH"); v != "" {
		cfg.DB.SQLitePath = v
	}
	if v := os.Getenv("PARLEY_ALLOW_OPEN_REGISTRATION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Security.AllowOpenRegistration = b
		}
	}
	if v := os.Getenv("PARLEY_DISABLE_SECURE_COOKIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Security.DisableSecureCookies = b
		}
	}
	if v := os.Getenv("PARLEY_OPENAI_BASE_URL"); v != "" {
		cfg.Providers.OpenAI.BaseURL = v
	}
	if v := os.Getenv("PARLEY_OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("PARLEY_OPENAI_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Providers.OpenAI.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("PARLEY_ANTHROPIC_BASE_URL"); v != "" {
		cfg.Providers.Anthropic.BaseURL = v
	}
	if v := os.Getenv("PARLEY_ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("PARLEY_ANTHROPIC_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Providers.Anthropic.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("PARLEY_PRICING_CATALOG_URL"); v != "" {
		cfg.Pricing.CatalogURL = v
	}
	if v := os.Getenv("PARLEY_PRICING_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pricing.CacheTTLSeconds = n
		}
	}
	if v := os.Getenv("PARLEY_USAGE_EVENT_WINDOW_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Usage.EventWindowLimit = n
		}
	}
	if v := os.Getenv("PARLEY_TOPICS_WINDOW_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Usage.TopicsWindowLimit = n
		}
	}
	if v := os.Getenv("PARLEY_FRONTEND_DIST_DIR"); v != "" {
		cfg.Frontend.DistDir = v
	}
}
