// Package server 组装 HTTP 路由、依赖与中间件，使 main 保持简单可读。
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"parley/internal/auth"
	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/costing"
	"parley/internal/pricing"
	"parley/internal/store"
	"parley/internal/version"
	"parley/router"
)

type AppOptions struct {
	Config  config.Config
	DB      *sql.DB
	Logger  *slog.Logger
	Version version.BuildInfo
}

type App struct {
	cfg     config.Config
	db      *sql.DB
	store   *store.Store
	chat    *chat.Handler
	version version.BuildInfo
	engine  *gin.Engine
}

func NewApp(opts AppOptions) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st := store.New(opts.DB)
	st.SetDialect(store.Dialect(opts.Config.DB.Driver))

	catalog := pricing.NewCatalog(pricing.CatalogOptions{
		URL: opts.Config.Pricing.CatalogURL,
		TTL: time.Duration(opts.Config.Pricing.CacheTTLSeconds) * time.Second,
	})
	resolver := pricing.NewResolver(st)
	calculator := costing.NewCalculator(resolver, catalog, nil)

	chatHandler := chat.NewHandler(chat.Options{
		Store:      st,
		Calculator: calculator,
		Logger:     logger,
		OpenAI: chat.ProviderConfig{
			BaseURL:        opts.Config.Providers.OpenAI.BaseURL,
			APIKey:         opts.Config.Providers.OpenAI.APIKey,
			RequestTimeout: time.Duration(opts.Config.Providers.OpenAI.RequestTimeoutSeconds) * time.Second,
		},
		Anthropic: chat.ProviderConfig{
			BaseURL:        opts.Config.Providers.Anthropic.BaseURL,
			APIKey:         opts.Config.Providers.Anthropic.APIKey,
			RequestTimeout: time.Duration(opts.Config.Providers.Anthropic.RequestTimeoutSeconds) * time.Second,
		},
		MaxBodyBytes: opts.Config.Server.ChatMaxBodyBytes,
	})

	app := &App{
		cfg:     opts.Config,
		db:      opts.DB,
		store:   st,
		chat:    chatHandler,
		version: opts.Version,
	}

	if opts.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if sessionSecret == "" {
		// 未配置时生成一次性密钥：重启后旧会话全部失效。
		generated, err := auth.NewSessionSecret()
		if err != nil {
			return nil, err
		}
		sessionSecret = generated
	}
	sessionStore := cookie.NewStore([]byte(sessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   2592000, // 30 days
		HttpOnly: true,
		Secure:   opts.Config.Env != "dev" && !opts.Config.Security.DisableSecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	engine.Use(sessions.Sessions("parley_session", sessionStore))

	router.SetRouter(engine, router.Options{
		Store:                 st,
		AllowOpenRegistration: opts.Config.Security.AllowOpenRegistration,
		UsageEventWindowLimit: opts.Config.Usage.EventWindowLimit,
		TopicsWindowLimit:     opts.Config.Usage.TopicsWindowLimit,
		Chat:                  chatHandler,
		FrontendDistDir:       opts.Config.Frontend.DistDir,
		Healthz:               app.handleHealthz,
	})
	app.engine = engine
	return app, nil
}

func (a *App) Handler() http.Handler {
	return a.engine
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	type resp struct {
		OK      bool   `json:"ok"`
		Env     string `json:"env"`
		Version string `json:"version"`
		Date    string `json:"date"`

		DBOK bool `json:"db_ok"`

		AllowOpenRegistration bool `json:"allow_open_registration"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	dbOK := a.db.PingContext(ctx) == nil

	out := resp{
		OK:                    true,
		Env:                   a.cfg.Env,
		Version:               a.version.Version,
		Date:                  a.version.Date,
		DBOK:                  dbOK,
		AllowOpenRegistration: a.cfg.Security.AllowOpenRegistration,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(out)
}
