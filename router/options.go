package router

import (
	"net/http"

	"parley/internal/chat"
	"parley/internal/store"
)

type Options struct {
	Store *store.Store

	AllowOpenRegistration bool

	// 管理面聚合与话题提取的取数窗口。
	UsageEventWindowLimit int
	TopicsWindowLimit     int

	Chat *chat.Handler

	// frontend
	FrontendDistDir string // optional; e.g. "./web/dist" for serving static assets.

	// system
	Healthz http.HandlerFunc
}
