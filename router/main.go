package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func SetRouter(r *gin.Engine, opts Options) {
	setSystemRoutes(r, opts)

	// 转发路由不套 gzip：SSE 流被压缩缓冲后会失去逐块送达的意义。
	setChatRoutes(r, opts)

	api := r.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	setUserAPIRoutes(api, opts)
	setModelAPIRoutes(api, opts)
	setUsageAPIRoutes(api, opts)
	setAdminAPIRoutes(api, opts)

	setWebSPARoutes(r, opts)
}
