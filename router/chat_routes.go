package router

import (
	"github.com/gin-gonic/gin"
)

// setChatRoutes 挂载对话转发端点；两条路径分别对应两种上游形态。
func setChatRoutes(r *gin.Engine, opts Options) {
	if opts.Chat == nil {
		return
	}
	r.POST("/api/chat/completions", requireUserSession(opts), opts.Chat.OpenAIChatCompletions)
	r.POST("/api/chat/messages", requireUserSession(opts), opts.Chat.AnthropicMessages)
}

func setSystemRoutes(r *gin.Engine, opts Options) {
	if opts.Healthz != nil {
		r.GET("/healthz", wrapHTTPFunc(opts.Healthz))
	}
}
