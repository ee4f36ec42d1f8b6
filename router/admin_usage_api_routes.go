package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parley/internal/store"
	"parley/internal/topics"
	"parley/internal/usage"
)

func setAdminAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/admin/usage", requireRootSession(opts), adminUsageHandler(opts))
	r.GET("/admin/topics", requireRootSession(opts), adminTopicsHandler(opts))
}

// GET /api/admin/usage 对最近事件窗口做聚合；事件与汇总两路取数并发进行。
func adminUsageHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		limit := opts.UsageEventWindowLimit
		if limit <= 0 {
			limit = 5000
		}

		type eventsResult struct {
			events []store.UsageEvent
			err    error
		}
		eventsCh := make(chan eventsResult, 1)
		go func() {
			events, err := opts.Store.ListRecentUsageEvents(ctx, limit)
			eventsCh <- eventsResult{events: events, err: err}
		}()

		summaries, sumErr := opts.Store.ListUsageSummaries(ctx, 50)
		ev := <-eventsCh

		// 任一路取数失败则整个聚合请求失败，不返回残缺报表。
		if ev.err != nil || sumErr != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "用量数据查询失败"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "",
			"data":    usage.Aggregate(ev.events, summaries),
		})
	}
}

// GET /api/admin/topics 在最近问答窗口上提取关键词。
func adminTopicsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := opts.TopicsWindowLimit
		if limit <= 0 {
			limit = 500
		}

		logs, err := opts.Store.ListRecentChatLogs(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "问答记录查询失败"})
			return
		}

		rows := topics.Extract(topics.FromChatLogs(logs))
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "",
			"data":    gin.H{"topics": rows, "count": len(rows)},
		})
	}
}
