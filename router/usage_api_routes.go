package router

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxUserEventPageSize = 500

func setUsageAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/usage/events", requireUserSession(opts), userUsageEventsHandler(opts))
	r.GET("/usage/summary", requireUserSession(opts), userUsageSummaryHandler(opts))
}

// GET /api/usage/events?limit=100&before_id=123 按 id 倒序分页返回本人事件。
func userUsageEventsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromContext(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "未登录"})
			return
		}

		limit := 100
		if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "limit 参数无效"})
				return
			}
			limit = n
		}
		if limit > maxUserEventPageSize {
			limit = maxUserEventPageSize
		}

		var beforeID *int64
		if raw := strings.TrimSpace(c.Query("before_id")); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n <= 0 {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "before_id 参数无效"})
				return
			}
			beforeID = &n
		}

		events, err := opts.Store.ListUsageEventsByUser(c.Request.Context(), userID, limit, beforeID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询用量事件失败"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": gin.H{
			"events": events,
			"count":  len(events),
		}})
	}
}

func userUsageSummaryHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromContext(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "未登录"})
			return
		}

		sum, err := opts.Store.GetUsageSummary(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// 还没有任何用量：返回全零汇总而不是报错。
				c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": gin.H{
					"user_id":             userID,
					"total_usd":           "0",
					"total_input_tokens":  0,
					"total_output_tokens": 0,
					"total_messages":      0,
				}})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询用量汇总失败"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": sum})
	}
}
