package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"parley/internal/store"
)

func requireUserSession(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := authenticateSession(c, opts)
		if !ok {
			return
		}

		c.Set("user_id", u.ID)
		c.Set("user_role", strings.TrimSpace(u.Role))
		c.Next()
	}
}

func requireRootSession(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := authenticateSession(c, opts)
		if !ok {
			return
		}
		if strings.TrimSpace(u.Role) != store.UserRoleRoot {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "权限不足"})
			c.Abort()
			return
		}

		c.Set("user_id", u.ID)
		c.Set("user_role", strings.TrimSpace(u.Role))
		c.Next()
	}
}

// authenticateSession 校验登录会话；失败时已写好响应并 Abort。
func authenticateSession(c *gin.Context, opts Options) (store.User, bool) {
	userID, ok := sessionUserID(c)
	if !ok {
		clearSession(c)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "未登录"})
		c.Abort()
		return store.User{}, false
	}

	// 防止 CSRF：要求 Parley-User header 匹配登录用户（跨站请求难以伪造该自定义 header）。
	parleyUser := strings.TrimSpace(c.GetHeader("Parley-User"))
	headerID, err := strconv.ParseInt(parleyUser, 10, 64)
	if err != nil || headerID <= 0 || headerID != userID {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "无权进行此操作，Parley-User 无效"})
		c.Abort()
		return store.User{}, false
	}

	if opts.Store == nil {
		clearSession(c)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "store 未初始化"})
		c.Abort()
		return store.User{}, false
	}

	u, err := opts.Store.GetUserByID(c.Request.Context(), userID)
	if err != nil || u.ID <= 0 || u.Status != 1 {
		clearSession(c)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "未登录"})
		c.Abort()
		return store.User{}, false
	}
	return u, true
}

func clearSession(c *gin.Context) {
	if c == nil {
		return
	}
	sess := sessions.Default(c)
	sess.Clear()
	_ = sess.Save()
}

func userIDFromContext(c *gin.Context) (int64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return x, x > 0
	case int:
		return int64(x), x > 0
	default:
		return 0, false
	}
}
