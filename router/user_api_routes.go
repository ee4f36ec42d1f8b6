package router

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"parley/internal/auth"
	"parley/internal/store"
)

type userLoginRequest struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userRegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func setUserAPIRoutes(r gin.IRoutes, opts Options) {
	r.POST("/user/register", userRegisterHandler(opts))
	r.POST("/user/login", userLoginHandler(opts))
	r.GET("/user/logout", userLogoutHandler())
	r.GET("/user/self", requireUserSession(opts), userSelfHandler(opts))
}

func userLoginHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Store == nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "store 未初始化"})
			return
		}

		var req userLoginRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		login := strings.TrimSpace(req.Login)
		if login == "" {
			login = strings.TrimSpace(req.Username)
		}
		if login == "" {
			login = strings.TrimSpace(req.Email)
		}
		password := req.Password
		if login == "" || password == "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}

		// email: 统一按小写匹配；username: 大小写敏感匹配。
		u, err := opts.Store.GetUserByEmail(c.Request.Context(), strings.ToLower(login))
		if err != nil && errors.Is(err, sql.ErrNoRows) {
			u, err = opts.Store.GetUserByUsername(c.Request.Context(), login)
		}
		if err != nil || !auth.CheckPassword(u.PasswordHash, password) || u.Status != 1 {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "邮箱/账号名或密码错误"})
			return
		}

		sess := sessions.Default(c)
		sess.Set("id", u.ID)
		sess.Set("username", u.Username)
		sess.Set("role", u.Role)
		if err := sess.Save(); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无法保存会话信息，请重试"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "",
			"data": gin.H{
				"id":       u.ID,
				"email":    u.Email,
				"username": u.Username,
				"role":     u.Role,
			},
		})
	}
}

func userRegisterHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Store == nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "store 未初始化"})
			return
		}

		var req userRegisterRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}

		email := strings.TrimSpace(strings.ToLower(req.Email))
		username := strings.TrimSpace(req.Username)
		if email == "" || username == "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}

		count, err := opts.Store.CountUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "注册失败，请稍后再试"})
			return
		}
		// 首个用户自动成为 root；之后是否开放注册由配置决定。
		if count > 0 && !opts.AllowOpenRegistration {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "当前环境未开放注册"})
			return
		}
		role := store.UserRoleUser
		if count == 0 {
			role = store.UserRoleRoot
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
			return
		}

		id, err := opts.Store.CreateUser(c.Request.Context(), email, username, hash, role)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "注册失败，邮箱或账号名可能已被占用"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "",
			"data":    gin.H{"id": id, "email": email, "username": username, "role": role},
		})
	}
}

func userLogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clearSession(c)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": ""})
	}
}

func userSelfHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromContext(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "未登录"})
			return
		}
		u, err := opts.Store.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "未登录"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "",
			"data": gin.H{
				"id":       u.ID,
				"email":    u.Email,
				"username": u.Username,
				"role":     u.Role,
			},
		})
	}
}
