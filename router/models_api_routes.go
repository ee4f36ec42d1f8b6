package router

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parley/internal/chat"
	"parley/internal/store"
)

type createModelRequest struct {
	PublicID      string `json:"public_id"`
	Provider      string `json:"provider"`
	UpstreamModel string `json:"upstream_model"`
	DisplayName   string `json:"display_name"`
	Status        string `json:"status"`
}

func setModelAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/models", requireUserSession(opts), listModelsHandler(opts))
	r.POST("/admin/models", requireRootSession(opts), createModelHandler(opts))
	r.DELETE("/admin/models/:public_id", requireRootSession(opts), deleteModelHandler(opts))
}

func listModelsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		models, err := opts.Store.ListManagedModels(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "模型列表查询失败"})
			return
		}
		// 普通用户只看到已启用的模型；root 看全量。
		if c.GetString("user_role") != store.UserRoleRoot {
			enabled := models[:0]
			for _, m := range models {
				if m.Status == store.ManagedModelStatusEnabled {
					enabled = append(enabled, m)
				}
			}
			models = enabled
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": gin.H{"models": models}})
	}
}

func createModelHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createModelRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		provider := strings.ToLower(strings.TrimSpace(req.Provider))
		switch provider {
		case chat.ProviderOpenAI, chat.ProviderAnthropic:
		default:
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "provider 仅支持 openai / anthropic"})
			return
		}

		in := store.CreateManagedModelInput{
			PublicID: req.PublicID,
			Provider: provider,
			Status:   strings.TrimSpace(req.Status),
		}
		if v := strings.TrimSpace(req.UpstreamModel); v != "" {
			in.UpstreamModel = &v
		}
		if v := strings.TrimSpace(req.DisplayName); v != "" {
			in.DisplayName = &v
		}

		id, err := opts.Store.CreateManagedModel(c.Request.Context(), in)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "创建模型失败，public_id 可能已存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": gin.H{"id": id}})
	}
}

func deleteModelHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		publicID := strings.TrimSpace(c.Param("public_id"))
		if err := opts.Store.DeleteManagedModel(c.Request.Context(), publicID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "模型不存在"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "删除模型失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": ""})
	}
}
