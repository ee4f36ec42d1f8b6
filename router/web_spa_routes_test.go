package router

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestWebSPARoutes_FallbackAndAPIPassthrough(t *testing.T) {
	gin.SetMode(gin.TestMode)

	dist := t.TempDir()
	index := "<!doctype html><html><body>INDEX</body></html>"
	if err := os.WriteFile(filepath.Join(dist, "index.html"), []byte(index), 0o644); err != nil {
		t.Fatalf("write index.html: %v", err)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	setWebSPARoutes(engine, Options{FrontendDistDir: dist})

	// API 前缀不回退到 index.html。
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/not-found", nil)
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("api status=%d body=%q", rr.Code, rr.Body.String())
	}

	// 前端路由回退到 index.html。
	req = httptest.NewRequest(http.MethodGet, "http://example.com/usage/overview", nil)
	rr = httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("spa status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "INDEX") {
		t.Fatalf("expected index fallback, got %q", rr.Body.String())
	}
}

func TestWebSPARoutes_EmptyDistDirDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	setWebSPARoutes(engine, Options{})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/anything", nil)
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}
