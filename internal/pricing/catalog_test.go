package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCatalogLookupRemote(t *testing.T) {
	t.Parallel()
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "openai": {
    "id": "openai",
    "models": {
      "gpt-4o": {"id": "gpt-4o", "cost": {"input": 2.5, "output": 10}}
    }
  },
  "anthropic": {
    "id": "anthropic",
    "models": {
      "claude-sonnet-4-5": {"id": "claude-sonnet-4-5", "cost": {"input": 3, "output": 15}}
    }
  }
}`))
	}))
	defer srv.Close()

	c := NewCatalog(CatalogOptions{URL: srv.URL, TTL: time.Minute})
	ctx := context.Background()

	rate, ok := c.Lookup(ctx, "claude-sonnet-4-5")
	if !ok {
		t.Fatalf("expected hit for claude-sonnet-4-5")
	}
	if got := rate.InputUSDPer1M.String(); got != "3" {
		t.Fatalf("unexpected input rate: got=%s want=3", got)
	}
	if got := rate.OutputUSDPer1M.String(); got != "15" {
		t.Fatalf("unexpected output rate: got=%s want=15", got)
	}

	// provider/model 形式也要能命中。
	if _, ok := c.Lookup(ctx, "openai/gpt-4o"); !ok {
		t.Fatalf("expected hit for openai/gpt-4o")
	}

	// 大小写与空白归一化。
	if _, ok := c.Lookup(ctx, "  GPT-4o  "); !ok {
		t.Fatalf("expected hit for normalized id")
	}

	if hits != 1 {
		t.Fatalf("expected TTL cache to dedupe fetches: hits=%d", hits)
	}
}

func TestCatalogLookupFallsBackWhenRemoteDown(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 立即关掉，模拟远端不可用

	c := NewCatalog(CatalogOptions{URL: srv.URL, TTL: time.Minute})
	ctx := context.Background()

	rate, ok := c.Lookup(ctx, "claude-opus-4-5")
	if !ok {
		t.Fatalf("expected fallback hit for claude-opus-4-5")
	}
	if got := rate.OutputUSDPer1M.String(); got != "25" {
		t.Fatalf("unexpected fallback output rate: got=%s want=25", got)
	}

	if _, ok := c.Lookup(ctx, "totally-unknown-model"); ok {
		t.Fatalf("expected miss for unknown model")
	}
}

func TestCatalogLookupMissReturnsFallbackMiss(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"openai": {"id": "openai", "models": {}}}`))
	}))
	defer srv.Close()

	c := NewCatalog(CatalogOptions{URL: srv.URL, TTL: time.Minute})

	// 远端在线但没有条目时仍查内置表。
	if _, ok := c.Lookup(context.Background(), "gpt-4o-mini"); !ok {
		t.Fatalf("expected builtin table hit for gpt-4o-mini")
	}
}
