package chat

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"parley/internal/costing"
	"parley/internal/pricing"
	"parley/internal/store"
)

type memRecorder struct {
	models    map[string]store.ManagedModel
	events    []store.InsertUsageEventInput
	summaries []store.AddUsageToSummaryInput
	chatLogs  []store.InsertChatLogInput
}

func (m *memRecorder) GetManagedModelByPublicID(ctx context.Context, publicID string) (store.ManagedModel, error) {
	mm, ok := m.models[publicID]
	if !ok {
		return store.ManagedModel{}, sql.ErrNoRows
	}
	return mm, nil
}

func (m *memRecorder) InsertUsageEvent(ctx context.Context, in store.InsertUsageEventInput) (int64, error) {
	m.events = append(m.events, in)
	return int64(len(m.events)), nil
}

func (m *memRecorder) AddUsageToSummary(ctx context.Context, in store.AddUsageToSummaryInput) error {
	m.summaries = append(m.summaries, in)
	return nil
}

func (m *memRecorder) InsertChatLog(ctx context.Context, in store.InsertChatLogInput) (int64, error) {
	m.chatLogs = append(m.chatLogs, in)
	return int64(len(m.chatLogs)), nil
}

type spaceCounter struct{}

func (spaceCounter) Count(text string) int { return len(strings.Fields(text)) }

type passthroughCandidates struct{}

func (passthroughCandidates) Candidates(ctx context.Context, publicID string) []string {
	return []string{publicID}
}

type flatTable struct{}

func (flatTable) Lookup(ctx context.Context, modelID string) (pricing.Rate, bool) {
	return pricing.Rate{
		InputUSDPer1M:  decimal.RequireFromString("1"),
		OutputUSDPer1M: decimal.RequireFromString("2"),
	}, true
}

func newTestHandler(rec *memRecorder, upstreamURL string) *Handler {
	calc := costing.NewCalculator(passthroughCandidates{}, flatTable{}, func() (costing.TokenCounter, error) {
		return spaceCounter{}, nil
	})
	h := NewHandler(Options{
		Store:      rec,
		Calculator: calc,
		OpenAI:     ProviderConfig{BaseURL: upstreamURL, APIKey: "sk-test"},
		Anthropic:  ProviderConfig{BaseURL: upstreamURL, APIKey: "ak-test"},
	})
	h.spawn = func(fn func()) { fn() }
	return h
}

func newRelayContext(t *testing.T, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/chat/completions", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("user_id", int64(7))
	return c, w
}

func TestRelayRecordsUsageAfterDelivery(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if got := gjson.GetBytes(body, "model").String(); got != "gpt-4o-2024-08-06" {
			t.Errorf("expected upstream model substitution, got %q", got)
		}
		if gjson.GetBytes(body, "conversation_id").Exists() {
			t.Errorf("conversation_id must not reach upstream")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"four words reply here"}}]}`))
	}))
	defer upstream.Close()

	upstreamModel := "gpt-4o-2024-08-06"
	rec := &memRecorder{models: map[string]store.ManagedModel{
		"gpt-4o": {PublicID: "gpt-4o", Provider: "openai", UpstreamModel: &upstreamModel, Status: store.ManagedModelStatusEnabled},
	}}
	h := newTestHandler(rec, upstream.URL)

	c, w := newRelayContext(t, `{"model":"gpt-4o","conversation_id":"conv-1","messages":[{"role":"system","content":"be brief"},{"role":"user","content":"say four words"}]}`)
	h.OpenAIChatCompletions(c)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "four words reply here") {
		t.Fatalf("reply not delivered: %s", w.Body.String())
	}

	if len(rec.events) != 1 {
		t.Fatalf("expected one usage event, got %d", len(rec.events))
	}
	e := rec.events[0]
	if e.UserID != 7 || e.ConversationID != "conv-1" || e.Model != "gpt-4o" {
		t.Fatalf("unexpected event: %+v", e)
	}
	// 输入 = "be brief"(2) + "say four words"(3) = 5，输出 = 4。
	if e.InputTokens != 5 || e.OutputTokens != 4 {
		t.Fatalf("unexpected tokens: in=%d out=%d", e.InputTokens, e.OutputTokens)
	}
	if !e.Priced {
		t.Fatalf("expected priced event")
	}
	if e.MessageIndex != 1 {
		t.Fatalf("unexpected message index: %d", e.MessageIndex)
	}

	if len(rec.summaries) != 1 || len(rec.chatLogs) != 1 {
		t.Fatalf("expected summary and chat log writes: %d %d", len(rec.summaries), len(rec.chatLogs))
	}
	if rec.chatLogs[0].Question != "say four words" {
		t.Fatalf("unexpected question: %q", rec.chatLogs[0].Question)
	}
	if rec.chatLogs[0].Answer != "four words reply here" {
		t.Fatalf("unexpected answer: %q", rec.chatLogs[0].Answer)
	}
}

func TestRelayStreamedReply(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"streamed \"}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"reply\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer upstream.Close()

	rec := &memRecorder{}
	h := newTestHandler(rec, upstream.URL)

	c, w := newRelayContext(t, `{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"go"}]}`)
	h.OpenAIChatCompletions(c)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if len(rec.chatLogs) != 1 {
		t.Fatalf("expected chat log, got %d", len(rec.chatLogs))
	}
	if rec.chatLogs[0].Answer != "streamed reply" {
		t.Fatalf("unexpected accumulated answer: %q", rec.chatLogs[0].Answer)
	}
	if rec.events[0].OutputTokens != 2 {
		t.Fatalf("unexpected output tokens: %d", rec.events[0].OutputTokens)
	}
}

func TestRelayRejectsDisabledModel(t *testing.T) {
	rec := &memRecorder{models: map[string]store.ManagedModel{
		"old-model": {PublicID: "old-model", Provider: "openai", Status: store.ManagedModelStatusDisabled},
	}}
	h := newTestHandler(rec, "http://127.0.0.1:0")

	c, w := newRelayContext(t, `{"model":"old-model","messages":[]}`)
	h.OpenAIChatCompletions(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if len(rec.events) != 0 {
		t.Fatalf("no usage should be recorded")
	}
}

func TestRelayRequiresModel(t *testing.T) {
	rec := &memRecorder{}
	h := newTestHandler(rec, "http://127.0.0.1:0")

	c, w := newRelayContext(t, `{"messages":[]}`)
	h.OpenAIChatCompletions(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", w.Code)
	}
}

func TestRelayUpstreamErrorNotRecorded(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer upstream.Close()

	rec := &memRecorder{}
	h := newTestHandler(rec, upstream.URL)

	c, w := newRelayContext(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	h.OpenAIChatCompletions(c)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected upstream status passthrough: %d", w.Code)
	}
	if len(rec.events) != 0 {
		t.Fatalf("failed turns must not be billed")
	}
}

func TestRelayAnthropicHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "ak-test" {
			t.Errorf("unexpected api key header: %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("unexpected version header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer upstream.Close()

	rec := &memRecorder{}
	h := newTestHandler(rec, upstream.URL)

	c, w := newRelayContext(t, `{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"ping"}]}`)
	h.AnthropicMessages(c)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if len(rec.chatLogs) != 1 || rec.chatLogs[0].Answer != "ok" {
		t.Fatalf("unexpected chat log: %+v", rec.chatLogs)
	}
}
