package chat

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"parley/internal/costing"
	"parley/internal/obs"
	"parley/internal/store"
)

const (
	// 回放缓冲上限：超过后继续透传但不再捕获，计费按已捕获部分计。
	maxCaptureBytes = 4 << 20

	recordTimeout = 10 * time.Second
)

// Recorder 是转发后台落账需要的存储能力；*store.Store 即满足。
type Recorder interface {
	GetManagedModelByPublicID(ctx context.Context, publicID string) (store.ManagedModel, error)
	InsertUsageEvent(ctx context.Context, in store.InsertUsageEventInput) (int64, error)
	AddUsageToSummary(ctx context.Context, in store.AddUsageToSummaryInput) error
	InsertChatLog(ctx context.Context, in store.InsertChatLogInput) (int64, error)
}

type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

type Options struct {
	Store        Recorder
	Calculator   *costing.Calculator
	Logger       *slog.Logger
	OpenAI       ProviderConfig
	Anthropic    ProviderConfig
	MaxBodyBytes int64

	HTTPClient *http.Client
}

type Handler struct {
	store        Recorder
	calc         *costing.Calculator
	logger       *slog.Logger
	openai       ProviderConfig
	anthropic    ProviderConfig
	maxBodyBytes int64
	client       *http.Client

	// 测试里替换成同步执行，生产路径始终是 go fn()。
	spawn func(fn func())
}

func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 8 << 20
	}
	return &Handler{
		store:        opts.Store,
		calc:         opts.Calculator,
		logger:       logger,
		openai:       opts.OpenAI,
		anthropic:    opts.Anthropic,
		maxBodyBytes: maxBody,
		client:       client,
		spawn:        func(fn func()) { go fn() },
	}
}

// OpenAIChatCompletions 转发 POST /v1/chat/completions 形态的请求。
func (h *Handler) OpenAIChatCompletions(c *gin.Context) {
	h.relay(c, ProviderOpenAI, h.openai, "/v1/chat/completions")
}

// AnthropicMessages 转发 POST /v1/messages 形态的请求。
func (h *Handler) AnthropicMessages(c *gin.Context) {
	h.relay(c, ProviderAnthropic, h.anthropic, "/v1/messages")
}

func (h *Handler) relay(c *gin.Context, provider string, cfg ProviderConfig, path string) {
	userID := c.GetInt64("user_id")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请求体读取失败或超出大小限制"})
		return
	}

	publicModel := RequestModel(body)
	if publicModel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "model 不能为空"})
		return
	}

	conversationID := ConversationID(body)
	if conversationID == "" {
		conversationID = strings.TrimSpace(c.GetHeader("X-Conversation-Id"))
	}

	upstreamModel := ""
	if m, err := h.store.GetManagedModelByPublicID(c.Request.Context(), publicModel); err == nil {
		if m.Status != store.ManagedModelStatusEnabled {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "该模型未启用"})
			return
		}
		if m.UpstreamModel != nil {
			upstreamModel = *m.UpstreamModel
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		h.logger.Warn("模型登记查询失败，按未登记处理", "model", publicModel, "err", err)
	}

	outBody, err := StripLocalFields(body)
	if err == nil {
		outBody, err = RewriteRequestBody(outBody, upstreamModel)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请求体不是合法 JSON"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost,
		strings.TrimRight(cfg.BaseURL, "/")+path, bytes.NewReader(outBody))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "构造上游请求失败"})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	switch provider {
	case ProviderAnthropic:
		req.Header.Set("x-api-key", cfg.APIKey)
		version := strings.TrimSpace(c.GetHeader("anthropic-version"))
		if version == "" {
			version = "2023-06-01"
		}
		req.Header.Set("anthropic-version", version)
	default:
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	client := h.client
	if cfg.RequestTimeout > 0 {
		cc := *client
		cc.Timeout = cfg.RequestTimeout
		client = &cc
	}

	resp, err := client.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "上游请求失败"})
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(c.Writer.Header(), resp.Header)
	c.Writer.WriteHeader(resp.StatusCode)

	streamed := IsStream(body) ||
		strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
	captured := h.pump(c, resp.Body, streamed)

	// 回复已经送出，落账走后台；任何失败都不影响本次响应。
	if resp.StatusCode == http.StatusOK {
		reqCopy := body
		h.spawn(func() {
			h.recordTurn(userID, conversationID, publicModel, provider, reqCopy, captured, streamed)
		})
	}
}

// pump 把上游响应透传给客户端，同时最多捕获 maxCaptureBytes 字节供计费。
func (h *Handler) pump(c *gin.Context, upstream io.Reader, streamed bool) []byte {
	var capture bytes.Buffer
	var relayed int64
	if streamed {
		done := obs.TrackStreamRelay()
		defer done()
	}
	start := time.Now()
	firstWrite := false

	buf := make([]byte, 32<<10)
	for {
		n, err := upstream.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				break
			}
			relayed += int64(n)
			if streamed {
				if !firstWrite {
					firstWrite = true
					obs.RecordStreamFirstWriteLatency(time.Since(start))
				}
				c.Writer.Flush()
			}
			if capture.Len() < maxCaptureBytes {
				capture.Write(buf[:n])
			}
		}
		if err != nil {
			if err != io.EOF {
				h.logger.Warn("读取上游响应中断", "err", err)
			}
			break
		}
	}
	if streamed {
		obs.RecordStreamBytesRelayed(relayed)
	}
	return capture.Bytes()
}

func (h *Handler) recordTurn(userID int64, conversationID, publicModel, provider string, reqBody, captured []byte, streamed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	var reply string
	if streamed {
		reply = AccumulateStreamReply(captured, provider)
	} else {
		reply = ExtractAssistantReply(captured, provider)
	}

	prior, systemPrompt := ExtractConversation(reqBody, provider)

	res, err := h.calc.ComputeCost(ctx, publicModel, prior, systemPrompt, reply)
	if err != nil {
		h.logger.Error("用量折算失败，本轮不落账", "model", publicModel, "err", err)
		return
	}
	if res.Warning != "" {
		h.logger.Warn("用量折算告警", "model", publicModel, "warning", res.Warning)
	}

	var pricingModel *string
	if res.PricingModelID != "" {
		v := res.PricingModelID
		pricingModel = &v
	}
	if _, err := h.store.InsertUsageEvent(ctx, store.InsertUsageEventInput{
		UserID:         userID,
		ConversationID: conversationID,
		MessageIndex:   len(prior),
		Model:          publicModel,
		PricingModel:   pricingModel,
		Priced:         res.Priced,
		InputTokens:    res.InputTokens,
		OutputTokens:   res.OutputTokens,
		TotalUSD:       res.TotalUSD,
	}); err != nil {
		h.logger.Error("写入用量事件失败", "err", err)
		return
	}
	if err := h.store.AddUsageToSummary(ctx, store.AddUsageToSummaryInput{
		UserID:       userID,
		TotalUSD:     res.TotalUSD,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
	}); err != nil {
		h.logger.Error("更新用量汇总失败", "err", err)
	}
	if _, err := h.store.InsertChatLog(ctx, store.InsertChatLogInput{
		UserID:         userID,
		ConversationID: conversationID,
		Model:          publicModel,
		Question:       FirstUserText(reqBody),
		Answer:         reply,
	}); err != nil {
		h.logger.Error("写入问答记录失败", "err", err)
	}
}

// copyResponseHeaders 透传上游响应头，跳过连接级与长度相关的头。
func copyResponseHeaders(dst http.Header, src http.Header) {
	for k, vv := range src {
		switch strings.ToLower(k) {
		case "content-length", "connection", "transfer-encoding", "keep-alive":
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
