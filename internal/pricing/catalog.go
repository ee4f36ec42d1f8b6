// Package pricing 负责模型单价的解析：先查远端目录（带 TTL 缓存），失败时退回
// 内置价目表，保证离线环境下计费仍可工作。
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCatalogURL = "https://models.dev/api.json"

var (
	defaultCacheTTL    = 10 * time.Minute
	defaultHTTPTimeout = 8 * time.Second
)

// Rate 是单个模型的计费单价，单位为每百万 token 的美元数。
type Rate struct {
	InputUSDPer1M  decimal.Decimal
	OutputUSDPer1M decimal.Decimal
}

// Table 是计费侧需要的最小接口：按模型 id 查单价。
type Table interface {
	Lookup(ctx context.Context, modelID string) (Rate, bool)
}

type CatalogOptions struct {
	URL string
	TTL time.Duration

	HTTPClient *http.Client
}

// Catalog 从 models.dev 风格的目录拉取价格并缓存；远端不可用时透明退回
// 内置 fallbackRates，调用方感知不到数据来源。
type Catalog struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu         sync.Mutex
	cachedAt   time.Time
	cachedETag string
	providers  map[string]catalogProvider
}

type catalogProvider struct {
	ID     string                  `json:"id"`
	Models map[string]catalogModel `json:"models"`
}

type catalogModel struct {
	ID   string       `json:"id"`
	Cost *catalogCost `json:"cost"`
	// 其他字段在本需求中不使用，避免过度绑定 schema。
}

type catalogCost struct {
	Input  decimal.Decimal `json:"input"`
	Output decimal.Decimal `json:"output"`
}

func NewCatalog(opts CatalogOptions) *Catalog {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		url = DefaultCatalogURL
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Catalog{
		url:    url,
		ttl:    ttl,
		client: client,
	}
}

func (c *Catalog) Lookup(ctx context.Context, modelID string) (Rate, bool) {
	id := strings.ToLower(strings.TrimSpace(modelID))
	if id == "" {
		return Rate{}, false
	}

	providers, err := c.getProviders(ctx)
	if err != nil {
		// 远端不可用，走内置价目表。
		return lookupFallback(id)
	}

	// 支持显式 provider/model：例如 openai/gpt-4o。
	if providerID, subID, ok := strings.Cut(id, "/"); ok {
		providerID = strings.TrimSpace(providerID)
		subID = strings.TrimSpace(subID)
		if providerID != "" && subID != "" {
			if p, ok := providers[providerID]; ok && p.Models != nil {
				if m, ok := p.Models[subID]; ok && m.Cost != nil {
					return Rate{InputUSDPer1M: m.Cost.Input, OutputUSDPer1M: m.Cost.Output}, true
				}
			}
		}
	}

	for _, p := range providers {
		if p.Models == nil {
			continue
		}
		m, ok := p.Models[id]
		if !ok || m.Cost == nil {
			continue
		}
		return Rate{InputUSDPer1M: m.Cost.Input, OutputUSDPer1M: m.Cost.Output}, true
	}
	return lookupFallback(id)
}

func (c *Catalog) getProviders(ctx context.Context) (map[string]catalogProvider, error) {
	now := time.Now()

	c.mu.Lock()
	cached := c.providers
	cachedAt := c.cachedAt
	etag := c.cachedETag
	ttl := c.ttl
	c.mu.Unlock()

	if cached != nil && now.Sub(cachedAt) <= ttl {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "parley/1 (pricing lookup)")
	if strings.TrimSpace(etag) != "" {
		req.Header.Set("If-None-Match", strings.TrimSpace(etag))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// 拉取失败但本地还有过期缓存时继续用旧数据，宁可价格略旧也不丢计费。
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		c.mu.Lock()
		if c.providers != nil {
			c.cachedAt = now
			out := c.providers
			c.mu.Unlock()
			return out, nil
		}
		c.mu.Unlock()
		// 兜底：本地无缓存但收到 304，视为异常，继续按失败处理。
		return nil, errors.New("价格目录响应异常（304 但无本地缓存）")
	default:
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("价格目录请求失败（HTTP %d）", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var providers map[string]catalogProvider
	if err := dec.Decode(&providers); err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, errors.New("价格目录返回空数据")
	}

	newETag := strings.TrimSpace(resp.Header.Get("ETag"))

	c.mu.Lock()
	c.providers = providers
	c.cachedAt = now
	c.cachedETag = newETag
	c.mu.Unlock()
	return providers, nil
}
