// Package costing 把一轮助手回复折算成 token 数与美元成本。token 由本地
// 分词器统计，单价按候选模型顺序取第一个命中的价目条目。
package costing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"parley/internal/pricing"
	"parley/internal/tokenizer"
)

// TokenCounter 统计一段文本的 token 数。
type TokenCounter interface {
	Count(text string) int
}

// CounterFactory 延迟构造分词器；首次构造可能需要加载词表，失败视为致命。
type CounterFactory func() (TokenCounter, error)

type Message struct {
	Role    string
	Content string
}

type Result struct {
	InputTokens    int64
	OutputTokens   int64
	TotalUSD       decimal.Decimal
	Priced         bool
	PricingModelID string
	Warning        string
}

// CandidateSource 给出一个对外模型 id 的有序计价候选。
type CandidateSource interface {
	Candidates(ctx context.Context, publicID string) []string
}

type Calculator struct {
	candidates CandidateSource
	table      pricing.Table

	newCounter CounterFactory
	counterMu  sync.Mutex
	counter    TokenCounter
	counterErr error
}

func NewCalculator(candidates CandidateSource, table pricing.Table, factory CounterFactory) *Calculator {
	if factory == nil {
		factory = func() (TokenCounter, error) { return tokenizer.NewCounter() }
	}
	return &Calculator{
		candidates: candidates,
		table:      table,
		newCounter: factory,
	}
}

// ComputeCost 对一轮对话计费：输入侧为系统提示词加全部在前消息，输出侧为
// 本轮助手回复。价目未命中时记录 token 但金额为零，Priced=false。
func (c *Calculator) ComputeCost(ctx context.Context, modelID string, prior []Message, systemPrompt string, assistantReply string) (Result, error) {
	counter, err := c.getCounter()
	if err != nil {
		return Result{}, fmt.Errorf("初始化分词器失败: %w", err)
	}

	inputTokens := int64(counter.Count(systemPrompt))
	for _, m := range prior {
		inputTokens += int64(counter.Count(m.Content))
	}
	outputTokens := int64(counter.Count(assistantReply))

	res := Result{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalUSD:     decimal.Zero,
	}

	candidates := c.candidates.Candidates(ctx, modelID)

	var rate pricing.Rate
	for _, candidate := range candidates {
		if r, ok := c.table.Lookup(ctx, candidate); ok {
			rate = r
			res.Priced = true
			res.PricingModelID = candidate
			break
		}
	}
	if !res.Priced {
		res.Warning = fmt.Sprintf("模型 %s 无可用定价（已尝试候选 %v），已按零成本记录", modelID, candidates)
		return res, nil
	}

	total, err := costUSD(inputTokens, rate.InputUSDPer1M, outputTokens, rate.OutputUSDPer1M)
	if err != nil {
		return Result{}, err
	}
	res.TotalUSD = total
	return res, nil
}

func (c *Calculator) getCounter() (TokenCounter, error) {
	c.counterMu.Lock()
	defer c.counterMu.Unlock()
	if c.counter != nil || c.counterErr != nil {
		return c.counter, c.counterErr
	}
	c.counter, c.counterErr = c.newCounter()
	if c.counter == nil && c.counterErr == nil {
		c.counterErr = errors.New("分词器工厂返回空实现")
	}
	return c.counter, c.counterErr
}

func costUSD(inTok int64, inUSDPer1M decimal.Decimal, outTok int64, outUSDPer1M decimal.Decimal) (decimal.Decimal, error) {
	cost := func(tokens int64, usdPer1M decimal.Decimal) (decimal.Decimal, error) {
		if tokens == 0 || usdPer1M.Equal(decimal.Zero) {
			return decimal.Zero, nil
		}
		if tokens < 0 || usdPer1M.IsNegative() {
			return decimal.Zero, errors.New("成本计算参数为负数")
		}
		return decimal.NewFromInt(tokens).Mul(usdPer1M).Div(decimal.NewFromInt(1_000_000)).Truncate(6), nil
	}

	inCost, err := cost(inTok, inUSDPer1M)
	if err != nil {
		return decimal.Zero, err
	}
	outCost, err := cost(outTok, outUSDPer1M)
	if err != nil {
		return decimal.Zero, err
	}

	sum := inCost.Add(outCost)
	if sum.IsNegative() {
		return decimal.Zero, errors.New("成本计算为负数")
	}
	// 与 DB 精度对齐：最终仍截断到 6 位小数。
	return sum.Truncate(6), nil
}
