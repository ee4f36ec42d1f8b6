package costing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"parley/internal/pricing"
)

// wordCounter 按空白分词，给测试一个确定的 token 口径。
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

type staticCandidates struct {
	byModel map[string][]string
}

func (s staticCandidates) Candidates(ctx context.Context, publicID string) []string {
	return s.byModel[publicID]
}

type staticTable struct {
	rates map[string]pricing.Rate
}

func (s staticTable) Lookup(ctx context.Context, modelID string) (pricing.Rate, bool) {
	r, ok := s.rates[modelID]
	return r, ok
}

func newTestCalculator(candidates CandidateSource, table pricing.Table) *Calculator {
	return NewCalculator(candidates, table, func() (TokenCounter, error) {
		return wordCounter{}, nil
	})
}

func TestComputeCostDeterministic(t *testing.T) {
	t.Parallel()
	calc := newTestCalculator(
		staticCandidates{byModel: map[string][]string{"gpt-4o": {"gpt-4o"}}},
		staticTable{rates: map[string]pricing.Rate{
			"gpt-4o": {
				InputUSDPer1M:  decimal.RequireFromString("2.5"),
				OutputUSDPer1M: decimal.RequireFromString("10"),
			},
		}},
	)

	prior := []Message{
		{Role: "user", Content: "one two three"},
		{Role: "assistant", Content: "four five"},
	}
	// 输入 = 系统提示词 2 + 在前消息 5 = 7 token，输出 = 3 token。
	res, err := calc.ComputeCost(context.Background(), "gpt-4o", prior, "be helpful", "sure thing boss")
	if err != nil {
		t.Fatalf("ComputeCost: %v", err)
	}
	if res.InputTokens != 7 || res.OutputTokens != 3 {
		t.Fatalf("unexpected token counts: in=%d out=%d", res.InputTokens, res.OutputTokens)
	}
	if !res.Priced || res.PricingModelID != "gpt-4o" {
		t.Fatalf("expected priced result, got %+v", res)
	}
	// 7*2.5/1M + 3*10/1M = 0.0000175 + 0.00003，各自截断 6 位后相加。
	if got := res.TotalUSD.String(); got != "0.000047" {
		t.Fatalf("unexpected total: got=%s want=0.000047", got)
	}

	// 相同输入必须得到相同结果。
	res2, err := calc.ComputeCost(context.Background(), "gpt-4o", prior, "be helpful", "sure thing boss")
	if err != nil {
		t.Fatalf("ComputeCost (2): %v", err)
	}
	if !res2.TotalUSD.Equal(res.TotalUSD) || res2.InputTokens != res.InputTokens {
		t.Fatalf("expected deterministic result: first=%+v second=%+v", res, res2)
	}
}

func TestComputeCostFirstCandidateWins(t *testing.T) {
	t.Parallel()
	calc := newTestCalculator(
		staticCandidates{byModel: map[string][]string{
			"claude-opus-4.5": {"claude-opus-4-5-upstream", "claude-opus-4.5", "claude-opus-4-5"},
		}},
		staticTable{rates: map[string]pricing.Rate{
			// 第一个候选无定价，第二个没有，第三个才命中。
			"claude-opus-4-5": {
				InputUSDPer1M:  decimal.RequireFromString("5"),
				OutputUSDPer1M: decimal.RequireFromString("25"),
			},
		}},
	)

	res, err := calc.ComputeCost(context.Background(), "claude-opus-4.5", nil, "", "hello there")
	if err != nil {
		t.Fatalf("ComputeCost: %v", err)
	}
	if res.PricingModelID != "claude-opus-4-5" {
		t.Fatalf("expected third candidate to win: got=%s", res.PricingModelID)
	}
}

func TestComputeCostPricingMiss(t *testing.T) {
	t.Parallel()
	calc := newTestCalculator(
		staticCandidates{byModel: map[string][]string{
			"mystery-model": {"mystery-upstream", "mystery-model", "mystery-alias"},
		}},
		staticTable{},
	)

	res, err := calc.ComputeCost(context.Background(), "mystery-model", nil, "", "some reply text")
	if err != nil {
		t.Fatalf("ComputeCost: %v", err)
	}
	if res.Priced {
		t.Fatalf("expected unpriced result")
	}
	if !res.TotalUSD.IsZero() {
		t.Fatalf("expected zero cost, got %s", res.TotalUSD)
	}
	if res.OutputTokens != 3 {
		t.Fatalf("tokens should still be counted: got=%d want=3", res.OutputTokens)
	}
	// 告警要能看出模型 id 和耗尽的全部候选。
	for _, needle := range []string{"mystery-model", "mystery-upstream", "mystery-alias"} {
		if !strings.Contains(res.Warning, needle) {
			t.Fatalf("warning missing %q: %s", needle, res.Warning)
		}
	}
}

func TestComputeCostCounterInitFailureIsFatal(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("词表加载失败")
	calc := NewCalculator(
		staticCandidates{},
		staticTable{},
		func() (TokenCounter, error) { return nil, wantErr },
	)

	if _, err := calc.ComputeCost(context.Background(), "gpt-4o", nil, "", "hi"); !errors.Is(err, wantErr) {
		t.Fatalf("expected counter init error, got %v", err)
	}
	// 失败结果被缓存，第二次同样报错。
	if _, err := calc.ComputeCost(context.Background(), "gpt-4o", nil, "", "hi"); !errors.Is(err, wantErr) {
		t.Fatalf("expected cached init error, got %v", err)
	}
}
