package pricing

import "github.com/shopspring/decimal"

// fallbackRates 是内置价目表，只覆盖常见模型；单位同 Rate（USD / 1M token）。
// 目录可用时远端数据优先，这张表仅在离线或远端异常时兜底。
var fallbackRates = map[string]Rate{
	"gpt-4o": {
		InputUSDPer1M:  decimal.RequireFromString("2.5"),
		OutputUSDPer1M: decimal.RequireFromString("10"),
	},
	"gpt-4o-mini": {
		InputUSDPer1M:  decimal.RequireFromString("0.15"),
		OutputUSDPer1M: decimal.RequireFromString("0.6"),
	},
	"gpt-4.1": {
		InputUSDPer1M:  decimal.RequireFromString("2"),
		OutputUSDPer1M: decimal.RequireFromString("8"),
	},
	"gpt-4.1-mini": {
		InputUSDPer1M:  decimal.RequireFromString("0.4"),
		OutputUSDPer1M: decimal.RequireFromString("1.6"),
	},
	"o3": {
		InputUSDPer1M:  decimal.RequireFromString("2"),
		OutputUSDPer1M: decimal.RequireFromString("8"),
	},
	"claude-opus-4-5": {
		InputUSDPer1M:  decimal.RequireFromString("5"),
		OutputUSDPer1M: decimal.RequireFromString("25"),
	},
	"claude-sonnet-4-5": {
		InputUSDPer1M:  decimal.RequireFromString("3"),
		OutputUSDPer1M: decimal.RequireFromString("15"),
	},
	"claude-haiku-4-5": {
		InputUSDPer1M:  decimal.RequireFromString("1"),
		OutputUSDPer1M: decimal.RequireFromString("5"),
	},
	"claude-3-5-sonnet": {
		InputUSDPer1M:  decimal.RequireFromString("3"),
		OutputUSDPer1M: decimal.RequireFromString("15"),
	},
	"claude-3-5-haiku": {
		InputUSDPer1M:  decimal.RequireFromString("0.8"),
		OutputUSDPer1M: decimal.RequireFromString("4"),
	},
	"deepseek-chat": {
		InputUSDPer1M:  decimal.RequireFromString("0.27"),
		OutputUSDPer1M: decimal.RequireFromString("1.1"),
	},
}

func lookupFallback(id string) (Rate, bool) {
	r, ok := fallbackRates[id]
	return r, ok
}
