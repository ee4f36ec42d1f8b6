package usage

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"parley/internal/store"
)

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func strPtr(s string) *string { return &s }

func TestAggregateTotalsAndBuckets(t *testing.T) {
	t.Parallel()
	day1 := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 30, 9, 30, 0, 0, time.UTC)

	events := []store.UsageEvent{
		{UserID: 1, Model: "gpt-4o", PricingModel: strPtr("gpt-4o"), Priced: true,
			InputTokens: 100, OutputTokens: 50, TotalUSD: usd("0.00075"), CreatedAt: day1},
		{UserID: 1, Model: "gpt-4o", PricingModel: strPtr("gpt-4o"), Priced: true,
			InputTokens: 200, OutputTokens: 80, TotalUSD: usd("0.0013"), CreatedAt: day2},
		{UserID: 2, Model: "mystery", Priced: false,
			InputTokens: 10, OutputTokens: 5, TotalUSD: decimal.Zero, CreatedAt: day2},
		// 时间无法解析：不进按天分布，但计入其余口径。
		{UserID: 0, Model: "", Priced: false,
			InputTokens: 1, OutputTokens: 1, TotalUSD: decimal.Zero},
	}
	summaries := []store.UsageSummary{{UserID: 1, TotalUSD: usd("12.5"), TotalMessages: 400}}

	r := Aggregate(events, summaries)

	if got := r.Totals.TotalUSD.String(); got != "0.00205" {
		t.Fatalf("unexpected total usd: got=%s want=0.00205", got)
	}
	if r.Totals.AssistantMessages != 4 || r.Totals.PricedAssistantMessages != 2 {
		t.Fatalf("unexpected message totals: %+v", r.Totals)
	}
	if r.Totals.InputTokens != 311 || r.Totals.OutputTokens != 136 {
		t.Fatalf("unexpected token totals: %+v", r.Totals)
	}

	if len(r.ByDay) != 2 {
		t.Fatalf("unexpected day rows: %+v", r.ByDay)
	}
	if r.ByDay[0].Day != "2026-08-30" || r.ByDay[1].Day != "2026-08-29" {
		t.Fatalf("expected newest day first: %+v", r.ByDay)
	}
	if r.ByDay[0].Messages != 2 {
		t.Fatalf("unexpected messages on newest day: got=%d want=2", r.ByDay[0].Messages)
	}

	if len(r.ByModel) != 3 {
		t.Fatalf("unexpected model rows: %+v", r.ByModel)
	}
	if r.ByModel[0].Model != "gpt-4o" || r.ByModel[0].Messages != 2 {
		t.Fatalf("expected gpt-4o ranked first: %+v", r.ByModel[0])
	}
	// PricingModel 缺失时回退到 Model，再缺失记作 unknown。
	foundUnknown := false
	for _, row := range r.ByModel {
		if row.Model == "unknown" {
			foundUnknown = true
		}
	}
	if !foundUnknown {
		t.Fatalf("expected unknown model bucket: %+v", r.ByModel)
	}

	if len(r.ByUser) != 3 {
		t.Fatalf("unexpected user rows: %+v", r.ByUser)
	}
	if r.ByUser[0].UserKey != "user:1" {
		t.Fatalf("expected user:1 ranked first: %+v", r.ByUser[0])
	}
	foundAnon := false
	for _, row := range r.ByUser {
		if row.UserKey == "anonymous" {
			foundAnon = true
		}
	}
	if !foundAnon {
		t.Fatalf("expected anonymous bucket: %+v", r.ByUser)
	}

	if len(r.AllTime) != 1 || r.AllTime[0].UserID != 1 {
		t.Fatalf("expected summaries passthrough: %+v", r.AllTime)
	}
}

func TestAggregateDayWindowTruncation(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	var events []store.UsageEvent
	for i := 0; i < 70; i++ {
		events = append(events, store.UsageEvent{
			UserID:    1,
			Model:     "gpt-4o",
			TotalUSD:  usd("0.000001"),
			CreatedAt: base.AddDate(0, 0, -i),
		})
	}

	r := Aggregate(events, nil)
	if len(r.ByDay) != maxDayRows {
		t.Fatalf("unexpected day rows: got=%d want=%d", len(r.ByDay), maxDayRows)
	}
	// 截断应保留最近的天。
	if r.ByDay[0].Day != "2026-08-30" {
		t.Fatalf("expected newest day kept: %s", r.ByDay[0].Day)
	}
	if r.ByDay[len(r.ByDay)-1].Day != "2026-07-02" {
		t.Fatalf("expected 60th newest day last: %s", r.ByDay[len(r.ByDay)-1].Day)
	}
}

func TestAggregateRowCaps(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	var events []store.UsageEvent
	for i := 0; i < 80; i++ {
		events = append(events, store.UsageEvent{
			UserID:    int64(i + 1),
			Model:     fmt.Sprintf("model-%02d", i),
			TotalUSD:  usd(fmt.Sprintf("0.0000%02d", i+1)),
			CreatedAt: now,
		})
	}

	r := Aggregate(events, nil)
	if len(r.ByModel) != maxModelRows {
		t.Fatalf("unexpected model rows: got=%d want=%d", len(r.ByModel), maxModelRows)
	}
	if len(r.ByUser) != maxUserRows {
		t.Fatalf("unexpected user rows: got=%d want=%d", len(r.ByUser), maxUserRows)
	}
	// 成本高的桶优先保留。
	if r.ByModel[0].Model != "model-79" {
		t.Fatalf("expected most expensive model first: %s", r.ByModel[0].Model)
	}
}

func TestAggregateEmptyWindow(t *testing.T) {
	t.Parallel()
	r := Aggregate(nil, nil)
	if !r.Totals.TotalUSD.IsZero() || r.Totals.AssistantMessages != 0 {
		t.Fatalf("expected zero totals: %+v", r.Totals)
	}
	if len(r.ByDay) != 0 || len(r.ByModel) != 0 || len(r.ByUser) != 0 {
		t.Fatalf("expected empty buckets")
	}
}
