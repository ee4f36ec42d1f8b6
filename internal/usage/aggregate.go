// Package usage 在事件窗口上做管理面聚合：总量、按天、按模型、按用户，
// 外加全量累计汇总的透传。
package usage

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"parley/internal/store"
)

const (
	maxDayRows   = 60
	maxModelRows = 50
	maxUserRows  = 50
)

type Totals struct {
	TotalUSD                decimal.Decimal `json:"total_usd"`
	InputTokens             int64           `json:"input_tokens"`
	OutputTokens            int64           `json:"output_tokens"`
	AssistantMessages       int64           `json:"assistant_messages"`
	PricedAssistantMessages int64           `json:"priced_assistant_messages"`
}

type DayRow struct {
	Day          string          `json:"day"`
	TotalUSD     decimal.Decimal `json:"total_usd"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Messages     int64           `json:"messages"`
}

type ModelRow struct {
	Model        string          `json:"model"`
	TotalUSD     decimal.Decimal `json:"total_usd"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Messages     int64           `json:"messages"`
}

type UserRow struct {
	UserKey      string          `json:"user"`
	TotalUSD     decimal.Decimal `json:"total_usd"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Messages     int64           `json:"messages"`
}

type Report struct {
	Totals  Totals               `json:"totals"`
	ByDay   []DayRow             `json:"by_day"`
	ByModel []ModelRow           `json:"by_model"`
	ByUser  []UserRow            `json:"by_user"`
	AllTime []store.UsageSummary `json:"all_time"`
}

// Aggregate 对最近事件窗口做一次完整聚合。events 的口径是窗口内数据，
// AllTime 直接透传累计汇总，两者允许不一致。
func Aggregate(events []store.UsageEvent, summaries []store.UsageSummary) Report {
	report := Report{
		Totals:  Totals{TotalUSD: decimal.Zero},
		AllTime: summaries,
	}

	days := map[string]*DayRow{}
	models := map[string]*ModelRow{}
	users := map[string]*UserRow{}

	for _, e := range events {
		report.Totals.TotalUSD = report.Totals.TotalUSD.Add(e.TotalUSD)
		report.Totals.InputTokens += e.InputTokens
		report.Totals.OutputTokens += e.OutputTokens
		report.Totals.AssistantMessages++
		if e.Priced {
			report.Totals.PricedAssistantMessages++
		}

		// 时间无法解析的事件不进按天分布，但其余口径照常统计。
		if !e.CreatedAt.IsZero() {
			day := e.CreatedAt.UTC().Format("2006-01-02")
			row, ok := days[day]
			if !ok {
				row = &DayRow{Day: day, TotalUSD: decimal.Zero}
				days[day] = row
			}
			row.TotalUSD = row.TotalUSD.Add(e.TotalUSD)
			row.InputTokens += e.InputTokens
			row.OutputTokens += e.OutputTokens
			row.Messages++
		}

		modelKey := modelKeyFor(e)
		mrow, ok := models[modelKey]
		if !ok {
			mrow = &ModelRow{Model: modelKey, TotalUSD: decimal.Zero}
			models[modelKey] = mrow
		}
		mrow.TotalUSD = mrow.TotalUSD.Add(e.TotalUSD)
		mrow.InputTokens += e.InputTokens
		mrow.OutputTokens += e.OutputTokens
		mrow.Messages++

		userKey := userKeyFor(e.UserID)
		urow, ok := users[userKey]
		if !ok {
			urow = &UserRow{UserKey: userKey, TotalUSD: decimal.Zero}
			users[userKey] = urow
		}
		urow.TotalUSD = urow.TotalUSD.Add(e.TotalUSD)
		urow.InputTokens += e.InputTokens
		urow.OutputTokens += e.OutputTokens
		urow.Messages++
	}

	report.ByDay = sortedDayRows(days)
	report.ByModel = sortedModelRows(models)
	report.ByUser = sortedUserRows(users)
	return report
}

func modelKeyFor(e store.UsageEvent) string {
	if e.PricingModel != nil && *e.PricingModel != "" {
		return *e.PricingModel
	}
	if e.Model != "" {
		return e.Model
	}
	return "unknown"
}

func userKeyFor(userID int64) string {
	if userID <= 0 {
		return "anonymous"
	}
	// 聚合层只认 id，展示名由前端自行关联。
	return "user:" + strconv.FormatInt(userID, 10)
}

func sortedDayRows(m map[string]*DayRow) []DayRow {
	out := make([]DayRow, 0, len(m))
	for _, row := range m {
		out = append(out, *row)
	}
	// 最近的天排在前面。
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	if len(out) > maxDayRows {
		out = out[:maxDayRows]
	}
	return out
}

func sortedModelRows(m map[string]*ModelRow) []ModelRow {
	out := make([]ModelRow, 0, len(m))
	for _, row := range m {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TotalUSD.Equal(out[j].TotalUSD) {
			return out[i].TotalUSD.GreaterThan(out[j].TotalUSD)
		}
		return out[i].Model < out[j].Model
	})
	if len(out) > maxModelRows {
		out = out[:maxModelRows]
	}
	return out
}

func sortedUserRows(m map[string]*UserRow) []UserRow {
	out := make([]UserRow, 0, len(m))
	for _, row := range m {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TotalUSD.Equal(out[j].TotalUSD) {
			return out[i].TotalUSD.GreaterThan(out[j].TotalUSD)
		}
		return out[i].UserKey < out[j].UserKey
	})
	if len(out) > maxUserRows {
		out = out[:maxUserRows]
	}
	return out
}
