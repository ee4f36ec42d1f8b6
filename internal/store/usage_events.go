// Package store 封装用量事件的追加写入与窗口读取；事件一旦写入即不可变。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type InsertUsageEventInput struct {
	UserID         int64
	ConversationID string
	MessageIndex   int
	Model          string
	PricingModel   *string
	Priced         bool
	InputTokens    int64
	OutputTokens   int64
	TotalUSD       decimal.Decimal
}

func (s *Store) InsertUsageEvent(ctx context.Context, in InsertUsageEventInput) (int64, error) {
	if in.UserID <= 0 {
		return 0, errors.New("user_id 不能为空")
	}
	if in.InputTokens < 0 || in.OutputTokens < 0 {
		return 0, errors.New("token 统计为负数")
	}
	if in.TotalUSD.IsNegative() {
		return 0, errors.New("total_usd 不合法")
	}
	totalUSD := in.TotalUSD.Truncate(USDScale)
	priced := 0
	if in.Priced {
		priced = 1
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO usage_events(
  user_id, conversation_id, message_index, model, pricing_model, priced,
  input_tokens, output_tokens, total_usd, created_at
) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
`, in.UserID, in.ConversationID, in.MessageIndex, in.Model, in.PricingModel, priced,
		in.InputTokens, in.OutputTokens, totalUSD)
	if err != nil {
		return 0, fmt.Errorf("写入 usage_events 失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取 usage_event id 失败: %w", err)
	}
	return id, nil
}

// ListRecentUsageEvents 拉取最近 limit 条事件（倒序）。管理面聚合刻意只看这个
// 有界窗口，全量历史走 usage_summaries。
func (s *Store) ListRecentUsageEvents(ctx context.Context, limit int) ([]UsageEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, conversation_id, message_index, model, pricing_model, priced,
       input_tokens, output_tokens, total_usd, created_at
FROM usage_events
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询 usage_events 失败: %w", err)
	}
	defer rows.Close()
	return scanUsageEvents(rows)
}

func (s *Store) ListUsageEventsByUser(ctx context.Context, userID int64, limit int, beforeID *int64) ([]UsageEvent, error) {
	if userID <= 0 {
		return nil, errors.New("user_id 不能为空")
	}
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if beforeID != nil {
		rows, err = s.db.QueryContext(ctx, `
SELECT id, user_id, conversation_id, message_index, model, pricing_model, priced,
       input_tokens, output_tokens, total_usd, created_at
FROM usage_events
WHERE user_id=? AND id<?
ORDER BY id DESC
LIMIT ?
`, userID, *beforeID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
SELECT id, user_id, conversation_id, message_index, model, pricing_model, priced,
       input_tokens, output_tokens, total_usd, created_at
FROM usage_events
WHERE user_id=?
ORDER BY id DESC
LIMIT ?
`, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("查询 usage_events 失败: %w", err)
	}
	defer rows.Close()
	return scanUsageEvents(rows)
}

func scanUsageEvents(rows *sql.Rows) ([]UsageEvent, error) {
	var out []UsageEvent
	for rows.Next() {
		var e UsageEvent
		var pricingModel sql.NullString
		var priced int
		if err := rows.Scan(&e.ID, &e.UserID, &e.ConversationID, &e.MessageIndex, &e.Model, &pricingModel, &priced,
			&e.InputTokens, &e.OutputTokens, &e.TotalUSD, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描 usage_events 失败: %w", err)
		}
		if pricingModel.Valid {
			v := pricingModel.String
			e.PricingModel = &v
		}
		e.Priced = priced == 1
		e.TotalUSD = e.TotalUSD.Truncate(USDScale)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 usage_events 失败: %w", err)
	}
	return out, nil
}
