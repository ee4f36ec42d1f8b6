package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type AddUsageToSummaryInput struct {
	UserID       int64
	TotalUSD     decimal.Decimal
	InputTokens  int64
	OutputTokens int64
}

// AddUsageToSummary 增量维护每用户累计汇总；与事件写入配套调用，一条事件加一次。
func (s *Store) AddUsageToSummary(ctx context.Context, in AddUsageToSummaryInput) error {
	if in.UserID <= 0 {
		return errors.New("user_id 不能为空")
	}
	if in.TotalUSD.IsNegative() {
		return errors.New("total_usd 不合法")
	}
	totalUSD := in.TotalUSD.Truncate(USDScale)

	var stmt string
	switch s.dialect {
	case DialectSQLite:
		stmt = `
INSERT INTO usage_summaries(user_id, total_usd, total_input_tokens, total_output_tokens, total_messages, created_at, updated_at)
VALUES(?, ?, ?, ?, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT(user_id) DO UPDATE SET
  total_usd=total_usd+excluded.total_usd,
  total_input_tokens=total_input_tokens+excluded.total_input_tokens,
  total_output_tokens=total_output_tokens+excluded.total_output_tokens,
  total_messages=total_messages+1,
  updated_at=CURRENT_TIMESTAMP
`
	default:
		stmt = `
INSERT INTO usage_summaries(user_id, total_usd, total_input_tokens, total_output_tokens, total_messages, created_at, updated_at)
VALUES(?, ?, ?, ?, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON DUPLICATE KEY UPDATE
  total_usd=total_usd+VALUES(total_usd),
  total_input_tokens=total_input_tokens+VALUES(total_input_tokens),
  total_output_tokens=total_output_tokens+VALUES(total_output_tokens),
  total_messages=total_messages+1,
  updated_at=CURRENT_TIMESTAMP
`
	}
	if _, err := s.db.ExecContext(ctx, stmt, in.UserID, totalUSD, in.InputTokens, in.OutputTokens); err != nil {
		return fmt.Errorf("更新 usage_summaries 失败: %w", err)
	}
	return nil
}

func (s *Store) GetUsageSummary(ctx context.Context, userID int64) (UsageSummary, error) {
	var sum UsageSummary
	err := s.db.QueryRowContext(ctx, `
SELECT user_id, total_usd, total_input_tokens, total_output_tokens, total_messages, created_at, updated_at
FROM usage_summaries
WHERE user_id=?
`, userID).Scan(&sum.UserID, &sum.TotalUSD, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalMessages, &sum.CreatedAt, &sum.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UsageSummary{}, sql.ErrNoRows
		}
		return UsageSummary{}, fmt.Errorf("查询 usage_summaries 失败: %w", err)
	}
	sum.TotalUSD = sum.TotalUSD.Truncate(USDScale)
	return sum, nil
}

func (s *Store) ListUsageSummaries(ctx context.Context, limit int) ([]UsageSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, total_usd, total_input_tokens, total_output_tokens, total_messages, created_at, updated_at
FROM usage_summaries
ORDER BY total_usd DESC, user_id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询 usage_summaries 失败: %w", err)
	}
	defer rows.Close()

	var out []UsageSummary
	for rows.Next() {
		var sum UsageSummary
		if err := rows.Scan(&sum.UserID, &sum.TotalUSD, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalMessages, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("扫描 usage_summaries 失败: %w", err)
		}
		sum.TotalUSD = sum.TotalUSD.Truncate(USDScale)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 usage_summaries 失败: %w", err)
	}
	return out, nil
}
