package store

import (
	"context"
	"errors"
	"fmt"
)

type InsertChatLogInput struct {
	UserID         int64
	ConversationID string
	Model          string
	Question       string
	Answer         string
}

func (s *Store) InsertChatLog(ctx context.Context, in InsertChatLogInput) (int64, error) {
	if in.UserID <= 0 {
		return 0, errors.New("user_id 不能为空")
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO chat_logs(user_id, conversation_id, model, question, answer, created_at)
VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
`, in.UserID, in.ConversationID, in.Model, in.Question, in.Answer)
	if err != nil {
		return 0, fmt.Errorf("写入 chat_logs 失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取 chat_log id 失败: %w", err)
	}
	return id, nil
}

// ListRecentChatLogs 拉取最近 limit 条含问答结构的记录（倒序），供话题提取使用。
func (s *Store) ListRecentChatLogs(ctx context.Context, limit int) ([]ChatLog, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, conversation_id, model, question, answer, created_at
FROM chat_logs
WHERE question <> ''
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询 chat_logs 失败: %w", err)
	}
	defer rows.Close()

	var out []ChatLog
	for rows.Next() {
		var l ChatLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.ConversationID, &l.Model, &l.Question, &l.Answer, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描 chat_logs 失败: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 chat_logs 失败: %w", err)
	}
	return out, nil
}
