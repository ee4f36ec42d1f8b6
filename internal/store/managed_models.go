package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	ManagedModelStatusEnabled  = "enabled"
	ManagedModelStatusDisabled = "disabled"
)

// normalizePublicID 统一 public_id 的口径：登记、查询、删除都按小写匹配，
// 避免大小写不同的同一模型在计价候选与转发改写之间对不上。
func normalizePublicID(publicID string) string {
	return strings.ToLower(strings.TrimSpace(publicID))
}

// ListManagedModels 返回全部模型登记（含禁用），按 public_id 排序。
func (s *Store) ListManagedModels(ctx context.Context) ([]ManagedModel, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, public_id, provider, upstream_model, display_name, status, created_at
FROM managed_models
ORDER BY public_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("查询 managed_models 失败: %w", err)
	}
	defer rows.Close()

	var out []ManagedModel
	for rows.Next() {
		m, err := scanManagedModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 managed_models 失败: %w", err)
	}
	return out, nil
}

func (s *Store) GetManagedModelByPublicID(ctx context.Context, publicID string) (ManagedModel, error) {
	publicID = normalizePublicID(publicID)
	if publicID == "" {
		return ManagedModel{}, errors.New("public_id 不能为空")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, public_id, provider, upstream_model, display_name, status, created_at
FROM managed_models
WHERE public_id=?
`, publicID)
	m, err := scanManagedModel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ManagedModel{}, sql.ErrNoRows
		}
		return ManagedModel{}, err
	}
	return m, nil
}

type CreateManagedModelInput struct {
	PublicID      string
	Provider      string
	UpstreamModel *string
	DisplayName   *string
	Status        string
}

func (s *Store) CreateManagedModel(ctx context.Context, in CreateManagedModelInput) (int64, error) {
	in.PublicID = normalizePublicID(in.PublicID)
	in.Provider = strings.TrimSpace(in.Provider)
	if in.PublicID == "" {
		return 0, errors.New("public_id 不能为空")
	}
	if in.Provider == "" {
		return 0, errors.New("provider 不能为空")
	}
	if in.Status == "" {
		in.Status = ManagedModelStatusEnabled
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO managed_models(public_id, provider, upstream_model, display_name, status, created_at)
VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
`, in.PublicID, in.Provider, in.UpstreamModel, in.DisplayName, in.Status)
	if err != nil {
		return 0, fmt.Errorf("写入 managed_models 失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取 managed_model id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteManagedModel(ctx context.Context, publicID string) error {
	publicID = normalizePublicID(publicID)
	if publicID == "" {
		return errors.New("public_id 不能为空")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM managed_models WHERE public_id=?`, publicID)
	if err != nil {
		return fmt.Errorf("删除 managed_model 失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("确认删除结果失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanManagedModel(row rowScanner) (ManagedModel, error) {
	var m ManagedModel
	var upstreamModel, displayName sql.NullString
	if err := row.Scan(&m.ID, &m.PublicID, &m.Provider, &upstreamModel, &displayName, &m.Status, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ManagedModel{}, sql.ErrNoRows
		}
		return ManagedModel{}, fmt.Errorf("扫描 managed_models 失败: %w", err)
	}
	if upstreamModel.Valid {
		v := upstreamModel.String
		m.UpstreamModel = &v
	}
	if displayName.Valid {
		v := displayName.String
		m.DisplayName = &v
	}
	return m, nil
}
