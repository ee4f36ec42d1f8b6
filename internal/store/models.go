package store

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash []byte
	Role         string
	Status       int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ManagedModel 是对外暴露的模型目录条目：public_id 面向前端，
// upstream_model 是转发给 provider 的真实模型名（为空表示原样透传）。
type ManagedModel struct {
	ID            int64     `json:"id"`
	PublicID      string    `json:"public_id"`
	Provider      string    `json:"provider"`
	UpstreamModel *string   `json:"upstream_model,omitempty"`
	DisplayName   *string   `json:"display_name,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// UsageEvent 对应一条助手回复的计量记录；写入后不可变。
type UsageEvent struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	ConversationID string          `json:"conversation_id"`
	MessageIndex   int             `json:"message_index"`
	Model          string          `json:"model"`
	PricingModel   *string         `json:"pricing_model,omitempty"`
	Priced         bool            `json:"priced"`
	InputTokens    int64           `json:"input_tokens"`
	OutputTokens   int64           `json:"output_tokens"`
	TotalUSD       decimal.Decimal `json:"total_usd"`
	CreatedAt      time.Time       `json:"created_at"`
}

// UsageSummary 是每用户一行的累计汇总，随事件写入增量维护。
type UsageSummary struct {
	UserID            int64           `json:"user_id"`
	TotalUSD          decimal.Decimal `json:"total_usd"`
	TotalInputTokens  int64           `json:"total_input_tokens"`
	TotalOutputTokens int64           `json:"total_output_tokens"`
	TotalMessages     int64           `json:"total_messages"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ChatLog 保存一轮问答原文，供话题提取使用。
type ChatLog struct {
	ID             int64
	UserID         int64
	ConversationID string
	Model          string
	Question       string
	Answer         string
	CreatedAt      time.Time
}
