// Package obs 收拢可观测相关的小件：slog 结构化日志与转发流的 expvar 计数。
package obs

import (
	"log/slog"
	"os"
)

// NewLogger 返回输出到 stdout 的 JSON 日志器；dev 环境放开到 Debug 级别。
func NewLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
