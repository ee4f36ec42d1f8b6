package pricing

import (
	"context"
	"strings"

	"parley/internal/store"
)

// ModelRegistry 是解析候选时需要的模型登记表读取能力。
type ModelRegistry interface {
	GetManagedModelByPublicID(ctx context.Context, publicID string) (store.ManagedModel, error)
}

// modelAliases 把常见的对外写法映射到价目表里的规范 id。
var modelAliases = map[string]string{
	"claude-opus-4.5":   "claude-opus-4-5",
	"claude-sonnet-4.5": "claude-sonnet-4-5",
	"claude-haiku-4.5":  "claude-haiku-4-5",
	"claude-3.5-sonnet": "claude-3-5-sonnet",
	"claude-3.5-haiku":  "claude-3-5-haiku",
	"gpt4o":             "gpt-4o",
	"gpt4o-mini":        "gpt-4o-mini",
}

// Resolver 为一个对外模型 id 生成有序的计价候选：登记表里的上游名最可信，
// 其次是对外 id 本身，最后是别名改写。
type Resolver struct {
	registry ModelRegistry
}

func NewResolver(registry ModelRegistry) *Resolver {
	return &Resolver{registry: registry}
}

// Candidates 返回去重后的候选序列；登记表查询失败按"无登记"处理，
// 不让一次 DB 抖动挡住计费。
func (r *Resolver) Candidates(ctx context.Context, publicID string) []string {
	id := strings.ToLower(strings.TrimSpace(publicID))
	if id == "" {
		return nil
	}

	var out []string
	seen := map[string]bool{}
	add := func(candidate string) {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" || seen[candidate] {
			return
		}
		seen[candidate] = true
		out = append(out, candidate)
	}

	if r.registry != nil {
		if m, err := r.registry.GetManagedModelByPublicID(ctx, id); err == nil {
			if m.UpstreamModel != nil {
				add(*m.UpstreamModel)
			}
		}
	}
	add(id)
	if alias, ok := modelAliases[id]; ok {
		add(alias)
	}
	return out
}
