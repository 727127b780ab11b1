// Package algo 包含三个候选生成策略（内容相似、协同过滤、热门）
// 以及它们共享的评分原语。
package algo

import (
	"context"

	"github.com/rushteam/recfeed/core"
)

// Algorithm 是候选生成策略的统一接口：引擎通过注册列表组合多个实现，
// 并发执行后做加权融合。
//
// GenerateCandidates 返回的每个候选的 Score 都已经是该策略 Score 的输出，
// 位于 [0,1]；数据不足时返回 (nil, nil) 表示弃权，不算错误。
// Score 对单个内容独立打分，供候选生成内部与测试使用。
type Algorithm interface {
	Name() string
	Source() core.Source

	GenerateCandidates(ctx context.Context, rctx *core.RecommendContext) ([]*core.Candidate, error)
	Score(ctx context.Context, content *core.ContentFeatures, rctx *core.RecommendContext) float64
}

// InteractionStore 是协同过滤的交互矩阵接口。
// 交互分数是该用户对该物品全部行为事件 InteractionWeight 的累加。
type InteractionStore interface {
	// GetUserItems 返回用户交互过的物品及交互分数
	GetUserItems(ctx context.Context, userID string) (map[string]float64, error)

	// GetItemUsers 返回与物品交互过的用户及交互分数
	GetItemUsers(ctx context.Context, itemID string) (map[string]float64, error)

	// GetAllUsers 返回全部出现过交互的用户 ID
	GetAllUsers(ctx context.Context) ([]string, error)
}
