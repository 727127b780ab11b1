package pipeline

import (
	"context"

	"github.com/rushteam/recfeed/core"
)

// Kind 标记 Node 所处的阶段，方便观测与编排。
type Kind string

const (
	KindRecall      Kind = "recall"      // 候选生成
	KindFilter      Kind = "filter"      // 规则过滤
	KindRank        Kind = "rank"        // 打分排序
	KindReRank      Kind = "rerank"      // 多样性/位置等重排调优
	KindPostProcess Kind = "postprocess" // 最终修饰
)

// Node 是重排链路的最小可组合单元，统一采用"输入候选 -> 输出候选"的形态。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		cands []*core.Candidate,
	) ([]*core.Candidate, error)
}
