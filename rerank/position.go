package rerank

import (
	"context"
	"math"

	"github.com/rushteam/recfeed/algo"
	"github.com/rushteam/recfeed/core"
	"github.com/rushteam/recfeed/pipeline"
)

// PositionNode 施加位置衰减：先按分数排序，再把第 i 位候选的分数乘以
// Factor^i。衰减后不再重排——衰减是单调的，顺序不变，但分差被压缩，
// 后续加权融合时靠前的候选优势更明确。
type PositionNode struct {
	// Factor 位置衰减因子，<=0 时取 0.9
	Factor float64
}

func (n *PositionNode) Name() string        { return "rerank.position" }
func (n *PositionNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *PositionNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	cands []*core.Candidate,
) ([]*core.Candidate, error) {
	if len(cands) == 0 {
		return cands, nil
	}
	factor := n.Factor
	if factor <= 0 {
		factor = 0.9
	}

	cands = algo.SortCandidates(cands, 0)
	for i, cand := range cands {
		cand.Score *= math.Pow(factor, float64(i))
	}
	return cands, nil
}

var _ pipeline.Node = (*PositionNode)(nil)
