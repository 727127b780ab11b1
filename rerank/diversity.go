package rerank

import (
	"context"

	"github.com/rushteam/recfeed/algo"
	"github.com/rushteam/recfeed/core"
	"github.com/rushteam/recfeed/pipeline"
)

// DiversityNode 做多样性控制：顺序遍历候选，对类别/作者占比超限的候选
// 乘性降权后重排。惩罚细节见 algo.ApplyDiversity。
type DiversityNode struct {
	// Factor 类别占比上限，<=0 时取 0.3
	Factor float64
}

func (n *DiversityNode) Name() string        { return "rerank.diversity" }
func (n *DiversityNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *DiversityNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	cands []*core.Candidate,
) ([]*core.Candidate, error) {
	if len(cands) < 2 {
		return cands, nil
	}
	var contents map[string]*core.ContentFeatures
	if rctx != nil {
		contents = rctx.Contents
	}
	return algo.ApplyDiversity(cands, contents, n.Factor), nil
}

var _ pipeline.Node = (*DiversityNode)(nil)
