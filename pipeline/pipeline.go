package pipeline

import (
	"context"

	"github.com/rushteam/recfeed/core"
)

// Pipeline 把重排逻辑拆成可组合的 Node 链：排序 → 规则 → 多样性 → 位置衰减。
type Pipeline struct {
	Nodes []Node
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	cands []*core.Candidate,
) ([]*core.Candidate, error) {
	cur := cands
	for _, node := range p.Nodes {
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
