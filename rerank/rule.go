// Package rerank 提供候选列表的重排节点：业务规则过滤、多样性控制、位置衰减。
package rerank

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/recfeed/algo"
	"github.com/rushteam/recfeed/core"
	"github.com/rushteam/recfeed/pipeline"
	"github.com/rushteam/recfeed/pkg/dsl"
	"github.com/rushteam/recfeed/pkg/utils"
)

// RuleNode 按业务规则过滤候选。
//
// 内置规则：
//   - 质量下限：QualityScore < MinQuality 的候选剔除
//   - 去重窗口：用户 MaxRepeatDays 内交互过的内容剔除
//   - 新鲜加成：BoostRecentDays 内发布的内容 ×1.2（在过滤后施加）
//
// 额外可挂一条 CEL 表达式（见 pkg/dsl），表达式求值为 false 的候选剔除；
// 求值出错的候选放行并记日志，规则配置错误不应清空推荐结果。
type RuleNode struct {
	// MinQuality 质量分下限，<=0 时不过滤
	MinQuality float64

	// MaxRepeatDays 去重窗口（天），<=0 时不去重
	MaxRepeatDays int

	// BoostRecentDays 新鲜加成窗口（天），<=0 时不加成
	BoostRecentDays float64

	// Program 编译后的 CEL 过滤表达式，nil 时跳过
	Program *dsl.Program

	Logger *zap.Logger
}

func (n *RuleNode) Name() string        { return "rerank.rule" }
func (n *RuleNode) Kind() pipeline.Kind { return pipeline.KindFilter }

func (n *RuleNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	cands []*core.Candidate,
) ([]*core.Candidate, error) {
	if len(cands) == 0 {
		return cands, nil
	}

	now := time.Now()

	var seen map[string]struct{}
	if n.MaxRepeatDays > 0 && rctx != nil && len(rctx.Actions) > 0 {
		cutoff := now.AddDate(0, 0, -n.MaxRepeatDays)
		seen = make(map[string]struct{}, len(rctx.Actions))
		for _, a := range rctx.Actions {
			if a.CreatedAt.After(cutoff) {
				seen[a.TargetID] = struct{}{}
			}
		}
	}

	out := make([]*core.Candidate, 0, len(cands))
	for _, cand := range cands {
		if n.MinQuality > 0 && cand.Features.QualityScore < n.MinQuality {
			continue
		}
		if seen != nil {
			if _, ok := seen[cand.PostID]; ok {
				continue
			}
		}
		var content *core.ContentFeatures
		if rctx != nil {
			content = rctx.Content(cand.PostID)
		}
		if n.Program != nil {
			keep, err := n.Program.Eval(cand, content, rctx)
			if err != nil {
				if n.Logger != nil {
					n.Logger.Warn("rule expression eval failed",
						zap.String("post_id", cand.PostID),
						zap.String("expr", n.Program.Expr()),
						zap.Error(err))
				}
				keep = true
			}
			if !keep {
				continue
			}
		}
		if n.BoostRecentDays > 0 && content != nil &&
			algo.DaysSince(content.PublishedAt, now) <= n.BoostRecentDays {
			cand.Score *= 1.2
			cand.PutLabel("rule_boost", utils.Label{Value: "recent", Source: "rerank"})
		}
		out = append(out, cand)
	}
	return out, nil
}

var _ pipeline.Node = (*RuleNode)(nil)
