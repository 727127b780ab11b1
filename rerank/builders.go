package rerank

import (
	"fmt"

	"github.com/rushteam/recfeed/pipeline"
	"github.com/rushteam/recfeed/pkg/conv"
	"github.com/rushteam/recfeed/pkg/dsl"
)

// RegisterBuilders 向工厂注册本包内置节点，供 YAML 链路配置按类型名构建。
func RegisterBuilders(f *pipeline.NodeFactory) {
	f.Register("rerank.rule", func(config map[string]any) (pipeline.Node, error) {
		node := &RuleNode{
			MinQuality:      conv.ConfigGetFloat64(config, "min_quality", 0),
			MaxRepeatDays:   int(conv.ConfigGetFloat64(config, "max_repeat_days", 0)),
			BoostRecentDays: conv.ConfigGetFloat64(config, "boost_recent_days", 0),
		}
		if expr := conv.ConfigGet(config, "expression", ""); expr != "" {
			prg, err := dsl.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("compile expression: %w", err)
			}
			node.Program = prg
		}
		return node, nil
	})

	f.Register("rerank.diversity", func(config map[string]any) (pipeline.Node, error) {
		return &DiversityNode{
			Factor: conv.ConfigGetFloat64(config, "factor", 0.3),
		}, nil
	})

	f.Register("rerank.position", func(config map[string]any) (pipeline.Node, error) {
		return &PositionNode{
			Factor: conv.ConfigGetFloat64(config, "factor", 0.9),
		}, nil
	})
}
