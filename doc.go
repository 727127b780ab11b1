// Package recfeed 是一个内容推荐引擎（Recommendation Feed）。
//
// 设计要点：
// - 多策略融合: 内容相似 / 协同过滤 / 热门三条策略并发生成候选，按配置权重加权合并
// - 永不空手: Recommend 不返回错误，任何内部失败都降级为热门兜底
// - 可组合重排: 规则过滤 → 多样性 → 位置衰减，通过 pipeline.Node 串联，可插拔扩展
package recfeed

import "github.com/rushteam/recfeed/pipeline"

// 轻量 facade：便于用户直接 import "recfeed" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)
