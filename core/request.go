package core

import (
	"context"
	"math/rand"
	"time"

	"github.com/rushteam/recfeed/pkg/utils"
)

// Source 标识候选的产出策略。
type Source string

const (
	SourceCollaborative Source = "collaborative"
	SourceContentBased  Source = "content_based"
	SourceTrending      Source = "trending"
	SourceRecent        Source = "recent"
	SourceRandom        Source = "random"
)

// RequestContext 是推荐请求的场景信息。
// 显式字段而非 map[string]any：每个消费方声明自己需要的可选字段。
type RequestContext struct {
	CurrentPostID string `json:"current_post_id,omitempty"` // 相关推荐：正在阅读的内容
	Source        string `json:"source,omitempty"`          // 请求来源页面
	SessionID     string `json:"session_id,omitempty"`
	DeviceType    string `json:"device_type,omitempty"`
}

// RecommendRequest 是一次推荐调用的入参。UserID 为空表示匿名访客。
type RecommendRequest struct {
	UserID     string         `json:"user_id,omitempty"`
	Count      int            `json:"count"`
	Offset     int            `json:"offset,omitempty"`
	ExcludeIDs []string       `json:"exclude_ids,omitempty"`
	Context    RequestContext `json:"context"`
	Debug      bool           `json:"debug,omitempty"`
}

// RecommendationItem 是最终输出的一条推荐。
type RecommendationItem struct {
	PostID       string  `json:"post_id"`
	Rank         int     `json:"rank"`
	Score        float64 `json:"score"`
	Reason       string  `json:"reason,omitempty"`
	Source       Source  `json:"source"`
	PredictedCTR float64 `json:"predicted_ctr,omitempty"`
}

// DebugInfo 是响应中的可选调试块，仅在 Request.Debug 时填充。
type DebugInfo struct {
	StrategyCounts map[string]int `json:"strategy_counts,omitempty"` // 各策略产出的候选数
	CacheHit       bool           `json:"cache_hit,omitempty"`
	ProfileLoaded  bool           `json:"profile_loaded,omitempty"`
	FallbackUsed   bool           `json:"fallback_used,omitempty"`
	ElapsedMs      int64          `json:"elapsed_ms,omitempty"`
}

// RecommendResponse 是一次推荐调用的结果。
type RecommendResponse struct {
	Recommendations []RecommendationItem `json:"recommendations"`
	SessionID       string               `json:"session_id"`
	GeneratedAt     time.Time            `json:"generated_at"`
	Debug           *DebugInfo           `json:"debug,omitempty"`
}

// CandidateFeatures 是候选的分项得分，融合与规则过滤会读取它们。
// 未计算的分项保持 0。
type CandidateFeatures struct {
	SimilarityScore      float64 `json:"similarity_score,omitempty"`
	PopularityScore      float64 `json:"popularity_score,omitempty"`
	FreshnessScore       float64 `json:"freshness_score,omitempty"`
	PersonalizationScore float64 `json:"personalization_score,omitempty"`
	QualityScore         float64 `json:"quality_score,omitempty"`
}

// Candidate 是一条尚未定稿的推荐：仅在单次 recommend 调用内存活。
// 各策略 score() 的输出在 [0,1]；融合阶段加权相加后不设上界，
// 最终格式化为 RecommendationItem 后丢弃。
type Candidate struct {
	PostID   string
	Score    float64
	Reasons  []string // 面向用户的推荐理由，最多 2 条
	Source   Source
	Features CandidateFeatures

	// Labels 是链路内部的解释/追踪信息，不直接出现在响应里。
	Labels map[string]utils.Label
}

// NewCandidate 创建一个空候选。
func NewCandidate(postID string, source Source) *Candidate {
	return &Candidate{
		PostID: postID,
		Source: source,
		Labels: make(map[string]utils.Label),
	}
}

// AddReason 追加一条推荐理由，超过 2 条时忽略。
func (c *Candidate) AddReason(reason string) {
	if reason == "" || len(c.Reasons) >= 2 {
		return
	}
	for _, r := range c.Reasons {
		if r == reason {
			return
		}
	}
	c.Reasons = append(c.Reasons, reason)
}

// PutLabel 写入追踪 Label，同名 key 按默认规则合并。
func (c *Candidate) PutLabel(key string, lbl utils.Label) {
	if c.Labels == nil {
		c.Labels = make(map[string]utils.Label)
	}
	if old, ok := c.Labels[key]; ok {
		c.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	c.Labels[key] = lbl
}

// RecommendContext 承载单次推荐调用的全部输入，贯穿策略与重排链路透传。
// 由引擎在候选生成前组装；策略只读，除 Candidate 外不产生共享可变状态。
type RecommendContext struct {
	Request *RecommendRequest

	// Profile 为 nil 表示匿名或无行为用户（冷启动路径）
	Profile *UserProfile

	// Pool 是本次调用的内容池快照；Contents 是按 ID 的索引
	Pool     []*ContentFeatures
	Contents map[string]*ContentFeatures

	// Actions 是目标用户最近的行为事件，按时间降序
	Actions []*UserAction

	// Limit 是单个策略的候选集上限
	Limit int

	// Rand 供需要随机性的策略使用；nil 时策略退回全局源
	Rand *rand.Rand
}

// Content 按 ID 查内容，池外返回 nil。
func (rctx *RecommendContext) Content(postID string) *ContentFeatures {
	if rctx.Contents == nil {
		return nil
	}
	return rctx.Contents[postID]
}

// RecLogSink 是推荐日志的落地接口：尽力而为，失败只记日志不上抛。
type RecLogSink interface {
	Append(ctx context.Context, sessionID string, req *RecommendRequest, resp *RecommendResponse, at time.Time) error
}
