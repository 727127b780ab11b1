package algo

import (
	"context"
	"time"

	"github.com/rushteam/recfeed/core"
	"github.com/rushteam/recfeed/pkg/utils"
)

// SimilarityWeights 是内容相似度各特征的权重。
type SimilarityWeights struct {
	Title      float64 `yaml:"title" json:"title"`
	Tags       float64 `yaml:"tags" json:"tags"`
	Categories float64 `yaml:"categories" json:"categories"`
	Keywords   float64 `yaml:"keywords" json:"keywords"`
	Author     float64 `yaml:"author" json:"author"` // 同作者加成，全有或全无
}

// DefaultSimilarityWeights 是相似度特征的默认权重。
var DefaultSimilarityWeights = SimilarityWeights{
	Title:      0.15,
	Tags:       0.3,
	Categories: 0.25,
	Keywords:   0.2,
	Author:     0.1,
}

// ContentBased 是基于内容的候选生成策略。
//
// 按请求上下文提供的信息，依优先级选择三种模式之一：
//  1. 相关推荐：context.current_post_id 可解析时，与池内其他内容两两算相似度
//  2. 兴趣驱动：有画像时按兴趣匹配度筛选
//  3. 冷启动：无画像时只保留质量分达标的内容
type ContentBased struct {
	// MinSimilarity 相关推荐模式的相似度门槛
	MinSimilarity float64

	// MinInterestMatch 兴趣模式的匹配度门槛（引擎传入 personalization_threshold）
	MinInterestMatch float64

	// MediumQuality 冷启动模式的质量门槛
	MediumQuality float64

	// Weights 相似度特征权重，零值时取 DefaultSimilarityWeights
	Weights SimilarityWeights

	// Benchmarks 流行度基准（无画像时的 score 分项）
	Benchmarks core.Benchmarks
}

func (r *ContentBased) Name() string        { return "algo.content_based" }
func (r *ContentBased) Source() core.Source { return core.SourceContentBased }

func (r *ContentBased) GenerateCandidates(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Candidate, error) {
	if rctx == nil || len(rctx.Pool) == 0 {
		return nil, nil
	}
	pool := FilterPool(rctx.Pool, rctx.Request)
	now := time.Now()

	var cands []*core.Candidate
	switch {
	case rctx.Request != nil && rctx.Request.Context.CurrentPostID != "" &&
		rctx.Content(rctx.Request.Context.CurrentPostID) != nil:
		cands = r.similarToCurrent(rctx, pool, now)
	case rctx.Profile != nil:
		cands = r.interestDriven(rctx, pool, now)
	default:
		cands = r.coldStart(rctx, pool, now)
	}

	for _, cand := range cands {
		AddRecommendationReasons(cand, rctx.Content(cand.PostID), rctx.Profile, now)
	}
	return SortCandidates(cands, rctx.Limit), nil
}

// similarToCurrent 以当前内容为锚点做相关推荐。
func (r *ContentBased) similarToCurrent(rctx *core.RecommendContext, pool []*core.ContentFeatures, now time.Time) []*core.Candidate {
	anchor := rctx.Content(rctx.Request.Context.CurrentPostID)
	minSim := r.MinSimilarity
	if minSim <= 0 {
		minSim = 0.2
	}

	out := make([]*core.Candidate, 0, len(pool))
	for _, c := range pool {
		sim := r.Similarity(anchor, c)
		if sim < minSim {
			continue
		}
		cand := r.newCandidate(c, rctx, now)
		cand.Features.SimilarityScore = sim
		cand.PutLabel("content_mode", utils.Label{Value: "similar", Source: "strategy"})
		out = append(out, cand)
	}
	return out
}

// interestDriven 按画像兴趣匹配度筛选。
func (r *ContentBased) interestDriven(rctx *core.RecommendContext, pool []*core.ContentFeatures, now time.Time) []*core.Candidate {
	minMatch := r.MinInterestMatch
	if minMatch <= 0 {
		minMatch = 0.2
	}

	out := make([]*core.Candidate, 0, len(pool))
	for _, c := range pool {
		match := r.InterestMatch(rctx.Profile, c)
		if match <= minMatch {
			continue
		}
		cand := r.newCandidate(c, rctx, now)
		cand.Features.PersonalizationScore = match
		cand.PutLabel("content_mode", utils.Label{Value: "interest", Source: "strategy"})
		out = append(out, cand)
	}
	return out
}

// coldStart 无画像时只推质量达标的内容。
func (r *ContentBased) coldStart(rctx *core.RecommendContext, pool []*core.ContentFeatures, now time.Time) []*core.Candidate {
	minQuality := r.MediumQuality
	if minQuality <= 0 {
		minQuality = 0.6
	}

	out := make([]*core.Candidate, 0, len(pool))
	for _, c := range pool {
		if QualityScore(c) < minQuality {
			continue
		}
		cand := r.newCandidate(c, rctx, now)
		cand.PutLabel("content_mode", utils.Label{Value: "cold_start", Source: "strategy"})
		out = append(out, cand)
	}
	return out
}

func (r *ContentBased) newCandidate(c *core.ContentFeatures, rctx *core.RecommendContext, now time.Time) *core.Candidate {
	cand := core.NewCandidate(c.ID, core.SourceContentBased)
	cand.Features.QualityScore = QualityScore(c)
	cand.Features.FreshnessScore = FreshnessScore(c.PublishedAt, now, 3)
	cand.Features.PopularityScore = PopularityScore(c.Engagement, r.Benchmarks)
	cand.Score = r.score(c, rctx, now)
	return cand
}

// Score 实现 Algorithm 接口。
func (r *ContentBased) Score(_ context.Context, content *core.ContentFeatures, rctx *core.RecommendContext) float64 {
	return r.score(content, rctx, time.Now())
}

// score 融合单项得分：0.3*质量 + 0.2*新鲜度 + 0.5*(兴趣匹配|流行度)。
func (r *ContentBased) score(c *core.ContentFeatures, rctx *core.RecommendContext, now time.Time) float64 {
	quality := QualityScore(c)
	freshness := FreshnessScore(c.PublishedAt, now, 3)

	var personal float64
	if rctx != nil && rctx.Profile != nil {
		personal = r.InterestMatch(rctx.Profile, c)
	} else {
		personal = PopularityScore(c.Engagement, r.Benchmarks)
	}
	return Clip01(0.3*quality + 0.2*freshness + 0.5*personal)
}

// Similarity 计算两个内容的相似度。
// 特征加权：标题词重叠 / 标签 / 类别 / 关键词的 Jaccard，外加同作者加成；
// 双方都有 embedding 时改为 0.7*余弦 + 0.3*特征加权。
func (r *ContentBased) Similarity(a, b *core.ContentFeatures) float64 {
	if a == nil || b == nil {
		return 0
	}
	w := r.Weights
	if w.Tags == 0 && w.Title == 0 && w.Categories == 0 && w.Keywords == 0 {
		w = DefaultSimilarityWeights
	}

	blend := w.Title*Jaccard(TokenSet(a.Title), TokenSet(b.Title)) +
		w.Tags*Jaccard(a.Tags, b.Tags) +
		w.Categories*Jaccard(a.Categories, b.Categories) +
		w.Keywords*Jaccard(a.Keywords, b.Keywords)
	if a.Author != "" && a.Author == b.Author {
		blend += w.Author
	}

	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return Clip01(0.7*CosineVec(a.Embedding, b.Embedding) + 0.3*blend)
	}
	return Clip01(blend)
}

// InterestMatch 计算画像与内容的兴趣匹配度：对命中的信号取平均。
// 信号：共享标签的兴趣权重、偏好类别 +0.5、长度分桶一致 +0.3；无信号时为 0。
func (r *ContentBased) InterestMatch(profile *core.UserProfile, c *core.ContentFeatures) float64 {
	if profile == nil {
		return 0
	}
	var signals []float64
	for _, tag := range c.Tags {
		if w := profile.InterestWeight(tag); w > 0 {
			signals = append(signals, w)
		}
	}
	for _, cat := range c.Categories {
		if profile.PrefersCategory(cat) {
			signals = append(signals, 0.5)
		}
	}
	if profile.Preferences.PreferredLength != "" &&
		c.LengthBucket() == profile.Preferences.PreferredLength {
		signals = append(signals, 0.3)
	}
	if len(signals) == 0 {
		return 0
	}
	var sum float64
	for _, s := range signals {
		sum += s
	}
	return Clip01(sum / float64(len(signals)))
}

var _ Algorithm = (*ContentBased)(nil)
