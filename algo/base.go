package algo

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rushteam/recfeed/core"
	"github.com/rushteam/recfeed/pkg/utils"
)

// 共享评分原语：时间衰减、新鲜度、流行度、质量、多样性、推荐理由。
// 三个策略都建立在这些函数之上，保证同一量纲下可融合。

// DefaultBenchmarks 是流行度评分的默认基准值。
var DefaultBenchmarks = core.Benchmarks{
	Views:    1000,
	Likes:    100,
	Collects: 50,
	Comments: 20,
}

// Clip01 将分数裁剪到 [0,1]。
func Clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DaysSince 返回距 now 的天数（可为小数，未来时间按 0 计）。
func DaysSince(t, now time.Time) float64 {
	d := now.Sub(t).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// TimeDecay 计算指数时间衰减：decayFactor^(daysSince/halfLifeDays)。
// decayFactor<=0 时取 0.95，halfLifeDays<=0 时取 7。
func TimeDecay(publishedAt, now time.Time, decayFactor, halfLifeDays float64) float64 {
	if decayFactor <= 0 {
		decayFactor = 0.95
	}
	if halfLifeDays <= 0 {
		halfLifeDays = 7
	}
	return math.Pow(decayFactor, DaysSince(publishedAt, now)/halfLifeDays)
}

// FreshnessScore 计算新鲜度：boost 窗口内线性加成（最高 1.5），
// 窗口外按 sigmoid 1/(1+e^((days-30)/10)) 缓降。
func FreshnessScore(publishedAt, now time.Time, boostDays float64) float64 {
	if boostDays <= 0 {
		boostDays = 3
	}
	days := DaysSince(publishedAt, now)
	if days <= boostDays {
		return 1 + (boostDays-days)/boostDays*0.5
	}
	return 1 / (1 + math.Exp((days-30)/10))
}

// PopularityScore 计算流行度：各项计数对基准的占比（上限 2 倍）的加权和。
// 权重：views 0.2 / likes 0.3 / collects 0.3 / comments 0.2。
func PopularityScore(e core.Engagement, b core.Benchmarks) float64 {
	if b.Views <= 0 {
		b = DefaultBenchmarks
	}
	ratio := func(metric int64, benchmark float64) float64 {
		if benchmark <= 0 {
			return 0
		}
		return math.Min(float64(metric)/benchmark, 2)
	}
	return 0.2*ratio(e.Views, b.Views) +
		0.3*ratio(e.Likes, b.Likes) +
		0.3*ratio(e.Collects, b.Collects) +
		0.2*ratio(e.Comments, b.Comments)
}

// QualityScore 计算内容质量分。显式的编辑质量分优先；
// 否则 0.4*互动率 + 0.4*平均读完率 + 0.2*min(字数/2000, 1)，
// 互动率 = (likes+collects+comments)/max(views, 1)。
func QualityScore(c *core.ContentFeatures) float64 {
	if c.QualityScore > 0 {
		return Clip01(c.QualityScore)
	}
	views := c.Engagement.Views
	if views < 1 {
		views = 1
	}
	interactionRate := float64(c.Engagement.Likes+c.Engagement.Collects+c.Engagement.Comments) / float64(views)
	lengthTerm := math.Min(float64(c.WordCount)/2000, 1)
	return Clip01(0.4*interactionRate + 0.4*c.Engagement.AvgReadRatio + 0.2*lengthTerm)
}

// FilterPool 剔除请求排除的内容与当前正在阅读的内容。
func FilterPool(pool []*core.ContentFeatures, req *core.RecommendRequest) []*core.ContentFeatures {
	if req == nil {
		return pool
	}
	excluded := make(map[string]struct{}, len(req.ExcludeIDs)+1)
	for _, id := range req.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	if req.Context.CurrentPostID != "" {
		excluded[req.Context.CurrentPostID] = struct{}{}
	}
	if len(excluded) == 0 {
		return pool
	}
	out := make([]*core.ContentFeatures, 0, len(pool))
	for _, c := range pool {
		if _, ok := excluded[c.ID]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SortCandidates 按分数降序排序并截断到 limit（limit<=0 不截断）。
// 排序是稳定的，分数相同的候选保持原有先后。
func SortCandidates(cands []*core.Candidate, limit int) []*core.Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score > cands[j].Score
	})
	if limit > 0 && len(cands) > limit {
		return cands[:limit]
	}
	return cands
}

// ApplyDiversity 对已排序的候选做多样性控制：顺序遍历，统计已入选内容的
// 类别/作者占比；某类别占比超过 diversityFactor 时当前候选 ×0.7，
// 作者占比超过 0.7×diversityFactor 时 ×0.8。惩罚是乘性的，可叠加。
// 遍历结束后重新排序。
func ApplyDiversity(cands []*core.Candidate, contents map[string]*core.ContentFeatures, diversityFactor float64) []*core.Candidate {
	if diversityFactor <= 0 {
		diversityFactor = 0.3
	}
	if len(cands) < 2 {
		return cands
	}

	categoryCount := make(map[string]int)
	authorCount := make(map[string]int)
	selected := 0

	for _, cand := range cands {
		c := contents[cand.PostID]
		if c == nil {
			continue
		}
		if selected > 0 {
			penalized := false
			for _, cat := range c.Categories {
				if float64(categoryCount[cat])/float64(selected) > diversityFactor {
					cand.Score *= 0.7
					penalized = true
				}
			}
			if c.Author != "" &&
				float64(authorCount[c.Author])/float64(selected) > 0.7*diversityFactor {
				cand.Score *= 0.8
				penalized = true
			}
			if penalized {
				cand.PutLabel("diversity_penalty", utils.Label{Value: "applied", Source: "diversity"})
			}
		}
		for _, cat := range c.Categories {
			categoryCount[cat]++
		}
		if c.Author != "" {
			authorCount[c.Author]++
		}
		selected++
	}

	return SortCandidates(cands, 0)
}

// 推荐理由相关阈值。
const (
	hotViewsThreshold    = 1000
	highQualityThreshold = 0.8
	newContentDays       = 3.0
	interestReasonWeight = 0.3
)

// AddRecommendationReasons 为候选追加面向用户的推荐理由，最多 2 条，
// 依次尝试：命中兴趣标签、热门、高质量、新发布；都不命中时给通用理由。
func AddRecommendationReasons(cand *core.Candidate, c *core.ContentFeatures, profile *core.UserProfile, now time.Time) {
	if profile != nil {
		bestTag, bestWeight := "", 0.0
		for _, tag := range c.Tags {
			if w := profile.InterestWeight(tag); w > bestWeight {
				bestTag, bestWeight = tag, w
			}
		}
		if bestWeight >= interestReasonWeight {
			cand.AddReason(fmt.Sprintf("Matches your interest in %s", bestTag))
		}
	}
	if c.Engagement.Views > hotViewsThreshold {
		cand.AddReason("Popular with other readers")
	}
	if QualityScore(c) > highQualityThreshold {
		cand.AddReason("High quality content")
	}
	if DaysSince(c.PublishedAt, now) <= newContentDays {
		cand.AddReason("Newly published")
	}
	if len(cand.Reasons) == 0 {
		cand.AddReason("Recommended for you")
	}
}

// Jaccard 计算两个字符串集合的 Jaccard 相似度：|A∩B| / |A∪B|，并集为空时为 0。
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}
	intersection := 0
	for s := range setA {
		if _, ok := setB[s]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// TokenSet 将标题切成小写 token 集合，供标题词重叠计算。
func TokenSet(title string) []string {
	fields := strings.Fields(strings.ToLower(title))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]")
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// CosineVec 计算两个稠密向量的余弦相似度，维度不同或零向量时为 0。
func CosineVec(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineOverCommon 对两个稀疏向量只在共同维度上计算余弦相似度，
// 无共同维度时为 0。协同过滤的用户/物品相似度都用它。
func cosineOverCommon(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	common := 0
	for k, va := range a {
		vb, ok := b[k]
		if !ok {
			continue
		}
		common++
		dot += va * vb
		normA += va * va
		normB += vb * vb
	}
	if common == 0 || normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
