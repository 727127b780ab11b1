package algo

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rushteam/recfeed/core"
	"github.com/rushteam/recfeed/pkg/utils"
)

// Trending 是热度候选生成策略：互动加权的基础热度，乘以三段式时间衰减
// 与速度因子。
//
// 热度 = 归一化基础热度 × 时间衰减 × 速度因子：
//   - 基础热度：views×1 + likes×2 + collects×3 + comments×4 + shares×3，
//     除以 HeatNorm（默认 10000）并截断到 1
//   - 时间衰减：<24h 上升期 ×(1+(24-h)/24×0.5)；1–7 天 0.9^(d-1)；
//     7–30 天 (0.9×0.8)^(d-7)×0.5；>30 天固定 0.1
//   - 速度因子：每小时互动量对基准的占比（基准按内容年龄取 50/20/10），
//     0.5 + 0.5×min(占比, 2)，始终落在 [0.5, 1.5]
//
// 多样性控制（因子 0.4）在返回前必做：这条策略最容易集中在少数爆款上。
type Trending struct {
	// HeatNorm 基础热度的归一化分母
	HeatNorm float64

	// DecayRate 1–7 天段的日衰减率
	DecayRate float64

	// DiversityFactor 返回前做多样性控制的因子
	DiversityFactor float64

	// Benchmarks 流行度基准
	Benchmarks core.Benchmarks

	// Rand 无画像时个性化项的随机源；nil 时退回 rctx.Rand 或全局源
	Rand *rand.Rand
}

func (r *Trending) Name() string        { return "algo.trending" }
func (r *Trending) Source() core.Source { return core.SourceTrending }

func (r *Trending) GenerateCandidates(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Candidate, error) {
	if rctx == nil || len(rctx.Pool) == 0 {
		return nil, nil
	}
	pool := FilterPool(rctx.Pool, rctx.Request)
	now := time.Now()

	var interest *ContentBased
	if rctx.Profile != nil {
		interest = &ContentBased{Benchmarks: r.Benchmarks}
	}

	out := make([]*core.Candidate, 0, len(pool))
	for _, c := range pool {
		heat := r.HeatScore(c, now)

		cand := core.NewCandidate(c.ID, core.SourceTrending)
		cand.Features.PopularityScore = heat
		cand.Features.QualityScore = QualityScore(c)
		cand.Features.FreshnessScore = FreshnessScore(c.PublishedAt, now, 7)

		var personal float64
		if interest != nil {
			personal = interest.InterestMatch(rctx.Profile, c)
			cand.Features.PersonalizationScore = personal
		} else {
			personal = r.rand(rctx).Float64() // 无画像时给一点随机探索
		}

		cand.Score = Clip01(0.5*heat + 0.2*cand.Features.QualityScore +
			0.2*cand.Features.FreshnessScore + 0.1*personal)
		r.addReasons(cand, c, now)
		out = append(out, cand)
	}

	out = SortCandidates(out, rctx.Limit)

	factor := r.DiversityFactor
	if factor <= 0 {
		factor = 0.4
	}
	return ApplyDiversity(out, rctx.Contents, factor), nil
}

// Score 实现 Algorithm 接口（不含个性化/随机项）。
func (r *Trending) Score(_ context.Context, content *core.ContentFeatures, _ *core.RecommendContext) float64 {
	now := time.Now()
	return Clip01(0.5*r.HeatScore(content, now) + 0.2*QualityScore(content) +
		0.2*FreshnessScore(content.PublishedAt, now, 7))
}

// HeatScore 计算内容热度，见类型注释。
func (r *Trending) HeatScore(c *core.ContentFeatures, now time.Time) float64 {
	heatNorm := r.HeatNorm
	if heatNorm <= 0 {
		heatNorm = 10000
	}
	e := c.Engagement
	baseHeat := float64(e.Views)*1.0 + float64(e.Likes)*2.0 +
		float64(e.Collects)*3.0 + float64(e.Comments)*4.0 + float64(e.Shares)*3.0
	normalized := math.Min(baseHeat/heatNorm, 1)

	return normalized * r.timeDecay(c.PublishedAt, now) * r.velocityFactor(c, now)
}

// timeDecay 三段式时间衰减。
func (r *Trending) timeDecay(publishedAt, now time.Time) float64 {
	decayRate := r.DecayRate
	if decayRate <= 0 {
		decayRate = 0.9
	}
	hours := now.Sub(publishedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	days := hours / 24

	switch {
	case hours < 24:
		return 1 + (24-hours)/24*0.5
	case days <= 7:
		return math.Pow(decayRate, days-1)
	case days <= 30:
		return math.Pow(decayRate*0.8, days-7) * 0.5
	default:
		return 0.1
	}
}

// velocityFactor 每小时互动速度对年龄相关基准的占比。
func (r *Trending) velocityFactor(c *core.ContentFeatures, now time.Time) float64 {
	hours := now.Sub(c.PublishedAt).Hours()
	if hours < 1 {
		hours = 1
	}
	e := c.Engagement
	engagementPerHour := (float64(e.Views) + 2*float64(e.Likes) +
		3*float64(e.Collects) + 4*float64(e.Comments)) / hours

	var benchmark float64
	switch {
	case hours < 6:
		benchmark = 50
	case hours < 24:
		benchmark = 20
	default:
		benchmark = 10
	}
	return 0.5 + 0.5*math.Min(engagementPerHour/benchmark, 2)
}

// addReasons 追加按时间分桶的热度理由和互动类型修饰。
func (r *Trending) addReasons(cand *core.Candidate, c *core.ContentFeatures, now time.Time) {
	hours := now.Sub(c.PublishedAt).Hours()
	switch {
	case hours < 6:
		cand.AddReason("🔥 Trending now")
	case hours < 24:
		cand.AddReason("Today's hot pick")
	case hours < 7*24:
		cand.AddReason("This week's hot topic")
	default:
		cand.AddReason("Recently popular")
	}

	// 互动类型修饰：按加权贡献挑主导项
	e := c.Engagement
	comments := float64(e.Comments) * 4
	collects := float64(e.Collects) * 3
	likes := float64(e.Likes) * 2
	switch {
	case comments > 0 && comments >= collects && comments >= likes:
		cand.AddReason("Sparking lots of discussion")
	case collects > 0 && collects >= likes:
		cand.AddReason("Widely bookmarked")
	case likes > 0:
		cand.AddReason("Well liked")
	}
	cand.PutLabel("trending_bucket", utils.Label{Value: bucketName(hours), Source: "strategy"})
}

func bucketName(hours float64) string {
	switch {
	case hours < 6:
		return "now"
	case hours < 24:
		return "today"
	case hours < 7*24:
		return "week"
	default:
		return "older"
	}
}

func (r *Trending) rand(rctx *core.RecommendContext) *rand.Rand {
	if r.Rand != nil {
		return r.Rand
	}
	if rctx != nil && rctx.Rand != nil {
		return rctx.Rand
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

var _ Algorithm = (*Trending)(nil)
