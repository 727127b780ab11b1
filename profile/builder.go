// Package profile 把原始行为事件和内容特征聚合成用户画像。
package profile

import (
	"math"
	"sort"
	"time"

	"github.com/rushteam/recfeed/core"
)

// 兴趣聚合时不同特征来源的折算系数。
const (
	tagWeight      = 1.0
	categoryWeight = 0.5
	keywordWeight  = 0.3
)

// 时段分桶边界（小时）。
const (
	bucketMorning   = "morning"    // 05–11
	bucketNoon      = "noon"       // 11–14
	bucketAfternoon = "afternoon"  // 14–18
	bucketEvening   = "evening"    // 18–23
	bucketLateNight = "late-night" // 其余
)

// 人群标签。
const (
	SegmentHeavyUser     = "heavy_user"
	SegmentMediumUser    = "medium_user"
	SegmentLightUser     = "light_user"
	SegmentNewUser       = "new_user"
	SegmentDeepReader    = "deep_reader"
	SegmentActiveEngager = "active_engager"
)

// Builder 从行为历史构建用户画像。
//
// 兴趣权重：按事件从新到旧遍历，权重 = 行为类型权重 × 时间衰减
// （半衰期 30 天、下限 0.1），标签全额累加、类别折半、关键词 0.3 倍，
// 最后按最大值归一化——这是画像的核心不变式：非空兴趣表的最大权重为 1。
type Builder struct {
	// ActionWeights 各行为类型的聚合权重，nil 时取 core.ActionWeights
	ActionWeights map[core.ActionType]float64

	// DecayFactor 兴趣衰减底数，默认 0.95
	DecayFactor float64

	// HalfLifeDays 兴趣衰减半衰期，默认 30
	HalfLifeDays float64

	// DecayFloor 衰减下限，默认 0.1
	DecayFloor float64

	// SegmentKeywords 兴趣关键词组 → 人群标签，命中任一关键词即打标
	SegmentKeywords map[string][]string
}

// Build 从行为事件构建画像。没有任何事件的用户不产生画像：返回 nil，
// 绝不返回零值填充的对象。actions 约定按 CreatedAt 降序。
func (b *Builder) Build(userID string, actions []*core.UserAction, contents map[string]*core.ContentFeatures) *core.UserProfile {
	if len(actions) == 0 {
		return nil
	}
	now := time.Now()

	p := &core.UserProfile{
		UserID:    userID,
		Interests: b.buildInterests(actions, contents, now),
		UpdatedAt: now,
	}
	p.Preferences = b.buildPreferences(actions, contents)
	p.Stats = b.buildStats(actions)
	p.Segments = b.buildSegments(p, actions, now)
	return p
}

func (b *Builder) actionWeight(t core.ActionType) float64 {
	if b.ActionWeights != nil {
		if w, ok := b.ActionWeights[t]; ok {
			return w
		}
	}
	return core.ActionWeights[t]
}

func (b *Builder) buildInterests(actions []*core.UserAction, contents map[string]*core.ContentFeatures, now time.Time) map[string]float64 {
	factor := b.DecayFactor
	if factor <= 0 {
		factor = 0.95
	}
	halfLife := b.HalfLifeDays
	if halfLife <= 0 {
		halfLife = 30
	}
	floor := b.DecayFloor
	if floor <= 0 {
		floor = 0.1
	}

	acc := make(map[string]float64)
	for _, a := range actions {
		base := b.actionWeight(a.Type)
		if a.Type == core.ActionReadTime {
			base *= a.Value
		}
		if base <= 0 {
			continue
		}
		days := now.Sub(a.CreatedAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		decay := math.Max(math.Pow(factor, days/halfLife), floor)
		w := base * decay

		c := contents[a.TargetID]
		if c == nil {
			continue
		}
		for _, tag := range c.Tags {
			acc[tag] += w * tagWeight
		}
		for _, cat := range c.Categories {
			acc[cat] += w * categoryWeight
		}
		for _, kw := range c.Keywords {
			acc[kw] += w * keywordWeight
		}
	}

	return normalize(acc)
}

// normalize 按最大值归一化；空表原样返回（除零保护）。
func normalize(m map[string]float64) map[string]float64 {
	var max float64
	for _, v := range m {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return map[string]float64{}
	}
	for k, v := range m {
		m[k] = v / max
	}
	return m
}

func (b *Builder) buildPreferences(actions []*core.UserAction, contents map[string]*core.ContentFeatures) core.Preferences {
	var prefs core.Preferences

	// 长度分桶多数票（只统计浏览/阅读类事件）
	lengthVotes := make(map[string]int)
	categoryVotes := make(map[string]int)
	hourVotes := make(map[string]int)
	var readTimes []float64

	for _, a := range actions {
		hourVotes[timeBucket(a.CreatedAt.Hour())]++

		if a.Type == core.ActionReadTime && a.Value > 0 {
			readTimes = append(readTimes, a.Value)
		}

		c := contents[a.TargetID]
		if c == nil {
			continue
		}
		if a.Type == core.ActionView || a.Type == core.ActionReadTime || a.Type == core.ActionClick {
			lengthVotes[c.LengthBucket()]++
		}
		for _, cat := range c.Categories {
			categoryVotes[cat]++
		}
	}

	prefs.PreferredLength = majority(lengthVotes)
	prefs.PreferredCategories = topN(categoryVotes, 3)
	prefs.PreferredTime = topN(hourVotes, 3)

	if len(readTimes) > 0 {
		var sum float64
		for _, v := range readTimes {
			sum += v
		}
		avgMs := sum / float64(len(readTimes)) * 1000 // 秒 → 毫秒
		if avgMs > 0 {
			prefs.ReadingSpeed = 60000 / avgMs // 词/分钟
		}
	}
	return prefs
}

func timeBucket(hour int) string {
	switch {
	case hour >= 5 && hour < 11:
		return bucketMorning
	case hour >= 11 && hour < 14:
		return bucketNoon
	case hour >= 14 && hour < 18:
		return bucketAfternoon
	case hour >= 18 && hour < 23:
		return bucketEvening
	default:
		return bucketLateNight
	}
}

func majority(votes map[string]int) string {
	best, bestCount := "", 0
	for k, n := range votes {
		if n > bestCount || (n == bestCount && k < best) {
			best, bestCount = k, n
		}
	}
	return best
}

func topN(votes map[string]int, n int) []string {
	type kv struct {
		k string
		n int
	}
	list := make([]kv, 0, len(votes))
	for k, c := range votes {
		list = append(list, kv{k, c})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].n != list[j].n {
			return list[i].n > list[j].n
		}
		return list[i].k < list[j].k
	})
	if len(list) > n {
		list = list[:n]
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.k)
	}
	return out
}

func (b *Builder) buildStats(actions []*core.UserAction) core.ProfileStats {
	var stats core.ProfileStats
	days := make(map[string]struct{})
	var readSum float64
	var readCount int

	for _, a := range actions {
		switch a.Type {
		case core.ActionView:
			stats.TotalViews++
		case core.ActionLike:
			stats.TotalLikes++
		case core.ActionCollect:
			stats.TotalCollects++
		case core.ActionComment:
			stats.TotalComments++
		case core.ActionReadTime:
			readSum += a.Value
			readCount++
		}
		days[a.CreatedAt.Format("2006-01-02")] = struct{}{}
		if a.CreatedAt.After(stats.LastActive) {
			stats.LastActive = a.CreatedAt
		}
	}
	stats.ActiveDays = len(days)
	if readCount > 0 {
		stats.AvgReadTime = readSum / float64(readCount)
	}
	return stats
}

// 活跃度分层的 7 天行为数阈值。
const (
	heavyUserThreshold  = 50
	mediumUserThreshold = 20
	lightUserThreshold  = 5
)

func (b *Builder) buildSegments(p *core.UserProfile, actions []*core.UserAction, now time.Time) []string {
	var segments []string

	weekAgo := now.AddDate(0, 0, -7)
	recentCount := 0
	firstAction := now
	for _, a := range actions {
		if a.CreatedAt.After(weekAgo) {
			recentCount++
		}
		if a.CreatedAt.Before(firstAction) {
			firstAction = a.CreatedAt
		}
	}

	switch {
	case recentCount >= heavyUserThreshold:
		segments = append(segments, SegmentHeavyUser)
	case recentCount >= mediumUserThreshold:
		segments = append(segments, SegmentMediumUser)
	case recentCount >= lightUserThreshold:
		segments = append(segments, SegmentLightUser)
	}

	if firstAction.After(weekAgo) {
		segments = append(segments, SegmentNewUser)
	}

	// 兴趣关键词组
	for segment, keywords := range b.SegmentKeywords {
		for _, kw := range keywords {
			if p.Interests[kw] > 0 {
				segments = append(segments, segment)
				break
			}
		}
	}

	if p.Stats.AvgReadTime > 180 {
		segments = append(segments, SegmentDeepReader)
	}
	if p.Stats.TotalViews > 0 {
		engageRatio := float64(p.Stats.TotalLikes+p.Stats.TotalCollects+p.Stats.TotalComments) /
			float64(p.Stats.TotalViews)
		if engageRatio > 0.2 {
			segments = append(segments, SegmentActiveEngager)
		}
	}
	sort.Strings(segments)
	return segments
}

// Merge 将新构建的画像合并进已有画像：旧兴趣额外衰减 20%，新兴趣按
// 50% 权重加入，再归一化；偏好用新值覆盖；统计累加。
//
// AvgReadTime 取两个运行平均值的简单平均而非按样本数加权，已知偏差，
// 对 deep_reader 阈值判断足够。
func (b *Builder) Merge(old, fresh *core.UserProfile) *core.UserProfile {
	if old == nil {
		return fresh
	}
	if fresh == nil {
		return old
	}

	merged := &core.UserProfile{
		UserID:      old.UserID,
		Interests:   make(map[string]float64, len(old.Interests)+len(fresh.Interests)),
		Preferences: fresh.Preferences,
		UpdatedAt:   time.Now(),
	}

	for tag, w := range old.Interests {
		merged.Interests[tag] = w * 0.8
	}
	for tag, w := range fresh.Interests {
		merged.Interests[tag] += w * 0.5
	}
	merged.Interests = normalize(merged.Interests)

	merged.Stats = core.ProfileStats{
		TotalViews:    old.Stats.TotalViews + fresh.Stats.TotalViews,
		TotalLikes:    old.Stats.TotalLikes + fresh.Stats.TotalLikes,
		TotalCollects: old.Stats.TotalCollects + fresh.Stats.TotalCollects,
		TotalComments: old.Stats.TotalComments + fresh.Stats.TotalComments,
		ActiveDays:    old.Stats.ActiveDays + fresh.Stats.ActiveDays,
		LastActive:    fresh.Stats.LastActive,
	}
	switch {
	case old.Stats.AvgReadTime == 0:
		merged.Stats.AvgReadTime = fresh.Stats.AvgReadTime
	case fresh.Stats.AvgReadTime == 0:
		merged.Stats.AvgReadTime = old.Stats.AvgReadTime
	default:
		merged.Stats.AvgReadTime = (old.Stats.AvgReadTime + fresh.Stats.AvgReadTime) / 2
	}
	if old.Stats.LastActive.After(merged.Stats.LastActive) {
		merged.Stats.LastActive = old.Stats.LastActive
	}

	merged.Segments = fresh.Segments
	return merged
}
