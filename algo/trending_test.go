package algo

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rushteam/recfeed/core"
)

func TestHeatScoreFreshBeatsStale(t *testing.T) {
	now := time.Now()
	r := &Trending{}
	engagement := core.Engagement{Views: 8000, Likes: 500, Collects: 200, Comments: 100, Shares: 50}

	fresh := r.HeatScore(&core.ContentFeatures{
		ID: "fresh", PublishedAt: now.Add(-1 * time.Hour), Engagement: engagement,
	}, now)
	stale := r.HeatScore(&core.ContentFeatures{
		ID: "stale", PublishedAt: now.Add(-40 * 24 * time.Hour), Engagement: engagement,
	}, now)

	// 同样的互动量，1 小时前发布的热度应远高于 40 天前的
	if fresh <= stale*10 {
		t.Errorf("fresh=%v stale=%v, 期望 fresh 至少高一个量级", fresh, stale)
	}
}

func TestTrendingTimeDecayPhases(t *testing.T) {
	now := time.Now()
	r := &Trending{}

	tests := []struct {
		name string
		age  time.Duration
		lo   float64
		hi   float64
	}{
		{"上升期有加成", 2 * time.Hour, 1.0, 1.5},
		{"一周内指数衰减", 3 * 24 * time.Hour, 0.5, 1.0},
		{"一个月内深度衰减", 14 * 24 * time.Hour, 0.01, 0.5},
		{"超过一个月保底", 60 * 24 * time.Hour, 0.1, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.timeDecay(now.Add(-tt.age), now)
			if got < tt.lo || got > tt.hi {
				t.Errorf("timeDecay(%v) = %v, 期望落在 [%v, %v]", tt.age, got, tt.lo, tt.hi)
			}
		})
	}
}

func TestVelocityFactorBounds(t *testing.T) {
	now := time.Now()
	r := &Trending{}

	// 零互动：下限 0.5
	slow := r.velocityFactor(&core.ContentFeatures{
		PublishedAt: now.Add(-48 * time.Hour),
	}, now)
	if !almostEqual(slow, 0.5, 1e-9) {
		t.Errorf("零互动速度因子 = %v, 期望 0.5", slow)
	}

	// 爆量：上限 1.5
	viral := r.velocityFactor(&core.ContentFeatures{
		PublishedAt: now.Add(-2 * time.Hour),
		Engagement:  core.Engagement{Views: 100000, Likes: 10000},
	}, now)
	if !almostEqual(viral, 1.5, 1e-9) {
		t.Errorf("爆量速度因子 = %v, 期望 1.5", viral)
	}
}

func TestTrendingGenerateCandidates(t *testing.T) {
	now := time.Now()
	pool := []*core.ContentFeatures{
		{
			ID: "hot", PublishedAt: now.Add(-3 * time.Hour), Categories: []string{"tech"},
			Engagement: core.Engagement{Views: 9000, Likes: 600, Collects: 300, Comments: 120},
		},
		{
			ID: "old", PublishedAt: now.Add(-20 * 24 * time.Hour), Categories: []string{"life"},
			Engagement: core.Engagement{Views: 9000, Likes: 600, Collects: 300, Comments: 120},
		},
	}

	r := &Trending{Rand: rand.New(rand.NewSource(1))}
	rctx := newTestRctx(pool, &core.RecommendRequest{Count: 5}, nil)
	cands, err := r.GenerateCandidates(context.Background(), rctx)
	if err != nil {
		t.Fatalf("GenerateCandidates 失败: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("候选数 = %d, 期望 2", len(cands))
	}
	if cands[0].PostID != "hot" {
		t.Errorf("首位 = %s, 期望 hot", cands[0].PostID)
	}
	if len(cands[0].Reasons) == 0 || cands[0].Reasons[0] != "🔥 Trending now" {
		t.Errorf("6 小时内的爆款理由 = %v, 期望 🔥 Trending now", cands[0].Reasons)
	}
}

func TestTrendingReasonBuckets(t *testing.T) {
	now := time.Now()
	r := &Trending{}

	tests := []struct {
		age      time.Duration
		expected string
	}{
		{2 * time.Hour, "🔥 Trending now"},
		{12 * time.Hour, "Today's hot pick"},
		{3 * 24 * time.Hour, "This week's hot topic"},
		{20 * 24 * time.Hour, "Recently popular"},
	}
	for _, tt := range tests {
		cand := core.NewCandidate("x", core.SourceTrending)
		r.addReasons(cand, &core.ContentFeatures{PublishedAt: now.Add(-tt.age)}, now)
		if len(cand.Reasons) == 0 || cand.Reasons[0] != tt.expected {
			t.Errorf("age=%v 的理由 = %v, 期望 %q", tt.age, cand.Reasons, tt.expected)
		}
	}
}

func TestTrendingScoreDeterministicWithInjectedRand(t *testing.T) {
	now := time.Now()
	pool := []*core.ContentFeatures{
		{ID: "a", PublishedAt: now.Add(-5 * time.Hour), Engagement: core.Engagement{Views: 3000, Likes: 100}},
		{ID: "b", PublishedAt: now.Add(-30 * time.Hour), Engagement: core.Engagement{Views: 5000, Likes: 300}},
	}

	run := func() []string {
		r := &Trending{Rand: rand.New(rand.NewSource(7))}
		rctx := newTestRctx(pool, &core.RecommendRequest{Count: 5}, nil)
		cands, err := r.GenerateCandidates(context.Background(), rctx)
		if err != nil {
			t.Fatalf("GenerateCandidates 失败: %v", err)
		}
		return candIDs(cands)
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("两次结果长度不同: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("注入随机源后结果应可复现: %v vs %v", first, second)
		}
	}
}
