package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rushteam/recfeed/core"
	"github.com/rushteam/recfeed/store"
)

// brokenContentSource 模拟内容池不可用但兜底索引可用的场景。
type brokenContentSource struct {
	mostViewed []*core.ContentFeatures
}

func (s *brokenContentSource) GetPublishedContent(context.Context, int) ([]*core.ContentFeatures, error) {
	return nil, errors.New("content db down")
}

func (s *brokenContentSource) GetMostViewed(_ context.Context, limit int) ([]*core.ContentFeatures, error) {
	if limit > len(s.mostViewed) {
		limit = len(s.mostViewed)
	}
	return s.mostViewed[:limit], nil
}

// failingActionStore 模拟写入失败。
type failingActionStore struct{}

func (failingActionStore) InsertAction(context.Context, *core.UserAction) error {
	return errors.New("insert failed")
}

func (failingActionStore) GetActionsForUser(context.Context, string, int) ([]*core.UserAction, error) {
	return nil, nil
}

func seededStores(t *testing.T) (*store.ContentAdapter, *store.ActionAdapter, *store.ProfileAdapter) {
	t.Helper()
	kv := store.NewMemoryStore()
	t.Cleanup(func() { kv.Close() })

	contents := store.NewContentAdapter(kv)
	now := time.Now()
	seed := []*core.ContentFeatures{
		{
			ID: "p1", Title: "Go schedulers explained", Author: "alice",
			PublishedAt: now.Add(-4 * time.Hour),
			Categories:  []string{"engineering"}, Tags: []string{"golang"},
			WordCount: 1600,
			Engagement: core.Engagement{Views: 4000, Likes: 300, Collects: 150, Comments: 60, AvgReadRatio: 0.7},
		},
		{
			ID: "p2", Title: "Tuning Postgres indexes", Author: "bob",
			PublishedAt: now.Add(-30 * time.Hour),
			Categories:  []string{"engineering"}, Tags: []string{"database"},
			WordCount: 2200,
			Engagement: core.Engagement{Views: 2500, Likes: 180, Collects: 90, Comments: 40, AvgReadRatio: 0.65},
		},
		{
			ID: "p3", Title: "Weekend sourdough notes", Author: "carol",
			PublishedAt: now.Add(-5 * 24 * time.Hour),
			Categories:  []string{"food"}, Tags: []string{"baking"},
			WordCount: 800,
			Engagement: core.Engagement{Views: 9000, Likes: 700, Collects: 350, Comments: 120, AvgReadRatio: 0.5},
		},
		{
			ID: "p4", Title: "Observability on a budget", Author: "dave",
			PublishedAt: now.Add(-12 * 24 * time.Hour),
			Categories:  []string{"devops"}, Tags: []string{"observability"},
			WordCount: 1200,
			Engagement: core.Engagement{Views: 1200, Likes: 60, Collects: 30, Comments: 10, AvgReadRatio: 0.6},
		},
	}
	for _, c := range seed {
		if err := contents.UpsertContent(context.Background(), c); err != nil {
			t.Fatal(err)
		}
	}
	return contents, store.NewActionAdapter(kv), store.NewProfileAdapter(kv)
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	contents, actions, profiles := seededStores(t)
	opts = append([]Option{
		WithRand(rand.New(rand.NewSource(42))),
		WithInteractionStore(actions),
	}, opts...)
	eng, err := New(nil, contents, actions, profiles, opts...)
	if err != nil {
		t.Fatalf("New 失败: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func TestRecommendNeverEmpty(t *testing.T) {
	eng := newTestEngine(t)

	resp := eng.Recommend(context.Background(), &core.RecommendRequest{Count: 3})
	if resp == nil || len(resp.Recommendations) == 0 {
		t.Fatal("Recommend 永远不应返回空响应")
	}
	if len(resp.Recommendations) > 3 {
		t.Errorf("返回 %d 条，期望不超过 Count=3", len(resp.Recommendations))
	}
	if resp.SessionID == "" {
		t.Error("响应应带 session_id")
	}
	for i, item := range resp.Recommendations {
		if item.Rank != i+1 {
			t.Errorf("第 %d 条的 Rank = %d, 期望 %d", i, item.Rank, i+1)
		}
		if item.Reason == "" {
			t.Error("每条推荐都应有理由")
		}
		if item.PredictedCTR <= 0 || item.PredictedCTR > 0.5 {
			t.Errorf("predicted_ctr = %v, 期望落在 (0, 0.5]", item.PredictedCTR)
		}
	}
}

func TestRecommendExcludes(t *testing.T) {
	eng := newTestEngine(t)

	resp := eng.Recommend(context.Background(), &core.RecommendRequest{
		Count:      10,
		ExcludeIDs: []string{"p3"},
		Context:    core.RequestContext{CurrentPostID: "p1"},
	})
	for _, item := range resp.Recommendations {
		if item.PostID == "p3" || item.PostID == "p1" {
			t.Errorf("被排除的 %s 不应出现在结果中", item.PostID)
		}
	}
}

func TestRecommendResponseCache(t *testing.T) {
	eng := newTestEngine(t)
	req := &core.RecommendRequest{UserID: "u1", Count: 3, Debug: true}

	first := eng.Recommend(context.Background(), req)
	if first.Debug == nil {
		t.Fatal("Debug=true 时应返回调试块")
	}
	if first.Debug.CacheHit {
		t.Error("首次请求不应命中缓存")
	}

	second := eng.Recommend(context.Background(), req)
	if second.Debug == nil || !second.Debug.CacheHit {
		t.Error("二次请求应命中响应缓存")
	}
	if len(second.Recommendations) != len(first.Recommendations) {
		t.Error("缓存响应与原响应应一致")
	}
}

func TestRecommendFallbackOnBrokenPool(t *testing.T) {
	now := time.Now()
	content := &brokenContentSource{mostViewed: []*core.ContentFeatures{
		{ID: "hot1", PublishedAt: now, Engagement: core.Engagement{Views: 9000}},
		{ID: "hot2", PublishedAt: now, Engagement: core.Engagement{Views: 8000}},
		{ID: "hot3", PublishedAt: now, Engagement: core.Engagement{Views: 7000}},
	}}

	eng, err := New(nil, content, nil, nil)
	if err != nil {
		t.Fatalf("New 失败: %v", err)
	}
	defer eng.Close()

	resp := eng.Recommend(context.Background(), &core.RecommendRequest{Count: 2, Debug: true})
	if len(resp.Recommendations) != 2 {
		t.Fatalf("兜底应返回 2 条，实际 %d", len(resp.Recommendations))
	}
	if resp.Debug == nil || !resp.Debug.FallbackUsed {
		t.Error("调试块应标记 fallback_used")
	}

	// 兜底分数按 1 - 0.1*i 递减，来源固定为 trending
	for i, item := range resp.Recommendations {
		expected := 1 - 0.1*float64(i)
		if item.Score != expected {
			t.Errorf("兜底第 %d 条分数 = %v, 期望 %v", i, item.Score, expected)
		}
		if item.Source != core.SourceTrending {
			t.Errorf("兜底来源 = %s, 期望 trending", item.Source)
		}
		if item.Reason != "Popular recommendation" {
			t.Errorf("兜底理由 = %q, 期望 Popular recommendation", item.Reason)
		}
	}
}

func TestRecommendDeterministicWithSeed(t *testing.T) {
	run := func() []string {
		eng := newTestEngine(t)
		resp := eng.Recommend(context.Background(), &core.RecommendRequest{Count: 4})
		ids := make([]string, 0, len(resp.Recommendations))
		for _, item := range resp.Recommendations {
			ids = append(ids, item.PostID)
		}
		return ids
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("两次结果长度不同: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("同种子同数据的结果应可复现: %v vs %v", first, second)
		}
	}
}

// 全池同类别时多样性惩罚对排序敏感：融合产物必须先排好序再进重排链路，
// 否则惩罚落在随机对象上，同样的输入会给出不同的顺序。
func TestRecommendStableOrderWithSingleCategoryPool(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.StrategyWeights = core.StrategyWeights{ContentBased: 0.5, Trending: 0.5}

	run := func() []string {
		kv := store.NewMemoryStore()
		t.Cleanup(func() { kv.Close() })
		contents := store.NewContentAdapter(kv)
		now := time.Now()
		for i := 0; i < 8; i++ {
			c := &core.ContentFeatures{
				ID:           fmt.Sprintf("n%d", i),
				Title:        fmt.Sprintf("Engineering deep dive %d", i),
				Author:       fmt.Sprintf("author%d", i),
				PublishedAt:  now.Add(-2 * time.Hour),
				Categories:   []string{"engineering"},
				Tags:         []string{"golang"},
				WordCount:    1500,
				QualityScore: 0.92 - 0.04*float64(i),
				Engagement:   core.Engagement{Views: int64(5000 - 100*i), Likes: 200, Collects: 80, Comments: 30, AvgReadRatio: 0.6},
			}
			if err := contents.UpsertContent(context.Background(), c); err != nil {
				t.Fatal(err)
			}
		}
		eng, err := New(cfg, contents, store.NewActionAdapter(kv), store.NewProfileAdapter(kv),
			WithRand(rand.New(rand.NewSource(7))))
		if err != nil {
			t.Fatalf("New 失败: %v", err)
		}
		defer eng.Close()

		resp := eng.Recommend(context.Background(), &core.RecommendRequest{Count: 8})
		out := make([]string, 0, len(resp.Recommendations))
		for _, item := range resp.Recommendations {
			out = append(out, item.PostID)
		}
		return out
	}

	first := run()
	if len(first) == 0 {
		t.Fatal("推荐结果不应为空")
	}
	// 排第一的不吃类别惩罚，应是质量最高的 n0
	if first[0] != "n0" {
		t.Errorf("首位 = %s, 期望质量最高的 n0（完整顺序 %v）", first[0], first)
	}
	for round := 0; round < 3; round++ {
		again := run()
		if len(again) != len(first) {
			t.Fatalf("第 %d 次重放长度不同: %v vs %v", round, first, again)
		}
		for i := range first {
			if first[i] != again[i] {
				t.Fatalf("第 %d 次重放顺序漂移: %v vs %v", round, first, again)
			}
		}
	}
}

func TestRecentBonusFlatWithinWindow(t *testing.T) {
	eng := newTestEngine(t)
	now := time.Now()
	pool := []*core.ContentFeatures{
		{ID: "d1", PublishedAt: now.Add(-24 * time.Hour)},
		{ID: "d6", PublishedAt: now.Add(-6 * 24 * time.Hour)},
		{ID: "d10", PublishedAt: now.Add(-10 * 24 * time.Hour)},
	}
	rctx := &core.RecommendContext{
		Request:  &core.RecommendRequest{Count: 10},
		Pool:     pool,
		Contents: indexPool(pool),
	}

	merged := make(map[string]*core.Candidate)
	eng.addRecentBonus(rctx, merged, &core.DebugInfo{StrategyCounts: map[string]int{}})

	// 默认 recent 权重 0.1：窗口内统一 0.1×0.8，不随天数打折
	for _, id := range []string{"d1", "d6"} {
		c := merged[id]
		if c == nil {
			t.Fatalf("%s 在 7 天窗口内，应获得新近加成", id)
		}
		if math.Abs(c.Score-0.08) > 1e-9 {
			t.Errorf("%s 加成 = %v, 期望 0.1×0.8 = 0.08", id, c.Score)
		}
	}
	if _, ok := merged["d10"]; ok {
		t.Error("窗口外的 d10 不应获得加成")
	}
}

func TestRecordUserActionPropagatesInsertError(t *testing.T) {
	contents, _, profiles := seededStores(t)
	eng, err := New(nil, contents, failingActionStore{}, profiles)
	if err != nil {
		t.Fatalf("New 失败: %v", err)
	}
	defer eng.Close()

	err = eng.RecordUserAction(context.Background(), &core.UserAction{
		UserID: "u1", Type: core.ActionLike, TargetID: "p1",
	})
	if err == nil {
		t.Fatal("写入失败必须上抛")
	}
}

func TestRecordUserActionValidation(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.RecordUserAction(context.Background(), nil); err == nil {
		t.Error("nil 事件应报错")
	}
	if err := eng.RecordUserAction(context.Background(), &core.UserAction{UserID: "u1"}); err == nil {
		t.Error("缺 target_id 应报错")
	}
}

func TestRecordUserActionRebuildsProfile(t *testing.T) {
	contents, actions, profiles := seededStores(t)
	eng, err := New(nil, contents, actions, profiles)
	if err != nil {
		t.Fatalf("New 失败: %v", err)
	}

	ctx := context.Background()
	action := &core.UserAction{UserID: "u1", Type: core.ActionView, TargetID: "p1"}
	if err := eng.RecordUserAction(ctx, action); err != nil {
		t.Fatalf("RecordUserAction 失败: %v", err)
	}

	// Close 等待旁路任务完成，之后画像应已落库
	eng.Close()

	p, err := profiles.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("重建后的画像应存在: %v", err)
	}
	if p.Interests["golang"] <= 0 {
		t.Errorf("画像兴趣 = %v, 期望包含 golang", p.Interests)
	}
	if p.Stats.TotalViews != 1 {
		t.Errorf("画像统计 = %+v, 期望 1 view", p.Stats)
	}
	if !p.HasSegment("new_user") {
		t.Errorf("人群标签 = %v, 期望包含 new_user", p.Segments)
	}
}

func TestInvalidateContentPool(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	req := &core.RecommendRequest{Count: 3, Debug: true}
	eng.Recommend(ctx, req)

	eng.InvalidateContentPool()

	// 失效后响应缓存也被清空，下一次请求重算
	resp := eng.Recommend(ctx, req)
	if resp.Debug != nil && resp.Debug.CacheHit {
		t.Error("InvalidateContentPool 后不应命中响应缓存")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	contents, actions, profiles := seededStores(t)

	bad := core.DefaultConfig()
	bad.StrategyWeights.Trending = 0.9 // 权重和不为 1
	if _, err := New(bad, contents, actions, profiles); err == nil {
		t.Error("非法配置应报错")
	}

	if _, err := New(nil, nil, actions, profiles); err == nil {
		t.Error("缺内容源应报错")
	}
}
