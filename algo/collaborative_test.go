package algo

import (
	"context"
	"testing"
	"time"

	"github.com/rushteam/recfeed/core"
)

// fakeInteractions 是内存假实现，userItems[user][item] = 交互分。
type fakeInteractions struct {
	userItems map[string]map[string]float64
}

func (f *fakeInteractions) GetUserItems(_ context.Context, userID string) (map[string]float64, error) {
	return f.userItems[userID], nil
}

func (f *fakeInteractions) GetItemUsers(_ context.Context, itemID string) (map[string]float64, error) {
	users := make(map[string]float64)
	for user, items := range f.userItems {
		if w, ok := items[itemID]; ok {
			users[user] = w
		}
	}
	return users, nil
}

func (f *fakeInteractions) GetAllUsers(_ context.Context) ([]string, error) {
	users := make([]string, 0, len(f.userItems))
	for user := range f.userItems {
		users = append(users, user)
	}
	return users, nil
}

func cfTestActions(n int) []*core.UserAction {
	actions := make([]*core.UserAction, 0, n)
	for i := 0; i < n; i++ {
		actions = append(actions, &core.UserAction{
			UserID: "u1", Type: core.ActionView, TargetID: "p1",
			CreatedAt: time.Now(),
		})
	}
	return actions
}

func TestCollaborativeAbstains(t *testing.T) {
	store := &fakeInteractions{userItems: map[string]map[string]float64{
		"u1": {"p1": 3},
	}}
	r := &Collaborative{Store: store, MinActions: 5}
	pool := []*core.ContentFeatures{{ID: "p1"}, {ID: "p2"}}

	// 无画像：弃权
	rctx := newTestRctx(pool, &core.RecommendRequest{UserID: "u1", Count: 5}, nil)
	rctx.Actions = cfTestActions(10)
	cands, err := r.GenerateCandidates(context.Background(), rctx)
	if err != nil || cands != nil {
		t.Errorf("无画像应弃权 (nil, nil)，实际 (%v, %v)", candIDs(cands), err)
	}

	// 行为不足：弃权
	rctx = newTestRctx(pool, &core.RecommendRequest{UserID: "u1", Count: 5}, &core.UserProfile{UserID: "u1"})
	rctx.Actions = cfTestActions(3)
	cands, err = r.GenerateCandidates(context.Background(), rctx)
	if err != nil || cands != nil {
		t.Errorf("行为不足应弃权 (nil, nil)，实际 (%v, %v)", candIDs(cands), err)
	}
}

func TestCollaborativeUserBased(t *testing.T) {
	// u1 与 u2 口味一致（p1、p2 同分），u2 还看过 p3 → 应把 p3 推给 u1
	store := &fakeInteractions{userItems: map[string]map[string]float64{
		"u1": {"p1": 3, "p2": 4},
		"u2": {"p1": 3, "p2": 4, "p3": 5},
		"u3": {"p9": 1},
	}}
	now := time.Now()
	pool := []*core.ContentFeatures{
		{ID: "p1", PublishedAt: now},
		{ID: "p2", PublishedAt: now},
		{ID: "p3", PublishedAt: now},
	}

	r := &Collaborative{Store: store, MinActions: 5}
	rctx := newTestRctx(pool, &core.RecommendRequest{UserID: "u1", Count: 5}, &core.UserProfile{UserID: "u1"})
	rctx.Actions = cfTestActions(10)

	cands, err := r.GenerateCandidates(context.Background(), rctx)
	if err != nil {
		t.Fatalf("GenerateCandidates 失败: %v", err)
	}
	if len(cands) != 1 || cands[0].PostID != "p3" {
		t.Fatalf("协同候选 = %v, 期望只有 p3（已交互的 p1/p2 不重复推荐）", candIDs(cands))
	}
	if cands[0].Source != core.SourceCollaborative {
		t.Errorf("候选来源 = %s, 期望 collaborative", cands[0].Source)
	}
	// 归一化后协同分项为 1（唯一候选即最大分）
	if !almostEqual(cands[0].Features.PersonalizationScore, 1.0, 1e-9) {
		t.Errorf("协同分项 = %v, 期望 1.0", cands[0].Features.PersonalizationScore)
	}
}

func TestCollaborativeSkipsOutOfPoolItems(t *testing.T) {
	// p3 不在内容池里，即使协同分高也不出候选
	store := &fakeInteractions{userItems: map[string]map[string]float64{
		"u1": {"p1": 3, "p2": 4},
		"u2": {"p1": 3, "p2": 4, "p3": 5},
	}}
	pool := []*core.ContentFeatures{{ID: "p1"}, {ID: "p2"}}

	r := &Collaborative{Store: store, MinActions: 5}
	rctx := newTestRctx(pool, &core.RecommendRequest{UserID: "u1", Count: 5}, &core.UserProfile{UserID: "u1"})
	rctx.Actions = cfTestActions(10)

	cands, err := r.GenerateCandidates(context.Background(), rctx)
	if err != nil {
		t.Fatalf("GenerateCandidates 失败: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("池外物品不应出候选，实际 %v", candIDs(cands))
	}
}

func TestCollaborativeSimilarityCache(t *testing.T) {
	store := &fakeInteractions{userItems: map[string]map[string]float64{
		"u1": {"p1": 3, "p2": 4},
		"u2": {"p1": 3, "p2": 4, "p3": 5},
	}}
	pool := []*core.ContentFeatures{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}}

	r := &Collaborative{Store: store, MinActions: 5}
	rctx := newTestRctx(pool, &core.RecommendRequest{UserID: "u1", Count: 5}, &core.UserProfile{UserID: "u1"})
	rctx.Actions = cfTestActions(10)

	if _, err := r.GenerateCandidates(context.Background(), rctx); err != nil {
		t.Fatalf("首次调用失败: %v", err)
	}

	// 第二次调用命中相似度缓存：即使交互矩阵被清空，结果不变
	store.userItems = map[string]map[string]float64{"u1": {"p1": 3, "p2": 4}, "u2": {"p3": 5}}
	cands, err := r.GenerateCandidates(context.Background(), rctx)
	if err != nil {
		t.Fatalf("二次调用失败: %v", err)
	}
	found := false
	for _, cand := range cands {
		if cand.PostID == "p3" {
			found = true
		}
	}
	if !found {
		t.Error("相似用户缓存生效后 p3 仍应出现在候选中")
	}
}
