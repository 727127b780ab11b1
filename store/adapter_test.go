package store

import (
	"context"
	"testing"
	"time"

	"github.com/rushteam/recfeed/core"
)

func seedContent(t *testing.T, adapter *ContentAdapter, id string, publishedAt time.Time, views int64) {
	t.Helper()
	err := adapter.UpsertContent(context.Background(), &core.ContentFeatures{
		ID:          id,
		Title:       "title " + id,
		PublishedAt: publishedAt,
		Engagement:  core.Engagement{Views: views},
	})
	if err != nil {
		t.Fatalf("UpsertContent(%s) 失败: %v", id, err)
	}
}

func TestContentAdapterIndexes(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	defer kv.Close()
	adapter := NewContentAdapter(kv)

	now := time.Now()
	seedContent(t, adapter, "oldest", now.Add(-48*time.Hour), 9000)
	seedContent(t, adapter, "newest", now, 100)
	seedContent(t, adapter, "middle", now.Add(-24*time.Hour), 5000)

	// 发布时间线降序
	published, err := adapter.GetPublishedContent(ctx, 10)
	if err != nil {
		t.Fatalf("GetPublishedContent 失败: %v", err)
	}
	if len(published) != 3 || published[0].ID != "newest" || published[2].ID != "oldest" {
		t.Errorf("发布时间线 = %v, 期望 newest→middle→oldest", contentIDs(published))
	}

	// 浏览量降序 + limit
	viewed, err := adapter.GetMostViewed(ctx, 2)
	if err != nil {
		t.Fatalf("GetMostViewed 失败: %v", err)
	}
	if len(viewed) != 2 || viewed[0].ID != "oldest" || viewed[1].ID != "middle" {
		t.Errorf("最热索引 = %v, 期望 [oldest middle]", contentIDs(viewed))
	}

	// 下架后读路径跳过索引残留
	if err := adapter.DeleteContent(ctx, "middle"); err != nil {
		t.Fatalf("DeleteContent 失败: %v", err)
	}
	published, _ = adapter.GetPublishedContent(ctx, 10)
	for _, c := range published {
		if c.ID == "middle" {
			t.Error("已下架内容不应出现在结果中")
		}
	}

	// 入参校验
	if err := adapter.UpsertContent(ctx, &core.ContentFeatures{}); err == nil {
		t.Error("无 ID 的内容应报错")
	}
}

func TestActionAdapterTimelineAndMatrix(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	defer kv.Close()
	adapter := NewActionAdapter(kv)

	now := time.Now()
	actions := []*core.UserAction{
		{ID: "1", UserID: "u1", Type: core.ActionView, TargetID: "p1", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "2", UserID: "u1", Type: core.ActionLike, TargetID: "p1", CreatedAt: now.Add(-1 * time.Hour)},
		{ID: "3", UserID: "u1", Type: core.ActionReadTime, TargetID: "p2", Value: 200, CreatedAt: now},
		{ID: "4", UserID: "u2", Type: core.ActionCollect, TargetID: "p1", CreatedAt: now},
	}
	for _, a := range actions {
		if err := adapter.InsertAction(ctx, a); err != nil {
			t.Fatalf("InsertAction(%s) 失败: %v", a.ID, err)
		}
	}

	// 时间线按 CreatedAt 降序
	got, err := adapter.GetActionsForUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetActionsForUser 失败: %v", err)
	}
	if len(got) != 3 || got[0].ID != "3" || got[2].ID != "1" {
		ids := make([]string, 0, len(got))
		for _, a := range got {
			ids = append(ids, a.ID)
		}
		t.Errorf("时间线 = %v, 期望 [3 2 1]", ids)
	}

	// 交互矩阵：view(1) + like(3) = 4；read_time 200s → 2
	items, err := adapter.GetUserItems(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserItems 失败: %v", err)
	}
	if items["p1"] != 4 || items["p2"] != 2 {
		t.Errorf("u1 交互 = %v, 期望 p1=4 p2=2", items)
	}

	users, err := adapter.GetItemUsers(ctx, "p1")
	if err != nil {
		t.Fatalf("GetItemUsers 失败: %v", err)
	}
	if users["u1"] != 4 || users["u2"] != 4 {
		t.Errorf("p1 交互用户 = %v, 期望 u1=4 u2=4（collect 权重 4）", users)
	}

	all, err := adapter.GetAllUsers(ctx)
	if err != nil || len(all) != 2 {
		t.Errorf("GetAllUsers = (%v, %v), 期望 2 个用户", all, err)
	}

	if err := adapter.InsertAction(ctx, &core.UserAction{UserID: "u1"}); err == nil {
		t.Error("缺 target_id 的事件应报错")
	}
}

func TestProfileAdapterRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	defer kv.Close()
	adapter := NewProfileAdapter(kv)

	if _, err := adapter.GetProfile(ctx, "missing"); !core.IsProfileNotFound(err) {
		t.Errorf("缺失画像应返回 ErrProfileNotFound，实际 %v", err)
	}

	p := &core.UserProfile{
		UserID:    "u1",
		Interests: map[string]float64{"golang": 1.0},
		Segments:  []string{"heavy_user"},
		UpdatedAt: time.Now(),
	}
	if err := adapter.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile 失败: %v", err)
	}

	got, err := adapter.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile 失败: %v", err)
	}
	if got.Interests["golang"] != 1.0 || !got.HasSegment("heavy_user") {
		t.Errorf("画像往返不一致: %+v", got)
	}

	if err := adapter.UpsertProfile(ctx, &core.UserProfile{}); err == nil {
		t.Error("无 user_id 的画像应报错")
	}
}

func TestLogAdapterAppendRecent(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	defer kv.Close()
	adapter := NewLogAdapter(kv)

	now := time.Now()
	for i := 0; i < 3; i++ {
		resp := &core.RecommendResponse{SessionID: string(rune('a' + i)), GeneratedAt: now}
		err := adapter.Append(ctx, resp.SessionID, &core.RecommendRequest{UserID: "u1"}, resp,
			now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Append 失败: %v", err)
		}
	}

	recent, err := adapter.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent 失败: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent 条数 = %d, 期望 2", len(recent))
	}
	// 最新的在前
	if recent[0].SessionID != "c" {
		t.Errorf("最新日志 = %s, 期望 c", recent[0].SessionID)
	}
}

func contentIDs(contents []*core.ContentFeatures) []string {
	ids := make([]string, 0, len(contents))
	for _, c := range contents {
		ids = append(ids, c.ID)
	}
	return ids
}
