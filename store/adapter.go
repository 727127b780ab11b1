package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rushteam/recfeed/algo"
	"github.com/rushteam/recfeed/core"
)

// 键规划：
//
//	content:{id}          内容特征 JSON 快照
//	content:published     zset，score = 发布时间戳，发布时间线
//	content:views         zset，score = 累计浏览量，兜底用的最热索引
//	actions:{userID}      zset，member = 事件 JSON，score = 事件时间戳
//	cf:user:{userID}      hash，field = itemID，value = 累计交互权重
//	cf:item:{itemID}      hash，field = userID，value = 累计交互权重
//	cf:users              zset，score = 最近活跃时间，交互矩阵的用户全集
//	profile:{userID}      画像 JSON 快照
//	reclog                zset，member = 推荐日志 JSON，score = 时间戳
const (
	keyContentBlob     = "content:%s"
	keyPublishedIndex  = "content:published"
	keyMostViewedIndex = "content:views"
	keyUserActions     = "actions:%s"
	keyCFUserItems     = "cf:user:%s"
	keyCFItemUsers     = "cf:item:%s"
	keyCFUsers         = "cf:users"
	keyProfileBlob     = "profile:%s"
	keyRecLog          = "reclog"
)

// ContentAdapter 把 KeyValueStore 组织成内容池：JSON 快照 + 两个有序索引。
// 实现 core.ContentSource。
type ContentAdapter struct {
	kv core.KeyValueStore
}

func NewContentAdapter(kv core.KeyValueStore) *ContentAdapter {
	return &ContentAdapter{kv: kv}
}

// UpsertContent 写入/更新一条内容，并同步两个索引。
func (a *ContentAdapter) UpsertContent(ctx context.Context, c *core.ContentFeatures) error {
	if c == nil || c.ID == "" {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "content requires id")
	}
	blob, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	if err := a.kv.Set(ctx, fmt.Sprintf(keyContentBlob, c.ID), blob); err != nil {
		return err
	}
	if err := a.kv.ZAdd(ctx, keyPublishedIndex, float64(c.PublishedAt.Unix()), c.ID); err != nil {
		return err
	}
	return a.kv.ZAdd(ctx, keyMostViewedIndex, float64(c.Engagement.Views), c.ID)
}

// DeleteContent 下架一条内容。索引残留由读路径容忍（blob 缺失时跳过）。
func (a *ContentAdapter) DeleteContent(ctx context.Context, id string) error {
	return a.kv.Delete(ctx, fmt.Sprintf(keyContentBlob, id))
}

func (a *ContentAdapter) GetPublishedContent(ctx context.Context, limit int) ([]*core.ContentFeatures, error) {
	return a.byIndex(ctx, keyPublishedIndex, limit)
}

func (a *ContentAdapter) GetMostViewed(ctx context.Context, limit int) ([]*core.ContentFeatures, error) {
	return a.byIndex(ctx, keyMostViewedIndex, limit)
}

func (a *ContentAdapter) byIndex(ctx context.Context, indexKey string, limit int) ([]*core.ContentFeatures, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := a.kv.ZRange(ctx, indexKey, 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf(keyContentBlob, id))
	}
	blobs, err := a.kv.BatchGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	// 按索引顺序组装，blob 缺失（已下架）的跳过
	out := make([]*core.ContentFeatures, 0, len(ids))
	for i := range ids {
		blob, ok := blobs[keys[i]]
		if !ok {
			continue
		}
		var c core.ContentFeatures
		if err := json.Unmarshal(blob, &c); err != nil {
			continue
		}
		out = append(out, &c)
	}
	return out, nil
}

var _ core.ContentSource = (*ContentAdapter)(nil)

// ActionAdapter 把 KeyValueStore 组织成行为事件日志 + 用户-物品交互矩阵。
// 实现 core.ActionStore 与协同过滤的 InteractionStore。
//
// 写入是双份的：事件原文进时间线（画像构建用），交互权重累加进
// cf:user/cf:item 两个方向的哈希（协同过滤用）。
type ActionAdapter struct {
	kv core.KeyValueStore
}

func NewActionAdapter(kv core.KeyValueStore) *ActionAdapter {
	return &ActionAdapter{kv: kv}
}

func (a *ActionAdapter) InsertAction(ctx context.Context, action *core.UserAction) error {
	if action == nil || action.UserID == "" || action.TargetID == "" {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "action requires user_id and target_id")
	}
	blob, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	score := float64(action.CreatedAt.UnixNano())
	if err := a.kv.ZAdd(ctx, fmt.Sprintf(keyUserActions, action.UserID), score, string(blob)); err != nil {
		return err
	}

	if w := action.InteractionWeight(); w > 0 {
		if err := a.bumpWeight(ctx, fmt.Sprintf(keyCFUserItems, action.UserID), action.TargetID, w); err != nil {
			return err
		}
		if err := a.bumpWeight(ctx, fmt.Sprintf(keyCFItemUsers, action.TargetID), action.UserID, w); err != nil {
			return err
		}
	}
	return a.kv.ZAdd(ctx, keyCFUsers, float64(action.CreatedAt.Unix()), action.UserID)
}

// bumpWeight 读-加-写累加交互权重。内存后端下并发写同一字段可能丢更新，
// 权重是近似统计量，可接受。
func (a *ActionAdapter) bumpWeight(ctx context.Context, key, field string, delta float64) error {
	var current float64
	if blob, err := a.kv.HGet(ctx, key, field); err == nil {
		current, _ = strconv.ParseFloat(string(blob), 64)
	} else if !core.IsStoreNotFound(err) {
		return err
	}
	value := strconv.FormatFloat(current+delta, 'f', -1, 64)
	return a.kv.HSet(ctx, key, field, []byte(value))
}

func (a *ActionAdapter) GetActionsForUser(ctx context.Context, userID string, limit int) ([]*core.UserAction, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	blobs, err := a.kv.ZRange(ctx, fmt.Sprintf(keyUserActions, userID), 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}

	out := make([]*core.UserAction, 0, len(blobs))
	for _, blob := range blobs {
		var action core.UserAction
		if err := json.Unmarshal([]byte(blob), &action); err != nil {
			continue
		}
		out = append(out, &action)
	}
	return out, nil
}

func (a *ActionAdapter) GetUserItems(ctx context.Context, userID string) (map[string]float64, error) {
	return a.weights(ctx, fmt.Sprintf(keyCFUserItems, userID))
}

func (a *ActionAdapter) GetItemUsers(ctx context.Context, itemID string) (map[string]float64, error) {
	return a.weights(ctx, fmt.Sprintf(keyCFItemUsers, itemID))
}

func (a *ActionAdapter) GetAllUsers(ctx context.Context) ([]string, error) {
	return a.kv.ZRange(ctx, keyCFUsers, 0, -1)
}

func (a *ActionAdapter) weights(ctx context.Context, key string) (map[string]float64, error) {
	fields, err := a.kv.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(fields))
	for field, blob := range fields {
		if w, err := strconv.ParseFloat(string(blob), 64); err == nil && w > 0 {
			out[field] = w
		}
	}
	return out, nil
}

var (
	_ core.ActionStore      = (*ActionAdapter)(nil)
	_ algo.InteractionStore = (*ActionAdapter)(nil)
)

// ProfileAdapter 把 Store 组织成画像快照存取。实现 core.ProfileStore。
type ProfileAdapter struct {
	store core.Store
}

func NewProfileAdapter(store core.Store) *ProfileAdapter {
	return &ProfileAdapter{store: store}
}

func (a *ProfileAdapter) GetProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	blob, err := a.store.Get(ctx, fmt.Sprintf(keyProfileBlob, userID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, core.ErrProfileNotFound
		}
		return nil, err
	}
	var p core.UserProfile
	if err := json.Unmarshal(blob, &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &p, nil
}

func (a *ProfileAdapter) UpsertProfile(ctx context.Context, profile *core.UserProfile) error {
	if profile == nil || profile.UserID == "" {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "profile requires user_id")
	}
	blob, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return a.store.Set(ctx, fmt.Sprintf(keyProfileBlob, profile.UserID), blob)
}

var _ core.ProfileStore = (*ProfileAdapter)(nil)

// LogAdapter 把 KeyValueStore 组织成推荐日志：时间排序的 JSON 追加流。
// 实现 core.RecLogSink。
type LogAdapter struct {
	kv core.KeyValueStore
}

func NewLogAdapter(kv core.KeyValueStore) *LogAdapter {
	return &LogAdapter{kv: kv}
}

type recLogEntry struct {
	SessionID string                  `json:"session_id"`
	Request   *core.RecommendRequest  `json:"request"`
	Response  *core.RecommendResponse `json:"response"`
	At        time.Time               `json:"at"`
}

func (a *LogAdapter) Append(ctx context.Context, sessionID string, req *core.RecommendRequest, resp *core.RecommendResponse, at time.Time) error {
	blob, err := json.Marshal(recLogEntry{
		SessionID: sessionID,
		Request:   req,
		Response:  resp,
		At:        at,
	})
	if err != nil {
		return fmt.Errorf("marshal rec log: %w", err)
	}
	return a.kv.ZAdd(ctx, keyRecLog, float64(at.UnixNano()), string(blob))
}

// Recent 返回最近的 limit 条推荐日志，调试与离线分析用。
func (a *LogAdapter) Recent(ctx context.Context, limit int) ([]*core.RecommendResponse, error) {
	if limit <= 0 {
		limit = 100
	}
	blobs, err := a.kv.ZRange(ctx, keyRecLog, 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}
	out := make([]*core.RecommendResponse, 0, len(blobs))
	for _, blob := range blobs {
		var entry recLogEntry
		if err := json.Unmarshal([]byte(blob), &entry); err != nil {
			continue
		}
		out = append(out, entry.Response)
	}
	return out, nil
}

var _ core.RecLogSink = (*LogAdapter)(nil)
