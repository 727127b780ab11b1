package feast

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rushteam/recfeed/core"
)

// 在线互动特征的默认特征视图与特征名。
const (
	DefaultFeatureView = "post_stats"
	DefaultEntityKey   = "post_id"
)

var defaultFeatures = []string{
	DefaultFeatureView + ":views",
	DefaultFeatureView + ":likes",
	DefaultFeatureView + ":collects",
	DefaultFeatureView + ":comments",
	DefaultFeatureView + ":shares",
	DefaultFeatureView + ":avg_read_ratio",
}

// Enricher 用 Feast 在线特征刷新内容池的互动计数，实现 core.PoolEnricher。
//
// 内容池快照来自 CMS 侧的落库数据，互动计数可能滞后；Feast 在线存储
// 承接实时流水。EnrichPool 把在线值覆盖到快照上：Feast 缺失某内容或
// 某特征时保留快照值，整体失败时由引擎降级使用存量快照。
type Enricher struct {
	Client Client

	// FeatureView 特征视图名，默认 "post_stats"
	FeatureView string

	// EntityKey 实体键名，默认 "post_id"
	EntityKey string

	Logger *zap.Logger
}

func NewEnricher(client Client) *Enricher {
	return &Enricher{Client: client}
}

// EnrichPool 实现 core.PoolEnricher。
func (e *Enricher) EnrichPool(ctx context.Context, pool []*core.ContentFeatures) error {
	if e.Client == nil || len(pool) == 0 {
		return nil
	}
	view := e.FeatureView
	if view == "" {
		view = DefaultFeatureView
	}
	entityKey := e.EntityKey
	if entityKey == "" {
		entityKey = DefaultEntityKey
	}

	features := defaultFeatures
	if view != DefaultFeatureView {
		features = []string{
			view + ":views", view + ":likes", view + ":collects",
			view + ":comments", view + ":shares", view + ":avg_read_ratio",
		}
	}

	entityRows := make([]map[string]interface{}, len(pool))
	for i, c := range pool {
		entityRows[i] = map[string]interface{}{entityKey: c.ID}
	}

	resp, err := e.Client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
		Features:   features,
		EntityRows: entityRows,
	})
	if err != nil {
		return fmt.Errorf("enrich pool: %w", err)
	}
	if len(resp.FeatureVectors) != len(pool) {
		return fmt.Errorf("enrich pool: vector count mismatch: expected %d, got %d",
			len(pool), len(resp.FeatureVectors))
	}

	for i, c := range pool {
		values := resp.FeatureVectors[i].Values
		applyCount(values, view+":views", &c.Engagement.Views)
		applyCount(values, view+":likes", &c.Engagement.Likes)
		applyCount(values, view+":collects", &c.Engagement.Collects)
		applyCount(values, view+":comments", &c.Engagement.Comments)
		applyCount(values, view+":shares", &c.Engagement.Shares)
		if ratio, ok := values[view+":avg_read_ratio"].(float64); ok && ratio >= 0 {
			c.Engagement.AvgReadRatio = ratio
		}
	}

	if e.Logger != nil {
		e.Logger.Debug("pool enriched", zap.Int("contents", len(pool)))
	}
	return nil
}

// applyCount 用在线值覆盖计数；缺失或为负时保留快照值。
func applyCount(values map[string]interface{}, key string, target *int64) {
	if f, ok := values[key].(float64); ok && f >= 0 {
		*target = int64(f)
	}
}

var _ core.PoolEnricher = (*Enricher)(nil)
