package core

import (
	"context"
	"time"
)

// Engagement 是内容的互动计数快照，由内容池加载时一并带出。
// 计数是累计值，不做时间窗口切分；时间维度由各算法自行处理。
type Engagement struct {
	Views        int64   `json:"views" yaml:"views"`
	Likes        int64   `json:"likes" yaml:"likes"`
	Collects     int64   `json:"collects" yaml:"collects"`
	Comments     int64   `json:"comments" yaml:"comments"`
	Shares       int64   `json:"shares" yaml:"shares"`
	AvgReadRatio float64 `json:"avg_read_ratio" yaml:"avg_read_ratio"`
}

// ContentFeatures 是单个内容的特征快照：引擎只读，由内容池按 TTL 刷新。
//
// 设计要点：
//   - 引擎不负责内容生命周期，拿到什么就用什么
//   - QualityScore 为编辑/审核侧给出的显式质量分，0 表示未设置，
//     未设置时由 algo.QualityScore 基于互动数据估算
//   - Embedding 可选；存在时内容相似度以向量为主（见 algo.ContentBased）
type ContentFeatures struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	PublishedAt time.Time `json:"published_at"`

	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
	Keywords   []string `json:"keywords"`

	WordCount int `json:"word_count"`
	ReadTime  int `json:"read_time"` // 预估阅读时长（秒）

	QualityScore float64    `json:"quality_score,omitempty"`
	Engagement   Engagement `json:"engagement"`

	Embedding []float64 `json:"embedding,omitempty"`
}

// 长度分桶阈值：short < 500 词，medium < 1500 词，其余为 long。
const (
	LengthShort  = "short"
	LengthMedium = "medium"
	LengthLong   = "long"
)

// LengthBucket 返回内容的长度分桶，用于偏好匹配。
func (c *ContentFeatures) LengthBucket() string {
	switch {
	case c.WordCount < 500:
		return LengthShort
	case c.WordCount < 1500:
		return LengthMedium
	default:
		return LengthLong
	}
}

// ContentSource 是内容池的领域接口，由 CMS 侧的存储实现（见 store 包）。
//
// GetPublishedContent 按发布时间降序返回最新的 limit 条已发布内容。
// GetMostViewed 按累计浏览量降序返回，供兜底推荐使用：兜底路径只依赖它，
// 不依赖画像和算法状态。
type ContentSource interface {
	GetPublishedContent(ctx context.Context, limit int) ([]*ContentFeatures, error)
	GetMostViewed(ctx context.Context, limit int) ([]*ContentFeatures, error)
}

// PoolEnricher 在候选生成前刷新内容池的实时特征（如在线互动计数）。
// 可选组件；失败时引擎记录日志并继续使用存量快照。
type PoolEnricher interface {
	EnrichPool(ctx context.Context, pool []*ContentFeatures) error
}
