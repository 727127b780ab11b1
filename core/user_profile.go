package core

import (
	"context"
	"time"
)

// Preferences 是用户的内容偏好，由画像构建器从行为历史投票得出。
type Preferences struct {
	PreferredLength     string   `json:"preferred_length,omitempty"` // short / medium / long
	PreferredCategories []string `json:"preferred_categories,omitempty"`
	PreferredTime       []string `json:"preferred_time,omitempty"` // morning / noon / afternoon / evening / late-night
	ReadingSpeed        float64  `json:"reading_speed,omitempty"`  // 词/分钟
}

// ProfileStats 是用户的行为统计。
type ProfileStats struct {
	TotalViews    int64     `json:"total_views"`
	TotalLikes    int64     `json:"total_likes"`
	TotalCollects int64     `json:"total_collects"`
	TotalComments int64     `json:"total_comments"`
	AvgReadTime   float64   `json:"avg_read_time"` // 秒
	ActiveDays    int       `json:"active_days"`
	LastActive    time.Time `json:"last_active"`
}

// UserProfile 是用户画像：推荐链路的"全局上下文 + 决策信号"。
//
// 不是某一个算法的私有状态，而是：
//   - 被所有策略共享（内容兴趣匹配、协同过滤准入、热门个性化项）
//   - 由画像构建器从行为事件离线/异步重建
//   - 可以被增量合并、持续演进（见 profile.Builder.Merge）
//
// 不变式：Interests 的所有权重在构建后位于 [0,1]，且非空时最大值为 1
// （按最大值归一化）。没有任何行为的用户不产生画像——缺失即 nil，
// 绝不返回零值填充的对象。
type UserProfile struct {
	UserID string `json:"user_id"`

	// 兴趣画像：key 为标签/类别，value 为归一化权重 [0,1]
	Interests map[string]float64 `json:"interests"`

	Preferences Preferences  `json:"preferences"`
	Stats       ProfileStats `json:"stats"`

	// 派生人群标签，可同时命中多个：heavy_user / new_user / deep_reader ...
	Segments []string `json:"segments,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// InterestWeight 返回某个标签的兴趣权重，未知标签为 0。
func (p *UserProfile) InterestWeight(tag string) float64 {
	if p == nil || p.Interests == nil {
		return 0
	}
	return p.Interests[tag]
}

// HasSegment 检查画像是否命中某个人群标签。
func (p *UserProfile) HasSegment(segment string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Segments {
		if s == segment {
			return true
		}
	}
	return false
}

// PrefersCategory 检查类别是否在偏好类别列表中。
func (p *UserProfile) PrefersCategory(category string) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Preferences.PreferredCategories {
		if c == category {
			return true
		}
	}
	return false
}

// ProfileStore 是画像的领域接口。
// GetProfile 对不存在的用户返回 (nil, ErrProfileNotFound)，不返回空画像。
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	UpsertProfile(ctx context.Context, profile *UserProfile) error
}
