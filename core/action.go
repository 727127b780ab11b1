package core

import (
	"context"
	"time"
)

// ActionType 是行为事件类型。
type ActionType string

const (
	ActionView     ActionType = "view"
	ActionLike     ActionType = "like"
	ActionCollect  ActionType = "collect"
	ActionComment  ActionType = "comment"
	ActionShare    ActionType = "share"
	ActionReadTime ActionType = "read_time" // Value 为阅读秒数
	ActionClick    ActionType = "click"
)

// ActionWeights 是各行为类型的交互权重，用于兴趣聚合与协同过滤矩阵。
// read_time 的权重按秒数折算（0.01 × 秒），见 UserAction.InteractionWeight。
var ActionWeights = map[ActionType]float64{
	ActionView:     1,
	ActionLike:     3,
	ActionCollect:  4,
	ActionComment:  5,
	ActionShare:    4,
	ActionReadTime: 0.01,
	ActionClick:    1.5,
}

// ActionContext 是行为发生时的场景信息（结构化，不用裸 map）。
type ActionContext struct {
	Source    string `json:"source,omitempty"`
	Position  int    `json:"position,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// UserAction 是一条行为事件：追加写，永不修改，是画像构建的唯一事实来源。
type UserAction struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Type      ActionType    `json:"action_type"`
	TargetID  string        `json:"target_id"`
	Value     float64       `json:"value,omitempty"` // read_time 时为秒数
	Context   ActionContext `json:"context"`
	CreatedAt time.Time     `json:"created_at"`
}

// InteractionWeight 返回该事件在用户-物品交互矩阵中的权重。
func (a *UserAction) InteractionWeight() float64 {
	w, ok := ActionWeights[a.Type]
	if !ok {
		return 0
	}
	if a.Type == ActionReadTime {
		return w * a.Value
	}
	return w
}

// ActionStore 是行为事件的领域接口。
//
// GetActionsForUser 返回最新的 N 条（最多 1000），按 CreatedAt 降序。
// InsertAction 的失败需要向上传递：调用方必须知道写入没有发生。
type ActionStore interface {
	InsertAction(ctx context.Context, action *UserAction) error
	GetActionsForUser(ctx context.Context, userID string, limit int) ([]*UserAction, error)
}
