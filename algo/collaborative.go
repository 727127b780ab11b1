package algo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/recfeed/core"
	"github.com/rushteam/recfeed/pkg/utils"
)

// Collaborative 是协同过滤候选生成策略，用户侧与物品侧两条子路合并。
//
// 用户侧："兴趣相似的用户，喜欢相似的物品"——找 TopK 相似用户，
// 把他们交互过而目标用户没见过的物品按 相似度×交互分 累加。
// 物品侧："被同一批用户喜欢的物品，相互相似"——对目标用户的每个历史物品
// 取 TopK 相似物品，按 历史交互分×物品相似度 累加。
// 两条子路按物品取最大分合并。
//
// 准入条件：有画像且行为事件 ≥ MinActions，否则弃权返回空——
// 这条策略宁可不出结果也不降级。
//
// 相似度缓存与进程同生命周期，没有 TTL 或失效触发：
// 需要限制陈旧度的部署应整体重建本结构。
type Collaborative struct {
	Store InteractionStore

	// TopKSimilarUsers 用户侧考虑的相似用户数
	TopKSimilarUsers int

	// TopKSimilarItems 物品侧每个历史物品考虑的相似物品数
	TopKSimilarItems int

	// MinActions 准入所需的最少行为事件数
	MinActions int

	// Benchmarks 流行度基准
	Benchmarks core.Benchmarks

	mu           sync.Mutex
	userSimCache map[string][]neighbor
	itemSimCache map[string][]neighbor
}

type neighbor struct {
	id  string
	sim float64
}

func (r *Collaborative) Name() string        { return "algo.collaborative" }
func (r *Collaborative) Source() core.Source { return core.SourceCollaborative }

func (r *Collaborative) GenerateCandidates(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Candidate, error) {
	if r.Store == nil || rctx == nil || rctx.Request == nil || rctx.Request.UserID == "" {
		return nil, nil
	}
	minActions := r.MinActions
	if minActions <= 0 {
		minActions = 5
	}
	// 数据不足是弃权，不是错误
	if rctx.Profile == nil || len(rctx.Actions) < minActions {
		return nil, nil
	}

	userID := rctx.Request.UserID
	userItems, err := r.Store.GetUserItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(userItems) == 0 {
		return nil, nil
	}

	userScores, err := r.userBased(ctx, userID, userItems)
	if err != nil {
		return nil, err
	}
	itemScores, err := r.itemBased(ctx, userID, userItems)
	if err != nil {
		return nil, err
	}

	// 合并两条子路：按物品取最大分
	merged := userScores
	for id, s := range itemScores {
		if s > merged[id] {
			merged[id] = s
		}
	}
	if len(merged) == 0 {
		return nil, nil
	}

	// 按最大原始分归一化到 [0,1]，保留排序区分度
	var maxScore float64
	for _, s := range merged {
		if s > maxScore {
			maxScore = s
		}
	}

	now := time.Now()
	out := make([]*core.Candidate, 0, len(merged))
	for id, raw := range merged {
		c := rctx.Content(id)
		if c == nil {
			continue // 不在本次内容池内的物品不出候选
		}
		cfScore := raw / maxScore

		cand := core.NewCandidate(id, core.SourceCollaborative)
		cand.Features.PersonalizationScore = cfScore
		cand.Features.QualityScore = QualityScore(c)
		cand.Features.PopularityScore = PopularityScore(c.Engagement, r.Benchmarks)
		cand.Score = r.blend(c, cfScore)
		cand.PutLabel("cf_raw", utils.Label{Value: "merged", Source: "strategy"})
		AddRecommendationReasons(cand, c, rctx.Profile, now)
		out = append(out, cand)
	}
	return SortCandidates(out, rctx.Limit), nil
}

// Score 实现 Algorithm 接口；单独打分时没有协同分项，只剩质量与流行度。
func (r *Collaborative) Score(_ context.Context, content *core.ContentFeatures, _ *core.RecommendContext) float64 {
	return r.blend(content, 0)
}

// blend 融合：0.2*质量 + 0.6*协同分 + 0.2*流行度。
func (r *Collaborative) blend(c *core.ContentFeatures, cfScore float64) float64 {
	return Clip01(0.2*QualityScore(c) + 0.6*cfScore + 0.2*PopularityScore(c.Engagement, r.Benchmarks))
}

// userBased 用户侧子路。
func (r *Collaborative) userBased(ctx context.Context, userID string, userItems map[string]float64) (map[string]float64, error) {
	neighbors, err := r.similarUsers(ctx, userID, userItems)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	for _, nb := range neighbors {
		nbItems, err := r.Store.GetUserItems(ctx, nb.id)
		if err != nil {
			continue // 单个邻居失败不影响其余
		}
		for itemID, interaction := range nbItems {
			if _, seen := userItems[itemID]; seen {
				continue
			}
			scores[itemID] += interaction * nb.sim
		}
	}
	return scores, nil
}

// similarUsers 返回与目标用户最相似的 TopK 用户（缓存进程生命周期）。
func (r *Collaborative) similarUsers(ctx context.Context, userID string, userItems map[string]float64) ([]neighbor, error) {
	r.mu.Lock()
	if r.userSimCache != nil {
		if cached, ok := r.userSimCache[userID]; ok {
			r.mu.Unlock()
			return cached, nil
		}
	}
	r.mu.Unlock()

	allUsers, err := r.Store.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}

	topK := r.TopKSimilarUsers
	if topK <= 0 {
		topK = 20
	}

	neighbors := make([]neighbor, 0)
	for _, other := range allUsers {
		if other == userID {
			continue
		}
		otherItems, err := r.Store.GetUserItems(ctx, other)
		if err != nil || len(otherItems) == 0 {
			continue
		}
		if sim := cosineOverCommon(userItems, otherItems); sim > 0 {
			neighbors = append(neighbors, neighbor{id: other, sim: sim})
		}
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].sim > neighbors[j].sim })
	if len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}

	r.mu.Lock()
	if r.userSimCache == nil {
		r.userSimCache = make(map[string][]neighbor)
	}
	r.userSimCache[userID] = neighbors
	r.mu.Unlock()
	return neighbors, nil
}

// itemBased 物品侧子路。
func (r *Collaborative) itemBased(ctx context.Context, userID string, userItems map[string]float64) (map[string]float64, error) {
	scores := make(map[string]float64)
	for baseItem, baseInteraction := range userItems {
		similar, err := r.similarItems(ctx, baseItem)
		if err != nil {
			continue
		}
		for _, nb := range similar {
			if _, seen := userItems[nb.id]; seen {
				continue
			}
			scores[nb.id] += baseInteraction * nb.sim
		}
	}
	return scores, nil
}

// similarItems 返回与某物品最相似的 TopK 物品。
// 相似度是两个物品的用户交互向量在共同用户上的余弦相似度。
func (r *Collaborative) similarItems(ctx context.Context, itemID string) ([]neighbor, error) {
	r.mu.Lock()
	if r.itemSimCache != nil {
		if cached, ok := r.itemSimCache[itemID]; ok {
			r.mu.Unlock()
			return cached, nil
		}
	}
	r.mu.Unlock()

	baseUsers, err := r.Store.GetItemUsers(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if len(baseUsers) == 0 {
		return nil, nil
	}

	topK := r.TopKSimilarItems
	if topK <= 0 {
		topK = 10
	}

	// 候选物品集合：与 base 有共同用户的物品
	candidateItems := make(map[string]struct{})
	for user := range baseUsers {
		items, err := r.Store.GetUserItems(ctx, user)
		if err != nil {
			continue
		}
		for id := range items {
			if id != itemID {
				candidateItems[id] = struct{}{}
			}
		}
	}

	neighbors := make([]neighbor, 0, len(candidateItems))
	for id := range candidateItems {
		otherUsers, err := r.Store.GetItemUsers(ctx, id)
		if err != nil || len(otherUsers) == 0 {
			continue
		}
		if sim := cosineOverCommon(baseUsers, otherUsers); sim > 0 {
			neighbors = append(neighbors, neighbor{id: id, sim: sim})
		}
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].sim > neighbors[j].sim })
	if len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}

	r.mu.Lock()
	if r.itemSimCache == nil {
		r.itemSimCache = make(map[string][]neighbor)
	}
	r.itemSimCache[itemID] = neighbors
	r.mu.Unlock()
	return neighbors, nil
}

var _ Algorithm = (*Collaborative)(nil)
