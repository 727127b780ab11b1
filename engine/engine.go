// Package engine 编排完整的推荐链路：内容池与画像加载、多策略候选生成、
// 加权融合、重排、兜底。
package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/recfeed/algo"
	"github.com/rushteam/recfeed/core"
	"github.com/rushteam/recfeed/pipeline"
	"github.com/rushteam/recfeed/pkg/dsl"
	"github.com/rushteam/recfeed/profile"
	"github.com/rushteam/recfeed/rerank"
)

const poolCacheKey = "content_pool"

// Engine 是推荐引擎的入口。
//
// 可用性契约：Recommend 永不返回错误。任何内部失败（存储不可用、策略
// panic、超时）都降级为热门内容兜底——调用方永远拿到一个可渲染的响应。
// 写路径（RecordUserAction）相反：失败必须上抛，调用方要知道事件没落地。
type Engine struct {
	cfg      *core.RecommendConfig
	logger   *zap.Logger
	content  core.ContentSource
	actions  core.ActionStore
	profiles core.ProfileStore

	interactions algo.InteractionStore
	enricher     core.PoolEnricher
	logSink      core.RecLogSink
	builder      *profile.Builder
	algorithms   []algo.Algorithm
	rerankChain  *pipeline.Pipeline
	rng          *rand.Rand

	respCache    *Cache[*core.RecommendResponse]
	profileCache *Cache[*core.UserProfile]
	poolCache    *Cache[[]*core.ContentFeatures]

	worker *asyncWorker
}

// Option 配置 Engine 的可选组件。
type Option func(*Engine)

// WithLogger 注入日志器，默认 zap.NewNop()。
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithLogSink 注入推荐日志落地（尽力而为，异步写）。
func WithLogSink(sink core.RecLogSink) Option {
	return func(e *Engine) { e.logSink = sink }
}

// WithEnricher 注入内容池实时特征补全。
func WithEnricher(enricher core.PoolEnricher) Option {
	return func(e *Engine) { e.enricher = enricher }
}

// WithInteractionStore 注入协同过滤的交互矩阵来源。
// 不注入时协同过滤策略弃权（候选为空），其余策略不受影响。
func WithInteractionStore(store algo.InteractionStore) Option {
	return func(e *Engine) { e.interactions = store }
}

// WithAlgorithms 覆盖默认的策略集合。
func WithAlgorithms(algorithms ...algo.Algorithm) Option {
	return func(e *Engine) { e.algorithms = algorithms }
}

// WithRerank 覆盖默认的重排链路。
func WithRerank(p *pipeline.Pipeline) Option {
	return func(e *Engine) { e.rerankChain = p }
}

// WithProfileBuilder 覆盖默认的画像构建器。
func WithProfileBuilder(b *profile.Builder) Option {
	return func(e *Engine) { e.builder = b }
}

// WithRand 注入确定性随机源（测试用）。
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// New 创建引擎。cfg 为 nil 时使用 DefaultConfig。
func New(cfg *core.RecommendConfig, content core.ContentSource, actions core.ActionStore, profiles core.ProfileStore, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if content == nil {
		return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, "content source is required")
	}

	e := &Engine{
		cfg:      cfg,
		logger:   zap.NewNop(),
		content:  content,
		actions:  actions,
		profiles: profiles,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.builder == nil {
		e.builder = &profile.Builder{
			ActionWeights:   cfg.FeatureWeights,
			DecayFactor:     cfg.Decay.TimeDecayFactor,
			SegmentKeywords: cfg.SegmentKeywords,
		}
	}
	if e.algorithms == nil {
		e.algorithms = e.defaultAlgorithms()
	}
	if e.rerankChain == nil {
		chain, err := e.defaultRerank()
		if err != nil {
			return nil, err
		}
		e.rerankChain = chain
	}

	e.respCache = NewCache[*core.RecommendResponse](cfg.Cache.ResponseTTL.Std(), cfg.Cache.ResponseMaxEntries)
	e.profileCache = NewCache[*core.UserProfile](cfg.Cache.ProfileTTL.Std(), 0)
	e.poolCache = NewCache[[]*core.ContentFeatures](cfg.Cache.ContentTTL.Std(), 1)
	e.worker = newAsyncWorker(256, 2, 10*time.Second, e.logger)
	return e, nil
}

func (e *Engine) defaultAlgorithms() []algo.Algorithm {
	algorithms := []algo.Algorithm{
		&algo.ContentBased{
			MinInterestMatch: e.cfg.Rules.PersonalizationThreshold,
			Benchmarks:       e.cfg.Benchmarks,
		},
		// Trending 用自己的多样性因子（0.4），比重排链路的更激进
		&algo.Trending{
			Benchmarks: e.cfg.Benchmarks,
			Rand:       e.rng,
		},
	}
	if e.interactions != nil {
		algorithms = append(algorithms, &algo.Collaborative{
			Store:      e.interactions,
			Benchmarks: e.cfg.Benchmarks,
		})
	}
	return algorithms
}

func (e *Engine) defaultRerank() (*pipeline.Pipeline, error) {
	rule := &rerank.RuleNode{
		MinQuality:      e.cfg.Rules.MinQualityScore,
		MaxRepeatDays:   e.cfg.Rules.MaxRepeatInDays,
		BoostRecentDays: float64(e.cfg.Rules.BoostRecentDays),
		Logger:          e.logger,
	}
	if e.cfg.Rules.Expression != "" {
		prg, err := dsl.Compile(e.cfg.Rules.Expression)
		if err != nil {
			return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput,
				fmt.Sprintf("rules expression: %v", err))
		}
		rule.Program = prg
	}
	return &pipeline.Pipeline{Nodes: []pipeline.Node{
		rule,
		&rerank.DiversityNode{Factor: e.cfg.Rules.DiversityFactor},
		&rerank.PositionNode{Factor: e.cfg.Decay.PositionDecayFactor},
	}}, nil
}

// Close 停止旁路 worker，等待在途任务结束。
func (e *Engine) Close() {
	e.worker.Close()
}

// Recommend 执行一次推荐。永不返回错误：内部失败降级为热门兜底。
func (e *Engine) Recommend(ctx context.Context, req *core.RecommendRequest) *core.RecommendResponse {
	start := time.Now()
	if req == nil {
		req = &core.RecommendRequest{}
	}
	if req.Count <= 0 {
		req.Count = 10
	}

	cacheKey := responseCacheKey(req)
	if cached, ok := e.respCache.Get(cacheKey); ok {
		return e.withDebug(cached, req, &core.DebugInfo{
			CacheHit:  true,
			ElapsedMs: time.Since(start).Milliseconds(),
		})
	}

	timeout := e.cfg.RequestTimeout.Std()
	if timeout <= 0 {
		timeout = time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp  *core.RecommendResponse
		debug *core.DebugInfo
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("recommend pipeline panicked", zap.Any("panic", r),
					zap.String("user_id", req.UserID))
				done <- result{}
			}
		}()
		resp, debug := e.recommendOnce(tctx, req)
		done <- result{resp: resp, debug: debug}
	}()

	var resp *core.RecommendResponse
	var debug *core.DebugInfo
	select {
	case r := <-done:
		resp, debug = r.resp, r.debug
	case <-tctx.Done():
		e.logger.Warn("recommend timed out, serving fallback",
			zap.String("user_id", req.UserID), zap.Duration("timeout", timeout))
	}

	if resp == nil || len(resp.Recommendations) == 0 {
		resp = e.fallback(ctx, req)
		if debug == nil {
			debug = &core.DebugInfo{}
		}
		debug.FallbackUsed = true
	} else {
		e.respCache.Set(cacheKey, resp)
	}

	if debug != nil {
		debug.ElapsedMs = time.Since(start).Milliseconds()
	}
	resp = e.withDebug(resp, req, debug)

	if e.logSink != nil {
		sessionID, logged := resp.SessionID, resp
		e.worker.Submit("rec_log", func(ctx context.Context) {
			if err := e.logSink.Append(ctx, sessionID, req, logged, time.Now()); err != nil {
				e.logger.Warn("rec log append failed", zap.Error(err))
			}
		})
	}
	return resp
}

// recommendOnce 跑一遍完整链路，失败或产出为空时返回 nil 交给兜底。
func (e *Engine) recommendOnce(ctx context.Context, req *core.RecommendRequest) (*core.RecommendResponse, *core.DebugInfo) {
	debug := &core.DebugInfo{StrategyCounts: make(map[string]int)}

	pool, err := e.loadPool(ctx)
	if err != nil || len(pool) == 0 {
		if err != nil {
			e.logger.Warn("content pool load failed", zap.Error(err))
		}
		return nil, debug
	}

	prof := e.loadProfile(ctx, req.UserID)
	debug.ProfileLoaded = prof != nil

	var actions []*core.UserAction
	if req.UserID != "" && e.actions != nil {
		actions, err = e.actions.GetActionsForUser(ctx, req.UserID, 1000)
		if err != nil {
			e.logger.Warn("actions load failed", zap.String("user_id", req.UserID), zap.Error(err))
		}
	}

	// 单策略候选上限：请求量的 3 倍，下限 100
	limit := req.Count * 3
	if limit < 100 {
		limit = 100
	}

	rctx := &core.RecommendContext{
		Request:  req,
		Profile:  prof,
		Pool:     pool,
		Contents: indexPool(pool),
		Actions:  actions,
		Limit:    limit,
		Rand:     e.rng,
	}

	merged := e.generate(ctx, rctx, debug)
	if len(merged) == 0 {
		return nil, debug
	}

	// 融合产物来自 map，先按分数排好再进重排链路：
	// 多样性惩罚按名次顺序累计占比，乱序遍历会罚错对象
	merged = algo.SortCandidates(merged, 0)

	cands, err := e.rerankChain.Run(ctx, rctx, merged)
	if err != nil {
		e.logger.Warn("rerank failed", zap.Error(err))
		cands = merged
	}
	cands = algo.SortCandidates(cands, 0)

	items := e.format(cands, rctx, req)
	if len(items) == 0 {
		return nil, debug
	}

	return &core.RecommendResponse{
		Recommendations: items,
		SessionID:       sessionID(req),
		GeneratedAt:     time.Now(),
	}, debug
}

// generate 并发执行各策略并做加权融合；同一内容被多个策略命中时分数相加。
func (e *Engine) generate(ctx context.Context, rctx *core.RecommendContext, debug *core.DebugInfo) []*core.Candidate {
	type strategyOut struct {
		source core.Source
		weight float64
		cands  []*core.Candidate
	}

	active := make([]algo.Algorithm, 0, len(e.algorithms))
	for _, a := range e.algorithms {
		if e.weightFor(a.Source()) > 0 {
			active = append(active, a)
		}
	}

	outs := make([]strategyOut, len(active))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range active {
		i, a := i, a
		g.Go(func() error {
			cands, err := a.GenerateCandidates(gctx, rctx)
			if err != nil {
				// 单策略失败不拖垮整条链路
				e.logger.Warn("strategy failed", zap.String("strategy", a.Name()), zap.Error(err))
				return nil
			}
			outs[i] = strategyOut{source: a.Source(), weight: e.weightFor(a.Source()), cands: cands}
			return nil
		})
	}
	_ = g.Wait()

	merged := make(map[string]*core.Candidate)
	for _, out := range outs {
		debug.StrategyCounts[string(out.source)] = len(out.cands)
		for _, cand := range out.cands {
			weighted := out.weight * cand.Score
			if exist, ok := merged[cand.PostID]; ok {
				exist.Score += weighted
				for _, r := range cand.Reasons {
					exist.AddReason(r)
				}
				for k, v := range cand.Labels {
					exist.PutLabel(k, v)
				}
				continue
			}
			cand.Score = weighted
			merged[cand.PostID] = cand
		}
	}

	e.addRecentBonus(rctx, merged, debug)
	e.addRandomBonus(rctx, merged, debug)

	out := make([]*core.Candidate, 0, len(merged))
	for _, cand := range merged {
		out = append(out, cand)
	}
	return out
}

// addRecentBonus 给 7 天内发布的内容加新近加成：窗口内一律 权重×0.8，
// 不随天数递减（时间梯度已由各策略的新鲜度分项承担）。
func (e *Engine) addRecentBonus(rctx *core.RecommendContext, merged map[string]*core.Candidate, debug *core.DebugInfo) {
	w := e.cfg.StrategyWeights.Recent
	if w <= 0 {
		return
	}
	now := time.Now()
	count := 0
	for _, c := range algo.FilterPool(rctx.Pool, rctx.Request) {
		if algo.DaysSince(c.PublishedAt, now) > 7 {
			continue
		}
		count++
		bonus := w * 0.8
		if exist, ok := merged[c.ID]; ok {
			exist.Score += bonus
			continue
		}
		cand := core.NewCandidate(c.ID, core.SourceRecent)
		cand.Score = bonus
		cand.Features.QualityScore = algo.QualityScore(c)
		cand.AddReason("Newly published")
		merged[c.ID] = cand
	}
	debug.StrategyCounts[string(core.SourceRecent)] = count
}

// addRandomBonus 随机抽最多 10 个内容做探索加成（权重 ×0.5）。
// 权重为 0 时完全关闭，推荐结果对同样的输入保持确定。
func (e *Engine) addRandomBonus(rctx *core.RecommendContext, merged map[string]*core.Candidate, debug *core.DebugInfo) {
	w := e.cfg.StrategyWeights.Random
	if w <= 0 {
		return
	}
	pool := algo.FilterPool(rctx.Pool, rctx.Request)
	if len(pool) == 0 {
		return
	}
	rng := e.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	picks := 10
	if picks > len(pool) {
		picks = len(pool)
	}
	perm := rng.Perm(len(pool))[:picks]
	for _, idx := range perm {
		c := pool[idx]
		bonus := w * 0.5
		if exist, ok := merged[c.ID]; ok {
			exist.Score += bonus
			continue
		}
		cand := core.NewCandidate(c.ID, core.SourceRandom)
		cand.Score = bonus
		cand.Features.QualityScore = algo.QualityScore(c)
		cand.AddReason("Something different for you")
		merged[c.ID] = cand
	}
	debug.StrategyCounts[string(core.SourceRandom)] = picks
}

// format 施加 offset/count 分页并格式化为响应条目。
func (e *Engine) format(cands []*core.Candidate, rctx *core.RecommendContext, req *core.RecommendRequest) []core.RecommendationItem {
	if req.Offset > 0 {
		if req.Offset >= len(cands) {
			return nil
		}
		cands = cands[req.Offset:]
	}
	if len(cands) > req.Count {
		cands = cands[:req.Count]
	}

	items := make([]core.RecommendationItem, 0, len(cands))
	for i, cand := range cands {
		reason := "Recommended for you"
		if len(cand.Reasons) > 0 {
			reason = strings.Join(cand.Reasons, " · ")
		}
		items = append(items, core.RecommendationItem{
			PostID:       cand.PostID,
			Rank:         req.Offset + i + 1,
			Score:        cand.Score,
			Reason:       reason,
			Source:       cand.Source,
			PredictedCTR: predictedCTR(cand),
		})
	}
	return items
}

// predictedCTR 是启发式点击率预估：0.1 + 0.2*score + 0.1*quality，上限 0.5。
func predictedCTR(cand *core.Candidate) float64 {
	return math.Min(0.1+0.2*cand.Score+0.1*cand.Features.QualityScore, 0.5)
}

// fallback 返回热门兜底：只依赖内容源的浏览量排序，不依赖画像与算法状态。
func (e *Engine) fallback(ctx context.Context, req *core.RecommendRequest) *core.RecommendResponse {
	items := make([]core.RecommendationItem, 0, req.Count)

	contents, err := e.content.GetMostViewed(ctx, req.Count+len(req.ExcludeIDs)+1)
	if err != nil {
		e.logger.Error("fallback load failed", zap.Error(err))
	} else {
		excluded := make(map[string]struct{}, len(req.ExcludeIDs)+1)
		for _, id := range req.ExcludeIDs {
			excluded[id] = struct{}{}
		}
		if req.Context.CurrentPostID != "" {
			excluded[req.Context.CurrentPostID] = struct{}{}
		}
		for _, c := range contents {
			if _, ok := excluded[c.ID]; ok {
				continue
			}
			if len(items) >= req.Count {
				break
			}
			items = append(items, core.RecommendationItem{
				PostID: c.ID,
				Rank:   len(items) + 1,
				Score:  1 - 0.1*float64(len(items)),
				Reason: "Popular recommendation",
				Source: core.SourceTrending,
			})
		}
	}

	return &core.RecommendResponse{
		Recommendations: items,
		SessionID:       sessionID(req),
		GeneratedAt:     time.Now(),
	}
}

// RecordUserAction 记录一条行为事件。写入失败上抛；成功后失效画像缓存
// 并异步重建画像。
func (e *Engine) RecordUserAction(ctx context.Context, action *core.UserAction) error {
	if action == nil || action.UserID == "" || action.TargetID == "" {
		return core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput,
			"action requires user_id and target_id")
	}
	if e.actions == nil {
		return core.NewDomainError(core.ModuleEngine, core.ErrorCodeNotSupported, "action store not configured")
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	if err := e.actions.InsertAction(ctx, action); err != nil {
		return fmt.Errorf("insert action: %w", err)
	}

	e.profileCache.Delete(action.UserID)

	userID := action.UserID
	e.worker.Submit("profile_rebuild", func(ctx context.Context) {
		e.rebuildProfile(ctx, userID)
	})
	return nil
}

// rebuildProfile 旁路重建画像：拉全量行为、构建、与旧画像合并、落库。
func (e *Engine) rebuildProfile(ctx context.Context, userID string) {
	if e.profiles == nil {
		return
	}
	actions, err := e.actions.GetActionsForUser(ctx, userID, 1000)
	if err != nil {
		e.logger.Warn("profile rebuild: actions load failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	pool, err := e.loadPool(ctx)
	if err != nil {
		e.logger.Warn("profile rebuild: pool load failed", zap.Error(err))
		return
	}

	fresh := e.builder.Build(userID, actions, indexPool(pool))
	if fresh == nil {
		return
	}

	old, err := e.profiles.GetProfile(ctx, userID)
	if err != nil && !core.IsProfileNotFound(err) {
		e.logger.Warn("profile rebuild: load failed", zap.String("user_id", userID), zap.Error(err))
	}
	merged := e.builder.Merge(old, fresh)

	if err := e.profiles.UpsertProfile(ctx, merged); err != nil {
		e.logger.Warn("profile rebuild: upsert failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	e.profileCache.Set(userID, merged)
}

// InvalidateContentPool 丢弃内容池快照，下次请求重新加载。
// 供内容侧在发布/下架后主动调用。
func (e *Engine) InvalidateContentPool() {
	e.poolCache.Purge()
	e.respCache.Purge()
}

// loadPool 加载内容池快照（带 TTL 缓存与可选的实时特征补全）。
func (e *Engine) loadPool(ctx context.Context) ([]*core.ContentFeatures, error) {
	if pool, ok := e.poolCache.Get(poolCacheKey); ok {
		return pool, nil
	}

	limit := e.cfg.Cache.PoolLimit
	pool, err := e.content.GetPublishedContent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if e.enricher != nil {
		if err := e.enricher.EnrichPool(ctx, pool); err != nil {
			e.logger.Warn("pool enrichment failed, using stale counters", zap.Error(err))
		}
	}
	e.poolCache.Set(poolCacheKey, pool)
	return pool, nil
}

// loadProfile 加载画像（带 TTL 缓存）。匿名、无画像或加载失败都返回 nil。
func (e *Engine) loadProfile(ctx context.Context, userID string) *core.UserProfile {
	if userID == "" || e.profiles == nil {
		return nil
	}
	if prof, ok := e.profileCache.Get(userID); ok {
		return prof
	}

	prof, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		if !core.IsProfileNotFound(err) {
			e.logger.Warn("profile load failed", zap.String("user_id", userID), zap.Error(err))
			return nil
		}
		// 无画像也缓存，避免反复打存储
	}
	e.profileCache.Set(userID, prof)
	return prof
}

func (e *Engine) weightFor(source core.Source) float64 {
	switch source {
	case core.SourceCollaborative:
		return e.cfg.StrategyWeights.Collaborative
	case core.SourceContentBased:
		return e.cfg.StrategyWeights.ContentBased
	case core.SourceTrending:
		return e.cfg.StrategyWeights.Trending
	case core.SourceRecent:
		return e.cfg.StrategyWeights.Recent
	case core.SourceRandom:
		return e.cfg.StrategyWeights.Random
	default:
		return 0
	}
}

// withDebug 按需附加调试块。缓存命中时基于浅拷贝返回，不污染缓存条目。
func (e *Engine) withDebug(resp *core.RecommendResponse, req *core.RecommendRequest, debug *core.DebugInfo) *core.RecommendResponse {
	if !req.Debug || debug == nil {
		return resp
	}
	copied := *resp
	copied.Debug = debug
	return &copied
}

func responseCacheKey(req *core.RecommendRequest) string {
	return fmt.Sprintf("%s|%d|%d|%s|%s",
		req.UserID, req.Count, req.Offset, req.Context.CurrentPostID, req.Context.Source)
}

func sessionID(req *core.RecommendRequest) string {
	if req.Context.SessionID != "" {
		return req.Context.SessionID
	}
	return uuid.NewString()
}

func indexPool(pool []*core.ContentFeatures) map[string]*core.ContentFeatures {
	index := make(map[string]*core.ContentFeatures, len(pool))
	for _, c := range pool {
		index[c.ID] = c
	}
	return index
}
