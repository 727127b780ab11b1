// Package dsl 提供基于 CEL (Common Expression Language) 的候选过滤表达式。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/recfeed/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("candidate", cel.DynType),
		cel.Variable("features", cel.DynType),
		cel.Variable("label", cel.DynType),
		cel.Variable("content", cel.DynType),
		cel.Variable("rctx", cel.DynType),
	)
	return env, err
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	var err error
	celEnvOnce.Do(func() {
		celEnv, err = initCELEnv()
	})
	return celEnv, err
}

// Program 是编译后的候选过滤表达式，编译一次、多次求值，线程安全。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：candidate.score > 0.3 / features.quality_score >= 0.5
//   - 内容：content.word_count > 500 / "golang" in content.tags
//   - 标签：label.content_mode == "interest"
//   - 逻辑：features.freshness_score > 0.8 && candidate.score > 0.2
//
// 注意：CEL 访问不存在的 key 会报错，用 label.key != null 检查存在性。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式。expr 为空时返回 nil Program（求值恒为 true）。
func Compile(expr string) (*Program, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %v", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %v", err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// Expr 返回源表达式。
func (p *Program) Expr() string {
	if p == nil {
		return ""
	}
	return p.expr
}

// Eval 对单个候选求值，返回布尔结果。nil Program 恒为 true。
func (p *Program) Eval(cand *core.Candidate, content *core.ContentFeatures, rctx *core.RecommendContext) (bool, error) {
	if p == nil {
		return true, nil
	}

	out, _, err := p.prg.Eval(buildInput(cand, content, rctx))
	if err != nil {
		return false, fmt.Errorf("eval error: %v", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(cand *core.Candidate, content *core.ContentFeatures, rctx *core.RecommendContext) map[string]interface{} {
	features := map[string]interface{}{
		"similarity_score":      cand.Features.SimilarityScore,
		"quality_score":         cand.Features.QualityScore,
		"freshness_score":       cand.Features.FreshnessScore,
		"popularity_score":      cand.Features.PopularityScore,
		"personalization_score": cand.Features.PersonalizationScore,
	}

	// label.xxx 直接取 value，完整对象走 candidate.labels
	labels := make(map[string]interface{}, len(cand.Labels))
	labelAccessor := make(map[string]interface{}, len(cand.Labels))
	for k, v := range cand.Labels {
		labels[k] = map[string]interface{}{
			"value":  v.Value,
			"source": v.Source,
		}
		labelAccessor[k] = v.Value
	}

	candidate := map[string]interface{}{
		"post_id":  cand.PostID,
		"score":    cand.Score,
		"source":   string(cand.Source),
		"reasons":  cand.Reasons,
		"features": features,
		"labels":   labels,
	}

	contentMap := map[string]interface{}{}
	if content != nil {
		contentMap = map[string]interface{}{
			"id":            content.ID,
			"author":        content.Author,
			"categories":    content.Categories,
			"tags":          content.Tags,
			"keywords":      content.Keywords,
			"word_count":    content.WordCount,
			"quality_score": content.QualityScore,
			"views":         content.Engagement.Views,
			"likes":         content.Engagement.Likes,
		}
	}

	rctxMap := map[string]interface{}{}
	if rctx != nil && rctx.Request != nil {
		rctxMap = map[string]interface{}{
			"user_id":     rctx.Request.UserID,
			"source":      string(rctx.Request.Context.Source),
			"device_type": rctx.Request.Context.DeviceType,
			"has_profile": rctx.Profile != nil,
		}
	}

	return map[string]interface{}{
		"candidate": candidate,
		"features":  features,
		"label":     labelAccessor,
		"content":   contentMap,
		"rctx":      rctxMap,
	}
}
