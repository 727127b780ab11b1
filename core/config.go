package core

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 是支持 YAML 反序列化的时长类型，接受 "5m"、"1h" 或秒数。
type Duration time.Duration

// UnmarshalYAML 实现 yaml.Unmarshaler。
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %w", err)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std 返回标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// StrategyWeights 是各策略在融合阶段的权重，权重为 0 的策略不执行。
// 五项之和应为 1.0（Validate 校验，容差 0.01）。
type StrategyWeights struct {
	Collaborative float64 `yaml:"collaborative" json:"collaborative"`
	ContentBased  float64 `yaml:"content_based" json:"content_based"`
	Trending      float64 `yaml:"trending" json:"trending"`
	Recent        float64 `yaml:"recent" json:"recent"`
	Random        float64 `yaml:"random" json:"random"`
}

// Rules 是重排阶段的业务规则。
type Rules struct {
	MinQualityScore          float64 `yaml:"min_quality_score" json:"min_quality_score"`
	MaxRepeatInDays          int     `yaml:"max_repeat_in_days" json:"max_repeat_in_days"`
	BoostRecentDays          int     `yaml:"boost_recent_days" json:"boost_recent_days"`
	DiversityFactor          float64 `yaml:"diversity_factor" json:"diversity_factor"`
	PersonalizationThreshold float64 `yaml:"personalization_threshold" json:"personalization_threshold"`

	// Expression 是可选的 CEL 业务规则表达式，对每个候选求值，
	// false 的候选被丢弃。例：`features.quality_score >= 0.5 || candidate.score > 0.8`
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// DecayConfig 是时间衰减与位置衰减参数。
type DecayConfig struct {
	TimeDecayFactor     float64 `yaml:"time_decay_factor" json:"time_decay_factor"`
	PositionDecayFactor float64 `yaml:"position_decay_factor" json:"position_decay_factor"`
}

// Benchmarks 是流行度评分的各项基准值（分母），见 algo.PopularityScore。
type Benchmarks struct {
	Views    float64 `yaml:"views" json:"views"`
	Likes    float64 `yaml:"likes" json:"likes"`
	Collects float64 `yaml:"collects" json:"collects"`
	Comments float64 `yaml:"comments" json:"comments"`
}

// CacheConfig 是引擎各缓存的 TTL 与容量。
type CacheConfig struct {
	ResponseTTL        Duration `yaml:"response_ttl" json:"response_ttl"`
	ProfileTTL         Duration `yaml:"profile_ttl" json:"profile_ttl"`
	ContentTTL         Duration `yaml:"content_ttl" json:"content_ttl"`
	ResponseMaxEntries int      `yaml:"response_max_entries" json:"response_max_entries"`
	PoolLimit          int      `yaml:"pool_limit" json:"pool_limit"`
}

// RecommendConfig 是引擎的全量配置，进程内加载一次。
type RecommendConfig struct {
	StrategyWeights StrategyWeights `yaml:"strategy_weights" json:"strategy_weights"`
	Rules           Rules           `yaml:"rules" json:"rules"`

	// FeatureWeights 是兴趣聚合时各行为类型的权重，缺省取 ActionWeights
	FeatureWeights map[ActionType]float64 `yaml:"feature_weights,omitempty" json:"feature_weights,omitempty"`

	Decay      DecayConfig `yaml:"decay" json:"decay"`
	Benchmarks Benchmarks  `yaml:"benchmarks" json:"benchmarks"`
	Cache      CacheConfig `yaml:"cache" json:"cache"`

	// RequestTimeout 到期后短路到兜底推荐
	RequestTimeout Duration `yaml:"request_timeout" json:"request_timeout"`

	// SegmentKeywords 是人群标签的兴趣关键词组，例如 {"tech_fan": ["golang", "ai"]}
	SegmentKeywords map[string][]string `yaml:"segment_keywords,omitempty" json:"segment_keywords,omitempty"`
}

// DefaultConfig 返回一份可直接使用的默认配置。
func DefaultConfig() *RecommendConfig {
	return &RecommendConfig{
		StrategyWeights: StrategyWeights{
			Collaborative: 0.3,
			ContentBased:  0.3,
			Trending:      0.2,
			Recent:        0.1,
			Random:        0.1,
		},
		Rules: Rules{
			MinQualityScore:          0.3,
			MaxRepeatInDays:          7,
			BoostRecentDays:          3,
			DiversityFactor:          0.3,
			PersonalizationThreshold: 0.2,
		},
		Decay: DecayConfig{
			TimeDecayFactor:     0.95,
			PositionDecayFactor: 0.9,
		},
		Benchmarks: Benchmarks{
			Views:    1000,
			Likes:    100,
			Collects: 50,
			Comments: 20,
		},
		Cache: CacheConfig{
			ResponseTTL:        Duration(5 * time.Minute),
			ProfileTTL:         Duration(10 * time.Minute),
			ContentTTL:         Duration(time.Hour),
			ResponseMaxEntries: 1000,
			PoolLimit:          1000,
		},
		RequestTimeout: Duration(time.Second),
	}
}

// LoadConfig 从 YAML 文件加载配置，未出现的字段保留默认值。
func LoadConfig(path string) (*RecommendConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置的基本约束。
func (c *RecommendConfig) Validate() error {
	sum := c.StrategyWeights.Collaborative +
		c.StrategyWeights.ContentBased +
		c.StrategyWeights.Trending +
		c.StrategyWeights.Recent +
		c.StrategyWeights.Random
	if math.Abs(sum-1.0) > 0.01 {
		return NewDomainError(ModuleEngine, ErrorCodeInvalidInput,
			fmt.Sprintf("strategy weights must sum to 1.0, got %.3f", sum))
	}
	if c.Rules.DiversityFactor < 0 || c.Rules.DiversityFactor > 1 {
		return NewDomainError(ModuleEngine, ErrorCodeInvalidInput, "diversity_factor must be in [0,1]")
	}
	if c.Decay.PositionDecayFactor <= 0 || c.Decay.PositionDecayFactor > 1 {
		return NewDomainError(ModuleEngine, ErrorCodeInvalidInput, "position_decay_factor must be in (0,1]")
	}
	if c.Cache.PoolLimit <= 0 {
		return NewDomainError(ModuleEngine, ErrorCodeInvalidInput, "pool_limit must be positive")
	}
	return nil
}

// ActionWeight 返回兴趣聚合时某行为类型的权重，优先取 FeatureWeights。
func (c *RecommendConfig) ActionWeight(t ActionType) float64 {
	if c.FeatureWeights != nil {
		if w, ok := c.FeatureWeights[t]; ok {
			return w
		}
	}
	return ActionWeights[t]
}
