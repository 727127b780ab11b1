package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rushteam/recfeed/core"
)

// stubNode 把自己的名字追加到每个候选的理由里，用于验证执行顺序。
type stubNode struct {
	name string
	err  error
}

func (n *stubNode) Name() string { return n.name }
func (n *stubNode) Kind() Kind   { return KindReRank }

func (n *stubNode) Process(_ context.Context, _ *core.RecommendContext, cands []*core.Candidate) ([]*core.Candidate, error) {
	if n.err != nil {
		return nil, n.err
	}
	for _, c := range cands {
		c.AddReason(n.name)
	}
	return cands, nil
}

func TestPipelineRunsNodesInOrder(t *testing.T) {
	p := &Pipeline{Nodes: []Node{
		&stubNode{name: "first"},
		&stubNode{name: "second"},
	}}

	cands := []*core.Candidate{core.NewCandidate("p1", core.SourceTrending)}
	out, err := p.Run(context.Background(), &core.RecommendContext{}, cands)
	if err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if len(out) != 1 || len(out[0].Reasons) != 2 {
		t.Fatalf("输出 = %+v, 期望经过 2 个节点", out)
	}
	if out[0].Reasons[0] != "first" || out[0].Reasons[1] != "second" {
		t.Errorf("执行顺序 = %v, 期望 [first second]", out[0].Reasons)
	}
}

func TestPipelineStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	p := &Pipeline{Nodes: []Node{
		&stubNode{name: "first"},
		&stubNode{name: "broken", err: boom},
		&stubNode{name: "never"},
	}}

	_, err := p.Run(context.Background(), &core.RecommendContext{},
		[]*core.Candidate{core.NewCandidate("p1", core.SourceTrending)})
	if !errors.Is(err, boom) {
		t.Errorf("Run 错误 = %v, 期望透传节点错误", err)
	}
}

func TestConfigLoadAndBuild(t *testing.T) {
	yamlBody := `
pipeline:
  name: test_chain
  nodes:
    - type: stub
      config: {label: a}
    - type: stub
      config: {label: b}
`
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromYAML(path)
	if err != nil {
		t.Fatalf("LoadFromYAML 失败: %v", err)
	}
	if cfg.Pipeline.Name != "test_chain" || len(cfg.Pipeline.Nodes) != 2 {
		t.Fatalf("配置 = %+v, 期望 2 个节点", cfg.Pipeline)
	}

	factory := NewNodeFactory()
	factory.Register("stub", func(config map[string]any) (Node, error) {
		label, _ := config["label"].(string)
		return &stubNode{name: label}, nil
	})

	p, err := cfg.Build(factory)
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	if len(p.Nodes) != 2 || p.Nodes[0].Name() != "a" || p.Nodes[1].Name() != "b" {
		t.Errorf("链路节点 = %v, 期望 [a b]", []string{p.Nodes[0].Name(), p.Nodes[1].Name()})
	}
}

func TestFactoryUnknownType(t *testing.T) {
	factory := NewNodeFactory()
	if _, err := factory.Build("nope", nil); err == nil {
		t.Error("未注册的节点类型应报错")
	}

	cfg := &Config{}
	cfg.Pipeline.Nodes = []NodeConfig{{Type: "nope"}}
	if _, err := cfg.Build(factory); err == nil {
		t.Error("Build 应透传未知类型错误")
	}
}

func TestLoadFromYAMLMissingFile(t *testing.T) {
	if _, err := LoadFromYAML("/nonexistent/pipeline.yaml"); err == nil {
		t.Error("缺失文件应报错")
	}
}
