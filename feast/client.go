// Package feast 对接 Feast Feature Store，为内容池补全在线互动特征。
package feast

import "context"

// Client 是 Feast 在线特征服务的客户端接口。
// 领域层只依赖这个接口；gRPC 实现见 grpc_client.go。
//
// 参考：https://github.com/feast-dev/feast
type Client interface {
	// GetOnlineFeatures 获取在线特征（实时计数等）
	GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error)

	// Close 关闭客户端连接
	Close() error
}

// GetOnlineFeaturesRequest 获取在线特征请求。
type GetOnlineFeaturesRequest struct {
	// Features 特征名称列表，例如 ["post_stats:views", "post_stats:likes"]
	Features []string

	// EntityRows 实体行，例如 [{"post_id": "p1"}, {"post_id": "p2"}]
	EntityRows []map[string]interface{}

	// Project 项目名称（可选，缺省取客户端配置）
	Project string
}

// GetOnlineFeaturesResponse 获取在线特征响应。
type GetOnlineFeaturesResponse struct {
	// FeatureVectors 特征向量列表，与请求的实体行一一对应
	FeatureVectors []FeatureVector
}

// FeatureVector 是单个实体的特征值集合。
type FeatureVector struct {
	// Values 特征值，key 为特征名称
	Values map[string]interface{}

	// EntityRow 对应的实体行
	EntityRow map[string]interface{}
}
