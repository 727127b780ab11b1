package core

import "context"

// Store 是存储的领域接口：定义在领域层，由基础设施层（store 包）实现，
// 避免领域层反向依赖具体后端。
//
// 使用场景：
//   - 内容/画像快照（JSON blob）
//   - 行为事件与交互矩阵
//   - 推荐日志
type Store interface {
	// Name 返回存储后端名称（用于日志）
	Name() string

	// Get 读取单个 key 的值；不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value；ttl 为可选的过期秒数
	Set(ctx context.Context, key string, value []byte, ttl ...int) error

	// Delete 删除单个 key
	Delete(ctx context.Context, key string) error

	// BatchGet 批量读取，缺失的 key 不出现在结果里
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// BatchSet 批量写入
	BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error

	// Close 关闭连接/释放资源
	Close() error
}

// KeyValueStore 是 Store 的扩展接口，增加有序集合与哈希表操作。
//
//   - 有序集合：发布时间线、最热内容索引、按时间排序的行为日志
//   - 哈希表：用户-物品交互矩阵（field 为对端 ID，value 为交互权重）
//
// 后端不支持某操作时返回 ErrStoreNotSupported。
type KeyValueStore interface {
	Store

	// ZAdd 向有序集合添加成员
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRange 按分数降序返回 [start, stop] 区间的成员；stop 为 -1 表示到末尾
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZScore 获取成员的分数；不存在时返回 ErrStoreNotFound
	ZScore(ctx context.Context, key string, member string) (float64, error)

	// HGet 读取哈希字段；不存在时返回 ErrStoreNotFound
	HGet(ctx context.Context, key, field string) ([]byte, error)

	// HSet 写入哈希字段
	HSet(ctx context.Context, key, field string, value []byte) error

	// HGetAll 读取整个哈希
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
}
