package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// asyncWorker 执行推荐链路的旁路任务：画像重建、推荐日志落地。
//
// 队列有界，满了直接丢弃并记 warn——旁路任务宁可丢也不能反压请求路径。
// 每个任务拿到独立的超时上下文，不继承请求上下文（请求返回后任务还在跑）。
type asyncWorker struct {
	tasks   chan func(ctx context.Context)
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newAsyncWorker(queueSize, workers int, timeout time.Duration, logger *zap.Logger) *asyncWorker {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &asyncWorker{
		tasks:   make(chan func(ctx context.Context), queueSize),
		timeout: timeout,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	return w
}

func (w *asyncWorker) run() {
	defer w.wg.Done()
	for task := range w.tasks {
		w.exec(task)
	}
}

func (w *asyncWorker) exec(task func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("async task panicked", zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	task(ctx)
}

// Submit 提交旁路任务；队列满或 worker 已关闭时丢弃。
func (w *asyncWorker) Submit(name string, task func(ctx context.Context)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("async worker closed, task dropped", zap.String("task", name))
		return
	}
	select {
	case w.tasks <- task:
	default:
		w.logger.Warn("async queue full, task dropped", zap.String("task", name))
	}
}

// Close 停止接收新任务并等待在途任务完成，重复调用安全。
func (w *asyncWorker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.tasks)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
