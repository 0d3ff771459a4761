package redis

import (
	"go.uber.org/zap"
)

// workerPool 缓存任务协程池
// workerNum 为 0 时任务在调用方协程同步执行
type workerPool struct {
	taskChan  chan func()
	workerNum int
}

func newWorkerPool(workerNum, bufferSize int) *workerPool {
	p := &workerPool{workerNum: workerNum}
	if workerNum <= 0 {
		return p
	}
	p.taskChan = make(chan func(), bufferSize)
	for i := 0; i < workerNum; i++ {
		go p.startWorker()
	}
	zap.L().Info("Cache Workers started", zap.Int("workers", workerNum), zap.Int("buffer", bufferSize))
	return p
}

// startWorker 单个 Worker 消费循环，panic 后重启
func (p *workerPool) startWorker() {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("Cache Worker panic", zap.Any("recover", rec))
			go p.startWorker()
		}
	}()

	for task := range p.taskChan {
		if task != nil {
			task()
		}
	}
}

// submit 通道满时降级为同步执行
func (p *workerPool) submit(action func()) {
	if p.taskChan == nil {
		action()
		return
	}
	select {
	case p.taskChan <- action:
	default:
		zap.L().Warn("Cache task channel full, executing synchronously")
		action()
	}
}
