package redis

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LocalCache 进程内缓存，单实例部署或测试时代替 Redis
type LocalCache struct {
	store *gocache.Cache
	pool  *workerPool
}

// NewLocalCache workerNum 为 0 时 SubmitTask 同步执行
func NewLocalCache(defaultTTL, cleanupInterval time.Duration, workerNum, taskChanSize int) *LocalCache {
	return &LocalCache{
		store: gocache.New(defaultTTL, cleanupInterval),
		pool:  newWorkerPool(workerNum, taskChanSize),
	}
}

func (l *LocalCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	l.store.Set(key, value, ttl)
	return nil
}

func (l *LocalCache) Get(_ context.Context, key string) (string, error) {
	v, ok := l.store.Get(key)
	if !ok {
		return "", nil
	}
	s, _ := v.(string)
	return s, nil
}

func (l *LocalCache) Delete(_ context.Context, key string) error {
	l.store.Delete(key)
	return nil
}

func (l *LocalCache) SubmitTask(action func()) {
	l.pool.submit(action)
}

var _ AsyncCacheService = (*LocalCache)(nil)
