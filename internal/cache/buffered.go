package cache

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/imagecache/internal/references"
)

// DefaultWriteWorkers 同时写盘的最大 goroutine 数。
const DefaultWriteWorkers = 4

// ErrInvalidBuffer 表示传入的缓冲区句柄为空或已关闭。
var ErrInvalidBuffer = errors.New("invalid buffer reference")

// BufferedOptions 配置 BufferedDiskCache。
type BufferedOptions struct {
	WriteWorkers int
	Logger       *logrus.Logger
}

// BufferedDiskCache 是以引用计数缓冲区为单位的读写入口。Put 立即把数据放入
// 暂存区并异步写盘；Get 先查暂存区再读磁盘，返回的句柄由调用方关闭。
type BufferedDiskCache struct {
	cache   *DiskStorageCache
	pool    *BufferPool
	staging *StagingArea
	logger  *logrus.Logger

	writers errgroup.Group
}

// NewBufferedDiskCache 组合磁盘缓存与缓冲池。
func NewBufferedDiskCache(cache *DiskStorageCache, pool *BufferPool, opts BufferedOptions) *BufferedDiskCache {
	workers := opts.WriteWorkers
	if workers <= 0 {
		workers = DefaultWriteWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	b := &BufferedDiskCache{
		cache:   cache,
		pool:    pool,
		staging: NewStagingArea(),
		logger:  logger,
	}
	b.writers.SetLimit(workers)
	return b
}

// Cache 返回底层的 DiskStorageCache。
func (b *BufferedDiskCache) Cache() *DiskStorageCache { return b.cache }

// Pool 返回缓冲池。
func (b *BufferedDiskCache) Pool() *BufferPool { return b.pool }

// Staging 返回暂存区。
func (b *BufferedDiskCache) Staging() *StagingArea { return b.staging }

// Put 暂存 ref 并调度写盘。调用方仍然持有并负责关闭 ref。
// 写盘槽位已满时阻塞，直到有写入完成。
func (b *BufferedDiskCache) Put(key string, ref *BufferRef) error {
	if !references.IsValidRef(ref) {
		return ErrInvalidBuffer
	}
	b.staging.Put(key, ref)

	final := ref.CloneOrNil()
	if final == nil {
		b.staging.Remove(key)
		return ErrInvalidBuffer
	}
	b.writers.Go(func() error {
		defer final.Close()
		defer b.staging.RemoveIfMatch(key, final)
		b.writeToDisk(key, final)
		return nil
	})
	return nil
}

// writeToDisk 只写入暂存区中仍属于 ref 的数据；已被更新的 Put 替换
// 或已被 Remove 的条目直接跳过，保证同一 key 最新写入者胜出。
func (b *BufferedDiskCache) writeToDisk(key string, ref *BufferRef) {
	current := func() bool { return b.staging.Holds(key, ref) }
	_, err := b.cache.insertIf(key, func(w io.Writer) error {
		_, err := ref.Get().WriteTo(w)
		return err
	}, current)
	if err != nil {
		b.logger.WithFields(logrus.Fields{
			"action": "cache_write",
			"key":    key,
		}).WithError(err).Warn("failed to write to disk-cache")
	}
}

// Get 返回 key 对应数据的新句柄；未命中时返回 ErrNotFound。
func (b *BufferedDiskCache) Get(ctx context.Context, key string) (*BufferRef, error) {
	if ref := b.staging.Get(key); ref != nil {
		return ref, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resource, ok := b.cache.Resource(key)
	if !ok {
		return nil, ErrNotFound
	}
	f, err := resource.Open()
	if err != nil {
		// 命中后文件被淘汰或删除
		return nil, ErrNotFound
	}
	defer f.Close()
	ref, err := b.pool.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read cached entry: %w", err)
	}
	return ref, nil
}

// Contains 判断 key 是否在暂存区或磁盘上，不影响淘汰顺序。
func (b *BufferedDiskCache) Contains(key string) bool {
	return b.staging.Contains(key) || b.cache.HasKey(key)
}

// Probe 与 Contains 相同，但命中磁盘时刷新最近使用时间。
func (b *BufferedDiskCache) Probe(key string) bool {
	return b.staging.Contains(key) || b.cache.Probe(key)
}

// Remove 同时从暂存区与磁盘删除 key。
func (b *BufferedDiskCache) Remove(key string) {
	b.staging.Remove(key)
	b.cache.Remove(key)
}

// ClearAll 清空暂存区与磁盘。
func (b *BufferedDiskCache) ClearAll() {
	b.staging.ClearAll()
	b.cache.ClearAll()
}

// Wait 阻塞直到已调度的写盘全部完成。
func (b *BufferedDiskCache) Wait() error {
	return b.writers.Wait()
}
