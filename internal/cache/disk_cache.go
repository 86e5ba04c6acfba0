package cache

import (
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imagecache/internal/disk"
)

const (
	// FutureTimestampThreshold 之后的 mtime 视为异常，淘汰时排在最前。
	FutureTimestampThreshold = 2 * time.Hour
	// SizeUpdatePeriod 定期全量重算缓存大小，纠正增量统计的漂移。
	SizeUpdatePeriod = 30 * time.Minute
	// trimmingLowerBound 以下的裁剪比例直接忽略。
	trimmingLowerBound = 0.02

	cacheTag = "DiskStorageCache"
)

// EvictionReason 标识一次批量删除的来源，用于日志。
type EvictionReason string

const (
	EvictionCacheFull      EvictionReason = "cache_full"
	EvictionContentStale   EvictionReason = "content_stale"
	EvictionManagerTrimmed EvictionReason = "cache_manager_trimmed"
)

// Params 三档容量上限：Default 为常规上限，磁盘空间不足时降为 LowDiskSpace，
// TrimToMinimum 时裁剪到 Minimum。
type Params struct {
	Minimum      int64
	LowDiskSpace int64
	Default      int64
}

// LowDiskSpaceTester 报告可用空间是否低于阈值，通常由 statfs.Helper 实现。
type LowDiskSpaceTester interface {
	TestLowDiskSpace(threshold int64) bool
}

// Options 为 DiskStorageCache 注入可替换的依赖。零值可用。
type Options struct {
	ErrorLogger disk.CacheErrorLogger
	Clock       disk.Clock
	// DiskSpace 为 nil 时始终使用 Params.Default。
	DiskSpace LowDiskSpaceTester
	Logger    *logrus.Logger
}

// DiskStorageCache 在 DiskStorage 之上维护大小统计与淘汰。所有读写都经由
// supplier 获取存储实例，因此根目录被外部删除后能自动恢复。
type DiskStorageCache struct {
	supplier disk.DiskStorageSupplier
	params   Params

	errors disk.CacheErrorLogger
	clock  disk.Clock
	space  LowDiskSpaceTester
	logger *logrus.Logger

	mu             sync.Mutex
	sizeLimit      int64
	sizeUpdatedAt  time.Time
	sizeCalculated bool
	stats          sizeStats

	keyMu sync.Mutex
	locks map[string]*entryLock

	hits, misses, writes, writeErrors, readErrors atomic.Int64
	evictions, evictedBytes                       atomic.Int64
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewDiskStorageCache 基于 supplier 构建缓存。
func NewDiskStorageCache(supplier disk.DiskStorageSupplier, params Params, opts Options) (*DiskStorageCache, error) {
	if supplier == nil {
		return nil, fmt.Errorf("disk storage supplier required")
	}
	if params.Default <= 0 {
		return nil, fmt.Errorf("default size limit must be positive")
	}
	if params.LowDiskSpace <= 0 || params.LowDiskSpace > params.Default {
		params.LowDiskSpace = params.Default
	}
	c := &DiskStorageCache{
		supplier:  supplier,
		params:    params,
		errors:    opts.ErrorLogger,
		clock:     opts.Clock,
		space:     opts.DiskSpace,
		logger:    opts.Logger,
		sizeLimit: params.Default,
		locks:     make(map[string]*entryLock),
	}
	if c.errors == nil {
		c.errors = disk.NoOpCacheErrorLogger{}
	}
	if c.clock == nil {
		c.clock = disk.SystemClock{}
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	c.stats.reset()
	return c, nil
}

func (c *DiskStorageCache) IsEnabled() bool {
	storage, err := c.supplier.Get()
	return err == nil && storage.IsEnabled()
}

// DumpInfo 返回当前存储的条目明细。
func (c *DiskStorageCache) DumpInfo() (*disk.DumpInfo, error) {
	storage, err := c.supplier.Get()
	if err != nil {
		return nil, err
	}
	return storage.DumpInfo()
}

func (c *DiskStorageCache) Resource(key string) (*disk.FileResource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	storage, err := c.supplier.Get()
	if err != nil {
		c.errors.LogError(disk.CategoryGenericIO, cacheTag, "getResource", err)
		c.readErrors.Add(1)
		return nil, false
	}
	resource, ok := storage.GetResource(ResourceID(key))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return resource, ok
}

func (c *DiskStorageCache) Probe(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	storage, err := c.supplier.Get()
	if err != nil {
		c.readErrors.Add(1)
		return false
	}
	return storage.Touch(ResourceID(key))
}

func (c *DiskStorageCache) HasKey(key string) bool {
	storage, err := c.supplier.Get()
	if err != nil {
		return false
	}
	return storage.Contains(ResourceID(key))
}

// Insert 写入前先检查是否需要淘汰。同一 key 的并发写入被串行化，
// 失败时临时文件会被清理。
func (c *DiskStorageCache) Insert(key string, cb disk.WriterCallback) (*disk.FileResource, error) {
	return c.insertIf(key, cb, nil)
}

// insertIf 在拿到 key 的写锁后调用 keep，返回 false 时放弃本次写入。
func (c *DiskStorageCache) insertIf(key string, cb disk.WriterCallback, keep func() bool) (*disk.FileResource, error) {
	unlock := c.lockEntry(key)
	defer unlock()
	if keep != nil && !keep() {
		return nil, nil
	}
	c.writes.Add(1)

	resource, err := c.insert(ResourceID(key), cb)
	if err != nil {
		c.writeErrors.Add(1)
		c.logger.WithFields(logrus.Fields{
			"action":   "cache_insert",
			"key":      key,
			"category": string(disk.CategoryOf(err)),
		}).WithError(err).Debug("failed inserting a file into the cache")
		return nil, err
	}
	return resource, nil
}

// InsertReader 与 Insert 相同，正文来自 r。
func (c *DiskStorageCache) InsertReader(ctx context.Context, key string, r io.Reader) (*disk.FileResource, error) {
	return c.Insert(key, FromReader(ctx, r))
}

func (c *DiskStorageCache) insert(resourceID string, cb disk.WriterCallback) (*disk.FileResource, error) {
	if err := c.maybeEvictFilesInCacheDir(); err != nil {
		return nil, err
	}
	storage, err := c.supplier.Get()
	if err != nil {
		return nil, err
	}
	// 禁用的存储丢弃写入，不计入统计
	if !storage.IsEnabled() {
		return nil, nil
	}
	inserter, err := storage.Insert(resourceID)
	if err != nil {
		return nil, err
	}
	defer c.cleanUp(inserter)

	if err := inserter.WriteData(cb); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	resource, err := inserter.Commit()
	if err != nil || resource == nil {
		return nil, err
	}
	c.stats.increment(resource.Size(), 1)
	return resource, nil
}

func (c *DiskStorageCache) cleanUp(inserter disk.Inserter) {
	if !inserter.CleanUp() {
		c.logger.WithField("action", "cache_insert").Warn("failed to delete temp file")
	}
}

// Remove 等待同一 key 上进行中的写入结束后再删除。
func (c *DiskStorageCache) Remove(key string) {
	unlock := c.lockEntry(key)
	defer unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	storage, err := c.supplier.Get()
	if err != nil {
		c.errors.LogError(disk.CategoryDeleteFile, cacheTag, "delete: "+err.Error(), err)
		return
	}
	if removed := storage.Remove(ResourceID(key)); removed > 0 {
		c.stats.increment(-removed, -1)
	}
}

func (c *DiskStorageCache) ClearOldEntries(maxAge time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	var oldestRemaining time.Duration
	storage, err := c.supplier.Get()
	if err != nil {
		c.errors.LogError(disk.CategoryEviction, cacheTag, "clearOldEntries: "+err.Error(), err)
		return 0
	}
	entries, err := storage.Entries()
	if err != nil {
		c.errors.LogError(disk.CategoryEviction, cacheTag, "clearOldEntries: "+err.Error(), err)
		return 0
	}

	now := c.clock.Now()
	var count int
	var size int64
	for _, entry := range entries {
		age := now.Sub(entry.Timestamp())
		if age < 0 {
			age = -age
		}
		age = max(age, time.Millisecond)
		if age >= maxAge {
			if removed := storage.RemoveEntry(entry); removed > 0 {
				count++
				size += removed
			}
			continue
		}
		oldestRemaining = max(oldestRemaining, age)
	}
	storage.PurgeUnexpectedResources()
	if count > 0 {
		if !c.maybeUpdateFileCacheSize() {
			c.stats.increment(-size, -int64(count))
		}
		c.reportEviction(EvictionContentStale, count, size)
	}
	return oldestRemaining
}

func (c *DiskStorageCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	storage, err := c.supplier.Get()
	if err == nil {
		err = storage.ClearAll()
	}
	if err != nil {
		c.errors.LogError(disk.CategoryEviction, cacheTag, "clearAll: "+err.Error(), err)
	}
	c.stats.reset()
}

// TrimToMinimum 把缓存裁剪到 Params.Minimum 以内。
func (c *DiskStorageCache) TrimToMinimum() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeUpdateFileCacheSize()
	size := c.stats.size
	if c.params.Minimum <= 0 || size <= 0 || size < c.params.Minimum {
		return
	}
	ratio := 1 - float64(c.params.Minimum)/float64(size)
	if ratio > trimmingLowerBound {
		c.trimBy(ratio)
	}
}

// TrimToNothing 清空缓存。
func (c *DiskStorageCache) TrimToNothing() {
	c.ClearAll()
}

func (c *DiskStorageCache) trimBy(ratio float64) {
	c.stats.reset()
	c.maybeUpdateFileCacheSize()
	size := c.stats.size
	target := size - int64(math.Round(ratio*float64(size)))
	if err := c.evictAboveSize(target, EvictionManagerTrimmed); err != nil {
		c.errors.LogError(disk.CategoryEviction, cacheTag, "trimBy: "+err.Error(), err)
	}
}

// Maintain 执行一次周期性维护：按需重算大小、刷新容量上限并淘汰超出部分。
func (c *DiskStorageCache) Maintain() error {
	return c.maybeEvictFilesInCacheDir()
}

// Run 每隔 interval 执行一次 Maintain，直到 ctx 结束。
func (c *DiskStorageCache) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Maintain(); err != nil {
				c.logger.WithField("action", "cache_maintain").WithError(err).Warn("cache maintenance failed")
			}
		}
	}
}

func (c *DiskStorageCache) maybeEvictFilesInCacheDir() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	calculatedNow := c.maybeUpdateFileCacheSize()
	c.updateFileCacheSizeLimit()

	size := c.stats.size
	if size > c.sizeLimit && !calculatedNow {
		// 增量统计可能漂移，超限时先全量重算再决定是否淘汰
		c.stats.reset()
		c.maybeUpdateFileCacheSize()
		size = c.stats.size
	}
	if size > c.sizeLimit {
		return c.evictAboveSize(c.sizeLimit*9/10, EvictionCacheFull)
	}
	return nil
}

func (c *DiskStorageCache) evictAboveSize(desired int64, reason EvictionReason) error {
	storage, err := c.supplier.Get()
	if err != nil {
		return err
	}
	entries, err := storage.Entries()
	if err != nil {
		c.errors.LogError(disk.CategoryEviction, cacheTag, "evictAboveSize: "+err.Error(), err)
		return err
	}
	c.sortForEviction(entries)

	toDelete := c.stats.size - desired
	var count int
	var deleted int64
	for _, entry := range entries {
		if deleted >= toDelete {
			break
		}
		if removed := storage.RemoveEntry(entry); removed > 0 {
			count++
			deleted += removed
		}
	}
	c.stats.increment(-deleted, -int64(count))
	storage.PurgeUnexpectedResources()
	c.reportEviction(reason, count, deleted)
	return nil
}

// sortForEviction 按 mtime 升序排列；超出 now+FutureTimestampThreshold 的条目视为最旧。
func (c *DiskStorageCache) sortForEviction(entries []*disk.Entry) {
	threshold := c.clock.Now().Add(FutureTimestampThreshold)
	key := func(e *disk.Entry) time.Time {
		ts := e.Timestamp()
		if ts.After(threshold) {
			return time.Time{}
		}
		return ts
	}
	slices.SortStableFunc(entries, func(a, b *disk.Entry) int {
		return key(a).Compare(key(b))
	})
}

func (c *DiskStorageCache) updateFileCacheSizeLimit() {
	if c.space != nil && c.space.TestLowDiskSpace(c.params.Default-max(c.stats.size, 0)) {
		c.sizeLimit = c.params.LowDiskSpace
		return
	}
	c.sizeLimit = c.params.Default
}

func (c *DiskStorageCache) maybeUpdateFileCacheSize() bool {
	now := c.clock.Now()
	if c.stats.initialized && c.sizeCalculated && now.Sub(c.sizeUpdatedAt) <= SizeUpdatePeriod {
		return false
	}
	c.calcFileCacheSize()
	c.sizeUpdatedAt = now
	c.sizeCalculated = true
	return true
}

func (c *DiskStorageCache) calcFileCacheSize() {
	storage, err := c.supplier.Get()
	if err != nil {
		c.errors.LogError(disk.CategoryGenericIO, cacheTag, "calcFileCacheSize: "+err.Error(), err)
		return
	}
	entries, err := storage.Entries()
	if err != nil {
		c.errors.LogError(disk.CategoryGenericIO, cacheTag, "calcFileCacheSize: "+err.Error(), err)
		return
	}
	threshold := c.clock.Now().Add(FutureTimestampThreshold)
	var size, future int64
	var futureSize int64
	for _, entry := range entries {
		size += entry.Size()
		if entry.Timestamp().After(threshold) {
			future++
			futureSize += entry.Size()
		}
	}
	if future > 0 {
		c.logger.WithFields(logrus.Fields{
			"action":      "cache_size",
			"count":       future,
			"size":        units.HumanSize(float64(futureSize)),
			"storage_dir": storage.StorageName(),
		}).Warn("future timestamp found in cache entries")
	}
	c.stats.set(size, int64(len(entries)))
}

func (c *DiskStorageCache) reportEviction(reason EvictionReason, count int, size int64) {
	c.evictions.Add(int64(count))
	c.evictedBytes.Add(size)
	c.logger.WithFields(logrus.Fields{
		"action": "cache_evict",
		"reason": string(reason),
		"count":  count,
		"size":   units.HumanSize(float64(size)),
	}).Info("cache entries evicted")
}

// Size 返回当前统计的缓存大小，尚未统计时为 -1。
func (c *DiskStorageCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.size
}

// Count 返回当前统计的条目数，尚未统计时为 -1。
func (c *DiskStorageCache) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.count
}

// SizeLimit 返回最近一次计算出的容量上限。
func (c *DiskStorageCache) SizeLimit() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sizeLimit
}

// Stats 返回计数器快照。
func (c *DiskStorageCache) Stats() Stats {
	c.mu.Lock()
	size, count, limit := c.stats.size, c.stats.count, c.sizeLimit
	c.mu.Unlock()
	return Stats{
		Size:         size,
		Count:        count,
		SizeLimit:    limit,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Writes:       c.writes.Load(),
		WriteErrors:  c.writeErrors.Load(),
		ReadErrors:   c.readErrors.Load(),
		Evictions:    c.evictions.Load(),
		EvictedBytes: c.evictedBytes.Load(),
	}
}

// lockEntry 串行化同一 key 的写入；不同 key 互不阻塞。
func (c *DiskStorageCache) lockEntry(key string) func() {
	c.keyMu.Lock()
	lock := c.locks[key]
	if lock == nil {
		lock = &entryLock{}
		c.locks[key] = lock
	}
	lock.refs++
	c.keyMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		c.keyMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(c.locks, key)
		}
		c.keyMu.Unlock()
	}
}

// sizeStats 由 DiskStorageCache.mu 保护。
type sizeStats struct {
	initialized bool
	size        int64
	count       int64
}

func (s *sizeStats) reset() {
	s.initialized = false
	s.size = -1
	s.count = -1
}

func (s *sizeStats) set(size, count int64) {
	s.size = size
	s.count = count
	s.initialized = true
}

func (s *sizeStats) increment(size, count int64) {
	if s.initialized {
		s.size += size
		s.count += count
	}
}

var _ FileCache = (*DiskStorageCache)(nil)
