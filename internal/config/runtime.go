package config

import (
	"time"

	"github.com/any-hub/imagecache/internal/cache"
	"github.com/any-hub/imagecache/internal/disk"
	"github.com/any-hub/imagecache/internal/references"
)

// DiskCacheConfig 将全局配置映射为磁盘存储配置；logger/clock 由调用方注入。
func (c *Config) DiskCacheConfig(logger disk.CacheErrorLogger, clock disk.Clock) disk.DiskCacheConfig {
	g := c.Global
	return disk.DiskCacheConfig{
		Version:                        g.CacheVersion,
		BaseDirectoryName:              g.BaseDirectoryName,
		BaseDirectoryPath:              g.StoragePath,
		MaxCacheSize:                   g.MaxCacheSize.Int64(),
		MaxCacheSizeOnLowDiskSpace:     g.MaxCacheSizeOnLowDiskSpace.Int64(),
		MaxCacheSizeOnVeryLowDiskSpace: g.MaxCacheSizeOnVeryLowDiskSpace.Int64(),
		BucketCount:                    g.BucketCount,
		Disabled:                       g.CacheDisabled,
		Logger:                         logger,
		Clock:                          clock,
	}
}

// CacheParams 返回三档容量上限。
func (c *Config) CacheParams() cache.Params {
	g := c.Global
	return cache.Params{
		Minimum:      g.MaxCacheSizeOnVeryLowDiskSpace.Int64(),
		LowDiskSpace: g.MaxCacheSizeOnLowDiskSpace.Int64(),
		Default:      g.MaxCacheSize.Int64(),
	}
}

// MaintenanceSchedule 返回后台维护的执行间隔与条目最大年龄（0 表示不按年龄清理）。
func (c *Config) MaintenanceSchedule() (interval, maxAge time.Duration) {
	return c.Global.MaintenanceInterval.DurationValue(), c.Global.MaxEntryAge.DurationValue()
}

// ReferenceOptions 构建 references.Manager 的选项；leaks 为 nil 时使用默认处理器。
func (c *Config) ReferenceOptions(leaks references.LeakHandler) references.Options {
	opts := references.Options{
		BitmapPolicy:  c.ReferencePolicy(),
		LeakHandler:   leaks,
		CaptureTraces: c.Global.CaptureLeakTraces,
	}
	if c.Global.TrackLiveObjects {
		opts.Registry = references.NewLiveObjects()
	}
	return opts
}
