package disk

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
)

const (
	DefaultVersion                        = 1
	DefaultBaseDirectoryName              = "image_cache"
	DefaultMaxCacheSize                   = 40 * units.MiB
	DefaultMaxCacheSizeOnLowDiskSpace     = 10 * units.MiB
	DefaultMaxCacheSizeOnVeryLowDiskSpace = 2 * units.MiB
)

// DiskCacheConfig 描述一个磁盘缓存实例：存放位置、目录版本与三档容量上限。
// 存储根目录为 BaseDirectoryPath/BaseDirectoryName。
type DiskCacheConfig struct {
	Version           int
	BaseDirectoryName string
	BaseDirectoryPath string

	MaxCacheSize                   int64
	MaxCacheSizeOnLowDiskSpace     int64
	MaxCacheSizeOnVeryLowDiskSpace int64

	BucketCount int
	Disabled    bool

	Logger CacheErrorLogger
	Clock  Clock
}

// DefaultDiskCacheConfig 返回位于 basePath 下、其余字段取默认值的配置。
func DefaultDiskCacheConfig(basePath string) DiskCacheConfig {
	return DiskCacheConfig{
		Version:                        DefaultVersion,
		BaseDirectoryName:              DefaultBaseDirectoryName,
		BaseDirectoryPath:              basePath,
		MaxCacheSize:                   DefaultMaxCacheSize,
		MaxCacheSizeOnLowDiskSpace:     DefaultMaxCacheSizeOnLowDiskSpace,
		MaxCacheSizeOnVeryLowDiskSpace: DefaultMaxCacheSizeOnVeryLowDiskSpace,
		BucketCount:                    DefaultBucketCount,
	}
}

// RootDirectory 返回存储根目录。
func (c DiskCacheConfig) RootDirectory() string {
	return filepath.Join(c.BaseDirectoryPath, c.BaseDirectoryName)
}

// Validate 检查必填字段与容量档位的大小关系。
func (c DiskCacheConfig) Validate() error {
	if strings.TrimSpace(c.BaseDirectoryPath) == "" {
		return fmt.Errorf("disk cache: base directory path required")
	}
	name := strings.TrimSpace(c.BaseDirectoryName)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("disk cache: invalid base directory name %q", c.BaseDirectoryName)
	}
	if c.BucketCount < 0 {
		return fmt.Errorf("disk cache: bucket count must not be negative")
	}
	if c.MaxCacheSizeOnVeryLowDiskSpace <= 0 {
		return fmt.Errorf("disk cache: very-low-disk size limit must be positive")
	}
	if c.MaxCacheSizeOnLowDiskSpace < c.MaxCacheSizeOnVeryLowDiskSpace {
		return fmt.Errorf("disk cache: low-disk limit %s below very-low-disk limit %s",
			units.BytesSize(float64(c.MaxCacheSizeOnLowDiskSpace)), units.BytesSize(float64(c.MaxCacheSizeOnVeryLowDiskSpace)))
	}
	if c.MaxCacheSize < c.MaxCacheSizeOnLowDiskSpace {
		return fmt.Errorf("disk cache: size limit %s below low-disk limit %s",
			units.BytesSize(float64(c.MaxCacheSize)), units.BytesSize(float64(c.MaxCacheSizeOnLowDiskSpace)))
	}
	return nil
}

func (c DiskCacheConfig) storageOptions() Options {
	return Options{Logger: c.Logger, Clock: c.Clock, BucketCount: c.BucketCount}
}
