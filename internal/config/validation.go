package config

import (
	"errors"
	"strings"

	"github.com/any-hub/imagecache/internal/references"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError(globalField("ListenPort"), "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError(globalField("StoragePath"), "不能为空")
	}
	if name := strings.TrimSpace(g.BaseDirectoryName); name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return newFieldError(globalField("BaseDirectoryName"), "必须是单级目录名")
	}
	if g.CacheVersion < 0 {
		return newFieldError(globalField("CacheVersion"), "不能为负数")
	}
	if g.BucketCount <= 0 {
		return newFieldError(globalField("BucketCount"), "必须大于 0")
	}
	if g.MaxCacheSizeOnVeryLowDiskSpace <= 0 {
		return newFieldError(globalField("MaxCacheSizeOnVeryLowDiskSpace"), "必须大于 0")
	}
	if g.MaxCacheSizeOnLowDiskSpace < g.MaxCacheSizeOnVeryLowDiskSpace {
		return newFieldError(globalField("MaxCacheSizeOnLowDiskSpace"), "不能小于 MaxCacheSizeOnVeryLowDiskSpace")
	}
	if g.MaxCacheSize < g.MaxCacheSizeOnLowDiskSpace {
		return newFieldError(globalField("MaxCacheSize"), "不能小于 MaxCacheSizeOnLowDiskSpace")
	}
	if g.MaintenanceInterval.DurationValue() <= 0 {
		return newFieldError(globalField("MaintenanceInterval"), "必须大于 0")
	}
	if g.MaxEntryAge.DurationValue() < 0 {
		return newFieldError(globalField("MaxEntryAge"), "不能为负数")
	}
	if g.WriteWorkers <= 0 {
		return newFieldError(globalField("WriteWorkers"), "必须大于 0")
	}
	if _, err := references.ParsePolicy(g.ReferencePolicy); err != nil {
		return newFieldError(globalField("ReferencePolicy"), "仅支持 default/finalizer/refcount/noop")
	}
	return nil
}
