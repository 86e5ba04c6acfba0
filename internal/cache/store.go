package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	"github.com/any-hub/imagecache/internal/disk"
)

// FileCache 是以任意字符串为 key 的磁盘缓存。key 会被映射为固定长度的资源 ID，
// 因此调用方可以直接使用 URL 等包含分隔符的字符串。
type FileCache interface {
	// Resource 返回命中的正文资源并刷新其最近使用时间。
	Resource(key string) (*disk.FileResource, bool)
	// Probe 判断 key 是否存在，存在时刷新最近使用时间。
	Probe(key string) bool
	// HasKey 判断 key 是否存在，不影响淘汰顺序。
	HasKey(key string) bool
	// Insert 通过临时文件 + rename 写入，成功后返回正文资源。
	Insert(key string, cb disk.WriterCallback) (*disk.FileResource, error)
	// Remove 删除 key 对应的正文。
	Remove(key string)
	// ClearOldEntries 删除年龄不小于 maxAge 的条目，返回剩余条目中的最大年龄。
	ClearOldEntries(maxAge time.Duration) time.Duration
	ClearAll()
	IsEnabled() bool
}

// Stats 是缓存的运行时快照，Size/Count 在尚未统计时为 -1。
type Stats struct {
	Size         int64 `json:"size"`
	Count        int64 `json:"count"`
	SizeLimit    int64 `json:"size_limit"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Writes       int64 `json:"writes"`
	WriteErrors  int64 `json:"write_errors"`
	ReadErrors   int64 `json:"read_errors"`
	Evictions    int64 `json:"evictions"`
	EvictedBytes int64 `json:"evicted_bytes"`
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// ResourceID 把任意 key 映射为可直接用作文件名的资源 ID（SHA-1 十六进制）。
func ResourceID(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
