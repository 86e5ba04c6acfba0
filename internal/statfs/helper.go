// Package statfs 提供带缓存的可用磁盘空间探测，供磁盘缓存选择容量上限。
package statfs

import (
	"sync"
	"sync/atomic"
	"time"
)

// RestatInterval 两次 statfs 系统调用之间的最短间隔。
const RestatInterval = 2 * time.Minute

// StatFunc 返回 path 所在文件系统对非特权用户可用的字节数。
type StatFunc func(path string) (uint64, error)

// Helper 缓存某个目录所在文件系统的可用空间。
type Helper struct {
	path string
	stat StatFunc
	now  func() time.Time

	mu       sync.Mutex
	lastStat time.Time
	stated   bool

	available atomic.Int64
}

// Option 调整 Helper 的可注入依赖。
type Option func(*Helper)

// WithStatFunc 替换底层探测函数，主要用于测试。
func WithStatFunc(fn StatFunc) Option {
	return func(h *Helper) { h.stat = fn }
}

// WithNow 替换时间来源。
func WithNow(now func() time.Time) Option {
	return func(h *Helper) { h.now = now }
}

// NewHelper 为 path 创建 Helper；首次查询时才会真正执行 statfs。
func NewHelper(path string, opts ...Option) *Helper {
	h := &Helper{path: path, stat: availableBytes, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Path 返回被探测的目录。
func (h *Helper) Path() string {
	return h.path
}

// AvailableBytes 返回缓存的可用空间；距上次探测超过 RestatInterval 时刷新。
// 探测失败时返回 0。
func (h *Helper) AvailableBytes() int64 {
	h.maybeUpdate()
	return h.available.Load()
}

// TestLowDiskSpace 在可用空间低于 threshold 或无法获知时返回 true。
func (h *Helper) TestLowDiskSpace(threshold int64) bool {
	available := h.AvailableBytes()
	if available > 0 {
		return available < threshold
	}
	return true
}

// Reset 立即重新探测。其它 goroutine 正在刷新时直接返回。
func (h *Helper) Reset() {
	if !h.mu.TryLock() {
		return
	}
	defer h.mu.Unlock()
	h.update()
}

func (h *Helper) maybeUpdate() {
	if !h.mu.TryLock() {
		return
	}
	defer h.mu.Unlock()
	if !h.stated || h.now().Sub(h.lastStat) > RestatInterval {
		h.update()
	}
}

func (h *Helper) update() {
	avail, err := h.stat(h.path)
	if err != nil {
		avail = 0
	}
	h.available.Store(int64(avail))
	h.lastStat = h.now()
	h.stated = true
}
