package references

import (
	"sync/atomic"
)

// Options 控制 Manager 创建句柄的方式。
type Options struct {
	// BitmapPolicy 仅作用于位图类的值，其余值固定为 PolicyDefault。
	BitmapPolicy Policy
	// Registry 为 nil 时不登记存活对象。
	Registry *LiveObjects
	// LeakHandler 为 nil 时写入 logrus 标准 logger。
	LeakHandler LeakHandler
	// CaptureTraces 开启后在创建/克隆时记录调用栈，用于泄漏报告。
	CaptureTraces bool
}

// Manager 取代进程级静态开关：策略、注册表与泄漏处理均通过它注入，
// 测试可以创建互不干扰的实例。
type Manager struct {
	bitmapPolicy  Policy
	registry      *LiveObjects
	leaks         LeakHandler
	captureTraces bool
}

// NewManager 根据 Options 构建 Manager。
func NewManager(opts Options) *Manager {
	leaks := opts.LeakHandler
	if leaks == nil {
		leaks = NewLogrusLeakHandler(nil)
	}
	return &Manager{
		bitmapPolicy:  opts.BitmapPolicy,
		registry:      opts.Registry,
		leaks:         leaks,
		captureTraces: opts.CaptureTraces,
	}
}

var defaultManager atomic.Pointer[Manager]

func init() {
	defaultManager.Store(NewManager(Options{Registry: DefaultLiveObjects()}))
}

// Default 返回进程级默认 Manager。
func Default() *Manager {
	return defaultManager.Load()
}

// SetDefault 替换进程级默认 Manager；传入 nil 时忽略。
func SetDefault(m *Manager) {
	if m != nil {
		defaultManager.Store(m)
	}
}

// BitmapPolicy 返回位图类值采用的策略。
func (m *Manager) BitmapPolicy() Policy {
	return m.bitmapPolicy
}

// Registry 返回存活对象注册表，可能为 nil。
func (m *Manager) Registry() *LiveObjects {
	return m.registry
}

// policyFor 对值分类：只有位图类的值才使用配置的策略。
func (m *Manager) policyFor(value any) Policy {
	if isBitmap(value) {
		return m.bitmapPolicy
	}
	return PolicyDefault
}

// registryFor 在 GC 托管（finalizer/noop）策略下跳过位图类值的登记。
func (m *Manager) registryFor(policy Policy) *LiveObjects {
	if policy == PolicyFinalizer || policy == PolicyNoOp {
		return nil
	}
	return m.registry
}
