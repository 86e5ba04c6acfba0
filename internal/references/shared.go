package references

import (
	"errors"
	"sync"
)

var (
	// ErrNullReference 表示对已归零的 SharedReference 执行了增减引用。
	ErrNullReference = errors.New("null shared reference")
	// ErrReferenceClosed 表示访问或克隆了已关闭的 CloseableReference。
	ErrReferenceClosed = errors.New("closeable reference already closed")
	// ErrNilReleaser 表示构造 SharedReference 时未提供释放器。
	ErrNilReleaser = errors.New("resource releaser required")
)

// SharedReference 持有唯一的值与引用计数。计数从 1 开始，归零时
// 值被释放且清空，之后不可再复活。
type SharedReference[T any] struct {
	mu       sync.Mutex
	value    T
	refCount int

	releaser ResourceReleaser[T]
	registry *LiveObjects
}

// NewSharedReference 以引用计数 1 包装 value。registry 为 nil 时跳过存活对象登记。
func NewSharedReference[T any](value T, releaser ResourceReleaser[T], registry *LiveObjects) *SharedReference[T] {
	if releaser == nil {
		panic(ErrNilReleaser)
	}
	registry.Add(value)
	return &SharedReference[T]{
		value:    value,
		refCount: 1,
		releaser: releaser,
		registry: registry,
	}
}

// Get 返回当前值；引用计数为 0 时返回零值与 false。
func (r *SharedReference[T]) Get() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount <= 0 {
		var zero T
		return zero, false
	}
	return r.value, true
}

// IsValid 判断引用计数是否大于 0。
func (r *SharedReference[T]) IsValid() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refCount > 0
}

// AddReference 增加一次引用；对已失效的引用调用属于编程错误，直接 panic。
func (r *SharedReference[T]) AddReference() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount <= 0 {
		panic(ErrNullReference)
	}
	r.refCount++
}

// AddReferenceIfValid 与 AddReference 相同，但引用已失效时返回 false 而不 panic。
func (r *SharedReference[T]) AddReferenceIfValid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount <= 0 {
		return false
	}
	r.refCount++
	return true
}

// DeleteReference 减少一次引用，归零时在锁外调用释放器。
func (r *SharedReference[T]) DeleteReference() {
	value, released := r.decrease()
	if !released {
		return
	}
	r.releaser.Release(value)
	r.registry.Remove(value)
}

func (r *SharedReference[T]) decrease() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount <= 0 {
		panic(ErrNullReference)
	}
	r.refCount--
	var zero T
	if r.refCount > 0 {
		return zero, false
	}
	value := r.value
	r.value = zero
	return value, true
}

// RefCount 返回当前引用计数，仅用于诊断与测试。
func (r *SharedReference[T]) RefCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refCount
}
