package references

import (
	"fmt"
	"io"
	"reflect"
	"runtime"
	"runtime/debug"
	"sync"
)

// CloseableReference 是对外暴露的句柄。多个句柄可以指向同一个 SharedReference；
// 计数类策略下每个句柄持有一份引用计数。
//
// Close 是幂等的。关闭后 Get/Clone 会 panic，CloneOrNil 返回 nil。
type CloseableReference[T any] struct {
	mu sync.Mutex
	// closed 单调置位。finalizer 策略下表示调用方已请求关闭，但不会释放。
	closed bool

	shared  *SharedReference[T]
	policy  Policy
	leaks   LeakHandler
	capture bool
	trace   string
}

// Of 使用 m 选择的策略包装 value；value 为 nil 时返回 nil。m 为 nil 时使用 Default()。
func Of[T any](m *Manager, value T, releaser ResourceReleaser[T]) *CloseableReference[T] {
	if m == nil {
		m = Default()
	}
	return OfWithLeakHandler(m, value, releaser, m.leaks)
}

// OfWithLeakHandler 与 Of 相同，但使用调用方提供的泄漏处理器。
func OfWithLeakHandler[T any](m *Manager, value T, releaser ResourceReleaser[T], leaks LeakHandler) *CloseableReference[T] {
	if isNil(value) {
		return nil
	}
	if m == nil {
		m = Default()
	}
	if leaks == nil {
		leaks = m.leaks
	}
	policy := m.policyFor(value)
	shared := NewSharedReference(value, releaser, m.registryFor(policy))
	return newHandle(shared, policy, leaks, m.captureTraces)
}

// OfCloser 包装实现了 io.Closer 的值，释放时调用其 Close。
func OfCloser[T io.Closer](m *Manager, value T) *CloseableReference[T] {
	return Of(m, value, CloserReleaser[T]())
}

// newHandle 假设调用方已为该句柄预留了一份引用计数。
func newHandle[T any](shared *SharedReference[T], policy Policy, leaks LeakHandler, capture bool) *CloseableReference[T] {
	ref := &CloseableReference[T]{
		shared:  shared,
		policy:  policy,
		leaks:   leaks,
		capture: capture,
	}
	ref.trace = ref.captureTrace()
	if policy == PolicyDefault || policy == PolicyFinalizer {
		runtime.SetFinalizer(ref, (*CloseableReference[T]).finalize)
	}
	return ref
}

// Get 返回底层值。句柄已关闭时 panic。
func (r *CloseableReference[T]) Get() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed && r.policy.counted() {
		panic(ErrReferenceClosed)
	}
	value, ok := r.shared.Get()
	if !ok {
		panic(ErrReferenceClosed)
	}
	return value
}

// IsValid 计数类策略下等价于“未关闭”；noop 始终有效；
// finalizer 策略在值被回收前始终有效。
func (r *CloseableReference[T]) IsValid() bool {
	if r == nil {
		return false
	}
	switch r.policy {
	case PolicyNoOp:
		return true
	case PolicyFinalizer:
		return r.shared.IsValid()
	default:
		r.mu.Lock()
		defer r.mu.Unlock()
		return !r.closed
	}
}

// Clone 返回新的句柄。计数类策略会增加共享计数并返回独立句柄；
// finalizer/noop 策略直接返回自身。对已关闭的句柄调用会 panic。
func (r *CloseableReference[T]) Clone() *CloseableReference[T] {
	clone := r.CloneOrNil()
	if clone == nil {
		panic(ErrReferenceClosed)
	}
	return clone
}

// CloneOrNil 与 Clone 相同，但句柄无效时返回 nil。
func (r *CloseableReference[T]) CloneOrNil() *CloseableReference[T] {
	if r == nil {
		return nil
	}
	switch r.policy {
	case PolicyNoOp:
		return r
	case PolicyFinalizer:
		if !r.shared.IsValid() {
			return nil
		}
		return r
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if !r.shared.AddReferenceIfValid() {
		return nil
	}
	return newHandle(r.shared, r.policy, r.leaks, r.capture)
}

// Close 释放该句柄持有的一份引用，重复调用无副作用。
// finalizer/noop 策略下不会释放底层值。
func (r *CloseableReference[T]) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	if r.policy.counted() {
		r.shared.DeleteReference()
	}
}

// Policy 返回该句柄的生命周期策略。
func (r *CloseableReference[T]) Policy() Policy {
	return r.policy
}

// ValueHash 返回底层值的身份标识（指针地址），仅用于日志与追踪；无效时返回 0。
func (r *CloseableReference[T]) ValueHash() uintptr {
	if !r.IsValid() {
		return 0
	}
	value, ok := r.shared.Get()
	if !ok {
		return 0
	}
	return valueHash(value)
}

// SetRelevantTrace 覆盖泄漏报告中使用的调用栈。
func (r *CloseableReference[T]) SetRelevantTrace(trace string) {
	r.mu.Lock()
	r.trace = trace
	r.mu.Unlock()
}

// Underlying 返回共享引用，可用于判断两个句柄是否指向同一份数据。
func (r *CloseableReference[T]) Underlying() *SharedReference[T] {
	return r.shared
}

func (r *CloseableReference[T]) captureTrace() string {
	if !r.capture {
		return ""
	}
	return string(debug.Stack())
}

// finalize 在句柄被 GC 回收时运行。
func (r *CloseableReference[T]) finalize() {
	r.mu.Lock()
	closed := r.closed
	r.closed = true
	trace := r.trace
	r.mu.Unlock()

	value, ok := r.shared.Get()
	if !closed && ok && r.leaks != nil {
		r.leaks.ReportLeak(LeakReport{
			ValueType: fmt.Sprintf("%T", value),
			Policy:    r.policy,
			ValueHash: valueHash(value),
			Trace:     trace,
		})
	}

	switch r.policy {
	case PolicyDefault:
		if !closed {
			r.shared.DeleteReference()
		}
	case PolicyFinalizer:
		if ok {
			r.shared.DeleteReference()
		}
	}
}

// IsValidRef 判断 ref 非 nil 且有效。
func IsValidRef[T any](ref *CloseableReference[T]) bool {
	return ref != nil && ref.IsValid()
}

// CloneOrNil 允许对 nil 句柄调用。
func CloneOrNil[T any](ref *CloseableReference[T]) *CloseableReference[T] {
	if ref == nil {
		return nil
	}
	return ref.CloneOrNil()
}

// CloneOrNilAll 逐个克隆；已关闭的句柄在结果中对应位置为 nil，不影响其它元素。
// refs 为 nil 时返回 nil。
func CloneOrNilAll[T any](refs []*CloseableReference[T]) []*CloseableReference[T] {
	if refs == nil {
		return nil
	}
	out := make([]*CloseableReference[T], len(refs))
	for i, ref := range refs {
		out[i] = CloneOrNil(ref)
	}
	return out
}

// CloseSafely 允许对 nil 句柄调用。
func CloseSafely[T any](ref *CloseableReference[T]) {
	if ref != nil {
		ref.Close()
	}
}

// CloseAllSafely 关闭切片中的全部句柄，容忍 nil 元素与空切片。
func CloseAllSafely[T any](refs []*CloseableReference[T]) {
	for _, ref := range refs {
		CloseSafely(ref)
	}
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

func valueHash(value any) uintptr {
	key, ok := identityOf(value)
	if !ok {
		return 0
	}
	return key.ptr
}
