package references

import "io"

// ResourceReleaser 负责释放 SharedReference 持有的值。实现不得 panic，
// 且每个值只会在引用计数归零时被调用一次。
type ResourceReleaser[T any] interface {
	Release(value T)
}

// ReleaserFunc 将普通函数适配为 ResourceReleaser。
type ReleaserFunc[T any] func(value T)

// Release 让 ReleaserFunc 满足 ResourceReleaser。
func (f ReleaserFunc[T]) Release(value T) {
	f(value)
}

// CloserReleaser 返回调用 Close 的释放器；Close 的错误被吞掉，
// 因为释放路径上没有调用方可以处理它。
func CloserReleaser[T io.Closer]() ResourceReleaser[T] {
	return ReleaserFunc[T](func(value T) {
		defer func() { _ = recover() }()
		_ = value.Close()
	})
}

// NoOpReleaser 什么都不做，适用于生命周期由外部管理的值。
func NoOpReleaser[T any]() ResourceReleaser[T] {
	return ReleaserFunc[T](func(T) {})
}
