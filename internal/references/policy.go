package references

import (
	"fmt"
	"strings"
)

// Policy 描述 CloseableReference 的生命周期策略。
type Policy int

const (
	// PolicyDefault 正常引用计数，未关闭即被回收时记录泄漏并兜底释放。
	PolicyDefault Policy = iota
	// PolicyFinalizer 不计数：Clone 返回自身、Close 不释放，值在句柄被回收时释放。
	PolicyFinalizer
	// PolicyRefCount 纯显式引用计数，不挂载回收钩子。
	PolicyRefCount
	// PolicyNoOp 完全关闭追踪：始终有效，永不释放。
	PolicyNoOp
)

func (p Policy) String() string {
	switch p {
	case PolicyDefault:
		return "default"
	case PolicyFinalizer:
		return "finalizer"
	case PolicyRefCount:
		return "refcount"
	case PolicyNoOp:
		return "noop"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// counted 表示该策略下 Clone/Close 是否会改变共享引用计数。
func (p Policy) counted() bool {
	return p == PolicyDefault || p == PolicyRefCount
}

// ParsePolicy 将配置中的字符串转换为 Policy，空串视为 default。
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default":
		return PolicyDefault, nil
	case "finalizer":
		return PolicyFinalizer, nil
	case "refcount", "ref-count":
		return PolicyRefCount, nil
	case "noop", "no-op":
		return PolicyNoOp, nil
	default:
		return PolicyDefault, fmt.Errorf("unknown reference policy: %s", raw)
	}
}

// Bitmap 由“位图类”资源实现。只有位图类的值才会采用 Manager 配置的
// 非默认策略，其余值始终使用 PolicyDefault。
type Bitmap interface {
	IsBitmap() bool
}

func isBitmap(value any) bool {
	b, ok := value.(Bitmap)
	return ok && b.IsBitmap()
}
