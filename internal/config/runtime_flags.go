package config

import "github.com/any-hub/imagecache/internal/references"

// ReferencePolicy 字段说明（仅作用于位图类的值，其余值始终按 default 处理）：
// - default：引用计数 + 回收兜底，未关闭的句柄被 GC 时记录泄漏。
// - finalizer：不计数，Close 为空操作，完全依赖 GC 释放；用于排查重复关闭。
// - refcount：纯显式引用计数，不挂载回收钩子，开销最低。
// - noop：关闭追踪，永不释放；仅用于性能对比。
// 未填写时为 default。

// ReferencePolicy 返回标准化后的策略；Validate 已保证其合法，非法值回退 default。
func (c *Config) ReferencePolicy() references.Policy {
	policy, err := references.ParsePolicy(c.Global.ReferencePolicy)
	if err != nil {
		return references.PolicyDefault
	}
	return policy
}
