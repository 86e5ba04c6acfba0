package references

import (
	"reflect"
	"sync"
)

// LiveObjects 记录当前仍被 SharedReference 管理的值（按身份计数的多重集合），
// 仅用于泄漏诊断，不参与所有权判断。
type LiveObjects struct {
	mu      sync.Mutex
	objects map[identity]int
	total   int
}

type identity struct {
	typ reflect.Type
	ptr uintptr
	val any
}

// NewLiveObjects 构建一个独立的注册表，测试中可按需创建以避免相互污染。
func NewLiveObjects() *LiveObjects {
	return &LiveObjects{objects: make(map[identity]int)}
}

var defaultLiveObjects = NewLiveObjects()

// DefaultLiveObjects 返回进程级默认注册表。
func DefaultLiveObjects() *LiveObjects {
	return defaultLiveObjects
}

// Add 将 value 计入注册表。
func (l *LiveObjects) Add(value any) {
	if l == nil {
		return
	}
	key, ok := identityOf(value)
	if !ok {
		return
	}
	l.mu.Lock()
	l.objects[key]++
	l.total++
	l.mu.Unlock()
}

// Remove 将 value 的计数减一，计数归零时删除条目。
func (l *LiveObjects) Remove(value any) {
	if l == nil {
		return
	}
	key, ok := identityOf(value)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	count, exists := l.objects[key]
	if !exists {
		return
	}
	l.total--
	if count <= 1 {
		delete(l.objects, key)
		return
	}
	l.objects[key] = count - 1
}

// Count 返回 value 当前被多少个 SharedReference 管理。
func (l *LiveObjects) Count(value any) int {
	if l == nil {
		return 0
	}
	key, ok := identityOf(value)
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.objects[key]
}

// Len 返回不同值的个数。
func (l *LiveObjects) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.objects)
}

// Total 返回所有值的计数之和。
func (l *LiveObjects) Total() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// identityOf 对指针类的值使用地址作为身份，其余可比较的值直接使用值本身。
// 不可比较的非指针值无法追踪，返回 false。
func identityOf(value any) (identity, bool) {
	if value == nil {
		return identity{}, false
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func:
		return identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.Len() == 0 && rv.Cap() == 0 {
			return identity{}, false
		}
		return identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	}
	if !rv.Type().Comparable() {
		return identity{}, false
	}
	return identity{typ: rv.Type(), val: value}, true
}
