package cache

import "sync"

// StagingArea 保存已被接受、但尚未写入磁盘的缓冲区。读路径先查这里，
// 因此写入期间的数据对读者立即可见。区内每个条目持有一份独立的引用。
type StagingArea struct {
	mu      sync.Mutex
	entries map[string]*BufferRef
}

// NewStagingArea 创建空的暂存区。
func NewStagingArea() *StagingArea {
	return &StagingArea{entries: make(map[string]*BufferRef)}
}

// Put 暂存 ref 的克隆，替换并关闭同 key 的旧条目。
func (s *StagingArea) Put(key string, ref *BufferRef) {
	clone := ref.Clone()
	s.mu.Lock()
	old := s.entries[key]
	s.entries[key] = clone
	s.mu.Unlock()
	old.Close()
}

// Get 返回暂存条目的克隆，不存在或已失效时返回 nil。
func (s *StagingArea) Get(key string) *BufferRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.entries[key]
	if !ok {
		return nil
	}
	clone := stored.CloneOrNil()
	if clone == nil {
		delete(s.entries, key)
		stored.Close()
	}
	return clone
}

// Contains 判断 key 是否有有效的暂存条目。
func (s *StagingArea) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.entries[key]
	return ok && stored.IsValid()
}

// Remove 删除并关闭 key 的暂存条目。
func (s *StagingArea) Remove(key string) bool {
	s.mu.Lock()
	stored, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	stored.Close()
	return ok
}

// RemoveIfMatch 仅在暂存条目与 ref 指向同一份数据时删除，
// 避免较早的写入完成后误删较新的暂存数据。
func (s *StagingArea) RemoveIfMatch(key string, ref *BufferRef) bool {
	if ref == nil {
		return false
	}
	s.mu.Lock()
	stored, ok := s.entries[key]
	if !ok || stored.Underlying() != ref.Underlying() {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, key)
	s.mu.Unlock()
	stored.Close()
	return true
}

// Holds 判断 key 的暂存条目是否仍与 ref 指向同一份数据。
func (s *StagingArea) Holds(key string, ref *BufferRef) bool {
	if ref == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.entries[key]
	return ok && stored.Underlying() == ref.Underlying()
}

// ClearAll 关闭并清空所有暂存条目。
func (s *StagingArea) ClearAll() {
	s.mu.Lock()
	old := s.entries
	s.entries = make(map[string]*BufferRef)
	s.mu.Unlock()
	for _, ref := range old {
		ref.Close()
	}
}

// Len 返回暂存条目数量。
func (s *StagingArea) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
