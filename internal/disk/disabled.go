package disk

import "time"

// DisabledStorage 在缓存被禁用时替代真实存储：读取永远未命中，写入被丢弃。
type DisabledStorage struct{}

var _ DiskStorage = DisabledStorage{}

func (DisabledStorage) IsEnabled() bool     { return false }
func (DisabledStorage) IsExternal() bool    { return false }
func (DisabledStorage) StorageName() string { return "disabled" }

func (DisabledStorage) CreateTemporary(string) (*FileResource, error) { return nil, nil }

func (DisabledStorage) UpdateResource(string, *FileResource, WriterCallback) error { return nil }

func (DisabledStorage) Commit(string, *FileResource) (*FileResource, error) { return nil, nil }

func (DisabledStorage) Insert(string) (Inserter, error) {
	return disabledInserter{}, nil
}

func (DisabledStorage) GetResource(string) (*FileResource, bool) { return nil, false }
func (DisabledStorage) Contains(string) bool                     { return false }
func (DisabledStorage) Touch(string) bool                        { return false }
func (DisabledStorage) Remove(string) int64                      { return 0 }
func (DisabledStorage) RemoveEntry(*Entry) int64                 { return 0 }
func (DisabledStorage) Entries() ([]*Entry, error)               { return nil, nil }
func (DisabledStorage) PurgeUnexpectedResources()                {}
func (DisabledStorage) ClearAll() error                          { return nil }

func (DisabledStorage) DumpInfo() (*DumpInfo, error) {
	return &DumpInfo{TypeCounts: map[string]int{}}, nil
}

// disabledInserter 吞掉写入；提交返回 nil 资源，调用方据此跳过统计。
type disabledInserter struct{}

func (disabledInserter) WriteData(WriterCallback) error { return nil }

func (disabledInserter) Commit() (*FileResource, error) { return nil, nil }

func (disabledInserter) CommitAt(time.Time) (*FileResource, error) { return nil, nil }

func (disabledInserter) CleanUp() bool { return true }
