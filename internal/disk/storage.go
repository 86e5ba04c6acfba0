package disk

import (
	"io"
	"time"
)

// WriterCallback 负责把完整的资源内容写入 w；存储层会统计写入字节数并
// 与最终文件长度比对。
type WriterCallback func(w io.Writer) error

// Inserter 封装一次“临时文件 → 写入 → 提交”的插入流程。
type Inserter interface {
	// WriteData 通过回调写入临时文件。
	WriteData(cb WriterCallback) error
	// Commit 将临时文件原子地发布为正文文件，并以当前时间刷新 mtime。
	Commit() (*FileResource, error)
	// CommitAt 与 Commit 相同，但使用给定时间作为 mtime。
	CommitAt(t time.Time) (*FileResource, error)
	// CleanUp 删除尚未提交的临时文件；文件已不存在也视为成功。
	CleanUp() bool
}

// DiskStorage 是按资源 ID 存取字节的持久化存储。
//
// 状态流转：Absent → Temporary → Content → Absent。同一 ID 不会同时存在两个
// 正文文件；并发提交时后提交者覆盖先提交者。
type DiskStorage interface {
	// IsEnabled 为 false 时所有写操作都是空操作。
	IsEnabled() bool
	IsExternal() bool
	StorageName() string

	// CreateTemporary 在资源所属分片下创建唯一命名的临时文件，必要时创建分片目录。
	CreateTemporary(resourceID string) (*FileResource, error)
	// UpdateResource 打开已存在的 resource 写入回调内容，并校验写入长度。
	UpdateResource(resourceID string, resource *FileResource, cb WriterCallback) error
	// Commit 通过同文件系统 rename 将临时文件发布为正文文件。
	Commit(resourceID string, temporary *FileResource) (*FileResource, error)
	// Insert 返回封装了临时文件的 Inserter。
	Insert(resourceID string) (Inserter, error)

	// GetResource 返回正文文件并刷新其 mtime；不存在时返回 false。
	GetResource(resourceID string) (*FileResource, bool)
	// Contains 判断正文文件是否存在，不刷新 mtime。
	Contains(resourceID string) bool
	// Touch 判断正文文件是否存在，存在时刷新 mtime。
	Touch(resourceID string) bool

	// Remove 删除正文文件：成功返回文件大小，不存在返回 0，删除失败返回 -1。
	Remove(resourceID string) int64
	// RemoveEntry 删除 Entries 返回的条目，返回值语义同 Remove。
	RemoveEntry(entry *Entry) int64

	// Entries 列出版本目录下所有可识别的正文文件。
	Entries() ([]*Entry, error)
	// PurgeUnexpectedResources 清理版本目录外的一切、错误分片中的文件与过期临时文件。
	PurgeUnexpectedResources()
	// ClearAll 删除根目录下的全部内容，保留根目录本身。
	ClearAll() error
	// DumpInfo 输出条目明细，用于诊断。
	DumpInfo() (*DumpInfo, error)
}

// DumpInfoEntry 是 DumpInfo 中的单条记录。
type DumpInfoEntry struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
	FirstBits string `json:"first_bits,omitempty"`
}

// DumpInfo 汇总存储中的条目及按图片类型的计数。
type DumpInfo struct {
	Entries    []DumpInfoEntry `json:"entries"`
	TypeCounts map[string]int  `json:"type_counts"`
}
