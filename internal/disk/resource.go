package disk

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"
)

// FileResource 是落在磁盘上的二进制资源（正文或临时文件）。
type FileResource struct {
	path string
}

// NewFileResource 以绝对路径构建资源。
func NewFileResource(path string) *FileResource {
	return &FileResource{path: path}
}

// Path 返回文件路径。
func (r *FileResource) Path() string {
	return r.path
}

// Size 返回当前文件大小；文件不存在时返回 -1。
func (r *FileResource) Size() int64 {
	info, err := os.Stat(r.path)
	if err != nil {
		return -1
	}
	return info.Size()
}

// Open 以只读方式打开资源，调用方负责关闭。
func (r *FileResource) Open() (*os.File, error) {
	return os.Open(r.path)
}

// Read 读取完整内容。
func (r *FileResource) Read() ([]byte, error) {
	return os.ReadFile(r.path)
}

// WriteTo 将内容流式写入 w。
func (r *FileResource) WriteTo(w io.Writer) (int64, error) {
	f, err := r.Open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

func (r *FileResource) exists() bool {
	info, err := os.Stat(r.path)
	return err == nil && !info.IsDir()
}

// Entry 描述一条已提交的缓存记录。Size 与 Timestamp 在首次读取时从
// 文件系统计算并缓存，此后保持不变。
type Entry struct {
	id       string
	resource *FileResource

	sizeOnce sync.Once
	size     int64

	timeOnce  sync.Once
	timestamp time.Time
}

func newEntry(id string, path string) *Entry {
	return &Entry{id: id, resource: NewFileResource(path)}
}

// ID 返回资源 ID。
func (e *Entry) ID() string { return e.id }

// Resource 返回正文资源。
func (e *Entry) Resource() *FileResource { return e.resource }

// Size 返回首次读取时的文件大小。
func (e *Entry) Size() int64 {
	e.sizeOnce.Do(func() {
		e.size = e.resource.Size()
	})
	return e.size
}

// Timestamp 返回首次读取时的文件修改时间；文件已不存在时为零值。
func (e *Entry) Timestamp() time.Time {
	e.timeOnce.Do(func() {
		info, err := os.Stat(e.resource.path)
		if err == nil {
			e.timestamp = info.ModTime()
		}
	})
	return e.timestamp
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
