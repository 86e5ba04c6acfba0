package cache

import (
	"io"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"github.com/any-hub/imagecache/internal/references"
)

// BufferRef 是指向池化缓冲区的引用计数句柄，最后一个句柄关闭时缓冲区归还到池中。
type BufferRef = references.CloseableReference[*bytebufferpool.ByteBuffer]

// BufferPool 分配由 CloseableReference 管理生命周期的字节缓冲区。
type BufferPool struct {
	pool        bytebufferpool.Pool
	manager     *references.Manager
	outstanding atomic.Int64
}

// NewBufferPool 使用 m 的策略包装缓冲区；m 为 nil 时使用 references.Default()。
func NewBufferPool(m *references.Manager) *BufferPool {
	if m == nil {
		m = references.Default()
	}
	return &BufferPool{manager: m}
}

// Get 返回一个空缓冲区。
func (p *BufferPool) Get() *BufferRef {
	buf := p.pool.Get()
	p.outstanding.Add(1)
	return references.Of(p.manager, buf, references.ResourceReleaser[*bytebufferpool.ByteBuffer](p))
}

// FromBytes 返回内容为 data 拷贝的缓冲区。
func (p *BufferPool) FromBytes(data []byte) *BufferRef {
	ref := p.Get()
	ref.Get().Set(data)
	return ref
}

// ReadFrom 读取 r 的全部内容到新缓冲区；失败时缓冲区已归还。
func (p *BufferPool) ReadFrom(r io.Reader) (*BufferRef, error) {
	ref := p.Get()
	if _, err := ref.Get().ReadFrom(r); err != nil {
		ref.Close()
		return nil, err
	}
	return ref, nil
}

// Release 把缓冲区归还到池中，满足 references.ResourceReleaser。
func (p *BufferPool) Release(buf *bytebufferpool.ByteBuffer) {
	p.outstanding.Add(-1)
	p.pool.Put(buf)
}

// Outstanding 返回尚未归还的缓冲区数量。
func (p *BufferPool) Outstanding() int64 {
	return p.outstanding.Load()
}
