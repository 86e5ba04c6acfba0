package cache

import (
	"context"
	"errors"
	"io"

	"github.com/any-hub/imagecache/internal/disk"
)

// FromBytes 返回把 data 原样写出的回调。
func FromBytes(data []byte) disk.WriterCallback {
	return func(w io.Writer) error {
		n, err := w.Write(data)
		if err == nil && n < len(data) {
			err = io.ErrShortWrite
		}
		return err
	}
}

// FromReader 返回从 r 拷贝到 writer 的回调，ctx 取消时中止拷贝。
func FromReader(ctx context.Context, r io.Reader) disk.WriterCallback {
	return func(w io.Writer) error {
		_, err := copyWithContext(ctx, w, r)
		return err
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
