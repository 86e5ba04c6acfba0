package disk

import (
	"errors"
	"fmt"
)

// Category 标识错误发生在读写流水线中的哪个环节，供 CacheErrorLogger 分类上报。
type Category string

const (
	CategoryReadDecode                  Category = "read_decode"
	CategoryReadFile                    Category = "read_file"
	CategoryReadFileNotFound            Category = "read_file_not_found"
	CategoryReadInvalidEntry            Category = "read_invalid_entry"
	CategoryWriteEncode                 Category = "write_encode"
	CategoryWriteCreateTempFile         Category = "write_create_tempfile"
	CategoryWriteUpdateFileNotFound     Category = "write_update_file_not_found"
	CategoryWriteRenameTempFileNotFound Category = "write_rename_file_tempfile_not_found"
	CategoryWriteRenameParentNotFound   Category = "write_rename_file_tempfile_parent_not_found"
	CategoryWriteRenameOther            Category = "write_rename_file_other"
	CategoryWriteCreateDir              Category = "write_create_dir"
	CategoryWriteCallbackError          Category = "write_callback_error"
	CategoryWriteInvalidEntry           Category = "write_invalid_entry"
	CategoryDeleteFile                  Category = "delete_file"
	CategoryEviction                    Category = "eviction"
	CategoryGenericIO                   Category = "generic_io"
	CategoryOther                       Category = "other"
)

var (
	// ErrParentDirMissing 表示 rename 时目标目录不存在。
	ErrParentDirMissing = errors.New("parent directory not found")
	// ErrInvalidResource 表示传入的临时资源不属于当前存储。
	ErrInvalidResource = errors.New("invalid temporary resource")
)

// WriteError 是写入链路上所有 I/O 失败的统一类型，Category 标记失败位置。
type WriteError struct {
	Category   Category
	Op         string
	ResourceID string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %q (%s): %v", e.Op, e.ResourceID, e.Category, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IncompleteFileError 表示回调写入的字节数与最终文件长度不一致。
type IncompleteFileError struct {
	Expected int64
	Actual   int64
}

func (e *IncompleteFileError) Error() string {
	return fmt.Sprintf("file was not written completely. expected: %d, found: %d", e.Expected, e.Actual)
}

// CategoryOf 返回 err 链中第一个 WriteError 的分类，没有时返回空串。
func CategoryOf(err error) Category {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Category
	}
	return ""
}
