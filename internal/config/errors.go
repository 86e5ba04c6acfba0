package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig 匹配所有字段校验错误，调用方可用 errors.Is 区分校验失败与读取失败。
var ErrInvalidConfig = errors.New("invalid config")

// FieldError 记录出错字段（Global.Field 形式）与原因。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e FieldError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

func globalField(field string) string {
	return "Global." + field
}
