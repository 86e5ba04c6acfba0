package disk

import "time"

// Clock 提供当前时间，用于临时文件过期判断与 mtime 刷新。
type Clock interface {
	Now() time.Time
}

// SystemClock 使用 time.Now。
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc 将函数适配为 Clock，便于测试注入固定时间。
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
