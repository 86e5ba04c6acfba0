package disk

// CacheErrorLogger 接收目录创建、写入、rename 等失败的结构化上报。实现不得 panic。
type CacheErrorLogger interface {
	LogError(category Category, tag string, message string, cause error)
}

// CacheErrorLoggerFunc 将函数适配为 CacheErrorLogger。
type CacheErrorLoggerFunc func(category Category, tag string, message string, cause error)

// LogError 让 CacheErrorLoggerFunc 满足 CacheErrorLogger。
func (f CacheErrorLoggerFunc) LogError(category Category, tag string, message string, cause error) {
	f(category, tag, message, cause)
}

// NoOpCacheErrorLogger 丢弃所有上报。
type NoOpCacheErrorLogger struct{}

func (NoOpCacheErrorLogger) LogError(Category, string, string, error) {}
