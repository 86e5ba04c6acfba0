package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imagecache/internal/disk"
	"github.com/any-hub/imagecache/internal/references"
)

// cacheErrorLogger 将磁盘缓存的分类错误写入 logrus。
type cacheErrorLogger struct {
	logger *logrus.Logger
}

// NewCacheErrorLogger 返回写入 logger 的 disk.CacheErrorLogger；logger 为 nil 时使用标准 logger。
func NewCacheErrorLogger(logger *logrus.Logger) disk.CacheErrorLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return cacheErrorLogger{logger: logger}
}

func (l cacheErrorLogger) LogError(category disk.Category, tag, message string, cause error) {
	defer func() { _ = recover() }()
	entry := l.logger.WithFields(ErrorFields(string(category), tag))
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Warn(message)
}

// NewLeakHandler 返回写入 logger 的泄漏处理器。
func NewLeakHandler(logger *logrus.Logger) references.LeakHandler {
	return references.NewLogrusLeakHandler(logger)
}
