package logging

import (
	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CacheFields 提供 key/资源 ID/命中状态字段，供缓存请求日志复用。
func CacheFields(key, resourceID string, cacheHit bool, size int64) logrus.Fields {
	fields := logrus.Fields{
		"key":         key,
		"resource_id": resourceID,
		"cache_hit":   cacheHit,
	}
	if size >= 0 {
		fields["size"] = units.HumanSize(float64(size))
	}
	return fields
}

// ErrorFields 提供缓存错误分类字段。
func ErrorFields(category, tag string) logrus.Fields {
	return logrus.Fields{
		"action":   "cache_error",
		"category": category,
		"tag":      tag,
	}
}
