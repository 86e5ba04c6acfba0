package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// ByteSize 以字节为单位的容量，配置中可写作 "40MB"、"512k" 或纯整数字节。
// 单位按 1024 进制解析。
type ByteSize int64

// UnmarshalText 解析带单位的容量字符串。
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := parseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Int64 返回字节数。
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// String 返回便于阅读的容量表示，例如 "40MiB"。
func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

func parseByteSize(raw string) (ByteSize, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if intVal, err := parseInt(raw); err == nil {
		return ByteSize(intVal), nil
	}
	size, err := units.RAMInBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size value: %s", raw)
	}
	return ByteSize(size), nil
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述服务运行时行为：日志、监听端口与磁盘缓存参数。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	StoragePath       string `mapstructure:"StoragePath"`
	BaseDirectoryName string `mapstructure:"BaseDirectoryName"`
	CacheVersion      int    `mapstructure:"CacheVersion"`
	BucketCount       int    `mapstructure:"BucketCount"`
	CacheDisabled     bool   `mapstructure:"CacheDisabled"`

	MaxCacheSize                   ByteSize `mapstructure:"MaxCacheSize"`
	MaxCacheSizeOnLowDiskSpace     ByteSize `mapstructure:"MaxCacheSizeOnLowDiskSpace"`
	MaxCacheSizeOnVeryLowDiskSpace ByteSize `mapstructure:"MaxCacheSizeOnVeryLowDiskSpace"`

	MaintenanceInterval Duration `mapstructure:"MaintenanceInterval"`
	MaxEntryAge         Duration `mapstructure:"MaxEntryAge"`
	WriteWorkers        int      `mapstructure:"WriteWorkers"`

	ReferencePolicy   string `mapstructure:"ReferencePolicy"`
	TrackLiveObjects  bool   `mapstructure:"TrackLiveObjects"`
	CaptureLeakTraces bool   `mapstructure:"CaptureLeakTraces"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}
