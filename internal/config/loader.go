package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/any-hub/imagecache/internal/disk"
)

// EnvPrefix 是配置覆盖环境变量的前缀。
const EnvPrefix = "IMAGECACHE"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	// IMAGECACHE_<KEY> 环境变量覆盖文件中的同名字段，例如 IMAGECACHE_LISTENPORT。
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	hooks := mapstructure.ComposeDecodeHookFunc(durationDecodeHook(), byteSizeDecodeHook())
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("BaseDirectoryName", disk.DefaultBaseDirectoryName)
	v.SetDefault("CacheVersion", disk.DefaultVersion)
	v.SetDefault("BucketCount", disk.DefaultBucketCount)
	v.SetDefault("MaxCacheSize", "40MB")
	v.SetDefault("MaxCacheSizeOnLowDiskSpace", "10MB")
	v.SetDefault("MaxCacheSizeOnVeryLowDiskSpace", "2MB")
	v.SetDefault("MaintenanceInterval", "1m")
	v.SetDefault("MaxEntryAge", 0)
	v.SetDefault("WriteWorkers", 4)
	v.SetDefault("ReferencePolicy", "default")
	v.SetDefault("TrackLiveObjects", false)
	v.SetDefault("CaptureLeakTraces", false)
	v.SetDefault("CacheDisabled", false)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.BaseDirectoryName) == "" {
		g.BaseDirectoryName = disk.DefaultBaseDirectoryName
	}
	if g.BucketCount == 0 {
		g.BucketCount = disk.DefaultBucketCount
	}
	if g.MaintenanceInterval.DurationValue() == 0 {
		g.MaintenanceInterval = Duration(time.Minute)
	}
	if g.WriteWorkers == 0 {
		g.WriteWorkers = 4
	}
	g.ReferencePolicy = strings.ToLower(strings.TrimSpace(g.ReferencePolicy))
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// byteSizeDecodeHook 允许容量字段使用 "40MB" 等带单位写法，整数按字节处理。
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(ByteSize(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			size, err := parseByteSize(v)
			if err != nil {
				return nil, fmt.Errorf("无法解析容量字段: %s", v)
			}
			return size, nil
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(int64(v)), nil
		case ByteSize:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的容量类型: %T", v)
		}
	}
}
