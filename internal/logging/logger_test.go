package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/imagecache/internal/config"
	"github.com/any-hub/imagecache/internal/disk"
	"github.com/any-hub/imagecache/internal/references"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerFallbackWhenDirectoryUnavailable(t *testing.T) {
	dir := t.TempDir()
	// 以普通文件占据父目录位置，MkdirAll 必然失败
	blocked := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatalf("创建文件失败: %v", err)
	}

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "imagecache.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imagecache.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
	if !strings.Contains(string(data), `"service":"imagecache"`) {
		t.Fatalf("日志缺少 service 字段: %s", data)
	}
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "loud"}); err == nil {
		t.Fatalf("未知日志级别应返回错误")
	}
}

func TestCacheErrorLoggerWritesCategory(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	NewCacheErrorLogger(logger).LogError(disk.CategoryWriteRenameOther, "DefaultDiskStorage", "commit", errors.New("boom"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("日志不是合法 JSON: %v", err)
	}
	if entry["category"] != string(disk.CategoryWriteRenameOther) || entry["error"] != "boom" {
		t.Fatalf("日志字段缺失: %v", entry)
	}
	if entry["level"] != "warning" {
		t.Fatalf("日志级别错误: %v", entry["level"])
	}
}

func TestLeakHandlerLogsReport(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	NewLeakHandler(logger).ReportLeak(references.LeakReport{ValueType: "*bytebufferpool.ByteBuffer", Policy: references.PolicyDefault})
	if !strings.Contains(buf.String(), "reference_leak") {
		t.Fatalf("泄漏日志缺失: %s", buf.String())
	}
}

func TestCacheFieldsHumanSize(t *testing.T) {
	fields := CacheFields("k", "id", true, 2048)
	if fields["size"] != "2.048kB" {
		t.Fatalf("size 字段格式错误: %v", fields["size"])
	}
	if _, ok := CacheFields("k", "id", false, -1)["size"]; ok {
		t.Fatalf("未知大小不应输出 size 字段")
	}
}
