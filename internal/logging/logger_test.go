package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/perfcache/perfcache/internal/config"
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

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "loud"}); err == nil {
		t.Fatalf("未知日志级别应报错")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 用户不受目录权限限制")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "perfcache.log"),
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
	path := filepath.Join(dir, "perfcache.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestProxyAndStorageLoggersUseSeparateFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Global: config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(dir, "perfcache.log"),
	}}

	proxyLogger, err := InitLogger(cfg.Global)
	if err != nil {
		t.Fatalf("代理日志初始化失败: %v", err)
	}
	storageLogger, err := InitStorageLogger(cfg)
	if err != nil {
		t.Fatalf("存储日志初始化失败: %v", err)
	}
	proxyLogger.Info("proxy-line")
	storageLogger.Info("storage-line")

	proxyLog, err := os.ReadFile(filepath.Join(dir, "perfcache.log"))
	if err != nil {
		t.Fatalf("读取代理日志失败: %v", err)
	}
	storageLog, err := os.ReadFile(filepath.Join(dir, "perfcache-storage.log"))
	if err != nil {
		t.Fatalf("读取存储日志失败: %v", err)
	}
	if !bytes.Contains(proxyLog, []byte("proxy-line")) || bytes.Contains(proxyLog, []byte("storage-line")) {
		t.Fatalf("代理日志内容错误: %s", proxyLog)
	}
	if !bytes.Contains(storageLog, []byte("storage-line")) || !bytes.Contains(storageLog, []byte(`"component":"storagemock"`)) {
		t.Fatalf("存储日志内容错误: %s", storageLog)
	}
	if !bytes.Contains(proxyLog, []byte(`"component":"proxy"`)) {
		t.Fatalf("代理日志缺少 component 字段: %s", proxyLog)
	}
}

func TestProgressMarksDistinguishHits(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgress(buf, false)
	progress.Record("GET", "http://localhost:7777/c/b", "HTTP/1.1", OutcomeMiss)
	progress.Record("GET", "http://localhost:7777/c/b", "HTTP/1.1", OutcomeHit)
	progress.Record("GET", "http://localhost:7777/c/b", "HTTP/1.1", OutcomeFailed)
	if got := buf.String(); got != ".+!" {
		t.Fatalf("进度字符不符，得到 %q", got)
	}
}

func TestProgressVerboseTrace(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgress(buf, true)
	progress.Record("PUT", "https://localhost:7778/c/b?comp=block", "HTTP/1.1", OutcomeHit)
	want := "PUT https://localhost:7778/c/b?comp=block HTTP/1.1 [hit]\n"
	if got := buf.String(); got != want {
		t.Fatalf("verbose 输出不符，得到 %q", got)
	}
}
