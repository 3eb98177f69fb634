package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggingFallbackToStdout(t *testing.T) {
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

	logPath := filepath.Join(blocked, "sub", "perfcache.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = "%s"
ListenPort = 7777
TLSListenPort = 0
Upstream = "https://perfaccount.blob.core.windows.net"
`, logPath))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, checkOnly: true})
	if code != 0 {
		t.Fatalf("日志 fallback 不应导致失败，得到 %d", code)
	}
	t.Log(stdOut.(*bytes.Buffer).String())
}

func TestLoggingWritesToConfiguredFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "perfcache.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogFilePath = "%s"
TLSListenPort = 0
Upstream = "https://perfaccount.blob.core.windows.net"
`, logPath))

	useBufferWriters(t)
	if code := run(cliOptions{configPath: configPath, checkOnly: true}); code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(data), `"action":"check_config"`) {
		t.Fatalf("日志文件应包含 check_config 记录，得到 %s", string(data))
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}
