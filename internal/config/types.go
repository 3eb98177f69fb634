package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
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

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
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

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// ReplayMode 决定缓存响应如何写回调用方。
type ReplayMode string

const (
	// ReplayModeFull 回放上游状态码、响应头与正文。
	ReplayModeFull ReplayMode = "full"
	// ReplayModeBody 只写回正文，状态码固定为 200，兼容旧版测试夹具行为。
	ReplayModeBody ReplayMode = "body"
)

// StorageBackend 标识存储模拟服务使用的 Blob 后端。
type StorageBackend string

const (
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendSQLite StorageBackend = "sqlite"
)

// GlobalConfig 描述代理进程的全局运行时行为，两个监听端口共享同一份参数。
type GlobalConfig struct {
	ListenPort                 int        `mapstructure:"ListenPort"`
	TLSListenPort              int        `mapstructure:"TLSListenPort"`
	TLSCertFile                string     `mapstructure:"TLSCertFile"`
	TLSKeyFile                 string     `mapstructure:"TLSKeyFile"`
	TLSCertPassword            string     `mapstructure:"TLSCertPassword"`
	Upstream                   string     `mapstructure:"Upstream"`
	Service                    string     `mapstructure:"Service"`
	UpstreamTimeout            Duration   `mapstructure:"UpstreamTimeout"`
	UpstreamInsecureSkipVerify bool       `mapstructure:"UpstreamInsecureSkipVerify"`
	SingleFlight               bool       `mapstructure:"SingleFlight"`
	ReplayMode                 ReplayMode `mapstructure:"ReplayMode"`
	Verbose                    bool       `mapstructure:"Verbose"`
	LogLevel                   string     `mapstructure:"LogLevel"`
	LogFilePath                string     `mapstructure:"LogFilePath"`
	LogMaxSize                 int        `mapstructure:"LogMaxSize"`
	LogMaxBackups              int        `mapstructure:"LogMaxBackups"`
	LogCompress                bool       `mapstructure:"LogCompress"`
}

// StorageConfig 描述存储模拟服务，容器列表只能通过配置预置。
type StorageConfig struct {
	ListenPort   int            `mapstructure:"ListenPort"`
	Account      string         `mapstructure:"Account"`
	Backend      StorageBackend `mapstructure:"Backend"`
	DatabasePath string         `mapstructure:"DatabasePath"`
	Containers   []string       `mapstructure:"Containers"`
	// LogFilePath 为空时由全局 LogFilePath 派生，例如 perfcache.log → perfcache-storage.log。
	LogFilePath string `mapstructure:"LogFilePath"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Storage StorageConfig `mapstructure:"Storage"`
}

// StorageLogFilePath 返回存储模拟服务的日志文件。两个进程读同一份配置，
// lumberjack 不支持多进程共用一个文件，所以不能直接沿用全局 LogFilePath。
func (c *Config) StorageLogFilePath() string {
	if c.Storage.LogFilePath != "" {
		return c.Storage.LogFilePath
	}
	if c.Global.LogFilePath == "" {
		return ""
	}
	ext := filepath.Ext(c.Global.LogFilePath)
	return strings.TrimSuffix(c.Global.LogFilePath, ext) + "-storage" + ext
}

// TLSEnabled 表示是否需要启动 TLS 监听端口。
func (g GlobalConfig) TLSEnabled() bool {
	return g.TLSListenPort > 0
}
