package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/perfcache/perfcache/internal/config"
)

// 写日志的进程标识，会作为 component 字段出现在每条日志里。
const (
	ComponentProxy   = "proxy"
	ComponentStorage = "storagemock"
)

// InitLogger 初始化代理进程的 JSON 日志，文件路径取 LogFilePath。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, error) {
	return newLogger(cfg, ComponentProxy, cfg.LogFilePath)
}

// InitStorageLogger 初始化存储模拟服务的日志。它与代理读同一份配置，
// 文件路径取 StorageLogFilePath，避免两个 lumberjack 轮转同一个文件。
func InitStorageLogger(cfg *config.Config) (*logrus.Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置为空")
	}
	return newLogger(cfg.Global, ComponentStorage, cfg.StorageLogFilePath())
}

func newLogger(cfg config.GlobalConfig, component, path string) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	output, outErr := buildOutput(cfg, path)
	if outErr != nil {
		fmt.Fprintf(os.Stderr, "logger_fallback: %v\n", outErr)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(output)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.AddHook(componentHook(component))

	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.GetLevel())

	if outErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   path,
		}).Warn(outErr.Error())
	}

	return logger, nil
}

// buildOutput 为 path 创建轮转文件；path 为空时写 stdout，创建目录失败时降级到 stdout 并返回错误。
func buildOutput(cfg config.GlobalConfig, path string) (io.Writer, error) {
	if path == "" {
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return os.Stdout, fmt.Errorf("创建日志目录失败: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}, nil
}

// componentHook 给没有 component 字段的日志补上进程标识。
type componentHook string

func (h componentHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h componentHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["component"]; !ok {
		entry.Data["component"] = string(h)
	}
	return nil
}
