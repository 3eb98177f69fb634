package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/perfcache/perfcache/internal/service"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if err := validatePort("Global.ListenPort", g.ListenPort); err != nil {
		return err
	}
	if g.TLSListenPort < 0 || g.TLSListenPort > 65535 {
		return newFieldError("Global.TLSListenPort", "必须在 0-65535（0 表示关闭 TLS 监听）")
	}
	if g.TLSEnabled() {
		if g.TLSListenPort == g.ListenPort {
			return newFieldError("Global.TLSListenPort", "不能与 ListenPort 相同")
		}
		if strings.TrimSpace(g.TLSCertFile) == "" {
			return newFieldError("Global.TLSCertFile", "启用 TLS 监听时不能为空")
		}
		if !IsPKCS12(g.TLSCertFile) && strings.TrimSpace(g.TLSKeyFile) == "" {
			return newFieldError("Global.TLSKeyFile", "PEM 证书需要同时提供私钥文件")
		}
	}
	if err := validateUpstream(g.Upstream); err != nil {
		return fmt.Errorf("Global.Upstream: %w", err)
	}
	if g.Service != "" {
		if _, ok := service.Lookup(g.Service); !ok {
			return newFieldError("Global.Service", "仅支持 "+strings.Join(service.Keys(), "|"))
		}
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	switch g.ReplayMode {
	case ReplayModeFull, ReplayModeBody:
	default:
		return newFieldError("Global.ReplayMode", "仅支持 full/body")
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}
	return c.validateLogFiles()
}

// validateLogFiles 保证代理与存储模拟服务不会轮转同一个日志文件。
func (c *Config) validateLogFiles() error {
	proxyLog := c.Global.LogFilePath
	storageLog := c.StorageLogFilePath()
	if proxyLog == "" || storageLog == "" {
		return nil
	}
	if filepath.Clean(proxyLog) == filepath.Clean(storageLog) {
		return newFieldError("Storage.LogFilePath", "不能与 LogFilePath 相同")
	}
	return nil
}

func (s StorageConfig) validate() error {
	if err := validatePort("Storage.ListenPort", s.ListenPort); err != nil {
		return err
	}
	if strings.TrimSpace(s.Account) == "" {
		return newFieldError("Storage.Account", "不能为空")
	}
	switch s.Backend {
	case StorageBackendMemory, StorageBackendSQLite:
	default:
		return newFieldError("Storage.Backend", "仅支持 memory/sqlite")
	}

	seen := map[string]struct{}{}
	for _, name := range s.Containers {
		if strings.Contains(name, "/") {
			return newFieldError(containerField(name), "不允许包含 /")
		}
		if _, exists := seen[name]; exists {
			return newFieldError(containerField(name), "重复")
		}
		seen[name] = struct{}{}
	}
	return nil
}

func validatePort(field string, port int) error {
	if port <= 0 || port > 65535 {
		return newFieldError(field, "必须在 1-65535")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("上游地址不支持路径: %s", raw)
	}
	return nil
}

// IsPKCS12 根据扩展名判断证书是否为带口令的 PKCS#12 包。
func IsPKCS12(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".pfx") || strings.HasSuffix(lower, ".p12")
}
