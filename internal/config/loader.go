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
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	return load(path, (*Config).Validate)
}

// LoadStorage 供存储模拟服务使用：只校验 [Storage] 段，不要求配置上游地址。
func LoadStorage(path string) (*Config, error) {
	return load(path, func(cfg *Config) error {
		if err := cfg.Storage.validate(); err != nil {
			return err
		}
		return cfg.validateLogFiles()
	})
}

func load(path string, validate func(*Config) error) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyStorageDefaults(&cfg.Storage)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	// 证书与数据库路径相对配置文件所在目录解析，方便与 config.toml 放在一起。
	baseDir := filepath.Dir(path)
	cfg.Global.TLSCertFile = resolveRelative(baseDir, cfg.Global.TLSCertFile)
	cfg.Global.TLSKeyFile = resolveRelative(baseDir, cfg.Global.TLSKeyFile)
	cfg.Storage.DatabasePath = resolveRelative(baseDir, cfg.Storage.DatabasePath)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 7777)
	v.SetDefault("TLSListenPort", 7778)
	v.SetDefault("Service", "blob")
	v.SetDefault("UpstreamTimeout", "100s")
	v.SetDefault("SingleFlight", true)
	v.SetDefault("ReplayMode", string(ReplayModeFull))
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Storage.ListenPort", 7780)
	v.SetDefault("Storage.Account", "devstoreaccount1")
	v.SetDefault("Storage.Backend", string(StorageBackendMemory))
	v.SetDefault("Storage.DatabasePath", "")
	v.SetDefault("Storage.Containers", []string{"testcontainer"})
	v.SetDefault("Storage.LogFilePath", "")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 7777
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(100 * time.Second)
	}
	g.Service = strings.ToLower(strings.TrimSpace(g.Service))
	g.ReplayMode = ReplayMode(strings.ToLower(strings.TrimSpace(string(g.ReplayMode))))
	if g.ReplayMode == "" {
		g.ReplayMode = ReplayModeFull
	}
	g.Upstream = strings.TrimRight(strings.TrimSpace(g.Upstream), "/")
}

func applyStorageDefaults(s *StorageConfig) {
	if s.ListenPort == 0 {
		s.ListenPort = 7780
	}
	s.LogFilePath = strings.TrimSpace(s.LogFilePath)
	s.Backend = StorageBackend(strings.ToLower(strings.TrimSpace(string(s.Backend))))
	if s.Backend == "" {
		s.Backend = StorageBackendMemory
	}
	containers := make([]string, 0, len(s.Containers))
	for _, name := range s.Containers {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			containers = append(containers, trimmed)
		}
	}
	s.Containers = containers
}

func resolveRelative(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
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
