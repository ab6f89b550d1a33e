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

// EnvPrefix 是环境变量覆盖的前缀，例如 ANYCDN_REGISTRY。
const EnvPrefix = "ANYCDN"

// Load 读取 TOML 配置文件（可选）并叠加环境变量，同时注入默认值与校验逻辑。
// path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.StoragePath != "" {
		absStorage, err := filepath.Abs(cfg.Global.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Global.StoragePath = absStorage
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("AccessLog", false)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("UpstreamTimeout", "30s")

	v.SetDefault("Registry", "https://registry.npmjs.org")
	v.SetDefault("MemoryCacheEntries", 10000)
	v.SetDefault("InfoCacheTTL", "1m")
	v.SetDefault("NegativeCacheTTL", "5m")
	v.SetDefault("DiskCache", true)
	v.SetDefault("CachePackageInfo", true)
	v.SetDefault("CachePackageContent", true)
	v.SetDefault("CacheAutoUpgrade", true)

	v.SetDefault("BaseURL", "")
	v.SetDefault("Origin", "")
	v.SetDefault("AllowList", []string{})
}

func applyDefaults(cfg *Config) {
	g := &cfg.Global
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}

	r := &cfg.Registry
	r.Registry = strings.TrimRight(strings.TrimSpace(r.Registry), "/")
	if r.MemoryCacheEntries == 0 {
		r.MemoryCacheEntries = 10000
	}
	if r.InfoCacheTTL.DurationValue() == 0 {
		r.InfoCacheTTL = Duration(time.Minute)
	}
	if r.NegativeCacheTTL.DurationValue() == 0 {
		r.NegativeCacheTTL = Duration(5 * time.Minute)
	}

	s := &cfg.Serve
	s.BaseURL = NormalizeBaseURL(s.BaseURL)
	s.Origin = strings.TrimSpace(s.Origin)
	allow := s.AllowList[:0]
	for _, item := range s.AllowList {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			allow = append(allow, trimmed)
		}
	}
	s.AllowList = allow
}

// NormalizeBaseURL 去掉挂载前缀末尾的斜杠，"/" 视为无前缀。
func NormalizeBaseURL(raw string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed != "" && !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return trimmed
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
