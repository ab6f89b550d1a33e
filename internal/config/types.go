package config

import (
	"fmt"
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

// GlobalConfig 描述进程级运行参数：监听、日志与磁盘目录。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	AccessLog       bool     `mapstructure:"AccessLog"`
	StoragePath     string   `mapstructure:"StoragePath"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// RegistryConfig 决定如何访问上游 npm Registry 以及如何缓存它的响应。
type RegistryConfig struct {
	Registry            string   `mapstructure:"Registry"`
	MemoryCacheEntries  int      `mapstructure:"MemoryCacheEntries"`
	InfoCacheTTL        Duration `mapstructure:"InfoCacheTTL"`
	NegativeCacheTTL    Duration `mapstructure:"NegativeCacheTTL"`
	DiskCache           bool     `mapstructure:"DiskCache"`
	CachePackageInfo    bool     `mapstructure:"CachePackageInfo"`
	CachePackageContent bool     `mapstructure:"CachePackageContent"`
	CacheAutoUpgrade    bool     `mapstructure:"CacheAutoUpgrade"`
}

// ServeConfig 控制对外 URL 形态：挂载前缀、改写后的模块源站与包名白名单。
type ServeConfig struct {
	BaseURL   string   `mapstructure:"BaseURL"`
	Origin    string   `mapstructure:"Origin"`
	AllowList []string `mapstructure:"AllowList"`
}

// Config 是 TOML 文件映射的整体结构，三个分组在文件中都位于顶层。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Registry RegistryConfig `mapstructure:",squash"`
	Serve    ServeConfig    `mapstructure:",squash"`
}

// InfoCacheEnabled 表示 Registry 元数据是否落盘。
func (r RegistryConfig) InfoCacheEnabled() bool {
	return r.DiskCache && r.CachePackageInfo
}

// ContentCacheEnabled 表示 tarball 是否落盘。
func (r RegistryConfig) ContentCacheEnabled() bool {
	return r.DiskCache && r.CachePackageContent
}

// CacheModes 返回磁盘缓存开关摘要，供启动日志与诊断接口使用。
func (c *Config) CacheModes() []string {
	if c == nil {
		return nil
	}
	r := c.Registry
	return []string{
		fmt.Sprintf("disk:%t", r.DiskCache),
		fmt.Sprintf("info:%t", r.InfoCacheEnabled()),
		fmt.Sprintf("content:%t", r.ContentCacheEnabled()),
		fmt.Sprintf("auto_upgrade:%t", r.CacheAutoUpgrade),
	}
}
