package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort < 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("LogLevel", "无法识别的日志级别")
		}
	}
	if g.UpstreamTimeout.DurationValue() < 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}

	r := c.Registry
	if err := validateUpstream(r.Registry); err != nil {
		return fmt.Errorf("Registry: %w", err)
	}
	if r.MemoryCacheEntries < 0 {
		return newFieldError("MemoryCacheEntries", "不能为负数")
	}
	if r.InfoCacheTTL.DurationValue() < 0 {
		return newFieldError("InfoCacheTTL", "不能为负数")
	}
	if r.NegativeCacheTTL.DurationValue() < 0 {
		return newFieldError("NegativeCacheTTL", "不能为负数")
	}
	if r.DiskCache && g.StoragePath == "" {
		return newFieldError("StoragePath", "启用磁盘缓存时不能为空")
	}

	s := c.Serve
	if s.Origin != "" {
		if err := validateUpstream(s.Origin); err != nil {
			return fmt.Errorf("Origin: %w", err)
		}
		if strings.HasSuffix(s.Origin, "/") {
			return newFieldError("Origin", "不应以 / 结尾")
		}
	}
	if strings.ContainsAny(s.BaseURL, "?#") {
		return newFieldError("BaseURL", "只能是路径前缀")
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
	return nil
}
