// Package logging 构建 any-cdn 的 JSON 日志。请求日志携带 request_id、status、
// elapsed_ms 与 cache_tag，包级日志携带 package 与 version，字段构造见 fields.go。
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/any-hub/any-cdn/internal/config"
	"github.com/any-hub/any-cdn/internal/version"
)

const defaultLevel = logrus.InfoLevel

// InitLogger 按 Global 配置创建 logger 并同步到 logrus 标准 logger。
// 日志文件不可写时退回 stdout，不阻止服务启动。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, error) {
	level := defaultLevel
	if cfg.LogLevel != "" {
		parsed, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("无法解析日志级别: %w", err)
		}
		level = parsed
	}

	out, outErr := openOutput(cfg)

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.AddHook(serviceHook{version: version.Version})

	std := logrus.StandardLogger()
	std.SetLevel(level)
	std.SetOutput(out)
	std.SetFormatter(logger.Formatter)

	if outErr != nil {
		fmt.Fprintf(os.Stderr, "logger_fallback: %v\n", outErr)
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogFilePath,
		}).WithError(outErr).Warn("日志文件不可用，改为输出到 stdout")
	}
	return logger, nil
}

// openOutput 返回 LogFilePath 对应的滚动文件；未配置时使用 stdout。
func openOutput(cfg config.GlobalConfig) (io.Writer, error) {
	if cfg.LogFilePath == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
		return os.Stdout, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}, nil
}

// serviceHook 给每条日志加上 service 与 service_version，多实例共用日志收集时可以区分来源。
type serviceHook struct {
	version string
}

func (serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = "any-cdn"
	}
	if _, ok := entry.Data["service_version"]; !ok {
		entry.Data["service_version"] = h.version
	}
	return nil
}
