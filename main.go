package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/any-hub/any-cdn/internal/cache"
	"github.com/any-hub/any-cdn/internal/config"
	"github.com/any-hub/any-cdn/internal/logging"
	"github.com/any-hub/any-cdn/internal/pipeline"
	"github.com/any-hub/any-cdn/internal/registry"
	"github.com/any-hub/any-cdn/internal/rewrite"
	"github.com/any-hub/any-cdn/internal/server"
	"github.com/any-hub/any-cdn/internal/server/routes"
	"github.com/any-hub/any-cdn/internal/version"
)

// configEnv 指定配置文件路径的环境变量，优先级低于 --config。
const configEnv = "ANY_CDN_CONFIG"

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute 运行根命令并返回退出码：参数错误为 2，业务失败为 1。
func execute(args []string) int {
	code := 0
	cmd, flags := newRootCommand()
	cmd.RunE = func(*cobra.Command, []string) error {
		code = run(flags.options())
		return nil
	}
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stdErr, err.Error())
		return 2
	}
	return code
}

type rootFlags struct {
	config      string
	checkOnly   bool
	showVersion bool
}

// options 结合环境变量计算最终的配置路径；两者都为空时只使用默认值与环境变量覆盖。
func (f *rootFlags) options() cliOptions {
	path := os.Getenv(configEnv)
	if f.config != "" {
		path = f.config
	}
	return cliOptions{
		configPath:  path,
		checkOnly:   f.checkOnly,
		showVersion: f.showVersion,
	}
}

func newRootCommand() (*cobra.Command, *rootFlags) {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "any-cdn",
		Short:         "Serve files from npm packages over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdOut)
	cmd.SetErr(stdErr)
	cmd.Flags().StringVar(&flags.config, "config", "", "配置文件路径（可被 "+configEnv+" 指定）")
	cmd.Flags().BoolVar(&flags.checkOnly, "check-config", false, "仅校验配置后退出")
	cmd.Flags().BoolVar(&flags.showVersion, "version", false, "显示版本信息")
	return cmd, flags
}

// parseCLIFlags 只解析参数不执行命令，供测试验证优先级。
func parseCLIFlags(args []string) (cliOptions, error) {
	cmd, flags := newRootCommand()
	if err := cmd.ParseFlags(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	return flags.options(), nil
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["registry"] = cfg.Registry.Registry
		fields["cache_modes"] = cfg.CacheModes()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序为“配置 → 磁盘缓存 → Registry 客户端 → 流水线 → Fiber server”，
	// 所有请求共享同一个客户端与缓存实例。
	durable, err := buildDurable(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	client := registry.New(registry.Options{
		Registry:   cfg.Registry.Registry,
		HTTPClient: server.NewUpstreamClient(cfg),
		Durable:    durable,
		Memory: cache.MemoryOptions{
			Size:        cfg.Registry.MemoryCacheEntries,
			TTL:         cfg.Registry.InfoCacheTTL.DurationValue(),
			NegativeTTL: cfg.Registry.NegativeCacheTTL.DurationValue(),
		},
		Logger:    logger,
		UserAgent: version.UserAgent(),
	})

	origin := cfg.Serve.Origin
	if origin == "" {
		origin = cfg.Serve.BaseURL
	}
	handler, err := pipeline.New(pipeline.Options{
		Source:    client,
		Rewriter:  rewrite.New(origin, logger),
		Logger:    logger,
		BaseURL:   cfg.Serve.BaseURL,
		AllowList: cfg.Serve.AllowList,
		RequestID: server.RequestID,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建请求流水线失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["registry"] = cfg.Registry.Registry
	fields["listen_port"] = cfg.Global.ListenPort
	fields["base_url"] = cfg.Serve.BaseURL
	fields["cache_modes"] = cfg.CacheModes()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, handler, client, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildDurable 在开启磁盘缓存时创建落盘存储，否则返回 nil。
func buildDurable(cfg *config.Config) (*cache.Durable, error) {
	if !cfg.Registry.DiskCache {
		return nil, nil
	}
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return nil, err
	}
	return cache.NewDurable(store, cache.DurablePolicy{
		Info:        cfg.Registry.InfoCacheEnabled(),
		Content:     cfg.Registry.ContentCacheEnabled(),
		AutoUpgrade: cfg.Registry.CacheAutoUpgrade,
	}), nil
}

func startHTTPServer(cfg *config.Config, handler server.Handler, client *registry.Client, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:    logger,
		Handler:   handler,
		AccessLog: cfg.Global.AccessLog,
	})
	if err != nil {
		return err
	}
	routes.RegisterStatusRoutes(app, routes.StatusOptions{
		Version:    version.Full(),
		BaseURL:    cfg.Serve.BaseURL,
		CacheModes: cfg.CacheModes(),
		Registry:   client,
	})

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
