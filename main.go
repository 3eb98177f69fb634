package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/perfcache/perfcache/internal/cache"
	"github.com/perfcache/perfcache/internal/config"
	"github.com/perfcache/perfcache/internal/logging"
	"github.com/perfcache/perfcache/internal/proxy"
	"github.com/perfcache/perfcache/internal/server"
	"github.com/perfcache/perfcache/internal/server/routes"
	"github.com/perfcache/perfcache/internal/version"
)

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
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
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
		fields["upstream"] = cfg.Global.Upstream
		fields["service"] = cfg.Global.Service
		fields["tls"] = cfg.Global.TLSEnabled()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序为 “配置 → 缓存 → 上游客户端 → Handler → 每个端口一个 Fiber app”，
	// 两个端口共用同一个 Handler 与缓存实例。
	listeners, err := buildListeners(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化代理失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["tls_listen_port"] = cfg.Global.TLSListenPort
	fields["upstream"] = cfg.Global.Upstream
	fields["service"] = cfg.Global.Service
	fields["single_flight"] = cfg.Global.SingleFlight
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startServers(ctx, listeners, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("perfcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PERFCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("PERFCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func buildListeners(cfg *config.Config, logger *logrus.Logger) ([]server.Listener, error) {
	routeList, err := server.NewRoutes(cfg)
	if err != nil {
		return nil, err
	}

	upstream, err := proxy.NewUpstream(server.NewUpstreamClient(cfg), routeList[0].UpstreamURL)
	if err != nil {
		return nil, err
	}
	store := cache.New(cache.Options{SingleFlight: cfg.Global.SingleFlight})
	handler, err := proxy.NewHandler(proxy.Options{
		Upstream:   upstream,
		Cache:      store,
		Logger:     logger,
		Progress:   logging.NewProgress(stdOut, cfg.Global.Verbose),
		ReplayMode: cfg.Global.ReplayMode,
	})
	if err != nil {
		return nil, err
	}

	listeners := make([]server.Listener, 0, len(routeList))
	for _, route := range routeList {
		app, err := server.NewApp(server.AppOptions{
			Logger: logger,
			Route:  route,
			Proxy:  handler,
		})
		if err != nil {
			return nil, err
		}
		routes.RegisterStatusRoutes(app, route, store)

		listener := server.Listener{
			Route: route,
			App:   app,
			Addr:  fmt.Sprintf(":%d", route.ListenPort),
		}
		if route.Listener == server.ListenerTLS {
			tlsConfig, err := server.LoadTLSConfig(cfg.Global.TLSCertFile, cfg.Global.TLSKeyFile, cfg.Global.TLSCertPassword)
			if err != nil {
				return nil, err
			}
			listener.TLS = tlsConfig
		}
		listeners = append(listeners, listener)
	}
	return listeners, nil
}

func startServers(ctx context.Context, listeners []server.Listener, logger *logrus.Logger) error {
	lns, err := server.Bind(listeners)
	if err != nil {
		return err
	}
	for i, l := range listeners {
		fmt.Fprintf(stdOut, "%s://localhost:%d (listening on %s)\n", l.Route.Scheme(), l.Route.ListenPort, lns[i].Addr())
	}
	return server.Serve(ctx, logger, listeners, lns)
}
