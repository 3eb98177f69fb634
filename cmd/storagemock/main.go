// Command storagemock runs the blob-storage origin used as a test upstream for
// the caching proxy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/perfcache/perfcache/internal/config"
	"github.com/perfcache/perfcache/internal/logging"
	"github.com/perfcache/perfcache/internal/storage"
	"github.com/perfcache/perfcache/internal/storage/api"
	"github.com/perfcache/perfcache/internal/version"
)

type cliOptions struct {
	configPath  string
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

func run(opts cliOptions) int {
	if opts.showVersion {
		fmt.Fprintln(stdOut, version.Full())
		return 0
	}

	cfg, err := config.LoadStorage(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}
	logger, err := logging.InitStorageLogger(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	account, err := openAccount(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化存储失败: %v\n", err)
		return 1
	}
	defer account.Close()

	srv, err := api.New(account, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化接口失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["account"] = cfg.Storage.Account
	fields["backend"] = cfg.Storage.Backend
	fields["containers"] = cfg.Storage.Containers
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("存储模拟服务配置加载完成")

	if err := serve(ctx, cfg.Storage.ListenPort, srv.Routes(), logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("storagemock", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		showVer    bool
	)
	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PERFCACHE_CONFIG 覆盖）")
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
	return cliOptions{configPath: path, showVersion: showVer}, nil
}

// openAccount 按配置选择后端并预置容器。
func openAccount(ctx context.Context, cfg config.StorageConfig) (*storage.Account, error) {
	var (
		backend storage.Backend
		err     error
	)
	switch cfg.Backend {
	case config.StorageBackendSQLite:
		backend, err = storage.NewSQLiteBackend(cfg.DatabasePath)
	default:
		backend = storage.NewMemoryBackend()
	}
	if err != nil {
		return nil, err
	}

	account, err := storage.NewAccount(ctx, cfg.Account, backend, cfg.Containers)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return account, nil
}

func serve(ctx context.Context, port int, handler http.Handler, logger *logrus.Logger) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdOut, "http://localhost:%d (listening on %s)\n", port, ln.Addr())

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"action": "listen", "addr": ln.Addr().String()}).Info("存储模拟服务启动")
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
