package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Listener 是一个待启动的监听端口及其 Fiber 应用。TLS 为 nil 时为明文端口。
type Listener struct {
	Route *Route
	App   *fiber.App
	Addr  string
	TLS   *tls.Config
}

// Bind 打开全部监听端口。任一端口失败时关闭已打开的端口并返回错误，
// 这样调用方可以在真正开始服务前打印实际地址。
func Bind(listeners []Listener) ([]net.Listener, error) {
	bound := make([]net.Listener, 0, len(listeners))
	for _, l := range listeners {
		ln, err := net.Listen("tcp", l.Addr)
		if err != nil {
			for _, opened := range bound {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("listen %s: %w", l.Route.Name(), err)
		}
		if l.TLS != nil {
			ln = tls.NewListener(ln, l.TLS)
		}
		bound = append(bound, ln)
	}
	return bound, nil
}

// Serve 在同一个 errgroup 中运行全部监听端口：ctx 取消或任意端口退出时，
// 其余端口一起关闭。lns 与 listeners 一一对应，通常来自 Bind。
func Serve(ctx context.Context, logger *logrus.Logger, listeners []Listener, lns []net.Listener) error {
	if len(listeners) != len(lns) {
		return fmt.Errorf("listener count mismatch: %d apps, %d sockets", len(listeners), len(lns))
	}

	group, gctx := errgroup.WithContext(ctx)
	for i := range listeners {
		l, ln := listeners[i], lns[i]
		group.Go(func() error {
			logger.WithFields(logrus.Fields{
				"action":   "listen",
				"listener": l.Route.Name(),
				"addr":     ln.Addr().String(),
			}).Info("Fiber 服务启动")

			err := l.App.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
			if err == nil && gctx.Err() == nil {
				err = fmt.Errorf("listener %s stopped unexpectedly", l.Route.Name())
			}
			return err
		})
	}

	group.Go(func() error {
		<-gctx.Done()
		for i, l := range listeners {
			if err := l.App.ShutdownWithTimeout(shutdownTimeout); err != nil {
				logger.WithFields(logrus.Fields{
					"action":   "shutdown",
					"listener": l.Route.Name(),
				}).WithError(err).Warn("关闭监听失败")
			}
			// 应用尚未开始 Accept 时 Shutdown 不会关闭 socket。
			_ = lns[i].Close()
		}
		return nil
	})

	err := group.Wait()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
