package integration

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/perfcache/perfcache/internal/cache"
	"github.com/perfcache/perfcache/internal/config"
	"github.com/perfcache/perfcache/internal/proxy"
	"github.com/perfcache/perfcache/internal/server"
	"github.com/perfcache/perfcache/internal/server/routes"
	"github.com/perfcache/perfcache/internal/storage"
	"github.com/perfcache/perfcache/internal/storage/api"
)

const testContainer = "testcontainer"

type storageMock struct {
	server *httptest.Server
	api    *api.Server
}

func (m *storageMock) Close() {
	m.server.Close()
}

func newStorageMock(t *testing.T) *storageMock {
	t.Helper()
	account, err := storage.NewAccount(context.Background(), "devstoreaccount1", storage.NewMemoryBackend(), []string{testContainer})
	if err != nil {
		t.Fatalf("account error: %v", err)
	}
	t.Cleanup(func() { _ = account.Close() })

	srv, err := api.New(account, quietLogger())
	if err != nil {
		t.Fatalf("api error: %v", err)
	}
	return &storageMock{server: httptest.NewServer(srv.Routes()), api: srv}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func proxyConfig(upstream string) *config.Config {
	return &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      7777,
			Upstream:        upstream,
			Service:         "blob",
			UpstreamTimeout: config.Duration(10 * time.Second),
			SingleFlight:    true,
			ReplayMode:      config.ReplayModeFull,
		},
	}
}

// buildProxy 组装与主程序相同的链路：每个监听端口一个 Fiber 应用，共享缓存与处理器。
func buildProxy(t *testing.T, cfg *config.Config) ([]server.Listener, *cache.Store) {
	t.Helper()
	logger := quietLogger()

	routeList, err := server.NewRoutes(cfg)
	if err != nil {
		t.Fatalf("routes error: %v", err)
	}
	upstream, err := proxy.NewUpstream(server.NewUpstreamClient(cfg), routeList[0].UpstreamURL)
	if err != nil {
		t.Fatalf("upstream error: %v", err)
	}
	store := cache.New(cache.Options{SingleFlight: cfg.Global.SingleFlight})
	handler, err := proxy.NewHandler(proxy.Options{
		Upstream:   upstream,
		Cache:      store,
		Logger:     logger,
		ReplayMode: cfg.Global.ReplayMode,
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	listeners := make([]server.Listener, 0, len(routeList))
	for _, route := range routeList {
		app, err := server.NewApp(server.AppOptions{Logger: logger, Route: route, Proxy: handler})
		if err != nil {
			t.Fatalf("app error: %v", err)
		}
		routes.RegisterStatusRoutes(app, route, store)
		l := server.Listener{Route: route, App: app, Addr: "127.0.0.1:0"}
		if route.Listener == server.ListenerTLS {
			tlsConfig, err := server.LoadTLSConfig(cfg.Global.TLSCertFile, cfg.Global.TLSKeyFile, "")
			if err != nil {
				t.Fatalf("tls config error: %v", err)
			}
			l.TLS = tlsConfig
		}
		listeners = append(listeners, l)
	}
	return listeners, store
}

func writeCertificate(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}
