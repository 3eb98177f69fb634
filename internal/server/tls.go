package server

import (
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"

	"github.com/perfcache/perfcache/internal/config"
)

// LoadTLSConfig 读取 TLS 监听使用的证书。.pfx/.p12 文件按 PKCS#12 解析并使用
// password 解密，其余按 PEM 证书 + 私钥处理。不校验客户端证书。
func LoadTLSConfig(certFile, keyFile, password string) (*tls.Config, error) {
	if certFile == "" {
		return nil, errors.New("tls certificate file is required")
	}

	var (
		cert tls.Certificate
		err  error
	)
	if config.IsPKCS12(certFile) {
		cert, err = loadPKCS12(certFile, password)
	} else {
		cert, err = tls.LoadX509KeyPair(certFile, keyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("load tls certificate %s: %w", certFile, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.NoClientCert,
	}, nil
}

func loadPKCS12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, err
	}
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return tls.Certificate{}, err
	}
	var pemData []byte
	for _, block := range blocks {
		pemData = append(pemData, pem.EncodeToMemory(block)...)
	}
	return tls.X509KeyPair(pemData, pemData)
}
