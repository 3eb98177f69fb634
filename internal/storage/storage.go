package storage

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	// ErrContainerNotFound 表示容器不存在；容器只能预置，不会自动创建。
	ErrContainerNotFound = errors.New("container not found")
	// ErrBlobNotFound 表示容器中不存在指定 Blob。
	ErrBlobNotFound = errors.New("blob not found")
)

// Properties 是写入时生成的 Blob 元数据。
type Properties struct {
	ContentMD5   string
	LastModified time.Time
	ETag         string
	Size         int64
}

// Blob 是一个完整的 Blob，包含正文与元数据。
type Blob struct {
	Container string
	Name      string
	Content   []byte
	Properties
}

// Backend 是 Blob 的持久化实现。实现必须并发安全。
type Backend interface {
	// CreateContainer 预置容器，已存在时不报错。
	CreateContainer(ctx context.Context, name string) error
	Containers(ctx context.Context) ([]string, error)
	// PutBlob 插入或替换 Blob，容器不存在时返回 ErrContainerNotFound。
	PutBlob(ctx context.Context, container, name string, content []byte, props Properties) error
	GetBlob(ctx context.Context, container, name string) (*Blob, error)
	DeleteBlob(ctx context.Context, container, name string) error
	Close() error
}

// Account 是存储模拟服务的入口，所有 HTTP 处理都通过它访问 Backend。
type Account struct {
	name    string
	backend Backend
	now     func() time.Time
}

// NewAccount 创建账户并预置容器。
func NewAccount(ctx context.Context, name string, backend Backend, containers []string) (*Account, error) {
	if backend == nil {
		return nil, errors.New("storage backend is required")
	}
	for _, container := range containers {
		if err := backend.CreateContainer(ctx, container); err != nil {
			return nil, fmt.Errorf("seed container %s: %w", container, err)
		}
	}
	return &Account{name: name, backend: backend, now: time.Now}, nil
}

// Name 返回账户名。
func (a *Account) Name() string {
	return a.name
}

// Containers 返回已预置的容器名。
func (a *Account) Containers(ctx context.Context) ([]string, error) {
	return a.backend.Containers(ctx)
}

// Put 写入 Blob 并重新生成元数据。同名 Blob 会被整体替换。
func (a *Account) Put(ctx context.Context, container, name string, content []byte) (Properties, error) {
	props := newProperties(content, a.now())
	if err := a.backend.PutBlob(ctx, container, name, content, props); err != nil {
		return Properties{}, err
	}
	return props, nil
}

// Get 读取 Blob。
func (a *Account) Get(ctx context.Context, container, name string) (*Blob, error) {
	return a.backend.GetBlob(ctx, container, name)
}

// Delete 删除 Blob。
func (a *Account) Delete(ctx context.Context, container, name string) error {
	return a.backend.DeleteBlob(ctx, container, name)
}

// Close 释放底层后端。
func (a *Account) Close() error {
	return a.backend.Close()
}

var lastETagTick atomic.Int64

// newProperties 计算 Content-MD5 与 ETag。ETag 单调递增，
// 同一纳秒内的两次写入也会得到不同的值。
func newProperties(content []byte, now time.Time) Properties {
	sum := md5.Sum(content) //nolint:gosec
	return Properties{
		ContentMD5:   base64.StdEncoding.EncodeToString(sum[:]),
		LastModified: now.UTC().Truncate(time.Second),
		ETag:         fmt.Sprintf("\"0x%X\"", nextETagTick(now.UnixNano())),
		Size:         int64(len(content)),
	}
}

func nextETagTick(candidate int64) int64 {
	for {
		last := lastETagTick.Load()
		next := candidate
		if next <= last {
			next = last + 1
		}
		if lastETagTick.CompareAndSwap(last, next) {
			return next
		}
	}
}
