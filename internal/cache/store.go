package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/perfcache/perfcache/internal/exchange"
	"github.com/perfcache/perfcache/internal/fingerprint"
)

// FetchFunc 在缓存未命中时从上游获取响应。
type FetchFunc func(ctx context.Context) (*exchange.Response, error)

// Options 控制缓存的并发策略。
type Options struct {
	// SingleFlight 为 true 时，同一指纹的并发未命中只触发一次上游请求；
	// 为 false 时允许重复请求，最后写入者生效。
	SingleFlight bool
}

// Stats 是缓存计数器的快照，供诊断接口输出。
type Stats struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	UpstreamCalls int64 `json:"upstream_calls"`
}

// Store 是按指纹索引的内存缓存，由编排层在启动时构建一次并注入。
type Store struct {
	mu      sync.RWMutex
	entries map[fingerprint.Fingerprint]*exchange.Response

	singleFlight bool
	group        singleflight.Group

	hits          atomic.Int64
	misses        atomic.Int64
	upstreamCalls atomic.Int64
}

// New 构造空缓存。
func New(opts Options) *Store {
	return &Store{
		entries:      make(map[fingerprint.Fingerprint]*exchange.Response),
		singleFlight: opts.SingleFlight,
	}
}

// TryGet 非阻塞查找，返回条目的副本。
func (s *Store) TryGet(fp fingerprint.Fingerprint) (*exchange.Response, bool) {
	s.mu.RLock()
	resp, ok := s.entries[fp]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return resp.Clone(), true
}

// Put 插入或覆盖条目，最后写入者生效。
func (s *Store) Put(fp fingerprint.Fingerprint, resp *exchange.Response) {
	if resp == nil {
		return
	}
	stored := resp.Clone()
	s.mu.Lock()
	s.entries[fp] = stored
	s.mu.Unlock()
}

// Len 返回当前缓存条目数。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats 返回计数器快照。
func (s *Store) Stats() Stats {
	return Stats{
		Entries:       s.Len(),
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		UpstreamCalls: s.upstreamCalls.Load(),
	}
}

// Fetch 先查缓存，未命中时调用 fetch 并写入结果。hit 表示响应来自缓存。
// fetch 失败时不写入任何内容，错误原样返回。
func (s *Store) Fetch(ctx context.Context, fp fingerprint.Fingerprint, fetch FetchFunc) (*exchange.Response, bool, error) {
	if resp, ok := s.TryGet(fp); ok {
		s.hits.Add(1)
		return resp, true, nil
	}
	s.misses.Add(1)

	if !s.singleFlight {
		resp, err := s.load(ctx, fp, fetch)
		if err != nil {
			return nil, false, err
		}
		return resp.Clone(), false, nil
	}

	// 共享调用不受首个请求取消的影响，超时由上游客户端负责。
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(fp.Key(), func() (interface{}, error) {
		s.mu.RLock()
		existing, ok := s.entries[fp]
		s.mu.RUnlock()
		if ok {
			return existing, nil
		}
		return s.load(shared, fp, fetch)
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*exchange.Response).Clone(), false, nil
}

// Pass 与 Fetch 一样先查缓存并计数，但未命中时的回源结果不写入缓存，也不合并并发请求。
func (s *Store) Pass(ctx context.Context, fp fingerprint.Fingerprint, fetch FetchFunc) (*exchange.Response, bool, error) {
	if resp, ok := s.TryGet(fp); ok {
		s.hits.Add(1)
		return resp, true, nil
	}
	s.misses.Add(1)
	s.upstreamCalls.Add(1)
	resp, err := fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	return resp, false, nil
}

func (s *Store) load(ctx context.Context, fp fingerprint.Fingerprint, fetch FetchFunc) (*exchange.Response, error) {
	s.upstreamCalls.Add(1)
	resp, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.Put(fp, resp)
	return resp, nil
}
