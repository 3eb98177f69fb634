package api

import (
	"encoding/json"
	"io"
	"sync"
)

// Stats 按 HTTP 方法统计 Blob 请求数，端到端测试用它确认请求是否到达源站。
type Stats struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newStats() *Stats {
	return &Stats{counts: make(map[string]int64)}
}

// Record 记录一次请求。
func (s *Stats) Record(method string) {
	s.mu.Lock()
	s.counts[method]++
	s.mu.Unlock()
}

// Count 返回指定方法的请求数。
func (s *Stats) Count(method string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method]
}

// Snapshot 返回计数副本。
func (s *Stats) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

type statsPayload struct {
	Account  string           `json:"account"`
	Requests map[string]int64 `json:"requests"`
}

func writeJSON(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}
