package service

import (
	"fmt"
	"net/textproto"
	"sort"
	"strings"
	"sync"
)

const defaultKey = "default"

var globalRegistry = newRegistry()

// Profile 记录一个服务标签的静态信息。
type Profile struct {
	Key         string
	Description string
	// CacheKeyHeaders 是参与指纹计算的请求头，顺序即指纹中请求头的顺序。
	CacheKeyHeaders []string
}

// DefaultKey 返回未声明服务标签时使用的默认键。
func DefaultKey() string {
	return defaultKey
}

type registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func newRegistry() *registry {
	return &registry{profiles: make(map[string]Profile)}
}

// Register 将服务描述加入全局注册表，重复键会返回错误。
func Register(profile Profile) error {
	return globalRegistry.register(profile)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(profile Profile) {
	if err := Register(profile); err != nil {
		panic(err)
	}
}

// Lookup 返回指定键的服务描述，未注册时返回 false。
func Lookup(key string) (Profile, bool) {
	return globalRegistry.lookup(key)
}

// Resolve 总是返回一个服务描述：空标签或未知标签回退到 default。
func Resolve(key string) Profile {
	if profile, ok := globalRegistry.lookup(key); ok {
		return profile
	}
	if profile, ok := globalRegistry.lookup(defaultKey); ok {
		return profile
	}
	return Profile{Key: defaultKey}
}

// List 返回按键排序的服务描述列表。
func List() []Profile {
	return globalRegistry.list()
}

// Keys 返回所有已注册服务的键值。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, profile := range items {
		result[i] = profile.Key
	}
	return result
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(profile Profile) error {
	key := normalizeKey(profile.Key)
	if key == "" {
		return fmt.Errorf("service key is required")
	}
	profile.Key = key

	headers := make([]string, 0, len(profile.CacheKeyHeaders))
	seen := make(map[string]struct{}, len(profile.CacheKeyHeaders))
	for _, name := range profile.CacheKeyHeaders {
		canonical := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
		if canonical == "" {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		headers = append(headers, canonical)
	}
	profile.CacheKeyHeaders = headers

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[key]; exists {
		return fmt.Errorf("service %s already registered", key)
	}
	r.profiles[key] = profile
	return nil
}

func (r *registry) lookup(key string) (Profile, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return Profile{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[normalized]
	if !ok {
		return Profile{}, false
	}
	profile.CacheKeyHeaders = append([]string(nil), profile.CacheKeyHeaders...)
	return profile, true
}

func (r *registry) list() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.profiles) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.profiles))
	for key := range r.profiles {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Profile, 0, len(keys))
	for _, key := range keys {
		profile := r.profiles[key]
		profile.CacheKeyHeaders = append([]string(nil), profile.CacheKeyHeaders...)
		result = append(result, profile)
	}
	return result
}
