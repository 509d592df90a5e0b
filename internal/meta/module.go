package meta

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// apiPrefix is the fixed namespace every module API is mounted under.
const apiPrefix = "/api/"

// Info describes a module's identity.
type Info struct {
	Pid          string // provider id, e.g. "a"
	Name         string // module name within the provider, e.g. "base"
	RelativeName string // "<pid>-<name>"
	URL          string // "<pid>/<name>"
}

// ParseName extracts a module relative name from a request path.
//
//	ParseName("/api/a/base/kv/get") // "a-base"
//	ParseName("/a/base/queue/echo") // "a-base"
//	ParseName("/api/x")             // ""
func ParseName(path string) string {
	if path == "" {
		return ""
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimPrefix(path, apiPrefix)
	path = strings.TrimPrefix(path, "/")

	parts := make([]string, 0, 2)
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		parts = append(parts, p)
		if len(parts) == 2 {
			break
		}
	}
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "-" + parts[1]
}

// ParseInfo parses a relative name ("a-base") into an Info.
// Returns false if the name does not have the "<pid>-<name>" shape.
func ParseInfo(relativeName string) (Info, bool) {
	relativeName = normalize(relativeName)
	pid, name, ok := strings.Cut(relativeName, "-")
	if !ok || pid == "" || name == "" || strings.Contains(name, "/") || strings.Contains(pid, "/") {
		return Info{}, false
	}
	return Info{
		Pid:          pid,
		Name:         name,
		RelativeName: relativeName,
		URL:          pid + "/" + name,
	}, true
}

// QueueConfig is the registered configuration of one module queue.
type QueueConfig struct {
	Module string // relative module name owning the queue
	Name   string
	Path   string // endpoint path, relative to the module or absolute
}

// Module is a registered module.
type Module struct {
	Info   Info
	Queues map[string]QueueConfig
}

// Registry resolves modules and queue configurations.
//
// Thread-safety: all methods are safe for concurrent use. In practice the
// registry is written during startup and only read afterwards.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// Add registers a module and its queues. Adding an already registered
// module merges the queue set.
func (r *Registry) Add(relativeName string, queues ...QueueConfig) (*Module, error) {
	info, ok := ParseInfo(relativeName)
	if !ok {
		return nil, fmt.Errorf("invalid module name %q", relativeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, exists := r.modules[info.RelativeName]
	if !exists {
		m = &Module{Info: info, Queues: make(map[string]QueueConfig)}
		r.modules[info.RelativeName] = m
	}
	for _, q := range queues {
		if q.Name == "" || q.Path == "" {
			return nil, fmt.Errorf("module %s: queue requires name and path", info.RelativeName)
		}
		q.Module = info.RelativeName
		m.Queues[q.Name] = q
	}
	return m, nil
}

// Module returns the module registered under relativeName.
func (r *Registry) Module(relativeName string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[normalize(relativeName)]
	return m, ok
}

// Queue returns the configuration registered under "module:queueName".
func (r *Registry) Queue(module, queueName string) (QueueConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[normalize(module)]
	if !ok {
		return QueueConfig{}, false
	}
	q, ok := m.Queues[queueName]
	return q, ok
}

// Modules returns all registered modules ordered by relative name.
func (r *Registry) Modules() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Info.RelativeName < out[j].Info.RelativeName
	})
	return out
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
