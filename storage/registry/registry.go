// Package registry is the build-time plugin table of storage backends.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
)

// Request carries the caller context a backend may need to open.
type Request struct {
	// Account is the account uploads are attributed to, if any.
	Account string
	// Network is the network requested on the command line, possibly empty.
	Network string
	// HashName is the multihash function blocks are hashed with.
	HashName string
	// RPCURL and Gateways override a network backend's default endpoints.
	RPCURL   string
	Gateways []string
	// Timeout bounds each existence check request.
	Timeout time.Duration
	// CredentialsDir overrides the signing credentials directory.
	CredentialsDir string
	// Lookup reads environment variables. Nil means the process environment.
	Lookup func(key string) (string, bool)
}

// Backend describes one storage backend a binary can open by name.
//
// Backend packages call MustRegister from init, so linking a backend into a
// binary is a blank import of its package.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// RegisterFlags adds backend-specific flags to fs.
	// It must be safe to call exactly once per process.
	RegisterFlags func(fs *pflag.FlagSet)

	// Open constructs the backend using values parsed into flags registered by
	// RegisterFlags. It returns an optional close function.
	Open func(req Request) (storage.Backend, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	switch {
	case b.Name == "":
		return model.NewError(model.KindConfiguration, "registry: backend without a name")
	case b.RegisterFlags == nil || b.Open == nil:
		return model.NewError(model.KindConfiguration, "registry: backend %q needs RegisterFlags and Open", b.Name)
	case b.Usage == 0:
		return model.NewError(model.KindConfiguration, "registry: backend %q is not enabled for any program", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return model.NewError(model.KindConfiguration, "registry: backend %q registered twice", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns the backends usable by usage, by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	var out []Backend
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names is List reduced to names.
func Names(usage Usage) []string {
	var names []string
	for _, b := range List(usage) {
		names = append(names, b.Name)
	}
	return names
}

// RegisterFlags registers flags for all backends matching usage.
func RegisterFlags(fs *pflag.FlagSet, usage Usage) {
	for _, b := range List(usage) {
		b.RegisterFlags(fs)
	}
}

// Open opens the named backend if it exists and matches usage.
func Open(name string, usage Usage, req Request) (storage.Backend, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, model.NewError(model.KindConfiguration, "unknown backend %q (available: %v)", name, Names(usage))
	}
	if !b.Usage.allows(usage) {
		return nil, nil, model.NewError(model.KindConfiguration, "backend %q not supported in this binary", name)
	}
	return b.Open(req)
}
