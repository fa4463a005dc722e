package rowstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and configures a reader backend.
type Config struct {
	// Kind selects the backend: "sqlite", "postgres", "mssql", or "mysql"
	// when the corresponding packages are linked in (see rowstore/all).
	Kind string `json:"kind"`

	// DSN is the backend connection string.
	DSN string `json:"dsn"`

	// SchemaName is the database schema holding the export tables, for
	// backends that have one (Postgres). Ignored elsewhere.
	SchemaName string `json:"schema_name,omitempty"`
}

// Factory constructs a Reader for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Reader, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under the given kind. Re-registering a
// kind replaces the previous factory, which tests use to install fakes.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// Open constructs a Reader for cfg.Kind. Unknown kinds list the registered
// alternatives so a typo in a config file is diagnosable from the error
// alone.
func Open(ctx context.Context, cfg Config) (Reader, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("rowstore: unknown kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	return fn(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
