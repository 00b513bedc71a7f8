package converters

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Adapter converts one dataset from its native layout into the unified one.
type Adapter interface {
	Convert(ctx context.Context, env *Env) (*Report, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, env *Env) (*Report, error)

func (f AdapterFunc) Convert(ctx context.Context, env *Env) (*Report, error) {
	return f(ctx, env)
}

var (
	adaptersMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// Register makes a dataset adapter available by the provided name.
// If Register is called twice with the same name or if adapter is nil, it panics.
func Register(name string, adapter Adapter) {
	adaptersMu.Lock()
	defer adaptersMu.Unlock()
	if adapter == nil {
		panic("converters: Register adapter is nil")
	}
	if _, dup := adapters[name]; dup {
		panic("converters: Register called twice for adapter " + name)
	}
	adapters[name] = adapter
}

// Lookup returns the adapter registered under name.
func Lookup(name string) (Adapter, error) {
	adaptersMu.RLock()
	adapter, ok := adapters[name]
	adaptersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("converters: unknown dataset %q (forgotten import?)", name)
	}
	return adapter, nil
}

// Adapters returns a sorted list of the names of the registered adapters.
func Adapters() []string {
	adaptersMu.RLock()
	defer adaptersMu.RUnlock()
	list := make([]string, 0, len(adapters))
	for name := range adapters {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}
