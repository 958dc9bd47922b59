// Package cvar holds process-wide integer settings addressed by name, in the
// style of a game engine console: any goroutine may read a variable at any
// time, and writes come from one place (the CLI, the config file or the HTTP
// API).
//
// Zero is the conventional "unset" value. SetIfUnset lets code supply a
// default without clobbering a value the user chose explicitly.
package cvar

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrUnknownVar is returned when a name is not registered.
var ErrUnknownVar = errors.New("unknown console variable")

// ErrOutOfRange is returned when a value does not fit a variable.
var ErrOutOfRange = errors.New("value out of range")

// Var is a single named integer setting.
type Var struct {
	name  string
	help  string
	def   int32
	min   int32
	value atomic.Int32
}

// Option adjusts a variable at registration.
type Option func(*Var)

// Min rejects values below n.
func Min(n int32) Option {
	return func(v *Var) { v.min = n }
}

// Name returns the registered name, e.g. "remote.framerate".
func (v *Var) Name() string { return v.name }

// Help returns the description given at registration.
func (v *Var) Help() string { return v.help }

// Default returns the value the variable was registered with.
func (v *Var) Default() int { return int(v.def) }

// Get returns the current value.
func (v *Var) Get() int { return int(v.value.Load()) }

// Min returns the lowest accepted value.
func (v *Var) Min() int { return int(v.min) }

func (v *Var) check(n int) error {
	if n < int(v.min) || n > math.MaxInt32 {
		return fmt.Errorf("%w: %s=%d (min %d, max %d)", ErrOutOfRange, v.name, n, v.min, math.MaxInt32)
	}
	return nil
}

// Set stores a new value, or returns ErrOutOfRange and leaves the variable
// untouched.
func (v *Var) Set(n int) error {
	if err := v.check(n); err != nil {
		return err
	}
	v.value.Store(int32(n))
	return nil
}

// IsSet reports whether the value differs from the zero sentinel.
func (v *Var) IsSet() bool { return v.value.Load() != 0 }

// SetIfUnset stores n only if the current value is the zero sentinel and n
// is in range. It reports whether the value was written.
func (v *Var) SetIfUnset(n int) bool {
	if v.check(n) != nil {
		return false
	}
	return v.value.CompareAndSwap(0, int32(n))
}

// Reset restores the registration default.
func (v *Var) Reset() { v.value.Store(v.def) }

// Registry is a set of variables keyed by name.
type Registry struct {
	mu   sync.RWMutex
	vars map[string]*Var
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{vars: make(map[string]*Var)}
}

// Default is the process-wide registry.
var Default = NewRegistry()

// Register adds a variable, or returns the existing one when the name is
// already taken so package-level registration stays idempotent. Options only
// apply to a new variable.
func (r *Registry) Register(name string, def int, help string, opts ...Option) *Var {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.vars[name]; ok {
		return v
	}

	v := &Var{name: name, help: help, def: int32(def), min: math.MinInt32}
	for _, opt := range opts {
		opt(v)
	}
	v.value.Store(int32(def))
	r.vars[name] = v
	return v
}

// Lookup finds a variable by name.
func (r *Registry) Lookup(name string) (*Var, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[name]
	return v, ok
}

// Set assigns a registered variable by name.
func (r *Registry) Set(name string, n int) error {
	v, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVar, name)
	}
	return v.Set(n)
}

// All returns the registered variables sorted by name.
func (r *Registry) All() []*Var {
	r.mu.RLock()
	vars := make([]*Var, 0, len(r.vars))
	for _, v := range r.vars {
		vars = append(vars, v)
	}
	r.mu.RUnlock()

	sort.Slice(vars, func(i, j int) bool { return vars[i].name < vars[j].name })
	return vars
}

// Register adds a variable to the Default registry.
func Register(name string, def int, help string, opts ...Option) *Var {
	return Default.Register(name, def, help, opts...)
}
