// Package registry interns routine names to dense integer identifiers.
package registry

import (
	"strconv"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// ID identifies a routine for the lifetime of a Registry. Zero is reserved.
type ID uint32

const initialCapacity = 1024

// Registry maps routine names to IDs and back. IDs are handed out once and
// never reassigned. Lookups in both directions are lock-free; only growth of
// the id->name table takes a lock.
type Registry struct {
	byName *xsync.MapOf[string, ID]
	next   atomic.Uint32

	mu    sync.Mutex // serializes writers of names
	names atomic.Pointer[[]atomic.Pointer[string]]
	count atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		byName: xsync.NewMapOf[string, ID](),
	}
	table := make([]atomic.Pointer[string], initialCapacity)
	r.names.Store(&table)
	return r
}

// IDFor returns the ID for name, allocating one on first use. When several
// goroutines race on the same new name, exactly one allocation wins and every
// caller gets the winner's ID.
func (r *Registry) IDFor(name string) ID {
	if id, ok := r.byName.Load(name); ok {
		return id
	}

	tentative := ID(r.next.Inc())
	r.setName(tentative, &name)

	id, loaded := r.byName.LoadOrStore(name, tentative)
	if loaded {
		// Lost the race; the tentative slot is never handed out.
		r.setName(tentative, nil)
		return id
	}
	r.count.Inc()
	return id
}

// NameFor returns the name registered for id, or a placeholder of the form
// "<id:N>" when the id is unknown.
func (r *Registry) NameFor(id ID) string {
	table := *r.names.Load()
	if int(id) < len(table) {
		if s := table[id].Load(); s != nil {
			return *s
		}
	}
	return placeholder(id)
}

// Lookup returns the ID already assigned to name, if any.
func (r *Registry) Lookup(name string) (ID, bool) {
	return r.byName.Load(name)
}

// Len returns the number of distinct names registered.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

func (r *Registry) setName(id ID, name *string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := *r.names.Load()
	if int(id) >= len(table) {
		newCap := len(table)
		for newCap <= int(id) {
			newCap <<= 1
		}
		grown := make([]atomic.Pointer[string], newCap)
		for i := range table {
			grown[i].Store(table[i].Load())
		}
		r.names.Store(&grown)
		table = grown
	}
	table[id].Store(name)
}

func placeholder(id ID) string {
	return "<id:" + strconv.FormatUint(uint64(id), 10) + ">"
}
