package registry

import (
	"sort"
	"sync"

	"github.com/alanyang/ipc-bridge/internal/domain/channel"
	"github.com/alanyang/ipc-bridge/internal/domain/descriptor"
	"github.com/alanyang/ipc-bridge/internal/domain/entry"
)

// Root is the namespace key of entries registered without a namespace.
const Root = ""

// Change records one name bound by Merge. Old is the zero Entry when the name
// was not bound before.
type Change struct {
	Namespace string
	Name      string
	Old       entry.Entry
	New       entry.Entry
}

// Registry is the host's table of namespaces. It is created at host startup
// and lives for the process; merges accumulate and never replace a whole
// namespace.
type Registry struct {
	mu         sync.RWMutex
	namespaces map[string]entry.Set
}

func New() *Registry {
	return &Registry{namespaces: make(map[string]entry.Set)}
}

// Merge binds every valid entry of set under ns, overwriting names already
// bound there. Invalid entries, and names that are not valid channel names,
// are skipped and reported by name.
func (r *Registry) Merge(ns string, set entry.Set) (changes []Change, skipped []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.namespaces[ns]
	for _, name := range sortedNames(set) {
		e := set[name]
		if !channel.ValidName(name) || !e.Valid() {
			skipped = append(skipped, name)
			continue
		}
		if target == nil {
			target = make(entry.Set)
			r.namespaces[ns] = target
		}
		changes = append(changes, Change{Namespace: ns, Name: name, Old: target[name], New: e})
		target[name] = e
	}
	return changes, skipped
}

func (r *Registry) Lookup(ns, name string) (entry.Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.namespaces[ns][name]
	return e, ok
}

// Snapshot returns a copy of the table that later merges do not affect.
func (r *Registry) Snapshot() map[string]entry.Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]entry.Set, len(r.namespaces))
	for ns, set := range r.namespaces {
		cp := make(entry.Set, len(set))
		for name, e := range set {
			cp[name] = e
		}
		out[ns] = cp
	}
	return out
}

// Describe builds the discovery descriptor from a snapshot. Records are sorted
// by name so a fixed registry always yields the same text.
func (r *Registry) Describe() descriptor.List {
	snap := r.Snapshot()
	list := describeSet(snap[Root])

	namespaces := make([]string, 0, len(snap))
	for ns := range snap {
		if ns != Root {
			namespaces = append(namespaces, ns)
		}
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		list = append(list, descriptor.Namespace(ns, describeSet(snap[ns])...))
	}
	if list == nil {
		list = descriptor.List{}
	}
	return list
}

func describeSet(set entry.Set) descriptor.List {
	var out descriptor.List
	for _, name := range sortedNames(set) {
		switch set[name].Kind {
		case entry.KindFunction:
			out = append(out, descriptor.Function(name))
		case entry.KindEvents:
			out = append(out, descriptor.Events(name))
		}
	}
	return out
}

func sortedNames(set entry.Set) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
