// Package observe wraps a component's data model so that mutations produce
// ordered change records.
//
// A data tree is a plain nested map shared by identity with whoever
// constructed it. Exactly one owning proxy drives a component's reactive
// behavior; any number of external observer proxies may watch the same tree
// without participating in refresh or fetch logic. Change delivery is
// synchronous: the callback for a mutation batch runs before the mutating
// call returns.
package observe

import (
	"reflect"
	"strings"
	"sync"
)

// Kind identifies the type of a mutation.
type Kind int

const (
	// KindAdd indicates a write to a previously absent key.
	KindAdd Kind = iota
	// KindUpdate indicates a write that replaced an existing value.
	KindUpdate
	// KindDelete indicates a key removal.
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is one observed mutation. Changes within a batch are ordered by
// mutation order, not significance.
type Change struct {
	Kind     Kind
	Path     string
	NewValue any
	// Container is the map that held the mutated key.
	Container map[string]any
}

// tree is the shared mutable state behind one data model. All proxies
// created for the same model reference the same tree.
type tree struct {
	mu      sync.Mutex
	data    map[string]any
	proxies []*Proxy
}

// Proxy is one observation handle on a data tree.
type Proxy struct {
	tree     *tree
	onChange func([]Change)
	external bool
	detached bool
}

// New wraps target in a new observable tree and returns its first proxy.
// The target map is shared by identity, not copied: reads through the proxy
// and reads through the original reference see the same data.
//
// The external flag marks the proxy as a side observer. External proxies
// receive the same change batches as the owning proxy but exist purely for
// monitoring.
func New(target map[string]any, external bool, onChange func([]Change)) *Proxy {
	if target == nil {
		target = map[string]any{}
	}
	t := &tree{data: target}
	return t.attach(external, onChange)
}

func (t *tree) attach(external bool, onChange func([]Change)) *Proxy {
	p := &Proxy{tree: t, onChange: onChange, external: external}
	t.mu.Lock()
	t.proxies = append(t.proxies, p)
	t.mu.Unlock()
	return p
}

// Observe attaches an external observer proxy to the same tree. Observer
// callbacks fire after earlier-attached proxies, in attach order.
func (p *Proxy) Observe(onChange func([]Change)) *Proxy {
	return p.tree.attach(true, onChange)
}

// Detach permanently stops change notifications for this proxy. The
// underlying tree keeps serving any other attached proxies.
func (p *Proxy) Detach() {
	t := p.tree
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.detached {
		return
	}
	p.detached = true
	for i, q := range t.proxies {
		if q == p {
			t.proxies = append(t.proxies[:i], t.proxies[i+1:]...)
			break
		}
	}
}

// External reports whether this proxy was created as a side observer.
func (p *Proxy) External() bool {
	return p.external
}

// Data returns the underlying data map. The map is shared; callers must
// mutate it through the proxy for changes to be observed.
func (p *Proxy) Data() map[string]any {
	return p.tree.data
}

// Get resolves a dot-path against the tree.
func (p *Proxy) Get(path string) (any, bool) {
	t := p.tree
	t.mu.Lock()
	defer t.mu.Unlock()
	container := t.data
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		v, ok := container[seg]
		if !ok {
			return nil, false
		}
		if i == len(segs)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		container = next
	}
	return nil, false
}

// Set writes value at the dot-path, creating intermediate maps on demand,
// and delivers a single-change batch synchronously. Writing a value equal
// to the current one produces no change record.
func (p *Proxy) Set(path string, value any) {
	p.Update(func(b *Batch) {
		b.Set(path, value)
	})
}

// Delete removes the key at the dot-path and delivers a single-change
// batch synchronously. Deleting an absent key produces no change record.
func (p *Proxy) Delete(path string) {
	p.Update(func(b *Batch) {
		b.Delete(path)
	})
}

// Update runs fn against a mutation batch. All change records produced by
// the batch are delivered in one callback invocation per attached proxy,
// synchronously, before Update returns.
func (p *Proxy) Update(fn func(*Batch)) {
	if fn == nil {
		return
	}
	t := p.tree
	t.mu.Lock()
	if p.detached {
		t.mu.Unlock()
		return
	}
	b := &Batch{tree: t}
	fn(b)
	changes := b.changes
	targets := make([]*Proxy, len(t.proxies))
	copy(targets, t.proxies)
	t.mu.Unlock()

	if len(changes) == 0 {
		return
	}
	for _, q := range targets {
		if q.onChange != nil {
			q.onChange(changes)
		}
	}
}

// Batch accumulates mutations so they notify as one ordered sequence.
type Batch struct {
	tree    *tree
	changes []Change
}

// Set writes value at the dot-path within the batch.
func (b *Batch) Set(path string, value any) {
	container, leaf, created := b.descend(path, true)
	if container == nil {
		return
	}
	b.changes = append(b.changes, created...)
	old, exists := container[leaf]
	if exists && reflect.DeepEqual(old, value) {
		return
	}
	container[leaf] = value
	kind := KindUpdate
	if !exists {
		kind = KindAdd
	}
	b.changes = append(b.changes, Change{Kind: kind, Path: path, NewValue: value, Container: container})
}

// Delete removes the key at the dot-path within the batch.
func (b *Batch) Delete(path string) {
	container, leaf, _ := b.descend(path, false)
	if container == nil {
		return
	}
	if _, exists := container[leaf]; !exists {
		return
	}
	delete(container, leaf)
	b.changes = append(b.changes, Change{Kind: KindDelete, Path: path, Container: container})
}

// descend walks to the map containing the final path segment. With create
// set, absent intermediate maps are created and recorded as adds; without
// it, a broken path returns nil.
func (b *Batch) descend(path string, create bool) (map[string]any, string, []Change) {
	segs := strings.Split(path, ".")
	container := b.tree.data
	var created []Change
	for i := 0; i < len(segs)-1; i++ {
		v, ok := container[segs[i]]
		if ok {
			next, isMap := v.(map[string]any)
			if !isMap {
				if !create {
					return nil, "", nil
				}
				next = map[string]any{}
				container[segs[i]] = next
				created = append(created, Change{
					Kind:      KindUpdate,
					Path:      strings.Join(segs[:i+1], "."),
					NewValue:  next,
					Container: container,
				})
				container = next
				continue
			}
			container = next
			continue
		}
		if !create {
			return nil, "", nil
		}
		next := map[string]any{}
		container[segs[i]] = next
		created = append(created, Change{
			Kind:      KindAdd,
			Path:      strings.Join(segs[:i+1], "."),
			NewValue:  next,
			Container: container,
		})
		container = next
	}
	return container, segs[len(segs)-1], created
}
