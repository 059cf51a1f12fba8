package dht

import (
	"errors"
	"sort"
	"sync"
)

// K is the size of a closest-set.
const K = 3

var ErrSelfEntry = errors.New("dht: self entry is immutable")

// Entry is one address record of the directory.
type Entry struct {
	Name string
	Addr string // host:port
	ID   HashID
}

// Directory maps peer names to addresses. It always contains self.
type Directory struct {
	self string

	mu      sync.RWMutex
	entries map[string]Entry
}

func NewDirectory(selfName, selfAddr string) *Directory {
	d := &Directory{
		self:    selfName,
		entries: make(map[string]Entry),
	}
	d.entries[selfName] = Entry{Name: selfName, Addr: selfAddr, ID: HashOf(selfName)}
	return d
}

// SetSelfAddr updates the advertised address of this node.
func (d *Directory) SetSelfAddr(addr string) {
	d.mu.Lock()
	e := d.entries[d.self]
	e.Addr = addr
	d.entries[d.self] = e
	d.mu.Unlock()
}

// Upsert records addr for name. It reports whether the name was new.
// Remote data never overrides the self entry.
func (d *Directory) Upsert(name, addr string) (added bool, err error) {
	if name == d.self {
		return false, ErrSelfEntry
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[name]
	if !ok {
		e = Entry{Name: name, ID: HashOf(name)}
	}
	e.Addr = addr
	d.entries[name] = e
	return !ok, nil
}

// AddIfAbsent records addr for name only when name is unknown.
func (d *Directory) AddIfAbsent(name, addr string) (added bool, err error) {
	if name == d.self {
		return false, ErrSelfEntry
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries[name]; ok {
		return false, nil
	}
	d.entries[name] = Entry{Name: name, Addr: addr, ID: HashOf(name)}
	return true, nil
}

// CompareAndSwap replaces the address of name with next when it currently
// equals expected. present reports whether name was known at all.
func (d *Directory) CompareAndSwap(name, expected, next string) (present, swapped bool, err error) {
	if name == d.self {
		return true, false, ErrSelfEntry
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[name]
	if !ok {
		return false, false, nil
	}
	if e.Addr != expected {
		return true, false, nil
	}
	e.Addr = next
	d.entries[name] = e
	return true, true, nil
}

func (d *Directory) Lookup(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[name]
	return e.Addr, ok
}

func (d *Directory) Remove(name string) {
	if name == d.self {
		return
	}
	d.mu.Lock()
	delete(d.entries, name)
	d.mu.Unlock()
}

// Len returns the number of known names, self included.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Entries returns a snapshot in name order.
func (d *Directory) Entries() []Entry {
	d.mu.RLock()
	out := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Closest returns up to n entries (self included) ordered by XOR distance
// to target, ties broken by name.
func (d *Directory) Closest(target HashID, n int) []Entry {
	if n <= 0 {
		n = K
	}

	d.mu.RLock()
	all := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		all = append(all, e)
	}
	d.mu.RUnlock()

	SortByDistance(all, target)

	if len(all) > n {
		all = all[:n]
	}
	return all
}

// IsAuthoritative reports whether self is in the closest-set of key.
func (d *Directory) IsAuthoritative(key string) bool {
	for _, e := range d.Closest(HashOf(key), K) {
		if e.Name == d.self {
			return true
		}
	}
	return false
}

// SortByDistance sorts entries by XOR distance to target, then by name.
func SortByDistance(entries []Entry, target HashID) {
	type nd struct {
		e    Entry
		dist HashID
	}
	tmp := make([]nd, len(entries))
	for i := range entries {
		tmp[i] = nd{e: entries[i], dist: Distance(entries[i].ID, target)}
	}

	sort.Slice(tmp, func(i, j int) bool {
		if tmp[i].dist != tmp[j].dist {
			return DistanceLess(tmp[i].dist, tmp[j].dist)
		}
		return tmp[i].e.Name < tmp[j].e.Name
	})
	for i := range tmp {
		entries[i] = tmp[i].e
	}
}
