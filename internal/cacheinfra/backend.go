package cacheinfra

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// Backend stores encoded entity snapshots by string key. Implementations must
// be safe for concurrent use; a Set on an existing key replaces it.
type Backend interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string) bool
	DeleteByPrefix(prefix string) int
	Clear() int
	Len() int
}

// mapBackend keeps every entry until it is deleted explicitly. There is no
// TTL and no size bound.
type mapBackend struct {
	entries *xsync.MapOf[string, []byte]
}

// NewMapBackend creates an unbounded backend on a lock-free concurrent map.
func NewMapBackend() Backend {
	return &mapBackend{entries: xsync.NewMapOf[string, []byte]()}
}

func (m *mapBackend) Get(key string) ([]byte, bool) {
	return m.entries.Load(key)
}

func (m *mapBackend) Set(key string, value []byte) {
	m.entries.Store(key, value)
}

func (m *mapBackend) Delete(key string) bool {
	_, ok := m.entries.LoadAndDelete(key)
	return ok
}

func (m *mapBackend) DeleteByPrefix(prefix string) int {
	n := 0
	m.entries.Range(func(key string, _ []byte) bool {
		if strings.HasPrefix(key, prefix) {
			if _, ok := m.entries.LoadAndDelete(key); ok {
				n++
			}
		}
		return true
	})
	return n
}

func (m *mapBackend) Clear() int {
	n := m.entries.Size()
	m.entries.Clear()
	return n
}

func (m *mapBackend) Len() int {
	return m.entries.Size()
}

// disabledBackend never stores anything. It backs a cache that is switched off.
type disabledBackend struct{}

// NewDisabledBackend returns a backend on which every Get misses.
func NewDisabledBackend() Backend { return disabledBackend{} }

func (disabledBackend) Get(string) ([]byte, bool) { return nil, false }
func (disabledBackend) Set(string, []byte) {}
func (disabledBackend) Delete(string) bool { return false }
func (disabledBackend) DeleteByPrefix(string) int { return 0 }
func (disabledBackend) Clear() int { return 0 }
func (disabledBackend) Len() int { return 0 }
