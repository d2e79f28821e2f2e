package syncmap

import "sync"

type syncMap = sync.Map

// Map is a typed wrapper around [sync.Map].
type Map[K comparable, V any] struct {
	syncMap
}

func (m *Map[K, V]) LoadOrStore(k K, v V) (V, bool) {
	vAny, loaded := m.syncMap.LoadOrStore(k, v)
	return vAny.(V), loaded
}

func (m *Map[K, V]) Load(k K) (V, bool) {
	vAny, ok := m.syncMap.Load(k)
	if !ok {
		vAny = *new(V)
	}
	return vAny.(V), ok
}
