package engine

import "sync"

// monitorTable counts outstanding handles per database. It backs the idle
// query: a database is idle when nobody but the asking caller holds it.
type monitorTable struct {
	mu   sync.Mutex
	refs map[string]int
}

func newMonitorTable() *monitorTable {
	return &monitorTable{refs: make(map[string]int)}
}

func (m *monitorTable) acquire(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[name]++
}

func (m *monitorTable) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs[name] <= 1 {
		delete(m.refs, name)
		return
	}
	m.refs[name]--
}

func (m *monitorTable) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[name]
}
