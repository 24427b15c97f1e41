package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/annotify/annotify/internal/timex"
)

// Memory is an in-process Store with the same merge semantics as the
// production backend: per-field last-write-wins keyed by write time, with
// value ordering breaking ties so concurrent writers still converge.
type Memory struct {
	clock timex.Clock

	mu        sync.RWMutex
	nodes     map[string]*memNode
	subs      map[string]map[int]ChangeFunc
	nextSubID int
	connected bool
	peers     []string

	// PutHook, when set, runs before a write is applied. A non-nil return
	// is surfaced as the write's ack error. Tests use it to fail targeted
	// writes.
	PutHook func(path []string, fields Fields) error
}

type memNode struct {
	fields    Fields
	state     map[string]int64 // per-field write time, unix millis
	tombstone bool
}

// NewMemory returns an empty in-memory store.
func NewMemory(clock timex.Clock) *Memory {
	return &Memory{
		clock:     clock,
		nodes:     make(map[string]*memNode),
		subs:      make(map[string]map[int]ChangeFunc),
		connected: true,
	}
}

const pathSep = "\x1f"

func joinPath(path []string) string { return strings.Join(path, pathSep) }

func parentAndKey(path []string) (string, string) {
	if len(path) == 0 {
		return "", ""
	}
	return joinPath(path[:len(path)-1]), path[len(path)-1]
}

func (m *Memory) Put(ctx context.Context, path []string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}
	if hook := m.PutHook; hook != nil {
		if err := hook(path, fields); err != nil {
			return err
		}
	}

	now := m.clock.Now().UnixMilli()
	key := joinPath(path)

	m.mu.Lock()
	node, ok := m.nodes[key]
	if !ok {
		node = &memNode{fields: Fields{}, state: map[string]int64{}}
		m.nodes[key] = node
	}
	node.tombstone = false
	if node.fields == nil {
		node.fields = Fields{}
		node.state = map[string]int64{}
	}
	for f, v := range fields {
		prev, seen := node.state[f]
		if !seen || now > prev || (now == prev && lww(v, node.fields[f])) {
			node.fields[f] = v
			node.state[f] = now
		}
	}
	merged := cloneFields(node.fields)
	m.mu.Unlock()

	m.notify(path, merged)
	return nil
}

func (m *Memory) PutNull(ctx context.Context, path []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook := m.PutHook; hook != nil {
		if err := hook(path, nil); err != nil {
			return err
		}
	}

	key := joinPath(path)
	m.mu.Lock()
	m.nodes[key] = &memNode{tombstone: true}
	m.mu.Unlock()

	m.notify(path, nil)
	return nil
}

func (m *Memory) Once(ctx context.Context, path []string) (Fields, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.nodes[joinPath(path)]
	if !ok {
		return nil, false, nil
	}
	if node.tombstone {
		return nil, true, nil
	}
	return cloneFields(node.fields), true, nil
}

func (m *Memory) Children(ctx context.Context, path []string) (map[string]Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := joinPath(path) + pathSep

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Fields)
	for key, node := range m.nodes {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if strings.Contains(rest, pathSep) {
			continue // grandchild
		}
		if node.tombstone {
			out[rest] = nil
		} else {
			out[rest] = cloneFields(node.fields)
		}
	}
	return out, nil
}

func (m *Memory) Subscribe(path []string, fn ChangeFunc) (cancel func()) {
	key := joinPath(path)

	m.mu.Lock()
	if m.subs == nil {
		m.subs = make(map[string]map[int]ChangeFunc)
	}
	if m.subs[key] == nil {
		m.subs[key] = make(map[int]ChangeFunc)
	}
	id := m.nextSubID
	m.nextSubID++
	m.subs[key][id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if set, ok := m.subs[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(m.subs, key)
			}
		}
	}
}

// notify delivers a child change to subscribers of the parent node.
// Delivery is synchronous and in-process; the production backend delivers
// asynchronously and possibly repeatedly, which is why consumers dedup.
func (m *Memory) notify(path []string, merged Fields) {
	parent, child := parentAndKey(path)

	m.mu.RLock()
	var fns []ChangeFunc
	for _, fn := range m.subs[parent] {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(child, cloneFields(merged))
	}
}

func (m *Memory) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SetConnected flips the simulated replication link. Tests and local mode
// use it to exercise the reconnect path.
func (m *Memory) SetConnected(up bool) {
	m.mu.Lock()
	m.connected = up
	m.mu.Unlock()
}

func (m *Memory) SetPeers(urls []string) {
	sorted := append([]string(nil), urls...)
	sort.Strings(sorted)
	m.mu.Lock()
	m.peers = sorted
	m.mu.Unlock()
}

func (m *Memory) Peers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.peers...)
}

func cloneFields(f Fields) Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// lww breaks same-instant write ties by comparing the string form of the
// values, so every replica picks the same winner.
func lww(a, b any) bool {
	return fmt.Sprint(a) > fmt.Sprint(b)
}
