package annotations

import (
	"context"
	"time"

	"github.com/annotify/annotify/internal/models"
	"github.com/annotify/annotify/internal/urlx"
)

// subscription is the live-update state for one page URL. Raw store events
// land in the working set immediately; callbacks fire once per settled batch
// after the debounce window, always with the full fresh annotation list.
type subscription struct {
	normalized string
	nodes      []string
	cancels    []func()
	callbacks  []Callback

	working   map[string]models.Annotation
	lastEvent map[string]time.Time
	timer     *time.Timer
	pending   bool
	closed    bool
}

// attach registers a callback for live updates on a page, creating the store
// subscriptions on first use. The seed is the snapshot the caller was just
// handed, so the first batch only fires on actual changes.
func (m *Manager) attach(normalized string, nodes []string, seed map[string]models.Annotation, cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subs[normalized]; ok {
		sub.callbacks = append(sub.callbacks, cb)
		return
	}

	sub := &subscription{
		normalized: normalized,
		nodes:      nodes,
		callbacks:  []Callback{cb},
		working:    make(map[string]models.Annotation, len(seed)),
		lastEvent:  make(map[string]time.Time),
	}
	for id, a := range seed {
		a.Comments = nil
		sub.working[id] = a
	}
	for _, node := range nodes {
		sub.cancels = append(sub.cancels, m.store.Subscribe([]string{node, normalized}, func(key string, fields map[string]any) {
			m.handleEvent(sub, key, fields)
		}))
	}
	m.subs[normalized] = sub
}

// handleEvent processes one raw store event. Delivery is at-least-once, so
// repeats of an unchanged record within the debounce window are rejected via
// the last-event map before they can schedule another batch.
func (m *Manager) handleEvent(sub *subscription, key string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.closed {
		return
	}

	now := m.clock.Now()
	changed := false

	if fields == nil {
		// Tombstone: the record is gone for good.
		if _, ok := sub.working[key]; ok {
			delete(sub.working, key)
			changed = true
		}
	} else {
		a, reason := models.ParseAnnotation(fields)
		if reason != "" {
			m.log.Debug(context.Background(), "dropping invalid live update", "key", key, "reason", reason)
			return
		}
		a.Comments = nil
		prev, exists := sub.working[a.ID]
		switch {
		case a.IsDeleted:
			if exists {
				delete(sub.working, a.ID)
				changed = true
			}
		case exists && sameAnnotation(prev, a):
			if last, ok := sub.lastEvent[a.ID]; ok && now.Sub(last) < m.opts.DebounceWindow {
				sub.lastEvent[a.ID] = now
				return // duplicate delivery inside the window
			}
		default:
			sub.working[a.ID] = a
			changed = true
		}
	}
	sub.lastEvent[key] = now

	if !changed {
		return
	}
	if !sub.pending {
		sub.pending = true
		if sub.timer == nil {
			sub.timer = time.AfterFunc(m.opts.DebounceWindow, func() { m.flush(sub) })
		} else {
			sub.timer.Reset(m.opts.DebounceWindow)
		}
	}
}

// flush delivers one settled batch: the full current annotation list, with
// comments freshly loaded, to every registered callback.
func (m *Manager) flush(sub *subscription) {
	m.mu.Lock()
	if sub.closed {
		m.mu.Unlock()
		return
	}
	sub.pending = false
	snapshot := make([]models.Annotation, 0, len(sub.working))
	for _, a := range sub.working {
		snapshot = append(snapshot, a)
	}
	callbacks := append([]Callback(nil), sub.callbacks...)
	nodes := sub.nodes
	normalized := sub.normalized
	m.mu.Unlock()

	ctx := context.Background()
	for i := range snapshot {
		snapshot[i].Comments = m.loadComments(ctx, nodes, normalized, snapshot[i].ID, false)
	}
	sortAnnotations(snapshot)

	for _, cb := range callbacks {
		cb(snapshot)
	}
}

// CleanupListeners detaches all live-update state for a page URL. Callers
// invoke it when the page is closed; without it the store subscriptions and
// dedup maps accumulate.
func (m *Manager) CleanupListeners(pageURL string) {
	normalized := urlx.Normalize(pageURL)

	m.mu.Lock()
	sub, ok := m.subs[normalized]
	if ok {
		sub.closed = true
		delete(m.subs, normalized)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if sub.timer != nil {
		sub.timer.Stop()
	}
	for _, cancel := range sub.cancels {
		cancel()
	}
}

// sameAnnotation compares the stored scalar state of two records. Comments
// live in their own sub-tree and never participate.
func sameAnnotation(a, b models.Annotation) bool {
	return a.ID == b.ID &&
		a.URL == b.URL &&
		a.Content == b.Content &&
		a.Author == b.Author &&
		a.Timestamp == b.Timestamp &&
		a.IsDeleted == b.IsDeleted &&
		a.Signature == b.Signature &&
		a.Nonce == b.Nonce &&
		a.Screenshot == b.Screenshot
}
