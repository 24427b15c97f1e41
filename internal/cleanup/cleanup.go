// Package cleanup contains the maintenance jobs that run behind the main
// read/write path: migration of pre-sharding records into the routed shards,
// the periodic sweep that turns soft-deleted records into store tombstones,
// and a triage helper for inspecting a page's records.
package cleanup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/annotify/annotify/internal/logging"
	"github.com/annotify/annotify/internal/models"
	"github.com/annotify/annotify/internal/shard"
	"github.com/annotify/annotify/internal/store"
	"github.com/annotify/annotify/internal/urlx"
)

// legacyNode is the single unsharded node the earliest clients wrote all
// annotations under, keyed by page URL.
const legacyNode = "annotations"

const commentsLeaf = "comments"

// Manager runs the maintenance jobs. Pages are swept only after being
// tracked; the store cannot enumerate its keyspace, so the sweep covers the
// pages this client has actually touched.
type Manager struct {
	store    store.Store
	log      logging.Logger
	interval time.Duration

	mu      sync.Mutex
	tracked map[string]struct{} // normalized URLs
}

func NewManager(s store.Store, log logging.Logger, interval time.Duration) *Manager {
	return &Manager{
		store:    s,
		log:      log.With("component", "cleanup"),
		interval: interval,
		tracked:  make(map[string]struct{}),
	}
}

// Track marks a page for the periodic sweep.
func (m *Manager) Track(pageURL string) {
	normalized := urlx.Normalize(pageURL)
	m.mu.Lock()
	m.tracked[normalized] = struct{}{}
	m.mu.Unlock()
}

// MigrateAnnotations copies a page's records, comments included, from the
// legacy unsharded node into the routed shard. Records already present in
// the shard are left untouched, so the migration is idempotent and safe to
// re-run; the legacy copies are kept for clients that have not upgraded.
// Returns the number of records copied.
func (m *Manager) MigrateAnnotations(ctx context.Context, pageURL string) (int, error) {
	normalized := urlx.Normalize(pageURL)
	target := shard.KeyFor(normalized).WriteNode()

	children, err := m.store.Children(ctx, []string{legacyNode, normalized})
	if err != nil {
		return 0, err
	}

	migrated := 0
	for id, fields := range children {
		if fields == nil {
			continue
		}
		if _, reason := models.ParseAnnotation(fields); reason != "" {
			m.log.Debug(ctx, "skipping invalid legacy record", "id", id, "reason", reason)
			continue
		}
		n, err := m.copyMissing(ctx, []string{target, normalized, id}, fields)
		if err != nil {
			return migrated, err
		}
		migrated += n

		// The comment sub-tree travels with its annotation. Checked even when
		// the annotation itself was already in place: an interrupted earlier
		// run may have copied the parent but not all comments.
		n, err = m.migrateComments(ctx, normalized, target, id)
		if err != nil {
			return migrated, err
		}
		migrated += n
	}
	if migrated > 0 {
		m.log.Info(ctx, "migrated legacy annotations", "url", normalized, "count", migrated)
	}
	return migrated, nil
}

// copyMissing writes fields at dst unless a record already exists there.
// Returns 1 when a copy happened.
func (m *Manager) copyMissing(ctx context.Context, dst []string, fields store.Fields) (int, error) {
	if _, ok, err := m.store.Once(ctx, dst); err != nil {
		return 0, err
	} else if ok {
		return 0, nil // already migrated
	}
	if err := m.store.Put(ctx, dst, fields); err != nil {
		return 0, err
	}
	return 1, nil
}

// migrateComments copies one legacy annotation's valid comments under the
// sharded location, with the same per-record present-check idempotence.
func (m *Manager) migrateComments(ctx context.Context, normalized, target, annotationID string) (int, error) {
	comments, err := m.store.Children(ctx, []string{legacyNode, normalized, annotationID, commentsLeaf})
	if err != nil {
		return 0, err
	}

	migrated := 0
	for cid, cf := range comments {
		if cf == nil {
			continue
		}
		if _, reason := models.ParseComment(cf); reason != "" {
			m.log.Debug(ctx, "skipping invalid legacy comment", "id", cid, "reason", reason)
			continue
		}
		n, err := m.copyMissing(ctx, []string{target, normalized, annotationID, commentsLeaf, cid}, cf)
		if err != nil {
			return migrated, err
		}
		migrated += n
	}
	return migrated, nil
}

// SweepURL finalizes soft deletes for one page: every annotation or comment
// still carrying the isDeleted flag is tombstoned at the store level, and a
// swept annotation takes its remaining comments with it. The
// flag-then-tombstone split gives slow replicas time to observe the deletion
// proof before the record disappears.
func (m *Manager) SweepURL(ctx context.Context, pageURL string) (int, error) {
	normalized := urlx.Normalize(pageURL)
	swept := 0

	for _, node := range shard.KeyFor(normalized).Nodes() {
		children, err := m.store.Children(ctx, []string{node, normalized})
		if err != nil {
			return swept, err
		}
		for id, fields := range children {
			if fields == nil {
				continue
			}

			a, reason := models.ParseAnnotation(fields)
			parentSwept := reason == "" && a.IsDeleted

			// Flagged comments are finalized even when the parent survives.
			// A swept parent takes its whole comment sub-tree with it, flagged
			// or not; comments of a tombstoned annotation are unreachable.
			comments, err := m.store.Children(ctx, []string{node, normalized, id, commentsLeaf})
			if err != nil {
				return swept, err
			}
			for cid, cf := range comments {
				if cf == nil {
					continue
				}
				c, creason := models.ParseComment(cf)
				if !parentSwept && (creason != "" || !c.IsDeleted) {
					continue
				}
				if err := m.store.PutNull(ctx, []string{node, normalized, id, commentsLeaf, cid}); err != nil {
					return swept, err
				}
				swept++
			}

			if !parentSwept {
				continue
			}
			if err := m.store.PutNull(ctx, []string{node, normalized, id}); err != nil {
				return swept, err
			}
			swept++
		}
	}
	return swept, nil
}

// sweepTracked runs one sweep round over every tracked page.
func (m *Manager) sweepTracked(ctx context.Context) {
	m.mu.Lock()
	pages := make([]string, 0, len(m.tracked))
	for u := range m.tracked {
		pages = append(pages, u)
	}
	m.mu.Unlock()

	total := 0
	for _, u := range pages {
		n, err := m.SweepURL(ctx, u)
		if err != nil {
			m.log.Warn(ctx, "sweep failed", "url", u, "error", err.Error())
			continue
		}
		total += n
	}
	if total > 0 {
		m.log.Info(ctx, "cleanup sweep finished", "tombstoned", total)
	}
}

// Run drives the periodic sweep until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepTracked(ctx)
		}
	}
}

// Report is the triage view of one page's records.
type Report struct {
	// Active records are live and valid.
	Active []string
	// Marked records carry the isDeleted flag and await the sweep.
	Marked []string
	// Tombstoned keys remain visible in the store with nil fields.
	Tombstoned []string
	// Invalid records failed validation and are ignored by readers.
	Invalid []string
}

// InspectAnnotations classifies every record under a page's shard nodes.
func (m *Manager) InspectAnnotations(ctx context.Context, pageURL string) (Report, error) {
	normalized := urlx.Normalize(pageURL)
	var r Report
	seen := make(map[string]struct{})

	for _, node := range shard.KeyFor(normalized).Nodes() {
		children, err := m.store.Children(ctx, []string{node, normalized})
		if err != nil {
			return Report{}, err
		}
		for id, fields := range children {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			switch a, reason := classify(fields); {
			case reason == "tombstone":
				r.Tombstoned = append(r.Tombstoned, id)
			case reason != "":
				r.Invalid = append(r.Invalid, id)
			case a.IsDeleted:
				r.Marked = append(r.Marked, id)
			default:
				r.Active = append(r.Active, id)
			}
		}
	}
	for _, list := range [][]string{r.Active, r.Marked, r.Tombstoned, r.Invalid} {
		sort.Strings(list)
	}
	return r, nil
}

func classify(fields store.Fields) (models.Annotation, string) {
	if fields == nil {
		return models.Annotation{}, "tombstone"
	}
	return models.ParseAnnotation(fields)
}
