package annotations

import (
	"context"
	"sort"
	"time"

	"github.com/annotify/annotify/internal/models"
	"github.com/annotify/annotify/internal/shard"
	"github.com/annotify/annotify/internal/urlx"
)

// GetAnnotations returns the active annotations for a page, comments
// attached, ordered by timestamp. The scan is bounded: one pass over the
// routed shard nodes, retried up to the configured limit with a short wait
// between passes when nothing has replicated yet. Invalid records are
// dropped silently; soft-deleted records are filtered out.
//
// When callback is non-nil it is additionally registered for live updates
// on the same nodes and will receive the full fresh annotation set after
// every settled batch of changes, until CleanupListeners is called for the
// URL.
func (m *Manager) GetAnnotations(ctx context.Context, pageURL string, callback Callback) ([]models.Annotation, error) {
	normalized := urlx.Normalize(pageURL)
	key := shard.KeyFor(normalized)
	nodes := key.Nodes()

	var working map[string]models.Annotation
	for attempt := 0; ; attempt++ {
		var err error
		working, err = m.scanOnce(ctx, nodes, normalized)
		if err != nil {
			return nil, err
		}
		if len(working) > 0 || attempt >= m.opts.ScanRetries {
			break
		}
		if err := wait(ctx, m.opts.ScanWindow); err != nil {
			return nil, err
		}
	}

	out := make([]models.Annotation, 0, len(working))
	for _, a := range working {
		a.Comments = m.loadComments(ctx, nodes, normalized, a.ID, true)
		out = append(out, a)
	}
	sortAnnotations(out)

	if callback != nil {
		m.attach(normalized, nodes, working, callback)
	}
	return out, nil
}

// scanOnce reads every routed node once and merges the results by record id,
// newest timestamp winning when a record appears in more than one node.
func (m *Manager) scanOnce(ctx context.Context, nodes []string, normalized string) (map[string]models.Annotation, error) {
	working := make(map[string]models.Annotation)
	for _, node := range nodes {
		children, err := m.store.Children(ctx, []string{node, normalized})
		if err != nil {
			return nil, err
		}
		for id, fields := range children {
			if fields == nil {
				continue // tombstone
			}
			a, reason := models.ParseAnnotation(fields)
			if reason != "" {
				m.log.Debug(ctx, "dropping invalid annotation", "id", id, "reason", reason)
				continue
			}
			if a.IsDeleted {
				continue
			}
			if prev, ok := working[a.ID]; !ok || a.Timestamp > prev.Timestamp {
				working[a.ID] = a
			}
		}
	}
	return working, nil
}

// loadComments runs the bounded sub-scan of one annotation's comment tree.
// withWindow enables the single short re-read when the first pass is empty,
// covering comments that have not finished replicating.
func (m *Manager) loadComments(ctx context.Context, nodes []string, normalized, annotationID string, withWindow bool) []models.Comment {
	collect := func() map[string]models.Comment {
		found := make(map[string]models.Comment)
		for _, node := range nodes {
			children, err := m.store.Children(ctx, []string{node, normalized, annotationID, commentsLeaf})
			if err != nil {
				m.log.Debug(ctx, "comment scan failed", "annotation", annotationID, "error", err.Error())
				continue
			}
			for id, fields := range children {
				if fields == nil {
					continue
				}
				c, reason := models.ParseComment(fields)
				if reason != "" {
					m.log.Debug(ctx, "dropping invalid comment", "id", id, "reason", reason)
					continue
				}
				if c.IsDeleted {
					continue
				}
				if prev, ok := found[c.ID]; !ok || c.Timestamp > prev.Timestamp {
					found[c.ID] = c
				}
			}
		}
		return found
	}

	found := collect()
	if len(found) == 0 && withWindow {
		if err := wait(ctx, m.opts.CommentScanWindow); err != nil {
			return nil
		}
		found = collect()
	}
	if len(found) == 0 {
		return nil
	}

	out := make([]models.Comment, 0, len(found))
	for _, c := range found {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortAnnotations(list []models.Annotation) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Timestamp != list[j].Timestamp {
			return list[i].Timestamp < list[j].Timestamp
		}
		return list[i].ID < list[j].ID
	})
}

// wait sleeps for d or until ctx is cancelled.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
