// Package annotations is the primary read/write path of the data layer: it
// signs and stores annotations and comments into the routed shard, performs
// two-phase soft-deletes with a signed deletion log, and serves both
// point-in-time snapshots and a deduplicated live feed.
package annotations

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annotify/annotify/internal/common"
	"github.com/annotify/annotify/internal/keys"
	"github.com/annotify/annotify/internal/logging"
	"github.com/annotify/annotify/internal/models"
	"github.com/annotify/annotify/internal/shard"
	"github.com/annotify/annotify/internal/store"
	"github.com/annotify/annotify/internal/tabs"
	"github.com/annotify/annotify/internal/timex"
	"github.com/annotify/annotify/internal/urlx"
)

// Store node layout outside the shards.
const (
	deletionsNode = "deletions"
	auditNode     = "audit_log"
	commentsLeaf  = "comments"
)

// Options carries the scan/debounce tuning; values come from config.
type Options struct {
	ScanWindow        time.Duration
	ScanRetries       int
	CommentScanWindow time.Duration
	DebounceWindow    time.Duration
}

// Callback receives the full fresh annotation set for a URL after every
// settled batch of live updates. Never a delta: subscribers always see a
// consistent total view.
type Callback func([]models.Annotation)

// Manager implements the annotation/comment read/write path.
type Manager struct {
	store    store.Store
	log      logging.Logger
	clock    timex.Clock
	opts     Options
	capturer tabs.Capturer // optional; nil disables screenshots

	mu   sync.Mutex
	subs map[string]*subscription // keyed by normalized URL
}

func NewManager(s store.Store, log logging.Logger, clock timex.Clock, capturer tabs.Capturer, opts Options) *Manager {
	return &Manager{
		store:    s,
		log:      log.With("component", "annotations"),
		clock:    clock,
		opts:     opts,
		capturer: capturer,
		subs:     make(map[string]*subscription),
	}
}

// Canonical signing payloads. Field order is fixed by the struct, so every
// client produces identical bytes for identical content.

type annotationPayload struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

type commentPayload struct {
	ID           string `json:"id"`
	Content      string `json:"content"`
	Author       string `json:"author"`
	Timestamp    int64  `json:"timestamp"`
	AnnotationID string `json:"annotationId"`
	Nonce        string `json:"nonce"`
}

type deletionPayload struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

// CompositeKey is the deletion-log key for an annotation. The URL segment is
// escaped so the key stays a flat string.
func CompositeKey(domainNode, normalizedURL, annotationID string) string {
	return domainNode + "/" + url.PathEscape(normalizedURL) + "/" + annotationID
}

// CommentCompositeKey scopes a composite key to one comment.
func CommentCompositeKey(domainNode, normalizedURL, annotationID, commentID string) string {
	return CompositeKey(domainNode, normalizedURL, annotationID) + "/" + commentsLeaf + "/" + commentID
}

func checkIdentity(did string, kp keys.KeyPair) error {
	if !models.IsDID(did) {
		return fmt.Errorf("%w: missing or malformed DID", common.ErrPrecondition)
	}
	return kp.Validate()
}

// SaveAnnotation signs and stores an annotation into its routed shard.
// Nested comments are stripped from the top-level record and written
// independently afterwards. Screenshot capture is best-effort and never
// fails the save.
func (m *Manager) SaveAnnotation(ctx context.Context, a models.Annotation, tabID int, captureScreenshot bool, did string, kp keys.KeyPair) error {
	if a.ID == "" || a.URL == "" || a.Content == "" || a.Author == "" {
		return fmt.Errorf("%w: annotation requires id, url, content and author", common.ErrPrecondition)
	}
	if err := checkIdentity(did, kp); err != nil {
		return err
	}
	if a.Author != did {
		return fmt.Errorf("%w: annotation author %q is not the signing identity", common.ErrUnauthorized, a.Author)
	}

	normalized := urlx.Normalize(a.URL)
	if a.Timestamp == 0 {
		a.Timestamp = m.clock.Now().UnixMilli()
	}
	a.Nonce = uuid.NewString()

	sig, err := keys.Sign(annotationPayload{
		ID: a.ID, URL: normalized, Content: a.Content, Author: a.Author,
		Timestamp: a.Timestamp, Nonce: a.Nonce,
	}, kp)
	if err != nil {
		return fmt.Errorf("signing annotation: %w", err)
	}
	a.Signature = sig
	a.URL = normalized

	if captureScreenshot && m.capturer != nil {
		img, err := tabs.Capture(ctx, m.capturer, tabID)
		if err != nil {
			m.log.Warn(ctx, "screenshot capture failed", "annotation", a.ID, "error", err.Error())
		} else if img != "" {
			a.Screenshot = img
		}
	}

	comments := a.Comments
	a.Comments = nil

	node := shard.KeyFor(normalized).WriteNode()
	if err := m.store.Put(ctx, []string{node, normalized, a.ID}, a.Fields()); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreAck, err)
	}

	// Attached comments are written sequentially through the comment path so
	// they get their own signatures and addresses.
	for _, c := range comments {
		if err := m.SaveComment(ctx, normalized, a.ID, c, did, kp); err != nil {
			return err
		}
	}
	return nil
}

// SaveComment signs and stores a comment under its parent annotation.
func (m *Manager) SaveComment(ctx context.Context, pageURL, annotationID string, c models.Comment, did string, kp keys.KeyPair) error {
	if c.ID == "" || c.Content == "" {
		return fmt.Errorf("%w: comment requires id and content", common.ErrPrecondition)
	}
	if annotationID == "" {
		return fmt.Errorf("%w: comment requires an annotation id", common.ErrPrecondition)
	}
	if err := checkIdentity(did, kp); err != nil {
		return err
	}
	if c.Author == "" {
		c.Author = did
	}
	if c.Author != did {
		return fmt.Errorf("%w: comment author %q is not the signing identity", common.ErrUnauthorized, c.Author)
	}

	normalized := urlx.Normalize(pageURL)
	if c.Timestamp == 0 {
		c.Timestamp = m.clock.Now().UnixMilli()
	}
	c.AnnotationID = annotationID
	c.Nonce = uuid.NewString()

	sig, err := keys.Sign(commentPayload{
		ID: c.ID, Content: c.Content, Author: c.Author,
		Timestamp: c.Timestamp, AnnotationID: c.AnnotationID, Nonce: c.Nonce,
	}, kp)
	if err != nil {
		return fmt.Errorf("signing comment: %w", err)
	}
	c.Signature = sig

	node := shard.KeyFor(normalized).WriteNode()
	if err := m.store.Put(ctx, []string{node, normalized, annotationID, commentsLeaf, c.ID}, c.Fields()); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreAck, err)
	}
	return nil
}

// DeleteAnnotation soft-deletes an annotation in two phases: the signed
// deletion proof is written first, and only then the isDeleted flag. A
// proof-write failure aborts the delete entirely, so any reader observing
// the flag can always find the authorizing proof.
func (m *Manager) DeleteAnnotation(ctx context.Context, pageURL, annotationID, did string, kp keys.KeyPair) error {
	if annotationID == "" {
		return fmt.Errorf("%w: missing annotation id", common.ErrPrecondition)
	}
	if err := checkIdentity(did, kp); err != nil {
		return err
	}

	normalized := urlx.Normalize(pageURL)
	key := shard.KeyFor(normalized)
	node := key.WriteNode()

	fields, ok, err := m.store.Once(ctx, []string{node, normalized, annotationID})
	if err != nil {
		return fmt.Errorf("reading annotation: %w", err)
	}
	if !ok || fields == nil {
		return fmt.Errorf("annotation %s: %w", annotationID, common.ErrNotFound)
	}
	existing, reason := models.ParseAnnotation(fields)
	if reason != "" {
		return fmt.Errorf("annotation %s: %w", annotationID, common.ErrNotFound)
	}
	if existing.Author != did {
		return fmt.Errorf("%w: only the author may delete an annotation", common.ErrUnauthorized)
	}

	composite := CompositeKey(key.DomainShard, normalized, annotationID)
	if err := m.writeDeletionProof(ctx, composite, did, kp); err != nil {
		return err
	}

	if err := m.store.Put(ctx, []string{node, normalized, annotationID}, store.Fields{"isDeleted": true}); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreAck, err)
	}
	return nil
}

// DeleteComment soft-deletes a comment. Authorship is enforced here, at the
// mutation: only the original author may delete their own comment. A
// successful delete appends an audit-log entry.
func (m *Manager) DeleteComment(ctx context.Context, pageURL, annotationID, commentID, did string, kp keys.KeyPair) error {
	if annotationID == "" || commentID == "" {
		return fmt.Errorf("%w: missing annotation or comment id", common.ErrPrecondition)
	}
	if err := checkIdentity(did, kp); err != nil {
		return err
	}

	normalized := urlx.Normalize(pageURL)
	key := shard.KeyFor(normalized)
	node := key.WriteNode()
	path := []string{node, normalized, annotationID, commentsLeaf, commentID}

	fields, ok, err := m.store.Once(ctx, path)
	if err != nil {
		return fmt.Errorf("reading comment: %w", err)
	}
	if !ok || fields == nil {
		return fmt.Errorf("comment %s: %w", commentID, common.ErrNotFound)
	}
	existing, reason := models.ParseComment(fields)
	if reason != "" {
		return fmt.Errorf("comment %s: %w", commentID, common.ErrNotFound)
	}
	if existing.Author != did {
		return fmt.Errorf("%w: only the author may delete a comment", common.ErrUnauthorized)
	}

	composite := CommentCompositeKey(key.DomainShard, normalized, annotationID, commentID)
	if err := m.writeDeletionProof(ctx, composite, did, kp); err != nil {
		return err
	}

	if err := m.store.Put(ctx, path, store.Fields{"isDeleted": true}); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreAck, err)
	}

	m.appendAudit(ctx, "delete_comment", composite, did)
	return nil
}

// writeDeletionProof signs and records the deletion of composite key. The
// proof write must land before the caller mutates the live record.
func (m *Manager) writeDeletionProof(ctx context.Context, composite, did string, kp keys.KeyPair) error {
	proof := models.DeletionProof{
		Key:       composite,
		Author:    did,
		Timestamp: m.clock.Now().UnixMilli(),
		Nonce:     uuid.NewString(),
	}
	sig, err := keys.Sign(deletionPayload{Key: proof.Key, Timestamp: proof.Timestamp, Nonce: proof.Nonce}, kp)
	if err != nil {
		return fmt.Errorf("signing deletion: %w", err)
	}
	proof.Signature = sig

	if err := m.store.Put(ctx, []string{deletionsNode, composite}, proof.Fields()); err != nil {
		return fmt.Errorf("%w: deletion proof: %v", common.ErrStoreAck, err)
	}
	return nil
}

// GetDeletionProof returns the recorded proof for a composite key, or nil.
// A record whose signature does not verify against its author is not a
// proof and is dropped the same way a malformed one is.
func (m *Manager) GetDeletionProof(ctx context.Context, composite string) (*models.DeletionProof, error) {
	fields, ok, err := m.store.Once(ctx, []string{deletionsNode, composite})
	if err != nil {
		return nil, err
	}
	if !ok || fields == nil {
		return nil, nil
	}
	proof, reason := models.ParseDeletionProof(fields)
	if reason != "" {
		return nil, nil
	}
	payload := deletionPayload{Key: proof.Key, Timestamp: proof.Timestamp, Nonce: proof.Nonce}
	if !keys.Verify(payload, proof.Signature, proof.Author) {
		m.log.Warn(ctx, "dropping deletion record with bad signature", "key", composite)
		return nil, nil
	}
	return &proof, nil
}

// appendAudit records who deleted what and when in the append-only log.
// Audit failures are logged, not surfaced: the delete itself already landed.
func (m *Manager) appendAudit(ctx context.Context, action, targetKey, actor string) {
	entry := models.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		TargetKey: targetKey,
		Actor:     actor,
		Timestamp: m.clock.Now().UnixMilli(),
	}
	// Timestamp-prefixed keys keep the log scannable in order; the random
	// suffix keeps same-millisecond appends from colliding.
	suffix, err := common.MakeRandHexString(4)
	if err != nil {
		suffix = entry.ID
	}
	logKey := fmt.Sprintf("%d_%s", entry.Timestamp, suffix)
	if err := m.store.Put(ctx, []string{auditNode, logKey}, entry.Fields()); err != nil {
		m.log.Warn(ctx, "audit append failed", "target", targetKey, "error", err.Error())
	}
}
