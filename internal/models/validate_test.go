package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAnnotationFields() map[string]any {
	return map[string]any{
		"id":        "did:key:zAAA-1000",
		"url":       "https://example.com",
		"content":   "hello",
		"author":    "did:key:zAAA",
		"timestamp": int64(1000),
	}
}

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		reason string
	}{
		{"valid", func(m map[string]any) {}, ""},
		{"missing id", func(m map[string]any) { delete(m, "id") }, "missing id"},
		{"empty content", func(m map[string]any) { m["content"] = "" }, "missing content"},
		{"missing author", func(m map[string]any) { delete(m, "author") }, "author is not a DID"},
		{"garbled author", func(m map[string]any) { m["author"] = "alice@example.com" }, "author is not a DID"},
		{"bare did prefix", func(m map[string]any) { m["author"] = "did:" }, "author is not a DID"},
		{"wrong content type", func(m map[string]any) { m["content"] = 42 }, "missing content"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fields := validAnnotationFields()
			tc.mutate(fields)
			a, reason := ParseAnnotation(fields)
			assert.Equal(t, tc.reason, reason)
			if tc.reason == "" {
				assert.Equal(t, "did:key:zAAA-1000", a.ID)
				assert.Equal(t, int64(1000), a.Timestamp)
			}
		})
	}
}

func TestParseAnnotation_NilRecord(t *testing.T) {
	_, reason := ParseAnnotation(nil)
	assert.NotEmpty(t, reason)
}

func TestParseAnnotation_TimestampFromJSONNumber(t *testing.T) {
	fields := validAnnotationFields()
	fields["timestamp"] = float64(1234)
	a, reason := ParseAnnotation(fields)
	require.Empty(t, reason)
	assert.Equal(t, int64(1234), a.Timestamp)
}

func TestAnnotationFields_OmitComments(t *testing.T) {
	a := Annotation{
		ID: "x", URL: "https://example.com", Content: "c", Author: "did:key:zAAA",
		Timestamp: 1, Comments: []Comment{{ID: "c1"}},
	}
	f := a.Fields()
	_, hasComments := f["comments"]
	assert.False(t, hasComments, "comments are written independently, never inline")
}

func TestParseComment(t *testing.T) {
	fields := map[string]any{
		"id":           "c1",
		"content":      "nice",
		"author":       "did:key:zBBB",
		"timestamp":    int64(2000),
		"annotationId": "a1",
	}
	c, reason := ParseComment(fields)
	require.Empty(t, reason)
	assert.Equal(t, "a1", c.AnnotationID)

	fields["author"] = "not-a-did"
	_, reason = ParseComment(fields)
	assert.Equal(t, "author is not a DID", reason)
}

func TestParseProfile(t *testing.T) {
	p, reason := ParseProfile(map[string]any{"did": "did:key:zAAA", "handle": "alice"})
	require.Empty(t, reason)
	assert.Equal(t, "alice", p.Handle)

	_, reason = ParseProfile(map[string]any{"did": "did:key:zAAA"})
	assert.Equal(t, "missing handle", reason)
}

func TestKnownPeer_Fresh(t *testing.T) {
	now := time.UnixMilli(10 * 60 * 1000)
	ttl := 10 * time.Minute

	fresh := KnownPeer{URL: "wss://peer/gun", Timestamp: now.Add(-9 * time.Minute).UnixMilli()}
	stale := KnownPeer{URL: "wss://peer/gun", Timestamp: now.Add(-11 * time.Minute).UnixMilli()}

	assert.True(t, fresh.Fresh(now, ttl))
	assert.False(t, stale.Fresh(now, ttl))
}

func TestParseDeletionProof(t *testing.T) {
	d, reason := ParseDeletionProof(map[string]any{
		"key": "annotations_example_com/https%3A%2F%2Fexample.com/a1",
		"author": "did:key:zAAA", "timestamp": int64(1), "nonce": "n", "signature": "s",
	})
	require.Empty(t, reason)
	assert.Equal(t, "did:key:zAAA", d.Author)

	_, reason = ParseDeletionProof(map[string]any{"author": "did:key:zAAA", "signature": "s"})
	assert.Equal(t, "missing key", reason)
}
