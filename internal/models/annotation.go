// Package models defines the records stored in the replicated graph and the
// defensive validation applied to everything read back from it. The store
// has no schema, so every read path funnels through the Parse functions here
// before a record enters the rest of the pipeline.
package models

import (
	"strings"
)

// DIDPrefix is the required prefix of every author identity.
const DIDPrefix = "did:"

// Annotation is a signed, author-owned note attached to a page.
type Annotation struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
	IsDeleted bool   `json:"isDeleted,omitempty"`
	Signature string `json:"signature,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	// Screenshot is opportunistically captured image data; may be empty.
	Screenshot string `json:"screenshot,omitempty"`
	// Comments are loaded from the comments sub-tree; never stored on the
	// top-level record itself.
	Comments []Comment `json:"comments,omitempty"`
}

// Fields returns the store representation of the annotation. Comments are
// intentionally absent: they are written as independent sub-records.
func (a Annotation) Fields() map[string]any {
	f := map[string]any{
		"id":        a.ID,
		"url":       a.URL,
		"content":   a.Content,
		"author":    a.Author,
		"timestamp": a.Timestamp,
	}
	if a.IsDeleted {
		f["isDeleted"] = true
	}
	if a.Signature != "" {
		f["signature"] = a.Signature
	}
	if a.Nonce != "" {
		f["nonce"] = a.Nonce
	}
	if a.Screenshot != "" {
		f["screenshot"] = a.Screenshot
	}
	return f
}

// IsDID reports whether s looks like a DID. Anything else in an author field
// marks the record as garbage from a buggy or hostile peer.
func IsDID(s string) bool {
	return strings.HasPrefix(s, DIDPrefix) && len(s) > len(DIDPrefix)
}

// ParseAnnotation validates a raw store record. The returned reason is empty
// exactly when the record is usable; callers drop invalid records silently.
func ParseAnnotation(fields map[string]any) (Annotation, string) {
	if fields == nil {
		return Annotation{}, "nil record"
	}
	a := Annotation{
		ID:         str(fields["id"]),
		URL:        str(fields["url"]),
		Content:    str(fields["content"]),
		Author:     str(fields["author"]),
		Timestamp:  i64(fields["timestamp"]),
		IsDeleted:  boolean(fields["isDeleted"]),
		Signature:  str(fields["signature"]),
		Nonce:      str(fields["nonce"]),
		Screenshot: str(fields["screenshot"]),
	}
	switch {
	case a.ID == "":
		return Annotation{}, "missing id"
	case a.Content == "":
		return Annotation{}, "missing content"
	case !IsDID(a.Author):
		return Annotation{}, "author is not a DID"
	}
	return a, ""
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

// i64 accepts the numeric shapes a JSON round-trip can produce.
func i64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
