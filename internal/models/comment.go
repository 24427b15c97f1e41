package models

// Comment is a signed reply owned by exactly one annotation. It is stored as
// an independently addressable sub-record so it can be deleted or updated
// without rewriting its parent.
type Comment struct {
	ID           string `json:"id"`
	Content      string `json:"content"`
	Author       string `json:"author"`
	Timestamp    int64  `json:"timestamp"`
	AnnotationID string `json:"annotationId"`
	IsDeleted    bool   `json:"isDeleted,omitempty"`
	Signature    string `json:"signature,omitempty"`
	Nonce        string `json:"nonce,omitempty"`
}

// Fields returns the store representation of the comment.
func (c Comment) Fields() map[string]any {
	f := map[string]any{
		"id":           c.ID,
		"content":      c.Content,
		"author":       c.Author,
		"timestamp":    c.Timestamp,
		"annotationId": c.AnnotationID,
	}
	if c.IsDeleted {
		f["isDeleted"] = true
	}
	if c.Signature != "" {
		f["signature"] = c.Signature
	}
	if c.Nonce != "" {
		f["nonce"] = c.Nonce
	}
	return f
}

// ParseComment validates a raw comment record; same contract as
// ParseAnnotation.
func ParseComment(fields map[string]any) (Comment, string) {
	if fields == nil {
		return Comment{}, "nil record"
	}
	c := Comment{
		ID:           str(fields["id"]),
		Content:      str(fields["content"]),
		Author:       str(fields["author"]),
		Timestamp:    i64(fields["timestamp"]),
		AnnotationID: str(fields["annotationId"]),
		IsDeleted:    boolean(fields["isDeleted"]),
		Signature:    str(fields["signature"]),
		Nonce:        str(fields["nonce"]),
	}
	switch {
	case c.ID == "":
		return Comment{}, "missing id"
	case c.Content == "":
		return Comment{}, "missing content"
	case !IsDID(c.Author):
		return Comment{}, "author is not a DID"
	}
	return c, ""
}
