package models

// DeletionProof is the signed, auditable record of a soft delete. It is
// written before the target's isDeleted flag, so any reader that observes
// the flag can find the authorizing proof.
type DeletionProof struct {
	// Key is the composite store path of the deleted record, e.g.
	// "annotations_example_com/https%3A%2F%2Fexample.com/a1" or the same
	// with "/comments/<commentId>" appended.
	Key       string `json:"key"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

func (d DeletionProof) Fields() map[string]any {
	return map[string]any{
		"key":       d.Key,
		"author":    d.Author,
		"timestamp": d.Timestamp,
		"nonce":     d.Nonce,
		"signature": d.Signature,
	}
}

// ParseDeletionProof validates a raw deletion record.
func ParseDeletionProof(fields map[string]any) (DeletionProof, string) {
	if fields == nil {
		return DeletionProof{}, "nil record"
	}
	d := DeletionProof{
		Key:       str(fields["key"]),
		Author:    str(fields["author"]),
		Timestamp: i64(fields["timestamp"]),
		Nonce:     str(fields["nonce"]),
		Signature: str(fields["signature"]),
	}
	switch {
	case d.Key == "":
		return DeletionProof{}, "missing key"
	case !IsDID(d.Author):
		return DeletionProof{}, "author is not a DID"
	case d.Signature == "":
		return DeletionProof{}, "missing signature"
	}
	return d, ""
}

// AuditEntry records who deleted what and when. Entries are appended to a
// store-level log and never modified.
type AuditEntry struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	TargetKey string `json:"targetKey"`
	Actor     string `json:"actor"`
	Timestamp int64  `json:"timestamp"`
}

func (e AuditEntry) Fields() map[string]any {
	return map[string]any{
		"id":        e.ID,
		"action":    e.Action,
		"targetKey": e.TargetKey,
		"actor":     e.Actor,
		"timestamp": e.Timestamp,
	}
}
