package models

// Profile resolves an author DID to a display identity. One profile per DID,
// written only by its owner; the ownership rule is advisory at this layer.
type Profile struct {
	DID            string `json:"did"`
	Handle         string `json:"handle"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

func (p Profile) Fields() map[string]any {
	f := map[string]any{
		"did":    p.DID,
		"handle": p.Handle,
	}
	if p.ProfilePicture != "" {
		f["profilePicture"] = p.ProfilePicture
	}
	return f
}

// ParseProfile validates a raw profile record.
func ParseProfile(fields map[string]any) (Profile, string) {
	if fields == nil {
		return Profile{}, "nil record"
	}
	p := Profile{
		DID:            str(fields["did"]),
		Handle:         str(fields["handle"]),
		ProfilePicture: str(fields["profilePicture"]),
	}
	if !IsDID(p.DID) {
		return Profile{}, "did is not a DID"
	}
	if p.Handle == "" {
		return Profile{}, "missing handle"
	}
	return p, ""
}
