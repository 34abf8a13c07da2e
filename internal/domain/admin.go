package domain

import "strings"

// AdminIdentity is the already-authenticated administrator performing an action.
// It is passed explicitly into every admin transition.
type AdminIdentity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// placeholderIdentities are values that must never be persisted as a decision
// or acceptance identity.
var placeholderIdentities = map[string]struct{}{
	"":              {},
	"unknown":       {},
	"unknown admin": {},
	"inconnu":       {},
	"admin inconnu": {},
	"null":          {},
	"nil":           {},
	"undefined":     {},
	"n/a":           {},
	"-":             {},
	"anonymous":     {},
	"system":        {},
}

// IsPlaceholderIdentity reports whether v is empty or a known placeholder.
func IsPlaceholderIdentity(v string) bool {
	_, ok := placeholderIdentities[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Validate fails with an *InvariantError when either half of the identity is a
// placeholder. field names the persisted column the identity is destined for.
func (a AdminIdentity) Validate(field string) error {
	if IsPlaceholderIdentity(a.ID) {
		return &InvariantError{Field: field + "_id", Value: a.ID}
	}
	if IsPlaceholderIdentity(a.Name) {
		return &InvariantError{Field: field + "_name", Value: a.Name}
	}
	return nil
}
