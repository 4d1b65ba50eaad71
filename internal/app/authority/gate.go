// Package authority decides which process performs reconciliation.
package authority

import "github.com/osa030/zonebox/internal/domain/token"

// Gate is the session-authority capability injected into the dispatcher and reconciler.
type Gate interface {
	// IsAuthority reports whether this process may mutate shared playback state.
	IsAuthority() bool
	// Owns reports whether the authority owns the given token.
	Owns(t token.Token) bool
}

// Static is a Gate with a fixed authority flag and user identity.
type Static struct {
	Enabled bool   // This process is the session authority
	UserID  string // User the authority acts as
	OwnsAll bool   // The authority owns every token (game master semantics)
}

// IsAuthority implements Gate.
func (s Static) IsAuthority() bool {
	return s.Enabled
}

// Owns implements Gate.
func (s Static) Owns(t token.Token) bool {
	if s.OwnsAll {
		return true
	}
	return t.OwnedBy(s.UserID)
}

// Func adapts plain functions to Gate. A nil OwnsFunc owns everything.
type Func struct {
	IsAuthorityFunc func() bool
	OwnsFunc        func(token.Token) bool
}

// IsAuthority implements Gate.
func (f Func) IsAuthority() bool {
	return f.IsAuthorityFunc != nil && f.IsAuthorityFunc()
}

// Owns implements Gate.
func (f Func) Owns(t token.Token) bool {
	if f.OwnsFunc == nil {
		return true
	}
	return f.OwnsFunc(t)
}
