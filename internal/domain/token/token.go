// Package token provides the Token domain entity (an observer on a scene).
package token

// Token represents a participant avatar placed on a scene.
type Token struct {
	ID       string
	SceneID  string
	Name     string
	X, Y     float64  // Centre point in pixels
	Hidden   bool     // Hidden tokens never observe
	ActorID  string   // Associated actor ("" if none)
	OwnerIDs []string // User IDs owning the token
}

// HasActor reports whether the token is linked to an actor.
func (t *Token) HasActor() bool {
	return t.ActorID != ""
}

// OwnedBy reports whether the given user owns the token.
func (t *Token) OwnedBy(userID string) bool {
	for _, id := range t.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}
