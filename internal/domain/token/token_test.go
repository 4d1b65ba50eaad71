package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToken_OwnedBy(t *testing.T) {
	tests := []struct {
		name     string
		owners   []string
		userID   string
		expected bool
	}{
		{name: "owner", owners: []string{"gm", "player-1"}, userID: "player-1", expected: true},
		{name: "not owner", owners: []string{"player-1"}, userID: "player-2", expected: false},
		{name: "no owners", owners: nil, userID: "gm", expected: false},
		{name: "empty user", owners: []string{"gm"}, userID: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &Token{ID: "t1", OwnerIDs: tt.owners}
			assert.Equal(t, tt.expected, tok.OwnedBy(tt.userID))
		})
	}
}

func TestToken_HasActor(t *testing.T) {
	assert.False(t, (&Token{}).HasActor())
	assert.True(t, (&Token{ActorID: "actor-1"}).HasActor())
}
