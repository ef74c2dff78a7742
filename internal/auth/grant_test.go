package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToken_Deterministic(t *testing.T) {
	h1 := HashToken("secret-token-value")
	h2 := HashToken("secret-token-value")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex-encoded SHA-256
}

func TestGrantSpend_RequiresPermission(t *testing.T) {
	tok := &Token{ID: "t1", UserID: "u1", Permissions: Permissions{CanSpend: false}}
	_, err := GrantSpend(tok)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	tok.Permissions.CanSpend = true
	grant, err := GrantSpend(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", string(grant.UserID))
}

func TestGrant_DisabledTokenRejected(t *testing.T) {
	disabledAt := time.Now().UTC()
	tok := &Token{
		ID:          "t1",
		UserID:      "u1",
		Permissions: Permissions{CanSpend: true, CanReceive: true, CanRead: true},
		Disabled:    &disabledAt,
	}

	_, err := GrantSpend(tok)
	assert.ErrorIs(t, err, ErrTokenDisabled)
	_, err = GrantReceive(tok)
	assert.ErrorIs(t, err, ErrTokenDisabled)
	_, err = GrantRead(tok)
	assert.ErrorIs(t, err, ErrTokenDisabled)
}
