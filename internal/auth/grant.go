// Package auth mints the capability Grants that every core operation
// requires as proof of authorization. Grants are the only thing the core
// accepts — there is no path from a raw token string into ledger, deposit,
// withdrawal, invoice, or payment code.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"lnledger/internal/ledger"
)

// Permissions mirror the bits stored on an AuthToken row.
type Permissions struct {
	CanSpend   bool
	CanReceive bool
	CanRead    bool
}

// Token is an authenticated, enabled AuthToken row — the result of
// hashing a presented credential and looking it up successfully. It is
// not itself a capability; Grant* constructors convert it into one.
type Token struct {
	ID          string
	UserID      ledger.UserID
	Permissions Permissions
	Disabled    *time.Time
}

var (
	// ErrTokenDisabled is returned by grant constructors when the token
	// has been disabled.
	ErrTokenDisabled = errors.New("auth token is disabled")
	// ErrPermissionDenied is returned when the token lacks the specific
	// permission bit the requested grant needs.
	ErrPermissionDenied = errors.New("token lacks required permission")
)

// HashToken returns the SHA-256 hex digest of a presented token string.
// Tokens are high-entropy random values, so this hash is unsalted — the
// input space is too large to rainbow-table.
func HashToken(presented string) string {
	sum := sha256.Sum256([]byte(presented))
	return hex.EncodeToString(sum[:])
}

// SpendGrant proves the bearer may debit a user's balance: start a
// withdrawal or send a payment.
type SpendGrant struct {
	TokenID string
	UserID  ledger.UserID
}

// ReceiveGrant proves the bearer may create an invoice or register a
// deposit address.
type ReceiveGrant struct {
	TokenID string
	UserID  ledger.UserID
}

// ReadGrant proves the bearer may list/read a user's entities.
type ReadGrant struct {
	TokenID string
	UserID  ledger.UserID
}

func (t *Token) checkEnabled() error {
	if t.Disabled != nil {
		return ErrTokenDisabled
	}
	return nil
}

// GrantSpend mints a SpendGrant from an enabled token with CanSpend set.
func GrantSpend(t *Token) (SpendGrant, error) {
	if err := t.checkEnabled(); err != nil {
		return SpendGrant{}, err
	}
	if !t.Permissions.CanSpend {
		return SpendGrant{}, ErrPermissionDenied
	}
	return SpendGrant{TokenID: t.ID, UserID: t.UserID}, nil
}

// GrantReceive mints a ReceiveGrant from an enabled token with CanReceive set.
func GrantReceive(t *Token) (ReceiveGrant, error) {
	if err := t.checkEnabled(); err != nil {
		return ReceiveGrant{}, err
	}
	if !t.Permissions.CanReceive {
		return ReceiveGrant{}, ErrPermissionDenied
	}
	return ReceiveGrant{TokenID: t.ID, UserID: t.UserID}, nil
}

// GrantRead mints a ReadGrant from an enabled token with CanRead set.
func GrantRead(t *Token) (ReadGrant, error) {
	if err := t.checkEnabled(); err != nil {
		return ReadGrant{}, err
	}
	if !t.Permissions.CanRead {
		return ReadGrant{}, ErrPermissionDenied
	}
	return ReadGrant{TokenID: t.ID, UserID: t.UserID}, nil
}
