package store

import (
	"context"
	"fmt"
	"time"

	"lnledger/internal/auth"

	"github.com/google/uuid"
)

// seedUserSpecs mirrors the five token shapes a development fixture user
// gets: one token per permission in isolation, one with all three, and one
// disabled token carrying all three (to exercise the disabled-token path).
var seedUserSpecs = []struct {
	name                          string
	canSpend, canReceive, canRead bool
	disabled                      bool
}{
	{name: "spend_only", canSpend: true},
	{name: "receive_only", canReceive: true},
	{name: "read_only", canRead: true},
	{name: "all", canSpend: true, canReceive: true, canRead: true},
	{name: "disabled", canSpend: true, canReceive: true, canRead: true, disabled: true},
}

// seedStartingBalanceMsats matches the fixture's 20 BTC starting balance.
const seedStartingBalanceMsats = 2_000_000_000_000

// SeedDevelopmentData populates two fixture users, each with the five token
// shapes above, if they do not already exist. It is idempotent: re-running
// it against a database that already has the fixture users is a no-op.
// Callers are expected to gate this behind a development-only environment
// check; it is never safe to run against a production database.
func SeedDevelopmentData(ctx context.Context, db *DB, users *UserRepository, tokens *AuthTokenRepository) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := 1; i <= 2; i++ {
		if err := seedFixtureUser(ctx, tx, users, tokens, i); err != nil {
			return fmt.Errorf("failed to seed fixture user %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	return nil
}

func seedFixtureUser(ctx context.Context, tx Querier, users *UserRepository, tokens *AuthTokenRepository, index int) error {
	id := fixtureUserID(index)
	if _, err := users.GetByID(ctx, tx, id); err == nil {
		return nil
	}

	u := &User{
		ID:           id,
		Email:        fmt.Sprintf("test-%d@user.net", index),
		BalanceMsats: seedStartingBalanceMsats,
		Created:      time.Now().UTC(),
	}
	if err := users.Create(ctx, tx, u); err != nil {
		return err
	}

	for _, spec := range seedUserSpecs {
		name := fmt.Sprintf("%s_%d", spec.name, index)
		var disabledAt *time.Time
		if spec.disabled {
			now := time.Now().UTC()
			disabledAt = &now
		}
		t := &AuthToken{
			ID:         uuid.NewString(),
			UserID:     id,
			Name:       name,
			TokenHash:  auth.HashToken(name),
			CanSpend:   spec.canSpend,
			CanReceive: spec.canReceive,
			CanRead:    spec.canRead,
			Created:    time.Now().UTC(),
			Disabled:   disabledAt,
		}
		if err := tokens.Create(ctx, tx, t); err != nil {
			return err
		}
	}
	return nil
}

// fixtureUserID derives a stable, deterministic user id per fixture index
// so re-seeding always targets the same rows, matching the original
// fixture's Uuid::from_u128(index) convention.
func fixtureUserID(index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("lnledger-dev-fixture-user-%d", index))).String()
}
