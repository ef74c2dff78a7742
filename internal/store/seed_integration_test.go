//go:build integration

package store

import (
	"context"
	"testing"

	"lnledger/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDevelopmentData_CreatesFixtureUsersAndTokens(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	users := NewUserRepository(db)
	tokens := NewAuthTokenRepository(db)

	require.NoError(t, SeedDevelopmentData(ctx, db, users, tokens))

	u1, err := users.GetByID(ctx, db.Pool, fixtureUserID(1))
	require.NoError(t, err)
	assert.Equal(t, "test-1@user.net", u1.Email)
	assert.Equal(t, int64(seedStartingBalanceMsats), u1.BalanceMsats)

	allTok, err := tokens.GetByHash(ctx, db.Pool, auth.HashToken("all_1"))
	require.NoError(t, err)
	assert.True(t, allTok.CanSpend)
	assert.True(t, allTok.CanReceive)
	assert.True(t, allTok.CanRead)
	assert.Nil(t, allTok.Disabled)

	disabledTok, err := tokens.GetByHash(ctx, db.Pool, auth.HashToken("disabled_1"))
	require.NoError(t, err)
	assert.NotNil(t, disabledTok.Disabled)
}

func TestSeedDevelopmentData_IsIdempotent(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	users := NewUserRepository(db)
	tokens := NewAuthTokenRepository(db)

	require.NoError(t, SeedDevelopmentData(ctx, db, users, tokens))
	require.NoError(t, SeedDevelopmentData(ctx, db, users, tokens))

	u1, err := users.GetByID(ctx, db.Pool, fixtureUserID(1))
	require.NoError(t, err)
	assert.Equal(t, int64(seedStartingBalanceMsats), u1.BalanceMsats)
}
