//go:build integration

package deposit

import (
	"context"
	"testing"
	"time"

	"lnledger/internal/auth"
	"lnledger/internal/ledger"
	"lnledger/internal/node"
	"lnledger/internal/store"
	"lnledger/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
}

// fakeNode implements node.Node with just enough behavior to drive address
// generation; everything else panics if called.
type fakeNode struct {
	node.Node
	address string
}

func (f fakeNode) GenerateAddress(ctx context.Context) (string, error) {
	return f.address, nil
}

func newTestUser(t *testing.T, ctx context.Context, db *store.DB, repo *store.UserRepository, balance int64) *store.User {
	t.Helper()
	u := &store.User{ID: uuid.New().String(), Email: uuid.New().String() + "@example.com", BalanceMsats: balance, Created: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, db.Pool, u))
	return u
}

func TestService_GenerateAddress_RecordsOwnership(t *testing.T) {
	db := store.SetupTestDB(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	addresses := store.NewDepositAddressRepository(db)
	deposits := store.NewDepositRepository(db)

	u := newTestUser(t, ctx, db, users, 0)
	svc := NewService(db, fakeNode{address: "bcrt1qdepositaddr"}, addresses, deposits)
	grant := auth.ReceiveGrant{TokenID: "tok1", UserID: ledger.UserID(u.ID)}

	address, err := svc.GenerateAddress(ctx, grant)
	require.NoError(t, err)
	assert.Equal(t, "bcrt1qdepositaddr", address)

	list, err := svc.ListAddresses(ctx, ledger.UserID(u.ID), ledger.Range{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bcrt1qdepositaddr", list[0].Address)
	assert.Equal(t, "tok1", list[0].TokenID)
}

func TestTxListener_Process_FullLifecycle(t *testing.T) {
	db := store.SetupTestDB(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	addresses := store.NewDepositAddressRepository(db)
	deposits := store.NewDepositRepository(db)

	u := newTestUser(t, ctx, db, users, 0)
	rec := &store.DepositAddress{UserID: u.ID, TokenID: "tok1", Address: "bcrt1qdepositaddr", Created: time.Now().UTC()}
	require.NoError(t, addresses.Create(ctx, db.Pool, rec))

	listener := NewTxListener(db, users, addresses, deposits)

	unconfirmed := node.TxOut{TxID: "tx1", VOut: 0, Address: "bcrt1qdepositaddr", AmountSats: 50000}
	require.NoError(t, listener.Process(ctx, unconfirmed))

	dep, err := deposits.GetByTxOut(ctx, db.Pool, "tx1", 0)
	require.NoError(t, err)
	assert.Nil(t, dep.Confirmed)

	reloaded, err := users.GetByID(ctx, db.Pool, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.BalanceMsats)

	height := int64(100)
	confirmed := node.TxOut{TxID: "tx1", VOut: 0, BlockHeight: &height, Address: "bcrt1qdepositaddr", AmountSats: 50000}
	require.NoError(t, listener.Process(ctx, confirmed))

	dep, err = deposits.GetByTxOut(ctx, db.Pool, "tx1", 0)
	require.NoError(t, err)
	assert.NotNil(t, dep.Confirmed)

	reloaded, err = users.GetByID(ctx, db.Pool, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(ledger.Sat(50000).Msats()), reloaded.BalanceMsats)

	// Reprocessing the same confirmed output must not double-credit.
	require.NoError(t, listener.Process(ctx, confirmed))
	reloaded, err = users.GetByID(ctx, db.Pool, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(ledger.Sat(50000).Msats()), reloaded.BalanceMsats)
}

func TestTxListener_Process_IgnoresUnknownAddress(t *testing.T) {
	db := store.SetupTestDB(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	addresses := store.NewDepositAddressRepository(db)
	deposits := store.NewDepositRepository(db)
	listener := NewTxListener(db, users, addresses, deposits)

	err := listener.Process(ctx, node.TxOut{TxID: "tx-unknown", VOut: 0, Address: "bcrt1qnobodyowns", AmountSats: 1000})
	assert.NoError(t, err)
}
