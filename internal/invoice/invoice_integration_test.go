//go:build integration

package invoice

import (
	"context"
	"testing"
	"time"

	"lnledger/internal/auth"
	"lnledger/internal/ledger"
	"lnledger/internal/limits"
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

type fakeNode struct {
	node.Node
	raw    string
	status node.InvoiceStatus
}

func (f *fakeNode) CreateInvoice(ctx context.Context, amountMsats ledger.Msat, memo string, expiry time.Duration) (string, error) {
	return f.raw, nil
}

func (f *fakeNode) GetInvoiceStatus(ctx context.Context, raw string) (node.InvoiceStatus, error) {
	return f.status, nil
}

func newTestUser(t *testing.T, ctx context.Context, db *store.DB, repo *store.UserRepository, balance int64) *store.User {
	t.Helper()
	u := &store.User{ID: uuid.New().String(), Email: uuid.New().String() + "@example.com", BalanceMsats: balance, Created: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, db.Pool, u))
	return u
}

func TestInvoice_CreateAndComplete(t *testing.T) {
	db := store.SetupTestDB(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	invoices := store.NewInvoiceRepository(db)
	u := newTestUser(t, ctx, db, users, 0)

	n := &fakeNode{raw: "lnbc100n1p..."}
	cfg := limits.Config{Min: 1, Max: 1_000_000_000, Daily: 1_000_000_000}
	svc := NewService(db, n, users, invoices, cfg)

	grant := auth.ReceiveGrant{TokenID: "tok1", UserID: ledger.UserID(u.ID)}
	inv, err := svc.Create(ctx, grant, 50000, "coffee", time.Hour)
	require.NoError(t, err)
	assert.False(t, inv.IsSettled())

	require.NoError(t, svc.Complete(ctx, inv.ID, 50000, 7, time.Now().UTC()))

	reloadedUser, err := users.GetByID(ctx, db.Pool, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), reloadedUser.BalanceMsats)

	reloadedInvoice, err := invoices.GetByID(ctx, db.Pool, inv.ID)
	require.NoError(t, err)
	assert.True(t, reloadedInvoice.IsSettled())

	// Re-completing is a no-op: balance must not be credited twice.
	require.NoError(t, svc.Complete(ctx, inv.ID, 50000, 7, time.Now().UTC()))
	reloadedUser, err = users.GetByID(ctx, db.Pool, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), reloadedUser.BalanceMsats)
}

func TestInvoice_Reconciler_CompletesSettledInvoice(t *testing.T) {
	db := store.SetupTestDB(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	invoices := store.NewInvoiceRepository(db)
	u := newTestUser(t, ctx, db, users, 0)

	n := &fakeNode{raw: "lnbc200n1p..."}
	cfg := limits.Config{Min: 1, Max: 1_000_000_000, Daily: 1_000_000_000}
	svc := NewService(db, n, users, invoices, cfg)

	grant := auth.ReceiveGrant{TokenID: "tok1", UserID: ledger.UserID(u.ID)}
	inv, err := svc.Create(ctx, grant, 25000, "", time.Hour)
	require.NoError(t, err)

	n.status = node.InvoiceStatus{Settled: true, AmountMsats: 25000, SettleIndex: 9, SettleDate: time.Now().UTC()}

	reconciler := NewReconciler(svc, invoices, db, n)
	require.NoError(t, reconciler.Run())

	reloaded, err := invoices.GetByID(ctx, db.Pool, inv.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsSettled())
}
