//go:build integration

package payment

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
	invoiceAmount *ledger.Msat
	probeFee      ledger.Msat
	probeErr      error
	sendErr       error
}

func (f *fakeNode) DecodeInvoice(ctx context.Context, raw string) (node.ParsedInvoice, error) {
	return node.ParsedInvoice{Raw: raw, AmountMsats: f.invoiceAmount, Destination: "00"}, nil
}

func (f *fakeNode) ProbeFee(ctx context.Context, invoice node.ParsedInvoice, amount *ledger.Msat) (ledger.Msat, error) {
	return f.probeFee, f.probeErr
}

func (f *fakeNode) PayInvoice(ctx context.Context, raw string, amountOverride *ledger.Msat, feeLimitMsats ledger.Msat) (node.PaymentResult, error) {
	if f.sendErr != nil {
		return node.PaymentResult{}, f.sendErr
	}
	return node.PaymentResult{PaymentHash: "hash"}, nil
}

func newTestUser(t *testing.T, ctx context.Context, db *store.DB, repo *store.UserRepository, balance int64) *store.User {
	t.Helper()
	u := &store.User{ID: uuid.New().String(), Email: uuid.New().String() + "@example.com", BalanceMsats: balance, Created: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, db.Pool, u))
	return u
}

func TestPayment_PrepareAndSend_Succeeds(t *testing.T) {
	db := store.SetupTestDB(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	reservations := store.NewReservationRepository(db)
	payments := store.NewPaymentRepository(db)
	u := newTestUser(t, ctx, db, users, int64(ledger.Sat(100000).Msats()))

	invAmount := ledger.Msat(20000)
	n := &fakeNode{invoiceAmount: &invAmount, probeFee: 500}
	cfg := limits.Config{Min: 1, Max: 1_000_000_000, Daily: 1_000_000_000}
	svc := NewService(db, n, users, reservations, payments, cfg)

	grant := auth.SpendGrant{TokenID: "tok1", UserID: ledger.UserID(u.ID)}
	p, err := svc.Create(ctx, grant, "lnbc200n1p...", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Prepare(ctx, p.ID))

	prepared, err := payments.GetByID(ctx, db.Pool, p.ID)
	require.NoError(t, err)
	require.NotNil(t, prepared.ReservationID)
	require.NotNil(t, prepared.FeeMsats)
	assert.Equal(t, int64(500), *prepared.FeeMsats)

	require.NoError(t, svc.Send(ctx, p.ID))

	final, err := payments.GetByID(ctx, db.Pool, p.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PaymentStatusSucceeded, final.Status)

	finalReservation, err := reservations.GetByID(ctx, db.Pool, *prepared.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Debited, finalReservation.Status)

	reloadedUser, err := users.GetByID(ctx, db.Pool, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(ledger.Sat(100000).Msats())-20000-500, reloadedUser.BalanceMsats)
}

func TestPayment_Send_RefundsOnRecoverableFailure(t *testing.T) {
	db := store.SetupTestDB(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	reservations := store.NewReservationRepository(db)
	payments := store.NewPaymentRepository(db)
	u := newTestUser(t, ctx, db, users, int64(ledger.Sat(50000).Msats()))

	invAmount := ledger.Msat(10000)
	n := &fakeNode{invoiceAmount: &invAmount, probeFee: 100}
	cfg := limits.Config{Min: 1, Max: 1_000_000_000, Daily: 1_000_000_000}
	svc := NewService(db, n, users, reservations, payments, cfg)

	grant := auth.SpendGrant{TokenID: "tok1", UserID: ledger.UserID(u.ID)}
	p, err := svc.Create(ctx, grant, "lnbc100n1p...", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Prepare(ctx, p.ID))

	n.sendErr = &node.PaymentError{Kind: node.NoRouteFound, Message: "no route"}
	err = svc.Send(ctx, p.ID)
	assert.Error(t, err)

	final, err := payments.GetByID(ctx, db.Pool, p.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PaymentStatusFailed, final.Status)
	require.NotNil(t, final.FailureReason)
	assert.Equal(t, "NO_ROUTE_FOUND", *final.FailureReason)

	reloadedUser, err := users.GetByID(ctx, db.Pool, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(ledger.Sat(50000).Msats()), reloadedUser.BalanceMsats)
}

func TestPayment_Send_LeavesReservationPendingOnUnknownOutcome(t *testing.T) {
	db := store.SetupTestDB(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	reservations := store.NewReservationRepository(db)
	payments := store.NewPaymentRepository(db)
	u := newTestUser(t, ctx, db, users, int64(ledger.Sat(50000).Msats()))

	invAmount := ledger.Msat(10000)
	n := &fakeNode{invoiceAmount: &invAmount, probeFee: 100}
	cfg := limits.Config{Min: 1, Max: 1_000_000_000, Daily: 1_000_000_000}
	svc := NewService(db, n, users, reservations, payments, cfg)

	grant := auth.SpendGrant{TokenID: "tok1", UserID: ledger.UserID(u.ID)}
	p, err := svc.Create(ctx, grant, "lnbc100n1p...", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Prepare(ctx, p.ID))

	n.sendErr = &node.PaymentError{Kind: node.Unknown, Message: "stream dropped"}
	err = svc.Send(ctx, p.ID)
	assert.ErrorIs(t, err, ErrManualInterventionRequired)

	final, err := payments.GetByID(ctx, db.Pool, p.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PaymentStatusNewOrReady, final.Status)

	finalReservation, err := reservations.GetByID(ctx, db.Pool, *final.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Pending, finalReservation.Status)
}
