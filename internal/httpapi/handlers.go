package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"lnledger/internal/auth"
	"lnledger/internal/deposit"
	"lnledger/internal/invoice"
	"lnledger/internal/ledger"
	"lnledger/internal/payment"
	"lnledger/internal/store"
	"lnledger/internal/withdrawal"

	"github.com/go-chi/chi/v5"
)

var (
	errInvalidAmount  = errors.New("amount must be a positive integer")
	errInvalidMemo    = errors.New("memo must be valid JSON string")
	errInvalidExpiry  = errors.New("expiry_seconds must be a positive integer")
	errInvalidAddress = errors.New("address must be non-empty")
	errInvalidInvoice = errors.New("invoice must be non-empty")
)

// Server wires the core services into HTTP handlers.
type Server struct {
	Tokens     *store.AuthTokenRepository
	Users      *store.UserRepository
	DB         *store.DB
	Deposit    *deposit.Service
	Withdrawal *withdrawal.Service
	Invoice    *invoice.Service
	Payment    *payment.Service
}

// userResponse is the JSON shape of GET /v0/user.
type userResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	BalanceMsats int64  `json:"balance_msats"`
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantRead)
	if err != nil {
		writeError(w, err)
		return
	}
	u, err := s.Users.GetByID(r.Context(), s.DB.Pool, string(grant.UserID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Email: u.Email, BalanceMsats: u.BalanceMsats})
}

// parseRange reads limit/offset query params, defaulting limit when absent.
func parseRange(r *http.Request) (ledger.Range, error) {
	limit := ledger.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return ledger.Range{}, ledger.ErrInvalidLimit
		}
		limit = v
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return ledger.Range{}, ledger.ErrInvalidOffset
		}
		offset = v
	}
	return ledger.NewRange(limit, offset)
}

// --- Deposit addresses ---

func (s *Server) createDepositAddress(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantReceive)
	if err != nil {
		writeError(w, err)
		return
	}
	address, err := s.Deposit.GenerateAddress(r.Context(), grant)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"address": address})
}

func (s *Server) listDepositAddresses(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantRead)
	if err != nil {
		writeError(w, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}
	addrs, err := s.Deposit.ListAddresses(r.Context(), grant.UserID, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addrs)
}

func (s *Server) listDeposits(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantRead)
	if err != nil {
		writeError(w, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}
	deposits, err := s.Deposit.ListDeposits(r.Context(), grant.UserID, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deposits)
}

func (s *Server) getDeposit(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantRead)
	if err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	d, err := s.Deposit.Deposits.GetByID(r.Context(), s.DB.Pool, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if d.UserID != string(grant.UserID) {
		writeError(w, store.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- Invoices ---

type createInvoiceRequest struct {
	AmountMsats   int64  `json:"amount_msats"`
	Memo          string `json:"memo"`
	ExpirySeconds int64  `json:"expiry_seconds"`
}

func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantReceive)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errInvalidAmount)
		return
	}
	if req.ExpirySeconds <= 0 {
		writeError(w, errInvalidExpiry)
		return
	}
	inv, err := s.Invoice.Create(r.Context(), grant, ledger.Msat(req.AmountMsats), req.Memo, time.Duration(req.ExpirySeconds)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantRead)
	if err != nil {
		writeError(w, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}
	invoices, err := s.Invoice.ListInvoices(r.Context(), grant.UserID, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// --- Payments ---

type createPaymentRequest struct {
	Invoice     string `json:"invoice"`
	AmountMsats *int64 `json:"amount_msats,omitempty"`
}

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantSpend)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Invoice == "" {
		writeError(w, errInvalidInvoice)
		return
	}
	var explicit *ledger.Msat
	if req.AmountMsats != nil {
		m := ledger.Msat(*req.AmountMsats)
		explicit = &m
	}
	p, err := s.Payment.Create(r.Context(), grant, req.Invoice, explicit)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ledger.RetryLoop(func() error {
		return s.Payment.Prepare(r.Context(), p.ID)
	}); err != nil {
		writeError(w, err)
		return
	}
	if err := ledger.RetryLoop(func() error {
		return s.Payment.Send(r.Context(), p.ID)
	}); err != nil {
		writeError(w, err)
		return
	}
	final, err := s.Payment.Payments.GetByID(r.Context(), s.DB.Pool, p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, final)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantRead)
	if err != nil {
		writeError(w, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}
	payments, err := s.Payment.ListPayments(r.Context(), grant.UserID, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// --- Withdrawals ---

type createWithdrawalRequest struct {
	Address    string `json:"address"`
	AmountSats int64  `json:"amount_sats"`
}

func (s *Server) createWithdrawal(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantSpend)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, errInvalidAddress)
		return
	}
	wd, err := s.Withdrawal.Start(r.Context(), grant, req.Address, ledger.Sat(req.AmountSats))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

func (s *Server) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	grant, err := readGrant(r, auth.GrantRead)
	if err != nil {
		writeError(w, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}
	withdrawals, err := s.Withdrawal.ListWithdrawals(r.Context(), grant.UserID, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawals)
}

// readGrant extracts the authenticated auth.Token from the request context
// (placed there by the auth middleware) and mints the requested capability.
func readGrant[G any](r *http.Request, mint func(*auth.Token) (G, error)) (G, error) {
	tok, ok := tokenFromContext(r.Context())
	if !ok {
		var zero G
		return zero, auth.ErrPermissionDenied
	}
	return mint(tok)
}
