// Package server exposes the asset over a JSON HTTP API plus a
// websocket event feed.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/keepsake-xyz/keepsake/asset"
	"github.com/keepsake-xyz/keepsake/commitment"
	"github.com/keepsake-xyz/keepsake/eventsource"
	"github.com/keepsake-xyz/keepsake/ledger"
	"github.com/keepsake-xyz/keepsake/prover"
)

// Server serves the asset API.
type Server struct {
	asset   *asset.Asset
	journal *eventsource.Journal
	prover  *prover.Prover
	log     *zap.Logger
	mux     *http.ServeMux

	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithJournal enables the /events history endpoint and the websocket
// feed.
func WithJournal(j *eventsource.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithProver enables the solvency proof endpoint.
func WithProver(p *prover.Prover) Option {
	return func(s *Server) { s.prover = p }
}

// WithLogger sets the server's logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a server around the given asset.
func New(a *asset.Asset, opts ...Option) *Server {
	s := &Server{
		asset: a,
		log:   zap.NewNop(),
		mux:   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("GET /state", s.handleState)
	s.mux.HandleFunc("GET /funds/{address}", s.handleFunds)
	s.mux.HandleFunc("GET /invocations/{id}", s.handleInvocation)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("GET /ws", s.handleWebsocket)

	s.mux.HandleFunc("POST /deposit", s.handleDeposit)
	s.mux.HandleFunc("POST /withdraw", s.handleWithdraw)
	s.mux.HandleFunc("POST /list", s.handleList)
	s.mux.HandleFunc("POST /purchase", s.handlePurchase)
	s.mux.HandleFunc("POST /price", s.handleSetPrice)
	s.mux.HandleFunc("POST /settle", s.handleSettle)
	s.mux.HandleFunc("POST /foreclose", s.handleForeclose)
	s.mux.HandleFunc("POST /relinquish", s.handleRelinquish)

	s.mux.HandleFunc("POST /auction/start", s.handleAuctionStart)
	s.mux.HandleFunc("POST /auction/bid", s.handleAuctionBid)
	s.mux.HandleFunc("POST /auction/finalize", s.handleAuctionFinalize)

	s.mux.HandleFunc("POST /invoke", s.handleInvoke)
	s.mux.HandleFunc("POST /respond", s.handleRespond)
	s.mux.HandleFunc("POST /flag", s.handleFlag)

	s.mux.HandleFunc("POST /params/fees", s.handleSetFees)
	s.mux.HandleFunc("POST /params/cooldown", s.handleSetCooldown)
	s.mux.HandleFunc("POST /params/auction", s.handleSetAuctionParams)
	s.mux.HandleFunc("POST /params/cleartext", s.handleSetCleartextLength)
	s.mux.HandleFunc("POST /oath", s.handleSwearOath)

	s.mux.HandleFunc("POST /prove/solvency", s.handleProveSolvency)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
}

// errStatus maps domain errors onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, asset.ErrNotKeeper),
		errors.Is(err, asset.ErrNotCreator),
		errors.Is(err, asset.ErrBeneficiaryBarred),
		errors.Is(err, asset.ErrCreatorControlsOnly),
		errors.Is(err, asset.ErrResponseNotToKeeper):
		return http.StatusForbidden
	case errors.Is(err, asset.ErrInvocationNotFound),
		errors.Is(err, asset.ErrResponseNotFound):
		return http.StatusNotFound
	case errors.Is(err, asset.ErrAuctionRunning),
		errors.Is(err, asset.ErrAuctionNotRunning),
		errors.Is(err, asset.ErrAuctionNotEnded),
		errors.Is(err, asset.ErrNotContractHeld),
		errors.Is(err, asset.ErrNotKeeperHeld),
		errors.Is(err, asset.ErrKeeperInsolvent),
		errors.Is(err, asset.ErrKeeperSolvent),
		errors.Is(err, asset.ErrCooldownActive),
		errors.Is(err, asset.ErrSettledThisInstant),
		errors.Is(err, asset.ErrFlaggingPeriodOver),
		errors.Is(err, asset.ErrResponseExists),
		errors.Is(err, asset.ErrResponseAlreadyFlagged),
		errors.Is(err, asset.ErrCurrentValueIncorrect),
		errors.Is(err, asset.ErrFundsLockedInBid),
		errors.Is(err, asset.ErrSelfPurchase),
		errors.Is(err, asset.ErrOathNotHonored):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	default:
		return http.StatusBadRequest
	}
}

func decode[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(&v)
	return v, err
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return uint256.FromDecimal(s)
}

func parseHash(s string) (commitment.Hash, error) {
	if s == "" {
		return commitment.Zero, nil
	}
	return commitment.ParseHex(s)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleFunds(w http.ResponseWriter, r *http.Request) {
	addr := ledger.Address(r.PathValue("address"))
	s.writeJSON(w, http.StatusOK, map[string]string{
		"address": string(addr),
		"funds":   s.asset.Funds(addr).String(),
	})
}

func (s *Server) handleInvocation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, err)
		return
	}
	inv, err := s.asset.InvocationByID(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := map[string]any{"invocation": inv}
	if resp, ok := s.asset.ResponseByID(id); ok {
		out["response"] = resp
		out["flagged"] = s.asset.ResponseFlagged(id)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "event history not configured", http.StatusNotImplemented)
		return
	}
	from := 0
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, err)
			return
		}
		from = parsed
	}
	events, err := s.journal.History(r.Context(), from)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "event feed not configured", http.StatusNotImplemented)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	events, stop := s.journal.Subscribe(64)
	defer stop()

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				stop()
				return
			}
		}
	}()

	for e := range events {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Address string `json:"address"`
		Amount  string `json:"amount"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.asset.Deposit(ledger.Address(req.Address), amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"funds": s.asset.Funds(ledger.Address(req.Address)).String(),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Address string `json:"address"`
		Amount  string `json:"amount"` // empty withdraws everything
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	addr := ledger.Address(req.Address)
	if req.Amount == "" {
		err = s.asset.WithdrawAll(addr)
	} else {
		var amount *uint256.Int
		if amount, err = parseAmount(req.Amount); err == nil {
			err = s.asset.Withdraw(addr, amount)
		}
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"funds": s.asset.Funds(addr).String()})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller string `json:"caller"`
		Price  string `json:"price"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.asset.ListWithPrice(ledger.Address(req.Caller), price); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Buyer    string `json:"buyer"`
		NewPrice string `json:"newPrice"`
		Attached string `json:"attached"`
		Terms    struct {
			Price                  string `json:"price"`
			TaxNumerator           uint64 `json:"taxNumerator"`
			RoyaltyNumerator       uint64 `json:"royaltyNumerator"`
			CooldownSeconds        int64  `json:"cooldownSeconds"`
			CleartextMaximumLength int    `json:"cleartextMaximumLength"`
		} `json:"terms"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	newPrice, err := parseAmount(req.NewPrice)
	if err != nil {
		s.writeError(w, err)
		return
	}
	attached, err := parseAmount(req.Attached)
	if err != nil {
		s.writeError(w, err)
		return
	}
	termsPrice, err := parseAmount(req.Terms.Price)
	if err != nil {
		s.writeError(w, err)
		return
	}
	terms := asset.PurchaseTerms{
		CurrentPrice:                  termsPrice,
		CurrentTaxNumerator:           req.Terms.TaxNumerator,
		CurrentRoyaltyNumerator:       req.Terms.RoyaltyNumerator,
		CurrentCooldown:               time.Duration(req.Terms.CooldownSeconds) * time.Second,
		CurrentCleartextMaximumLength: req.Terms.CleartextMaximumLength,
	}
	if err := s.asset.Purchase(ledger.Address(req.Buyer), newPrice, terms, attached); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller   string `json:"caller"`
		NewPrice string `json:"newPrice"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	newPrice, err := parseAmount(req.NewPrice)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.asset.SetPrice(ledger.Address(req.Caller), newPrice); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	s.asset.Settle()
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleForeclose(w http.ResponseWriter, r *http.Request) {
	if err := s.asset.Foreclose(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleRelinquish(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller      string `json:"caller"`
		WithAuction bool   `json:"withAuction"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.asset.Relinquish(ledger.Address(req.Caller), req.WithAuction); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleAuctionStart(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller string `json:"caller"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.asset.StartAuction(ledger.Address(req.Caller)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleAuctionBid(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Bidder     string `json:"bidder"`
		Amount     string `json:"amount"`
		PriceIfWon string `json:"priceIfWon"`
		Attached   string `json:"attached"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	priceIfWon, err := parseAmount(req.PriceIfWon)
	if err != nil {
		s.writeError(w, err)
		return
	}
	attached, err := parseAmount(req.Attached)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.asset.Bid(ledger.Address(req.Bidder), amount, priceIfWon, attached); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleAuctionFinalize(w http.ResponseWriter, r *http.Request) {
	if err := s.asset.FinalizeAuction(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller      string `json:"caller"`
		Cleartext   string `json:"cleartext"`
		ContentHash string `json:"contentHash"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	caller := ledger.Address(req.Caller)
	var id uint64
	if req.ContentHash != "" {
		hash, err := parseHash(req.ContentHash)
		if err != nil {
			s.writeError(w, err)
			return
		}
		id, err = s.asset.Invoke(caller, hash)
		if err != nil {
			s.writeError(w, err)
			return
		}
	} else {
		id, err = s.asset.InvokeWithCleartext(caller, req.Cleartext)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"id": id})
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller       string `json:"caller"`
		InvocationID uint64 `json:"invocationId"`
		ContentHash  string `json:"contentHash"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hash, err := parseHash(req.ContentHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.asset.Respond(ledger.Address(req.Caller), req.InvocationID, hash); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"id": req.InvocationID})
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller       string `json:"caller"`
		InvocationID uint64 `json:"invocationId"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.asset.FlagResponse(ledger.Address(req.Caller), req.InvocationID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":      req.InvocationID,
		"flagged": true,
	})
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller           string `json:"caller"`
		TaxNumerator     uint64 `json:"taxNumerator"`
		RoyaltyNumerator uint64 `json:"royaltyNumerator"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.asset.SetFees(ledger.Address(req.Caller), req.TaxNumerator, req.RoyaltyNumerator); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleSetCooldown(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller                string `json:"caller"`
		CooldownSeconds       int64  `json:"cooldownSeconds"`
		FlaggingPeriodSeconds int64  `json:"flaggingPeriodSeconds"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	err = s.asset.SetCooldown(ledger.Address(req.Caller),
		time.Duration(req.CooldownSeconds)*time.Second,
		time.Duration(req.FlaggingPeriodSeconds)*time.Second)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleSetAuctionParams(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller                 string `json:"caller"`
		StartingPrice          string `json:"startingPrice"`
		MinimumBidStep         string `json:"minimumBidStep"`
		MinimumDurationSeconds int64  `json:"minimumDurationSeconds"`
		BidExtensionSeconds    int64  `json:"bidExtensionSeconds"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	startingPrice, err := parseAmount(req.StartingPrice)
	if err != nil {
		s.writeError(w, err)
		return
	}
	step, err := parseAmount(req.MinimumBidStep)
	if err != nil {
		s.writeError(w, err)
		return
	}
	err = s.asset.SetAuctionParameters(ledger.Address(req.Caller), startingPrice, step,
		time.Duration(req.MinimumDurationSeconds)*time.Second,
		time.Duration(req.BidExtensionSeconds)*time.Second)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleSetCleartextLength(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller string `json:"caller"`
		Length int    `json:"length"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.asset.SetCleartextMaximumLength(ledger.Address(req.Caller), req.Length); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

func (s *Server) handleSwearOath(w http.ResponseWriter, r *http.Request) {
	req, err := decode[struct {
		Caller       string    `json:"caller"`
		OathHash     string    `json:"oathHash"`
		Oath         string    `json:"oath"` // alternative to oathHash
		HonoredUntil time.Time `json:"honoredUntil"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hash, err := parseHash(req.OathHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if hash.IsZero() && req.Oath != "" {
		hash = commitment.HashCleartext(req.Oath)
	}
	if err := s.asset.SwearOath(ledger.Address(req.Caller), hash, req.HonoredUntil); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.asset.State())
}

// handleProveSolvency proves the keeper's ledger balance covers the tax
// owed right now, without publishing the balance.
func (s *Server) handleProveSolvency(w http.ResponseWriter, r *http.Request) {
	if s.prover == nil {
		http.Error(w, "prover not configured", http.StatusNotImplemented)
		return
	}
	keeper := s.asset.Keeper()
	if keeper == ledger.Nobody {
		s.writeError(w, asset.ErrNotKeeperHeld)
		return
	}
	salt, err := prover.NewSalt()
	if err != nil {
		s.writeError(w, err)
		return
	}
	funds := s.asset.Funds(keeper)
	owed := s.asset.OwedSinceLastSettlement()
	proof, err := s.prover.ProveSolvency(funds, owed, salt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, proof)
}
