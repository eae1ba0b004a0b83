package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/registry"
)

const defaultListingsLimit = 100

// maxRequestBodyBytes fits three metadata fields at their limit even when
// every byte arrives as a \uXXXX escape.
const maxRequestBodyBytes = 3*6*registry.MaxTextLength + 1024

// Server exposes the ledger over HTTP. Writes go through the operation
// queue and answer once their block was executed; reads go to the query
// service.
type Server struct {
	queue   *OperationQueue
	queries *QueryService
	faucet  bool
	logger  *slog.Logger
}

// NewServer creates a server. The faucet route is only registered when
// faucet is set.
func NewServer(queue *OperationQueue, queries *QueryService, faucet bool, logger *slog.Logger) *Server {
	return &Server{
		queue:   queue,
		queries: queries,
		faucet:  faucet,
		logger:  logger.With(componentKey, componentHTTP),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// Middleware to measure and log request time
	r.Use(s.requestLoggerMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	r.HandleFunc("/nfts", s.mintHandler).Methods("POST")
	r.HandleFunc("/nfts/{id}", s.getNFTHandler).Methods("GET")
	r.HandleFunc("/nfts/{id}/owner", s.getOwnerHandler).Methods("GET")
	r.HandleFunc("/nfts/{id}/transfer", s.transferHandler).Methods("POST")
	r.HandleFunc("/nfts/{id}/listing", s.listHandler).Methods("POST")
	r.HandleFunc("/nfts/{id}/listing", s.unlistHandler).Methods("DELETE")
	r.HandleFunc("/nfts/{id}/listing", s.getListingHandler).Methods("GET")
	r.HandleFunc("/nfts/{id}/purchase", s.purchaseHandler).Methods("POST")
	r.HandleFunc("/nfts/{id}/sales", s.getSalesHandler).Methods("GET")

	r.HandleFunc("/listings", s.getListingsHandler).Methods("GET")

	r.HandleFunc("/accounts/{address}/nfts", s.getTokensOfHandler).Methods("GET")
	r.HandleFunc("/accounts/{address}/balance", s.getBalanceHandler).Methods("GET")
	if s.faucet {
		r.HandleFunc("/accounts/{address}/fund", s.fundHandler).Methods("POST")
	}

	r.HandleFunc("/receipts/{id}", s.getReceiptHandler).Methods("GET")

	return r
}

// requestLoggerMiddleware logs request timing
func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		s.logger.Debug("incoming request", "method", r.Method, "path", r.URL.Path)

		// Create a response writer wrapper to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(startTime)
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
		}
		switch {
		case rw.statusCode >= 500:
			s.logger.Error("request failed", args...)
		case rw.statusCode >= 400:
			s.logger.Warn("request rejected", args...)
		default:
			s.logger.Info("request completed", args...)
		}

		logSlow(s.logger, "REQUEST", r.Method+" "+r.URL.Path, duration, slowRequestThreshold)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	latest, err := s.queries.LatestBlock(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		QueueSize:    s.queue.Size(),
		CurrentBlock: s.queue.CurrentBlockNumber(),
		LatestBlock:  latest,
	})
}

func (s *Server) mintHandler(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	op := &chain.MintNFT{
		Name:        req.Name,
		Description: req.Description,
		ImageURI:    req.ImageURI,
	}
	if req.RoyaltyPercent != nil {
		op.RoyaltyPercent = *req.RoyaltyPercent
	}
	s.submit(w, r, op)
}

func (s *Server) transferHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	recipient, ok := parseAddress(w, req.Recipient, "recipient")
	if !ok {
		return
	}
	s.submit(w, r, &chain.TransferNFT{TokenID: tokenID, Recipient: recipient})
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	var req ListRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Price == nil {
		jsonError(w, ledger.Errorf(ledger.ErrInvalidInput, "price is required"))
		return
	}
	s.submit(w, r, &chain.ListNFT{TokenID: tokenID, Price: req.Price})
}

func (s *Server) unlistHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	s.submit(w, r, &chain.UnlistNFT{TokenID: tokenID})
}

func (s *Server) purchaseHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	s.submit(w, r, &chain.PurchaseNFT{TokenID: tokenID})
}

func (s *Server) fundHandler(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"], "address")
	if !ok {
		return
	}
	var req FundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amount == nil {
		jsonError(w, ledger.Errorf(ledger.ErrInvalidInput, "amount is required"))
		return
	}
	s.submit(w, r, &chain.FundAccount{Address: addr, Amount: req.Amount})
}

// submit enqueues op for the caller and waits for its receipt.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, op chain.Operation) {
	caller, ok := parseAddress(w, r.Header.Get(CallerHeader), CallerHeader)
	if !ok {
		return
	}
	if caller == (common.Address{}) {
		jsonError(w, ledger.Errorf(ledger.ErrInvalidInput, "%s must not be the zero address", CallerHeader))
		return
	}

	pending := s.queue.Enqueue(caller, op)
	if pending == nil {
		jsonResponse(w, http.StatusServiceUnavailable, map[string]any{
			"err": ErrorBody{Code: ledger.CodeInternal, Message: ErrShuttingDown.Error()},
		})
		return
	}
	s.logger.Debug("operation enqueued",
		"id", pending.ID,
		"operation", op.Type(),
		"caller", caller.Hex(),
		"queueSize", s.queue.Size(),
	)

	receipt, err := pending.Wait(r.Context())
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The operation stays queued; its receipt can be fetched later.
		jsonResponse(w, http.StatusServiceUnavailable, map[string]any{
			"err":       ErrorBody{Code: ledger.CodeInternal, Message: "request ended before the operation was executed"},
			"receiptId": pending.ID,
		})
		return
	case errors.Is(err, ErrShuttingDown):
		jsonResponse(w, http.StatusServiceUnavailable, map[string]any{
			"err": ErrorBody{Code: ledger.CodeInternal, Message: err.Error()},
		})
		return
	case err != nil:
		s.internalError(w, err)
		return
	}

	if receipt.OK() {
		jsonResponse(w, http.StatusOK, map[string]any{"ok": receipt.Result, "receipt": receipt})
		return
	}
	body := ErrorBody{Code: receipt.Error.Code, Message: receipt.Error.Message}
	jsonResponse(w, statusFor(body.Code), map[string]any{"err": body, "receipt": receipt})
}

func (s *Server) getOwnerHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	owner, err := s.queries.TokenOwner(r.Context(), tokenID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	okResponse(w, owner)
}

func (s *Server) getNFTHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	nft, err := s.queries.NFTData(r.Context(), tokenID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	okResponse(w, nft)
}

func (s *Server) getListingHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	listing, err := s.queries.Listing(r.Context(), tokenID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	okResponse(w, listing)
}

func (s *Server) getListingsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(w, r, "limit", defaultListingsLimit)
	if !ok {
		return
	}
	offset, ok := intQuery(w, r, "offset", 0)
	if !ok {
		return
	}
	listings, err := s.queries.Listings(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, err)
		return
	}
	okResponse(w, listings)
}

func (s *Server) getSalesHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	sales, err := s.queries.Sales(r.Context(), tokenID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	okResponse(w, sales)
}

func (s *Server) getTokensOfHandler(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"], "address")
	if !ok {
		return
	}
	ids, err := s.queries.TokensOf(r.Context(), addr)
	if err != nil {
		s.internalError(w, err)
		return
	}
	okResponse(w, ids)
}

func (s *Server) getBalanceHandler(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"], "address")
	if !ok {
		return
	}
	bal, err := s.queries.Balance(r.Context(), addr)
	if err != nil {
		s.internalError(w, err)
		return
	}
	okResponse(w, BalanceResponse{Address: addr, Balance: bal})
}

func (s *Server) getReceiptHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	receipt, err := s.queries.Receipt(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			jsonError(w, err)
			return
		}
		s.internalError(w, err)
		return
	}
	okResponse(w, receipt)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	jsonError(w, &ledger.Error{Code: ledger.CodeInternal, Message: "internal server error"})
}

// statusFor maps an error code to its HTTP status.
func statusFor(code ledger.Code) int {
	switch code {
	case ledger.CodeInvalidInput:
		return http.StatusBadRequest
	case ledger.CodeUnauthorized:
		return http.StatusForbidden
	case ledger.CodeNotFound, ledger.CodeNotListed:
		return http.StatusNotFound
	case ledger.CodeAlreadyListed, ledger.CodeSelfPurchase:
		return http.StatusConflict
	case ledger.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func tokenIDVar(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		jsonError(w, ledger.Errorf(ledger.ErrInvalidInput, "invalid token id %q", raw))
		return 0, false
	}
	return id, true
}

func intQuery(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		jsonError(w, ledger.Errorf(ledger.ErrInvalidInput, "invalid %s %q", key, raw))
		return 0, false
	}
	return n, true
}

func parseAddress(w http.ResponseWriter, raw, field string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		jsonError(w, ledger.Errorf(ledger.ErrInvalidInput, "%s must be a hex address", field))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		jsonResponse(w, http.StatusRequestEntityTooLarge, map[string]any{
			"err": ErrorBody{Code: ledger.CodeInvalidInput, Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)},
		})
		return false
	case err != nil:
		jsonError(w, ledger.Errorf(ledger.ErrInvalidInput, "invalid JSON: %v", err))
		return false
	}
	return true
}

// okResponse writes {"ok": v}. A nil pointer encodes as null.
func okResponse(w http.ResponseWriter, v any) {
	jsonResponse(w, http.StatusOK, map[string]any{"ok": v})
}

// jsonResponse sends a JSON response
func jsonResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// jsonError sends the err arm of a result with the status of its code.
func jsonError(w http.ResponseWriter, err error) {
	body := ErrorBody{Code: ledger.CodeOf(err), Message: err.Error()}
	var le *ledger.Error
	if errors.As(err, &le) {
		body.Message = le.Message
	}
	jsonResponse(w, statusFor(body.Code), map[string]any{"err": body})
}

// ListenAndServe serves router on port until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", "http://localhost"+srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
