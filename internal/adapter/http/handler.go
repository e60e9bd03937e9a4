package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mheravagimyan/real-estate-ledger/internal/adapter/http/middleware"
	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/domain"
	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/usecase"
)

// Handler exposes the ledger operations over HTTP JSON.
type Handler struct {
	uc     *usecase.MarketplaceUsecase
	logger *zap.Logger
}

func NewHandler(uc *usecase.MarketplaceUsecase, logger *zap.Logger) *Handler {
	return &Handler{uc: uc, logger: logger}
}

type listPropertyRequest struct {
	Hash  string `json:"hash"`
	Price uint64 `json:"price"`
}

type purchaseRequest struct {
	Payment uint64 `json:"payment"`
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

type setFeeRateRequest struct {
	Bps uint32 `json:"bps"`
}

type eventsResponse struct {
	Events []domain.Event `json:"events"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleListProperty handles registration and (re-)listing of a property.
func (h *Handler) HandleListProperty(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, errors.New("caller identity is missing"))
		return
	}

	var req listPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for ListProperty", zap.Error(err))
		h.respondError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	hash, err := domain.ParseHash(req.Hash)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}

	events, err := h.uc.ListProperty(r.Context(), caller, hash, req.Price)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, eventsResponse{Events: events})
}

// HandleCancelListing withdraws a property from sale.
func (h *Handler) HandleCancelListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, errors.New("caller identity is missing"))
		return
	}
	hash, err := domain.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}

	events, err := h.uc.CancelListing(r.Context(), caller, hash)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// HandleBuyProperty purchases a listed property with exact payment.
func (h *Handler) HandleBuyProperty(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, errors.New("caller identity is missing"))
		return
	}
	hash, err := domain.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for BuyProperty", zap.Error(err))
		h.respondError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	events, err := h.uc.BuyProperty(r.Context(), caller, hash, req.Payment)
	if err != nil {
		// The sale may have committed with only the payout still owed; that
		// is not a failure the caller should retry.
		if errors.Is(err, domain.ErrSettlementPending) && len(events) > 0 {
			h.respondJSON(w, http.StatusAccepted, eventsResponse{Events: events})
			return
		}
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// HandleSetFeeRate updates the marketplace fee rate (operator only).
func (h *Handler) HandleSetFeeRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, errors.New("caller identity is missing"))
		return
	}

	var req setFeeRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for SetFeeRate", zap.Error(err))
		h.respondError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	events, err := h.uc.SetFeeRate(r.Context(), caller, req.Bps)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// HandleWithdrawFees transfers the accrued fee balance to the operator.
func (h *Handler) HandleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, errors.New("caller identity is missing"))
		return
	}

	events, err := h.uc.WithdrawFees(r.Context(), caller)
	if err != nil {
		if errors.Is(err, domain.ErrSettlementPending) && len(events) > 0 {
			h.respondJSON(w, http.StatusAccepted, eventsResponse{Events: events})
			return
		}
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// HandleDeposit funds the caller's settlement account.
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, errors.New("caller identity is missing"))
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for Deposit", zap.Error(err))
		h.respondError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	if err := h.uc.Deposit(r.Context(), caller, req.Amount); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetProperty returns the ownership and listing view of a property.
func (h *Handler) HandleGetProperty(w http.ResponseWriter, r *http.Request) {
	hash, err := domain.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}

	view, err := h.uc.PropertyOf(r.Context(), hash)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

// HandleActiveListings returns the catalog of properties currently for sale.
func (h *Handler) HandleActiveListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.uc.ActiveListings(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, listings)
}

// HandleGetAccountProperties returns the hashes owned by an address.
func (h *Handler) HandleGetAccountProperties(w http.ResponseWriter, r *http.Request) {
	addr := domain.Address(chi.URLParam(r, "address"))
	if addr.IsZero() {
		h.respondError(w, http.StatusBadRequest, errors.New("address is required"))
		return
	}

	properties := h.uc.PropertiesOf(r.Context(), addr)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":    addr,
		"properties": properties,
	})
}

// HandleGetBalance returns the settlement balance of an address.
func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr := domain.Address(chi.URLParam(r, "address"))
	if addr.IsZero() {
		h.respondError(w, http.StatusBadRequest, errors.New("address is required"))
		return
	}

	balance, err := h.uc.BalanceOf(r.Context(), addr)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr,
		"balance": balance,
	})
}

// HandleGetFees returns the current fee rate and accrued balance.
func (h *Handler) HandleGetFees(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.uc.Fees(r.Context()))
}

// HandleGetEvents replays the journal from the requested sequence.
func (h *Handler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	fromSeq := uint64(1)
	if raw := r.URL.Query().Get("from_seq"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, errors.New("from_seq must be a positive integer"))
			return
		}
		fromSeq = parsed
	}

	events, err := h.uc.Events(r.Context(), fromSeq)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// HandleHealthz is the liveness probe.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, err error) {
	h.respondJSON(w, status, errorResponse{Error: err.Error()})
}

// respondDomainError maps a domain rejection to an HTTP status. Every
// rejection is total; the body carries the reason for resubmission by the UI.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrIncorrectPayment),
		errors.Is(err, domain.ErrFeeTooHigh),
		errors.Is(err, domain.ErrInvalidHash),
		errors.Is(err, domain.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrSellerIsBuyer),
		errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotListed),
		errors.Is(err, domain.ErrNotRegistered):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrAlreadyForSale),
		errors.Is(err, domain.ErrNoFeesAvailable):
		status = http.StatusConflict
	default:
		h.logger.Error("Unexpected error from usecase", zap.Error(err))
	}
	h.respondError(w, status, err)
}
