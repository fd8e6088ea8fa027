/**
 * @description
 * This file contains the HTTP handlers for the transaction endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/banksim/bank-simulator/internal/app"
	"github.com/banksim/bank-simulator/internal/domain"
	"github.com/banksim/bank-simulator/internal/store"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service) *Handlers {
	return &Handlers{service: service}
}

// NewTransactionHandler handles requests to initiate a transfer. Business
// declines come back 201 with the DECLINED status on the transaction body;
// only request-level failures produce an error status.
func (h *Handlers) NewTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.NewTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=new_transaction outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.SourceCustomerUUID == uuid.Nil || strings.TrimSpace(req.TargetEmail) == "" {
		h.writeError(w, http.StatusBadRequest, "source_customer_uuid and target_email are required")
		return
	}

	tx, err := h.service.AddNewTransaction(r.Context(), req.SourceCustomerUUID, req.TargetEmail, req.SourceAmount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=new_transaction outcome=failed source=%s err=%v", req.SourceCustomerUUID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=new_transaction outcome=accepted tx=%s status=%s", tx.UUID, tx.Status)
	h.writeJSON(w, http.StatusCreated, tx)
}

// ListTransactionsHandler returns every transaction.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.GetAllTransactions(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// GetTransactionHandler returns one transaction by UUID.
func (h *Handlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	txUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	tx, err := h.service.FindTransactionByUUID(r.Context(), txUUID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// ListTransactionsByStatusHandler returns transactions filtered by status.
func (h *Handlers) ListTransactionsByStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, ok := domain.ParseTransactionStatus(strings.ToUpper(chi.URLParam(r, "status")))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Unknown transaction status")
		return
	}
	txs, err := h.service.GetTransactionsByStatus(r.Context(), status)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// UpdateTransactionStatusHandler is the administrative status override. The
// route sits behind the internal API key middleware.
func (h *Handlers) UpdateTransactionStatusHandler(w http.ResponseWriter, r *http.Request) {
	txUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	var req domain.UpdateTransactionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	status, valid := domain.ParseTransactionStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !valid {
		h.writeError(w, http.StatusBadRequest, "Unknown transaction status")
		return
	}

	tx, err := h.service.UpdateTransactionStatus(r.Context(), txUUID, status)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// parseUUIDParam pulls a UUID path parameter, writing the 400 itself on
// failure.
func (h *Handlers) parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s: %q", name, raw))
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service-layer errors onto HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrBankNotFound),
		errors.Is(err, store.ErrCustomerNotFound),
		errors.Is(err, store.ErrContactNotFound),
		errors.Is(err, store.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateBIC), errors.Is(err, store.ErrDuplicateEmail):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, app.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
