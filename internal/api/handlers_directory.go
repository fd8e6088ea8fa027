/**
 * @description
 * HTTP handlers for the directory endpoints: banks, customers, and contacts.
 * These share the service and the response helpers defined in handlers.go.
 */

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/banksim/bank-simulator/internal/domain"
	"github.com/banksim/bank-simulator/internal/store"
)

// --- Banks ---

func (h *Handlers) CreateBankHandler(w http.ResponseWriter, r *http.Request) {
	var bank domain.Bank
	if err := json.NewDecoder(r.Body).Decode(&bank); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	created, err := h.service.CreateBank(r.Context(), &bank)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) UpdateBankHandler(w http.ResponseWriter, r *http.Request) {
	bankUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	var bank domain.Bank
	if err := json.NewDecoder(r.Body).Decode(&bank); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	bank.UUID = bankUUID
	updated, err := h.service.UpdateBank(r.Context(), &bank)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteBankHandler(w http.ResponseWriter, r *http.Request) {
	bankUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	if err := h.service.DeleteBank(r.Context(), bankUUID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListBanksHandler(w http.ResponseWriter, r *http.Request) {
	// An optional name filter turns the listing into a substring search.
	if name := strings.TrimSpace(r.URL.Query().Get("name")); name != "" {
		banks, err := h.service.FindBanksByName(r.Context(), name)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		if len(banks) == 0 {
			h.writeError(w, http.StatusNotFound, store.ErrBankNotFound.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, banks)
		return
	}
	banks, err := h.service.GetAllBanks(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, banks)
}

func (h *Handlers) GetBankHandler(w http.ResponseWriter, r *http.Request) {
	bankUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	bank, err := h.service.FindBankByUUID(r.Context(), bankUUID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bank)
}

func (h *Handlers) GetBankByBICHandler(w http.ResponseWriter, r *http.Request) {
	bank, err := h.service.FindBankByBIC(r.Context(), chi.URLParam(r, "bic"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bank)
}

// --- Customers ---

func (h *Handlers) CreateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var customer domain.Customer
	if err := json.NewDecoder(r.Body).Decode(&customer); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	created, err := h.service.CreateCustomer(r.Context(), &customer)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) UpdateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customerUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	var customer domain.Customer
	if err := json.NewDecoder(r.Body).Decode(&customer); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	customer.UUID = customerUUID
	updated, err := h.service.UpdateCustomer(r.Context(), &customer)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customerUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	if err := h.service.DeleteCustomer(r.Context(), customerUUID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListCustomersHandler(w http.ResponseWriter, r *http.Request) {
	// An optional email filter resolves a single customer.
	if email := strings.TrimSpace(r.URL.Query().Get("email")); email != "" {
		customer, err := h.service.FindCustomerByEmail(r.Context(), email)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, customer)
		return
	}
	customers, err := h.service.GetAllCustomers(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, customers)
}

func (h *Handlers) GetCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customerUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	customer, err := h.service.FindCustomerByUUID(r.Context(), customerUUID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, customer)
}

// ListNetworkCustomersHandler proxies the payment network's reachable
// customer listing.
func (h *Handlers) ListNetworkCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListNetworkCustomers(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "Payment network unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, customers)
}

// --- Contacts ---

func (h *Handlers) CreateContactHandler(w http.ResponseWriter, r *http.Request) {
	var contact domain.Contact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	created, err := h.service.CreateContact(r.Context(), &contact)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) UpdateContactHandler(w http.ResponseWriter, r *http.Request) {
	contactUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	var contact domain.Contact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	contact.UUID = contactUUID
	updated, err := h.service.UpdateContact(r.Context(), &contact)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteContactHandler(w http.ResponseWriter, r *http.Request) {
	contactUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	if err := h.service.DeleteContact(r.Context(), contactUUID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListContactsHandler(w http.ResponseWriter, r *http.Request) {
	// An optional name filter turns the listing into a substring search.
	if name := strings.TrimSpace(r.URL.Query().Get("name")); name != "" {
		contacts, err := h.service.FindContactsByName(r.Context(), name)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		if len(contacts) == 0 {
			h.writeError(w, http.StatusNotFound, store.ErrContactNotFound.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, contacts)
		return
	}
	contacts, err := h.service.GetAllContacts(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, contacts)
}

func (h *Handlers) GetContactHandler(w http.ResponseWriter, r *http.Request) {
	contactUUID, ok := h.parseUUIDParam(w, r, "uuid")
	if !ok {
		return
	}
	contact, err := h.service.FindContactByUUID(r.Context(), contactUUID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, contact)
}
