/**
 * @description
 * This file sets up the HTTP router for the bank-simulator. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for the administrative routes.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes creates and returns the router for the bank-simulator service.
func Routes(h *Handlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/banks", func(r chi.Router) {
		r.Post("/", h.CreateBankHandler)
		r.Get("/", h.ListBanksHandler)
		r.Get("/bic/{bic}", h.GetBankByBICHandler)
		r.Get("/{uuid}", h.GetBankHandler)
		r.Put("/{uuid}", h.UpdateBankHandler)
		r.Delete("/{uuid}", h.DeleteBankHandler)
	})

	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.CreateCustomerHandler)
		r.Get("/", h.ListCustomersHandler)
		r.Get("/network", h.ListNetworkCustomersHandler)
		r.Get("/{uuid}", h.GetCustomerHandler)
		r.Put("/{uuid}", h.UpdateCustomerHandler)
		r.Delete("/{uuid}", h.DeleteCustomerHandler)
	})

	r.Route("/contacts", func(r chi.Router) {
		r.Post("/", h.CreateContactHandler)
		r.Get("/", h.ListContactsHandler)
		r.Get("/{uuid}", h.GetContactHandler)
		r.Put("/{uuid}", h.UpdateContactHandler)
		r.Delete("/{uuid}", h.DeleteContactHandler)
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.NewTransactionHandler)
		r.Get("/", h.ListTransactionsHandler)
		r.Get("/status/{status}", h.ListTransactionsByStatusHandler)
		r.Get("/{uuid}", h.GetTransactionHandler)

		// The administrative override sits behind the internal API key.
		r.Group(func(r chi.Router) {
			r.Use(InternalAPIKeyMiddleware(internalAPIKey))
			r.Put("/{uuid}/status", h.UpdateTransactionStatusHandler)
		})
	})

	return r
}
