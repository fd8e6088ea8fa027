/**
 * @description
 * This file defines the core domain models for the bank-simulator. These
 * structs represent the entities the service persists and the DTOs it accepts
 * on its API surface.
 *
 * @notes
 * - Entities reference each other by UUID, never by embedded object, so that
 *   the repository index is the single source of truth for relations.
 * - Monetary values use shopspring/decimal to keep ledger arithmetic exact;
 *   the database columns behind them are NUMERIC.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a transfer.
type TransactionStatus string

const (
	// StatusPending marks an external transfer awaiting network confirmation.
	StatusPending TransactionStatus = "PENDING"
	// StatusCompleted marks a transfer settled on both sides.
	StatusCompleted TransactionStatus = "COMPLETED"
	// StatusDeclined marks a rejected or failed transfer with no net balance change.
	StatusDeclined TransactionStatus = "DECLINED"
)

// IsTerminal reports whether no further protocol-driven transition may leave
// the status. Only the administrative override bypasses this.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDeclined
}

// ParseTransactionStatus validates a wire-level status string.
func ParseTransactionStatus(raw string) (TransactionStatus, bool) {
	switch TransactionStatus(raw) {
	case StatusPending, StatusCompleted, StatusDeclined:
		return TransactionStatus(raw), true
	default:
		return "", false
	}
}

// Bank represents a participant institution addressable by BIC.
type Bank struct {
	UUID           uuid.UUID `json:"uuid"`
	Name           string    `json:"name"`
	BIC            string    `json:"bic"`
	Country        string    `json:"country"`
	Currency       string    `json:"currency"`
	PaymentNetwork bool      `json:"payment_network"`
}

// Customer holds a spendable balance and a suspense balance for funds staged
// into in-flight transfers. Outside of a deposit, the sum of the two only
// changes when a transfer is staged or resolved.
type Customer struct {
	UUID            uuid.UUID       `json:"uuid"`
	Name            string          `json:"name"`
	Surname         string          `json:"surname"`
	Email           string          `json:"email"`
	Balance         decimal.Decimal `json:"balance"`
	SuspenseBalance decimal.Decimal `json:"suspense_balance"`
	BankUUID        uuid.UUID       `json:"bank_uuid"`
	PaymentNetwork  bool            `json:"payment_network"`
}

// Contact is an entry in a customer's contact book. The counterpart is known
// only by email; it need not be a customer of this bank.
type Contact struct {
	UUID         uuid.UUID `json:"uuid"`
	CustomerUUID uuid.UUID `json:"customer_uuid"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
}

// Transaction is the ledger record of one transfer attempt. The target amount
// is computed once at creation from the source amount and the exchange rate
// and never recomputed.
type Transaction struct {
	UUID           uuid.UUID         `json:"uuid"`
	SourceAmount   decimal.Decimal   `json:"source_amount"`
	SourceCurrency string            `json:"source_currency"`
	TargetAmount   decimal.Decimal   `json:"target_amount"`
	TargetCurrency string            `json:"target_currency"`
	ExchangeRate   decimal.Decimal   `json:"exchange_rate"`
	Status         TransactionStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	CustomerUUID   uuid.UUID         `json:"customer_uuid"`
	ContactUUID    uuid.UUID         `json:"contact_uuid"`
}

// NewTransferRequest is the DTO for initiating a transfer. The target is
// resolved through the source customer's contact book.
type NewTransferRequest struct {
	SourceCustomerUUID uuid.UUID       `json:"source_customer_uuid"`
	TargetEmail        string          `json:"target_email"`
	SourceAmount       decimal.Decimal `json:"source_amount"`
}

// UpdateTransactionStatusRequest is the DTO for the administrative status
// override. It bypasses the protocol state machine and is audited.
type UpdateTransactionStatusRequest struct {
	Status string `json:"status"`
}
