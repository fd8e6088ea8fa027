/**
 * @description
 * The payment network gateway as seen by the application layer. The concrete
 * HTTP client lives in pkg/paymentnetwork; the service depends only on this
 * interface so tests can stand in a fake network.
 */

package app

import (
	"context"

	"github.com/google/uuid"

	"github.com/banksim/bank-simulator/internal/domain"
	"github.com/banksim/bank-simulator/pkg/paymentnetwork"
)

// PaymentNetworkGateway is the inter-bank network's API surface consumed by
// this service.
type PaymentNetworkGateway interface {
	// ValidateCustomer asks the network whether targetEmail is a reachable
	// customer of some participant bank.
	ValidateCustomer(ctx context.Context, email string) (bool, error)

	// ListCustomers fetches every customer the network can currently reach.
	ListCustomers(ctx context.Context) ([]paymentnetwork.CustomerRecord, error)

	RegisterBank(ctx context.Context, bank domain.Bank) error
	UpdateBank(ctx context.Context, bank domain.Bank) error
	UnregisterBank(ctx context.Context, bankUUID uuid.UUID) error

	RegisterCustomer(ctx context.Context, customer domain.Customer) error
	UpdateCustomer(ctx context.Context, customer domain.Customer) error
	UnregisterCustomer(ctx context.Context, customerUUID uuid.UUID) error

	// FinalizeCompletedTransaction carries the finalize notice to the
	// counterpart bank directly, used when the message bus is unavailable.
	FinalizeCompletedTransaction(ctx context.Context, txUUID uuid.UUID, counterpartBIC string) error
}
