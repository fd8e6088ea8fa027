/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the bank-simulator performs. The transfer engine depends on this
 * interface, not on PostgreSQL, which keeps the engine testable against
 * in-memory stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid, github.com/shopspring/decimal
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/banksim/bank-simulator/internal/domain"
)

// TransferEventKind labels the asynchronous settlement steps for dedupe
// purposes. The bus delivers at least once; each (transaction, kind) pair is
// applied at most once.
type TransferEventKind string

const (
	EventComplete TransferEventKind = "complete"
	EventNotice   TransferEventKind = "notice"
	EventFinalize TransferEventKind = "finalize"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Bank directory
	CreateBank(ctx context.Context, bank *domain.Bank) error
	UpdateBank(ctx context.Context, bank *domain.Bank) error
	DeleteBank(ctx context.Context, bankUUID uuid.UUID) error
	ListBanks(ctx context.Context) ([]domain.Bank, error)
	FindBankByUUID(ctx context.Context, bankUUID uuid.UUID) (*domain.Bank, error)
	FindBankByBIC(ctx context.Context, bic string) (*domain.Bank, error)
	FindBanksByNameContaining(ctx context.Context, name string) ([]domain.Bank, error)
	ExistsBankByBIC(ctx context.Context, bic string) (bool, error)

	// Customer directory
	CreateCustomer(ctx context.Context, customer *domain.Customer) error
	UpdateCustomer(ctx context.Context, customer *domain.Customer) error
	DeleteCustomer(ctx context.Context, customerUUID uuid.UUID) error
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	FindCustomerByUUID(ctx context.Context, customerUUID uuid.UUID) (*domain.Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	ExistsCustomerByEmail(ctx context.Context, email string) (bool, error)
	ExistsCustomerByEmailAndBank(ctx context.Context, email string, bankUUID uuid.UUID) (bool, error)

	// Contact directory
	CreateContact(ctx context.Context, contact *domain.Contact) error
	UpdateContact(ctx context.Context, contact *domain.Contact) error
	DeleteContact(ctx context.Context, contactUUID uuid.UUID) error
	ListContacts(ctx context.Context) ([]domain.Contact, error)
	FindContactByUUID(ctx context.Context, contactUUID uuid.UUID) (*domain.Contact, error)
	FindContactsByNameContaining(ctx context.Context, name string) ([]domain.Contact, error)
	FindContactByCustomerAndEmail(ctx context.Context, customerUUID uuid.UUID, email string) (*domain.Contact, error)

	// Ledger operations. Each is a single atomic mutation of one customer's
	// balance/suspense pair; none may be partially applied.
	StageFunds(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error
	UnstageFunds(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error
	RollbackStagedFunds(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error
	CreditBalance(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error
	// SettleInternalTransfer commits the internal path as one unit: unstage
	// the source, credit the target, mark the transaction COMPLETED.
	SettleInternalTransfer(ctx context.Context, txUUID, sourceUUID, targetUUID uuid.UUID, sourceAmount, targetAmount decimal.Decimal) error
	// FinalizeTransfer commits the sending side of the external path as one
	// unit: unstage the source, mark the transaction COMPLETED. Either both
	// writes land or neither does, so a failed finalize can be redelivered.
	FinalizeTransfer(ctx context.Context, txUUID, sourceUUID uuid.UUID, sourceAmount decimal.Decimal) error

	// Transactions
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	UpdateTransactionStatus(ctx context.Context, txUUID uuid.UUID, status domain.TransactionStatus) error
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	FindTransactionByUUID(ctx context.Context, txUUID uuid.UUID) (*domain.Transaction, error)
	FindTransactionsByStatus(ctx context.Context, status domain.TransactionStatus) ([]domain.Transaction, error)

	// RecordTransferEvent inserts a (transaction, kind) marker and reports
	// whether this delivery is the first one. Duplicates return false.
	RecordTransferEvent(ctx context.Context, txUUID uuid.UUID, kind TransferEventKind) (bool, error)
	// ClearTransferEvent removes a marker so a failed handler run can be
	// redelivered and retried.
	ClearTransferEvent(ctx context.Context, txUUID uuid.UUID, kind TransferEventKind) error
}
