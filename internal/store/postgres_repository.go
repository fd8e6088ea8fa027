/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL to interact with the bank, customer,
 * contact, transaction and transfer-event tables.
 *
 * Ledger mutations are single UPDATE statements so a customer's
 * balance/suspense pair is never partially applied; the internal-transfer
 * settlement spans both customers and the transaction row inside one database
 * transaction with the source row locked first.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: NUMERIC column values.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/banksim/bank-simulator/internal/domain"
)

var (
	ErrBankNotFound        = errors.New("bank not found")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrContactNotFound     = errors.New("contact not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDuplicateBIC        = errors.New("bank with this bic already exists")
	ErrDuplicateEmail      = errors.New("customer with this email already exists")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Banks ---

func (r *PostgresRepository) CreateBank(ctx context.Context, bank *domain.Bank) error {
	query := `
		INSERT INTO banks (bank_uuid, bank_name, bank_bic, bank_country, bank_currency, payment_network)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, bank.UUID, bank.Name, bank.BIC, bank.Country, bank.Currency, bank.PaymentNetwork)
	if isUniqueViolation(err) {
		return ErrDuplicateBIC
	}
	return err
}

func (r *PostgresRepository) UpdateBank(ctx context.Context, bank *domain.Bank) error {
	query := `
		UPDATE banks
		SET bank_name = $2, bank_bic = $3, bank_country = $4, bank_currency = $5, payment_network = $6
		WHERE bank_uuid = $1
	`
	tag, err := r.db.Exec(ctx, query, bank.UUID, bank.Name, bank.BIC, bank.Country, bank.Currency, bank.PaymentNetwork)
	if isUniqueViolation(err) {
		return ErrDuplicateBIC
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBankNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteBank(ctx context.Context, bankUUID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM banks WHERE bank_uuid = $1", bankUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBankNotFound
	}
	return nil
}

const bankColumns = "bank_uuid, bank_name, bank_bic, bank_country, bank_currency, payment_network"

func scanBank(row pgx.Row) (*domain.Bank, error) {
	var bank domain.Bank
	err := row.Scan(&bank.UUID, &bank.Name, &bank.BIC, &bank.Country, &bank.Currency, &bank.PaymentNetwork)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBankNotFound
		}
		return nil, err
	}
	return &bank, nil
}

func (r *PostgresRepository) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	rows, err := r.db.Query(ctx, "SELECT "+bankColumns+" FROM banks ORDER BY bank_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banks []domain.Bank
	for rows.Next() {
		var bank domain.Bank
		if err := rows.Scan(&bank.UUID, &bank.Name, &bank.BIC, &bank.Country, &bank.Currency, &bank.PaymentNetwork); err != nil {
			return nil, err
		}
		banks = append(banks, bank)
	}
	return banks, rows.Err()
}

func (r *PostgresRepository) FindBankByUUID(ctx context.Context, bankUUID uuid.UUID) (*domain.Bank, error) {
	return scanBank(r.db.QueryRow(ctx, "SELECT "+bankColumns+" FROM banks WHERE bank_uuid = $1", bankUUID))
}

func (r *PostgresRepository) FindBankByBIC(ctx context.Context, bic string) (*domain.Bank, error) {
	return scanBank(r.db.QueryRow(ctx, "SELECT "+bankColumns+" FROM banks WHERE bank_bic = $1", bic))
}

func (r *PostgresRepository) FindBanksByNameContaining(ctx context.Context, name string) ([]domain.Bank, error) {
	rows, err := r.db.Query(ctx, "SELECT "+bankColumns+" FROM banks WHERE bank_name ILIKE '%' || $1 || '%' ORDER BY bank_name", name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banks []domain.Bank
	for rows.Next() {
		var bank domain.Bank
		if err := rows.Scan(&bank.UUID, &bank.Name, &bank.BIC, &bank.Country, &bank.Currency, &bank.PaymentNetwork); err != nil {
			return nil, err
		}
		banks = append(banks, bank)
	}
	return banks, rows.Err()
}

func (r *PostgresRepository) ExistsBankByBIC(ctx context.Context, bic string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM banks WHERE bank_bic = $1)", bic).Scan(&exists)
	return exists, err
}

// --- Customers ---

const customerColumns = "customer_uuid, name, surname, email, balance, suspense_balance, bank_uuid, payment_network"

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var customer domain.Customer
	err := row.Scan(
		&customer.UUID,
		&customer.Name,
		&customer.Surname,
		&customer.Email,
		&customer.Balance,
		&customer.SuspenseBalance,
		&customer.BankUUID,
		&customer.PaymentNetwork,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (r *PostgresRepository) CreateCustomer(ctx context.Context, customer *domain.Customer) error {
	query := `
		INSERT INTO customers (customer_uuid, name, surname, email, balance, suspense_balance, bank_uuid, payment_network)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		customer.UUID, customer.Name, customer.Surname, customer.Email,
		customer.Balance, customer.SuspenseBalance, customer.BankUUID, customer.PaymentNetwork,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *PostgresRepository) UpdateCustomer(ctx context.Context, customer *domain.Customer) error {
	query := `
		UPDATE customers
		SET name = $2, surname = $3, email = $4, balance = $5, suspense_balance = $6, bank_uuid = $7, payment_network = $8
		WHERE customer_uuid = $1
	`
	tag, err := r.db.Exec(ctx, query,
		customer.UUID, customer.Name, customer.Surname, customer.Email,
		customer.Balance, customer.SuspenseBalance, customer.BankUUID, customer.PaymentNetwork,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteCustomer(ctx context.Context, customerUUID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM customers WHERE customer_uuid = $1", customerUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *PostgresRepository) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := r.db.Query(ctx, "SELECT "+customerColumns+" FROM customers ORDER BY email")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.UUID, &c.Name, &c.Surname, &c.Email, &c.Balance, &c.SuspenseBalance, &c.BankUUID, &c.PaymentNetwork); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *PostgresRepository) FindCustomerByUUID(ctx context.Context, customerUUID uuid.UUID) (*domain.Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, "SELECT "+customerColumns+" FROM customers WHERE customer_uuid = $1", customerUUID))
}

func (r *PostgresRepository) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, "SELECT "+customerColumns+" FROM customers WHERE lower(email) = lower($1)", email))
}

func (r *PostgresRepository) ExistsCustomerByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM customers WHERE lower(email) = lower($1))", email).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) ExistsCustomerByEmailAndBank(ctx context.Context, email string, bankUUID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM customers WHERE lower(email) = lower($1) AND bank_uuid = $2)",
		email, bankUUID,
	).Scan(&exists)
	return exists, err
}

// --- Contacts ---

const contactColumns = "contact_uuid, customer_uuid, name, email"

func scanContact(row pgx.Row) (*domain.Contact, error) {
	var contact domain.Contact
	err := row.Scan(&contact.UUID, &contact.CustomerUUID, &contact.Name, &contact.Email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

func (r *PostgresRepository) CreateContact(ctx context.Context, contact *domain.Contact) error {
	query := `
		INSERT INTO contacts (contact_uuid, customer_uuid, name, email)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, contact.UUID, contact.CustomerUUID, contact.Name, contact.Email)
	return err
}

func (r *PostgresRepository) UpdateContact(ctx context.Context, contact *domain.Contact) error {
	query := `
		UPDATE contacts SET name = $2, email = $3 WHERE contact_uuid = $1
	`
	tag, err := r.db.Exec(ctx, query, contact.UUID, contact.Name, contact.Email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteContact(ctx context.Context, contactUUID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM contacts WHERE contact_uuid = $1", contactUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (r *PostgresRepository) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := r.db.Query(ctx, "SELECT "+contactColumns+" FROM contacts ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.UUID, &c.CustomerUUID, &c.Name, &c.Email); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *PostgresRepository) FindContactByUUID(ctx context.Context, contactUUID uuid.UUID) (*domain.Contact, error) {
	return scanContact(r.db.QueryRow(ctx, "SELECT "+contactColumns+" FROM contacts WHERE contact_uuid = $1", contactUUID))
}

func (r *PostgresRepository) FindContactsByNameContaining(ctx context.Context, name string) ([]domain.Contact, error) {
	rows, err := r.db.Query(ctx, "SELECT "+contactColumns+" FROM contacts WHERE name ILIKE '%' || $1 || '%' ORDER BY name", name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.UUID, &c.CustomerUUID, &c.Name, &c.Email); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *PostgresRepository) FindContactByCustomerAndEmail(ctx context.Context, customerUUID uuid.UUID, email string) (*domain.Contact, error) {
	return scanContact(r.db.QueryRow(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE customer_uuid = $1 AND lower(email) = lower($2)",
		customerUUID, email,
	))
}

// --- Ledger ---

// StageFunds moves amount from balance to suspense in one statement. The
// balance guard in the WHERE clause makes the insufficient-funds check and
// the debit a single atomic step.
func (r *PostgresRepository) StageFunds(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE customers
		SET balance = balance - $2, suspense_balance = suspense_balance + $2
		WHERE customer_uuid = $1 AND balance >= $2
	`
	tag, err := r.db.Exec(ctx, query, customerUUID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing customer from an underfunded one.
		var exists bool
		if err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM customers WHERE customer_uuid = $1)", customerUUID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrCustomerNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

// UnstageFunds releases staged funds on settlement. The suspense balance is
// drawn down without a guard; it legitimately reaches exactly zero.
func (r *PostgresRepository) UnstageFunds(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE customers SET suspense_balance = suspense_balance - $2 WHERE customer_uuid = $1",
		customerUUID, amount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// RollbackStagedFunds is the inverse of StageFunds, used when an external
// transfer fails before the network accepts it.
func (r *PostgresRepository) RollbackStagedFunds(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE customers SET suspense_balance = suspense_balance - $2, balance = balance + $2 WHERE customer_uuid = $1",
		customerUUID, amount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *PostgresRepository) CreditBalance(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE customers SET balance = balance + $2 WHERE customer_uuid = $1",
		customerUUID, amount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// SettleInternalTransfer commits the internal path as one database
// transaction so no observer sees a partially settled transfer. Rows are
// locked in a fixed order (source, then target) to avoid deadlocks between
// concurrent transfers.
func (r *PostgresRepository) SettleInternalTransfer(ctx context.Context, txUUID, sourceUUID, targetUUID uuid.UUID, sourceAmount, targetAmount decimal.Decimal) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT 1 FROM customers WHERE customer_uuid = $1 FOR UPDATE", sourceUUID); err != nil {
		return fmt.Errorf("lock source: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT 1 FROM customers WHERE customer_uuid = $1 FOR UPDATE", targetUUID); err != nil {
		return fmt.Errorf("lock target: %w", err)
	}

	tag, err := tx.Exec(ctx,
		"UPDATE customers SET suspense_balance = suspense_balance - $2 WHERE customer_uuid = $1",
		sourceUUID, sourceAmount,
	)
	if err != nil {
		return fmt.Errorf("unstage source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}

	tag, err = tx.Exec(ctx,
		"UPDATE customers SET balance = balance + $2 WHERE customer_uuid = $1",
		targetUUID, targetAmount,
	)
	if err != nil {
		return fmt.Errorf("credit target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}

	tag, err = tx.Exec(ctx,
		"UPDATE transactions SET status = $2 WHERE transaction_uuid = $1",
		txUUID, domain.StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	return tx.Commit(ctx)
}

// FinalizeTransfer commits the sending side of an external transfer as one
// database transaction: the staged amount leaves the source's suspense and
// the transaction turns COMPLETED together, never one without the other.
func (r *PostgresRepository) FinalizeTransfer(ctx context.Context, txUUID, sourceUUID uuid.UUID, sourceAmount decimal.Decimal) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT 1 FROM customers WHERE customer_uuid = $1 FOR UPDATE", sourceUUID); err != nil {
		return fmt.Errorf("lock source: %w", err)
	}

	tag, err := tx.Exec(ctx,
		"UPDATE customers SET suspense_balance = suspense_balance - $2 WHERE customer_uuid = $1",
		sourceUUID, sourceAmount,
	)
	if err != nil {
		return fmt.Errorf("unstage source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}

	tag, err = tx.Exec(ctx,
		"UPDATE transactions SET status = $2 WHERE transaction_uuid = $1",
		txUUID, domain.StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	return tx.Commit(ctx)
}

// --- Transactions ---

const transactionColumns = "transaction_uuid, source_amount, source_currency, target_amount, target_currency, exchange_rate, status, created_at, customer_uuid, contact_uuid"

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.UUID, &t.SourceAmount, &t.SourceCurrency, &t.TargetAmount, &t.TargetCurrency,
		&t.ExchangeRate, &t.Status, &t.CreatedAt, &t.CustomerUUID, &t.ContactUUID,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PostgresRepository) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (transaction_uuid, source_amount, source_currency, target_amount, target_currency, exchange_rate, status, created_at, customer_uuid, contact_uuid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		t.UUID, t.SourceAmount, t.SourceCurrency, t.TargetAmount, t.TargetCurrency,
		t.ExchangeRate, t.Status, t.CreatedAt, t.CustomerUUID, t.ContactUUID,
	)
	return err
}

func (r *PostgresRepository) UpdateTransactionStatus(ctx context.Context, txUUID uuid.UUID, status domain.TransactionStatus) error {
	tag, err := r.db.Exec(ctx, "UPDATE transactions SET status = $2 WHERE transaction_uuid = $1", txUUID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, "SELECT "+transactionColumns+" FROM transactions ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *PostgresRepository) FindTransactionByUUID(ctx context.Context, txUUID uuid.UUID) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE transaction_uuid = $1", txUUID))
}

func (r *PostgresRepository) FindTransactionsByStatus(ctx context.Context, status domain.TransactionStatus) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE status = $1 ORDER BY created_at DESC", status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.UUID, &t.SourceAmount, &t.SourceCurrency, &t.TargetAmount, &t.TargetCurrency,
			&t.ExchangeRate, &t.Status, &t.CreatedAt, &t.CustomerUUID, &t.ContactUUID,
		); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// --- Transfer event dedupe ---

// RecordTransferEvent marks one settlement step as applied. The unique
// constraint on (transaction_uuid, kind) turns at-least-once delivery into
// at-most-once application.
func (r *PostgresRepository) RecordTransferEvent(ctx context.Context, txUUID uuid.UUID, kind TransferEventKind) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO transfer_events (transaction_uuid, kind, handled_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (transaction_uuid, kind) DO NOTHING
	`, txUUID, string(kind))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClearTransferEvent drops a settlement marker. Removing an absent marker is
// not an error.
func (r *PostgresRepository) ClearTransferEvent(ctx context.Context, txUUID uuid.UUID, kind TransferEventKind) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM transfer_events
		WHERE transaction_uuid = $1 AND kind = $2
	`, txUUID, string(kind))
	return err
}
