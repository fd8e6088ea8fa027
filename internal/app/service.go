/**
 * @description
 * This file contains the transfer engine, the core business logic of the
 * bank-simulator. The `Service` struct drives a transaction through its
 * status lifecycle: it stages funds on the source customer, routes the
 * transfer internally (same bank, settled synchronously) or externally
 * (published to the payment network, settled asynchronously), and reconciles
 * balances when the network's completion and finalization events arrive.
 *
 * Decline policy, applied uniformly: business-level declines (insufficient
 * funds, network validation failure, publish failure) are absorbed into the
 * transaction's own DECLINED status and returned without an error, preserving
 * an audit trail. Errors are reserved for request-level failures such as an
 * unknown source customer or contact.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Message bus producer.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/banksim/bank-simulator/internal/domain"
	"github.com/banksim/bank-simulator/internal/store"
	"github.com/banksim/bank-simulator/pkg/rabbitmq"
)

// PaymentsExchange is the default name of the topic exchange all transfer
// traffic flows through; the configured name is handed to NewService so the
// producer and the consumer bindings always agree.
const PaymentsExchange = "payments"

var (
	// ErrValidation marks a malformed request; surfaced as 400.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited marks a transfer initiation rejected by the per-customer
	// rate limiter; surfaced as 429.
	ErrRateLimited = errors.New("transfer rate limit exceeded")
)

// Service provides the core business logic for the bank-simulator.
type Service struct {
	repo     store.Repository
	gateway  PaymentNetworkGateway
	producer rabbitmq.Publisher
	rates    RateProvider
	exchange string
	locks    *customerLocks

	limiter           TransferRateLimiter
	transferRateLimit int
}

// NewService creates a new service instance. exchange names the topic
// exchange transfer messages are published to; an empty name falls back to
// PaymentsExchange.
func NewService(repo store.Repository, gateway PaymentNetworkGateway, producer rabbitmq.Publisher, rates RateProvider, exchange string) *Service {
	if exchange == "" {
		exchange = PaymentsExchange
	}
	return &Service{
		repo:     repo,
		gateway:  gateway,
		producer: producer,
		rates:    rates,
		exchange: exchange,
		locks:    newCustomerLocks(),
	}
}

// SetTransferRateLimiter installs an optional per-customer limiter for
// transfer initiation. Without it, initiation is unthrottled.
func (s *Service) SetTransferRateLimiter(limiter TransferRateLimiter, perMinute int) {
	s.limiter = limiter
	s.transferRateLimit = perMinute
}

// AddNewTransaction initiates a transfer from the customer identified by
// sourceUUID to the counterpart their contact book lists under targetEmail.
// It always returns the created transaction; the status carries the outcome.
func (s *Service) AddNewTransaction(ctx context.Context, sourceUUID uuid.UUID, targetEmail string, sourceAmount decimal.Decimal) (*domain.Transaction, error) {
	if !sourceAmount.IsPositive() {
		return nil, fmt.Errorf("%w: source amount must be positive", ErrValidation)
	}

	if err := s.consumeTransferRateLimit(ctx, sourceUUID); err != nil {
		return nil, err
	}

	source, err := s.repo.FindCustomerByUUID(ctx, sourceUUID)
	if err != nil {
		return nil, fmt.Errorf("resolve source customer: %w", err)
	}
	contact, err := s.repo.FindContactByCustomerAndEmail(ctx, source.UUID, targetEmail)
	if err != nil {
		return nil, fmt.Errorf("resolve contact %q: %w", targetEmail, err)
	}
	sourceBank, err := s.repo.FindBankByUUID(ctx, source.BankUUID)
	if err != nil {
		return nil, fmt.Errorf("resolve source bank: %w", err)
	}

	rate := s.rates.Rate(sourceBank.Currency, sourceBank.Currency)
	tx := &domain.Transaction{
		UUID:           uuid.New(),
		SourceAmount:   sourceAmount,
		SourceCurrency: sourceBank.Currency,
		TargetAmount:   sourceAmount.Mul(rate),
		TargetCurrency: sourceBank.Currency,
		ExchangeRate:   rate,
		CreatedAt:      time.Now().UTC(),
		CustomerUUID:   source.UUID,
		ContactUUID:    contact.UUID,
	}

	internal, err := s.repo.ExistsCustomerByEmailAndBank(ctx, targetEmail, source.BankUUID)
	if err != nil {
		return nil, fmt.Errorf("determine target bank: %w", err)
	}

	if internal {
		return s.internalTransfer(ctx, tx, source, targetEmail)
	}
	return s.externalTransfer(ctx, tx, source, targetEmail)
}

// internalTransfer settles a same-bank transfer synchronously. Both customer
// locks are held across staging and settlement so no other transfer observes
// the intermediate state.
func (s *Service) internalTransfer(ctx context.Context, tx *domain.Transaction, source *domain.Customer, targetEmail string) (*domain.Transaction, error) {
	target, err := s.repo.FindCustomerByEmail(ctx, targetEmail)
	if err != nil {
		return nil, fmt.Errorf("resolve target customer: %w", err)
	}

	unlock := s.locks.LockPair(source.UUID, target.UUID)
	defer unlock()

	if err := s.repo.StageFunds(ctx, source.UUID, tx.SourceAmount); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return s.declineWithoutStaging(ctx, tx)
		}
		return nil, fmt.Errorf("stage funds: %w", err)
	}

	tx.Status = domain.StatusPending
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		if rbErr := s.repo.RollbackStagedFunds(ctx, source.UUID, tx.SourceAmount); rbErr != nil {
			log.Printf("level=error component=transfer_engine msg=\"stage rollback failed after create failure\" tx=%s err=%v", tx.UUID, rbErr)
		}
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	if err := s.repo.SettleInternalTransfer(ctx, tx.UUID, source.UUID, target.UUID, tx.SourceAmount, tx.TargetAmount); err != nil {
		if rbErr := s.repo.RollbackStagedFunds(ctx, source.UUID, tx.SourceAmount); rbErr != nil {
			log.Printf("level=error component=transfer_engine msg=\"stage rollback failed after settlement failure\" tx=%s err=%v", tx.UUID, rbErr)
		}
		if stErr := s.repo.UpdateTransactionStatus(ctx, tx.UUID, domain.StatusDeclined); stErr != nil {
			log.Printf("level=error component=transfer_engine msg=\"decline write failed after settlement failure\" tx=%s err=%v", tx.UUID, stErr)
		}
		return nil, fmt.Errorf("settle internal transfer: %w", err)
	}

	tx.Status = domain.StatusCompleted
	return tx, nil
}

// externalTransfer stages funds, validates the target against the payment
// network, and publishes the transfer initiation. The transaction returns
// PENDING; settlement arrives later through CompleteTransaction and
// FinalizeCompletedTransaction.
func (s *Service) externalTransfer(ctx context.Context, tx *domain.Transaction, source *domain.Customer, targetEmail string) (*domain.Transaction, error) {
	unlock := s.locks.Lock(source.UUID)
	defer unlock()

	if err := s.repo.StageFunds(ctx, source.UUID, tx.SourceAmount); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return s.declineWithoutStaging(ctx, tx)
		}
		return nil, fmt.Errorf("stage funds: %w", err)
	}

	valid, err := s.gateway.ValidateCustomer(ctx, targetEmail)
	if err != nil || !valid {
		if err != nil {
			log.Printf("level=warn component=transfer_engine msg=\"network validation failed\" tx=%s target=%s err=%v", tx.UUID, targetEmail, err)
		}
		return s.declineStaged(ctx, tx, source.UUID)
	}

	tx.Status = domain.StatusPending
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		if rbErr := s.repo.RollbackStagedFunds(ctx, source.UUID, tx.SourceAmount); rbErr != nil {
			log.Printf("level=error component=transfer_engine msg=\"stage rollback failed after create failure\" tx=%s err=%v", tx.UUID, rbErr)
		}
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	initiation := domain.TransferInitiation{
		SourceCustomerUUID: source.UUID,
		TargetEmail:        targetEmail,
		SourceAmount:       tx.SourceAmount,
		TransactionUUID:    tx.UUID,
	}
	if err := s.producer.Publish(ctx, s.exchange, domain.TopicTransferInitiation, initiation.Encode()); err != nil {
		log.Printf("level=warn component=transfer_engine msg=\"initiation publish failed; declining\" tx=%s err=%v", tx.UUID, err)
		if rbErr := s.repo.RollbackStagedFunds(ctx, source.UUID, tx.SourceAmount); rbErr != nil {
			log.Printf("level=error component=transfer_engine msg=\"stage rollback failed after publish failure\" tx=%s err=%v", tx.UUID, rbErr)
		}
		if stErr := s.repo.UpdateTransactionStatus(ctx, tx.UUID, domain.StatusDeclined); stErr != nil {
			log.Printf("level=error component=transfer_engine msg=\"decline write failed after publish failure\" tx=%s err=%v", tx.UUID, stErr)
		}
		tx.Status = domain.StatusDeclined
		return tx, nil
	}

	return tx, nil
}

// declineWithoutStaging records an insufficient-funds decline. No balance
// moved, so the transaction record is the only trace of the attempt.
func (s *Service) declineWithoutStaging(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	tx.Status = domain.StatusDeclined
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create declined transaction: %w", err)
	}
	return tx, nil
}

// declineStaged rolls staged funds back to the spendable balance and records
// the decline. Used when the external path fails before the network accepted
// the transfer.
func (s *Service) declineStaged(ctx context.Context, tx *domain.Transaction, sourceUUID uuid.UUID) (*domain.Transaction, error) {
	if err := s.repo.RollbackStagedFunds(ctx, sourceUUID, tx.SourceAmount); err != nil {
		return nil, fmt.Errorf("rollback staged funds: %w", err)
	}
	tx.Status = domain.StatusDeclined
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create declined transaction: %w", err)
	}
	return tx, nil
}

// CompleteTransaction settles the receiving side of an external transfer:
// the target customer is credited with the target amount and the finalize
// notice is sent back toward the source bank. The transaction's own status is
// untouched here; FinalizeCompletedTransaction owns the terminal write.
// Safe to call more than once per transaction: the credit and the notice each
// carry their own dedupe marker, so a redelivery after a failed notice still
// retries the notice without crediting a second time.
func (s *Service) CompleteTransaction(ctx context.Context, txUUID uuid.UUID, counterpartBIC string) error {
	first, err := s.repo.RecordTransferEvent(ctx, txUUID, store.EventComplete)
	if err != nil {
		return fmt.Errorf("record complete event: %w", err)
	}
	if first {
		tx, err := s.repo.FindTransactionByUUID(ctx, txUUID)
		if err != nil {
			s.clearTransferEvent(ctx, txUUID, store.EventComplete)
			return fmt.Errorf("resolve transaction: %w", err)
		}
		contact, err := s.repo.FindContactByUUID(ctx, tx.ContactUUID)
		if err != nil {
			s.clearTransferEvent(ctx, txUUID, store.EventComplete)
			return fmt.Errorf("resolve contact: %w", err)
		}
		target, err := s.repo.FindCustomerByEmail(ctx, contact.Email)
		if err != nil {
			s.clearTransferEvent(ctx, txUUID, store.EventComplete)
			return fmt.Errorf("resolve target customer: %w", err)
		}

		unlock := s.locks.Lock(target.UUID)
		err = s.repo.CreditBalance(ctx, target.UUID, tx.TargetAmount)
		unlock()
		if err != nil {
			s.clearTransferEvent(ctx, txUUID, store.EventComplete)
			return fmt.Errorf("credit target: %w", err)
		}
	} else {
		log.Printf("level=info component=transfer_engine msg=\"duplicate complete event; credit already applied\" tx=%s", txUUID)
	}

	return s.sendFinalizeNotice(ctx, txUUID, counterpartBIC)
}

// sendFinalizeNotice emits the finalize notice toward the source bank, at
// most once per transaction. When both the bus and the gateway fallback fail
// the notice marker is cleared, so the redelivered event re-attempts the
// notice alone.
func (s *Service) sendFinalizeNotice(ctx context.Context, txUUID uuid.UUID, counterpartBIC string) error {
	first, err := s.repo.RecordTransferEvent(ctx, txUUID, store.EventNotice)
	if err != nil {
		return fmt.Errorf("record notice event: %w", err)
	}
	if !first {
		log.Printf("level=info component=transfer_engine msg=\"duplicate finalize notice dropped\" tx=%s", txUUID)
		return nil
	}

	notice := domain.TransferNotice{TransactionUUID: txUUID, CounterpartBIC: counterpartBIC}
	if err := s.producer.Publish(ctx, s.exchange, domain.TopicTransferFinalize, notice.Encode()); err != nil {
		// The credit is already committed; fall back to the gateway's direct
		// finalize call rather than failing the whole event.
		log.Printf("level=warn component=transfer_engine msg=\"finalize publish failed; using gateway notice\" tx=%s err=%v", txUUID, err)
		if gwErr := s.gateway.FinalizeCompletedTransaction(ctx, txUUID, counterpartBIC); gwErr != nil {
			s.clearTransferEvent(ctx, txUUID, store.EventNotice)
			return fmt.Errorf("finalize notice: publish: %v, gateway: %w", err, gwErr)
		}
	}
	return nil
}

// FinalizeCompletedTransaction releases the sender's staged funds once the
// network confirms the counterpart bank accepted the transfer, and writes the
// COMPLETED terminal status. Both writes commit as one repository transaction;
// on failure the dedupe marker is cleared so the redelivery retries cleanly.
// Safe to call more than once per transaction.
func (s *Service) FinalizeCompletedTransaction(ctx context.Context, txUUID uuid.UUID, counterpartBIC string) error {
	first, err := s.repo.RecordTransferEvent(ctx, txUUID, store.EventFinalize)
	if err != nil {
		return fmt.Errorf("record finalize event: %w", err)
	}
	if !first {
		log.Printf("level=info component=transfer_engine msg=\"duplicate finalize event dropped\" tx=%s", txUUID)
		return nil
	}

	tx, err := s.repo.FindTransactionByUUID(ctx, txUUID)
	if err != nil {
		s.clearTransferEvent(ctx, txUUID, store.EventFinalize)
		return fmt.Errorf("resolve transaction: %w", err)
	}
	if tx.Status == domain.StatusCompleted {
		log.Printf("level=info component=transfer_engine msg=\"finalize replay for completed transaction dropped\" tx=%s bic=%s", txUUID, counterpartBIC)
		return nil
	}
	source, err := s.repo.FindCustomerByUUID(ctx, tx.CustomerUUID)
	if err != nil {
		s.clearTransferEvent(ctx, txUUID, store.EventFinalize)
		return fmt.Errorf("resolve source customer: %w", err)
	}

	unlock := s.locks.Lock(source.UUID)
	err = s.repo.FinalizeTransfer(ctx, txUUID, source.UUID, tx.SourceAmount)
	unlock()
	if err != nil {
		s.clearTransferEvent(ctx, txUUID, store.EventFinalize)
		return fmt.Errorf("finalize transfer: %w", err)
	}
	return nil
}

// clearTransferEvent rolls a dedupe marker back so a failed handler run can
// be retried by the bus.
func (s *Service) clearTransferEvent(ctx context.Context, txUUID uuid.UUID, kind store.TransferEventKind) {
	if err := s.repo.ClearTransferEvent(ctx, txUUID, kind); err != nil {
		log.Printf("level=error component=transfer_engine msg=\"transfer event unrecord failed\" tx=%s kind=%s err=%v", txUUID, kind, err)
	}
}

// UpdateTransactionStatus is the administrative escape hatch: it overwrites
// the status unconditionally, bypassing the lifecycle, and never touches
// balances. Every use is logged for the audit trail.
func (s *Service) UpdateTransactionStatus(ctx context.Context, txUUID uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error) {
	tx, err := s.repo.FindTransactionByUUID(ctx, txUUID)
	if err != nil {
		return nil, err
	}
	log.Printf("level=warn component=transfer_engine msg=\"administrative status override\" tx=%s from=%s to=%s", txUUID, tx.Status, status)
	if err := s.repo.UpdateTransactionStatus(ctx, txUUID, status); err != nil {
		return nil, err
	}
	tx.Status = status
	return tx, nil
}

// GetAllTransactions lists every transaction.
func (s *Service) GetAllTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx)
}

// FindTransactionByUUID resolves one transaction.
func (s *Service) FindTransactionByUUID(ctx context.Context, txUUID uuid.UUID) (*domain.Transaction, error) {
	return s.repo.FindTransactionByUUID(ctx, txUUID)
}

// GetTransactionsByStatus lists transactions in a given status. An empty
// result reports not-found, matching the directory search endpoints.
func (s *Service) GetTransactionsByStatus(ctx context.Context, status domain.TransactionStatus) ([]domain.Transaction, error) {
	txs, err := s.repo.FindTransactionsByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, store.ErrTransactionNotFound
	}
	return txs, nil
}

func (s *Service) consumeTransferRateLimit(ctx context.Context, sourceUUID uuid.UUID) error {
	if s.limiter == nil || s.transferRateLimit <= 0 {
		return nil
	}
	count, _, err := s.limiter.ConsumeRateLimit(ctx, "transfer_initiate", sourceUUID.String(), s.transferRateLimit, time.Minute)
	if err != nil {
		// Rate limiting is best-effort; an unavailable limiter never blocks
		// transfers.
		log.Printf("level=warn component=transfer_engine msg=\"rate limiter unavailable\" customer=%s err=%v", sourceUUID, err)
		return nil
	}
	if count > s.transferRateLimit {
		return ErrRateLimited
	}
	return nil
}
