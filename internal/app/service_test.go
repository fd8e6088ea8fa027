package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/banksim/bank-simulator/internal/domain"
	"github.com/banksim/bank-simulator/internal/store"
	"github.com/banksim/bank-simulator/pkg/paymentnetwork"
)

type engineRepoStub struct {
	store.Repository

	mu           sync.Mutex
	banks        map[uuid.UUID]*domain.Bank
	customers    map[uuid.UUID]*domain.Customer
	contacts     map[uuid.UUID]*domain.Contact
	transactions map[uuid.UUID]*domain.Transaction
	events       map[string]bool

	createTxErr         error
	settleErr           error
	finalizeTransferErr error
}

func newEngineRepoStub() *engineRepoStub {
	return &engineRepoStub{
		banks:        make(map[uuid.UUID]*domain.Bank),
		customers:    make(map[uuid.UUID]*domain.Customer),
		contacts:     make(map[uuid.UUID]*domain.Contact),
		transactions: make(map[uuid.UUID]*domain.Transaction),
		events:       make(map[string]bool),
	}
}

func (s *engineRepoStub) FindBankByUUID(ctx context.Context, bankUUID uuid.UUID) (*domain.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bank, ok := s.banks[bankUUID]
	if !ok {
		return nil, store.ErrBankNotFound
	}
	copy := *bank
	return &copy, nil
}

func (s *engineRepoStub) FindCustomerByUUID(ctx context.Context, customerUUID uuid.UUID) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[customerUUID]
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	copy := *customer
	return &copy, nil
}

func (s *engineRepoStub) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, customer := range s.customers {
		if customer.Email == email {
			copy := *customer
			return &copy, nil
		}
	}
	return nil, store.ErrCustomerNotFound
}

func (s *engineRepoStub) ExistsCustomerByEmailAndBank(ctx context.Context, email string, bankUUID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, customer := range s.customers {
		if customer.Email == email && customer.BankUUID == bankUUID {
			return true, nil
		}
	}
	return false, nil
}

func (s *engineRepoStub) FindContactByUUID(ctx context.Context, contactUUID uuid.UUID) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact, ok := s.contacts[contactUUID]
	if !ok {
		return nil, store.ErrContactNotFound
	}
	copy := *contact
	return &copy, nil
}

func (s *engineRepoStub) FindContactByCustomerAndEmail(ctx context.Context, customerUUID uuid.UUID, email string) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, contact := range s.contacts {
		if contact.CustomerUUID == customerUUID && contact.Email == email {
			copy := *contact
			return &copy, nil
		}
	}
	return nil, store.ErrContactNotFound
}

func (s *engineRepoStub) StageFunds(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[customerUUID]
	if !ok {
		return store.ErrCustomerNotFound
	}
	if customer.Balance.LessThan(amount) {
		return store.ErrInsufficientFunds
	}
	customer.Balance = customer.Balance.Sub(amount)
	customer.SuspenseBalance = customer.SuspenseBalance.Add(amount)
	return nil
}

func (s *engineRepoStub) UnstageFunds(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[customerUUID]
	if !ok {
		return store.ErrCustomerNotFound
	}
	customer.SuspenseBalance = customer.SuspenseBalance.Sub(amount)
	return nil
}

func (s *engineRepoStub) RollbackStagedFunds(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[customerUUID]
	if !ok {
		return store.ErrCustomerNotFound
	}
	customer.SuspenseBalance = customer.SuspenseBalance.Sub(amount)
	customer.Balance = customer.Balance.Add(amount)
	return nil
}

func (s *engineRepoStub) CreditBalance(ctx context.Context, customerUUID uuid.UUID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[customerUUID]
	if !ok {
		return store.ErrCustomerNotFound
	}
	customer.Balance = customer.Balance.Add(amount)
	return nil
}

func (s *engineRepoStub) SettleInternalTransfer(ctx context.Context, txUUID, sourceUUID, targetUUID uuid.UUID, sourceAmount, targetAmount decimal.Decimal) error {
	if s.settleErr != nil {
		return s.settleErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.customers[sourceUUID]
	if !ok {
		return store.ErrCustomerNotFound
	}
	target, ok := s.customers[targetUUID]
	if !ok {
		return store.ErrCustomerNotFound
	}
	source.SuspenseBalance = source.SuspenseBalance.Sub(sourceAmount)
	target.Balance = target.Balance.Add(targetAmount)
	if tx, ok := s.transactions[txUUID]; ok {
		tx.Status = domain.StatusCompleted
	}
	return nil
}

func (s *engineRepoStub) FinalizeTransfer(ctx context.Context, txUUID, sourceUUID uuid.UUID, sourceAmount decimal.Decimal) error {
	if s.finalizeTransferErr != nil {
		return s.finalizeTransferErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.customers[sourceUUID]
	if !ok {
		return store.ErrCustomerNotFound
	}
	tx, ok := s.transactions[txUUID]
	if !ok {
		return store.ErrTransactionNotFound
	}
	source.SuspenseBalance = source.SuspenseBalance.Sub(sourceAmount)
	tx.Status = domain.StatusCompleted
	return nil
}

func (s *engineRepoStub) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if s.createTxErr != nil {
		return s.createTxErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *tx
	s.transactions[tx.UUID] = &copy
	return nil
}

func (s *engineRepoStub) UpdateTransactionStatus(ctx context.Context, txUUID uuid.UUID, status domain.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txUUID]
	if !ok {
		return store.ErrTransactionNotFound
	}
	tx.Status = status
	return nil
}

func (s *engineRepoStub) FindTransactionByUUID(ctx context.Context, txUUID uuid.UUID) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txUUID]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	copy := *tx
	return &copy, nil
}

func (s *engineRepoStub) RecordTransferEvent(ctx context.Context, txUUID uuid.UUID, kind store.TransferEventKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := txUUID.String() + "/" + string(kind)
	if s.events[key] {
		return false, nil
	}
	s.events[key] = true
	return true, nil
}

func (s *engineRepoStub) ClearTransferEvent(ctx context.Context, txUUID uuid.UUID, kind store.TransferEventKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, txUUID.String()+"/"+string(kind))
	return nil
}

type gatewayStub struct {
	PaymentNetworkGateway

	valid          bool
	validateErr    error
	validateCalled bool
	finalizeErr    error
	finalizeCalled bool
}

func (g *gatewayStub) ValidateCustomer(ctx context.Context, email string) (bool, error) {
	g.validateCalled = true
	return g.valid, g.validateErr
}

func (g *gatewayStub) FinalizeCompletedTransaction(ctx context.Context, txUUID uuid.UUID, counterpartBIC string) error {
	g.finalizeCalled = true
	return g.finalizeErr
}

func (g *gatewayStub) ListCustomers(ctx context.Context) ([]paymentnetwork.CustomerRecord, error) {
	return nil, nil
}

type publishedMessage struct {
	exchange   string
	routingKey string
	body       []byte
}

type publisherStub struct {
	publishErr error
	published  []publishedMessage
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.published = append(p.published, publishedMessage{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *publisherStub) Close() {}

type engineFixture struct {
	repo     *engineRepoStub
	gateway  *gatewayStub
	producer *publisherStub
	service  *Service

	bank       *domain.Bank
	alice      *domain.Customer
	bob        *domain.Customer
	aliceToBob *domain.Contact
	aliceExt   *domain.Contact
}

// newEngineFixture seeds one bank with two customers; alice's contact book
// has an entry for bob (same bank) and one external address.
func newEngineFixture(aliceBalance string) *engineFixture {
	repo := newEngineRepoStub()
	gateway := &gatewayStub{valid: true}
	producer := &publisherStub{}

	bank := &domain.Bank{UUID: uuid.New(), Name: "First Simulated", BIC: "FSIMDE11", Country: "DE", Currency: "EUR", PaymentNetwork: true}
	repo.banks[bank.UUID] = bank

	alice := &domain.Customer{UUID: uuid.New(), Name: "Alice", Surname: "Adams", Email: "alice@fsim.example", Balance: decimal.RequireFromString(aliceBalance), BankUUID: bank.UUID}
	bob := &domain.Customer{UUID: uuid.New(), Name: "Bob", Surname: "Brown", Email: "bob@fsim.example", Balance: decimal.RequireFromString("10.00"), BankUUID: bank.UUID}
	repo.customers[alice.UUID] = alice
	repo.customers[bob.UUID] = bob

	aliceToBob := &domain.Contact{UUID: uuid.New(), CustomerUUID: alice.UUID, Name: "Bob", Email: bob.Email}
	aliceExt := &domain.Contact{UUID: uuid.New(), CustomerUUID: alice.UUID, Name: "Remote Rita", Email: "rita@other.example"}
	repo.contacts[aliceToBob.UUID] = aliceToBob
	repo.contacts[aliceExt.UUID] = aliceExt

	service := NewService(repo, gateway, producer, NewFixedRateProvider(decimal.NewFromInt(1)), PaymentsExchange)
	return &engineFixture{
		repo: repo, gateway: gateway, producer: producer, service: service,
		bank: bank, alice: alice, bob: bob, aliceToBob: aliceToBob, aliceExt: aliceExt,
	}
}

func TestAddNewTransactionInternalSettlesImmediately(t *testing.T) {
	f := newEngineFixture("3000.90")
	// Funds already staged for other in-flight transfers must survive this one.
	f.alice.SuspenseBalance = decimal.RequireFromString("300.00")

	tx, err := f.service.AddNewTransaction(context.Background(), f.alice.UUID, f.bob.Email, decimal.RequireFromString("2.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", tx.Status)
	}
	if got := f.alice.Balance.String(); got != "2998.9" {
		t.Fatalf("expected source balance 2998.9, got %s", got)
	}
	if got := f.alice.SuspenseBalance.String(); got != "300" {
		t.Fatalf("expected suspense untouched at 300 after settlement, got %s", got)
	}
	if got := f.bob.Balance.String(); got != "12" {
		t.Fatalf("expected target balance 12, got %s", got)
	}
	if len(f.producer.published) != 0 {
		t.Fatalf("internal transfer must not touch the bus, published %d messages", len(f.producer.published))
	}
}

func TestAddNewTransactionInsufficientFundsDeclines(t *testing.T) {
	f := newEngineFixture("100.00")

	tx, err := f.service.AddNewTransaction(context.Background(), f.alice.UUID, f.bob.Email, decimal.RequireFromString("5000.00"))
	if err != nil {
		t.Fatalf("insufficient funds must decline, not error: %v", err)
	}
	if tx.Status != domain.StatusDeclined {
		t.Fatalf("expected DECLINED, got %s", tx.Status)
	}
	if got := f.alice.Balance.String(); got != "100" {
		t.Fatalf("expected untouched balance 100, got %s", got)
	}
	if stored, ok := f.repo.transactions[tx.UUID]; !ok || stored.Status != domain.StatusDeclined {
		t.Fatalf("declined transaction must still be recorded")
	}
}

func TestAddNewTransactionExternalStaysPendingAndStages(t *testing.T) {
	f := newEngineFixture("200.00")

	tx, err := f.service.AddNewTransaction(context.Background(), f.alice.UUID, f.aliceExt.Email, decimal.RequireFromString("50.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", tx.Status)
	}
	if got := f.alice.Balance.String(); got != "150" {
		t.Fatalf("expected balance 150 after staging, got %s", got)
	}
	if got := f.alice.SuspenseBalance.String(); got != "50" {
		t.Fatalf("expected suspense 50 after staging, got %s", got)
	}
	if !f.gateway.validateCalled {
		t.Fatal("expected network validation before publishing")
	}
	if len(f.producer.published) != 1 {
		t.Fatalf("expected one initiation message, got %d", len(f.producer.published))
	}
	msg := f.producer.published[0]
	if msg.exchange != PaymentsExchange || msg.routingKey != domain.TopicTransferInitiation {
		t.Fatalf("unexpected routing %s/%s", msg.exchange, msg.routingKey)
	}
	initiation, err := domain.ParseTransferInitiation(msg.body)
	if err != nil {
		t.Fatalf("published payload must round-trip: %v", err)
	}
	if initiation.TransactionUUID != tx.UUID || initiation.TargetEmail != f.aliceExt.Email {
		t.Fatalf("payload does not match transaction: %+v", initiation)
	}
}

func TestAddNewTransactionPublishesOnConfiguredExchange(t *testing.T) {
	f := newEngineFixture("200.00")
	f.service = NewService(f.repo, f.gateway, f.producer, NewFixedRateProvider(decimal.NewFromInt(1)), "payments_eu")

	_, err := f.service.AddNewTransaction(context.Background(), f.alice.UUID, f.aliceExt.Email, decimal.RequireFromString("50.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.producer.published) != 1 {
		t.Fatalf("expected one initiation message, got %d", len(f.producer.published))
	}
	if got := f.producer.published[0].exchange; got != "payments_eu" {
		t.Fatalf("expected publish on configured exchange payments_eu, got %s", got)
	}
}

func TestAddNewTransactionExternalValidationFailureRollsBack(t *testing.T) {
	f := newEngineFixture("200.00")
	f.gateway.valid = false

	tx, err := f.service.AddNewTransaction(context.Background(), f.alice.UUID, f.aliceExt.Email, decimal.RequireFromString("50.00"))
	if err != nil {
		t.Fatalf("validation failure must decline, not error: %v", err)
	}
	if tx.Status != domain.StatusDeclined {
		t.Fatalf("expected DECLINED, got %s", tx.Status)
	}
	if got := f.alice.Balance.String(); got != "200" {
		t.Fatalf("expected restored balance 200, got %s", got)
	}
	if !f.alice.SuspenseBalance.IsZero() {
		t.Fatalf("expected empty suspense after rollback, got %s", f.alice.SuspenseBalance)
	}
	if len(f.producer.published) != 0 {
		t.Fatal("declined transfer must not publish")
	}
}

func TestAddNewTransactionPublishFailureRollsBack(t *testing.T) {
	f := newEngineFixture("200.00")
	f.producer.publishErr = errors.New("broker down")

	tx, err := f.service.AddNewTransaction(context.Background(), f.alice.UUID, f.aliceExt.Email, decimal.RequireFromString("50.00"))
	if err != nil {
		t.Fatalf("publish failure must decline, not error: %v", err)
	}
	if tx.Status != domain.StatusDeclined {
		t.Fatalf("expected DECLINED, got %s", tx.Status)
	}
	if got := f.alice.Balance.String(); got != "200" {
		t.Fatalf("expected restored balance 200, got %s", got)
	}
	if stored := f.repo.transactions[tx.UUID]; stored.Status != domain.StatusDeclined {
		t.Fatalf("stored transaction must be DECLINED, got %s", stored.Status)
	}
}

func TestAddNewTransactionUnknownContactErrors(t *testing.T) {
	f := newEngineFixture("200.00")

	_, err := f.service.AddNewTransaction(context.Background(), f.alice.UUID, "stranger@other.example", decimal.RequireFromString("10.00"))
	if !errors.Is(err, store.ErrContactNotFound) {
		t.Fatalf("expected contact-not-found, got %v", err)
	}
	if len(f.repo.transactions) != 0 {
		t.Fatal("no transaction may be recorded for an unknown contact")
	}
}

func TestAddNewTransactionRejectsNonPositiveAmount(t *testing.T) {
	f := newEngineFixture("200.00")

	_, err := f.service.AddNewTransaction(context.Background(), f.alice.UUID, f.bob.Email, decimal.Zero)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCompleteTransactionCreditsTargetOnce(t *testing.T) {
	f := newEngineFixture("200.00")

	// An inbound external transfer addressed to bob through alice's book.
	tx := &domain.Transaction{
		UUID:         uuid.New(),
		SourceAmount: decimal.RequireFromString("25.00"),
		TargetAmount: decimal.RequireFromString("25.00"),
		Status:       domain.StatusPending,
		CustomerUUID: f.alice.UUID,
		ContactUUID:  f.aliceToBob.UUID,
	}
	f.repo.transactions[tx.UUID] = tx

	if err := f.service.CompleteTransaction(context.Background(), tx.UUID, "RMTOFR22"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.bob.Balance.String(); got != "35" {
		t.Fatalf("expected target balance 35, got %s", got)
	}
	if len(f.producer.published) != 1 || f.producer.published[0].routingKey != domain.TopicTransferFinalize {
		t.Fatalf("expected one finalize notice, got %+v", f.producer.published)
	}
	if f.repo.transactions[tx.UUID].Status != domain.StatusPending {
		t.Fatal("complete must not change the transaction status")
	}

	// Redelivery is absorbed without a second credit.
	if err := f.service.CompleteTransaction(context.Background(), tx.UUID, "RMTOFR22"); err != nil {
		t.Fatalf("duplicate completion must be silent: %v", err)
	}
	if got := f.bob.Balance.String(); got != "35" {
		t.Fatalf("duplicate completion credited again: %s", got)
	}
}

func TestCompleteTransactionFallsBackToGatewayWhenBusDown(t *testing.T) {
	f := newEngineFixture("200.00")
	f.producer.publishErr = errors.New("broker down")

	tx := &domain.Transaction{
		UUID:         uuid.New(),
		TargetAmount: decimal.RequireFromString("25.00"),
		Status:       domain.StatusPending,
		CustomerUUID: f.alice.UUID,
		ContactUUID:  f.aliceToBob.UUID,
	}
	f.repo.transactions[tx.UUID] = tx

	if err := f.service.CompleteTransaction(context.Background(), tx.UUID, "RMTOFR22"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.gateway.finalizeCalled {
		t.Fatal("expected gateway finalize fallback when the bus is down")
	}
}

func TestCompleteTransactionRetriesNoticeWithoutSecondCredit(t *testing.T) {
	f := newEngineFixture("200.00")
	f.producer.publishErr = errors.New("broker down")
	f.gateway.finalizeErr = errors.New("network unreachable")

	tx := &domain.Transaction{
		UUID:         uuid.New(),
		TargetAmount: decimal.RequireFromString("25.00"),
		Status:       domain.StatusPending,
		CustomerUUID: f.alice.UUID,
		ContactUUID:  f.aliceToBob.UUID,
	}
	f.repo.transactions[tx.UUID] = tx

	// Credit lands, but neither channel can carry the finalize notice.
	if err := f.service.CompleteTransaction(context.Background(), tx.UUID, "RMTOFR22"); err == nil {
		t.Fatal("expected error when both notice channels fail")
	}
	if got := f.bob.Balance.String(); got != "35" {
		t.Fatalf("expected credit to stand, got %s", got)
	}

	// The bus recovers; the redelivered event must emit the notice without
	// crediting again.
	f.producer.publishErr = nil
	f.gateway.finalizeErr = nil
	if err := f.service.CompleteTransaction(context.Background(), tx.UUID, "RMTOFR22"); err != nil {
		t.Fatalf("redelivery after recovery must succeed: %v", err)
	}
	if got := f.bob.Balance.String(); got != "35" {
		t.Fatalf("redelivery credited again: %s", got)
	}
	if len(f.producer.published) != 1 || f.producer.published[0].routingKey != domain.TopicTransferFinalize {
		t.Fatalf("expected exactly one finalize notice, got %+v", f.producer.published)
	}
}

func TestCompleteTransactionUnknownTransactionClearsMarker(t *testing.T) {
	f := newEngineFixture("200.00")
	unknown := uuid.New()

	err := f.service.CompleteTransaction(context.Background(), unknown, "RMTOFR22")
	if !errors.Is(err, store.ErrTransactionNotFound) {
		t.Fatalf("expected transaction-not-found, got %v", err)
	}
	if f.repo.events[unknown.String()+"/complete"] {
		t.Fatal("dedupe marker must be cleared so a redelivery can retry")
	}
}

func TestFinalizeCompletedTransactionReleasesStagedFunds(t *testing.T) {
	f := newEngineFixture("150.00")
	f.alice.SuspenseBalance = decimal.RequireFromString("50.00")

	tx := &domain.Transaction{
		UUID:         uuid.New(),
		SourceAmount: decimal.RequireFromString("50.00"),
		TargetAmount: decimal.RequireFromString("50.00"),
		Status:       domain.StatusPending,
		CustomerUUID: f.alice.UUID,
		ContactUUID:  f.aliceExt.UUID,
	}
	f.repo.transactions[tx.UUID] = tx

	if err := f.service.FinalizeCompletedTransaction(context.Background(), tx.UUID, "RMTOFR22"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.alice.SuspenseBalance.IsZero() {
		t.Fatalf("expected suspense released, got %s", f.alice.SuspenseBalance)
	}
	if got := f.alice.Balance.String(); got != "150" {
		t.Fatalf("finalize must not return funds to balance, got %s", got)
	}
	if f.repo.transactions[tx.UUID].Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", f.repo.transactions[tx.UUID].Status)
	}

	// Redelivery is absorbed without a second unstage.
	if err := f.service.FinalizeCompletedTransaction(context.Background(), tx.UUID, "RMTOFR22"); err != nil {
		t.Fatalf("duplicate finalize must be silent: %v", err)
	}
	if !f.alice.SuspenseBalance.IsZero() {
		t.Fatalf("duplicate finalize unstaged again: %s", f.alice.SuspenseBalance)
	}
}

func TestFinalizeDropsReplayForCompletedTransaction(t *testing.T) {
	f := newEngineFixture("150.00")
	f.alice.SuspenseBalance = decimal.RequireFromString("50.00")

	tx := &domain.Transaction{
		UUID:         uuid.New(),
		SourceAmount: decimal.RequireFromString("50.00"),
		Status:       domain.StatusCompleted,
		CustomerUUID: f.alice.UUID,
		ContactUUID:  f.aliceExt.UUID,
	}
	f.repo.transactions[tx.UUID] = tx

	if err := f.service.FinalizeCompletedTransaction(context.Background(), tx.UUID, "RMTOFR22"); err != nil {
		t.Fatalf("replay for completed transaction must be silent: %v", err)
	}
	if got := f.alice.SuspenseBalance.String(); got != "50" {
		t.Fatalf("replay must not touch suspense, got %s", got)
	}
}

func TestFinalizeFailureLeavesRetryableState(t *testing.T) {
	f := newEngineFixture("150.00")
	f.alice.SuspenseBalance = decimal.RequireFromString("50.00")
	f.repo.finalizeTransferErr = errors.New("database down")

	tx := &domain.Transaction{
		UUID:         uuid.New(),
		SourceAmount: decimal.RequireFromString("50.00"),
		Status:       domain.StatusPending,
		CustomerUUID: f.alice.UUID,
		ContactUUID:  f.aliceExt.UUID,
	}
	f.repo.transactions[tx.UUID] = tx

	if err := f.service.FinalizeCompletedTransaction(context.Background(), tx.UUID, "RMTOFR22"); err == nil {
		t.Fatal("expected error when the finalize write fails")
	}
	if got := f.alice.SuspenseBalance.String(); got != "50" {
		t.Fatalf("failed finalize must not touch suspense, got %s", got)
	}
	if f.repo.events[tx.UUID.String()+"/finalize"] {
		t.Fatal("dedupe marker must be cleared so the redelivery can retry")
	}

	// The store recovers and the bus redelivers the same event.
	f.repo.finalizeTransferErr = nil
	if err := f.service.FinalizeCompletedTransaction(context.Background(), tx.UUID, "RMTOFR22"); err != nil {
		t.Fatalf("redelivery after recovery must succeed: %v", err)
	}
	if !f.alice.SuspenseBalance.IsZero() {
		t.Fatalf("expected suspense released, got %s", f.alice.SuspenseBalance)
	}
	if f.repo.transactions[tx.UUID].Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", f.repo.transactions[tx.UUID].Status)
	}
}

func TestUpdateTransactionStatusOverridesTerminalState(t *testing.T) {
	f := newEngineFixture("150.00")

	tx := &domain.Transaction{UUID: uuid.New(), Status: domain.StatusCompleted, CustomerUUID: f.alice.UUID, ContactUUID: f.aliceExt.UUID}
	f.repo.transactions[tx.UUID] = tx

	updated, err := f.service.UpdateTransactionStatus(context.Background(), tx.UUID, domain.StatusDeclined)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.StatusDeclined {
		t.Fatalf("expected DECLINED, got %s", updated.Status)
	}
	if got := f.alice.Balance.String(); got != "150" {
		t.Fatalf("administrative override must never touch balances, got %s", got)
	}
}
