/**
 * @description
 * Directory management: CRUD for banks, customers, and contacts, plus the
 * synchronization of network-visible records with the payment network
 * registry. A bank or customer flagged for the payment network is registered
 * with the network on create, re-announced on update, and withdrawn on delete
 * or when the flag is cleared.
 *
 * Registry calls are best-effort: the local directory is the system of
 * record, and a network outage must not block local administration. Failed
 * registry calls are logged, never propagated.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/banksim/bank-simulator/internal/domain"
	"github.com/banksim/bank-simulator/pkg/paymentnetwork"
)

const (
	maxBICLength      = 11
	maxCurrencyLength = 3
)

// --- Banks ---

// CreateBank validates and stores a bank, announcing it to the payment
// network when flagged.
func (s *Service) CreateBank(ctx context.Context, bank *domain.Bank) (*domain.Bank, error) {
	if err := validateBank(bank); err != nil {
		return nil, err
	}
	bank.UUID = uuid.New()
	if err := s.repo.CreateBank(ctx, bank); err != nil {
		return nil, err
	}
	if bank.PaymentNetwork {
		if err := s.gateway.RegisterBank(ctx, *bank); err != nil {
			log.Printf("level=warn component=directory msg=\"bank network registration failed\" bank=%s bic=%s err=%v", bank.UUID, bank.BIC, err)
		}
	}
	return bank, nil
}

// UpdateBank overwrites a bank record and reconciles its network membership:
// newly flagged banks are registered, unflagged ones withdrawn.
func (s *Service) UpdateBank(ctx context.Context, bank *domain.Bank) (*domain.Bank, error) {
	if err := validateBank(bank); err != nil {
		return nil, err
	}
	previous, err := s.repo.FindBankByUUID(ctx, bank.UUID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBank(ctx, bank); err != nil {
		return nil, err
	}

	switch {
	case bank.PaymentNetwork && !previous.PaymentNetwork:
		if err := s.gateway.RegisterBank(ctx, *bank); err != nil {
			log.Printf("level=warn component=directory msg=\"bank network registration failed\" bank=%s bic=%s err=%v", bank.UUID, bank.BIC, err)
		}
	case !bank.PaymentNetwork && previous.PaymentNetwork:
		if err := s.gateway.UnregisterBank(ctx, bank.UUID); err != nil {
			log.Printf("level=warn component=directory msg=\"bank network withdrawal failed\" bank=%s err=%v", bank.UUID, err)
		}
	case bank.PaymentNetwork:
		if err := s.gateway.UpdateBank(ctx, *bank); err != nil {
			log.Printf("level=warn component=directory msg=\"bank network update failed\" bank=%s err=%v", bank.UUID, err)
		}
	}
	return bank, nil
}

// DeleteBank removes a bank, withdrawing it from the network first when it
// was announced there.
func (s *Service) DeleteBank(ctx context.Context, bankUUID uuid.UUID) error {
	bank, err := s.repo.FindBankByUUID(ctx, bankUUID)
	if err != nil {
		return err
	}
	if bank.PaymentNetwork {
		if err := s.gateway.UnregisterBank(ctx, bankUUID); err != nil {
			log.Printf("level=warn component=directory msg=\"bank network withdrawal failed\" bank=%s err=%v", bankUUID, err)
		}
	}
	return s.repo.DeleteBank(ctx, bankUUID)
}

func (s *Service) GetAllBanks(ctx context.Context) ([]domain.Bank, error) {
	return s.repo.ListBanks(ctx)
}

func (s *Service) FindBankByUUID(ctx context.Context, bankUUID uuid.UUID) (*domain.Bank, error) {
	return s.repo.FindBankByUUID(ctx, bankUUID)
}

func (s *Service) FindBankByBIC(ctx context.Context, bic string) (*domain.Bank, error) {
	return s.repo.FindBankByBIC(ctx, strings.TrimSpace(bic))
}

func (s *Service) FindBanksByName(ctx context.Context, name string) ([]domain.Bank, error) {
	return s.repo.FindBanksByNameContaining(ctx, strings.TrimSpace(name))
}

func validateBank(bank *domain.Bank) error {
	if strings.TrimSpace(bank.Name) == "" {
		return fmt.Errorf("%w: bank name is required", ErrValidation)
	}
	bic := strings.TrimSpace(bank.BIC)
	if bic == "" {
		return fmt.Errorf("%w: bank BIC is required", ErrValidation)
	}
	if len(bic) > maxBICLength {
		return fmt.Errorf("%w: bank BIC exceeds %d characters", ErrValidation, maxBICLength)
	}
	currency := strings.TrimSpace(bank.Currency)
	if currency == "" {
		return fmt.Errorf("%w: bank currency is required", ErrValidation)
	}
	if len(currency) > maxCurrencyLength {
		return fmt.Errorf("%w: bank currency exceeds %d characters", ErrValidation, maxCurrencyLength)
	}
	bank.BIC = bic
	bank.Currency = strings.ToUpper(currency)
	return nil
}

// --- Customers ---

// CreateCustomer validates and stores a customer, announcing them to the
// payment network when flagged. Balances start at whatever the request
// carries, allowing seeded accounts.
func (s *Service) CreateCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error) {
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindBankByUUID(ctx, customer.BankUUID); err != nil {
		return nil, fmt.Errorf("resolve customer bank: %w", err)
	}
	customer.UUID = uuid.New()
	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		return nil, err
	}
	if customer.PaymentNetwork {
		if err := s.gateway.RegisterCustomer(ctx, *customer); err != nil {
			log.Printf("level=warn component=directory msg=\"customer network registration failed\" customer=%s err=%v", customer.UUID, err)
		}
	}
	return customer, nil
}

// UpdateCustomer overwrites a customer record and reconciles their network
// visibility the same way UpdateBank does.
func (s *Service) UpdateCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error) {
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}
	previous, err := s.repo.FindCustomerByUUID(ctx, customer.UUID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCustomer(ctx, customer); err != nil {
		return nil, err
	}

	switch {
	case customer.PaymentNetwork && !previous.PaymentNetwork:
		if err := s.gateway.RegisterCustomer(ctx, *customer); err != nil {
			log.Printf("level=warn component=directory msg=\"customer network registration failed\" customer=%s err=%v", customer.UUID, err)
		}
	case !customer.PaymentNetwork && previous.PaymentNetwork:
		if err := s.gateway.UnregisterCustomer(ctx, customer.UUID); err != nil {
			log.Printf("level=warn component=directory msg=\"customer network withdrawal failed\" customer=%s err=%v", customer.UUID, err)
		}
	case customer.PaymentNetwork:
		if err := s.gateway.UpdateCustomer(ctx, *customer); err != nil {
			log.Printf("level=warn component=directory msg=\"customer network update failed\" customer=%s err=%v", customer.UUID, err)
		}
	}
	return customer, nil
}

// DeleteCustomer removes a customer, withdrawing them from the network first
// when they were announced there.
func (s *Service) DeleteCustomer(ctx context.Context, customerUUID uuid.UUID) error {
	customer, err := s.repo.FindCustomerByUUID(ctx, customerUUID)
	if err != nil {
		return err
	}
	if customer.PaymentNetwork {
		if err := s.gateway.UnregisterCustomer(ctx, customerUUID); err != nil {
			log.Printf("level=warn component=directory msg=\"customer network withdrawal failed\" customer=%s err=%v", customerUUID, err)
		}
	}
	return s.repo.DeleteCustomer(ctx, customerUUID)
}

func (s *Service) GetAllCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) FindCustomerByUUID(ctx context.Context, customerUUID uuid.UUID) (*domain.Customer, error) {
	return s.repo.FindCustomerByUUID(ctx, customerUUID)
}

func (s *Service) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return s.repo.FindCustomerByEmail(ctx, strings.TrimSpace(email))
}

// ListNetworkCustomers fetches the customers currently reachable through the
// payment network registry.
func (s *Service) ListNetworkCustomers(ctx context.Context) ([]paymentnetwork.CustomerRecord, error) {
	return s.gateway.ListCustomers(ctx)
}

func validateCustomer(customer *domain.Customer) error {
	if strings.TrimSpace(customer.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if strings.TrimSpace(customer.Surname) == "" {
		return fmt.Errorf("%w: customer surname is required", ErrValidation)
	}
	email := strings.TrimSpace(customer.Email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: customer email is required", ErrValidation)
	}
	if customer.Balance.IsNegative() || customer.SuspenseBalance.IsNegative() {
		return fmt.Errorf("%w: customer balances cannot be negative", ErrValidation)
	}
	if customer.BankUUID == uuid.Nil {
		return fmt.Errorf("%w: customer bank is required", ErrValidation)
	}
	customer.Email = email
	return nil
}

// --- Contacts ---

// CreateContact stores a contact-book entry for a customer. The entry is the
// only addressing mechanism for transfers; transfers to addresses outside the
// owner's contact book are rejected at initiation.
func (s *Service) CreateContact(ctx context.Context, contact *domain.Contact) (*domain.Contact, error) {
	if err := validateContact(contact); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindCustomerByUUID(ctx, contact.CustomerUUID); err != nil {
		return nil, fmt.Errorf("resolve contact owner: %w", err)
	}
	contact.UUID = uuid.New()
	if err := s.repo.CreateContact(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *Service) UpdateContact(ctx context.Context, contact *domain.Contact) (*domain.Contact, error) {
	if err := validateContact(contact); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateContact(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *Service) DeleteContact(ctx context.Context, contactUUID uuid.UUID) error {
	return s.repo.DeleteContact(ctx, contactUUID)
}

func (s *Service) GetAllContacts(ctx context.Context) ([]domain.Contact, error) {
	return s.repo.ListContacts(ctx)
}

func (s *Service) FindContactByUUID(ctx context.Context, contactUUID uuid.UUID) (*domain.Contact, error) {
	return s.repo.FindContactByUUID(ctx, contactUUID)
}

func (s *Service) FindContactsByName(ctx context.Context, name string) ([]domain.Contact, error) {
	return s.repo.FindContactsByNameContaining(ctx, strings.TrimSpace(name))
}

func validateContact(contact *domain.Contact) error {
	if strings.TrimSpace(contact.Name) == "" {
		return fmt.Errorf("%w: contact name is required", ErrValidation)
	}
	email := strings.TrimSpace(contact.Email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: contact email is required", ErrValidation)
	}
	if contact.CustomerUUID == uuid.Nil {
		return fmt.Errorf("%w: contact owner is required", ErrValidation)
	}
	contact.Email = email
	return nil
}
