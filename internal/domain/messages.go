/**
 * @description
 * Wire codecs for the payment-network message bus. Payloads are
 * whitespace-delimited text, in the field order the network expects:
 *
 *   transfer-initiation: sourceCustomerId targetEmail sourceAmount transactionId
 *   transfer-complete:   transactionId counterpartBIC
 *   transfer-finalize:   transactionId counterpartBIC
 *
 * @dependencies
 * - github.com/google/uuid, github.com/shopspring/decimal
 */

package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routing keys on the payments exchange.
const (
	TopicTransferInitiation = "transfer-initiation"
	TopicTransferComplete   = "transfer-complete"
	TopicTransferFinalize   = "transfer-finalize"
)

// TransferInitiation asks the network to move funds to a customer of another
// bank.
type TransferInitiation struct {
	SourceCustomerUUID uuid.UUID
	TargetEmail        string
	SourceAmount       decimal.Decimal
	TransactionUUID    uuid.UUID
}

// Encode renders the initiation payload in wire order.
func (m TransferInitiation) Encode() []byte {
	return []byte(fmt.Sprintf("%s %s %s %s",
		m.SourceCustomerUUID, m.TargetEmail, m.SourceAmount, m.TransactionUUID))
}

// ParseTransferInitiation decodes a transfer-initiation payload.
func ParseTransferInitiation(body []byte) (TransferInitiation, error) {
	fields := strings.Fields(string(body))
	if len(fields) != 4 {
		return TransferInitiation{}, fmt.Errorf("transfer-initiation: expected 4 fields, got %d", len(fields))
	}
	source, err := uuid.Parse(fields[0])
	if err != nil {
		return TransferInitiation{}, fmt.Errorf("transfer-initiation: source customer id: %w", err)
	}
	amount, err := decimal.NewFromString(fields[2])
	if err != nil {
		return TransferInitiation{}, fmt.Errorf("transfer-initiation: source amount: %w", err)
	}
	txID, err := uuid.Parse(fields[3])
	if err != nil {
		return TransferInitiation{}, fmt.Errorf("transfer-initiation: transaction id: %w", err)
	}
	return TransferInitiation{
		SourceCustomerUUID: source,
		TargetEmail:        fields[1],
		SourceAmount:       amount,
		TransactionUUID:    txID,
	}, nil
}

// TransferNotice addresses one transaction at a counterpart bank. The same
// payload shape carries both the complete and the finalize steps.
type TransferNotice struct {
	TransactionUUID uuid.UUID
	CounterpartBIC  string
}

// Encode renders the notice payload in wire order.
func (m TransferNotice) Encode() []byte {
	return []byte(fmt.Sprintf("%s %s", m.TransactionUUID, m.CounterpartBIC))
}

// ParseTransferNotice decodes a transfer-complete or transfer-finalize payload.
func ParseTransferNotice(body []byte) (TransferNotice, error) {
	fields := strings.Fields(string(body))
	if len(fields) != 2 {
		return TransferNotice{}, fmt.Errorf("transfer notice: expected 2 fields, got %d", len(fields))
	}
	txID, err := uuid.Parse(fields[0])
	if err != nil {
		return TransferNotice{}, fmt.Errorf("transfer notice: transaction id: %w", err)
	}
	return TransferNotice{TransactionUUID: txID, CounterpartBIC: fields[1]}, nil
}
