/**
 * @description
 * This file contains the consumer-side handlers for the payment network's
 * settlement events. Payloads arrive as whitespace-delimited text on the bus;
 * each handler parses, applies the settlement step through the service, and
 * tells the bus whether to acknowledge.
 *
 * Acknowledgement policy: malformed payloads and events for unknown
 * transactions are acknowledged (redelivery cannot fix them); transient
 * processing errors are not acknowledged so the bus redelivers. Redeliveries
 * of already-applied events are absorbed by the service's dedupe markers.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/banksim/bank-simulator/internal/domain"
	"github.com/banksim/bank-simulator/internal/store"
)

// TransferEventConsumer dispatches settlement events from the bus into the
// transfer engine.
type TransferEventConsumer struct {
	service *Service
}

func NewTransferEventConsumer(service *Service) *TransferEventConsumer {
	return &TransferEventConsumer{service: service}
}

// HandleComplete processes a transfer-complete event. The return value is the
// ack decision.
func (c *TransferEventConsumer) HandleComplete(body []byte) bool {
	notice, err := domain.ParseTransferNotice(body)
	if err != nil {
		log.Printf("level=warn component=transfer_consumer msg=\"malformed complete payload dropped\" err=%v", err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.service.CompleteTransaction(ctx, notice.TransactionUUID, notice.CounterpartBIC); err != nil {
		if isPermanent(err) {
			log.Printf("level=warn component=transfer_consumer msg=\"complete event for unknown record dropped\" tx=%s err=%v", notice.TransactionUUID, err)
			return true
		}
		log.Printf("level=error component=transfer_consumer msg=\"complete event processing failed\" tx=%s err=%v", notice.TransactionUUID, err)
		return false
	}
	return true
}

// HandleFinalize processes a transfer-finalize event. The return value is the
// ack decision.
func (c *TransferEventConsumer) HandleFinalize(body []byte) bool {
	notice, err := domain.ParseTransferNotice(body)
	if err != nil {
		log.Printf("level=warn component=transfer_consumer msg=\"malformed finalize payload dropped\" err=%v", err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.service.FinalizeCompletedTransaction(ctx, notice.TransactionUUID, notice.CounterpartBIC); err != nil {
		if isPermanent(err) {
			log.Printf("level=warn component=transfer_consumer msg=\"finalize event for unknown record dropped\" tx=%s err=%v", notice.TransactionUUID, err)
			return true
		}
		log.Printf("level=error component=transfer_consumer msg=\"finalize event processing failed\" tx=%s err=%v", notice.TransactionUUID, err)
		return false
	}
	return true
}

// isPermanent reports whether redelivering the event could ever succeed.
func isPermanent(err error) bool {
	return errors.Is(err, store.ErrTransactionNotFound) ||
		errors.Is(err, store.ErrCustomerNotFound) ||
		errors.Is(err, store.ErrContactNotFound)
}
