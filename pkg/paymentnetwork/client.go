/**
 * @description
 * This package provides a client for the inter-bank payment network's REST
 * registry. It encapsulates the logic for making authenticated HTTP requests
 * to the network's endpoints, handling request body construction, and parsing
 * responses. The client implements the gateway interface the transfer engine
 * depends on.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal
 * - internal/domain: Registry payloads mirror the directory models.
 */
package paymentnetwork

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/banksim/bank-simulator/internal/domain"
)

// Client is a client for the payment network registry API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new payment network client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BankRecord is the registry's representation of a participant bank.
type BankRecord struct {
	UUID    string `json:"uuid"`
	Name    string `json:"name"`
	BIC     string `json:"bic"`
	Country string `json:"countryCode"`
}

// CustomerRecord is the registry's representation of a reachable customer.
type CustomerRecord struct {
	UUID    string `json:"uuid"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	BIC     string `json:"bic"`
}

// ValidationResponse is the reply to a customer reachability check.
type ValidationResponse struct {
	Valid bool `json:"valid"`
}

// ErrorResponse represents an error from the network registry.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payment network error: %s", e.Message)
	}
	return fmt.Sprintf("payment network error (status %d)", e.Status)
}

// ValidateCustomer asks the network whether email belongs to a reachable
// customer of some participant bank.
func (c *Client) ValidateCustomer(ctx context.Context, email string) (bool, error) {
	endpoint := c.BaseURL + "/api/v1/customers/validate?email=" + url.QueryEscape(email)
	var result ValidationResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return false, err
	}
	return result.Valid, nil
}

// ListCustomers fetches every customer the network can currently reach.
func (c *Client) ListCustomers(ctx context.Context) ([]CustomerRecord, error) {
	var result []CustomerRecord
	if err := c.do(ctx, http.MethodGet, c.BaseURL+"/api/v1/customers", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// RegisterBank announces a bank to the network registry.
func (c *Client) RegisterBank(ctx context.Context, bank domain.Bank) error {
	return c.do(ctx, http.MethodPost, c.BaseURL+"/api/v1/banks", bankRecord(bank), nil)
}

// UpdateBank re-announces a bank's registry record.
func (c *Client) UpdateBank(ctx context.Context, bank domain.Bank) error {
	return c.do(ctx, http.MethodPut, c.BaseURL+"/api/v1/banks/"+bank.UUID.String(), bankRecord(bank), nil)
}

// UnregisterBank withdraws a bank from the registry.
func (c *Client) UnregisterBank(ctx context.Context, bankUUID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, c.BaseURL+"/api/v1/banks/"+bankUUID.String(), nil, nil)
}

// RegisterCustomer announces a customer as reachable through this bank.
func (c *Client) RegisterCustomer(ctx context.Context, customer domain.Customer) error {
	return c.do(ctx, http.MethodPost, c.BaseURL+"/api/v1/customers", customerRecord(customer), nil)
}

// UpdateCustomer re-announces a customer's registry record.
func (c *Client) UpdateCustomer(ctx context.Context, customer domain.Customer) error {
	return c.do(ctx, http.MethodPut, c.BaseURL+"/api/v1/customers/"+customer.UUID.String(), customerRecord(customer), nil)
}

// UnregisterCustomer withdraws a customer from the registry.
func (c *Client) UnregisterCustomer(ctx context.Context, customerUUID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, c.BaseURL+"/api/v1/customers/"+customerUUID.String(), nil, nil)
}

// FinalizeRequest carries a finalize notice delivered over HTTP instead of
// the bus.
type FinalizeRequest struct {
	TransactionUUID string          `json:"transactionUuid"`
	BIC             string          `json:"bic"`
	Amount          decimal.Decimal `json:"amount,omitempty"`
}

// FinalizeCompletedTransaction carries the finalize notice to the counterpart
// bank directly, used when the message bus is unavailable.
func (c *Client) FinalizeCompletedTransaction(ctx context.Context, txUUID uuid.UUID, counterpartBIC string) error {
	payload := FinalizeRequest{TransactionUUID: txUUID.String(), BIC: counterpartBIC}
	return c.do(ctx, http.MethodPost, c.BaseURL+"/api/v1/transactions/finalize", payload, nil)
}

// do executes one authenticated request and decodes the response into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-network-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=paymentnetwork_client method=%s status=%d msg=\"non-2xx response (unparsable error body)\"", method, resp.StatusCode)
			return fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		errResp.Status = resp.StatusCode
		log.Printf("level=warn component=paymentnetwork_client method=%s status=%d detail=%q", method, resp.StatusCode, errResp.Message)
		return &errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode success response: %w", err)
		}
	}
	return nil
}

func bankRecord(bank domain.Bank) BankRecord {
	return BankRecord{
		UUID:    bank.UUID.String(),
		Name:    bank.Name,
		BIC:     bank.BIC,
		Country: bank.Country,
	}
}

func customerRecord(customer domain.Customer) CustomerRecord {
	return CustomerRecord{
		UUID:    customer.UUID.String(),
		Name:    customer.Name,
		Surname: customer.Surname,
		Email:   customer.Email,
	}
}
