package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FrederikMaler/LicenseBay/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// Error is the single failure type for payment capture. It carries the
// processor's own message so operators can see why a charge was rejected;
// callers must not surface it to the buyer verbatim.
type Error struct {
	Code    string
	Type    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("payment: %s", e.Message)
}

// Charge is the processor-side result of a captured payment. The charge ID
// doubles as the transaction reference for the rest of the pipeline.
type Charge struct {
	CustomerID  string
	ChargeID    string
	AmountMinor int64
	Currency    string
}

// StripeClient talks to the Stripe REST API. Amounts are always in minor
// currency units (cents) so no float ever crosses the wire.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type customerResponse struct {
	ID string `json:"id"`
}

type chargeResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCustomer registers the buyer with the processor and attaches the
// tokenized card as the payment source.
func (c *StripeClient) CreateCustomer(ctx context.Context, name, email, token string) (string, error) {
	form := url.Values{
		"name":   {name},
		"email":  {email},
		"source": {token},
	}

	var resp customerResponse
	if err := c.postForm(ctx, "/customers", form, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &Error{Message: "customer response carried no id"}
	}
	return resp.ID, nil
}

// CreateCharge captures a one-shot charge against an existing customer.
func (c *StripeClient) CreateCharge(ctx context.Context, customerID string, amountMinor int64, currency string) (string, error) {
	form := url.Values{
		"amount":   {strconv.FormatInt(amountMinor, 10)},
		"currency": {currency},
		"customer": {customerID},
	}

	var resp chargeResponse
	if err := c.postForm(ctx, "/charges", form, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &Error{Message: "charge response carried no id"}
	}
	return resp.ID, nil
}

// ChargeOrder runs the two-step capture: create the customer, then charge
// them. Any failure comes back as a *payment.Error and is never retried
// here, since a blind retry of a capture can double-charge the card.
func (c *StripeClient) ChargeOrder(ctx context.Context, name, email, token string, amountMinor int64, currency string) (*Charge, error) {
	customerID, err := c.CreateCustomer(ctx, name, email, token)
	if err != nil {
		return nil, err
	}

	chargeID, err := c.CreateCharge(ctx, customerID, amountMinor, currency)
	if err != nil {
		return nil, err
	}

	return &Charge{
		CustomerID:  customerID,
		ChargeID:    chargeID,
		AmountMinor: amountMinor,
		Currency:    currency,
	}, nil
}

func (c *StripeClient) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.SecretKey, "")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return &Error{Message: fmt.Sprintf("request to processor failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Message: fmt.Sprintf("reading processor response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			return &Error{
				Code:    apiErr.Error.Code,
				Type:    apiErr.Error.Type,
				Message: apiErr.Error.Message,
			}
		}
		return &Error{Message: fmt.Sprintf("processor returned status %d", resp.StatusCode)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Message: fmt.Sprintf("decoding processor response: %v", err)}
	}
	return nil
}
