package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FrederikMaler/LicenseBay/internal/pkg/checkout"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/constants"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/pricing"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/session"
)

type fakeProcessor struct {
	result *checkout.Result
	err    error
	calls  int
	last   checkout.OrderRequest
}

func (f *fakeProcessor) Process(_ context.Context, req checkout.OrderRequest) (*checkout.Result, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestApp(t *testing.T, processor *fakeProcessor) *fiber.App {
	t.Helper()

	calc, err := pricing.NewCalculator(pricing.Config{
		CurrencyCode:                      "usd",
		CurrencySymbol:                    "$",
		CurrencyDecimals:                  2,
		PricePerMonth:                     10,
		DiscountPerAdditionalMonthPercent: 2,
		DiscountMaxPercent:                20,
		TaxPercent:                        10,
		TaxCountry:                        "Australia",
		TaxName:                           "GST",
		ProductName:                       "LicenseBay",
		AllowedDurations:                  []int{6, 12, 24},
	})
	require.NoError(t, err)

	SetCheckoutService(processor, calc)
	session.NewMemorySessionStore()

	engine := html.New("../../views", ".html")
	app := fiber.New(fiber.Config{Views: engine})

	app.Get(constants.HomeRoute, HandleHome)
	app.Get(constants.ChargeRoute, HandleChargeRedirect)
	app.Post(constants.ChargeRoute, HandleCharge)
	app.Get(constants.CompletedRoute, HandleCompleted)

	return app
}

func orderForm() url.Values {
	return url.Values{
		"name":          {"Jane Buyer"},
		"email":         {"jane@example.com"},
		"emailConfirm":  {"jane@example.com"},
		"country":       {"Australia"},
		"duration":      {"12"},
		"stripeToken":   {"tok_visa"},
		"total":         {"105.60"},
		"termsAccepted": {"on"},
	}
}

func postCharge(t *testing.T, app *fiber.App, form url.Values) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/charge", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestHandleChargeRedirectsOnDirectNavigation(t *testing.T) {
	app := newTestApp(t, &fakeProcessor{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/charge", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHandleChargeSuccessRedirectsToCompleted(t *testing.T) {
	processor := &fakeProcessor{result: &checkout.Result{
		Stage:            checkout.StageCompleted,
		TransactionRef:   "ch_1",
		InvoiceText:      "Hi Jane Buyer,\nTotal: $105.60",
		NotificationSent: true,
	}}
	app := newTestApp(t, processor)

	resp := postCharge(t, app, orderForm())
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/completed", resp.Header.Get("Location"))

	require.Equal(t, 1, processor.calls)
	assert.Equal(t, "Jane Buyer", processor.last.Name)
	assert.Equal(t, 12, processor.last.DurationMonths)
	assert.Equal(t, 105.60, processor.last.SubmittedTotal)
	assert.True(t, processor.last.TermsAccepted)
}

func TestCompletedPageIsReadOnce(t *testing.T) {
	processor := &fakeProcessor{result: &checkout.Result{
		Stage:          checkout.StageCompleted,
		TransactionRef: "ch_1",
		InvoiceText:    "Transaction Reference: ch_1",
	}}
	app := newTestApp(t, processor)

	resp := postCharge(t, app, orderForm())
	require.Equal(t, fiber.StatusFound, resp.StatusCode)

	var sessionCookie string
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			sessionCookie = c.Value
		}
	}
	require.NotEmpty(t, sessionCookie, "the charge must have set a session cookie")

	// First read shows the invoice.
	req := httptest.NewRequest(http.MethodGet, "/completed", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: sessionCookie})
	first, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, first.StatusCode)
	body, err := io.ReadAll(first.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Transaction Reference: ch_1")

	// Second read finds nothing and goes back to the form.
	req = httptest.NewRequest(http.MethodGet, "/completed", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: sessionCookie})
	second, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, second.StatusCode)
	assert.Equal(t, "/", second.Header.Get("Location"))
}

func TestCompletedWithoutTransactionRedirects(t *testing.T) {
	app := newTestApp(t, &fakeProcessor{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/completed", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHandleChargeValidationFailureFlashesBackToForm(t *testing.T) {
	processor := &fakeProcessor{err: &checkout.StageError{
		Stage: checkout.StageValidated,
		Err: &checkout.ValidationError{Fields: []checkout.FieldError{
			{Field: "EmailConfirm", Message: "email addresses do not match"},
		}},
	}}
	app := newTestApp(t, processor)

	form := orderForm()
	form.Set("emailConfirm", "other@example.com")
	resp := postCharge(t, app, form)

	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHandleChargePriceMismatchFlashesBackToForm(t *testing.T) {
	processor := &fakeProcessor{err: &checkout.StageError{
		Stage: checkout.StageQuoted,
		Err:   checkout.ErrPriceMismatch,
	}}
	app := newTestApp(t, processor)

	resp := postCharge(t, app, orderForm())
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHandleChargeFatalFailureReturnsGenericError(t *testing.T) {
	processor := &fakeProcessor{err: &checkout.StageError{
		Stage:          checkout.StagePersisted,
		TransactionRef: "ch_1",
		Err:            errors.New("store unreachable"),
	}}
	app := newTestApp(t, processor)

	resp := postCharge(t, app, orderForm())
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// No internal detail may leak to the buyer.
	assert.NotContains(t, string(body), "store unreachable")
	assert.NotContains(t, string(body), "ch_1")
}

func TestHandleChargeUnparsableFormRedirects(t *testing.T) {
	processor := &fakeProcessor{}
	app := newTestApp(t, processor)

	form := orderForm()
	form.Set("total", "not-a-number")
	resp := postCharge(t, app, form)

	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Equal(t, 0, processor.calls)
}
