package controllers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/FrederikMaler/LicenseBay/app/repository"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/checkout"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/constants"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/env"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/license"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/mail"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/metrics/counter"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/payment"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/pricing"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/session"
)

const invoiceTextKey = "invoice_text"

// checkoutProcessor is what the controller needs from the pipeline.
type checkoutProcessor interface {
	Process(ctx context.Context, req checkout.OrderRequest) (*checkout.Result, error)
}

var (
	checkoutService checkoutProcessor
	priceCalc       *pricing.Calculator
)

// InitializeCheckoutController wires the checkout pipeline from the
// environment and the shared repositories. Any config problem (bad pricing
// values, unreadable signing key) fails startup here, before the first
// request is accepted.
func InitializeCheckoutController() error {
	calc, err := pricing.NewCalculator(pricing.ConfigFromEnv())
	if err != nil {
		return err
	}

	version := 1
	if v, err := strconv.Atoi(env.GetEnv("LICENSE_FORMAT_VERSION", "")); err == nil && v > 0 {
		version = v
	}
	issuer, err := license.NewIssuerFromFiles(
		env.GetEnv("LICENSE_TEMPLATE_PATH", "license_template.txt"),
		env.GetEnv("LICENSE_PRIVATE_KEY_PATH", ".license_private_key.pem"),
		version,
	)
	if err != nil {
		return err
	}

	priceCalc = calc
	checkoutService = checkout.NewOrchestrator(
		calc,
		payment.NewStripeClientFromEnv(),
		issuer,
		repository.GetRepositories().License,
		mail.NewSMTPNotifier(),
		checkout.ConfigFromEnv(),
	)
	return nil
}

// SetCheckoutService swaps the pipeline implementation. Test hook.
func SetCheckoutService(s checkoutProcessor, calc *pricing.Calculator) {
	checkoutService = s
	priceCalc = calc
}

// HandleChargeRedirect sends direct navigations to /charge back to the form.
func HandleChargeRedirect(c *fiber.Ctx) error {
	return c.Redirect(constants.HomeRoute)
}

// HandleCharge runs one submitted order through the checkout pipeline.
// User-correctable failures flash a message and return to the form; fatal
// failures after payment capture are logged with the transaction reference
// and surface only as a generic error.
func HandleCharge(c *fiber.Ctx) error {
	req, err := parseOrderRequest(c)
	if err != nil {
		fm := fiber.Map{
			"type":    "error",
			"message": "Please check your order details and try again.",
		}
		return flash.WithError(c, fm).Redirect(constants.HomeRoute)
	}

	result, err := checkoutService.Process(c.Context(), req)
	if err != nil {
		var stageErr *checkout.StageError
		if errors.As(err, &stageErr) && stageErr.Recoverable() {
			fm := fiber.Map{
				"type":    "error",
				"message": userMessage(stageErr),
			}
			return flash.WithError(c, fm).Redirect(constants.HomeRoute)
		}

		// Operators reconcile via this log line: once a charge exists the
		// stage error carries its transaction reference.
		log.Printf("checkout failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError,
			"Something went wrong processing your order. Please contact support before retrying.")
	}

	if err := session.SetSessionValue(c, invoiceTextKey, result.InvoiceText); err != nil {
		// The sale is committed either way; the buyer still has the
		// emailed invoice if this redirect dead-ends on the form.
		log.Printf("storing invoice text in session failed: %v", err)
	}
	if !result.Resubmission {
		if err := counter.AddCompletedCheckout(); err != nil {
			log.Printf("incrementing checkout counter failed: %v", err)
		}
	}

	return c.Redirect(constants.CompletedRoute)
}

// HandleCompleted shows the invoice exactly once. Without a prior
// successful transaction in this session there is nothing to show and the
// buyer goes back to the form; reading the page clears the stored invoice.
func HandleCompleted(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Redirect(constants.HomeRoute)
	}

	invoiceText, _ := sess.Get(invoiceTextKey).(string)
	if invoiceText == "" {
		return c.Redirect(constants.HomeRoute)
	}

	if err := sess.Destroy(); err != nil {
		log.Printf("destroying session after completion failed: %v", err)
	}

	return c.Render("pages/completed", fiber.Map{
		"InvoiceText": invoiceText,
	})
}

func parseOrderRequest(c *fiber.Ctx) (checkout.OrderRequest, error) {
	duration, err := strconv.Atoi(strings.TrimSpace(c.FormValue("duration")))
	if err != nil {
		return checkout.OrderRequest{}, err
	}
	total, err := strconv.ParseFloat(strings.TrimSpace(c.FormValue("total")), 64)
	if err != nil {
		return checkout.OrderRequest{}, err
	}

	terms := strings.ToLower(strings.TrimSpace(c.FormValue("termsAccepted")))

	return checkout.OrderRequest{
		Name:           strings.TrimSpace(c.FormValue("name")),
		Email:          strings.TrimSpace(c.FormValue("email")),
		EmailConfirm:   strings.TrimSpace(c.FormValue("emailConfirm")),
		Country:        strings.TrimSpace(c.FormValue("country")),
		DurationMonths: duration,
		PaymentToken:   strings.TrimSpace(c.FormValue("stripeToken")),
		SubmittedTotal: total,
		TermsAccepted:  terms == "on" || terms == "true" || terms == "1",
	}, nil
}

func userMessage(stageErr *checkout.StageError) string {
	var verr *checkout.ValidationError
	if errors.As(stageErr.Err, &verr) {
		msgs := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			msgs = append(msgs, f.Message)
		}
		return strings.Join(msgs, "; ")
	}
	if errors.Is(stageErr.Err, checkout.ErrPriceMismatch) {
		return "The order total no longer matches the current price. Please review your order and submit it again."
	}
	return "Please check your order details and try again."
}
