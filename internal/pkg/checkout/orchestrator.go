package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/biter777/countries"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/FrederikMaler/LicenseBay/app/models"
	"github.com/FrederikMaler/LicenseBay/app/repository"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/env"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/license"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/payment"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/pricing"
)

// OrderRequest is the untrusted buyer submission. Everything in it is
// re-checked server-side; the submitted total in particular is only ever
// compared against the recomputed quote, never charged as-is.
type OrderRequest struct {
	Name           string  `validate:"required,min=2,max=150"`
	Email          string  `validate:"required,email,max=200"`
	EmailConfirm   string  `validate:"required,eqfield=Email"`
	Country        string  `validate:"required,country"`
	DurationMonths int     `validate:"required,license_duration"`
	PaymentToken   string  `validate:"required"`
	SubmittedTotal float64 `validate:"required,gt=0"`
	TermsAccepted  bool    `validate:"eq=true"`
}

// Gateway captures payment with the external processor.
type Gateway interface {
	ChargeOrder(ctx context.Context, name, email, token string, amountMinor int64, currency string) (*payment.Charge, error)
}

// Issuer renders and signs the license artifact.
type Issuer interface {
	Issue(d license.Data) (string, error)
}

// Notifier delivers the invoice to the buyer. Best effort only.
type Notifier interface {
	SendMail(to, subject, body string) error
}

// Config holds orchestrator tunables.
type Config struct {
	// IdempotencyWindow is the time bucket for the resubmission guard key.
	// Two submissions of the same token and amount inside one window are
	// the same transaction.
	IdempotencyWindow time.Duration
}

func ConfigFromEnv() Config {
	minutes := 15
	if v, err := strconv.Atoi(env.GetEnv("CHECKOUT_IDEMPOTENCY_WINDOW_MINUTES", "")); err == nil && v > 0 {
		minutes = v
	}
	return Config{IdempotencyWindow: time.Duration(minutes) * time.Minute}
}

// Result is the terminal outcome of one successful transaction.
type Result struct {
	Stage            Stage
	LicenseUUID      string
	TransactionRef   string
	InvoiceText      string
	NotificationSent bool
	// Resubmission is true when the idempotency guard matched a previous
	// transaction and no new charge was made.
	Resubmission bool
}

// Orchestrator runs the checkout pipeline: validate, quote, charge, issue,
// persist, notify. Stages run strictly in order and each failure maps to
// exactly one StageError.
type Orchestrator struct {
	calc     *pricing.Calculator
	gateway  Gateway
	issuer   Issuer
	repo     repository.LicenseRepository
	notifier Notifier
	cfg      Config

	validate *validator.Validate
	now      func() time.Time
}

func NewOrchestrator(
	calc *pricing.Calculator,
	gateway Gateway,
	issuer Issuer,
	repo repository.LicenseRepository,
	notifier Notifier,
	cfg Config,
) *Orchestrator {
	o := &Orchestrator{
		calc:     calc,
		gateway:  gateway,
		issuer:   issuer,
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
	}

	o.validate.RegisterValidation("country", func(fl validator.FieldLevel) bool {
		return countries.ByName(fl.Field().String()) != countries.Unknown
	})
	o.validate.RegisterValidation("license_duration", func(fl validator.FieldLevel) bool {
		return calc.DurationAllowed(int(fl.Field().Int()))
	})

	return o
}

// Process runs one order through the pipeline to a terminal state. Once
// payment capture begins the pipeline never abandons the transaction: every
// later failure returns a StageError carrying the charge reference so
// operators can reconcile manually.
func (o *Orchestrator) Process(ctx context.Context, req OrderRequest) (*Result, error) {
	// Received -> Validated
	if err := o.validateRequest(req); err != nil {
		return nil, &StageError{Stage: StageValidated, Err: err}
	}

	// Validated -> Quoted
	quote, err := o.calc.Quote(req.DurationMonths, req.Country)
	if err != nil {
		return nil, &StageError{Stage: StageQuoted, Err: err}
	}
	if !o.calc.Verify(req.SubmittedTotal, quote.TotalPrice) {
		return nil, &StageError{Stage: StageQuoted, Err: ErrPriceMismatch}
	}

	amountMinor := o.calc.MinorUnits(quote.TotalPrice)
	idemKey := IdempotencyKey(req.PaymentToken, amountMinor, o.now(), o.cfg.IdempotencyWindow)

	// Resubmission guard: the same token and amount inside the window is
	// the same transaction, so hand back the stored invoice instead of
	// charging the card again.
	existing, err := o.repo.GetByIdempotencyKey(idemKey)
	if err == nil {
		return &Result{
			Stage:          StageCompleted,
			LicenseUUID:    existing.UUID,
			TransactionRef: existing.TransactionRef,
			InvoiceText:    existing.InvoiceText,
			Resubmission:   true,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		// The store must be reachable before we touch the processor:
		// failing here is fatal but leaves nothing to reconcile.
		return nil, &StageError{Stage: StageCharged, Err: fmt.Errorf("resubmission check: %w", err)}
	}

	// Quoted -> Charged
	charge, err := o.gateway.ChargeOrder(ctx, req.Name, req.Email, req.PaymentToken, amountMinor, o.calc.Config().CurrencyCode)
	if err != nil {
		return nil, &StageError{Stage: StageCharged, Err: err}
	}

	// Charged -> Issued
	now := o.now()
	expiresAt := now.AddDate(0, req.DurationMonths, 0)
	blob, err := o.issuer.Issue(license.Data{
		CustomerName: req.Name,
		Email:        req.Email,
		Created:      now.Format("Mon Jan 02 2006"),
		Expires:      expiresAt.Format("Mon Jan 02 2006"),
	})
	if err != nil {
		return nil, &StageError{Stage: StageIssued, TransactionRef: charge.ChargeID, Err: err}
	}

	invoiceText := o.renderInvoice(req, quote, charge.ChargeID, blob)

	// Issued -> Persisted
	record := &models.License{
		Name:           req.Name,
		Email:          req.Email,
		ExpiresAt:      expiresAt,
		LicenseBlob:    blob,
		InvoiceText:    invoiceText,
		TransactionRef: charge.ChargeID,
		IdempotencyKey: idemKey,
	}
	if err := record.Validate(); err != nil {
		return nil, &StageError{Stage: StagePersisted, TransactionRef: charge.ChargeID, Err: err}
	}
	if err := o.repo.Create(record); err != nil {
		return nil, &StageError{Stage: StagePersisted, TransactionRef: charge.ChargeID, Err: err}
	}

	// Persisted -> Notified -> Completed. Mail failure never changes the
	// outcome; the buyer still gets the invoice on the completion page.
	result := &Result{
		Stage:            StageCompleted,
		LicenseUUID:      record.UUID,
		TransactionRef:   charge.ChargeID,
		InvoiceText:      invoiceText,
		NotificationSent: true,
	}
	subject := fmt.Sprintf("Your %s License", o.calc.Config().ProductName)
	if err := o.notifier.SendMail(req.Email, subject, invoiceText); err != nil {
		log.Printf("checkout: license %s persisted but mail to %s failed: %v", record.UUID, req.Email, err)
		result.NotificationSent = false
	}

	return result, nil
}

func (o *Orchestrator) validateRequest(req OrderRequest) error {
	err := o.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Field: "order", Message: err.Error()}}}
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "EmailConfirm":
		return "email addresses do not match"
	case "Country":
		return "please choose a country from the list"
	case "DurationMonths":
		return "please choose one of the offered license durations"
	case "TermsAccepted":
		return "you must accept the terms to continue"
	case "PaymentToken":
		return "payment details are missing"
	case "SubmittedTotal":
		return "the order total is missing"
	}

	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "please enter a valid email address"
	case "min", "max":
		return "value is outside the allowed length"
	default:
		return "invalid value"
	}
}

// renderInvoice produces the plain-text invoice: greeting, tax invoice
// block, line item, conditional tax line, total, then the license artifact.
func (o *Orchestrator) renderInvoice(req OrderRequest, quote pricing.Quote, transactionRef, licenseBlob string) string {
	cfg := o.calc.Config()

	lines := []string{
		"Hi " + req.Name + ",",
		"",
		"Thank you for your purchase.",
		"",
		"",
		"----------",
		"YOUR TAX INVOICE",
		"----------",
		"",
		"Transaction Reference: " + transactionRef,
		"Country: " + req.Country,
		"",
		fmt.Sprintf("1x %d months software license for %s - %s",
			quote.DurationMonths, cfg.ProductName, o.calc.FormatAmount(quote.PriceExcludingTax)),
	}
	if quote.TaxApplicable {
		lines = append(lines, fmt.Sprintf("%v%% %s - %s",
			cfg.TaxPercent, cfg.TaxName, o.calc.FormatAmount(quote.TaxAmount)))
	}
	lines = append(lines,
		"",
		"Total: "+o.calc.FormatAmount(quote.TotalPrice),
		"",
		"",
		"----------",
		"Copy and paste the below license into your application to apply it.",
		"----------",
		"",
		licenseBlob,
	)

	return strings.Join(lines, "\n")
}

// IdempotencyKey derives the resubmission guard key from the payment token,
// the amount in minor units and the time window bucket. The token alone is
// not enough: processors hand out one token per card entry, but a stale tab
// can resubmit the same token.
func IdempotencyKey(paymentToken string, amountMinor int64, now time.Time, window time.Duration) string {
	if window <= 0 {
		window = 15 * time.Minute
	}
	bucket := now.UTC().Truncate(window).Unix()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", paymentToken, amountMinor, bucket)))
	return hex.EncodeToString(sum[:])
}
