package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/FrederikMaler/LicenseBay/internal/pkg/env"
)

// ErrInvalidDuration is returned when the requested license duration is not
// one of the offered durations.
var ErrInvalidDuration = errors.New("pricing: duration not offered")

// Config holds everything needed to price a license. It is built once at
// startup and passed in; the calculator itself never reads the environment.
type Config struct {
	CurrencyCode     string
	CurrencySymbol   string
	CurrencyDecimals int

	PricePerMonth float64
	// Discount granted per month after the first, in percent.
	DiscountPerAdditionalMonthPercent float64
	DiscountMaxPercent                float64

	TaxPercent float64
	TaxCountry string
	TaxName    string

	ProductName      string
	AllowedDurations []int
}

// ConfigFromEnv builds a pricing config from the process environment.
func ConfigFromEnv() Config {
	return Config{
		CurrencyCode:                      env.GetEnv("CURRENCY_CODE", "usd"),
		CurrencySymbol:                    env.GetEnv("CURRENCY_SYMBOL", "$"),
		CurrencyDecimals:                  envInt("CURRENCY_DECIMALS", 2),
		PricePerMonth:                     envFloat("LICENSE_PRICE_PER_MONTH", 10),
		DiscountPerAdditionalMonthPercent: envFloat("LICENSE_DISCOUNT_PER_ADDITIONAL_MONTH_PERCENT", 2),
		DiscountMaxPercent:                envFloat("LICENSE_DISCOUNT_PERCENT_MAX", 20),
		TaxPercent:                        envFloat("TAX_PERCENT", 10),
		TaxCountry:                        env.GetEnv("TAX_COUNTRY", "Australia"),
		TaxName:                           env.GetEnv("TAX_NAME", "GST"),
		ProductName:                       env.GetEnv("PRODUCT_NAME", "LicenseBay"),
		AllowedDurations:                  []int{6, 12, 24},
	}
}

// Validate rejects configs that would produce nonsense prices. A negative
// decimals value in particular has no defined rounding behavior.
func (c Config) Validate() error {
	if c.PricePerMonth <= 0 {
		return fmt.Errorf("pricing: price per month must be positive, got %v", c.PricePerMonth)
	}
	if c.CurrencyDecimals < 0 {
		return fmt.Errorf("pricing: currency decimals must be >= 0, got %d", c.CurrencyDecimals)
	}
	if c.DiscountPerAdditionalMonthPercent < 0 || c.DiscountPerAdditionalMonthPercent > 100 {
		return fmt.Errorf("pricing: discount per month out of range: %v", c.DiscountPerAdditionalMonthPercent)
	}
	if c.DiscountMaxPercent < 0 || c.DiscountMaxPercent > 100 {
		return fmt.Errorf("pricing: max discount out of range: %v", c.DiscountMaxPercent)
	}
	if c.TaxPercent < 0 || c.TaxPercent > 100 {
		return fmt.Errorf("pricing: tax percent out of range: %v", c.TaxPercent)
	}
	if len(c.AllowedDurations) == 0 {
		return errors.New("pricing: no allowed durations configured")
	}
	return nil
}

// Quote is the authoritative server-side price for one order.
type Quote struct {
	DurationMonths    int
	Country           string
	DiscountPercent   float64
	TaxApplicable     bool
	TaxAmount         float64
	PriceExcludingTax float64
	TotalPrice        float64
}

// Calculator computes quotes from an immutable config. It holds no other
// state, so quotes are deterministic and safe to compute concurrently.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg}, nil
}

// Config returns the pricing config the calculator was built with.
func (c *Calculator) Config() Config {
	return c.cfg
}

// Quote prices a license of the given duration for a buyer in the given
// country. The first month is never discounted, the discount is capped at
// the configured maximum, and tax applies only in the configured tax country.
func (c *Calculator) Quote(durationMonths int, country string) (Quote, error) {
	if !c.DurationAllowed(durationMonths) {
		return Quote{}, ErrInvalidDuration
	}

	discount := float64(durationMonths-1) * c.cfg.DiscountPerAdditionalMonthPercent
	if discount > c.cfg.DiscountMaxPercent {
		discount = c.cfg.DiscountMaxPercent
	}

	gross := c.cfg.PricePerMonth * float64(durationMonths)
	exclTax := gross - gross*discount/100

	taxApplicable := country == c.cfg.TaxCountry
	tax := 0.0
	if taxApplicable {
		tax = exclTax * c.cfg.TaxPercent / 100
	}

	q := Quote{
		DurationMonths:    durationMonths,
		Country:           country,
		DiscountPercent:   discount,
		TaxApplicable:     taxApplicable,
		TaxAmount:         c.Round(tax),
		PriceExcludingTax: c.Round(exclTax),
	}
	// Total is derived from the already-rounded parts so it can never be a
	// cent off from what the invoice displays.
	q.TotalPrice = c.Round(q.PriceExcludingTax + q.TaxAmount)
	return q, nil
}

// Verify reports whether a client-submitted total matches the recomputed
// total. Both sides are rounded to the configured precision first, so this
// is not a raw float equality.
func (c *Calculator) Verify(submittedTotal, total float64) bool {
	return c.Round(submittedTotal) == c.Round(total)
}

// DurationAllowed reports whether the duration is one of the offered ones.
func (c *Calculator) DurationAllowed(durationMonths int) bool {
	for _, d := range c.cfg.AllowedDurations {
		if d == durationMonths {
			return true
		}
	}
	return false
}

// MinorUnits converts an amount to the currency's minor units (e.g. cents)
// for the payment processor, which does not accept fractional amounts.
func (c *Calculator) MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * math.Pow10(c.cfg.CurrencyDecimals)))
}

// Round rounds to the configured number of currency decimals.
func (c *Calculator) Round(v float64) float64 {
	p := math.Pow10(c.cfg.CurrencyDecimals)
	return math.Round(v*p) / p
}

// FormatAmount renders an amount with the currency symbol, e.g. "$96.00".
func (c *Calculator) FormatAmount(v float64) string {
	return fmt.Sprintf("%s%.*f", c.cfg.CurrencySymbol, c.cfg.CurrencyDecimals, v)
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(env.GetEnv(key, ""), 64); err == nil {
		return v
	}
	return def
}
