package pricing

import (
	"errors"
	"testing"
)

func testConfig() Config {
	return Config{
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
	}
}

func TestQuote(t *testing.T) {
	calc, err := NewCalculator(testConfig())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}

	tests := []struct {
		name     string
		months   int
		country  string
		discount float64
		exclTax  float64
		tax      float64
		total    float64
	}{
		{name: "12 months no tax", months: 12, country: "United States", discount: 20, exclTax: 96.00, tax: 0, total: 96.00},
		{name: "12 months tax country", months: 12, country: "Australia", discount: 20, exclTax: 96.00, tax: 9.60, total: 105.60},
		{name: "6 months no tax", months: 6, country: "United States", discount: 10, exclTax: 54.00, tax: 0, total: 54.00},
		{name: "24 months discount capped", months: 24, country: "United States", discount: 20, exclTax: 192.00, tax: 0, total: 192.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := calc.Quote(tt.months, tt.country)
			if err != nil {
				t.Fatalf("Quote(%d, %q): %v", tt.months, tt.country, err)
			}
			if q.DiscountPercent != tt.discount {
				t.Errorf("discount = %v, want %v", q.DiscountPercent, tt.discount)
			}
			if q.PriceExcludingTax != tt.exclTax {
				t.Errorf("price excl tax = %v, want %v", q.PriceExcludingTax, tt.exclTax)
			}
			if q.TaxAmount != tt.tax {
				t.Errorf("tax = %v, want %v", q.TaxAmount, tt.tax)
			}
			if q.TotalPrice != tt.total {
				t.Errorf("total = %v, want %v", q.TotalPrice, tt.total)
			}
			if q.TaxApplicable != (tt.tax > 0) {
				t.Errorf("tax applicable = %v with tax %v", q.TaxApplicable, tt.tax)
			}
		})
	}
}

func TestQuoteDeterministic(t *testing.T) {
	calc, _ := NewCalculator(testConfig())
	first, err := calc.Quote(12, "Australia")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := calc.Quote(12, "Australia")
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("quote changed between calls: %+v vs %+v", again, first)
		}
	}
}

func TestQuoteInvalidDuration(t *testing.T) {
	calc, _ := NewCalculator(testConfig())
	for _, months := range []int{0, 1, 7, 36, -6} {
		if _, err := calc.Quote(months, "Australia"); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("Quote(%d) error = %v, want ErrInvalidDuration", months, err)
		}
	}
}

func TestDiscountNeverExceedsMax(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedDurations = []int{6, 12, 24, 48, 120}
	calc, _ := NewCalculator(cfg)
	for _, months := range cfg.AllowedDurations {
		q, err := calc.Quote(months, "United States")
		if err != nil {
			t.Fatal(err)
		}
		if q.DiscountPercent > cfg.DiscountMaxPercent {
			t.Errorf("%d months: discount %v exceeds max %v", months, q.DiscountPercent, cfg.DiscountMaxPercent)
		}
	}
}

func TestVerify(t *testing.T) {
	calc, _ := NewCalculator(testConfig())
	q, _ := calc.Quote(12, "Australia")

	if !calc.Verify(105.60, q.TotalPrice) {
		t.Error("expected exact total to verify")
	}
	if !calc.Verify(105.6000001, q.TotalPrice) {
		t.Error("expected sub-cent noise to verify after rounding")
	}
	if calc.Verify(105.59, q.TotalPrice) {
		t.Error("expected a one-cent mismatch to be rejected")
	}
	if calc.Verify(96.00, q.TotalPrice) {
		t.Error("expected the untaxed total to be rejected for a taxed quote")
	}
}

func TestMinorUnits(t *testing.T) {
	calc, _ := NewCalculator(testConfig())
	tests := []struct {
		amount float64
		want   int64
	}{
		{105.60, 10560},
		{96.00, 9600},
		{54.00, 5400},
		{0.1 + 0.2, 30}, // float noise must not shift a cent
	}
	for _, tt := range tests {
		if got := calc.MinorUnits(tt.amount); got != tt.want {
			t.Errorf("MinorUnits(%v) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.PricePerMonth = 0 },
		func(c *Config) { c.CurrencyDecimals = -1 },
		func(c *Config) { c.DiscountMaxPercent = 150 },
		func(c *Config) { c.TaxPercent = -5 },
		func(c *Config) { c.AllowedDurations = nil },
	}
	for i, mutate := range bad {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := NewCalculator(cfg); err == nil {
			t.Errorf("case %d: expected config to be rejected", i)
		}
	}
}
