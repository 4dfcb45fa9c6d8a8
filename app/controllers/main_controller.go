package controllers

import (
	"sort"

	"github.com/biter777/countries"
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
)

// HandleHome renders the order form: country list, the offered durations
// with their precomputed totals, and any flashed validation errors from a
// rejected submission.
func HandleHome(c *fiber.Ctx) error {
	cfg := priceCalc.Config()

	return c.Render("pages/index", fiber.Map{
		"ProductName":    cfg.ProductName,
		"CurrencySymbol": cfg.CurrencySymbol,
		"TaxPercent":     cfg.TaxPercent,
		"TaxName":        cfg.TaxName,
		"TaxCountry":     cfg.TaxCountry,
		"Countries":      countryNames(),
		"Durations":      durationOptions(),
		"Flash":          flash.Get(c),
	})
}

type durationOption struct {
	Months        int
	Total         float64 // excluding tax
	TotalWithTax  float64 // what a buyer in the tax country pays
	FormattedText string
}

func durationOptions() []durationOption {
	cfg := priceCalc.Config()
	opts := make([]durationOption, 0, len(cfg.AllowedDurations))
	for _, months := range cfg.AllowedDurations {
		untaxed, err := priceCalc.Quote(months, "")
		if err != nil {
			continue
		}
		taxed, err := priceCalc.Quote(months, cfg.TaxCountry)
		if err != nil {
			continue
		}
		opts = append(opts, durationOption{
			Months:        months,
			Total:         untaxed.TotalPrice,
			TotalWithTax:  taxed.TotalPrice,
			FormattedText: priceCalc.FormatAmount(untaxed.TotalPrice),
		})
	}
	return opts
}

func countryNames() []string {
	all := countries.All()
	names := make([]string, 0, len(all))
	for _, country := range all {
		names = append(names, country.String())
	}
	sort.Strings(names)
	return names
}
