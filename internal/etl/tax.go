package etl

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"sales-insights/internal/models"
	"sales-insights/internal/reference"
)

var ErrInvalidTaxInput = errors.New("invalid tax input")

// TaxRules configure the GST-style calculation. CategoryRates keys are
// matched against the record category first and then as keywords inside
// the item name.
type TaxRules struct {
	HomeState     string
	DefaultRate   float64
	CategoryRates map[string]float64
}

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

type TaxCalculator struct {
	homeState string
	fallback  float64
	rates     map[string]float64
	keywords  []string
}

func NewTaxCalculator(rules TaxRules) *TaxCalculator {
	c := &TaxCalculator{
		homeState: reference.Key(rules.HomeState),
		fallback:  rules.DefaultRate,
		rates:     make(map[string]float64, len(rules.CategoryRates)),
	}
	for k, v := range rules.CategoryRates {
		key := reference.Key(k)
		if key == "" {
			continue
		}
		c.rates[key] = v
		c.keywords = append(c.keywords, key)
	}

	// Longest keyword first so "LED BULB" beats "BULB".
	slices.SortFunc(c.keywords, func(a, b string) int {
		if n := cmp.Compare(len(b), len(a)); n != 0 {
			return n
		}
		return strings.Compare(a, b)
	})
	return c
}

// RateFor picks the percentage rate for a record.
func (c *TaxCalculator) RateFor(tx models.Transaction) float64 {
	if r, ok := c.rates[reference.Key(tx.Category)]; ok {
		return r
	}
	item := reference.Key(tx.ItemName)
	for _, kw := range c.keywords {
		if strings.Contains(item, kw) {
			return c.rates[kw]
		}
	}
	return c.fallback
}

// Apply derives the tax fields of tx from its amount, category, item and
// state. The result depends only on those fields, so applying it again is a
// no-op. On failure the tax fields are zeroed and a *RowError is returned.
func (c *TaxCalculator) Apply(tx *models.Transaction) error {
	rate := c.RateFor(*tx)
	if err := checkTaxInput(tx.Amount, rate); err != nil {
		zeroTax(tx)
		return &RowError{Field: FieldAmount.String(), Err: err}
	}

	amount := decimal.NewFromFloat(tx.Amount)
	tax := amount.Mul(decimal.NewFromFloat(rate)).Div(hundred).Round(2)

	tx.TaxRate = rate
	tx.CGST, tx.SGST, tx.IGST = 0, 0, 0
	if c.homeState != "" && tx.State == c.homeState {
		half := tax.Div(two).Round(2)
		tx.CGST = half.InexactFloat64()
		tx.SGST = tax.Sub(half).InexactFloat64()
	} else {
		tx.IGST = tax.InexactFloat64()
	}
	tx.TaxAmount = tax.InexactFloat64()
	tx.GrossAmount = amount.Add(tax).Round(2).InexactFloat64()
	tx.TaxStatus = models.TaxComputed
	return nil
}

// ApplyAll taxes every record, isolating failures to the record that
// caused them.
func (c *TaxCalculator) ApplyAll(records []models.Transaction) (failed int, warnings []Warning) {
	for i := range records {
		if err := c.Apply(&records[i]); err != nil {
			failed++
			warnings = append(warnings, Warning{
				Stage:   StageTax,
				Field:   FieldAmount.String(),
				Message: fmt.Sprintf("invoice %s line %d: %v", records[i].InvoiceNo, records[i].LineNo, err),
			})
		}
	}
	return failed, warnings
}

func checkTaxInput(amount, rate float64) error {
	switch {
	case math.IsNaN(amount) || math.IsInf(amount, 0):
		return fmt.Errorf("%w: amount %v", ErrInvalidTaxInput, amount)
	case math.IsNaN(rate) || rate < 0 || rate > 100:
		return fmt.Errorf("%w: rate %v", ErrInvalidTaxInput, rate)
	}
	return nil
}

func zeroTax(tx *models.Transaction) {
	tx.TaxRate = 0
	tx.CGST, tx.SGST, tx.IGST = 0, 0, 0
	tx.TaxAmount = 0
	tx.GrossAmount = 0
	tx.TaxStatus = models.TaxError
}
