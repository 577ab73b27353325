package etl

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"sales-insights/internal/models"
	"sales-insights/internal/reference"
)

var (
	ErrNotNumber = errors.New("not a number")
	ErrNotDate   = errors.New("not a recognizable date")
	ErrBlank     = errors.New("value is blank")
	ErrNegative  = errors.New("value is negative")
)

// Excel serial day numbers between 2000-01-01 and 2099-12-31.
const (
	minExcelSerial = 36526
	maxExcelSerial = 73051
)

var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02-01-2006",
	"2-1-2006",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"02-01-2006 15:04:05",
	"02/01/2006 15:04:05",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

var currencyPrefixes = []string{"INR", "RS.", "RS", "₹", "$"}

var numberNoise = strings.NewReplacer(",", "", " ", "", "\u00a0", "", "₹", "", "$", "")

// ParseNumber coerces a spreadsheet cell to a number. Currency prefixes,
// thousands separators (including Indian digit grouping) and accounting
// parentheses for negatives are accepted.
func ParseNumber(s string) (float64, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, ErrBlank
	}

	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = strings.TrimSpace(v[1 : len(v)-1])
	}

	upper := strings.ToUpper(v)
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(upper, p) {
			v = v[len(p):]
			break
		}
	}

	f, err := strconv.ParseFloat(numberNoise.Replace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q: %w", s, ErrNotNumber)
	}
	if negative {
		f = -f
	}
	return f, nil
}

func isNumber(s string) bool {
	_, err := ParseNumber(s)
	return err == nil
}

// ParseDate accepts ISO, day-first and month-name layouts as well as Excel
// serial day numbers.
func ParseDate(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, ErrBlank
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return truncateDay(t), nil
		}
	}

	if t, ok := excelSerial(v); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%q: %w", s, ErrNotDate)
}

func looksLikeDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

func isSerialDay(v string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil && f == math.Trunc(f) && f >= minExcelSerial && f <= maxExcelSerial
}

func excelSerial(v string) (time.Time, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < minExcelSerial || f > maxExcelSerial {
		return time.Time{}, false
	}
	return excelEpoch.AddDate(0, 0, int(f)), true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FiscalPeriod labels the fiscal year and quarter containing t for a
// fiscal year starting in month start. Years starting in January are
// labelled "FY2024"; others span two calendar years, "FY2024-25".
func FiscalPeriod(t time.Time, start time.Month) (year, quarter string) {
	if start < time.January || start > time.December {
		start = time.April
	}

	fy := t.Year()
	if t.Month() < start {
		fy--
	}

	if start == time.January {
		year = fmt.Sprintf("FY%d", fy)
	} else {
		year = fmt.Sprintf("FY%d-%02d", fy, (fy+1)%100)
	}

	q := (int(t.Month())-int(start)+12)%12/3 + 1
	return year, fmt.Sprintf("Q%d", q)
}

// Cleaner coerces normalized rows into transactions. Invalid rows are
// dropped and reported; a bad row never stops the rest.
type Cleaner struct {
	fiscalStart time.Month
}

func NewCleaner(fiscalStartMonth int) *Cleaner {
	start := time.Month(fiscalStartMonth)
	if start < time.January || start > time.December {
		start = time.April
	}
	return &Cleaner{fiscalStart: start}
}

// Clean returns the surviving transactions in input order together with
// one warning per dropped row and per recovered problem. Line numbers are
// assigned per invoice after filtering.
func (c *Cleaner) Clean(frame Frame) ([]models.Transaction, []Warning) {
	records := make([]models.Transaction, 0, len(frame.Rows))
	var warnings []Warning

	lines := make(map[string]int)
	for _, row := range frame.Rows {
		tx, notes, err := c.cleanRow(row)
		for _, n := range notes {
			warnings = append(warnings, rowWarning(StageClean, row, n))
		}
		if err != nil {
			warnings = append(warnings, rowWarning(StageClean, row, err))
			continue
		}

		lines[tx.InvoiceNo]++
		tx.LineNo = lines[tx.InvoiceNo]
		records = append(records, tx)
	}
	return records, warnings
}

func (c *Cleaner) cleanRow(row Row) (models.Transaction, []*RowError, error) {
	var notes []*RowError

	item := strings.Join(strings.Fields(row.Get(FieldItem)), " ")
	rawAmount := row.Get(FieldAmount)
	if item == "" {
		if amt, err := ParseNumber(rawAmount); err != nil || amt == 0 {
			return models.Transaction{}, nil, &RowError{Err: errors.New("blank filler row dropped")}
		}
		return models.Transaction{}, nil, &RowError{Field: FieldItem.String(), Err: ErrBlank}
	}

	date, err := ParseDate(row.Get(FieldDate))
	if err != nil {
		return models.Transaction{}, nil, &RowError{Field: FieldDate.String(), Err: err}
	}

	qty, qtyOK := 0.0, false
	if raw := row.Get(FieldQuantity); raw != "" {
		if qty, err = ParseNumber(raw); err != nil {
			notes = append(notes, &RowError{Field: FieldQuantity.String(), Err: err})
			qty = 0
		} else {
			qtyOK = true
		}
	}

	rate, rateOK := 0.0, false
	if raw := row.Get(FieldRate); raw != "" {
		if rate, err = ParseNumber(raw); err != nil {
			notes = append(notes, &RowError{Field: FieldRate.String(), Err: err})
			rate = 0
		} else {
			rateOK = true
		}
	}

	var amount float64
	switch {
	case rawAmount != "":
		if amount, err = ParseNumber(rawAmount); err != nil {
			return models.Transaction{}, notes, &RowError{Field: FieldAmount.String(), Err: err}
		}
	case qtyOK && rateOK:
		amount = qty * rate
	default:
		return models.Transaction{}, notes, &RowError{Field: FieldAmount.String(), Err: ErrBlank}
	}
	if amount < 0 {
		return models.Transaction{}, notes, &RowError{Field: FieldAmount.String(), Err: fmt.Errorf("%v: %w", amount, ErrNegative)}
	}
	if !rateOK && qtyOK && qty != 0 {
		rate = amount / qty
	}

	customer := reference.Key(row.Get(FieldCustomer))
	if customer == "" {
		customer = models.UnknownCustomer
	}

	invoice := strings.TrimSpace(row.Get(FieldInvoice))
	if invoice == "" {
		invoice = syntheticInvoice(customer, date)
	}

	fy, fq := FiscalPeriod(date, c.fiscalStart)

	return models.Transaction{
		InvoiceNo:     invoice,
		CustomerName:  customer,
		ItemName:      item,
		Category:      reference.Key(row.Get(FieldCategory)),
		Quantity:      qty,
		Rate:          rate,
		Amount:        amount,
		Date:          date,
		State:         reference.Key(row.Get(FieldState)),
		City:          reference.Key(row.Get(FieldCity)),
		District:      reference.Key(row.Get(FieldDistrict)),
		Town:          reference.Key(row.Get(FieldTown)),
		Year:          date.Year(),
		Month:         date.Format("2006-01"),
		FiscalYear:    fy,
		FiscalQuarter: fq,
	}, notes, nil
}

func syntheticInvoice(customer string, date time.Time) string {
	return "AUTO-" + date.Format("20060102") + "-" + strings.ReplaceAll(customer, " ", "_")
}

func rowWarning(stage Stage, row Row, err error) Warning {
	w := Warning{Stage: stage, Source: row.Source, Row: row.Line, Message: err.Error()}
	var rowErr *RowError
	if errors.As(err, &rowErr) {
		w.Field = rowErr.Field
		w.Message = rowErr.Err.Error()
	}
	return w
}
