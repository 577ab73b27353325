package etl

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"sales-insights/internal/models"
	"sales-insights/internal/upload"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1200", 1200, false},
		{" 1,200.50 ", 1200.5, false},
		{"₹ 1,00,000", 100000, false},
		{"Rs. 450", 450, false},
		{"INR 99.9", 99.9, false},
		{"$15", 15, false},
		{"(250)", -250, false},
		{"-3", -3, false},
		{"", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNumber(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNumber(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{
		"2024-03-05",
		"2024-03-05 14:30:00",
		"05-03-2024",
		"5-3-2024",
		"05/03/2024",
		"05.03.2024",
		"05-Mar-2024",
		"5-mar-2024",
		"05-Mar-24",
		"5 Mar 2024",
		"Mar 5, 2024",
		"45356",
	} {
		got, err := ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q) error = %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}

	for _, in := range []string{"", "yesterday", "31/02/2024", "12"} {
		if _, err := ParseDate(in); err == nil {
			t.Errorf("ParseDate(%q) expected an error", in)
		}
	}
}

func TestFiscalPeriod(t *testing.T) {
	tests := []struct {
		date        time.Time
		start       time.Month
		wantYear    string
		wantQuarter string
	}{
		{time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), time.April, "FY2024-25", "Q1"},
		{time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), time.April, "FY2024-25", "Q3"},
		{time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), time.April, "FY2024-25", "Q4"},
		{time.Date(2099, time.June, 1, 0, 0, 0, 0, time.UTC), time.April, "FY2099-00", "Q1"},
		{time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC), time.January, "FY2024", "Q3"},
		{time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC), time.July, "FY2024-25", "Q1"},
	}

	for _, tt := range tests {
		year, quarter := FiscalPeriod(tt.date, tt.start)
		if year != tt.wantYear || quarter != tt.wantQuarter {
			t.Errorf("FiscalPeriod(%s, %s) = %s %s, want %s %s",
				tt.date.Format(time.DateOnly), tt.start, year, quarter, tt.wantYear, tt.wantQuarter)
		}
	}
}

func frameOf(t *testing.T, header []string, rows ...[]string) Frame {
	t.Helper()
	frame, _, err := NewNormalizer().Normalize(upload.Table{Source: "test.csv", Header: header, Rows: rows})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return frame
}

func TestCleaner_Clean(t *testing.T) {
	frame := frameOf(t,
		[]string{"Invoice No", "Customer", "Item", "Qty", "Rate", "Amount", "Date", "City"},
		[]string{"INV-1", "acme  traders", "Widget", "2", "50", "100", "2024-05-01", "pune"},
		[]string{"INV-1", "Acme Traders", "Gadget", "3", "", "90", "2024-05-01", ""},
		[]string{"INV-2", "Zenith", "Bolt", "4", "2.5", "", "02/05/2024", ""},
		[]string{"INV-3", "Zenith", "Nut", "1", "", "-5", "2024-05-03", ""},
		[]string{"INV-4", "Zenith", "Screw", "1", "", "10", "not a date", ""},
		[]string{"INV-5", "Zenith", "", "", "", "", "2024-05-03", ""},
		[]string{"", "", "Washer", "x", "", "7", "2024-05-04", ""},
	)

	records, warnings := NewCleaner(4).Clean(frame)

	if len(records) != 4 {
		t.Fatalf("expected 4 surviving records, got %d", len(records))
	}

	first := records[0]
	if first.CustomerName != "ACME TRADERS" || first.City != "PUNE" || first.LineNo != 1 {
		t.Errorf("unexpected first record %+v", first)
	}
	if first.Month != "2024-05" || first.FiscalYear != "FY2024-25" || first.FiscalQuarter != "Q1" {
		t.Errorf("unexpected calendar fields %s %s %s", first.Month, first.FiscalYear, first.FiscalQuarter)
	}

	if records[1].LineNo != 2 || records[1].Rate != 30 {
		t.Errorf("expected second INV-1 line with derived rate 30, got line %d rate %v", records[1].LineNo, records[1].Rate)
	}
	if records[2].Amount != 10 {
		t.Errorf("expected amount derived from qty*rate, got %v", records[2].Amount)
	}

	auto := records[3]
	if auto.InvoiceNo != "AUTO-20240504-UNKNOWN_CUSTOMER" || auto.CustomerName != models.UnknownCustomer {
		t.Errorf("unexpected synthesized identity %q %q", auto.InvoiceNo, auto.CustomerName)
	}
	if auto.Quantity != 0 {
		t.Errorf("unparseable quantity should read as 0, got %v", auto.Quantity)
	}

	// negative amount, bad date, filler row, bad quantity
	if len(warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %d: %v", len(warnings), warnings)
	}
	if w := warnings[0]; w.Row != 4 || w.Field != "AMOUNT" || w.Stage != StageClean {
		t.Errorf("unexpected negative-amount warning %+v", w)
	}
	if w := warnings[1]; w.Row != 5 || w.Field != "DATE" {
		t.Errorf("unexpected date warning %+v", w)
	}
	if w := warnings[3]; w.Row != 7 || w.Field != "QTY" {
		t.Errorf("unexpected quantity warning %+v", w)
	}
}

func TestCleaner_MissingAmountWithoutQuantity(t *testing.T) {
	frame := frameOf(t,
		[]string{"Item", "Amount", "Date"},
		[]string{"Widget", "", "2024-05-01"},
	)

	records, warnings := NewCleaner(4).Clean(frame)
	if len(records) != 0 || len(warnings) != 1 {
		t.Fatalf("expected the row to be dropped with one warning, got %d records %v", len(records), warnings)
	}
	if warnings[0].Field != "AMOUNT" || warnings[0].Message != ErrBlank.Error() {
		t.Errorf("unexpected warning message %q", warnings[0].Message)
	}
}

func TestCleaner_WorkbookDateCells(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{"Invoice No", "Item Name", "Amount", "Date"},
		{"INV-1", "Cooler", 4500, time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC)},
		{"INV-2", "Fan", 1250, time.Date(2024, time.April, 16, 0, 0, 0, 0, time.UTC)},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	shortDate, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellStyle("Sheet1", "D2", "D3", shortDate); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	table, err := upload.Decode("April.xlsx", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	frame, _, err := NewNormalizer().Normalize(table)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	records, warnings := NewCleaner(4).Clean(frame)
	if len(records) != 2 || len(warnings) != 0 {
		t.Fatalf("kept %d rows with warnings %v", len(records), warnings)
	}
	for i, want := range []time.Time{
		time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.April, 16, 0, 0, 0, 0, time.UTC),
	} {
		if !records[i].Date.Equal(want) {
			t.Errorf("record %d date = %v, want %v", i, records[i].Date, want)
		}
	}
}
