package services

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sales-insights/internal/models"
)

func sale(customer, item string, amount float64) models.Transaction {
	return models.Transaction{
		InvoiceNo:    customer + "-" + item,
		CustomerName: customer,
		ItemName:     item,
		Amount:       amount,
		Date:         baseDate,
	}
}

func TestComputePareto_EightyTwenty(t *testing.T) {
	records := []models.Transaction{sale("BIG ONE", "A", 400), sale("BIG TWO", "A", 400)}
	for i := range 8 {
		records = append(records, sale(fmt.Sprintf("SMALL %d", i), "B", 25))
	}

	got, err := ComputePareto(records, GroupByCustomer, 0)
	if err != nil {
		t.Fatalf("ComputePareto() error = %v", err)
	}

	if got.TotalKeys != 10 || got.TopCount != 2 {
		t.Errorf("keys/top = %d/%d, want 10/2", got.TotalKeys, got.TopCount)
	}
	if math.Abs(got.TopSharePercent-80) > 1e-9 {
		t.Errorf("top share = %v, want 80", got.TopSharePercent)
	}
	if got.Entries[0].Key != "BIG ONE" || got.Entries[1].Key != "BIG TWO" {
		t.Errorf("unexpected leaders %q, %q", got.Entries[0].Key, got.Entries[1].Key)
	}
	if last := got.Entries[len(got.Entries)-1].CumulativeShare; math.Abs(last-100) > 1e-9 {
		t.Errorf("final cumulative share = %v, want 100", last)
	}
}

func TestComputePareto_Properties(t *testing.T) {
	records := randomRecords(25, 400)

	for _, by := range []GroupBy{GroupByCustomer, GroupByProduct} {
		t.Run(string(by), func(t *testing.T) {
			got, err := ComputePareto(records, by, 0)
			if err != nil {
				t.Fatalf("ComputePareto() error = %v", err)
			}
			prev := 0.0
			for i, e := range got.Entries {
				if i > 0 && e.Amount > got.Entries[i-1].Amount {
					t.Errorf("entry %d (%v) is larger than entry %d", i, e.Amount, i-1)
				}
				if e.CumulativeShare < prev {
					t.Errorf("cumulative share decreased at %d", i)
				}
				prev = e.CumulativeShare
			}
			if math.Abs(prev-100) > 1e-6 {
				t.Errorf("final cumulative share = %v, want ~100", prev)
			}
		})
	}
}

func TestComputePareto_TiesAreStable(t *testing.T) {
	records := []models.Transaction{
		sale("CHARLIE", "X", 50),
		sale("ALPHA", "X", 50),
		sale("BRAVO", "X", 50),
		sale("DELTA", "X", 80),
	}

	got, err := ComputePareto(records, GroupByCustomer, 0)
	if err != nil {
		t.Fatalf("ComputePareto() error = %v", err)
	}

	var keys []string
	for _, e := range got.Entries {
		keys = append(keys, e.Key)
	}
	if diff := cmp.Diff([]string{"DELTA", "ALPHA", "BRAVO", "CHARLIE"}, keys); diff != "" {
		t.Errorf("entry order mismatch (-want +got):\n%s", diff)
	}
}

func TestComputePareto_GroupByProduct(t *testing.T) {
	records := []models.Transaction{
		sale("A", "BOLT", 10),
		sale("B", "BOLT", 30),
		sale("A", "NUT", 5),
	}

	got, err := ComputePareto(records, GroupByProduct, 0)
	if err != nil {
		t.Fatalf("ComputePareto() error = %v", err)
	}

	want := []models.ParetoEntry{
		{Key: "BOLT", Amount: 40, SharePercent: 40.0 / 45 * 100, CumulativeShare: 40.0 / 45 * 100},
		{Key: "NUT", Amount: 5, SharePercent: 5.0 / 45 * 100, CumulativeShare: 45.0 / 45 * 100},
	}
	if diff := cmp.Diff(want, got.Entries, cmpFloat); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if got.GroupBy != "product" {
		t.Errorf("group by = %q, want product", got.GroupBy)
	}
}

func TestComputePareto_Limit(t *testing.T) {
	records := randomRecords(30, 300)

	full, err := ComputePareto(records, GroupByCustomer, 0)
	if err != nil {
		t.Fatalf("ComputePareto() error = %v", err)
	}
	limited, err := ComputePareto(records, GroupByCustomer, 5)
	if err != nil {
		t.Fatalf("ComputePareto() error = %v", err)
	}

	if len(limited.Entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(limited.Entries))
	}
	if diff := cmp.Diff(full.Entries[:5], limited.Entries); diff != "" {
		t.Errorf("limited entries differ from the head of the full list:\n%s", diff)
	}
	if limited.TopCount != full.TopCount || limited.TopSharePercent != full.TopSharePercent {
		t.Error("limit should not change the 80/20 insight")
	}
}

func TestComputePareto_ZeroTotal(t *testing.T) {
	if _, err := ComputePareto(nil, GroupByCustomer, 0); !errors.Is(err, ErrZeroTotal) {
		t.Errorf("expected ErrZeroTotal for no records, got %v", err)
	}
	records := []models.Transaction{sale("A", "X", 0), sale("B", "X", 0)}
	if _, err := ComputePareto(records, GroupByCustomer, 0); !errors.Is(err, ErrZeroTotal) {
		t.Errorf("expected ErrZeroTotal for zero amounts, got %v", err)
	}
}

func TestParseGroupBy(t *testing.T) {
	tests := []struct {
		in      string
		want    GroupBy
		wantErr bool
	}{
		{"", GroupByCustomer, false},
		{"customer", GroupByCustomer, false},
		{" Product ", GroupByProduct, false},
		{"region", "", true},
	}
	for _, tt := range tests {
		got, err := ParseGroupBy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGroupBy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrUnknownGroupBy) {
			t.Errorf("ParseGroupBy(%q) error should wrap ErrUnknownGroupBy", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParseGroupBy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
