package etl

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"sales-insights/internal/models"
	"sales-insights/internal/reference"
)

func TestEnricher_MasterMissKeepsRow(t *testing.T) {
	master := reference.NewCustomerMaster("master.csv", map[string]string{"Acme Traders": "Maharashtra"})
	records := []models.Transaction{
		{CustomerName: "ACME TRADERS", State: "GOA"},
		{CustomerName: "NEW CLIENT", State: "KERALA"},
	}

	stats, warnings := NewEnricher(master).Enrich(records)

	if len(warnings) != 0 {
		t.Errorf("a master miss is not a warning, got %v", warnings)
	}
	if stats.Matched != 1 || stats.Misses != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if diff := cmp.Diff([]string{"MAHARASHTRA", models.StateNotFound}, []string{records[0].State, records[1].State}); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestEnricher_WithoutMaster(t *testing.T) {
	records := []models.Transaction{{State: "goa"}, {State: ""}}

	stats, warnings := NewEnricher(nil).Enrich(records)

	if !stats.Skipped || len(warnings) != 1 {
		t.Fatalf("expected a skipped pass with one warning, got %+v %v", stats, warnings)
	}
	if records[0].State != "GOA" || records[1].State != models.StateNotFound {
		t.Errorf("unexpected states %q %q", records[0].State, records[1].State)
	}
}
