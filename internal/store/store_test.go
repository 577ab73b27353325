package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"sales-insights/internal/config"
	"sales-insights/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecords() []models.Transaction {
	day := func(d int) time.Time { return time.Date(2024, time.May, d, 0, 0, 0, 0, time.UTC) }
	return []models.Transaction{
		{
			InvoiceNo: "INV-2", LineNo: 1, CustomerName: "ZENITH", ItemName: "Bolt",
			Quantity: 4, Rate: 2.5, Amount: 10, Date: day(3), State: "GOA",
			Year: 2024, Month: "2024-05", FiscalYear: "FY2024-25", FiscalQuarter: "Q1",
			TaxRate: 18, IGST: 1.8, TaxAmount: 1.8, GrossAmount: 11.8, TaxStatus: models.TaxComputed,
		},
		{
			InvoiceNo: "INV-1", LineNo: 2, CustomerName: "ACME", ItemName: "Gadget", Category: "TOOLS",
			Quantity: 3, Rate: 30, Amount: 90, Date: day(1), State: "MAHARASHTRA", City: "PUNE",
			Year: 2024, Month: "2024-05", FiscalYear: "FY2024-25", FiscalQuarter: "Q1",
			TaxRate: 18, CGST: 8.1, SGST: 8.1, TaxAmount: 16.2, GrossAmount: 106.2, TaxStatus: models.TaxComputed,
		},
		{
			InvoiceNo: "INV-1", LineNo: 1, CustomerName: "ACME", ItemName: "Widget",
			Quantity: 2, Rate: 50, Amount: 100, Date: day(1), State: "MAHARASHTRA",
			Year: 2024, Month: "2024-05", FiscalYear: "FY2024-25", FiscalQuarter: "Q1",
			TaxRate: 18, CGST: 9, SGST: 9, TaxAmount: 18, GrossAmount: 118, TaxStatus: models.TaxComputed,
		},
	}
}

// exerciseStore runs the shared contract against a backend.
func exerciseStore(t *testing.T, s Store, tenant string) {
	t.Helper()
	ctx := context.Background()

	empty, err := s.Load(ctx, tenant)
	if err != nil {
		t.Fatalf("Load() on unknown tenant error = %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no records for a new tenant, got %d", len(empty))
	}

	records := sampleRecords()
	res, err := s.Write(ctx, tenant, records)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if diff := cmp.Diff(models.WriteResult{Written: len(records)}, res); diff != "" {
		t.Errorf("Write() mismatch (-want +got):\n%s", diff)
	}

	got, err := s.Load(ctx, tenant)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []models.Transaction{records[2], records[1], records[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	// Same (invoice, line) replaces the stored row.
	updated := records[0]
	updated.Amount = 12
	res, err = s.Write(ctx, tenant, []models.Transaction{updated})
	if err != nil {
		t.Fatalf("Write() upsert error = %v", err)
	}
	if res.Written != 1 || res.Replaced != 1 {
		t.Errorf("upsert should report one replaced row, got %+v", res)
	}
	got, _ = s.Load(ctx, tenant)
	if len(got) != 3 || got[2].Amount != 12 {
		t.Errorf("expected upsert to replace INV-2/1, got %+v", got)
	}

	other := tenant + "-other"
	if _, err := s.Write(ctx, other, records[:1]); err != nil {
		t.Fatalf("Write() other tenant error = %v", err)
	}
	if got, _ := s.Load(ctx, tenant); len(got) != 3 {
		t.Errorf("tenants must be isolated, got %d records", len(got))
	}

	tenants, err := s.Tenants(ctx)
	if err != nil {
		t.Fatalf("Tenants() error = %v", err)
	}
	counts := map[string]int{}
	for _, ts := range tenants {
		counts[ts.Tenant] = ts.Records
	}
	if counts[tenant] != 3 || counts[other] != 1 {
		t.Errorf("unexpected tenant counts %v", counts)
	}

	if err := s.Clear(ctx, tenant); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got, _ := s.Load(ctx, tenant); len(got) != 0 {
		t.Errorf("expected no records after Clear, got %d", len(got))
	}
	if got, _ := s.Load(ctx, other); len(got) != 1 {
		t.Errorf("Clear must not touch other tenants, got %d", len(got))
	}
	if err := s.Clear(ctx, other); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory(), "acme")
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sales.db")
	s, err := OpenSQLite(context.Background(), path, discardLogger())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	exerciseStore(t, s, "acme")
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sales.db")

	s, err := OpenSQLite(ctx, path, discardLogger())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if _, err := s.Write(ctx, "acme", sampleRecords()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	s.Close()

	s, err = OpenSQLite(ctx, path, discardLogger())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, err := s.Load(ctx, "acme")
	if err != nil || len(got) != 3 {
		t.Fatalf("expected 3 persisted records, got %d (%v)", len(got), err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	s, err := OpenPostgres(context.Background(), dsn, discardLogger())
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	exerciseStore(t, s, "test-"+uuid.NewString()[:8])
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.DatabaseConfig{Driver: "memory"}, discardLogger())
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("expected *Memory, got %T", s)
	}

	s, err = Open(ctx, config.DatabaseConfig{Driver: "SQLite", SQLitePath: filepath.Join(t.TempDir(), "x.db")}, discardLogger())
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	s.Close()

	if _, err := Open(ctx, config.DatabaseConfig{Driver: "oracle"}, discardLogger()); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewMemory().Write(ctx, "acme", sampleRecords()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
