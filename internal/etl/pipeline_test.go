package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"sales-insights/internal/models"
	"sales-insights/internal/reference"
	"sales-insights/internal/store"
	"sales-insights/internal/upload"
)

type memoryWriter struct {
	mu      sync.Mutex
	tenants map[string][]models.Transaction
	err     error
}

func (w *memoryWriter) Write(_ context.Context, tenant string, records []models.Transaction) (models.WriteResult, error) {
	if w.err != nil {
		return models.WriteResult{}, w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tenants == nil {
		w.tenants = make(map[string][]models.Transaction)
	}
	w.tenants[tenant] = append(w.tenants[tenant], records...)
	return models.WriteResult{Written: len(records)}, nil
}

func testPipeline(w Writer, master *reference.CustomerMaster) *Pipeline {
	cfg := Config{FiscalYearStartMonth: 4, Tax: TaxRules{HomeState: "MAHARASHTRA", DefaultRate: 18}}
	return New(cfg, master, w, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func salesTable(source string, rows int) upload.Table {
	t := upload.Table{
		Source: source,
		Header: []string{"Invoice No", "Customer Name", "Item Name", "Qty", "Rate", "Amount", "Date"},
	}
	for i := range rows {
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("%s-%d", source, i),
			fmt.Sprintf("Customer %d", i%7),
			"Widget",
			"2",
			"50",
			"100",
			"2024-05-01",
		})
	}
	return t
}

func TestPipeline_ProcessBatch(t *testing.T) {
	w := &memoryWriter{}
	master := reference.NewCustomerMaster("master.csv", map[string]string{"Customer 1": "Maharashtra"})
	p := testPipeline(w, master)

	batch := upload.Batch{Tables: []upload.Table{
		salesTable("jan.csv", 100),
		salesTable("feb.xlsx", 150),
		salesTable("empty.csv", 0),
	}}

	res, err := p.ProcessBatch(context.Background(), "acme", batch)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	if res.Processed != 250 || res.RowsRead != 250 || res.Files != 3 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Source != "empty.csv" {
		t.Errorf("expected one file-level warning for empty.csv, got %v", res.Warnings)
	}
	if res.BatchID == "" {
		t.Error("expected a batch id")
	}

	stored := w.tenants["acme"]
	if len(stored) != 250 {
		t.Fatalf("expected 250 stored records, got %d", len(stored))
	}
	for _, tx := range stored {
		switch tx.CustomerName {
		case "CUSTOMER 1":
			if tx.State != "MAHARASHTRA" || tx.CGST != 9 {
				t.Fatalf("expected intra-state tax for a master hit, got %+v", tx)
			}
		default:
			if tx.State != models.StateNotFound || tx.IGST != 18 {
				t.Fatalf("expected master miss to be kept with sentinel state, got %+v", tx)
			}
		}
	}
	if res.MasterMisses == 0 {
		t.Error("expected master misses to be counted")
	}
}

func TestPipeline_ProcessBatchFailures(t *testing.T) {
	p := testPipeline(&memoryWriter{}, nil)

	batch := upload.Batch{
		Tables:   []upload.Table{{Source: "notes.csv", Header: []string{"Notes"}, Rows: [][]string{{"hello"}}}},
		Failures: []upload.FileError{{Source: "broken.xlsx", Err: errors.New("zip: not a valid zip file")}},
	}

	res, err := p.ProcessBatch(context.Background(), "acme", batch)
	if !errors.Is(err, ErrNoUsableFiles) {
		t.Fatalf("expected ErrNoUsableFiles, got %v", err)
	}
	if !IsValidation(err) {
		t.Error("ErrNoUsableFiles should be a validation error")
	}
	if len(res.Warnings) < 2 {
		t.Errorf("expected warnings for both files, got %v", res.Warnings)
	}
}

func TestPipeline_ProcessSchemaError(t *testing.T) {
	w := &memoryWriter{}
	p := testPipeline(w, nil)

	table := upload.Table{Source: "notes.csv", Header: []string{"Notes"}, Rows: [][]string{{"hello"}}}
	_, err := p.Process(context.Background(), "acme", table)

	var schemaErr *SchemaValidationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
	if len(w.tenants) != 0 {
		t.Error("nothing should be written when validation fails")
	}
}

func TestPipeline_InvalidTenant(t *testing.T) {
	p := testPipeline(&memoryWriter{}, nil)

	for _, tenant := range []string{"", "acme corp", "../etc", string(make([]byte, 65))} {
		if _, err := p.Process(context.Background(), tenant, salesTable("a.csv", 1)); !errors.Is(err, ErrInvalidTenant) {
			t.Errorf("tenant %q: expected ErrInvalidTenant, got %v", tenant, err)
		}
	}
}

func TestPipeline_PersistenceError(t *testing.T) {
	storeErr := errors.New("disk full")
	p := testPipeline(&memoryWriter{err: storeErr}, nil)

	res, err := p.Process(context.Background(), "acme", salesTable("a.csv", 3))

	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) || !errors.Is(err, storeErr) {
		t.Fatalf("expected PersistenceError wrapping the store error, got %v", err)
	}
	if IsValidation(err) {
		t.Error("persistence failures are not validation errors")
	}
	if res.Processed != 0 {
		t.Errorf("expected nothing processed, got %d", res.Processed)
	}
}

func TestPipeline_ConcurrentUploadsSameTenant(t *testing.T) {
	w := &memoryWriter{}
	p := testPipeline(w, nil)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Process(context.Background(), "acme", salesTable(fmt.Sprintf("f%d.csv", i), 10)); err != nil {
				t.Errorf("Process() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(w.tenants["acme"]); got != 80 {
		t.Errorf("expected 80 records, got %d", got)
	}
}

func TestPipeline_ReuploadReportsReplacedRows(t *testing.T) {
	master := reference.NewCustomerMaster("master.csv", map[string]string{"Customer 1": "Maharashtra"})
	p := testPipeline(store.NewMemory(), master)
	ctx := context.Background()

	first, err := p.Process(ctx, "acme", salesTable("april.csv", 5))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if first.Replaced != 0 || len(first.Warnings) != 0 {
		t.Fatalf("first upload should not replace anything, got %d, %v", first.Replaced, first.Warnings)
	}

	again, err := p.Process(ctx, "acme", salesTable("april.csv", 5))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if again.Processed != 5 || again.Replaced != 5 {
		t.Errorf("expected 5 processed and 5 replaced, got %d and %d", again.Processed, again.Replaced)
	}
	if len(again.Warnings) != 1 || again.Warnings[0].Stage != StageWrite {
		t.Errorf("expected one write warning, got %v", again.Warnings)
	}
}
