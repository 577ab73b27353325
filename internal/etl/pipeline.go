// Package etl turns raw upload tables into canonical, enriched and taxed
// sales transactions and hands them to a tenant-keyed writer.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"sales-insights/internal/models"
	"sales-insights/internal/observability"
	"sales-insights/internal/reference"
	"sales-insights/internal/upload"
)

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidTenant reports whether id is usable as a tenant key.
func ValidTenant(id string) bool {
	return tenantPattern.MatchString(id)
}

// Writer persists a tenant's canonical records and reports how many were
// stored and how many replaced rows already held under the same invoice
// and line.
type Writer interface {
	Write(ctx context.Context, tenant string, records []models.Transaction) (models.WriteResult, error)
}

type Config struct {
	FiscalYearStartMonth int
	Tax                  TaxRules
}

// Result summarizes one pipeline run.
type Result struct {
	BatchID      string    `json:"batch_id"`
	Tenant       string    `json:"tenant_id"`
	Files        int       `json:"files"`
	RowsRead     int       `json:"rows_read"`
	Processed    int       `json:"processed"`
	Replaced     int       `json:"replaced"`
	Dropped      int       `json:"dropped"`
	MasterMisses int       `json:"master_misses"`
	TaxFailures  int       `json:"tax_failures"`
	Warnings     []Warning `json:"warnings"`
}

func (r *Result) warn(ws ...Warning) {
	r.Warnings = append(r.Warnings, ws...)
}

type Pipeline struct {
	normalizer *Normalizer
	cleaner    *Cleaner
	enricher   *Enricher
	tax        *TaxCalculator
	writer     Writer
	logger     *slog.Logger

	locks sync.Map
}

// New wires the stages. master may be nil when no customer master is
// deployed.
func New(cfg Config, master *reference.CustomerMaster, w Writer, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		normalizer: NewNormalizer(),
		cleaner:    NewCleaner(cfg.FiscalYearStartMonth),
		enricher:   NewEnricher(master),
		tax:        NewTaxCalculator(cfg.Tax),
		writer:     w,
		logger:     logger,
	}
}

// Process runs a single table through every stage and persists the
// survivors. A table whose required columns cannot be found, even by
// inference, returns a *SchemaValidationError and writes nothing.
func (p *Pipeline) Process(ctx context.Context, tenant string, table upload.Table) (Result, error) {
	res := p.newResult(tenant, 1)
	if !ValidTenant(tenant) {
		return res, ErrInvalidTenant
	}

	ctx, span := observability.StartSpan(ctx, "etl.process")
	span.SetTag("batch_id", res.BatchID)
	defer span.End(p.logger)

	frame, ws, err := p.normalize(ctx, table)
	res.warn(ws...)
	if err != nil {
		span.SetError(err)
		return res, err
	}

	if err := p.run(ctx, tenant, frame, &res); err != nil {
		span.SetError(err)
		return res, err
	}
	return res, nil
}

// ProcessBatch normalizes each table on its own, skips files that are
// empty or unusable with a file-level warning, and runs the union of the
// rest through the remaining stages once.
func (p *Pipeline) ProcessBatch(ctx context.Context, tenant string, batch upload.Batch) (Result, error) {
	res := p.newResult(tenant, len(batch.Tables)+len(batch.Failures))
	if !ValidTenant(tenant) {
		return res, ErrInvalidTenant
	}

	ctx, span := observability.StartSpan(ctx, "etl.process_batch")
	span.SetTag("batch_id", res.BatchID)
	span.SetTag("files", strconv.Itoa(res.Files))
	defer span.End(p.logger)

	for _, f := range batch.Failures {
		res.warn(Warning{Stage: StageDecode, Source: f.Source, Message: f.Err.Error()})
	}

	var union Frame
	usable := 0
	for _, table := range batch.Tables {
		if len(table.Rows) == 0 {
			res.warn(Warning{Stage: StageDecode, Source: table.Source, Message: "file has no data rows; skipped"})
			continue
		}

		frame, ws, err := p.normalize(ctx, table)
		res.warn(ws...)
		if err != nil {
			res.warn(Warning{Stage: StageNormalize, Source: table.Source, Message: err.Error() + "; file skipped"})
			continue
		}
		union.Append(frame)
		usable++
	}

	if usable == 0 {
		span.SetError(ErrNoUsableFiles)
		return res, ErrNoUsableFiles
	}

	if err := p.run(ctx, tenant, union, &res); err != nil {
		span.SetError(err)
		return res, err
	}
	return res, nil
}

func (p *Pipeline) newResult(tenant string, files int) Result {
	return Result{BatchID: uuid.NewString(), Tenant: tenant, Files: files}
}

func (p *Pipeline) normalize(ctx context.Context, table upload.Table) (Frame, []Warning, error) {
	_, span := observability.StartSpan(ctx, "etl.normalize")
	span.SetTag("source", table.Source)
	defer span.End(p.logger)

	frame, warnings, err := p.normalizer.Normalize(table)
	if err != nil {
		span.SetError(err)
		observability.LoggerFrom(ctx, p.logger).Warn("file failed schema validation",
			"source", table.Source,
			"error", err,
		)
	}
	return frame, warnings, err
}

// run cleans, enriches, taxes and writes a normalized frame while holding
// the tenant's write lock.
func (p *Pipeline) run(ctx context.Context, tenant string, frame Frame, res *Result) error {
	unlock := p.lockTenant(tenant)
	defer unlock()

	logger := observability.LoggerFrom(observability.WithTenant(ctx, tenant), p.logger)
	res.RowsRead = len(frame.Rows)

	_, span := observability.StartSpan(ctx, "etl.clean")
	records, ws := p.cleaner.Clean(frame)
	span.SetTag("kept", strconv.Itoa(len(records)))
	span.End(p.logger)
	res.warn(ws...)
	res.Dropped = res.RowsRead - len(records)

	_, span = observability.StartSpan(ctx, "etl.enrich")
	stats, ws := p.enricher.Enrich(records)
	span.SetTag("master_misses", strconv.Itoa(stats.Misses))
	span.End(p.logger)
	res.warn(ws...)
	res.MasterMisses = stats.Misses

	_, span = observability.StartSpan(ctx, "etl.tax")
	failed, ws := p.tax.ApplyAll(records)
	span.SetTag("failed", strconv.Itoa(failed))
	span.End(p.logger)
	res.warn(ws...)
	res.TaxFailures = failed

	_, span = observability.StartSpan(ctx, "etl.write")
	defer span.End(p.logger)

	written, err := p.writer.Write(ctx, tenant, records)
	if err != nil {
		span.SetError(err)
		logger.Error("failed to persist batch", "batch_id", res.BatchID, "error", err)
		return &PersistenceError{Tenant: tenant, Err: err}
	}
	res.Processed = written.Written
	res.Replaced = written.Replaced
	if written.Replaced > 0 {
		res.warn(Warning{
			Stage:   StageWrite,
			Message: fmt.Sprintf("%d records replaced rows stored earlier under the same invoice and line", written.Replaced),
		})
	}

	logger.Info("batch processed",
		"batch_id", res.BatchID,
		"files", res.Files,
		"rows_read", res.RowsRead,
		"processed", res.Processed,
		"replaced", res.Replaced,
		"dropped", res.Dropped,
		"master_misses", res.MasterMisses,
		"warnings", len(res.Warnings),
	)
	return nil
}

func (p *Pipeline) lockTenant(tenant string) func() {
	v, _ := p.locks.LoadOrStore(tenant, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// IsValidation reports whether err rejects the request's input rather than
// reflecting a server fault.
func IsValidation(err error) bool {
	var schemaErr *SchemaValidationError
	return errors.As(err, &schemaErr) ||
		errors.Is(err, ErrInvalidTenant) ||
		errors.Is(err, ErrNoUsableFiles)
}
