// Package store persists canonical sales transactions per tenant.
package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"sales-insights/internal/config"
	"sales-insights/internal/models"
)

var ErrUnknownDriver = errors.New("unknown database driver")

// Store is the tenant-keyed persistence contract. Load returns an empty
// slice, not an error, for a tenant that has never written. Write upserts on
// (tenant, invoice, line): the last writer wins, replacements are counted in
// the result and a failed write commits nothing.
type Store interface {
	Load(ctx context.Context, tenant string) ([]models.Transaction, error)
	Write(ctx context.Context, tenant string, records []models.Transaction) (models.WriteResult, error)
	Clear(ctx context.Context, tenant string) error
	Tenants(ctx context.Context) ([]TenantSummary, error)
	Ping(ctx context.Context) error
	Close() error
}

type TenantSummary struct {
	Tenant  string `json:"tenant_id"`
	Records int    `json:"records"`
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// sortRecords orders records by date, then invoice and line, which is the
// order every backend returns from Load.
func sortRecords(records []models.Transaction) {
	slices.SortStableFunc(records, func(a, b models.Transaction) int {
		return cmp.Or(
			a.Date.Compare(b.Date),
			strings.Compare(a.InvoiceNo, b.InvoiceNo),
			cmp.Compare(a.LineNo, b.LineNo),
		)
	})
}
