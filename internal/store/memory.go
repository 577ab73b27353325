package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"sales-insights/internal/models"
)

type recordKey struct {
	invoice string
	line    int
}

// Memory keeps everything in process. It backs tests and the "memory"
// driver.
type Memory struct {
	mu      sync.RWMutex
	tenants map[string]map[recordKey]models.Transaction
}

func NewMemory() *Memory {
	return &Memory{tenants: make(map[string]map[recordKey]models.Transaction)}
}

func (m *Memory) Load(_ context.Context, tenant string) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.tenants[tenant]
	out := make([]models.Transaction, 0, len(rows))
	for _, tx := range rows {
		out = append(out, tx)
	}
	sortRecords(out)
	return out, nil
}

func (m *Memory) Write(ctx context.Context, tenant string, records []models.Transaction) (models.WriteResult, error) {
	var res models.WriteResult
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(records) == 0 {
		return res, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tenants[tenant]
	if !ok {
		rows = make(map[recordKey]models.Transaction, len(records))
		m.tenants[tenant] = rows
	}
	for _, tx := range records {
		key := recordKey{invoice: tx.InvoiceNo, line: tx.LineNo}
		if _, ok := rows[key]; ok {
			res.Replaced++
		}
		rows[key] = tx
	}
	res.Written = len(records)
	return res, nil
}

func (m *Memory) Clear(_ context.Context, tenant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, tenant)
	return nil
}

func (m *Memory) Tenants(_ context.Context) ([]TenantSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TenantSummary, 0, len(m.tenants))
	for tenant, rows := range m.tenants {
		out = append(out, TenantSummary{Tenant: tenant, Records: len(rows)})
	}
	slices.SortFunc(out, func(a, b TenantSummary) int {
		return cmp.Compare(a.Tenant, b.Tenant)
	})
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	return nil
}
