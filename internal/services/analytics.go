// Package services answers the read-side questions asked of a tenant's
// persisted sales: overview aggregates, RFM segmentation, Pareto ranking and
// geographic breakdowns.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sales-insights/internal/models"
	"sales-insights/internal/reference"
)

// Loader reads a tenant's canonical records.
type Loader interface {
	Load(ctx context.Context, tenant string) ([]models.Transaction, error)
}

// Overview is the dashboard summary for one tenant.
type Overview struct {
	Tenant       string                    `json:"tenant_id"`
	RecordCount  int                       `json:"record_count"`
	Customers    int                       `json:"customers"`
	Invoices     int                       `json:"invoices"`
	TotalAmount  float64                   `json:"total_amount"`
	TotalTax     float64                   `json:"total_tax"`
	FirstDate    time.Time                 `json:"first_date"`
	LastDate     time.Time                 `json:"last_date"`
	MonthlySales []models.MonthlyData      `json:"monthly_sales"`
	TopProducts  []models.ProductFrequency `json:"top_products"`
	StateRevenue []models.StateRevenue     `json:"state_revenue"`
}

type snapshot struct {
	records  []models.Transaction
	loadedAt time.Time
}

// Analytics caches each tenant's records after the first read and serves
// every analysis from that snapshot until Invalidate is called.
type Analytics struct {
	mu     sync.RWMutex
	cache  map[string]*snapshot
	epochs map[string]uint64
	store  Loader
	geo    *reference.Geo
	logger *slog.Logger

	loads atomic.Int64
	hits  atomic.Int64
}

func NewAnalytics(store Loader, geo *reference.Geo, logger *slog.Logger) *Analytics {
	if geo == nil {
		geo = reference.DefaultGeo()
	}
	return &Analytics{
		cache:  make(map[string]*snapshot),
		epochs: make(map[string]uint64),
		store:  store,
		geo:    geo,
		logger: logger,
	}
}

// Records returns the tenant's records. The slice is shared; callers must
// not modify it.
func (a *Analytics) Records(ctx context.Context, tenant string) ([]models.Transaction, error) {
	a.mu.RLock()
	snap, ok := a.cache[tenant]
	epoch := a.epochs[tenant]
	a.mu.RUnlock()
	if ok {
		a.hits.Add(1)
		return snap.records, nil
	}

	start := time.Now()
	records, err := a.store.Load(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", tenant, err)
	}
	a.loads.Add(1)

	// Skip caching when an upload invalidated the tenant mid-load.
	a.mu.Lock()
	if a.epochs[tenant] == epoch {
		a.cache[tenant] = &snapshot{records: records, loadedAt: time.Now()}
	}
	a.mu.Unlock()

	a.logger.Debug("tenant records loaded",
		"tenant_id", tenant,
		"records", len(records),
		"duration", time.Since(start))
	return records, nil
}

// Invalidate drops the cached snapshot after the tenant's data changes.
func (a *Analytics) Invalidate(tenant string) {
	a.mu.Lock()
	delete(a.cache, tenant)
	a.epochs[tenant]++
	a.mu.Unlock()
}

func (a *Analytics) Overview(ctx context.Context, tenant string, limit int) (Overview, error) {
	records, err := a.Records(ctx, tenant)
	if err != nil {
		return Overview{}, err
	}
	o := ComputeOverview(records, limit)
	o.Tenant = tenant
	return o, nil
}

func (a *Analytics) RFM(ctx context.Context, tenant string) (RFMReport, error) {
	records, err := a.Records(ctx, tenant)
	if err != nil {
		return RFMReport{}, err
	}
	return ComputeRFM(records)
}

func (a *Analytics) Pareto(ctx context.Context, tenant string, by GroupBy, limit int) (models.Pareto, error) {
	records, err := a.Records(ctx, tenant)
	if err != nil {
		return models.Pareto{}, err
	}
	return ComputePareto(records, by, limit)
}

func (a *Analytics) States(ctx context.Context, tenant string) ([]models.StatePoint, error) {
	records, err := a.Records(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return StateHeatmap(records, a.geo), nil
}

func (a *Analytics) Cities(ctx context.Context, tenant, state string) (models.CityBreakdown, error) {
	records, err := a.Records(ctx, tenant)
	if err != nil {
		return models.CityBreakdown{}, err
	}
	return CityBreakdown(records, state, a.geo), nil
}

// Stats reports cache usage for monitoring.
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cached := make(map[string]any, len(a.cache))
	for tenant, snap := range a.cache {
		cached[tenant] = map[string]any{
			"records":   len(snap.records),
			"loaded_at": snap.loadedAt,
		}
	}
	return map[string]any{
		"cached_tenants": cached,
		"store_loads":    a.loads.Load(),
		"cache_hits":     a.hits.Load(),
	}
}

// ComputeOverview aggregates monthly volume, product popularity and state
// revenue. A limit above zero caps the product and state lists.
func ComputeOverview(records []models.Transaction, limit int) Overview {
	productGroups := make(map[string]*models.ProductFrequency)
	monthlyGroups := make(map[string]float64)
	stateGroups := make(map[string]*models.StateRevenue)
	customers := make(map[string]struct{})
	invoices := make(map[string]struct{})

	o := Overview{RecordCount: len(records)}
	for _, tx := range records {
		aggregateTransaction(tx, productGroups, monthlyGroups, stateGroups)

		customers[tx.CustomerName] = struct{}{}
		invoices[tx.InvoiceNo] = struct{}{}
		o.TotalAmount += tx.Amount
		o.TotalTax += tx.TaxAmount
		if o.FirstDate.IsZero() || tx.Date.Before(o.FirstDate) {
			o.FirstDate = tx.Date
		}
		if tx.Date.After(o.LastDate) {
			o.LastDate = tx.Date
		}
	}

	o.Customers = len(customers)
	o.Invoices = len(invoices)
	o.MonthlySales = sortMonthlySales(monthlyGroups)
	o.TopProducts = capped(sortTopProducts(productGroups), limit)
	o.StateRevenue = capped(sortStateRevenue(stateGroups), limit)
	return o
}

func aggregateTransaction(tx models.Transaction,
	productGroups map[string]*models.ProductFrequency,
	monthlyGroups map[string]float64,
	stateGroups map[string]*models.StateRevenue) {

	if productGroups[tx.ItemName] == nil {
		productGroups[tx.ItemName] = &models.ProductFrequency{
			ProductName: tx.ItemName,
			Category:    tx.Category,
		}
	}
	productGroups[tx.ItemName].Frequency++
	productGroups[tx.ItemName].Revenue += tx.Amount

	month := tx.Month
	if month == "" {
		month = tx.Date.Format("2006-01")
	}
	monthlyGroups[month] += tx.Amount

	if stateGroups[tx.State] == nil {
		stateGroups[tx.State] = &models.StateRevenue{State: tx.State}
	}
	stateGroups[tx.State].Revenue += tx.Amount
	stateGroups[tx.State].ItemsSold += tx.Quantity
}

func sortTopProducts(groups map[string]*models.ProductFrequency) []models.ProductFrequency {
	result := make([]models.ProductFrequency, 0, len(groups))
	for _, pf := range groups {
		result = append(result, *pf)
	}
	slices.SortFunc(result, func(a, b models.ProductFrequency) int {
		if a.Frequency != b.Frequency {
			return b.Frequency - a.Frequency
		}
		if a.Revenue > b.Revenue {
			return -1
		}
		if a.Revenue < b.Revenue {
			return 1
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return result
}

func sortMonthlySales(groups map[string]float64) []models.MonthlyData {
	result := make([]models.MonthlyData, 0, len(groups))
	for month, volume := range groups {
		result = append(result, models.MonthlyData{Month: month, Volume: volume})
	}
	slices.SortFunc(result, func(a, b models.MonthlyData) int {
		if a.Volume > b.Volume {
			return -1
		}
		if a.Volume < b.Volume {
			return 1
		}
		return strings.Compare(a.Month, b.Month)
	})
	return result
}

func sortStateRevenue(groups map[string]*models.StateRevenue) []models.StateRevenue {
	result := make([]models.StateRevenue, 0, len(groups))
	for _, sr := range groups {
		result = append(result, *sr)
	}
	slices.SortFunc(result, func(a, b models.StateRevenue) int {
		if a.Revenue > b.Revenue {
			return -1
		}
		if a.Revenue < b.Revenue {
			return 1
		}
		return strings.Compare(a.State, b.State)
	})
	return result
}

func capped[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
