package services

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"sales-insights/internal/models"
)

var (
	ErrZeroTotal      = errors.New("pareto analysis needs a non-zero total amount")
	ErrUnknownGroupBy = errors.New("pareto group must be customer or product")
)

type GroupBy string

const (
	GroupByCustomer GroupBy = "customer"
	GroupByProduct  GroupBy = "product"
)

// ParseGroupBy accepts "customer" or "product" in any case; empty means
// customer.
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GroupByCustomer, nil
	case GroupByCustomer, GroupByProduct:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGroupBy, s)
	}
}

func (g GroupBy) key(tx models.Transaction) string {
	if g == GroupByProduct {
		return tx.ItemName
	}
	return tx.CustomerName
}

// topShare is the fraction of keys counted as "the top" in the 80/20 check.
const topShare = 0.2

// ComputePareto ranks keys by total amount, highest first, with running
// cumulative shares, and reports how much of the total the top 20% of keys
// produce. Equal totals keep key order. A limit above zero trims the
// returned entries but not the insight.
func ComputePareto(records []models.Transaction, by GroupBy, limit int) (models.Pareto, error) {
	totals := make(map[string]float64)
	var grand float64
	for _, tx := range records {
		totals[by.key(tx)] += tx.Amount
		grand += tx.Amount
	}
	if grand == 0 {
		return models.Pareto{}, ErrZeroTotal
	}

	entries := make([]models.ParetoEntry, 0, len(totals))
	for k, v := range totals {
		entries = append(entries, models.ParetoEntry{Key: k, Amount: v})
	}
	slices.SortFunc(entries, func(a, b models.ParetoEntry) int {
		return strings.Compare(a.Key, b.Key)
	})
	slices.SortStableFunc(entries, func(a, b models.ParetoEntry) int {
		return cmp.Compare(b.Amount, a.Amount)
	})

	var running float64
	for i := range entries {
		running += entries[i].Amount
		entries[i].SharePercent = entries[i].Amount / grand * 100
		entries[i].CumulativeShare = running / grand * 100
	}

	topCount := int(float64(len(entries)) * topShare)
	var topAmount float64
	for _, e := range entries[:topCount] {
		topAmount += e.Amount
	}

	result := models.Pareto{
		GroupBy:         string(by),
		TotalKeys:       len(entries),
		TotalAmount:     grand,
		TopCount:        topCount,
		TopSharePercent: topAmount / grand * 100,
		Entries:         entries,
	}
	if limit > 0 && limit < len(entries) {
		result.Entries = entries[:limit]
	}
	return result, nil
}
