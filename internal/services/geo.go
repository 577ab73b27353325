package services

import (
	"cmp"
	"slices"
	"strings"

	"sales-insights/internal/models"
	"sales-insights/internal/reference"
)

// placeFields are tried in order when drilling into a state.
var placeFields = []string{"CITY", "DISTRICT", "TOWN"}

// StateHeatmap totals revenue per state and attaches coordinates. States
// without a coordinate are placed on the national centroid and flagged.
func StateHeatmap(records []models.Transaction, geo *reference.Geo) []models.StatePoint {
	totals := make(map[string]float64)
	for _, tx := range records {
		totals[tx.State] += tx.Amount
	}

	points := make([]models.StatePoint, 0, len(totals))
	for state, amount := range totals {
		coord, ok := geo.StateCoord(state)
		points = append(points, models.StatePoint{
			State:    state,
			Amount:   amount,
			Coord:    coord,
			Fallback: !ok,
		})
	}
	sortByAmount(points, func(p models.StatePoint) (float64, string) { return p.Amount, p.State })
	return points
}

// CityBreakdown totals revenue per place inside one state using the first
// of CITY, DISTRICT and TOWN that has data there. Every place is listed;
// only places with a known coordinate are mappable.
func CityBreakdown(records []models.Transaction, state string, geo *reference.Geo) models.CityBreakdown {
	state = reference.Key(state)
	center, _ := geo.StateCoord(state)
	out := models.CityBreakdown{
		State:    state,
		Center:   center,
		Places:   []models.CityPoint{},
		Mappable: []models.CityPoint{},
	}

	var inState []models.Transaction
	for _, tx := range records {
		if tx.State == state {
			inState = append(inState, tx)
		}
	}

	for _, field := range placeFields {
		if slices.ContainsFunc(inState, func(tx models.Transaction) bool { return tx.Place(field) != "" }) {
			out.Field = field
			break
		}
	}
	if out.Field == "" {
		return out
	}

	totals := make(map[string]float64)
	for _, tx := range inState {
		if place := tx.Place(out.Field); place != "" {
			totals[place] += tx.Amount
		}
	}

	for place, amount := range totals {
		p := models.CityPoint{Place: place, Amount: amount}
		if c, ok := geo.CityCoord(place); ok {
			p.Coord = &c
		}
		out.Places = append(out.Places, p)
	}
	sortByAmount(out.Places, func(p models.CityPoint) (float64, string) { return p.Amount, p.Place })

	for _, p := range out.Places {
		if p.Coord != nil {
			out.Mappable = append(out.Mappable, p)
		}
	}
	return out
}

// sortByAmount orders descending by amount, then by name.
func sortByAmount[T any](items []T, key func(T) (float64, string)) {
	slices.SortFunc(items, func(a, b T) int {
		av, an := key(a)
		bv, bn := key(b)
		return cmp.Or(cmp.Compare(bv, av), strings.Compare(an, bn))
	})
}
