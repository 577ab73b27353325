package etl

import (
	"sales-insights/internal/models"
	"sales-insights/internal/reference"
)

// EnrichStats counts master lookups for one pass.
type EnrichStats struct {
	Matched int
	Misses  int
	Skipped bool
}

// Enricher joins transactions to the customer master.
type Enricher struct {
	master *reference.CustomerMaster
}

// NewEnricher accepts a nil master; the join is then skipped and the
// uploaded states are kept.
func NewEnricher(master *reference.CustomerMaster) *Enricher {
	return &Enricher{master: master}
}

// Enrich sets each record's state from the master. A customer missing from
// the master keeps its row and gets models.StateNotFound. Running it twice
// gives the same result.
func (e *Enricher) Enrich(records []models.Transaction) (EnrichStats, []Warning) {
	var stats EnrichStats

	if e.master == nil || e.master.Len() == 0 {
		stats.Skipped = true
		for i := range records {
			records[i].State = uploadedState(records[i].State)
		}
		return stats, []Warning{{
			Stage:   StageEnrich,
			Message: "customer master not available; keeping uploaded states",
		}}
	}

	for i := range records {
		state, ok := e.master.State(records[i].CustomerName)
		if !ok {
			stats.Misses++
			records[i].State = models.StateNotFound
			continue
		}
		stats.Matched++
		records[i].State = state
	}
	return stats, nil
}

func uploadedState(state string) string {
	if s := reference.Key(state); s != "" {
		return s
	}
	return models.StateNotFound
}
