package services

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"sales-insights/internal/models"
)

// MinRFMCustomers is the smallest population that can be cut into
// quartiles.
const MinRFMCustomers = 4

var ErrInsufficientData = errors.New("RFM segmentation needs at least 4 distinct customers")

var (
	recencyLabels   = [4]models.RecencyLabel{models.RecencyActive, models.RecencyAtRisk, models.RecencyChurning, models.RecencyLost}
	frequencyLabels = [4]models.FrequencyLabel{models.FrequencyOneTime, models.FrequencyRare, models.FrequencyFrequent, models.FrequencyLoyal}
	monetaryLabels  = [4]models.MonetaryLabel{models.MonetaryLow, models.MonetaryMedium, models.MonetaryHigh, models.MonetaryVIP}
)

// RFMReport is the full result of a segmentation pass.
type RFMReport struct {
	ReferenceDate time.Time               `json:"reference_date"`
	Profiles      []models.RFMProfile     `json:"profiles"`
	Summary       []models.SegmentSummary `json:"summary"`
}

type customerAgg struct {
	name     string
	last     time.Time
	invoices map[string]struct{}
	monetary float64
}

// ComputeRFM scores every customer by recency, frequency and monetary value
// and assigns exactly one segment each. Profiles come back sorted by
// monetary value, highest first; the summary lists every segment in
// priority order, including empty ones.
func ComputeRFM(records []models.Transaction) (RFMReport, error) {
	var (
		ref       time.Time
		order     []*customerAgg
		customers = make(map[string]*customerAgg)
	)

	for _, tx := range records {
		if tx.Date.After(ref) {
			ref = tx.Date
		}

		c, ok := customers[tx.CustomerName]
		if !ok {
			c = &customerAgg{name: tx.CustomerName, invoices: make(map[string]struct{})}
			customers[tx.CustomerName] = c
			order = append(order, c)
		}
		if tx.Date.After(c.last) {
			c.last = tx.Date
		}
		c.invoices[tx.InvoiceNo] = struct{}{}
		c.monetary += tx.Amount
	}

	if len(order) < MinRFMCustomers {
		return RFMReport{}, ErrInsufficientData
	}

	n := len(order)
	recency := make([]float64, n)
	frequency := make([]float64, n)
	monetary := make([]float64, n)
	for i, c := range order {
		recency[i] = float64(daysBetween(c.last, ref))
		frequency[i] = float64(len(c.invoices))
		monetary[i] = c.monetary
	}

	rBuckets := quartileBuckets(recency)
	fBuckets := quartileBuckets(firstRank(frequency))
	mBuckets := quartileBuckets(monetary)

	profiles := make([]models.RFMProfile, n)
	for i, c := range order {
		p := models.RFMProfile{
			CustomerName: c.name,
			Recency:      int(recency[i]),
			Frequency:    len(c.invoices),
			Monetary:     c.monetary,
			RScore:       recencyLabels[rBuckets[i]],
			FScore:       frequencyLabels[fBuckets[i]],
			MScore:       monetaryLabels[mBuckets[i]],
		}
		p.Segment = Classify(p.RScore, p.FScore)
		profiles[i] = p
	}

	slices.SortStableFunc(profiles, func(a, b models.RFMProfile) int {
		return cmp.Compare(b.Monetary, a.Monetary)
	})

	return RFMReport{
		ReferenceDate: ref,
		Profiles:      profiles,
		Summary:       summarize(profiles),
	}, nil
}

// Classify applies the segment rules in priority order; the first match
// wins and Standard catches everything else.
func Classify(r models.RecencyLabel, f models.FrequencyLabel) models.Segment {
	switch {
	case r == models.RecencyActive && f == models.FrequencyLoyal:
		return models.SegmentChampions
	case r == models.RecencyActive && f == models.FrequencyFrequent:
		return models.SegmentLoyal
	case r == models.RecencyAtRisk && (f == models.FrequencyLoyal || f == models.FrequencyFrequent):
		return models.SegmentAtRisk
	case r == models.RecencyLost:
		return models.SegmentLost
	default:
		return models.SegmentStandard
	}
}

func summarize(profiles []models.RFMProfile) []models.SegmentSummary {
	segments := models.Segments()
	index := make(map[models.Segment]int, len(segments))
	summary := make([]models.SegmentSummary, len(segments))
	for i, s := range segments {
		index[s] = i
		summary[i].Segment = s
	}
	for _, p := range profiles {
		s := &summary[index[p.Segment]]
		s.Count++
		s.Monetary += p.Monetary
	}
	return summary
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// firstRank replaces each value by its 1-based ascending rank, breaking
// ties by position.
func firstRank(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(values[a], values[b])
	})

	ranks := make([]float64, len(values))
	for rank, i := range idx {
		ranks[i] = float64(rank + 1)
	}
	return ranks
}

// quartileBuckets assigns each value a bucket 0-3 using equal-population
// quartile edges. Bins are right-inclusive with the lowest edge included;
// when edges coincide, values on the shared edge fall in the lower bucket.
func quartileBuckets(values []float64) []int {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var edges [3]float64
	for q := range edges {
		edges[q] = quantile(sorted, float64(q+1)/4)
	}

	buckets := make([]int, len(values))
	for i, v := range values {
		b := 3
		for q, edge := range edges {
			if v <= edge {
				b = q
				break
			}
		}
		buckets[i] = b
	}
	return buckets
}

// quantile interpolates linearly between the closest ranks of a sorted
// slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := float64(len(sorted)-1) * q
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}
