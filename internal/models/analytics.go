package models

type RecencyLabel string

const (
	RecencyActive   RecencyLabel = "Active"
	RecencyAtRisk   RecencyLabel = "At Risk"
	RecencyChurning RecencyLabel = "Churning"
	RecencyLost     RecencyLabel = "Lost"
)

type FrequencyLabel string

const (
	FrequencyOneTime  FrequencyLabel = "One-time"
	FrequencyRare     FrequencyLabel = "Rare"
	FrequencyFrequent FrequencyLabel = "Frequent"
	FrequencyLoyal    FrequencyLabel = "Loyal"
)

type MonetaryLabel string

const (
	MonetaryLow    MonetaryLabel = "Low"
	MonetaryMedium MonetaryLabel = "Medium"
	MonetaryHigh   MonetaryLabel = "High"
	MonetaryVIP    MonetaryLabel = "VIP"
)

type Segment string

const (
	SegmentChampions Segment = "Champions"
	SegmentLoyal     Segment = "Loyal"
	SegmentAtRisk    Segment = "At Risk"
	SegmentLost      Segment = "Lost"
	SegmentStandard  Segment = "Standard"
)

// Segments lists every segment in classification priority order.
func Segments() []Segment {
	return []Segment{SegmentChampions, SegmentLoyal, SegmentAtRisk, SegmentLost, SegmentStandard}
}

type RFMProfile struct {
	CustomerName string         `json:"customer_name"`
	Recency      int            `json:"recency"`
	Frequency    int            `json:"frequency"`
	Monetary     float64        `json:"monetary"`
	RScore       RecencyLabel   `json:"r_score"`
	FScore       FrequencyLabel `json:"f_score"`
	MScore       MonetaryLabel  `json:"m_score"`
	Segment      Segment        `json:"segment"`
}

type SegmentSummary struct {
	Segment  Segment `json:"segment"`
	Count    int     `json:"count"`
	Monetary float64 `json:"monetary"`
}

type ParetoEntry struct {
	Key             string  `json:"key"`
	Amount          float64 `json:"amount"`
	SharePercent    float64 `json:"share_percent"`
	CumulativeShare float64 `json:"cumulative_percent"`
}

type Pareto struct {
	GroupBy         string        `json:"group_by"`
	Entries         []ParetoEntry `json:"entries"`
	TotalKeys       int           `json:"total_keys"`
	TotalAmount     float64       `json:"total_amount"`
	TopCount        int           `json:"top_count"`
	TopSharePercent float64       `json:"top_share_percent"`
}

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type StatePoint struct {
	State    string     `json:"state"`
	Amount   float64    `json:"amount"`
	Coord    Coordinate `json:"coord"`
	Fallback bool       `json:"fallback"`
}

type CityPoint struct {
	Place  string      `json:"place"`
	Amount float64     `json:"amount"`
	Coord  *Coordinate `json:"coord,omitempty"`
}

type CityBreakdown struct {
	State    string      `json:"state"`
	Field    string      `json:"field"`
	Center   Coordinate  `json:"center"`
	Places   []CityPoint `json:"places"`
	Mappable []CityPoint `json:"mappable"`
}
