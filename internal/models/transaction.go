package models

import "time"

const (
	StateNotFound   = "STATE NOT FOUND"
	UnknownCustomer = "UNKNOWN CUSTOMER"
)

type TaxStatus string

const (
	TaxPending  TaxStatus = ""
	TaxComputed TaxStatus = "computed"
	TaxError    TaxStatus = "error"
)

// Transaction is one canonical sales line. It is filled in by the ETL stages
// and treated as read-only once persisted.
type Transaction struct {
	InvoiceNo    string    `json:"invoice_no"`
	LineNo       int       `json:"line_no"`
	CustomerName string    `json:"customer_name"`
	ItemName     string    `json:"item_name"`
	Category     string    `json:"category,omitempty"`
	Quantity     float64   `json:"quantity"`
	Rate         float64   `json:"rate"`
	Amount       float64   `json:"amount"`
	Date         time.Time `json:"date"`
	State        string    `json:"state"`
	City         string    `json:"city,omitempty"`
	District     string    `json:"district,omitempty"`
	Town         string    `json:"town,omitempty"`

	Year          int    `json:"year"`
	Month         string `json:"month"`
	FiscalYear    string `json:"fiscal_year"`
	FiscalQuarter string `json:"fiscal_quarter"`

	TaxRate     float64   `json:"tax_rate"`
	CGST        float64   `json:"cgst"`
	SGST        float64   `json:"sgst"`
	IGST        float64   `json:"igst"`
	TaxAmount   float64   `json:"tax_amount"`
	GrossAmount float64   `json:"gross_amount"`
	TaxStatus   TaxStatus `json:"tax_status,omitempty"`
}

// Place returns the finest-grained locality recorded for the line.
func (t Transaction) Place(field string) string {
	switch field {
	case "CITY":
		return t.City
	case "DISTRICT":
		return t.District
	case "TOWN":
		return t.Town
	}
	return ""
}

// WriteResult reports a persisted batch. Replaced counts the records whose
// (invoice, line) key was already stored for the tenant.
type WriteResult struct {
	Written  int `json:"written"`
	Replaced int `json:"replaced"`
}

type MonthlyData struct {
	Month  string  `json:"month"`
	Volume float64 `json:"volume"`
}

type ProductFrequency struct {
	ProductName string  `json:"product_name"`
	Category    string  `json:"category,omitempty"`
	Frequency   int     `json:"frequency"`
	Revenue     float64 `json:"revenue"`
}

type StateRevenue struct {
	State     string  `json:"state"`
	Revenue   float64 `json:"total_revenue"`
	ItemsSold float64 `json:"items_sold"`
}
