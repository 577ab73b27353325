package etl

import (
	"fmt"
	"strings"

	"sales-insights/internal/upload"
)

// Field is a canonical column of the sales table.
type Field int

const (
	FieldInvoice Field = iota
	FieldCustomer
	FieldItem
	FieldCategory
	FieldQuantity
	FieldRate
	FieldAmount
	FieldDate
	FieldState
	FieldCity
	FieldDistrict
	FieldTown
	numFields
)

var fieldNames = [numFields]string{
	FieldInvoice:  "INVOICE_NO",
	FieldCustomer: "CUSTOMER_NAME",
	FieldItem:     "ITEMNAME",
	FieldCategory: "CATEGORY",
	FieldQuantity: "QTY",
	FieldRate:     "RATE",
	FieldAmount:   "AMOUNT",
	FieldDate:     "DATE",
	FieldState:    "STATE",
	FieldCity:     "CITY",
	FieldDistrict: "DISTRICT",
	FieldTown:     "TOWN",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// RequiredFields identify a transaction; a file without them cannot be
// ingested.
var RequiredFields = []Field{FieldItem, FieldAmount, FieldDate}

// aliases maps folded header keys (see upload.HeaderKey) to canonical
// fields.
var aliases = map[string]Field{
	"INVOICE_NO":     FieldInvoice,
	"INVOICE":        FieldInvoice,
	"INVOICE_NUMBER": FieldInvoice,
	"INV_NO":         FieldInvoice,
	"BILL_NO":        FieldInvoice,
	"BILL_NUMBER":    FieldInvoice,
	"VOUCHER_NO":     FieldInvoice,
	"VCH_NO":         FieldInvoice,
	"ORDER_NO":       FieldInvoice,
	"ORDER_ID":       FieldInvoice,

	"CUSTOMER_NAME": FieldCustomer,
	"CUSTOMER":      FieldCustomer,
	"PARTY_NAME":    FieldCustomer,
	"PARTY":         FieldCustomer,
	"CLIENT":        FieldCustomer,
	"CLIENT_NAME":   FieldCustomer,
	"BUYER":         FieldCustomer,
	"BUYER_NAME":    FieldCustomer,
	"PARTICULARS":   FieldCustomer,

	"ITEMNAME":         FieldItem,
	"ITEM_NAME":        FieldItem,
	"ITEM":             FieldItem,
	"PRODUCT":          FieldItem,
	"PRODUCT_NAME":     FieldItem,
	"STOCK_ITEM":       FieldItem,
	"DESCRIPTION":      FieldItem,
	"ITEM_DESCRIPTION": FieldItem,

	"CATEGORY":         FieldCategory,
	"ITEM_CATEGORY":    FieldCategory,
	"PRODUCT_CATEGORY": FieldCategory,
	"STOCK_GROUP":      FieldCategory,
	"ITEM_GROUP":       FieldCategory,

	"QTY":        FieldQuantity,
	"QUANTITY":   FieldQuantity,
	"BILLED_QTY": FieldQuantity,
	"UNITS":      FieldQuantity,
	"NOS":        FieldQuantity,

	"RATE":       FieldRate,
	"PRICE":      FieldRate,
	"UNIT_PRICE": FieldRate,
	"UNIT_RATE":  FieldRate,
	"MRP":        FieldRate,

	"AMOUNT":        FieldAmount,
	"AMT":           FieldAmount,
	"TOTAL":         FieldAmount,
	"TOTAL_AMOUNT":  FieldAmount,
	"NET_AMOUNT":    FieldAmount,
	"SALES_AMOUNT":  FieldAmount,
	"TAXABLE_VALUE": FieldAmount,
	"LINE_TOTAL":    FieldAmount,
	"VALUE":         FieldAmount,

	"DATE":             FieldDate,
	"INVOICE_DATE":     FieldDate,
	"BILL_DATE":        FieldDate,
	"ORDER_DATE":       FieldDate,
	"VOUCHER_DATE":     FieldDate,
	"TRANSACTION_DATE": FieldDate,
	"TXN_DATE":         FieldDate,

	"STATE":           FieldState,
	"STATE_NAME":      FieldState,
	"REGION":          FieldState,
	"PLACE_OF_SUPPLY": FieldState,

	"CITY":      FieldCity,
	"CITY_NAME": FieldCity,
	"DISTRICT":  FieldDistrict,
	"TOWN":      FieldTown,
	"VILLAGE":   FieldTown,
	"LOCALITY":  FieldTown,
}

// LookupAlias resolves a raw column title to its canonical field.
func LookupAlias(title string) (Field, bool) {
	f, ok := aliases[upload.HeaderKey(title)]
	return f, ok
}

// Mapping records which raw column feeds each canonical field; -1 means
// the field is absent.
type Mapping [numFields]int

func emptyMapping() Mapping {
	var m Mapping
	for i := range m {
		m[i] = -1
	}
	return m
}

func (m Mapping) Has(f Field) bool {
	return m[f] >= 0
}

func (m Mapping) missing(fields []Field) []Field {
	var out []Field
	for _, f := range fields {
		if !m.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (m Mapping) used(col int) bool {
	for _, c := range m {
		if c == col {
			return true
		}
	}
	return false
}

// Row is one upload line projected onto the canonical columns.
type Row struct {
	Source string
	Line   int
	cells  [numFields]string
}

func (r Row) Get(f Field) string {
	return r.cells[f]
}

func (r *Row) Set(f Field, v string) {
	r.cells[f] = strings.TrimSpace(v)
}

// Frame is a normalized table: every canonical column exists, though cells
// may be blank.
type Frame struct {
	Rows []Row
}

func (f *Frame) Append(other Frame) {
	f.Rows = append(f.Rows, other.Rows...)
}
