// Package reference holds read-only lookup data used to enrich sales lines:
// the customer master (customer name to state) and the geographic
// coordinate tables.
package reference

import (
	"errors"
	"fmt"
	"strings"

	"sales-insights/internal/upload"
)

var ErrMasterColumns = errors.New("customer master needs a customer name and a state column")

var (
	masterNameKeys  = []string{"CUSTOMER_NAME", "CUSTOMER", "PARTY_NAME", "PARTY", "NAME", "CLIENT_NAME"}
	masterStateKeys = []string{"STATE", "STATE_NAME", "REGION", "PLACE_OF_SUPPLY"}
)

// Key normalizes a place or customer name for lookups: trimmed, internal
// whitespace collapsed, upper-cased.
func Key(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// CustomerMaster maps a normalized customer name to its state.
type CustomerMaster struct {
	source string
	states map[string]string
}

func NewCustomerMaster(source string, entries map[string]string) *CustomerMaster {
	m := &CustomerMaster{source: source, states: make(map[string]string, len(entries))}
	for name, state := range entries {
		m.add(name, state)
	}
	return m
}

// LoadCustomerMaster reads a CSV or XLSX customer master from disk. When a
// name appears twice, the first non-blank state wins.
func LoadCustomerMaster(path string) (*CustomerMaster, error) {
	table, err := upload.DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("load customer master: %w", err)
	}
	return CustomerMasterFromTable(table)
}

func CustomerMasterFromTable(table upload.Table) (*CustomerMaster, error) {
	nameCol := findColumn(table.Header, masterNameKeys)
	stateCol := findColumn(table.Header, masterStateKeys)
	if nameCol < 0 || stateCol < 0 {
		return nil, fmt.Errorf("%s: %w", table.Source, ErrMasterColumns)
	}

	m := &CustomerMaster{source: table.Source, states: make(map[string]string, len(table.Rows))}
	for i := range table.Rows {
		m.add(table.Cell(i, nameCol), table.Cell(i, stateCol))
	}
	return m, nil
}

func (m *CustomerMaster) add(name, state string) {
	key := Key(name)
	state = Key(state)
	if key == "" || state == "" {
		return
	}
	if _, exists := m.states[key]; !exists {
		m.states[key] = state
	}
}

// State returns the customer's state and whether the customer is known.
func (m *CustomerMaster) State(customer string) (string, bool) {
	if m == nil {
		return "", false
	}
	state, ok := m.states[Key(customer)]
	return state, ok
}

func (m *CustomerMaster) Len() int {
	if m == nil {
		return 0
	}
	return len(m.states)
}

func (m *CustomerMaster) Source() string {
	if m == nil {
		return ""
	}
	return m.source
}

func findColumn(header []string, keys []string) int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		k := upload.HeaderKey(h)
		if _, seen := index[k]; !seen {
			index[k] = i
		}
	}
	for _, k := range keys {
		if i, ok := index[k]; ok {
			return i
		}
	}
	return -1
}
