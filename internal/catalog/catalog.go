// Package catalog is the static registry of Tally master record types and
// the fields each type is expected to export.
package catalog

import (
	"fmt"

	"github.com/lohithk/tallysync/internal/domain"
)

// masters lists every supported record type in menu order. NAME is always
// first; it is the natural key every edition of the source can serve.
var masters = []domain.RecordType{
	{Name: "Ledger", Fields: []string{"NAME", "PARENT", "OPENINGBALANCE"}},
	{Name: "Group", Fields: []string{"NAME", "PARENT", "ISSUBLEDGER"}},
	{Name: "VoucherType", Fields: []string{"NAME", "PARENT", "NUMBERINGMETHOD"}},
	{Name: "Currency", Fields: []string{"NAME", "ORIGINALNAME", "ISDAILYRATE"}},
	{Name: "Budget", Fields: []string{"NAME", "PARENT"}},
	{Name: "Scenario", Fields: []string{"NAME", "PARENT"}},
	{Name: "CostCentre", Fields: []string{"NAME", "PARENT"}},
	{Name: "CostCategory", Fields: []string{"NAME"}},
	{Name: "InterestCollection", Fields: []string{"NAME"}},
	{Name: "StockGroup", Fields: []string{"NAME", "PARENT"}},
	{Name: "StockCategory", Fields: []string{"NAME", "PARENT"}},
	{Name: "StockItem", Fields: []string{"NAME", "PARENT", "BASEUNITS"}},
	{Name: "Unit", Fields: []string{"NAME", "GSTREPUOM"}},
	{Name: "Godown", Fields: []string{"NAME", "PARENT"}},
	{Name: "Batch", Fields: []string{"NAME"}},
	{Name: "VoucherClass", Fields: []string{"NAME"}},
	{Name: "EmployeeGroup", Fields: []string{"NAME"}},
	{Name: "Employee", Fields: []string{"NAME", "EMPLOYEEID"}},
	{Name: "AttendanceType", Fields: []string{"NAME", "ATTENDANCETYPE"}},
	{Name: "PayHead", Fields: []string{"NAME", "PARENT"}},
	{Name: "SalaryDetails", Fields: []string{"NAME"}},
	{Name: "Company", Fields: []string{"NAME", "STARTINGFROM"}},
	{Name: "SecurityControl", Fields: []string{"NAME"}},
	{Name: "StatutoryFeature", Fields: []string{"NAME"}},
}

var byName = func() map[string]domain.RecordType {
	m := make(map[string]domain.RecordType, len(masters))
	for _, rt := range masters {
		m[rt.Name] = rt
	}
	return m
}()

// All returns every supported record type in registry order.
func All() []domain.RecordType {
	out := make([]domain.RecordType, len(masters))
	copy(out, masters)
	return out
}

// Names returns the registry's type names in order.
func Names() []string {
	names := make([]string, len(masters))
	for i, rt := range masters {
		names[i] = rt.Name
	}
	return names
}

// Get looks up a record type by name.
func Get(name string) (domain.RecordType, bool) {
	rt, ok := byName[name]
	return rt, ok
}

// Select resolves a list of type names against the registry, preserving
// registry order and rejecting unknown names. An empty selection means all.
func Select(names []string) ([]domain.RecordType, error) {
	if len(names) == 0 {
		return All(), nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := byName[n]; !ok {
			return nil, fmt.Errorf("unknown record type %q", n)
		}
		wanted[n] = true
	}
	var out []domain.RecordType
	for _, rt := range masters {
		if wanted[rt.Name] {
			out = append(out, rt)
		}
	}
	return out, nil
}
