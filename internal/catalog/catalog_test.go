package catalog

import (
	"testing"
)

func TestAllTypesLeadWithNameField(t *testing.T) {
	types := All()
	if len(types) == 0 {
		t.Fatalf("expected a populated catalog")
	}
	for _, rt := range types {
		if len(rt.Fields) == 0 || rt.Fields[0] != "NAME" {
			t.Fatalf("record type %s must list NAME first, got %v", rt.Name, rt.Fields)
		}
	}
}

func TestGetKnownType(t *testing.T) {
	rt, ok := Get("Ledger")
	if !ok {
		t.Fatalf("expected Ledger to be registered")
	}
	if len(rt.Fields) != 3 {
		t.Fatalf("expected 3 Ledger fields, got %v", rt.Fields)
	}
}

func TestSelectPreservesRegistryOrder(t *testing.T) {
	selected, err := Select([]string{"StockItem", "Ledger"})
	if err != nil {
		t.Fatalf("select returned error: %v", err)
	}
	if len(selected) != 2 {
		t.Fatalf("expected 2 types, got %d", len(selected))
	}
	if selected[0].Name != "Ledger" || selected[1].Name != "StockItem" {
		t.Fatalf("expected registry order Ledger,StockItem, got %s,%s", selected[0].Name, selected[1].Name)
	}
}

func TestSelectEmptyMeansAll(t *testing.T) {
	selected, err := Select(nil)
	if err != nil {
		t.Fatalf("select returned error: %v", err)
	}
	if len(selected) != len(All()) {
		t.Fatalf("expected full catalog, got %d of %d", len(selected), len(All()))
	}
}

func TestSelectRejectsUnknownType(t *testing.T) {
	if _, err := Select([]string{"Voucher"}); err == nil {
		t.Fatalf("expected error for unknown record type")
	}
}
