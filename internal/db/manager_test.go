package db

import (
	"strings"
	"testing"
)

func TestValidateDatabaseName(t *testing.T) {
	valid := []string{"tallysync", "branch_mumbai", "_staging", "db9"}
	for _, name := range valid {
		if err := ValidateDatabaseName(name); err != nil {
			t.Fatalf("%q rejected: %v", name, err)
		}
	}
	invalid := []string{"", "9starts", "has-dash", "has space", `x"; DROP DATABASE y; --`, strings.Repeat("a", 64)}
	for _, name := range invalid {
		if err := ValidateDatabaseName(name); err == nil {
			t.Fatalf("%q accepted", name)
		}
	}
}
