package persist

import (
	"fmt"
	"regexp"
)

// Table and column names come from external data (record type names, field
// tags in the export response), so they are validated against an allow-list
// before ever reaching a DDL or DML statement. Quoting alone is not enough
// when the identifier itself could carry a quote.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// maxIdentifierLen is the Postgres NAMEDATALEN limit.
const maxIdentifierLen = 63

// ValidateIdentifier rejects names unfit for interpolation into SQL.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("identifier %q exceeds %d characters", name, maxIdentifierLen)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("identifier %q contains characters outside the allow-list", name)
	}
	return nil
}

// quoteIdent double-quotes a validated identifier so case is preserved.
func quoteIdent(name string) string {
	return `"` + name + `"`
}
