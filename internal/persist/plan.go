package persist

import (
	"fmt"
	"strings"

	"github.com/lohithk/tallysync/internal/domain"
)

// OpKind classifies what the reconciliation decided for one row.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpSkip
)

// RowOp is one reconciliation decision, keyed by the row's natural key.
type RowOp struct {
	Kind OpKind
	Name string
	Row  domain.Row
}

// PlanBatch compares an enriched batch against the destination's current
// NAME to fingerprint map and decides insert, update, or skip per row.
// Rows without a natural key cannot be reconciled and are dropped. The
// map is advanced as rows are planned, so a NAME repeated within one
// batch yields at most one insert; later occurrences become updates or
// skips against the first, matching the unique NAME index.
func PlanBatch(batch domain.Batch, existing map[string]string) []RowOp {
	ops := make([]RowOp, 0, len(batch.Rows))
	planned := make(map[string]string, len(existing)+len(batch.Rows))
	for name, hash := range existing {
		planned[name] = hash
	}
	for _, row := range batch.Rows {
		name := row[domain.NameField]
		if name == nil || *name == "" {
			continue
		}
		hash := domain.StringValue(row[domain.MetaHash])
		current, found := planned[*name]
		switch {
		case !found:
			ops = append(ops, RowOp{Kind: OpInsert, Name: *name, Row: row})
		case current != hash:
			ops = append(ops, RowOp{Kind: OpUpdate, Name: *name, Row: row})
		default:
			ops = append(ops, RowOp{Kind: OpSkip, Name: *name, Row: row})
		}
		planned[*name] = hash
	}
	return ops
}

// buildInsert renders the INSERT statement for a full enriched row.
func buildInsert(table string, columns []string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(params, ", "))
}

// buildUpdate renders the UPDATE statement: every column except _SYNCED_AT
// from the row, then a fresh _SYNCED_AT, keyed on NAME. It returns the
// statement and the column order its parameters expect.
func buildUpdate(table string, columns []string) (string, []string) {
	assigned := make([]string, 0, len(columns))
	ordered := make([]string, 0, len(columns))
	for _, col := range columns {
		if col == domain.MetaSyncedAt {
			continue
		}
		assigned = append(assigned, fmt.Sprintf("%s = $%d", quoteIdent(col), len(assigned)+1))
		ordered = append(ordered, col)
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s, %s = $%d WHERE %s = $%d",
		quoteIdent(table),
		strings.Join(assigned, ", "),
		quoteIdent(domain.MetaSyncedAt), len(ordered)+1,
		quoteIdent(domain.NameField), len(ordered)+2)
	return stmt, ordered
}
