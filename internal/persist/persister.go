// Package persist reconciles tabular batches against an auto-evolving
// destination schema: one all-text table per record type, columns added on
// demand, rows inserted or updated by fingerprint comparison.
package persist

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lohithk/tallysync/internal/domain"
)

// Persister writes batches into the destination database.
type Persister struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPersister creates a persister over a shared connection pool.
func NewPersister(pool *pgxpool.Pool) *Persister {
	return &Persister{pool: pool, now: time.Now}
}

// Persist reconciles one batch into the table named after its record type.
// It is idempotent: re-persisting an unchanged batch performs no writes.
// The read-compare-write sequence runs inside a single transaction per
// batch; callers serialize runs that target the same table.
func (p *Persister) Persist(ctx context.Context, table string, batch domain.Batch) (domain.PersistStats, error) {
	var stats domain.PersistStats

	if batch.Empty() {
		log.Printf("[persist] %s: empty batch, skipping", table)
		return stats, nil
	}

	enriched := Enrich(batch, p.now())

	if err := ValidateIdentifier(table); err != nil {
		return stats, fmt.Errorf("table name rejected: %w", err)
	}
	for _, col := range enriched.Columns {
		if err := ValidateIdentifier(col); err != nil {
			return stats, fmt.Errorf("column name rejected: %w", err)
		}
	}

	if err := p.ensureTable(ctx, table, enriched.Columns); err != nil {
		return stats, err
	}
	if err := p.ensureColumns(ctx, table, enriched.Columns); err != nil {
		return stats, err
	}
	p.ensureIndexes(ctx, table)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := loadFingerprints(ctx, tx, table)
	if err != nil {
		return stats, err
	}

	insertStmt := buildInsert(table, enriched.Columns)
	updateStmt, updateColumns := buildUpdate(table, enriched.Columns)

	for _, op := range PlanBatch(enriched, existing) {
		switch op.Kind {
		case OpInsert:
			args := make([]any, len(enriched.Columns))
			for i, col := range enriched.Columns {
				args[i] = op.Row[col]
			}
			if _, err := tx.Exec(ctx, insertStmt, args...); err != nil {
				return stats, fmt.Errorf("insert %s row %q: %w", table, op.Name, err)
			}
			stats.Inserted++
		case OpUpdate:
			args := make([]any, 0, len(updateColumns)+2)
			for _, col := range updateColumns {
				args = append(args, op.Row[col])
			}
			args = append(args, op.Row[domain.MetaSyncedAt], op.Name)
			if _, err := tx.Exec(ctx, updateStmt, args...); err != nil {
				return stats, fmt.Errorf("update %s row %q: %w", table, op.Name, err)
			}
			stats.Updated++
		case OpSkip:
			stats.Skipped++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("commit %s batch: %w", table, err)
	}

	log.Printf("[persist] %s: %d inserted, %d updated, %d unchanged",
		table, stats.Inserted, stats.Updated, stats.Skipped)
	return stats, nil
}

// columnLookup is scoped to the current schema so a same-named table in
// another schema cannot mask missing columns.
const columnLookup = `SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema()`

func (p *Persister) ensureTable(ctx context.Context, table string, columns []string) error {
	if _, err := p.pool.Exec(ctx, buildCreateTable(table, columns)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// ensureColumns grows the table to cover the batch's column set. Columns
// are only ever added, never dropped or retyped.
func (p *Persister) ensureColumns(ctx context.Context, table string, columns []string) error {
	rows, err := p.pool.Query(ctx, columnLookup, table)
	if err != nil {
		return fmt.Errorf("inspect columns of %s: %w", table, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan column name: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate columns of %s: %w", table, err)
	}

	for _, col := range missingColumns(existing, columns) {
		if _, err := p.pool.Exec(ctx, buildAddColumn(table, col)); err != nil {
			return fmt.Errorf("add column %s to %s: %w", col, table, err)
		}
		log.Printf("[persist] %s: added column %s", table, col)
	}
	return nil
}

// buildCreateTable renders the all-text table for one record type.
func buildCreateTable(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = quoteIdent(col) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), joinComma(defs))
}

// missingColumns returns the wanted columns absent from the table, in
// batch order.
func missingColumns(existing map[string]bool, wanted []string) []string {
	var missing []string
	for _, col := range wanted {
		if !existing[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

func buildAddColumn(table, col string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT", quoteIdent(table), quoteIdent(col))
}

// ensureIndexes creates the NAME uniqueness constraint and the fingerprint
// lookup index. Failures (for example a pre-existing duplicate NAME) are
// logged and the sync continues without the index.
func (p *Persister) ensureIndexes(ctx context.Context, table string) {
	unique := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdent("IX_"+table+"_NAME"), quoteIdent(table), quoteIdent(domain.NameField))
	if _, err := p.pool.Exec(ctx, unique); err != nil {
		log.Printf("[persist] %s: could not create unique NAME index: %v", table, err)
	}
	hash := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdent("IX_"+table+"_HASH"), quoteIdent(table), quoteIdent(domain.MetaHash))
	if _, err := p.pool.Exec(ctx, hash); err != nil {
		log.Printf("[persist] %s: could not create fingerprint index: %v", table, err)
	}
}

func loadFingerprints(ctx context.Context, tx pgx.Tx, table string) (map[string]string, error) {
	stmt := fmt.Sprintf("SELECT %s, %s FROM %s",
		quoteIdent(domain.NameField), quoteIdent(domain.MetaHash), quoteIdent(table))
	rows, err := tx.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("load fingerprints from %s: %w", table, err)
	}
	defer rows.Close()

	existing := make(map[string]string)
	for rows.Next() {
		var name, hash *string
		if err := rows.Scan(&name, &hash); err != nil {
			return nil, fmt.Errorf("scan fingerprint row: %w", err)
		}
		if name != nil {
			existing[*name] = domain.StringValue(hash)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fingerprints of %s: %w", table, err)
	}
	return existing, nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
