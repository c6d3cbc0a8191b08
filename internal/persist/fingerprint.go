package persist

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/lohithk/tallysync/internal/domain"
)

// syncedAtLayout matches the timestamp format stored in _SYNCED_AT.
const syncedAtLayout = "2006-01-02 15:04:05"

// Fingerprint digests a row's business columns in column order. Metadata
// columns are excluded so bookkeeping churn never looks like a data change.
// A nil cell encodes as empty, same as the source omitting the element.
func Fingerprint(row domain.Row, columns []string) string {
	var b strings.Builder
	first := true
	for _, col := range columns {
		if domain.IsMetadataField(col) {
			continue
		}
		if !first {
			b.WriteByte('|')
		}
		first = false
		b.WriteString(domain.StringValue(row[col]))
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Enrich returns a copy of the batch with the metadata columns populated:
// _HASH from the business columns, _SYNCED_AT from now, and the identity
// columns present (nil when the source did not supply them).
func Enrich(batch domain.Batch, now time.Time) domain.Batch {
	columns := append([]string(nil), batch.Columns...)
	for _, meta := range append([]string{domain.MetaHash, domain.MetaSyncedAt}, domain.IdentityFields()...) {
		if !batch.HasColumn(meta) {
			columns = append(columns, meta)
		}
	}

	syncedAt := now.Format(syncedAtLayout)
	rows := make([]domain.Row, len(batch.Rows))
	for i, row := range batch.Rows {
		enriched := row.Clone()
		hash := Fingerprint(row, batch.Columns)
		enriched[domain.MetaHash] = &hash
		enriched[domain.MetaSyncedAt] = &syncedAt
		for _, id := range domain.IdentityFields() {
			if _, ok := enriched[id]; !ok {
				enriched[id] = nil
			}
		}
		rows[i] = enriched
	}
	return domain.Batch{Columns: columns, Rows: rows}
}
