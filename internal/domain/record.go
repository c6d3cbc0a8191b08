package domain

// NameField is the natural key column present in every master export.
const NameField = "NAME"

// Metadata columns carry sync bookkeeping alongside the business data.
// They are prefixed so the fingerprint can exclude them.
const (
	MetadataPrefix = "_"

	MetaHash     = "_HASH"
	MetaSyncedAt = "_SYNCED_AT"
	MetaAlterID  = "_ALTERID"
	MetaGUID     = "_GUID"
	MetaMasterID = "_MASTERID"
)

// IdentityFields are the stable identifiers Tally can attach to a master
// record. They are requested on every export and stored as metadata columns.
func IdentityFields() []string {
	return []string{MetaAlterID, MetaGUID, MetaMasterID}
}

// IsMetadataField reports whether a column holds sync bookkeeping rather
// than business data.
func IsMetadataField(name string) bool {
	return len(name) > 0 && name[0:1] == MetadataPrefix
}

// RecordType is one master category the source system can export.
type RecordType struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// Row maps a column name to its exported value. A nil value means the
// source omitted the element, which is distinct from an empty string.
type Row map[string]*string

// Clone returns a shallow copy of the row's value pointers.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Batch is an ordered set of rows sharing one column set, produced fresh
// per sync attempt.
type Batch struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Empty reports whether the batch carries no rows.
func (b Batch) Empty() bool {
	return len(b.Rows) == 0
}

// HasColumn reports whether the batch's column set contains name.
func (b Batch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ExportTier records which request shape the source answered.
type ExportTier string

const (
	// TierRich means the full field list was served (licensed edition).
	TierRich ExportTier = "rich"
	// TierMinimal means only the NAME fallback was served (education edition).
	TierMinimal ExportTier = "minimal"
	// TierNone means neither request produced rows.
	TierNone ExportTier = "none"
)

// StringValue dereferences an optional cell value, mapping nil to "".
func StringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// StringPtr wraps a value for use in a Row.
func StringPtr(v string) *string {
	return &v
}
