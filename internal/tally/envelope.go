package tally

import (
	"fmt"
	"strings"

	"github.com/lohithk/tallysync/internal/domain"
)

// The source system answers one of two request shapes. A licensed
// installation serves the rich Collection export with every requested
// field; an education/trial installation only answers the minimal Data
// export registered under a type-specific alternate identifier.

// richEnvelope builds the full-field Collection export request.
func richEnvelope(rt domain.RecordType) string {
	fields := requestFields(rt.Fields)
	var fetch strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&fetch, "<FETCH>%s</FETCH>", f)
	}
	return fmt.Sprintf(`<ENVELOPE>
  <HEADER>
    <VERSION>1</VERSION>
    <TALLYREQUEST>Export</TALLYREQUEST>
    <TYPE>Collection</TYPE>
    <ID>List of %[1]ss</ID>
  </HEADER>
  <BODY>
    <DESC>
      <STATICVARIABLES>
        <SVEXPORTFORMAT>$$SysName:XML</SVEXPORTFORMAT>
      </STATICVARIABLES>
      <TDL>
        <TDLMESSAGE>
          <COLLECTION NAME="List of %[1]ss" TYPE="%[1]s">%[2]s</COLLECTION>
        </TDLMESSAGE>
      </TDL>
    </DESC>
  </BODY>
</ENVELOPE>`, rt.Name, fetch.String())
}

// minimalEnvelope builds the NAME-only fallback request.
func minimalEnvelope(rt domain.RecordType) string {
	var fetch strings.Builder
	for _, f := range minimalFields() {
		fmt.Fprintf(&fetch, "<FETCH>%s</FETCH>", f)
	}
	return fmt.Sprintf(`<ENVELOPE>
  <HEADER>
    <VERSION>1</VERSION>
    <TALLYREQUEST>Export</TALLYREQUEST>
    <TYPE>Data</TYPE>
    <ID>Edu%[1]sList</ID>
  </HEADER>
  <BODY>
    <DESC>
      <TDL>
        <TDLMESSAGE>
          <COLLECTION NAME="Edu%[1]sList" TYPE="%[1]s">%[2]s</COLLECTION>
        </TDLMESSAGE>
      </TDL>
    </DESC>
  </BODY>
</ENVELOPE>`, rt.Name, fetch.String())
}

// requestFields appends the identity tags to a type's catalog fields.
func requestFields(fields []string) []string {
	out := make([]string, 0, len(fields)+3)
	out = append(out, fields...)
	out = append(out, domain.IdentityFields()...)
	return out
}

// minimalFields is the column set the fallback request asks for.
func minimalFields() []string {
	return append([]string{domain.NameField}, domain.IdentityFields()...)
}
