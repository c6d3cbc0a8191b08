package tally

import (
	"encoding/xml"
	"log"
	"strings"

	"github.com/lohithk/tallysync/internal/domain"
)

// Normalize parses a raw export response into a tabular batch. The source
// emits markup that is not always well formed, so the text is sanitized
// before structural parsing. A parse failure yields an empty batch carrying
// the requested columns; it is logged, never raised.
func Normalize(raw string, fields []string) domain.Batch {
	batch := domain.Batch{Columns: append([]string(nil), fields...)}
	if strings.TrimSpace(raw) == "" {
		return batch
	}

	cleaned := escapeBareAmpersands(stripIllegalChars(raw))

	var root xmlNode
	if err := xml.Unmarshal([]byte(cleaned), &root); err != nil {
		log.Printf("[tally] parse error: %v", err)
		return batch
	}

	for _, collection := range root.findAll("COLLECTION") {
		for _, record := range collection.Nodes {
			row := make(domain.Row, len(fields))
			for _, field := range fields {
				if child := record.firstChild(field); child != nil {
					text := child.Text
					row[field] = &text
				} else {
					row[field] = nil
				}
			}
			batch.Rows = append(batch.Rows, row)
		}
	}
	return batch
}

// xmlNode is a generic element tree; the export response has no fixed
// schema beyond the COLLECTION wrapper.
type xmlNode struct {
	XMLName xml.Name
	Text    string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

// findAll collects every descendant element with the given local name,
// including the node itself.
func (n *xmlNode) findAll(name string) []*xmlNode {
	var out []*xmlNode
	if n.XMLName.Local == name {
		out = append(out, n)
	}
	for i := range n.Nodes {
		out = append(out, n.Nodes[i].findAll(name)...)
	}
	return out
}

// firstChild returns the first direct child element with the given name.
func (n *xmlNode) firstChild(name string) *xmlNode {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			return &n.Nodes[i]
		}
	}
	return nil
}

// stripIllegalChars removes control characters XML 1.0 forbids, keeping
// tab, newline, and carriage return.
func stripIllegalChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
}

// escapeBareAmpersands rewrites '&' characters that do not start a
// recognized entity or character reference as '&amp;'. The source escapes
// inconsistently in narration fields.
func escapeBareAmpersands(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			b.WriteByte(s[i])
			continue
		}
		if startsEntity(s[i+1:]) {
			b.WriteByte('&')
			continue
		}
		b.WriteString("&amp;")
	}
	return b.String()
}

var namedEntities = []string{"amp;", "lt;", "gt;", "apos;", "quot;"}

// startsEntity reports whether rest begins with a named entity body or a
// decimal/hex character reference.
func startsEntity(rest string) bool {
	for _, e := range namedEntities {
		if strings.HasPrefix(rest, e) {
			return true
		}
	}
	if !strings.HasPrefix(rest, "#") {
		return false
	}
	body := rest[1:]
	hex := false
	if strings.HasPrefix(body, "x") || strings.HasPrefix(body, "X") {
		hex = true
		body = body[1:]
	}
	digits := 0
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == ';' {
			return digits > 0
		}
		if hex {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
				return false
			}
		} else if c < '0' || c > '9' {
			return false
		}
		digits++
	}
	return false
}
