package audit

import "strings"

// MapColumns resolves every canonical field against the uploaded
// headers. Matching is exact after trimming whitespace; the first
// alias (by catalog priority) found in the table wins, so 결의금액 beats
// 소계 even when 소계 appears earlier in the sheet. Fields with no
// matching alias map to "".
func MapColumns(t *Table) FieldMapping {
	trimmed := make(map[string]string, len(t.Headers))
	for _, h := range t.Headers {
		key := strings.TrimSpace(h)
		if _, dup := trimmed[key]; !dup {
			trimmed[key] = h
		}
	}
	mapping := make(FieldMapping, len(fieldCatalog))
	for _, f := range fieldCatalog {
		mapping[f.Name] = ""
		for _, alias := range f.Aliases {
			if col, ok := trimmed[alias]; ok {
				mapping[f.Name] = col
				break
			}
		}
	}
	return mapping
}

// ApplyOverride re-points one canonical field at an explicit column, or
// clears it when column is empty. The caller validates field and
// column names against the catalog and table first.
func ApplyOverride(mapping FieldMapping, field, column string) {
	mapping[field] = column
}
