package audit

import "fmt"

// Table is one uploaded disbursement sheet: ordered headers and string
// cell values, padded to header width. Original columns are never
// mutated after load; derived columns exist only on the merged result.
type Table struct {
	Headers []string
	Rows    [][]string
	index   map[string]int
}

// NewTable normalizes the header row (blank or duplicate headers get a
// positional suffix) and pads short rows.
func NewTable(headers []string, rows [][]string) *Table {
	fixed := make([]string, len(headers))
	seen := make(map[string]bool, len(headers))
	for i, h := range headers {
		name := h
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		for suffix := i + 1; seen[name]; suffix++ {
			name = fmt.Sprintf("%s_%d", h, suffix)
		}
		seen[name] = true
		fixed[i] = name
	}
	idx := make(map[string]int, len(fixed))
	for i, h := range fixed {
		idx[h] = i
	}
	padded := make([][]string, len(rows))
	for i, row := range rows {
		if len(row) >= len(fixed) {
			padded[i] = row[:len(fixed)]
			continue
		}
		p := make([]string, len(fixed))
		copy(p, row)
		padded[i] = p
	}
	return &Table{Headers: fixed, Rows: padded, index: idx}
}

func (t *Table) Len() int {
	return len(t.Rows)
}

func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Column returns all values of one column in row order.
func (t *Table) Column(column string) ([]string, bool) {
	i, ok := t.index[column]
	if !ok {
		return nil, false
	}
	vals := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		vals[r] = row[i]
	}
	return vals, true
}

// Value returns one cell; empty string when the column is unknown.
func (t *Table) Value(row int, column string) string {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][i]
}

// Subset returns a new table containing the given rows, in order.
func (t *Table) Subset(rows []int) *Table {
	kept := make([][]string, 0, len(rows))
	for _, r := range rows {
		if r >= 0 && r < len(t.Rows) {
			kept = append(kept, t.Rows[r])
		}
	}
	headers := make([]string, len(t.Headers))
	copy(headers, t.Headers)
	return NewTable(headers, kept)
}

// FieldMapping maps canonical field names to actual table columns.
// Empty string means unmapped; rules needing that field are skipped.
type FieldMapping map[string]string

// Mapped reports the column for a canonical field, if resolved.
func (m FieldMapping) Mapped(field string) (string, bool) {
	col, ok := m[field]
	return col, ok && col != ""
}

// FlagTable holds one boolean column per evaluated rule plus the
// per-row aggregates. Rules whose fields were unmapped are absent from
// Rules/Flags entirely, which downstream reports as N/A rather than
// false.
type FlagTable struct {
	Rules  []string
	Flags  map[string][]bool
	Counts []int
	Any    []bool
}

// Skipped lists rules that were not evaluated for this run.
func (f *FlagTable) Skipped() []string {
	evaluated := make(map[string]bool, len(f.Rules))
	for _, r := range f.Rules {
		evaluated[r] = true
	}
	skipped := make([]string, 0)
	for _, r := range RuleNames() {
		if !evaluated[r] {
			skipped = append(skipped, r)
		}
	}
	return skipped
}

// Verdict is the structured outcome of the external regulation check
// for one row. Immutable once produced.
type Verdict struct {
	Violation           bool   `json:"violation"`
	ViolationType       string `json:"violation_type"`
	Explanation         string `json:"explanation"`
	RegulationReference string `json:"regulation_reference"`
}

// Summary aggregates the merged result table.
type Summary struct {
	TotalRows                        int `json:"total_rows"`
	RuleViolationRows                int `json:"rule_violation_rows"`
	ExternallyReviewedRows           int `json:"externally_reviewed_rows"`
	ExternallyConfirmedViolationRows int `json:"externally_confirmed_violation_rows"`
}
