package audit

import "strconv"

// Derived column names appended by Merge, after the original columns.
const (
	colViolationCount      = "violation_count"
	colAnyViolation        = "any_violation"
	colExternallyReviewed  = "externally_reviewed"
	colExternalViolation   = "external_violation"
	colViolationType       = "violation_type"
	colExplanation         = "explanation"
	colRegulationReference = "regulation_reference"
)

// Merge joins the original table, the rule flags, the validation
// selection and the external verdicts into one result table. Every
// input row survives: externally_reviewed reflects membership in the
// selection, so a selected row whose verdict has not arrived yet reads
// true with empty verdict columns, and unselected rows read false.
// Original column order is preserved; one boolean column per evaluated
// rule plus the aggregate and verdict columns are appended.
func Merge(t *Table, flags *FlagTable, selection []int, verdicts map[int]*Verdict) (*Table, Summary) {
	selected := make(map[int]bool, len(selection))
	for _, row := range selection {
		selected[row] = true
	}
	headers := make([]string, 0, len(t.Headers)+len(flags.Rules)+7)
	headers = append(headers, t.Headers...)
	headers = append(headers, flags.Rules...)
	headers = append(headers,
		colViolationCount, colAnyViolation, colExternallyReviewed,
		colExternalViolation, colViolationType, colExplanation, colRegulationReference)

	summary := Summary{TotalRows: t.Len()}
	rows := make([][]string, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := make([]string, 0, len(headers))
		row = append(row, t.Rows[i]...)
		for _, rule := range flags.Rules {
			row = append(row, strconv.FormatBool(flags.Flags[rule][i]))
		}
		row = append(row, strconv.Itoa(flags.Counts[i]), strconv.FormatBool(flags.Any[i]))
		if flags.Any[i] {
			summary.RuleViolationRows++
		}

		if selected[i] {
			summary.ExternallyReviewedRows++
		}
		if v, ok := verdicts[i]; ok {
			if v.Violation {
				summary.ExternallyConfirmedViolationRows++
			}
			row = append(row, strconv.FormatBool(selected[i]), strconv.FormatBool(v.Violation),
				v.ViolationType, v.Explanation, v.RegulationReference)
		} else {
			row = append(row, strconv.FormatBool(selected[i]), "", "", "", "")
		}
		rows[i] = row
	}
	return NewTable(headers, rows), summary
}
