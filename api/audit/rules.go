package audit

import (
	"strings"

	"github.com/shopspring/decimal"

	"AcadFinAudit/api"
)

// ruleSpec is one anomaly rule: its canonical field requirements and
// its vectorized evaluator. A rule runs only when every required field
// is mapped; otherwise it is skipped for the whole run and its column
// is absent from the flag table.
type ruleSpec struct {
	Name   string
	Fields []string
	eval   func(n int, cols map[string][]string) []bool
	// Note is the short finding text attached to external validation
	// prompts when the rule fires.
	Note string
}

var vatCeilingRate = decimal.NewFromFloat(0.1)

var ruleSet = []ruleSpec{
	{
		Name:   "duplicate_charge",
		Fields: []string{"account", "payee", "amount", "description"},
		Note:   "동일 계좌/거래처/금액/내용의 중복 청구 의심",
		eval: func(n int, cols map[string][]string) []bool {
			counts := make(map[string]int, n)
			keys := make([]string, n)
			for i := 0; i < n; i++ {
				key := strings.Join([]string{
					cols["account"][i], cols["payee"][i],
					cols["amount"][i], cols["description"][i],
				}, "\x1f")
				keys[i] = key
				counts[key]++
			}
			flags := make([]bool, n)
			for i, key := range keys {
				flags[i] = counts[key] >= 2
			}
			return flags
		},
	},
	{
		Name:   "prepayment",
		Fields: []string{"transaction_date", "creation_date"},
		Note:   "결의서 생성 전 거래 발생 (선지급 의심)",
		eval: func(n int, cols map[string][]string) []bool {
			flags := make([]bool, n)
			for i := 0; i < n; i++ {
				txn := api.NormalizeDate(cols["transaction_date"][i])
				created := api.NormalizeDate(cols["creation_date"][i])
				flags[i] = txn != "" && created != "" && txn < created
			}
			return flags
		},
	},
	{
		Name:   "income_account_mismatch",
		Fields: []string{"income_type", "account_name"},
		Note:   "소득유형과 계정과목 불일치",
		eval: func(n int, cols map[string][]string) []bool {
			flags := make([]bool, n)
			for i := 0; i < n; i++ {
				income := cols["income_type"][i]
				account := cols["account_name"][i]
				if strings.Contains(income, "갑근") && !strings.Contains(account, "과세") {
					flags[i] = true
				}
				if strings.Contains(income, "비과세") && !strings.Contains(account, "비과세") {
					flags[i] = true
				}
			}
			return flags
		},
	},
	{
		Name:   "repeat_drafter_payee",
		Fields: []string{"drafter", "payee"},
		Note:   "동일 기안자-거래처 반복 지출",
		eval: func(n int, cols map[string][]string) []bool {
			counts := make(map[string]int, n)
			keys := make([]string, n)
			for i := 0; i < n; i++ {
				key := cols["drafter"][i] + "\x1f" + cols["payee"][i]
				keys[i] = key
				counts[key]++
			}
			flags := make([]bool, n)
			for i, key := range keys {
				flags[i] = counts[key] > 1
			}
			return flags
		},
	},
	{
		Name:   "vat_excess",
		Fields: []string{"vat", "amount"},
		Note:   "부가가치세가 공급가액의 10% 초과",
		eval: func(n int, cols map[string][]string) []bool {
			flags := make([]bool, n)
			for i := 0; i < n; i++ {
				vat, okV := parseAmount(cols["vat"][i])
				amount, okA := parseAmount(cols["amount"][i])
				flags[i] = okV && okA && vat.GreaterThan(amount.Mul(vatCeilingRate))
			}
			return flags
		},
	},
	{
		Name:   "missing_evidence",
		Fields: []string{"evidence_type"},
		Note:   "증빙유형 누락",
		eval: func(n int, cols map[string][]string) []bool {
			flags := make([]bool, n)
			for i := 0; i < n; i++ {
				flags[i] = strings.TrimSpace(cols["evidence_type"][i]) == ""
			}
			return flags
		},
	},
	{
		Name:   "outstanding_payable",
		Fields: []string{"payable_balance"},
		Note:   "미지급금 잔액 존재",
		eval: func(n int, cols map[string][]string) []bool {
			flags := make([]bool, n)
			for i := 0; i < n; i++ {
				bal, ok := parseAmount(cols["payable_balance"][i])
				flags[i] = ok && bal.IsPositive()
			}
			return flags
		},
	},
	{
		Name:   "return_processed",
		Fields: []string{"return_flag"},
		Note:   "반납 처리된 건",
		eval: func(n int, cols map[string][]string) []bool {
			flags := make([]bool, n)
			for i := 0; i < n; i++ {
				flags[i] = cols["return_flag"][i] == "Y"
			}
			return flags
		},
	},
	{
		Name:   "taxable_without_income_type",
		Fields: []string{"taxable_flag", "income_type"},
		Note:   "과세 대상이나 소득유형 미기재",
		eval: func(n int, cols map[string][]string) []bool {
			flags := make([]bool, n)
			for i := 0; i < n; i++ {
				flags[i] = cols["taxable_flag"][i] == "Y" &&
					strings.TrimSpace(cols["income_type"][i]) == ""
			}
			return flags
		},
	},
}

// RuleNames lists every known rule in evaluation order.
func RuleNames() []string {
	names := make([]string, len(ruleSet))
	for i, r := range ruleSet {
		names[i] = r.Name
	}
	return names
}

// ruleNote returns the prompt note for a rule name.
func ruleNote(name string) string {
	for _, r := range ruleSet {
		if r.Name == name {
			return r.Note
		}
	}
	return name
}

// parseAmount parses a numeric cell. Thousands separators, currency
// marks and surrounding whitespace are tolerated; anything else is
// reported as unparseable and the rule treats the cell as non-numeric.
func parseAmount(s string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "₩")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Evaluate runs every rule whose required fields are mapped and
// returns the per-row flag table. Row order follows the input table;
// the same table and mapping always produce the same flags.
func Evaluate(t *Table, mapping FieldMapping) *FlagTable {
	n := t.Len()
	out := &FlagTable{
		Flags:  make(map[string][]bool),
		Counts: make([]int, n),
		Any:    make([]bool, n),
	}
	for _, rule := range ruleSet {
		cols := make(map[string][]string, len(rule.Fields))
		mapped := true
		for _, field := range rule.Fields {
			col, ok := mapping.Mapped(field)
			if !ok {
				mapped = false
				break
			}
			vals, ok := t.Column(col)
			if !ok {
				mapped = false
				break
			}
			cols[field] = vals
		}
		if !mapped {
			continue
		}
		flags := rule.eval(n, cols)
		out.Rules = append(out.Rules, rule.Name)
		out.Flags[rule.Name] = flags
		for i, f := range flags {
			if f {
				out.Counts[i]++
				out.Any[i] = true
			}
		}
	}
	return out
}
