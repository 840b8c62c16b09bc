package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flagTable(t *testing.T, headers []string, rows [][]string) (*Table, *FlagTable) {
	t.Helper()
	table := NewTable(headers, rows)
	mapping := MapColumns(table)
	return table, Evaluate(table, mapping)
}

func TestDuplicateChargeFlagsAllGroupMembers(t *testing.T) {
	_, flags := flagTable(t,
		[]string{"계좌번호", "지급거래처", "결의금액", "내용"},
		[][]string{
			{"100-1", "A상사", "50000", "소모품"},
			{"100-1", "A상사", "50000", "소모품"},
			{"100-1", "A상사", "50000", "소모품"},
			{"200-2", "B상사", "70000", "인쇄비"},
		})
	require.Contains(t, flags.Rules, "duplicate_charge")
	dup := flags.Flags["duplicate_charge"]
	assert.Equal(t, []bool{true, true, true, false}, dup)
}

func TestPrepaymentRequiresParseableDates(t *testing.T) {
	_, flags := flagTable(t,
		[]string{"거래일자", "생성일자"},
		[][]string{
			{"2024-01-01", "2024-02-01"}, // transacted before the slip existed
			{"2024-03-01", "2024-02-01"},
			{"없음", "2024-02-01"},
			{"2024-01-01", ""},
		})
	assert.Equal(t, []bool{true, false, false, false}, flags.Flags["prepayment"])
}

func TestIncomeAccountMismatch(t *testing.T) {
	_, flags := flagTable(t,
		[]string{"소득유형", "계정"},
		[][]string{
			{"갑근세", "복리후생비"},   // 갑근 income booked to a non-taxable account
			{"갑근세", "과세소득"},    // consistent
			{"비과세근로", "비과세소득"}, // consistent
			{"비과세근로", "급여"},    // 비과세 income on a taxable account
			{"사업소득", "지급수수료"},  // neither marker
		})
	assert.Equal(t, []bool{true, false, false, true, false},
		flags.Flags["income_account_mismatch"])
}

func TestVATExcessUsesExactTenPercent(t *testing.T) {
	_, flags := flagTable(t,
		[]string{"부가가치세", "결의금액"},
		[][]string{
			{"150", "1000"},   // 15% > 10%
			{"100", "1000"},   // exactly 10%, not excess
			{"99", "1000"},
			{"1,500", "10,000"},
			{"abc", "1000"},   // unparseable vat never triggers
			{"150", ""},
		})
	assert.Equal(t, []bool{true, false, false, true, false, false},
		flags.Flags["vat_excess"])
}

func TestSimpleFieldRules(t *testing.T) {
	_, flags := flagTable(t,
		[]string{"증빙유형", "미지급금", "반납여부", "과세사업여부", "소득유형"},
		[][]string{
			{"세금계산서", "0", "N", "Y", "사업소득"},
			{"  ", "1000", "Y", "Y", ""},
			{"", "-500", "y", "N", ""},
		})
	assert.Equal(t, []bool{false, true, true}, flags.Flags["missing_evidence"])
	assert.Equal(t, []bool{false, true, false}, flags.Flags["outstanding_payable"])
	// return_processed matches the literal "Y" only
	assert.Equal(t, []bool{false, true, false}, flags.Flags["return_processed"])
	assert.Equal(t, []bool{false, true, false}, flags.Flags["taxable_without_income_type"])
}

func TestRepeatDrafterPayee(t *testing.T) {
	_, flags := flagTable(t,
		[]string{"기안자성명", "지급거래처"},
		[][]string{
			{"김철수", "A상사"},
			{"김철수", "A상사"},
			{"김철수", "B상사"},
			{"이영희", "A상사"},
		})
	assert.Equal(t, []bool{true, true, false, false},
		flags.Flags["repeat_drafter_payee"])
}

func TestUnmappedRuleIsSkippedNotFalse(t *testing.T) {
	_, flags := flagTable(t,
		[]string{"증빙유형"},
		[][]string{{"세금계산서"}, {""}})

	assert.Equal(t, []string{"missing_evidence"}, flags.Rules)
	assert.NotContains(t, flags.Flags, "return_processed")
	assert.Contains(t, flags.Skipped(), "return_processed")
	assert.Contains(t, flags.Skipped(), "vat_excess")
}

func TestViolationCountMatchesFlagSum(t *testing.T) {
	_, flags := flagTable(t,
		[]string{"증빙유형", "미지급금", "반납여부"},
		[][]string{
			{"", "1000", "Y"},
			{"세금계산서", "0", "N"},
			{"", "0", "N"},
		})
	for i := range flags.Counts {
		sum := 0
		for _, rule := range flags.Rules {
			if flags.Flags[rule][i] {
				sum++
			}
		}
		assert.Equal(t, sum, flags.Counts[i], "row %d", i)
		assert.Equal(t, sum > 0, flags.Any[i], "row %d", i)
	}
	assert.Equal(t, []int{3, 0, 1}, flags.Counts)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	table := NewTable(
		[]string{"증빙유형", "미지급금", "반납여부"},
		[][]string{{"", "1000", "Y"}, {"영수증", "0", "N"}})
	mapping := MapColumns(table)

	first := Evaluate(table, mapping)
	second := Evaluate(table, mapping)
	assert.Equal(t, first, second)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1000", "1000", true},
		{"1,234,567", "1234567", true},
		{"₩ 5,000", "5000", true},
		{"-500.25", "-500.25", true},
		{"", "", false},
		{"N/A", "", false},
	}
	for _, c := range cases {
		d, ok := parseAmount(c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		if c.ok {
			assert.Equal(t, c.want, d.String(), "input %q", c.in)
		}
	}
}
