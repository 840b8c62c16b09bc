package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapColumnsAliasPriorityBeatsPosition(t *testing.T) {
	// 소계 comes first in the sheet but 결의금액 has higher priority.
	table := NewTable([]string{"소계", "결의금액", "부가가치세"}, nil)
	mapping := MapColumns(table)

	assert.Equal(t, "결의금액", mapping["amount"])
	assert.Equal(t, "부가가치세", mapping["vat"])
}

func TestMapColumnsFallsBackToLowerAliases(t *testing.T) {
	table := NewTable([]string{"소계", "거래처", "기안자부서"}, nil)
	mapping := MapColumns(table)

	assert.Equal(t, "소계", mapping["amount"])
	assert.Equal(t, "거래처", mapping["payee"])
	assert.Equal(t, "기안자부서", mapping["drafter"])
}

func TestMapColumnsUnmatchedFieldsAreEmpty(t *testing.T) {
	table := NewTable([]string{"결의금액"}, nil)
	mapping := MapColumns(table)

	col, ok := mapping.Mapped("return_flag")
	assert.False(t, ok)
	assert.Empty(t, col)
	// every catalog field is present in the mapping, mapped or not
	for _, f := range CanonicalFields() {
		_, present := mapping[f]
		assert.True(t, present, "field %s missing from mapping", f)
	}
}

func TestMapColumnsTrimsHeaderWhitespace(t *testing.T) {
	table := NewTable([]string{" 결의금액 "}, nil)
	mapping := MapColumns(table)
	assert.Equal(t, " 결의금액 ", mapping["amount"])
}

func TestApplyOverride(t *testing.T) {
	table := NewTable([]string{"금액합계", "결의금액"}, nil)
	mapping := MapColumns(table)
	require.Equal(t, "결의금액", mapping["amount"])

	ApplyOverride(mapping, "amount", "금액합계")
	assert.Equal(t, "금액합계", mapping["amount"])

	ApplyOverride(mapping, "amount", "")
	_, ok := mapping.Mapped("amount")
	assert.False(t, ok)
}

func TestNewTableHeaderHygiene(t *testing.T) {
	table := NewTable(
		[]string{"내용", "", "내용"},
		[][]string{{"a"}, {"b", "c", "d", "extra"}})

	assert.Equal(t, []string{"내용", "column_2", "내용_3"}, table.Headers)
	// short rows are padded, long rows truncated to header width
	assert.Equal(t, []string{"a", "", ""}, table.Rows[0])
	assert.Equal(t, []string{"b", "c", "d"}, table.Rows[1])
}
