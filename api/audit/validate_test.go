package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AcadFinAudit/internal/llm"
)

func TestParseVerdictFencedJSON(t *testing.T) {
	reply := "판단 결과는 다음과 같습니다.\n```json\n{\"violation\": true, \"violation_type\": \"중복 청구\", \"explanation\": \"동일 건 중복\", \"regulation_reference\": \"재무규정 제9조\"}\n```\n"
	v, err := parseVerdict(reply)
	require.NoError(t, err)
	assert.True(t, v.Violation)
	assert.Equal(t, "중복 청구", v.ViolationType)
	assert.Equal(t, "재무규정 제9조", v.RegulationReference)
}

func TestParseVerdictBareJSON(t *testing.T) {
	v, err := parseVerdict(`{"violation": false, "violation_type": "", "explanation": "적법", "regulation_reference": "N/A"}`)
	require.NoError(t, err)
	assert.False(t, v.Violation)
}

func TestParseVerdictGarbage(t *testing.T) {
	_, err := parseVerdict("죄송합니다, 판단할 수 없습니다.")
	assert.Error(t, err)
}

func TestDescribeRowSkipsEmptyCells(t *testing.T) {
	table := NewTable([]string{"결의금액", "내용", "비고"},
		[][]string{{"1000", "소모품", ""}})
	item := describeRow(table, 0)
	assert.Contains(t, item, "결의금액: 1000")
	assert.Contains(t, item, "내용: 소모품")
	assert.NotContains(t, item, "비고")
}

func TestRowNotes(t *testing.T) {
	flags := &FlagTable{
		Rules: []string{"missing_evidence", "outstanding_payable"},
		Flags: map[string][]bool{
			"missing_evidence":    {true, false},
			"outstanding_payable": {true, true},
		},
	}
	assert.Len(t, rowNotes(flags, 0), 2)
	assert.Equal(t, []string{ruleNote("outstanding_payable")}, rowNotes(flags, 1))
}

// chatServer fakes the completions endpoint with a fixed reply.
func chatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func TestValidateRowLocalFindingsForceViolation(t *testing.T) {
	srv := chatServer(t, "```json\n{\"violation\": false, \"violation_type\": \"\", \"explanation\": \"규정상 문제 없음\", \"regulation_reference\": \"N/A\"}\n```")
	defer srv.Close()
	t.Setenv("OPENAI_API_BASE", srv.URL)

	v := &Validator{LLM: llm.NewClientFromEnv(llm.WithRetry(1, 0)), TopK: 3}
	table := NewTable([]string{"결의금액"}, [][]string{{"1000"}})

	verdict := v.ValidateRow(context.Background(), table, 0, []string{"증빙유형 누락"})
	assert.True(t, verdict.Violation)
	assert.Contains(t, verdict.Explanation, "증빙유형 누락")
}

func TestValidateRowUnparseableReplyFallsBackToLocalChecks(t *testing.T) {
	srv := chatServer(t, "규정 위반으로 보기 어렵습니다.")
	defer srv.Close()
	t.Setenv("OPENAI_API_BASE", srv.URL)

	v := &Validator{LLM: llm.NewClientFromEnv(llm.WithRetry(1, 0)), TopK: 3}
	table := NewTable([]string{"결의금액"}, [][]string{{"1000"}})

	clean := v.ValidateRow(context.Background(), table, 0, nil)
	assert.False(t, clean.Violation)
	assert.Equal(t, "분석 불가", clean.ViolationType)

	flagged := v.ValidateRow(context.Background(), table, 0, []string{"미지급금 잔액 존재"})
	assert.True(t, flagged.Violation)
	assert.Equal(t, "기본 검증", flagged.ViolationType)
}

func TestValidateRowTransportErrorYieldsSyntheticVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	t.Setenv("OPENAI_API_BASE", srv.URL)

	v := &Validator{LLM: llm.NewClientFromEnv(llm.WithRetry(1, 0)), TopK: 3}
	table := NewTable([]string{"결의금액"}, [][]string{{"1000"}})

	verdict := v.ValidateRow(context.Background(), table, 0, nil)
	assert.True(t, verdict.Violation)
	assert.Equal(t, "validation error", verdict.ViolationType)
	assert.Equal(t, "N/A", verdict.RegulationReference)
}
