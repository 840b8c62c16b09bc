package audit

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPrefixFilter(t *testing.T) {
	table := NewTable([]string{"결의서번호", "내용"}, [][]string{
		{"GEX2026-001", "a"},
		{"pod2026-002", "b"}, // prefix match is case-insensitive
		{"ZZZ2026-003", "c"},
		{"TED2026-004", "d"},
	})
	mapping := MapColumns(table)

	filtered, excluded := applyPrefixFilter(table, mapping)
	assert.Equal(t, 3, filtered.Len())
	assert.Equal(t, 1, excluded)
	assert.Equal(t, "d", filtered.Value(2, "내용"))
}

func TestApplyPrefixFilterWithoutDocNoIsNoop(t *testing.T) {
	table := NewTable([]string{"내용"}, [][]string{{"a"}, {"b"}})
	filtered, excluded := applyPrefixFilter(table, MapColumns(table))
	assert.Same(t, table, filtered)
	assert.Zero(t, excluded)
}

func newTestService(t *testing.T) (*AuditService, http.Handler) {
	t.Helper()
	svc := NewAuditService(map[string]interface{}{}, nil).(*AuditService)
	return svc, svc.routes()
}

func uploadCSV(t *testing.T, h http.Handler, csvBody string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "ledger.csv")
	require.NoError(t, err)
	fw.Write([]byte(csvBody))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/audit/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		SessionID string            `json:"session_id"`
		RowCount  int               `json:"row_count"`
		Mapping   map[string]string `json:"mapping"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func postJSON(h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadRunResultsFlow(t *testing.T) {
	_, h := newTestService(t)
	sessionID := uploadCSV(t, h, "증빙유형,미지급금\n,1000\n세금계산서,0\n")

	rec := postJSON(h, "/audit/run", map[string]interface{}{"session_id": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var runResp struct {
		FlaggedRows  int      `json:"flagged_rows"`
		SelectedRows int      `json:"selected_rows"`
		SkippedRules []string `json:"skipped_rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runResp))
	assert.Equal(t, 1, runResp.FlaggedRows)
	assert.Equal(t, 2, runResp.SelectedRows)
	assert.Contains(t, runResp.SkippedRules, "vat_excess")

	req := httptest.NewRequest(http.MethodGet, "/audit/results?session_id="+sessionID, nil)
	resRec := httptest.NewRecorder()
	h.ServeHTTP(resRec, req)
	require.Equal(t, http.StatusOK, resRec.Code)

	var results struct {
		Summary Summary    `json:"summary"`
		Rows    [][]string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(resRec.Body.Bytes(), &results))
	assert.Equal(t, 2, results.Summary.TotalRows)
	assert.Equal(t, 1, results.Summary.RuleViolationRows)
	// both rows are in the selection, so they count as reviewed even
	// before their verdicts arrive
	assert.Equal(t, 2, results.Summary.ExternallyReviewedRows)
	assert.Zero(t, results.Summary.ExternallyConfirmedViolationRows)
	assert.Len(t, results.Rows, 2)
}

func TestMappingFrozenAfterRun(t *testing.T) {
	_, h := newTestService(t)
	sessionID := uploadCSV(t, h, "증빙유형,미지급금\n,1000\n")

	rec := postJSON(h, "/audit/mapping", map[string]interface{}{
		"session_id": sessionID,
		"overrides":  map[string]string{"payable_balance": ""},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = postJSON(h, "/audit/run", map[string]interface{}{"session_id": sessionID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(h, "/audit/mapping", map[string]interface{}{
		"session_id": sessionID,
		"overrides":  map[string]string{"payable_balance": "미지급금"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMappingRejectsUnknownFieldAndColumn(t *testing.T) {
	_, h := newTestService(t)
	sessionID := uploadCSV(t, h, "증빙유형\nx\n")

	rec := postJSON(h, "/audit/mapping", map[string]interface{}{
		"session_id": sessionID,
		"overrides":  map[string]string{"not_a_field": "증빙유형"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(h, "/audit/mapping", map[string]interface{}{
		"session_id": sessionID,
		"overrides":  map[string]string{"amount": "없는컬럼"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndpointsRejectUnknownSession(t *testing.T) {
	_, h := newTestService(t)

	rec := postJSON(h, "/audit/run", map[string]interface{}{"session_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/audit/results?session_id=nope", nil)
	resRec := httptest.NewRecorder()
	h.ServeHTTP(resRec, req)
	assert.Equal(t, http.StatusNotFound, resRec.Code)
}

func TestRunRejectedWhileValidationInFlight(t *testing.T) {
	svc, h := newTestService(t)
	sessionID := uploadCSV(t, h, "결의서번호,증빙유형\nZZZ-001,\nGEX-002,영수증\n")

	rec := postJSON(h, "/audit/run", map[string]interface{}{"session_id": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	a, ok := svc.lookup(sessionID)
	require.True(t, ok)
	a.mu.Lock()
	a.validating = true
	a.Verdicts[0] = &Verdict{Violation: true, ViolationType: "증빙 누락", Explanation: "첫 배치 판정", RegulationReference: "N/A"}
	a.mu.Unlock()

	// a re-run with the prefix filter would swap the working table and
	// reset the verdict map under the running batch
	rec = postJSON(h, "/audit/run", map[string]interface{}{
		"session_id":    sessionID,
		"prefix_filter": true,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Equal(t, 2, a.Working.Len())
	require.Contains(t, a.Verdicts, 0)
	assert.Equal(t, "첫 배치 판정", a.Verdicts[0].Explanation)
}

func TestValidateBeforeRunConflicts(t *testing.T) {
	_, h := newTestService(t)
	sessionID := uploadCSV(t, h, "증빙유형\nx\n")

	rec := postJSON(h, "/audit/validate", map[string]interface{}{"session_id": sessionID})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
