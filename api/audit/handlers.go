package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"AcadFinAudit/api"
	"AcadFinAudit/api/constants"
	"AcadFinAudit/internal/logger"
)

// docPrefixes is the settlement document series eligible for audit.
// Rows whose document number starts with anything else are dropped
// when the prefix filter is enabled on a run.
var docPrefixes = []string{"GEX", "POD", "MEX", "TED", "TEF", "RRA", "RSA"}

const maxUploadBytes = 64 << 20

func (s *AuditService) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/audit/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/audit/mapping", s.handleMapping).Methods(http.MethodPost)
	r.HandleFunc("/audit/run", s.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/audit/validate", s.handleValidate).Methods(http.MethodPost)
	r.HandleFunc("/audit/results", s.handleResults).Methods(http.MethodGet)
	r.HandleFunc("/audit/export", s.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/audit/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/audit/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Audit service is healthy"))
	}).Methods(http.MethodGet)
	return r
}

// handleUpload accepts one spreadsheet (multipart field "file",
// optional "password" for encrypted xlsx), opens a session and returns
// the automatic column mapping.
func (s *AuditService) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrNoFileUploaded)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrNoFileUploaded)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}
	table, err := ParseUpload(header.Filename, data, r.FormValue("password"))
	if err == ErrUnsupportedFormat {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrUnsupportedFormat)
		return
	}
	if err != nil {
		api.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	sess := s.sessions.Create()
	a := &analysis{
		FileName: header.Filename,
		Source:   table,
		Working:  table,
		Mapping:  MapColumns(table),
		Verdicts: make(map[int]*Verdict),
	}
	s.mu.Lock()
	s.analyses[sess.ID] = a
	s.mu.Unlock()

	unmapped := make([]string, 0)
	for _, f := range CanonicalFields() {
		if _, ok := a.Mapping.Mapped(f); !ok {
			unmapped = append(unmapped, f)
		}
	}
	logger.Audit(fmt.Sprintf("[Audit] uploaded %s: %d rows, %d columns (session %s)",
		header.Filename, table.Len(), len(table.Headers), sess.ID))
	api.RespondWithPayload(w, map[string]interface{}{
		"session_id": sess.ID,
		"file_name":  header.Filename,
		"row_count":  table.Len(),
		"headers":    table.Headers,
		"mapping":    a.Mapping,
		"unmapped":   unmapped,
	})
}

type mappingRequest struct {
	SessionID string            `json:"session_id"`
	Overrides map[string]string `json:"overrides"`
}

// handleMapping applies manual mapping overrides. Overriding is
// rejected once the rule engine has run for the session.
func (s *AuditService) handleMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
		return
	}
	a, ok := s.lookup(req.SessionID)
	if !ok {
		api.RespondWithError(w, http.StatusNotFound, constants.ErrInvalidSession)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		api.RespondWithError(w, http.StatusConflict, constants.ErrMappingFrozen)
		return
	}
	for field, column := range req.Overrides {
		if !IsCanonicalField(field) {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrUnknownField+": "+field)
			return
		}
		if column != "" && !a.Source.Has(column) {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrColumnNotInTable+": "+column)
			return
		}
	}
	for field, column := range req.Overrides {
		ApplyOverride(a.Mapping, field, column)
	}
	api.RespondWithPayload(w, map[string]interface{}{"mapping": a.Mapping})
}

type runRequest struct {
	SessionID    string `json:"session_id"`
	PrefixFilter bool   `json:"prefix_filter"`
	MaxSamples   int    `json:"max_samples"`
	Seed         *int64 `json:"seed"`
}

// handleRun freezes the mapping, optionally applies the document
// prefix filter, evaluates every mapped rule and selects the external
// validation targets.
func (s *AuditService) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
		return
	}
	a, ok := s.lookup(req.SessionID)
	if !ok {
		api.RespondWithError(w, http.StatusNotFound, constants.ErrInvalidSession)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// A re-run must not swap the working table or reset the verdict map
	// under an in-flight batch: its goroutine writes verdicts keyed by
	// the old run's row indices.
	if a.validating {
		api.RespondWithError(w, http.StatusConflict, constants.ErrValidationRunning)
		return
	}
	a.frozen = true
	a.Working = a.Source
	a.Excluded = 0
	if req.PrefixFilter {
		a.Working, a.Excluded = applyPrefixFilter(a.Source, a.Mapping)
	}
	a.Flags = Evaluate(a.Working, a.Mapping)

	maxSamples := s.maxSamples
	if req.MaxSamples > 0 {
		maxSamples = req.MaxSamples
	}
	if req.Seed != nil {
		// explicit seed makes the random fill reproducible
		a.Selection = SelectTargets(a.Working, a.Flags, a.Mapping, maxSamples,
			rand.New(rand.NewSource(*req.Seed)))
	} else {
		s.mu.Lock()
		a.Selection = SelectTargets(a.Working, a.Flags, a.Mapping, maxSamples, s.rng)
		s.mu.Unlock()
	}
	a.Verdicts = make(map[int]*Verdict)
	a.progressDone = 0

	flagged := 0
	for _, any := range a.Flags.Any {
		if any {
			flagged++
		}
	}
	logger.Audit(fmt.Sprintf("[Audit] rules run for session %s: %d/%d rows flagged, %d selected, %d excluded by prefix",
		req.SessionID, flagged, a.Working.Len(), len(a.Selection), a.Excluded))
	api.RespondWithPayload(w, map[string]interface{}{
		"row_count":       a.Working.Len(),
		"excluded_rows":   a.Excluded,
		"evaluated_rules": a.Flags.Rules,
		"skipped_rules":   a.Flags.Skipped(),
		"flagged_rows":    flagged,
		"selected_rows":   len(a.Selection),
	})
}

// applyPrefixFilter keeps only rows whose document number starts with
// an audited series prefix. Without a mapped doc_no field the filter
// is a no-op.
func applyPrefixFilter(t *Table, mapping FieldMapping) (*Table, int) {
	col, ok := mapping.Mapped("doc_no")
	if !ok {
		return t, 0
	}
	vals, ok := t.Column(col)
	if !ok {
		return t, 0
	}
	kept := make([]int, 0, t.Len())
	for i, v := range vals {
		doc := strings.ToUpper(strings.TrimSpace(v))
		for _, p := range docPrefixes {
			if strings.HasPrefix(doc, p) {
				kept = append(kept, i)
				break
			}
		}
	}
	if len(kept) == t.Len() {
		return t, 0
	}
	return t.Subset(kept), t.Len() - len(kept)
}

type validateRequest struct {
	SessionID string `json:"session_id"`
}

// handleValidate starts the external validation pass over the selected
// rows. The pass runs in the background; progress is observable on the
// websocket stream and in /audit/results.
func (s *AuditService) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
		return
	}
	a, ok := s.lookup(req.SessionID)
	if !ok {
		api.RespondWithError(w, http.StatusNotFound, constants.ErrInvalidSession)
		return
	}

	a.mu.Lock()
	switch {
	case a.Flags == nil:
		a.mu.Unlock()
		api.RespondWithError(w, http.StatusConflict, constants.ErrAnalysisNotRun)
		return
	case len(a.Selection) == 0:
		a.mu.Unlock()
		api.RespondWithError(w, http.StatusConflict, constants.ErrSelectionEmpty)
		return
	case a.validating:
		a.mu.Unlock()
		api.RespondWithError(w, http.StatusConflict, constants.ErrValidationRunning)
		return
	}
	a.validating = true
	a.progressDone = 0
	total := len(a.Selection)
	a.mu.Unlock()

	go s.runValidation(req.SessionID, a)

	api.RespondWithPayload(w, map[string]interface{}{
		"started": true,
		"total":   total,
	})
}

// runValidation walks the selection sequentially. Each row's verdict
// is recorded as soon as it arrives so partial progress survives a
// failure mid-batch.
func (s *AuditService) runValidation(sessionID string, a *analysis) {
	a.mu.Lock()
	table := a.Working
	flags := a.Flags
	selection := append([]int(nil), a.Selection...)
	a.mu.Unlock()

	for done, row := range selection {
		if s.ctx.Err() != nil {
			break
		}
		verdict := s.validator.ValidateRow(s.ctx, table, row, rowNotes(flags, row))

		a.mu.Lock()
		v := verdict
		a.Verdicts[row] = &v
		a.progressDone = done + 1
		a.mu.Unlock()

		s.hub.broadcast(progressEvent{
			SessionID: sessionID,
			Row:       row,
			Done:      done + 1,
			Total:     len(selection),
			Violation: verdict.Violation,
			Finished:  done+1 == len(selection),
		})
	}

	a.mu.Lock()
	a.validating = false
	done := a.progressDone
	a.mu.Unlock()
	logger.Audit(fmt.Sprintf("[Audit] external validation finished for session %s: %d/%d rows reviewed",
		sessionID, done, len(selection)))
}

// handleResults returns the merged result table with per-row flags,
// verdicts and the run summary.
func (s *AuditService) handleResults(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(r.URL.Query().Get("session_id"))
	if !ok {
		api.RespondWithError(w, http.StatusNotFound, constants.ErrInvalidSession)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Flags == nil {
		api.RespondWithError(w, http.StatusConflict, constants.ErrAnalysisNotRun)
		return
	}
	merged, summary := Merge(a.Working, a.Flags, a.Selection, a.Verdicts)
	api.RespondWithPayload(w, map[string]interface{}{
		"headers":       merged.Headers,
		"rows":          merged.Rows,
		"summary":       summary,
		"excluded_rows": a.Excluded,
		"skipped_rules": a.Flags.Skipped(),
		"validating":    a.validating,
		"progress": map[string]int{
			"done":  a.progressDone,
			"total": len(a.Selection),
		},
	})
}

// handleExport writes the merged table to a timestamped csv or xlsx
// file, optionally archives it to S3, and serves it as a download.
func (s *AuditService) handleExport(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(r.URL.Query().Get("session_id"))
	if !ok {
		api.RespondWithError(w, http.StatusNotFound, constants.ErrInvalidSession)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		api.RespondWithError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}

	a.mu.Lock()
	if a.Flags == nil {
		a.mu.Unlock()
		api.RespondWithError(w, http.StatusConflict, constants.ErrAnalysisNotRun)
		return
	}
	merged, _ := Merge(a.Working, a.Flags, a.Selection, a.Verdicts)
	a.mu.Unlock()

	name := ExportFileName(format, time.Now())
	path := filepath.Join(s.exportDir, name)
	var err error
	if format == "csv" {
		err = WriteCSV(merged, path)
	} else {
		err = WriteXLSX(merged, path)
	}
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, "export failed: "+err.Error())
		return
	}

	if s.s3Bucket != "" {
		if err := UploadExportToS3(r.Context(), s.s3Bucket, s.s3Region, path); err != nil {
			logger.Audit("[Audit][ERROR] s3 archive failed: " + err.Error())
		}
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

func (s *AuditService) handleStream(w http.ResponseWriter, r *http.Request) {
	s.hub.subscribe(w, r)
}
