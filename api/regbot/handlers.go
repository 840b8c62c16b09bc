package regbot

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"AcadFinAudit/api"
	"AcadFinAudit/api/constants"
	"AcadFinAudit/internal/llm"
	"AcadFinAudit/internal/logger"
	"AcadFinAudit/internal/regstore"
)

const (
	maxDocumentBytes = 32 << 20
	embedBatchSize   = 64
)

const chatSystemPrompt = `당신은 대학 재무팀의 회계·지출 규정 안내 챗봇입니다.
제공된 규정 발췌만 근거로 정확하고 간결하게 한국어로 답변하세요.
규정에 없는 내용은 추측하지 말고 규정에서 확인할 수 없다고 답하세요.
답변 마지막에는 반드시 아래 형식으로 후속 질문 3개를 제안하세요:

#### 추천 질문
1. ...
2. ...
3. ...`

func (s *RegbotService) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/regbot/documents", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/regbot/documents", s.handleListDocuments).Methods(http.MethodGet)
	r.HandleFunc("/regbot/documents/{doc_id}", s.handleDeleteDocument).Methods(http.MethodDelete)
	r.HandleFunc("/regbot/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/regbot/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/regbot/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Regbot service is healthy"))
	}).Methods(http.MethodGet)
	return r
}

// handleIngest accepts one or more plain-text regulation documents
// (multipart field "files"), splits them into overlapping chunks,
// embeds the chunks and stores everything.
func (s *RegbotService) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrNoFileUploaded)
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrNoFileUploaded)
		return
	}
	uploadedBy := r.FormValue("uploaded_by")

	ingested := make([]map[string]interface{}, 0, len(files))
	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if ext != ".txt" && ext != ".md" {
			api.RespondWithError(w, http.StatusBadRequest,
				fmt.Sprintf("unsupported document format %q: expected txt or md", ext))
			return
		}
		f, err := fh.Open()
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "failed to open upload: "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
			return
		}
		text := decodeText(data)
		chunks := regstore.SplitText(text, s.chunkSize, s.overlap)
		if len(chunks) == 0 {
			api.RespondWithError(w, http.StatusUnprocessableEntity, fh.Filename+" contains no text")
			return
		}

		embeddings, err := s.embedAll(r, chunks)
		if err != nil {
			api.RespondWithError(w, http.StatusBadGateway, "embedding failed: "+err.Error())
			return
		}
		docID, err := s.store.AddDocument(r.Context(), fh.Filename, uploadedBy, chunks, embeddings)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "store document: "+err.Error())
			return
		}
		logger.Audit(fmt.Sprintf("[Regbot] ingested %s: %d chunks (doc %s)", fh.Filename, len(chunks), docID))
		ingested = append(ingested, map[string]interface{}{
			"doc_id":      docID,
			"file_name":   fh.Filename,
			"chunk_count": len(chunks),
		})
	}
	api.RespondWithPayload(w, map[string]interface{}{"documents": ingested})
}

// embedAll embeds chunks in bounded batches so one giant document does
// not blow the embedding request size limit.
func (s *RegbotService) embedAll(r *http.Request, chunks []string) ([][]float64, error) {
	all := make([][]float64, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		vecs, err := s.llm.Embed(r.Context(), chunks[start:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

// decodeText handles the EUC-KR text files older regulation archives
// still ship.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func (s *RegbotService) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, "list documents: "+err.Error())
		return
	}
	api.RespondWithPayload(w, map[string]interface{}{"documents": docs})
}

func (s *RegbotService) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc_id"]
	if err := s.store.DeleteDocument(r.Context(), docID); err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, "delete document: "+err.Error())
		return
	}
	logger.Audit("[Regbot] deleted document " + docID)
	api.RespondWithPayload(w, map[string]interface{}{"doc_id": docID})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// handleChat answers one question against the regulation corpus. An
// empty session_id opens a new session; the id comes back in the
// response for the next turn.
func (s *RegbotService) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrQuestionRequired)
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.sessions.Create().ID
	} else if !s.sessions.Touch(sessionID) {
		api.RespondWithError(w, http.StatusNotFound, constants.ErrInvalidSession)
		return
	}

	vecs, err := s.llm.Embed(r.Context(), []string{req.Question})
	if err != nil {
		api.RespondWithError(w, http.StatusBadGateway, "embedding failed: "+err.Error())
		return
	}
	results, err := s.store.Search(r.Context(), vecs[0], s.topK)
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, "search failed: "+err.Error())
		return
	}
	if len(results) == 0 {
		api.RespondWithError(w, http.StatusConflict, constants.ErrRegStoreEmpty)
		return
	}

	messages := s.buildMessages(sessionID, req.Question, results)
	reply, err := s.llm.ChatCompletion(r.Context(), messages)
	if err != nil {
		api.RespondWithError(w, http.StatusBadGateway, "chat completion failed: "+err.Error())
		return
	}

	answer, followUps := ExtractFollowUps(reply)
	s.appendHistory(sessionID, exchange{Question: req.Question, Answer: answer})
	s.logTranscript(r.Context(), sessionID, req.Question, answer)

	sources := make([]map[string]interface{}, len(results))
	for i, res := range results {
		sources[i] = map[string]interface{}{
			"file_name": res.FileName,
			"seq":       res.Seq,
			"score":     res.Score,
		}
	}
	api.RespondWithPayload(w, map[string]interface{}{
		"session_id": sessionID,
		"answer":     answer,
		"follow_ups": followUps,
		"sources":    sources,
	})
}

// buildMessages assembles the prompt: system instructions, prior turns
// of this session, then the retrieved regulation context and question.
func (s *RegbotService) buildMessages(sessionID, question string, results []regstore.SearchResult) []llm.Message {
	messages := []llm.Message{{Role: "system", Content: chatSystemPrompt}}
	for _, ex := range s.history(sessionID) {
		messages = append(messages,
			llm.Message{Role: "user", Content: ex.Question},
			llm.Message{Role: "assistant", Content: ex.Answer})
	}

	var b strings.Builder
	b.WriteString("## 규정 발췌\n")
	for _, res := range results {
		fmt.Fprintf(&b, "[%s #%d]\n%s\n\n", res.FileName, res.Seq, res.Content)
	}
	b.WriteString("## 질문\n")
	b.WriteString(question)
	messages = append(messages, llm.Message{Role: "user", Content: b.String()})
	return messages
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

// handleReset clears a session's conversational context. The persisted
// transcript is untouched.
func (s *RegbotService) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrSessionIDRequired)
		return
	}
	if !s.sessions.Touch(req.SessionID) {
		api.RespondWithError(w, http.StatusNotFound, constants.ErrInvalidSession)
		return
	}
	s.mu.Lock()
	delete(s.histories, req.SessionID)
	s.mu.Unlock()
	api.RespondWithPayload(w, map[string]interface{}{"session_id": req.SessionID})
}
