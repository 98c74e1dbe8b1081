package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"

	"github.com/babynest/backend/internal/models"
	"github.com/babynest/backend/internal/services"
)

const (
	maxMultipartMemory = 32 << 20
	// All images at full size plus the text fields.
	maxJournalBody = services.MaxJournalImages*services.MaxJournalImageSize + maxJSONBody
)

var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// journalForm is the multipart or urlencoded journal submission. Todos
// arrive as JSON text inside a form field.
type journalForm struct {
	Date           string `schema:"date"`
	Trimester      string `schema:"trimester"`
	Notes          string `schema:"notes"`
	Todos          string `schema:"todos"`
	CompletedTodos string `schema:"completedTodos"`
}

// journalBody is the JSON submission. Todos may be an array or a string
// holding one.
type journalBody struct {
	Date           string          `json:"date"`
	Trimester      string          `json:"trimester"`
	Notes          string          `json:"notes"`
	Todos          json.RawMessage `json:"todos"`
	CompletedTodos json.RawMessage `json:"completedTodos"`
}

type listQuery struct {
	Limit int64 `schema:"limit"`
	Skip  int64 `schema:"skip"`
}

type JournalEntryResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Entry   *models.JournalEntry   `json:"entry"`
	Uploads *services.UploadReport `json:"uploads,omitempty"`
}

type JournalListResponse struct {
	Success bool `json:"success"`
	*services.JournalPage
}

type JournalHandler struct {
	journals *services.JournalService
}

func NewJournalHandler(journals *services.JournalService) *JournalHandler {
	return &JournalHandler{journals: journals}
}

// rawText unwraps a JSON string, or returns raw JSON as-is.
func rawText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return trimmed
}

var errBadJournalBody = errors.New("invalid journal form")

// readJournal parses a create/update request into input and uploaded files.
func readJournal(w http.ResponseWriter, r *http.Request) (services.JournalInput, []*multipart.FileHeader, error) {
	var in services.JournalInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var todos, completed string
	var files []*multipart.FileHeader
	switch mediaType {
	case "application/json":
		var body journalBody
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return in, nil, errBadJournalBody
		}
		in.Date, in.Trimester, in.Notes = body.Date, body.Trimester, body.Notes
		todos, completed = rawText(body.Todos), rawText(body.CompletedTodos)
	case "multipart/form-data", "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxJournalBody)
		var values map[string][]string
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
				return in, nil, errBadJournalBody
			}
			values = r.MultipartForm.Value
			files = r.MultipartForm.File["images"]
		} else {
			if err := r.ParseForm(); err != nil {
				return in, nil, errBadJournalBody
			}
			values = r.PostForm
		}
		var form journalForm
		if err := formDecoder.Decode(&form, values); err != nil {
			return in, nil, errBadJournalBody
		}
		in.Date, in.Trimester, in.Notes = form.Date, form.Trimester, form.Notes
		todos, completed = form.Todos, form.CompletedTodos
	default:
		return in, nil, errBadJournalBody
	}

	parsed, err := services.ParseTodos(todos, completed)
	if err != nil {
		return in, nil, err
	}
	in.Todos = parsed
	return in, files, nil
}

func writeJournalReadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadJournalBody) {
		writeError(w, http.StatusBadRequest, "Invalid journal form")
		return
	}
	writeServiceError(w, r, err)
}

// Create handles POST /journal
func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	in, files, err := readJournal(w, r)
	if err != nil {
		writeJournalReadError(w, r, err)
		return
	}
	defer cleanupMultipart(r)

	entry, report, err := h.journals.Create(r.Context(), sess, in, files)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, JournalEntryResponse{
		Success: true,
		Message: "Journal entry created",
		Entry:   entry,
		Uploads: &report,
	})
}

// List handles GET /journal
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var q listQuery
	if err := formDecoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, "limit and skip must be integers")
		return
	}
	page, err := h.journals.List(r.Context(), sess, q.Limit, q.Skip)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JournalListResponse{Success: true, JournalPage: page})
}

// Get handles GET /journal/{id}
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	entry, err := h.journals.Get(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JournalEntryResponse{Success: true, Entry: entry})
}

// Update handles PUT /journal/{id}
func (h *JournalHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	in, files, err := readJournal(w, r)
	if err != nil {
		writeJournalReadError(w, r, err)
		return
	}
	defer cleanupMultipart(r)

	entry, report, err := h.journals.Update(r.Context(), sess, chi.URLParam(r, "id"), in, files)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JournalEntryResponse{
		Success: true,
		Message: "Journal entry updated",
		Entry:   entry,
		Uploads: &report,
	})
}

// Delete handles DELETE /journal/{id}
func (h *JournalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := h.journals.Delete(r.Context(), sess, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Journal entry deleted")
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
