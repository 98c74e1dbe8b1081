package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/babynest/backend/internal/models"
	"github.com/babynest/backend/internal/repositories"
	"github.com/babynest/backend/pkg/logger"
	"github.com/babynest/backend/pkg/utils"
)

const (
	MaxJournalImages    = 10
	MaxJournalImageSize = 10 << 20
	journalImageFolder  = "journal-images"

	defaultJournalPageSize = 20
	maxJournalPageSize     = 100
)

// Upload outcomes reported alongside a saved entry.
const (
	UploadStatusNone     = "none"
	UploadStatusComplete = "complete"
	UploadStatusPartial  = "partial"
)

type JournalInput struct {
	Date      string        `json:"date" validate:"required,max=64"`
	Trimester string        `json:"trimester" validate:"required,max=32"`
	Notes     string        `json:"notes" validate:"max=20000"`
	Todos     []models.Todo `json:"todos" validate:"max=100,dive"`
}

type FailedUpload struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadReport says which images made it. A failed image never fails the
// entry itself.
type UploadReport struct {
	Status   string         `json:"status"`
	Uploaded int            `json:"uploaded"`
	Failed   []FailedUpload `json:"failed"`
}

type JournalPage struct {
	Entries []models.JournalEntry `json:"entries"`
	Total   int64                 `json:"total"`
	Limit   int64                 `json:"limit"`
	Skip    int64                 `json:"skip"`
}

// ParseTodos accepts todos either as JSON [{"text","done"}] or as a JSON
// string array with a parallel completedTodos array. Blank items are dropped.
func ParseTodos(todosJSON, completedJSON string) ([]models.Todo, error) {
	todosJSON = strings.TrimSpace(todosJSON)
	if todosJSON == "" {
		return []models.Todo{}, nil
	}
	var paired []models.Todo
	if err := json.Unmarshal([]byte(todosJSON), &paired); err == nil {
		return compactTodos(paired), nil
	}

	var texts []string
	if err := json.Unmarshal([]byte(todosJSON), &texts); err != nil {
		return nil, &utils.ValidationError{Field: "todos", Message: "todos must be a JSON array"}
	}
	var done []bool
	if c := strings.TrimSpace(completedJSON); c != "" {
		if err := json.Unmarshal([]byte(c), &done); err != nil {
			return nil, &utils.ValidationError{Field: "completedTodos", Message: "completedTodos must be a JSON array of booleans"}
		}
	}
	if len(done) > len(texts) {
		return nil, &utils.ValidationError{Field: "completedTodos", Message: "completedTodos has more items than todos"}
	}
	todos := make([]models.Todo, len(texts))
	for i, text := range texts {
		todos[i] = models.Todo{Text: text, Done: i < len(done) && done[i]}
	}
	return compactTodos(todos), nil
}

func compactTodos(todos []models.Todo) []models.Todo {
	out := make([]models.Todo, 0, len(todos))
	for _, t := range todos {
		t.Text = strings.TrimSpace(t.Text)
		if t.Text == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

type JournalService struct {
	entries  repositories.JournalStore
	uploader Uploader
	now      func() time.Time
}

func NewJournalService(entries repositories.JournalStore, uploader Uploader) *JournalService {
	if uploader == nil {
		uploader = DisabledUploader{}
	}
	return &JournalService{entries: entries, uploader: uploader, now: time.Now}
}

func journalLookupError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return ErrJournalNotFound
	case errors.Is(err, repositories.ErrInvalidID):
		return ErrInvalidJournalID
	}
	return err
}

func normalizeJournalInput(in *JournalInput) error {
	in.Date = strings.TrimSpace(in.Date)
	in.Trimester = strings.TrimSpace(in.Trimester)
	in.Todos = compactTodos(in.Todos)
	return Validate(in)
}

// checkImage sniffs the first bytes so only real images are sent upstream.
func checkImage(fh *multipart.FileHeader) error {
	if fh.Size > MaxJournalImageSize {
		return fmt.Errorf("image exceeds %d MB", MaxJournalImageSize>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if ct := http.DetectContentType(head[:n]); !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("unsupported file type %s", ct)
	}
	return nil
}

func (s *JournalService) uploadImages(ctx context.Context, userID string, files []*multipart.FileHeader) ([]string, UploadReport) {
	report := UploadReport{Status: UploadStatusNone, Failed: []FailedUpload{}}
	urls := make([]string, 0, len(files))
	if len(files) == 0 {
		return urls, report
	}
	for _, fh := range files {
		if err := checkImage(fh); err != nil {
			report.Failed = append(report.Failed, FailedUpload{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		url, err := s.uploader.UploadImage(ctx, fh, journalImageFolder)
		if err != nil {
			logger.Error("journal: image upload failed", "user", userID, "file", fh.Filename, "error", err)
			report.Failed = append(report.Failed, FailedUpload{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		urls = append(urls, url)
	}
	report.Uploaded = len(urls)
	if len(report.Failed) == 0 {
		report.Status = UploadStatusComplete
	} else {
		report.Status = UploadStatusPartial
	}
	return urls, report
}

func checkImageCount(files []*multipart.FileHeader) error {
	if len(files) > MaxJournalImages {
		return &utils.ValidationError{Field: "images", Message: fmt.Sprintf("at most %d images per request", MaxJournalImages)}
	}
	return nil
}

func (s *JournalService) Create(ctx context.Context, sess *Session, in JournalInput, files []*multipart.FileHeader) (*models.JournalEntry, UploadReport, error) {
	if err := normalizeJournalInput(&in); err != nil {
		return nil, UploadReport{}, err
	}
	if err := checkImageCount(files); err != nil {
		return nil, UploadReport{}, err
	}
	urls, report := s.uploadImages(ctx, sess.UserID, files)

	now := s.now().UTC()
	entry := &models.JournalEntry{
		UserID:    sess.UserID,
		Date:      in.Date,
		Trimester: in.Trimester,
		Todos:     in.Todos,
		Notes:     in.Notes,
		ImageURLs: urls,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, UploadReport{}, err
	}
	return entry, report, nil
}

func (s *JournalService) List(ctx context.Context, sess *Session, limit, skip int64) (*JournalPage, error) {
	if limit <= 0 {
		limit = defaultJournalPageSize
	}
	if limit > maxJournalPageSize {
		limit = maxJournalPageSize
	}
	if skip < 0 {
		skip = 0
	}
	entries, total, err := s.entries.ListByUser(ctx, sess.UserID, limit, skip)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	return &JournalPage{Entries: entries, Total: total, Limit: limit, Skip: skip}, nil
}

func (s *JournalService) Get(ctx context.Context, sess *Session, id string) (*models.JournalEntry, error) {
	entry, err := s.entries.FindOwned(ctx, id, sess.UserID)
	if err != nil {
		return nil, journalLookupError(err)
	}
	return entry, nil
}

// Update replaces the text fields and appends any new images. Ownership is
// checked before anything is uploaded.
func (s *JournalService) Update(ctx context.Context, sess *Session, id string, in JournalInput, files []*multipart.FileHeader) (*models.JournalEntry, UploadReport, error) {
	if err := normalizeJournalInput(&in); err != nil {
		return nil, UploadReport{}, err
	}
	if err := checkImageCount(files); err != nil {
		return nil, UploadReport{}, err
	}
	if _, err := s.entries.FindOwned(ctx, id, sess.UserID); err != nil {
		return nil, UploadReport{}, journalLookupError(err)
	}
	urls, report := s.uploadImages(ctx, sess.UserID, files)

	entry, err := s.entries.UpdateOwned(ctx, id, sess.UserID, repositories.JournalUpdate{
		Date:         in.Date,
		Trimester:    in.Trimester,
		Notes:        in.Notes,
		Todos:        in.Todos,
		AppendImages: urls,
		UpdatedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, UploadReport{}, journalLookupError(err)
	}
	return entry, report, nil
}

func (s *JournalService) Delete(ctx context.Context, sess *Session, id string) error {
	return journalLookupError(s.entries.DeleteOwned(ctx, id, sess.UserID))
}
