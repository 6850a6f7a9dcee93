package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/pkg/config"
)

const maxErrorBody = 64 * 1024

type bearerTokenKey struct{}

// WithBearerToken attaches the caller's token so backend requests run as that caller.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

// BearerToken returns the token stored by WithBearerToken.
func BearerToken(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenKey{}).(string)
	return token
}

// APIError is a non-2xx answer from the academy backend.
type APIError struct {
	Status  int
	Message string
	Payload string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("academy api returned %d: %s", e.Status, e.Message)
	}
	if e.Payload != "" {
		return fmt.Sprintf("academy api returned %d: %s", e.Status, e.Payload)
	}
	return fmt.Sprintf("academy api returned %d", e.Status)
}

// ServerMessage is the backend's own explanation, if it sent one.
func (e *APIError) ServerMessage() string {
	return e.Message
}

// AcademyRepository talks to the academy REST backend.
type AcademyRepository struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewAcademyRepository builds a client; a nil client gets one with cfg.Timeout.
func NewAcademyRepository(cfg config.AcademyConfig, client *http.Client, logger *zap.Logger) *AcademyRepository {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademyRepository{baseURL: strings.TrimRight(cfg.BaseURL, "/"), client: client, logger: logger}
}

// ListStudents returns every student.
func (r *AcademyRepository) ListStudents(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := r.list(ctx, "/students", &students); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// ListCourses returns every course.
func (r *AcademyRepository) ListCourses(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	if err := r.list(ctx, "/courses", &courses); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListBatches returns every batch.
func (r *AcademyRepository) ListBatches(ctx context.Context) ([]models.Batch, error) {
	var batches []models.Batch
	if err := r.list(ctx, "/batches", &batches); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// ListResults returns every stored result.
func (r *AcademyRepository) ListResults(ctx context.Context) ([]models.Result, error) {
	var results []models.Result
	if err := r.list(ctx, "/results", &results); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

// ListSubjectsByCourse returns the subjects of one course.
func (r *AcademyRepository) ListSubjectsByCourse(ctx context.Context, courseID int64) ([]models.Subject, error) {
	var subjects []models.Subject
	if err := r.list(ctx, fmt.Sprintf("/courses/%d/subjects", courseID), &subjects); err != nil {
		return nil, fmt.Errorf("list subjects of course %d: %w", courseID, err)
	}
	return subjects, nil
}

// CreateResult posts a new result.
func (r *AcademyRepository) CreateResult(ctx context.Context, payload models.ResultPayload) (*models.Result, error) {
	var created models.Result
	if err := r.sendJSON(ctx, http.MethodPost, "/results", payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateResult replaces result id.
func (r *AcademyRepository) UpdateResult(ctx context.Context, id int64, payload models.ResultPayload) (*models.Result, error) {
	var updated models.Result
	if err := r.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/results/%d", id), payload, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteResult removes result id.
func (r *AcademyRepository) DeleteResult(ctx context.Context, id int64) error {
	req, err := r.newRequest(ctx, http.MethodDelete, fmt.Sprintf("/results/%d", id), nil)
	if err != nil {
		return err
	}
	return r.do(req, nil)
}

// CreateStudent posts a new student. With a photo the body is multipart, otherwise JSON.
func (r *AcademyRepository) CreateStudent(ctx context.Context, payload models.StudentPayload, photoPath *string) (*models.Student, error) {
	if photoPath == nil || *photoPath == "" {
		var created models.Student
		if err := r.sendJSON(ctx, http.MethodPost, "/students", payload, &created); err != nil {
			return nil, err
		}
		return &created, nil
	}

	body, contentType, err := studentMultipart(payload, *photoPath)
	if err != nil {
		return nil, err
	}
	req, err := r.newRequest(ctx, http.MethodPost, "/students", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	var created models.Student
	if err := r.do(req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func studentMultipart(payload models.StudentPayload, photoPath string) (io.Reader, string, error) {
	photo, err := os.Open(photoPath)
	if err != nil {
		return nil, "", fmt.Errorf("open photo: %w", err)
	}
	defer photo.Close() //nolint:errcheck

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	fields := [][2]string{{"name", payload.Name}, {"email", payload.Email}, {"phone", payload.Phone}}
	if payload.WhatsappNumber != nil {
		fields = append(fields, [2]string{"whatsapp_number", *payload.WhatsappNumber})
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	part, err := writer.CreateFormFile("photo", filepath.Base(photoPath))
	if err != nil {
		return nil, "", fmt.Errorf("create photo part: %w", err)
	}
	if _, err := io.Copy(part, photo); err != nil {
		return nil, "", fmt.Errorf("copy photo: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf, writer.FormDataContentType(), nil
}

func (r *AcademyRepository) list(ctx context.Context, path string, dest interface{}) error {
	req, err := r.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	if err := r.do(req, &raw); err != nil {
		return err
	}
	return decodeList(raw, dest)
}

// decodeList accepts a bare array or an object wrapping it under "data" or "results".
func decodeList(raw json.RawMessage, dest interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, dest)
	}
	var envelope struct {
		Data    json.RawMessage `json:"data"`
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	switch {
	case len(envelope.Data) > 0:
		return json.Unmarshal(envelope.Data, dest)
	case len(envelope.Results) > 0:
		return json.Unmarshal(envelope.Results, dest)
	}
	return fmt.Errorf("decode list: unexpected body %s", truncate(string(trimmed), 200))
}

func (r *AcademyRepository) sendJSON(ctx context.Context, method, path string, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := r.newRequest(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req, dest)
}

func (r *AcademyRepository) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := BearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (r *AcademyRepository) do(req *http.Request, dest interface{}) error {
	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	r.logger.Debug("academy api call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Status: resp.StatusCode, Message: extractMessage(raw), Payload: strings.TrimSpace(string(raw))}
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// extractMessage reads "message", "error" or "detail", then falls back to field errors of the
// form {"field": ["problem"]} joined in key order.
func extractMessage(raw []byte) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error", "detail"} {
		if value, ok := body[key]; ok {
			var text string
			if err := json.Unmarshal(value, &text); err == nil && text != "" {
				return text
			}
		}
	}

	keys := make([]string, 0, len(body))
	for key := range body {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		var list []string
		if err := json.Unmarshal(body[key], &list); err == nil && len(list) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", key, strings.Join(list, ", ")))
		}
	}
	return strings.Join(parts, "; ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
