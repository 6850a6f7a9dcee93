package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/pkg/config"
)

func newAcademyTestRepo(t *testing.T, handler http.HandlerFunc) *AcademyRepository {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAcademyRepository(config.AcademyConfig{BaseURL: server.URL + "/"}, server.Client(), nil)
}

func TestAcademyRepositoryListAcceptsBareAndWrappedArrays(t *testing.T) {
	repo := newAcademyTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer caller-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/courses":
			_, _ = io.WriteString(w, `[{"id":1,"name":"CS101"}]`)
		case "/batches":
			_, _ = io.WriteString(w, `{"data":[{"id":100,"name":"B1","course":1}]}`)
		case "/courses/1/subjects":
			_, _ = io.WriteString(w, `{"results":[{"id":7,"name":"Programming","course":1}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := WithBearerToken(context.Background(), "caller-token")

	courses, err := repo.ListCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Course{{ID: 1, Name: "CS101"}}, courses)

	batches, err := repo.ListBatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Batch{{ID: 100, Name: "B1", CourseID: 1}}, batches)

	subjects, err := repo.ListSubjectsByCourse(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, int64(7), subjects[0].ID)
}

func TestAcademyRepositoryCreateResultSendsPayload(t *testing.T) {
	var received map[string]interface{}
	repo := newAcademyTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/results", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":55,"register_number":"REG-1"}`)
	})
	te := 80

	created, err := repo.CreateResult(context.Background(), models.ResultPayload{
		StudentID: 12, CourseID: 2, BatchID: 200, RegisterNumber: "REG-1",
		Marks: []models.ResultMarkPayload{{SubjectID: 7, Marks: models.Marks{TEObtained: &te}}},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(55), created.ID)
	assert.Equal(t, float64(12), received["student"])
	marks := received["marks"].([]interface{})
	mark := marks[0].(map[string]interface{})
	assert.Equal(t, float64(7), mark["subject"])
	assert.Equal(t, float64(80), mark["te_obtained"])
	assert.Nil(t, mark["ce_obtained"])
}

func TestAcademyRepositoryErrorsCarryServerMessage(t *testing.T) {
	cases := []struct {
		body    string
		message string
	}{
		{body: `{"message":"register number taken"}`, message: "register number taken"},
		{body: `{"detail":"Not found."}`, message: "Not found."},
		{body: `{"register_number":["already exists"],"batch":["invalid pk"]}`, message: "batch: invalid pk; register_number: already exists"},
		{body: `<html>oops</html>`, message: ""},
	}
	for _, tc := range cases {
		repo := newAcademyTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, tc.body)
		})

		err := repo.DeleteResult(context.Background(), 9)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), tc.body)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, tc.message, apiErr.ServerMessage())
		assert.Contains(t, apiErr.Error(), "400")
	}
}

func TestAcademyRepositoryCreateStudentWithPhoto(t *testing.T) {
	photo := filepath.Join(t.TempDir(), "jane.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg-bytes"), 0o644))

	repo := newAcademyTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Jane", r.FormValue("name"))
		assert.Equal(t, "jane@x.com", r.FormValue("email"))
		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close() //nolint:errcheck
		assert.Equal(t, "jane.jpg", header.Filename)
		content, _ := io.ReadAll(file)
		assert.Equal(t, "jpeg-bytes", string(content))
		_, _ = io.WriteString(w, `{"id":3,"name":"Jane","email":"jane@x.com"}`)
	})

	student, err := repo.CreateStudent(context.Background(), models.StudentPayload{Name: "Jane", Email: "jane@x.com", Phone: "1"}, &photo)

	require.NoError(t, err)
	assert.Equal(t, int64(3), student.ID)
}

func TestAcademyRepositoryCreateStudentWithoutPhotoUsesJSON(t *testing.T) {
	repo := newAcademyTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"id":4}`)
	})

	student, err := repo.CreateStudent(context.Background(), models.StudentPayload{Name: "Ravi"}, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(4), student.ID)
}

func TestDecodeListRejectsUnexpectedObject(t *testing.T) {
	var out []models.Course
	assert.Error(t, decodeList(json.RawMessage(`{"count":0}`), &out))
	assert.NoError(t, decodeList(json.RawMessage(`null`), &out))
}
