package importer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-import-api/internal/models"
)

// barrierSource blocks every list call until want calls are in flight at once.
type barrierSource struct {
	want    int
	mu      sync.Mutex
	started int
	all     chan struct{}
	fail    map[string]error
}

func newBarrierSource(want int) *barrierSource {
	return &barrierSource{want: want, all: make(chan struct{}), fail: map[string]error{}}
}

func (b *barrierSource) arrive(name string) error {
	b.mu.Lock()
	b.started++
	if b.started == b.want {
		close(b.all)
	}
	b.mu.Unlock()
	select {
	case <-b.all:
	case <-time.After(2 * time.Second):
		return errors.New("lists were not requested concurrently")
	}
	return b.fail[name]
}

func (b *barrierSource) ListStudents(context.Context) ([]models.Student, error) {
	return []models.Student{{ID: 1, Name: "Amit"}}, b.arrive("students")
}

func (b *barrierSource) ListCourses(context.Context) ([]models.Course, error) {
	return []models.Course{{ID: 2, Name: "CS101"}}, b.arrive("courses")
}

func (b *barrierSource) ListBatches(context.Context) ([]models.Batch, error) {
	return []models.Batch{{ID: 3, Name: "B1", CourseID: 2}}, b.arrive("batches")
}

func (b *barrierSource) ListResults(context.Context) ([]models.Result, error) {
	return nil, b.arrive("results")
}

func TestLoadReferencesFetchesConcurrently(t *testing.T) {
	src := newBarrierSource(4)

	refs, err := LoadReferences(context.Background(), src, models.ImportKindResultCreate)

	require.NoError(t, err)
	assert.Len(t, refs.Students, 1)
	assert.Len(t, refs.Courses, 1)
	assert.Len(t, refs.Batches, 1)
}

func TestLoadReferencesStudentUploadsOnlyNeedStudents(t *testing.T) {
	src := newBarrierSource(1)

	refs, err := LoadReferences(context.Background(), src, models.ImportKindStudent)

	require.NoError(t, err)
	assert.Len(t, refs.Students, 1)
	assert.Nil(t, refs.Courses)
	assert.Equal(t, 1, src.started)
}

func TestLoadReferencesNamesFailedLists(t *testing.T) {
	src := newBarrierSource(4)
	src.fail["courses"] = errors.New("connection refused")
	src.fail["results"] = errors.New("timeout")

	_, err := LoadReferences(context.Background(), src, models.ImportKindResultUpdate)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "courses: connection refused")
	assert.Contains(t, err.Error(), "results: timeout")
}
