package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/noah-isme/academy-import-api/internal/models"
)

// ReferenceSource lists the collections names are resolved against.
type ReferenceSource interface {
	ListStudents(ctx context.Context) ([]models.Student, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListBatches(ctx context.Context) ([]models.Batch, error)
	ListResults(ctx context.Context) ([]models.Result, error)
}

// LoadReferences fetches the lists kind needs concurrently. Student uploads only need students.
// Every failed list is reported, prefixed with its name.
func LoadReferences(ctx context.Context, src ReferenceSource, kind models.ImportKind) (ReferenceData, error) {
	var (
		refs ReferenceData
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fetch := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	fetch("students", func() (err error) {
		refs.Students, err = src.ListStudents(ctx)
		return err
	})
	if kind != models.ImportKindStudent {
		fetch("courses", func() (err error) {
			refs.Courses, err = src.ListCourses(ctx)
			return err
		})
		fetch("batches", func() (err error) {
			refs.Batches, err = src.ListBatches(ctx)
			return err
		})
		fetch("results", func() (err error) {
			refs.Results, err = src.ListResults(ctx)
			return err
		})
	}
	wg.Wait()

	return refs, errors.Join(errs...)
}
