package importer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-import-api/internal/models"
)

// SubjectFetcher loads the subjects of one course from the academy backend.
type SubjectFetcher interface {
	ListSubjectsByCourse(ctx context.Context, courseID int64) ([]models.Subject, error)
}

// ReferenceData holds the collections loaded once per upload.
type ReferenceData struct {
	Students []models.Student
	Courses  []models.Course
	Batches  []models.Batch
	Results  []models.Result
}

// Resolver turns the names typed in a spreadsheet into backend ids.
type Resolver struct {
	subjects SubjectFetcher
	logger   *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(subjects SubjectFetcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{subjects: subjects, logger: logger}
}

type subjectLookup struct {
	byName map[string]int64
	err    error
}

// Resolve annotates the result records of rows in place. Lookups that fail leave the id unset;
// the validator reports them. Subjects are fetched once per distinct course.
func (r *Resolver) Resolve(ctx context.Context, rows []MappedRow, refs ReferenceData) {
	students := make(map[string]int64, len(refs.Students))
	for _, s := range refs.Students {
		setOnce(students, s.Name, s.ID)
	}
	courses := make(map[string]int64, len(refs.Courses))
	for _, c := range refs.Courses {
		setOnce(courses, c.Name, c.ID)
	}
	batches := make(map[string][]models.Batch)
	for _, b := range refs.Batches {
		key := nameKey(b.Name)
		batches[key] = append(batches[key], b)
	}
	results := make(map[string]int64, len(refs.Results))
	for _, res := range refs.Results {
		setOnce(results, res.RegisterNumber, res.ID)
	}

	subjectCache := make(map[int64]*subjectLookup)
	for _, row := range rows {
		record := row.Record.Result
		if record == nil {
			continue
		}
		record.StudentID = lookup(students, record.StudentName)
		record.CourseID = lookup(courses, record.CourseName)
		record.BatchID = nil
		if record.CourseID != nil {
			for _, b := range batches[nameKey(record.BatchName)] {
				if b.CourseID == *record.CourseID {
					id := b.ID
					record.BatchID = &id
					break
				}
			}
		}
		record.ExistingResultID = lookup(results, record.RegisterNumber)

		record.SubjectIDs = nil
		record.SubjectsUnavailable = false
		if record.CourseID == nil || len(record.Marks) == 0 {
			continue
		}
		subjects := r.subjectsFor(ctx, subjectCache, *record.CourseID, record.CourseName)
		if subjects.err != nil {
			record.SubjectsUnavailable = true
			continue
		}
		record.SubjectIDs = make(map[string]int64, len(record.Marks))
		for _, mark := range record.Marks {
			if id, ok := subjects.byName[nameKey(mark.SubjectName)]; ok {
				record.SubjectIDs[mark.SubjectName] = id
			}
		}
	}
}

func (r *Resolver) subjectsFor(ctx context.Context, cache map[int64]*subjectLookup, courseID int64, courseName string) *subjectLookup {
	if cached, ok := cache[courseID]; ok {
		return cached
	}
	entry := &subjectLookup{byName: map[string]int64{}}
	cache[courseID] = entry
	if r.subjects == nil {
		return entry
	}
	subjects, err := r.subjects.ListSubjectsByCourse(ctx, courseID)
	if err != nil {
		r.logger.Warn("failed to load subjects", zap.Int64("course_id", courseID), zap.String("course", courseName), zap.Error(err))
		entry.err = err
		return entry
	}
	for _, s := range subjects {
		setOnce(entry.byName, s.Name, s.ID)
	}
	return entry
}

// LookupSubjectID finds a subject id by name, exact key first, then case-insensitively.
func LookupSubjectID(ids map[string]int64, name string) (int64, bool) {
	if id, ok := ids[name]; ok {
		return id, true
	}
	key := nameKey(name)
	for typed, id := range ids {
		if nameKey(typed) == key {
			return id, true
		}
	}
	return 0, false
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func setOnce(m map[string]int64, name string, id int64) {
	key := nameKey(name)
	if key == "" {
		return
	}
	if _, exists := m[key]; !exists {
		m[key] = id
	}
}

func lookup(m map[string]int64, name string) *int64 {
	id, ok := m[nameKey(name)]
	if !ok {
		return nil
	}
	return &id
}
