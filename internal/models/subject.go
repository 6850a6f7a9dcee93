package models

// SubjectType distinguishes theory from practical subjects.
type SubjectType string

const (
	SubjectTypeTheory    SubjectType = "theory"
	SubjectTypePractical SubjectType = "practical"
)

// Subject belongs to a course; subject lists are fetched per course.
type Subject struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Code     string      `json:"code,omitempty"`
	CourseID int64       `json:"course"`
	Type     SubjectType `json:"type,omitempty"`
}
