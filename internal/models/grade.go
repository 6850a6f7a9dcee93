package models

// ResultStatus is the overall outcome of a student in a course.
type ResultStatus string

const (
	ResultPass   ResultStatus = "Pass"
	ResultFail   ResultStatus = "Fail"
	ResultAbsent ResultStatus = "Absent"
)

// Marks holds the obtained value of every mark component. Nil means not provided,
// which is different from zero.
type Marks struct {
	TEObtained      *int `json:"te_obtained"`
	CEObtained      *int `json:"ce_obtained"`
	PEObtained      *int `json:"pe_obtained"`
	PWObtained      *int `json:"pw_obtained"`
	PRObtained      *int `json:"pr_obtained"`
	ProjectObtained *int `json:"project_obtained"`
	VivaObtained    *int `json:"viva_obtained"`
	PLObtained      *int `json:"pl_obtained"`
}

// HasTheory reports whether any theory component is set.
func (m Marks) HasTheory() bool {
	return m.TEObtained != nil || m.CEObtained != nil
}

// HasPractical reports whether any practical component is set.
func (m Marks) HasPractical() bool {
	return m.PEObtained != nil || m.PWObtained != nil || m.PRObtained != nil ||
		m.ProjectObtained != nil || m.VivaObtained != nil || m.PLObtained != nil
}

// ResultMark is one subject line of a stored result.
type ResultMark struct {
	SubjectID   int64  `json:"subject"`
	SubjectName string `json:"subject_name,omitempty"`
	SubjectType string `json:"subject_type,omitempty"`
	Marks
}

// Result is a stored exam result of a student for a course.
type Result struct {
	ID                int64        `json:"id"`
	StudentID         int64        `json:"student"`
	CourseID          int64        `json:"course"`
	BatchID           int64        `json:"batch"`
	StudentName       string       `json:"student_name,omitempty"`
	CourseName        string       `json:"course_name,omitempty"`
	BatchName         string       `json:"batch_name,omitempty"`
	RegisterNumber    string       `json:"register_number"`
	CertificateNumber string       `json:"certificate_number"`
	Result            *string      `json:"result"`
	IsPublished       bool         `json:"is_published"`
	PublishedDate     *string      `json:"published_date"`
	Marks             []ResultMark `json:"marks"`
}

// ResultPayload is the body sent when creating or updating a result.
type ResultPayload struct {
	StudentID         int64               `json:"student"`
	CourseID          int64               `json:"course"`
	BatchID           int64               `json:"batch"`
	RegisterNumber    string              `json:"register_number"`
	CertificateNumber string              `json:"certificate_number"`
	Result            *string             `json:"result"`
	IsPublished       bool                `json:"is_published"`
	PublishedDate     *string             `json:"published_date"`
	Marks             []ResultMarkPayload `json:"marks"`
}

// ResultMarkPayload is one subject line of a ResultPayload.
type ResultMarkPayload struct {
	SubjectID int64 `json:"subject"`
	Marks
}
