package models

// Student is a learner as exposed by the academy backend.
type Student struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	WhatsappNumber *string `json:"whatsapp_number,omitempty"`
	Photo          *string `json:"photo,omitempty"`
}

// Course is an academy programme that owns batches and subjects.
type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// Batch is an intake of a course.
type Batch struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	CourseID int64  `json:"course"`
}

// StudentPayload is the body sent when creating a student.
type StudentPayload struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	WhatsappNumber *string `json:"whatsapp_number,omitempty"`
}
