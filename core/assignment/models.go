package assignment

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

type Assignment struct {
	ID          string    `json:"id"`
	Tenant      string    `json:"tenant"`
	SectionID   string    `json:"section_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	MaxPoints   float64   `json:"max_points"`
	DueDate     null.Time `json:"due_date"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

type Submission struct {
	ID           string       `json:"id"`
	Tenant       string       `json:"tenant"`
	AssignmentID string       `json:"assignment_id"`
	EnrollmentID string       `json:"enrollment_id"`
	Grade        null.Float64 `json:"grade"`
	SubmittedAt  null.Time    `json:"submitted_at"`
	CreatedAt    time.Time    `json:"created_at"` // UTC
	UpdatedAt    time.Time    `json:"updated_at"` // UTC
}

// NewAssignment contains information needed to create a new Assignment.
type NewAssignment struct {
	SectionID   string    `json:"section_id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	MaxPoints   float64   `json:"max_points" validate:"gte=0"`
	DueDate     null.Time `json:"due_date"`
}

func (na *NewAssignment) Validate() error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	return core.Validate.Struct(na)
}
