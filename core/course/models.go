package course

import (
	"time"

	"github.com/trezcool/shule/core"
)

// Enrollment roles
const (
	EnrollmentRoleStudent = "student"
	EnrollmentRoleTeacher = "teacher"
)

type Course struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	TermID    string    `json:"term_id,omitempty"` // optional
	CreatedAt time.Time `json:"created_at"`        // UTC
	UpdatedAt time.Time `json:"updated_at"`        // UTC
}

type Section struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	CourseID  string    `json:"course_id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Enrollment struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	UserID    string    `json:"user_id"`
	SectionID string    `json:"section_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Name   string `json:"name" validate:"required"`
	Code   string `json:"code"`
	TermID string `json:"term_id"`
}

func (nc *NewCourse) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	nc.Code = core.CleanString(nc.Code)
	return core.Validate.Struct(nc)
}

// NewEnrollment contains information needed to enroll a user into a section.
type NewEnrollment struct {
	UserID    string `json:"user_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=student teacher"`
}

func (ne *NewEnrollment) Validate() error {
	ne.Role = core.CleanString(ne.Role, true /* lower */)
	return core.Validate.Struct(ne)
}
