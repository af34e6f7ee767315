package school

import (
	"time"

	"github.com/trezcool/shule/core"
)

type School struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // school | district | department
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type AcademicYear struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Term struct {
	ID             string    `json:"id"`
	Tenant         string    `json:"tenant"`
	AcademicYearID string    `json:"academic_year_id"`
	Name           string    `json:"name"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// NewSchool contains information needed to create a new School.
type NewSchool struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"omitempty,oneof=school district department"`
}

func (ns *NewSchool) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	ns.Type = core.CleanString(ns.Type, true /* lower */)
	return core.Validate.Struct(ns)
}

// NewAcademicYear contains information needed to create a new AcademicYear.
type NewAcademicYear struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

func (ny *NewAcademicYear) Validate() error {
	ny.Name = core.CleanString(ny.Name)
	return core.Validate.Struct(ny)
}

// NewTerm contains information needed to create a new Term.
type NewTerm struct {
	AcademicYearID string    `json:"academic_year_id" validate:"required"`
	Name           string    `json:"name" validate:"required"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	EndDate        time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

func (nt *NewTerm) Validate() error {
	nt.Name = core.CleanString(nt.Name)
	return core.Validate.Struct(nt)
}
