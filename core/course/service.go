package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound            = errors.New("course not found")
	ErrSectionNotFound     = errors.New("section not found")
	ErrEnrollmentNotFound  = errors.New("enrollment not found")
	ErrEnrollmentExists    = errors.New("user is already enrolled in this section")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		UpdateCourse(ctx context.Context, crs Course) (Course, error)

		CreateSection(ctx context.Context, sec Section) (Section, error)
		GetSectionByID(ctx context.Context, id string) (Section, error)
		// GetDefaultSection returns the section enrollments land in when the
		// external provider has no section concept of its own.
		GetDefaultSection(ctx context.Context, courseID string) (Section, error)

		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, userID, sectionID string) (Enrollment, error)
		GetEnrollmentByID(ctx context.Context, id string) (Enrollment, error)
		QueryEnrollmentsBySectionID(ctx context.Context, sectionID string) ([]Enrollment, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create creates a Course together with its default Section.
func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return Course{}, err
	}
	if err := nc.Validate(); err != nil {
		return Course{}, err
	}

	now := time.Now().UTC()
	crs := Course{
		Tenant:    tenant,
		Name:      nc.Name,
		Code:      nc.Code,
		TermID:    nc.TermID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	crs, err = svc.repo.CreateCourse(ctx, crs)
	if err != nil {
		return Course{}, err
	}

	sec := Section{
		Tenant:    tenant,
		CourseID:  crs.ID,
		Name:      crs.Name,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err = svc.repo.CreateSection(ctx, sec); err != nil {
		return Course{}, errors.Wrap(err, "creating default section")
	}
	return crs, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

func (svc *Service) Update(ctx context.Context, crs Course) (Course, error) {
	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, crs)
}

func (svc *Service) GetDefaultSection(ctx context.Context, courseID string) (Section, error) {
	return svc.repo.GetDefaultSection(ctx, courseID)
}

func (svc *Service) GetSectionByID(ctx context.Context, id string) (Section, error) {
	return svc.repo.GetSectionByID(ctx, id)
}

// Enroll creates an Enrollment; enrolling the same user into the same section
// twice returns ErrEnrollmentExists.
func (svc *Service) Enroll(ctx context.Context, ne NewEnrollment) (Enrollment, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return Enrollment{}, err
	}
	if err := ne.Validate(); err != nil {
		return Enrollment{}, err
	}

	if _, err := svc.repo.GetEnrollment(ctx, ne.UserID, ne.SectionID); err == nil {
		return Enrollment{}, ErrEnrollmentExists
	} else if errors.Cause(err) != ErrEnrollmentNotFound {
		return Enrollment{}, err
	}

	now := time.Now().UTC()
	enr := Enrollment{
		Tenant:    tenant,
		UserID:    ne.UserID,
		SectionID: ne.SectionID,
		Role:      ne.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateEnrollment(ctx, enr)
}

func (svc *Service) GetEnrollment(ctx context.Context, userID, sectionID string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, userID, sectionID)
}

func (svc *Service) GetEnrollmentByID(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollmentByID(ctx, id)
}

func (svc *Service) QueryEnrollmentsBySectionID(ctx context.Context, sectionID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollmentsBySectionID(ctx, sectionID)
}
