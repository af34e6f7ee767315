package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound     = errors.New("school not found")
	ErrYearNotFound = errors.New("academic year not found")
	ErrTermNotFound = errors.New("term not found")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, sch School) (School, error)
		GetSchoolByID(ctx context.Context, id string) (School, error)
		QuerySchools(ctx context.Context, tenant string) ([]School, error)
		UpdateSchool(ctx context.Context, sch School) (School, error)

		CreateAcademicYear(ctx context.Context, yr AcademicYear) (AcademicYear, error)
		GetAcademicYearByID(ctx context.Context, id string) (AcademicYear, error)
		// FirstAcademicYear returns the earliest-starting academic year for the tenant.
		FirstAcademicYear(ctx context.Context, tenant string) (AcademicYear, error)

		CreateTerm(ctx context.Context, term Term) (Term, error)
		GetTermByID(ctx context.Context, id string) (Term, error)
		UpdateTerm(ctx context.Context, term Term) (Term, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CreateSchool(ctx context.Context, ns NewSchool) (School, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return School{}, err
	}
	if err := ns.Validate(); err != nil {
		return School{}, err
	}

	now := time.Now().UTC()
	sch := School{
		Tenant:    tenant,
		Name:      ns.Name,
		Type:      ns.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sch.Type == "" {
		sch.Type = "school"
	}
	return svc.repo.CreateSchool(ctx, sch)
}

func (svc *Service) GetSchoolByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchoolByID(ctx, id)
}

func (svc *Service) UpdateSchool(ctx context.Context, sch School) (School, error) {
	sch.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSchool(ctx, sch)
}

func (svc *Service) CreateAcademicYear(ctx context.Context, ny NewAcademicYear) (AcademicYear, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return AcademicYear{}, err
	}
	if err := ny.Validate(); err != nil {
		return AcademicYear{}, err
	}

	now := time.Now().UTC()
	yr := AcademicYear{
		Tenant:    tenant,
		Name:      ny.Name,
		StartDate: ny.StartDate,
		EndDate:   ny.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateAcademicYear(ctx, yr)
}

func (svc *Service) GetAcademicYearByID(ctx context.Context, id string) (AcademicYear, error) {
	return svc.repo.GetAcademicYearByID(ctx, id)
}

// FirstAcademicYear returns the earliest-starting academic year for the
// current tenant, or ErrYearNotFound.
func (svc *Service) FirstAcademicYear(ctx context.Context) (AcademicYear, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return AcademicYear{}, err
	}
	return svc.repo.FirstAcademicYear(ctx, tenant)
}

func (svc *Service) CreateTerm(ctx context.Context, nt NewTerm) (Term, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return Term{}, err
	}
	if err := nt.Validate(); err != nil {
		return Term{}, err
	}
	if _, err := svc.repo.GetAcademicYearByID(ctx, nt.AcademicYearID); err != nil {
		return Term{}, errors.Wrap(err, "resolving academic year")
	}

	now := time.Now().UTC()
	term := Term{
		Tenant:         tenant,
		AcademicYearID: nt.AcademicYearID,
		Name:           nt.Name,
		StartDate:      nt.StartDate,
		EndDate:        nt.EndDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.CreateTerm(ctx, term)
}

func (svc *Service) GetTermByID(ctx context.Context, id string) (Term, error) {
	return svc.repo.GetTermByID(ctx, id)
}

func (svc *Service) UpdateTerm(ctx context.Context, term Term) (Term, error) {
	term.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTerm(ctx, term)
}
