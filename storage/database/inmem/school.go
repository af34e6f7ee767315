package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/shule/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sch.ID = newID()
	repo.db.schools[sch.ID] = &sch
	return sch, nil
}

func (repo *schoolRepository) GetSchoolByID(ctx context.Context, id string) (school.School, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sch, ok := repo.db.schools[id]; ok {
		return *sch, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) QuerySchools(ctx context.Context, tenant string) ([]school.School, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var out []school.School
	for _, sch := range repo.db.schools {
		if sch.Tenant == tenant {
			out = append(out, *sch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, sch school.School) (school.School, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.schools[sch.ID]; !ok {
		return school.School{}, school.ErrNotFound
	}
	repo.db.schools[sch.ID] = &sch
	return sch, nil
}

func (repo *schoolRepository) CreateAcademicYear(ctx context.Context, yr school.AcademicYear) (school.AcademicYear, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	yr.ID = newID()
	repo.db.years[yr.ID] = &yr
	return yr, nil
}

func (repo *schoolRepository) GetAcademicYearByID(ctx context.Context, id string) (school.AcademicYear, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if yr, ok := repo.db.years[id]; ok {
		return *yr, nil
	}
	return school.AcademicYear{}, school.ErrYearNotFound
}

func (repo *schoolRepository) FirstAcademicYear(ctx context.Context, tenant string) (school.AcademicYear, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var first *school.AcademicYear
	for _, yr := range repo.db.years {
		if yr.Tenant != tenant {
			continue
		}
		if first == nil || yr.StartDate.Before(first.StartDate) {
			first = yr
		}
	}
	if first == nil {
		return school.AcademicYear{}, school.ErrYearNotFound
	}
	return *first, nil
}

func (repo *schoolRepository) CreateTerm(ctx context.Context, term school.Term) (school.Term, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	term.ID = newID()
	repo.db.terms[term.ID] = &term
	return term, nil
}

func (repo *schoolRepository) GetTermByID(ctx context.Context, id string) (school.Term, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if term, ok := repo.db.terms[id]; ok {
		return *term, nil
	}
	return school.Term{}, school.ErrTermNotFound
}

func (repo *schoolRepository) UpdateTerm(ctx context.Context, term school.Term) (school.Term, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.terms[term.ID]; !ok {
		return school.Term{}, school.ErrTermNotFound
	}
	repo.db.terms[term.ID] = &term
	return term, nil
}
