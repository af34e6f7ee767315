package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/school"
)

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo schoolRepository) trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo schoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	sch.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO school (id, tenant, name, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sch.ID, sch.Tenant, sch.Name, sch.Type, sch.CreatedAt, sch.UpdatedAt,
	)
	if err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo schoolRepository) GetSchoolByID(ctx context.Context, id string) (school.School, error) {
	if !isUUID(id) {
		return school.School{}, school.ErrNotFound
	}
	var sch school.School
	err := repo.db.GetContext(ctx, &sch, `
		SELECT id, tenant, name, type, created_at AS createdat, updated_at AS updatedat
		FROM school WHERE id = $1`, id)
	if err != nil {
		return school.School{}, repo.trapNoRowsErr(err, school.ErrNotFound, "finding school by ID")
	}
	return sch, nil
}

func (repo schoolRepository) QuerySchools(ctx context.Context, tenant string) ([]school.School, error) {
	var schools []school.School
	err := repo.db.SelectContext(ctx, &schools, `
		SELECT id, tenant, name, type, created_at AS createdat, updated_at AS updatedat
		FROM school WHERE tenant = $1 ORDER BY name`, tenant)
	if err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	return schools, nil
}

func (repo schoolRepository) UpdateSchool(ctx context.Context, sch school.School) (school.School, error) {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE school SET name = $2, type = $3, updated_at = $4 WHERE id = $1`,
		sch.ID, sch.Name, sch.Type, sch.UpdatedAt,
	)
	if err != nil {
		return school.School{}, errors.Wrap(err, "updating school")
	}
	return sch, nil
}

func (repo schoolRepository) CreateAcademicYear(ctx context.Context, yr school.AcademicYear) (school.AcademicYear, error) {
	yr.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO academic_year (id, tenant, name, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		yr.ID, yr.Tenant, yr.Name, yr.StartDate, yr.EndDate, yr.CreatedAt, yr.UpdatedAt,
	)
	if err != nil {
		return school.AcademicYear{}, errors.Wrap(err, "inserting academic year")
	}
	return yr, nil
}

func (repo schoolRepository) GetAcademicYearByID(ctx context.Context, id string) (school.AcademicYear, error) {
	if !isUUID(id) {
		return school.AcademicYear{}, school.ErrYearNotFound
	}
	var yr school.AcademicYear
	err := repo.db.GetContext(ctx, &yr, `
		SELECT id, tenant, name, start_date AS startdate, end_date AS enddate,
		       created_at AS createdat, updated_at AS updatedat
		FROM academic_year WHERE id = $1`, id)
	if err != nil {
		return school.AcademicYear{}, repo.trapNoRowsErr(err, school.ErrYearNotFound, "finding academic year by ID")
	}
	return yr, nil
}

func (repo schoolRepository) FirstAcademicYear(ctx context.Context, tenant string) (school.AcademicYear, error) {
	var yr school.AcademicYear
	err := repo.db.GetContext(ctx, &yr, `
		SELECT id, tenant, name, start_date AS startdate, end_date AS enddate,
		       created_at AS createdat, updated_at AS updatedat
		FROM academic_year WHERE tenant = $1 ORDER BY start_date LIMIT 1`, tenant)
	if err != nil {
		return school.AcademicYear{}, repo.trapNoRowsErr(err, school.ErrYearNotFound, "finding first academic year")
	}
	return yr, nil
}

func (repo schoolRepository) CreateTerm(ctx context.Context, term school.Term) (school.Term, error) {
	term.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO term (id, tenant, academic_year_id, name, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		term.ID, term.Tenant, term.AcademicYearID, term.Name, term.StartDate, term.EndDate, term.CreatedAt, term.UpdatedAt,
	)
	if err != nil {
		return school.Term{}, errors.Wrap(err, "inserting term")
	}
	return term, nil
}

func (repo schoolRepository) GetTermByID(ctx context.Context, id string) (school.Term, error) {
	if !isUUID(id) {
		return school.Term{}, school.ErrTermNotFound
	}
	var term school.Term
	err := repo.db.GetContext(ctx, &term, `
		SELECT id, tenant, academic_year_id AS academicyearid, name,
		       start_date AS startdate, end_date AS enddate,
		       created_at AS createdat, updated_at AS updatedat
		FROM term WHERE id = $1`, id)
	if err != nil {
		return school.Term{}, repo.trapNoRowsErr(err, school.ErrTermNotFound, "finding term by ID")
	}
	return term, nil
}

func (repo schoolRepository) UpdateTerm(ctx context.Context, term school.Term) (school.Term, error) {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE term SET name = $2, start_date = $3, end_date = $4, updated_at = $5 WHERE id = $1`,
		term.ID, term.Name, term.StartDate, term.EndDate, term.UpdatedAt,
	)
	if err != nil {
		return school.Term{}, errors.Wrap(err, "updating term")
	}
	return term, nil
}
