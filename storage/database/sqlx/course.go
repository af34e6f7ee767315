package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

type courseRow struct {
	ID        string      `db:"id"`
	Tenant    string      `db:"tenant"`
	Name      string      `db:"name"`
	Code      null.String `db:"code"`
	TermID    null.String `db:"term_id"`
	CreatedAt null.Time   `db:"created_at"`
	UpdatedAt null.Time   `db:"updated_at"`
}

func (repo courseRepository) unpack(row courseRow) course.Course {
	return course.Course{
		ID:        row.ID,
		Tenant:    row.Tenant,
		Name:      row.Name,
		Code:      row.Code.String,
		TermID:    row.TermID.String,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

func (repo courseRepository) trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO course (id, tenant, name, code, term_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		crs.ID, crs.Tenant, crs.Name, crs.Code,
		null.NewString(crs.TermID, crs.TermID != ""), crs.CreatedAt, crs.UpdatedAt,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	if !isUUID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var row courseRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM course WHERE id = $1`, id)
	if err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, course.ErrNotFound, "finding course by ID")
	}
	return repo.unpack(row), nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE course SET name = $2, code = $3, term_id = $4, updated_at = $5 WHERE id = $1`,
		crs.ID, crs.Name, crs.Code, null.NewString(crs.TermID, crs.TermID != ""), crs.UpdatedAt,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	return crs, nil
}

func (repo courseRepository) CreateSection(ctx context.Context, sec course.Section) (course.Section, error) {
	sec.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO section (id, tenant, course_id, name, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sec.ID, sec.Tenant, sec.CourseID, sec.Name, sec.IsDefault, sec.CreatedAt, sec.UpdatedAt,
	)
	if err != nil {
		return course.Section{}, errors.Wrap(err, "inserting section")
	}
	return sec, nil
}

func (repo courseRepository) GetSectionByID(ctx context.Context, id string) (course.Section, error) {
	if !isUUID(id) {
		return course.Section{}, course.ErrSectionNotFound
	}
	var sec course.Section
	err := repo.db.GetContext(ctx, &sec, `
		SELECT id, tenant, course_id AS courseid, name, is_default AS isdefault,
		       created_at AS createdat, updated_at AS updatedat
		FROM section WHERE id = $1`, id)
	if err != nil {
		return course.Section{}, repo.trapNoRowsErr(err, course.ErrSectionNotFound, "finding section by ID")
	}
	return sec, nil
}

func (repo courseRepository) GetDefaultSection(ctx context.Context, courseID string) (course.Section, error) {
	if !isUUID(courseID) {
		return course.Section{}, course.ErrSectionNotFound
	}
	var sec course.Section
	err := repo.db.GetContext(ctx, &sec, `
		SELECT id, tenant, course_id AS courseid, name, is_default AS isdefault,
		       created_at AS createdat, updated_at AS updatedat
		FROM section WHERE course_id = $1 AND is_default`, courseID)
	if err != nil {
		return course.Section{}, repo.trapNoRowsErr(err, course.ErrSectionNotFound, "finding default section")
	}
	return sec, nil
}

func (repo courseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment) (course.Enrollment, error) {
	enr.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO enrollment (id, tenant, user_id, section_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		enr.ID, enr.Tenant, enr.UserID, enr.SectionID, enr.Role, enr.CreatedAt, enr.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return course.Enrollment{}, course.ErrEnrollmentExists
		}
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo courseRepository) GetEnrollment(ctx context.Context, userID, sectionID string) (course.Enrollment, error) {
	var enr course.Enrollment
	err := repo.db.GetContext(ctx, &enr, `
		SELECT id, tenant, user_id AS userid, section_id AS sectionid, role,
		       created_at AS createdat, updated_at AS updatedat
		FROM enrollment WHERE user_id = $1 AND section_id = $2`, userID, sectionID)
	if err != nil {
		return course.Enrollment{}, repo.trapNoRowsErr(err, course.ErrEnrollmentNotFound, "finding enrollment")
	}
	return enr, nil
}

func (repo courseRepository) GetEnrollmentByID(ctx context.Context, id string) (course.Enrollment, error) {
	if !isUUID(id) {
		return course.Enrollment{}, course.ErrEnrollmentNotFound
	}
	var enr course.Enrollment
	err := repo.db.GetContext(ctx, &enr, `
		SELECT id, tenant, user_id AS userid, section_id AS sectionid, role,
		       created_at AS createdat, updated_at AS updatedat
		FROM enrollment WHERE id = $1`, id)
	if err != nil {
		return course.Enrollment{}, repo.trapNoRowsErr(err, course.ErrEnrollmentNotFound, "finding enrollment by ID")
	}
	return enr, nil
}

func (repo courseRepository) QueryEnrollmentsBySectionID(ctx context.Context, sectionID string) ([]course.Enrollment, error) {
	var enrs []course.Enrollment
	err := repo.db.SelectContext(ctx, &enrs, `
		SELECT id, tenant, user_id AS userid, section_id AS sectionid, role,
		       created_at AS createdat, updated_at AS updatedat
		FROM enrollment WHERE section_id = $1 ORDER BY created_at`, sectionID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return enrs, nil
}
