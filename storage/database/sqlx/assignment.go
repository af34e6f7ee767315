package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/assignment"
)

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *sqlx.DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

type assignmentRow struct {
	ID          string      `db:"id"`
	Tenant      string      `db:"tenant"`
	SectionID   string      `db:"section_id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	MaxPoints   float64     `db:"max_points"`
	DueDate     null.Time   `db:"due_date"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`
}

func (repo assignmentRepository) unpack(row assignmentRow) assignment.Assignment {
	return assignment.Assignment{
		ID:          row.ID,
		Tenant:      row.Tenant,
		SectionID:   row.SectionID,
		Title:       row.Title,
		Description: row.Description.String,
		MaxPoints:   row.MaxPoints,
		DueDate:     row.DueDate,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
}

func (repo assignmentRepository) trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, asg assignment.Assignment) (assignment.Assignment, error) {
	asg.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO assignment (id, tenant, section_id, title, description, max_points, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		asg.ID, asg.Tenant, asg.SectionID, asg.Title, asg.Description, asg.MaxPoints, asg.DueDate, asg.CreatedAt, asg.UpdatedAt,
	)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return asg, nil
}

func (repo assignmentRepository) GetAssignmentByID(ctx context.Context, id string) (assignment.Assignment, error) {
	if !isUUID(id) {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	var row assignmentRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM assignment WHERE id = $1`, id)
	if err != nil {
		return assignment.Assignment{}, repo.trapNoRowsErr(err, assignment.ErrNotFound, "finding assignment by ID")
	}
	return repo.unpack(row), nil
}

func (repo assignmentRepository) QueryAssignments(ctx context.Context, tenant string) ([]assignment.Assignment, error) {
	var rows []assignmentRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM assignment WHERE tenant = $1 ORDER BY created_at`, tenant)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	asgs := make([]assignment.Assignment, 0, len(rows))
	for _, row := range rows {
		asgs = append(asgs, repo.unpack(row))
	}
	return asgs, nil
}

func (repo assignmentRepository) UpdateAssignment(ctx context.Context, asg assignment.Assignment) (assignment.Assignment, error) {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE assignment
		SET title = $2, description = $3, max_points = $4, due_date = $5, updated_at = $6
		WHERE id = $1`,
		asg.ID, asg.Title, asg.Description, asg.MaxPoints, asg.DueDate, asg.UpdatedAt,
	)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	return asg, nil
}

type submissionRow struct {
	ID           string       `db:"id"`
	Tenant       string       `db:"tenant"`
	AssignmentID string       `db:"assignment_id"`
	EnrollmentID string       `db:"enrollment_id"`
	Grade        null.Float64 `db:"grade"`
	SubmittedAt  null.Time    `db:"submitted_at"`
	CreatedAt    null.Time    `db:"created_at"`
	UpdatedAt    null.Time    `db:"updated_at"`
}

func (repo assignmentRepository) unpackSubmission(row submissionRow) assignment.Submission {
	return assignment.Submission{
		ID:           row.ID,
		Tenant:       row.Tenant,
		AssignmentID: row.AssignmentID,
		EnrollmentID: row.EnrollmentID,
		Grade:        row.Grade,
		SubmittedAt:  row.SubmittedAt,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}
}

func (repo assignmentRepository) CreateSubmission(ctx context.Context, sub assignment.Submission) (assignment.Submission, error) {
	sub.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO submission (id, tenant, assignment_id, enrollment_id, grade, submitted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.Tenant, sub.AssignmentID, sub.EnrollmentID, sub.Grade, sub.SubmittedAt, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return assignment.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return sub, nil
}

func (repo assignmentRepository) GetSubmissionByID(ctx context.Context, id string) (assignment.Submission, error) {
	if !isUUID(id) {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	var row submissionRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM submission WHERE id = $1`, id)
	if err != nil {
		return assignment.Submission{}, repo.trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "finding submission by ID")
	}
	return repo.unpackSubmission(row), nil
}

func (repo assignmentRepository) QuerySubmissionsByAssignmentID(ctx context.Context, assignmentID string) ([]assignment.Submission, error) {
	var rows []submissionRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM submission WHERE assignment_id = $1 ORDER BY created_at`, assignmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]assignment.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, repo.unpackSubmission(row))
	}
	return subs, nil
}
