package assignment

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound           = errors.New("assignment not found")
	ErrSubmissionNotFound = errors.New("submission not found")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, asg Assignment) (Assignment, error)
		GetAssignmentByID(ctx context.Context, id string) (Assignment, error)
		QueryAssignments(ctx context.Context, tenant string) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, asg Assignment) (Assignment, error)

		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		GetSubmissionByID(ctx context.Context, id string) (Submission, error)
		QuerySubmissionsByAssignmentID(ctx context.Context, assignmentID string) ([]Submission, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, na NewAssignment) (Assignment, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return Assignment{}, err
	}
	if err := na.Validate(); err != nil {
		return Assignment{}, err
	}

	now := time.Now().UTC()
	asg := Assignment{
		Tenant:      tenant,
		SectionID:   na.SectionID,
		Title:       na.Title,
		Description: na.Description,
		MaxPoints:   na.MaxPoints,
		DueDate:     na.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateAssignment(ctx, asg)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignmentByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context) ([]Assignment, error) {
	tenant, err := core.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryAssignments(ctx, tenant)
}

func (svc *Service) Update(ctx context.Context, asg Assignment) (Assignment, error) {
	asg.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, asg)
}

func (svc *Service) GetSubmissionByID(ctx context.Context, id string) (Submission, error) {
	return svc.repo.GetSubmissionByID(ctx, id)
}

func (svc *Service) QuerySubmissions(ctx context.Context, assignmentID string) ([]Submission, error) {
	return svc.repo.QuerySubmissionsByAssignmentID(ctx, assignmentID)
}
