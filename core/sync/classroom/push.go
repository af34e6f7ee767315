package classroom

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/assignment"
	"github.com/trezcool/shule/core/sync"
	classroomsvc "github.com/trezcool/shule/services/classroom"
)

// PushCoursework exports local assignments as provider coursework. Only
// assignments whose course is already linked to a provider course are pushed;
// the rest are logged and skipped.
func (c *Connector) PushCoursework(ctx context.Context, configID, triggeredBy string) (sync.Run, error) {
	ctx, cfg, h, err := c.begin(ctx, configID, SyncTypeCoursework, sync.DirectionPush, triggeredBy)
	if err != nil {
		return sync.Run{}, err
	}

	api, err := c.client(cfg)
	if err != nil {
		return c.fail(ctx, h, err)
	}
	asgs, err := c.assignments.Query(ctx)
	if err != nil {
		return c.fail(ctx, h, errors.Wrap(err, "listing assignments"))
	}

	for _, asg := range asgs {
		h.MarkProcessed()

		extCourseID, err := c.providerCourseID(ctx, cfg.ID, asg.SectionID)
		if err != nil {
			if errors.Cause(err) == sync.ErrMappingNotFound {
				h.LogWarn(ctx, "course is not linked to a provider course", sync.Ref{
					EntityType: sync.LocalAssignment,
					EntityID:   asg.ID,
				})
				continue
			}
			h.LogError(ctx, err.Error(), sync.Ref{EntityType: sync.LocalAssignment, EntityID: asg.ID})
			h.MarkFailed()
			continue
		}

		if err := c.pushOne(ctx, api, cfg.ID, extCourseID, asg); err != nil {
			h.LogError(ctx, err.Error(), sync.Ref{EntityType: sync.LocalAssignment, EntityID: asg.ID})
			h.MarkFailed()
			continue
		}
		h.MarkSucceeded()
	}
	return c.complete(ctx, h)
}

// providerCourseID resolves a local section to the external ID of its mapped
// course.
func (c *Connector) providerCourseID(ctx context.Context, configID, sectionID string) (string, error) {
	sec, err := c.courses.GetSectionByID(ctx, sectionID)
	if err != nil {
		return "", errors.Wrapf(err, "resolving section %s", sectionID)
	}
	m, err := c.mappings().FindLocal(ctx, configID, sync.LocalCourse, sec.CourseID)
	if err != nil {
		return "", err
	}
	return m.ExternalID, nil
}

// pushOne creates or updates the provider coursework for one assignment and
// keeps the mapping current.
func (c *Connector) pushOne(ctx context.Context, api courseAPI, configID, extCourseID string, asg assignment.Assignment) error {
	payload := classroomsvc.CourseWork{
		Title:       asg.Title,
		Description: asg.Description,
		MaxPoints:   asg.MaxPoints,
		WorkType:    "ASSIGNMENT",
		State:       classroomsvc.CourseWorkStatePublished,
	}
	if asg.DueDate.Valid {
		due := asg.DueDate.Time
		payload.DueDate = &classroomsvc.Date{Year: due.Year(), Month: int(due.Month()), Day: due.Day()}
	}

	m, err := c.mappings().FindLocal(ctx, configID, sync.LocalAssignment, asg.ID)
	switch errors.Cause(err) {
	case nil:
		if _, err := api.UpdateCourseWork(ctx, extCourseID, m.ExternalID, payload); err != nil {
			return errors.Wrap(err, "updating coursework")
		}
		return c.mappings().Touch(ctx, m)

	case sync.ErrMappingNotFound:
		created, err := api.CreateCourseWork(ctx, extCourseID, payload)
		if err != nil {
			return errors.Wrap(err, "creating coursework")
		}
		_, err = c.mappings().Create(ctx, configID, sync.LocalAssignment, asg.ID, sync.ExternalClassroomCoursework, created.ID)
		return err

	default:
		return err
	}
}

// PushGrades writes local submission grades back onto the provider's
// submissions. Every link in the chain (course, coursework, student, provider
// submission) must exist; a missing link is logged and skipped.
func (c *Connector) PushGrades(ctx context.Context, configID, triggeredBy string) (sync.Run, error) {
	ctx, cfg, h, err := c.begin(ctx, configID, SyncTypeGrades, sync.DirectionPush, triggeredBy)
	if err != nil {
		return sync.Run{}, err
	}

	api, err := c.client(cfg)
	if err != nil {
		return c.fail(ctx, h, err)
	}
	asgs, err := c.assignments.Query(ctx)
	if err != nil {
		return c.fail(ctx, h, errors.Wrap(err, "listing assignments"))
	}

	for _, asg := range asgs {
		cwMapping, err := c.mappings().FindLocal(ctx, cfg.ID, sync.LocalAssignment, asg.ID)
		if err != nil {
			if errors.Cause(err) == sync.ErrMappingNotFound {
				continue
			}
			return c.fail(ctx, h, err)
		}
		extCourseID, err := c.providerCourseID(ctx, cfg.ID, asg.SectionID)
		if err != nil {
			if errors.Cause(err) == sync.ErrMappingNotFound {
				continue
			}
			return c.fail(ctx, h, err)
		}

		subs, err := c.assignments.QuerySubmissions(ctx, asg.ID)
		if err != nil {
			return c.fail(ctx, h, errors.Wrapf(err, "listing submissions of assignment %s", asg.ID))
		}

		// provider submissions are fetched once per assignment and indexed by
		// the provider's user ID
		var extSubs map[string]classroomsvc.StudentSubmission
		for _, sub := range subs {
			if !sub.Grade.Valid {
				continue
			}
			h.MarkProcessed()

			if extSubs == nil {
				listed, err := api.StudentSubmissions(ctx, extCourseID, cwMapping.ExternalID)
				if err != nil {
					return c.fail(ctx, h, errors.Wrap(err, "listing provider submissions"))
				}
				extSubs = make(map[string]classroomsvc.StudentSubmission, len(listed))
				for _, es := range listed {
					extSubs[es.UserID] = es
				}
			}

			extUserID, reason, err := c.providerUserID(ctx, cfg.ID, sub)
			if err != nil {
				h.LogError(ctx, err.Error(), sync.Ref{EntityType: sync.LocalSubmission, EntityID: sub.ID})
				h.MarkFailed()
				continue
			}
			if reason != "" {
				h.LogWarn(ctx, reason, sync.Ref{EntityType: sync.LocalSubmission, EntityID: sub.ID})
				continue
			}

			extSub, ok := extSubs[extUserID]
			if !ok {
				h.LogWarn(ctx, fmt.Sprintf("provider has no submission for user %s", extUserID), sync.Ref{
					EntityType: sync.LocalSubmission,
					EntityID:   sub.ID,
				})
				continue
			}

			if err := api.PatchSubmissionGrade(ctx, extCourseID, cwMapping.ExternalID, extSub.ID, sub.Grade.Float64); err != nil {
				h.LogError(ctx, errors.Wrap(err, "patching grade").Error(), sync.Ref{
					EntityType: sync.LocalSubmission,
					EntityID:   sub.ID,
				})
				h.MarkFailed()
				continue
			}
			h.MarkSucceeded()
		}
	}
	return c.complete(ctx, h)
}

// providerUserID resolves a submission's student to their provider user ID. A
// non-empty reason means the student is simply not linked.
func (c *Connector) providerUserID(ctx context.Context, configID string, sub assignment.Submission) (string, string, error) {
	enr, err := c.courses.GetEnrollmentByID(ctx, sub.EnrollmentID)
	if err != nil {
		return "", "", errors.Wrapf(err, "resolving enrollment %s", sub.EnrollmentID)
	}
	m, err := c.mappings().FindLocal(ctx, configID, sync.LocalUser, enr.UserID)
	if err != nil {
		if errors.Cause(err) == sync.ErrMappingNotFound {
			return "", fmt.Sprintf("user %s is not linked to a provider student", enr.UserID), nil
		}
		return "", "", err
	}
	return m.ExternalID, "", nil
}
