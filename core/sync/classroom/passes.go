package classroom

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/integration"
	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/core/user"
	classroomsvc "github.com/trezcool/shule/services/classroom"
)

type courseRecord struct{ classroomsvc.Course }

func (r courseRecord) ExternalKey() string { return r.ID }

// studentRecord is one student merged across every course they appear in.
type studentRecord struct {
	UserID    string
	Profile   classroomsvc.UserProfile
	CourseIDs []string // provider course IDs, sorted
}

func (r studentRecord) ExternalKey() string { return r.UserID }

func (c *Connector) passes(cfg integration.Config, api courseAPI) []sync.Pass {
	return []sync.Pass{
		c.coursePass(api),
		c.studentPass(cfg, api),
	}
}

func (c *Connector) coursePass(api courseAPI) sync.Pass {
	return sync.Pass{
		Name: "courses",
		Descriptor: sync.Descriptor{
			LocalType:    sync.LocalCourse,
			ExternalType: sync.ExternalClassroomCourse,
			Create: func(ctx context.Context, rec sync.Record) (string, error) {
				pc := rec.(courseRecord).Course
				crs, err := c.courses.Create(ctx, course.NewCourse{
					Name: pc.Name,
					Code: pc.Section,
				})
				if err != nil {
					return "", err
				}
				return crs.ID, nil
			},
			Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) {
				pc := rec.(courseRecord).Course
				crs, err := c.courses.GetByID(ctx, localID)
				if err != nil {
					return false, err
				}
				name := core.CleanString(pc.Name)
				code := core.CleanString(pc.Section)
				if crs.Name == name && crs.Code == code {
					return false, nil
				}
				crs.Name = name
				crs.Code = code
				_, err = c.courses.Update(ctx, crs)
				return err == nil, err
			},
		},
		Fetch: func(ctx context.Context) ([]sync.Record, error) {
			pcs, err := api.Courses(ctx)
			if err != nil {
				return nil, err
			}
			recs := make([]sync.Record, 0, len(pcs))
			for _, pc := range pcs {
				recs = append(recs, courseRecord{pc})
			}
			return recs, nil
		},
		Skip: func(rec sync.Record) bool {
			return rec.(courseRecord).CourseState == classroomsvc.CourseStateArchived
		},
	}
}

// studentPass imports every student seen across the provider's courses and
// enrolls them in the default section of each mapped local course. The
// provider has no enrollment object of its own, so membership is applied as
// part of the student's reconciliation.
func (c *Connector) studentPass(cfg integration.Config, api courseAPI) sync.Pass {
	return sync.Pass{
		Name: "students",
		Descriptor: sync.Descriptor{
			LocalType:    sync.LocalUser,
			ExternalType: sync.ExternalClassroomStudent,
			Create: func(ctx context.Context, rec sync.Record) (string, error) {
				st := rec.(studentRecord)

				localID := ""
				if existing, err := c.users.GetByEmail(ctx, st.Profile.EmailAddress); err == nil {
					localID = existing.ID
				} else if errors.Cause(err) != user.ErrNotFound {
					return "", err
				} else {
					usr, err := c.users.CreateExternal(ctx, user.ExternalUser{
						Name:  studentName(st.Profile),
						Email: st.Profile.EmailAddress,
						Roles: []string{user.RoleStudent},
					})
					if err != nil {
						return "", err
					}
					localID = usr.ID
				}

				if err := c.ensureEnrollments(ctx, cfg.ID, localID, st.CourseIDs); err != nil {
					return "", err
				}
				return localID, nil
			},
			Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) {
				st := rec.(studentRecord)
				usr, err := c.users.GetByID(ctx, localID)
				if err != nil {
					return false, err
				}

				updated := false
				name := core.CleanString(studentName(st.Profile))
				email := core.CleanString(st.Profile.EmailAddress, true)
				if usr.Name != name || usr.Email != email {
					usr.Name = name
					usr.Email = email
					if _, err := c.users.Update(ctx, usr); err != nil {
						return false, err
					}
					updated = true
				}

				if err := c.ensureEnrollments(ctx, cfg.ID, localID, st.CourseIDs); err != nil {
					return updated, err
				}
				return updated, nil
			},
		},
		Fetch: func(ctx context.Context) ([]sync.Record, error) {
			pcs, err := api.Courses(ctx)
			if err != nil {
				return nil, err
			}

			byUser := make(map[string]*studentRecord)
			var order []string
			for _, pc := range pcs {
				if pc.CourseState == classroomsvc.CourseStateArchived {
					continue
				}
				students, err := api.Students(ctx, pc.ID)
				if err != nil {
					return nil, errors.Wrapf(err, "listing students of course %s", pc.ID)
				}
				for _, st := range students {
					rec, ok := byUser[st.UserID]
					if !ok {
						rec = &studentRecord{UserID: st.UserID, Profile: st.Profile}
						byUser[st.UserID] = rec
						order = append(order, st.UserID)
					}
					rec.CourseIDs = append(rec.CourseIDs, pc.ID)
				}
			}

			recs := make([]sync.Record, 0, len(order))
			for _, id := range order {
				rec := byUser[id]
				sort.Strings(rec.CourseIDs)
				recs = append(recs, *rec)
			}
			return recs, nil
		},
		Exclude: func(rec sync.Record) string {
			st := rec.(studentRecord)
			if st.Profile.EmailAddress == "" {
				return "student has no email address"
			}
			if !cfg.Settings.DomainAllowed(st.Profile.EmailAddress) {
				return fmt.Sprintf("email domain not allowed: %s", st.Profile.EmailAddress)
			}
			return ""
		},
	}
}

// ensureEnrollments enrolls the user into the default section of every mapped
// course. Unmapped courses are skipped; already-present enrollments are kept.
func (c *Connector) ensureEnrollments(ctx context.Context, configID, userID string, courseIDs []string) error {
	for _, extCourseID := range courseIDs {
		m, err := c.mappings().FindExternal(ctx, configID, sync.ExternalClassroomCourse, extCourseID)
		if err != nil {
			if errors.Cause(err) == sync.ErrMappingNotFound {
				continue
			}
			return err
		}
		sec, err := c.courses.GetDefaultSection(ctx, m.LocalID)
		if err != nil {
			return errors.Wrapf(err, "resolving default section of course %s", m.LocalID)
		}
		_, err = c.courses.Enroll(ctx, course.NewEnrollment{
			UserID:    userID,
			SectionID: sec.ID,
			Role:      course.EnrollmentRoleStudent,
		})
		if err != nil && errors.Cause(err) != course.ErrEnrollmentExists {
			return err
		}
	}
	return nil
}

func studentName(p classroomsvc.UserProfile) string {
	if p.Name.FullName != "" {
		return p.Name.FullName
	}
	name := p.Name.GivenName
	if p.Name.FamilyName != "" {
		if name != "" {
			name += " "
		}
		name += p.Name.FamilyName
	}
	return name
}
