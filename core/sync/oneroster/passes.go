package oneroster

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/integration"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/core/user"
	onerostersvc "github.com/trezcool/shule/services/oneroster"
)

const dateLayout = "2006-01-02"

// roleMap translates provider roles to local role sets. Roles outside this map
// (aide, guardian, proctor, ...) are not imported.
var roleMap = map[string][]string{
	"student":       {user.RoleStudent},
	"teacher":       {user.RoleTeacher},
	"administrator": {user.RoleAdmin},
}

// skipDeleted drops records the provider flagged for deletion. They are not
// counted against the run at all.
func skipDeleted(rec sync.Record) bool {
	switch r := rec.(type) {
	case orgRecord:
		return r.Status == onerostersvc.StatusToBeDeleted
	case sessionRecord:
		return r.Status == onerostersvc.StatusToBeDeleted
	case userRecord:
		return r.Status == onerostersvc.StatusToBeDeleted
	case classRecord:
		return r.Status == onerostersvc.StatusToBeDeleted
	case enrollmentRecord:
		return r.Status == onerostersvc.StatusToBeDeleted
	}
	return false
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parsing date %q", s)
	}
	return t, nil
}

// passes builds the ordered pull stages. Order matters: classes need term and
// school mappings, enrollments need user and class mappings.
func (c *Connector) passes(cfg integration.Config, src rosterSource) []sync.Pass {
	return []sync.Pass{
		c.orgPass(src),
		c.yearPass(src),
		c.termPass(cfg, src),
		c.userPass(cfg, src),
		c.classPass(cfg, src),
		c.enrollmentPass(cfg, src),
	}
}

func (c *Connector) orgPass(src rosterSource) sync.Pass {
	return sync.Pass{
		Name: "orgs",
		Descriptor: sync.Descriptor{
			LocalType:    sync.LocalSchool,
			ExternalType: sync.ExternalOneRosterOrg,
			Create: func(ctx context.Context, rec sync.Record) (string, error) {
				org := rec.(orgRecord).Org
				ns := school.NewSchool{Name: org.Name, Type: org.Type}
				sch, err := c.schools.CreateSchool(ctx, ns)
				if err != nil {
					return "", err
				}
				return sch.ID, nil
			},
			Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) {
				org := rec.(orgRecord).Org
				sch, err := c.schools.GetSchoolByID(ctx, localID)
				if err != nil {
					return false, err
				}
				name := core.CleanString(org.Name)
				typ := core.CleanString(org.Type, true)
				if sch.Name == name && (typ == "" || sch.Type == typ) {
					return false, nil
				}
				sch.Name = name
				if typ != "" {
					sch.Type = typ
				}
				_, err = c.schools.UpdateSchool(ctx, sch)
				return err == nil, err
			},
		},
		Fetch: func(ctx context.Context) ([]sync.Record, error) {
			orgs, err := src.Orgs(ctx)
			if err != nil {
				return nil, err
			}
			recs := make([]sync.Record, 0, len(orgs))
			for _, o := range orgs {
				recs = append(recs, orgRecord{o})
			}
			return recs, nil
		},
		Skip: skipDeleted,
	}
}

func (c *Connector) yearPass(src rosterSource) sync.Pass {
	return sync.Pass{
		Name: "academic years",
		Descriptor: sync.Descriptor{
			LocalType:    sync.LocalAcademicYear,
			ExternalType: sync.ExternalOneRosterSession,
			Create: func(ctx context.Context, rec sync.Record) (string, error) {
				sess := rec.(sessionRecord).AcademicSession
				start, err := parseDate(sess.StartDate)
				if err != nil {
					return "", err
				}
				end, err := parseDate(sess.EndDate)
				if err != nil {
					return "", err
				}
				yr, err := c.schools.CreateAcademicYear(ctx, school.NewAcademicYear{
					Name:      sess.Title,
					StartDate: start,
					EndDate:   end,
				})
				if err != nil {
					return "", err
				}
				return yr.ID, nil
			},
			Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) {
				// years are append-only locally; a re-seen year is a no-op.
				_, err := c.schools.GetAcademicYearByID(ctx, localID)
				return false, err
			},
		},
		Fetch: func(ctx context.Context) ([]sync.Record, error) {
			sessions, err := src.AcademicSessions(ctx)
			if err != nil {
				return nil, err
			}
			var recs []sync.Record
			for _, s := range sessions {
				if s.Type == onerostersvc.SessionTypeSchoolYear {
					recs = append(recs, sessionRecord{s})
				}
			}
			return recs, nil
		},
		Skip: skipDeleted,
	}
}

func (c *Connector) termPass(cfg integration.Config, src rosterSource) sync.Pass {
	return sync.Pass{
		Name: "terms",
		Descriptor: sync.Descriptor{
			LocalType:    sync.LocalTerm,
			ExternalType: sync.ExternalOneRosterSession,
			Create: func(ctx context.Context, rec sync.Record) (string, error) {
				sess := rec.(sessionRecord).AcademicSession
				start, err := parseDate(sess.StartDate)
				if err != nil {
					return "", err
				}
				end, err := parseDate(sess.EndDate)
				if err != nil {
					return "", err
				}
				yearID, err := c.resolveTermYear(ctx, cfg.ID, sess, start)
				if err != nil {
					return "", err
				}
				term, err := c.schools.CreateTerm(ctx, school.NewTerm{
					AcademicYearID: yearID,
					Name:           sess.Title,
					StartDate:      start,
					EndDate:        end,
				})
				if err != nil {
					return "", err
				}
				return term.ID, nil
			},
			Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) {
				sess := rec.(sessionRecord).AcademicSession
				term, err := c.schools.GetTermByID(ctx, localID)
				if err != nil {
					return false, err
				}
				name := core.CleanString(sess.Title)
				if term.Name == name {
					return false, nil
				}
				term.Name = name
				_, err = c.schools.UpdateTerm(ctx, term)
				return err == nil, err
			},
		},
		Fetch: func(ctx context.Context) ([]sync.Record, error) {
			sessions, err := src.AcademicSessions(ctx)
			if err != nil {
				return nil, err
			}
			var recs []sync.Record
			for _, s := range sessions {
				if s.Type != onerostersvc.SessionTypeSchoolYear {
					recs = append(recs, sessionRecord{s})
				}
			}
			return recs, nil
		},
		Skip: skipDeleted,
	}
}

// resolveTermYear finds the local academic year a term belongs to: the mapped
// parent session when one exists, else the tenant's earliest year, else a
// synthesized year spanning twelve months from the term's start.
func (c *Connector) resolveTermYear(ctx context.Context, configID string, sess onerostersvc.AcademicSession, termStart time.Time) (string, error) {
	if sess.Parent.SourcedID != "" {
		m, err := c.mappings().FindExternal(ctx, configID, sync.ExternalOneRosterSession, sess.Parent.SourcedID)
		switch errors.Cause(err) {
		case nil:
			return m.LocalID, nil
		case sync.ErrMappingNotFound:
			// fall through to tenant-level resolution
		default:
			return "", err
		}
	}

	yr, err := c.schools.FirstAcademicYear(ctx)
	switch errors.Cause(err) {
	case nil:
		return yr.ID, nil
	case school.ErrYearNotFound:
		// no year exists at all; synthesize one around the term
	default:
		return "", err
	}

	yr, err = c.schools.CreateAcademicYear(ctx, school.NewAcademicYear{
		Name:      fmt.Sprintf("%d-%d", termStart.Year(), termStart.Year()+1),
		StartDate: termStart,
		EndDate:   termStart.AddDate(1, 0, 0),
	})
	if err != nil {
		return "", errors.Wrap(err, "synthesizing academic year")
	}
	return yr.ID, nil
}

func (c *Connector) userPass(cfg integration.Config, src rosterSource) sync.Pass {
	return sync.Pass{
		Name: "users",
		Descriptor: sync.Descriptor{
			LocalType:    sync.LocalUser,
			ExternalType: sync.ExternalOneRosterUser,
			Create: func(ctx context.Context, rec sync.Record) (string, error) {
				u := rec.(userRecord).User

				// adopt an existing local account with the same email rather
				// than failing the uniqueness check
				if existing, err := c.users.GetByEmail(ctx, u.Email); err == nil {
					return existing.ID, nil
				} else if errors.Cause(err) != user.ErrNotFound {
					return "", err
				}

				usr, err := c.users.CreateExternal(ctx, user.ExternalUser{
					Name:  displayName(u),
					Email: u.Email,
					Roles: roleMap[u.Role],
				})
				if err != nil {
					return "", err
				}
				return usr.ID, nil
			},
			Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) {
				u := rec.(userRecord).User
				usr, err := c.users.GetByID(ctx, localID)
				if err != nil {
					return false, err
				}
				name := core.CleanString(displayName(u))
				email := core.CleanString(u.Email, true)
				if usr.Name == name && usr.Email == email {
					return false, nil
				}
				usr.Name = name
				usr.Email = email
				_, err = c.users.Update(ctx, usr)
				return err == nil, err
			},
		},
		Fetch: func(ctx context.Context) ([]sync.Record, error) {
			us, err := src.Users(ctx)
			if err != nil {
				return nil, err
			}
			recs := make([]sync.Record, 0, len(us))
			for _, u := range us {
				recs = append(recs, userRecord{u})
			}
			return recs, nil
		},
		Skip: skipDeleted,
		Exclude: func(rec sync.Record) string {
			u := rec.(userRecord).User
			if u.Email == "" {
				return "user has no email address"
			}
			if !cfg.Settings.DomainAllowed(u.Email) {
				return fmt.Sprintf("email domain not allowed: %s", u.Email)
			}
			if _, ok := roleMap[u.Role]; !ok {
				return fmt.Sprintf("unsupported role: %s", u.Role)
			}
			return ""
		},
	}
}

func displayName(u onerostersvc.User) string {
	name := u.GivenName
	if u.FamilyName != "" {
		if name != "" {
			name += " "
		}
		name += u.FamilyName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

func (c *Connector) classPass(cfg integration.Config, src rosterSource) sync.Pass {
	return sync.Pass{
		Name: "classes",
		Descriptor: sync.Descriptor{
			LocalType:    sync.LocalCourse,
			ExternalType: sync.ExternalOneRosterClass,
			Create: func(ctx context.Context, rec sync.Record) (string, error) {
				cls := rec.(classRecord).Class

				var termID string
				if len(cls.Terms) > 0 && cls.Terms[0].SourcedID != "" {
					m, err := c.mappings().FindExternal(ctx, cfg.ID, sync.ExternalOneRosterSession, cls.Terms[0].SourcedID)
					switch errors.Cause(err) {
					case nil:
						termID = m.LocalID
					case sync.ErrMappingNotFound:
						// class keeps no term link when the session was never imported
					default:
						return "", err
					}
				}

				crs, err := c.courses.Create(ctx, course.NewCourse{
					Name:   cls.Title,
					Code:   cls.ClassCode,
					TermID: termID,
				})
				if err != nil {
					return "", err
				}
				return crs.ID, nil
			},
			Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) {
				cls := rec.(classRecord).Class
				crs, err := c.courses.GetByID(ctx, localID)
				if err != nil {
					return false, err
				}
				name := core.CleanString(cls.Title)
				code := core.CleanString(cls.ClassCode)
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
			classes, err := src.Classes(ctx)
			if err != nil {
				return nil, err
			}
			recs := make([]sync.Record, 0, len(classes))
			for _, cls := range classes {
				recs = append(recs, classRecord{cls})
			}
			return recs, nil
		},
		Skip: skipDeleted,
	}
}

func (c *Connector) enrollmentPass(cfg integration.Config, src rosterSource) sync.Pass {
	return sync.Pass{
		Name: "enrollments",
		Descriptor: sync.Descriptor{
			LocalType:    sync.LocalEnrollment,
			ExternalType: sync.ExternalOneRosterEnrollment,
			Create: func(ctx context.Context, rec sync.Record) (string, error) {
				enr := rec.(enrollmentRecord).Enrollment

				userM, err := c.mappings().FindExternal(ctx, cfg.ID, sync.ExternalOneRosterUser, enr.User.SourcedID)
				if err != nil {
					return "", errors.Wrapf(err, "resolving user %s", enr.User.SourcedID)
				}
				classM, err := c.mappings().FindExternal(ctx, cfg.ID, sync.ExternalOneRosterClass, enr.Class.SourcedID)
				if err != nil {
					return "", errors.Wrapf(err, "resolving class %s", enr.Class.SourcedID)
				}
				sec, err := c.courses.GetDefaultSection(ctx, classM.LocalID)
				if err != nil {
					return "", errors.Wrapf(err, "resolving default section of course %s", classM.LocalID)
				}

				created, err := c.courses.Enroll(ctx, course.NewEnrollment{
					UserID:    userM.LocalID,
					SectionID: sec.ID,
					Role:      enr.Role,
				})
				switch errors.Cause(err) {
				case nil:
					return created.ID, nil
				case course.ErrEnrollmentExists:
					// a locally existing enrollment is adopted, not duplicated
					existing, err := c.courses.GetEnrollment(ctx, userM.LocalID, sec.ID)
					if err != nil {
						return "", err
					}
					return existing.ID, nil
				default:
					return "", err
				}
			},
			Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) {
				_, err := c.courses.GetEnrollmentByID(ctx, localID)
				return false, err
			},
		},
		Fetch: func(ctx context.Context) ([]sync.Record, error) {
			enrs, err := src.Enrollments(ctx)
			if err != nil {
				return nil, err
			}
			recs := make([]sync.Record, 0, len(enrs))
			for _, e := range enrs {
				recs = append(recs, enrollmentRecord{e})
			}
			return recs, nil
		},
		Skip: skipDeleted,
		Exclude: func(rec sync.Record) string {
			enr := rec.(enrollmentRecord).Enrollment
			if enr.Role != "student" && enr.Role != "teacher" {
				return fmt.Sprintf("unsupported enrollment role: %s", enr.Role)
			}
			return ""
		},
	}
}
