package oneroster

import (
	"context"

	onerostersvc "github.com/trezcool/shule/services/oneroster"
)

// rosterSource is anything that can list a full OneRoster data set: the REST
// client or a parsed CSV bundle.
type rosterSource interface {
	Orgs(ctx context.Context) ([]onerostersvc.Org, error)
	AcademicSessions(ctx context.Context) ([]onerostersvc.AcademicSession, error)
	Users(ctx context.Context) ([]onerostersvc.User, error)
	Classes(ctx context.Context) ([]onerostersvc.Class, error)
	Enrollments(ctx context.Context) ([]onerostersvc.Enrollment, error)
}

// bundleSource adapts a parsed bundle to rosterSource.
type bundleSource struct {
	bundle *onerostersvc.Bundle
}

var _ rosterSource = (*bundleSource)(nil)

func (s bundleSource) Orgs(context.Context) ([]onerostersvc.Org, error) { return s.bundle.Orgs, nil }

func (s bundleSource) AcademicSessions(context.Context) ([]onerostersvc.AcademicSession, error) {
	return s.bundle.AcademicSessions, nil
}

func (s bundleSource) Users(context.Context) ([]onerostersvc.User, error) {
	return s.bundle.Users, nil
}

func (s bundleSource) Classes(context.Context) ([]onerostersvc.Class, error) {
	return s.bundle.Classes, nil
}

func (s bundleSource) Enrollments(context.Context) ([]onerostersvc.Enrollment, error) {
	return s.bundle.Enrollments, nil
}

// record wrappers expose each wire type's sourcedId as the reconciliation key.

type orgRecord struct{ onerostersvc.Org }

func (r orgRecord) ExternalKey() string { return r.SourcedID }

type sessionRecord struct{ onerostersvc.AcademicSession }

func (r sessionRecord) ExternalKey() string { return r.SourcedID }

type userRecord struct{ onerostersvc.User }

func (r userRecord) ExternalKey() string { return r.SourcedID }

type classRecord struct{ onerostersvc.Class }

func (r classRecord) ExternalKey() string { return r.SourcedID }

type enrollmentRecord struct{ onerostersvc.Enrollment }

func (r enrollmentRecord) ExternalKey() string { return r.SourcedID }
