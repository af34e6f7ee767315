// Package inmemdb provides map-backed repositories, used by tests and local
// tooling in place of postgres.
package inmemdb

import (
	stdsync "sync"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core/assignment"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/integration"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/core/user"
)

type DB struct {
	mu stdsync.RWMutex

	users         map[string]*user.User
	schools       map[string]*school.School
	years         map[string]*school.AcademicYear
	terms         map[string]*school.Term
	courses       map[string]*course.Course
	sections      map[string]*course.Section
	enrollments   map[string]*course.Enrollment
	assignments   map[string]*assignment.Assignment
	submissions   map[string]*assignment.Submission
	configs       map[string]*integration.Config
	runs          map[string]*sync.Run
	logs          map[string]*sync.Log
	mappings      map[string]*sync.Mapping
}

func NewDB() *DB {
	return &DB{
		users:       make(map[string]*user.User),
		schools:     make(map[string]*school.School),
		years:       make(map[string]*school.AcademicYear),
		terms:       make(map[string]*school.Term),
		courses:     make(map[string]*course.Course),
		sections:    make(map[string]*course.Section),
		enrollments: make(map[string]*course.Enrollment),
		assignments: make(map[string]*assignment.Assignment),
		submissions: make(map[string]*assignment.Submission),
		configs:     make(map[string]*integration.Config),
		runs:        make(map[string]*sync.Run),
		logs:        make(map[string]*sync.Log),
		mappings:    make(map[string]*sync.Mapping),
	}
}

func newID() string {
	return uuid.New().String()
}
