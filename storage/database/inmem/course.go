package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/shule/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	crs.ID = newID()
	repo.db.courses[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[crs.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.db.courses[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) CreateSection(ctx context.Context, sec course.Section) (course.Section, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sec.ID = newID()
	repo.db.sections[sec.ID] = &sec
	return sec, nil
}

func (repo *courseRepository) GetSectionByID(ctx context.Context, id string) (course.Section, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sec, ok := repo.db.sections[id]; ok {
		return *sec, nil
	}
	return course.Section{}, course.ErrSectionNotFound
}

func (repo *courseRepository) GetDefaultSection(ctx context.Context, courseID string) (course.Section, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sec := range repo.db.sections {
		if sec.CourseID == courseID && sec.IsDefault {
			return *sec, nil
		}
	}
	return course.Section{}, course.ErrSectionNotFound
}

func (repo *courseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment) (course.Enrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.enrollments {
		if existing.UserID == enr.UserID && existing.SectionID == enr.SectionID {
			return course.Enrollment{}, course.ErrEnrollmentExists
		}
	}
	enr.ID = newID()
	repo.db.enrollments[enr.ID] = &enr
	return enr, nil
}

func (repo *courseRepository) GetEnrollment(ctx context.Context, userID, sectionID string) (course.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID && enr.SectionID == sectionID {
			return *enr, nil
		}
	}
	return course.Enrollment{}, course.ErrEnrollmentNotFound
}

func (repo *courseRepository) GetEnrollmentByID(ctx context.Context, id string) (course.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if enr, ok := repo.db.enrollments[id]; ok {
		return *enr, nil
	}
	return course.Enrollment{}, course.ErrEnrollmentNotFound
}

func (repo *courseRepository) QueryEnrollmentsBySectionID(ctx context.Context, sectionID string) ([]course.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var out []course.Enrollment
	for _, enr := range repo.db.enrollments {
		if enr.SectionID == sectionID {
			out = append(out, *enr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
