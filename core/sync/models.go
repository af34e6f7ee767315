package sync

import (
	"time"
)

// Direction of a sync run: pull imports external records into the local store;
// push exports local records to the external system.
type Direction string

const (
	DirectionPull Direction = "pull"
	DirectionPush Direction = "push"
)

// Status of a sync run. Transitions are monotonic:
// pending -> running -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Level of a sync log entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// LocalType is the closed set of local entity kinds the engine maps.
type LocalType string

const (
	LocalSchool       LocalType = "school"
	LocalAcademicYear LocalType = "academic_year"
	LocalTerm         LocalType = "term"
	LocalUser         LocalType = "user"
	LocalCourse       LocalType = "course"
	LocalSection      LocalType = "section"
	LocalEnrollment   LocalType = "enrollment"
	LocalAssignment   LocalType = "assignment"
	LocalSubmission   LocalType = "submission"
)

func (t LocalType) Valid() bool {
	switch t {
	case LocalSchool, LocalAcademicYear, LocalTerm, LocalUser, LocalCourse,
		LocalSection, LocalEnrollment, LocalAssignment, LocalSubmission:
		return true
	}
	return false
}

// ExternalType is the closed set of external record kinds, per provider.
type ExternalType string

const (
	ExternalOneRosterOrg        ExternalType = "oneroster_org"
	ExternalOneRosterSession    ExternalType = "oneroster_academic_session"
	ExternalOneRosterUser       ExternalType = "oneroster_user"
	ExternalOneRosterClass      ExternalType = "oneroster_class"
	ExternalOneRosterEnrollment ExternalType = "oneroster_enrollment"

	ExternalClassroomCourse     ExternalType = "classroom_course"
	ExternalClassroomStudent    ExternalType = "classroom_student"
	ExternalClassroomCoursework ExternalType = "classroom_coursework"
)

func (t ExternalType) Valid() bool {
	switch t {
	case ExternalOneRosterOrg, ExternalOneRosterSession, ExternalOneRosterUser,
		ExternalOneRosterClass, ExternalOneRosterEnrollment,
		ExternalClassroomCourse, ExternalClassroomStudent, ExternalClassroomCoursework:
		return true
	}
	return false
}

// Run is one execution attempt of a connector. Created once per invocation,
// mutated only by the owning connector, never deleted by the engine.
type Run struct {
	ID                  string    `json:"id"`
	Tenant              string    `json:"tenant"`
	IntegrationConfigID string    `json:"integration_config_id"`
	SyncType            string    `json:"sync_type"` // connector identity, e.g. "oneroster_roster"
	Direction           Direction `json:"direction"`
	Status              Status    `json:"status"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at"`
	RecordsProcessed    int       `json:"records_processed"`
	RecordsSucceeded    int       `json:"records_succeeded"`
	RecordsFailed       int       `json:"records_failed"`
	ErrorMessage        string    `json:"error_message,omitempty"`
	TriggeredBy         string    `json:"triggered_by,omitempty"` // user ID, optional
	CreatedAt           time.Time `json:"created_at"`             // UTC
}

// Log is one diagnostic entry attached to a Run. Append-only, never updated.
type Log struct {
	ID         string            `json:"id"`
	RunID      string            `json:"run_id"`
	Level      Level             `json:"level"`
	Message    string            `json:"message"`
	EntityType LocalType         `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	ExternalID string            `json:"external_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"` // UTC
}

// Mapping is one row of the permanent bidirectional identity map between a
// local entity and an external record, scoped to one integration config.
// Unique on (config, local_type, local_id) and on
// (config, external_type, external_id). Never deleted by the engine.
type Mapping struct {
	ID                  string       `json:"id"`
	IntegrationConfigID string       `json:"integration_config_id"`
	LocalType           LocalType    `json:"local_type"`
	LocalID             string       `json:"local_id"`
	ExternalType        ExternalType `json:"external_type"`
	ExternalID          string       `json:"external_id"`
	LastSyncedAt        time.Time    `json:"last_synced_at"`
	CreatedAt           time.Time    `json:"created_at"` // UTC
}

// RunFilter narrows Run queries.
type RunFilter struct {
	IntegrationConfigID string    `query:"integration_config_id"`
	SyncType            string    `query:"sync_type"`
	Status              Status    `query:"status"`
	Direction           Direction `query:"direction"`
}
