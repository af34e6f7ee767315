package onerostersvc

// OneRoster v1.1 wire types. Only the fields the roster sync consumes are
// declared; providers send plenty more.

const (
	// StatusToBeDeleted marks records the provider wants purged; the engine
	// never imports them.
	StatusToBeDeleted = "tobedeleted"
	StatusActive      = "active"
)

const (
	SessionTypeSchoolYear = "schoolYear"
	SessionTypeTerm       = "term"
)

// GUIDRef is a reference to another OneRoster record by sourcedId.
type GUIDRef struct {
	SourcedID string `json:"sourcedId"`
}

type Org struct {
	SourcedID string `json:"sourcedId"`
	Status    string `json:"status"`
	Name      string `json:"name"`
	Type      string `json:"type"` // school | district | department
}

type AcademicSession struct {
	SourcedID string  `json:"sourcedId"`
	Status    string  `json:"status"`
	Title     string  `json:"title"`
	Type      string  `json:"type"` // schoolYear | term | semester | gradingPeriod
	StartDate string  `json:"startDate"` // YYYY-MM-DD
	EndDate   string  `json:"endDate"`   // YYYY-MM-DD
	Parent    GUIDRef `json:"parent"`
}

type User struct {
	SourcedID  string `json:"sourcedId"`
	Status     string `json:"status"`
	Username   string `json:"username"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	Email      string `json:"email"`
	Role       string `json:"role"` // student | teacher | administrator | ...
}

type Class struct {
	SourcedID string    `json:"sourcedId"`
	Status    string    `json:"status"`
	Title     string    `json:"title"`
	ClassCode string    `json:"classCode"`
	Course    GUIDRef   `json:"course"`
	School    GUIDRef   `json:"school"`
	Terms     []GUIDRef `json:"terms"`
}

type Enrollment struct {
	SourcedID string  `json:"sourcedId"`
	Status    string  `json:"status"`
	Role      string  `json:"role"` // student | teacher
	User      GUIDRef `json:"user"`
	Class     GUIDRef `json:"class"`
}

// list envelopes

type orgsEnvelope struct {
	Orgs []Org `json:"orgs"`
}

type sessionsEnvelope struct {
	AcademicSessions []AcademicSession `json:"academicSessions"`
}

type usersEnvelope struct {
	Users []User `json:"users"`
}

type classesEnvelope struct {
	Classes []Class `json:"classes"`
}

type enrollmentsEnvelope struct {
	Enrollments []Enrollment `json:"enrollments"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
