package classroomsvc

// Wire types for the classroom provider's REST API.

const (
	CourseStateActive   = "ACTIVE"
	CourseStateArchived = "ARCHIVED"

	CourseWorkStatePublished = "PUBLISHED"

	SubmissionStateTurnedIn = "TURNED_IN"
	SubmissionStateReturned = "RETURNED"
)

type Course struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Section     string `json:"section,omitempty"`
	CourseState string `json:"courseState,omitempty"`
}

type UserProfile struct {
	ID           string `json:"id"`
	EmailAddress string `json:"emailAddress"`
	Name         Name   `json:"name"`
}

type Name struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	FullName   string `json:"fullName"`
}

type Student struct {
	CourseID string      `json:"courseId"`
	UserID   string      `json:"userId"`
	Profile  UserProfile `json:"profile"`
}

type Teacher struct {
	CourseID string      `json:"courseId"`
	UserID   string      `json:"userId"`
	Profile  UserProfile `json:"profile"`
}

type CourseWork struct {
	ID          string  `json:"id,omitempty"`
	CourseID    string  `json:"courseId,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	MaxPoints   float64 `json:"maxPoints,omitempty"`
	DueDate     *Date   `json:"dueDate,omitempty"`
	WorkType    string  `json:"workType,omitempty"`
	State       string  `json:"state,omitempty"`
}

type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type StudentSubmission struct {
	ID            string  `json:"id"`
	CourseID      string  `json:"courseId"`
	CourseWorkID  string  `json:"courseWorkId"`
	UserID        string  `json:"userId"`
	State         string  `json:"state"`
	AssignedGrade float64 `json:"assignedGrade,omitempty"`
}

// list envelopes; NextPageToken drives pagination.

type coursesEnvelope struct {
	Courses       []Course `json:"courses"`
	NextPageToken string   `json:"nextPageToken"`
}

type studentsEnvelope struct {
	Students      []Student `json:"students"`
	NextPageToken string    `json:"nextPageToken"`
}

type teachersEnvelope struct {
	Teachers      []Teacher `json:"teachers"`
	NextPageToken string    `json:"nextPageToken"`
}

type courseWorkEnvelope struct {
	CourseWork    []CourseWork `json:"courseWork"`
	NextPageToken string       `json:"nextPageToken"`
}

type submissionsEnvelope struct {
	StudentSubmissions []StudentSubmission `json:"studentSubmissions"`
	NextPageToken      string              `json:"nextPageToken"`
}
