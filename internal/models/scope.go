package models

// SystemActor identifies writes performed by background jobs.
const SystemActor = "system"

// Scope carries the caller's campus restriction and identity attributes.
// A nil CampusID means "no restriction".
type Scope struct {
	UserID    string  `json:"user_id"`
	CampusID  *string `json:"campus_id,omitempty"`
	IsTeacher bool    `json:"is_teacher"`
	TeacherID string  `json:"teacher_id,omitempty"`
}

// Unrestricted returns a scope that can see every campus.
func Unrestricted(actor string) Scope {
	return Scope{UserID: actor}
}

// AllowsCampus reports whether a row in campusID is inside the scope.
func (s Scope) AllowsCampus(campusID string) bool {
	return s.CampusID == nil || *s.CampusID == campusID
}

// AllowsTeacher reports whether a teacher-bound caller may touch a row taught by teacherID.
func (s Scope) AllowsTeacher(teacherID *string) bool {
	if !s.IsTeacher {
		return true
	}
	return teacherID != nil && *teacherID == s.TeacherID
}

// Actor returns the identity recorded on writes.
func (s Scope) Actor() string {
	if s.UserID == "" {
		return SystemActor
	}
	return s.UserID
}
