package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles understood by route guards.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleStaff      UserRole = "STAFF"
	RoleTeacher    UserRole = "TEACHER"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserScope is the persisted campus/teacher binding of a user.
type UserScope struct {
	UserID    string  `db:"user_id" json:"user_id"`
	CampusID  *string `db:"campus_id" json:"campus_id,omitempty"`
	TeacherID *string `db:"teacher_id" json:"teacher_id,omitempty"`
}

// Scope converts the stored binding into a request scope.
func (u UserScope) Scope() Scope {
	scope := Scope{UserID: u.UserID, CampusID: u.CampusID}
	if u.TeacherID != nil && *u.TeacherID != "" {
		scope.IsTeacher = true
		scope.TeacherID = *u.TeacherID
	}
	return scope
}
