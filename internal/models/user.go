package models

import "time"

// UserRole represents the closed set of roles for the RBAC system.
type UserRole string

const (
	RoleAdmin         UserRole = "ADMIN"
	RoleLecturer      UserRole = "LECTURER"
	RoleCourseAdviser UserRole = "COURSE_ADVISER"
	RoleStudent       UserRole = "STUDENT"
	RoleStudentAdmin  UserRole = "STUDENT_ADMIN"
)

// Valid reports whether the role is part of the closed set.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleLecturer, RoleCourseAdviser, RoleStudent, RoleStudentAdmin:
		return true
	default:
		return false
	}
}

// UserStatus tracks account approval.
type UserStatus string

const (
	UserStatusPending  UserStatus = "PENDING"
	UserStatusApproved UserStatus = "APPROVED"
	UserStatusRejected UserStatus = "REJECTED"
)

// User represents an application user stored in the users table. Lecturers
// and students share the table; role-specific columns are nullable.
type User struct {
	ID            string     `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	Role          UserRole   `db:"role" json:"role"`
	Status        UserStatus `db:"status" json:"status"`
	LecturerID    *string    `db:"lecturer_id" json:"lecturer_id,omitempty"`
	MatricNo      *string    `db:"matric_no" json:"matric_no,omitempty"`
	AdmissionYear *int       `db:"admission_year" json:"admission_year,omitempty"`
	ProfileImg    *string    `db:"profile_img" json:"profile_img,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins the name parts for display.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role          *UserRole
	AdmissionYear *int
	Search        string
	Page          int
	PageSize      int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
