package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent         UserRole = "STUDENT"
	RoleAlumni          UserRole = "ALUMNI"
	RoleAdmin           UserRole = "ADMIN"
	RoleRegistrar       UserRole = "REGISTRAR"
	RoleDeputyRegistrar UserRole = "DEPUTY_REGISTRAR"
	RoleExamsRecords    UserRole = "EXAMS_RECORDS"
)

// StaffRoles lists the administrative roles that act on the review pipeline.
var StaffRoles = []UserRole{RoleAdmin, RoleRegistrar, RoleDeputyRegistrar, RoleExamsRecords}

// User represents an application user stored in the users table.
type User struct {
	ID                  string     `db:"id" json:"id"`
	MatriculationNumber string     `db:"matriculation_number" json:"matriculation_number"`
	Email               string     `db:"email" json:"email"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	FirstName           string     `db:"first_name" json:"first_name"`
	LastName            string     `db:"last_name" json:"last_name"`
	PhoneNumber         string     `db:"phone_number" json:"phone_number"`
	Role                UserRole   `db:"role" json:"role"`
	Department          *string    `db:"department" json:"department,omitempty"`
	Faculty             *string    `db:"faculty" json:"faculty,omitempty"`
	GraduationYear      *int       `db:"graduation_year" json:"graduation_year,omitempty"`
	Active              bool       `db:"active" json:"active"`
	LastLogin           *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins the stored name parts for display and notifications.
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
