package models

import "time"

// Course role constants. Admin is a platform-wide role carried in the token
// rather than an enrollment row.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleTA      = "ta"
	RoleStudent = "student"
)

// Enrollment binds a user to a course with a role.
type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID  uint      `gorm:"not null;uniqueIndex:idx_enrollment_user_course" json:"course_id"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsStaffRole reports whether the role may view other users' attempts.
func IsStaffRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTeacher, RoleTA:
		return true
	default:
		return false
	}
}
