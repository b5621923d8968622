package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/lumen-edu/lumen-quiz-api/internal/models"
)

// EnrollmentRepository resolves course membership and roles.
type EnrollmentRepository interface {
	GetRole(ctx context.Context, userID, courseID uint) (string, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository instantiates the repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

// GetRole returns the enrollment role for the user in the course, or
// gorm.ErrRecordNotFound when the user is not enrolled.
func (r *enrollmentRepository) GetRole(ctx context.Context, userID, courseID uint) (string, error) {
	var enrollment models.Enrollment
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		First(&enrollment).Error; err != nil {
		return "", err
	}

	return enrollment.Role, nil
}
