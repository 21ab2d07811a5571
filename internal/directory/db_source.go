package directory

import (
	"context"
	"fmt"

	"secmaster/internal/models"

	"gorm.io/gorm"
)

// DBSource serves the directory from the local users table. It backs
// development setups that have no remote user service.
type DBSource struct {
	db       *gorm.DB
	pageSize int
}

func NewDBSource(db *gorm.DB, pageSize int) *DBSource {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &DBSource{db: db, pageSize: pageSize}
}

// FetchPage implements Source.
func (s *DBSource) FetchPage(ctx context.Context, page int) ([]Profile, int, error) {
	if page < 1 {
		page = 1
	}
	q := s.db.WithContext(ctx).Model(&models.User{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	var users []models.User
	err := q.Order("id ASC").Offset((page - 1) * s.pageSize).Limit(s.pageSize).Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list users page %d: %w", page, err)
	}

	profiles := make([]Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, Profile{
			ID:        u.ID,
			FirstName: deref(u.FirstName),
			LastName:  deref(u.LastName),
			Email:     deref(u.Email),
		})
	}
	lastPage := int((total + int64(s.pageSize) - 1) / int64(s.pageSize))
	if lastPage < 1 {
		lastPage = 1
	}
	return profiles, lastPage, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
