package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User roles
const (
	RoleFarmer = "farmer"
	RoleExpert = "expert"
	RoleAdmin  = "admin"
)

// User is a farmer (or agronomy expert) account, created on first OTP verification
type User struct {
	ID       string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Phone    *string `gorm:"uniqueIndex" json:"phone,omitempty"`
	Email    *string `gorm:"uniqueIndex" json:"email,omitempty"`
	Name     string  `json:"name"`
	Role     string  `gorm:"default:farmer;not null" json:"role"`
	Language string  `gorm:"default:en" json:"language"`

	// Farm profile, used for feed and group personalization
	Region   string     `gorm:"index" json:"region"` // state or district
	Crops    StringList `gorm:"type:text" json:"crops"`
	FarmSize float64    `json:"farm_size"` // acres

	FollowerCount  int `gorm:"default:0" json:"follower_count"`
	FollowingCount int `gorm:"default:0" json:"following_count"`
	PostCount      int `gorm:"default:0" json:"post_count"`

	LastActiveAt *time.Time `json:"last_active_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsAdmin reports whether the user can reach operator endpoints
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// BeforeCreate hooks for GORM
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = generateUUID()
	}
	if u.Role == "" {
		u.Role = RoleFarmer
	}
	return nil
}

// Helper function for UUID generation
func generateUUID() string {
	return uuid.New().String()
}
