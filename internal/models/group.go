package models

import (
	"time"

	"gorm.io/gorm"
)

// Group member roles
const (
	GroupRoleMember    = "member"
	GroupRoleModerator = "moderator"
	GroupRoleAdmin     = "admin"
)

// Group is a crop or region community
type Group struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string     `gorm:"uniqueIndex;not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	Crops       StringList `gorm:"type:text" json:"crops"`
	Region      string     `gorm:"index" json:"region"`

	RequirePostApproval bool `gorm:"default:false" json:"require_post_approval"`

	MemberCount int `gorm:"default:0" json:"member_count"`
	PostCount   int `gorm:"default:0" json:"post_count"`
	ViewCount   int `gorm:"default:0" json:"view_count"`

	CreatedBy string `gorm:"not null;index" json:"created_by"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = generateUUID()
	}
	return nil
}

// GroupMember links a user to a group with a role
type GroupMember struct {
	ID      string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	GroupID string `gorm:"not null;uniqueIndex:idx_group_member" json:"group_id"`
	UserID  string `gorm:"not null;uniqueIndex:idx_group_member;index" json:"user_id"`
	Role    string `gorm:"default:member;not null" json:"role"`

	CreatedAt time.Time `json:"joined_at"`
}

// CanModerate reports whether the member may approve or reject posts
func (m *GroupMember) CanModerate() bool {
	return m.Role == GroupRoleModerator || m.Role == GroupRoleAdmin
}

func (m *GroupMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	if m.Role == "" {
		m.Role = GroupRoleMember
	}
	return nil
}
