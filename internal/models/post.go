package models

import (
	"time"

	"gorm.io/gorm"
)

// Post moderation states
const (
	PostStatusPending  = "pending_approval"
	PostStatusApproved = "approved"
	PostStatusRejected = "rejected"
)

// Post is a feed or group post. Posts outside a group are approved on creation.
type Post struct {
	ID      string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID  string  `gorm:"not null;index" json:"user_id"`
	User    *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	GroupID *string `gorm:"index" json:"group_id,omitempty"`

	Body     string     `gorm:"type:text;not null" json:"body"`
	Tags     StringList `gorm:"type:text" json:"tags"`
	Crops    StringList `gorm:"type:text" json:"crops"`
	Location string     `gorm:"index" json:"location"`
	ImageURL string     `json:"image_url,omitempty"`

	Status     string     `gorm:"default:approved;not null;index" json:"status"`
	ReviewedBy *string    `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`

	// Counters are only ever changed with atomic SQL increments
	LikeCount    int `gorm:"default:0" json:"like_count"`
	CommentCount int `gorm:"default:0" json:"comment_count"`
	ShareCount   int `gorm:"default:0" json:"share_count"`
	HelpfulCount int `gorm:"default:0" json:"helpful_count"`
	ViewCount    int `gorm:"default:0" json:"view_count"`

	EngagementScore float64 `gorm:"default:0;index" json:"engagement_score"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsApproved reports whether the post is visible in default queries
func (p *Post) IsApproved() bool {
	return p.Status == PostStatusApproved
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	if p.Status == "" {
		p.Status = PostStatusApproved
	}
	return nil
}

// Comment is a reply on a post
type Comment struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID string `gorm:"not null;index" json:"post_id"`
	UserID string `gorm:"not null;index" json:"user_id"`
	Body   string `gorm:"type:text;not null" json:"body"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

// PostReaction is one user's like, share or helpful mark on a post.
// A user holds at most one of each kind per post.
type PostReaction struct {
	UserID    string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	PostID    string    `gorm:"primaryKey;type:varchar(36);index" json:"post_id"`
	Kind      string    `gorm:"primaryKey;type:varchar(16)" json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}
