package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxViewedPosts bounds the viewed-post history kept per user
const MaxViewedPosts = 1000

// FeedPreference holds one user's personalization state
type FeedPreference struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID string `gorm:"not null;uniqueIndex" json:"user_id"`

	// ViewedPosts is FIFO by insertion; oldest ids fall off at MaxViewedPosts
	ViewedPosts StringList `gorm:"type:text" json:"viewed_posts"`

	LikedTopics      ScoreMap `gorm:"type:text" json:"liked_topics"`
	LikedCrops       ScoreMap `gorm:"type:text" json:"liked_crops"`
	PreferredAuthors ScoreMap `gorm:"type:text" json:"preferred_authors"`

	HiddenPosts StringList `gorm:"type:text" json:"hidden_posts"`
	MutedUsers  StringList `gorm:"type:text" json:"muted_users"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *FeedPreference) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

// Affinity dimensions
const (
	AffinityTopic  = "topic"
	AffinityCrop   = "crop"
	AffinityAuthor = "author"
)

// HasViewed reports whether postID is in the viewed history
func (p *FeedPreference) HasViewed(postID string) bool {
	return p.ViewedPosts.Contains(postID)
}

// MarkViewed appends postID to the viewed history, evicting the oldest entry
// past MaxViewedPosts. It returns false if the post was already viewed.
func (p *FeedPreference) MarkViewed(postID string) bool {
	if p.HasViewed(postID) {
		return false
	}
	p.ViewedPosts = append(p.ViewedPosts, postID)
	if over := len(p.ViewedPosts) - MaxViewedPosts; over > 0 {
		p.ViewedPosts = append(StringList{}, p.ViewedPosts[over:]...)
	}
	return true
}

// Adjust adds delta to the affinity score of key in the given dimension.
// Scores never go below zero; a score that reaches zero is removed.
func (p *FeedPreference) Adjust(dimension, key string, delta float64) {
	if key == "" {
		return
	}
	m := p.scores(dimension)
	if m == nil {
		return
	}
	next := (*m)[key] + delta
	if next <= 0 {
		delete(*m, key)
		return
	}
	if *m == nil {
		*m = ScoreMap{}
	}
	(*m)[key] = next
}

// Score returns the affinity score of key in the given dimension. It never
// modifies the preference.
func (p *FeedPreference) Score(dimension, key string) float64 {
	m := p.scores(dimension)
	if m == nil {
		return 0
	}
	// Indexing a nil map reads zero
	return (*m)[key]
}

func (p *FeedPreference) scores(dimension string) *ScoreMap {
	var m *ScoreMap
	switch dimension {
	case AffinityTopic:
		m = &p.LikedTopics
	case AffinityCrop:
		m = &p.LikedCrops
	case AffinityAuthor:
		m = &p.PreferredAuthors
	default:
		return nil
	}
	return m
}

// Hide excludes postID from the user's feed
func (p *FeedPreference) Hide(postID string) bool {
	return addUnique(&p.HiddenPosts, postID)
}

// Unhide reverses Hide
func (p *FeedPreference) Unhide(postID string) bool {
	return removeValue(&p.HiddenPosts, postID)
}

// IsHidden reports whether postID is hidden
func (p *FeedPreference) IsHidden(postID string) bool {
	return p.HiddenPosts.Contains(postID)
}

// Mute excludes every post by userID from the user's feed
func (p *FeedPreference) Mute(userID string) bool {
	return addUnique(&p.MutedUsers, userID)
}

// Unmute reverses Mute
func (p *FeedPreference) Unmute(userID string) bool {
	return removeValue(&p.MutedUsers, userID)
}

// IsMuted reports whether userID is muted
func (p *FeedPreference) IsMuted(userID string) bool {
	return p.MutedUsers.Contains(userID)
}

func addUnique(l *StringList, v string) bool {
	if l.Contains(v) {
		return false
	}
	*l = append(*l, v)
	return true
}

func removeValue(l *StringList, v string) bool {
	for i, s := range *l {
		if s == v {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return true
		}
	}
	return false
}
