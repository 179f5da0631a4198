package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kisanmitra/backend/internal/models"
	"gorm.io/gorm"
)

// PreferenceStore loads and saves per-user feed preferences.
// Updates for the same user are serialized within the process.
type PreferenceStore struct {
	db    *gorm.DB
	locks sync.Map // userID -> *sync.Mutex
}

func NewPreferenceStore(db *gorm.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get returns the user's preference, creating an empty one on first use
func (s *PreferenceStore) Get(ctx context.Context, userID string) (*models.FeedPreference, error) {
	if userID == "" {
		return nil, fmt.Errorf("preference lookup without user id")
	}

	var pref models.FeedPreference
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error
	if err == nil {
		return &pref, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load feed preference: %w", err)
	}

	pref = models.FeedPreference{
		UserID:           userID,
		ViewedPosts:      models.StringList{},
		LikedTopics:      models.ScoreMap{},
		LikedCrops:       models.ScoreMap{},
		PreferredAuthors: models.ScoreMap{},
		HiddenPosts:      models.StringList{},
		MutedUsers:       models.StringList{},
	}
	if err := s.db.WithContext(ctx).Create(&pref).Error; err != nil {
		// Another request created it first
		var existing models.FeedPreference
		if lookupErr := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create feed preference: %w", err)
	}
	return &pref, nil
}

// Save writes the whole preference document
func (s *PreferenceStore) Save(ctx context.Context, pref *models.FeedPreference) error {
	if err := s.db.WithContext(ctx).Save(pref).Error; err != nil {
		return fmt.Errorf("failed to save feed preference: %w", err)
	}
	return nil
}

// Update loads the preference, applies fn and saves it if fn reports a change
func (s *PreferenceStore) Update(ctx context.Context, userID string, fn func(*models.FeedPreference) bool) (*models.FeedPreference, error) {
	mu := s.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	pref, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !fn(pref) {
		return pref, nil
	}
	if err := s.Save(ctx, pref); err != nil {
		return nil, err
	}
	return pref, nil
}

func (s *PreferenceStore) lock(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
