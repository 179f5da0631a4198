package feed

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/kisanmitra/backend/internal/analytics"
	"github.com/kisanmitra/backend/internal/cache"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"github.com/kisanmitra/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// DefaultPageSize is used when the caller asks for a non-positive limit
	DefaultPageSize = 20
	MaxPageSize     = 100
	// candidateWindow bounds how many recent posts are ranked per request
	candidateWindow = 500
	DefaultCacheTTL = time.Minute
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrSelfMute     = errors.New("cannot mute yourself")
)

// RankedPost is a post with its relevance breakdown
type RankedPost struct {
	models.Post
	Relevance Relevance `json:"relevance"`
}

// Page is one page of a ranked feed
type Page struct {
	Posts  []RankedPost `json:"posts"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
	Cached bool         `json:"cached"`
}

// Recorder is the analytics surface the feed needs
type Recorder interface {
	RecordSuccess(operation string, duration time.Duration, c analytics.Context)
	RecordError(operation string, duration time.Duration, code string, message string)
}

// Service builds personalized feeds and owns the viewer's hide/mute state
type Service struct {
	db       *gorm.DB
	prefs    *PreferenceStore
	cache    *cache.TTLCache[Page]
	ttl      time.Duration
	recorder Recorder
	now      func() time.Time

	// generations counts invalidations per viewer. A page built before an
	// invalidation is not cached after it.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewService creates the feed service. pages caches ranked pages per viewer.
func NewService(db *gorm.DB, prefs *PreferenceStore, pages *cache.TTLCache[Page], ttl time.Duration, recorder Recorder) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		db:       db,
		prefs:    prefs,
		cache:    pages,
		ttl:      ttl,
		recorder:    recorder,
		now:         time.Now,
		generations: make(map[string]uint64),
	}
}

func cacheKey(userID string, limit, offset int) string {
	return fmt.Sprintf("feed:%s:%d:%d", userID, limit, offset)
}

// Feed returns the viewer's ranked feed page
func (s *Service) Feed(ctx context.Context, userID string, limit, offset int) (*Page, error) {
	start := time.Now()
	limit, offset = clampPage(limit, offset)

	key := cacheKey(userID, limit, offset)
	if page, ok := s.cache.Get(key); ok {
		page.Cached = true
		s.recorder.RecordSuccess(analytics.OpFeed, time.Since(start), analytics.Context{Cached: true, UserID: userID})
		return &page, nil
	}

	gen := s.generation(userID)
	page, err := s.build(ctx, userID, limit, offset)
	if err != nil {
		s.recorder.RecordError(analytics.OpFeed, time.Since(start), "INTERNAL_ERROR", err.Error())
		return nil, err
	}

	s.store(userID, gen, key, page)

	elapsed := time.Since(start)
	metrics.Get().FeedGenerationTime.WithLabelValues("personalized").Observe(elapsed.Seconds())
	s.recorder.RecordSuccess(analytics.OpFeed, elapsed, analytics.Context{
		UserID:   userID,
		Metadata: map[string]interface{}{"candidates": page.Total},
	})
	return page, nil
}

func (s *Service) build(ctx context.Context, userID string, limit, offset int) (*Page, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	pref, err := s.prefs.Get(ctx, userID)
	if err != nil {
		// Exclusions cannot be honored without the preference
		return nil, err
	}

	var posts []models.Post
	err = s.db.WithContext(ctx).
		Where("status = ?", models.PostStatusApproved).
		Order("created_at DESC").
		Limit(candidateWindow).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load feed candidates: %w", err)
	}

	posts = FilterExcluded(posts, pref)
	byID := make(map[string]models.Post, len(posts))
	candidates := make([]Candidate, 0, len(posts))
	for i := range posts {
		byID[posts[i].ID] = posts[i]
		candidates = append(candidates, CandidateFromPost(&posts[i]))
	}

	ranked := Rank(candidates, Profile{Crops: user.Crops, Region: user.Region, Preference: pref})

	page := &Page{Total: len(ranked), Limit: limit, Offset: offset, Posts: []RankedPost{}}
	if offset >= len(ranked) {
		return page, nil
	}
	end := offset + limit
	if end > len(ranked) {
		end = len(ranked)
	}
	for _, sc := range ranked[offset:end] {
		page.Posts = append(page.Posts, RankedPost{Post: byID[sc.ID], Relevance: sc.Relevance})
	}
	return page, nil
}

// Preferences returns the viewer's preference document
func (s *Service) Preferences(ctx context.Context, userID string) (*models.FeedPreference, error) {
	return s.prefs.Get(ctx, userID)
}

// HidePost removes postID from the viewer's feed
func (s *Service) HidePost(ctx context.Context, userID, postID string) error {
	return s.updatePreference(ctx, userID, func(p *models.FeedPreference) bool { return p.Hide(postID) })
}

// UnhidePost restores a hidden post
func (s *Service) UnhidePost(ctx context.Context, userID, postID string) error {
	return s.updatePreference(ctx, userID, func(p *models.FeedPreference) bool { return p.Unhide(postID) })
}

// MuteUser removes every post by target from the viewer's feed
func (s *Service) MuteUser(ctx context.Context, userID, target string) error {
	if userID == target {
		return ErrSelfMute
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", target).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return s.updatePreference(ctx, userID, func(p *models.FeedPreference) bool { return p.Mute(target) })
}

// UnmuteUser reverses MuteUser
func (s *Service) UnmuteUser(ctx context.Context, userID, target string) error {
	return s.updatePreference(ctx, userID, func(p *models.FeedPreference) bool { return p.Unmute(target) })
}

func (s *Service) updatePreference(ctx context.Context, userID string, fn func(*models.FeedPreference) bool) error {
	if _, err := s.prefs.Update(ctx, userID, fn); err != nil {
		return err
	}
	s.Invalidate(userID)
	return nil
}

func (s *Service) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[userID]
}

// store caches page unless the viewer's feed was invalidated since gen was read
func (s *Service) store(userID string, gen uint64, key string, page *Page) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[userID] != gen {
		return false
	}
	s.cache.Set(key, *page, s.ttl)
	return true
}

// Invalidate drops every cached page of the viewer's feed, including pages
// still being built
func (s *Service) Invalidate(userID string) {
	s.mu.Lock()
	s.generations[userID]++
	s.mu.Unlock()

	pattern := regexp.MustCompile("^" + regexp.QuoteMeta("feed:"+userID+":"))
	if n := s.cache.InvalidatePattern(pattern); n > 0 {
		logger.Log.Debug("Invalidated feed cache",
			logger.WithUserID(userID),
			zap.Int("entries", n),
		)
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
