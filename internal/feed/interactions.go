package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"github.com/kisanmitra/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Kind is a post interaction type
type Kind string

const (
	KindView         Kind = "view"
	KindExtendedView Kind = "extended_view"
	KindLike         Kind = "like"
	KindUnlike       Kind = "unlike"
	KindComment      Kind = "comment"
	KindShare        Kind = "share"
	KindHelpful      Kind = "helpful"
)

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrInvalidKind       = errors.New("invalid interaction kind")
	ErrAnonymousReaction = errors.New("reactions need a signed-in user")
)

// affinityDelta is the change applied to the crop, topic and author scores
var affinityDelta = map[Kind]float64{
	KindExtendedView: 1,
	KindLike:         2,
	KindComment:      3,
	KindShare:        2,
	KindHelpful:      3,
	KindUnlike:       -2,
}

// counterColumn is the post counter each kind moves
var counterColumn = map[Kind]string{
	KindView:    "view_count",
	KindLike:    "like_count",
	KindUnlike:  "like_count",
	KindComment: "comment_count",
	KindShare:   "share_count",
	KindHelpful: "helpful_count",
}

// reactionKind maps kinds a user can hold at most once per post to the stored
// reaction. Unlike removes a like.
var reactionKind = map[Kind]Kind{
	KindLike:    KindLike,
	KindUnlike:  KindLike,
	KindShare:   KindShare,
	KindHelpful: KindHelpful,
}

// ParseKind validates a client-supplied kind
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindView, KindExtendedView, KindLike, KindUnlike, KindComment, KindShare, KindHelpful:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// InteractionService applies interaction events to post counters and the
// actor's affinity scores
type InteractionService struct {
	db    *gorm.DB
	prefs *PreferenceStore
	now   func() time.Time
	// onChange is called with the actor id after a successful interaction
	onChange func(userID string)
}

func NewInteractionService(db *gorm.DB, prefs *PreferenceStore) *InteractionService {
	return &InteractionService{db: db, prefs: prefs, now: time.Now}
}

// OnChange registers a callback fired after each applied interaction
func (s *InteractionService) OnChange(fn func(userID string)) {
	s.onChange = fn
}

// Apply records an interaction by userID on postID and returns the updated post.
// Counter changes are atomic in the database. Preference failures are logged
// and do not fail the interaction.
func (s *InteractionService) Apply(ctx context.Context, userID, postID string, kind Kind) (*models.Post, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	var post models.Post
	err := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", postID, models.PostStatusApproved).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}

	applied, err := s.record(ctx, userID, postID, kind)
	if err != nil {
		return nil, err
	}

	updated, err := s.refreshEngagement(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A repeated like or an unlike without a like changes nothing
		return updated, nil
	}

	if userID != "" {
		s.updateAffinity(ctx, userID, &post, kind)
	}

	metrics.Get().InteractionsTotal.WithLabelValues(string(kind)).Inc()
	if s.onChange != nil && userID != "" {
		s.onChange(userID)
	}
	return updated, nil
}

// record moves the post counter for kind. Reactions are stored per user and
// the counter only moves when the reaction row is added or removed, so
// repeats are no-ops and a user can only take back their own like.
func (s *InteractionService) record(ctx context.Context, userID, postID string, kind Kind) (bool, error) {
	col, counted := counterColumn[kind]
	reaction, isReaction := reactionKind[kind]
	if !isReaction {
		if !counted {
			return true, nil
		}
		return true, s.bumpCounter(s.db.WithContext(ctx), postID, col, false)
	}
	if userID == "" {
		return false, ErrAnonymousReaction
	}

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var res *gorm.DB
		if kind == KindUnlike {
			res = tx.Where("user_id = ? AND post_id = ? AND kind = ?", userID, postID, string(reaction)).
				Delete(&models.PostReaction{})
		} else {
			res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.PostReaction{
				UserID:    userID,
				PostID:    postID,
				Kind:      string(reaction),
				CreatedAt: s.now(),
			})
		}
		if res.Error != nil {
			return fmt.Errorf("failed to store %s reaction: %w", reaction, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return s.bumpCounter(tx, postID, col, kind == KindUnlike)
	})
	return applied, err
}

func (s *InteractionService) bumpCounter(db *gorm.DB, postID, column string, decrement bool) error {
	tx := db.Model(&models.Post{}).Where("id = ?", postID)
	var res *gorm.DB
	if decrement {
		res = tx.Where(column+" > 0").UpdateColumn(column, gorm.Expr(column+" - 1"))
	} else {
		res = tx.UpdateColumn(column, gorm.Expr(column+" + 1"))
	}
	if res.Error != nil {
		return fmt.Errorf("failed to update %s: %w", column, res.Error)
	}
	return nil
}

// refreshEngagement recomputes the stored engagement score from the current counters
func (s *InteractionService) refreshEngagement(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", postID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload post: %w", err)
	}

	now := s.now()
	score := PostEngagement(&post, now)
	// updated_at moves so search reconciliation picks up the new counters
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumns(map[string]interface{}{"engagement_score": score, "updated_at": now}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store engagement score: %w", err)
	}
	post.EngagementScore = score
	post.UpdatedAt = now
	return &post, nil
}

func (s *InteractionService) updateAffinity(ctx context.Context, userID string, post *models.Post, kind Kind) {
	delta, ok := affinityDelta[kind]
	if !ok {
		// Plain impressions are counted on the post only
		return
	}

	_, err := s.prefs.Update(ctx, userID, func(pref *models.FeedPreference) bool {
		// Only the first read of a post counts toward affinity
		if kind == KindExtendedView && !pref.MarkViewed(post.ID) {
			return false
		}

		for _, crop := range post.Crops {
			pref.Adjust(models.AffinityCrop, normalize(crop), delta)
		}
		for _, tag := range post.Tags {
			pref.Adjust(models.AffinityTopic, normalize(tag), delta)
		}
		if post.UserID != userID {
			pref.Adjust(models.AffinityAuthor, post.UserID, delta)
		}
		return true
	})
	if err != nil {
		logger.Log.Warn("Failed to update feed affinity",
			logger.WithUserID(userID),
			logger.WithPostID(post.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}
