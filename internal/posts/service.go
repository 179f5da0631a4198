package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kisanmitra/backend/internal/feed"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/kisanmitra/backend/internal/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("post not found")
	ErrForbidden = errors.New("not allowed to modify this post")
	// ErrGroupPost is returned for operations that group moderation owns
	ErrGroupPost = errors.New("post belongs to a group")
)

// Indexer keeps the search index in step with approved posts
type Indexer interface {
	IndexPost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, postID string) error
}

// Input is the author-supplied content of a post
type Input struct {
	Body     string   `json:"body" binding:"required,min=1,max=5000"`
	Tags     []string `json:"tags" binding:"max=10,dive,max=40"`
	Crops    []string `json:"crops" binding:"max=10,dive,max=40"`
	Location string   `json:"location" binding:"max=100"`
	ImageURL string   `json:"image_url" binding:"omitempty,url,max=500"`
}

// CommentInput is the body of a comment
type CommentInput struct {
	Body string `json:"body" binding:"required,min=1,max=2000"`
}

// Service manages posts outside groups and comments on any approved post
type Service struct {
	db           *gorm.DB
	interactions *feed.InteractionService
	indexer      Indexer
}

func NewService(db *gorm.DB, interactions *feed.InteractionService, indexer Indexer) *Service {
	return &Service{db: db, interactions: interactions, indexer: indexer}
}

// Normalize applies the tag and crop conventions shared by all posts:
// hashtags in the body become tags, and both lists are lowercased and deduped
func Normalize(in Input) Input {
	in.Body = strings.TrimSpace(in.Body)
	in.Tags = util.NormalizeList(append(append([]string{}, in.Tags...), util.ExtractHashtags(in.Body)...))
	in.Crops = util.NormalizeList(in.Crops)
	in.Location = strings.TrimSpace(in.Location)
	return in
}

// Create publishes a post to the public feed. Posts outside groups need no approval.
func (s *Service) Create(ctx context.Context, authorID string, in Input) (*models.Post, error) {
	in = Normalize(in)

	var post *models.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var author models.User
		if err := tx.First(&author, "id = ?", authorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return feed.ErrUserNotFound
			}
			return err
		}

		post = &models.Post{
			UserID:   authorID,
			Body:     in.Body,
			Tags:     models.StringList(in.Tags),
			Crops:    models.StringList(in.Crops),
			Location: in.Location,
			ImageURL: in.ImageURL,
			Status:   models.PostStatusApproved,
		}
		if post.Location == "" {
			post.Location = author.Region
		}
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("failed to create post: %w", err)
		}
		return tx.Model(&models.User{}).Where("id = ?", authorID).
			UpdateColumn("post_count", gorm.Expr("post_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.Get().PostsCreatedTotal.WithLabelValues(post.Status).Inc()
	logger.Log.Info("Post created", logger.WithPostID(post.ID), logger.WithUserID(authorID))
	s.index(post)
	return post, nil
}

// Get returns an approved post with its author
func (s *Service) Get(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Preload("User").
		Where("id = ? AND status = ?", postID, models.PostStatusApproved).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	return &post, nil
}

// Delete soft-deletes a post outside a group. Only the author or a platform
// admin may delete; group posts return ErrGroupPost.
func (s *Service) Delete(ctx context.Context, userID, postID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, "id = ?", postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if post.GroupID != nil {
			return ErrGroupPost
		}
		if post.UserID != userID {
			var actor models.User
			if err := tx.Select("id", "role").First(&actor, "id = ?", userID).Error; err != nil || !actor.IsAdmin() {
				return ErrForbidden
			}
		}

		if err := tx.Delete(&post).Error; err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
		return tx.Model(&models.User{}).Where("id = ? AND post_count > 0", post.UserID).
			UpdateColumn("post_count", gorm.Expr("post_count - 1")).Error
	})
	if err != nil {
		return err
	}

	logger.Log.Info("Post deleted", logger.WithPostID(postID), logger.WithUserID(userID))
	s.unindex(postID)
	return nil
}

// AddComment stores a comment and applies it as an interaction, which moves
// the post's comment count and the commenter's affinities
func (s *Service) AddComment(ctx context.Context, userID, postID string, in CommentInput) (*models.Comment, error) {
	comment := &models.Comment{PostID: postID, UserID: userID, Body: strings.TrimSpace(in.Body)}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Post{}).
			Where("id = ? AND status = ?", postID, models.PostStatusApproved).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return tx.Create(comment).Error
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.interactions.Apply(ctx, userID, postID, feed.KindComment); err != nil {
		// The comment stands; the counter is repaired by the next comment or reconciliation
		logger.Log.Warn("Failed to apply comment interaction",
			logger.WithPostID(postID),
			logger.WithUserID(userID),
			zap.Error(err),
		)
	}
	return comment, nil
}

// ListComments returns a post's comments, oldest first
func (s *Service) ListComments(ctx context.Context, postID string, limit, offset int) ([]models.Comment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&comments).Error
	return comments, err
}

func (s *Service) index(post *models.Post) {
	if s.indexer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.indexer.IndexPost(ctx, post); err != nil {
			logger.Log.Warn("Failed to index post", logger.WithPostID(post.ID), zap.Error(err))
		}
	}()
}

func (s *Service) unindex(postID string) {
	if s.indexer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.indexer.DeletePost(ctx, postID); err != nil {
			logger.Log.Warn("Failed to remove post from index", logger.WithPostID(postID), zap.Error(err))
		}
	}()
}
