package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kisanmitra/backend/internal/analytics"
	"github.com/kisanmitra/backend/internal/feed"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"github.com/kisanmitra/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid post state transition")
	ErrAlreadyMember     = errors.New("already a member")
	ErrNotMember         = errors.New("not a member")
	ErrGroupExists       = errors.New("group name already taken")
	ErrInvalidStatus     = errors.New("invalid status filter")
	ErrInvalidRole       = errors.New("role must be member, moderator or admin")
	ErrOwnRole           = errors.New("cannot change your own role")
)

// TransitionError carries the states of a rejected transition
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move post from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// InitialStatus is approved unless the group requires approval and the
// poster is a plain member
func InitialStatus(group *models.Group, role string) string {
	if group.RequirePostApproval && role != models.GroupRoleModerator && role != models.GroupRoleAdmin {
		return models.PostStatusPending
	}
	return models.PostStatusApproved
}

// Indexer receives approved posts for search. Failures are logged only.
type Indexer interface {
	IndexPost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, postID string) error
}

// Recorder is the analytics surface discovery needs
type Recorder interface {
	RecordSuccess(operation string, duration time.Duration, c analytics.Context)
	RecordError(operation string, duration time.Duration, code string, message string)
}

// Service manages communities, membership and the post approval workflow
type Service struct {
	db       *gorm.DB
	indexer  Indexer
	recorder Recorder
	now      func() time.Time
}

func NewService(db *gorm.DB, indexer Indexer, recorder Recorder) *Service {
	return &Service{db: db, indexer: indexer, recorder: recorder, now: time.Now}
}

// CreateGroupInput describes a new community
type CreateGroupInput struct {
	Name                string
	Description         string
	Crops               []string
	Region              string
	RequirePostApproval bool
}

// PostInput is the body of a new post
type PostInput struct {
	Body     string
	Tags     []string
	Crops    []string
	Location string
	ImageURL string
}

// CreateGroup creates a group with its creator as the only member and admin
func (s *Service) CreateGroup(ctx context.Context, creatorID string, in CreateGroupInput) (*models.Group, error) {
	group := &models.Group{
		Name:                strings.TrimSpace(in.Name),
		Description:         in.Description,
		Crops:               models.StringList(in.Crops),
		Region:              in.Region,
		RequirePostApproval: in.RequirePostApproval,
		MemberCount:         1,
		CreatedBy:           creatorID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Group{}).Where("name = ?", group.Name).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrGroupExists
		}
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		return tx.Create(&models.GroupMember{GroupID: group.ID, UserID: creatorID, Role: models.GroupRoleAdmin}).Error
	})
	if err != nil {
		if errors.Is(err, ErrGroupExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	logger.Log.Info("Group created",
		logger.WithGroupID(group.ID),
		logger.WithUserID(creatorID),
		zap.Bool("require_post_approval", group.RequirePostApproval),
	)
	return group, nil
}

// GetGroup loads a non-deleted group
func (s *Service) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var group models.Group
	if err := s.db.WithContext(ctx).First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	return &group, nil
}

// Join adds userID as a plain member
func (s *Service) Join(ctx context.Context, groupID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockGroup(tx, groupID); err != nil {
			return err
		}
		role, err := memberRole(tx, groupID, userID)
		if err != nil {
			return err
		}
		if role != "" {
			return ErrAlreadyMember
		}
		if err := tx.Create(&models.GroupMember{GroupID: groupID, UserID: userID, Role: models.GroupRoleMember}).Error; err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
		return tx.Model(&models.Group{}).Where("id = ?", groupID).
			UpdateColumn("member_count", gorm.Expr("member_count + 1")).Error
	})
}

// Leave removes userID from the group
func (s *Service) Leave(ctx context.Context, groupID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockGroup(tx, groupID); err != nil {
			return err
		}
		res := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{})
		if res.Error != nil {
			return fmt.Errorf("failed to remove member: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotMember
		}
		return tx.Model(&models.Group{}).Where("id = ? AND member_count > 0", groupID).
			UpdateColumn("member_count", gorm.Expr("member_count - 1")).Error
	})
}

// SetRole changes a member's role. Only group admins may do this, and not
// on themselves, so a group always keeps the admin who made the change.
func (s *Service) SetRole(ctx context.Context, groupID, adminID, userID, role string) error {
	switch role {
	case models.GroupRoleMember, models.GroupRoleModerator, models.GroupRoleAdmin:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if adminID == userID {
		return ErrOwnRole
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actorRole, err := memberRole(tx, groupID, adminID)
		if err != nil {
			return err
		}
		if actorRole != models.GroupRoleAdmin {
			return ErrForbidden
		}
		res := tx.Model(&models.GroupMember{}).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Update("role", role)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotMember
		}
		return nil
	})
}

// CreatePost adds a post to the group in its initial moderation state.
// The group's post count only moves for posts created approved.
func (s *Service) CreatePost(ctx context.Context, groupID, authorID string, in PostInput) (*models.Post, error) {
	var post *models.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		role, err := memberRole(tx, groupID, authorID)
		if err != nil {
			return err
		}
		if role == "" {
			return ErrNotMember
		}

		gid := group.ID
		post = &models.Post{
			UserID:   authorID,
			GroupID:  &gid,
			Body:     in.Body,
			Tags:     models.StringList(in.Tags),
			Crops:    models.StringList(in.Crops),
			Location: in.Location,
			ImageURL: in.ImageURL,
			Status:   InitialStatus(&group, role),
		}
		if post.Location == "" {
			post.Location = group.Region
		}
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("failed to create post: %w", err)
		}
		if post.IsApproved() {
			return bumpPostCount(tx, groupID, 1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Get().PostsCreatedTotal.WithLabelValues(post.Status).Inc()
	if post.IsApproved() {
		s.index(post)
	}
	return post, nil
}

// Approve moves a pending post to approved and counts it toward the group total
func (s *Service) Approve(ctx context.Context, moderatorID, postID string) (*models.Post, error) {
	post, err := s.transition(ctx, moderatorID, postID, models.PostStatusApproved)
	if err != nil {
		return nil, err
	}
	s.index(post)
	return post, nil
}

// Reject moves a pending or approved post to rejected and soft-deletes it.
// An approved post is removed from the group total.
func (s *Service) Reject(ctx context.Context, moderatorID, postID string) (*models.Post, error) {
	post, err := s.transition(ctx, moderatorID, postID, models.PostStatusRejected)
	if err != nil {
		return nil, err
	}
	s.unindex(post.ID)
	return post, nil
}

// PostGroup returns the group a post belongs to, including rejected posts
func (s *Service) PostGroup(ctx context.Context, postID string) (string, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Unscoped().Select("id", "group_id").First(&post, "id = ?", postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && post.GroupID == nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load post: %w", err)
	}
	return *post.GroupID, nil
}

func (s *Service) transition(ctx context.Context, moderatorID, postID, to string) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Rejected posts are soft-deleted; load them anyway to report the transition
		if err := tx.Unscoped().First(&post, "id = ?", postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if post.GroupID == nil {
			return ErrNotFound
		}
		ok, err := canModerate(tx, *post.GroupID, moderatorID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}

		from := post.Status
		if !allowed(from, to) || (post.DeletedAt.Valid && from != models.PostStatusRejected) {
			return &TransitionError{From: from, To: to}
		}

		now := s.now().UTC()
		updates := map[string]interface{}{
			"status":      to,
			"reviewed_by": moderatorID,
			"reviewed_at": now,
		}
		if to == models.PostStatusRejected {
			updates["deleted_at"] = now
		}

		// Conditional on the old state so concurrent moderators cannot both win
		res := tx.Unscoped().Model(&models.Post{}).
			Where("id = ? AND status = ?", postID, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &TransitionError{From: from, To: to}
		}

		switch {
		case to == models.PostStatusApproved:
			if err := bumpPostCount(tx, *post.GroupID, 1); err != nil {
				return err
			}
		case from == models.PostStatusApproved:
			if err := bumpPostCount(tx, *post.GroupID, -1); err != nil {
				return err
			}
		}

		post.Status = to
		post.ReviewedBy = &moderatorID
		post.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := "approve"
	if to == models.PostStatusRejected {
		action = "reject"
	}
	metrics.Get().ModerationTotal.WithLabelValues(action).Inc()
	logger.Log.Info("Group post moderated",
		logger.WithPostID(postID),
		logger.WithUserID(moderatorID),
		zap.String("action", action),
	)
	return &post, nil
}

func allowed(from, to string) bool {
	switch to {
	case models.PostStatusApproved:
		return from == models.PostStatusPending
	case models.PostStatusRejected:
		return from == models.PostStatusPending || from == models.PostStatusApproved
	}
	return false
}

// DeletePost soft-deletes a group post. The author or a moderator may delete it.
func (s *Service) DeletePost(ctx context.Context, userID, postID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, "id = ?", postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if post.UserID != userID {
			if post.GroupID == nil {
				return ErrForbidden
			}
			ok, err := canModerate(tx, *post.GroupID, userID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrForbidden
			}
		}

		res := tx.Delete(&models.Post{}, "id = ?", postID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if post.GroupID != nil && post.IsApproved() {
			return bumpPostCount(tx, *post.GroupID, -1)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.unindex(postID)
	return nil
}

// ListPosts lists a group's posts in the given state, newest first.
// Approved posts are public; pending posts are visible to moderators only.
func (s *Service) ListPosts(ctx context.Context, groupID, viewerID, status string, limit, offset int) ([]models.Post, error) {
	if status == "" {
		status = models.PostStatusApproved
	}
	switch status {
	case models.PostStatusApproved:
	case models.PostStatusPending:
		ok, err := canModerate(s.db.WithContext(ctx), groupID, viewerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrInvalidStatus
	}

	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var posts []models.Post
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND status = ?", groupID, status).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list group posts: %w", err)
	}
	return posts, nil
}

// RankedGroup is a discovery result
type RankedGroup struct {
	models.Group
	Relevance feed.Relevance `json:"relevance"`
}

// Discover ranks groups the user has not joined by crop, region and popularity
func (s *Service) Discover(ctx context.Context, userID string, limit int) ([]RankedGroup, error) {
	start := time.Now()
	groups, err := s.discover(ctx, userID, limit)
	if err != nil {
		s.recorder.RecordError(analytics.OpDiscover, time.Since(start), "INTERNAL_ERROR", err.Error())
		return nil, err
	}
	s.recorder.RecordSuccess(analytics.OpDiscover, time.Since(start), analytics.Context{UserID: userID})
	return groups, nil
}

func (s *Service) discover(ctx context.Context, userID string, limit int) ([]RankedGroup, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	joined := s.db.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", userID)
	var groups []models.Group
	if err := s.db.WithContext(ctx).Where("id NOT IN (?)", joined).Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}

	byID := make(map[string]models.Group, len(groups))
	candidates := make([]feed.Candidate, 0, len(groups))
	for i := range groups {
		byID[groups[i].ID] = groups[i]
		candidates = append(candidates, feed.CandidateFromGroup(&groups[i]))
	}

	ranked := feed.Rank(candidates, feed.Profile{Crops: user.Crops, Region: user.Region})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]RankedGroup, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, RankedGroup{Group: byID[r.ID], Relevance: r.Relevance})
	}
	return out, nil
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

// lockGroup checks the group exists and locks its row where the dialect supports it
func lockGroup(tx *gorm.DB, groupID string) error {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var group models.Group
	if err := q.Select("id").First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// memberRole returns the user's role in the group, or "" if not a member
func memberRole(tx *gorm.DB, groupID, userID string) (string, error) {
	var member models.GroupMember
	err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load membership: %w", err)
	}
	return member.Role, nil
}

// canModerate is true for group moderators and admins, and for platform admins
func canModerate(tx *gorm.DB, groupID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	role, err := memberRole(tx, groupID, userID)
	if err != nil {
		return false, err
	}
	if role == models.GroupRoleModerator || role == models.GroupRoleAdmin {
		return true, nil
	}
	var user models.User
	if err := tx.Select("id", "role").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.IsAdmin(), nil
}

func bumpPostCount(tx *gorm.DB, groupID string, delta int) error {
	q := tx.Model(&models.Group{}).Where("id = ?", groupID)
	if delta < 0 {
		q = q.Where("post_count > 0")
	}
	return q.UpdateColumn("post_count", gorm.Expr("post_count + ?", delta)).Error
}
