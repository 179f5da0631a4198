// Package seed fills a database with realistic farmers, groups and posts
// for local development and demos.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/kisanmitra/backend/internal/analytics"
	"github.com/kisanmitra/backend/internal/feed"
	"github.com/kisanmitra/backend/internal/groups"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/kisanmitra/backend/internal/posts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EmailDomain marks seeded accounts so Clean can find them
const EmailDomain = "seed.kisanmitra.test"

var (
	crops   = []string{"wheat", "rice", "cotton", "sugarcane", "mustard", "maize", "soybean", "potato", "onion", "tomato", "chickpea", "groundnut"}
	regions = []string{"Punjab", "Haryana", "Uttar Pradesh", "Maharashtra", "Madhya Pradesh", "Rajasthan", "Gujarat", "Karnataka", "Bihar", "Tamil Nadu"}
	topics  = []string{"irrigation", "pests", "fertilizer", "sowing", "harvest", "mandi", "weather", "seeds", "soil", "subsidy"}

	questions = []string{
		"What is the right time for %s sowing in %s this season?",
		"Seeing yellow leaves on my %s near %s. Is it a nutrient problem?",
		"Which fertilizer dose works best for %s in %s soil?",
		"Mandi rates for %s dropped this week in %s. Should I hold my stock?",
		"Drip irrigation on %s saved a lot of water for us in %s.",
		"Aphids are back on the %s crop around %s. What spray is safe?",
	}
)

// Options sizes a seeding run
type Options struct {
	Users  int
	Groups int
	Posts  int
}

// Summary counts what a run created
type Summary struct {
	Users        int
	Groups       int
	Posts        int
	Comments     int
	Interactions int
}

type nopRecorder struct{}

func (nopRecorder) RecordSuccess(string, time.Duration, analytics.Context) {}
func (nopRecorder) RecordError(string, time.Duration, string, string)      {}

// Seeder handles database seeding operations. Content goes through the
// regular services so counters, statuses and affinities stay consistent.
type Seeder struct {
	db           *gorm.DB
	posts        *posts.Service
	groups       *groups.Service
	interactions *feed.InteractionService
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	// Seed returns an error only for invalid sources
	_ = gofakeit.Seed(time.Now().UnixNano())

	interactions := feed.NewInteractionService(db, feed.NewPreferenceStore(db))
	return &Seeder{
		db:           db,
		posts:        posts.NewService(db, interactions, nil),
		groups:       groups.NewService(db, nil, nopRecorder{}),
		interactions: interactions,
	}
}

// Seed creates opts.Users farmers, opts.Groups groups and opts.Posts posts,
// then adds comments and reactions between them
func (s *Seeder) Seed(ctx context.Context, opts Options) (*Summary, error) {
	sum := &Summary{}

	users, err := s.seedUsers(ctx, opts.Users)
	if err != nil {
		return sum, fmt.Errorf("failed to seed users: %w", err)
	}
	sum.Users = len(users)
	if len(users) == 0 {
		return sum, nil
	}

	groupIDs, err := s.seedGroups(ctx, users, opts.Groups)
	if err != nil {
		return sum, fmt.Errorf("failed to seed groups: %w", err)
	}
	sum.Groups = len(groupIDs)

	postIDs, err := s.seedPosts(ctx, users, groupIDs, opts.Posts)
	if err != nil {
		return sum, fmt.Errorf("failed to seed posts: %w", err)
	}
	sum.Posts = len(postIDs)

	sum.Comments, sum.Interactions = s.seedEngagement(ctx, users, postIDs)

	logger.Log.Info("🌱 Seeding complete",
		zap.Int("users", sum.Users),
		zap.Int("groups", sum.Groups),
		zap.Int("posts", sum.Posts),
		zap.Int("comments", sum.Comments),
		zap.Int("interactions", sum.Interactions),
	)
	return sum, nil
}

func (s *Seeder) seedUsers(ctx context.Context, n int) ([]models.User, error) {
	users := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("%s.%s@%s", strings.ToLower(gofakeit.FirstName()), gofakeit.UUID()[:8], EmailDomain)
		role := models.RoleFarmer
		if i%15 == 0 {
			role = models.RoleExpert
		}
		u := models.User{
			Name:     gofakeit.Name(),
			Email:    &email,
			Role:     role,
			Language: gofakeit.RandomString([]string{"en", "hi", "pa"}),
			Region:   gofakeit.RandomString(regions),
			Crops:    models.StringList(pick(crops, gofakeit.Number(1, 3))),
			FarmSize: float64(gofakeit.Number(1, 400)) / 10,
		}
		if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
			return users, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Seeder) seedGroups(ctx context.Context, users []models.User, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		owner := users[gofakeit.Number(0, len(users)-1)]
		crop := gofakeit.RandomString(crops)
		g, err := s.groups.CreateGroup(ctx, owner.ID, groups.CreateGroupInput{
			Name:                fmt.Sprintf("%s %s Kisan Sangh %d", owner.Region, strings.Title(crop), i+1), //nolint:staticcheck
			Description:         gofakeit.HipsterSentence(),
			Crops:               []string{crop},
			Region:              owner.Region,
			RequirePostApproval: i%3 == 0,
		})
		if err != nil {
			return ids, err
		}
		ids = append(ids, g.ID)

		for _, u := range users {
			if u.ID == owner.ID || !gofakeit.Bool() {
				continue
			}
			if err := s.groups.Join(ctx, g.ID, u.ID); err != nil {
				return ids, err
			}
		}
	}
	return ids, nil
}

func (s *Seeder) seedPosts(ctx context.Context, users []models.User, groupIDs []string, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		author := users[gofakeit.Number(0, len(users)-1)]
		crop := gofakeit.RandomString(crops)
		if len(author.Crops) > 0 {
			crop = author.Crops[gofakeit.Number(0, len(author.Crops)-1)]
		}
		body := fmt.Sprintf(gofakeit.RandomString(questions), crop, author.Region) +
			" #" + gofakeit.RandomString(topics)

		// Every fourth post goes to a group the author belongs to
		if len(groupIDs) > 0 && i%4 == 0 {
			gid := groupIDs[gofakeit.Number(0, len(groupIDs)-1)]
			p, err := s.groups.CreatePost(ctx, gid, author.ID, groups.PostInput{Body: body, Crops: []string{crop}, Tags: posts.Normalize(posts.Input{Body: body}).Tags})
			if err == nil {
				if p.Status == models.PostStatusApproved {
					ids = append(ids, p.ID)
				}
				continue
			}
			if !errors.Is(err, groups.ErrNotMember) {
				return ids, err
			}
		}

		p, err := s.posts.Create(ctx, author.ID, posts.Input{Body: body, Crops: []string{crop}})
		if err != nil {
			return ids, err
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *Seeder) seedEngagement(ctx context.Context, users []models.User, postIDs []string) (comments, interactions int) {
	if len(postIDs) == 0 {
		return 0, 0
	}
	kinds := []feed.Kind{feed.KindView, feed.KindView, feed.KindExtendedView, feed.KindLike, feed.KindShare, feed.KindHelpful}

	for _, u := range users {
		for j := 0; j < gofakeit.Number(0, 8); j++ {
			postID := postIDs[gofakeit.Number(0, len(postIDs)-1)]
			kind := kinds[gofakeit.Number(0, len(kinds)-1)]
			if _, err := s.interactions.Apply(ctx, u.ID, postID, kind); err != nil {
				logger.Log.Debug("Seed interaction skipped", zap.Error(err))
				continue
			}
			interactions++
		}
		if gofakeit.Number(0, 2) == 0 {
			postID := postIDs[gofakeit.Number(0, len(postIDs)-1)]
			if _, err := s.posts.AddComment(ctx, u.ID, postID, posts.CommentInput{Body: gofakeit.HipsterSentence()}); err == nil {
				comments++
			}
		}
	}
	return comments, interactions
}

// Clean removes every seeded account and everything it created
func (s *Seeder) Clean(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seeded := tx.Model(&models.User{}).Unscoped().Select("id").Where("email LIKE ?", "%@"+EmailDomain)
		seededGroups := tx.Model(&models.Group{}).Select("id").Where("created_by IN (?)", seeded)

		steps := []struct {
			name  string
			model interface{}
			where string
			arg   interface{}
		}{
			{"comments", &models.Comment{}, "user_id IN (?)", seeded},
			{"group members", &models.GroupMember{}, "group_id IN (?) OR user_id IN (?)", nil},
			{"posts", &models.Post{}, "user_id IN (?)", seeded},
			{"groups", &models.Group{}, "created_by IN (?)", seeded},
			{"preferences", &models.FeedPreference{}, "user_id IN (?)", seeded},
			{"users", &models.User{}, "email LIKE ?", "%@" + EmailDomain},
		}
		for _, step := range steps {
			q := tx.Unscoped()
			if step.arg == nil {
				q = q.Where(step.where, seededGroups, seeded)
			} else {
				q = q.Where(step.where, step.arg)
			}
			res := q.Delete(step.model)
			if res.Error != nil {
				return fmt.Errorf("failed to delete seeded %s: %w", step.name, res.Error)
			}
			logger.Log.Info("🧹 Removed seed data", zap.String("table", step.name), zap.Int64("rows", res.RowsAffected))
		}
		return nil
	})
}

// pick returns n distinct values from list
func pick(list []string, n int) []string {
	if n > len(list) {
		n = len(list)
	}
	shuffled := make([]string, len(list))
	copy(shuffled, list)
	gofakeit.ShuffleStrings(shuffled)
	return shuffled[:n]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
