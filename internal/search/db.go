package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/kisanmitra/backend/internal/models"
	"gorm.io/gorm"
)

// DBSearcher is a Searcher over the posts table, used when Elasticsearch is
// not configured. Indexing is a no-op since it reads the source of truth.
type DBSearcher struct {
	db *gorm.DB
}

func NewDBSearcher(db *gorm.DB) *DBSearcher {
	return &DBSearcher{db: db}
}

func (s *DBSearcher) IndexPost(context.Context, *models.Post) error { return nil }

func (s *DBSearcher) DeletePost(context.Context, string) error { return nil }

// SearchPosts matches every query word against body, tags or crops
func (s *DBSearcher) SearchPosts(ctx context.Context, params Params) (*Result, error) {
	params = params.normalized()

	q := s.db.WithContext(ctx).Model(&models.Post{}).Where("status = ?", models.PostStatusApproved)
	for _, word := range strings.Fields(strings.ToLower(params.Query)) {
		like := "%" + escapeLike(word) + "%"
		q = q.Where("(LOWER(body) LIKE ? ESCAPE '\\' OR LOWER(tags) LIKE ? ESCAPE '\\' OR LOWER(crops) LIKE ? ESCAPE '\\')", like, like, like)
	}
	for _, crop := range params.Crops {
		q = q.Where("LOWER(crops) LIKE ? ESCAPE '\\'", "%\""+escapeLike(strings.ToLower(crop))+"\"%")
	}
	if params.Region != "" {
		q = q.Where("LOWER(location) = ?", strings.ToLower(params.Region))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}

	var posts []models.Post
	if err := q.Order("engagement_score DESC").Order("created_at DESC").
		Limit(params.Limit).Offset(params.Offset).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to search posts: %w", err)
	}

	out := &Result{Posts: make([]Hit, 0, len(posts)), Total: int(total)}
	for i := range posts {
		out.Posts = append(out.Posts, PostToDocument(&posts[i]).hit(posts[i].EngagementScore))
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
