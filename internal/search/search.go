package search

import (
	"context"
	"time"

	"github.com/kisanmitra/backend/internal/models"
)

// IndexPosts is the document index holding approved posts
const IndexPosts = "posts"

// Searcher indexes approved posts and answers text queries over them
type Searcher interface {
	IndexPost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, postID string) error
	SearchPosts(ctx context.Context, params Params) (*Result, error)
}

// Params filters a post search. Query matches body, tags and crops.
type Params struct {
	Query  string   `json:"q"`
	Crops  []string `json:"crops,omitempty"`
	Region string   `json:"region,omitempty"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// Hit is one matching post
type Hit struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	GroupID      string    `json:"group_id,omitempty"`
	Body         string    `json:"body"`
	Tags         []string  `json:"tags"`
	Crops        []string  `json:"crops"`
	Location     string    `json:"location"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	Score        float64   `json:"score"`
}

// Result is a page of hits
type Result struct {
	Posts []Hit `json:"posts"`
	Total int   `json:"total"`
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

func (p Params) normalized() Params {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
