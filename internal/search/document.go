package search

import (
	"time"

	"github.com/kisanmitra/backend/internal/models"
)

// PostDocument is the indexed form of a post
type PostDocument struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	GroupID      string    `json:"group_id,omitempty"`
	Body         string    `json:"body"`
	Tags         []string  `json:"tags"`
	Crops        []string  `json:"crops"`
	Location     string    `json:"location"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	HelpfulCount int       `json:"helpful_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// PostToDocument converts a post for indexing
func PostToDocument(p *models.Post) PostDocument {
	doc := PostDocument{
		ID:           p.ID,
		UserID:       p.UserID,
		Body:         p.Body,
		Tags:         append([]string{}, p.Tags...),
		Crops:        append([]string{}, p.Crops...),
		Location:     p.Location,
		LikeCount:    p.LikeCount,
		CommentCount: p.CommentCount,
		HelpfulCount: p.HelpfulCount,
		CreatedAt:    p.CreatedAt,
	}
	if p.GroupID != nil {
		doc.GroupID = *p.GroupID
	}
	return doc
}

func (d PostDocument) hit(score float64) Hit {
	return Hit{
		ID:           d.ID,
		UserID:       d.UserID,
		GroupID:      d.GroupID,
		Body:         d.Body,
		Tags:         d.Tags,
		Crops:        d.Crops,
		Location:     d.Location,
		LikeCount:    d.LikeCount,
		CommentCount: d.CommentCount,
		CreatedAt:    d.CreatedAt,
		Score:        score,
	}
}

var postsMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":            map[string]interface{}{"type": "keyword"},
			"user_id":       map[string]interface{}{"type": "keyword"},
			"group_id":      map[string]interface{}{"type": "keyword"},
			"body":          map[string]interface{}{"type": "text", "analyzer": "standard"},
			"tags":          map[string]interface{}{"type": "text", "fields": map[string]interface{}{"keyword": map[string]interface{}{"type": "keyword"}}},
			"crops":         map[string]interface{}{"type": "text", "fields": map[string]interface{}{"keyword": map[string]interface{}{"type": "keyword"}}},
			"location":      map[string]interface{}{"type": "keyword", "normalizer": "lowercase"},
			"like_count":    map[string]interface{}{"type": "integer"},
			"comment_count": map[string]interface{}{"type": "integer"},
			"helpful_count": map[string]interface{}{"type": "integer"},
			"created_at":    map[string]interface{}{"type": "date"},
		},
	},
	"settings": map[string]interface{}{
		"analysis": map[string]interface{}{
			"normalizer": map[string]interface{}{
				"lowercase": map[string]interface{}{"type": "custom", "filter": []string{"lowercase"}},
			},
		},
	},
}
