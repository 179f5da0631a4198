package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/kisanmitra/backend/internal/telemetry"
)

// ElasticClient is a Searcher backed by Elasticsearch
type ElasticClient struct {
	es *elasticsearch.Client
}

// NewElasticClient connects to Elasticsearch at url and verifies the connection
func NewElasticClient(url string) (*ElasticClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Transport: telemetry.NewInstrumentedHTTPClient(telemetry.HTTPClientConfig{ServiceName: "elasticsearch"}).Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	res.Body.Close()

	return &ElasticClient{es: es}, nil
}

// InitializeIndices creates the posts index if it does not exist
func (c *ElasticClient) InitializeIndices(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{IndexPosts}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check if index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(postsMapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(IndexPosts,
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	return responseError(res, "creating index")
}

// IndexPost writes the post's current state
func (c *ElasticClient) IndexPost(ctx context.Context, post *models.Post) error {
	body, err := json.Marshal(PostToDocument(post))
	if err != nil {
		return fmt.Errorf("failed to marshal post document: %w", err)
	}

	res, err := c.es.Index(IndexPosts, bytes.NewReader(body),
		c.es.Index.WithDocumentID(post.ID),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index post: %w", err)
	}
	defer res.Body.Close()
	return responseError(res, "indexing post")
}

// DeletePost removes a post. Deleting a missing document is not an error.
func (c *ElasticClient) DeletePost(ctx context.Context, postID string) error {
	res, err := c.es.Delete(IndexPosts, postID, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return responseError(res, "deleting post")
}

// SearchPosts runs a multi_match over body, tags and crops, boosted by engagement and recency
func (c *ElasticClient) SearchPosts(ctx context.Context, params Params) (*Result, error) {
	params = params.normalized()

	var must []map[string]interface{}
	if q := strings.TrimSpace(params.Query); q != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     q,
				"fields":    []string{"body^3", "tags^2", "crops^2"},
				"fuzziness": "AUTO",
			},
		})
	}

	var filter []map[string]interface{}
	if len(params.Crops) > 0 {
		crops := make([]string, len(params.Crops))
		for i, c := range params.Crops {
			crops[i] = strings.ToLower(c)
		}
		filter = append(filter, map[string]interface{}{
			"terms": map[string]interface{}{"crops.keyword": crops},
		})
	}
	if params.Region != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"location": params.Region},
		})
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["must"] = must
	} else {
		boolQuery["must"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	query := map[string]interface{}{
		"from": params.Offset,
		"size": params.Limit,
		"query": map[string]interface{}{
			"function_score": map[string]interface{}{
				"query": map[string]interface{}{"bool": boolQuery},
				"functions": []map[string]interface{}{
					{"field_value_factor": map[string]interface{}{"field": "helpful_count", "factor": 3.0, "modifier": "log1p", "missing": 0}},
					{"field_value_factor": map[string]interface{}{"field": "like_count", "factor": 1.0, "modifier": "log1p", "missing": 0}},
					{"field_value_factor": map[string]interface{}{"field": "comment_count", "factor": 2.0, "modifier": "log1p", "missing": 0}},
					{
						"exp":    map[string]interface{}{"created_at": map[string]interface{}{"origin": "now", "scale": "30d", "decay": 0.5}},
						"weight": 0.5,
					},
				},
				"score_mode": "sum",
				"boost_mode": "multiply",
			},
		},
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(IndexPosts),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()
	if err := responseError(res, "searching posts"); err != nil {
		return nil, err
	}

	var resp struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Score  float64      `json:"_score"`
				Source PostDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	out := &Result{Posts: make([]Hit, 0, len(resp.Hits.Hits)), Total: resp.Hits.Total.Value}
	for _, h := range resp.Hits.Hits {
		out.Posts = append(out.Posts, h.Source.hit(h.Score))
	}
	return out, nil
}

func responseError(res *esapi.Response, action string) error {
	if !res.IsError() {
		return nil
	}
	var errResp map[string]interface{}
	raw, _ := io.ReadAll(res.Body)
	if err := json.Unmarshal(raw, &errResp); err != nil {
		return fmt.Errorf("error %s: [%s]", action, res.Status())
	}
	return fmt.Errorf("error %s: [%s] %v", action, res.Status(), errResp["error"])
}
