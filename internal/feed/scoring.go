package feed

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kisanmitra/backend/internal/models"
)

// Relevance weights. Popularity is log-dampened so it cannot outweigh
// crop and region personalization.
const (
	CropMatchWeight   = 10.0
	RegionMatchWeight = 15.0
	PopularityWeight  = 2.0
)

// Engagement weights per interaction
const (
	likeWeight    = 1.0
	commentWeight = 3.0
	shareWeight   = 5.0
	helpfulWeight = 10.0
)

// Counters are the raw interaction counts of a post
type Counters struct {
	Likes    int
	Comments int
	Shares   int
	Helpful  int
}

// CountersOf extracts the counters of a post
func CountersOf(p *models.Post) Counters {
	return Counters{
		Likes:    p.LikeCount,
		Comments: p.CommentCount,
		Shares:   p.ShareCount,
		Helpful:  p.HelpfulCount,
	}
}

// TimeDecay is max(1, log10(ageHours+1)+1). Negative ages count as zero.
func TimeDecay(ageHours float64) float64 {
	if ageHours < 0 {
		ageHours = 0
	}
	return math.Max(1, math.Log10(ageHours+1)+1)
}

// EngagementScore is the time-decayed weighted interaction count
func EngagementScore(c Counters, ageHours float64) float64 {
	raw := float64(c.Likes)*likeWeight +
		float64(c.Comments)*commentWeight +
		float64(c.Shares)*shareWeight +
		float64(c.Helpful)*helpfulWeight
	return raw / TimeDecay(ageHours)
}

// PostEngagement computes a post's engagement score as of now
func PostEngagement(p *models.Post, now time.Time) float64 {
	return EngagementScore(CountersOf(p), now.Sub(p.CreatedAt).Hours())
}

// Candidate is anything rankable: a post for the feed or a group for discovery
type Candidate struct {
	ID string
	// AuthorID is empty for groups so muting never hides a community
	AuthorID   string
	Crops      []string
	Tags       []string
	Region     string
	Popularity int
	Engagement float64
	CreatedAt  time.Time
}

// CandidateFromPost uses view count as popularity
func CandidateFromPost(p *models.Post) Candidate {
	return Candidate{
		ID:         p.ID,
		AuthorID:   p.UserID,
		Crops:      p.Crops,
		Tags:       p.Tags,
		Region:     p.Location,
		Popularity: p.ViewCount,
		Engagement: p.EngagementScore,
		CreatedAt:  p.CreatedAt,
	}
}

// CandidateFromGroup uses member count as popularity
func CandidateFromGroup(g *models.Group) Candidate {
	return Candidate{
		ID:         g.ID,
		Crops:      g.Crops,
		Region:     g.Region,
		Popularity: g.MemberCount,
		CreatedAt:  g.CreatedAt,
	}
}

// Profile is the viewer's side of the relevance computation
type Profile struct {
	Crops  []string
	Region string
	// Preference may be nil for anonymous viewers
	Preference *models.FeedPreference
}

// Relevance is a score broken down by component
type Relevance struct {
	CropMatch   float64 `json:"crop_match"`
	RegionMatch float64 `json:"region_match"`
	Popularity  float64 `json:"popularity"`
	Affinity    float64 `json:"affinity"`
	Engagement  float64 `json:"engagement"`
	Total       float64 `json:"total"`
}

// ComputeRelevanceScore scores one candidate for a viewer
func ComputeRelevanceScore(c Candidate, p Profile) Relevance {
	var r Relevance

	r.CropMatch = float64(overlap(c.Crops, p.Crops)) * CropMatchWeight

	if c.Region != "" && strings.EqualFold(strings.TrimSpace(c.Region), strings.TrimSpace(p.Region)) {
		r.RegionMatch = RegionMatchWeight
	}

	pop := c.Popularity
	if pop < 0 {
		pop = 0
	}
	r.Popularity = math.Log(float64(pop)+1) * PopularityWeight

	if pref := p.Preference; pref != nil {
		for _, crop := range c.Crops {
			r.Affinity += pref.Score(models.AffinityCrop, normalize(crop))
		}
		for _, tag := range c.Tags {
			r.Affinity += pref.Score(models.AffinityTopic, normalize(tag))
		}
		if c.AuthorID != "" {
			r.Affinity += pref.Score(models.AffinityAuthor, c.AuthorID)
		}
	}

	r.Engagement = c.Engagement
	r.Total = r.CropMatch + r.RegionMatch + r.Popularity + r.Affinity + r.Engagement
	return r
}

// FilterExcluded drops hidden posts and posts by muted authors
func FilterExcluded(posts []models.Post, pref *models.FeedPreference) []models.Post {
	if pref == nil || (len(pref.HiddenPosts) == 0 && len(pref.MutedUsers) == 0) {
		return posts
	}
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if pref.IsHidden(p.ID) || pref.IsMuted(p.UserID) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Scored pairs a candidate with its relevance
type Scored struct {
	Candidate
	Relevance Relevance
}

// Rank filters excluded candidates, scores the rest and sorts them by total
// relevance. Ties go to higher raw popularity, then to the newer candidate.
func Rank(candidates []Candidate, p Profile) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if excluded(c, p.Preference) {
			continue
		}
		scored = append(scored, Scored{Candidate: c, Relevance: ComputeRelevanceScore(c, p)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Relevance.Total != b.Relevance.Total {
			return a.Relevance.Total > b.Relevance.Total
		}
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return scored
}

func excluded(c Candidate, pref *models.FeedPreference) bool {
	if pref == nil {
		return false
	}
	if pref.IsHidden(c.ID) {
		return true
	}
	return c.AuthorID != "" && pref.IsMuted(c.AuthorID)
}

func overlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[normalize(s)] = struct{}{}
	}
	n := 0
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		k := normalize(s)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := set[k]; ok {
			n++
		}
	}
	return n
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
