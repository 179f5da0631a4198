package feed

import (
	"math"
	"testing"
	"time"

	"github.com/kisanmitra/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeDecay(t *testing.T) {
	assert.Equal(t, 1.0, TimeDecay(0))
	assert.Equal(t, 1.0, TimeDecay(-5))
	assert.InDelta(t, 2.0, TimeDecay(9), 1e-9)
	assert.InDelta(t, 3.0, TimeDecay(99), 1e-9)
	assert.GreaterOrEqual(t, TimeDecay(0.5), 1.0)
}

func TestEngagementScoreFormula(t *testing.T) {
	c := Counters{Likes: 4, Comments: 2, Shares: 1, Helpful: 1}
	// 4 + 6 + 5 + 10 = 25
	assert.InDelta(t, 25.0, EngagementScore(c, 0), 1e-9)
	assert.InDelta(t, 12.5, EngagementScore(c, 9), 1e-9)

	// Pure function of counters and age
	assert.Equal(t, EngagementScore(c, 37.5), EngagementScore(c, 37.5))
	assert.Equal(t, 0.0, EngagementScore(Counters{}, 10))
}

func TestPostEngagementUsesAge(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	p := &models.Post{LikeCount: 10, CreatedAt: now.Add(-99 * time.Hour)}
	assert.InDelta(t, 10.0/3.0, PostEngagement(p, now), 1e-9)
}

func TestRelevanceForPunjabWheatFarmer(t *testing.T) {
	group := &models.Group{
		ID:          "g1",
		Crops:       models.StringList{"wheat", "cotton"},
		Region:      "Punjab",
		MemberCount: 120,
	}
	profile := Profile{Crops: []string{"wheat", "rice"}, Region: "Punjab"}

	r := ComputeRelevanceScore(CandidateFromGroup(group), profile)

	assert.Equal(t, 10.0, r.CropMatch)
	assert.Equal(t, 15.0, r.RegionMatch)
	assert.InDelta(t, math.Log(121)*2, r.Popularity, 1e-9)
	assert.Equal(t, 0.0, r.Affinity)
	assert.InDelta(t, 25+math.Log(121)*2, r.Total, 1e-9)
}

func TestRelevanceMatchingIsCaseInsensitive(t *testing.T) {
	c := Candidate{Crops: []string{"Wheat", "WHEAT", "Rice "}, Region: "punjab"}
	r := ComputeRelevanceScore(c, Profile{Crops: []string{"wheat", "rice"}, Region: "Punjab"})
	assert.Equal(t, 20.0, r.CropMatch)
	assert.Equal(t, 15.0, r.RegionMatch)

	r = ComputeRelevanceScore(Candidate{}, Profile{})
	assert.Equal(t, 0.0, r.RegionMatch, "empty regions never match")
}

func TestRelevanceIncludesAffinityAndEngagement(t *testing.T) {
	pref := &models.FeedPreference{}
	pref.Adjust(models.AffinityCrop, "rice", 4)
	pref.Adjust(models.AffinityTopic, "irrigation", 3)
	pref.Adjust(models.AffinityAuthor, "author-1", 2)

	c := Candidate{
		AuthorID:   "author-1",
		Crops:      []string{"Rice"},
		Tags:       []string{"irrigation"},
		Engagement: 7.5,
	}
	r := ComputeRelevanceScore(c, Profile{Preference: pref})
	assert.Equal(t, 9.0, r.Affinity)
	assert.Equal(t, 7.5, r.Engagement)
	assert.InDelta(t, 16.5, r.Total, 1e-9)
}

func TestFilterExcludedRemovesHiddenAndMuted(t *testing.T) {
	posts := []models.Post{
		{ID: "p1", UserID: "u1"},
		{ID: "p2", UserID: "muted"},
		{ID: "p3", UserID: "u2"},
		{ID: "p4", UserID: "muted"},
	}
	pref := &models.FeedPreference{
		HiddenPosts: models.StringList{"p3"},
		MutedUsers:  models.StringList{"muted"},
	}

	out := FilterExcluded(posts, pref)
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].ID)

	assert.Len(t, FilterExcluded(posts, nil), 4)
}

func TestRankExcludesMutedAuthorsEvenWhenHighlyRelevant(t *testing.T) {
	pref := &models.FeedPreference{MutedUsers: models.StringList{"spammer"}}
	cands := []Candidate{
		{ID: "spam", AuthorID: "spammer", Crops: []string{"wheat"}, Region: "Punjab", Popularity: 10000, Engagement: 500},
		{ID: "ok", AuthorID: "friend"},
	}

	ranked := Rank(cands, Profile{Crops: []string{"wheat"}, Region: "Punjab", Preference: pref})
	require.Len(t, ranked, 1)
	assert.Equal(t, "ok", ranked[0].ID)
}

func TestRankMutingDoesNotHideGroups(t *testing.T) {
	g := &models.Group{ID: "g1", CreatedBy: "muted"}
	pref := &models.FeedPreference{MutedUsers: models.StringList{"muted"}}
	ranked := Rank([]Candidate{CandidateFromGroup(g)}, Profile{Preference: pref})
	assert.Len(t, ranked, 1)
}

func TestRankOrderingAndTieBreaks(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{ID: "low", Engagement: 1, CreatedAt: base},
		{ID: "tie-old", Engagement: 50, CreatedAt: base},
		{ID: "tie-new", Engagement: 50, CreatedAt: base.Add(time.Hour)},
		{ID: "top", Engagement: 100, CreatedAt: base},
	}
	ranked := Rank(cands, Profile{})

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"top", "tie-new", "tie-old", "low"}, ids)
}

func TestRankTieBreaksOnRawPopularityFirst(t *testing.T) {
	// Equal totals built from different parts: popularity wins the tie
	popular := Candidate{ID: "popular", Popularity: 3}
	quiet := Candidate{ID: "quiet", Engagement: math.Log(4) * PopularityWeight, CreatedAt: time.Now()}

	ranked := Rank([]Candidate{quiet, popular}, Profile{})
	require.Len(t, ranked, 2)
	require.Equal(t, ranked[0].Relevance.Total, ranked[1].Relevance.Total)
	assert.Equal(t, "popular", ranked[0].ID)
}
