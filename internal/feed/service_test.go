package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kisanmitra/backend/internal/analytics"
	"github.com/kisanmitra/backend/internal/cache"
	"github.com/kisanmitra/backend/internal/database"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type recordedEvent struct {
	op     string
	ok     bool
	cached bool
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *fakeRecorder) RecordSuccess(op string, _ time.Duration, c analytics.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{op: op, ok: true, cached: c.Cached})
}

func (r *fakeRecorder) RecordError(op string, _ time.Duration, _ string, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{op: op})
}

type FeedServiceSuite struct {
	suite.Suite
	db           *gorm.DB
	prefs        *PreferenceStore
	service      *Service
	interactions *InteractionService
	recorder     *fakeRecorder

	viewer *models.User
	friend *models.User
	troll  *models.User
}

func TestFeedServiceSuite(t *testing.T) {
	suite.Run(t, new(FeedServiceSuite))
}

func (s *FeedServiceSuite) SetupTest() {
	logger.InitializeForTest()
	db, err := database.OpenInMemory()
	require.NoError(s.T(), err)
	s.db = db

	s.prefs = NewPreferenceStore(db)
	s.recorder = &fakeRecorder{}
	pages := cache.New[Page](cache.Options{Name: "feed_test", MaxEntries: 100})
	s.service = NewService(db, s.prefs, pages, time.Minute, s.recorder)
	s.interactions = NewInteractionService(db, s.prefs)
	s.interactions.OnChange(s.service.Invalidate)

	s.viewer = s.createUser("Gurpreet", "Punjab", "wheat", "rice")
	s.friend = s.createUser("Asha", "Punjab", "wheat")
	s.troll = s.createUser("Troll", "Punjab", "wheat")
}

func (s *FeedServiceSuite) TearDownTest() {
	_ = database.Close(s.db)
}

func (s *FeedServiceSuite) createUser(name, region string, crops ...string) *models.User {
	u := &models.User{Name: name, Region: region, Crops: models.StringList(crops)}
	s.Require().NoError(s.db.Create(u).Error)
	return u
}

func (s *FeedServiceSuite) createPost(author *models.User, body, location string, crops ...string) *models.Post {
	p := &models.Post{UserID: author.ID, Body: body, Location: location, Crops: models.StringList(crops), Tags: models.StringList{}}
	s.Require().NoError(s.db.Create(p).Error)
	return p
}

func (s *FeedServiceSuite) ids(page *Page) []string {
	out := make([]string, 0, len(page.Posts))
	for _, p := range page.Posts {
		out = append(out, p.ID)
	}
	return out
}

func (s *FeedServiceSuite) TestFeedRanksRelevantPostsFirst() {
	ctx := context.Background()
	offTopic := s.createPost(s.friend, "Selling a tractor", "Kerala")
	relevant := s.createPost(s.friend, "Wheat rust spotted near Ludhiana", "Punjab", "wheat")

	page, err := s.service.Feed(ctx, s.viewer.ID, 10, 0)
	s.Require().NoError(err)
	s.Equal([]string{relevant.ID, offTopic.ID}, s.ids(page))
	s.Equal(25.0, page.Posts[0].Relevance.CropMatch+page.Posts[0].Relevance.RegionMatch)
	s.False(page.Cached)
}

func (s *FeedServiceSuite) TestPendingPostsAreNotInFeed() {
	pending := &models.Post{UserID: s.friend.ID, Body: "awaiting review", Status: models.PostStatusPending}
	s.Require().NoError(s.db.Create(pending).Error)

	page, err := s.service.Feed(context.Background(), s.viewer.ID, 10, 0)
	s.Require().NoError(err)
	s.NotContains(s.ids(page), pending.ID)
}

func (s *FeedServiceSuite) TestSecondRequestIsServedFromCache() {
	ctx := context.Background()
	s.createPost(s.friend, "hello", "Punjab")

	_, err := s.service.Feed(ctx, s.viewer.ID, 10, 0)
	s.Require().NoError(err)
	page, err := s.service.Feed(ctx, s.viewer.ID, 10, 0)
	s.Require().NoError(err)

	s.True(page.Cached)
	s.Require().Len(s.recorder.events, 2)
	s.Equal(analytics.OpFeed, s.recorder.events[1].op)
	s.True(s.recorder.events[1].cached)
}

func (s *FeedServiceSuite) TestMutedAuthorIsAbsentImmediately() {
	ctx := context.Background()
	s.createPost(s.friend, "irrigation tips", "Punjab", "wheat")
	trollPost := s.createPost(s.troll, "buy my miracle fertilizer", "Punjab", "wheat", "rice")

	page, err := s.service.Feed(ctx, s.viewer.ID, 10, 0)
	s.Require().NoError(err)
	s.Contains(s.ids(page), trollPost.ID)

	s.Require().NoError(s.service.MuteUser(ctx, s.viewer.ID, s.troll.ID))

	// The mute invalidates the cached page
	page, err = s.service.Feed(ctx, s.viewer.ID, 10, 0)
	s.Require().NoError(err)
	s.False(page.Cached)
	s.NotContains(s.ids(page), trollPost.ID)
	s.Equal(1, page.Total)

	s.Require().NoError(s.service.UnmuteUser(ctx, s.viewer.ID, s.troll.ID))
	page, err = s.service.Feed(ctx, s.viewer.ID, 10, 0)
	s.Require().NoError(err)
	s.Contains(s.ids(page), trollPost.ID)
}

func (s *FeedServiceSuite) TestMuteValidation() {
	ctx := context.Background()
	s.ErrorIs(s.service.MuteUser(ctx, s.viewer.ID, s.viewer.ID), ErrSelfMute)
	s.ErrorIs(s.service.MuteUser(ctx, s.viewer.ID, "nobody"), ErrUserNotFound)
}

func (s *FeedServiceSuite) TestHiddenPostExcluded() {
	ctx := context.Background()
	p := s.createPost(s.friend, "hide me", "Punjab")

	s.Require().NoError(s.service.HidePost(ctx, s.viewer.ID, p.ID))
	page, err := s.service.Feed(ctx, s.viewer.ID, 10, 0)
	s.Require().NoError(err)
	s.NotContains(s.ids(page), p.ID)

	s.Require().NoError(s.service.UnhidePost(ctx, s.viewer.ID, p.ID))
	page, err = s.service.Feed(ctx, s.viewer.ID, 10, 0)
	s.Require().NoError(err)
	s.Contains(s.ids(page), p.ID)
}

func (s *FeedServiceSuite) TestPagination() {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.createPost(s.friend, "post", "Punjab")
	}

	page, err := s.service.Feed(ctx, s.viewer.ID, 2, 4)
	s.Require().NoError(err)
	s.Len(page.Posts, 1)
	s.Equal(5, page.Total)

	page, err = s.service.Feed(ctx, s.viewer.ID, 2, 10)
	s.Require().NoError(err)
	s.Empty(page.Posts)

	page, err = s.service.Feed(ctx, s.viewer.ID, 0, -1)
	s.Require().NoError(err)
	s.Equal(DefaultPageSize, page.Limit)
	s.Equal(0, page.Offset)
}

func (s *FeedServiceSuite) TestUnknownViewer() {
	_, err := s.service.Feed(context.Background(), "ghost", 10, 0)
	s.ErrorIs(err, ErrUserNotFound)
	s.Require().Len(s.recorder.events, 1)
	s.False(s.recorder.events[0].ok)
}

func (s *FeedServiceSuite) TestLikeUpdatesCountersEngagementAndAffinity() {
	ctx := context.Background()
	p := s.createPost(s.friend, "drip irrigation results", "Punjab", "Wheat")
	s.Require().NoError(s.db.Model(p).UpdateColumn("tags", models.StringList{"irrigation"}).Error)

	updated, err := s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindLike)
	s.Require().NoError(err)
	s.Equal(1, updated.LikeCount)
	s.InDelta(1.0, updated.EngagementScore, 0.01)

	pref, err := s.prefs.Get(ctx, s.viewer.ID)
	s.Require().NoError(err)
	s.Equal(2.0, pref.Score(models.AffinityCrop, "wheat"))
	s.Equal(2.0, pref.Score(models.AffinityTopic, "irrigation"))
	s.Equal(2.0, pref.Score(models.AffinityAuthor, s.friend.ID))

	_, err = s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindComment)
	s.Require().NoError(err)
	_, err = s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindHelpful)
	s.Require().NoError(err)

	var stored models.Post
	s.Require().NoError(s.db.First(&stored, "id = ?", p.ID).Error)
	s.Equal(1, stored.CommentCount)
	s.Equal(1, stored.HelpfulCount)
	s.InDelta(14.0, stored.EngagementScore, 0.01)
}

func (s *FeedServiceSuite) TestUnlikeNeverGoesNegative() {
	ctx := context.Background()
	p := s.createPost(s.friend, "post", "Punjab", "rice")

	for i := 0; i < 3; i++ {
		updated, err := s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindUnlike)
		s.Require().NoError(err)
		s.Equal(0, updated.LikeCount)
	}

	pref, err := s.prefs.Get(ctx, s.viewer.ID)
	s.Require().NoError(err)
	s.Equal(0.0, pref.Score(models.AffinityCrop, "rice"))
}

func (s *FeedServiceSuite) TestReactionsCountOncePerUser() {
	ctx := context.Background()
	p := s.createPost(s.friend, "mulching saved water", "Punjab", "maize")

	for i := 0; i < 10; i++ {
		updated, err := s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindLike)
		s.Require().NoError(err)
		s.Equal(1, updated.LikeCount)
	}

	// Someone who never liked the post cannot take the viewer's like away
	updated, err := s.interactions.Apply(ctx, s.troll.ID, p.ID, KindUnlike)
	s.Require().NoError(err)
	s.Equal(1, updated.LikeCount)

	pref, err := s.prefs.Get(ctx, s.viewer.ID)
	s.Require().NoError(err)
	s.Equal(2.0, pref.Score(models.AffinityCrop, "maize"))
	trollPref, err := s.prefs.Get(ctx, s.troll.ID)
	s.Require().NoError(err)
	s.Equal(0.0, trollPref.Score(models.AffinityCrop, "maize"))

	updated, err = s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindUnlike)
	s.Require().NoError(err)
	s.Equal(0, updated.LikeCount)
	pref, err = s.prefs.Get(ctx, s.viewer.ID)
	s.Require().NoError(err)
	s.Equal(0.0, pref.Score(models.AffinityCrop, "maize"))

	// Liking again after an unlike counts
	updated, err = s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindLike)
	s.Require().NoError(err)
	s.Equal(1, updated.LikeCount)

	for i := 0; i < 3; i++ {
		_, err = s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindHelpful)
		s.Require().NoError(err)
		_, err = s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindShare)
		s.Require().NoError(err)
	}
	_, err = s.interactions.Apply(ctx, s.friend.ID, p.ID, KindHelpful)
	s.Require().NoError(err)

	var stored models.Post
	s.Require().NoError(s.db.First(&stored, "id = ?", p.ID).Error)
	s.Equal(2, stored.HelpfulCount)
	s.Equal(1, stored.ShareCount)

	var reactions int64
	s.Require().NoError(s.db.Model(&models.PostReaction{}).Where("post_id = ?", p.ID).Count(&reactions).Error)
	s.Equal(int64(4), reactions)
}

func (s *FeedServiceSuite) TestAnonymousReactionsAreRefused() {
	ctx := context.Background()
	p := s.createPost(s.friend, "post", "Punjab")

	_, err := s.interactions.Apply(ctx, "", p.ID, KindLike)
	s.ErrorIs(err, ErrAnonymousReaction)

	updated, err := s.interactions.Apply(ctx, "", p.ID, KindView)
	s.Require().NoError(err)
	s.Equal(1, updated.ViewCount)
	s.Equal(0, updated.LikeCount)
}

func (s *FeedServiceSuite) TestExtendedViewCountsOncePerPost() {
	ctx := context.Background()
	p := s.createPost(s.friend, "post", "Punjab", "cotton")

	for i := 0; i < 3; i++ {
		_, err := s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindExtendedView)
		s.Require().NoError(err)
	}

	pref, err := s.prefs.Get(ctx, s.viewer.ID)
	s.Require().NoError(err)
	s.Equal(1.0, pref.Score(models.AffinityCrop, "cotton"))
	s.True(pref.HasViewed(p.ID))
}

func (s *FeedServiceSuite) TestViewIncrementsCounterOnly() {
	ctx := context.Background()
	p := s.createPost(s.friend, "post", "Punjab", "cotton")

	updated, err := s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindView)
	s.Require().NoError(err)
	s.Equal(1, updated.ViewCount)

	pref, err := s.prefs.Get(ctx, s.viewer.ID)
	s.Require().NoError(err)
	s.Empty(pref.LikedCrops)
	s.False(pref.HasViewed(p.ID))
}

func (s *FeedServiceSuite) TestOwnPostsDoNotBuildAuthorAffinity() {
	ctx := context.Background()
	p := s.createPost(s.viewer, "my own", "Punjab")

	_, err := s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindLike)
	s.Require().NoError(err)

	pref, err := s.prefs.Get(ctx, s.viewer.ID)
	s.Require().NoError(err)
	s.Equal(0.0, pref.Score(models.AffinityAuthor, s.viewer.ID))
}

func (s *FeedServiceSuite) TestInteractionErrors() {
	ctx := context.Background()
	_, err := s.interactions.Apply(ctx, s.viewer.ID, "missing", KindLike)
	s.ErrorIs(err, ErrPostNotFound)

	p := s.createPost(s.friend, "post", "Punjab")
	_, err = s.interactions.Apply(ctx, s.viewer.ID, p.ID, Kind("poke"))
	s.ErrorIs(err, ErrInvalidKind)
}

func (s *FeedServiceSuite) TestInteractionInvalidatesActorFeed() {
	ctx := context.Background()
	p := s.createPost(s.friend, "post", "Punjab")

	_, err := s.service.Feed(ctx, s.viewer.ID, 10, 0)
	s.Require().NoError(err)

	_, err = s.interactions.Apply(ctx, s.viewer.ID, p.ID, KindLike)
	s.Require().NoError(err)

	page, err := s.service.Feed(ctx, s.viewer.ID, 10, 0)
	s.Require().NoError(err)
	s.False(page.Cached)
	s.Equal(1, page.Posts[0].LikeCount)
}

func (s *FeedServiceSuite) TestPageBuiltBeforeMuteIsNotCached() {
	ctx := context.Background()
	s.createPost(s.troll, "spam spam spam", "Punjab", "wheat")
	key := cacheKey(s.viewer.ID, DefaultPageSize, 0)

	// A build that loaded its candidates before the mute landed
	gen := s.service.generation(s.viewer.ID)
	stale, err := s.service.build(ctx, s.viewer.ID, DefaultPageSize, 0)
	s.Require().NoError(err)
	s.Require().Len(stale.Posts, 1)

	s.Require().NoError(s.service.MuteUser(ctx, s.viewer.ID, s.troll.ID))
	s.False(s.service.store(s.viewer.ID, gen, key, stale))

	page, err := s.service.Feed(ctx, s.viewer.ID, DefaultPageSize, 0)
	s.Require().NoError(err)
	s.False(page.Cached)
	s.Empty(page.Posts)

	// Builds that start after the mute are cached as usual
	page, err = s.service.Feed(ctx, s.viewer.ID, DefaultPageSize, 0)
	s.Require().NoError(err)
	s.True(page.Cached)
}

func (s *FeedServiceSuite) TestPreferenceStoreCreatesOnce() {
	ctx := context.Background()
	a, err := s.prefs.Get(ctx, s.viewer.ID)
	s.Require().NoError(err)
	b, err := s.prefs.Get(ctx, s.viewer.ID)
	s.Require().NoError(err)
	s.Equal(a.ID, b.ID)

	var count int64
	s.Require().NoError(s.db.Model(&models.FeedPreference{}).Where("user_id = ?", s.viewer.ID).Count(&count).Error)
	s.Equal(int64(1), count)
}
