package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkViewedDeduplicates(t *testing.T) {
	p := &FeedPreference{}
	assert.True(t, p.MarkViewed("p1"))
	assert.False(t, p.MarkViewed("p1"))
	assert.True(t, p.HasViewed("p1"))
	assert.Len(t, p.ViewedPosts, 1)
}

func TestViewedPostsEvictsOldestPastLimit(t *testing.T) {
	p := &FeedPreference{}
	for i := 0; i < MaxViewedPosts+5; i++ {
		p.MarkViewed(fmt.Sprintf("post-%d", i))
	}

	assert.Len(t, p.ViewedPosts, MaxViewedPosts)
	assert.Equal(t, "post-5", p.ViewedPosts[0])
	assert.False(t, p.HasViewed("post-0"))
	assert.True(t, p.HasViewed(fmt.Sprintf("post-%d", MaxViewedPosts+4)))

	// An evicted post counts as new again
	assert.True(t, p.MarkViewed("post-0"))
}

func TestAdjustClampsAtZero(t *testing.T) {
	p := &FeedPreference{}
	p.Adjust(AffinityCrop, "wheat", 2)
	p.Adjust(AffinityCrop, "wheat", 3)
	assert.Equal(t, 5.0, p.Score(AffinityCrop, "wheat"))

	for i := 0; i < 10; i++ {
		p.Adjust(AffinityCrop, "wheat", -2)
		assert.GreaterOrEqual(t, p.Score(AffinityCrop, "wheat"), 0.0)
	}
	assert.Equal(t, 0.0, p.Score(AffinityCrop, "wheat"))
	assert.NotContains(t, p.LikedCrops, "wheat")

	p.Adjust(AffinityAuthor, "u1", -1)
	assert.Equal(t, 0.0, p.Score(AffinityAuthor, "u1"))

	p.Adjust("unknown", "x", 1)
	p.Adjust(AffinityTopic, "", 1)
	assert.Empty(t, p.LikedTopics)
}

func TestScoreDoesNotAllocate(t *testing.T) {
	p := &FeedPreference{}
	assert.Equal(t, 0.0, p.Score(AffinityCrop, "wheat"))
	assert.Equal(t, 0.0, p.Score(AffinityTopic, "irrigation"))
	assert.Equal(t, 0.0, p.Score(AffinityAuthor, "u1"))
	assert.Equal(t, 0.0, p.Score("unknown", "x"))
	assert.Nil(t, p.LikedCrops)
	assert.Nil(t, p.LikedTopics)
	assert.Nil(t, p.PreferredAuthors)

	// A decrement on an empty dimension leaves it unallocated too
	p.Adjust(AffinityCrop, "wheat", -2)
	assert.Nil(t, p.LikedCrops)
}

func TestHideAndMute(t *testing.T) {
	p := &FeedPreference{}

	assert.True(t, p.Hide("p1"))
	assert.False(t, p.Hide("p1"))
	assert.True(t, p.IsHidden("p1"))
	assert.True(t, p.Unhide("p1"))
	assert.False(t, p.Unhide("p1"))
	assert.False(t, p.IsHidden("p1"))

	assert.True(t, p.Mute("u2"))
	assert.False(t, p.Mute("u2"))
	assert.True(t, p.IsMuted("u2"))
	assert.True(t, p.Unmute("u2"))
	assert.False(t, p.IsMuted("u2"))
}
