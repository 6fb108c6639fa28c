package source

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/newswire/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/a/b", "https://example.com/a/b"},
		{"http://example.com/a/b", "https://example.com/a/b"},
		{"https://www.example.com/a/", "https://example.com/a"},
		{"HTTP://WWW.Example.COM/story/", "https://example.com/story"},
		{"example.com/x", "https://example.com/x"},
		{"https://example.com/a?id=3#comments", "https://example.com/a?id=3"},
		{"  https://example.com/  ", "https://example.com"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeURLRejects(t *testing.T) {
	_, err := NormalizeURL("")
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = NormalizeURL("https://")
	assert.Error(t, err)
}

func TestNormalizeURLVariantsCollapse(t *testing.T) {
	variants := []string{
		"http://www.news.example/politics/budget-2025/",
		"https://news.example/politics/budget-2025",
		"https://www.news.example/politics/budget-2025",
	}
	var first string
	for i, v := range variants {
		got, err := NormalizeURL(v)
		require.NoError(t, err)
		if i == 0 {
			first = got
			continue
		}
		assert.Equal(t, first, got)
	}
}

func TestStripTags(t *testing.T) {
	in := `<p>First &amp; foremost</p><p>Second   <b>line</b></p>`
	got := StripTags(in)
	assert.Equal(t, "First & foremost\n\nSecond line", got)
}

func TestCleanHTMLPlainText(t *testing.T) {
	assert.Equal(t, "Tom & Jerry", CleanHTML("Tom &amp; Jerry", nil))
	assert.Equal(t, "", CleanHTML("   ", nil))
}

func TestCleanHTMLRemovesMarkup(t *testing.T) {
	in := `<div><p>The council approved the new budget on Tuesday.</p><p>Spending rises in health.</p></div>`
	got := CleanHTML(in, nil)
	assert.NotContains(t, got, "<")
	assert.Contains(t, got, "council approved")
}

func TestFeedEntryBuild(t *testing.T) {
	pub := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	e := &FeedEntry{
		Link:        "http://www.daily.example/sports/final/",
		Title:       "  India win the final &amp; the series ",
		Description: `<p>Match report.</p><img src="https://cdn.daily.example/final.jpg">`,
		PubDate:     pub,
		SourceName:  "Daily",
		Categories:  []string{"Cricket", "Finals"},
	}
	assert.Equal(t, store.SourceFeed, e.Kind())

	c, err := e.Build(context.Background())
	require.NoError(t, err)
	it := c.Item
	assert.Equal(t, "https://daily.example/sports/final", it.URL)
	assert.Empty(t, it.ExternalID)
	assert.Equal(t, "India win the final & the series", it.Title)
	assert.Contains(t, it.Summary, "Match report.")
	assert.Equal(t, "https://cdn.daily.example/final.jpg", it.ImageURL)
	assert.Equal(t, []store.Media{{URL: "https://cdn.daily.example/final.jpg", Kind: "image"}}, it.Media)
	assert.Equal(t, pub.UnixMilli(), it.PublishedAt)
	assert.Equal(t, "Daily", it.Source)
	assert.True(t, it.Published)
	assert.Equal(t, []any{"Cricket", "Finals"}, c.Tags)
}

func TestFeedEntryEnclosurePreferred(t *testing.T) {
	e := &FeedEntry{
		Link:          "https://a.example/x",
		Title:         "t",
		Description:   `<img src="https://a.example/inline.png">`,
		EnclosureURL:  "https://a.example/enclosure.jpg",
		EnclosureType: "image/jpeg",
	}
	c, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/enclosure.jpg", c.Item.ImageURL)

	e.EnclosureType = "audio/mpeg"
	c, err = e.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/inline.png", c.Item.ImageURL)
}

func TestFeedEntryNoLink(t *testing.T) {
	_, err := (&FeedEntry{Title: "orphan"}).Build(context.Background())
	assert.True(t, errors.Is(err, ErrNoIdentity))
}

func TestSocialPostBuild(t *testing.T) {
	created := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)
	p := &SocialPost{
		Platform:  "X",
		PostID:    "1789",
		Author:    "@district_news",
		Text:      "  Heavy rain warning for the coast tonight.  ",
		Media:     []store.Media{{URL: ""}, {URL: "https://img.example/r.jpg", Kind: "image"}},
		CreatedAt: created,
	}
	assert.Equal(t, store.SourceSocial, p.Kind())

	c, err := p.Build(context.Background())
	require.NoError(t, err)
	it := c.Item
	assert.Equal(t, "x:1789", it.ExternalID)
	assert.Empty(t, it.URL)
	assert.Empty(t, it.Title, "title is left for enrichment")
	assert.Equal(t, "Heavy rain warning for the coast tonight.", it.Summary)
	assert.Len(t, it.Media, 1)
	assert.Equal(t, created.UnixMilli(), it.PublishedAt)
	assert.Nil(t, c.Tags)
}

func TestSocialPostNoID(t *testing.T) {
	_, err := (&SocialPost{Platform: "x", Text: "hi"}).Build(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestManualEntryBuild(t *testing.T) {
	pin := 1
	hidden := false
	m := &ManualEntry{
		URL:       "http://www.city.example/notice/",
		Title:     " Water supply cut on Friday ",
		Summary:   "Repairs in ward 4.",
		Tags:      []any{"Water", "link:ward4"},
		PinRank:   &pin,
		Published: &hidden,
	}
	assert.Equal(t, store.SourceManual, m.Kind())

	c, err := m.Build(context.Background())
	require.NoError(t, err)
	it := c.Item
	assert.Equal(t, "https://city.example/notice", it.URL)
	assert.Equal(t, "Water supply cut on Friday", it.Title)
	assert.False(t, it.Published)
	require.NotNil(t, it.PinRank)
	assert.Equal(t, 1, *it.PinRank)
	assert.Equal(t, []any{"Water", "link:ward4"}, c.Tags)
	assert.Zero(t, it.PublishedAt)
}

func TestManualEntryIdentity(t *testing.T) {
	c, err := (&ManualEntry{ExternalID: "desk-42", Title: "t"}).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "desk-42", c.Item.ExternalID)
	assert.True(t, c.Item.Published)

	_, err = (&ManualEntry{Title: "no identity"}).Build(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = (&ManualEntry{URL: "   ", Title: strings.Repeat("x", 3)}).Build(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)
}
