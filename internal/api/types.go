// Package api holds the JSON shapes shared by the HTTP server and its
// client.
package api

import (
	"time"

	"github.com/lazypower/newswire/internal/store"
)

// Item is the wire form of a stored item.
type Item struct {
	ID          int64         `json:"id"`
	URL         string        `json:"url,omitempty"`
	ExternalID  string        `json:"external_id,omitempty"`
	Title       string        `json:"title"`
	Summary     string        `json:"summary,omitempty"`
	Body        string        `json:"body,omitempty"`
	ImageURL    string        `json:"image_url,omitempty"`
	Media       []store.Media `json:"media,omitempty"`
	Source      string        `json:"source,omitempty"`
	SourceKind  string        `json:"source_kind"`
	PublishedAt time.Time     `json:"published_at"`
	Lang        string        `json:"lang"`
	Categories  []string      `json:"categories"`
	TopCategory string        `json:"top_category"`
	Tags        []string      `json:"tags"`
	Related     []Related     `json:"related,omitempty"`
	Published   bool          `json:"published"`
	PinRank     *int          `json:"pin_rank,omitempty"`
}

// Related is a compact reference to a related item.
type Related struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// FromItem converts a stored item. Related references are filled in by
// the caller since they need a second lookup.
func FromItem(it *store.Item) Item {
	tags := make([]string, len(it.Tags))
	for i, t := range it.Tags {
		tags[i] = t.Name
	}
	cats := it.Categories
	if cats == nil {
		cats = []string{}
	}
	return Item{
		ID:          it.ID,
		URL:         it.URL,
		ExternalID:  it.ExternalID,
		Title:       it.Title,
		Summary:     it.Summary,
		Body:        it.Body,
		ImageURL:    it.ImageURL,
		Media:       it.Media,
		Source:      it.Source,
		SourceKind:  string(it.SourceKind),
		PublishedAt: it.PublishedTime().UTC(),
		Lang:        it.Lang,
		Categories:  cats,
		TopCategory: it.TopCategory,
		Tags:        tags,
		Published:   it.Published,
		PinRank:     it.PinRank,
	}
}

// IngestResponse is returned by POST /api/items.
type IngestResponse struct {
	Created bool `json:"created"`
	Item    Item `json:"item"`
}

// ItemList is returned by GET /api/items.
type ItemList struct {
	Items      []Item `json:"items"`
	NextCursor int64  `json:"next_cursor,omitempty"` // pass as ?cursor= for the next page
}

// EditRequest changes an item. Absent fields are left alone; a null
// pin_rank together with clear_pin removes the pin.
type EditRequest struct {
	Title     *string `json:"title,omitempty"`
	Summary   *string `json:"summary,omitempty"`
	Body      *string `json:"body,omitempty"`
	ImageURL  *string `json:"image_url,omitempty" validate:"omitempty,url"`
	Tags      []any   `json:"tags,omitempty"`
	Published *bool   `json:"published,omitempty"`
	PinRank   *int    `json:"pin_rank,omitempty" validate:"omitempty,min=0"`
	ClearPin  bool    `json:"clear_pin,omitempty"`
}

// DeviceRequest registers a device or refreshes its token and
// subscriptions.
type DeviceRequest struct {
	DeviceID   string   `json:"device_id" validate:"required,max=128"`
	Token      string   `json:"token" validate:"required"`
	Categories []string `json:"categories" validate:"dive,required"`
}

// Device is the wire form of a registered device.
type Device struct {
	DeviceID          string             `json:"device_id"`
	Categories        []string           `json:"categories"`
	Interest          map[string]float64 `json:"interest,omitempty"`
	InterestUpdatedAt *time.Time         `json:"interest_updated_at,omitempty"`
}

// FromDevice converts a stored device. The token is never echoed.
func FromDevice(d *store.Device) Device {
	out := Device{
		DeviceID:   d.DeviceID,
		Categories: d.Categories,
		Interest:   d.Interest,
	}
	if out.Categories == nil {
		out.Categories = []string{}
	}
	if d.InterestUpdatedAt != nil {
		t := time.UnixMilli(*d.InterestUpdatedAt).UTC()
		out.InterestUpdatedAt = &t
	}
	return out
}

// EventRequest records an interaction.
type EventRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	Kind     string `json:"kind" validate:"required,oneof=viewed favorited shared"`
	DwellMS  *int64 `json:"dwell_ms,omitempty" validate:"omitempty,min=0"`
}

// FeedEntry is one ranked feed item with its score breakdown.
type FeedEntry struct {
	Item      Item    `json:"item"`
	Score     float64 `json:"score"`
	Personal  float64 `json:"personal"`
	Freshness float64 `json:"freshness"`
}

// Tag is one entry of GET /api/tags.
type Tag struct {
	Name  string `json:"name"`
	Items int    `json:"items"`
	Link  bool   `json:"link,omitempty"`
}

// TagItems is returned by GET /api/tags/{name}.
type TagItems struct {
	Tag   Tag    `json:"tag"`
	Items []Item `json:"items"`
}

// Feed is returned by GET /api/feed.
type Feed struct {
	DeviceID     string      `json:"device_id"`
	Personalized bool        `json:"personalized"`
	Items        []FeedEntry `json:"items"`
}

// TaskResponse acknowledges a queued maintenance task.
type TaskResponse struct {
	Task   string `json:"task"`
	Status string `json:"status"`
}

// Health is returned by GET /api/health.
type Health struct {
	Status  string  `json:"status"`
	Version string  `json:"version"`
	Uptime  float64 `json:"uptime"`
	DB      bool    `json:"db"`
	Items   int     `json:"items"`
	Task    string  `json:"task,omitempty"` // maintenance task running now
}

// Error is the body of every non-2xx response.
type Error struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
