package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lazypower/newswire/internal/classify"
	"github.com/lazypower/newswire/internal/config"
	"github.com/lazypower/newswire/internal/delivery"
	"github.com/lazypower/newswire/internal/llm"
	"github.com/lazypower/newswire/internal/source"
	"github.com/lazypower/newswire/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testTable() classify.Table {
	return classify.Table{
		{Name: "Sports", Keywords: []string{"cricket", "t20", "world cup", "match"}},
		{Name: "National", Keywords: []string{"india"}},
		{Name: "Politics", Keywords: []string{"election", "minister"}},
	}
}

func testTagTable() classify.Table {
	return classify.Table{
		{Name: "Sports", Keywords: []string{"world cup", "ipl"}},
	}
}

type testEnv struct {
	db       *store.DB
	engine   *Engine
	recorder *delivery.Recorder
}

func newTestEnv(t *testing.T, client llm.Client) *testEnv {
	t.Helper()
	db := testDB(t)
	cfg := config.Default()
	cfg.Notify.Enabled = true
	cfg.Notify.BatchesPerSec = 0
	rec := &delivery.Recorder{}
	e := New(Deps{
		Store:    db,
		Table:    testTable(),
		AutoTags: testTagTable(),
		LLM:      client,
		Sender:   rec,
	}, &cfg)
	return &testEnv{db: db, engine: e, recorder: rec}
}

func manual(url, title string, tags ...any) *source.ManualEntry {
	return &source.ManualEntry{URL: url, Title: title, Tags: tags}
}

func TestNewDefaults(t *testing.T) {
	db := testDB(t)
	cfg := config.Default()
	cfg.Notify.Enabled = false
	e := New(Deps{Store: db}, &cfg)
	if e.Targeter != nil {
		t.Error("targeter should be nil when notifications are disabled")
	}
	if e.Pipeline.Targeter != nil {
		t.Error("pipeline should not carry a targeter when notifications are disabled")
	}
	if len(e.Classifier.Categories()) == 0 {
		t.Error("default table should have categories")
	}
}

func TestIngestClassifies(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	it, created, err := env.engine.Pipeline.Ingest(ctx, manual("https://news.example/t20", "India wins T20 World Cup match"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !created {
		t.Fatal("expected created")
	}
	if it.ID == 0 {
		t.Fatal("expected id to be set")
	}
	if it.TopCategory != "Sports" {
		t.Errorf("top = %q, want Sports", it.TopCategory)
	}
	want := map[string]bool{"Sports": true, "National": true}
	if len(it.Categories) != 2 || !want[it.Categories[0]] || !want[it.Categories[1]] {
		t.Errorf("categories = %v, want Sports and National", it.Categories)
	}
	if it.Lang != "en" {
		t.Errorf("lang = %q, want en", it.Lang)
	}
	if it.PublishedAt == 0 {
		t.Error("published_at should default to now")
	}

	got, err := env.db.GetItem(ctx, it.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.TopCategory != "Sports" {
		t.Errorf("stored top = %q", got.TopCategory)
	}
}

func TestIngestDuplicateReturnsExisting(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, created, err := env.engine.Pipeline.Ingest(ctx, manual("https://news.example/a", "Election results announced", "Vote"))
	if err != nil || !created {
		t.Fatalf("first Ingest: created=%v err=%v", created, err)
	}

	second, created, err := env.engine.Pipeline.Ingest(ctx, manual("http://www.news.example/a/", "A different headline", "Other"))
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if created {
		t.Fatal("duplicate should not be created")
	}
	if second.ID != first.ID {
		t.Errorf("duplicate id = %d, want %d", second.ID, first.ID)
	}
	if second.Title != "Election results announced" {
		t.Errorf("existing item changed: title = %q", second.Title)
	}

	n, err := env.db.CountItems(ctx)
	if err != nil {
		t.Fatalf("CountItems: %v", err)
	}
	if n != 1 {
		t.Errorf("items = %d, want 1", n)
	}
	if tag, _ := env.db.GetTagByName(ctx, "other"); tag != nil {
		t.Error("duplicate ingest should not create tags")
	}
}

func TestIngestConcurrentSameIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[int64]bool)
		creates int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			it, created, err := env.engine.Pipeline.Ingest(ctx, manual("https://news.example/same", "Minister resigns"))
			if err != nil {
				t.Errorf("Ingest: %v", err)
				return
			}
			mu.Lock()
			ids[it.ID] = true
			if created {
				creates++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if creates != 1 {
		t.Errorf("creates = %d, want 1", creates)
	}
	if len(ids) != 1 {
		t.Errorf("distinct ids = %d, want 1", len(ids))
	}
}

func TestIngestRejects(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, _, err := env.engine.Pipeline.IngestCandidate(ctx, &source.Candidate{Item: &store.Item{
		URL: "https://a.example/x", ExternalID: "x:1", Title: "both", SourceKind: store.SourceManual,
	}})
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("err = %v, want ErrInvalidIdentity", err)
	}

	_, _, err = env.engine.Pipeline.IngestCandidate(ctx, &source.Candidate{Item: &store.Item{
		URL: "https://a.example/y", SourceKind: store.SourceManual,
	}})
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("err = %v, want ErrEmptyContent", err)
	}

	_, _, err = env.engine.Pipeline.Ingest(ctx, &source.ManualEntry{Title: "no identity"})
	if !errors.Is(err, source.ErrNoIdentity) {
		t.Errorf("err = %v, want ErrNoIdentity", err)
	}
}

func TestIngestSocialEnriched(t *testing.T) {
	client := &llm.MockClient{Response: &llm.Response{
		Content:  "```json\n{\"title\": \"Cricket final tonight\", \"summary\": \"India play the T20 final.\"}\n```",
		Provider: "mock",
	}}
	env := newTestEnv(t, client)
	ctx := context.Background()

	it, created, err := env.engine.Pipeline.Ingest(ctx, &source.SocialPost{
		Platform: "x", PostID: "99", Text: "india t20 final tonight, be there",
	})
	if err != nil || !created {
		t.Fatalf("Ingest: created=%v err=%v", created, err)
	}
	if it.Title != "Cricket final tonight" {
		t.Errorf("title = %q", it.Title)
	}
	if it.Summary != "India play the T20 final." {
		t.Errorf("summary = %q", it.Summary)
	}
	if it.ExternalID != "x:99" {
		t.Errorf("external id = %q", it.ExternalID)
	}
	if len(client.Calls()) != 1 {
		t.Errorf("llm calls = %d, want 1", len(client.Calls()))
	}
}

func TestIngestSocialFallbackWithoutLLM(t *testing.T) {
	env := newTestEnv(t, &llm.MockClient{Err: errors.New("provider down")})
	ctx := context.Background()

	text := "Heavy rain lashes the coast as the cricket match is called off after only six overs were bowled"
	it, created, err := env.engine.Pipeline.Ingest(ctx, &source.SocialPost{Platform: "x", PostID: "7", Text: text})
	if err != nil || !created {
		t.Fatalf("Ingest: created=%v err=%v", created, err)
	}
	if it.Title == "" || len([]rune(it.Title)) > fallbackTitle {
		t.Errorf("fallback title = %q", it.Title)
	}
	if it.Summary != text {
		t.Errorf("summary = %q, want original text", it.Summary)
	}
	if it.TopCategory != "Sports" {
		t.Errorf("top = %q, want Sports", it.TopCategory)
	}
}

func TestIngestDuplicateSkipsEnrichment(t *testing.T) {
	client := &llm.MockClient{Response: &llm.Response{Content: `{"title": "Rain stops play", "summary": "Match abandoned."}`}}
	env := newTestEnv(t, client)
	ctx := context.Background()

	post := func() *source.SocialPost {
		return &source.SocialPost{Platform: "x", PostID: "1", Text: "rain stops the cricket match"}
	}
	first, created, err := env.engine.Pipeline.Ingest(ctx, post())
	if err != nil || !created {
		t.Fatalf("Ingest: created=%v err=%v", created, err)
	}
	for i := 0; i < 3; i++ {
		it, created, err := env.engine.Pipeline.Ingest(ctx, post())
		if err != nil {
			t.Fatalf("duplicate Ingest: %v", err)
		}
		if created || it.ID != first.ID {
			t.Errorf("duplicate = (%d, %v), want existing %d", it.ID, created, first.ID)
		}
	}
	if n := len(client.Calls()); n != 1 {
		t.Errorf("llm calls = %d, want 1", n)
	}
}

func TestIngestTeluguLang(t *testing.T) {
	env := newTestEnv(t, nil)
	it, _, err := env.engine.Pipeline.Ingest(context.Background(), manual("https://te.example/1", "హైదరాబాద్ వార్తలు"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if it.Lang != "te" {
		t.Errorf("lang = %q, want te", it.Lang)
	}
	if it.TopCategory != classify.General {
		t.Errorf("top = %q, want %s", it.TopCategory, classify.General)
	}
}

func TestIngestMediaImageFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	it, _, err := env.engine.Pipeline.Ingest(context.Background(), &source.ManualEntry{
		URL:   "https://img.example/1",
		Title: "Photo story",
		Media: []store.Media{{URL: "https://cdn.example/1.jpg", Kind: "image"}},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if it.ImageURL != "https://cdn.example/1.jpg" {
		t.Errorf("image = %q", it.ImageURL)
	}
}

func TestIngestNotifiesSubscribers(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, d := range []*store.Device{
		{DeviceID: "d1", Token: "tok1", Categories: []string{"Sports"}},
		{DeviceID: "d2", Token: "tok2", Categories: []string{"Politics"}},
		{DeviceID: "d3", Token: "tok3", Categories: []string{"National", "Sports"}},
	} {
		if err := env.db.UpsertDevice(ctx, d); err != nil {
			t.Fatalf("UpsertDevice: %v", err)
		}
	}

	it, _, err := env.engine.Pipeline.Ingest(ctx, manual("https://n.example/1", "India wins T20 World Cup match"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	sent := env.recorder.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent = %d messages, want 2", len(sent))
	}
	for _, m := range sent {
		if m.DeviceID == "d2" {
			t.Error("politics subscriber should not be notified")
		}
		if m.Title != "[Sports] India wins T20 World Cup match" {
			t.Errorf("title = %q", m.Title)
		}
	}

	// The duplicate sends nothing.
	if _, _, err := env.engine.Pipeline.Ingest(ctx, manual(it.URL, "again")); err != nil {
		t.Fatalf("Ingest duplicate: %v", err)
	}
	if len(env.recorder.Sent()) != 2 {
		t.Error("duplicate ingest should not notify")
	}
}

func TestIngestHiddenItemNotNotified(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if err := env.db.UpsertDevice(ctx, &store.Device{DeviceID: "d1", Token: "t", Categories: []string{"Sports"}}); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	hidden := false
	_, _, err := env.engine.Pipeline.Ingest(ctx, &source.ManualEntry{
		URL: "https://n.example/draft", Title: "Cricket draft", Published: &hidden,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(env.recorder.Sent()) != 0 {
		t.Error("unpublished item should not be announced")
	}
}

func TestIngestAutoTagsAndRelates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	a, _, err := env.engine.Pipeline.Ingest(ctx, manual("https://n.example/a", "World Cup cricket squad named"))
	if err != nil {
		t.Fatalf("Ingest a: %v", err)
	}
	b, _, err := env.engine.Pipeline.Ingest(ctx, manual("https://n.example/b", "World Cup match preview"))
	if err != nil {
		t.Fatalf("Ingest b: %v", err)
	}

	if len(a.Tags) != 1 || a.Tags[0].Name != "world cup" {
		t.Fatalf("a tags = %v, want [world cup]", a.Tags)
	}
	got, err := env.db.GetItem(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if len(got.Related) != 1 || got.Related[0] != a.ID {
		t.Errorf("b related = %v, want [%d]", got.Related, a.ID)
	}
}

func TestUpdateReclassifies(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	it, _, err := env.engine.Pipeline.Ingest(ctx, manual("https://n.example/u", "Minister visits school", "Education"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if it.TopCategory != "Politics" {
		t.Fatalf("top = %q", it.TopCategory)
	}

	title := "Cricket match at the school"
	pin := 2
	updated, err := env.engine.Pipeline.Update(ctx, it.ID, Edit{
		Title:   &title,
		Tags:    []any{"Schools", "link:campus"},
		PinRank: &pin,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.TopCategory != "Sports" {
		t.Errorf("top = %q, want Sports", updated.TopCategory)
	}

	got, err := env.db.GetItem(ctx, it.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Title != title {
		t.Errorf("title = %q", got.Title)
	}
	if got.PinRank == nil || *got.PinRank != 2 {
		t.Errorf("pin = %v", got.PinRank)
	}
	names := make([]string, len(got.Tags))
	for i, tg := range got.Tags {
		names[i] = tg.Name
	}
	if len(names) != 2 || names[0] != "schools" || names[1] != "link:campus" {
		t.Errorf("tags = %v", names)
	}

	if _, err := env.engine.Pipeline.Update(ctx, 9999, Edit{Title: &title}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("update missing: err = %v, want ErrNotFound", err)
	}
	empty := "  "
	if _, err := env.engine.Pipeline.Update(ctx, it.ID, Edit{Title: &empty}); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("update blank title: err = %v, want ErrEmptyContent", err)
	}
}

func TestBackfill(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	it, _, err := env.engine.Pipeline.Ingest(ctx, manual("https://n.example/bf", "Election day"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := env.db.UpdateCategories(ctx, it.ID, []string{"Stale"}, "Stale"); err != nil {
		t.Fatalf("UpdateCategories: %v", err)
	}

	changed, err := env.engine.Pipeline.Backfill(ctx)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if changed != 1 {
		t.Errorf("changed = %d, want 1", changed)
	}
	got, _ := env.db.GetItem(ctx, it.ID)
	if got.TopCategory != "Politics" {
		t.Errorf("top = %q, want Politics", got.TopCategory)
	}

	changed, err = env.engine.Pipeline.Backfill(ctx)
	if err != nil {
		t.Fatalf("Backfill again: %v", err)
	}
	if changed != 0 {
		t.Errorf("second backfill changed = %d, want 0", changed)
	}
}

func TestPipelineClock(t *testing.T) {
	env := newTestEnv(t, nil)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	env.engine.Pipeline.now = func() time.Time { return fixed }

	it, _, err := env.engine.Pipeline.Ingest(context.Background(), manual("https://n.example/clock", "Clocked"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if it.PublishedAt != fixed.UnixMilli() {
		t.Errorf("published_at = %d, want %d", it.PublishedAt, fixed.UnixMilli())
	}
}
