package engine

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/lazypower/newswire/internal/store"
)

// seedItem stores an item with the given tag names, bypassing the pipeline.
func seedItem(t *testing.T, db *store.DB, url string, publishedAt int64, tags ...string) *store.Item {
	t.Helper()
	ctx := context.Background()
	it := &store.Item{
		URL:         url,
		Title:       "item " + url,
		SourceKind:  store.SourceManual,
		PublishedAt: publishedAt,
		Categories:  []string{"General"},
		TopCategory: "General",
		Published:   true,
	}
	if len(tags) > 0 {
		raw := make([]any, len(tags))
		for i, name := range tags {
			raw[i] = name
		}
		resolved, err := ResolveTags(ctx, db, raw)
		if err != nil {
			t.Fatalf("ResolveTags: %v", err)
		}
		it.Tags = resolved
	}
	if _, created, err := db.InsertItemIfAbsent(ctx, it); err != nil || !created {
		t.Fatalf("InsertItemIfAbsent(%s): created=%v err=%v", url, created, err)
	}
	return it
}

func related(t *testing.T, db *store.DB, id int64) []int64 {
	t.Helper()
	it, err := db.GetItem(context.Background(), id)
	if err != nil || it == nil {
		t.Fatalf("GetItem(%d): %v", id, err)
	}
	return it.Related
}

func TestLinkAdjacencyNotTransitive(t *testing.T) {
	pool := []*store.Item{
		{ID: 1, Tags: []store.Tag{{ID: 10, Name: "link:x"}}},
		{ID: 2, Tags: []store.Tag{{ID: 10, Name: "link:x"}, {ID: 11, Name: "link:y"}}},
		{ID: 3, Tags: []store.Tag{{ID: 11, Name: "link:y"}, {ID: 12, Name: "cricket"}}},
	}
	adj := LinkAdjacency(pool)

	want := map[int64][]int64{
		1: {2},
		2: {1, 3},
		3: {2},
	}
	for id, w := range want {
		if !slices.Equal(adj[id], w) {
			t.Errorf("related[%d] = %v, want %v", id, adj[id], w)
		}
	}
}

func TestLinkAdjacencyIgnoresOrdinaryTags(t *testing.T) {
	pool := []*store.Item{
		{ID: 1, Tags: []store.Tag{{ID: 10, Name: "link:x"}, {ID: 20, Name: "cricket"}}},
		{ID: 2, Tags: []store.Tag{{ID: 20, Name: "cricket"}}},
	}
	adj := LinkAdjacency(pool)
	if len(adj[1]) != 0 || len(adj[2]) != 0 {
		t.Errorf("adjacency = %v, want no links", adj)
	}
}

func TestRecomputeLinkPool(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	l := NewLinker(db, db, nil, 3)

	now := time.Now().UnixMilli()
	a := seedItem(t, db, "https://a", now, "link:x")
	b := seedItem(t, db, "https://b", now, "link:x", "link:y")
	c := seedItem(t, db, "https://c", now, "link:y")
	d := seedItem(t, db, "https://d", now, "cricket")

	if err := l.Recompute(ctx, b.ID); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	if got := related(t, db, a.ID); !slices.Equal(got, []int64{b.ID}) {
		t.Errorf("a related = %v, want [%d]", got, b.ID)
	}
	// Pool order is most recent first, then highest id.
	if got := related(t, db, b.ID); !slices.Equal(got, []int64{c.ID, a.ID}) {
		t.Errorf("b related = %v, want [%d %d]", got, c.ID, a.ID)
	}
	if got := related(t, db, c.ID); !slices.Equal(got, []int64{b.ID}) {
		t.Errorf("c related = %v, want [%d]", got, b.ID)
	}
	if got := related(t, db, d.ID); len(got) != 0 {
		t.Errorf("d related = %v, want none", got)
	}
}

// failingRelated fails SetRelated for one item and passes the rest through.
type failingRelated struct {
	*store.DB
	failID int64
}

var errVanished = errors.New("vanished")

func (f *failingRelated) SetRelated(ctx context.Context, itemID int64, related []int64) error {
	if itemID == f.failID {
		return errVanished
	}
	return f.DB.SetRelated(ctx, itemID, related)
}

func TestRecomputeLinkPoolMemberFailure(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	a := seedItem(t, db, "https://a", now-2000, "link:x")
	b := seedItem(t, db, "https://b", now-1000, "link:x")
	c := seedItem(t, db, "https://c", now, "link:x")

	l := NewLinker(&failingRelated{DB: db, failID: b.ID}, db, nil, 3)
	err := l.Recompute(ctx, a.ID)
	if !errors.Is(err, errVanished) {
		t.Fatalf("Recompute err = %v, want the member failure", err)
	}

	if got := related(t, db, a.ID); !slices.Equal(got, []int64{c.ID, b.ID}) {
		t.Errorf("a related = %v, want [%d %d]", got, c.ID, b.ID)
	}
	if got := related(t, db, c.ID); !slices.Equal(got, []int64{b.ID, a.ID}) {
		t.Errorf("c related = %v, want [%d %d]", got, b.ID, a.ID)
	}
	if got := related(t, db, b.ID); len(got) != 0 {
		t.Errorf("b related = %v, want unchanged", got)
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	l := NewLinker(db, db, nil, 3)

	now := time.Now().UnixMilli()
	a := seedItem(t, db, "https://a", now, "link:x")
	b := seedItem(t, db, "https://b", now, "link:x")
	o1 := seedItem(t, db, "https://o1", now-3000, "ipl")
	o2 := seedItem(t, db, "https://o2", now-2000, "ipl")
	o3 := seedItem(t, db, "https://o3", now-1000, "ipl")

	for _, id := range []int64{a.ID, o3.ID} {
		if err := l.Recompute(ctx, id); err != nil {
			t.Fatalf("Recompute(%d): %v", id, err)
		}
		first := related(t, db, id)
		if err := l.Recompute(ctx, id); err != nil {
			t.Fatalf("Recompute(%d) again: %v", id, err)
		}
		second := related(t, db, id)
		if !slices.Equal(first, second) {
			t.Errorf("item %d: related changed between runs: %v then %v", id, first, second)
		}
	}

	if got := related(t, db, a.ID); !slices.Equal(got, []int64{b.ID}) {
		t.Errorf("a related = %v", got)
	}
	if got := related(t, db, o3.ID); !slices.Equal(got, []int64{o2.ID, o1.ID}) {
		t.Errorf("o3 related = %v, want most recent first [%d %d]", got, o2.ID, o1.ID)
	}
}

func TestRecomputeOrdinaryLimit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	l := NewLinker(db, db, nil, 2)

	now := time.Now().UnixMilli()
	var older []*store.Item
	for i, url := range []string{"https://1", "https://2", "https://3", "https://4"} {
		older = append(older, seedItem(t, db, url, now-int64(10-i)*1000, "budget"))
	}
	target := seedItem(t, db, "https://t", now, "budget")

	if err := l.Recompute(ctx, target.ID); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	got := related(t, db, target.ID)
	want := []int64{older[3].ID, older[2].ID}
	if !slices.Equal(got, want) {
		t.Errorf("related = %v, want %v", got, want)
	}
}

func TestRecomputeNoTagsClears(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	l := NewLinker(db, db, nil, 3)

	it := seedItem(t, db, "https://lonely", time.Now().UnixMilli())
	if err := db.SetRelated(ctx, it.ID, []int64{99}); err != nil {
		t.Fatalf("SetRelated: %v", err)
	}
	if err := l.Recompute(ctx, it.ID); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if got := related(t, db, it.ID); len(got) != 0 {
		t.Errorf("related = %v, want empty", got)
	}
}

func TestRecomputeMissingItem(t *testing.T) {
	db := testDB(t)
	l := NewLinker(db, db, nil, 3)
	if err := l.Recompute(context.Background(), 12345); err == nil {
		t.Error("expected error for missing item")
	}
}

func TestAutoTag(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	l := NewLinker(db, db, testTagTable(), 3)

	it := seedItem(t, db, "https://wc", time.Now().UnixMilli(), "cricket")
	it.Title = "World Cup squad named"
	it.TopCategory = "Sports"

	added, err := l.AutoTag(ctx, it)
	if err != nil {
		t.Fatalf("AutoTag: %v", err)
	}
	if !added {
		t.Fatal("expected a tag to be added")
	}
	got, _ := db.GetItem(ctx, it.ID)
	names := make([]string, len(got.Tags))
	for i, tg := range got.Tags {
		names[i] = tg.Name
	}
	if !slices.Equal(names, []string{"cricket", "world cup"}) {
		t.Errorf("tags = %v, want [cricket world cup]", names)
	}

	added, err = l.AutoTag(ctx, it)
	if err != nil {
		t.Fatalf("AutoTag again: %v", err)
	}
	if added {
		t.Error("second AutoTag should add nothing")
	}

	other := &store.Item{ID: it.ID, Title: "World Cup", TopCategory: "Politics"}
	if added, _ := l.AutoTag(ctx, other); added {
		t.Error("categories without phrases should add nothing")
	}
}
