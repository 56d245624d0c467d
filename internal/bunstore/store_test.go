package bunstore

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-content-cache/cache"
	"github.com/goliatone/go-content-cache/contentcache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return store
}

func seedArticle(t *testing.T, store *Store, slug, title, category string, published time.Time) contentcache.Record {
	t.Helper()

	rec, err := store.Mutate(context.Background(), contentcache.EntityArticles, contentcache.MutationRequest{
		Op: contentcache.OpCreate,
		Record: contentcache.Record{
			Slug:        slug,
			Title:       title,
			Summary:     "summary of " + title,
			Category:    category,
			PublishedAt: published,
		},
	})
	if err != nil {
		t.Fatalf("seed %s: %v", slug, err)
	}
	return *rec
}

func TestQueryPaginationAndOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedArticle(t, store, "post-"+string(rune('a'+i)), "Post "+string(rune('A'+i)), "news", base.Add(time.Duration(i)*time.Hour))
	}

	records, total, err := store.Query(ctx, contentcache.EntityArticles, 1, 2, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if len(records) != 2 {
		t.Fatalf("page size = %d, want 2", len(records))
	}
	// Newest first.
	if records[0].Slug != "post-e" || records[1].Slug != "post-d" {
		t.Fatalf("unexpected first page order: %s, %s", records[0].Slug, records[1].Slug)
	}

	records, _, err = store.Query(ctx, contentcache.EntityArticles, 3, 2, nil)
	if err != nil {
		t.Fatalf("Query page 3: %v", err)
	}
	if len(records) != 1 || records[0].Slug != "post-a" {
		t.Fatalf("unexpected last page: %+v", records)
	}

	// pageSize <= 0 returns everything.
	records, total, err = store.Query(ctx, contentcache.EntityArticles, 1, 0, nil)
	if err != nil {
		t.Fatalf("unpaginated Query: %v", err)
	}
	if len(records) != 5 || total != 5 {
		t.Fatalf("unpaginated = %d rows total %d, want 5/5", len(records), total)
	}
}

func TestQueryFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	seedArticle(t, store, "go-routines", "Concurrency in Go", "engineering", now)
	seedArticle(t, store, "team-offsite", "Team Offsite Recap", "culture", now.Add(time.Hour))

	records, total, err := store.Query(ctx, contentcache.EntityArticles, 1, 10, cache.Filters{"category": "engineering"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 1 || len(records) != 1 || records[0].Slug != "go-routines" {
		t.Fatalf("category filter returned %+v (total %d)", records, total)
	}

	records, _, err = store.Query(ctx, contentcache.EntityArticles, 1, 10, cache.Filters{"q": "concurrency"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 1 || records[0].Slug != "go-routines" {
		t.Fatalf("search filter returned %+v", records)
	}
}

func TestQueryEntityIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedArticle(t, store, "only-article", "Only Article", "news", time.Now().UTC())

	records, total, err := store.Query(ctx, contentcache.EntityCourses, 1, 10, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 0 || total != 0 {
		t.Fatalf("courses query leaked article rows: %+v", records)
	}
}

func TestQueryOneByIDAndSlug(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seeded := seedArticle(t, store, "lookup-me", "Lookup Me", "news", time.Now().UTC())

	byID, err := store.QueryOne(ctx, contentcache.EntityArticles, seeded.ID)
	if err != nil {
		t.Fatalf("QueryOne by id: %v", err)
	}
	if byID == nil || byID.Slug != "lookup-me" {
		t.Fatalf("lookup by id returned %+v", byID)
	}

	bySlug, err := store.QueryOne(ctx, contentcache.EntityArticles, "lookup-me")
	if err != nil {
		t.Fatalf("QueryOne by slug: %v", err)
	}
	if bySlug == nil || bySlug.ID != seeded.ID {
		t.Fatalf("lookup by slug returned %+v", bySlug)
	}

	missing, err := store.QueryOne(ctx, contentcache.EntityArticles, "no-such-ref")
	if err != nil {
		t.Fatalf("QueryOne absent: %v", err)
	}
	if missing != nil {
		t.Fatalf("absent lookup returned %+v", missing)
	}
}

func TestMutateLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := seedArticle(t, store, "lifecycle", "Lifecycle", "news", time.Now().UTC())
	if created.ID == "" {
		t.Fatal("create did not assign an id")
	}

	created.Title = "Lifecycle, Revised"
	created.Slug = "lifecycle-revised"
	updated, err := store.Mutate(ctx, contentcache.EntityArticles, contentcache.MutationRequest{
		Op:     contentcache.OpUpdate,
		Record: created,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Lifecycle, Revised" {
		t.Fatalf("update result: %+v", updated)
	}

	got, err := store.QueryOne(ctx, contentcache.EntityArticles, "lifecycle-revised")
	if err != nil || got == nil {
		t.Fatalf("lookup after rename: rec=%v err=%v", got, err)
	}
	if old, _ := store.QueryOne(ctx, contentcache.EntityArticles, "lifecycle"); old != nil {
		t.Fatalf("old slug still resolves: %+v", old)
	}

	if _, err := store.Mutate(ctx, contentcache.EntityArticles, contentcache.MutationRequest{
		Op:     contentcache.OpDelete,
		Record: *updated,
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gone, _ := store.QueryOne(ctx, contentcache.EntityArticles, updated.ID); gone != nil {
		t.Fatalf("deleted record still resolves: %+v", gone)
	}
}

func TestUpdateMissingRecordFails(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Mutate(context.Background(), contentcache.EntityArticles, contentcache.MutationRequest{
		Op:     contentcache.OpUpdate,
		Record: contentcache.Record{ID: "ghost", Slug: "ghost"},
	})
	if err == nil {
		t.Fatal("expected update of missing record to fail")
	}
}
