package contentcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/goliatone/go-content-cache/cache"
)

// recordingStore captures Invalidate calls so tests can assert the exact tag
// sets the dispatcher resolves.
type recordingStore struct {
	mu          sync.Mutex
	invalidated [][]string
	failWith    error
}

func (r *recordingStore) Put(ctx context.Context, key string, value []byte, tags []string, policy cache.TTLPolicy) error {
	return nil
}

func (r *recordingStore) Get(ctx context.Context, key string) (cache.Lookup, error) {
	return cache.Lookup{Freshness: cache.Expired}, nil
}

func (r *recordingStore) Invalidate(ctx context.Context, tags ...string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return 0, r.failWith
	}
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	r.invalidated = append(r.invalidated, sorted)
	return len(tags), nil
}

func (r *recordingStore) lastTags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.invalidated) == 0 {
		return nil
	}
	return r.invalidated[len(r.invalidated)-1]
}

func TestDispatcher_TagResolution(t *testing.T) {
	tests := []struct {
		name     string
		mutation Mutation
		want     []string
	}{
		{
			name:     "create purges coarse and structural aggregates",
			mutation: Mutation{Entity: EntityArticles, Op: OpCreate, ID: "a1", Slug: "intro"},
			want:     []string{"articles", "articles-initial", "articles-slugs", "articles-stats"},
		},
		{
			name:     "update purges coarse and detail tags",
			mutation: Mutation{Entity: EntityArticles, Op: OpUpdate, ID: "a1", Slug: "intro"},
			want:     []string{"articles", "articles-a1", "articles-intro"},
		},
		{
			name:     "rename purges old and new addresses plus slugs",
			mutation: Mutation{Entity: EntityArticles, Op: OpUpdate, ID: "a1", Slug: "new-intro", RenamedFrom: "intro"},
			want:     []string{"articles", "articles-a1", "articles-intro", "articles-new-intro", "articles-slugs"},
		},
		{
			name:     "delete purges detail views and aggregates",
			mutation: Mutation{Entity: EntityCourses, Op: OpDelete, ID: "c9", Slug: "go-101"},
			want:     []string{"courses", "courses-c9", "courses-go-101", "courses-slugs", "courses-stats"},
		},
		{
			name:     "slug equal to id is not doubled",
			mutation: Mutation{Entity: EntityCommunity, Op: OpUpdate, ID: "p7", Slug: "p7"},
			want:     []string{"community", "community-p7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			d := NewDispatcher(store, nil)

			if err := d.OnMutated(context.Background(), tt.mutation); err != nil {
				t.Fatalf("OnMutated failed: %v", err)
			}

			got := store.lastTags()
			if len(got) != len(tt.want) {
				t.Fatalf("purged tags = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("purged tags = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestDispatcher_FailureIsBestEffort(t *testing.T) {
	store := &recordingStore{failWith: errors.New("index unavailable")}
	d := NewDispatcher(store, nil)

	err := d.OnMutated(context.Background(), Mutation{Entity: EntityArticles, Op: OpUpdate, ID: "a1"})
	if err == nil {
		t.Fatal("expected the purge failure to surface for out-of-band retry")
	}
}

func TestWriter_DispatchFailureDoesNotUnwindWrite(t *testing.T) {
	source := newMockContentStore()
	store := &recordingStore{failWith: errors.New("index unavailable")}
	w := NewWriter(source, NewDispatcher(store, nil), nil)

	created, err := w.Create(context.Background(), EntityArticles, articleRecord("a1", "intro", "Intro", "go"))
	if err != nil {
		t.Fatalf("Create must succeed despite purge failure: %v", err)
	}
	if created.ID != "a1" {
		t.Errorf("unexpected created record: %+v", created)
	}

	// The record is committed in the source.
	rec, err := source.QueryOne(context.Background(), EntityArticles, "a1")
	if err != nil || rec == nil {
		t.Errorf("committed write missing from source: %v, %v", rec, err)
	}
}

func TestWriter_UpdatePrevLookupFailureIsLogged(t *testing.T) {
	source := newMockContentStore()
	source.seed(EntityArticles, articleRecord("a1", "old-slug", "Intro", "go"))
	source.queryOneErr = errors.New("store down")
	store := &recordingStore{}
	logger, hook := logtest.NewNullLogger()
	w := NewWriter(source, NewDispatcher(store, nil), logger)

	renamed := articleRecord("a1", "new-slug", "Intro", "go")
	if _, err := w.Update(context.Background(), EntityArticles, renamed); err != nil {
		t.Fatalf("Update must succeed despite lookup failure: %v", err)
	}

	// Without the previous slug the rename goes undetected, so only the
	// coarse and detail tags are purged.
	got := store.lastTags()
	want := []string{"articles", "articles-a1", "articles-new-slug"}
	if len(got) != len(want) {
		t.Fatalf("purged tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("purged tags = %v, want %v", got, want)
			break
		}
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	if !warned {
		t.Error("expected the failed lookup to be logged at warn level")
	}
}

func TestWriter_DeletePrevLookupFailureIsLogged(t *testing.T) {
	source := newMockContentStore()
	source.seed(EntityArticles, articleRecord("a1", "intro", "Intro", "go"))
	source.queryOneErr = errors.New("store down")
	store := &recordingStore{}
	logger, hook := logtest.NewNullLogger()
	w := NewWriter(source, NewDispatcher(store, nil), logger)

	if err := w.Delete(context.Background(), EntityArticles, "a1"); err != nil {
		t.Fatalf("Delete must succeed despite lookup failure: %v", err)
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	if !warned {
		t.Error("expected the failed lookup to be logged at warn level")
	}
}

func TestWriter_UpdateDetectsRename(t *testing.T) {
	source := newMockContentStore()
	source.seed(EntityArticles, articleRecord("a1", "old-slug", "Intro", "go"))
	store := &recordingStore{}
	w := NewWriter(source, NewDispatcher(store, nil), nil)

	renamed := articleRecord("a1", "new-slug", "Intro", "go")
	if _, err := w.Update(context.Background(), EntityArticles, renamed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got := store.lastTags()
	want := []string{"articles", "articles-a1", "articles-new-slug", "articles-old-slug", "articles-slugs"}
	if len(got) != len(want) {
		t.Fatalf("purged tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("purged tags = %v, want %v", got, want)
			break
		}
	}
}
