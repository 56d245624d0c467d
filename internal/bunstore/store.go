// Package bunstore provides a bun/SQLite implementation of the
// contentcache.ContentStore contract. It backs the example program and the
// integration tests; production deployments plug in their own store behind
// the same interface.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-content-cache/cache"
	"github.com/goliatone/go-content-cache/contentcache"
)

type contentRow struct {
	bun.BaseModel `bun:"table:content_records,alias:cr"`

	ID          string    `bun:"id,pk"`
	Entity      string    `bun:"entity,notnull"`
	Slug        string    `bun:"slug,notnull"`
	Title       string    `bun:"title"`
	Summary     string    `bun:"summary"`
	Category    string    `bun:"category"`
	PublishedAt time.Time `bun:"published_at"`
	UpdatedAt   time.Time `bun:"updated_at"`
}

// Store adapts a bun.DB to the contentcache.ContentStore contract.
type Store struct {
	db *bun.DB
}

// Open opens a SQLite database at dsn (use ":memory:" for tests) and wraps
// it in a Store. The caller owns the returned Store and must Close it.
func Open(dsn string) (*Store, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("bunstore: open %q: %w", dsn, err)
	}
	return New(bun.NewDB(sqldb, sqlitedialect.New())), nil
}

// New wraps an existing bun.DB.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Init creates the backing table and indexes if they do not exist.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*contentRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("bunstore: create table: %w", err)
	}

	if _, err := s.db.NewCreateIndex().
		Model((*contentRow)(nil)).
		Index("idx_content_entity_slug").
		Column("entity", "slug").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("bunstore: create index: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Query returns one page of an entity's records plus the filtered total.
// Ordering is published_at descending with id as tiebreaker so a fixed store
// state always produces the same rows in the same order.
func (s *Store) Query(ctx context.Context, entity contentcache.EntityType, page, pageSize int, filters cache.Filters) ([]contentcache.Record, int, error) {
	var rows []contentRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("entity = ?", string(entity)).
		OrderExpr("published_at DESC, id ASC")

	if category := filters["category"]; category != "" {
		q = q.Where("category = ?", category)
	}
	if term := filters["q"]; term != "" {
		pattern := "%" + strings.ToLower(term) + "%"
		q = q.Where("(lower(title) LIKE ? OR lower(summary) LIKE ?)", pattern, pattern)
	}

	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		q = q.Limit(pageSize).Offset((page - 1) * pageSize)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("bunstore: query %s: %w", entity, err)
	}

	records := make([]contentcache.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, toRecord(row))
	}
	return records, total, nil
}

// QueryOne looks up a record by ID or slug. Absence is (nil, nil), not an
// error; the cache layer maps it to its own not-found value.
func (s *Store) QueryOne(ctx context.Context, entity contentcache.EntityType, ref string) (*contentcache.Record, error) {
	var row contentRow
	err := s.db.NewSelect().
		Model(&row).
		Where("entity = ?", string(entity)).
		Where("(id = ? OR slug = ?)", ref, ref).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bunstore: query one %s/%s: %w", entity, ref, err)
	}

	rec := toRecord(row)
	return &rec, nil
}

// Mutate applies a write and returns the resulting record (nil for deletes).
func (s *Store) Mutate(ctx context.Context, entity contentcache.EntityType, req contentcache.MutationRequest) (*contentcache.Record, error) {
	switch req.Op {
	case contentcache.OpCreate:
		return s.create(ctx, entity, req.Record)
	case contentcache.OpUpdate:
		return s.update(ctx, entity, req.Record)
	case contentcache.OpDelete:
		return nil, s.delete(ctx, entity, req.Record)
	default:
		return nil, fmt.Errorf("bunstore: unknown mutation op %q", req.Op)
	}
}

func (s *Store) create(ctx context.Context, entity contentcache.EntityType, rec contentcache.Record) (*contentcache.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	row := fromRecord(entity, rec)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return nil, fmt.Errorf("bunstore: create %s/%s: %w", entity, rec.ID, err)
	}

	out := toRecord(row)
	return &out, nil
}

func (s *Store) update(ctx context.Context, entity contentcache.EntityType, rec contentcache.Record) (*contentcache.Record, error) {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	row := fromRecord(entity, rec)
	res, err := s.db.NewUpdate().
		Model(&row).
		Column("slug", "title", "summary", "category", "published_at", "updated_at").
		Where("id = ?", rec.ID).
		Where("entity = ?", string(entity)).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("bunstore: update %s/%s: %w", entity, rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("bunstore: update %s/%s: no such record", entity, rec.ID)
	}

	out := toRecord(row)
	return &out, nil
}

func (s *Store) delete(ctx context.Context, entity contentcache.EntityType, rec contentcache.Record) error {
	_, err := s.db.NewDelete().
		Model((*contentRow)(nil)).
		Where("id = ?", rec.ID).
		Where("entity = ?", string(entity)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: delete %s/%s: %w", entity, rec.ID, err)
	}
	return nil
}

func toRecord(row contentRow) contentcache.Record {
	return contentcache.Record{
		ID:          row.ID,
		Slug:        row.Slug,
		Title:       row.Title,
		Summary:     row.Summary,
		Category:    row.Category,
		PublishedAt: row.PublishedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func fromRecord(entity contentcache.EntityType, rec contentcache.Record) contentRow {
	return contentRow{
		ID:          rec.ID,
		Entity:      string(entity),
		Slug:        rec.Slug,
		Title:       rec.Title,
		Summary:     rec.Summary,
		Category:    rec.Category,
		PublishedAt: rec.PublishedAt.UTC(),
		UpdatedAt:   rec.UpdatedAt.UTC(),
	}
}

var _ contentcache.ContentStore = (*Store)(nil)
