package contentcache

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-content-cache/cache"
)

// Mutation describes a committed write for the dispatcher. ID is the stable
// identifier, Slug the addressable identifier (may equal ID or be empty), and
// RenamedFrom the previous slug when the write changed it.
type Mutation struct {
	Entity      EntityType
	Op          MutationOp
	ID          string
	Slug        string
	RenamedFrom string
}

// Dispatcher resolves the tag set affected by a committed write and purges
// matching entries. It runs after the store commit and is best-effort with
// respect to it: a purge failure never unwinds the mutation, it is logged and
// returned so a caller may retry out of band.
type Dispatcher struct {
	store cache.Store
	log   logrus.FieldLogger
}

// NewDispatcher creates a Dispatcher over store. A nil logger defaults to the
// standard logrus logger.
func NewDispatcher(store cache.Store, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{store: store, log: log}
}

// OnMutated purges every tag the mutation can have dirtied.
func (d *Dispatcher) OnMutated(ctx context.Context, m Mutation) error {
	tags := d.tagsFor(m)

	purged, err := d.store.Invalidate(ctx, tags...)
	if err != nil {
		// The write is already committed; log the inconsistency window
		// and surface the error for an out-of-band retry.
		d.log.WithError(err).WithFields(logrus.Fields{
			"entity": m.Entity,
			"op":     m.Op,
			"id":     m.ID,
			"tags":   tags,
		}).Error("cache invalidation failed after committed write")
		return fmt.Errorf("invalidate %s after %s of %q: %w", m.Entity, m.Op, m.ID, err)
	}

	d.log.WithFields(logrus.Fields{
		"entity": m.Entity,
		"op":     m.Op,
		"id":     m.ID,
		"purged": purged,
	}).Debug("cache invalidated after write")
	return nil
}

// tagsFor maps a mutation onto the taxonomy. Every operation purges the
// coarse tag: listings always carry it, so this is what keeps the unbounded
// listing-parameter space coherent.
func (d *Dispatcher) tagsFor(m Mutation) []string {
	entity := string(m.Entity)
	tags := []string{cache.CoarseTag(entity)}

	switch m.Op {
	case OpCreate:
		tags = append(tags,
			cache.InitialTag(entity),
			cache.StatsTag(entity),
			cache.SlugsTag(entity),
		)

	case OpUpdate:
		tags = append(tags, d.detailTags(entity, m)...)
		if m.RenamedFrom != "" {
			// Both the old and the new address must stop serving the
			// pre-rename view, and the slug enumeration changed.
			tags = append(tags,
				cache.DetailTag(entity, m.RenamedFrom),
				cache.SlugsTag(entity),
			)
		}

	case OpDelete:
		tags = append(tags, d.detailTags(entity, m)...)
		tags = append(tags,
			cache.SlugsTag(entity),
			cache.StatsTag(entity),
		)
		if m.RenamedFrom != "" {
			tags = append(tags, cache.DetailTag(entity, m.RenamedFrom))
		}
	}

	return dedupeStrings(tags)
}

func (d *Dispatcher) detailTags(entity string, m Mutation) []string {
	tags := make([]string, 0, 2)
	if m.ID != "" {
		tags = append(tags, cache.DetailTag(entity, m.ID))
	}
	if m.Slug != "" && m.Slug != m.ID {
		tags = append(tags, cache.DetailTag(entity, m.Slug))
	}
	return tags
}
