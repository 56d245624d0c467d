package contentcache

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Writer is the mutation entry point that keeps the cache coherent: every
// write goes to the content store first and, once committed, is reported to
// the invalidation dispatcher. Dispatch failures are logged, never rolled
// back into the write.
type Writer struct {
	source     ContentStore
	dispatcher *Dispatcher
	log        logrus.FieldLogger
}

// NewWriter creates a Writer over source and dispatcher.
func NewWriter(source ContentStore, dispatcher *Dispatcher, log logrus.FieldLogger) *Writer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{source: source, dispatcher: dispatcher, log: log}
}

// Create inserts a record and purges the creation-affected aggregates.
func (w *Writer) Create(ctx context.Context, entity EntityType, rec Record) (*Record, error) {
	created, err := w.source.Mutate(ctx, entity, MutationRequest{Op: OpCreate, Record: rec})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", entity, err)
	}

	w.dispatch(ctx, Mutation{
		Entity: entity,
		Op:     OpCreate,
		ID:     created.ID,
		Slug:   created.Slug,
	})
	return created, nil
}

// Update writes a record and purges its detail views; when the slug
// changed, the previous address and the slug enumeration are purged too.
func (w *Writer) Update(ctx context.Context, entity EntityType, rec Record) (*Record, error) {
	var renamedFrom string
	prev, err := w.source.QueryOne(ctx, entity, rec.ID)
	switch {
	case err != nil:
		// Best effort: the write still proceeds, but without the previous
		// slug the old address and the slug enumeration are not purged.
		w.log.WithError(err).WithFields(logrus.Fields{
			"entity": entity,
			"id":     rec.ID,
		}).Warn("pre-update lookup failed, rename detection skipped")
	case prev != nil && prev.Slug != "" && prev.Slug != rec.Slug:
		renamedFrom = prev.Slug
	}

	updated, err := w.source.Mutate(ctx, entity, MutationRequest{Op: OpUpdate, Record: rec})
	if err != nil {
		return nil, fmt.Errorf("update %s %q: %w", entity, rec.ID, err)
	}

	w.dispatch(ctx, Mutation{
		Entity:      entity,
		Op:          OpUpdate,
		ID:          updated.ID,
		Slug:        updated.Slug,
		RenamedFrom: renamedFrom,
	})
	return updated, nil
}

// Delete removes a record and purges its detail views and the structural
// aggregates.
func (w *Writer) Delete(ctx context.Context, entity EntityType, id string) error {
	var slug string
	prev, err := w.source.QueryOne(ctx, entity, id)
	switch {
	case err != nil:
		w.log.WithError(err).WithFields(logrus.Fields{
			"entity": entity,
			"id":     id,
		}).Warn("pre-delete lookup failed, slug purge may be incomplete")
	case prev != nil:
		slug = prev.Slug
	}

	if _, err := w.source.Mutate(ctx, entity, MutationRequest{Op: OpDelete, Record: Record{ID: id}}); err != nil {
		return fmt.Errorf("delete %s %q: %w", entity, id, err)
	}

	w.dispatch(ctx, Mutation{
		Entity: entity,
		Op:     OpDelete,
		ID:     id,
		Slug:   slug,
	})
	return nil
}

func (w *Writer) dispatch(ctx context.Context, m Mutation) {
	if w.dispatcher == nil {
		return
	}
	if err := w.dispatcher.OnMutated(ctx, m); err != nil {
		// Already logged by the dispatcher; the mutation stands.
		w.log.WithError(err).WithFields(logrus.Fields{
			"entity": m.Entity,
			"id":     m.ID,
		}).Warn("write committed but cache purge incomplete")
	}
}
