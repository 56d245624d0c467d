// Package overlay implements the optimistic-update layer for row-level
// toggles. Pending edits are tracked per row in a map keyed by row ID,
// separate from canonical data; display reads consult the overlay first and
// fall back to canonical. A failed write rolls the row back to whatever was
// displayed before the edit, which may itself be an earlier confirmed
// overlay value rather than canonical.
package overlay

import "sync"

type rowState[T any] struct {
	value   T
	prev    *T
	pending bool
}

// Overlay tracks optimistic values for rows identified by string IDs.
// The zero value is not usable; construct with New.
type Overlay[T any] struct {
	mu   sync.Mutex
	rows map[string]*rowState[T]
}

// New returns an empty overlay.
func New[T any]() *Overlay[T] {
	return &Overlay[T]{rows: make(map[string]*rowState[T])}
}

// Apply records value as the optimistic display value for rowID and marks
// the row pending. It returns false without changing anything when the row
// already has a write in flight; callers treat that as "ignore the trigger".
func (o *Overlay[T]) Apply(rowID string, value T) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	row, ok := o.rows[rowID]
	if ok && row.pending {
		return false
	}
	if ok {
		// The previously displayed value was itself an overlay; keep it so
		// a failure rolls back to it, not to canonical.
		prev := row.value
		row.prev = &prev
		row.value = value
		row.pending = true
		return true
	}
	o.rows[rowID] = &rowState[T]{value: value, pending: true}
	return true
}

// Confirm marks the pending write on rowID as committed. The overlay value
// stays in place until Clear is called once canonical data has caught up.
func (o *Overlay[T]) Confirm(rowID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	row, ok := o.rows[rowID]
	if !ok {
		return
	}
	row.pending = false
	row.prev = nil
}

// Rollback rolls rowID back to the value displayed before the pending edit: the
// prior overlay value when one existed, otherwise canonical (by removing the
// overlay entirely).
func (o *Overlay[T]) Rollback(rowID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	row, ok := o.rows[rowID]
	if !ok {
		return
	}
	if row.prev != nil {
		row.value = *row.prev
		row.prev = nil
		row.pending = false
		return
	}
	delete(o.rows, rowID)
}

// Clear drops the overlay for rowID so display falls through to canonical.
// Call it after a refresh that reflects the confirmed write.
func (o *Overlay[T]) Clear(rowID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.rows, rowID)
}

// Value returns the display value for rowID: the overlay value when one is
// set, otherwise canonical.
func (o *Overlay[T]) Value(rowID string, canonical T) T {
	o.mu.Lock()
	defer o.mu.Unlock()

	if row, ok := o.rows[rowID]; ok {
		return row.value
	}
	return canonical
}

// Pending reports whether rowID has a write in flight.
func (o *Overlay[T]) Pending(rowID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	row, ok := o.rows[rowID]
	return ok && row.pending
}

// Len returns the number of rows carrying an overlay value.
func (o *Overlay[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.rows)
}
