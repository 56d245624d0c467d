package session

import "context"

// ScopedLookup runs fn bound to ctx and discards the result if ctx was
// cancelled by the time fn returns, regardless of whether fn honored the
// cancellation itself. The second return reports whether the value may be
// used. Components pass their own lifetime context so results for torn-down
// views are dropped inside the helper rather than at every call site.
func ScopedLookup[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}

	v, err := fn(ctx)
	if cerr := ctx.Err(); cerr != nil {
		return zero, false, cerr
	}
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}
