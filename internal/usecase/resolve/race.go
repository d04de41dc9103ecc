package resolve

import "context"

// firstSuccessful races the given functions and returns the first non-nil
// value to arrive, cancelling the rest. Nil results and errors are suppressed
// until every branch has finished; if all of them come back empty the result
// is nil. Whichever branch resolves first wins outright; speed, not source,
// is the deciding factor.
func firstSuccessful[T any](ctx context.Context, fns ...func(context.Context) (*T, error)) *T {
	if len(fns) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *T, len(fns))
	for _, fn := range fns {
		go func(fn func(context.Context) (*T, error)) {
			v, err := fn(ctx)
			if err != nil {
				v = nil
			}
			results <- v
		}(fn)
	}

	for range fns {
		select {
		case v := <-results:
			if v != nil {
				return v
			}
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
