package broker

import "context"

// Await runs fn, a blocking SDK call that takes no context, and returns early
// with ctx.Err() when ctx ends first. fn keeps running in the background; the
// SDK's own HTTP timeout bounds it.
func Await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
