package client

import (
	"context"
	"fmt"
	"sync"
)

// Future is the result of an asynchronous operation. It completes exactly
// once, either with a value or with an error.
type Future[T any] struct {
	done   chan struct{}
	once   sync.Once
	value  T
	err    error
	cancel func()
}

func newFuture[T any](cancel func()) *Future[T] {
	return &Future[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Completed returns a future that is already completed
func Completed[T any](value T, err error) *Future[T] {
	f := newFuture[T](nil)
	f.complete(value, err)
	return f
}

// complete sets the result, only the first call has an effect
func (f *Future[T]) complete(value T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		completed = true
	})
	return completed
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// Done returns a channel that is closed once the future completed
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future completed or ctx is done. A done ctx only
// stops the wait, use Cancel to abandon the operation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the result without blocking. ok is false if the future is
// not completed yet.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Cancel completes the future with context.Canceled and abandons the
// underlying call. A request already written is not retracted, its reply
// is discarded. Cancel returns false if the future was already completed.
func (f *Future[T]) Cancel() bool {
	var zero T
	if !f.complete(zero, context.Canceled) {
		return false
	}
	if f.cancel != nil {
		f.cancel()
	}
	return true
}

// --------------------------------------------------------------------------
// Composition
// --------------------------------------------------------------------------

// Handle returns a future completed with fn applied to the result of f.
// fn sees both the value and the error of f. Cancelling the returned future
// cancels f.
func Handle[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	next := newFuture[U](func() { f.Cancel() })
	go func() {
		select {
		case <-f.done:
		case <-next.done:
			return
		}
		value, err := safeApply(func() (U, error) { return fn(f.value, f.err) })
		next.complete(value, err)
	}()
	return next
}

// Then returns a future completed with fn applied to the value of f.
// An error of f is passed through without calling fn.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	return Handle(f, func(value T, err error) (U, error) {
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(value)
	})
}

// ThenAsync chains a further asynchronous step on the value of f
func ThenAsync[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	next := newFuture[U](func() { f.Cancel() })
	go func() {
		select {
		case <-f.done:
		case <-next.done:
			return
		}
		if f.err != nil {
			var zero U
			next.complete(zero, f.err)
			return
		}

		inner, err := safeApply(func() (*Future[U], error) { return fn(f.value), nil })
		if err == nil && inner == nil {
			err = fmt.Errorf("callback returned a nil future")
		}
		if err != nil {
			var zero U
			next.complete(zero, err)
			return
		}
		select {
		case <-inner.done:
			next.complete(inner.value, inner.err)
		case <-next.done:
			inner.Cancel()
		}
	}()
	return next
}

// safeApply converts a panic of fn into an error
func safeApply[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in callback: %v", r)
		}
	}()
	return fn()
}
