package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"github.com/ValentinKolb/arangovst/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"sync/atomic"
)

var Logger = logger.GetLogger(common.LoggerClient)

// TransformFunc converts a successful response into the result of a call.
// It is called exactly once per call and only for 2xx responses.
type TransformFunc[T any] func(resp common.Response) (T, error)

// IChannelPool is the part of base.Pool used by the executor
type IChannelPool interface {
	Acquire(ctx context.Context) (*base.Channel, error)
	DisconnectAll() error
}

// Executor sends requests through a pool and completes futures with the
// transformed replies. It never retries a failed request.
type Executor struct {
	name       string
	pool       IChannelPool
	serializer serializer.IValueSerializer
	metrics    *executorMetrics
	closed     atomic.Bool
}

// NewExecutor creates an executor on top of a pool. s decodes server error bodies.
func NewExecutor(name string, pool IChannelPool, s serializer.IValueSerializer) *Executor {
	return &Executor{
		name:       name,
		pool:       pool,
		serializer: s,
		metrics:    newExecutorMetrics(name),
	}
}

// --------------------------------------------------------------------------
// Execution
// --------------------------------------------------------------------------

// Execute sends req and returns immediately. The future completes with the
// result of transform or with one of the errors of rpc/common:
//   - common.ErrClosed after Close
//   - common.CommunicationError if the connection failed
//   - common.TimeoutError if the reply did not arrive in time
//   - common.RequestFailedError for non-2xx replies (transform is not called)
//   - common.DeserializationError if transform failed
//
// Cancelling ctx or the future stops the wait, the reply is discarded.
func Execute[T any](ctx context.Context, e *Executor, req common.Request, transform TransformFunc[T]) *Future[T] {
	if e.closed.Load() {
		var zero T
		return Completed(zero, common.ErrClosed)
	}

	callCtx, cancel := context.WithCancel(ctx)
	f := newFuture[T](cancel)
	done := e.metrics.start()

	go func() {
		defer cancel()

		var value T
		resp, err := e.roundTrip(callCtx, req)
		if err == nil {
			value, err = safeApply(func() (T, error) { return transform(resp) })
			if err != nil {
				err = &common.DeserializationError{Err: err}
			}
		}
		done(err)
		if err != nil {
			Logger.Debugf("Request %s failed: %v", req, err)
		}
		f.complete(value, err)
	}()
	return f
}

// ExecuteSync is Execute followed by Await
func ExecuteSync[T any](ctx context.Context, e *Executor, req common.Request, transform TransformFunc[T]) (T, error) {
	return Execute(ctx, e, req, transform).Await(ctx)
}

// roundTrip sends req over a channel of the pool and waits for the reply
func (e *Executor) roundTrip(ctx context.Context, req common.Request) (common.Response, error) {
	ch, err := e.pool.Acquire(ctx)
	if err != nil {
		return common.Response{}, err
	}

	pending, err := ch.Send(req)
	if err != nil {
		return common.Response{}, err
	}

	resp, err := pending.Wait(ctx)
	if err != nil {
		return common.Response{}, err
	}
	if !resp.IsSuccess() {
		return common.Response{}, e.requestFailed(resp)
	}
	return resp, nil
}

// requestFailed converts a non-2xx response to a RequestFailedError
func (e *Executor) requestFailed(resp common.Response) error {
	failed := &common.RequestFailedError{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}
	if len(resp.Body) == 0 {
		return failed
	}

	var body struct {
		ErrorNum     int    `json:"errorNum"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := e.serializer.Unmarshal(resp.Body, &body); err == nil {
		failed.ErrorNum = body.ErrorNum
		failed.ErrorMessage = body.ErrorMessage
	}
	return failed
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Close disconnects the pool. Pending calls fail with common.ErrClosed and
// later calls fail fast.
func (e *Executor) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if err := e.pool.DisconnectAll(); err != nil {
		return fmt.Errorf("failed to close executor %s: %w", e.name, err)
	}
	return nil
}

// Name returns the name used in logs and metric labels
func (e *Executor) Name() string {
	return e.name
}

// WritePrometheus writes the metrics of the executor in Prometheus text format
func (e *Executor) WritePrometheus(w io.Writer) {
	e.metrics.writePrometheus(w)
}

// --------------------------------------------------------------------------
// Transforms
// --------------------------------------------------------------------------

// RawResponse returns the response unchanged
func RawResponse(resp common.Response) (common.Response, error) {
	return resp, nil
}

// DecodeBody returns a transform that decodes the body into a T
func DecodeBody[T any](s serializer.IValueSerializer) TransformFunc[T] {
	return func(resp common.Response) (T, error) {
		var value T
		if len(resp.Body) == 0 {
			return value, errors.New("empty response body")
		}
		if err := s.Unmarshal(resp.Body, &value); err != nil {
			return value, err
		}
		return value, nil
	}
}

// Discard returns a transform ignoring the body
func Discard(common.Response) (struct{}, error) {
	return struct{}{}, nil
}
