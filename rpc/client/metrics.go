package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"sync/atomic"
	"time"
)

// Error kinds used as metric label
const (
	kindClosed          = "closed"
	kindCancelled       = "cancelled"
	kindCommunication   = "communication"
	kindTimeout         = "timeout"
	kindMalformed       = "malformed"
	kindRequestFailed   = "request_failed"
	kindDeserialization = "deserialization"
	kindNotFound        = "collection_not_found"
	kindOther           = "other"
)

// executorMetrics holds the metrics of one executor in its own set so that
// several clients in one process stay isolated
type executorMetrics struct {
	name     string
	set      *metrics.Set
	requests *metrics.Counter
	duration *metrics.Histogram
	inflight atomic.Int64
}

func newExecutorMetrics(name string) *executorMetrics {
	m := &executorMetrics{
		name: name,
		set:  metrics.NewSet(),
	}
	m.requests = m.set.NewCounter(fmt.Sprintf(`vst_requests_total{executor=%q}`, name))
	m.duration = m.set.NewHistogram(fmt.Sprintf(`vst_request_duration_seconds{executor=%q}`, name))
	m.set.NewGauge(fmt.Sprintf(`vst_requests_inflight{executor=%q}`, name), func() float64 {
		return float64(m.inflight.Load())
	})
	return m
}

// start records a started request, the returned function records its outcome
func (m *executorMetrics) start() func(err error) {
	m.requests.Inc()
	m.inflight.Add(1)
	startTime := time.Now()
	return func(err error) {
		m.inflight.Add(-1)
		m.duration.Update(time.Since(startTime).Seconds())
		if err != nil {
			m.set.GetOrCreateCounter(fmt.Sprintf(`vst_request_errors_total{executor=%q,kind=%q}`, m.name, errorKind(err))).Inc()
		}
	}
}

// errorCount returns the number of failed requests of the given kind
func (m *executorMetrics) errorCount(kind string) uint64 {
	return m.set.GetOrCreateCounter(fmt.Sprintf(`vst_request_errors_total{executor=%q,kind=%q}`, m.name, kind)).Get()
}

func (m *executorMetrics) writePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

// errorKind classifies an error of the taxonomy in rpc/common
func errorKind(err error) string {
	var (
		commErr     *common.CommunicationError
		timeoutErr  *common.TimeoutError
		malformed   *common.MalformedFrameError
		failed      *common.RequestFailedError
		deserialize *common.DeserializationError
		notFound    *common.CollectionNotFoundError
	)
	switch {
	case errors.Is(err, common.ErrClosed):
		return kindClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return kindCancelled
	case errors.As(err, &timeoutErr):
		return kindTimeout
	case errors.As(err, &commErr):
		return kindCommunication
	case errors.As(err, &malformed):
		return kindMalformed
	case errors.As(err, &notFound):
		return kindNotFound
	case errors.As(err, &failed):
		return kindRequestFailed
	case errors.As(err, &deserialize):
		return kindDeserialization
	default:
		return kindOther
	}
}
