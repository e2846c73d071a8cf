package postgres

import (
	"errors"
	"time"

	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// opTracker records store operations against the storage metric
// families. A nil metrics handle disables recording.
type opTracker struct {
	metrics *observability.Metrics
}

// track measures one operation. Call it in a defer with the method's
// named error return so the outcome is known when the function unwinds.
// ErrNotFound and ErrDuplicate are expected outcomes, not storage errors.
func (t opTracker) track(op string, err *error) func() {
	start := time.Now()
	return func() {
		if t.metrics == nil {
			return
		}
		status := "ok"
		switch {
		case *err == nil:
		case errors.Is(*err, storage.ErrNotFound), errors.Is(*err, storage.ErrDuplicate):
			status = "miss"
		default:
			status = "error"
			t.metrics.StorageErrorsTotal.WithLabelValues(op, "postgres").Inc()
		}
		t.metrics.StorageOperationsTotal.WithLabelValues(op, "postgres", status).Inc()
		t.metrics.StorageOperationDuration.WithLabelValues(op, "postgres").Observe(time.Since(start).Seconds())
	}
}
