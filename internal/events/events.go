// Package events emits the per-row [METRIC] log lines downstream readers
// aggregate, and mirrors them into Prometheus counters.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Kind is the event type.
type Kind string

const (
	KindProcessed Kind = "processed"
	KindError     Kind = "error"
)

// Event is one row outcome.
type Event struct {
	Kind       Kind
	Row        int
	FullName   string
	NationalID string
	Session    string
}

// Line renders the event as a [METRIC] message. Error events carry only the
// row and session.
func (e Event) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[METRIC] %s row={'row': %d", e.Kind, e.Row)
	if e.Kind == KindProcessed {
		fmt.Fprintf(&b, ", 'fio': '%s', 'national_id': '%s'", quote(e.FullName), quote(e.NationalID))
	}
	fmt.Fprintf(&b, ", 'session': '%s'}", quote(e.Session))
	return b.String()
}

func quote(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

// Sink receives row events.
type Sink interface {
	Emit(Event)
}

// Recorder is the Sink used in production: it logs every event through zap
// and counts it in its own Prometheus registry.
type Recorder struct {
	log     *zap.Logger
	reg     *prometheus.Registry
	metrics *Metrics
}

// NewRecorder creates a Recorder logging through log. A nil log uses the
// global logger.
func NewRecorder(log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.L()
	}
	reg := prometheus.NewRegistry()
	return &Recorder{log: log, reg: reg, metrics: NewMetrics(reg)}
}

// Emit implements Sink. Processed rows log at info, errors at error level.
func (r *Recorder) Emit(e Event) {
	switch e.Kind {
	case KindError:
		r.log.Error(e.Line())
		r.metrics.RowErrors.WithLabelValues(e.Session).Inc()
	default:
		r.log.Info(e.Line())
		r.metrics.RowsProcessed.WithLabelValues(e.Session).Inc()
	}
}

// LimitHit counts a service limit that ended a sweep.
func (r *Recorder) LimitHit(session, reason string) {
	r.metrics.LimitHits.WithLabelValues(session, reason).Inc()
}

// ObserveSweep records how long a credential's sweep ran.
// Call with time.Now() at the start of the sweep.
func (r *Recorder) ObserveSweep(start time.Time) {
	r.metrics.SweepDuration.Observe(time.Since(start).Seconds())
}

// WriteTextfile dumps the current counters in the node-exporter textfile
// format. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
