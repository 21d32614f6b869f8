package alerts

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

type Kind string

const (
	// KindRolledBack: an optimistic add was undone after a permanent failure.
	KindRolledBack Kind = "rolled_back"
	// KindDiscarded: a queued change was dropped after a permanent failure.
	KindDiscarded Kind = "discarded"
	// KindStaleQueue: the oldest queued change has waited too long.
	KindStaleQueue Kind = "stale_queue"
	// KindDiagnostic: a failure the user does not need to act on.
	KindDiagnostic Kind = "diagnostic"
)

type Alert struct {
	Kind     Kind   `json:"kind"`
	Op       string `json:"op"`
	EntityID string `json:"entityId"`
	Message  string `json:"message"`
}

// Visible reports whether the alert is meant to interrupt the user.
func (a Alert) Visible() bool {
	return a.Kind != KindDiagnostic
}

type Alerter interface {
	Alert(ctx context.Context, alert Alert)
}

// LogAlerter writes alerts to the log. Visible alerts go out at error level,
// which the sentry hook picks up.
type LogAlerter struct{}

func (LogAlerter) Alert(_ context.Context, alert Alert) {
	entry := log.WithFields(log.Fields{
		"alert":  alert.Kind,
		"op":     alert.Op,
		"entity": alert.EntityID,
	})
	if alert.Visible() {
		entry.Error(alert.Message)
		return
	}
	entry.Warn(alert.Message)
}

// Recorder keeps raised alerts in memory, newest last. The HTTP API serves
// them to the presentation layer.
type Recorder struct {
	mu     sync.Mutex
	next   Alerter
	limit  int
	alerts []Alert
}

func NewRecorder(next Alerter, limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{
		next:  next,
		limit: limit,
	}
}

func (r *Recorder) Alert(ctx context.Context, alert Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, alert)
	if len(r.alerts) > r.limit {
		r.alerts = r.alerts[len(r.alerts)-r.limit:]
	}
	r.mu.Unlock()

	if r.next != nil {
		r.next.Alert(ctx, alert)
	}
}

func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// Visible returns only the alerts meant for the user.
func (r *Recorder) Visible() []Alert {
	var visible []Alert
	for _, a := range r.Alerts() {
		if a.Visible() {
			visible = append(visible, a)
		}
	}
	return visible
}
