package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/sessionrecall/internal/search"
)

// recordTimeout bounds a single write so a locked database never stalls a
// query for long.
const recordTimeout = 2 * time.Second

// Recorder adapts Store to search.Observer. Write failures are logged and
// dropped.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// ObserveSearch implements search.Observer.
func (r *Recorder) ObserveSearch(ev search.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := r.store.Record(ctx, QueryEvent{
		Query:        ev.Query,
		Type:         ClassifyEvent(ev),
		ResultCount:  ev.Results,
		ResultIDs:    ev.ResultIDs,
		TopRelevance: ev.TopRelevance,
		Latency:      ev.Latency,
		Timestamp:    r.now(),
	})
	if err != nil {
		r.logger.Warn("telemetry_record_failed", slog.String("error", err.Error()))
	}
}

var _ search.Observer = (*Recorder)(nil)
