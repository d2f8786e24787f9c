package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/observability/metrics"
	"github.com/raredx/triage/pkg/prediction"
)

type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Handle stores prediction.completed events. Other event types are skipped.
// It matches kafka.EventHandler.
func (r *Recorder) Handle(ctx context.Context, event models.Event) error {
	if event.Type != prediction.EventPredictionCompleted {
		return nil
	}
	log, err := FromEvent(event)
	if err != nil {
		logger.Log.WithError(err).WithField("event_id", event.ID).Warn("dropping malformed prediction event")
		return nil
	}
	if err := r.store.Save(ctx, log); err != nil {
		return fmt.Errorf("save prediction log: %w", err)
	}
	metrics.ObserveAuditRecord()
	return nil
}

// FromEvent builds the log row for a prediction.completed event. Numbers in
// Data arrive as float64 after the JSON round trip through the bus.
func FromEvent(event models.Event) (*PredictionLog, error) {
	session, _ := event.Data["session"].(string)
	if session == "" {
		return nil, fmt.Errorf("event %s has no session", event.ID)
	}

	log := &PredictionLog{
		EventID:   event.ID,
		Session:   session,
		Source:    event.Source,
		AgeMonths: toInt(event.Data["age_months"]),
		Payload:   event.Data,
		CreatedAt: event.Timestamp.UTC(),
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if codes, ok := event.Data["codes"].([]interface{}); ok {
		log.CodeCount = len(codes)
	}
	if candidates, ok := event.Data["candidates"].([]interface{}); ok {
		log.Candidates = len(candidates)
		if len(candidates) > 0 {
			if top, ok := candidates[0].(map[string]interface{}); ok {
				log.TopDisease, _ = top["name"].(string)
			}
		}
	}
	return log, nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
