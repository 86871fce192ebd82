package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rafizuaf/spotter-sub000/internal/domain"
	"github.com/rafizuaf/spotter-sub000/internal/observability"
	platformevents "github.com/rafizuaf/spotter-sub000/internal/platform/events"
)

// PipelineHandler feeds workout.finished events into the gamification
// pipeline. Unknown event types on the topic are acknowledged and
// skipped.
type PipelineHandler struct {
	pipeline *domain.Pipeline
	logger   *log.Logger
}

// NewPipelineHandler constructs a handler over the pipeline.
func NewPipelineHandler(pipeline *domain.Pipeline, logger *log.Logger) *PipelineHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &PipelineHandler{pipeline: pipeline, logger: logger}
}

// Handle runs the full gamification sequence for one finished workout.
// A workout missing from the store is treated as permanent and skipped
// so the offset still commits; transient failures return an error and
// leave the message uncommitted for redelivery.
func (h *PipelineHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != "workout.finished" {
		return nil
	}

	var event platformevents.WorkoutFinished
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal workout.finished: %w", err)
	}
	if event.WorkoutID == "" {
		return errors.New("workout.finished event missing workout_id")
	}

	result, err := h.pipeline.WorkoutFinished(ctx, event.WorkoutID, event.Timezone)
	if err != nil {
		if errors.Is(err, domain.ErrWorkoutNotFound) || errors.Is(err, domain.ErrWorkoutNotFinished) {
			h.logger.Printf("skipping workout.finished (workout=%s): %v", event.WorkoutID, err)
			return nil
		}
		return err
	}

	if result.XP != nil {
		observability.RecordXPGranted(result.XP.XPAwarded)
	}
	observability.RecordPRsDetected(len(result.PRs))
	observability.RecordBadgesGranted(len(result.NewBadges))
	observability.RecordPipelineRun(time.Now())

	for _, failure := range result.Failures {
		h.logger.Printf("pipeline stage %s failed for workout %s: %s", failure.Stage, event.WorkoutID, failure.Reason)
	}
	return nil
}
