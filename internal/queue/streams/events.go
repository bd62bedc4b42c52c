package streams

import (
	"encoding/json"
	"fmt"
)

// EventTypeStageRequested asks a worker to run one pipeline stage for a
// generation record.
const EventTypeStageRequested = "generation.stage.requested"

// StageEventVersion is the current payload version for stage events.
const StageEventVersion = "v1"

// StageRequest is the payload of a generation.stage.requested event.
type StageRequest struct {
	GenerationID string `json:"generation_id"`
	Stage        string `json:"stage"`
}

// Validate checks the payload carries both routing fields.
func (r StageRequest) Validate() error {
	if r.GenerationID == "" {
		return fmt.Errorf("generation_id is required")
	}
	if r.Stage == "" {
		return fmt.Errorf("stage is required")
	}
	return nil
}

// DecodeStageRequest extracts and validates a StageRequest from an envelope.
func DecodeStageRequest(env Envelope) (StageRequest, error) {
	if env.EventType != EventTypeStageRequested {
		return StageRequest{}, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	var req StageRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return StageRequest{}, fmt.Errorf("decode stage request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return StageRequest{}, err
	}
	return req, nil
}
