package guardrail

import (
	"fmt"
	"math"

	"github.com/yourusername/stream-monitor/internal/config"
	"github.com/yourusername/stream-monitor/internal/model"
)

// EventGuardrail validates incoming events at the pipeline boundary so the
// ingestion path itself never has to fail: a structurally bad event is
// rejected (and counted by the caller) before it reaches the aggregator.
type EventGuardrail struct {
	maxKeyLength int
}

func NewEventGuardrail(cfg config.PipelineConfig) *EventGuardrail {
	return &EventGuardrail{maxKeyLength: cfg.MaxKeyLength}
}

// Validate checks if the event complies with the structural constraints the
// sketches assume. The returned reason is a short stable label suitable for
// a metrics dimension.
func (g *EventGuardrail) Validate(ev model.Event) (reason string, err error) {
	if ev.Key == "" {
		return "empty_key", fmt.Errorf("event key is empty")
	}
	// A limit of 0 disables the length check
	if g.maxKeyLength > 0 && len(ev.Key) > g.maxKeyLength {
		return "key_too_long", fmt.Errorf("event key exceeds maximum length: %d > %d", len(ev.Key), g.maxKeyLength)
	}
	if math.IsNaN(ev.Value) || math.IsInf(ev.Value, 0) {
		return "bad_value", fmt.Errorf("event value is not a finite number")
	}
	if math.IsNaN(ev.Latency) || math.IsInf(ev.Latency, 0) || ev.Latency < 0 {
		return "bad_latency", fmt.Errorf("event latency must be a non-negative finite number, got %g", ev.Latency)
	}
	return "", nil
}
