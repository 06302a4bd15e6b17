package webapi

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/tallyd/tally/internal/batch"
	"github.com/tallyd/tally/internal/ledger"
)

// ItemKindRecordStep is the only batch item kind the import endpoint
// understands today.
const ItemKindRecordStep = "record_step"

// stepImportItem is the decoded payload of a record_step batch item.
// The session fields are optional; when step_count is set the session is
// ensured before the write, so imports can create sessions on first touch.
type stepImportItem struct {
	SessionID     string  `mapstructure:"session_id"`
	StepIndex     int     `mapstructure:"step_index"`
	RawScore      float64 `mapstructure:"raw_score"`
	ParticipantID string  `mapstructure:"participant_id"`
	StepCount     int     `mapstructure:"step_count"`
	ScoreBudget   float64 `mapstructure:"score_budget"`
	MaxRawScore   float64 `mapstructure:"max_raw_score"`
}

// stepImporter feeds batch items into the ledger. Each item is one
// idempotent step upsert, so replaying an import batch is safe.
type stepImporter struct {
	store ledger.Store
}

var _ batch.Processor = (*stepImporter)(nil)

func (si *stepImporter) Process(ctx context.Context, item batch.Item) (any, error) {
	if item.Kind != ItemKindRecordStep {
		return nil, fmt.Errorf("unknown item kind %q", item.Kind)
	}

	var payload stepImportItem
	if err := mapstructure.Decode(item.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decoding item payload: %w", err)
	}
	if payload.SessionID == "" {
		return nil, fmt.Errorf("item payload missing session_id")
	}

	if payload.StepCount > 0 {
		params := ledger.SessionParams{
			ID:            payload.SessionID,
			ParticipantID: payload.ParticipantID,
			StepCount:     payload.StepCount,
			ScoreBudget:   payload.ScoreBudget,
			MaxRawScore:   payload.MaxRawScore,
		}
		if _, err := si.store.EnsureSession(ctx, params); err != nil {
			return nil, fmt.Errorf("ensuring session %s: %w", payload.SessionID, err)
		}
	}

	rec, _, err := si.store.RecordStep(ctx, payload.SessionID, payload.StepIndex, payload.RawScore)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// applyDefaultSession fills spec fields into item payloads that leave them
// out. Item-level values always win over the batch default.
func applyDefaultSession(items []batch.Item, spec SessionSpec) {
	defaults := map[string]any{}
	if spec.SessionID != "" {
		defaults["session_id"] = spec.SessionID
	}
	if spec.ParticipantID != "" {
		defaults["participant_id"] = spec.ParticipantID
	}
	if spec.StepCount > 0 {
		defaults["step_count"] = spec.StepCount
	}
	if spec.ScoreBudget > 0 {
		defaults["score_budget"] = spec.ScoreBudget
	}
	if spec.MaxRawScore > 0 {
		defaults["max_raw_score"] = spec.MaxRawScore
	}

	for i := range items {
		if items[i].Payload == nil {
			items[i].Payload = make(map[string]any, len(defaults))
		}
		for k, v := range defaults {
			if _, ok := items[i].Payload[k]; !ok {
				items[i].Payload[k] = v
			}
		}
	}
}
