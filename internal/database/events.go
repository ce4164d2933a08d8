package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leadform-bot/internal/models"
)

// Record stores an audit event. It makes DB usable as an events.Recorder.
func (db *DB) Record(ctx context.Context, ev models.Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO lead_events (id, type, stage, payload, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, string(ev.Type), ev.Stage, raw, ev.UserID, time.Unix(ev.TS, 0).UTC())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}
