// Package events is the append-only audit trail: conversation lifecycle
// events, user feedback and submitted leads. It is kept apart from the
// mutable lead store.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadform-bot/internal/models"
)

type Recorder interface {
	Record(ctx context.Context, ev models.Event) error
}

// New fills in the id and timestamp of an event.
func New(typ models.EventType, userID int64, stage string, payload map[string]string) models.Event {
	return models.Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Stage:   stage,
		Payload: payload,
		UserID:  userID,
		TS:      time.Now().Unix(),
	}
}

// FileLog writes one JSON object per line and never rewrites earlier lines.
type FileLog struct {
	path string
	mu   sync.Mutex
}

func NewFileLog(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event log dir: %w", err)
	}
	return &FileLog{path: path}, nil
}

func (l *FileLog) Path() string {
	return l.path
}

func (l *FileLog) Record(_ context.Context, ev models.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append event: %w", err)
	}
	return f.Close()
}

// Multi sends every event to all recorders and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, ev models.Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Record(context.Context, models.Event) error { return nil }
