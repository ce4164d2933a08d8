package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadform-bot/internal/models"
)

func TestFileLogAppends(t *testing.T) {
	log, err := NewFileLog(filepath.Join(t.TempDir(), "nested", "events.jsonl"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, log.Record(ctx, New(models.EventTypeEvent, 7, "start", nil)))
	require.NoError(t, log.Record(ctx, New(models.EventTypeFeedback, 7, "", map[string]string{"text": "спасибо"})))

	f, err := os.Open(log.Path())
	require.NoError(t, err)
	defer f.Close()

	var got []models.Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev models.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		got = append(got, ev)
	}
	require.NoError(t, sc.Err())

	require.Len(t, got, 2)
	assert.Equal(t, "start", got[0].Stage)
	assert.Equal(t, models.EventTypeFeedback, got[1].Type)
	assert.Equal(t, "спасибо", got[1].Payload["text"])
	assert.Equal(t, int64(7), got[1].UserID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.NotZero(t, got[0].TS)
}

type recorderFunc func(context.Context, models.Event) error

func (f recorderFunc) Record(ctx context.Context, ev models.Event) error { return f(ctx, ev) }

func TestMultiRecordsEverywhereAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	ok := recorderFunc(func(context.Context, models.Event) error { calls++; return nil })
	bad := recorderFunc(func(context.Context, models.Event) error { calls++; return boom })

	err := Multi{bad, ok, Nop{}}.Record(context.Background(), New(models.EventTypeLead, 1, "", nil))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)

	assert.NoError(t, Multi{ok}.Record(context.Background(), New(models.EventTypeLead, 1, "", nil)))
}
