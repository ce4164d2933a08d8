package leadstore

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadform-bot/internal/models"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "data"), filepath.Join(dir, "export"), opts...)
	require.NoError(t, err)
	return s
}

func sampleLead(fio, email string) models.NewLead {
	return models.NewLead{
		FIO:      fio,
		Email:    email,
		Gender:   "female",
		UserID:   42,
		Username: "parent",
		Topic:    "rare",
		Details:  "short and kind",
	}
}

func TestNewWritesHeaderWithBOM(t *testing.T) {
	s := newTestStore(t)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(raw), "\ufeff"))
	assert.Equal(t, "\ufeff"+strings.Join(Columns, ";")+"\n", string(raw))
}

func TestAddAssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Add(sampleLead("Anna Petrova", "anna@example.ru"))
	require.NoError(t, err)
	second, err := s.Add(sampleLead("Ivan Petrov", "ivan@example.ru"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)

	leads, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	for _, l := range leads {
		assert.Equal(t, models.StatusNew, l.Status)
		assert.False(t, l.Created.IsZero())
	}
}

func TestAddAfterSetStatusKeepsSequence(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.Add(sampleLead("Lead", "lead@example.ru"))
		require.NoError(t, err)
	}
	require.NoError(t, s.SetStatus(1, models.StatusDone))

	a, err := s.Add(sampleLead("Next", "next@example.ru"))
	require.NoError(t, err)
	b, err := s.Add(sampleLead("After", "after@example.ru"))
	require.NoError(t, err)

	assert.Equal(t, int64(4), a)
	assert.Equal(t, int64(5), b)
}

func TestAddUsesFreshFileState(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Add(sampleLead("First", "first@example.ru"))
	require.NoError(t, err)

	// Simulate a manual edit that bumps the max id.
	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	edited := strings.Replace(string(raw), "\n1;", "\n17;", 1)
	require.NoError(t, os.WriteFile(s.Path(), []byte(edited), 0o644))

	id, err := s.Add(sampleLead("Second", "second@example.ru"))
	require.NoError(t, err)
	assert.Equal(t, int64(18), id)
}

func TestAddRejectsInvalidEmail(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Add(sampleLead("Bad", "not-an-email"))
	require.ErrorIs(t, err, ErrInvalidLead)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListNewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 12; i++ {
		_, err := s.Add(sampleLead("Lead", "lead@example.ru"))
		require.NoError(t, err)
	}

	leads, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, leads, 10)
	assert.Equal(t, int64(12), leads[0].ID)
	assert.Equal(t, int64(3), leads[9].ID)
}

func TestFind(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add(sampleLead("Мария Иванова", "maria@example.ru"))
	require.NoError(t, err)
	_, err = s.Add(sampleLead("Petr Sidorov", "petr@mail.example"))
	require.NoError(t, err)
	_, err = s.Add(sampleLead("Мария Смирнова", "smirnova@example.ru"))
	require.NoError(t, err)

	t.Run("empty query", func(t *testing.T) {
		got, err := s.Find("   ")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("case insensitive fio", func(t *testing.T) {
		got, err := s.Find("МАРИЯ")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(3), got[0].ID)
		assert.Equal(t, int64(1), got[1].ID)
	})

	t.Run("email substring", func(t *testing.T) {
		got, err := s.Find("MAIL.EXAMPLE")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Petr Sidorov", got[0].FIO)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := s.Find("nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSetStatus(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Add(sampleLead("Anna", "anna@example.ru"))
	require.NoError(t, err)

	err = s.SetStatus(id, "bogus")
	require.ErrorIs(t, err, ErrInvalidStatus)
	leads, err := s.List(0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, leads[0].Status)

	err = s.SetStatus(99, models.StatusDone)
	require.ErrorIs(t, err, ErrLeadNotFound)

	require.NoError(t, s.SetStatus(id, models.StatusDone))
	found, err := s.Find("anna")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, models.StatusDone, found[0].Status)
}

func TestExport(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 30, 0, 0, time.Local)
	s := newTestStore(t, WithClock(func() time.Time { return now }))

	t.Run("empty store gives header only", func(t *testing.T) {
		path, err := s.Export()
		require.NoError(t, err)
		assert.Equal(t, "leads_export_20261015_093000.csv", filepath.Base(path))

		rows := readExport(t, path)
		require.Len(t, rows, 1)
		assert.Equal(t, Columns, rows[0])
	})

	_, err := s.Add(sampleLead("Anna", "anna@example.ru"))
	require.NoError(t, err)
	_, err = s.Add(sampleLead("Ivan", "ivan@example.ru"))
	require.NoError(t, err)

	t.Run("rows follow column order and never overwrite", func(t *testing.T) {
		path, err := s.Export()
		require.NoError(t, err)
		assert.Equal(t, "leads_export_20261015_093000_1.csv", filepath.Base(path))

		rows := readExport(t, path)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{
			"1", "Anna", "anna@example.ru", "female", "new", "2026-10-15 09:30:00",
			"42", "parent", "rare", "short and kind",
		}, rows[1])
		assert.Equal(t, "2", rows[2][0])
	})
}

func TestCorruptRowIsReported(t *testing.T) {
	s := newTestStore(t)
	content := "\ufeff" + strings.Join(Columns, ";") + "\nabc;x;x@y.z;;new;;1;;;\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	_, err := s.List(0)
	require.ErrorIs(t, err, ErrCorruptStore)

	_, err = s.Add(sampleLead("Anna", "anna@example.ru"))
	require.ErrorIs(t, err, ErrCorruptStore)
}

func TestValuesWithDelimiterRoundTrip(t *testing.T) {
	s := newTestStore(t)
	in := sampleLead("Anna; \"Annie\"", "anna@example.ru")
	in.Details = "line one\nline two"
	_, err := s.Add(in)
	require.NoError(t, err)

	leads, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Anna; \"Annie\"", leads[0].FIO)
	assert.Equal(t, "line one\nline two", leads[0].Details)
}

func readExport(t *testing.T, path string) [][]string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "\ufeff"))

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(raw), "\ufeff")))
	r.Comma = Delimiter
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}
