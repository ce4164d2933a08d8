// Package leadstore keeps completed leads in a semicolon-separated CSV file
// that spreadsheet tools open without an import wizard.
//
// Every mutation re-reads the file, applies the change and rewrites the whole
// file through a temp file + rename. That is fine for a few thousand leads and
// a single process; it is not a log and does not support several writers.
package leadstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"leadform-bot/internal/models"
)

var (
	ErrInvalidStatus = errors.New("invalid lead status")
	ErrLeadNotFound  = errors.New("lead not found")
	ErrInvalidLead   = errors.New("invalid lead")
	ErrCorruptStore  = errors.New("corrupt lead store")
)

const (
	FileName     = "leads.csv"
	exportPrefix = "leads_export_"
	exportLayout = "20060102_150405"
)

type Store struct {
	path      string
	exportDir string
	now       func() time.Time
	mu        sync.Mutex
}

type Option func(*Store)

// WithClock overrides time.Now for created timestamps and export names.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens (and if needed creates) the store under dataDir. Exports go to
// exportDir.
func New(dataDir, exportDir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if strings.TrimSpace(exportDir) == "" {
		return nil, fmt.Errorf("export dir is required")
	}
	for _, dir := range []string{dataDir, exportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	s := &Store{
		path:      filepath.Join(dataDir, FileName),
		exportDir: exportDir,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureFileLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Add validates the lead, assigns the next id from the current file contents
// and appends it with status new.
func (s *Store) Add(in models.NewLead) (int64, error) {
	lead, err := normalize(in)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	leads, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}

	lead.ID = nextID(leads)
	lead.Status = models.StatusNew
	lead.Created = s.now().Truncate(time.Second)
	leads = append(leads, lead)

	if err := s.writeAllLocked(leads); err != nil {
		return 0, err
	}
	return lead.ID, nil
}

// List returns the newest leads first. limit <= 0 returns every lead.
func (s *Store) List(limit int) ([]models.Lead, error) {
	s.mu.Lock()
	leads, err := s.readAllLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sortNewestFirst(leads)
	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

// Find matches query case-insensitively against fio and email. An empty
// query matches nothing.
func (s *Store) Find(query string) ([]models.Lead, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []models.Lead{}, nil
	}

	s.mu.Lock()
	leads, err := s.readAllLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	found := make([]models.Lead, 0)
	for _, l := range leads {
		if strings.Contains(strings.ToLower(l.FIO), q) || strings.Contains(strings.ToLower(l.Email), q) {
			found = append(found, l)
		}
	}
	sortNewestFirst(found)
	return found, nil
}

func (s *Store) SetStatus(id int64, status models.LeadStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	leads, err := s.readAllLocked()
	if err != nil {
		return err
	}

	idx := -1
	for i := range leads {
		if leads[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: id %d", ErrLeadNotFound, id)
	}

	leads[idx].Status = status
	return s.writeAllLocked(leads)
}

func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	leads, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}
	return len(leads), nil
}

// Export writes a snapshot of every lead (in file order) to a new
// timestamped file and returns its path. An empty store yields a header-only
// file.
func (s *Store) Export() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	leads, err := s.readAllLocked()
	if err != nil {
		return "", err
	}

	f, path, err := s.createExportFile()
	if err != nil {
		return "", err
	}

	if err := encode(f, leads); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write export %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close export %s: %w", path, err)
	}
	return path, nil
}

func (s *Store) createExportFile() (*os.File, string, error) {
	base := exportPrefix + s.now().Format(exportLayout)
	for n := 0; n < 100; n++ {
		name := base + ".csv"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.csv", base, n)
		}
		path := filepath.Join(s.exportDir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to create export file: %w", err)
		}
		return f, path, nil
	}
	return nil, "", fmt.Errorf("failed to create export file: too many exports named %s", base)
}

func (s *Store) ensureFileLocked() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat lead store: %w", err)
	}
	return s.writeAllLocked(nil)
}

func (s *Store) readAllLocked() ([]models.Lead, error) {
	if err := s.ensureFileLocked(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lead store: %w", err)
	}
	defer f.Close()

	leads, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return leads, nil
}

func (s *Store) writeAllLocked(leads []models.Lead) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, FileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if err := encode(tmp, leads); err != nil {
		return fmt.Errorf("failed to write lead store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync lead store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace lead store: %w", err)
	}
	return nil
}

func normalize(in models.NewLead) (models.Lead, error) {
	email := strings.TrimSpace(in.Email)
	if !models.IsValidEmail(email) {
		return models.Lead{}, fmt.Errorf("%w: email %q", ErrInvalidLead, in.Email)
	}
	if in.UserID == 0 {
		return models.Lead{}, fmt.Errorf("%w: user id is required", ErrInvalidLead)
	}

	return models.Lead{
		FIO:      strings.TrimSpace(in.FIO),
		Email:    email,
		Gender:   strings.TrimSpace(in.Gender),
		UserID:   in.UserID,
		Username: strings.TrimSpace(in.Username),
		Topic:    strings.TrimSpace(in.Topic),
		Details:  strings.TrimSpace(in.Details),
	}, nil
}

func nextID(leads []models.Lead) int64 {
	var max int64
	for _, l := range leads {
		if l.ID > max {
			max = l.ID
		}
	}
	return max + 1
}

func sortNewestFirst(leads []models.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].ID > leads[j].ID
	})
}
