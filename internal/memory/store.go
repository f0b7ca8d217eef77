// Package memory caches answered questions in a JSON file so repeated or
// near-identical questions can be answered without another round trip.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asksql/asksql/internal/observability"
)

const (
	DefaultMaxEntries          = 200
	DefaultSimilarityThreshold = 0.8
	DefaultMaxRows             = 50
)

type Entry struct {
	ID             string          `json:"id"`
	Question       string          `json:"question"`
	QuestionTokens []string        `json:"question_tokens"`
	SQL            string          `json:"sql_query,omitempty"`
	Summary        string          `json:"summary"`
	Columns        []string        `json:"columns,omitempty"`
	Rows           [][]any         `json:"results,omitempty"`
	Chart          json.RawMessage `json:"chart,omitempty"`
	Truncated      bool            `json:"truncated,omitempty"`
	CreatedAt      time.Time       `json:"timestamp"`
}

// Record is the answer being cached for a question.
type Record struct {
	ID        string
	SQL       string
	Summary   string
	Columns   []string
	Rows      [][]any
	Chart     json.RawMessage
	// Truncated marks rows already cut by the query row limit.
	Truncated bool
	CreatedAt time.Time
}

type Options struct {
	MaxEntries          int
	SimilarityThreshold float64
	MaxRows             int
	Logger              *slog.Logger
}

// Store is safe for concurrent use within one process. Writes from other
// processes are picked up only through Reload or Watch; last write wins.
type Store struct {
	path string
	opts Options

	mu      sync.RWMutex
	entries []Entry
}

// Open loads path if it exists. A malformed file is logged and replaced by
// an empty store on the next write.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("memory file path is required")
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.Logger == nil {
		opts.Logger = observability.DiscardLogger()
	}

	store := &Store{path: path, opts: opts}
	entries, err := readEntries(path)
	switch {
	case err == nil:
		store.entries = trim(entries, opts.MaxEntries)
	case errors.Is(err, os.ErrNotExist):
	case errors.As(err, new(*json.SyntaxError)), errors.As(err, new(*json.UnmarshalTypeError)):
		opts.Logger.Warn("conversation memory unreadable, starting empty", slog.String("path", path), slog.Any("error", err))
	default:
		return nil, err
	}
	return store, nil
}

// Lookup tries an exact match on the normalized question, then the most
// similar entry at or above the similarity threshold whose numbers match the
// question's. Newer entries win ties.
func (s *Store) Lookup(question string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized := normalizeQuestion(question)
	if normalized == "" {
		return Entry{}, false
	}
	for i := len(s.entries) - 1; i >= 0; i-- {
		if normalizeQuestion(s.entries[i].Question) == normalized {
			return s.entries[i], true
		}
	}

	tokens := Tokenize(question)
	if len(tokens) == 0 {
		return Entry{}, false
	}
	best := -1
	bestScore := 0.0
	for i := len(s.entries) - 1; i >= 0; i-- {
		if !SameNumbers(tokens, s.entries[i].QuestionTokens) {
			continue
		}
		score := Jaccard(tokens, s.entries[i].QuestionTokens)
		if score >= s.opts.SimilarityThreshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Entry{}, false
	}
	return s.entries[best], true
}

// Store appends an entry, drops the oldest beyond MaxEntries and rewrites
// the backing file. On a failed write the in-memory entries are unchanged.
func (s *Store) Store(question string, record Record) (Entry, error) {
	entry := Entry{
		ID:             record.ID,
		Question:       question,
		QuestionTokens: Tokenize(question),
		SQL:            record.SQL,
		Summary:        record.Summary,
		Columns:        record.Columns,
		Rows:           record.Rows,
		Chart:          record.Chart,
		Truncated:      record.Truncated,
		CreatedAt:      record.CreatedAt,
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Rows) > s.opts.MaxRows {
		entry.Rows = entry.Rows[:s.opts.MaxRows]
		entry.Truncated = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, 0, len(s.entries)+1)
	entries = trim(append(append(entries, s.entries...), entry), s.opts.MaxEntries)
	if err := writeEntries(s.path, entries); err != nil {
		return entry, err
	}
	s.entries = entries
	return entry, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out
}

// Entries returns a copy of all entries, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Path() string {
	return s.path
}

// Reload replaces in-memory entries with the file contents. On error the
// current entries are kept.
func (s *Store) Reload() error {
	entries, err := readEntries(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	s.entries = trim(entries, s.opts.MaxEntries)
	s.mu.Unlock()
	return nil
}

func readEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode memory file %s: %w", path, err)
	}
	for i := range entries {
		entries[i].QuestionTokens = Tokenize(entries[i].Question)
	}
	return entries, nil
}

func writeEntries(path string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory entries: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".memory-*.json")
	if err != nil {
		return fmt.Errorf("create temp memory file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close memory file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}

func trim(entries []Entry, max int) []Entry {
	if len(entries) > max {
		return append([]Entry(nil), entries[len(entries)-max:]...)
	}
	return entries
}
