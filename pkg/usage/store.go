// Package usage keeps a small record of model-token consumption per
// session, fed from the backend's usage metadata.
package usage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Record struct {
	Timestamp        time.Time `json:"timestamp"`
	SessionKey       string    `json:"session_key"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	UsageKnown       bool      `json:"usage_known"`
}

type Filter struct {
	SessionKey string
	Limit      int
}

type Aggregate struct {
	Calls            int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Store struct {
	mu      sync.RWMutex
	records []Record
	path    string
}

// NewStore creates a usage store. When dir is non-empty, records are
// mirrored to dir/usage.json and reloaded on the next start.
func NewStore(dir string) *Store {
	s := &Store{records: make([]Record, 0, 64)}
	if dir == "" {
		return s
	}
	_ = os.MkdirAll(dir, 0755)
	s.path = filepath.Join(dir, "usage.json")
	s.load()
	return s
}

func (s *Store) Add(r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if r.TotalTokens == 0 {
		r.TotalTokens = r.PromptTokens + r.CompletionTokens
	}

	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()

	s.save()
}

func (s *Store) Query(f Filter) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if f.SessionKey != "" && r.SessionKey != f.SessionKey {
			continue
		}
		out = append(out, r)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Totals aggregates every record matching sessionKey ("" matches all).
func (s *Store) Totals(sessionKey string) Aggregate {
	var agg Aggregate
	for _, r := range s.Query(Filter{SessionKey: sessionKey}) {
		agg.Calls++
		agg.PromptTokens += r.PromptTokens
		agg.CompletionTokens += r.CompletionTokens
		agg.TotalTokens += r.TotalTokens
	}
	return agg
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return
	}
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

func (s *Store) save() {
	if s.path == "" {
		return
	}
	s.mu.RLock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return
	}
	_ = os.WriteFile(s.path, data, 0644)
}
