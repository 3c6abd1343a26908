package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"posterpro/common"
)

// DummyStore keeps the last live extraction on disk so the pipeline can be
// exercised without calling a provider.
type DummyStore struct {
	Path string
	mu   sync.Mutex
}

type dummyFile struct {
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// DummyStatus summarises the stored data
type DummyStatus struct {
	Available bool              `json:"available"`
	Timestamp string            `json:"timestamp,omitempty"`
	Preview   map[string]string `json:"preview,omitempty"`
	Fields    []string          `json:"fields,omitempty"`
	Message   string            `json:"message,omitempty"`
}

func NewDummyStore(path string) *DummyStore {
	return &DummyStore{Path: path}
}

// Save overwrites the stored data with content
func (s *DummyStore) Save(content *common.ExtractedContent, now time.Time) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	out, err := json.MarshalIndent(dummyFile{Timestamp: now.Format(time.RFC3339), Data: data}, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dummy data dir: %w", err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, out, 0644); err != nil {
		return fmt.Errorf("write dummy data: %w", err)
	}
	return os.Rename(tmp, s.Path)
}

func (s *DummyStore) read() (*dummyFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var f dummyFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse dummy data: %w", err)
	}
	if f.Data == nil {
		return nil, errors.New("dummy data file has no data")
	}
	return &f, nil
}

// Load returns the stored content
func (s *DummyStore) Load() (*common.ExtractedContent, error) {
	f, err := s.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ExtractionError("no dummy data file found", common.ErrExtractionFailed)
		}
		return nil, common.ExtractionError("error loading dummy data", fmt.Errorf("%v: %w", err, common.ErrExtractionFailed))
	}
	return contentFromMap(f.Data), nil
}

// Status reports whether dummy data exists, with 100-character previews
func (s *DummyStore) Status() DummyStatus {
	f, err := s.read()
	if err != nil {
		return DummyStatus{Available: false, Message: "No dummy data file found"}
	}
	st := DummyStatus{Available: true, Timestamp: f.Timestamp, Preview: map[string]string{}}
	for _, field := range common.Fields() {
		v, ok := f.Data[string(field)]
		if !ok {
			continue
		}
		st.Fields = append(st.Fields, string(field))
		st.Preview[string(field)] = preview(flatten(v), 100)
	}
	return st
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
