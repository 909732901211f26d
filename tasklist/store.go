// Package tasklist manages the PRD-style story list that drives the agent:
// a JSON file of stories with pass/fail status, plus an append-only
// progress log. This is the only state that survives across sessions; the
// harness itself keeps nothing in process.
package tasklist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Default file names inside the workspace root.
const (
	DefaultDocumentFile = "prd.json"
	DefaultProgressFile = "progress.md"
)

// Story is one unit of work in the task list.
type Story struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Passes             bool     `json:"passes"`
}

// Document is the whole task list.
type Document struct {
	Project string  `json:"project,omitempty"`
	Stories []Story `json:"stories"`
}

// Store reads and writes the task list document and the progress log.
type Store struct {
	documentPath string
	progressPath string
	mu           sync.Mutex
}

// NewStore creates a store over the default file names in dir.
func NewStore(dir string) *Store {
	return &Store{
		documentPath: filepath.Join(dir, DefaultDocumentFile),
		progressPath: filepath.Join(dir, DefaultProgressFile),
	}
}

// DocumentPath returns the path of the task list file.
func (s *Store) DocumentPath() string { return s.documentPath }

// Load reads and parses the task list document.
func (s *Store) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Document, error) {
	data, err := os.ReadFile(s.documentPath)
	if err != nil {
		return nil, fmt.Errorf("reading task list: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing task list: %w", err)
	}
	return &doc, nil
}

func (s *Store) save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding task list: %w", err)
	}
	if err := os.WriteFile(s.documentPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing task list: %w", err)
	}
	return nil
}

// NextStory returns the first story that is not yet passing. ok is false
// when every story passes.
func (s *Store) NextStory() (story Story, ok bool, err error) {
	doc, err := s.Load()
	if err != nil {
		return Story{}, false, err
	}
	for _, st := range doc.Stories {
		if !st.Passes {
			return st, true, nil
		}
	}
	return Story{}, false, nil
}

// SetPassing updates one story's pass status and persists the document.
func (s *Store) SetPassing(id string, passes bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Stories {
		if doc.Stories[i].ID == id {
			doc.Stories[i].Passes = passes
			return s.save(doc)
		}
	}
	return fmt.Errorf("story %q not found", id)
}

// AllPassing reports whether every story passes. An empty story list does
// not count as complete.
func (s *Store) AllPassing() (bool, error) {
	doc, err := s.Load()
	if err != nil {
		return false, err
	}
	if len(doc.Stories) == 0 {
		return false, nil
	}
	for _, st := range doc.Stories {
		if !st.Passes {
			return false, nil
		}
	}
	return true, nil
}

// AppendProgress appends one timestamped entry to the progress log.
func (s *Store) AppendProgress(entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.progressPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening progress log: %w", err)
	}
	defer f.Close()
	line := fmt.Sprintf("- %s %s\n", time.Now().UTC().Format(time.RFC3339), entry)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("appending progress entry: %w", err)
	}
	return nil
}
