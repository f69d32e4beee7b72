package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore is a JSONL event log. Each line is one Event; contacts go to a
// sibling file with a `.contacts.jsonl` suffix.
type FileStore struct {
	path         string
	contactsPath string
	mu           sync.Mutex
	lastID       int64
	now          func() time.Time
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure log dir: %w", err)
	}
	s := &FileStore{path: path, contactsPath: path + ".contacts.jsonl", now: time.Now}
	for _, p := range []string{s.path, s.contactsPath} {
		f, err := os.OpenFile(p, os.O_CREATE, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to init log file: %w", err)
		}
		_ = f.Close()
	}
	events, err := s.loadUnlocked()
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.ID > s.lastID {
			s.lastID = ev.ID
		}
	}
	return s, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) Append(_ context.Context, userID int64, kind Kind, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := Event{ID: s.lastID + 1, UserID: userID, Kind: kind, Detail: detail, CreatedAt: s.now().UTC()}
	if err := appendJSONLine(s.path, ev); err != nil {
		return err
	}
	s.lastID = ev.ID
	return nil
}

func (s *FileStore) FetchRecent(_ context.Context, userID int64, kinds []Kind, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.loadUnlocked()
	if err != nil {
		return nil, err
	}
	set := kindSet(kinds)
	var out []Event
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if events[i].UserID == userID && matches(set, events[i]) {
			out = append(out, events[i])
		}
	}
	return out, nil
}

func (s *FileStore) FetchAll(_ context.Context, userID int64) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.loadUnlocked()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, ev := range events {
		if ev.UserID == userID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *FileStore) FetchSince(_ context.Context, since time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.loadUnlocked()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, ev := range events {
		if !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *FileStore) SaveContact(_ context.Context, userID int64, name, contact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendJSONLine(s.contactsPath, Contact{UserID: userID, Name: name, Contact: contact, CreatedAt: s.now().UTC()})
}

func (s *FileStore) ContactsSince(_ context.Context, since time.Time) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Contact
	err := scanJSONLines(s.contactsPath, func(line []byte) {
		var c Contact
		if json.Unmarshal(line, &c) == nil && !c.CreatedAt.Before(since) {
			out = append(out, c)
		}
	})
	return out, err
}

// loadUnlocked reads the whole log; malformed lines are skipped.
func (s *FileStore) loadUnlocked() ([]Event, error) {
	var events []Event
	err := scanJSONLines(s.path, func(line []byte) {
		var ev Event
		if json.Unmarshal(line, &ev) == nil {
			events = append(events, ev)
		}
	})
	return events, err
}

func scanJSONLines(path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open read: %w", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	sc.Buffer(buf, 10*1024*1024)
	for sc.Scan() {
		if line := sc.Bytes(); len(line) > 0 {
			fn(line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

func appendJSONLine(path string, v any) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open append: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("encode append: %w", err)
	}
	return nil
}
