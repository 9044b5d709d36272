// Package store persists chats and messages as JSON files. The queue treats
// it as fire-and-forget side recording; pipeline correctness never depends
// on a save succeeding.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentpipe/agentpipe/message"
)

// ErrNotFound is returned when a chat or message does not exist.
var ErrNotFound = errors.New("not found")

// Chat is a persisted conversation.
type Chat struct {
	ID        string             `json:"id"`
	Title     string             `json:"title,omitempty"`
	Messages  []*message.Message `json:"messages"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewChat creates an empty chat with a fresh ID.
func NewChat(title string) *Chat {
	now := time.Now()
	return &Chat{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Store is a JSON-file chat store with an in-memory cache.
type Store struct {
	mu    sync.Mutex
	dir   string
	cache map[string]*Chat
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{
		dir:   dir,
		cache: make(map[string]*Chat),
	}, nil
}

// SaveChat writes the chat to disk.
func (s *Store) SaveChat(c *Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = time.Now()
	s.cache[c.ID] = c
	return s.write(c)
}

// SaveMessage appends a message to an existing chat. Fails with ErrNotFound
// when the chat does not exist.
func (s *Store) SaveMessage(msg *message.Message, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(chatID)
	if err != nil {
		return err
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	return s.write(c)
}

// Chat returns a chat by ID.
func (s *Store) Chat(id string) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

// Chats returns all chats ordered most recently updated first.
func (s *Store) Chats() ([]*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}

	var chats []*Chat
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		c, err := s.load(id)
		if err != nil {
			continue // corrupt or vanished entries are skipped
		}
		chats = append(chats, c)
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

// DeleteChat removes a chat and its file.
func (s *Store) DeleteChat(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(id); err != nil {
		return err
	}
	delete(s.cache, id)
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

// DeleteMessage removes a message by ID from whichever chat holds it.
func (s *Store) DeleteMessage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read store dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		c, err := s.load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		for i, m := range c.Messages {
			if m.ID == id {
				c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
				c.UpdatedAt = time.Now()
				return s.write(c)
			}
		}
	}
	return ErrNotFound
}

// load returns a cached chat or reads it from disk. Caller holds s.mu.
func (s *Store) load(id string) (*Chat, error) {
	if c, ok := s.cache[id]; ok {
		return c, nil
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read chat: %w", err)
	}
	var c Chat
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse chat: %w", err)
	}
	s.cache[id] = &c
	return &c, nil
}

// write persists a chat. Caller holds s.mu.
func (s *Store) write(c *Chat) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	if err := os.WriteFile(s.path(c.ID), data, 0644); err != nil {
		return fmt.Errorf("write chat: %w", err)
	}
	return nil
}

func (s *Store) path(id string) string {
	safe := strings.ReplaceAll(id, "/", "_")
	return filepath.Join(s.dir, safe+".json")
}
