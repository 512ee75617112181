package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"social_automation/domain/entities"
)

const profileStateFile = "profile_state.json"

// ProfileState is bookkeeping kept next to a persistent browser profile
type ProfileState struct {
	Platform  entities.Platform `json:"platform"`
	Account   string            `json:"account"`
	CreatedAt time.Time         `json:"created_at"`
	LastUsed  time.Time         `json:"last_used"`
	Sessions  int               `json:"sessions"`
}

// ProfileStore manages on-disk browser profile directories, one per
// (platform, account)
type ProfileStore struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NewProfileStore - creates profile storage rooted at dir
func NewProfileStore(dir string) (*ProfileStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		dir = filepath.Join(homeDir, ".social_automation", "browser_profiles")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	return &ProfileStore{root: dir, now: time.Now}, nil
}

// Root - base directory
func (s *ProfileStore) Root() string {
	return s.root
}

// Dir - returns (and creates) the profile directory for a credential
func (s *ProfileStore) Dir(platform entities.Platform, account string) (string, error) {
	if account == "" {
		account = entities.DefaultAccount
	}
	dir := filepath.Join(s.root, string(platform), unsafeName.ReplaceAllString(account, "_"))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create profile for %s/%s: %w", platform, account, err)
	}
	return dir, nil
}

// Touch - records one more session on the profile
func (s *ProfileStore) Touch(platform entities.Platform, account string) (ProfileState, error) {
	dir, err := s.Dir(platform, account)
	if err != nil {
		return ProfileState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(dir)
	if err != nil {
		return ProfileState{}, err
	}
	now := s.now()
	if state.CreatedAt.IsZero() {
		state.Platform = platform
		state.Account = account
		state.CreatedAt = now
	}
	state.LastUsed = now
	state.Sessions++

	data, err := json.Marshal(state)
	if err != nil {
		return ProfileState{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, profileStateFile), data, 0644); err != nil {
		return ProfileState{}, fmt.Errorf("failed to save profile state: %w", err)
	}
	return state, nil
}

// State - loads profile bookkeeping, zero value if never used
func (s *ProfileStore) State(platform entities.Platform, account string) (ProfileState, error) {
	dir, err := s.Dir(platform, account)
	if err != nil {
		return ProfileState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(dir)
}

func (s *ProfileStore) load(dir string) (ProfileState, error) {
	var state ProfileState
	data, err := os.ReadFile(filepath.Join(dir, profileStateFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return state, nil
		}
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("corrupt profile state in %s: %w", dir, err)
	}
	return state, nil
}
