package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"social_automation/domain/entities"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const credentialCacheSize = 16

type cachedRecord struct {
	record  entities.CredentialRecord
	modTime time.Time
	size    int64
}

// FileCredentialStore reads platforms_auth.json-style files:
//
//	{"instagram": {"sessionToken": "..."}, "twitter": {"cookies": {...}, "domain": ".x.com"}}
//
// Parsed records are cached and re-read when the file's mtime changes, so
// rotating credentials never needs a restart.
type FileCredentialStore struct {
	path   string
	logger *logrus.Logger
	cache  *lru.Cache[entities.Platform, cachedRecord]

	mu sync.Mutex
}

// NewFileCredentialStore - creates store over the credential file at path
func NewFileCredentialStore(path string, logger *logrus.Logger) (*FileCredentialStore, error) {
	if path == "" {
		return nil, fmt.Errorf("credential file path required")
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	cache, err := lru.New[entities.Platform, cachedRecord](credentialCacheSize)
	if err != nil {
		return nil, err
	}
	return &FileCredentialStore{path: filepath.Clean(path), logger: logger, cache: cache}, nil
}

// Path - credential file location
func (s *FileCredentialStore) Path() string {
	return s.path
}

// LoadCredentials - returns the record for platform, AuthMissing when the
// file or the platform entry does not exist
func (s *FileCredentialStore) LoadCredentials(ctx context.Context, platform entities.Platform) (entities.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return entities.CredentialRecord{}, err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entities.CredentialRecord{}, entities.AuthMissing("credential file %s not found", filepath.Base(s.path))
		}
		return entities.CredentialRecord{}, fmt.Errorf("failed to stat credential file: %w", err)
	}

	if cached, ok := s.cache.Get(platform); ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.record, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readFile()
	if err != nil {
		return entities.CredentialRecord{}, err
	}

	for p, rec := range records {
		s.cache.Add(p, cachedRecord{record: rec, modTime: info.ModTime(), size: info.Size()})
	}

	rec, ok := records[platform]
	if !ok {
		s.cache.Remove(platform)
		return entities.CredentialRecord{}, entities.AuthMissing("no credentials stored for %s", platform)
	}
	return rec, nil
}

func (s *FileCredentialStore) readFile() (map[entities.Platform]entities.CredentialRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, entities.AuthMissing("credential file %s not found", filepath.Base(s.path))
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}

	records := make(map[entities.Platform]entities.CredentialRecord, len(raw))
	for key, body := range raw {
		platform, err := entities.ParsePlatform(key)
		if err != nil {
			s.logger.WithField("key", key).Warn("Ignoring credentials for unknown platform")
			continue
		}
		var rec entities.CredentialRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			s.logger.WithError(err).WithField("platform", platform).Warn("Ignoring malformed credential entry")
			continue
		}
		rec.Platform = platform
		if rec.Account == "" {
			rec.Account = entities.DefaultAccount
		}
		records[platform] = rec
	}
	return records, nil
}

// Invalidate - drops the cached record so the next load re-reads the file
func (s *FileCredentialStore) Invalidate(platform entities.Platform) {
	s.cache.Remove(platform)
}

// Save - writes a record back into the file, keeping other platforms
func (s *FileCredentialStore) Save(rec entities.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := map[string]any{}
	if data, err := os.ReadFile(s.path); err == nil {
		var existing map[string]json.RawMessage
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("failed to parse credential file: %w", err)
		}
		for k, v := range existing {
			raw[k] = v
		}
	}

	entry := map[string]any{}
	if rec.Account != "" && rec.Account != entities.DefaultAccount {
		entry["account"] = rec.Account
	}
	cookies := orderedCookies{}
	for _, sec := range rec.Secrets {
		if sec.Name == entities.SessionTokenName {
			entry["sessionToken"] = sec.Value
			continue
		}
		cookies = append(cookies, sec)
	}
	if len(cookies) > 0 {
		entry["cookies"] = cookies
	}
	if rec.Domain != "" {
		entry["domain"] = rec.Domain
	}
	if rec.Path != "" {
		entry["path"] = rec.Path
	}
	raw[string(rec.Platform)] = entry

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	s.cache.Remove(rec.Platform)
	return nil
}

// orderedCookies marshals as a JSON object preserving secret order
type orderedCookies []entities.Secret

func (o orderedCookies) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, sec := range o {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(sec.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(sec.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

// Watch - purges the cache whenever the credential file is rewritten.
// Blocks until ctx is done.
func (s *FileCredentialStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// editors replace files by rename, so watch the directory
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.cache.Purge()
			s.logger.WithField("file", s.path).Info("Credential file changed, cache purged")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warnf("Credential watcher error: %v", err)
		}
	}
}
