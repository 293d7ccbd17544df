// Package store persists the little state the dashboard keeps between runs:
// the day's provider timings, the last geolocation result, and whether audio
// was approved for an origin.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/api"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/geo"
)

const (
	timingsFile   = "timings_%s.json" // keyed by hash
	geoFile       = "geolocation.json"
	approvalsFile = "audio_approval.json"
	geoTTL        = 24 * time.Hour
)

// FileStore keeps JSON files in a single directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// TimingsKey holds every parameter that changes a day's timings.
type TimingsKey struct {
	Date      time.Time
	Latitude  float64
	Longitude float64
	Method    int
	School    int
	Timezone  string
}

// TimingsEntry stores a day's provider response along with metadata for validation.
type TimingsEntry struct {
	Date     string        `json:"date"` // YYYY-MM-DD
	Method   int           `json:"method"`
	School   int           `json:"school"`
	Response *api.Response `json:"response"`
}

// GeoEntry stores a cached geolocation result with a timestamp.
type GeoEntry struct {
	Location geo.Location `json:"location"`
	CachedAt time.Time    `json:"cached_at"`
}

// New creates a FileStore rooted at the given directory.
// If dir is empty, it defaults to ~/.cache/mosque-dashboard/.
func New(dir string) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".cache", "mosque-dashboard")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory %s: %w", dir, err)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string { return s.dir }

// cacheKey builds a deterministic hash from the parameters that affect prayer times.
func cacheKey(k TimingsKey) string {
	raw := fmt.Sprintf("%s|%.6f|%.6f|%d|%d|%s",
		k.Date.Format("2006-01-02"), k.Latitude, k.Longitude, k.Method, k.School, k.Timezone)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}

func (s *FileStore) timingsPath(k TimingsKey) string {
	return filepath.Join(s.dir, fmt.Sprintf(timingsFile, cacheKey(k)))
}

// LoadTimings returns the cached response for k, or nil when the cache is
// missing, unreadable or for another day.
func (s *FileStore) LoadTimings(k TimingsKey) *api.Response {
	data, err := os.ReadFile(s.timingsPath(k))
	if err != nil {
		return nil
	}

	var entry TimingsEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}

	// A previous day's entry is useless.
	if entry.Date != k.Date.Format("2006-01-02") || entry.Response == nil {
		return nil
	}

	return entry.Response
}

// SaveTimings writes a provider response to the cache.
func (s *FileStore) SaveTimings(k TimingsKey, resp *api.Response) error {
	entry := TimingsEntry{
		Date:     k.Date.Format("2006-01-02"),
		Method:   k.Method,
		School:   k.School,
		Response: resp,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := writeFileAtomic(s.timingsPath(k), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// LoadGeo returns the cached geolocation, or nil when missing or older than
// 24 hours.
func (s *FileStore) LoadGeo() *geo.Location {
	data, err := os.ReadFile(filepath.Join(s.dir, geoFile))
	if err != nil {
		return nil
	}

	var entry GeoEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}

	if time.Since(entry.CachedAt) > geoTTL {
		return nil
	}

	return &entry.Location
}

// SaveGeo writes a geolocation result to the cache.
func (s *FileStore) SaveGeo(loc *geo.Location) error {
	data, err := json.Marshal(GeoEntry{Location: *loc, CachedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal geo cache: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(s.dir, geoFile), data); err != nil {
		return fmt.Errorf("failed to write geo cache: %w", err)
	}

	return nil
}

// Approved reports whether audio was approved for origin.
func (s *FileStore) Approved(_ context.Context, origin string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approvals, err := s.readApprovals()
	if err != nil {
		return false, err
	}
	return approvals[origin], nil
}

// SetApproved records the approval flag for origin.
func (s *FileStore) SetApproved(_ context.Context, origin string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	approvals, err := s.readApprovals()
	if err != nil {
		// Overwrite a corrupt file.
		approvals = map[string]bool{}
	}
	if approved {
		approvals[origin] = true
	} else {
		delete(approvals, origin)
	}

	data, err := json.MarshalIndent(approvals, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal approvals: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, approvalsFile), data); err != nil {
		return fmt.Errorf("failed to write approvals: %w", err)
	}
	return nil
}

// readApprovals must be called with s.mu held.
func (s *FileStore) readApprovals() (map[string]bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, approvalsFile))
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read approvals: %w", err)
	}

	approvals := map[string]bool{}
	if err := json.Unmarshal(data, &approvals); err != nil {
		return nil, fmt.Errorf("failed to parse approvals: %w", err)
	}
	return approvals, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
