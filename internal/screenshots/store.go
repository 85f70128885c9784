// Package screenshots persists step captures on disk so history entries can
// reference them by path instead of dragging base64 payloads through every
// trace file and archive row.
package screenshots

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Store writes and prunes captures under a fixed per-session layout:
//
//	<root>/<session-id>/screenshots/step_0001.png
//
// Step numbers give the files a stable chronological order without relying
// on filesystem timestamps.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore creates a store rooted at the given directory. The directory does
// not need to exist yet; Save creates what it needs.
func NewStore(root string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: root, logger: logger.Named("screenshots")}
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// SessionDir returns the capture directory for one session.
func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID, "screenshots")
}

// Path returns the deterministic location of a step's capture, whether or not
// it exists yet.
func (s *Store) Path(sessionID string, step int) string {
	return filepath.Join(s.SessionDir(sessionID), fmt.Sprintf("step_%04d.png", step))
}

// Save decodes the base64 capture and writes it as the given step's PNG,
// returning the absolute path for embedding in the step's history entry.
func (s *Store) Save(sessionID string, step int, b64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decoding screenshot for step %d: %w", step, err)
	}

	dir := s.SessionDir(sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating screenshot directory: %w", err)
	}

	path := s.Path(sessionID, step)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing screenshot for step %d: %w", step, err)
	}

	s.logger.Debug("Saved screenshot",
		zap.String("session_id", sessionID),
		zap.Int("step", step),
		zap.Int("bytes", len(data)))
	return path, nil
}

// Prune deletes all but the newest keepLast captures of a session and reports
// how many files it removed. History entries referencing the removed files
// keep working; their screenshot reads just report absence from then on.
func (s *Store) Prune(sessionID string, keepLast int) (int, error) {
	if keepLast < 0 {
		keepLast = 0
	}
	files, err := s.listCaptures(sessionID)
	if err != nil {
		return 0, err
	}
	if len(files) <= keepLast {
		return 0, nil
	}
	return s.remove(files[:len(files)-keepLast]), nil
}

// PruneOlderThan sweeps every session under the root and deletes captures
// whose modification time predates the given age, reporting how many files
// it removed across all sessions.
func (s *Store) PruneOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := s.pruneSessionOlderThan(entry.Name(), cutoff)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func (s *Store) pruneSessionOlderThan(sessionID string, cutoff time.Time) (int, error) {
	files, err := s.listCaptures(sessionID)
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			s.logger.Warn("Could not stat screenshot during prune", zap.String("path", path), zap.Error(err))
			continue
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, path)
		}
	}
	return s.remove(stale), nil
}

// listCaptures returns the session's capture paths in step order. A session
// with no capture directory simply has nothing to list.
func (s *Store) listCaptures(sessionID string) ([]string, error) {
	dir := s.SessionDir(sessionID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing screenshots: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "step_") || !strings.HasSuffix(name, ".png") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	// Zero-padded step numbers make lexical order chronological order.
	sort.Strings(files)
	return files, nil
}

func (s *Store) remove(paths []string) int {
	removed := 0
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			s.logger.Warn("Could not remove screenshot", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}
