package trace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/statetrace/api/schemas"
	"github.com/xkilldash9x/statetrace/internal/screenshots"
)

// Recorder owns one session's append-only history. Each recorded step becomes
// a HistoryEntry appended both to the in-memory list and to the session's
// trace.jsonl, one JSON document per line. The file is written first, so a
// crash can lose at most the step being recorded, never corrupt earlier ones.
//
// A session is driven by a single agent loop; the mutex exists so a stray
// concurrent Record cannot interleave file writes.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	entries []*schemas.HistoryEntry
	step    int

	sessionID string
	dir       string
	resolver  schemas.ElementResolver
	shots     *screenshots.Store
	logger    *zap.Logger
}

// SessionPath returns the trace file location for a session under a storage
// root.
func SessionPath(root, sessionID string) string {
	return filepath.Join(root, sessionID, TraceFileName)
}

// NewRecorder opens a recorder for one session under the storage root,
// creating the session directory and trace file. An empty sessionID gets a
// generated UUID. A nil resolver records every element by plain descriptor
// copy.
func NewRecorder(root, sessionID string, resolver schemas.ElementResolver, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if resolver == nil {
		resolver = schemas.ResolverFunc(func(node *schemas.ElementNode) *schemas.DOMHistoryElement {
			if node == nil {
				return nil
			}
			return node.HistoryElement()
		})
	}

	dir := filepath.Join(root, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	path := filepath.Join(dir, TraceFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}

	logger = logger.Named("recorder").With(zap.String("session_id", sessionID))
	logger.Info("Recording session", zap.String("trace", path))

	return &Recorder{
		file:      file,
		sessionID: sessionID,
		dir:       dir,
		resolver:  resolver,
		shots:     screenshots.NewStore(root, logger),
		logger:    logger,
	}, nil
}

// SessionID returns the session this recorder writes.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Dir returns the session directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// TracePath returns the trace file this recorder appends to.
func (r *Recorder) TracePath() string {
	return filepath.Join(r.dir, TraceFileName)
}

// Entries returns the history recorded so far. The returned slice is a copy;
// the entries themselves are shared and must be treated as read-only.
func (r *Recorder) Entries() []*schemas.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*schemas.HistoryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Steps returns how many steps have been recorded.
func (r *Recorder) Steps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}

// Record projects one agent step into the durable history. targets lists the
// element acted on by each action of the step, in action order; nil targets
// and resolver misses become unresolved slots, so the slot list always has
// exactly one slot per action. The snapshot's inline screenshot is relocated
// to the screenshot store unless it is empty or the blank-page placeholder.
func (r *Recorder) Record(ctx context.Context, snap *schemas.StateSnapshot, targets []*schemas.ElementNode) (*schemas.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("recording step: nil snapshot")
	}
	if err := schemas.ValidateTabs(snap.Tabs); err != nil {
		return nil, fmt.Errorf("recording step: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil, fmt.Errorf("recording step: recorder closed")
	}
	step := r.step + 1

	slots := make([]schemas.ElementSlot, 0, len(targets))
	for _, node := range targets {
		if node == nil {
			slots = append(slots, schemas.UnresolvedSlot())
			continue
		}
		if el := r.resolver.Resolve(node); el != nil {
			slots = append(slots, schemas.ResolvedSlot(el))
		} else {
			slots = append(slots, schemas.UnresolvedSlot())
		}
	}

	// A lost screenshot degrades the entry, it never fails the step.
	screenshotPath := ""
	if snap.Screenshot != "" && snap.Screenshot != schemas.PlaceholderScreenshot {
		path, err := r.shots.Save(r.sessionID, step, snap.Screenshot)
		if err != nil {
			r.logger.Warn("Could not persist step screenshot", zap.Int("step", step), zap.Error(err))
		} else {
			screenshotPath = path
		}
	}

	entry := schemas.NewHistoryEntry(snap, slots, screenshotPath)
	line, err := EncodeEntry(entry)
	if err != nil {
		return nil, err
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("appending trace line: %w", err)
	}

	r.step = step
	r.entries = append(r.entries, entry)
	r.logger.Debug("Recorded step",
		zap.Int("step", step),
		zap.String("url", entry.URL),
		zap.Int("slots", len(entry.InteractedElements)))
	return entry, nil
}

// Close flushes and closes the trace file. Record fails afterwards.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	syncErr := r.file.Sync()
	closeErr := r.file.Close()
	r.file = nil
	if syncErr != nil {
		return fmt.Errorf("syncing trace file: %w", syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing trace file: %w", closeErr)
	}
	return nil
}
