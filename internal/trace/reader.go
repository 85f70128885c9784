package trace

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/xkilldash9x/statetrace/api/schemas"
)

// maxTraceLine bounds a single trace line. Entries are envelopes of tab lists
// and element descriptors; anything beyond this is a corrupt file, not data.
const maxTraceLine = 16 * 1024 * 1024

// Reader loads recorded sessions from disk.
type Reader struct {
	logger *zap.Logger
}

// NewReader creates a reader.
func NewReader(logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{logger: logger.Named("reader")}
}

// ReadSession loads every entry of a trace file in recorded order. Files
// ending in .br are transparently decompressed.
//
// A malformed final line is tolerated: a recorder killed mid-append leaves
// exactly that artifact, and the surviving prefix is still a valid history.
// Malformed lines anywhere else fail the read.
func (r *Reader) ReadSession(path string) ([]*schemas.HistoryEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	defer file.Close()

	var src io.Reader = file
	if strings.HasSuffix(path, CompressedSuffix) {
		src = brotli.NewReader(file)
	}

	entries, err := r.decodeAll(src)
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", path, err)
	}
	return entries, nil
}

// Load finds and reads a session under a storage root, preferring the live
// trace.jsonl and falling back to a compressed archive of it.
func (r *Reader) Load(root, sessionID string) ([]*schemas.HistoryEntry, error) {
	plain := SessionPath(root, sessionID)
	if _, err := os.Stat(plain); err == nil {
		return r.ReadSession(plain)
	}
	compressed := plain + CompressedSuffix
	if _, err := os.Stat(compressed); err == nil {
		return r.ReadSession(compressed)
	}
	return nil, fmt.Errorf("session %s: no trace file under %s", sessionID, root)
}

func (r *Reader) decodeAll(src io.Reader) ([]*schemas.HistoryEntry, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTraceLine)

	var entries []*schemas.HistoryEntry
	var pendingErr error
	pendingLine := 0
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		// A decode failure is only fatal once a later line proves the file
		// continued past it.
		if pendingErr != nil {
			return nil, fmt.Errorf("line %d: %w", pendingLine, pendingErr)
		}
		entry, err := DecodeEntry(raw)
		if err != nil {
			pendingErr, pendingLine = err, lineNo
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	if pendingErr != nil {
		r.logger.Warn("Dropping truncated final trace line",
			zap.Int("line", pendingLine),
			zap.NamedError("cause", pendingErr))
	}
	return entries, nil
}

// ListSessions returns the IDs of every session found under a storage root:
// directories holding a trace file, plain or compressed. IDs come back
// sorted for stable CLI output.
func ListSessions(root string) ([]string, error) {
	dirs, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	var ids []string
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		base := filepath.Join(root, dir.Name(), TraceFileName)
		if fileExists(base) || fileExists(base+CompressedSuffix) {
			ids = append(ids, dir.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
