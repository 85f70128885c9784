// Package trace records agent steps as append-only JSONL session files and
// reads, follows and exports them.
package trace

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/statetrace/api/schemas"
)

// TraceFileName is the session history file inside a session directory.
const TraceFileName = "trace.jsonl"

// CompressedSuffix marks brotli-compressed trace and export files.
const CompressedSuffix = ".br"

// EncodeEntry renders one history entry as a single JSON document, the line
// format of trace files. The output carries the canonical ToDict key set.
func EncodeEntry(entry *schemas.HistoryEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding history entry: %w", err)
	}
	return data, nil
}

// DecodeEntry parses one trace line back into a history entry. Decoding goes
// through the generic dict form so the result is exactly what
// HistoryEntryFromDict guarantees: lossless for every field ToDict emits.
func DecodeEntry(line []byte) (*schemas.HistoryEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("decoding trace line: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decoding trace line: null document")
	}
	entry, err := schemas.HistoryEntryFromDict(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding trace line: %w", err)
	}
	return entry, nil
}
