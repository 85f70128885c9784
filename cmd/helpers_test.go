// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/statetrace/api/schemas"
	"github.com/xkilldash9x/statetrace/internal/config"
	"github.com/xkilldash9x/statetrace/internal/observability"
	"github.com/xkilldash9x/statetrace/internal/trace"
)

// resetForTest provides the single source of truth for resetting test state.
func resetForTest(t *testing.T) {
	t.Helper()

	// Reset package-level variables from root.go.
	cfgFile = ""

	// Re-initialize the logger to a silent state. Consuming the sync.Once
	// here keeps command bootstraps from reconfiguring it mid-test.
	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
}

// writeTestConfig writes a minimal config.yaml rooted at the given storage
// directory and returns its path.
func writeTestConfig(t *testing.T, storageRoot string) string {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf("logger:\n  level: fatal\n  log_file: \"\"\nstorage:\n  root: %s\n", storageRoot)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath
}

// appendToFile adds raw YAML to an existing config file.
func appendToFile(t *testing.T, path, content string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
}

// executeCommand runs a pristine command tree with the given args and returns
// everything it printed.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// sampleEntry builds one history entry with the given step texture.
func sampleEntry(t *testing.T, url, title string, screenshotPath string) *schemas.HistoryEntry {
	t.Helper()

	parent := 0
	snap := schemas.NewStateSnapshot(schemas.DOMState{}, url, title, []schemas.TabInfo{
		{PageID: 0, URL: url, Title: title},
		{PageID: 1, URL: url + "/child", Title: title + " child", ParentPageID: &parent},
	})

	slots := []schemas.ElementSlot{
		schemas.ResolvedSlot(&schemas.DOMHistoryElement{
			TagName:                "button",
			XPath:                  "//button[1]",
			EntireParentBranchPath: []string{"html", "body", "button"},
			Attributes:             map[string]string{"id": "cta"},
		}),
		schemas.UnresolvedSlot(),
	}
	return schemas.NewHistoryEntry(snap, slots, screenshotPath)
}

// seedSession writes a two-step trace file under root and returns its entries.
func seedSession(t *testing.T, root, sessionID string) []*schemas.HistoryEntry {
	t.Helper()

	entries := []*schemas.HistoryEntry{
		sampleEntry(t, "https://example.com", "Example", ""),
		sampleEntry(t, "https://example.com/next", "Next", ""),
	}

	dir := filepath.Join(root, sessionID)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	var buf bytes.Buffer
	for _, entry := range entries {
		line, err := trace.EncodeEntry(entry)
		require.NoError(t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(trace.SessionPath(root, sessionID), buf.Bytes(), 0o644))
	return entries
}

// -- Archive Mocks --

// mockArchive is an in-memory schemas.SessionArchive.
type mockArchive struct {
	sessions   map[string][]*schemas.HistoryEntry
	summaries  []schemas.SessionSummary
	archiveErr error
	loadErr    error
	listErr    error
}

func newMockArchive() *mockArchive {
	return &mockArchive{sessions: make(map[string][]*schemas.HistoryEntry)}
}

func (m *mockArchive) ArchiveSession(_ context.Context, sessionID string, entries []*schemas.HistoryEntry) error {
	if m.archiveErr != nil {
		return m.archiveErr
	}
	m.sessions[sessionID] = entries
	return nil
}

func (m *mockArchive) LoadSession(_ context.Context, sessionID string) ([]*schemas.HistoryEntry, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.sessions[sessionID], nil
}

func (m *mockArchive) ListSessions(_ context.Context, limit int) ([]schemas.SessionSummary, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if limit > 0 && limit < len(m.summaries) {
		return m.summaries[:limit], nil
	}
	return m.summaries, nil
}

// mockStoreProvider injects a mockArchive in place of a live database.
type mockStoreProvider struct {
	archive       schemas.SessionArchive
	createErr     error
	cleanupCalled bool
}

func (p *mockStoreProvider) Create(_ context.Context, _ *config.Config) (schemas.SessionArchive, func(), error) {
	if p.createErr != nil {
		return nil, nil, p.createErr
	}
	return p.archive, func() { p.cleanupCalled = true }, nil
}
