// File: cmd/tail_test.go
package cmd

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/statetrace/internal/trace"
)

// syncBuffer lets the test poll command output while the command is running.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTailCommandFromStart(t *testing.T) {
	resetForTest(t)
	root := t.TempDir()
	cfgPath := writeTestConfig(t, root)
	entries := seedSession(t, root, "sess-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCmd()
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--config", cfgPath, "tail", "sess-1", "--from-start", "--json"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- cmd.ExecuteContext(ctx)
	}()

	// Both seeded entries should stream out, then the interrupt ends the tail.
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "\n") >= len(entries)
	}, 10*time.Second, 25*time.Millisecond, "expected %d trace lines, got output: %q", len(entries), out.String())

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("tail did not stop after cancellation")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, len(entries))
	for i, line := range lines {
		entry, err := trace.DecodeEntry([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, entries[i].URL, entry.URL)
	}
}
