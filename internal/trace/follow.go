package trace

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/xkilldash9x/statetrace/api/schemas"
)

// Follower streams entries as a live recorder appends them to a trace file.
type Follower struct {
	logger *zap.Logger
}

// NewFollower creates a follower.
func NewFollower(logger *zap.Logger) *Follower {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{logger: logger.Named("follower")}
}

// Follow tails the trace file and delivers each appended entry on the
// returned channel until ctx ends, after which the channel closes and the
// watcher shuts down. With fromStart the existing content is replayed before
// new appends.
//
// Lines that fail to decode are logged and skipped: the producer may be
// mid-append, and the next complete line resynchronizes the stream.
func (f *Follower) Follow(ctx context.Context, path string, fromStart bool) (<-chan *schemas.HistoryEntry, error) {
	if strings.HasSuffix(path, CompressedSuffix) {
		return nil, fmt.Errorf("cannot follow %s: compressed traces are finished sessions", path)
	}

	var location *tail.SeekInfo
	if !fromStart {
		location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	// Polling instead of inotify: it behaves identically on every
	// filesystem and its goroutines stop with the tail.
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      true,
		Location:  location,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("tailing trace file: %w", err)
	}

	out := make(chan *schemas.HistoryEntry)
	go f.pump(ctx, t, out)
	return out, nil
}

func (f *Follower) pump(ctx context.Context, t *tail.Tail, out chan<- *schemas.HistoryEntry) {
	defer func() {
		// The tailer sends lines with a blocking write; keep draining while
		// Stop waits for it, or a line arriving during shutdown wedges both.
		go func() {
			for range t.Lines {
			}
		}()
		t.Stop()
		t.Cleanup()
		close(out)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-t.Lines:
			if !ok {
				f.logger.Info("Trace file tail closed")
				return
			}
			if line.Err != nil {
				f.logger.Warn("Error reading trace file", zap.Error(line.Err))
				continue
			}
			text := strings.TrimSpace(line.Text)
			if text == "" {
				continue
			}
			entry, err := DecodeEntry([]byte(text))
			if err != nil {
				f.logger.Warn("Skipping undecodable trace line", zap.Error(err))
				continue
			}
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			}
		}
	}
}
