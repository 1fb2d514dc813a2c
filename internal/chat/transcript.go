package chat

import (
	"context"
	"os"
	"time"

	errs "minechat/internal/errors"
	"minechat/internal/queue"
	"minechat/util"
)

// timestampLayout renders as [DD.MM.YYYY HH:MM].
const timestampLayout = "02.01.2006 15:04"

// FormatEntry renders one transcript entry.  line keeps its own
// trailing newline.
func FormatEntry(ts time.Time, line string) string {
	return "[" + ts.Format(timestampLayout) + "] " + line
}

// Transcript appends received lines to a text file.  The file is
// opened, written and closed for every entry, so nothing logged is lost
// if the process dies and no handle is held while waiting for input.
type Transcript struct {
	path   string
	lines  *queue.Queue[string]
	logger *util.Logger

	now func() time.Time
}

// NewTranscript creates a Transcript writing to path.
func NewTranscript(path string, ch *Channels, logger *util.Logger) *Transcript {
	return &Transcript{
		path:   path,
		lines:  ch.Transcript,
		logger: logger.Named("transcript"),
		now:    time.Now,
	}
}

// Run persists queued lines until a write fails or ctx is cancelled.
// A line that could not be written stays at the head of the queue.
func (t *Transcript) Run(ctx context.Context) error {
	for {
		line, err := t.lines.Pop(ctx)
		if err != nil {
			return err
		}
		if err := t.Append(line); err != nil {
			t.lines.PushFront(line)
			t.logger.Error("%v", err)
			return err
		}
	}
}

// Append writes one timestamped entry, creating the file if needed.
func (t *Transcript) Append(line string) error {
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &errs.LogWriteError{Path: t.path, Err: err}
	}

	_, err = f.WriteString(FormatEntry(t.now(), line))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &errs.LogWriteError{Path: t.path, Err: err}
	}
	return nil
}
