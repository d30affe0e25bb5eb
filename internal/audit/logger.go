package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tabone/drone/internal/command"
	"github.com/tabone/drone/internal/navdata"
)

// Actions.
const (
	ActionCommandDropped = command.ActionDropped
	ActionChannelFailure = command.ActionChannelFailure
	ActionModeChange     = "navdata.mode"
)

// FileName is the audit file inside the audit directory.
const FileName = "audit.jsonl"

// Entry is one audit record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Action    string    `json:"action"`
	Command   string    `json:"command,omitempty"`
	Seq       uint32    `json:"seq"`
	Outcome   string    `json:"outcome"`
	Code      string    `json:"code"`
	Detail    string    `json:"detail,omitempty"`
}

// Options configures rotation. Zero values select lumberjack's defaults.
type Options struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger appends audit records.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
	closed   bool
}

// NewLogger creates a logger writing to <dir>/audit.jsonl.
func NewLogger(opts Options) (*Logger, error) {
	if opts.Dir == "" {
		return nil, errors.New("audit directory not set")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	path := filepath.Join(opts.Dir, FileName)
	return &Logger{
		filePath: path,
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
	}, nil
}

// LogCommand records a dropped command or a command channel failure. It
// satisfies command.AuditLogger.
func (l *Logger) LogCommand(action, cmd string, seq uint32, err error) {
	e := Entry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Command:   cmd,
		Seq:       seq,
		Outcome:   "FAILURE",
		Code:      codeFor(err),
	}
	if err != nil {
		e.Detail = err.Error()
	}
	l.write(e)
}

// LogModeChange records a NAVDATA mode transition.
func (l *Logger) LogModeChange(t navdata.Transition) {
	l.write(Entry{
		Timestamp: time.Now().UTC(),
		Action:    ActionModeChange,
		Seq:       t.Sequence,
		Outcome:   "SUCCESS",
		Code:      "OK",
		Detail:    t.From.String() + " -> " + t.To.String(),
	})
}

// LogChannelFailure records a failure of either channel outside the
// scheduler, such as a NAVDATA initialization error.
func (l *Logger) LogChannelFailure(channel string, err error) {
	l.write(Entry{
		Timestamp: time.Now().UTC(),
		Action:    ActionChannelFailure,
		Outcome:   "FAILURE",
		Code:      codeFor(err),
		Detail:    channel + ": " + errString(err),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// codeFor maps an error to a stable code.
func codeFor(err error) string {
	var cmdChan *command.ChannelError
	var navChan *navdata.ChannelError

	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, command.ErrPayloadExceeded):
		return "PAYLOAD_EXCEEDED"
	case errors.Is(err, command.ErrInvalidCommand):
		return "INVALID_COMMAND"
	case errors.As(err, &cmdChan), errors.As(err, &navChan):
		return "CHANNEL_FAILURE"
	default:
		return "ERROR"
	}
}

func (l *Logger) write(e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// Rotate closes the current file, renames it with a timestamp and starts a
// new one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Rotate()
}

// Close closes the audit file. Later records are discarded.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.out.Close()
}

// GetFilePath returns the path of the active audit file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}
