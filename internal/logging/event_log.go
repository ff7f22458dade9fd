package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const EventLogFileName = "order-events.log"

// EventLog is an append-only text log of order lifecycle events kept next to the order data.
type EventLog struct {
	file    *os.File
	handler slog.Handler
}

func OpenEventLog(dir string) (*EventLog, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create event log dir: %w", err)
	}
	path := filepath.Join(dir, EventLogFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	return &EventLog{
		file:    file,
		handler: slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}, nil
}

func (l *EventLog) Handler() slog.Handler {
	if l == nil {
		return nil
	}
	return l.handler
}

// Tee returns a logger that writes to both the base logger and the event log.
func (l *EventLog) Tee(base *slog.Logger) *slog.Logger {
	base = ensureLogger(base)
	if l == nil {
		return base
	}
	return slog.New(Fanout(base.Handler(), l.handler))
}

func (l *EventLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
