// Package flightlog implements the per-session append-only flight log: one
// JSON-lines file per session, optionally gzip-compressed, rotated whenever
// a new session is created.
package flightlog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/skybridge-systems/mavsessiond/internal/logging"
)

// EventType enumerates the event_type values a flight log entry may carry.
type EventType string

const (
	EventSessionStart           EventType = "SESSION_START"
	EventSessionEnd             EventType = "SESSION_END"
	EventCommand                EventType = "COMMAND"
	EventTelemetry              EventType = "TELEMETRY"
	EventParameterChange        EventType = "PARAMETER_CHANGE"
	EventModeChange             EventType = "MODE_CHANGE"
	EventConnectionConnected    EventType = "CONNECTION_CONNECTED"
	EventConnectionFailed       EventType = "CONNECTION_FAILED"
	EventConnectionDisconnected EventType = "CONNECTION_DISCONNECTED"
	EventError                  EventType = "ERROR"
)

// Entry is a single flight log line.
type Entry struct {
	Timestamp        string      `json:"timestamp"`
	SessionID        string      `json:"session_id"`
	ConnectionString string      `json:"connection_string"`
	EventType        EventType   `json:"event_type"`
	Data             interface{} `json:"data,omitempty"`
}

// Logger appends JSON-lines entries for one session to a rotated file.
type Logger struct {
	mu         sync.Mutex
	file       *os.File
	writer     io.WriteCloser // either the file itself, or a gzip.Writer wrapping it
	encoder    *json.Encoder
	logger     *logging.Logger
	sessionID  string
	connString string
	startTime  time.Time
	path       string
}

// safeConnString replaces path-hostile characters in a connection string so
// it can appear in a filename.
func safeConnString(conn string) string {
	r := strings.NewReplacer(":", "_", "/", "_")
	return r.Replace(conn)
}

// New creates (or appends to, should the same filename recur) a flight log
// file under dir, named {YYYYMMDD_HHMMSS}_{safe_conn}_{session_id}.jsonl[.gz],
// and writes the SESSION_START entry.
func New(dir, connString, sessionID string, gzipEnabled bool, logger *logging.Logger) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create flight log directory: %w", err)
	}

	start := time.Now()
	ext := ".jsonl"
	if gzipEnabled {
		ext += ".gz"
	}
	filename := fmt.Sprintf("%s_%s_%s%s", start.Format("20060102_150405"), safeConnString(connString), sessionID, ext)
	path := filepath.Join(dir, filename)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flight log file: %w", err)
	}

	var w io.WriteCloser = f
	if gzipEnabled {
		w = gzip.NewWriter(f)
	}

	l := &Logger{
		file:       f,
		writer:     w,
		encoder:    json.NewEncoder(w),
		logger:     logger,
		sessionID:  sessionID,
		connString: connString,
		startTime:  start,
		path:       path,
	}

	l.Write(EventSessionStart, map[string]interface{}{"start_time": start.Format(time.RFC3339)})

	return l, nil
}

// Path returns the underlying file's path.
func (l *Logger) Path() string { return l.path }

// Write appends a single entry as one JSON line. Write errors are logged and
// swallowed: the logger must never be able to break flight control.
func (l *Logger) Write(eventType EventType, data interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp:        time.Now().Format(time.RFC3339Nano),
		SessionID:        l.sessionID,
		ConnectionString: l.connString,
		EventType:        eventType,
		Data:             data,
	}

	if err := l.encoder.Encode(entry); err != nil {
		l.logger.Errorf("flightlog: write failed for session %s: %v", l.sessionID, err)
		return
	}
	if gw, ok := l.writer.(*gzip.Writer); ok {
		if err := gw.Flush(); err != nil {
			l.logger.Errorf("flightlog: flush failed for session %s: %v", l.sessionID, err)
		}
	}
}

// Close emits SESSION_END and closes the underlying file.
func (l *Logger) Close() error {
	end := time.Now()
	l.Write(EventSessionEnd, map[string]interface{}{
		"end_time":         end.Format(time.RFC3339),
		"duration_seconds": end.Sub(l.startTime).Seconds(),
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	if gw, ok := l.writer.(*gzip.Writer); ok {
		if err := gw.Close(); err != nil {
			l.logger.Errorf("flightlog: gzip close failed for session %s: %v", l.sessionID, err)
		}
	}
	return l.file.Close()
}
