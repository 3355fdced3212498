package flightlog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/skybridge-systems/mavsessiond/internal/logging"
)

func TestNewWritesSessionStart(t *testing.T) {
	dir := t.TempDir()
	logger := logging.New("test", logging.ERROR)

	fl, err := New(dir, "udp:127.0.0.1:14550", "sess-1", false, logger)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer fl.Close()

	f, err := os.Open(fl.Path())
	if err != nil {
		t.Fatalf("opening flight log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("expected at least one line in the flight log")
	}

	var entry Entry
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry.EventType != EventSessionStart {
		t.Errorf("first event_type = %q, want SESSION_START", entry.EventType)
	}
	if entry.SessionID != "sess-1" {
		t.Errorf("session_id = %q, want sess-1", entry.SessionID)
	}
}

func TestWriteAndCloseProduceValidJSONL(t *testing.T) {
	dir := t.TempDir()
	logger := logging.New("test", logging.ERROR)

	fl, err := New(dir, "tcp:127.0.0.1:5760", "sess-2", false, logger)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	fl.Write(EventCommand, map[string]interface{}{"name": "ARM", "success": true})
	if err := fl.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	f, err := os.Open(fl.Path())
	if err != nil {
		t.Fatalf("opening flight log: %v", err)
	}
	defer f.Close()

	var lines int
	var sawCommand, sawEnd bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		switch entry.EventType {
		case EventCommand:
			sawCommand = true
		case EventSessionEnd:
			sawEnd = true
		}
	}
	if lines != 3 {
		t.Fatalf("expected 3 lines (start, command, end), got %d", lines)
	}
	if !sawCommand || !sawEnd {
		t.Errorf("missing expected events: command=%v end=%v", sawCommand, sawEnd)
	}
}

func TestNewWithGzipProducesReadableArchive(t *testing.T) {
	dir := t.TempDir()
	logger := logging.New("test", logging.ERROR)

	fl, err := New(dir, "udp:127.0.0.1:14550", "sess-3", true, logger)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if !strings.HasSuffix(fl.Path(), ".jsonl.gz") {
		t.Errorf("path = %q, want .jsonl.gz suffix", fl.Path())
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	f, err := os.Open(fl.Path())
	if err != nil {
		t.Fatalf("opening flight log: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	if !scanner.Scan() {
		t.Fatal("expected at least one decompressed line")
	}
}
