package flightlog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// filenamePattern matches the flight log filename layout:
// {YYYYMMDD}_{HHMMSS}_{safe_conn}_{session_id}.jsonl[.gz]
var filenamePattern = regexp.MustCompile(`^(\d{8})_(\d{6})_(.+)_([0-9a-fA-F-]{36})\.jsonl(\.gz)?$`)

// Summary describes a flight log file discovered on disk.
type Summary struct {
	Filename         string `json:"filename"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	ConnectionString string `json:"connection_string"`
	SessionID        string `json:"session_id"`
	Compressed       bool   `json:"compressed"`
	SizeBytes        int64  `json:"size_bytes"`
}

// ParseFilename decodes a flight log filename per the grammar above,
// best-effort re-rendering the underscore-joined connection string back to
// its colon/slash form.
func ParseFilename(name string) (Summary, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return Summary{}, false
	}
	return Summary{
		Filename:         name,
		Date:             m[1],
		Time:             m[2],
		ConnectionString: reconstructConnString(m[3]),
		SessionID:        m[4],
		Compressed:       m[5] == ".gz",
	}, true
}

// reconstructConnString is best-effort: it cannot distinguish an original
// "/" from "_" once collapsed, so it assumes "udp"/"tcp"/"serial" scheme
// prefixes keep their ":" separator and host/port segments keep theirs.
func reconstructConnString(safe string) string {
	parts := strings.SplitN(safe, "_", 2)
	if len(parts) == 2 && (parts[0] == "udp" || parts[0] == "tcp" || parts[0] == "serial") {
		return parts[0] + ":" + strings.ReplaceAll(parts[1], "_", ":")
	}
	return strings.ReplaceAll(safe, "_", "/")
}

// List scans dir for flight log files, optionally filtering by connection
// string.
func List(dir, connStringFilter string) ([]Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read flight log directory: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		summary, ok := ParseFilename(e.Name())
		if !ok {
			continue
		}
		if connStringFilter != "" && summary.ConnectionString != connStringFilter {
			continue
		}
		if info, err := e.Info(); err == nil {
			summary.SizeBytes = info.Size()
		}
		out = append(out, summary)
	}
	return out, nil
}

// ReadEntries reads up to maxEntries JSON lines from the named flight log
// file, returning the entries and whether the result was truncated.
func ReadEntries(dir, filename string, maxEntries int) ([]json.RawMessage, bool, error) {
	path := filepath.Join(dir, filename)
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(filename, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, false, fmt.Errorf("open gzip flight log: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var entries []json.RawMessage
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	truncated := false
	for scanner.Scan() {
		if maxEntries > 0 && len(entries) >= maxEntries {
			truncated = true
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		entries = append(entries, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return entries, truncated, err
	}

	return entries, truncated, nil
}

// Delete removes the named flight log file from dir.
func Delete(dir, filename string) error {
	return os.Remove(filepath.Join(dir, filename))
}

// Open opens the raw (possibly gzip-compressed) file for streaming download.
func Open(dir, filename string) (*os.File, error) {
	return os.Open(filepath.Join(dir, filename))
}
