package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoggerWritesJSONLToFile(t *testing.T) {
	l := &Logger{enabled: true}
	path := filepath.Join(t.TempDir(), "requests.log")
	if err := l.SetOutput(path); err != nil {
		t.Fatalf("SetOutput: %v", err)
	}
	defer l.Close()

	l.Log(&RequestLog{
		RequestID:  "req-1",
		ExecutorID: "exec-1",
		Command:    "execute",
		DurationMs: 12,
		Success:    true,
	})

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("expected one line written to the log file")
	}
	var entry RequestLog
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry.RequestID != "req-1" || entry.Command != "execute" {
		t.Fatalf("got %+v", entry)
	}
	if scanner.Scan() {
		t.Fatal("expected exactly one line written")
	}
}

func TestLoggerDisabledWritesNothing(t *testing.T) {
	l := &Logger{enabled: false}
	path := filepath.Join(t.TempDir(), "requests.log")
	if err := l.SetOutput(path); err != nil {
		t.Fatalf("SetOutput: %v", err)
	}
	defer l.Close()

	l.Log(&RequestLog{RequestID: "req-1"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("got %d bytes written while disabled, want 0", len(data))
	}
}

func TestLoggerCloseIsIdempotent(t *testing.T) {
	l := &Logger{enabled: true}
	path := filepath.Join(t.TempDir(), "requests.log")
	if err := l.SetOutput(path); err != nil {
		t.Fatalf("SetOutput: %v", err)
	}
	l.Close()
	l.Close()
}
