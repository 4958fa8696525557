// Package chatlog implements the durable conversation transcript.
//
// Records are stored one JSON object per line in an append-only file. Every
// append is flushed with fsync before it is confirmed, so a record either
// fully exists on disk or was never acknowledged. The log is the single
// source of truth read back by history recall and long-term memory sync.
package chatlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Role identifies which side of the conversation produced a record.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Record is one transcript entry.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
}

// Log is an append-only JSONL transcript writer. Safe for concurrent use.
type Log struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// Open opens (or creates) the transcript file at path for appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chatlog: open %q: %w", path, err)
	}
	return &Log{path: path, f: f}, nil
}

// Path returns the file backing this log.
func (l *Log) Path() string { return l.path }

// Append writes one record with the current timestamp. The write is synced
// to stable storage before Append returns.
func (l *Log) Append(role Role, content string) error {
	return l.AppendRecord(Record{
		Timestamp: time.Now().UTC(),
		Role:      role,
		Content:   content,
	})
}

// AppendRecord writes rec as one JSON line followed by fsync.
func (l *Log) AppendRecord(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("chatlog: marshal: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return fmt.Errorf("chatlog: log is closed")
	}
	if _, err := l.f.Write(data); err != nil {
		return fmt.Errorf("chatlog: append: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("chatlog: sync: %w", err)
	}
	return nil
}

// Close closes the underlying file. Idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("chatlog: close: %w", err)
	}
	return nil
}

// ReadAll returns every well-formed record in the file at path, in order.
// Malformed lines (e.g. a torn final line after a crash) are skipped.
// A missing file yields an empty slice, not an error.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("chatlog: open %q: %w", path, err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, fmt.Errorf("chatlog: scan %q: %w", path, err)
	}
	return records, nil
}

// Tail returns at most n most recent records from the file at path,
// preserving their original order.
func Tail(path string, n int) ([]Record, error) {
	records, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	if n <= 0 || len(records) <= n {
		return records, nil
	}
	return records[len(records)-n:], nil
}
