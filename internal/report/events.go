package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventDiscover EventType = "discover"
	EventCacheHit EventType = "cache_hit"
	EventExif     EventType = "exif"
	EventMap      EventType = "map"
	EventPlace    EventType = "place"
	EventSkip     EventType = "skip"
	EventError    EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single per-file event
type Event struct {
	Timestamp time.Time  `json:"ts"`
	Level     EventLevel `json:"level"`
	Event     EventType  `json:"event"`
	SrcPath   string     `json:"src_path,omitempty"`
	DestPath  string     `json:"dest_path,omitempty"`
	Rating    int        `json:"rating,omitempty"`
	Label     string     `json:"label,omitempty"`
	Via       string     `json:"via,omitempty"` // cache index that matched
	Action    string     `json:"action,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates an event logger writing under outputDir.
// minLevel determines which events are written.
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// NullLogger returns a logger that silently drops everything
func NullLogger() *EventLogger {
	return &EventLogger{}
}

// Path returns the event log file path, or "" for a null logger
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}
	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// LogPlace records an executed (or dry-run) move/copy
func (l *EventLogger) LogPlace(action, src, dest string, rating int, label string) {
	l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventPlace,
		SrcPath:  src,
		DestPath: dest,
		Rating:   rating,
		Label:    label,
		Action:   action,
	})
}

// LogSkip records a skipped file with the reason
func (l *EventLogger) LogSkip(src, reason string) {
	l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventSkip,
		SrcPath: src,
		Reason:  reason,
	})
}

// LogCacheHit records a cache hit and the index that satisfied it
func (l *EventLogger) LogCacheHit(src, via string) {
	l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventCacheHit,
		SrcPath: src,
		Via:     via,
	})
}

// LogError records a per-file error
func (l *EventLogger) LogError(src string, err error) {
	l.Log(&Event{
		Level:   LevelError,
		Event:   EventError,
		SrcPath: src,
		Error:   err.Error(),
	})
}

// Close closes the underlying file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.file.Close()
	l.file = nil
	return err
}
