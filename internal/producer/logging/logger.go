// Package logging implements the producer-side event logger: buffered,
// asynchronous, and rotating, writing one JSON record per line into a
// category-specific stream. Logging is best-effort: a full buffer or a
// failed write drops the record rather than blocking or failing the
// caller, because nothing here may interfere with delivery.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Category names one log stream.
type Category string

const (
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
	CategoryQueue   Category = "queue"
	CategoryDebug   Category = "debug"
)

// Config controls buffering and rotation.
type Config struct {
	Dir           string
	MaxFileSize   int64
	MaxBackups    int
	BufferSize    int
	FlushInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 10 << 20
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 3
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
}

// Fields carries the correlation attributes attached to every record.
type Fields struct {
	RequestID string
	TraceID   string
	EventType string
	SessionID string
	Context   map[string]any
}

type record struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	RequestID string         `json:"requestId,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
	EventType string         `json:"eventType,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

type entry struct {
	cat  Category
	line []byte
}

// stream writes each record as one whole-line write call against an
// O_APPEND file. Append writes are atomic with respect to each other,
// so records from concurrent invocations sharing the file never
// interleave mid-line; a userspace buffer in front of the file would
// break that by splitting a record across flushes.
type stream struct {
	path string
	file *os.File // nil after a failed rotate reopen; writes drop
	size int64
}

// Logger is an explicit instance with a lifecycle: Open it, log through
// it, and Close it when the invocation ends so buffered records reach
// disk. It is safe for concurrent use.
type Logger struct {
	cfg     Config
	entries chan entry
	flushCh chan chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// owned by the writer goroutine
	streams map[Category]*stream
}

// Open creates the log directory and starts the background writer.
func Open(cfg Config) (*Logger, error) {
	cfg.applyDefaults()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("log directory not set")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	l := &Logger{
		cfg:     cfg,
		entries: make(chan entry, cfg.BufferSize),
		flushCh: make(chan chan struct{}),
		done:    make(chan struct{}),
		streams: make(map[Category]*stream),
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Info records a successful operation to the success stream.
func (l *Logger) Info(msg string, f Fields) { l.log(CategorySuccess, "info", msg, f) }

// Error records a failure to the error stream.
func (l *Logger) Error(msg string, f Fields) { l.log(CategoryError, "error", msg, f) }

// QueueEvent records a retry-queue operation to the queue stream.
func (l *Logger) QueueEvent(msg string, f Fields) { l.log(CategoryQueue, "queue", msg, f) }

// Debug records diagnostic detail to the debug stream.
func (l *Logger) Debug(msg string, f Fields) { l.log(CategoryDebug, "debug", msg, f) }

// Dropped returns the number of records discarded because the buffer
// was full or a write failed.
func (l *Logger) Dropped() uint64 { return l.dropped.Load() }

func (l *Logger) log(cat Category, level, msg string, f Fields) {
	rec := record{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		RequestID: f.RequestID,
		TraceID:   f.TraceID,
		EventType: f.EventType,
		SessionID: f.SessionID,
		Message:   msg,
		Context:   f.Context,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	line = append(line, '\n')

	select {
	case l.entries <- entry{cat: cat, line: line}:
	default:
		l.dropped.Add(1)
	}
}

// Flush blocks until all records accepted so far are on disk.
func (l *Logger) Flush() {
	ack := make(chan struct{})
	select {
	case l.flushCh <- ack:
		<-ack
	case <-l.done:
	}
}

// Close flushes buffered records and closes the underlying files.
// Logging after Close drops records.
func (l *Logger) Close() {
	select {
	case <-l.done:
		return
	default:
	}
	close(l.done)
	l.wg.Wait()
}

func (l *Logger) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-l.entries:
			l.write(e)
		case <-ticker.C:
			l.drain()
		case ack := <-l.flushCh:
			l.drain()
			close(ack)
		case <-l.done:
			l.drain()
			for _, s := range l.streams {
				if s.file != nil {
					s.file.Close()
				}
			}
			return
		}
	}
}

func (l *Logger) drain() {
	for {
		select {
		case e := <-l.entries:
			l.write(e)
		default:
			return
		}
	}
}

func (l *Logger) write(e entry) {
	s, err := l.stream(e.cat)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	if s.size+int64(len(e.line)) > l.cfg.MaxFileSize {
		l.rotate(s)
	}
	if s.file == nil {
		l.dropped.Add(1)
		return
	}
	n, err := s.file.Write(e.line)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	s.size += int64(n)
}

func (l *Logger) stream(cat Category) (*stream, error) {
	if s, ok := l.streams[cat]; ok {
		return s, nil
	}
	path := filepath.Join(l.cfg.Dir, string(cat)+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	s := &stream{path: path, file: file, size: info.Size()}
	l.streams[cat] = s
	return s, nil
}

// rotate shifts success.log -> success.log.1 -> success.log.2 and so
// on, discarding the oldest backup beyond MaxBackups.
func (l *Logger) rotate(s *stream) {
	if s.file != nil {
		s.file.Close()
	}

	os.Remove(fmt.Sprintf("%s.%d", s.path, l.cfg.MaxBackups))
	for i := l.cfg.MaxBackups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", s.path, i), fmt.Sprintf("%s.%d", s.path, i+1))
	}
	os.Rename(s.path, s.path+".1")

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// Reopen failed; drop subsequent writes rather than hit a
		// closed file.
		s.file = nil
		s.size = 0
		return
	}
	s.file = file
	s.size = 0
}
