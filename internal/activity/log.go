// Package activity keeps a bounded in-memory record of recent log entries
// and mirrors them to a diagnostic stream. It plugs into log/slog as a Handler,
// so every component logs through an ordinary *slog.Logger.
package activity

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries retained in memory.
const DefaultCapacity = 1000

// Entry is one retained log record.
type Entry struct {
	Time    time.Time      `json:"timestamp"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Options configures a Log.
type Options struct {
	Level slog.Level
	// Console mirrors every retained entry as a text line to Writer.
	Console bool
	// Writer defaults to os.Stderr. It must never be the protocol stream.
	Writer   io.Writer
	Capacity int
}

// Log is a fixed-size FIFO of entries. Appends are serialized by mu.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	size    int

	level  slog.Level
	mirror slog.Handler

	subs   map[int]chan Entry
	nextID int
}

func New(opts Options) *Log {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	l := &Log{
		entries: make([]Entry, opts.Capacity),
		level:   opts.Level,
	}
	if opts.Console {
		l.mirror = slog.NewTextHandler(opts.Writer, &slog.HandlerOptions{Level: opts.Level})
	}
	return l
}

// Logger returns a *slog.Logger writing into the log.
func (l *Log) Logger() *slog.Logger {
	return slog.New(l.Handler())
}

// Handler returns the slog.Handler backed by the log.
func (l *Log) Handler() slog.Handler {
	return &handler{log: l, mirror: l.mirror}
}

// Append stores an entry, evicting the oldest one when full.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.start+l.size)%capacity] = e
		l.size++
	} else {
		l.entries[l.start] = e
		l.start = (l.start + 1) % capacity
	}
	for _, ch := range l.subs {
		select {
		case ch <- e:
		default: // slow subscriber, drop
		}
	}
}

// Subscribe returns a channel receiving every entry appended from now on.
// Entries are dropped for a subscriber whose buffer is full. The returned
// func unsubscribes and closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Entry, buffer)
	l.mu.Lock()
	if l.subs == nil {
		l.subs = make(map[int]chan Entry)
	}
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns up to n of the newest entries in chronological order.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]Entry, 0, n)
	capacity := len(l.entries)
	for i := l.size - n; i < l.size; i++ {
		out = append(out, l.entries[(l.start+i)%capacity])
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Clear drops every retained entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		l.entries[i] = Entry{}
	}
	l.start, l.size = 0, 0
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog.Level.
// Unknown or empty values fall back to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type handler struct {
	log    *Log
	mirror slog.Handler
	attrs  []slog.Attr
	groups []string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.log.level
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		e.Data = make(map[string]any, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			addAttr(e.Data, a)
		}
		prefix := groupPrefix(h.groups)
		r.Attrs(func(a slog.Attr) bool {
			a.Key = prefix + a.Key
			addAttr(e.Data, a)
			return true
		})
	}
	h.log.Append(e)

	if h.mirror != nil {
		return h.mirror.Handle(ctx, r)
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := groupPrefix(h.groups)
	next := &handler{log: h.log, mirror: h.mirror, groups: h.groups}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), prefixed(prefix, attrs)...)
	if h.mirror != nil {
		next.mirror = h.mirror.WithAttrs(attrs)
	}
	return next
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := &handler{log: h.log, mirror: h.mirror, attrs: h.attrs}
	next.groups = append(append([]string{}, h.groups...), name)
	if h.mirror != nil {
		next.mirror = h.mirror.WithGroup(name)
	}
	return next
}

func addAttr(data map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			ga.Key = a.Key + "." + ga.Key
			addAttr(data, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	data[a.Key] = v.Any()
}

func groupPrefix(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	return strings.Join(groups, ".") + "."
}

func prefixed(prefix string, attrs []slog.Attr) []slog.Attr {
	if prefix == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return out
}
