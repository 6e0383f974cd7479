package logger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultCapacity = 1000

	defaultLogPageSize = 20
	maxLogPageSize     = 200
)

type Entry struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Logger    string         `json:"logger,omitempty"`
	Message   string         `json:"message"`
	Caller    string         `json:"caller,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Query selects entries from a Store. Zero values disable a filter.
type Query struct {
	Level    string
	From     time.Time
	To       time.Time
	Keyword  string
	Page     int
	PageSize int
}

// Store keeps the most recent log entries in memory so operators can read
// them over the admin API. Sensitive fields are masked before they are kept.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	count   int
	seq     int64
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{entries: make([]Entry, capacity)}
}

// Attach returns base with every written entry also recorded in store.
func Attach(base *zap.Logger, store *Store) *zap.Logger {
	if base == nil || store == nil {
		return base
	}

	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &storeCore{Core: core, store: store}
	}))
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Query returns one page of matching entries, newest first, and the total
// number of matches.
func (s *Store) Query(q Query) ([]Entry, int64) {
	if s == nil {
		return []Entry{}, 0
	}

	page, pageSize := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultLogPageSize
	}
	if pageSize > maxLogPageSize {
		pageSize = maxLogPageSize
	}
	level := strings.TrimSpace(q.Level)
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Entry, 0, pageSize)
	var total int64
	skip := (page - 1) * pageSize
	for i := 0; i < s.count; i++ {
		idx := (s.next - 1 - i + len(s.entries)) % len(s.entries)
		entry := s.entries[idx]

		if level != "" && !strings.EqualFold(entry.Level, level) {
			continue
		}
		if !q.From.IsZero() && entry.Timestamp.Before(q.From.UTC()) {
			continue
		}
		if !q.To.IsZero() && entry.Timestamp.After(q.To.UTC()) {
			continue
		}
		if keyword != "" && !matchesKeyword(entry, keyword) {
			continue
		}

		total++
		if skip > 0 {
			skip--
			continue
		}
		if len(matches) < pageSize {
			matches = append(matches, cloneEntry(entry))
		}
	}
	return matches, total
}

func (s *Store) add(entry zapcore.Entry, fields []zapcore.Field) {
	if s == nil {
		return
	}

	item := Entry{
		Timestamp: entry.Time.UTC(),
		Level:     entry.Level.String(),
		Logger:    entry.LoggerName,
		Message:   entry.Message,
		Caller:    entry.Caller.TrimmedPath(),
		Fields:    maskedFieldMap(fields),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	item.ID = s.seq
	s.entries[s.next] = item
	s.next = (s.next + 1) % len(s.entries)
	if s.count < len(s.entries) {
		s.count++
	}
}

func matchesKeyword(entry Entry, keyword string) bool {
	for _, candidate := range []string{entry.Message, entry.Logger, entry.Caller} {
		if strings.Contains(strings.ToLower(candidate), keyword) {
			return true
		}
	}
	return len(entry.Fields) > 0 && strings.Contains(strings.ToLower(fmt.Sprint(entry.Fields)), keyword)
}

func cloneEntry(entry Entry) Entry {
	if len(entry.Fields) == 0 {
		return entry
	}
	fields := make(map[string]any, len(entry.Fields))
	for k, v := range entry.Fields {
		fields[k] = v
	}
	entry.Fields = fields
	return entry
}

func maskedFieldMap(fields []zapcore.Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	if len(enc.Fields) == 0 {
		return nil
	}

	out := make(map[string]any, len(enc.Fields))
	for k, v := range enc.Fields {
		out[k] = mask(k, v)
	}
	return out
}

type storeCore struct {
	zapcore.Core
	store *Store
	// context holds fields added through With; the wrapped core keeps its own.
	context []zapcore.Field
}

func (c *storeCore) With(fields []zapcore.Field) zapcore.Core {
	context := make([]zapcore.Field, 0, len(c.context)+len(fields))
	context = append(context, c.context...)
	context = append(context, fields...)
	return &storeCore{Core: c.Core.With(fields), store: c.store, context: context}
}

func (c *storeCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *storeCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := fields
	if len(c.context) > 0 {
		all = make([]zapcore.Field, 0, len(c.context)+len(fields))
		all = append(all, c.context...)
		all = append(all, fields...)
	}
	c.store.add(entry, all)
	return c.Core.Write(entry, fields)
}
