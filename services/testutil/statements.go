package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Statements records every SQL statement gorm runs through a session, in
// execution order, with whitespace collapsed.
type Statements struct {
	mu   sync.Mutex
	list []string
}

// Record returns a session of db that reports its statements to a new
// recorder.
func Record(db *gorm.DB) (*gorm.DB, *Statements) {
	rec := &Statements{}
	return db.Session(&gorm.Session{Logger: rec}), rec
}

func (s *Statements) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.list...)
}

// Reset drops what was recorded so far.
func (s *Statements) Reset() {
	s.mu.Lock()
	s.list = nil
	s.mu.Unlock()
}

// Verbs returns the leading keyword of each statement, upper cased.
func (s *Statements) Verbs() []string {
	var out []string
	for _, stmt := range s.All() {
		verb, _, _ := strings.Cut(stmt, " ")
		out = append(out, strings.ToUpper(verb))
	}
	return out
}

func (s *Statements) LogMode(logger.LogLevel) logger.Interface { return s }

func (s *Statements) Info(context.Context, string, ...interface{}) {}

func (s *Statements) Warn(context.Context, string, ...interface{}) {}

func (s *Statements) Error(context.Context, string, ...interface{}) {}

func (s *Statements) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	s.mu.Lock()
	s.list = append(s.list, strings.Join(strings.Fields(sql), " "))
	s.mu.Unlock()
}
