package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Logger writes audit entries. Core services call Record explicitly after
// each state change; there is no implicit save-hook machinery.
type Logger struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger returns a new audit Logger.
func NewLogger(repo Repository, logger *slog.Logger) *Logger {
	return &Logger{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (l *Logger) WithNow(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// Record persists the entry. Entries are written append-only; sealing happens
// later out of the hot path.
func (l *Logger) Record(ctx context.Context, entry Entry) error {
	if l == nil {
		return errors.New("audit: logger not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("audit: entry requires action/entity/entity_id")
	}
	if entry.At.IsZero() {
		entry.At = l.now()
	}
	if _, err := l.repo.Insert(ctx, entry); err != nil {
		if l.logger != nil {
			l.logger.Error("record audit entry", slog.Any("error", err))
		}
		return err
	}
	return nil
}
