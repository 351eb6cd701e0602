package voucher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// HookPoint names a position in the voucher pipeline where extensions run.
type HookPoint string

const (
	// HookBeforeSave runs after validation, before any write.
	HookBeforeSave HookPoint = "before_voucher_save"
	// HookAfterSave runs once the journal draft is committed.
	HookAfterSave HookPoint = "after_voucher_save"
	// HookAfterPost runs once posting has committed.
	HookAfterPost HookPoint = "after_journal_post"
)

// HookContext is the mutable state a hook sees. Before-save hooks may adjust
// the input; later hooks observe the persisted journal.
type HookContext struct {
	Actor   shared.Actor
	Config  Config
	Input   *Input
	Journal *journals.Journal
}

// HookFunc is one extension callback.
type HookFunc func(ctx context.Context, hc *HookContext) error

// Hook couples a callback with its failure policy. Critical hooks abort the
// pipeline; non-critical failures are logged and isolated so one broken
// extension cannot take the voucher down with it.
type Hook struct {
	Name     string
	Critical bool
	Fn       HookFunc
}

// Registry holds hooks per point, executed in registration order.
type Registry struct {
	mu    sync.RWMutex
	hooks map[HookPoint][]Hook
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{hooks: make(map[HookPoint][]Hook), log: log}
}

// Register appends a hook at the given point.
func (r *Registry) Register(point HookPoint, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[point] = append(r.hooks[point], hook)
}

// Run executes the point's hooks in order. The first critical failure aborts;
// non-critical failures are logged and execution continues.
func (r *Registry) Run(ctx context.Context, point HookPoint, hc *HookContext) error {
	r.mu.RLock()
	hooks := r.hooks[point]
	r.mu.RUnlock()
	for _, hook := range hooks {
		if err := hook.Fn(ctx, hc); err != nil {
			if hook.Critical {
				return fmt.Errorf("voucher: hook %s/%s: %w", point, hook.Name, err)
			}
			r.log.Warn("voucher hook failed",
				slog.String("point", string(point)),
				slog.String("hook", hook.Name),
				slog.String("error", err.Error()))
		}
	}
	return nil
}
