package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/audit"
	internalShared "github.com/keystone-erp/keystone-erp/internal/shared"
)

// AuditPort records audit entries after state changes.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// PostingPort delegates the POSTED and REVERSED targets to the posting
// service so ledger writes happen alongside the status change.
type PostingPort interface {
	Post(ctx context.Context, actor internalShared.Actor, journal journals.Journal) (journals.Journal, error)
	Reverse(ctx context.Context, actor internalShared.Actor, journalID int64, reason string) (journals.Journal, error)
}

// Config is the per-organization lifecycle configuration.
type Config struct {
	Transitions TransitionMap
	Rules       []Rule
}

// ConfigSource resolves the lifecycle configuration for an organization.
type ConfigSource interface {
	ConfigFor(ctx context.Context, orgID int64) (Config, error)
}

// StaticConfig is a ConfigSource with fixed per-org overrides and a default
// fallback, used where no configuration store is wired.
type StaticConfig struct {
	Overrides map[int64]Config
}

func (s StaticConfig) ConfigFor(_ context.Context, orgID int64) (Config, error) {
	if cfg, ok := s.Overrides[orgID]; ok {
		if cfg.Transitions == nil {
			cfg.Transitions = DefaultTransitions()
		}
		if cfg.Rules == nil {
			cfg.Rules = DefaultRules()
		}
		return cfg, nil
	}
	return Config{Transitions: DefaultTransitions(), Rules: DefaultRules()}, nil
}

// Service is the configuration-driven state machine governing journal status
// transitions.
type Service struct {
	repo   journals.Repository
	audit  AuditPort
	config ConfigSource
	poster PostingPort
	now    func() time.Time
}

func NewService(repo journals.Repository, audit AuditPort, config ConfigSource, poster PostingPort) *Service {
	if config == nil {
		config = StaticConfig{}
	}
	return &Service{repo: repo, audit: audit, config: config, poster: poster, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Transition moves the journal to the target status. The cross-tenant guard
// runs before any other check; no-op and unmapped transitions are rejected;
// all failing validation rules are aggregated into one error.
func (s *Service) Transition(ctx context.Context, actor internalShared.Actor, journalID int64, target journals.Status, reason string) (journals.Journal, error) {
	head, err := s.repo.GetJournal(ctx, journalID)
	if err != nil {
		return journals.Journal{}, err
	}
	if head.OrgID != actor.OrgID {
		return journals.Journal{}, internalShared.ErrCrossTenant
	}
	cfg, err := s.config.ConfigFor(ctx, head.OrgID)
	if err != nil {
		return journals.Journal{}, err
	}
	if head.Status == target {
		return journals.Journal{}, &TransitionError{From: head.Status, To: target}
	}
	if !cfg.Transitions.Allowed(head.Status, target) {
		return journals.Journal{}, &TransitionError{From: head.Status, To: target}
	}

	// POSTED and REVERSED write ledger state; the posting service owns those
	// writes. The configured rule set still runs first so per-org rules
	// cannot be bypassed by taking the ledger path.
	if s.poster != nil && (target == journals.StatusPosted || target == journals.StatusReversed) {
		warnings, err := s.checkRules(ctx, cfg, head, target)
		if err != nil {
			return journals.Journal{}, err
		}
		var out journals.Journal
		if target == journals.StatusPosted {
			out, err = s.poster.Post(ctx, actor, head)
		} else {
			out, err = s.poster.Reverse(ctx, actor, head.ID, reason)
		}
		if err != nil {
			return journals.Journal{}, err
		}
		if len(warnings) > 0 && s.audit != nil {
			_ = s.audit.Record(ctx, audit.Entry{
				OrgID:    head.OrgID,
				ActorID:  actor.UserID,
				Action:   "journal.transition",
				Entity:   "journal",
				EntityID: fmt.Sprintf("%d", head.ID),
				Meta:     map[string]any{"from": string(head.Status), "to": string(target), "warnings": warnings},
				At:       s.now(),
			})
		}
		return out, nil
	}

	var updated journals.Journal
	var warnings []string
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		current, err := tx.GetJournalForUpdate(ctx, journalID)
		if err != nil {
			return err
		}
		if current.Status != head.Status {
			return &TransitionError{From: current.Status, To: target}
		}
		lines, err := tx.GetLines(ctx, journalID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, current.PeriodID)
		if err != nil {
			return err
		}
		rules := cfg.Rules
		if target == journals.StatusPosted {
			rules = append(append([]Rule{}, rules...), Rule{Kind: RuleMinLines, Params: map[string]any{"min": 1}})
		}
		var violations []string
		violations, warnings = Evaluate(rules, Document{Journal: current, Lines: lines, Period: period})
		if len(violations) > 0 {
			return &ValidationError{Violations: violations}
		}
		set, err := s.fieldsFor(target, actor, current, reason)
		if err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, current.ID, current.Version, target, set); err != nil {
			return err
		}
		current.Status = target
		current.Version++
		current.Lines = lines
		updated = current
		return nil
	})
	if err != nil {
		return journals.Journal{}, err
	}
	if s.audit != nil {
		meta := map[string]any{"from": string(head.Status), "to": string(target)}
		if reason != "" {
			meta["reason"] = reason
		}
		if len(warnings) > 0 {
			meta["warnings"] = warnings
		}
		_ = s.audit.Record(ctx, audit.Entry{
			OrgID:    updated.OrgID,
			ActorID:  actor.UserID,
			Action:   "journal.transition",
			Entity:   "journal",
			EntityID: fmt.Sprintf("%d", updated.ID),
			Changes:  map[string]audit.Change{"Status": {Old: string(head.Status), New: string(target)}},
			Meta:     meta,
			At:       s.now(),
		})
	}
	return updated, nil
}

// checkRules evaluates the configured rule set ahead of a delegated posting
// or reversal, aggregating every violation. The period-open rule is skipped
// for reversals: the posting service re-routes a closed period to the next
// open one.
func (s *Service) checkRules(ctx context.Context, cfg Config, head journals.Journal, target journals.Status) ([]string, error) {
	rules := make([]Rule, 0, len(cfg.Rules)+1)
	for _, rule := range cfg.Rules {
		if target == journals.StatusReversed && rule.Kind == RulePeriodOpen {
			continue
		}
		rules = append(rules, rule)
	}
	if target == journals.StatusPosted {
		rules = append(rules, Rule{Kind: RuleMinLines, Params: map[string]any{"min": 1}})
	}
	var warnings []string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		lines, err := tx.GetLines(ctx, head.ID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, head.PeriodID)
		if err != nil {
			return err
		}
		violations, warns := Evaluate(rules, Document{Journal: head, Lines: lines, Period: period})
		if len(violations) > 0 {
			return &ValidationError{Violations: violations}
		}
		warnings = warns
		return nil
	})
	return warnings, err
}

// fieldsFor returns the status-specific fields a transition is allowed to
// touch; nothing else is written.
func (s *Service) fieldsFor(target journals.Status, actor internalShared.Actor, current journals.Journal, reason string) (journals.StatusUpdate, error) {
	set := journals.StatusUpdate{}
	now := s.now()
	switch target {
	case journals.StatusAwaitingApproval, journals.StatusDraft:
		// status only
	case journals.StatusApproved:
		set.ApprovedBy = &actor.UserID
		set.ApprovedAt = &now
	case journals.StatusRejected:
		meta := cloneMeta(current.Meta)
		meta["rejection_reason"] = reason
		set.Meta = meta
	case journals.StatusPosted:
		locked := true
		set.PostedBy = &actor.UserID
		set.PostedAt = &now
		set.IsLocked = &locked
	case journals.StatusReversed:
		meta := cloneMeta(current.Meta)
		meta["reversal_reason"] = reason
		set.Meta = meta
	default:
		return journals.StatusUpdate{}, fmt.Errorf("lifecycle: unknown target status %s", target)
	}
	return set, nil
}

func cloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	return out
}
