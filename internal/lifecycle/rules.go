package lifecycle

import (
	"fmt"
	"strings"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/accounting/periods"
)

// RuleKind enumerates the configurable validation rule variants.
type RuleKind string

const (
	// RuleReferenceRequired requires a non-empty document reference.
	RuleReferenceRequired RuleKind = "reference_required"
	// RuleBalanced requires total debit == total credit across lines.
	RuleBalanced RuleKind = "balanced"
	// RulePeriodOpen requires the fiscal period to be open.
	RulePeriodOpen RuleKind = "period_open"
	// RuleMinLines requires at least Params["min"] non-archived lines.
	RuleMinLines RuleKind = "min_lines"
)

// Rule is a tagged-variant validation rule evaluated against the document.
// Rules with Warn=true produce warnings instead of blocking violations.
type Rule struct {
	Kind   RuleKind
	Params map[string]any
	Warn   bool
}

// Document bundles the state a rule evaluation needs.
type Document struct {
	Journal journals.Journal
	Lines   []journals.Line
	Period  periods.Period
}

// ValidationError aggregates every failing rule, not just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "lifecycle: validation failed: " + strings.Join(e.Violations, "; ")
}

// DefaultRules returns the rules applied to every transition. Stage-specific
// rules are appended by the service.
func DefaultRules() []Rule {
	return []Rule{
		{Kind: RuleBalanced},
		{Kind: RulePeriodOpen},
	}
}

// Evaluate runs the rule set and splits results into violations and warnings.
func Evaluate(rules []Rule, doc Document) (violations, warnings []string) {
	for _, rule := range rules {
		msg := evaluate(rule, doc)
		if msg == "" {
			continue
		}
		if rule.Warn {
			warnings = append(warnings, msg)
		} else {
			violations = append(violations, msg)
		}
	}
	return violations, warnings
}

func evaluate(rule Rule, doc Document) string {
	switch rule.Kind {
	case RuleReferenceRequired:
		if strings.TrimSpace(doc.Journal.Reference) == "" {
			return "document reference is required"
		}
	case RuleBalanced:
		if !doc.Journal.TotalDebit.Equal(doc.Journal.TotalCredit) {
			return fmt.Sprintf("journal is out of balance: debit %s credit %s", doc.Journal.TotalDebit, doc.Journal.TotalCredit)
		}
	case RulePeriodOpen:
		if doc.Period.Status != periods.PeriodStatusOpen {
			return fmt.Sprintf("period %s is not open", doc.Period.Code)
		}
	case RuleMinLines:
		min := 1
		if v, ok := rule.Params["min"].(int); ok && v > 0 {
			min = v
		}
		active := 0
		for _, line := range doc.Lines {
			if !line.Archived {
				active++
			}
		}
		if active < min {
			return fmt.Sprintf("document requires at least %d active line(s)", min)
		}
	default:
		return fmt.Sprintf("unknown validation rule %q", rule.Kind)
	}
	return ""
}
