package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal is out of balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrSingleSided indicates a line with both or neither side set.
	ErrSingleSided = errors.New("accounting: line must carry exactly one of debit or credit")
	// ErrInvalidPeriod indicates missing or unusable period.
	ErrInvalidPeriod = errors.New("accounting: period is not open")
	// ErrPeriodLocked indicates locked period.
	ErrPeriodLocked = errors.New("accounting: period locked")
	// ErrDateOutOfRange indicates journal date mismatch.
	ErrDateOutOfRange = errors.New("accounting: date outside period")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal not found")
	// ErrJournalLocked indicates the journal is posted and immutable.
	ErrJournalLocked = errors.New("accounting: journal is locked")
	// ErrLedgerExists indicates GL rows already exist for the journal. This is
	// a loud data-integrity failure, never absorbed silently: a journal whose
	// status reverted without clearing its ledger rows is corrupted.
	ErrLedgerExists = errors.New("accounting: general ledger entry already exists")
	// ErrAlreadyPosted indicates the journal is posted and its ledger rows are
	// intact. Orchestrated replays treat this as a no-op.
	ErrAlreadyPosted = errors.New("accounting: journal already posted")
	// ErrApprovalRequired indicates the journal type requires approval before posting.
	ErrApprovalRequired = errors.New("accounting: journal requires approval before posting")
	// ErrApprovalMissing indicates no approval record exists for an approved journal.
	ErrApprovalMissing = errors.New("accounting: approval record is required")
	// ErrVersionConflict indicates the optimistic lock token was stale.
	ErrVersionConflict = errors.New("accounting: journal modified concurrently")
)
