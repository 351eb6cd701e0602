package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Sealer computes content hashes for audit entries and links them into a
// tamper-evident chain. Sealing runs as a batch job outside the hot path.
type Sealer struct {
	repo Repository
}

func NewSealer(repo Repository) *Sealer {
	return &Sealer{repo: repo}
}

// hashPayload is the canonical representation hashed per entry. Field order
// is fixed by the struct; changes here invalidate existing chains.
type hashPayload struct {
	ID       int64             `json:"id"`
	OrgID    int64             `json:"org_id"`
	ActorID  int64             `json:"actor_id"`
	Action   string            `json:"action"`
	Entity   string            `json:"entity"`
	EntityID string            `json:"entity_id"`
	Changes  map[string]string `json:"changes"`
	At       string            `json:"at"`
	PrevHash string            `json:"prev_hash"`
}

// ContentHash computes the hash for an entry given the previous entry's hash.
func ContentHash(entry Entry, prevHash string) (string, error) {
	changes := make(map[string]string, len(entry.Changes))
	keys := make([]string, 0, len(entry.Changes))
	for k := range entry.Changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := entry.Changes[k]
		changes[k] = fmt.Sprintf("%v->%v", c.Old, c.New)
	}
	payload := hashPayload{
		ID:       entry.ID,
		OrgID:    entry.OrgID,
		ActorID:  entry.ActorID,
		Action:   entry.Action,
		Entity:   entry.Entity,
		EntityID: entry.EntityID,
		Changes:  changes,
		At:       strconv.FormatInt(entry.At.UTC().UnixNano(), 10),
		PrevHash: prevHash,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("audit: encode hash payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SealBatch seals up to limit unsealed entries, chaining each to the last
// sealed row. Returns the number of entries sealed.
func (s *Sealer) SealBatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	entries, err := s.repo.ListUnsealed(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	last, err := s.repo.LastSealed(ctx)
	if err != nil {
		return 0, err
	}
	prevHash := ""
	var prevID *int64
	if last != nil {
		if last.ContentHash != nil {
			prevHash = *last.ContentHash
		}
		id := last.ID
		prevID = &id
	}
	sealed := 0
	for _, entry := range entries {
		hash, err := ContentHash(entry, prevHash)
		if err != nil {
			return sealed, err
		}
		if err := s.repo.Seal(ctx, entry.ID, hash, prevID); err != nil {
			return sealed, err
		}
		sealed++
		prevHash = hash
		id := entry.ID
		prevID = &id
	}
	return sealed, nil
}

// Verify walks the sealed chain recomputing every hash. It returns the ID of
// the first broken entry wrapped in ErrChainBroken, or nil when intact.
func (s *Sealer) Verify(ctx context.Context) error {
	entries, err := s.repo.ListSealed(ctx)
	if err != nil {
		return err
	}
	prevHash := ""
	var prevID *int64
	for _, entry := range entries {
		if entry.ContentHash == nil {
			return fmt.Errorf("%w: entry %d missing hash", ErrChainBroken, entry.ID)
		}
		if (entry.PrevID == nil) != (prevID == nil) || (entry.PrevID != nil && *entry.PrevID != *prevID) {
			return fmt.Errorf("%w: entry %d has wrong predecessor", ErrChainBroken, entry.ID)
		}
		expected, err := ContentHash(entry, prevHash)
		if err != nil {
			return err
		}
		if expected != *entry.ContentHash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, entry.ID)
		}
		prevHash = *entry.ContentHash
		id := entry.ID
		prevID = &id
	}
	return nil
}
