package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepo struct {
	entries []Entry
	nextID  int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{nextID: 1}
}

func (m *mockRepo) Insert(_ context.Context, entry Entry) (int64, error) {
	entry.ID = m.nextID
	m.nextID++
	m.entries = append(m.entries, entry)
	return entry.ID, nil
}

func (m *mockRepo) ListUnsealed(_ context.Context, limit int) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if !e.Immutable {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockRepo) LastSealed(_ context.Context) (*Entry, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Immutable {
			e := m.entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) Seal(_ context.Context, id int64, contentHash string, prevID *int64) error {
	for i := range m.entries {
		if m.entries[i].ID != id {
			continue
		}
		if m.entries[i].Immutable {
			return ErrSealedImmutable
		}
		hash := contentHash
		m.entries[i].ContentHash = &hash
		m.entries[i].PrevID = prevID
		m.entries[i].Immutable = true
		return nil
	}
	return ErrSealedImmutable
}

func (m *mockRepo) ListSealed(_ context.Context) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.Immutable {
			out = append(out, e)
		}
	}
	return out, nil
}

// ============================================================================
// FIXTURES
// ============================================================================

func record(t *testing.T, repo *mockRepo, action string) int64 {
	t.Helper()
	id, err := repo.Insert(context.Background(), Entry{
		OrgID:    1,
		ActorID:  7,
		Action:   action,
		Entity:   "journal",
		EntityID: "42",
		Changes:  map[string]Change{"status": {Old: "DRAFT", New: "POSTED"}},
		At:       time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return id
}

// ============================================================================
// TESTS
// ============================================================================

func TestSealBatchChainsEntries(t *testing.T) {
	repo := newMockRepo()
	record(t, repo, "journal.post")
	record(t, repo, "journal.reverse")
	record(t, repo, "voucher.process")

	sealer := NewSealer(repo)
	sealed, err := sealer.SealBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, sealed)

	// First entry anchors the chain, each successor points at its predecessor.
	require.NotNil(t, repo.entries[0].ContentHash)
	assert.Nil(t, repo.entries[0].PrevID)
	require.NotNil(t, repo.entries[1].PrevID)
	assert.Equal(t, repo.entries[0].ID, *repo.entries[1].PrevID)
	require.NotNil(t, repo.entries[2].PrevID)
	assert.Equal(t, repo.entries[1].ID, *repo.entries[2].PrevID)

	for _, e := range repo.entries {
		assert.True(t, e.Immutable)
	}
}

func TestSealBatchContinuesFromLastSealed(t *testing.T) {
	repo := newMockRepo()
	record(t, repo, "journal.post")
	record(t, repo, "journal.post")

	sealer := NewSealer(repo)
	sealed, err := sealer.SealBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 2, sealed)

	record(t, repo, "journal.reverse")
	sealed, err = sealer.SealBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sealed)

	require.NotNil(t, repo.entries[2].PrevID)
	assert.Equal(t, repo.entries[1].ID, *repo.entries[2].PrevID)
	assert.NoError(t, sealer.Verify(context.Background()))
}

func TestSealBatchHonoursLimit(t *testing.T) {
	repo := newMockRepo()
	for i := 0; i < 5; i++ {
		record(t, repo, "journal.post")
	}

	sealer := NewSealer(repo)
	sealed, err := sealer.SealBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sealed)
	assert.False(t, repo.entries[2].Immutable)
}

func TestSealBatchEmptyBacklog(t *testing.T) {
	sealer := NewSealer(newMockRepo())
	sealed, err := sealer.SealBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, sealed)
}

func TestVerifyIntactChain(t *testing.T) {
	repo := newMockRepo()
	for i := 0; i < 4; i++ {
		record(t, repo, "journal.post")
	}
	sealer := NewSealer(repo)
	_, err := sealer.SealBatch(context.Background(), 10)
	require.NoError(t, err)

	assert.NoError(t, sealer.Verify(context.Background()))
}

func TestVerifyDetectsTamperedContent(t *testing.T) {
	repo := newMockRepo()
	record(t, repo, "journal.post")
	record(t, repo, "journal.post")
	sealer := NewSealer(repo)
	_, err := sealer.SealBatch(context.Background(), 10)
	require.NoError(t, err)

	repo.entries[0].Action = "journal.delete"
	assert.ErrorIs(t, sealer.Verify(context.Background()), ErrChainBroken)
}

func TestVerifyDetectsRewrittenHash(t *testing.T) {
	repo := newMockRepo()
	record(t, repo, "journal.post")
	record(t, repo, "journal.post")
	sealer := NewSealer(repo)
	_, err := sealer.SealBatch(context.Background(), 10)
	require.NoError(t, err)

	// Recomputing a hash without its successors makes the link stale.
	forged, err := ContentHash(repo.entries[0], "forged-prev")
	require.NoError(t, err)
	repo.entries[0].ContentHash = &forged
	assert.ErrorIs(t, sealer.Verify(context.Background()), ErrChainBroken)
}

func TestVerifyDetectsBrokenPredecessorLink(t *testing.T) {
	repo := newMockRepo()
	record(t, repo, "journal.post")
	record(t, repo, "journal.post")
	record(t, repo, "journal.post")
	sealer := NewSealer(repo)
	_, err := sealer.SealBatch(context.Background(), 10)
	require.NoError(t, err)

	repo.entries[2].PrevID = &repo.entries[0].ID
	assert.ErrorIs(t, sealer.Verify(context.Background()), ErrChainBroken)
}

func TestSealingTwiceIsRejected(t *testing.T) {
	repo := newMockRepo()
	id := record(t, repo, "journal.post")
	sealer := NewSealer(repo)
	_, err := sealer.SealBatch(context.Background(), 10)
	require.NoError(t, err)

	err = repo.Seal(context.Background(), id, "overwrite", nil)
	assert.ErrorIs(t, err, ErrSealedImmutable)
}

func TestContentHashIsDeterministic(t *testing.T) {
	entry := Entry{
		ID: 1, OrgID: 1, ActorID: 7,
		Action: "journal.post", Entity: "journal", EntityID: "42",
		Changes: map[string]Change{
			"status": {Old: "DRAFT", New: "POSTED"},
			"number": {Old: nil, New: "GEN-000001"},
		},
		At: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
	}

	first, err := ContentHash(entry, "")
	require.NoError(t, err)
	second, err := ContentHash(entry, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	chained, err := ContentHash(entry, first)
	require.NoError(t, err)
	assert.NotEqual(t, first, chained)
}
