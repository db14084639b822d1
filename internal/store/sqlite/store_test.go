package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func meta(docType, docCode string) domain.Metadata {
	return domain.Metadata{domain.KeyDocType: docType, domain.KeyDocCode: docCode}
}

func TestStore_SaveAndLoadKeepOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecords(ctx,
		[]string{"invoice issued_by acme", "bank statement"},
		[]domain.Metadata{meta("INVOICE", "INV001"), meta("BANK_STATEMENT", "BS001")}))
	require.NoError(t, store.SaveRecords(ctx,
		[]string{"leave request"},
		[]domain.Metadata{{domain.KeyDocType: "LEAVE_REQUEST", "summary": "Leave request was submitted"}}))

	texts, metas, err := store.LoadRecords(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"invoice issued_by acme", "bank statement", "leave request"}, texts)
	assert.Equal(t, "INV001", metas[0].DocCode())
	assert.Equal(t, "BANK_STATEMENT", metas[1].DocType())
	assert.Equal(t, "", metas[2].DocCode())
	assert.Equal(t, "Leave request was submitted", metas[2].String("summary"))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	counts, err := store.CountByDocType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"INVOICE": 1, "BANK_STATEMENT": 1, "LEAVE_REQUEST": 1}, counts)
}

func TestStore_SaveLengthMismatch(t *testing.T) {
	store := setupTestStore(t)

	err := store.SaveRecords(context.Background(), []string{"a"}, nil)
	assert.ErrorIs(t, err, domain.ErrLengthMismatch)
}

func TestStore_NilMetadata(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecords(ctx, []string{"x"}, []domain.Metadata{nil}))

	_, metas, err := store.LoadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Empty(t, metas[0].DocType())
}

func TestStore_Clear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecords(ctx, []string{"a"}, []domain.Metadata{meta("INVOICE", "1")}))
	require.NoError(t, store.SetMeta(ctx, MetaProvider, "tfidf"))
	require.NoError(t, store.Clear(ctx))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = store.GetMeta(ctx, MetaProvider)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ReplaceRecords(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecords(ctx, []string{"a", "b"}, []domain.Metadata{meta("INVOICE", "1"), meta("INVOICE", "2")}))
	require.NoError(t, store.SetMeta(ctx, MetaProvider, "random"))

	require.NoError(t, store.ReplaceRecords(ctx, []string{"c"}, []domain.Metadata{meta("BANK_STATEMENT", "3")}))

	texts, metas, err := store.LoadRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, texts)
	assert.Equal(t, "BANK_STATEMENT", metas[0].DocType())
	_, err = store.GetMeta(ctx, MetaProvider)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ReplaceRecordsRejectedKeepsContents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecords(ctx, []string{"a"}, []domain.Metadata{meta("INVOICE", "1")}))

	err := store.ReplaceRecords(ctx, []string{"x", "y"}, []domain.Metadata{meta("LEAVE_REQUEST", "9")})
	assert.ErrorIs(t, err, domain.ErrLengthMismatch)

	texts, _, err := store.LoadRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, texts)
}

func TestStore_ReplaceRecordsWithNothingEmptiesStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecords(ctx, []string{"a"}, []domain.Metadata{meta("INVOICE", "1")}))
	require.NoError(t, store.ReplaceRecords(ctx, nil, nil))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_Meta(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetMeta(ctx, MetaDimension, "384"))
	require.NoError(t, store.SetMeta(ctx, MetaDimension, "512"))

	v, err := store.GetMeta(ctx, MetaDimension)
	require.NoError(t, err)
	assert.Equal(t, "512", v)
}

func TestStore_ReopenKeepsRecordsAndSkipsMigrations(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.SaveRecords(ctx, []string{"a"}, []domain.Metadata{meta("INVOICE", "1")}))
	require.NoError(t, first.Close())

	second, err := NewStore(dir)
	require.NoError(t, err)
	defer second.Close()

	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var versions int
	require.NoError(t, second.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)
}
