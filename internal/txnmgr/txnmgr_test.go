package txnmgr_test

import (
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/rohmanhakim/pagefrontier/internal/txnmgr"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bucket = []byte("test")

func TestUpdate_CommitsAndViewSeesIt(t *testing.T) {
	dir := t.TempDir()
	m, err := txnmgr.Open(filepath.Join(dir, "db.bolt"), true)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.CreateBuckets(bucket))

	cerr := m.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		if err := tx.Bucket(bucket).Put([]byte("k"), []byte("v")); err != nil {
			return failure.Wrap("put", err)
		}
		return nil
	})
	require.Nil(t, cerr)

	var got []byte
	verr := m.View(func(tx *bbolt.Tx) failure.ClassifiedError {
		got = tx.Bucket(bucket).Get([]byte("k"))
		return nil
	})
	require.Nil(t, verr)
	assert.Equal(t, []byte("v"), got)
}

func TestUpdate_PropagatesNonStoreFullError(t *testing.T) {
	dir := t.TempDir()
	m, err := txnmgr.Open(filepath.Join(dir, "db.bolt"), true)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.CreateBuckets(bucket))

	calls := 0
	cerr := m.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		calls++
		return failure.New(failure.KindInternal, failure.SeverityFatal, "boom")
	})
	require.NotNil(t, cerr)
	assert.Equal(t, 1, calls, "non-StoreFull errors must not retry")
}

func TestUpdate_RetriesOnceOnStoreFull(t *testing.T) {
	dir := t.TempDir()
	m, err := txnmgr.Open(filepath.Join(dir, "db.bolt"), true)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.CreateBuckets(bucket))

	calls := 0
	cerr := m.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		calls++
		if calls == 1 {
			return failure.New(failure.KindStoreFull, failure.SeverityRecoverable, "full")
		}
		return nil
	})
	require.Nil(t, cerr)
	assert.Equal(t, 2, calls)
}

func TestClose_NonPersistRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.bolt")
	m, err := txnmgr.Open(path, false)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	matches, err := filepath.Glob(path)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
