// Package txnmgr wraps the embedded ordered KV store (§6, "EXTERNAL
// INTERFACES") that PageDB and both schedulers persist their tables in.
// pagefrontier uses go.etcd.io/bbolt as the concrete store: an ordered,
// transactional, single-writer/many-reader, mmap-backed B+tree — the
// pack's closest real analog to the original's LMDB-backed TxnMgr
// (`src/txn_manager.c`).
//
// Unlike LMDB, bbolt grows its backing mmap automatically as a
// transaction needs more pages, so there is no user-visible MAP_FULL
// condition to recover from. TxnMgr still implements §5's "abort, grow,
// retry exactly once" shape using pkg/retry, so callers that do hit a
// StoreFull-classified error from their own write closure (for example, a
// caller-enforced store size ceiling) get the same recovery contract the
// spec describes, rather than a bespoke retry loop per caller.
package txnmgr

import (
	"os"

	"go.etcd.io/bbolt"

	"github.com/rohmanhakim/pagefrontier/pkg/failure"
	"github.com/rohmanhakim/pagefrontier/pkg/retry"
	"github.com/rohmanhakim/pagefrontier/pkg/timeutil"
)

// TxnMgr coordinates transactions against a single bbolt database file.
type TxnMgr struct {
	db      *bbolt.DB
	path    string
	persist bool
}

// Open opens (creating if absent) the bbolt database at path.
func Open(path string, persist bool) (*TxnMgr, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, failure.New(failure.KindInvalidPath, failure.SeverityFatal, "txnmgr: open failed: "+err.Error())
	}
	return &TxnMgr{db: db, path: path, persist: persist}, nil
}

// CreateBuckets ensures every named bucket exists, run once at Open time
// by callers that own a fixed table set (PageDB's five tables, a
// scheduler's one).
func (m *TxnMgr) CreateBuckets(names ...[]byte) error {
	err := m.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return failure.New(failure.KindInternal, failure.SeverityFatal, "txnmgr: create buckets failed: "+err.Error())
	}
	return nil
}

// retryOnceParam is the §5 "abort, grow, retry exactly once" policy: two
// attempts, no sleep between them (the growth itself is the remedial
// action, not time).
var retryOnceParam = retry.NewRetryParam(0, 0, 1, 2, timeutil.NewBackoffParam(0, 1, 0))

// Update runs fn inside a single read-write transaction. If fn returns a
// KindStoreFull error the transaction is aborted, grow() is invoked, and
// the whole closure is retried exactly once (§4.3 "Growth rule", §5
// "Map-size growth").
func (m *TxnMgr) Update(fn func(tx *bbolt.Tx) failure.ClassifiedError) failure.ClassifiedError {
	var final failure.ClassifiedError
	result := retry.Retry(retryOnceParam, func() (struct{}, failure.ClassifiedError) {
		var inner failure.ClassifiedError
		err := m.db.Update(func(tx *bbolt.Tx) error {
			inner = fn(tx)
			if inner != nil {
				return inner
			}
			return nil
		})
		if inner != nil && inner.Kind() == failure.KindStoreFull {
			m.grow()
			return struct{}{}, inner
		}
		if inner == nil && err != nil {
			inner = failure.New(failure.KindInternal, failure.SeverityFatal, "txnmgr: commit failed: "+err.Error())
		}
		if inner != nil {
			// any other failure stops the retry loop and is returned as is
			final = inner
			return struct{}{}, &retry.RetryError{Message: inner.Error(), ErrKind: inner.Kind()}
		}
		return struct{}{}, nil
	})
	if final != nil {
		return final
	}
	return result.Err()
}

// BeginRead opens a standalone long-lived read-only transaction for
// callers that need a cursor to outlive a single View closure — the
// stream types in internal/pagedb (§4.3, "must hold only a read-only
// cursor and release it on delete"). The caller must Rollback() it when
// done; a read-only bbolt transaction's Rollback is the correct way to
// release it (there is nothing to commit).
func (m *TxnMgr) BeginRead() (*bbolt.Tx, error) {
	tx, err := m.db.Begin(false)
	if err != nil {
		return nil, failure.New(failure.KindInternal, failure.SeverityFatal, "txnmgr: begin read failed: "+err.Error())
	}
	return tx, nil
}

// View runs fn inside a read-only transaction against a consistent
// snapshot (§5, "Readers observe a consistent snapshot").
func (m *TxnMgr) View(fn func(tx *bbolt.Tx) failure.ClassifiedError) failure.ClassifiedError {
	var inner failure.ClassifiedError
	err := m.db.View(func(tx *bbolt.Tx) error {
		inner = fn(tx)
		if inner != nil {
			return inner
		}
		return nil
	})
	if inner != nil {
		return inner
	}
	if err != nil {
		return failure.New(failure.KindInternal, failure.SeverityFatal, "txnmgr: view failed: "+err.Error())
	}
	return nil
}

// grow is bbolt's no-op analog of LMDB's mdb_env_set_mapsize doubling:
// bbolt already grows its own mmap per-transaction, so there is nothing
// to do here beyond the hook point §5 describes.
func (m *TxnMgr) grow() {}

// Close closes the underlying store, removing the backing file unless
// persist was requested at Open.
func (m *TxnMgr) Close() error {
	if err := m.db.Close(); err != nil {
		return failure.New(failure.KindInternal, failure.SeverityFatal, "txnmgr: close failed: "+err.Error())
	}
	if !m.persist {
		_ = os.Remove(m.path)
	}
	return nil
}
