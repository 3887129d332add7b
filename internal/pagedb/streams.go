package pagedb

import (
	"go.etcd.io/bbolt"

	"github.com/rohmanhakim/pagefrontier/pkg/failure"
	"github.com/rohmanhakim/pagefrontier/pkg/pagehash"
)

// Link is one (from, to) PageId edge emitted by a PageDBLinkStream.
type Link struct {
	From uint64
	To   uint64
}

// PageDBLinkStream is a forward cursor over the `links` table (§4.3): it
// emits Link{from=page_id, to=child_id} for every entry of every
// adjacency row. It holds only a read-only cursor (via a standalone
// long-lived read transaction) and releases it on Close.
type PageDBLinkStream struct {
	tx              *bbolt.Tx
	cursor          *bbolt.Cursor
	curFrom         uint64
	curChildren     []uint64
	curChildPos     int
	crossDomainOnly bool
	idx2hashBucket  *bbolt.Bucket
	exhausted       bool
}

// NewLinkStream opens a PageDBLinkStream. When opts.CrossDomainOnly is
// true, only edges whose endpoints resolve to different domain hashes
// are emitted (Open Question #1, SPEC_FULL.md).
func (db *DB) NewLinkStream() (*PageDBLinkStream, failure.ClassifiedError) {
	tx, err := db.txn.BeginRead()
	if err != nil {
		return nil, failure.Wrap("pagedb: new link stream", err)
	}
	s := &PageDBLinkStream{
		tx:              tx,
		cursor:          tx.Bucket(bucketLinks).Cursor(),
		crossDomainOnly: db.opts.CrossDomainOnly,
		idx2hashBucket:  tx.Bucket(bucketIdx2Hash),
	}
	s.firstRow()
	return s, nil
}

func (s *PageDBLinkStream) advanceRow() {
	k, v := s.cursor.Next()
	if k == nil {
		s.exhausted = true
		return
	}
	s.curFrom = decodeU64(k)
	s.curChildren = decodeAdjacency(v)
	s.curChildPos = 0
}

func (s *PageDBLinkStream) firstRow() {
	k, v := s.cursor.First()
	if k == nil {
		s.exhausted = true
		return
	}
	s.curFrom = decodeU64(k)
	s.curChildren = decodeAdjacency(v)
	s.curChildPos = 0
}

func (s *PageDBLinkStream) domainHashOf(id uint64) (uint32, bool) {
	v := s.idx2hashBucket.Get(encodeU64(id))
	if v == nil {
		return 0, false
	}
	return pagehash.Hash(decodeU64(v)).DomainHash(), true
}

// Next returns the next Link, or (Link{}, false) once the stream is
// exhausted.
func (s *PageDBLinkStream) Next() (Link, bool) {
	for {
		if s.exhausted {
			return Link{}, false
		}
		if s.curChildPos >= len(s.curChildren) {
			s.advanceRow()
			continue
		}
		to := s.curChildren[s.curChildPos]
		s.curChildPos++

		if s.crossDomainOnly {
			fromDH, fromOK := s.domainHashOf(s.curFrom)
			toDH, toOK := s.domainHashOf(to)
			if fromOK && toOK && fromDH == toDH {
				continue
			}
		}
		return Link{From: s.curFrom, To: to}, true
	}
}

// Reset repositions the stream at its first edge (§4.3).
func (s *PageDBLinkStream) Reset() {
	s.exhausted = false
	s.curChildren = nil
	s.firstRow()
}

// Close releases the stream's read-only cursor.
func (s *PageDBLinkStream) Close() error {
	return s.tx.Rollback()
}

// HashIdxEntry is one (hash, id) pair from a HashIdxStream.
type HashIdxEntry struct {
	Hash uint64
	ID   uint64
}

// HashIdxStream yields (hash, id) pairs in ascending hash order (§4.3): a
// finite, single-pass, restartable-only-via-new-instance cursor.
type HashIdxStream struct {
	tx     *bbolt.Tx
	cursor *bbolt.Cursor
}

func (db *DB) NewHashIdxStream() (*HashIdxStream, failure.ClassifiedError) {
	tx, err := db.txn.BeginRead()
	if err != nil {
		return nil, failure.Wrap("pagedb: new hash idx stream", err)
	}
	return &HashIdxStream{tx: tx, cursor: tx.Bucket(bucketHash2Idx).Cursor()}, nil
}

func (s *HashIdxStream) Next() (HashIdxEntry, bool) {
	k, v := s.cursor.Next()
	if k == nil {
		return HashIdxEntry{}, false
	}
	return HashIdxEntry{Hash: decodeU64(k), ID: decodeU64(v)}, true
}

// First repositions the internal cursor to the first entry; callers use
// this once right after opening since bbolt cursors start unpositioned.
func (s *HashIdxStream) First() (HashIdxEntry, bool) {
	k, v := s.cursor.First()
	if k == nil {
		return HashIdxEntry{}, false
	}
	return HashIdxEntry{Hash: decodeU64(k), ID: decodeU64(v)}, true
}

func (s *HashIdxStream) Close() error {
	return s.tx.Rollback()
}

// HashInfoEntry is one (hash, PageInfo) pair from a HashInfoStream.
type HashInfoEntry struct {
	Hash uint64
	Info PageInfo
}

// HashInfoStream yields (hash, PageInfo) pairs in ascending hash order.
type HashInfoStream struct {
	tx     *bbolt.Tx
	cursor *bbolt.Cursor
}

func (db *DB) NewHashInfoStream() (*HashInfoStream, failure.ClassifiedError) {
	tx, err := db.txn.BeginRead()
	if err != nil {
		return nil, failure.Wrap("pagedb: new hash info stream", err)
	}
	return &HashInfoStream{tx: tx, cursor: tx.Bucket(bucketHash2Inf).Cursor()}, nil
}

func (s *HashInfoStream) First() (HashInfoEntry, bool, failure.ClassifiedError) {
	k, v := s.cursor.First()
	if k == nil {
		return HashInfoEntry{}, false, nil
	}
	pi, err := decodePageInfo(v)
	if err != nil {
		return HashInfoEntry{}, false, failure.Wrap("pagedb: hash info stream", err)
	}
	return HashInfoEntry{Hash: decodeU64(k), Info: pi}, true, nil
}

func (s *HashInfoStream) Next() (HashInfoEntry, bool, failure.ClassifiedError) {
	k, v := s.cursor.Next()
	if k == nil {
		return HashInfoEntry{}, false, nil
	}
	pi, err := decodePageInfo(v)
	if err != nil {
		return HashInfoEntry{}, false, failure.Wrap("pagedb: hash info stream", err)
	}
	return HashInfoEntry{Hash: decodeU64(k), Info: pi}, true, nil
}

func (s *HashInfoStream) Close() error {
	return s.tx.Rollback()
}
