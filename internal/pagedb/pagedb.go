package pagedb

import (
	"bytes"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/rohmanhakim/pagefrontier/internal/marr"
	"github.com/rohmanhakim/pagefrontier/internal/txnmgr"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
	"github.com/rohmanhakim/pagefrontier/pkg/pagehash"
)

var (
	bucketInfo     = []byte("info")
	bucketHash2Idx = []byte("hash2idx")
	bucketHash2Inf = []byte("hash2info")
	bucketLinks    = []byte("links")
	bucketIdx2Hash = []byte("idx2hash")

	keyNPages = []byte("n_pages")
)

const (
	defaultDomainTempCells  = 4096
	defaultDomainTempWindow = 3600.0 // seconds
)

// DB is the persistent page database of §4.3, backed by one bbolt file
// holding the four named tables plus an idx2hash bookkeeping table used
// for reverse id->hash lookups (dump/backlinks CLI, cross-domain link
// filtering) — an addition §3.S2 permits since it is "relation + integer
// id lookup", never a live reference graph.
type DB struct {
	txn  *txnmgr.TxnMgr
	opts Options
	dt   *DomainTemp
	dir  string
}

// Open opens (creating if absent) a PageDB rooted at dir, per
// SPEC_FULL.md §3.S1: one `pagedb.bolt` file inside dir.
func Open(dir string, opts Options) (*DB, error) {
	path := filepath.Join(dir, "pagedb.bolt")
	tm, err := txnmgr.Open(path, opts.Persist)
	if err != nil {
		return nil, err
	}
	if err := tm.CreateBuckets(bucketInfo, bucketHash2Idx, bucketHash2Inf, bucketLinks, bucketIdx2Hash); err != nil {
		return nil, err
	}
	return &DB{
		txn:  tm,
		opts: opts,
		dt:   NewDomainTemp(defaultDomainTempCells, defaultDomainTempWindow),
		dir:  dir,
	}, nil
}

// Close releases the underlying store.
func (db *DB) Close() error {
	return db.txn.Close()
}

func readNPages(b *bbolt.Bucket) uint64 {
	v := b.Get(keyNPages)
	if v == nil {
		return 0
	}
	return decodeU64(v)
}

func writeNPages(b *bbolt.Bucket, n uint64) error {
	return b.Put(keyNPages, encodeU64(n))
}

// Add implements §4.3's `add(page, emit_delta)` operation.
func (db *DB) Add(page Page, emitDelta bool) ([]Delta, failure.ClassifiedError) {
	var deltas []Delta

	cerr := db.txn.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		deltas = nil // reset on retry
		infoBkt := tx.Bucket(bucketInfo)
		h2idx := tx.Bucket(bucketHash2Idx)
		h2info := tx.Bucket(bucketHash2Inf)
		linksBkt := tx.Bucket(bucketLinks)
		idx2hash := tx.Bucket(bucketIdx2Hash)

		nPages := readNPages(infoBkt)

		h := uint64(pagehash.Of(page.URL))
		hKey := encodeU64(h)

		pi, existedInfo, err := getPageInfo(h2info, hKey)
		if err != nil {
			return failure.Wrap("pagedb: add: read source info", err)
		}
		if !existedInfo {
			pi = PageInfo{
				URL:         page.URL,
				FirstCrawl:  page.Time,
				LastCrawl:   page.Time,
				NCrawls:     1,
				Score:       page.Score,
				ContentHash: page.ContentHash,
			}
		} else {
			pi.NCrawls++
			pi.LastCrawl = page.Time
			pi.Score = page.Score
			if !bytes.Equal(pi.ContentHash, page.ContentHash) {
				pi.ContentHash = page.ContentHash
				pi.NChanges++
			}
		}

		srcID, srcExisted := getIdx(h2idx, hKey)
		if !srcExisted {
			srcID = nPages
			nPages++
			if err := h2idx.Put(hKey, encodeU64(srcID)); err != nil {
				return failure.Wrap("pagedb: add: write hash2idx", err)
			}
			if err := idx2hash.Put(encodeU64(srcID), hKey); err != nil {
				return failure.Wrap("pagedb: add: write idx2hash", err)
			}
		}
		if err := putPageInfo(h2info, hKey, pi); err != nil {
			return failure.Wrap("pagedb: add: write source info", err)
		}
		if emitDelta {
			deltas = append(deltas, Delta{Hash: h, Info: pi})
		}

		childIDs := make([]uint64, 0, len(page.Links))
		for _, l := range page.Links {
			lh := uint64(pagehash.Of(l.URL))
			lhKey := encodeU64(lh)

			id, existed := getIdx(h2idx, lhKey)
			if !existed {
				id = nPages
				nPages++
				if err := h2idx.Put(lhKey, encodeU64(id)); err != nil {
					return failure.Wrap("pagedb: add: write child hash2idx", err)
				}
				if err := idx2hash.Put(encodeU64(id), lhKey); err != nil {
					return failure.Wrap("pagedb: add: write child idx2hash", err)
				}
				childInfo := PageInfo{URL: l.URL, Score: l.Score}
				if err := putPageInfo(h2info, lhKey, childInfo); err != nil {
					return failure.Wrap("pagedb: add: write child info", err)
				}
				if emitDelta {
					deltas = append(deltas, Delta{Hash: lh, Info: childInfo})
				}
			}
			childIDs = append(childIDs, id)
		}

		if err := writeNPages(infoBkt, nPages); err != nil {
			return failure.Wrap("pagedb: add: write n_pages", err)
		}
		if err := linksBkt.Put(encodeU64(srcID), encodeAdjacency(childIDs)); err != nil {
			return failure.Wrap("pagedb: add: write adjacency row", err)
		}
		return nil
	})

	return deltas, cerr
}

func getPageInfo(b *bbolt.Bucket, hKey []byte) (PageInfo, bool, error) {
	v := b.Get(hKey)
	if v == nil {
		return PageInfo{}, false, nil
	}
	pi, err := decodePageInfo(v)
	if err != nil {
		return PageInfo{}, false, err
	}
	return pi, true, nil
}

func putPageInfo(b *bbolt.Bucket, hKey []byte, pi PageInfo) error {
	return b.Put(hKey, encodePageInfo(pi))
}

func getIdx(b *bbolt.Bucket, hKey []byte) (uint64, bool) {
	v := b.Get(hKey)
	if v == nil {
		return 0, false
	}
	return decodeU64(v), true
}

// GetInfo implements §4.3's read-only `get_info(h) -> PageInfo?`.
func (db *DB) GetInfo(hash uint64) (PageInfo, bool, failure.ClassifiedError) {
	var pi PageInfo
	var found bool
	cerr := db.txn.View(func(tx *bbolt.Tx) failure.ClassifiedError {
		v, ok, err := getPageInfo(tx.Bucket(bucketHash2Inf), encodeU64(hash))
		if err != nil {
			return failure.Wrap("pagedb: get_info", err)
		}
		pi, found = v, ok
		return nil
	})
	if cerr != nil {
		return PageInfo{}, false, cerr
	}
	return pi, found, nil
}

// GetIdx implements §4.3's read-only `get_idx(h) -> PageId?`.
func (db *DB) GetIdx(hash uint64) (uint64, bool, failure.ClassifiedError) {
	var id uint64
	var found bool
	cerr := db.txn.View(func(tx *bbolt.Tx) failure.ClassifiedError {
		id, found = getIdx(tx.Bucket(bucketHash2Idx), encodeU64(hash))
		return nil
	})
	return id, found, cerr
}

// HashOf returns the PageHash stored for a PageId in the reverse idx2hash
// table.
func (db *DB) HashOf(id uint64) (uint64, bool, failure.ClassifiedError) {
	var hash uint64
	var found bool
	cerr := db.txn.View(func(tx *bbolt.Tx) failure.ClassifiedError {
		v := tx.Bucket(bucketIdx2Hash).Get(encodeU64(id))
		if v != nil {
			hash = decodeU64(v)
			found = true
		}
		return nil
	})
	return hash, found, cerr
}

// NPages returns the current page count.
func (db *DB) NPages() (uint64, failure.ClassifiedError) {
	var n uint64
	cerr := db.txn.View(func(tx *bbolt.Tx) failure.ClassifiedError {
		n = readNPages(tx.Bucket(bucketInfo))
		return nil
	})
	return n, cerr
}

// GetScores builds a dense n_pages-sized MArr by scanning hash2info and
// hash2idx together (§4.3).
func (db *DB) GetScores() (*marr.Float32, failure.ClassifiedError) {
	var scores *marr.Float32
	cerr := db.txn.View(func(tx *bbolt.Tx) failure.ClassifiedError {
		n := readNPages(tx.Bucket(bucketInfo))
		a, err := marr.OpenFloat32("", int(n), false)
		if err != nil {
			return failure.Wrap("pagedb: get_scores: alloc", err)
		}

		h2idx := tx.Bucket(bucketHash2Idx)
		h2info := tx.Bucket(bucketHash2Inf)
		c := h2info.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			pi, derr := decodePageInfo(v)
			if derr != nil {
				return failure.Wrap("pagedb: get_scores: decode", derr)
			}
			id, ok := getIdx(h2idx, k)
			if !ok {
				continue
			}
			if err := a.EnsureLen(int(id)); err != nil {
				return failure.Wrap("pagedb: get_scores: grow", err)
			}
			if err := a.Set(int(id), pi.Score); err != nil {
				return failure.Wrap("pagedb: get_scores: set", err)
			}
		}
		scores = a
		return nil
	})
	return scores, cerr
}

// DomainCrawlRate returns domain dh's smoothed crawl-rate approximation
// from the DomainTemp helper (§4.3).
func (db *DB) DomainCrawlRate(dh uint32) float32 {
	return db.dt.Get(dh)
}

// HeatDomain records one crawl for domain dh, used by BFScheduler.request
// after a URL is dispatched.
func (db *DB) HeatDomain(dh uint32) {
	db.dt.Heat(dh)
}

// UpdateDomainTemp advances the DomainTemp cool-down clock.
func (db *DB) UpdateDomainTemp(t float64) {
	db.dt.Update(t)
}

// ImportLinks implements the `db edges import` CLI operation: bulk-merge
// a previously dumped edge list into the links bucket by source PageId,
// used to restore or seed an existing store's link graph without
// rerunning Add (§6.5). Existing adjacency rows are appended to, not
// replaced.
func (db *DB) ImportLinks(links []Link) failure.ClassifiedError {
	byFrom := make(map[uint64][]uint64)
	for _, l := range links {
		byFrom[l.From] = append(byFrom[l.From], l.To)
	}
	return db.txn.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		b := tx.Bucket(bucketLinks)
		for from, children := range byFrom {
			key := encodeU64(from)
			merged := append(decodeAdjacency(b.Get(key)), children...)
			if err := b.Put(key, encodeAdjacency(merged)); err != nil {
				return failure.New(failure.KindInternal, failure.SeverityFatal, "pagedb: import links: put: "+err.Error())
			}
		}
		return nil
	})
}

// FindPredecessor implements the "db backlinks" CLI's one-hop-back walk
// (§6.S1) without a dedicated back-pointer field (§3.S2): it linearly
// scans the links bucket for the first adjacency row containing childID,
// returning that row's source PageId.
func (db *DB) FindPredecessor(childID uint64) (uint64, bool, failure.ClassifiedError) {
	var predID uint64
	var found bool
	cerr := db.txn.View(func(tx *bbolt.Tx) failure.ClassifiedError {
		c := tx.Bucket(bucketLinks).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			for _, child := range decodeAdjacency(v) {
				if child == childID {
					predID = decodeU64(k)
					found = true
					return nil
				}
			}
		}
		return nil
	})
	return predID, found, cerr
}
