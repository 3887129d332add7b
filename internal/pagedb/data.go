// Package pagedb implements PageDB (§4.3): URL-to-id assignment, per-page
// metadata, adjacency storage, stream iterators, and domain temperature.
// It is grounded on `src/page_db.c`/`lib/src/pagedb.h` of the original
// implementation and persisted through internal/txnmgr (bbolt).
package pagedb

// PageInfo mirrors spec.md §3's PageInfo entity and §6.1's bit-exact
// on-disk layout.
type PageInfo struct {
	URL         string
	FirstCrawl  float64 // seconds since epoch; 0 iff never crawled
	LastCrawl   float64
	NCrawls     uint64
	NChanges    uint64
	Score       float32
	ContentHash []byte
}

// LinkIn is one outgoing link offered to Add: a URL plus the content
// score the crawler observed for it (used only if the link turns out to
// be a brand-new page).
type LinkIn struct {
	URL   string
	Score float32
}

// Page is the unit Add consumes: one crawl observation.
type Page struct {
	URL         string
	Time        float64 // seconds since epoch
	Score       float32
	ContentHash []byte
	Links       []LinkIn
}

// Delta is one touched (hash, PageInfo) pair emitted by Add when
// emitDelta is requested — consumed by schedulers to decide which pages
// to insert into their queues (§4.3 step 6).
type Delta struct {
	Hash uint64
	Info PageInfo
}

// Options configures a DB instance.
type Options struct {
	// Persist controls whether the backing bbolt file survives Close.
	Persist bool
	// CrossDomainOnly, when true, makes PageDBLinkStream emit only edges
	// whose endpoints have different domain hashes (Open Question #1,
	// SPEC_FULL.md).
	CrossDomainOnly bool
}
