// Package edgestream implements the EdgeDecoder of §4.2/§6.5: a restartable
// (from, to) link stream over a zstd-compressed frame container whose
// payload is zig-zag varint-encoded deltas. pagefrontier uses
// klauspost/compress's zstd implementation as the frame container, in
// place of the original C implementation's lz4frame.
package edgestream

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/rohmanhakim/pagefrontier/internal/bytebuf"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

// Link is one (from, to) PageId edge.
type Link struct {
	From uint64
	To   uint64
}

// Encode compresses links into a single zstd frame holding their
// delta-zigzag varint encoding (§6.5/§6.6). Links must be supplied in the
// order they should be replayed; delta coding assumes no particular sort
// order and simply tracks the previous (from, to) seen.
func Encode(links []Link) ([]byte, error) {
	w := bytebuf.NewWriter(len(links) * 4)
	var prevFrom, prevTo int64
	for _, l := range links {
		from, to := int64(l.From), int64(l.To)
		w.PutVarint(from - prevFrom)
		w.PutVarint(to - prevTo)
		prevFrom, prevTo = from, to
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, failure.New(failure.KindInternal, failure.SeverityFatal, "edgestream: zstd writer: "+err.Error())
	}
	if _, err := enc.Write(w.Bytes()); err != nil {
		enc.Close()
		return nil, failure.New(failure.KindInternal, failure.SeverityFatal, "edgestream: zstd write: "+err.Error())
	}
	if err := enc.Close(); err != nil {
		return nil, failure.New(failure.KindInternal, failure.SeverityFatal, "edgestream: zstd close: "+err.Error())
	}
	return buf.Bytes(), nil
}

// Decoder is a lazy, finite, restartable sequence of Link, decoded from a
// zstd frame produced by Encode. Once Next returns an error the decoder
// enters an error terminal and must not be iterated further (§4.2).
type Decoder struct {
	frame     []byte
	reader    *bytebuf.Reader
	prevFrom  int64
	prevTo    int64
	errored   bool
	exhausted bool
}

// NewDecoder prepares a Decoder over a zstd frame previously produced by
// Encode. The frame bytes are retained for Reset.
func NewDecoder(frame []byte) (*Decoder, error) {
	d := &Decoder{frame: frame}
	if err := d.reset(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) reset() error {
	dec, err := zstd.NewReader(bytes.NewReader(d.frame))
	if err != nil {
		return failure.New(failure.KindInternal, failure.SeverityFatal, "edgestream: zstd reader: "+err.Error())
	}
	raw, err := io.ReadAll(dec)
	dec.Close()
	if err != nil {
		return failure.New(failure.KindInternal, failure.SeverityFatal, "edgestream: zstd decompress: "+err.Error())
	}
	d.reader = bytebuf.NewReader(raw)
	d.prevFrom, d.prevTo = 0, 0
	d.errored = false
	d.exhausted = false
	return nil
}

// Reset repositions the stream at its first link, per §4.3's link-stream
// reset contract (PageRank and HITS each consume the stream once per
// iteration).
func (d *Decoder) Reset() error {
	return d.reset()
}

// Next returns the next Link, or (Link{}, false, nil) once the stream is
// exhausted. A non-nil error means the decoder has entered its error
// terminal; Next must not be called again.
func (d *Decoder) Next() (Link, bool, error) {
	if d.errored {
		return Link{}, false, failure.New(failure.KindInternal, failure.SeverityFatal, "edgestream: decoder already in error state")
	}
	if d.exhausted || d.reader.Len() == 0 {
		d.exhausted = true
		return Link{}, false, nil
	}

	dFrom, err := d.reader.Varint()
	if err != nil {
		d.errored = true
		return Link{}, false, failure.New(failure.KindInternal, failure.SeverityFatal, "edgestream: truncated frame: "+err.Error())
	}
	dTo, err := d.reader.Varint()
	if err != nil {
		d.errored = true
		return Link{}, false, failure.New(failure.KindInternal, failure.SeverityFatal, "edgestream: truncated frame: "+err.Error())
	}

	d.prevFrom += dFrom
	d.prevTo += dTo
	return Link{From: uint64(d.prevFrom), To: uint64(d.prevTo)}, true, nil
}

// Close releases decoder resources.
func (d *Decoder) Close() error {
	return nil
}
