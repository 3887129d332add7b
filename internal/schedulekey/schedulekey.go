// Package schedulekey implements the ScheduleKey wire format of §6.4: a
// packed (f32, u64) compared lexicographically with ascending float order
// then ascending hash order. Both BFScheduler and FreqScheduler store
// their queues under bbolt buckets keyed this way, since bbolt orders
// keys by raw byte comparison — the float component must therefore be
// transformed into a byte sequence whose lexicographic order matches IEEE
// 754 numeric order.
package schedulekey

import (
	"encoding/binary"
	"math"

	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

const Size = 4 + 8

// sortableBits maps a float32's bit pattern to a uint32 whose unsigned
// numeric (and therefore big-endian byte) order matches the float's
// numeric order: flip the sign bit for non-negative numbers, flip every
// bit for negative ones.
func sortableBits(v float32) uint32 {
	bits := math.Float32bits(v)
	if bits&0x80000000 != 0 {
		return ^bits
	}
	return bits | 0x80000000
}

func fromSortableBits(bits uint32) float32 {
	if bits&0x80000000 != 0 {
		return math.Float32frombits(bits &^ 0x80000000)
	}
	return math.Float32frombits(^bits)
}

// Valid reports whether score is usable as a ScheduleKey component (§6.4:
// "Float NaN is disallowed").
func Valid(score float32) bool {
	return !math.IsNaN(float64(score))
}

// Encode packs (score, hash) into a 12-byte key whose byte-lexicographic
// order is ascending score, then ascending hash.
func Encode(score float32, hash uint64) ([]byte, failure.ClassifiedError) {
	if !Valid(score) {
		return nil, failure.New(failure.KindInternal, failure.SeverityFatal, "schedulekey: NaN score is disallowed")
	}
	b := make([]byte, Size)
	binary.BigEndian.PutUint32(b[0:4], sortableBits(score))
	binary.BigEndian.PutUint64(b[4:12], hash)
	return b, nil
}

// Decode is Encode's inverse.
func Decode(b []byte) (float32, uint64) {
	score := fromSortableBits(binary.BigEndian.Uint32(b[0:4]))
	hash := binary.BigEndian.Uint64(b[4:12])
	return score, hash
}
