// Package marr implements MArr (§4.1): a typed, growable, memory-mapped
// dense array of fixed-size records, file-backed or anonymous. Growth
// doubles the backing region; closing unmaps and, unless persist is set,
// removes the backing file.
package marr

import (
	"math"
	"os"

	"golang.org/x/sys/unix"

	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

// Advice mirrors the hint values an MArr consumer may pass to Advise; all
// are best-effort and must tolerate "unsupported" backends.
type Advice int

const (
	AdviceNormal Advice = iota
	AdviceSequential
	AdviceRandom
)

// Float32 is a growable mmap-backed []float32, the concrete vector type
// every link-analysis algorithm (§4.3.3, §4.3.4) allocates four of.
type Float32 struct {
	path    string
	file    *os.File
	mem     []byte
	n       int
	persist bool
}

const elemSize = 4

// OpenFloat32 opens (creating if absent) a Float32 MArr backed by the file
// at path with room for at least n elements. path == "" requests an
// anonymous (non-file-backed) mapping.
func OpenFloat32(path string, n int, persist bool) (*Float32, error) {
	a := &Float32{path: path, persist: persist}
	if err := a.mapCapacity(n); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Float32) mapCapacity(n int) error {
	if n < 1 {
		n = 1
	}
	size := n * elemSize

	// A growing anonymous mapping has no backing file to preserve its
	// bytes across remap, so the previous region's contents must be
	// copied forward by hand before it is unmapped.
	var carryOver []byte
	if a.path == "" && a.mem != nil {
		carryOver = make([]byte, len(a.mem))
		copy(carryOver, a.mem)
	}

	if a.mem != nil {
		if a.path != "" {
			if err := unix.Msync(a.mem, unix.MS_SYNC); err != nil {
				return failure.New(failure.KindInvalidPath, failure.SeverityFatal, "marr: msync before grow failed: "+err.Error())
			}
		}
		if err := unix.Munmap(a.mem); err != nil {
			return failure.New(failure.KindMemory, failure.SeverityFatal, "marr: munmap failed: "+err.Error())
		}
		a.mem = nil
	}

	if a.path == "" {
		mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return failure.New(failure.KindMemory, failure.SeverityFatal, "marr: anonymous mmap failed: "+err.Error())
		}
		if carryOver != nil {
			copy(mem, carryOver)
		}
		a.mem = mem
		a.n = n
		return nil
	}

	if a.file == nil {
		f, err := os.OpenFile(a.path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return failure.New(failure.KindInvalidPath, failure.SeverityFatal, "marr: open failed: "+err.Error())
		}
		a.file = f
	}
	if err := a.file.Truncate(int64(size)); err != nil {
		return failure.New(failure.KindInvalidPath, failure.SeverityFatal, "marr: truncate failed: "+err.Error())
	}
	mem, err := unix.Mmap(int(a.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return failure.New(failure.KindMemory, failure.SeverityFatal, "marr: file mmap failed: "+err.Error())
	}
	a.mem = mem
	a.n = n
	return nil
}

// Len reports the element capacity of the array.
func (a *Float32) Len() int {
	return a.n
}

// Get returns element i. Out-of-bounds access fails cleanly with a
// KindInternal error rather than a panic or silent truncation.
func (a *Float32) Get(i int) (float32, error) {
	if i < 0 || i >= a.n {
		return 0, failure.New(failure.KindInternal, failure.SeverityRecoverable, "marr: index out of bounds")
	}
	return decodeFloat32(a.mem[i*elemSize : i*elemSize+elemSize]), nil
}

// Set writes element i.
func (a *Float32) Set(i int, v float32) error {
	if i < 0 || i >= a.n {
		return failure.New(failure.KindInternal, failure.SeverityRecoverable, "marr: index out of bounds")
	}
	encodeFloat32(a.mem[i*elemSize:i*elemSize+elemSize], v)
	return nil
}

// EnsureLen grows the array so index i is valid, doubling capacity (or
// more, if i still exceeds the doubled size) as §4.1/§4.3.3 require.
func (a *Float32) EnsureLen(i int) error {
	if i < a.n {
		return nil
	}
	newN := a.n * 2
	if newN <= i {
		newN = i + 1
	}
	return a.mapCapacity(newN)
}

// Zero sets every element to 0.
func (a *Float32) Zero() {
	for i := range a.mem {
		a.mem[i] = 0
	}
}

// Advise is a best-effort hint; unsupported platforms/backends are not an
// error.
func (a *Float32) Advise(_ Advice) error {
	if a.mem == nil {
		return nil
	}
	_ = unix.Madvise(a.mem, unix.MADV_NORMAL)
	return nil
}

// Sync flushes a file-backed mapping to disk; a no-op for anonymous maps.
func (a *Float32) Sync() error {
	if a.path == "" || a.mem == nil {
		return nil
	}
	if err := unix.Msync(a.mem, unix.MS_SYNC); err != nil {
		return failure.New(failure.KindInvalidPath, failure.SeverityRecoverable, "marr: msync failed: "+err.Error())
	}
	return nil
}

// Close unmaps the region and, unless persist was requested, removes the
// backing file.
func (a *Float32) Close() error {
	if a.mem != nil {
		if err := unix.Munmap(a.mem); err != nil {
			return failure.New(failure.KindMemory, failure.SeverityFatal, "marr: munmap failed: "+err.Error())
		}
		a.mem = nil
	}
	if a.file != nil {
		path := a.file.Name()
		if err := a.file.Close(); err != nil {
			return failure.New(failure.KindInvalidPath, failure.SeverityFatal, "marr: close failed: "+err.Error())
		}
		if !a.persist {
			_ = os.Remove(path)
		}
	}
	return nil
}

func decodeFloat32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

func encodeFloat32(b []byte, v float32) {
	bits := math.Float32bits(v)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}
