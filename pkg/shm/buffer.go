package shm

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"github.com/shirou/gopsutil/v3/process"

	internalshm "github.com/srediag/shm-rendezvous/internal/shm"
)

const (
	poisonOffset = 0
	lengthOffset = 8

	// HeaderSize is the number of bytes in front of the payload area.
	HeaderSize = 16
	// DefaultSize is the legacy payload capacity.
	DefaultSize = 1024
	// DefaultPerm is the permission mask used by the legacy channels.
	DefaultPerm = 0o666
)

// ErrClosed is returned by operations on a detached buffer.
var ErrClosed = errors.New("shm: buffer detached")

// Buffer is one attached message segment.
type Buffer struct {
	region  *internalshm.MappedRegion
	framing Framing
	payload []byte
}

// OpenOptions defines options for creating or attaching a segment.
type OpenOptions struct {
	// Key is the SysV key of the segment.
	Key int32
	// Size is the payload capacity in bytes. When attaching, zero means
	// "whatever the creator chose".
	Size int
	// Create requests exclusive creation; it fails if the key is live.
	Create bool
	// Perm is the permission mask for a created segment.
	Perm uint32
	// Framing must match the framing every other attached process uses.
	Framing Framing
}

// Info is the kernel's bookkeeping for a segment.
type Info struct {
	Key        int32
	Size       int
	CreatorPID int32
	LastPID    int32
	Attached   int
}

// Open creates or attaches a segment with the given options.
func Open(ctx context.Context, opts OpenOptions) (*Buffer, error) {
	if opts.Size < 0 || (opts.Create && opts.Size == 0) {
		return nil, fmt.Errorf("shm: invalid buffer size %d", opts.Size)
	}
	if opts.Perm == 0 {
		opts.Perm = DefaultPerm
	}
	size := opts.Size
	if size > 0 {
		size += HeaderSize
	}
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Key:    opts.Key,
		Size:   size,
		Create: opts.Create,
		Perm:   opts.Perm,
	})
	if err != nil {
		return nil, err
	}
	if len(region.Addr) <= HeaderSize {
		_ = internalshm.UnmapRegion(ctx, region)
		return nil, fmt.Errorf("shm: segment key=%#x too small: %d bytes", opts.Key, len(region.Addr))
	}
	end := len(region.Addr)
	if opts.Size > 0 {
		end = HeaderSize + opts.Size
	}
	return &Buffer{
		region:  region,
		framing: opts.Framing,
		payload: region.Addr[HeaderSize:end],
	}, nil
}

// Write encodes data into the payload area and records its length.
// Returns number of bytes written and error.
func (b *Buffer) Write(data []byte) (int, error) {
	if b.region.Addr == nil {
		return 0, ErrClosed
	}
	if err := b.framing.Check(data, len(b.payload)); err != nil {
		return 0, err
	}
	n := copy(b.payload, data)
	internalshm.AtomicStoreUint64(b.word(lengthOffset), uint64(n))
	return n, nil
}

// Read decodes the message currently in the payload area.
func (b *Buffer) Read() ([]byte, error) {
	if b.region.Addr == nil {
		return nil, ErrClosed
	}
	return b.framing.decode(b.payload, internalshm.AtomicLoadUint64(b.word(lengthOffset)))
}

// Length returns the length recorded by the last Write from any process.
func (b *Buffer) Length() int {
	if b.region.Addr == nil {
		return 0
	}
	return int(internalshm.AtomicLoadUint64(b.word(lengthOffset)))
}

// Poisoned reports the shared poison word.
func (b *Buffer) Poisoned() bool {
	if b.region.Addr == nil {
		return false
	}
	return internalshm.AtomicLoadUint64(b.word(poisonOffset)) != 0
}

// SetPoisoned sets the shared poison word. It is never cleared.
func (b *Buffer) SetPoisoned() {
	if b.region.Addr == nil {
		return
	}
	internalshm.AtomicStoreUint64(b.word(poisonOffset), 1)
}

// Cap returns the payload capacity.
func (b *Buffer) Cap() int { return len(b.payload) }

// Framing returns the framing this buffer encodes with.
func (b *Buffer) Framing() Framing { return b.framing }

// Key returns the segment's SysV key.
func (b *Buffer) Key() int32 { return b.region.Key }

// Stat returns the kernel's bookkeeping for the segment.
func (b *Buffer) Stat() (Info, error) {
	ri, err := internalshm.StatRegion(b.region)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Key:        b.region.Key,
		Size:       ri.Size,
		CreatorPID: ri.CreatorPID,
		LastPID:    ri.LastPID,
		Attached:   ri.Attached,
	}, nil
}

// CreatorAlive reports whether the process that created the segment still runs.
// A segment whose creator is gone and that nobody else has attached was
// stranded by a crash.
func (b *Buffer) CreatorAlive(ctx context.Context) (bool, error) {
	info, err := b.Stat()
	if err != nil {
		return false, err
	}
	return process.PidExistsWithContext(ctx, info.CreatorPID)
}

// Close detaches the segment from this process. The segment itself lives on
// until Remove.
func (b *Buffer) Close() error {
	if b.region.Addr == nil {
		return ErrClosed
	}
	b.payload = nil
	return internalshm.UnmapRegion(context.Background(), b.region)
}

// Remove marks the segment for destruction and detaches it.
func (b *Buffer) Remove() error {
	rmErr := internalshm.RemoveRegion(b.region)
	if b.region.Addr == nil {
		return rmErr
	}
	return errors.Join(rmErr, b.Close())
}

func (b *Buffer) word(offset int) unsafe.Pointer {
	return unsafe.Pointer(&b.region.Addr[offset])
}
