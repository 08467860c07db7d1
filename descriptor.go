package fmq

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DescriptorVersion is the only wire version this module understands.
const DescriptorVersion uint32 = 1

// Grantor flag bits.
const (
	grantorFlagEventFlag uint32 = 1 << 0
)

// region identifies which logical region a Grantor describes, by position
// in the Grantors slice (spec.md §6.1: "Grantor order: [DataRegion,
// ReadCounter, WriteCounter, (EventFlag)?]").
const (
	regionData = iota
	regionReadCounter
	regionWriteCounter
	regionEventFlag
)

// Grantor describes one shared-memory region: which handle it lives in,
// and its byte offset/extent within that handle's mapping.
type Grantor struct {
	Flags  uint32
	FdIdx  uint32
	Offset uint64
	Extent uint64
}

func (g Grantor) isEventFlag() bool { return g.Flags&grantorFlagEventFlag != 0 }

// GrantorDescriptor is the serializable handle a peer process uses to
// attach to an existing queue's shared memory. It names regions by index
// into an out-of-band handle table; the handles themselves (platform file
// descriptors) travel alongside the serialized bytes via whatever RPC
// transport the caller uses — never inside the byte blob (spec.md §4.1,
// §6.1).
type GrantorDescriptor struct {
	Version  uint32
	Grantors []Grantor

	// NumHandles records how many distinct handles the Grantors reference.
	// It is carried on the wire for validation even though the handles
	// themselves are not.
	NumHandles uint32
}

// Serialize flattens the descriptor to the bit-exact layout in spec.md
// §6.1. Handles are not included; the caller ships them out-of-band.
func (d *GrantorDescriptor) Serialize() ([]byte, error) {
	if len(d.Grantors) != 3 && len(d.Grantors) != 4 {
		return nil, fmt.Errorf("%w: expected 3 or 4 grantors, got %d", ErrMalformedDescriptor, len(d.Grantors))
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, d.Version); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(d.Grantors))); err != nil {
		return nil, err
	}
	for _, g := range d.Grantors {
		if err := binary.Write(buf, binary.LittleEndian, g); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, d.NumHandles); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeGrantorDescriptor parses bytes produced by Serialize.
// handleCount is the number of handles the transport actually delivered
// alongside data, used to cross-check against the encoded NumHandles.
//
// Fails with ErrMalformedDescriptor on version mismatch, a grantor count
// outside {3,4}, negative/overflowing offsets or extents, misaligned
// counter/data regions, or overlapping regions.
func DeserializeGrantorDescriptor(data []byte, handleCount int) (*GrantorDescriptor, error) {
	r := bytes.NewReader(data)

	var version, numGrantors uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	if version != DescriptorVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrMalformedDescriptor, version, DescriptorVersion)
	}
	if err := binary.Read(r, binary.LittleEndian, &numGrantors); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	if numGrantors != 3 && numGrantors != 4 {
		return nil, fmt.Errorf("%w: grantor count %d not in {3,4}", ErrMalformedDescriptor, numGrantors)
	}

	grantors := make([]Grantor, numGrantors)
	for i := range grantors {
		if err := binary.Read(r, binary.LittleEndian, &grantors[i]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
		}
	}

	var numHandles uint32
	if err := binary.Read(r, binary.LittleEndian, &numHandles); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	if handleCount >= 0 && int(numHandles) != handleCount {
		return nil, fmt.Errorf("%w: encoded %d handles, transport delivered %d", ErrMalformedDescriptor, numHandles, handleCount)
	}

	if err := validateGrantors(grantors); err != nil {
		return nil, err
	}

	return &GrantorDescriptor{Version: version, Grantors: grantors, NumHandles: numHandles}, nil
}

// validateGrantors enforces spec.md §4.1's region-alignment and
// non-overlap contract for grantors that share a handle. Counter regions
// must be 8-byte aligned; the event-flag region (if present) must be
// 4-byte aligned.
func validateGrantors(grantors []Grantor) error {
	for i, g := range grantors {
		if g.Extent == 0 {
			return fmt.Errorf("%w: grantor %d has zero extent", ErrMalformedDescriptor, i)
		}
		if g.Offset+g.Extent < g.Offset {
			return fmt.Errorf("%w: grantor %d offset+extent overflows", ErrMalformedDescriptor, i)
		}
		align := uint64(8)
		if i == regionEventFlag {
			align = 4
		}
		if g.Offset%align != 0 {
			return fmt.Errorf("%w: grantor %d offset %d not aligned to %d", ErrMalformedDescriptor, i, g.Offset, align)
		}
	}
	if len(grantors) == 4 && !grantors[regionEventFlag].isEventFlag() {
		return fmt.Errorf("%w: fourth grantor must be flagged as the event-flag region", ErrMalformedDescriptor)
	}
	// Two grantors overlap only if they share a handle (FdIdx) and their
	// [Offset, Offset+Extent) ranges intersect.
	for i := 0; i < len(grantors); i++ {
		for j := i + 1; j < len(grantors); j++ {
			a, b := grantors[i], grantors[j]
			if a.FdIdx != b.FdIdx {
				continue
			}
			if a.Offset < b.Offset+b.Extent && b.Offset < a.Offset+a.Extent {
				return fmt.Errorf("%w: grantors %d and %d overlap", ErrMalformedDescriptor, i, j)
			}
		}
	}
	return nil
}
