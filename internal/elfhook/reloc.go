package elfhook

import "encoding/binary"

// RelRecord is an encoding-agnostic relocation record: REL/RELA, plain or
// APS2-packed, all funnel through this shape before the Hook Engine looks
// at them. The packed iterator always synthesizes RelRecord the same way
// the plain iterator does — no REL/RELA asymmetry leaks past this
// boundary.
type RelRecord struct {
	Offset    uint64
	Info      uint64
	Addend    int64
	HasAddend bool // true iff this record carries an explicit addend (RELA)
}

// Sym extracts r_sym from r_info using the architecture's standard split:
// 24+8 bits on 32-bit ELF, 32+32 on 64-bit.
func (r RelRecord) Sym(ws WordSize) uint32 {
	if ws == W64 {
		return uint32(r.Info >> 32)
	}
	return uint32(r.Info >> 8)
}

// Type extracts r_type (the low bits of r_info).
func (r RelRecord) Type(ws WordSize) uint32 {
	if ws == W64 {
		return uint32(r.Info & 0xffffffff)
	}
	return uint32(r.Info & 0xff)
}

// relIterator is the common "yield next relocation record" contract
// shared by the plain and packed realizations. Never leak which one a
// caller is holding above this interface.
type relIterator interface {
	// next returns the next record and true, or a zero record and false
	// at end of stream. A non-nil error means the region is malformed;
	// iteration stops either way.
	next() (RelRecord, bool, error)
}

const (
	relEntSize32  = 8  // Elf32_Rel: r_offset, r_info
	relaEntSize32 = 12 // Elf32_Rela: + r_addend
	relEntSize64  = 16 // Elf64_Rel
	relaEntSize64 = 24 // Elf64_Rela
)

// plainRelIter walks a fixed-width REL/RELA array at stride
// relEntSize/relaEntSize until the byte range is exhausted. No heap
// allocation beyond the returned records.
type plainRelIter struct {
	data    []byte
	off     int
	ws      WordSize
	useRela bool
}

func newPlainRelIter(data []byte, ws WordSize, useRela bool) *plainRelIter {
	return &plainRelIter{data: data, ws: ws, useRela: useRela}
}

func (it *plainRelIter) entSize() int {
	switch {
	case it.ws == W64 && it.useRela:
		return relaEntSize64
	case it.ws == W64 && !it.useRela:
		return relEntSize64
	case it.ws == W32 && it.useRela:
		return relaEntSize32
	default:
		return relEntSize32
	}
}

func (it *plainRelIter) next() (RelRecord, bool, error) {
	sz := it.entSize()
	if it.off+sz > len(it.data) {
		return RelRecord{}, false, nil
	}
	e := it.data[it.off : it.off+sz]
	it.off += sz

	var rec RelRecord
	if it.ws == W64 {
		rec.Offset = binary.LittleEndian.Uint64(e[0:8])
		rec.Info = binary.LittleEndian.Uint64(e[8:16])
		if it.useRela {
			rec.Addend = int64(binary.LittleEndian.Uint64(e[16:24]))
			rec.HasAddend = true
		}
	} else {
		rec.Offset = uint64(binary.LittleEndian.Uint32(e[0:4]))
		rec.Info = uint64(binary.LittleEndian.Uint32(e[4:8]))
		if it.useRela {
			rec.Addend = int64(int32(binary.LittleEndian.Uint32(e[8:12])))
			rec.HasAddend = true
		}
	}
	return rec, true, nil
}

// APS2 group flag bits (spec.md §4.3).
const (
	groupedByInfo         = 1
	groupedByOffsetDelta  = 2
	groupedByAddend       = 4
	groupHasAddend        = 8
)

// packedRelIter consumes the SLEB128 stream the Android packed relocation
// format (APS2) uses and reconstructs full REL/RELA records from
// delta-encoded groups.
type packedRelIter struct {
	cur *sleb128Cursor
	ws  WordSize

	// useRela is the region's declared encoding (from DT_PLTREL).
	// GROUP_HAS_ADDEND without useRela is a format error (spec.md §4.3).
	useRela bool

	total     int64 // relocation_count from the header
	emitted   int64
	curOffset uint64
	curInfo   uint64
	curAddend int64

	// current group state
	inGroup        bool
	groupRemaining int64
	groupFlags     int64
	constOffDelta  int64
}

// newPackedRelIter reads the two header values (relocation_count, initial
// r_offset) and returns a ready-to-iterate cursor.
func newPackedRelIter(data []byte, ws WordSize, useRela bool) (*packedRelIter, error) {
	cur := newSLEB128Cursor(data)

	count, err := cur.next()
	if err != nil {
		return nil, newErr(KindFormat, "packedRelIter.init", err)
	}
	initialOffset, err := cur.next()
	if err != nil {
		return nil, newErr(KindFormat, "packedRelIter.init", err)
	}

	return &packedRelIter{
		cur:       cur,
		ws:        ws,
		useRela:   useRela,
		total:     count,
		curOffset: uint64(initialOffset),
	}, nil
}

func (it *packedRelIter) startGroup() (bool, error) {
	if it.emitted >= it.total {
		return false, nil
	}

	groupSize, err := it.cur.next()
	if err != nil {
		return false, newErr(KindFormat, "packedRelIter.group", err)
	}
	flags, err := it.cur.next()
	if err != nil {
		return false, newErr(KindFormat, "packedRelIter.group", err)
	}

	if flags&groupHasAddend != 0 && !it.useRela {
		return false, newErr(KindFormat, "packedRelIter.group", errAddendWithoutRela)
	}

	it.groupRemaining = groupSize
	it.groupFlags = flags
	it.inGroup = true

	if flags&groupedByOffsetDelta != 0 {
		d, err := it.cur.next()
		if err != nil {
			return false, newErr(KindFormat, "packedRelIter.group", err)
		}
		it.constOffDelta = d
	}
	if flags&groupedByInfo != 0 {
		info, err := it.cur.next()
		if err != nil {
			return false, newErr(KindFormat, "packedRelIter.group", err)
		}
		it.curInfo = uint64(info)
	}
	if flags&groupHasAddend != 0 && flags&groupedByAddend != 0 {
		d, err := it.cur.next()
		if err != nil {
			return false, newErr(KindFormat, "packedRelIter.group", err)
		}
		it.curAddend += d
	}

	return true, nil
}

func (it *packedRelIter) next() (RelRecord, bool, error) {
	if it.emitted >= it.total {
		return RelRecord{}, false, nil
	}

	for !it.inGroup || it.groupRemaining == 0 {
		it.inGroup = false
		ok, err := it.startGroup()
		if err != nil {
			return RelRecord{}, false, err
		}
		if !ok {
			return RelRecord{}, false, nil
		}
	}

	flags := it.groupFlags

	if flags&groupedByOffsetDelta != 0 {
		it.curOffset += uint64(it.constOffDelta)
	} else {
		d, err := it.cur.next()
		if err != nil {
			return RelRecord{}, false, newErr(KindFormat, "packedRelIter.entry", err)
		}
		it.curOffset += uint64(d)
	}

	if flags&groupedByInfo == 0 {
		info, err := it.cur.next()
		if err != nil {
			return RelRecord{}, false, newErr(KindFormat, "packedRelIter.entry", err)
		}
		it.curInfo = uint64(info)
	}

	if flags&groupHasAddend != 0 {
		if flags&groupedByAddend == 0 {
			d, err := it.cur.next()
			if err != nil {
				return RelRecord{}, false, newErr(KindFormat, "packedRelIter.entry", err)
			}
			it.curAddend += d
		}
	} else {
		it.curAddend = 0
	}

	rec := RelRecord{
		Offset:    it.curOffset,
		Info:      it.curInfo,
		Addend:    it.curAddend,
		HasAddend: it.useRela,
	}

	it.groupRemaining--
	it.emitted++

	return rec, true, nil
}

var errAddendWithoutRela = errAddendWithoutRelaError{}

type errAddendWithoutRelaError struct{}

func (errAddendWithoutRelaError) Error() string {
	return "GROUP_HAS_ADDEND set but region is not RELA"
}
