package elfhook

import (
	"debug/elf"
	"encoding/binary"
)

// This file builds small, fully synthetic ELF images in memory so the
// rest of the test suite can exercise NewImageView/FindSymbolIndex/Engine
// without a real loaded shared object. Everything here targets
// nativeWordSize/nativeMachine — whatever GOARCH the test binary itself
// was built for (arm or arm64) — the same architecture pinning
// arch_arm.go/arch_arm64.go apply to the production code.

type symSpec struct {
	name      string
	undefined bool // true => lives in the GNU-hash "undefined" range
}

type relSpec struct {
	symIdx     int    // index into the fixture's symbol list (0 = STN_UNDEF)
	region     string // "plt", "dyn", or "android"
	relocType  uint32
	gotSlotIdx int // index into the fixture's reserved GOT slot region

	slotOffset uint64 // filled in by buildFixture once the GOT region's offset is known
}

type fixtureOpts struct {
	base        uintptr
	useGNUHash  bool
	useRela     bool // DT_PLTREL; also governs ANDROID/DYN record shape
	syms        []symSpec
	relocs      []relSpec
	numGOTSlots int

	// corruptAPS2Magic replaces "APS2" with a wrong 4-byte prefix on the
	// android region, if one is present.
	corruptAPS2Magic bool
}

// builtFixture is the assembled image plus bookkeeping tests need:
// addresses of each GOT slot and a reverse symbol-name->index table.
type builtFixture struct {
	image    []byte
	base     uintptr
	gotSlot  []uint64 // vaddr of each reserved GOT slot, index-parallel to numGOTSlots
	symIndex map[string]int
}

const (
	symEntSize32 = 16
	symEntSize64 = 24
	dynEntSize32 = 8
	dynEntSize64 = 16
)

func wordSize() int {
	if nativeWordSize == W64 {
		return 8
	}
	return 4
}

func ehdrSize() int {
	if nativeWordSize == W64 {
		return 64
	}
	return 52
}

func phdrEntSize() int {
	if nativeWordSize == W64 {
		return 56
	}
	return 32
}

func symEntSize() int {
	if nativeWordSize == W64 {
		return symEntSize64
	}
	return symEntSize32
}

func dynEntSize() int {
	if nativeWordSize == W64 {
		return dynEntSize64
	}
	return dynEntSize32
}

func align(n, to int) int { return (n + to - 1) &^ (to - 1) }

// buildFixture lays out an ELF image in two passes: first compute every
// section's size and offset (== vaddr, since the sole PT_LOAD has
// vaddr 0), then serialize every section now that cross-references are
// known.
func buildFixture(o fixtureOpts) *builtFixture {
	ws4 := wordSize()

	// --- pass 1: sizes ---
	ehSize := ehdrSize()
	phCount := 2 // PT_LOAD, PT_DYNAMIC
	phSize := phCount * phdrEntSize()

	hasAndroidRelocs := false
	for _, r := range o.relocs {
		if r.region == "android" {
			hasAndroidRelocs = true
			break
		}
	}

	// dynamic entries: STRTAB, SYMTAB, HASH-or-GNU_HASH, PLTREL, JMPREL,
	// PLTRELSZ, REL/RELA + SZ (dyn region), NULL, plus ANDROID_REL/A + SZ
	// when this fixture carries packed relocations.
	dynCount := 9
	if hasAndroidRelocs {
		dynCount += 2
	}
	dynSize := dynCount * dynEntSize()

	gotSize := o.numGOTSlots * ws4

	// string table: leading NUL, then each symbol name NUL-terminated
	names := make([]int, len(o.syms))
	strBuf := []byte{0}
	for i, s := range o.syms {
		names[i] = len(strBuf)
		strBuf = append(strBuf, []byte(s.name)...)
		strBuf = append(strBuf, 0)
	}
	strtabSize := len(strBuf)

	symtabSize := (len(o.syms) + 1) * symEntSize() // +1 for STN_UNDEF at index 0

	var classicBucketCnt, gnuBucketCnt, gnuSymoffset uint32
	var hashSize int
	if o.useGNUHash {
		gnuSymoffset = 1 // index 0 is STN_UNDEF
		for _, s := range o.syms {
			if s.undefined {
				gnuSymoffset++
			}
		}
		definedCount := uint32(len(o.syms)+1) - gnuSymoffset
		gnuBucketCnt = definedCount
		if gnuBucketCnt == 0 {
			gnuBucketCnt = 1
		}
		hashSize = 16 /* header */ + ws4 /* bloom[1] */ + int(gnuBucketCnt)*4 + int(definedCount)*4
	} else {
		classicBucketCnt = uint32(len(o.syms) + 1)
		if classicBucketCnt == 0 {
			classicBucketCnt = 1
		}
		hashSize = 8 + int(classicBucketCnt)*4 + (len(o.syms)+1)*4
	}

	pltEntSize := relEntSize(false, o.useRela)
	dynEntSizeRel := relEntSize(false, o.useRela)

	// ehSize/phSize/dynSize are all fixed-width (independent of symbol or
	// relocation content), so the GOT region's offset can be pinned down
	// before any relocation record — which embeds that very offset — is
	// serialized.
	ehOff := 0
	phOff := ehOff + ehSize
	dynOff := phOff + phSize
	gotOff := align(dynOff+dynSize, ws4)

	for i := range o.relocs {
		o.relocs[i].slotOffset = uint64(gotOff + o.relocs[i].gotSlotIdx*ws4)
	}

	var pltRecs, dynRecs, androidRecs []relSpec
	for _, r := range o.relocs {
		switch r.region {
		case "plt":
			pltRecs = append(pltRecs, r)
		case "dyn":
			dynRecs = append(dynRecs, r)
		case "android":
			androidRecs = append(androidRecs, r)
		}
	}

	relpltSize := len(pltRecs) * pltEntSize
	reldynSize := len(dynRecs) * dynEntSizeRel

	var androidPayload []byte
	if len(androidRecs) > 0 {
		androidPayload = encodeAPS2(androidRecs, o.useRela)
	}
	androidSize := 0
	if androidPayload != nil {
		androidSize = 4 + len(androidPayload) // "APS2" + stream
	}

	// --- pass 1b: offsets ---
	off := gotOff + gotSize
	strOff := off
	off += strtabSize
	symOff := align(off, ws4)
	off = symOff + symtabSize
	hashOff := align(off, 4)
	off = hashOff + hashSize
	pltOff := align(off, 4)
	off = pltOff + relpltSize
	dynRelOff := align(off, 4)
	off = dynRelOff + reldynSize
	androidOff := align(off, 4)
	off = androidOff + androidSize

	total := off

	img := make([]byte, total)

	// --- pass 2: write sections ---
	copy(img[strOff:], strBuf)

	symNameOf := func(idx int) uint32 {
		if idx == 0 {
			return 0
		}
		return uint32(names[idx-1])
	}

	// symtab: index 0 = STN_UNDEF (all zero)
	for i := 0; i <= len(o.syms); i++ {
		e := img[symOff+i*symEntSize() : symOff+(i+1)*symEntSize()]
		nameOff := symNameOf(i)
		if nativeWordSize == W64 {
			binary.LittleEndian.PutUint32(e[0:4], nameOff)
			e[4] = 0x12 // STB_GLOBAL<<4 | STT_FUNC
			e[5] = 0
			binary.LittleEndian.PutUint16(e[6:8], 1)
		} else {
			binary.LittleEndian.PutUint32(e[0:4], nameOff)
			e[12] = 0x12
			binary.LittleEndian.PutUint16(e[14:16], 1)
		}
	}

	// hash table
	if o.useGNUHash {
		writeGNUHash(img[hashOff:hashOff+hashSize], o, gnuBucketCnt, gnuSymoffset, ws4)
	} else {
		writeClassicHash(img[hashOff:hashOff+hashSize], o, classicBucketCnt)
	}

	// relocation regions
	writePlainRecords(img[pltOff:pltOff+relpltSize], pltRecs, o.useRela)
	writePlainRecords(img[dynRelOff:dynRelOff+reldynSize], dynRecs, o.useRela)
	if androidPayload != nil {
		magic := "APS2"
		if o.corruptAPS2Magic {
			magic = "APS1"
		}
		copy(img[androidOff:androidOff+4], magic)
		copy(img[androidOff+4:], androidPayload)
	}

	// dynamic array
	dynEntries := []struct {
		tag int64
		val uint64
	}{
		{int64(elf.DT_STRTAB), uint64(strOff)},
		{int64(elf.DT_SYMTAB), uint64(symOff)},
	}
	if o.useGNUHash {
		dynEntries = append(dynEntries, struct {
			tag int64
			val uint64
		}{dtGNUHash, uint64(hashOff)})
	} else {
		dynEntries = append(dynEntries, struct {
			tag int64
			val uint64
		}{int64(elf.DT_HASH), uint64(hashOff)})
	}
	pltrelVal := int64(elf.DT_REL)
	if o.useRela {
		pltrelVal = int64(elf.DT_RELA)
	}
	dynEntries = append(dynEntries,
		struct {
			tag int64
			val uint64
		}{int64(elf.DT_PLTREL), uint64(pltrelVal)},
		struct {
			tag int64
			val uint64
		}{int64(elf.DT_JMPREL), uint64(pltOff)},
		struct {
			tag int64
			val uint64
		}{int64(elf.DT_PLTRELSZ), uint64(relpltSize)},
	)
	if o.useRela {
		dynEntries = append(dynEntries,
			struct {
				tag int64
				val uint64
			}{int64(elf.DT_RELA), uint64(dynRelOff)},
			struct {
				tag int64
				val uint64
			}{int64(elf.DT_RELASZ), uint64(reldynSize)},
		)
	} else {
		dynEntries = append(dynEntries,
			struct {
				tag int64
				val uint64
			}{int64(elf.DT_REL), uint64(dynRelOff)},
			struct {
				tag int64
				val uint64
			}{int64(elf.DT_RELSZ), uint64(reldynSize)},
		)
	}
	if androidPayload != nil {
		if o.useRela {
			dynEntries = append(dynEntries,
				struct {
					tag int64
					val uint64
				}{dtAndroidRela, uint64(androidOff)},
				struct {
					tag int64
					val uint64
				}{dtAndroidRelaSz, uint64(androidSize)},
			)
		} else {
			dynEntries = append(dynEntries,
				struct {
					tag int64
					val uint64
				}{dtAndroidRel, uint64(androidOff)},
				struct {
					tag int64
					val uint64
				}{dtAndroidRelSz, uint64(androidSize)},
			)
		}
	}
	dynEntries = append(dynEntries, struct {
		tag int64
		val uint64
	}{int64(elf.DT_NULL), 0})

	for i, e := range dynEntries {
		entOff := dynOff + i*dynEntSize()
		if nativeWordSize == W64 {
			binary.LittleEndian.PutUint64(img[entOff:entOff+8], uint64(e.tag))
			binary.LittleEndian.PutUint64(img[entOff+8:entOff+16], e.val)
		} else {
			binary.LittleEndian.PutUint32(img[entOff:entOff+4], uint32(e.tag))
			binary.LittleEndian.PutUint32(img[entOff+4:entOff+8], uint32(e.val))
		}
	}

	// program headers
	writeProgHeader(img[phOff:phOff+phdrEntSize()], uint32(elf.PT_LOAD), 0, 0, uint64(total), uint64(total), 7)
	writeProgHeader(img[phOff+phdrEntSize():phOff+2*phdrEntSize()], uint32(elf.PT_DYNAMIC), uint64(dynOff), uint64(dynOff), uint64(dynSize), uint64(dynSize), 6)

	// ELF header
	writeEhdr(img[ehOff:ehOff+ehSize], uint64(phOff), uint16(phdrEntSize()), uint16(phCount))

	symIndex := map[string]int{}
	for i, s := range o.syms {
		symIndex[s.name] = i + 1
	}

	gotSlots := make([]uint64, o.numGOTSlots)
	for i := range gotSlots {
		gotSlots[i] = uint64(gotOff + i*ws4)
	}

	return &builtFixture{
		image:    img,
		base:     o.base,
		gotSlot:  gotSlots,
		symIndex: symIndex,
	}
}

func relEntSize(packed, useRela bool) int {
	if nativeWordSize == W64 {
		if useRela {
			return relaEntSize64
		}
		return relEntSize64
	}
	if useRela {
		return relaEntSize32
	}
	return relEntSize32
}

func writePlainRecords(dst []byte, recs []relSpec, useRela bool) {
	sz := relEntSize(false, useRela)
	for i, r := range recs {
		e := dst[i*sz : (i+1)*sz]
		info := recInfo(uint32(r.symIdx), r.relocType)
		if nativeWordSize == W64 {
			binary.LittleEndian.PutUint64(e[0:8], r.slotOffset)
			binary.LittleEndian.PutUint64(e[8:16], info)
			if useRela {
				binary.LittleEndian.PutUint64(e[16:24], 0)
			}
		} else {
			binary.LittleEndian.PutUint32(e[0:4], uint32(r.slotOffset))
			binary.LittleEndian.PutUint32(e[4:8], uint32(info))
			if useRela {
				binary.LittleEndian.PutUint32(e[8:12], 0)
			}
		}
	}
}

func recInfo(sym uint32, typ uint32) uint64 {
	if nativeWordSize == W64 {
		return uint64(sym)<<32 | uint64(typ)
	}
	return uint64(sym)<<8 | uint64(typ)
}

// encodeAPS2 emits a single group covering all recs, always with
// GROUPED_BY_OFFSET_DELTA|GROUPED_BY_INFO: it takes the stride from the
// first two records and the info from the first, so it encodes recs
// correctly only when they share one symbol/type and a constant offset
// stride, which is how the test fixtures are constructed.
func encodeAPS2(recs []relSpec, useRela bool) []byte {
	var out []byte
	putSLEB := func(v int64) {
		out = appendSLEB128(out, v)
	}

	delta := int64(0)
	if len(recs) > 1 {
		delta = int64(recs[1].slotOffset - recs[0].slotOffset)
	}

	putSLEB(int64(len(recs)))
	// next() adds delta before emitting the first record of the group, so
	// the header's initial r_offset must be one delta short of recs[0].
	putSLEB(int64(recs[0].slotOffset) - delta)

	flags := int64(groupedByOffsetDelta | groupedByInfo)
	if useRela {
		flags |= groupHasAddend | groupedByAddend
	}

	putSLEB(int64(len(recs)))
	putSLEB(flags)
	putSLEB(delta)
	putSLEB(int64(recInfo(uint32(recs[0].symIdx), recs[0].relocType)))
	if useRela {
		putSLEB(0) // initial addend delta
	}

	return out
}

func appendSLEB128(out []byte, v int64) []byte {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBit := b&0x40 != 0
		if (v == 0 && !signBit) || (v == -1 && signBit) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func writeClassicHash(dst []byte, o fixtureOpts, bucketCnt uint32) {
	chainCnt := uint32(len(o.syms) + 1)
	binary.LittleEndian.PutUint32(dst[0:4], bucketCnt)
	binary.LittleEndian.PutUint32(dst[4:8], chainCnt)
	bucket := dst[8 : 8+bucketCnt*4]
	chain := dst[8+bucketCnt*4 : 8+bucketCnt*4+chainCnt*4]

	for idx := len(o.syms); idx >= 1; idx-- {
		name := o.syms[idx-1].name
		h := elfHash(name) % bucketCnt
		cur := binary.LittleEndian.Uint32(bucket[h*4 : h*4+4])
		binary.LittleEndian.PutUint32(chain[idx*4:idx*4+4], cur)
		binary.LittleEndian.PutUint32(bucket[h*4:h*4+4], uint32(idx))
	}
}

func writeGNUHash(dst []byte, o fixtureOpts, bucketCnt, symoffset uint32, ws4 int) {
	wordBits := uint32(32)
	if ws4 == 8 {
		wordBits = 64
	}
	const bloomShift = 5

	binary.LittleEndian.PutUint32(dst[0:4], bucketCnt)
	binary.LittleEndian.PutUint32(dst[4:8], symoffset)
	binary.LittleEndian.PutUint32(dst[8:12], 1) // bloom_sz
	binary.LittleEndian.PutUint32(dst[12:16], bloomShift)

	bloom := dst[16 : 16+ws4]
	bucket := dst[16+ws4 : 16+ws4+int(bucketCnt)*4]
	definedCount := uint32(len(o.syms)+1) - symoffset
	chain := dst[16+ws4+int(bucketCnt)*4 : 16+ws4+int(bucketCnt)*4+int(definedCount)*4]

	var bloomWord uint64
	for i, s := range o.syms {
		idx := uint32(i + 1)
		if idx < symoffset {
			continue // undefined: not indexed
		}
		h := gnuHashStr(s.name)
		b := h % bucketCnt
		binary.LittleEndian.PutUint32(bucket[b*4:b*4+4], idx)
		binary.LittleEndian.PutUint32(chain[(idx-symoffset)*4:(idx-symoffset)*4+4], h|1)
		bloomWord |= 1 << (h % wordBits)
		bloomWord |= 1 << ((h >> bloomShift) % wordBits)
	}
	if ws4 == 8 {
		binary.LittleEndian.PutUint64(bloom, bloomWord)
	} else {
		binary.LittleEndian.PutUint32(bloom, uint32(bloomWord))
	}
}

func writeProgHeader(dst []byte, typ uint32, off, vaddr, filesz, memsz uint64, flags uint32) {
	if nativeWordSize == W64 {
		binary.LittleEndian.PutUint32(dst[0:4], typ)
		binary.LittleEndian.PutUint32(dst[4:8], flags)
		binary.LittleEndian.PutUint64(dst[8:16], off)
		binary.LittleEndian.PutUint64(dst[16:24], vaddr)
		binary.LittleEndian.PutUint64(dst[24:32], vaddr) // paddr
		binary.LittleEndian.PutUint64(dst[32:40], filesz)
		binary.LittleEndian.PutUint64(dst[40:48], memsz)
		binary.LittleEndian.PutUint64(dst[48:56], 0x1000)
	} else {
		binary.LittleEndian.PutUint32(dst[0:4], typ)
		binary.LittleEndian.PutUint32(dst[4:8], uint32(off))
		binary.LittleEndian.PutUint32(dst[8:12], uint32(vaddr))
		binary.LittleEndian.PutUint32(dst[12:16], uint32(vaddr))
		binary.LittleEndian.PutUint32(dst[16:20], uint32(filesz))
		binary.LittleEndian.PutUint32(dst[20:24], uint32(memsz))
		binary.LittleEndian.PutUint32(dst[24:28], flags)
		binary.LittleEndian.PutUint32(dst[28:32], 0x1000)
	}
}

func writeEhdr(dst []byte, phoff uint64, phentsize, phnum uint16) {
	dst[0], dst[1], dst[2], dst[3] = 0x7f, 'E', 'L', 'F'
	if nativeWordSize == W64 {
		dst[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	} else {
		dst[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	}
	dst[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	dst[elf.EI_VERSION] = 1

	binary.LittleEndian.PutUint16(dst[16:18], uint16(elf.ET_DYN))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(nativeMachine))
	binary.LittleEndian.PutUint32(dst[20:24], 1) // e_version

	if nativeWordSize == W64 {
		binary.LittleEndian.PutUint64(dst[32:40], phoff)
		binary.LittleEndian.PutUint16(dst[54:56], phentsize)
		binary.LittleEndian.PutUint16(dst[56:58], phnum)
	} else {
		binary.LittleEndian.PutUint32(dst[28:32], uint32(phoff))
		binary.LittleEndian.PutUint16(dst[42:44], phentsize)
		binary.LittleEndian.PutUint16(dst[44:46], phnum)
	}
}
