package elfhook

import (
	"debug/elf"
	"encoding/binary"
)

// Android packed-relocation dynamic tags. Not part of the upstream ELF
// spec and not in debug/elf; values per the Android bionic linker.
const (
	dtAndroidRel    = 0x6000000d
	dtAndroidRelSz  = 0x6000000e
	dtAndroidRela   = 0x6000000f
	dtAndroidRelaSz = 0x60000010
)

// dtGNUHash is DT_GNU_HASH. Kept as a local constant rather than
// elf.DT_GNU_HASH so this package doesn't depend on a specific Go
// toolchain vintage having added it.
const dtGNUHash = 0x6ffffef5

// classicHash is the ELF-classic (DT_HASH) table layout.
type classicHash struct {
	bucketCnt uint32
	chainCnt  uint32
	bucket    uintptr
	chain     uintptr
}

// gnuHash is the GNU-style (DT_GNU_HASH) table layout.
type gnuHash struct {
	bucketCnt  uint32
	symoffset  uint32
	bloomSz    uint32
	bloomShift uint32
	bloom      uintptr
	bucket     uintptr
	chain      uintptr
}

// progHeader is a decoded program header, width-normalized.
type progHeader struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// ImageView is a parsed, cached view of a loaded ELF image. Built once per
// target via NewImageView; immutable thereafter except for Reset, which
// zeroes it on failure. Hook operations never mutate the view — only the
// GOT memory the view points into.
type ImageView struct {
	initialized bool

	mem MemoryReader
	ws  WordSize

	Pathname string
	BaseAddr uintptr
	BiasAddr uintptr

	Phdr []progHeader

	Strtab uintptr
	Symtab uintptr

	IsUseGNUHash bool
	Classic      classicHash
	GNU          gnuHash

	RelPLT     uintptr
	RelPLTSz   uint64
	RelDyn     uintptr
	RelDynSz   uint64
	RelAndroid uintptr
	RelAndroidSz uint64

	IsUseRela bool
}

// Reset zeroes the view. Safe to call on an already-zeroed view.
func (v *ImageView) Reset() {
	*v = ImageView{}
}

// check validates the §3 post-construction invariants.
func (v *ImageView) check() error {
	if v.Pathname == "" || v.BaseAddr == 0 || len(v.Phdr) == 0 {
		return newErr(KindFormat, "image.check", errMissingCore)
	}
	if v.Strtab == 0 || v.Symtab == 0 {
		return newErr(KindFormat, "image.check", errMissingCore)
	}
	if v.IsUseGNUHash {
		if v.GNU.bucket == 0 || v.GNU.bloom == 0 {
			return newErr(KindFormat, "image.check", errMissingHash)
		}
	} else {
		if v.Classic.bucket == 0 || v.Classic.chain == 0 {
			return newErr(KindFormat, "image.check", errMissingHash)
		}
	}
	return nil
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

const (
	errMissingCore simpleErr = "missing required core field after init"
	errMissingHash simpleErr = "missing required hash table field after init"
	errBadMagic    simpleErr = "bad ELF magic"
	errBadClass    simpleErr = "ELF class does not match compiled architecture"
	errBadData     simpleErr = "ELF data encoding is not little-endian"
	errBadVersion  simpleErr = "unsupported ELF version"
	errBadType     simpleErr = "ELF type is neither ET_EXEC nor ET_DYN"
	errBadMachine  simpleErr = "ELF machine does not match compiled architecture"
	errNoFirstLoad simpleErr = "no PT_LOAD segment found"
	errFirstLoadOff simpleErr = "first PT_LOAD segment has nonzero file offset"
	errNoDynamic   simpleErr = "no PT_DYNAMIC segment found"
	errBadAPS2     simpleErr = "Android packed relocation region missing APS2 magic"
	errNoHashTable simpleErr = "neither DT_HASH nor DT_GNU_HASH present"
)

// NewImageView parses the ELF image mapped at baseAddr, identified by
// pathname, reading it through mem. Re-initializing an already-initialized
// view is a no-op success (spec.md §4.4).
func NewImageView(baseAddr uintptr, pathname string, mem MemoryReader) (*ImageView, error) {
	v := &ImageView{}
	if err := v.init(baseAddr, pathname, mem); err != nil {
		v.Reset()
		return nil, err
	}
	return v, nil
}

// Init (re-)initializes an existing view in place. A no-op success if v is
// already initialized.
func (v *ImageView) Init(baseAddr uintptr, pathname string, mem MemoryReader) error {
	if v.initialized {
		return nil
	}
	if err := v.init(baseAddr, pathname, mem); err != nil {
		v.Reset()
		return err
	}
	return nil
}

func (v *ImageView) init(baseAddr uintptr, pathname string, mem MemoryReader) error {
	if pathname == "" || mem == nil {
		return newErr(KindInval, "image.init", nil)
	}

	ident, err := mem.ReadAt(baseAddr, 16)
	if err != nil {
		return newErr(KindFormat, "image.init", err)
	}
	if ident[0] != 0x7f || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return newErr(KindFormat, "image.init", errBadMagic)
	}

	class := ident[elf.EI_CLASS]
	var ws WordSize
	switch elf.Class(class) {
	case elf.ELFCLASS32:
		ws = W32
	case elf.ELFCLASS64:
		ws = W64
	default:
		return newErr(KindFormat, "image.init", errBadClass)
	}
	if ws != nativeWordSize {
		return newErr(KindFormat, "image.init", errBadClass)
	}

	if elf.Data(ident[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return newErr(KindFormat, "image.init", errBadData)
	}
	if ident[elf.EI_VERSION] != 1 {
		return newErr(KindFormat, "image.init", errBadVersion)
	}

	var ehsize int
	if ws == W64 {
		ehsize = 64
	} else {
		ehsize = 52
	}
	ehdr, err := mem.ReadAt(baseAddr, ehsize)
	if err != nil {
		return newErr(KindFormat, "image.init", err)
	}

	var eType, eMachine uint16
	var eVersion uint32
	var phoff uint64
	var phentsize, phnum uint16

	if ws == W64 {
		eType = binary.LittleEndian.Uint16(ehdr[16:18])
		eMachine = binary.LittleEndian.Uint16(ehdr[18:20])
		eVersion = binary.LittleEndian.Uint32(ehdr[20:24])
		phoff = binary.LittleEndian.Uint64(ehdr[32:40])
		phentsize = binary.LittleEndian.Uint16(ehdr[54:56])
		phnum = binary.LittleEndian.Uint16(ehdr[56:58])
	} else {
		eType = binary.LittleEndian.Uint16(ehdr[16:18])
		eMachine = binary.LittleEndian.Uint16(ehdr[18:20])
		eVersion = binary.LittleEndian.Uint32(ehdr[20:24])
		phoff = uint64(binary.LittleEndian.Uint32(ehdr[28:32]))
		phentsize = binary.LittleEndian.Uint16(ehdr[42:44])
		phnum = binary.LittleEndian.Uint16(ehdr[44:46])
	}

	if eVersion != 1 {
		return newErr(KindFormat, "image.init", errBadVersion)
	}
	if elf.Type(eType) != elf.ET_EXEC && elf.Type(eType) != elf.ET_DYN {
		return newErr(KindFormat, "image.init", errBadType)
	}
	if elf.Machine(eMachine) != nativeMachine {
		return newErr(KindFormat, "image.init", errBadMachine)
	}

	phdrs := make([]progHeader, 0, phnum)
	for i := 0; i < int(phnum); i++ {
		addr := baseAddr + uintptr(phoff) + uintptr(i)*uintptr(phentsize)
		ph, err := readProgHeader(mem, addr, ws)
		if err != nil {
			return newErr(KindFormat, "image.init", err)
		}
		phdrs = append(phdrs, ph)
	}
	v.Phdr = phdrs

	var firstLoad *progHeader
	var dynamic *progHeader
	for i := range phdrs {
		if phdrs[i].Type == elf.PT_LOAD && firstLoad == nil {
			firstLoad = &phdrs[i]
		}
		if phdrs[i].Type == elf.PT_DYNAMIC && dynamic == nil {
			dynamic = &phdrs[i]
		}
	}
	if firstLoad == nil {
		return newErr(KindFormat, "image.init", errNoFirstLoad)
	}
	if firstLoad.Off != 0 {
		return newErr(KindFormat, "image.init", errFirstLoadOff)
	}
	bias := baseAddr - uintptr(firstLoad.Vaddr)
	v.BaseAddr = baseAddr
	v.BiasAddr = bias
	v.Pathname = pathname
	v.mem = mem
	v.ws = ws

	if dynamic == nil {
		return newErr(KindFormat, "image.init", errNoDynamic)
	}

	if err := v.walkDynamic(*dynamic, bias, mem, ws); err != nil {
		return err
	}

	if v.RelAndroid != 0 {
		magic, err := mem.ReadAt(v.RelAndroid, 4)
		if err != nil {
			return newErr(KindFormat, "image.init", err)
		}
		if string(magic) != "APS2" {
			return newErr(KindFormat, "image.init", errBadAPS2)
		}
		v.RelAndroid += 4
		v.RelAndroidSz -= 4
	}

	if err := v.check(); err != nil {
		return err
	}
	v.initialized = true
	return nil
}

func readProgHeader(mem MemoryReader, addr uintptr, ws WordSize) (progHeader, error) {
	var ph progHeader
	if ws == W64 {
		buf, err := mem.ReadAt(addr, 56)
		if err != nil {
			return ph, err
		}
		ph.Type = elf.ProgType(binary.LittleEndian.Uint32(buf[0:4]))
		ph.Flags = elf.ProgFlag(binary.LittleEndian.Uint32(buf[4:8]))
		ph.Off = binary.LittleEndian.Uint64(buf[8:16])
		ph.Vaddr = binary.LittleEndian.Uint64(buf[16:24])
		ph.Paddr = binary.LittleEndian.Uint64(buf[24:32])
		ph.Filesz = binary.LittleEndian.Uint64(buf[32:40])
		ph.Memsz = binary.LittleEndian.Uint64(buf[40:48])
		ph.Align = binary.LittleEndian.Uint64(buf[48:56])
	} else {
		buf, err := mem.ReadAt(addr, 32)
		if err != nil {
			return ph, err
		}
		ph.Type = elf.ProgType(binary.LittleEndian.Uint32(buf[0:4]))
		ph.Off = uint64(binary.LittleEndian.Uint32(buf[4:8]))
		ph.Vaddr = uint64(binary.LittleEndian.Uint32(buf[8:12]))
		ph.Paddr = uint64(binary.LittleEndian.Uint32(buf[12:16]))
		ph.Filesz = uint64(binary.LittleEndian.Uint32(buf[16:20]))
		ph.Memsz = uint64(binary.LittleEndian.Uint32(buf[20:24]))
		ph.Flags = elf.ProgFlag(binary.LittleEndian.Uint32(buf[24:28]))
		ph.Align = uint64(binary.LittleEndian.Uint32(buf[28:32]))
	}
	return ph, nil
}

// walkDynamic reads the PT_DYNAMIC entries, relocating every pointer-valued
// entry by bias, and populates v's strtab/symtab/hash/relocation fields
// (spec.md §4.4 step 4).
func (v *ImageView) walkDynamic(dyn progHeader, bias uintptr, mem MemoryReader, ws WordSize) error {
	entSize := 8
	if ws == W64 {
		entSize = 16
	}

	var (
		hashAddr, gnuHashAddr               uintptr
		jmprelAddr, relAddr, relaAddr       uintptr
		androidRelAddr, androidRelaAddr     uintptr
		pltrelsz, relsz, relasz             uint64
		androidRelSz, androidRelaSz         uint64
		pltrelVal                           int64
		havePltrel                          bool
	)

	addr := bias + uintptr(dyn.Vaddr)

	n := int(dyn.Filesz) / entSize
	for i := 0; i < n; i++ {
		entAddr := addr + uintptr(i*entSize)
		var tag int64
		var val uint64
		if ws == W64 {
			buf, err := mem.ReadAt(entAddr, 16)
			if err != nil {
				return newErr(KindFormat, "image.dynamic", err)
			}
			tag = int64(binary.LittleEndian.Uint64(buf[0:8]))
			val = binary.LittleEndian.Uint64(buf[8:16])
		} else {
			buf, err := mem.ReadAt(entAddr, 8)
			if err != nil {
				return newErr(KindFormat, "image.dynamic", err)
			}
			tag = int64(int32(binary.LittleEndian.Uint32(buf[0:4])))
			val = uint64(binary.LittleEndian.Uint32(buf[4:8]))
		}

		if tag == int64(elf.DT_NULL) {
			break
		}

		switch tag {
		case int64(elf.DT_STRTAB):
			v.Strtab = bias + uintptr(val)
		case int64(elf.DT_SYMTAB):
			v.Symtab = bias + uintptr(val)
		case int64(elf.DT_HASH):
			hashAddr = bias + uintptr(val)
		case dtGNUHash:
			gnuHashAddr = bias + uintptr(val)
		case int64(elf.DT_PLTREL):
			pltrelVal = int64(val)
			havePltrel = true
		case int64(elf.DT_JMPREL):
			jmprelAddr = bias + uintptr(val)
		case int64(elf.DT_PLTRELSZ):
			pltrelsz = val
		case int64(elf.DT_REL):
			relAddr = bias + uintptr(val)
		case int64(elf.DT_RELSZ):
			relsz = val
		case int64(elf.DT_RELA):
			relaAddr = bias + uintptr(val)
		case int64(elf.DT_RELASZ):
			relasz = val
		case dtAndroidRel:
			androidRelAddr = bias + uintptr(val)
		case dtAndroidRelSz:
			androidRelSz = val
		case dtAndroidRela:
			androidRelaAddr = bias + uintptr(val)
		case dtAndroidRelaSz:
			androidRelaSz = val
		}
	}

	v.IsUseRela = havePltrel && pltrelVal == int64(elf.DT_RELA)

	v.RelPLT = jmprelAddr
	v.RelPLTSz = pltrelsz

	if v.IsUseRela {
		v.RelDyn = relaAddr
		v.RelDynSz = relasz
		v.RelAndroid = androidRelaAddr
		v.RelAndroidSz = androidRelaSz
	} else {
		v.RelDyn = relAddr
		v.RelDynSz = relsz
		v.RelAndroid = androidRelAddr
		v.RelAndroidSz = androidRelSz
	}

	if gnuHashAddr != 0 {
		if err := v.parseGNUHash(gnuHashAddr, mem, ws); err != nil {
			return err
		}
		v.IsUseGNUHash = true
	} else if hashAddr != 0 {
		if err := v.parseClassicHash(hashAddr, mem); err != nil {
			return err
		}
	} else {
		return newErr(KindFormat, "image.dynamic", errNoHashTable)
	}

	return nil
}

func (v *ImageView) parseClassicHash(addr uintptr, mem MemoryReader) error {
	hdr, err := mem.ReadAt(addr, 8)
	if err != nil {
		return newErr(KindFormat, "image.hash", err)
	}
	bucketCnt := binary.LittleEndian.Uint32(hdr[0:4])
	chainCnt := binary.LittleEndian.Uint32(hdr[4:8])
	v.Classic = classicHash{
		bucketCnt: bucketCnt,
		chainCnt:  chainCnt,
		bucket:    addr + 8,
		chain:     addr + 8 + uintptr(bucketCnt)*4,
	}
	return nil
}

func (v *ImageView) parseGNUHash(addr uintptr, mem MemoryReader, ws WordSize) error {
	hdr, err := mem.ReadAt(addr, 16)
	if err != nil {
		return newErr(KindFormat, "image.hash", err)
	}
	bucketCnt := binary.LittleEndian.Uint32(hdr[0:4])
	symoffset := binary.LittleEndian.Uint32(hdr[4:8])
	bloomSz := binary.LittleEndian.Uint32(hdr[8:12])
	bloomShift := binary.LittleEndian.Uint32(hdr[12:16])

	wordBytes := uintptr(4)
	if ws == W64 {
		wordBytes = 8
	}

	bloomAddr := addr + 16
	bucketAddr := bloomAddr + uintptr(bloomSz)*wordBytes
	chainAddr := bucketAddr + uintptr(bucketCnt)*4

	v.GNU = gnuHash{
		bucketCnt:  bucketCnt,
		symoffset:  symoffset,
		bloomSz:    bloomSz,
		bloomShift: bloomShift,
		bloom:      bloomAddr,
		bucket:     bucketAddr,
		chain:      chainAddr,
	}
	return nil
}

// findLoadSegment reports the PT_LOAD segment whose file-vaddr range
// contains vaddr, the segment-relative address before bias is applied
// (i.e. r_offset, since GOT slots are recorded relative to the image's
// own vaddr space). Used to validate a relocation's slot address actually
// falls inside the mapped image before changing its protection.
func (v *ImageView) findLoadSegment(vaddr uint64) (*progHeader, bool) {
	for i := range v.Phdr {
		p := &v.Phdr[i]
		if p.Type != elf.PT_LOAD {
			continue
		}
		if vaddr >= p.Vaddr && vaddr < p.Vaddr+p.Memsz {
			return p, true
		}
	}
	return nil, false
}

// CheckELFHeader is a standalone header validator: it performs step 1 of
// spec.md §4.4 only, without building a full ImageView.
func CheckELFHeader(baseAddr uintptr, mem MemoryReader) error {
	ident, err := mem.ReadAt(baseAddr, 16)
	if err != nil {
		return newErr(KindFormat, "CheckELFHeader", err)
	}
	if ident[0] != 0x7f || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return newErr(KindFormat, "CheckELFHeader", errBadMagic)
	}
	var ws WordSize
	switch elf.Class(ident[elf.EI_CLASS]) {
	case elf.ELFCLASS32:
		ws = W32
	case elf.ELFCLASS64:
		ws = W64
	default:
		return newErr(KindFormat, "CheckELFHeader", errBadClass)
	}
	if ws != nativeWordSize {
		return newErr(KindFormat, "CheckELFHeader", errBadClass)
	}
	if elf.Data(ident[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return newErr(KindFormat, "CheckELFHeader", errBadData)
	}
	if ident[elf.EI_VERSION] != 1 {
		return newErr(KindFormat, "CheckELFHeader", errBadVersion)
	}

	ehsize := 52
	if ws == W64 {
		ehsize = 64
	}
	ehdr, err := mem.ReadAt(baseAddr, ehsize)
	if err != nil {
		return newErr(KindFormat, "CheckELFHeader", err)
	}
	eType := binary.LittleEndian.Uint16(ehdr[16:18])
	eMachine := binary.LittleEndian.Uint16(ehdr[18:20])
	eVersion := binary.LittleEndian.Uint32(ehdr[20:24])
	if eVersion != 1 {
		return newErr(KindFormat, "CheckELFHeader", errBadVersion)
	}
	if elf.Type(eType) != elf.ET_EXEC && elf.Type(eType) != elf.ET_DYN {
		return newErr(KindFormat, "CheckELFHeader", errBadType)
	}
	if elf.Machine(eMachine) != nativeMachine {
		return newErr(KindFormat, "CheckELFHeader", errBadMachine)
	}
	return nil
}
