package pack

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/lukasojd/puregit/giterr"
)

// copy/insert instruction opcode layout (spec.md §4.F, git delta.h):
// cmd&0x80==0 && cmd>0 is an insert of cmd literal bytes; cmd&0x80!=0 is
// a copy, with the low 4 bits selecting up to 4 little-endian offset
// bytes and the next 3 bits selecting up to 3 size bytes; cmd==0 is
// illegal.
const (
	cmdCopyMask   = 0x80
	cmdInsertMax  = 127
	copyOffsetLen = 4
	copySizeLen   = 3
)

// DecodeDelta applies delta to base, reproducing the target bytes.
// Grounded on go-git's patch_delta.go patchDelta, generalized to report
// giterr.ErrInvalidDelta/DeltaSizeMismatch per spec.md §4.F.
func DecodeDelta(base, delta []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(delta))

	baseSize, err := decodeSizeVarint(r)
	if err != nil {
		return nil, err
	}
	if baseSize != uint64(len(base)) {
		return nil, fmt.Errorf("%w: base size %d does not match delta header %d", giterr.ErrInvalidDelta, len(base), baseSize)
	}

	targetSize, err := decodeSizeVarint(r)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, targetSize)

	for uint64(len(out)) < targetSize {
		cmd, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated instruction stream: %v", giterr.ErrInvalidDelta, err)
		}

		switch {
		case cmd == 0:
			return nil, fmt.Errorf("%w: zero command byte", giterr.ErrInvalidDelta)

		case cmd&cmdCopyMask != 0:
			var offset, size uint64
			for i := 0; i < copyOffsetLen; i++ {
				if cmd&(1<<uint(i)) != 0 {
					b, err := r.ReadByte()
					if err != nil {
						return nil, fmt.Errorf("%w: truncated copy offset: %v", giterr.ErrInvalidDelta, err)
					}
					offset |= uint64(b) << (8 * uint(i))
				}
			}
			for i := 0; i < copySizeLen; i++ {
				if cmd&(1<<uint(4+i)) != 0 {
					b, err := r.ReadByte()
					if err != nil {
						return nil, fmt.Errorf("%w: truncated copy size: %v", giterr.ErrInvalidDelta, err)
					}
					size |= uint64(b) << (8 * uint(i))
				}
			}
			if size == 0 {
				size = 0x10000
			}
			if offset+size > baseSize || offset+size < offset {
				return nil, fmt.Errorf("%w: copy [%d,%d) out of base range", giterr.ErrInvalidDelta, offset, offset+size)
			}
			out = append(out, base[offset:offset+size]...)

		default: // insert
			n := int(cmd)
			buf := make([]byte, n)
			if _, err := readFull(r, buf); err != nil {
				return nil, fmt.Errorf("%w: truncated insert payload: %v", giterr.ErrInvalidDelta, err)
			}
			out = append(out, buf...)
		}
	}

	if uint64(len(out)) != targetSize {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", giterr.ErrInvalidDelta, len(out), targetSize)
	}
	return out, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// blockSize is the granularity of the encoder's match index (spec.md
// §4.F "hash index of non-overlapping 16-byte blocks").
const blockSize = 16

// maxCopySize is 2^24-1, the largest single copy the encoder will ever
// emit (spec.md §4.F "extend...up to min(base_remaining,
// target_remaining, 2^24-1)"); the decoder has no such limit since a
// copy's size field can already only encode up to 0xffffff via 3 bytes.
const maxCopySize = 1<<24 - 1

// blockHash mixes a 16-byte block into a table index using the
// golden-ratio seeded rolling hash spec.md §4.F specifies:
// h = ((h<<5)+h+b) mod 2^31, applied byte by byte.
func blockHash(b []byte) uint32 {
	var h uint32 = 0x9e3779b9 // golden ratio seed, per spec.md §4.F
	for _, c := range b {
		h = (h<<5 + h + uint32(c)) & 0x7fffffff
	}
	return h
}

// EncodeDelta builds a delta transforming base into target, or returns
// (nil, false) if no delta is shorter than compressedTargetLen (the
// spec.md §4.F "emit only when strictly less than the compressed
// target" rule — compressedTargetLen is supplied by the caller, which
// knows the whole-object compressed size it's being compared against).
func EncodeDelta(base, target []byte, compressedTargetLen int) ([]byte, bool) {
	out := make([]byte, 0, len(target)/2+32)
	out = append(out, encodeSizeVarint(uint64(len(base)))...)
	out = append(out, encodeSizeVarint(uint64(len(target)))...)

	index := buildBlockIndex(base)

	var insertBuf []byte
	flushInsert := func() {
		for len(insertBuf) > 0 {
			n := len(insertBuf)
			if n > cmdInsertMax {
				n = cmdInsertMax
			}
			out = append(out, byte(n))
			out = append(out, insertBuf[:n]...)
			insertBuf = insertBuf[n:]
		}
	}

	ti := 0
	for ti < len(target) {
		matchOff, matchLen := index.bestMatch(base, target, ti)
		if matchLen < blockSize {
			insertBuf = append(insertBuf, target[ti])
			ti++
			continue
		}

		flushInsert()
		out = append(out, encodeCopyInstruction(matchOff, matchLen)...)
		ti += matchLen
	}
	flushInsert()

	if len(out) >= compressedTargetLen {
		return nil, false
	}
	return out, true
}

func encodeCopyInstruction(offset, size int) []byte {
	cmd := byte(cmdCopyMask)
	var payload []byte

	o := uint32(offset)
	for i := 0; i < copyOffsetLen; i++ {
		b := byte(o >> (8 * uint(i)))
		if b != 0 {
			cmd |= 1 << uint(i)
			payload = append(payload, b)
		}
	}

	s := uint32(size)
	if s == 0x10000 {
		s = 0 // size==0 means 0x10000, spec.md §4.F
	}
	for i := 0; i < copySizeLen; i++ {
		b := byte(s >> (8 * uint(i)))
		if b != 0 {
			cmd |= 1 << uint(4+i)
			payload = append(payload, b)
		}
	}

	return append([]byte{cmd}, payload...)
}

// blockIndex maps a block hash to candidate offsets in base, built over
// non-overlapping 16-byte blocks (spec.md §4.F).
type blockIndex struct {
	table map[uint32][]int
}

func buildBlockIndex(base []byte) *blockIndex {
	idx := &blockIndex{table: make(map[uint32][]int)}
	for off := 0; off+blockSize <= len(base); off += blockSize {
		h := blockHash(base[off : off+blockSize])
		idx.table[h] = append(idx.table[h], off)
	}
	return idx
}

// bestMatch probes the index for a run of base bytes matching
// target[ti:], verifying each candidate byte-for-byte before extending
// forward, as spec.md §4.F requires ("verifies the 16-byte block
// byte-for-byte, then extends the match").
func (idx *blockIndex) bestMatch(base, target []byte, ti int) (offset, length int) {
	if ti+blockSize > len(target) {
		return 0, 0
	}
	h := blockHash(target[ti : ti+blockSize])

	best := 0
	bestOff := 0
	for _, off := range idx.table[h] {
		if !bytes.Equal(base[off:off+blockSize], target[ti:ti+blockSize]) {
			continue
		}
		maxExtend := len(base) - off
		if remaining := len(target) - ti; remaining < maxExtend {
			maxExtend = remaining
		}
		if maxExtend > maxCopySize {
			maxExtend = maxCopySize
		}
		n := blockSize
		for n < maxExtend && base[off+n] == target[ti+n] {
			n++
		}
		if n > best {
			best = n
			bestOff = off
		}
	}
	return bestOff, best
}
