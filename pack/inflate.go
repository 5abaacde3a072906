package pack

import (
	"bufio"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/lukasojd/puregit/giterr"
)

// countingReader tracks how many bytes have been pulled from an
// underlying io.Reader, used to discover exactly where a zlib stream
// ends within a pack so the next entry can be read starting at the
// right offset (spec.md §4.H "seek precisely to
// start_offset + bytes_consumed_by_zlib").
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// inflateAt decompresses one zlib-deflated entry body starting at
// offset within ra, reading at most maxSize uncompressed bytes, and
// reports the number of compressed bytes consumed.
//
// compress/flate reads its input one byte at a time through the
// bufio.Reader's ReadByte and stops at the end of the deflate stream.
// bufio rounds the requested size of 1 up to its 16-byte minimum, so
// the count of consumed bytes is what the countingReader pulled minus
// what is still buffered, which lets the caller compute an exact
// next-entry offset without re-parsing from the pack header.
func inflateAt(ra io.ReaderAt, offset int64, maxSize int64) (data []byte, compressedLen int64, err error) {
	sr := io.NewSectionReader(ra, offset, maxSizeOrRest(ra, offset))
	cr := &countingReader{r: sr}
	br := bufio.NewReaderSize(cr, 1)

	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: inflate: %v", giterr.ErrInvalidObject, err)
	}
	defer zr.Close()

	buf := make([]byte, maxSize)
	n, err := io.ReadFull(zr, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, 0, fmt.Errorf("%w: inflate body: %v", giterr.ErrInvalidObject, err)
	}
	if int64(n) != maxSize {
		return nil, 0, fmt.Errorf("%w: inflated %d bytes, want %d", giterr.ErrInvalidObject, n, maxSize)
	}

	// Read zr to EOF so the zlib reader consumes and checks the Adler-32
	// trailer exactly once; it may already have done so while filling buf.
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, 0, fmt.Errorf("%w: inflate trailer: %v", giterr.ErrInvalidObject, err)
	}

	return buf, cr.n - int64(br.Buffered()), nil
}

// maxSizeOrRest returns a section length reaching to the end of ra when
// the underlying size can't be cheaply determined; callers only read
// maxSize uncompressed bytes so over-estimating the section is safe.
func maxSizeOrRest(ra io.ReaderAt, offset int64) int64 {
	if sz, ok := ra.(interface{ Size() int64 }); ok {
		return sz.Size() - offset
	}
	return 1 << 34 // generous upper bound; io.SectionReader stops at EOF regardless
}
