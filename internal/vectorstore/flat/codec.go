package flat

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"kbqa/internal/domain"
)

// On-disk layout, little endian:
//
//	magic "KBQI" | version u16 | reserved u16 | dimension u32 | count u64
//	count*dimension float32
//	crc32 (IEEE) of all preceding bytes
const (
	magic         = "KBQI"
	FormatVersion = 1
	headerSize    = 4 + 2 + 2 + 4 + 8
)

// WriteTo serializes the index. It implements io.WriterTo.
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	crc := crc32.NewIEEE()
	bw := bufio.NewWriter(io.MultiWriter(w, crc))

	var hdr [headerSize]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:], FormatVersion)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(x.dimension))
	binary.LittleEndian.PutUint64(hdr[12:], uint64(x.Len()))
	if _, err := bw.Write(hdr[:]); err != nil {
		return 0, err
	}
	var buf [4]byte
	for _, f := range x.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		if _, err := bw.Write(buf[:]); err != nil {
			return 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint32(buf[:], crc.Sum32())
	if _, err := w.Write(buf[:]); err != nil {
		return 0, err
	}
	return int64(headerSize + 4*len(x.data) + 4), nil
}

// Read decodes an index written by WriteTo. Any structural problem is
// reported as domain.ErrCorruptStore.
func Read(r io.Reader) (*Index, error) {
	crc := crc32.NewIEEE()
	br := io.TeeReader(bufio.NewReader(r), crc)

	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, corrupt("read header: %v", err)
	}
	if string(hdr[:4]) != magic {
		return nil, corrupt("bad magic %q", hdr[:4])
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != FormatVersion {
		return nil, corrupt("unsupported index version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(hdr[8:]))
	count := binary.LittleEndian.Uint64(hdr[12:])
	if dim <= 0 {
		return nil, corrupt("invalid dimension %d", dim)
	}
	if count > uint64(math.MaxInt32)/uint64(dim) {
		return nil, corrupt("implausible vector count %d", count)
	}

	x := &Index{dimension: dim, data: make([]float32, 0, min(int(count)*dim, 1<<20))}
	row := make([]byte, 4*dim)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, corrupt("read vector %d: %v", i, err)
		}
		for j := 0; j < dim; j++ {
			x.data = append(x.data, math.Float32frombits(binary.LittleEndian.Uint32(row[4*j:])))
		}
	}

	want := crc.Sum32()
	var tail [4]byte
	if _, err := io.ReadFull(br, tail[:]); err != nil {
		return nil, corrupt("read checksum: %v", err)
	}
	if got := binary.LittleEndian.Uint32(tail[:]); got != want {
		return nil, corrupt("checksum mismatch")
	}
	var extra [1]byte
	if n, err := br.Read(extra[:]); n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
		return nil, corrupt("trailing data after checksum")
	}
	return x, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: index: %s", domain.ErrCorruptStore, fmt.Sprintf(format, args...))
}
