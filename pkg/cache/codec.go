package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Encoded layout (big endian):
//
//	magic[4] flags[1] status[2] storedAt[8]
//	keyLen[4] key
//	headerCount[4] { keyLen[4] key valLen[4] val }...
//	bodyLen[4] body
var entryMagic = [4]byte{'R', 'C', 'E', '1'}

const flagZstd byte = 1

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func EncodeEntry(e *Entry, compress bool) []byte {
	var buf bytes.Buffer
	buf.Write(entryMagic[:])

	body := e.Body
	flags := byte(0)
	if compress && len(body) > 0 {
		body = zstdEncoder.EncodeAll(body, nil)
		flags |= flagZstd
	}
	buf.WriteByte(flags)

	var scratch [8]byte
	binary.BigEndian.PutUint16(scratch[:2], uint16(e.StatusCode))
	buf.Write(scratch[:2])
	binary.BigEndian.PutUint64(scratch[:8], uint64(e.StoredAt.UnixNano()))
	buf.Write(scratch[:8])

	writeBytes(&buf, []byte(e.Key))

	binary.BigEndian.PutUint32(scratch[:4], uint32(len(e.Headers)))
	buf.Write(scratch[:4])
	for _, h := range e.Headers {
		writeBytes(&buf, []byte(h.Key))
		writeBytes(&buf, []byte(h.Value))
	}

	writeBytes(&buf, body)
	return buf.Bytes()
}

func DecodeEntry(data []byte) (*Entry, error) {
	r := &reader{data: data}

	magic := r.next(4)
	if magic == nil || !bytes.Equal(magic, entryMagic[:]) {
		return nil, ErrCorruptEntry
	}
	flagsRaw := r.next(1)
	statusRaw := r.next(2)
	storedRaw := r.next(8)
	if flagsRaw == nil || statusRaw == nil || storedRaw == nil {
		return nil, ErrCorruptEntry
	}

	entry := &Entry{
		StatusCode: int(binary.BigEndian.Uint16(statusRaw)),
		StoredAt:   time.Unix(0, int64(binary.BigEndian.Uint64(storedRaw))),
	}

	key, ok := r.bytes()
	if !ok {
		return nil, ErrCorruptEntry
	}
	entry.Key = string(key)

	countRaw := r.next(4)
	if countRaw == nil {
		return nil, ErrCorruptEntry
	}
	count := binary.BigEndian.Uint32(countRaw)
	for i := uint32(0); i < count; i++ {
		k, ok := r.bytes()
		if !ok {
			return nil, ErrCorruptEntry
		}
		v, ok := r.bytes()
		if !ok {
			return nil, ErrCorruptEntry
		}
		entry.Headers = append(entry.Headers, Header{Key: string(k), Value: string(v)})
	}

	body, ok := r.bytes()
	if !ok || r.off != len(r.data) {
		return nil, ErrCorruptEntry
	}

	if flagsRaw[0]&flagZstd != 0 {
		decoded, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
		}
		body = decoded
	}
	entry.Body = append([]byte(nil), body...)

	return entry, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(b)))
	buf.Write(size[:])
	buf.Write(b)
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) next(n int) []byte {
	if n < 0 || r.off+n > len(r.data) {
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) bytes() ([]byte, bool) {
	sizeRaw := r.next(4)
	if sizeRaw == nil {
		return nil, false
	}
	size := binary.BigEndian.Uint32(sizeRaw)
	if uint64(size) > uint64(len(r.data)-r.off) {
		return nil, false
	}
	b := r.next(int(size))
	if b == nil {
		return nil, false
	}
	return b, true
}
