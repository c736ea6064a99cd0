package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// On-disk record framing, shared by database files and view index files:
//
//	[u32 payload length][u64 xxhash64 of payload][payload]
//
// payload:
//
//	[u8 flags][u32 rev][u64 seq][u16 id length][id][u32 body length][body]
//
// A record whose checksum does not match, or whose frame extends past the end
// of the file, marks the end of the valid prefix; everything after it is a
// torn tail from an interrupted write and is truncated on open.

const (
	frameHeaderSize = 4 + 8

	flagDeleted = 1 << 0
)

type record struct {
	ID      string
	Rev     uint32
	Seq     uint64
	Deleted bool
	Body    []byte
}

func (r *record) encode() []byte {
	payload := make([]byte, 0, 1+4+8+2+len(r.ID)+4+len(r.Body))

	var flags byte
	if r.Deleted {
		flags |= flagDeleted
	}
	payload = append(payload, flags)
	payload = binary.LittleEndian.AppendUint32(payload, r.Rev)
	payload = binary.LittleEndian.AppendUint64(payload, r.Seq)
	payload = binary.LittleEndian.AppendUint16(payload, uint16(len(r.ID)))
	payload = append(payload, r.ID...)
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(r.Body)))
	payload = append(payload, r.Body...)

	frame := make([]byte, 0, frameHeaderSize+len(payload))
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(payload)))
	frame = binary.LittleEndian.AppendUint64(frame, xxhash.Sum64(payload))
	frame = append(frame, payload...)
	return frame
}

func decodePayload(payload []byte) (*record, error) {
	if len(payload) < 1+4+8+2 {
		return nil, ErrCorruptRecord
	}

	flags := payload[0]
	rev := binary.LittleEndian.Uint32(payload[1:])
	seq := binary.LittleEndian.Uint64(payload[5:])
	idLen := int(binary.LittleEndian.Uint16(payload[13:]))

	rest := payload[15:]
	if len(rest) < idLen+4 {
		return nil, ErrCorruptRecord
	}
	id := string(rest[:idLen])
	bodyLen := int(binary.LittleEndian.Uint32(rest[idLen:]))
	rest = rest[idLen+4:]
	if len(rest) != bodyLen {
		return nil, ErrCorruptRecord
	}

	body := make([]byte, bodyLen)
	copy(body, rest)

	return &record{
		ID:      id,
		Rev:     rev,
		Seq:     seq,
		Deleted: flags&flagDeleted != 0,
		Body:    body,
	}, nil
}

// writeRecord appends a framed record and returns the number of bytes written.
func writeRecord(w io.Writer, r *record) (int64, error) {
	frame := r.encode()
	if _, err := w.Write(frame); err != nil {
		return 0, fmt.Errorf("write record: %w", err)
	}
	return int64(len(frame)), nil
}

// readRecordAt reads one framed record at the given offset.
func readRecordAt(f *os.File, off int64) (*record, int64, error) {
	var header [frameHeaderSize]byte
	if _, err := f.ReadAt(header[:], off); err != nil {
		return nil, 0, err
	}

	payloadLen := binary.LittleEndian.Uint32(header[0:])
	sum := binary.LittleEndian.Uint64(header[4:])

	payload := make([]byte, payloadLen)
	if _, err := f.ReadAt(payload, off+frameHeaderSize); err != nil {
		return nil, 0, err
	}
	if xxhash.Sum64(payload) != sum {
		return nil, 0, ErrCorruptRecord
	}

	rec, err := decodePayload(payload)
	if err != nil {
		return nil, 0, err
	}
	return rec, frameHeaderSize + int64(payloadLen), nil
}

// scanRecords walks every valid record from the start of the file and returns
// the length of the valid prefix. A corrupt or truncated record ends the scan
// without error.
func scanRecords(f *os.File, fn func(off, size int64, rec *record) error) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	end := info.Size()

	var off int64
	for off < end {
		if end-off < frameHeaderSize {
			break
		}
		rec, size, err := readRecordAt(f, off)
		if err != nil {
			if errors.Is(err, ErrCorruptRecord) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return off, err
		}
		if err := fn(off, size, rec); err != nil {
			return off, err
		}
		off += size
	}
	return off, nil
}
