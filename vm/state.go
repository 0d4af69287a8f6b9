// state.go - Little-endian state stream used by device save/load

package vm

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// StateWriter serialises device fields in a fixed order. Errors are sticky:
// after the first failure every Put is a no-op and Err reports the cause.
type StateWriter struct {
	w   io.Writer
	buf [8]byte
	err error
}

func NewStateWriter(w io.Writer) *StateWriter {
	return &StateWriter{w: w}
}

func (s *StateWriter) Err() error { return s.err }

func (s *StateWriter) put(b []byte) {
	if s.err != nil {
		return
	}
	_, s.err = s.w.Write(b)
}

// Header writes the per-device version tag followed by the device id.
func (s *StateWriter) Header(version uint32, id ID) {
	s.PutUint32(version)
	s.PutInt32(int32(id))
}

func (s *StateWriter) PutBool(v bool) {
	if v {
		s.PutUint8(1)
	} else {
		s.PutUint8(0)
	}
}

func (s *StateWriter) PutUint8(v uint8) {
	s.buf[0] = v
	s.put(s.buf[:1])
}

func (s *StateWriter) PutUint16(v uint16) {
	binary.LittleEndian.PutUint16(s.buf[:2], v)
	s.put(s.buf[:2])
}

func (s *StateWriter) PutUint32(v uint32) {
	binary.LittleEndian.PutUint32(s.buf[:4], v)
	s.put(s.buf[:4])
}

func (s *StateWriter) PutUint64(v uint64) {
	binary.LittleEndian.PutUint64(s.buf[:8], v)
	s.put(s.buf[:8])
}

func (s *StateWriter) PutInt32(v int32)     { s.PutUint32(uint32(v)) }
func (s *StateWriter) PutInt64(v int64)     { s.PutUint64(uint64(v)) }
func (s *StateWriter) PutInt(v int)         { s.PutInt64(int64(v)) }
func (s *StateWriter) PutFloat64(v float64) { s.PutUint64(math.Float64bits(v)) }

// PutBytes writes b verbatim. The reader must know the length.
func (s *StateWriter) PutBytes(b []byte) {
	s.put(b)
}

// StateReader is the mirror of StateWriter. Reads past the end of the
// stream leave Err set and return zero values.
type StateReader struct {
	r   io.Reader
	buf [8]byte
	err error
}

func NewStateReader(r io.Reader) *StateReader {
	return &StateReader{r: r}
}

func (s *StateReader) Err() error { return s.err }

func (s *StateReader) get(n int) []byte {
	if s.err != nil {
		clear(s.buf[:n])
		return s.buf[:n]
	}
	if _, err := io.ReadFull(s.r, s.buf[:n]); err != nil {
		s.err = err
		clear(s.buf[:n])
	}
	return s.buf[:n]
}

// CheckHeader reads a version tag and device id and reports whether both
// match. A mismatch also sets Err so callers can bail out with one check.
func (s *StateReader) CheckHeader(version uint32, id ID) bool {
	v := s.Uint32()
	d := s.Int32()
	if s.err != nil {
		return false
	}
	if v != version || ID(d) != id {
		s.err = errStateHeader
		return false
	}
	return true
}

var errStateHeader = errors.New("state header mismatch")

func (s *StateReader) Bool() bool { return s.Uint8() != 0 }

func (s *StateReader) Uint8() uint8 { return s.get(1)[0] }

func (s *StateReader) Uint16() uint16 { return binary.LittleEndian.Uint16(s.get(2)) }

func (s *StateReader) Uint32() uint32 { return binary.LittleEndian.Uint32(s.get(4)) }

func (s *StateReader) Uint64() uint64 { return binary.LittleEndian.Uint64(s.get(8)) }

func (s *StateReader) Int32() int32     { return int32(s.Uint32()) }
func (s *StateReader) Int64() int64     { return int64(s.Uint64()) }
func (s *StateReader) Int() int         { return int(s.Int64()) }
func (s *StateReader) Float64() float64 { return math.Float64frombits(s.Uint64()) }

// Bytes fills dst completely from the stream.
func (s *StateReader) Bytes(dst []byte) {
	if s.err != nil {
		return
	}
	if _, err := io.ReadFull(s.r, dst); err != nil {
		s.err = err
	}
}
