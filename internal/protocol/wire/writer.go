package wire

import "encoding/binary"

// Writer appends protocol values to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) WriteBytes(p []byte) { w.buf = append(w.buf, p...) }
func (w *Writer) WriteUint8(v uint8)  { w.buf = append(w.buf, v) }
func (w *Writer) WriteInt8(v int8)    { w.buf = append(w.buf, uint8(v)) }

func (w *Writer) WriteUint16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *Writer) WriteInt16(v int16)   { w.WriteUint16(uint16(v)) }
func (w *Writer) WriteInt32(v int32)   { w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) }
func (w *Writer) WriteInt64(v int64)   { w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v)) }

// WriteByteA writes v offset by 128.
func (w *Writer) WriteByteA(v uint8) { w.buf = append(w.buf, v+128) }

// WriteLEShortA writes a little-endian short whose low byte is offset by 128.
func (w *Writer) WriteLEShortA(v uint16) {
	w.buf = append(w.buf, uint8(v)+128, uint8(v>>8))
}

func (w *Writer) WriteLEShort(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

// WriteByteC writes v negated.
func (w *Writer) WriteByteC(v int8) { w.buf = append(w.buf, uint8(-v)) }

// WriteString writes s followed by the terminator. s must not itself
// contain the terminator.
func (w *Writer) WriteString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, Terminator)
}
