package subunit

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"
)

// Reader decodes packets from a byte stream.
type Reader struct {
	r           *bufio.Reader
	offset      int64
	passthrough func([]byte)
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithPassthrough makes the reader hand bytes found between packets to fn
// instead of failing with ErrNonSubunit.
func WithPassthrough(fn func([]byte)) ReaderOption {
	return func(r *Reader) {
		r.passthrough = fn
	}
}

func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	reader := &Reader{r: bufio.NewReader(r)}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// Offset is the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next returns the next packet, or io.EOF once the stream is exhausted.
func (r *Reader) Next() (*Packet, error) {
	for {
		b, err := r.r.Peek(1)
		if err != nil {
			return nil, err
		}
		if b[0] == Signature {
			return r.readPacket()
		}
		if r.passthrough == nil {
			return nil, fmt.Errorf("%w at offset %d", ErrNonSubunit, r.offset)
		}
		if err := r.readNonSubunit(); err != nil {
			return nil, err
		}
	}
}

func (r *Reader) readNonSubunit() error {
	var chunk []byte
	for {
		b, err := r.r.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if b == Signature {
			if err := r.r.UnreadByte(); err != nil {
				return err
			}
			break
		}
		chunk = append(chunk, b)
	}
	r.offset += int64(len(chunk))
	r.passthrough(chunk)
	return nil
}

func (r *Reader) readPacket() (*Packet, error) {
	start := r.offset

	// signature, flags and the first byte of the length
	head := make([]byte, 4, 8)
	if _, err := io.ReadFull(r.r, head); err != nil {
		return nil, r.truncated(start, err)
	}
	flags := binary.BigEndian.Uint16(head[1:3])
	if flags>>12 != Version {
		return nil, fmt.Errorf("%w %d at offset %d", ErrUnsupportedVersion, flags>>12, start)
	}
	if extra := varintLen(head[3]) - 1; extra > 0 {
		head = head[:4+extra]
		if _, err := io.ReadFull(r.r, head[4:]); err != nil {
			return nil, r.truncated(start, err)
		}
	}
	length, _, err := decodeVarint(head[3:])
	if err != nil {
		return nil, fmt.Errorf("packet at offset %d: %w", start, err)
	}
	if length > MaxPacketLength {
		return nil, fmt.Errorf("%w: %d bytes at offset %d", ErrPacketTooLarge, length, start)
	}
	if int(length) < len(head)+crc32.Size {
		return nil, fmt.Errorf("%w: length %d at offset %d is shorter than the header", ErrMalformedPacket, length, start)
	}

	buf := make([]byte, length)
	copy(buf, head)
	if _, err := io.ReadFull(r.r, buf[len(head):]); err != nil {
		return nil, r.truncated(start, err)
	}
	r.offset += int64(length)

	crcAt := len(buf) - crc32.Size
	if want, got := binary.BigEndian.Uint32(buf[crcAt:]), crc32.ChecksumIEEE(buf[:crcAt]); want != got {
		return nil, fmt.Errorf("%w at offset %d: want %08x got %08x", ErrBadCRC, start, want, got)
	}

	p := &Packet{
		Flags:  flags,
		Status: Status(flags & statusMask),
	}
	if err := p.decodeFields(buf[len(head):crcAt]); err != nil {
		return nil, fmt.Errorf("packet at offset %d: %w", start, err)
	}
	return p, nil
}

func (r *Reader) truncated(start int64, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated packet at offset %d", ErrMalformedPacket, start)
	}
	return err
}

func (p *Packet) decodeFields(body []byte) error {
	f := &fields{buf: body}
	if p.HasTimestamp() {
		secs := f.uint32()
		nanos := f.varint()
		p.Timestamp = time.Unix(int64(secs), int64(nanos)).UTC()
	}
	if p.HasTestID() {
		p.TestID = f.string()
	}
	if p.HasTags() {
		count := f.varint()
		// every tag takes at least its one byte length prefix
		if f.err == nil && count > uint32(len(f.buf)) {
			return fmt.Errorf("%w: %d tags in %d bytes", ErrMalformedPacket, count, len(f.buf))
		}
		p.Tags = make([]string, 0, count)
		for i := uint32(0); i < count && f.err == nil; i++ {
			p.Tags = append(p.Tags, f.string())
		}
	}
	if p.has(FlagMimeType) {
		p.MimeType = f.string()
	}
	if p.HasFileContent() {
		p.FileName = f.string()
		p.FileBytes = f.bytes()
	}
	if p.has(FlagRouteCode) {
		p.RouteCode = f.string()
	}
	if f.err != nil {
		return f.err
	}
	if len(f.buf) != 0 {
		return fmt.Errorf("%w: %d unexpected trailing bytes", ErrMalformedPacket, len(f.buf))
	}
	return nil
}

// fields is a cursor over a packet body. The first error sticks and
// subsequent reads return zero values.
type fields struct {
	buf []byte
	err error
}

func (f *fields) take(n int) []byte {
	if f.err != nil {
		return nil
	}
	if n > len(f.buf) {
		f.err = fmt.Errorf("%w: field overruns packet", ErrMalformedPacket)
		return nil
	}
	out := f.buf[:n]
	f.buf = f.buf[n:]
	return out
}

func (f *fields) uint32() uint32 {
	b := f.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (f *fields) varint() uint32 {
	if f.err != nil {
		return 0
	}
	v, n, err := decodeVarint(f.buf)
	if err != nil {
		f.err = err
		return 0
	}
	f.buf = f.buf[n:]
	return v
}

func (f *fields) bytes() []byte {
	n := f.varint()
	b := f.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (f *fields) string() string {
	return string(f.bytes())
}
