package subunit

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Writer encodes packets onto a byte stream. Tests in other packages use it
// to build result streams.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes p. Presence flags are derived from the populated fields;
// FlagRunnable and FlagEOF are taken from p.Flags.
func (w *Writer) Write(p *Packet) error {
	buf, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.w.Write(buf)
	return err
}

// MarshalBinary returns the wire encoding of p.
func (p *Packet) MarshalBinary() ([]byte, error) {
	flags := uint16(Version)<<12 | uint16(p.Status)&statusMask | p.Flags&(FlagRunnable|FlagEOF)

	var body []byte
	var err error
	if !p.Timestamp.IsZero() {
		flags |= FlagTimestamp
		body = binary.BigEndian.AppendUint32(body, uint32(p.Timestamp.Unix()))
		if body, err = appendVarint(body, uint32(p.Timestamp.Nanosecond())); err != nil {
			return nil, err
		}
	}
	if p.TestID != "" {
		flags |= FlagTestID
		if body, err = appendString(body, p.TestID); err != nil {
			return nil, err
		}
	}
	if len(p.Tags) > 0 {
		flags |= FlagTags
		if body, err = appendVarint(body, uint32(len(p.Tags))); err != nil {
			return nil, err
		}
		for _, tag := range p.Tags {
			if body, err = appendString(body, tag); err != nil {
				return nil, err
			}
		}
	}
	if p.MimeType != "" {
		flags |= FlagMimeType
		if body, err = appendString(body, p.MimeType); err != nil {
			return nil, err
		}
	}
	if p.FileName != "" || p.FileBytes != nil {
		flags |= FlagFileContent
		if body, err = appendString(body, p.FileName); err != nil {
			return nil, err
		}
		if body, err = appendBytes(body, p.FileBytes); err != nil {
			return nil, err
		}
	}
	if p.RouteCode != "" {
		flags |= FlagRouteCode
		if body, err = appendString(body, p.RouteCode); err != nil {
			return nil, err
		}
	}

	// The length covers the whole packet, including its own encoding.
	length := 3 + len(body) + crc32.Size
	switch {
	case length+1 <= maxVarint1:
		length++
	case length+2 <= maxVarint2:
		length += 2
	case length+3 <= maxVarint3:
		length += 3
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, length)
	}

	buf := make([]byte, 0, length)
	buf = append(buf, Signature, byte(flags>>8), byte(flags))
	if buf, err = appendVarint(buf, uint32(length)); err != nil {
		return nil, err
	}
	buf = append(buf, body...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return buf, nil
}

func appendBytes(dst, b []byte) ([]byte, error) {
	dst, err := appendVarint(dst, uint32(len(b)))
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

func appendString(dst []byte, s string) ([]byte, error) {
	return appendBytes(dst, []byte(s))
}
