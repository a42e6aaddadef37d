package subunit

import (
	"fmt"
)

// Numbers use a 1-4 byte encoding; the top two bits of the first byte hold
// the number of extra bytes.
const (
	maxVarint1 = 1<<6 - 1
	maxVarint2 = 1<<14 - 1
	maxVarint3 = 1<<22 - 1
	maxVarint4 = 1<<30 - 1
)

func varintLen(first byte) int {
	return int(first>>6) + 1
}

func appendVarint(dst []byte, v uint32) ([]byte, error) {
	switch {
	case v <= maxVarint1:
		return append(dst, byte(v)), nil
	case v <= maxVarint2:
		return append(dst, 0x40|byte(v>>8), byte(v)), nil
	case v <= maxVarint3:
		return append(dst, 0x80|byte(v>>16), byte(v>>8), byte(v)), nil
	case v <= maxVarint4:
		return append(dst, 0xC0|byte(v>>24), byte(v>>16), byte(v>>8), byte(v)), nil
	}
	return dst, fmt.Errorf("%w: number %d does not fit in 30 bits", ErrMalformedPacket, v)
}

// decodeVarint reads one number from buf and returns it with the number of
// bytes consumed.
func decodeVarint(buf []byte) (uint32, int, error) {
	if len(buf) == 0 {
		return 0, 0, fmt.Errorf("%w: missing number", ErrMalformedPacket)
	}
	n := varintLen(buf[0])
	if len(buf) < n {
		return 0, 0, fmt.Errorf("%w: truncated number", ErrMalformedPacket)
	}
	v := uint32(buf[0] & 0x3F)
	for _, b := range buf[1:n] {
		v = v<<8 | uint32(b)
	}
	return v, n, nil
}
