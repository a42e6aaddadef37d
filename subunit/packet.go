// Package subunit reads and writes the subunit v2 binary protocol emitted by
// `tempest run --subunit` (and any other stestr based runner).
//
// A packet is laid out as:
//
//	signature(0xB3) flags(uint16) length(varint)
//	[timestamp] [test id] [tags] [mime type] [file content] [route code]
//	crc32(uint32)
//
// Integers are big-endian. Optional fields are present when the matching
// flag is set and always appear in the order above.
package subunit

import (
	"errors"
	"time"
)

const (
	Signature byte = 0xB3

	// Version is the only protocol version understood, stored in the top
	// nibble of the flags.
	Version = 0x2

	// MaxPacketLength bounds a single packet, CRC included.
	MaxPacketLength = 4 * 1024 * 1024
)

// Packet flags.
const (
	FlagTestID      uint16 = 0x0800
	FlagRouteCode   uint16 = 0x0400
	FlagTimestamp   uint16 = 0x0200
	FlagRunnable    uint16 = 0x0100
	FlagTags        uint16 = 0x0080
	FlagMimeType    uint16 = 0x0040
	FlagEOF         uint16 = 0x0020
	FlagFileContent uint16 = 0x0010

	statusMask  uint16 = 0x0007
	versionMask uint16 = 0xF000
)

var (
	ErrNonSubunit         = errors.New("non-subunit content in stream")
	ErrUnsupportedVersion = errors.New("unsupported subunit version")
	ErrBadCRC             = errors.New("packet crc mismatch")
	ErrPacketTooLarge     = errors.New("packet too large")
	ErrMalformedPacket    = errors.New("malformed packet")
)

// Status is the 3-bit test status carried in every packet.
type Status uint8

const (
	StatusUndefined Status = iota
	StatusExists
	StatusInProgress
	StatusSuccess
	StatusUnexpectedSuccess
	StatusSkip
	StatusFail
	StatusExpectedFailure
)

var statusNames = [...]string{
	StatusUndefined:         "",
	StatusExists:            "exists",
	StatusInProgress:        "inprogress",
	StatusSuccess:           "success",
	StatusUnexpectedSuccess: "uxsuccess",
	StatusSkip:              "skip",
	StatusFail:              "fail",
	StatusExpectedFailure:   "xfail",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "invalid"
}

// Final reports whether the status ends a test.
func (s Status) Final() bool {
	switch s {
	case StatusSuccess, StatusUnexpectedSuccess, StatusSkip, StatusFail, StatusExpectedFailure:
		return true
	}
	return false
}

// Packet is one decoded subunit v2 packet.
type Packet struct {
	Flags     uint16
	Status    Status
	Timestamp time.Time
	TestID    string
	Tags      []string
	MimeType  string
	FileName  string
	FileBytes []byte
	RouteCode string
}

func (p *Packet) has(flag uint16) bool { return p.Flags&flag != 0 }

func (p *Packet) HasTimestamp() bool   { return p.has(FlagTimestamp) }
func (p *Packet) HasTestID() bool      { return p.has(FlagTestID) }
func (p *Packet) HasTags() bool        { return p.has(FlagTags) }
func (p *Packet) HasFileContent() bool { return p.has(FlagFileContent) }
func (p *Packet) Runnable() bool       { return p.has(FlagRunnable) }
func (p *Packet) EOF() bool            { return p.has(FlagEOF) }
