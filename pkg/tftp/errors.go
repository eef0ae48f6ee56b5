package tftp

import (
	"errors"
	"fmt"
)

// Encoding / decoding errors. A non-nil Decode error means "malformed,
// drop the datagram and keep waiting" (spec.md §4.1); encoding errors are
// fatal programming errors in this client (spec.md §4.1).
var (
	ErrPacketTooLarge  = errors.New("tftp: packet would exceed the 516-byte envelope")
	ErrBufferTooSmall  = errors.New("tftp: destination buffer too small")
	ErrShortPacket     = errors.New("tftp: packet too short for its opcode")
	ErrNotTerminated   = errors.New("tftp: expected NUL-terminated field")
	ErrUnknownOpcode   = errors.New("tftp: unrecognized opcode")
	ErrUnknownTID      = errors.New("tftp: datagram from unexpected remote endpoint")
	ErrRetriesExceeded = errors.New("tftp: retry budget exhausted, timing out")
	ErrNoEndpoint      = errors.New("tftp: no usable address for host/port")
	ErrUsage           = errors.New("tftp: exactly one of -r or -w is required, with a remote file")
)

// ErrorCode is the 2-byte code carried by a wire ERROR packet (spec.md
// §4.1). Mirrors the teacher's SDOAbortCode / AbortCodeDescriptionMap.
type ErrorCode uint16

const (
	ErrCodeUndefined       ErrorCode = 0
	ErrCodeFileNotFound    ErrorCode = 1
	ErrCodeAccessViolation ErrorCode = 2
	ErrCodeDiskFull        ErrorCode = 3
	ErrCodeIllegalOp       ErrorCode = 4
	ErrCodeUnknownTID      ErrorCode = 5
	ErrCodeFileExists      ErrorCode = 6
	ErrCodeNoSuchUser      ErrorCode = 7
)

var errorCodeDescriptions = map[ErrorCode]string{
	ErrCodeUndefined:       "not defined, see error message (if any)",
	ErrCodeFileNotFound:    "file not found",
	ErrCodeAccessViolation: "access violation",
	ErrCodeDiskFull:        "disk full or allocation exceeded",
	ErrCodeIllegalOp:       "illegal TFTP operation",
	ErrCodeUnknownTID:      "unknown transfer ID",
	ErrCodeFileExists:      "file already exists",
	ErrCodeNoSuchUser:      "no such user",
}

// Description returns the RFC 1350 meaning of the code, falling back to a
// generic label for values outside the standard 0-7 range.
func (c ErrorCode) Description() string {
	if d, ok := errorCodeDescriptions[c]; ok {
		return d
	}
	return "unrecognized error code"
}

func (c ErrorCode) String() string {
	return fmt.Sprintf("%d (%s)", uint16(c), c.Description())
}

// PeerError wraps a server-reported ERROR packet (spec.md §4.4, §7). It is
// the error returned by Get/Put when the transfer is aborted by the peer.
type PeerError struct {
	Code    ErrorCode
	Message string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("server reported error %s: %s", e.Code, e.Message)
}
