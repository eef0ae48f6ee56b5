package tftp

import (
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Direction is the transfer direction, fixed at bootstrap (spec.md §3).
type Direction uint8

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

// state is the session's protocol state, mirroring the teacher's unexported
// SDOState enum in pkg/sdo/common.go: a small unexported const block plus a
// String() method, not a public Stringer-heavy enum.
type state uint8

const (
	stateClosed state = iota
	stateRRQSent
	stateWRQSent
	stateDataSent
	stateLastDataSent
	stateAckSent
	stateLastAckSent
)

func (s state) String() string {
	switch s {
	case stateClosed:
		return "CLOSED"
	case stateRRQSent:
		return "RRQ_SENT"
	case stateWRQSent:
		return "WRQ_SENT"
	case stateDataSent:
		return "DATA_SENT"
	case stateLastDataSent:
		return "LAST_DATA_SENT"
	case stateAckSent:
		return "ACK_SENT"
	case stateLastAckSent:
		return "LAST_ACK_SENT"
	default:
		return "UNKNOWN"
	}
}

// Default tunables, spec.md §6.
const (
	DefaultRetries      = 6
	DefaultInitialDelay = 50 * time.Millisecond
	DefaultMode         = "octet"
)

// noDeadline is the clearTimer sentinel: a zero Time compares before any
// real deadline and is never mistaken for "armed" because the engine only
// ever compares it via timer.IsZero() (spec.md §4.2).
var noDeadline time.Time

// Session is the single long-lived entity for one transfer (spec.md §3).
// Every field is owned exclusively by the engine; there is no concurrent
// access (spec.md §5).
type Session struct {
	remoteAddr *net.UDPAddr
	tidFixed   bool

	file      *os.File
	direction Direction
	mode      string

	blockNum uint16
	state    state

	sendBuffer [MaxPacketSize]byte
	sendLen    int

	timer          time.Time
	backoff        time.Duration
	initialBackoff time.Duration
	retriesLeft    int
	maxRetries     int

	id  string
	log *logrus.Entry
}

// clearTimer disarms the retransmission timer (spec.md §4.2). The next
// engine iteration re-initializes backoff from initialBackoff.
func (s *Session) clearTimer() {
	s.timer = noDeadline
	s.backoff = s.initialBackoff
}

func (s *Session) timerArmed() bool {
	return !s.timer.IsZero()
}

func (s *Session) resetRetries() {
	s.retriesLeft = s.maxRetries
}

// setSend encodes pkt into the session's retransmission buffer. It is the
// only way sendBuffer/sendLen are overwritten, per the invariant in
// spec.md §3 that the buffer always holds the packet the engine is
// authoritative for retransmitting.
func (s *Session) setSend(pkt Packet) error {
	n, err := pkt.Encode(s.sendBuffer[:])
	if err != nil {
		return err
	}
	s.sendLen = n
	return nil
}
