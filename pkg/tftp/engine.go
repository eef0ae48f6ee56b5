package tftp

import (
	"context"
	"io"
	"net"
)

// Engine drives one Session from bootstrap until CLOSED (spec.md §4.4).
// It is built the way the teacher's pkg/sdo/client.go builds the SDO
// client/server lockstep: one state field, one loop, side effects
// performed inline per branch.
type Engine struct {
	sess *Session
	t    transport
}

func newEngine(sess *Session, t transport) *Engine {
	return &Engine{sess: sess, t: t}
}

// Run executes the engine loop described in spec.md §4.4 until the
// transfer closes (success), the retry budget is exhausted, a peer ERROR
// is received, or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	s := e.sess
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := e.t.Now()
		justSent := !s.timerArmed() || now.After(s.timer)

		if justSent {
			if err := e.t.Send(s.sendBuffer[:s.sendLen], s.remoteAddr); err != nil {
				return err
			}
			if s.state == stateLastAckSent {
				// Final ACK is on the wire; nothing left to confirm
				// (spec.md §4.4, §9 — no Dally wait).
				s.state = stateClosed
				return nil
			}
			if !s.timerArmed() {
				s.backoff = s.initialBackoff
			} else {
				s.backoff *= 2
			}
			s.timer = now.Add(s.backoff)
		}

		remaining := s.timer.Sub(e.t.Now())
		if remaining < 0 {
			remaining = 0
		}

		ready, err := e.t.WaitReadable(remaining)
		if err != nil {
			return err
		}

		if !ready {
			s.retriesLeft--
			s.log.WithField("retries_left", s.retriesLeft).Debug("timeout waiting for reply")
			if s.retriesLeft <= 0 {
				s.log.Warn("timeout, aborting")
				return ErrRetriesExceeded
			}
			continue
		}

		buf := make([]byte, MaxPacketSize)
		n, from, err := e.t.Recv(buf)
		if err != nil {
			return err
		}

		if s.tidFixed {
			if !sameEndpoint(from, s.remoteAddr) {
				s.log.WithField("from", from).Debug("datagram from unknown endpoint, dropped")
				continue
			}
		} else {
			s.remoteAddr = from
			s.tidFixed = true
			s.log.WithField("tid", from).Debug("server transfer ID fixed")
		}

		pkt, derr := Decode(buf[:n])
		if derr != nil {
			s.log.WithError(derr).Debug("malformed datagram, dropped")
			continue
		}

		done, terr := e.transition(pkt)
		if terr != nil {
			return terr
		}
		if done {
			return nil
		}
	}
}

func sameEndpoint(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

// transition applies one incoming packet to the state machine, per the
// table in spec.md §4.4.
func (e *Engine) transition(pkt Packet) (done bool, err error) {
	s := e.sess
	switch s.state {
	case stateRRQSent, stateAckSent:
		return e.transitionReceiving(pkt)
	case stateWRQSent, stateDataSent, stateLastDataSent:
		return e.transitionSending(pkt)
	default:
		s.log.Warn("packet received in terminal state, ignored")
		return false, nil
	}
}

// transitionReceiving handles the download side: client is waiting for the
// next DATA block (from RRQ_SENT or ACK_SENT).
func (e *Engine) transitionReceiving(pkt Packet) (bool, error) {
	s := e.sess
	switch p := pkt.(type) {
	case Data:
		if p.Block != s.blockNum {
			s.log.WithField("block", p.Block).Debug("unexpected block number, ignored")
			return false, nil
		}
		if _, err := s.file.Write(p.Payload); err != nil {
			return false, err
		}
		ack := Ack{Block: s.blockNum}
		s.blockNum++
		if len(p.Payload) == BlockSize {
			s.state = stateAckSent
		} else {
			s.state = stateLastAckSent
		}
		if err := s.setSend(ack); err != nil {
			return false, err
		}
		s.resetRetries()
		s.clearTimer()
		return false, nil

	case Error:
		s.log.Errorf("server reported error %s: %s", ErrorCode(p.Code), p.Message)
		return false, &PeerError{Code: ErrorCode(p.Code), Message: p.Message}

	default:
		s.log.Debug("unexpected packet, ignored")
		return false, nil
	}
}

// transitionSending handles the upload side: client is waiting for the
// next ACK (from WRQ_SENT, DATA_SENT or LAST_DATA_SENT).
func (e *Engine) transitionSending(pkt Packet) (bool, error) {
	s := e.sess
	switch p := pkt.(type) {
	case Ack:
		if p.Block != s.blockNum {
			s.log.WithField("block", p.Block).Debug("unexpected ack, ignored")
			return false, nil
		}
		if s.state == stateLastDataSent {
			s.state = stateClosed
			return true, nil
		}
		buf := make([]byte, BlockSize)
		n, rerr := s.file.Read(buf)
		if rerr != nil && rerr != io.EOF {
			return false, rerr
		}
		s.blockNum++
		data := Data{Block: s.blockNum, Payload: buf[:n]}
		if n == BlockSize {
			s.state = stateDataSent
		} else {
			s.state = stateLastDataSent
		}
		if err := s.setSend(data); err != nil {
			return false, err
		}
		s.resetRetries()
		s.clearTimer()
		return false, nil

	case Error:
		s.log.Errorf("server reported error %s: %s", ErrorCode(p.Code), p.Message)
		return false, &PeerError{Code: ErrorCode(p.Code), Message: p.Message}

	default:
		s.log.Debug("unexpected packet, ignored")
		return false, nil
	}
}
